package agent

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/fetti/rideagent/internal/model/query"
	"github.com/fetti/rideagent/internal/relay"
	"github.com/fetti/rideagent/pkg/utils"
)

// Handler exposes the query submission and streaming endpoints backed by
// the relay.
type Handler struct {
	dispatcher *relay.Dispatcher
	registry   *relay.Registry
	heartbeat  time.Duration
	ready      func() bool
	upgrader   websocket.Upgrader
}

// New creates the agent HTTP handler. ready reports whether the agent can
// currently serve queries; the streaming endpoints stay available either
// way so a frontend can connect and diagnose.
func New(dispatcher *relay.Dispatcher, registry *relay.Registry, heartbeat time.Duration, ready func() bool) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		registry:   registry,
		heartbeat:  heartbeat,
		ready:      ready,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the agent endpoints on the given router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/agent/query", h.handleQuery)
	r.Get("/agent/stream", h.handleStream)
	r.Get("/agent/ws", h.handleWebSocket)
}

type handshakeEvent struct {
	Message   string  `json:"message"`
	ClientID  string  `json:"clientId"`
	Timestamp float64 `json:"timestamp"`
}

type heartbeatEvent struct {
	Heartbeat bool    `json:"heartbeat"`
	Timestamp float64 `json:"timestamp"`
}

func unixSeconds() float64 {
	return float64(time.Now().UnixMilli()) / 1000
}

// handleQuery accepts a query and acknowledges immediately; the answer
// arrives later on the event stream.
func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	if h.ready == nil || !h.ready() {
		utils.RespondError(w, http.StatusServiceUnavailable, "SQL agent not initialized")
		return
	}

	var req query.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	ack := h.dispatcher.Submit(req)
	utils.RespondJSON(w, http.StatusOK, ack)
}

// handleStream serves one client's event channel over SSE. The loop waits
// on the channel queue bounded by the heartbeat interval: a message resets
// the wait, a quiet interval emits exactly one heartbeat. Every exit path
// releases the channel.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch := h.registry.Register()
	defer h.registry.Unregister(ch.ID())

	utils.SetupSSEHeaders(w)
	utils.SendSSEChunk(w, flusher, handshakeEvent{
		Message:   "Connected to SQL Agent",
		ClientID:  ch.ID(),
		Timestamp: unixSeconds(),
	})

	ctx := r.Context()
	timer := time.NewTimer(h.heartbeat)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[sse] stream closed for client %s", ch.ID())
			return
		case payload := <-ch.Messages():
			utils.SendSSERaw(w, flusher, payload)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(h.heartbeat)
		case <-timer.C:
			utils.SendSSEChunk(w, flusher, heartbeatEvent{Heartbeat: true, Timestamp: unixSeconds()})
			timer.Reset(h.heartbeat)
		}
	}
}

// handleWebSocket serves the same channel contract over a websocket for
// clients that cannot hold an SSE connection open.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ch := h.registry.Register()
	defer h.registry.Unregister(ch.ID())

	if err := conn.WriteJSON(handshakeEvent{
		Message:   "Connected to SQL Agent",
		ClientID:  ch.ID(),
		Timestamp: unixSeconds(),
	}); err != nil {
		log.Printf("[ws] handshake write failed for client %s: %v", ch.ID(), err)
		return
	}

	// Reader goroutine only detects disconnects; clients never send
	// payloads on this socket.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	timer := time.NewTimer(h.heartbeat)
	defer timer.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			log.Printf("[ws] client %s disconnected", ch.ID())
			return
		case payload := <-ch.Messages():
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("[ws] write to client %s failed: %v", ch.ID(), err)
				return
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(h.heartbeat)
		case <-timer.C:
			data, err := json.Marshal(heartbeatEvent{Heartbeat: true, Timestamp: unixSeconds()})
			if err == nil {
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					log.Printf("[ws] heartbeat to client %s failed: %v", ch.ID(), err)
					return
				}
			}
			timer.Reset(h.heartbeat)
		}
	}
}

// Health reports liveness plus the agent and channel state.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":           "healthy",
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
		"agentReady":       h.ready != nil && h.ready(),
		"connectedClients": h.registry.Count(),
	})
}

package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fetti/rideagent/internal/model/query"
)

// Invoker runs one agent invocation over a bounded conversation history.
// Implementations are blocking; the dispatcher owns timeout and
// cancellation.
type Invoker interface {
	Invoke(ctx context.Context, history []query.Message) (string, error)
}

// InvokerFunc adapts a plain function to the Invoker interface.
type InvokerFunc func(ctx context.Context, history []query.Message) (string, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, history []query.Message) (string, error) {
	return f(ctx, history)
}

// Options bound the dispatcher.
type Options struct {
	// AgentTimeout is the hard wall-clock budget for one agent invocation.
	AgentTimeout time.Duration
	// HistoryWindow is the number of trailing messages sent to the agent.
	HistoryWindow int
	// Workers bounds the number of concurrent agent invocations.
	Workers int
}

// Dispatcher accepts query requests, runs them against the agent on a
// bounded worker pool under a hard timeout, records the exchange in the
// session store, and publishes the formatted result to every live channel.
// Every dispatch terminates with a published FormattedMessage; there is no
// silent-drop path.
type Dispatcher struct {
	invoker  Invoker
	sessions *SessionStore
	registry *Registry
	opts     Options

	slots chan struct{}
	wg    sync.WaitGroup
}

// NewDispatcher wires the relay core. The session store and registry are
// owned by the caller and passed in explicitly; the dispatcher never
// touches ambient global state.
func NewDispatcher(invoker Invoker, sessions *SessionStore, registry *Registry, opts Options) *Dispatcher {
	if opts.AgentTimeout <= 0 {
		opts.AgentTimeout = 45 * time.Second
	}
	if opts.HistoryWindow < 1 {
		opts.HistoryWindow = 4
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Dispatcher{
		invoker:  invoker,
		sessions: sessions,
		registry: registry,
		opts:     opts,
		slots:    make(chan struct{}, opts.Workers),
	}
}

// Submit schedules a query for background processing and returns the
// acknowledgement immediately. Missing request/session IDs are generated.
func (d *Dispatcher) Submit(req query.Request) query.Ack {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	log.Printf("[dispatch] accepted request=%s session=%s: %.80q", req.RequestID, req.SessionID, req.Message)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.slots <- struct{}{}
		defer func() { <-d.slots }()
		d.process(req)
	}()

	return query.Ack{
		Status:    "processing",
		RequestID: req.RequestID,
		SessionID: req.SessionID,
		Message:   "Query submitted for processing",
	}
}

// Shutdown waits for in-flight dispatches to finish or the context to
// expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type invokeResult struct {
	text string
	err  error
}

// process runs one dispatch end to end. Any panic is converted into a
// published failure message rather than tearing down the worker.
func (d *Dispatcher) process(req query.Request) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[dispatch] panic processing request=%s: %v", req.RequestID, r)
			d.registry.Publish(FormatFailure("Processing error: internal failure", req.RequestID, time.Now()))
		}
	}()

	window := d.sessions.AppendAndWindow(req.SessionID,
		query.Message{Role: query.RoleUser, Content: req.Message}, d.opts.HistoryWindow)

	ctx, cancel := context.WithTimeout(context.Background(), d.opts.AgentTimeout)
	defer cancel()

	start := time.Now()
	outcome, text := d.invoke(ctx, window, req.RequestID)
	elapsed := time.Since(start).Round(time.Millisecond)

	if outcome != OutcomeSuccess {
		text = userFacingText(outcome)
	}
	log.Printf("[dispatch] request=%s outcome=%s elapsed=%s", req.RequestID, outcome, elapsed)

	// The synthesized failure explanation is stored too, so a follow-up
	// question sees what the user saw.
	d.sessions.Append(req.SessionID, query.Message{Role: query.RoleAssistant, Content: text})

	delivered := d.registry.Publish(Format(text, req.RequestID, time.Now()))
	log.Printf("[dispatch] request=%s delivered to %d clients", req.RequestID, delivered)
}

// invoke runs the agent on its own goroutine so expiry of the wall-clock
// budget abandons the wait instead of blocking on a runaway call. The
// context is cancelled on expiry; if the agent ignores it, its late result
// is dropped (the result channel is buffered).
func (d *Dispatcher) invoke(ctx context.Context, window []query.Message, requestID string) (Outcome, string) {
	results := make(chan invokeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- invokeResult{err: fmt.Errorf("agent panic: %v", r)}
			}
		}()
		text, err := d.invoker.Invoke(ctx, window)
		results <- invokeResult{text: text, err: err}
	}()

	select {
	case res := <-results:
		return classify(res, requestID)
	case <-ctx.Done():
		log.Printf("[dispatch] request=%s agent invocation exceeded %s, abandoning wait", requestID, d.opts.AgentTimeout)
		return OutcomeTimeout, ""
	}
}

func classify(res invokeResult, requestID string) (Outcome, string) {
	switch {
	case res.err == nil:
		return OutcomeSuccess, res.text
	case errors.Is(res.err, ErrStepBudgetExceeded):
		log.Printf("[dispatch] request=%s step budget exceeded: %v", requestID, res.err)
		return OutcomeStepBudget, ""
	case errors.Is(res.err, context.DeadlineExceeded):
		log.Printf("[dispatch] request=%s agent reported deadline: %v", requestID, res.err)
		return OutcomeTimeout, ""
	default:
		log.Printf("[dispatch] request=%s agent execution failed: %v", requestID, res.err)
		return OutcomeExecutionError, ""
	}
}

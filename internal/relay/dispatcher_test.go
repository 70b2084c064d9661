package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fetti/rideagent/internal/model/query"
)

func testOptions() Options {
	return Options{
		AgentTimeout:  2 * time.Second,
		HistoryWindow: 4,
		Workers:       2,
	}
}

// receive blocks for the next published message on ch or fails the test.
func receive(t *testing.T, ch *Channel) query.FormattedMessage {
	t.Helper()
	select {
	case payload := <-ch.Messages():
		var msg query.FormattedMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("published payload is not valid JSON: %v", err)
		}
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("no message published within 5s")
		return query.FormattedMessage{}
	}
}

func firstRowValue(t *testing.T, msg query.FormattedMessage) string {
	t.Helper()
	if len(msg.Patches) != 1 {
		t.Fatalf("message has %d patches, want 1", len(msg.Patches))
	}
	rows := msg.Patches[0].Value.Data.Rows
	if len(rows) != 1 {
		t.Fatalf("component has %d rows, want 1", len(rows))
	}
	for _, v := range rows[0] {
		return v
	}
	t.Fatal("component row is empty")
	return ""
}

func TestSubmitAcknowledgesAndPublishesResult(t *testing.T) {
	registry := NewRegistry(16)
	sessions := NewSessionStore(8)
	d := NewDispatcher(InvokerFunc(func(_ context.Context, history []query.Message) (string, error) {
		return "Final Answer: 42 trips happened downtown.", nil
	}), sessions, registry, testOptions())

	ch := registry.Register()
	defer registry.Unregister(ch.ID())

	ack := d.Submit(query.Request{Message: "how many trips downtown?", RequestID: "req-1", SessionID: "sess-1"})
	if ack.Status != "processing" {
		t.Errorf("ack status = %q, want processing", ack.Status)
	}
	if ack.RequestID != "req-1" || ack.SessionID != "sess-1" {
		t.Errorf("ack ids = %q/%q, want req-1/sess-1", ack.RequestID, ack.SessionID)
	}

	msg := receive(t, ch)
	if msg.RequestID != "req-1" {
		t.Errorf("published requestId = %q, want req-1", msg.RequestID)
	}
	if got := firstRowValue(t, msg); got != "42 trips happened downtown." {
		t.Errorf("published row = %q", got)
	}

	history := sessions.History("sess-1")
	if len(history) != 2 {
		t.Fatalf("session history length = %d, want 2 (user + assistant)", len(history))
	}
	if history[0].Role != query.RoleUser || history[1].Role != query.RoleAssistant {
		t.Errorf("history roles = %q, %q", history[0].Role, history[1].Role)
	}
}

func TestSubmitGeneratesMissingIDs(t *testing.T) {
	registry := NewRegistry(16)
	d := NewDispatcher(InvokerFunc(func(context.Context, []query.Message) (string, error) {
		return "ok", nil
	}), NewSessionStore(8), registry, testOptions())

	ack := d.Submit(query.Request{Message: "hello"})
	if ack.RequestID == "" || ack.SessionID == "" {
		t.Fatalf("ack ids not generated: %+v", ack)
	}
	if ack.RequestID == ack.SessionID {
		t.Error("request and session IDs should be independent")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestTimeoutPublishesExplanationPromptly(t *testing.T) {
	registry := NewRegistry(16)
	opts := testOptions()
	opts.AgentTimeout = 50 * time.Millisecond

	release := make(chan struct{})
	defer close(release)
	d := NewDispatcher(InvokerFunc(func(ctx context.Context, _ []query.Message) (string, error) {
		// Simulates a runaway agent that ignores cancellation for a while.
		<-release
		return "too late", ctx.Err()
	}), NewSessionStore(8), registry, opts)

	ch := registry.Register()
	defer registry.Unregister(ch.ID())

	start := time.Now()
	d.Submit(query.Request{Message: "slow one", RequestID: "req-slow", SessionID: "s"})
	msg := receive(t, ch)
	elapsed := time.Since(start)

	if elapsed > 2*time.Second {
		t.Errorf("timeout result took %s, should arrive shortly after the 50ms budget", elapsed)
	}
	if got := firstRowValue(t, msg); !strings.Contains(got, "took too long") {
		t.Errorf("timeout row = %q, want the timeout explanation", got)
	}
}

func TestStepBudgetPublishesComplexityExplanation(t *testing.T) {
	registry := NewRegistry(16)
	sessions := NewSessionStore(8)
	d := NewDispatcher(InvokerFunc(func(context.Context, []query.Message) (string, error) {
		return "", fmt.Errorf("%w: 20 iterations", ErrStepBudgetExceeded)
	}), sessions, registry, testOptions())

	ch := registry.Register()
	defer registry.Unregister(ch.ID())

	d.Submit(query.Request{Message: "impossible question", RequestID: "req-loop", SessionID: "s"})
	msg := receive(t, ch)
	if got := firstRowValue(t, msg); !strings.Contains(got, "too complex") {
		t.Errorf("step budget row = %q, want the complexity explanation", got)
	}

	// The explanation lands in the history so follow-ups see it.
	history := sessions.History("s")
	if len(history) != 2 || !strings.Contains(history[1].Content, "too complex") {
		t.Errorf("history after step budget = %+v", history)
	}
}

func TestExecutionErrorPublishesGenericExplanation(t *testing.T) {
	registry := NewRegistry(16)
	d := NewDispatcher(InvokerFunc(func(context.Context, []query.Message) (string, error) {
		return "", errors.New("model endpoint returned 500")
	}), NewSessionStore(8), registry, testOptions())

	ch := registry.Register()
	defer registry.Unregister(ch.ID())

	d.Submit(query.Request{Message: "anything", RequestID: "req-err", SessionID: "s"})
	msg := receive(t, ch)
	if got := firstRowValue(t, msg); !strings.Contains(got, "Error processing query") {
		t.Errorf("execution error row = %q", got)
	}
}

func TestInvokerPanicStillPublishes(t *testing.T) {
	registry := NewRegistry(16)
	d := NewDispatcher(InvokerFunc(func(context.Context, []query.Message) (string, error) {
		panic("agent exploded")
	}), NewSessionStore(8), registry, testOptions())

	ch := registry.Register()
	defer registry.Unregister(ch.ID())

	d.Submit(query.Request{Message: "boom", RequestID: "req-panic", SessionID: "s"})
	msg := receive(t, ch)
	if msg.RequestID != "req-panic" {
		t.Fatalf("published requestId = %q", msg.RequestID)
	}
	if got := firstRowValue(t, msg); !strings.Contains(got, "Error processing query") {
		t.Errorf("panic row = %q", got)
	}
}

func TestHistoryWindowBoundsAgentInput(t *testing.T) {
	registry := NewRegistry(16)
	opts := testOptions()
	opts.HistoryWindow = 4

	var mu sync.Mutex
	var seen [][]query.Message
	d := NewDispatcher(InvokerFunc(func(_ context.Context, history []query.Message) (string, error) {
		mu.Lock()
		cp := make([]query.Message, len(history))
		copy(cp, history)
		seen = append(seen, cp)
		mu.Unlock()
		return "noted", nil
	}), NewSessionStore(8), registry, opts)

	ch := registry.Register()
	defer registry.Unregister(ch.ID())

	for i := 0; i < 5; i++ {
		d.Submit(query.Request{
			Message:   fmt.Sprintf("question %d", i),
			RequestID: fmt.Sprintf("req-%d", i),
			SessionID: "sess",
		})
		receive(t, ch)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 5 {
		t.Fatalf("agent invoked %d times, want 5", len(seen))
	}
	for i, window := range seen {
		if len(window) > opts.HistoryWindow {
			t.Errorf("invocation %d saw %d messages, cap is %d", i, len(window), opts.HistoryWindow)
		}
		last := window[len(window)-1]
		if last.Role != query.RoleUser || last.Content != fmt.Sprintf("question %d", i) {
			t.Errorf("invocation %d last message = %+v", i, last)
		}
	}
	// By the fifth exchange the window is saturated.
	if got := len(seen[4]); got != opts.HistoryWindow {
		t.Errorf("final window length = %d, want %d", got, opts.HistoryWindow)
	}
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	registry := NewRegistry(64)
	opts := testOptions()
	opts.Workers = 2
	opts.AgentTimeout = 10 * time.Second

	var current, peak atomic.Int32
	release := make(chan struct{})
	d := NewDispatcher(InvokerFunc(func(context.Context, []query.Message) (string, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		current.Add(-1)
		return "done", nil
	}), NewSessionStore(8), registry, opts)

	ch := registry.Register()
	defer registry.Unregister(ch.ID())

	const jobs = 6
	for i := 0; i < jobs; i++ {
		d.Submit(query.Request{Message: "q", RequestID: fmt.Sprintf("req-%d", i), SessionID: fmt.Sprintf("s-%d", i)})
	}

	// Wait for both workers to be occupied before releasing.
	deadline := time.After(2 * time.Second)
	for current.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("workers never became busy")
		case <-time.After(5 * time.Millisecond):
		}
	}
	close(release)

	for i := 0; i < jobs; i++ {
		receive(t, ch)
	}

	if got := peak.Load(); got > int32(opts.Workers) {
		t.Fatalf("peak concurrency = %d, cap is %d", got, opts.Workers)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestShutdownWaitsForInFlightDispatches(t *testing.T) {
	registry := NewRegistry(16)
	done := make(chan struct{})
	d := NewDispatcher(InvokerFunc(func(context.Context, []query.Message) (string, error) {
		time.Sleep(50 * time.Millisecond)
		close(done)
		return "finished", nil
	}), NewSessionStore(8), registry, testOptions())

	d.Submit(query.Request{Message: "q", RequestID: "req-wait", SessionID: "s"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case <-done:
	default:
		t.Fatal("Shutdown returned before the in-flight dispatch completed")
	}
}

func TestShutdownHonorsContext(t *testing.T) {
	registry := NewRegistry(16)
	release := make(chan struct{})
	defer close(release)
	d := NewDispatcher(InvokerFunc(func(context.Context, []query.Message) (string, error) {
		<-release
		return "late", nil
	}), NewSessionStore(8), registry, testOptions())

	d.Submit(query.Request{Message: "q", RequestID: "req-stuck", SessionID: "s"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := d.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown = %v, want deadline exceeded", err)
	}
}

package relay

import (
	"fmt"
	"sync"
	"testing"

	"github.com/fetti/rideagent/internal/model/query"
)

func userMsg(content string) query.Message {
	return query.Message{Role: query.RoleUser, Content: content}
}

func TestAppendEvictsOldestBeyondLimit(t *testing.T) {
	s := NewSessionStore(3)
	for i := 1; i <= 5; i++ {
		s.Append("sess", userMsg(fmt.Sprintf("m%d", i)))
	}

	got := s.History("sess")
	if len(got) != 3 {
		t.Fatalf("history length = %d, want 3", len(got))
	}
	for i, want := range []string{"m3", "m4", "m5"} {
		if got[i].Content != want {
			t.Errorf("history[%d] = %q, want %q", i, got[i].Content, want)
		}
	}
}

func TestAppendAndWindowReturnsTrailingWindow(t *testing.T) {
	s := NewSessionStore(8)
	for i := 1; i <= 5; i++ {
		s.Append("sess", userMsg(fmt.Sprintf("m%d", i)))
	}

	window := s.AppendAndWindow("sess", userMsg("m6"), 4)
	if len(window) != 4 {
		t.Fatalf("window length = %d, want 4", len(window))
	}
	for i, want := range []string{"m3", "m4", "m5", "m6"} {
		if window[i].Content != want {
			t.Errorf("window[%d] = %q, want %q", i, window[i].Content, want)
		}
	}

	// Window smaller than requested when the history is short.
	short := s.AppendAndWindow("fresh", userMsg("only"), 4)
	if len(short) != 1 || short[0].Content != "only" {
		t.Fatalf("fresh session window = %v, want just the new message", short)
	}
}

func TestHistoryReturnsCopies(t *testing.T) {
	s := NewSessionStore(8)
	s.Append("sess", userMsg("original"))

	got := s.History("sess")
	got[0].Content = "mutated"

	if again := s.History("sess"); again[0].Content != "original" {
		t.Fatalf("stored history mutated through returned slice: %q", again[0].Content)
	}
}

func TestHistoryUnknownSession(t *testing.T) {
	s := NewSessionStore(8)
	if got := s.History("never-seen"); len(got) != 0 {
		t.Fatalf("unknown session history = %v, want empty", got)
	}
	if s.Count() != 0 {
		t.Fatalf("Count() = %d, want 0 (History must not create sessions)", s.Count())
	}
}

func TestConcurrentSessionsStayIsolated(t *testing.T) {
	const perSession = 50
	s := NewSessionStore(2 * perSession)

	var wg sync.WaitGroup
	for _, id := range []string{"alpha", "beta"} {
		for i := 0; i < perSession; i++ {
			wg.Add(1)
			go func(id string, i int) {
				defer wg.Done()
				s.Append(id, userMsg(fmt.Sprintf("%s-%d", id, i)))
			}(id, i)
		}
	}
	wg.Wait()

	if s.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", s.Count())
	}
	for _, id := range []string{"alpha", "beta"} {
		history := s.History(id)
		if len(history) != perSession {
			t.Fatalf("session %s length = %d, want %d", id, len(history), perSession)
		}
		for _, msg := range history {
			if msg.Content[:len(id)] != id {
				t.Fatalf("session %s contains foreign message %q", id, msg.Content)
			}
		}
	}
}

package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/intakehq/intake/internal/metrics"
	"github.com/intakehq/intake/internal/script"
	"github.com/intakehq/intake/internal/session"
	"github.com/intakehq/intake/internal/storage"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	leads, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening lead store: %v", err)
	}
	t.Cleanup(func() { leads.Close() })

	return NewEngine(Deps{
		Sessions: session.NewMemoryStore(),
		Leads:    leads,
		Script:   script.Default(),
		Metrics:  metrics.New(),
	})
}

func TestStartReturnsFirstPrompt(t *testing.T) {
	e := newTestEngine(t)

	reply, err := e.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if reply.SessionID == "" {
		t.Error("empty session id")
	}
	if reply.AgentMessage != "What is your name?" {
		t.Errorf("AgentMessage = %q, want %q", reply.AgentMessage, "What is your name?")
	}
	if reply.IsComplete {
		t.Error("IsComplete = true on start")
	}
	if reply.CurrentStep != 0 {
		t.Errorf("CurrentStep = %d, want 0", reply.CurrentStep)
	}
}

// TestFullConversation walks a session through the whole default script and
// verifies the prompts, step counter, and the captured lead.
func TestFullConversation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	start, err := e.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	reply, err := e.Process(ctx, start.SessionID, "Alice")
	if err != nil {
		t.Fatalf("Process(name): %v", err)
	}
	if reply.AgentMessage != "What is your email?" {
		t.Errorf("after name: AgentMessage = %q, want %q", reply.AgentMessage, "What is your email?")
	}
	if reply.IsComplete || reply.CurrentStep != 1 {
		t.Errorf("after name: IsComplete=%v CurrentStep=%d, want false 1", reply.IsComplete, reply.CurrentStep)
	}

	reply, err = e.Process(ctx, start.SessionID, "alice@example.com")
	if err != nil {
		t.Fatalf("Process(email): %v", err)
	}
	if reply.IsComplete || reply.CurrentStep != 2 {
		t.Errorf("after email: IsComplete=%v CurrentStep=%d, want false 2", reply.IsComplete, reply.CurrentStep)
	}

	reply, err = e.Process(ctx, start.SessionID, "Web Development")
	if err != nil {
		t.Fatalf("Process(interest): %v", err)
	}
	if !reply.IsComplete {
		t.Error("after interest: IsComplete = false, want true")
	}
	if reply.CurrentStep != 3 {
		t.Errorf("after interest: CurrentStep = %d, want 3", reply.CurrentStep)
	}
	if reply.AgentMessage != "Thank you for your information! Our team will contact you soon." {
		t.Errorf("terminal message = %q", reply.AgentMessage)
	}

	leads, err := e.deps.Leads.ListLeads(0, 0)
	if err != nil {
		t.Fatalf("ListLeads: %v", err)
	}
	if len(leads) != 1 {
		t.Fatalf("captured %d leads, want 1", len(leads))
	}
	lead := leads[0]
	if lead.Name != "Alice" || lead.Email != "alice@example.com" || lead.Interest != "Web Development" {
		t.Errorf("lead = %+v", lead)
	}
	if lead.SessionID != start.SessionID {
		t.Errorf("lead.SessionID = %q, want %q", lead.SessionID, start.SessionID)
	}
}

func TestProcessUnknownSession(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Process(context.Background(), "nope", "hello")
	if !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("err = %v, want session.ErrNotFound", err)
	}
}

// TestProcessAfterComplete verifies a finished session rejects further
// messages without capturing another lead or changing state.
func TestProcessAfterComplete(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	start, err := e.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, msg := range []string{"Alice", "alice@example.com", "Consulting"} {
		if _, err := e.Process(ctx, start.SessionID, msg); err != nil {
			t.Fatalf("Process(%q): %v", msg, err)
		}
	}

	_, err = e.Process(ctx, start.SessionID, "extra")
	if !errors.Is(err, ErrAlreadyComplete) {
		t.Fatalf("err = %v, want ErrAlreadyComplete", err)
	}

	sess, err := e.Status(ctx, start.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if sess.CurrentStep != 3 {
		t.Errorf("CurrentStep changed to %d after rejected message", sess.CurrentStep)
	}
	if _, ok := sess.Answers["complete"]; ok {
		t.Error("rejected message was recorded as an answer")
	}

	n, err := e.deps.Leads.CountLeads()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("lead count = %d, want exactly 1", n)
	}
}

func TestStatusUnknownSession(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Status(context.Background(), "nope")
	if !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("err = %v, want session.ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	start, err := e.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}

	existed, err := e.Delete(ctx, start.SessionID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !existed {
		t.Error("Delete reported existed=false")
	}

	existed, err = e.Delete(ctx, start.SessionID)
	if err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if existed {
		t.Error("second Delete reported existed=true")
	}

	if _, err := e.Status(ctx, start.SessionID); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Status after delete: err = %v, want ErrNotFound", err)
	}
}

// TestConcurrentMessages fires messages at one session from many goroutines
// and checks the step counter never skips or exceeds the terminal step.
func TestConcurrentMessages(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	start, err := e.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Errors are expected once the session completes.
			_, _ = e.Process(ctx, start.SessionID, "answer")
		}()
	}
	wg.Wait()

	sess, err := e.Status(ctx, start.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if sess.CurrentStep != 3 || !sess.IsComplete {
		t.Errorf("final state CurrentStep=%d IsComplete=%v, want 3 true", sess.CurrentStep, sess.IsComplete)
	}

	n, err := e.deps.Leads.CountLeads()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("lead count = %d, want 1", n)
	}
}

func TestSeparateSessionsIndependent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a, err := e.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.Process(ctx, a.SessionID, "Alice"); err != nil {
		t.Fatal(err)
	}

	sessB, err := e.Status(ctx, b.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if sessB.CurrentStep != 0 {
		t.Errorf("session B advanced to step %d", sessB.CurrentStep)
	}
}

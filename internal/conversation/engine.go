// Package conversation drives the scripted lead-collection flow: each user
// message answers the current step and advances the session until the
// terminal step, at which point the collected answers become a lead.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/intakehq/intake/internal/metrics"
	"github.com/intakehq/intake/internal/script"
	"github.com/intakehq/intake/internal/session"
	"github.com/intakehq/intake/internal/storage"
)

// ErrAlreadyComplete is returned when a message arrives for a session that
// has already finished the script.
var ErrAlreadyComplete = errors.New("conversation already complete")

// Reply is the engine's answer to a started or advanced conversation.
type Reply struct {
	SessionID    string `json:"session_id"`
	AgentMessage string `json:"agent_message"`
	IsComplete   bool   `json:"is_complete"`
	CurrentStep  int    `json:"current_step"`
}

// Deps carries the engine's collaborators.
type Deps struct {
	Sessions session.Store
	Leads    *storage.Store
	Script   *script.Script
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Engine advances sessions through the script. Concurrent messages for the
// same session are serialized on a per-session lock so each message observes
// the step the previous one left behind.
type Engine struct {
	deps Deps

	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewEngine builds an Engine. All Deps fields except Logger are required.
func NewEngine(deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Engine{
		deps:  deps,
		locks: make(map[string]*lockEntry),
	}
}

func (e *Engine) acquire(id string) *lockEntry {
	e.mu.Lock()
	entry, ok := e.locks[id]
	if !ok {
		entry = &lockEntry{}
		e.locks[id] = entry
	}
	entry.refs++
	e.mu.Unlock()

	entry.mu.Lock()
	return entry
}

func (e *Engine) release(id string, entry *lockEntry) {
	entry.mu.Unlock()

	e.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(e.locks, id)
	}
	e.mu.Unlock()
}

// Start creates a fresh session and returns the first prompt.
func (e *Engine) Start(ctx context.Context) (Reply, error) {
	sess, err := e.deps.Sessions.Create(ctx)
	if err != nil {
		return Reply{}, fmt.Errorf("creating session: %w", err)
	}

	e.deps.Metrics.SessionsStarted.Inc()
	e.deps.Logger.Info("conversation started", "session_id", sess.ID)

	return Reply{
		SessionID:    sess.ID,
		AgentMessage: e.deps.Script.Step(0).Prompt,
		IsComplete:   false,
		CurrentStep:  0,
	}, nil
}

// Process records the message as the answer to the session's current step,
// advances one step, and returns the next prompt. When the advance lands on
// the terminal step the session is marked complete and a lead is captured.
//
// Returns session.ErrNotFound for unknown ids and ErrAlreadyComplete when
// the session already finished; in both cases no state changes.
func (e *Engine) Process(ctx context.Context, sessionID, message string) (Reply, error) {
	entry := e.acquire(sessionID)
	defer e.release(sessionID, entry)

	sess, err := e.deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		return Reply{}, err
	}
	if sess.IsComplete {
		return Reply{}, ErrAlreadyComplete
	}

	step := e.deps.Script.Step(sess.CurrentStep)
	sess.Answers[step.Field] = message
	sess.CurrentStep++

	if sess.CurrentStep == e.deps.Script.TerminalIndex() {
		sess.IsComplete = true
	}

	if err := e.deps.Sessions.Save(ctx, sess); err != nil {
		return Reply{}, fmt.Errorf("saving session %s: %w", sessionID, err)
	}

	e.deps.Metrics.MessagesProcessed.Inc()

	if sess.IsComplete {
		if err := e.captureLead(sess); err != nil {
			return Reply{}, err
		}
	}

	return Reply{
		SessionID:    sess.ID,
		AgentMessage: e.deps.Script.Step(sess.CurrentStep).Prompt,
		IsComplete:   sess.IsComplete,
		CurrentStep:  sess.CurrentStep,
	}, nil
}

func (e *Engine) captureLead(sess *session.Session) error {
	lead := storage.Lead{
		ID:        uuid.New().String(),
		SessionID: sess.ID,
		Name:      sess.Answers["name"],
		Email:     sess.Answers["email"],
		Interest:  sess.Answers["interest"],
		CreatedAt: time.Now().UTC(),
	}
	if err := e.deps.Leads.SaveLead(lead); err != nil {
		return fmt.Errorf("saving lead for session %s: %w", sess.ID, err)
	}

	e.deps.Metrics.LeadsCaptured.Inc()
	e.deps.Logger.Info("lead captured", "lead_id", lead.ID, "session_id", sess.ID)
	return nil
}

// Status returns a copy of the session state.
func (e *Engine) Status(ctx context.Context, sessionID string) (*session.Session, error) {
	return e.deps.Sessions.Get(ctx, sessionID)
}

// Delete removes the session and reports whether it existed.
func (e *Engine) Delete(ctx context.Context, sessionID string) (bool, error) {
	entry := e.acquire(sessionID)
	defer e.release(sessionID, entry)

	existed, err := e.deps.Sessions.Delete(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if existed {
		e.deps.Logger.Info("session deleted", "session_id", sessionID)
	}
	return existed, nil
}

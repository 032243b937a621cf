// Package session holds conversation session state and the stores that keep
// it for the lifetime of the process (or, with the redis backend, beyond it).
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a session id is unknown to the store.
var ErrNotFound = errors.New("session not found")

// Session is one in-progress or completed conversation. CurrentStep only
// moves forward, one step per processed message; Answers holds exactly the
// fields of steps already passed.
type Session struct {
	ID          string            `json:"id"`
	CurrentStep int               `json:"current_step"`
	Answers     map[string]string `json:"answers"`
	IsComplete  bool              `json:"is_complete"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Clone returns a deep copy so callers never alias store state.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Answers = make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		cp.Answers[k] = v
	}
	return &cp
}

// Store keeps sessions by id.
type Store interface {
	// Create allocates a fresh session at step 0 with no answers.
	Create(ctx context.Context) (*Session, error)
	// Get returns the session or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	// Save persists the full session state.
	Save(ctx context.Context, s *Session) error
	// Delete removes the session and reports whether it existed. Deleting an
	// unknown id is not an error.
	Delete(ctx context.Context, id string) (bool, error)
	// List returns the ids of all stored sessions.
	List(ctx context.Context) ([]string, error)
}

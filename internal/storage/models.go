package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Lead is a captured contact, one row per completed conversation.
type Lead struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Interest  string    `json:"interest"`
	CreatedAt time.Time `json:"created_at"`
}

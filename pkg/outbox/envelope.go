package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Actor is the user whose request produced an event.
type Actor struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
}

// Envelope wraps every outbox payload. Data holds the event body and is
// decoded against the (event type, version) pair by a Decoders set.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"event_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Actor      *Actor          `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// ParseEnvelope unwraps a stored payload. Rows written before versioning are
// read as version 1.
func ParseEnvelope(raw json.RawMessage) (Envelope, error) {
	var env Envelope
	if len(raw) == 0 {
		return env, errors.New("empty outbox payload")
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("parse envelope: %w", err)
	}
	if env.Version <= 0 {
		env.Version = 1
	}
	if len(env.Data) == 0 {
		return env, errors.New("envelope has no data")
	}
	return env, nil
}

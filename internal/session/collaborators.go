package session

import (
	"context"
	"fmt"
	"time"

	"github.com/lowaak/cardio-tracker/internal/calc"
)

// Metadata is supplied by the user when a session is completed
type Metadata struct {
	Activity calc.ActivityType `json:"activity"`
	Indoor   bool              `json:"indoor"`
	UserID   string            `json:"user_id"`
	Notes    string            `json:"notes"`
	Feeling  calc.Feeling      `json:"feeling"`
}

// FinalRecord is handed to the persistence collaborator once per completed session
type FinalRecord struct {
	SessionID   string
	StartedAt   time.Time
	CompletedAt time.Time
	Units       calc.UnitSystem
	Profile     calc.UserProfile
	Snapshot    Snapshot
	Metadata    Metadata
	Diagnostics Diagnostics
}

// Persister stores a completed session
type Persister interface {
	Save(ctx context.Context, record FinalRecord) error
}

// HealthSync pushes a completed session to a health platform. Failures are
// logged and otherwise ignored.
type HealthSync interface {
	Sync(ctx context.Context, record FinalRecord) error
}

// Producer is a sensor source the engine stops when the session ends
type Producer interface {
	Stop()
}

// PersistError reports a failed hand-off of a completed session. The
// session stays Completed and the record can be saved again with
// Engine.RetryPersist.
type PersistError struct {
	SessionID string
	Err       error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist session %s: %v", e.SessionID, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

package student

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EventCreated          = "student.created"
	EventExtended         = "student.extended"
	EventUpdated          = "student.updated"
	EventExtensionUpdated = "student.extension_updated"
	EventDeleted          = "student.deleted"
)

// Event is published after a lifecycle change has been committed.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	StudentUID string    `json:"studentUid"`
	Stage      Stage     `json:"stage,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func NewEvent(eventType, uid string, stage Stage, now time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		StudentUID: uid,
		Stage:      stage,
		OccurredAt: now.UTC(),
	}
}

// Publisher delivers lifecycle events (NATS or Kafka). The key is the student identifier.
type Publisher interface {
	SendMessage(ctx context.Context, key string, value interface{}) error
}

// ViewCache stores assembled student views by identifier.
//
// Fills are guarded by a per-student generation: read it with Generation
// before loading from the store and pass it to Set. Invalidate advances the
// generation, so a view loaded before a committed change is never stored.
type ViewCache interface {
	Get(ctx context.Context, uid string) (*StudentView, bool, error)
	Generation(ctx context.Context, uid string) (int64, error)
	// Set stores view only if the generation is still current. A stale fill is
	// dropped and reported as stored=false, not as an error.
	Set(ctx context.Context, uid string, view *StudentView, generation int64) (stored bool, err error)
	Invalidate(ctx context.Context, uid string) error
}

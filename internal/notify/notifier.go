package notify

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event is a lifecycle notification for analytics collaborators. Events never
// gate a state transition.
type Event struct {
	ID        string
	Type      string
	SessionID string
	At        time.Time
	Fields    map[string]interface{}
}

// Notifier consumes lifecycle events. Implementations must not block the
// caller; Emit wraps delivery in a goroutine regardless.
type Notifier interface {
	Notify(event Event)
}

// Emit builds and dispatches an event fire-and-forget.
func Emit(n Notifier, eventType, sessionID string, fields map[string]interface{}) {
	if n == nil {
		return
	}
	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		SessionID: sessionID,
		At:        time.Now(),
		Fields:    fields,
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Warn().Interface("panic", r).Msg("Notifier panicked, event dropped")
			}
		}()
		n.Notify(event)
	}()
}

// LogNotifier writes events to the structured log.
type LogNotifier struct{}

func (LogNotifier) Notify(event Event) {
	log.Info().
		Str("event_id", event.ID).
		Str("event_type", event.Type).
		Str("session_id", event.SessionID).
		Fields(event.Fields).
		Msg("Lifecycle event")
}

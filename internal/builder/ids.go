package builder

import (
	"slices"

	"github.com/google/uuid"
)

// NewClientID returns a time-ordered random identifier for an event that has
// no server id yet.
func NewClientID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Renumber returns a copy of events with each Order set to its index.
func Renumber(events []Event) []Event {
	out := make([]Event, len(events))
	for i, e := range events {
		e.Order = i
		out[i] = e
	}
	return out
}

// moveEvent removes the event at from and reinserts it at to.
func moveEvent(events []Event, from, to int) []Event {
	moved := events[from]
	out := slices.Delete(slices.Clone(events), from, from+1)
	return slices.Insert(out, to, moved)
}

func indexOfEvent(events []Event, clientID string) int {
	return slices.IndexFunc(events, func(e Event) bool { return e.ClientID == clientID })
}

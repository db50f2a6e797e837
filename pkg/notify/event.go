// Package notify publishes topic lifecycle events.
//
// Subjects are `<prefix>.<kind>`, e.g. `kcp.topic.created` or `kcp.acl.removed`.
// Payload: JSON-encoded Event.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	TopicCreated  Kind = "topic.created"
	TopicDeleted  Kind = "topic.deleted"
	TopicShared   Kind = "topic.shared"
	TopicUnshared Kind = "topic.unshared"
	AclAdded      Kind = "acl.added"
	AclUpdated    Kind = "acl.updated"
	AclRemoved    Kind = "acl.removed"
)

// Event describes a completed mutation.
type Event struct {
	ID            string    `json:"id"`
	Kind          Kind      `json:"kind"`
	OperationID   string    `json:"operationId,omitempty"`
	ProjectID     int32     `json:"projectId"`
	Topic         string    `json:"topic"`
	TargetProject int32     `json:"targetProjectId,omitempty"`
	AclID         int64     `json:"aclId,omitempty"`
	Time          time.Time `json:"time"`
}

// NewEvent stamps a new event with a random id and the current time.
func NewEvent(kind Kind, projectID int32, topic string) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		ProjectID: projectID,
		Topic:     topic,
		Time:      time.Now().UTC(),
	}
}

type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error // returned by Notify after recording, when set
}

func (r *Recorder) Notify(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.Err
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]Kind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

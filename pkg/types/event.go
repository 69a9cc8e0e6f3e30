// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// EventKind identifies a task notification.
type EventKind string

const (
	EventProgress  EventKind = "progress"
	EventLog       EventKind = "log"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventCancelled EventKind = "cancelled"
)

// Terminal reports whether the event ends its task's notification stream.
func (k EventKind) Terminal() bool {
	return k == EventCompleted || k == EventFailed || k == EventCancelled
}

// Event is a notification pushed by the task runner to the presentation layer.
type Event struct {
	TaskID  string    `json:"task_id"`
	Kind    EventKind `json:"kind"`
	Percent int       `json:"percent,omitempty"`
	Entry   LogEntry  `json:"entry,omitempty"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

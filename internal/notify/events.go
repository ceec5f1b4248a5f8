// Package notify tracks which live connections belong to which user and
// pushes change events to them. State is in-process only; nothing survives a
// restart and delivery is best-effort, at-most-once.
package notify

import "time"

// Event is one of the closed set of push payloads. Name is the wire event
// name the transport frames the payload under.
type Event interface {
	Name() string
}

// NoteChanged tells a viewer that a note they can see was created against,
// edited, retagged, or deleted.
type NoteChanged struct {
	NoteID    string    `json:"noteId"`
	OwnerID   string    `json:"ownerId"`
	Heading   string    `json:"heading,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

func (NoteChanged) Name() string { return "noteChanged" }

// AccessDenied tells a user their read access to a note was revoked.
type AccessDenied struct {
	NoteID string `json:"noteId"`
}

func (AccessDenied) Name() string { return "accessDenied" }

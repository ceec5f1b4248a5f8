package notify

import "log"

// Sender is the outbound push primitive the transport provides. A send may
// fail if the connection is already gone; the dispatcher absorbs that.
type Sender interface {
	Send(connectionID string, event Event) error
}

// Dispatcher fans an event out to every live connection of a target user.
// Fire-and-forget: no acknowledgment, no retry, no ordering across
// connections or users.
type Dispatcher struct {
	registry *Registry
	sender   Sender
}

func NewDispatcher(registry *Registry, sender Sender) *Dispatcher {
	return &Dispatcher{registry: registry, sender: sender}
}

// NotifyNoteChanged pushes a note-changed event to each of the target user's
// connections. A user with no live connections is a silent no-op.
func (d *Dispatcher) NotifyNoteChanged(event NoteChanged, targetUserID string) {
	d.push(event, targetUserID)
}

// NotifyAccessDenied pushes a revocation event to each of the target user's
// connections.
func (d *Dispatcher) NotifyAccessDenied(event AccessDenied, targetUserID string) {
	d.push(event, targetUserID)
}

func (d *Dispatcher) push(event Event, targetUserID string) {
	for _, connectionID := range d.registry.ConnectionsFor(targetUserID) {
		if err := d.sender.Send(connectionID, event); err != nil {
			// One dead connection must not block the rest.
			log.Printf("notify: send %s to connection %s: %v", event.Name(), connectionID, err)
		}
	}
}

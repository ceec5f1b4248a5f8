package notify

import (
	"errors"
	"sort"
	"testing"
)

type recordingSender struct {
	sent    []string
	failIDs map[string]bool
}

func (s *recordingSender) Send(connectionID string, event Event) error {
	if s.failIDs[connectionID] {
		return errors.New("connection gone")
	}
	s.sent = append(s.sent, connectionID)
	return nil
}

func TestDispatcherFansOutToAllConnections(t *testing.T) {
	registry := NewRegistry()
	registry.Register("usr-1", "c1")
	registry.Register("usr-1", "c2")
	registry.Register("usr-2", "c3")

	sender := &recordingSender{}
	d := NewDispatcher(registry, sender)

	d.NotifyNoteChanged(NoteChanged{NoteID: "note-1", OwnerID: "usr-1"}, "usr-1")

	sort.Strings(sender.sent)
	if len(sender.sent) != 2 || sender.sent[0] != "c1" || sender.sent[1] != "c2" {
		t.Fatalf("expected sends to c1 and c2 only, got %v", sender.sent)
	}
}

func TestDispatcherSilentForOfflineUser(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(NewRegistry(), sender)

	d.NotifyNoteChanged(NoteChanged{NoteID: "note-1"}, "usr-offline")
	d.NotifyAccessDenied(AccessDenied{NoteID: "note-1"}, "usr-offline")

	if len(sender.sent) != 0 {
		t.Fatalf("expected no sends, got %v", sender.sent)
	}
}

func TestDispatcherFailedSendDoesNotBlockOthers(t *testing.T) {
	registry := NewRegistry()
	registry.Register("usr-1", "c1")
	registry.Register("usr-1", "c2")
	registry.Register("usr-1", "c3")

	sender := &recordingSender{failIDs: map[string]bool{"c2": true}}
	d := NewDispatcher(registry, sender)

	d.NotifyAccessDenied(AccessDenied{NoteID: "note-1"}, "usr-1")

	sort.Strings(sender.sent)
	if len(sender.sent) != 2 || sender.sent[0] != "c1" || sender.sent[1] != "c3" {
		t.Fatalf("expected c1 and c3 despite c2 failing, got %v", sender.sent)
	}
}

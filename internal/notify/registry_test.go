package notify

import (
	"fmt"
	"sort"
	"sync"
	"testing"
)

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	r.Register("usr-1", "c1")
	r.Register("usr-1", "c2")
	r.Register("usr-2", "c3")

	conns := r.ConnectionsFor("usr-1")
	sort.Strings(conns)
	if len(conns) != 2 || conns[0] != "c1" || conns[1] != "c2" {
		t.Fatalf("expected [c1 c2], got %v", conns)
	}

	if user, ok := r.UserFor("c3"); !ok || user != "usr-2" {
		t.Fatalf("expected c3 -> usr-2, got %q %v", user, ok)
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Register("usr-1", "c1")
	r.Register("usr-1", "c1")

	if conns := r.ConnectionsFor("usr-1"); len(conns) != 1 {
		t.Fatalf("expected one connection, got %v", conns)
	}
}

func TestRegisterMovesConnectionBetweenUsers(t *testing.T) {
	r := NewRegistry()
	r.Register("usr-1", "c1")
	r.Register("usr-2", "c1")

	if conns := r.ConnectionsFor("usr-1"); len(conns) != 0 {
		t.Fatalf("expected usr-1 to lose the connection, got %v", conns)
	}
	if conns := r.ConnectionsFor("usr-2"); len(conns) != 1 || conns[0] != "c1" {
		t.Fatalf("expected usr-2 to own c1, got %v", conns)
	}
	if user, ok := r.UserFor("c1"); !ok || user != "usr-2" {
		t.Fatalf("expected c1 -> usr-2, got %q %v", user, ok)
	}
}

func TestUnregisterCleansUpEmptyUsers(t *testing.T) {
	r := NewRegistry()
	r.Register("usr-1", "c1")
	r.Register("usr-1", "c2")

	r.Unregister("c1")
	if conns := r.ConnectionsFor("usr-1"); len(conns) != 1 || conns[0] != "c2" {
		t.Fatalf("expected [c2], got %v", conns)
	}

	r.Unregister("c2")
	if conns := r.ConnectionsFor("usr-1"); len(conns) != 0 {
		t.Fatalf("expected no connections, got %v", conns)
	}
	if _, ok := r.UserFor("c2"); ok {
		t.Fatal("expected c2 to be forgotten")
	}
}

func TestUnregisterUnknownIsNoOp(t *testing.T) {
	r := NewRegistry()
	r.Unregister("never-registered")

	r.Register("usr-1", "c1")
	r.Unregister("c1")
	r.Unregister("c1")
	if conns := r.ConnectionsFor("usr-1"); len(conns) != 0 {
		t.Fatalf("expected no connections, got %v", conns)
	}
}

func TestRegistryConcurrentChurn(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				connID := fmt.Sprintf("c-%d-%d", worker, j)
				userID := fmt.Sprintf("usr-%d", worker%4)
				r.Register(userID, connID)
				r.ConnectionsFor(userID)
				r.Unregister(connID)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		if conns := r.ConnectionsFor(fmt.Sprintf("usr-%d", i)); len(conns) != 0 {
			t.Fatalf("expected empty registry after churn, usr-%d has %v", i, conns)
		}
	}
}

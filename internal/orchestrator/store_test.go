package orchestrator

import (
	"context"
	"testing"
)

func TestInMemorySessionStore_GetPut(t *testing.T) {
	store := NewInMemorySessionStore()
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "s1")
	if err != nil || ok {
		t.Fatalf("expected not found for empty store, ok=%v err=%v", ok, err)
	}

	sess := &Session{ID: "s1", UserID: "u1", Status: StatusActive, Destinations: []Destination{{PlatformID: "yt"}}}
	if err := store.Put(ctx, sess); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := store.Get(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.UserID != "u1" || len(got.Destinations) != 1 {
		t.Errorf("Get: unexpected session %+v", got)
	}
}

func TestInMemorySessionStore_returns_copies(t *testing.T) {
	store := NewInMemorySessionStore()
	ctx := context.Background()
	sess := &Session{ID: "s1", Status: StatusActive, Destinations: []Destination{{PlatformID: "yt", Status: DestinationConnected}}}
	_ = store.Put(ctx, sess)

	sess.Status = StatusStopped
	got, _, _ := store.Get(ctx, "s1")
	if got.Status != StatusActive {
		t.Errorf("caller mutation leaked into store: %s", got.Status)
	}

	got.Destinations[0].Status = DestinationRemoved
	again, _, _ := store.Get(ctx, "s1")
	if again.Destinations[0].Status != DestinationConnected {
		t.Errorf("returned copy shares destinations with store")
	}
}

func TestInMemorySessionStore_Put_replaces(t *testing.T) {
	store := NewInMemorySessionStore()
	ctx := context.Background()
	_ = store.Put(ctx, &Session{ID: "s1", StreamName: "first"})
	_ = store.Put(ctx, &Session{ID: "s1", StreamName: "second"})

	got, _, _ := store.Get(ctx, "s1")
	if got.StreamName != "second" {
		t.Errorf("Put should replace: got %q", got.StreamName)
	}
}

func TestInMemorySessionStore_RemoveList(t *testing.T) {
	store := NewInMemorySessionStore()
	ctx := context.Background()
	for _, id := range []SessionID{"c", "a", "b"} {
		_ = store.Put(ctx, &Session{ID: id})
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 || list[0].ID != "a" || list[2].ID != "c" {
		t.Errorf("List should be ordered by id, got %v", list)
	}

	if err := store.Remove(ctx, "b"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := store.Remove(ctx, "missing"); err != nil {
		t.Fatalf("Remove unknown: %v", err)
	}
	list, _ = store.List(ctx)
	if len(list) != 2 {
		t.Errorf("expected 2 sessions after remove, got %d", len(list))
	}
}

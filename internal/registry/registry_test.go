package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func alwaysRestart(ctx context.Context, newProfileID string) (bool, error) {
	return true, nil
}

func TestRegisterAndGet(t *testing.T) {
	r := New()
	id := r.Register("op-1", "review", "profile-a", "Account A", alwaysRestart, RegisterOptions{
		Metadata: map[string]any{"pr": 42},
	})
	if id != "op-1" {
		t.Fatalf("id = %q, want op-1", id)
	}

	op, ok := r.Get("op-1")
	if !ok {
		t.Fatal("registered operation not found")
	}
	if op.ProfileID != "profile-a" || op.ProfileName != "Account A" || op.Type != "review" {
		t.Errorf("unexpected operation: %+v", op)
	}
	if op.StartedAt.IsZero() {
		t.Error("StartedAt not set")
	}
}

func TestRegisterGeneratesID(t *testing.T) {
	r := New()
	id := r.Register("", "review", "p", "P", alwaysRestart, RegisterOptions{})
	if id == "" {
		t.Fatal("blank id should be replaced with a generated one")
	}
	if _, ok := r.Get(id); !ok {
		t.Error("operation not reachable under generated id")
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	r := New()

	var events []Event
	unsub := r.Subscribe(EventUnregistered, func(e Event) { events = append(events, e) })
	defer unsub()

	r.Register("op-1", "review", "p", "P", alwaysRestart, RegisterOptions{})
	r.Unregister("op-1")
	r.Unregister("op-1")
	r.Unregister("never-existed")

	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
	if len(events) != 1 {
		t.Errorf("unregister events = %d, want 1 (repeat removals emit nothing)", len(events))
	}
}

func TestGetByProfileOrder(t *testing.T) {
	r := New()
	r.Register("op-1", "review", "a", "A", alwaysRestart, RegisterOptions{})
	r.Register("op-2", "poll", "b", "B", alwaysRestart, RegisterOptions{})
	r.Register("op-3", "review", "a", "A", alwaysRestart, RegisterOptions{})

	ops := r.GetByProfile("a")
	if len(ops) != 2 {
		t.Fatalf("got %d operations, want 2", len(ops))
	}
	if ops[0].ID != "op-1" || ops[1].ID != "op-3" {
		t.Errorf("order = [%s, %s], want registration order [op-1, op-3]", ops[0].ID, ops[1].ID)
	}
}

func TestRestartAllOnProfile(t *testing.T) {
	// Three operations on profile X; the second one's restart throws.
	// The sweep must migrate the other two and report count 2.
	r := New()

	var order []string
	record := func(id string) RestartFunc {
		return func(ctx context.Context, newProfileID string) (bool, error) {
			order = append(order, id)
			return true, nil
		}
	}
	failing := func(ctx context.Context, newProfileID string) (bool, error) {
		order = append(order, "op-2")
		return false, errors.New("restart exploded")
	}

	r.Register("op-1", "review", "x", "X", record("op-1"), RegisterOptions{})
	r.Register("op-2", "review", "x", "X", failing, RegisterOptions{})
	r.Register("op-3", "review", "x", "X", record("op-3"), RegisterOptions{})

	count := r.RestartAllOnProfile(context.Background(), "x", "y", "Y")
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	for _, tt := range []struct {
		id   string
		want string
	}{
		{id: "op-1", want: "y"},
		{id: "op-2", want: "x"}, // failed restart stays on the old profile
		{id: "op-3", want: "y"},
	} {
		op, ok := r.Get(tt.id)
		if !ok {
			t.Fatalf("%s missing after sweep", tt.id)
		}
		if op.ProfileID != tt.want {
			t.Errorf("%s bound to %q, want %q", tt.id, op.ProfileID, tt.want)
		}
	}

	if len(order) != 3 || order[0] != "op-1" || order[1] != "op-2" || order[2] != "op-3" {
		t.Errorf("restart order = %v, want registration order", order)
	}
}

func TestRestartAllStopsBeforeRestart(t *testing.T) {
	r := New()

	var calls []string
	r.Register("op-1", "review", "x", "X",
		func(ctx context.Context, newProfileID string) (bool, error) {
			calls = append(calls, "restart")
			return true, nil
		},
		RegisterOptions{Stop: func(ctx context.Context) error {
			calls = append(calls, "stop")
			return nil
		}})

	r.RestartAllOnProfile(context.Background(), "x", "y", "Y")
	if len(calls) != 2 || calls[0] != "stop" || calls[1] != "restart" {
		t.Errorf("calls = %v, want [stop restart]", calls)
	}
}

func TestRestartAllSurvivesPanic(t *testing.T) {
	r := New()
	r.Register("op-1", "review", "x", "X",
		func(ctx context.Context, newProfileID string) (bool, error) {
			panic("operation went sideways")
		}, RegisterOptions{})
	r.Register("op-2", "review", "x", "X", alwaysRestart, RegisterOptions{})

	count := r.RestartAllOnProfile(context.Background(), "x", "y", "Y")
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if op, _ := r.Get("op-1"); op.ProfileID != "x" {
		t.Errorf("panicking operation moved to %q, want x", op.ProfileID)
	}
}

func TestRestartAllWithReRegistration(t *testing.T) {
	// A restart that re-registers under the same id replaces the
	// stored object; the binding update must land on the replacement.
	r := New()

	var replacement RestartFunc = alwaysRestart
	r.Register("op-1", "review", "x", "X",
		func(ctx context.Context, newProfileID string) (bool, error) {
			r.Register("op-1", "review", "x", "X", replacement, RegisterOptions{})
			return true, nil
		}, RegisterOptions{})

	count := r.RestartAllOnProfile(context.Background(), "x", "y", "Y")
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	op, ok := r.Get("op-1")
	if !ok {
		t.Fatal("operation missing after re-registration")
	}
	if op.ProfileID != "y" || op.ProfileName != "Y" {
		t.Errorf("replacement bound to %q/%q, want y/Y", op.ProfileID, op.ProfileName)
	}
}

func TestRestartSweepUsesSnapshot(t *testing.T) {
	// An operation registered mid-sweep on the old profile is not part
	// of the snapshot and must not be migrated.
	r := New()
	r.Register("op-1", "review", "x", "X",
		func(ctx context.Context, newProfileID string) (bool, error) {
			r.Register("late", "review", "x", "X", alwaysRestart, RegisterOptions{})
			return true, nil
		}, RegisterOptions{})

	count := r.RestartAllOnProfile(context.Background(), "x", "y", "Y")
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	if op, _ := r.Get("late"); op.ProfileID != "x" {
		t.Errorf("late registration migrated to %q, want untouched x", op.ProfileID)
	}
}

func TestEvents(t *testing.T) {
	r := New()

	var mu sync.Mutex
	counts := map[EventKind]int{}
	var batch Event
	for _, kind := range []EventKind{EventRegistered, EventUnregistered, EventRestarted, EventBatchRestarted} {
		kind := kind
		unsub := r.Subscribe(kind, func(e Event) {
			mu.Lock()
			defer mu.Unlock()
			counts[kind]++
			if kind == EventBatchRestarted {
				batch = e
			}
		})
		defer unsub()
	}

	r.Register("op-1", "review", "x", "X", alwaysRestart, RegisterOptions{})
	r.Register("op-2", "review", "x", "X", alwaysRestart, RegisterOptions{})
	r.RestartAllOnProfile(context.Background(), "x", "y", "Y")
	r.Unregister("op-1")

	mu.Lock()
	defer mu.Unlock()
	if counts[EventRegistered] != 2 || counts[EventRestarted] != 2 || counts[EventUnregistered] != 1 {
		t.Errorf("counts = %v", counts)
	}
	if counts[EventBatchRestarted] != 1 || batch.Count != 2 {
		t.Errorf("batch event = %+v, want count 2", batch)
	}
}

func TestNoBatchEventWhenNothingMigrated(t *testing.T) {
	r := New()

	batches := 0
	unsub := r.Subscribe(EventBatchRestarted, func(e Event) { batches++ })
	defer unsub()

	r.Register("op-1", "review", "x", "X",
		func(ctx context.Context, newProfileID string) (bool, error) { return false, nil },
		RegisterOptions{})

	if count := r.RestartAllOnProfile(context.Background(), "x", "y", "Y"); count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
	if batches != 0 {
		t.Errorf("batch events = %d, want 0 when nothing migrated", batches)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	r := New()

	events := 0
	unsub := r.Subscribe(EventRegistered, func(e Event) { events++ })

	r.Register("op-1", "review", "x", "X", alwaysRestart, RegisterOptions{})
	unsub()
	r.Register("op-2", "review", "x", "X", alwaysRestart, RegisterOptions{})

	if events != 1 {
		t.Errorf("events after unsubscribe = %d, want 1", events)
	}
}

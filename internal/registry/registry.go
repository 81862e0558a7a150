// Package registry tracks in-flight operations bound to an account and
// migrates them live when the account is swapped.
//
// The registry exclusively owns the operation table. Consumers hold
// only operation ids and re-fetch by id (or subscribe to restart
// events and re-fetch when they fire), because a restart may replace
// the stored object's identity.
package registry

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RestartFunc restarts an operation against a new account. A false
// return (or an error) leaves the operation bound to its old account.
type RestartFunc func(ctx context.Context, newProfileID string) (bool, error)

// StopFunc stops an operation ahead of its restart. Optional.
type StopFunc func(ctx context.Context) error

// Operation is one registered unit of in-flight work.
type Operation struct {
	ID          string
	Type        string
	ProfileID   string
	ProfileName string
	StartedAt   time.Time
	Metadata    map[string]any

	Restart RestartFunc
	Stop    StopFunc

	// seq preserves registration order for restart sweeps.
	seq uint64
}

// RegisterOptions carries the optional fields of Register.
type RegisterOptions struct {
	Stop     StopFunc
	Metadata map[string]any
}

// Registry is the process-wide operation table. Construct one at
// application start and inject it by reference into dependents.
type Registry struct {
	mu      sync.Mutex
	ops     map[string]*Operation
	nextSeq uint64

	events *emitter
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		ops:    make(map[string]*Operation),
		events: newEmitter(),
	}
}

// Register inserts (or overwrites) an operation bound to a profile and
// emits a registration event. A blank id is assigned a generated one;
// the effective id is returned.
func (r *Registry) Register(id, opType, profileID, profileName string, restart RestartFunc, opts RegisterOptions) string {
	if id == "" {
		id = uuid.NewString()
	}

	op := &Operation{
		ID:          id,
		Type:        opType,
		ProfileID:   profileID,
		ProfileName: profileName,
		StartedAt:   time.Now(),
		Metadata:    opts.Metadata,
		Restart:     restart,
		Stop:        opts.Stop,
	}

	r.mu.Lock()
	r.nextSeq++
	op.seq = r.nextSeq
	r.ops[id] = op
	r.mu.Unlock()

	r.events.emit(Event{Kind: EventRegistered, OperationID: id, ProfileID: profileID})
	return id
}

// Unregister removes an operation and emits an event. Unregistering an
// unknown id is a no-op and emits nothing.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	op, ok := r.ops[id]
	if ok {
		delete(r.ops, id)
	}
	r.mu.Unlock()

	if ok {
		r.events.emit(Event{Kind: EventUnregistered, OperationID: id, ProfileID: op.ProfileID})
	}
}

// Get returns a snapshot of the operation with the given id. The
// returned value is a copy; the registry remains the single source of
// truth.
func (r *Registry) Get(id string) (Operation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[id]
	if !ok {
		return Operation{}, false
	}
	return *op, true
}

// GetByProfile returns snapshots of all operations bound to a profile,
// in registration order.
func (r *Registry) GetByProfile(profileID string) []Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(profileID)
}

// Len returns the number of registered operations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}

func (r *Registry) snapshotLocked(profileID string) []Operation {
	var out []Operation
	for _, op := range r.ops {
		if op.ProfileID == profileID {
			out = append(out, *op)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// RestartAllOnProfile migrates every operation bound to oldID onto the
// new profile and returns the number migrated.
//
// The sweep works over a snapshot taken at its start: operations
// registered afterwards are unaffected. Each operation is stopped (if
// it has a StopFunc) and restarted sequentially; a failure leaves that
// operation bound to the old profile and never aborts the batch. A
// RestartFunc may re-register under the same id; the binding update
// goes through a fresh lookup, so either restart strategy works.
func (r *Registry) RestartAllOnProfile(ctx context.Context, oldID, newID, newName string) int {
	r.mu.Lock()
	snapshot := r.snapshotLocked(oldID)
	r.mu.Unlock()

	count := 0
	for _, op := range snapshot {
		if !r.restartOne(ctx, op, newID, newName) {
			continue
		}
		count++
		r.events.emit(Event{
			Kind:        EventRestarted,
			OperationID: op.ID,
			ProfileID:   newID,
			OldProfile:  oldID,
		})
	}

	if count > 0 {
		r.events.emit(Event{
			Kind:       EventBatchRestarted,
			ProfileID:  newID,
			OldProfile: oldID,
			Count:      count,
		})
	}
	return count
}

// restartOne runs one operation's stop/restart pair, isolating its
// failure from the rest of the sweep.
func (r *Registry) restartOne(ctx context.Context, op Operation, newID, newName string) (migrated bool) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.ErrorContext(ctx, "operation restart panicked",
				"operation", op.ID, "profile", op.ProfileID, "panic", rec)
			migrated = false
		}
	}()

	if op.Stop != nil {
		if err := op.Stop(ctx); err != nil {
			slog.WarnContext(ctx, "operation stop failed, attempting restart anyway",
				"operation", op.ID, "error", err)
		}
	}

	if op.Restart == nil {
		slog.WarnContext(ctx, "operation has no restart function", "operation", op.ID)
		return false
	}

	ok, err := op.Restart(ctx, newID)
	if err != nil {
		slog.ErrorContext(ctx, "operation restart failed, staying on old profile",
			"operation", op.ID, "profile", op.ProfileID, "error", err)
		return false
	}
	if !ok {
		slog.WarnContext(ctx, "operation declined restart, staying on old profile",
			"operation", op.ID, "profile", op.ProfileID)
		return false
	}

	// Fresh lookup: the restart may have re-registered and replaced
	// the stored object.
	r.mu.Lock()
	if current, exists := r.ops[op.ID]; exists {
		current.ProfileID = newID
		current.ProfileName = newName
	}
	r.mu.Unlock()
	return true
}

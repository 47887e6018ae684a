// Package mutate implements the read-modify-write discipline every state
// change goes through: load named slices, clone, mutate the clone, diff
// against the pristine values, and persist only what changed.
package mutate

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"rust-and-ruin/server/internal/journal"
	"rust-and-ruin/server/internal/state"
	"rust-and-ruin/server/internal/storage"
	"rust-and-ruin/server/logging"
)

// Engine wraps a Store with the RMW discipline. It is not safe for
// concurrent mutations; the coordinator serializes callers.
type Engine struct {
	store   storage.Store
	log     logging.Publisher
	journal *journal.Journal
	clock   func() time.Time
}

func NewEngine(store storage.Store, log logging.Publisher, j *journal.Journal, clock func() time.Time) *Engine {
	if log == nil {
		log = logging.NopPublisher()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Engine{store: store, log: log, journal: j, clock: clock}
}

// Outcome reports what a completed mutation did.
type Outcome struct {
	Changed []state.ID
	Plan    Plan
	After   *state.Slices
}

// Options tune one mutation run.
type Options struct {
	CorrelationID string
	Mapper        Mapper
}

// Func mutates the draft slices. The pristine values are read-only context;
// mutating them is a bug. Returning a non-nil plan overrides the mapper.
// Returning an error abandons the mutation with nothing persisted.
type Func[T any] func(draft, pristine *state.Slices) (T, *Plan, error)

// Run executes one mutation over the named slices.
func Run[T any](ctx context.Context, eng *Engine, op string, ids []state.ID, opts Options, fn Func[T]) (T, Outcome, error) {
	var zero T
	if eng == nil || eng.store == nil {
		return zero, Outcome{}, fmt.Errorf("mutation engine is not configured")
	}
	if len(ids) == 0 {
		return zero, Outcome{}, fmt.Errorf("mutation %q names no slices", op)
	}
	started := eng.clock()

	pristine, pristineEnc, err := eng.load(ctx, ids)
	if err != nil {
		return zero, Outcome{}, fmt.Errorf("mutation %q: %w", op, err)
	}
	draft, err := pristine.Clone(ids)
	if err != nil {
		return zero, Outcome{}, fmt.Errorf("mutation %q: %w", op, err)
	}

	result, explicit, err := fn(draft, pristine)
	if err != nil {
		return zero, Outcome{}, err
	}

	changed := make([]state.ID, 0, len(ids))
	persist := make(map[string][]byte, len(ids))
	for _, id := range ids {
		after, err := draft.Marshal(id)
		if err != nil {
			return zero, Outcome{}, fmt.Errorf("mutation %q: encode slice %q: %w", op, id, err)
		}
		if bytes.Equal(after, pristineEnc[id]) {
			continue
		}
		changed = append(changed, id)
		persist[string(id)] = after
	}

	if len(persist) > 0 {
		if err := eng.store.Persist(ctx, persist); err != nil {
			return zero, Outcome{}, fmt.Errorf("mutation %q: persist: %w", op, err)
		}
	}

	var plan Plan
	switch {
	case explicit != nil:
		plan = *explicit
	case opts.Mapper != nil:
		plan = opts.Mapper(changed, draft)
	default:
		plan = DefaultMapper(changed, draft)
	}

	duration := eng.clock().Sub(started)
	eng.journal.Append(journal.Record{
		Op:            op,
		Changed:       changed,
		Duration:      duration,
		CorrelationID: opts.CorrelationID,
		At:            started,
	})
	eng.log.Publish(ctx, logging.Event{
		Type:          "mutation.applied",
		Severity:      logging.SeverityInfo,
		Category:      logging.CategoryMutation,
		Actor:         logging.EntityRef{ID: op, Kind: logging.EntityKindWorld},
		CorrelationID: opts.CorrelationID,
		Payload: map[string]any{
			"op":         op,
			"changed":    changed,
			"durationMs": duration.Milliseconds(),
		},
	})

	return result, Outcome{Changed: changed, Plan: plan, After: draft}, nil
}

// Read loads slices without running a mutation. The returned values are
// private copies; callers may hand them straight to snapshot builders.
func (eng *Engine) Read(ctx context.Context, ids ...state.ID) (*state.Slices, error) {
	if eng == nil || eng.store == nil {
		return nil, fmt.Errorf("mutation engine is not configured")
	}
	slices, _, err := eng.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	return slices, nil
}

// load fetches stored slices, substituting defaults for absent keys, and
// returns the canonical encoding used later for change detection.
func (eng *Engine) load(ctx context.Context, ids []state.ID) (*state.Slices, map[state.ID][]byte, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}
	stored, err := eng.store.Load(ctx, keys)
	if err != nil {
		return nil, nil, fmt.Errorf("load slices: %w", err)
	}

	slices := &state.Slices{}
	enc := make(map[state.ID][]byte, len(ids))
	for _, id := range ids {
		if data, ok := stored[string(id)]; ok {
			if err := slices.Unmarshal(id, data); err != nil {
				return nil, nil, fmt.Errorf("decode slice %q: %w", id, err)
			}
		} else if err := slices.SetDefault(id); err != nil {
			return nil, nil, err
		}
		canonical, err := slices.Marshal(id)
		if err != nil {
			return nil, nil, fmt.Errorf("encode slice %q: %w", id, err)
		}
		enc[id] = canonical
	}
	return slices, enc, nil
}

// Package journal keeps a rolling in-memory log of completed mutations for
// the diagnostics endpoint.
package journal

import (
	"sync"
	"time"

	"rust-and-ruin/server/internal/state"
)

// Record captures one completed mutation.
type Record struct {
	Op            string        `json:"op"`
	Changed       []state.ID    `json:"changed"`
	Duration      time.Duration `json:"duration"`
	CorrelationID string        `json:"correlationId,omitempty"`
	At            time.Time     `json:"at"`
}

// Journal is a bounded ring of mutation records. Appending past capacity
// evicts the oldest record and bumps the drop counter.
type Journal struct {
	mu      sync.Mutex
	records []Record
	max     int
	dropped uint64
}

const defaultCapacity = 256

func New(capacity int) *Journal {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Journal{records: make([]Record, 0, capacity), max: capacity}
}

// Append records a mutation, evicting the oldest entry when full.
func (j *Journal) Append(record Record) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.records) >= j.max {
		copy(j.records, j.records[1:])
		j.records = j.records[:len(j.records)-1]
		j.dropped++
	}
	j.records = append(j.records, cloneRecord(record))
}

// Snapshot returns a copy of the retained records, oldest first.
func (j *Journal) Snapshot() []Record {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Record, len(j.records))
	for i, record := range j.records {
		out[i] = cloneRecord(record)
	}
	return out
}

// Dropped reports how many records were evicted to stay within capacity.
func (j *Journal) Dropped() uint64 {
	if j == nil {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

func cloneRecord(record Record) Record {
	cloned := record
	if len(record.Changed) > 0 {
		cloned.Changed = append([]state.ID(nil), record.Changed...)
	}
	return cloned
}

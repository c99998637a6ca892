package ranking

import (
	"maps"
	"time"
)

const DefaultHistorySize = 10

// Snapshot is the rankings of one evaluation.
type Snapshot struct {
	Timestamp time.Time
	Rankings  map[string]Record
}

// History keeps the most recent snapshots, oldest first. It is not safe for
// concurrent use.
type History struct {
	capacity  int
	snapshots []Snapshot
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{capacity: capacity, snapshots: make([]Snapshot, 0, capacity)}
}

// Add stores a copy of rankings and evicts the oldest snapshot past capacity.
func (h *History) Add(ts time.Time, rankings map[string]Record) {
	h.snapshots = append(h.snapshots, Snapshot{Timestamp: ts, Rankings: maps.Clone(rankings)})
	if over := len(h.snapshots) - h.capacity; over > 0 {
		h.snapshots = append(h.snapshots[:0:0], h.snapshots[over:]...)
	}
}

func (h *History) Len() int { return len(h.snapshots) }

// At returns the i-th snapshot, 0 being the oldest.
func (h *History) At(i int) Snapshot { return h.snapshots[i] }

func (h *History) Latest() (Snapshot, bool) {
	if len(h.snapshots) == 0 {
		return Snapshot{}, false
	}
	return h.snapshots[len(h.snapshots)-1], true
}

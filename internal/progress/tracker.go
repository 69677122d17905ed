package progress

import (
	"sync"
	"time"
)

// Snapshot is the point-in-time progress of one job as seen by polling
// clients. A nil Percent signals an unrecoverable error; 100 signals
// success.
type Snapshot struct {
	Message   string    `json:"message"`
	Percent   *int      `json:"percent"`
	Timestamp time.Time `json:"timestamp"`
}

// Tracker is a process-wide keyed store of job progress. Writes are
// last-writer-wins; reads return a copy. It is safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	entries map[string]Snapshot
}

func NewTracker() *Tracker {
	return &Tracker{
		entries: make(map[string]Snapshot),
	}
}

// Set records the latest progress for a job. percent may be nil to mark a
// terminal error.
func (t *Tracker) Set(id, message string, percent *int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[id] = Snapshot{
		Message:   message,
		Percent:   percent,
		Timestamp: time.Now(),
	}
}

// SetPercent is Set with a concrete percent value.
func (t *Tracker) SetPercent(id, message string, percent int) {
	t.Set(id, message, Pct(percent))
}

// Get returns the current snapshot for a job, or a default "Starting..."
// snapshot when the job is unknown.
func (t *Tracker) Get(id string) Snapshot {
	t.mu.RLock()
	snapshot, ok := t.entries[id]
	t.mu.RUnlock()
	if !ok {
		return Snapshot{Message: "Starting...", Percent: Pct(0)}
	}
	if snapshot.Percent != nil {
		snapshot.Percent = Pct(*snapshot.Percent)
	}
	return snapshot
}

// Clear removes a job's entry. Clearing an unknown id is a no-op.
func (t *Tracker) Clear(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// Pct returns a pointer to a percent value.
func Pct(v int) *int {
	return &v
}

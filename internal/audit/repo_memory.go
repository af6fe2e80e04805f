package audit

import (
	"sync"
	"time"

	"opscycle/internal/model"
)

// MemoryRecorder stores entries in memory (dev/test use).
type MemoryRecorder struct {
	mu      sync.RWMutex
	entries []Entry
	nextID  int
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{nextID: 1}
}

func (r *MemoryRecorder) Record(entityType, entityID string, action Action, actor model.UserRef, diffs []FieldDiff, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, Entry{
		ID:         r.nextID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Actor:      actor,
		Diffs:      diffs,
		Note:       note,
		At:         time.Now(),
	})
	r.nextID++
	return nil
}

// Entries returns recorded entries, newest last, optionally filtered by
// entity id.
func (r *MemoryRecorder) Entries(entityID string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if entityID != "" && e.EntityID != entityID {
			continue
		}
		out = append(out, e)
	}
	return out
}

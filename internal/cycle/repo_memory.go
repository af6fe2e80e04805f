package cycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"opscycle/internal/model"
)

type periodKey struct {
	client   model.ClientRef
	template model.TemplateID
	start    int64
	end      int64
}

func keyFor(c *model.Cycle) periodKey {
	return periodKey{
		client:   c.ClientRef,
		template: c.TemplateID,
		start:    c.PeriodStart.UTC().Unix(),
		end:      c.PeriodEnd.UTC().Unix(),
	}
}

// MemoryRepo keeps cycles and tasks in memory. The period index stands in
// for the database uniqueness constraint; everything mutates under one
// lock so the cycle+tasks batch is atomic.
type MemoryRepo struct {
	mu          sync.RWMutex
	cycles      map[model.CycleID]model.Cycle
	tasks       map[model.TaskID]model.Task
	byPeriod    map[periodKey]model.CycleID
	byTimeEntry map[model.TimeEntryRef]model.TaskID
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		cycles:      map[model.CycleID]model.Cycle{},
		tasks:       map[model.TaskID]model.Task{},
		byPeriod:    map[periodKey]model.CycleID{},
		byTimeEntry: map[model.TimeEntryRef]model.TaskID{},
	}
}

func (r *MemoryRepo) CreateCycle(_ context.Context, c model.Cycle, tasks []model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := keyFor(&c)
	if existing, taken := r.byPeriod[key]; taken {
		return fmt.Errorf("%w: cycle %s", ErrCycleExists, existing)
	}

	// Validate the whole batch before inserting anything.
	for _, t := range tasks {
		if t.CycleID != c.ID {
			return fmt.Errorf("task %s does not belong to cycle %s", t.ID, c.ID)
		}
		if _, dup := r.tasks[t.ID]; dup {
			return fmt.Errorf("task id collision: %s", t.ID)
		}
	}

	r.cycles[c.ID] = c
	r.byPeriod[key] = c.ID
	for _, t := range tasks {
		r.tasks[t.ID] = t
	}
	return nil
}

func (r *MemoryRepo) GetCycle(_ context.Context, id model.CycleID) (model.Cycle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cycles[id]
	if !ok {
		return model.Cycle{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) ListCycles(_ context.Context, f ListFilter) ([]model.Cycle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Cycle, 0, len(r.cycles))
	for _, c := range r.cycles {
		if f.Client != "" && c.ClientRef != f.Client {
			continue
		}
		if f.Template != "" && c.TemplateID != f.Template {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PeriodStart.Equal(out[j].PeriodStart) {
			return out[i].PeriodStart.Before(out[j].PeriodStart)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepo) SetCycleStatus(_ context.Context, id model.CycleID, status model.CycleStatus) (model.Cycle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cycles[id]
	if !ok {
		return model.Cycle{}, ErrNotFound
	}
	c.Status = status
	r.cycles[id] = c
	return c, nil
}

func (r *MemoryRepo) GetTask(_ context.Context, id model.TaskID) (model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return model.Task{}, ErrTaskNotFound
	}
	return t, nil
}

func (r *MemoryRepo) TasksForCycle(_ context.Context, id model.CycleID) ([]model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.cycles[id]; !ok {
		return nil, ErrNotFound
	}
	out := make([]model.Task, 0, 8)
	for _, t := range r.tasks {
		if t.CycleID == id {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepo) UpdateTask(_ context.Context, t model.Task) (model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.tasks[t.ID]
	if !ok {
		return model.Task{}, ErrTaskNotFound
	}
	// Identity fields never change after materialization.
	t.CycleID = cur.CycleID
	t.TaskDefID = cur.TaskDefID
	t.ClientRef = cur.ClientRef
	t.CreatedAt = cur.CreatedAt
	t.LinkedTimeEntry = cur.LinkedTimeEntry

	r.tasks[t.ID] = t
	return t, nil
}

func (r *MemoryRepo) LinkTimeEntry(_ context.Context, id model.TaskID, ref model.TimeEntryRef) (model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return model.Task{}, ErrTaskNotFound
	}
	if ref == "" {
		if t.LinkedTimeEntry != "" {
			delete(r.byTimeEntry, t.LinkedTimeEntry)
		}
		t.LinkedTimeEntry = ""
	} else {
		if holder, taken := r.byTimeEntry[ref]; taken && holder != id {
			return model.Task{}, fmt.Errorf("%w: task %s", ErrTimeEntryTaken, holder)
		}
		if t.LinkedTimeEntry != "" && t.LinkedTimeEntry != ref {
			delete(r.byTimeEntry, t.LinkedTimeEntry)
		}
		t.LinkedTimeEntry = ref
		r.byTimeEntry[ref] = id
	}
	t.UpdatedAt = time.Now()
	r.tasks[id] = t
	return t, nil
}

func (r *MemoryRepo) AnyTaskForDef(_ context.Context, defID model.TaskDefID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tasks {
		if t.TaskDefID == defID {
			return true, nil
		}
	}
	return false, nil
}

package assignment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"opscycle/internal/model"
)

type pairKey struct {
	client   model.ClientRef
	template model.TemplateID
}

type MemoryRepo struct {
	mu          sync.RWMutex
	assignments map[model.AssignmentID]model.Assignment
	byPair      map[pairKey]model.AssignmentID
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		assignments: map[model.AssignmentID]model.Assignment{},
		byPair:      map[pairKey]model.AssignmentID{},
	}
}

func validateWindow(a *model.Assignment) error {
	if a.StartsOn != nil && a.EndsOn != nil && a.EndsOn.Before(*a.StartsOn) {
		return errors.New("endsOn must not precede startsOn")
	}
	return nil
}

func (r *MemoryRepo) Create(_ context.Context, a model.Assignment) (model.Assignment, error) {
	if a.ClientRef == "" {
		return model.Assignment{}, errors.New("clientRef is required")
	}
	if a.TemplateID == "" {
		return model.Assignment{}, errors.New("templateId is required")
	}
	if err := validateWindow(&a); err != nil {
		return model.Assignment{}, err
	}
	if a.Status == "" {
		a.Status = model.AssignmentActive
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey{a.ClientRef, a.TemplateID}
	if _, taken := r.byPair[key]; taken {
		return model.Assignment{}, fmt.Errorf("%w: client=%s template=%s", ErrDuplicate, a.ClientRef, a.TemplateID)
	}

	now := time.Now()
	a.ID = model.AssignmentID(uuid.NewString())
	a.CreatedAt = now
	a.UpdatedAt = now

	r.assignments[a.ID] = a
	r.byPair[key] = a.ID
	return a, nil
}

func (r *MemoryRepo) Get(_ context.Context, id model.AssignmentID) (model.Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assignments[id]
	if !ok {
		return model.Assignment{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryRepo) Update(_ context.Context, a model.Assignment) (model.Assignment, error) {
	if err := validateWindow(&a); err != nil {
		return model.Assignment{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.assignments[a.ID]
	if !ok {
		return model.Assignment{}, ErrNotFound
	}

	// The client+template pair is fixed at creation.
	a.ClientRef = cur.ClientRef
	a.TemplateID = cur.TemplateID
	a.CreatedAt = cur.CreatedAt
	a.UpdatedAt = time.Now()

	r.assignments[a.ID] = a
	return a, nil
}

func (r *MemoryRepo) List(_ context.Context) ([]model.Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Assignment, 0, len(r.assignments))
	for _, a := range r.assignments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

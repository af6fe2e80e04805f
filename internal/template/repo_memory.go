package template

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"opscycle/internal/model"
)

// MemoryRepo keeps templates in memory. Defs live inside their template
// record; every read hands back a deep copy so callers can't mutate the
// stored graph behind the lock.
type MemoryRepo struct {
	mu        sync.RWMutex
	templates map[model.TemplateID]*model.Template
	byName    map[string]model.TemplateID
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		templates: map[model.TemplateID]*model.Template{},
		byName:    map[string]model.TemplateID{},
	}
}

func cloneTemplate(t *model.Template) model.Template {
	out := *t
	out.Defs = make([]model.TaskDef, len(t.Defs))
	for i, d := range t.Defs {
		out.Defs[i] = cloneDef(d)
	}
	return out
}

func cloneDef(d model.TaskDef) model.TaskDef {
	if d.DependencyIDs != nil {
		d.DependencyIDs = append([]model.TaskDefID(nil), d.DependencyIDs...)
	}
	if d.DueOffset != nil {
		o := *d.DueOffset
		d.DueOffset = &o
	}
	return d
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func sortDefs(defs []model.TaskDef) {
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].Position != defs[j].Position {
			return defs[i].Position < defs[j].Position
		}
		return defs[i].ID < defs[j].ID
	})
}

func (r *MemoryRepo) CreateTemplate(_ context.Context, t model.Template) (model.Template, error) {
	if err := ValidateTemplate(&t); err != nil {
		return model.Template{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byName[nameKey(t.Name)]; taken {
		return model.Template{}, fmt.Errorf("%w: %s", ErrNameTaken, t.Name)
	}

	now := time.Now()
	t.ID = model.TemplateID(uuid.NewString())
	t.Defs = nil
	t.CreatedAt = now
	t.UpdatedAt = now

	r.templates[t.ID] = &t
	r.byName[nameKey(t.Name)] = t.ID
	return cloneTemplate(&t), nil
}

func (r *MemoryRepo) GetTemplate(_ context.Context, id model.TemplateID) (model.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.templates[id]
	if !ok {
		return model.Template{}, ErrNotFound
	}
	return cloneTemplate(t), nil
}

func (r *MemoryRepo) ListTemplates(_ context.Context, activeOnly bool) ([]model.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Template, 0, len(r.templates))
	for _, t := range r.templates {
		if activeOnly && !t.Active {
			continue
		}
		out = append(out, cloneTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepo) UpdateTemplate(_ context.Context, t model.Template) (model.Template, error) {
	if err := ValidateTemplate(&t); err != nil {
		return model.Template{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.templates[t.ID]
	if !ok {
		return model.Template{}, ErrNotFound
	}

	if nameKey(t.Name) != nameKey(cur.Name) {
		if _, taken := r.byName[nameKey(t.Name)]; taken {
			return model.Template{}, fmt.Errorf("%w: %s", ErrNameTaken, t.Name)
		}
		delete(r.byName, nameKey(cur.Name))
		r.byName[nameKey(t.Name)] = t.ID
	}

	t.Defs = cur.Defs
	t.CreatedAt = cur.CreatedAt
	t.UpdatedAt = time.Now()
	r.templates[t.ID] = &t
	return cloneTemplate(&t), nil
}

func (r *MemoryRepo) CreateDef(_ context.Context, def model.TaskDef) (model.TaskDef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.templates[def.TemplateID]
	if !ok {
		return model.TaskDef{}, ErrNotFound
	}

	def.ID = model.TaskDefID(uuid.NewString())
	if err := ValidateDef(&def, t.Defs); err != nil {
		return model.TaskDef{}, err
	}

	if def.Position == 0 {
		def.Position = nextPosition(t.Defs)
	} else {
		for _, d := range t.Defs {
			if d.Position == def.Position {
				return model.TaskDef{}, fmt.Errorf("%w: %d", ErrPositionTaken, def.Position)
			}
		}
	}

	now := time.Now()
	def.CreatedAt = now
	def.UpdatedAt = now

	t.Defs = append(t.Defs, cloneDef(def))
	sortDefs(t.Defs)
	t.UpdatedAt = now
	return def, nil
}

func nextPosition(defs []model.TaskDef) int {
	max := 0
	for _, d := range defs {
		if d.Position > max {
			max = d.Position
		}
	}
	return max + 1
}

func (r *MemoryRepo) UpdateDef(_ context.Context, def model.TaskDef) (model.TaskDef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.templates[def.TemplateID]
	if !ok {
		return model.TaskDef{}, ErrNotFound
	}

	idx := -1
	for i, d := range t.Defs {
		if d.ID == def.ID {
			idx = i
			continue
		}
		if d.Position == def.Position {
			return model.TaskDef{}, fmt.Errorf("%w: %d", ErrPositionTaken, def.Position)
		}
	}
	if idx < 0 {
		return model.TaskDef{}, ErrDefNotFound
	}

	if err := ValidateDef(&def, t.Defs); err != nil {
		return model.TaskDef{}, err
	}

	def.CreatedAt = t.Defs[idx].CreatedAt
	def.UpdatedAt = time.Now()
	t.Defs[idx] = cloneDef(def)
	sortDefs(t.Defs)
	t.UpdatedAt = def.UpdatedAt
	return def, nil
}

func (r *MemoryRepo) DeleteDef(_ context.Context, templateID model.TemplateID, defID model.TaskDefID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.templates[templateID]
	if !ok {
		return ErrNotFound
	}

	idx := -1
	for i, d := range t.Defs {
		if d.ID == defID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrDefNotFound
	}

	// A def that other defs depend on can't be removed out from under them.
	for _, d := range t.Defs {
		if d.ID != defID && d.DependsOn(defID) {
			return fmt.Errorf("%w: %s depends on it", ErrInvalidReference, d.ID)
		}
	}

	t.Defs = append(t.Defs[:idx], t.Defs[idx+1:]...)
	t.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepo) ReorderDefs(_ context.Context, templateID model.TemplateID, order []DefPosition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.templates[templateID]
	if !ok {
		return ErrNotFound
	}

	byID := make(map[model.TaskDefID]int, len(t.Defs))
	for i, d := range t.Defs {
		byID[d.ID] = i
	}

	// Validate the whole batch before touching anything so a bad entry
	// can't leave the template half reordered.
	seen := make(map[int]model.TaskDefID, len(order))
	for _, op := range order {
		if _, ok := byID[op.ID]; !ok {
			return fmt.Errorf("%w: %s", ErrDefNotFound, op.ID)
		}
		if prev, dup := seen[op.Position]; dup {
			return fmt.Errorf("%w: %d (both %s and %s)", ErrPositionTaken, op.Position, prev, op.ID)
		}
		seen[op.Position] = op.ID
	}
	moved := make(map[model.TaskDefID]bool, len(order))
	for _, op := range order {
		moved[op.ID] = true
	}
	for _, d := range t.Defs {
		if moved[d.ID] {
			continue
		}
		if id, clash := seen[d.Position]; clash {
			return fmt.Errorf("%w: %d (held by %s, wanted for %s)", ErrPositionTaken, d.Position, d.ID, id)
		}
	}

	now := time.Now()
	for _, op := range order {
		i := byID[op.ID]
		t.Defs[i].Position = op.Position
		t.Defs[i].UpdatedAt = now
	}
	sortDefs(t.Defs)
	t.UpdatedAt = now
	return nil
}

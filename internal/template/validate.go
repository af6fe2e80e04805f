package template

import (
	"errors"
	"fmt"

	"opscycle/internal/model"
)

var (
	ErrSelfReference    = errors.New("task def cannot depend on itself")
	ErrInvalidReference = errors.New("dependency references a def outside this template")
	ErrPartialOffset    = errors.New("due offset requires value, unit and anchor together")
	ErrDependencyCycle  = errors.New("dependency graph contains a cycle")
	ErrMissingInterval  = errors.New("custom recurrence requires a positive interval")
)

// ValidationError ties a validation failure to the field that caused it.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// ValidateTemplate checks a template's own fields (not its defs).
func ValidateTemplate(t *model.Template) error {
	if t.Name == "" {
		return invalid("name", errors.New("name is required"))
	}
	switch t.RecurrenceType {
	case model.RecurWeekly, model.RecurBiweekly, model.RecurMonthly, model.RecurQuarterly:
		// fixed period lengths, no interval needed
	case model.RecurCustom:
		if t.RecurrenceInterval <= 0 {
			return invalid("recurrenceInterval", ErrMissingInterval)
		}
	default:
		return invalid("recurrenceType", fmt.Errorf("unknown recurrence type %q", t.RecurrenceType))
	}
	if t.RecurrenceAnchor.IsZero() {
		return invalid("recurrenceAnchor", errors.New("anchor date is required"))
	}
	return nil
}

// ValidateDef checks a def against its template: the offset triple is
// complete or absent, dependencies reference sibling defs only, and the
// def does not depend on itself. siblings is the template's current def
// set; when def is an update, the stored version is replaced by def
// before the graph check so a dependency edit cannot smuggle in a cycle.
func ValidateDef(def *model.TaskDef, siblings []model.TaskDef) error {
	if def.Title == "" {
		return invalid("title", errors.New("title is required"))
	}
	if def.DueOffset != nil {
		o := def.DueOffset
		if o.Value <= 0 {
			return invalid("dueOffset.value", ErrPartialOffset)
		}
		if o.Unit != model.UnitHours && o.Unit != model.UnitDays {
			return invalid("dueOffset.unit", ErrPartialOffset)
		}
		if o.Anchor != model.AnchorCycleStart && o.Anchor != model.AnchorCycleEnd {
			return invalid("dueOffset.anchor", ErrPartialOffset)
		}
	}

	known := make(map[model.TaskDefID]bool, len(siblings)+1)
	for _, s := range siblings {
		known[s.ID] = true
	}
	known[def.ID] = true

	for _, dep := range def.DependencyIDs {
		if dep == def.ID {
			return invalid("dependencyIds", ErrSelfReference)
		}
		if !known[dep] {
			return invalid("dependencyIds", fmt.Errorf("%w: %s", ErrInvalidReference, dep))
		}
	}

	if hasCycle(def, siblings) {
		return invalid("dependencyIds", ErrDependencyCycle)
	}
	return nil
}

// hasCycle walks the dependency graph with def substituted for its stored
// version and reports whether any def is reachable from itself.
func hasCycle(def *model.TaskDef, siblings []model.TaskDef) bool {
	deps := make(map[model.TaskDefID][]model.TaskDefID, len(siblings)+1)
	for _, s := range siblings {
		if s.ID == def.ID {
			continue
		}
		deps[s.ID] = s.DependencyIDs
	}
	deps[def.ID] = def.DependencyIDs

	const (
		white = 0 // unvisited
		grey  = 1 // on the current path
		black = 2 // fully explored
	)
	color := make(map[model.TaskDefID]int, len(deps))

	var visit func(id model.TaskDefID) bool
	visit = func(id model.TaskDefID) bool {
		switch color[id] {
		case grey:
			return true
		case black:
			return false
		}
		color[id] = grey
		for _, next := range deps[id] {
			if visit(next) {
				return true
			}
		}
		color[id] = black
		return false
	}

	for id := range deps {
		if visit(id) {
			return true
		}
	}
	return false
}

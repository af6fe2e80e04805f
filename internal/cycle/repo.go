package cycle

import (
	"context"

	"opscycle/internal/model"
)

type ListFilter struct {
	Client   model.ClientRef
	Template model.TemplateID
	Status   model.CycleStatus
}

// Repo persists cycles and their tasks. CreateCycle is the only write
// that touches both: the cycle row and every task land together or not
// at all, and a second create for the same (client, template, period)
// tuple fails with ErrCycleExists instead of inserting a duplicate.
type Repo interface {
	CreateCycle(ctx context.Context, c model.Cycle, tasks []model.Task) error
	GetCycle(ctx context.Context, id model.CycleID) (model.Cycle, error)
	ListCycles(ctx context.Context, f ListFilter) ([]model.Cycle, error)
	SetCycleStatus(ctx context.Context, id model.CycleID, status model.CycleStatus) (model.Cycle, error)

	GetTask(ctx context.Context, id model.TaskID) (model.Task, error)
	// TasksForCycle returns the cycle's tasks ordered by (position, id).
	TasksForCycle(ctx context.Context, id model.CycleID) ([]model.Task, error)
	UpdateTask(ctx context.Context, t model.Task) (model.Task, error)
	// LinkTimeEntry enforces the 1:1 task/time-entry cardinality.
	LinkTimeEntry(ctx context.Context, id model.TaskID, ref model.TimeEntryRef) (model.Task, error)
	// AnyTaskForDef reports whether any task instance references the def;
	// used to block hard deletion of instantiated defs.
	AnyTaskForDef(ctx context.Context, defID model.TaskDefID) (bool, error)
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"opscycle/internal/assignment"
	"opscycle/internal/audit"
	"opscycle/internal/cycle"
	"opscycle/internal/model"
	"opscycle/internal/template"
)

var ErrDefHasTasks = errors.New("task def has instantiated tasks; deactivate it instead")

// Engine is the synchronous entry point for generation and task
// mutations. It holds no state of its own; every operation is scoped to
// one entity or one atomic batch against the repos.
type Engine struct {
	Templates   template.Repo
	Assignments assignment.Repo
	Cycles      cycle.Repo
	Audit       audit.Recorder
	Clock       Clock
	Logger      *log.Logger
}

// record hands an entry to the audit collaborator. Audit delivery is
// fire-and-forget: a recorder failure is logged and never rolls back the
// mutation it describes.
func (e *Engine) record(entityType, entityID string, action audit.Action, actor model.UserRef, diffs []audit.FieldDiff, note string) {
	if e.Audit == nil {
		return
	}
	if err := e.Audit.Record(entityType, entityID, action, actor, diffs, note); err != nil && e.Logger != nil {
		e.Logger.Printf("audit record failed for %s %s: %v", entityType, entityID, err)
	}
}

// GenerateCycle materializes one cycle for the resolved template and
// period. When an assignment is supplied its client and template take
// precedence; otherwise an explicit template id is required. A period
// that is already materialized fails with cycle.ErrCycleExists; the
// caller decides whether that means "already done".
func (e *Engine) GenerateCycle(ctx context.Context, in cycle.GenerateInput) (model.Cycle, []model.Task, error) {
	if in.AssignmentID != "" {
		a, err := e.Assignments.Get(ctx, in.AssignmentID)
		if err != nil {
			return model.Cycle{}, nil, err
		}
		in.Client = a.ClientRef
		in.TemplateID = a.TemplateID
	}
	if in.TemplateID == "" {
		return model.Cycle{}, nil, cycle.ErrMissingTemplate
	}

	tpl, err := e.Templates.GetTemplate(ctx, in.TemplateID)
	if err != nil {
		return model.Cycle{}, nil, err
	}

	c, tasks, err := cycle.Materialize(&tpl, in, e.Clock.Now())
	if err != nil {
		return model.Cycle{}, nil, err
	}
	if err := e.Cycles.CreateCycle(ctx, c, tasks); err != nil {
		return model.Cycle{}, nil, err
	}

	e.record("cycle", string(c.ID), audit.ActionCycleGenerated, in.Actor, nil,
		fmt.Sprintf("generated %d tasks for %s", len(tasks), c.Label))
	return c, tasks, nil
}

// taskContext loads everything a guarded transition needs: the task, its
// cycle siblings, and the def that carries its dependency edges.
func (e *Engine) taskContext(ctx context.Context, id model.TaskID) (model.Task, *model.TaskDef, []model.Task, error) {
	t, err := e.Cycles.GetTask(ctx, id)
	if err != nil {
		return model.Task{}, nil, nil, err
	}
	c, err := e.Cycles.GetCycle(ctx, t.CycleID)
	if err != nil {
		return model.Task{}, nil, nil, err
	}
	siblings, err := e.Cycles.TasksForCycle(ctx, t.CycleID)
	if err != nil {
		return model.Task{}, nil, nil, err
	}

	var def *model.TaskDef
	tpl, err := e.Templates.GetTemplate(ctx, c.TemplateID)
	if err == nil {
		def = tpl.Def(t.TaskDefID)
	} else if !errors.Is(err, template.ErrNotFound) {
		return model.Task{}, nil, nil, err
	}
	return t, def, siblings, nil
}

// UpdateTaskStatus runs one guarded transition. The prerequisite gate is
// re-evaluated against the latest committed sibling state on every call.
func (e *Engine) UpdateTaskStatus(ctx context.Context, id model.TaskID, to model.TaskStatus, actor model.UserRef) (model.Task, error) {
	return e.transition(ctx, id, to, "", actor, audit.ActionStatusChanged)
}

// CompleteTask marks a task done, optionally supplying the evidence note
// with the completing call.
func (e *Engine) CompleteTask(ctx context.Context, id model.TaskID, evidenceNote string, actor model.UserRef) (model.Task, error) {
	return e.transition(ctx, id, model.TaskDone, evidenceNote, actor, audit.ActionTaskCompleted)
}

func (e *Engine) transition(ctx context.Context, id model.TaskID, to model.TaskStatus, evidenceNote string, actor model.UserRef, action audit.Action) (model.Task, error) {
	t, def, siblings, err := e.taskContext(ctx, id)
	if err != nil {
		return model.Task{}, err
	}

	before := t
	if err := cycle.Transition(&t, to, def, siblings, actor, evidenceNote, e.Clock.Now()); err != nil {
		return model.Task{}, err
	}

	updated, err := e.Cycles.UpdateTask(ctx, t)
	if err != nil {
		return model.Task{}, err
	}
	e.record("task", string(id), action, actor, taskDiffs(before, updated), "")
	return updated, nil
}

// ReopenTask moves a done task back to not_started, clearing completedAt
// and completedBy together.
func (e *Engine) ReopenTask(ctx context.Context, id model.TaskID, actor model.UserRef) (model.Task, error) {
	t, err := e.Cycles.GetTask(ctx, id)
	if err != nil {
		return model.Task{}, err
	}

	before := t
	if err := cycle.Reopen(&t, e.Clock.Now()); err != nil {
		return model.Task{}, err
	}

	updated, err := e.Cycles.UpdateTask(ctx, t)
	if err != nil {
		return model.Task{}, err
	}
	e.record("task", string(id), audit.ActionTaskReopened, actor, taskDiffs(before, updated), "")
	return updated, nil
}

// UnmetPrerequisiteTasks is the read half of the prerequisite gate: the
// sibling tasks blocking this one, ordered by (position, id). Empty means
// the task may move forward.
func (e *Engine) UnmetPrerequisiteTasks(ctx context.Context, id model.TaskID) ([]model.Task, error) {
	_, def, siblings, err := e.taskContext(ctx, id)
	if err != nil {
		return nil, err
	}
	return cycle.UnmetPrerequisiteTasks(def, siblings), nil
}

// LinkTimeEntry attaches an externally-owned time entry to a task. A
// time entry can back at most one task; an empty ref clears the link.
func (e *Engine) LinkTimeEntry(ctx context.Context, id model.TaskID, ref model.TimeEntryRef, actor model.UserRef) (model.Task, error) {
	before, err := e.Cycles.GetTask(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	updated, err := e.Cycles.LinkTimeEntry(ctx, id, ref)
	if err != nil {
		return model.Task{}, err
	}
	e.record("task", string(id), audit.ActionTimeEntryLink, actor, []audit.FieldDiff{
		{Field: "linkedTimeEntry", Before: string(before.LinkedTimeEntry), After: string(updated.LinkedTimeEntry)},
	}, "")
	return updated, nil
}

// SetCycleStatus is the external workflow action that completes or
// cancels a cycle. No guards: cycle status is not part of the task state
// machine.
func (e *Engine) SetCycleStatus(ctx context.Context, id model.CycleID, status model.CycleStatus, actor model.UserRef) (model.Cycle, error) {
	before, err := e.Cycles.GetCycle(ctx, id)
	if err != nil {
		return model.Cycle{}, err
	}
	updated, err := e.Cycles.SetCycleStatus(ctx, id, status)
	if err != nil {
		return model.Cycle{}, err
	}
	e.record("cycle", string(id), audit.ActionCycleStatus, actor, []audit.FieldDiff{
		{Field: "status", Before: string(before.Status), After: string(updated.Status)},
	}, "")
	return updated, nil
}

// ReorderDefs applies a bulk position update to a template's defs as one
// atomic step.
func (e *Engine) ReorderDefs(ctx context.Context, templateID model.TemplateID, order []template.DefPosition, actor model.UserRef) error {
	if err := e.Templates.ReorderDefs(ctx, templateID, order); err != nil {
		return err
	}
	e.record("template", string(templateID), audit.ActionDefsReordered, actor, nil,
		fmt.Sprintf("%d defs repositioned", len(order)))
	return nil
}

// DeleteTaskDef hard-deletes a def only while nothing references it.
// Once a task instance exists the def is history and can only be
// deactivated.
func (e *Engine) DeleteTaskDef(ctx context.Context, templateID model.TemplateID, defID model.TaskDefID) error {
	used, err := e.Cycles.AnyTaskForDef(ctx, defID)
	if err != nil {
		return err
	}
	if used {
		return fmt.Errorf("%w: %s", ErrDefHasTasks, defID)
	}
	return e.Templates.DeleteDef(ctx, templateID, defID)
}

func taskDiffs(before, after model.Task) []audit.FieldDiff {
	var diffs []audit.FieldDiff
	add := func(field string, b, a any) {
		if fmt.Sprint(b) != fmt.Sprint(a) {
			diffs = append(diffs, audit.FieldDiff{Field: field, Before: b, After: a})
		}
	}
	add("status", string(before.Status), string(after.Status))
	add("startedAt", before.StartedAt, after.StartedAt)
	add("completedAt", before.CompletedAt, after.CompletedAt)
	add("completedBy", string(before.CompletedBy), string(after.CompletedBy))
	add("evidenceNote", before.EvidenceNote, after.EvidenceNote)
	return diffs
}

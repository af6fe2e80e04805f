package cycle

import (
	"sort"
	"time"

	"opscycle/internal/model"
)

// UnmetPrerequisiteTasks returns the sibling tasks that must be done
// before the task owning def may move forward, ordered by (position, id).
// The unmet set is recomputed from the sibling statuses on every call so
// a reopened prerequisite immediately re-blocks its dependents.
func UnmetPrerequisiteTasks(def *model.TaskDef, siblings []model.Task) []model.Task {
	if def == nil || len(def.DependencyIDs) == 0 {
		return nil
	}
	var unmet []model.Task
	for _, s := range siblings {
		if s.TaskDefID == def.ID {
			continue
		}
		if def.DependsOn(s.TaskDefID) && s.Status != model.TaskDone {
			unmet = append(unmet, s)
		}
	}
	sort.Slice(unmet, func(i, j int) bool {
		if unmet[i].Position != unmet[j].Position {
			return unmet[i].Position < unmet[j].Position
		}
		return unmet[i].ID < unmet[j].ID
	})
	return unmet
}

func summarize(tasks []model.Task) []UnmetTask {
	out := make([]UnmetTask, len(tasks))
	for i, t := range tasks {
		out[i] = UnmetTask{ID: t.ID, Title: t.Title, Status: t.Status}
	}
	return out
}

func canTransition(from, to model.TaskStatus) bool {
	if from == to || from == model.TaskDone {
		return false
	}
	switch to {
	case model.TaskInProgress, model.TaskDone:
		return true
	case model.TaskBlocked:
		return from == model.TaskNotStarted || from == model.TaskInProgress
	case model.TaskNotStarted:
		// explicit unblock; leaving done is the reopen operation
		return from == model.TaskBlocked
	}
	return false
}

// Transition applies a status change in place, enforcing the prerequisite
// gate on forward transitions and the evidence gate on completion. A
// non-empty evidenceNote is stored before the evidence gate runs, so a
// note supplied with the completing call satisfies it. startedAt is
// stamped on the first entry into in_progress only; completedAt and
// completedBy are stamped together on done.
func Transition(t *model.Task, to model.TaskStatus, def *model.TaskDef, siblings []model.Task, actor model.UserRef, evidenceNote string, now time.Time) error {
	if !canTransition(t.Status, to) {
		return &InvalidTransitionError{From: t.Status, To: to}
	}

	if to == model.TaskInProgress || to == model.TaskDone {
		if unmet := UnmetPrerequisiteTasks(def, siblings); len(unmet) > 0 {
			return &PrerequisiteError{TaskID: t.ID, Unmet: summarize(unmet)}
		}
	}

	if to == model.TaskDone {
		if evidenceNote != "" {
			t.EvidenceNote = evidenceNote
		}
		if t.EvidenceRequired && t.EvidenceNote == "" {
			return ErrEvidenceMissing
		}
		t.CompletedAt = &now
		t.CompletedBy = actor
	}

	if to == model.TaskInProgress && t.StartedAt == nil {
		started := now
		t.StartedAt = &started
	}

	t.Status = to
	t.UpdatedAt = now
	return nil
}

// Reopen moves a done task back to not_started, clearing completedAt and
// completedBy together. Neither field is ever cleared alone.
func Reopen(t *model.Task, now time.Time) error {
	if t.Status != model.TaskDone {
		return &InvalidTransitionError{From: t.Status, To: model.TaskNotStarted}
	}
	t.Status = model.TaskNotStarted
	t.CompletedAt = nil
	t.CompletedBy = ""
	t.UpdatedAt = now
	return nil
}

package cycle

import (
	"errors"
	"fmt"
	"strings"

	"opscycle/internal/model"
)

var (
	ErrNotFound        = errors.New("cycle not found")
	ErrTaskNotFound    = errors.New("task not found")
	ErrCycleExists     = errors.New("cycle already generated for this period")
	ErrMissingTemplate = errors.New("no template or assignment supplied")
	ErrBadPeriod       = errors.New("period end precedes period start")
	ErrTimeEntryTaken  = errors.New("time entry already linked to another task")
	ErrEvidenceMissing = errors.New("evidence note required to complete this task")
)

// InvalidTransitionError rejects a status change the state machine does
// not define.
type InvalidTransitionError struct {
	From, To model.TaskStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition task from %s to %s", e.From, e.To)
}

// UnmetTask identifies one prerequisite blocking a transition, with
// enough context for a caller to display it.
type UnmetTask struct {
	ID     model.TaskID     `json:"id"`
	Title  string           `json:"title"`
	Status model.TaskStatus `json:"status"`
}

// PrerequisiteError blocks a guarded forward transition until every named
// task is done. Unmet is ordered by (position, id).
type PrerequisiteError struct {
	TaskID model.TaskID
	Unmet  []UnmetTask
}

func (e *PrerequisiteError) Error() string {
	names := make([]string, len(e.Unmet))
	for i, u := range e.Unmet {
		names[i] = fmt.Sprintf("%s (%s)", u.Title, u.Status)
	}
	return fmt.Sprintf("prerequisites not met for task %s: %s", e.TaskID, strings.Join(names, ", "))
}

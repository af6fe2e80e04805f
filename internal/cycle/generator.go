package cycle

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"opscycle/internal/model"
)

// GenerateInput carries everything one materialization needs. Assignment
// is optional; when present its template wins over TemplateID.
type GenerateInput struct {
	Client       model.ClientRef
	TemplateID   model.TemplateID
	AssignmentID model.AssignmentID
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Mode         model.GenerationMode
	Actor        model.UserRef
}

// Materialize assembles one cycle and one task per active def, ordered by
// position. It is a pure function of the template at generation time:
// two calls for different periods on an unchanged template produce
// structurally identical cycles. Persistence (and the period-uniqueness
// check) is the repo's job.
func Materialize(tpl *model.Template, in GenerateInput, now time.Time) (model.Cycle, []model.Task, error) {
	if in.PeriodEnd.Before(in.PeriodStart) {
		return model.Cycle{}, nil, fmt.Errorf("%w: %s .. %s", ErrBadPeriod,
			in.PeriodStart.Format("2006-01-02"), in.PeriodEnd.Format("2006-01-02"))
	}
	if tpl == nil {
		return model.Cycle{}, nil, ErrMissingTemplate
	}
	if in.Client == "" {
		return model.Cycle{}, nil, fmt.Errorf("client is required")
	}
	mode := in.Mode
	if mode == "" {
		mode = model.GenerationManual
	}

	c := model.Cycle{
		ID:             model.CycleID(uuid.NewString()),
		ClientRef:      in.Client,
		TemplateID:     tpl.ID,
		AssignmentID:   in.AssignmentID,
		PeriodStart:    in.PeriodStart,
		PeriodEnd:      in.PeriodEnd,
		Label:          periodLabel(tpl.Name, in.PeriodStart, in.PeriodEnd),
		GenerationMode: mode,
		Status:         model.CycleActive,
		GeneratedAt:    now,
		GeneratedBy:    in.Actor,
	}

	defs := tpl.ActiveDefs()
	tasks := make([]model.Task, 0, len(defs))
	for _, d := range defs {
		tasks = append(tasks, model.Task{
			ID:               model.TaskID(uuid.NewString()),
			CycleID:          c.ID,
			TaskDefID:        d.ID,
			ClientRef:        in.Client,
			Title:            d.Title,
			Description:      d.Description,
			Position:         d.Position,
			Status:           model.TaskNotStarted,
			Assignee:         d.DefaultAssignee,
			DueAt:            DueAt(d.DueOffset, in.PeriodStart, in.PeriodEnd),
			EvidenceRequired: d.EvidenceRequired,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}
	return c, tasks, nil
}

// DueAt computes a task's due instant from its offset rule. A nil offset
// means no due date. Day-unit offsets on a date-only base land at end of
// day; hour-unit offsets are exact.
func DueAt(o *model.DueOffset, periodStart, periodEnd time.Time) *time.Time {
	if o == nil {
		return nil
	}
	base := periodStart
	if o.Anchor == model.AnchorCycleEnd {
		base = periodEnd
	}

	var due time.Time
	switch o.Unit {
	case model.UnitHours:
		due = base.Add(time.Duration(o.Value) * time.Hour)
	case model.UnitDays:
		due = base.AddDate(0, 0, o.Value)
		if due.Hour() == 0 && due.Minute() == 0 && due.Second() == 0 {
			due = time.Date(due.Year(), due.Month(), due.Day(), 23, 59, 59, 0, due.Location())
		}
	default:
		return nil
	}
	return &due
}

func periodLabel(name string, start, end time.Time) string {
	return fmt.Sprintf("%s (%s – %s)", name, start.Format("Jan 2 2006"), end.Format("Jan 2 2006"))
}

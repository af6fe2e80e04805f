package engine

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opscycle/internal/assignment"
	"opscycle/internal/audit"
	"opscycle/internal/cycle"
	"opscycle/internal/model"
	"opscycle/internal/template"
)

type fixture struct {
	engine *Engine
	clock  *FakeClock
	audit  *audit.MemoryRecorder

	template   model.Template
	defHours   model.TaskDef
	defRun     model.TaskDef
	defFile    model.TaskDef
	assignment model.Assignment
}

// newFixture wires a full engine over memory repos with a payroll
// template: collect hours, then run payroll (due 2 days after period
// end), then file withholding (evidence required).
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	templates := template.NewMemoryRepo()
	assignments := assignment.NewMemoryRepo()
	cycles := cycle.NewMemoryRepo()
	recorder := audit.NewMemoryRecorder()
	clock := NewFakeClock(time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC))

	tpl, err := templates.CreateTemplate(ctx, model.Template{
		Name:             "Monthly Payroll",
		RecurrenceType:   model.RecurMonthly,
		RecurrenceAnchor: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Active:           true,
	})
	require.NoError(t, err)

	hours, err := templates.CreateDef(ctx, model.TaskDef{
		TemplateID: tpl.ID, Title: "Collect hours", Active: true,
	})
	require.NoError(t, err)

	run, err := templates.CreateDef(ctx, model.TaskDef{
		TemplateID: tpl.ID, Title: "Run payroll", Active: true,
		DependencyIDs: []model.TaskDefID{hours.ID},
		DueOffset:     &model.DueOffset{Value: 2, Unit: model.UnitDays, Anchor: model.AnchorCycleEnd},
	})
	require.NoError(t, err)

	file, err := templates.CreateDef(ctx, model.TaskDef{
		TemplateID: tpl.ID, Title: "File withholding", Active: true,
		EvidenceRequired: true,
		DependencyIDs:    []model.TaskDefID{run.ID},
	})
	require.NoError(t, err)

	a, err := assignments.Create(ctx, model.Assignment{
		ClientRef:    "client-acme",
		TemplateID:   tpl.ID,
		Status:       model.AssignmentActive,
		AutoGenerate: true,
	})
	require.NoError(t, err)

	return &fixture{
		engine: &Engine{
			Templates:   templates,
			Assignments: assignments,
			Cycles:      cycles,
			Audit:       recorder,
			Clock:       clock,
			Logger:      log.New(os.Stderr, "[test] ", 0),
		},
		clock:      clock,
		audit:      recorder,
		template:   tpl,
		defHours:   hours,
		defRun:     run,
		defFile:    file,
		assignment: a,
	}
}

func (f *fixture) generateFebruary(t *testing.T) (model.Cycle, []model.Task) {
	t.Helper()
	c, tasks, err := f.engine.GenerateCycle(context.Background(), cycle.GenerateInput{
		AssignmentID: f.assignment.ID,
		PeriodStart:  time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:    time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
		Mode:         model.GenerationManual,
		Actor:        "user-jo",
	})
	require.NoError(t, err)
	return c, tasks
}

func TestEngine_MonthlyPayrollFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, tasks, err := f.engine.GenerateCycle(ctx, cycle.GenerateInput{
		AssignmentID: f.assignment.ID,
		PeriodStart:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:    time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		Mode:         model.GenerationManual,
		Actor:        "user-jo",
	})
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, model.ClientRef("client-acme"), c.ClientRef)

	hours, run, file := tasks[0], tasks[1], tasks[2]
	assert.Equal(t, "Collect hours", hours.Title)

	// run payroll is due two calendar days after Jan 31
	require.NotNil(t, run.DueAt)
	assert.Equal(t, time.February, run.DueAt.Month())
	assert.Equal(t, 2, run.DueAt.Day())

	// payroll can't start before the hours are in
	_, err = f.engine.UpdateTaskStatus(ctx, run.ID, model.TaskInProgress, "user-jo")
	var pe *cycle.PrerequisiteError
	require.ErrorAs(t, err, &pe)
	require.Len(t, pe.Unmet, 1)
	assert.Equal(t, hours.ID, pe.Unmet[0].ID)

	_, err = f.engine.CompleteTask(ctx, hours.ID, "", "user-jo")
	require.NoError(t, err)

	got, err := f.engine.UpdateTaskStatus(ctx, run.ID, model.TaskInProgress, "user-jo")
	require.NoError(t, err)
	require.NotNil(t, got.StartedAt)

	f.clock.Advance(2 * time.Hour)
	got, err = f.engine.CompleteTask(ctx, run.ID, "", "user-jo")
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.After(*got.StartedAt))

	// the filing requires evidence
	_, err = f.engine.CompleteTask(ctx, file.ID, "", "user-jo")
	assert.ErrorIs(t, err, cycle.ErrEvidenceMissing)

	got, err = f.engine.CompleteTask(ctx, file.ID, "941 confirmation #4417", "user-jo")
	require.NoError(t, err)
	assert.Equal(t, "941 confirmation #4417", got.EvidenceNote)
	assert.Equal(t, model.UserRef("user-jo"), got.CompletedBy)

	// wrap up the cycle
	closed, err := f.engine.SetCycleStatus(ctx, c.ID, model.CycleCompleted, "user-jo")
	require.NoError(t, err)
	assert.Equal(t, model.CycleCompleted, closed.Status)
}

func TestEngine_GenerateIsIdempotentPerPeriod(t *testing.T) {
	f := newFixture(t)
	f.generateFebruary(t)

	_, _, err := f.engine.GenerateCycle(context.Background(), cycle.GenerateInput{
		AssignmentID: f.assignment.ID,
		PeriodStart:  time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:    time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
		Actor:        "user-jo",
	})
	assert.ErrorIs(t, err, cycle.ErrCycleExists)
}

func TestEngine_GenerateRequiresTemplateOrAssignment(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.engine.GenerateCycle(context.Background(), cycle.GenerateInput{
		Client:      "client-acme",
		PeriodStart: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, cycle.ErrMissingTemplate)
}

func TestEngine_ReopenRestoresGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, tasks := f.generateFebruary(t)
	hours, run := tasks[0], tasks[1]

	_, err := f.engine.CompleteTask(ctx, hours.ID, "", "user-jo")
	require.NoError(t, err)

	reopened, err := f.engine.ReopenTask(ctx, hours.ID, "user-lee")
	require.NoError(t, err)
	assert.Equal(t, model.TaskNotStarted, reopened.Status)
	assert.Nil(t, reopened.CompletedAt)
	assert.Empty(t, reopened.CompletedBy)

	// the dependent is gated again
	_, err = f.engine.CompleteTask(ctx, run.ID, "", "user-jo")
	var pe *cycle.PrerequisiteError
	assert.ErrorAs(t, err, &pe)

	unmet, err := f.engine.UnmetPrerequisiteTasks(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, unmet, 1)
	assert.Equal(t, hours.ID, unmet[0].ID)
}

func TestEngine_LinkTimeEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, tasks := f.generateFebruary(t)

	got, err := f.engine.LinkTimeEntry(ctx, tasks[0].ID, "te-42", "user-jo")
	require.NoError(t, err)
	assert.Equal(t, model.TimeEntryRef("te-42"), got.LinkedTimeEntry)

	_, err = f.engine.LinkTimeEntry(ctx, tasks[1].ID, "te-42", "user-jo")
	assert.ErrorIs(t, err, cycle.ErrTimeEntryTaken)
}

func TestEngine_DeleteDefBlockedOnceInstantiated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.generateFebruary(t)

	err := f.engine.DeleteTaskDef(ctx, f.template.ID, f.defHours.ID)
	assert.ErrorIs(t, err, ErrDefHasTasks)
}

func TestEngine_DeleteDefBeforeInstantiation(t *testing.T) {
	f := newFixture(t)
	err := f.engine.DeleteTaskDef(context.Background(), f.template.ID, f.defFile.ID)
	assert.NoError(t, err)
}

func TestEngine_AuditTrail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, tasks := f.generateFebruary(t)

	_, err := f.engine.CompleteTask(ctx, tasks[0].ID, "", "user-jo")
	require.NoError(t, err)

	cycleEntries := f.audit.Entries(string(c.ID))
	require.Len(t, cycleEntries, 1)
	assert.Equal(t, audit.ActionCycleGenerated, cycleEntries[0].Action)
	assert.Equal(t, model.UserRef("user-jo"), cycleEntries[0].Actor)

	taskEntries := f.audit.Entries(string(tasks[0].ID))
	require.Len(t, taskEntries, 1)
	assert.Equal(t, audit.ActionTaskCompleted, taskEntries[0].Action)
	var fields []string
	for _, d := range taskEntries[0].Diffs {
		fields = append(fields, d.Field)
	}
	assert.Contains(t, fields, "status")
	assert.Contains(t, fields, "completedAt")
	assert.Contains(t, fields, "completedBy")
}

func TestEngine_ReorderDefs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.engine.ReorderDefs(ctx, f.template.ID, []template.DefPosition{
		{ID: f.defHours.ID, Position: 3},
		{ID: f.defRun.ID, Position: 1},
		{ID: f.defFile.ID, Position: 2},
	}, "user-jo")
	require.NoError(t, err)

	tpl, err := f.engine.Templates.GetTemplate(ctx, f.template.ID)
	require.NoError(t, err)
	require.Len(t, tpl.Defs, 3)
	assert.Equal(t, f.defRun.ID, tpl.Defs[0].ID)
	assert.Equal(t, f.defFile.ID, tpl.Defs[1].ID)
	assert.Equal(t, f.defHours.ID, tpl.Defs[2].ID)

	entries := f.audit.Entries(string(f.template.ID))
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionDefsReordered, entries[0].Action)
}

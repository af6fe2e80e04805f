package cycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opscycle/internal/model"
)

func seedCycle(t *testing.T, r Repo) (model.Cycle, []model.Task) {
	t.Helper()
	c, tasks, err := Materialize(payrollTemplate(), payrollInput(), time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, r.CreateCycle(context.Background(), c, tasks))
	return c, tasks
}

func TestMemoryRepo_DuplicatePeriodRejected(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	first, _ := seedCycle(t, r)

	dup, tasks, err := Materialize(payrollTemplate(), payrollInput(), time.Now())
	require.NoError(t, err)
	err = r.CreateCycle(ctx, dup, tasks)
	require.ErrorIs(t, err, ErrCycleExists)

	// only the first cycle and its tasks exist
	got, err := r.ListCycles(ctx, ListFilter{Client: "client-acme"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, first.ID, got[0].ID)

	_, err = r.GetTask(ctx, tasks[0].ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestMemoryRepo_DifferentPeriodsCoexist(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	seedCycle(t, r)

	in := payrollInput()
	in.PeriodStart = date(2025, 3, 1)
	in.PeriodEnd = date(2025, 3, 31)
	c, tasks, err := Materialize(payrollTemplate(), in, time.Now())
	require.NoError(t, err)
	require.NoError(t, r.CreateCycle(ctx, c, tasks))

	got, err := r.ListCycles(ctx, ListFilter{Client: "client-acme"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	// ordered by period start
	assert.True(t, got[0].PeriodStart.Before(got[1].PeriodStart))
}

func TestMemoryRepo_CreateCycleBatchAtomic(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	c, tasks, err := Materialize(payrollTemplate(), payrollInput(), time.Now())
	require.NoError(t, err)

	// corrupt one task so the batch fails validation
	tasks[1].CycleID = "cycle-elsewhere"
	require.Error(t, r.CreateCycle(ctx, c, tasks))

	_, err = r.GetCycle(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.GetTask(ctx, tasks[0].ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	// a clean retry succeeds: nothing from the failed batch lingers
	tasks[1].CycleID = c.ID
	assert.NoError(t, r.CreateCycle(ctx, c, tasks))
}

func TestMemoryRepo_TasksForCycleOrdered(t *testing.T) {
	r := NewMemoryRepo()
	c, _ := seedCycle(t, r)

	tasks, err := r.TasksForCycle(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	for i := 1; i < len(tasks); i++ {
		assert.LessOrEqual(t, tasks[i-1].Position, tasks[i].Position)
	}
}

func TestMemoryRepo_UpdateTaskFreezesIdentity(t *testing.T) {
	r := NewMemoryRepo()
	_, tasks := seedCycle(t, r)

	mod := tasks[0]
	mod.Status = model.TaskInProgress
	mod.CycleID = "cycle-other"
	mod.TaskDefID = "def-other"

	got, err := r.UpdateTask(context.Background(), mod)
	require.NoError(t, err)
	assert.Equal(t, model.TaskInProgress, got.Status)
	assert.Equal(t, tasks[0].CycleID, got.CycleID)
	assert.Equal(t, tasks[0].TaskDefID, got.TaskDefID)
}

func TestMemoryRepo_LinkTimeEntry(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	_, tasks := seedCycle(t, r)

	a, b := tasks[0].ID, tasks[1].ID

	got, err := r.LinkTimeEntry(ctx, a, "te-100")
	require.NoError(t, err)
	assert.Equal(t, model.TimeEntryRef("te-100"), got.LinkedTimeEntry)

	// one entry, one task
	_, err = r.LinkTimeEntry(ctx, b, "te-100")
	assert.ErrorIs(t, err, ErrTimeEntryTaken)

	// relinking the holder to a new entry frees the old one
	_, err = r.LinkTimeEntry(ctx, a, "te-200")
	require.NoError(t, err)
	_, err = r.LinkTimeEntry(ctx, b, "te-100")
	assert.NoError(t, err)

	// clearing releases the entry
	got, err = r.LinkTimeEntry(ctx, a, "")
	require.NoError(t, err)
	assert.Empty(t, got.LinkedTimeEntry)
	_, err = r.LinkTimeEntry(ctx, b, "te-200")
	assert.NoError(t, err)
}

func TestMemoryRepo_SetCycleStatus(t *testing.T) {
	r := NewMemoryRepo()
	c, _ := seedCycle(t, r)

	got, err := r.SetCycleStatus(context.Background(), c.ID, model.CycleCompleted)
	require.NoError(t, err)
	assert.Equal(t, model.CycleCompleted, got.Status)

	_, err = r.SetCycleStatus(context.Background(), "cycle-missing", model.CycleCancelled)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepo_AnyTaskForDef(t *testing.T) {
	r := NewMemoryRepo()
	seedCycle(t, r)

	used, err := r.AnyTaskForDef(context.Background(), "def-hours")
	require.NoError(t, err)
	assert.True(t, used)

	used, err = r.AnyTaskForDef(context.Background(), "def-never-materialized")
	require.NoError(t, err)
	assert.False(t, used)
}

func TestMemoryRepo_ListCyclesFiltered(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	seedCycle(t, r)

	in := payrollInput()
	in.Client = "client-globex"
	c2, tasks, err := Materialize(payrollTemplate(), in, time.Now())
	require.NoError(t, err)
	require.NoError(t, r.CreateCycle(ctx, c2, tasks))

	got, err := r.ListCycles(ctx, ListFilter{Client: "client-globex"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, c2.ID, got[0].ID)

	got, err = r.ListCycles(ctx, ListFilter{Status: model.CycleCancelled})
	require.NoError(t, err)
	assert.Empty(t, got)
}

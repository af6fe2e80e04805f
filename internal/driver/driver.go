package driver

import (
	"context"
	"errors"
	"log"
	"time"

	"opscycle/internal/assignment"
	"opscycle/internal/cycle"
	"opscycle/internal/engine"
	"opscycle/internal/model"
	"opscycle/internal/recurrence"
	"opscycle/internal/template"
)

// Actor recorded on cycles the driver generates.
const Actor = model.UserRef("system:auto-generation")

// Driver is the periodic caller of the generator. Each tick walks the
// eligible assignments independently: one failing assignment never
// blocks the rest, and a period that is already materialized counts as
// success. Anything else is logged and simply retried on the next tick;
// generation is atomic, so a retry can't see a half-built cycle.
type Driver struct {
	Engine      *engine.Engine
	Assignments assignment.Repo
	Templates   template.Repo
	Clock       engine.Clock
	Logger      *log.Logger
	Interval    time.Duration
}

// TickResult summarizes one sweep.
type TickResult struct {
	Eligible      int `json:"eligible"`
	Generated     int `json:"generated"`
	AlreadyExists int `json:"alreadyExists"`
	Failed        int `json:"failed"`
}

func (d *Driver) logf(format string, args ...any) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
	}
}

// Tick runs one sweep over all assignments at the clock's current
// instant.
func (d *Driver) Tick(ctx context.Context) (TickResult, error) {
	now := d.Clock.Now()
	var res TickResult

	assignments, err := d.Assignments.List(ctx)
	if err != nil {
		return res, err
	}

	for _, a := range assignments {
		if !a.EligibleAt(now) {
			continue
		}

		tpl, err := d.Templates.GetTemplate(ctx, a.TemplateID)
		if err != nil {
			res.Failed++
			d.logf("assignment %s: template %s: %v", a.ID, a.TemplateID, err)
			continue
		}
		if !tpl.Active {
			continue
		}
		res.Eligible++

		period, err := recurrence.Next(&tpl, now)
		if err != nil {
			res.Failed++
			d.logf("assignment %s: %v", a.ID, err)
			continue
		}

		_, _, err = d.Engine.GenerateCycle(ctx, cycle.GenerateInput{
			AssignmentID: a.ID,
			PeriodStart:  period.Start,
			PeriodEnd:    period.End,
			Mode:         model.GenerationAuto,
			Actor:        Actor,
		})
		switch {
		case err == nil:
			res.Generated++
		case errors.Is(err, cycle.ErrCycleExists):
			res.AlreadyExists++
		default:
			res.Failed++
			d.logf("assignment %s: generate: %v", a.ID, err)
		}
	}
	return res, nil
}

// Run ticks immediately, then on every interval until the context is
// cancelled.
func (d *Driver) Run(ctx context.Context) {
	interval := d.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	if _, err := d.Tick(ctx); err != nil {
		d.logf("auto-generation sweep: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if res, err := d.Tick(ctx); err != nil {
				d.logf("auto-generation sweep: %v", err)
			} else if res.Generated > 0 || res.Failed > 0 {
				d.logf("auto-generation sweep: generated=%d existing=%d failed=%d",
					res.Generated, res.AlreadyExists, res.Failed)
			}
		}
	}
}

package recurrence

import (
	"errors"
	"testing"
	"time"

	"opscycle/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func tpl(rt model.RecurrenceType, interval int, anchor time.Time) *model.Template {
	return &model.Template{
		Name:               "t",
		RecurrenceType:     rt,
		RecurrenceInterval: interval,
		RecurrenceAnchor:   anchor,
	}
}

func TestNext_WeeklyAnchorsPhase(t *testing.T) {
	// Anchor on a Wednesday; any instant inside the same week maps to the
	// same window.
	anchor := date(2025, 1, 1)
	w := tpl(model.RecurWeekly, 0, anchor)

	p1, err := Next(w, date(2025, 1, 1))
	if err != nil {
		t.Fatal(err)
	}
	p2, err := Next(w, time.Date(2025, 1, 7, 18, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if !p1.Start.Equal(p2.Start) || !p1.End.Equal(p2.End) {
		t.Fatalf("expected identical windows, got %+v vs %+v", p1, p2)
	}
	if !p1.Start.Equal(date(2025, 1, 1)) || !p1.End.Equal(date(2025, 1, 7)) {
		t.Fatalf("unexpected window %+v", p1)
	}

	p3, _ := Next(w, date(2025, 1, 8))
	if !p3.Start.Equal(date(2025, 1, 8)) || !p3.End.Equal(date(2025, 1, 14)) {
		t.Fatalf("unexpected next window %+v", p3)
	}
}

func TestNext_BiweeklySpansTwoWeeks(t *testing.T) {
	p, err := Next(tpl(model.RecurBiweekly, 0, date(2025, 1, 6)), date(2025, 1, 22))
	if err != nil {
		t.Fatal(err)
	}
	if !p.Start.Equal(date(2025, 1, 20)) || !p.End.Equal(date(2025, 2, 2)) {
		t.Fatalf("unexpected window %+v", p)
	}
}

func TestNext_MonthlyWindow(t *testing.T) {
	p, err := Next(tpl(model.RecurMonthly, 0, date(2025, 1, 1)), date(2025, 2, 14))
	if err != nil {
		t.Fatal(err)
	}
	if !p.Start.Equal(date(2025, 2, 1)) || !p.End.Equal(date(2025, 2, 28)) {
		t.Fatalf("unexpected window %+v", p)
	}
}

func TestNext_QuarterlyWindow(t *testing.T) {
	p, err := Next(tpl(model.RecurQuarterly, 0, date(2025, 1, 1)), date(2025, 5, 10))
	if err != nil {
		t.Fatal(err)
	}
	if !p.Start.Equal(date(2025, 4, 1)) || !p.End.Equal(date(2025, 6, 30)) {
		t.Fatalf("unexpected window %+v", p)
	}
}

func TestNext_CustomInterval(t *testing.T) {
	p, err := Next(tpl(model.RecurCustom, 10, date(2025, 1, 1)), date(2025, 1, 25))
	if err != nil {
		t.Fatal(err)
	}
	if !p.Start.Equal(date(2025, 1, 21)) || !p.End.Equal(date(2025, 1, 30)) {
		t.Fatalf("unexpected window %+v", p)
	}
}

func TestNext_RefBeforeAnchorStaysPhased(t *testing.T) {
	p, err := Next(tpl(model.RecurWeekly, 0, date(2025, 1, 15)), date(2025, 1, 3))
	if err != nil {
		t.Fatal(err)
	}
	if !p.Start.Equal(date(2025, 1, 1)) || !p.End.Equal(date(2025, 1, 7)) {
		t.Fatalf("unexpected window %+v", p)
	}
}

func TestNext_CustomWithoutIntervalFails(t *testing.T) {
	_, err := Next(tpl(model.RecurCustom, 0, date(2025, 1, 1)), date(2025, 1, 2))
	if !errors.Is(err, ErrUnresolvable) {
		t.Fatalf("expected unresolvable error, got %v", err)
	}
}

func TestNext_MonthlyLateAnchorDay(t *testing.T) {
	// Anchor on the 31st: windows still tile the calendar without gaps.
	anchor := date(2025, 1, 31)
	m := tpl(model.RecurMonthly, 0, anchor)

	p, err := Next(m, date(2025, 3, 15))
	if err != nil {
		t.Fatal(err)
	}
	if p.Start.After(date(2025, 3, 15)) || p.End.Before(date(2025, 3, 15)) {
		t.Fatalf("window %+v does not contain the reference day", p)
	}
}

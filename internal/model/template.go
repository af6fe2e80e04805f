package model

import "time"

type TemplateID string
type TaskDefID string
type ClientRef string
type UserRef string

type RecurrenceType string

const (
	RecurWeekly    RecurrenceType = "weekly"
	RecurBiweekly  RecurrenceType = "biweekly"
	RecurMonthly   RecurrenceType = "monthly"
	RecurQuarterly RecurrenceType = "quarterly"
	RecurCustom    RecurrenceType = "custom"
)

type OffsetUnit string

const (
	UnitHours OffsetUnit = "hours"
	UnitDays  OffsetUnit = "days"
)

type OffsetAnchor string

const (
	AnchorCycleStart OffsetAnchor = "cycle_start"
	AnchorCycleEnd   OffsetAnchor = "cycle_end"
)

// DueOffset shifts a task's due instant away from one of the cycle's
// period boundaries. All three fields travel together; a def either has
// a full offset or none.
type DueOffset struct {
	Value  int          `json:"value"`
	Unit   OffsetUnit   `json:"unit"`
	Anchor OffsetAnchor `json:"anchor"`
}

// TaskDef is one checklist item on a template. Position is the stable
// ordering within the template; DependencyIDs reference sibling defs on
// the same template.
type TaskDef struct {
	ID               TaskDefID   `json:"id"`
	TemplateID       TemplateID  `json:"templateId"`
	Title            string      `json:"title"`
	Description      string      `json:"description,omitempty"`
	Position         int         `json:"position"`
	DueOffset        *DueOffset  `json:"dueOffset,omitempty"`
	EvidenceRequired bool        `json:"evidenceRequired"`
	DependencyIDs    []TaskDefID `json:"dependencyIds,omitempty"`
	Active           bool        `json:"active"`
	DefaultAssignee  UserRef     `json:"defaultAssignee,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

func (d *TaskDef) DependsOn(id TaskDefID) bool {
	for _, dep := range d.DependencyIDs {
		if dep == id {
			return true
		}
	}
	return false
}

// Template is a reusable checklist definition. Defs are kept ordered by
// Position ascending.
type Template struct {
	ID                 TemplateID     `json:"id"`
	Name               string         `json:"name"`
	Category           string         `json:"category,omitempty"`
	RecurrenceType     RecurrenceType `json:"recurrenceType"`
	RecurrenceInterval int            `json:"recurrenceInterval,omitempty"` // day count, custom only
	RecurrenceAnchor   time.Time      `json:"recurrenceAnchor"`
	AutoGenerate       bool           `json:"autoGenerate"`
	Active             bool           `json:"active"`
	Defs               []TaskDef      `json:"defs,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

func (t *Template) Def(id TaskDefID) *TaskDef {
	for i := range t.Defs {
		if t.Defs[i].ID == id {
			return &t.Defs[i]
		}
	}
	return nil
}

// ActiveDefs returns the defs that materialize into tasks, in position
// order. Defs is already position-sorted by the repo.
func (t *Template) ActiveDefs() []TaskDef {
	out := make([]TaskDef, 0, len(t.Defs))
	for _, d := range t.Defs {
		if d.Active {
			out = append(out, d)
		}
	}
	return out
}

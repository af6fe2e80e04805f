package audit

import (
	"time"

	"opscycle/internal/model"
)

type Action string

const (
	ActionCycleGenerated Action = "cycle_generated"
	ActionStatusChanged  Action = "status_changed"
	ActionTaskCompleted  Action = "task_completed"
	ActionTaskReopened   Action = "task_reopened"
	ActionTimeEntryLink  Action = "time_entry_linked"
	ActionDefsReordered  Action = "defs_reordered"
	ActionCycleStatus    Action = "cycle_status_changed"
)

// FieldDiff is one field-level before/after pair of an accepted mutation.
type FieldDiff struct {
	Field  string `json:"field"`
	Before any    `json:"before"`
	After  any    `json:"after"`
}

type Entry struct {
	ID         int           `json:"id"`
	EntityType string        `json:"entityType"`
	EntityID   string        `json:"entityId"`
	Action     Action        `json:"action"`
	Actor      model.UserRef `json:"actor"`
	Diffs      []FieldDiff   `json:"diffs,omitempty"`
	Note       string        `json:"note,omitempty"`
	At         time.Time     `json:"at"`
}

// Recorder receives one entry per accepted mutation. Implementations sit
// outside the engine; a failing recorder never rolls back the mutation it
// describes.
type Recorder interface {
	Record(entityType, entityID string, action Action, actor model.UserRef, diffs []FieldDiff, note string) error
}

package model

import "time"

type CycleID string
type TaskID string
type TimeEntryRef string

type GenerationMode string

const (
	GenerationAuto   GenerationMode = "auto"
	GenerationManual GenerationMode = "manual"
)

type CycleStatus string

const (
	CycleActive    CycleStatus = "active"
	CycleCompleted CycleStatus = "completed"
	CycleCancelled CycleStatus = "cancelled"
)

// Cycle is one time-boxed instantiation of a template for one client.
// The tuple (ClientRef, TemplateID, PeriodStart, PeriodEnd) is unique;
// the generator relies on that constraint for idempotency.
type Cycle struct {
	ID             CycleID        `json:"id"`
	ClientRef      ClientRef      `json:"clientRef"`
	TemplateID     TemplateID     `json:"templateId"`
	AssignmentID   AssignmentID   `json:"assignmentId,omitempty"`
	PeriodStart    time.Time      `json:"periodStart"`
	PeriodEnd      time.Time      `json:"periodEnd"`
	Label          string         `json:"label"`
	GenerationMode GenerationMode `json:"generationMode"`
	Status         CycleStatus    `json:"status"`
	GeneratedAt    time.Time      `json:"generatedAt"`
	GeneratedBy    UserRef        `json:"generatedBy"`
}

type TaskStatus string

const (
	TaskNotStarted TaskStatus = "not_started"
	TaskInProgress TaskStatus = "in_progress"
	TaskBlocked    TaskStatus = "blocked"
	TaskDone       TaskStatus = "done"
)

// Task is one instantiated checklist item inside a cycle. Title,
// description, position and the evidence flag are copied from the def at
// generation time; dependency edges are not copied, they are resolved
// through TaskDefID against sibling tasks in the same cycle.
type Task struct {
	ID               TaskID       `json:"id"`
	CycleID          CycleID      `json:"cycleId"`
	TaskDefID        TaskDefID    `json:"taskDefId"`
	ClientRef        ClientRef    `json:"clientRef"`
	Title            string       `json:"title"`
	Description      string       `json:"description,omitempty"`
	Position         int          `json:"position"`
	Status           TaskStatus   `json:"status"`
	Assignee         UserRef      `json:"assignee,omitempty"`
	DueAt            *time.Time   `json:"dueAt,omitempty"`
	StartedAt        *time.Time   `json:"startedAt,omitempty"`
	CompletedAt      *time.Time   `json:"completedAt,omitempty"`
	CompletedBy      UserRef      `json:"completedBy,omitempty"`
	EvidenceRequired bool         `json:"evidenceRequired"`
	EvidenceNote     string       `json:"evidenceNote,omitempty"`
	LinkedTimeEntry  TimeEntryRef `json:"linkedTimeEntry,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

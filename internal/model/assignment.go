package model

import "time"

type AssignmentID string

type AssignmentStatus string

const (
	AssignmentActive AssignmentStatus = "active"
	AssignmentPaused AssignmentStatus = "paused"
)

// Assignment binds a client to a template for recurring generation.
// The (ClientRef, TemplateID) pair is unique.
type Assignment struct {
	ID           AssignmentID     `json:"id"`
	ClientRef    ClientRef        `json:"clientRef"`
	TemplateID   TemplateID       `json:"templateId"`
	AutoGenerate bool             `json:"autoGenerate"`
	Status       AssignmentStatus `json:"status"`
	StartsOn     *time.Time       `json:"startsOn,omitempty"`
	EndsOn       *time.Time       `json:"endsOn,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// EligibleAt reports whether the auto-generation driver should generate
// for this assignment at the given instant. Absent window bounds are
// open-ended.
func (a *Assignment) EligibleAt(at time.Time) bool {
	if a.Status != AssignmentActive || !a.AutoGenerate {
		return false
	}
	if a.StartsOn != nil && at.Before(*a.StartsOn) {
		return false
	}
	if a.EndsOn != nil && at.After(*a.EndsOn) {
		return false
	}
	return true
}

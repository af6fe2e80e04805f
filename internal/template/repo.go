package template

import (
	"context"
	"errors"

	"opscycle/internal/model"
)

var (
	ErrNotFound      = errors.New("template not found")
	ErrDefNotFound   = errors.New("task def not found")
	ErrNameTaken     = errors.New("template name already in use")
	ErrPositionTaken = errors.New("position already in use on this template")
)

// DefPosition is one entry of a bulk reorder.
type DefPosition struct {
	ID       model.TaskDefID `json:"id"`
	Position int             `json:"position"`
}

// Repo owns templates and their task defs. Get always returns defs
// sorted by position ascending.
type Repo interface {
	CreateTemplate(ctx context.Context, t model.Template) (model.Template, error)
	GetTemplate(ctx context.Context, id model.TemplateID) (model.Template, error)
	ListTemplates(ctx context.Context, activeOnly bool) ([]model.Template, error)
	UpdateTemplate(ctx context.Context, t model.Template) (model.Template, error)

	CreateDef(ctx context.Context, def model.TaskDef) (model.TaskDef, error)
	UpdateDef(ctx context.Context, def model.TaskDef) (model.TaskDef, error)
	DeleteDef(ctx context.Context, templateID model.TemplateID, defID model.TaskDefID) error

	// ReorderDefs applies the full position update as one atomic step;
	// readers never observe a partially reordered template.
	ReorderDefs(ctx context.Context, templateID model.TemplateID, order []DefPosition) error
}

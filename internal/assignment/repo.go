package assignment

import (
	"context"
	"errors"

	"opscycle/internal/model"
)

var (
	ErrNotFound  = errors.New("assignment not found")
	ErrDuplicate = errors.New("client already has an assignment for this template")
)

type Repo interface {
	Create(ctx context.Context, a model.Assignment) (model.Assignment, error)
	Get(ctx context.Context, id model.AssignmentID) (model.Assignment, error)
	Update(ctx context.Context, a model.Assignment) (model.Assignment, error)
	List(ctx context.Context) ([]model.Assignment, error)
}

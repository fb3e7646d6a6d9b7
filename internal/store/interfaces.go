package store

import (
	"context"
	"errors"

	"basegraph.app/radar/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// RunStore defines the contract for pipeline run history
type RunStore interface {
	Create(ctx context.Context, run *model.Run) error
	Finish(ctx context.Context, run *model.Run) error
	Get(ctx context.Context, id int64) (*model.Run, error)
	List(ctx context.Context, params ListRunsParams) ([]model.Run, error)
}

// ListRunsParams filters run history. Zero values mean "any"; Limit defaults
// to 20 and is capped at 200.
type ListRunsParams struct {
	Mode   model.Mode
	Status model.RunStatus
	Limit  int
}

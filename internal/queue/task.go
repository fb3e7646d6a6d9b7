package queue

import "basegraph.app/radar/internal/model"

type TaskType string

const (
	// TaskTypeRunCycle asks a worker to run one pipeline cycle.
	TaskTypeRunCycle TaskType = "run_cycle"
)

// RunRequest is what producers put on the run stream.
type RunRequest struct {
	Mode    model.Mode
	Trigger model.RunTrigger
	RunID   *int64 // pre-assigned so the API can hand it back before the worker starts
	TraceID *string
	Attempt int
}

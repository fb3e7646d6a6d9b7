package worker

import (
	"context"

	"basegraph.app/radar/internal/model"
	"basegraph.app/radar/internal/orchestrator"
	"basegraph.app/radar/internal/queue"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// CycleRunner abstracts the orchestrator for testability.
type CycleRunner interface {
	Run(ctx context.Context, opts orchestrator.RunOptions) (*model.Run, error)
}

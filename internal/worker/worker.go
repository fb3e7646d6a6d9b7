package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/radar/common/logger"
	"basegraph.app/radar/internal/model"
	"basegraph.app/radar/internal/orchestrator"
	"basegraph.app/radar/internal/queue"
)

type Config struct {
	MaxAttempts int
}

// cycleError marks a cycle that ran and failed. The failure is already
// recorded and notified, so the message goes to the DLQ without a retry.
type cycleError struct{ err error }

func (e *cycleError) Error() string { return e.err.Error() }
func (e *cycleError) Unwrap() error { return e.err }

type Worker struct {
	consumer Consumer
	runner   CycleRunner
	lock     *CycleLock
	cfg      Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, runner CycleRunner, lock *CycleLock, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if lock == nil {
		lock = NewCycleLock(nil, "", 0)
	}
	return &Worker{
		consumer:  consumer,
		runner:    runner,
		lock:      lock,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "radar.worker"})
	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				// Brief backoff on error
				select {
				case <-ctx.Done():
				case <-time.After(time.Second):
				}
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

// RunCycle runs one cycle under the cycle lock. The scheduler and the CLI
// use it directly; queued requests arrive through ProcessMessage.
func (w *Worker) RunCycle(ctx context.Context, opts orchestrator.RunOptions) (*model.Run, error) {
	release, err := w.lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	return w.runner.Run(ctx, opts)
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		if err := w.processMessageSafe(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "message processing failed",
				"error", err,
				"message_id", msg.ID,
				"mode", msg.Mode)
			w.handleFailedMessage(ctx, msg, err)
		}
	}

	return nil
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing",
				"panic", r,
				"message_id", msg.ID,
				"mode", msg.Mode)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

// ProcessMessage runs the cycle a message asks for and acks it. A request
// that arrives while another cycle holds the lock is acked and dropped.
// Exported so it can be reused by the reclaimer.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	msgID := msg.ID
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID: &msgID,
		Mode:      logger.Ptr(string(msg.Mode)),
	})

	span := logger.StartSpanFromTraceID(ctx, msg.TraceID, "radar.worker.process_message")
	defer span.End()
	ctx = span.Context()

	slog.InfoContext(ctx, "processing message",
		"task_type", msg.TaskType,
		"trigger", msg.Trigger,
		"attempt", msg.Attempt)

	opts := orchestrator.RunOptions{Mode: msg.Mode, Trigger: msg.Trigger}
	if msg.RunID != nil {
		opts.RunID = *msg.RunID
	}

	run, err := w.RunCycle(ctx, opts)
	switch {
	case errors.Is(err, ErrCycleRunning):
		slog.WarnContext(ctx, "cycle already running, skipping request")
	case err != nil && run == nil:
		span.RecordError(err)
		return err
	case err != nil:
		span.RecordError(err)
		return &cycleError{err: err}
	default:
		slog.InfoContext(ctx, "cycle finished", "run_id", run.ID, "status", run.Status)
	}

	if err := w.consumer.Ack(ctx, msg); err != nil {
		// Log but don't fail - message will be reclaimed but the lock keeps that safe
		slog.WarnContext(ctx, "failed to ACK message",
			"error", err,
			"message_id", msg.ID)
	}
	return nil
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	var cycleErr *cycleError
	if errors.As(err, &cycleErr) || msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "sending message to DLQ",
			"message_id", msg.ID,
			"attempts", msg.Attempt,
			"cycle_failed", cycleErr != nil)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed message",
		"message_id", msg.ID,
		"attempt", msg.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}

package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"basegraph.app/radar/internal/http/dto"
	"basegraph.app/radar/internal/model"
	"basegraph.app/radar/internal/queue"
	"basegraph.app/radar/internal/store"
)

type RunHandler struct {
	producer queue.Producer
	runs     store.RunStore
	newID    func() int64
}

func NewRunHandler(producer queue.Producer, runs store.RunStore, newID func() int64) *RunHandler {
	return &RunHandler{
		producer: producer,
		runs:     runs,
		newID:    newID,
	}
}

// Trigger queues a cycle. The run ID is assigned here so callers can poll
// for it before a worker picks the request up.
func (h *RunHandler) Trigger(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.TriggerRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid trigger request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be one of daily, weekly, monthly"})
		return
	}

	runID := h.newID()
	runReq := queue.RunRequest{
		Mode:    model.Mode(req.Mode),
		Trigger: model.RunTriggerAPI,
		RunID:   &runID,
	}
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		traceID := spanCtx.TraceID().String()
		runReq.TraceID = &traceID
	}

	messageID, err := h.producer.Enqueue(ctx, runReq)
	if err != nil {
		slog.ErrorContext(ctx, "failed to enqueue run", "error", err, "mode", req.Mode)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue run"})
		return
	}

	slog.InfoContext(ctx, "run queued via API", "run_id", runID, "mode", req.Mode, "message_id", messageID)

	c.JSON(http.StatusAccepted, dto.TriggerRunResponse{
		RunID:     runID,
		MessageID: messageID,
		Mode:      req.Mode,
		Status:    "queued",
	})
}

func (h *RunHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	params := store.ListRunsParams{
		Mode:   model.Mode(c.Query("mode")),
		Status: model.RunStatus(c.Query("status")),
	}
	if params.Mode != "" && !params.Mode.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mode"})
		return
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		params.Limit = limit
	}

	runs, err := h.runs.List(ctx, params)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}

	resp := dto.ListRunsResponse{Runs: make([]dto.RunResponse, len(runs))}
	for i := range runs {
		resp.Runs[i] = dto.NewRunResponse(&runs[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *RunHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	run, err := h.runs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to get run", "error", err, "run_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get run"})
		return
	}

	c.JSON(http.StatusOK, dto.NewRunResponse(run))
}

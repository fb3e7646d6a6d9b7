package dto

import (
	"time"

	"basegraph.app/radar/internal/model"
)

type TriggerRunRequest struct {
	Mode string `json:"mode" binding:"required,oneof=daily weekly monthly"`
}

type TriggerRunResponse struct {
	RunID     int64  `json:"run_id,string"`
	MessageID string `json:"message_id"`
	Mode      string `json:"mode"`
	Status    string `json:"status"`
}

type RunResponse struct {
	ID         int64            `json:"id,string"`
	Mode       string           `json:"mode"`
	Status     string           `json:"status"`
	Trigger    string           `json:"trigger"`
	Metrics    model.RunMetrics `json:"metrics"`
	Error      *string          `json:"error,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	DurationMs *int64           `json:"duration_ms,omitempty"`
}

type ListRunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

func NewRunResponse(run *model.Run) RunResponse {
	resp := RunResponse{
		ID:         run.ID,
		Mode:       string(run.Mode),
		Status:     string(run.Status),
		Trigger:    string(run.Trigger),
		Metrics:    run.Metrics,
		Error:      run.Error,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	if run.FinishedAt != nil {
		ms := run.FinishedAt.Sub(run.StartedAt).Milliseconds()
		resp.DurationMs = &ms
	}
	return resp
}

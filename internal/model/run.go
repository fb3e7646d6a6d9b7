package model

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusEmpty     RunStatus = "empty"
	RunStatusFailed    RunStatus = "failed"
)

type RunTrigger string

const (
	RunTriggerSchedule RunTrigger = "schedule"
	RunTriggerAPI      RunTrigger = "api"
	RunTriggerCLI      RunTrigger = "cli"
)

// PhaseDurations are wall-clock milliseconds per cycle phase.
type PhaseDurations struct {
	Collection int64 `json:"collection_ms"`
	Processing int64 `json:"processing_ms"`
	Analysis   int64 `json:"analysis_ms"`
	Synthesis  int64 `json:"synthesis_ms"`
	Output     int64 `json:"output_ms"`
}

// RunMetrics is persisted as JSONB on the run row.
type RunMetrics struct {
	Durations          PhaseDurations `json:"durations"`
	ItemsCollected     int            `json:"items_collected"`
	ItemsBySource      map[string]int `json:"items_by_source"`
	CollectorsFailed   []string       `json:"collectors_failed"`
	ItemsProcessed     int            `json:"items_processed"`
	ItemsDiscarded     int            `json:"items_discarded"`
	DiscardedBySignal  int            `json:"discarded_by_signal"`
	DiscardedByNovelty int            `json:"discarded_by_novelty"`
	DuplicatesRemoved  int            `json:"duplicates_removed"`
	ItemsAnalyzed      int            `json:"items_analyzed"`
	AnalysisErrors     int            `json:"analysis_errors"`
	AnalysisFallbacks  int            `json:"analysis_fallbacks"`
	SynthesisDegraded  bool           `json:"synthesis_degraded"`
	ReportPath         string         `json:"report_path,omitempty"`
}

type Run struct {
	ID         int64      `json:"id"`
	Mode       Mode       `json:"mode"`
	Status     RunStatus  `json:"status"`
	Trigger    RunTrigger `json:"trigger"`
	Metrics    RunMetrics `json:"metrics"`
	Error      *string    `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Synthesis is the cycle's output. It lives only in memory.
	Synthesis Synthesis `json:"-"`
}

func NewRun(id int64, mode Mode, trigger RunTrigger) *Run {
	return &Run{
		ID:        id,
		Mode:      mode,
		Status:    RunStatusRunning,
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
		Metrics: RunMetrics{
			ItemsBySource:    map[string]int{},
			CollectorsFailed: []string{},
		},
	}
}

// Discard records n items dropped by a processing filter.
func (r *Run) Discard(n int) {
	r.Metrics.ItemsDiscarded += n
}

func (r *Run) Finish(status RunStatus, err error) {
	now := time.Now().UTC()
	r.Status = status
	r.FinishedAt = &now
	if err != nil {
		msg := err.Error()
		r.Error = &msg
	}
}

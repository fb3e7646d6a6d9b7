package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// The orchestrator sets RunID and Mode once per cycle; stages add ItemID/SourceType
// while they work on a single item, so nested calls never pass these around.
type LogFields struct {
	RunID      *int64  // Pipeline run ID
	Mode       *string // Cycle mode: daily, weekly or monthly
	ItemID     *string // Collected item being processed
	SourceType *string // Source of the item or collector (e.g., "hackernews")
	MessageID  *string // Redis stream message ID of a queued run request
	Component  string  // Component name (OTel semantic convention style, e.g., "radar.ranker")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.RunID != nil {
		result.RunID = new.RunID
	}
	if new.Mode != nil {
		result.Mode = new.Mode
	}
	if new.ItemID != nil {
		result.ItemID = new.ItemID
	}
	if new.SourceType != nil {
		result.SourceType = new.SourceType
	}
	if new.MessageID != nil {
		result.MessageID = new.MessageID
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{RunID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen bytes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

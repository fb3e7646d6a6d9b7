package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"basegraph.app/radar/common/logger"
	"basegraph.app/radar/internal/model"
)

type Priority string

const (
	PriorityLow     Priority = "low"
	PriorityDefault Priority = "default"
	PriorityHigh    Priority = "high"
	PriorityUrgent  Priority = "urgent"
)

type Kind string

const (
	KindDailyComplete   Kind = "daily_complete"
	KindDailyErrors     Kind = "daily_errors"
	KindWeeklyComplete  Kind = "weekly_complete"
	KindMonthlyComplete Kind = "monthly_complete"
	KindEmpty           Kind = "empty"
	KindCycleFailed     Kind = "cycle_failed"
	KindCriticalSignal  Kind = "critical_signal"
)

// Message is one notification, independent of where it is delivered.
type Message struct {
	Kind     Kind
	Title    string
	Body     string
	Priority Priority
	Tags     []string
	Click    string
	Fields   map[string]any
}

// Sink delivers messages to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Notifier turns cycle outcomes into messages and hands them to a sink.
// Delivery failures are logged and returned but never retried.
type Notifier struct {
	sink Sink
}

func New(sink Sink) *Notifier {
	return &Notifier{sink: sink}
}

// Nop returns a notifier that drops every message.
func Nop() *Notifier {
	return &Notifier{}
}

func (n *Notifier) send(ctx context.Context, msg Message) error {
	if n.sink == nil {
		return nil
	}
	if err := n.sink.Send(ctx, msg); err != nil {
		slog.WarnContext(ctx, "notification failed",
			"kind", msg.Kind,
			"sink", n.sink.Name(),
			"error", err)
		return fmt.Errorf("notify %s: %w", msg.Kind, err)
	}
	slog.InfoContext(ctx, "notification sent", "kind", msg.Kind, "sink", n.sink.Name())
	return nil
}

func (n *Notifier) NotifyDailyComplete(ctx context.Context, date string, analyzed, discarded, relevance int, highlight string) error {
	lines := []string{
		"Daily cycle complete",
		fmt.Sprintf("Items: %d analyzed, %d discarded", analyzed, discarded),
		fmt.Sprintf("Relevance: %d/10", relevance),
	}
	if highlight != "" {
		lines = append(lines, "Highlight: "+model.Truncate(highlight, 100))
	}
	return n.send(ctx, Message{
		Kind:     KindDailyComplete,
		Title:    "AI Radar - " + date,
		Body:     strings.Join(lines, "\n"),
		Priority: PriorityDefault,
		Tags:     []string{"white_check_mark", "robot"},
		Fields: map[string]any{
			"date":      date,
			"analyzed":  analyzed,
			"discarded": discarded,
			"relevance": relevance,
		},
	})
}

func (n *Notifier) NotifyDailyErrors(ctx context.Context, date string, analyzed int, failedCollectors []string) error {
	shown := failedCollectors
	if len(shown) > 5 {
		shown = shown[:5]
	}
	return n.send(ctx, Message{
		Kind:  KindDailyErrors,
		Title: "AI Radar - " + date,
		Body: fmt.Sprintf("Daily cycle with errors\nItems: %d analyzed\nErrors in: %s",
			analyzed, strings.Join(shown, ", ")),
		Priority: PriorityHigh,
		Tags:     []string{"warning", "robot"},
		Fields: map[string]any{
			"date":              date,
			"analyzed":          analyzed,
			"failed_collectors": strings.Join(failedCollectors, ","),
		},
	})
}

func (n *Notifier) NotifyWeeklyComplete(ctx context.Context, week string, relevance int, patterns []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Weekly synthesis\nRelevance: %d/10", relevance)
	if len(patterns) > 0 {
		b.WriteString("\n\nPatterns:")
		for _, p := range patterns[:min(3, len(patterns))] {
			b.WriteString("\n- " + model.Truncate(p, 50))
		}
	}
	return n.send(ctx, Message{
		Kind:     KindWeeklyComplete,
		Title:    "AI Radar Weekly - " + week,
		Body:     b.String(),
		Priority: PriorityDefault,
		Tags:     []string{"chart_with_upwards_trend", "robot"},
		Fields:   map[string]any{"week": week, "relevance": relevance},
	})
}

func (n *Notifier) NotifyMonthlyComplete(ctx context.Context, month string, relevance int) error {
	return n.send(ctx, Message{
		Kind:     KindMonthlyComplete,
		Title:    "AI Radar Monthly - " + month,
		Body:     fmt.Sprintf("Monthly report\nRelevance: %d/10", relevance),
		Priority: PriorityDefault,
		Tags:     []string{"bar_chart", "robot"},
		Fields:   map[string]any{"month": month, "relevance": relevance},
	})
}

// NotifyEmpty reports a cycle that collected nothing.
func (n *Notifier) NotifyEmpty(ctx context.Context, mode model.Mode, period string) error {
	return n.send(ctx, Message{
		Kind:     KindEmpty,
		Title:    fmt.Sprintf("AI Radar %s - %s", mode, period),
		Body:     fmt.Sprintf("The %s cycle found no items to process", mode),
		Priority: PriorityLow,
		Tags:     []string{"zzz", "robot"},
		Fields:   map[string]any{"mode": string(mode), "period": period},
	})
}

func (n *Notifier) NotifyCycleFailed(ctx context.Context, period string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return n.send(ctx, Message{
		Kind:     KindCycleFailed,
		Title:    "AI Radar FAILED - " + period,
		Body:     logger.Truncate(msg, 500),
		Priority: PriorityUrgent,
		Tags:     []string{"rotating_light", "x"},
		Fields:   map[string]any{"period": period, "error": logger.Truncate(msg, 500)},
	})
}

// NotifyCriticalSignal flags a single item that scored the maximum signal.
func (n *Notifier) NotifyCriticalSignal(ctx context.Context, item *model.CollectedItem) error {
	return n.send(ctx, Message{
		Kind:     KindCriticalSignal,
		Title:    "Critical Signal Detected",
		Body:     fmt.Sprintf("%s\n%s: %s", item.Title, item.SourceType, item.SourceURL),
		Priority: PriorityHigh,
		Tags:     []string{"rotating_light", "fire"},
		Click:    item.SourceURL,
		Fields: map[string]any{
			"item_id": item.ID,
			"source":  string(item.SourceType),
			"url":     item.SourceURL,
		},
	})
}

package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"slices"
	"strings"

	"gopkg.in/gomail.v2"

	"basegraph.app/radar/core/config"
	"basegraph.app/radar/internal/model"
)

const emailMaxItems = 10

var emailTemplate = template.Must(template.ParseFS(templateFS, "templates/email.html.tmpl"))

// Mailer is satisfied by *gomail.Dialer.
type Mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailReporter mails an HTML digest of a finished cycle.
type EmailReporter struct {
	cfg    config.EmailConfig
	mailer Mailer
}

func NewEmailReporter(cfg config.EmailConfig) *EmailReporter {
	return &EmailReporter{
		cfg:    cfg,
		mailer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.Username, cfg.Password),
	}
}

func (e *EmailReporter) WithMailer(m Mailer) *EmailReporter {
	e.mailer = m
	return e
}

type emailItem struct {
	Title         string
	URL           string
	Source        string
	Signal        string
	Summary       string
	Actionability string
	Insights      []string
}

type emailData struct {
	Title      string
	Relevance  int
	Summary    string
	Highlights []string
	Patterns   []string
	Items      []emailItem
}

// Send renders the digest for s and mails it to every configured recipient.
func (e *EmailReporter) Send(ctx context.Context, s model.Synthesis, items []model.AnalyzedItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data := buildEmail(s, items)
	body, err := renderEmail(data)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.cfg.From)
	m.SetHeader("To", e.cfg.To...)
	m.SetHeader("Subject", fmt.Sprintf("%s (relevance %d/10)", data.Title, data.Relevance))
	m.SetBody("text/html", body)

	if err := e.mailer.DialAndSend(m); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	slog.InfoContext(ctx, "email report sent",
		"mode", s.Mode(),
		"period", s.Period(),
		"recipients", len(e.cfg.To),
		"items", len(data.Items))
	return nil
}

// Preview renders the email body without sending it.
func (e *EmailReporter) Preview(s model.Synthesis, items []model.AnalyzedItem) (string, error) {
	return renderEmail(buildEmail(s, items))
}

func renderEmail(data emailData) (string, error) {
	var body bytes.Buffer
	if err := emailTemplate.Execute(&body, data); err != nil {
		return "", fmt.Errorf("rendering email: %w", err)
	}
	return body.String(), nil
}

func buildEmail(s model.Synthesis, items []model.AnalyzedItem) emailData {
	data := emailData{
		Title:     fmt.Sprintf("AI Radar %s digest: %s", s.Mode(), s.Period()),
		Relevance: s.Relevance(),
		Summary:   s.SummaryText(),
	}
	if d, ok := s.(*model.DailySynthesis); ok {
		data.Highlights = d.Highlights
		data.Patterns = d.Patterns
	}

	ranked := slices.Clone(items)
	slices.SortStableFunc(ranked, func(a, b model.AnalyzedItem) int {
		return signalOf(b) - signalOf(a)
	})

	for _, ai := range ranked {
		if len(data.Items) == emailMaxItems {
			break
		}
		if ai.Item == nil {
			continue
		}
		ei := emailItem{
			Title:   ai.Item.Title,
			URL:     ai.Item.SourceURL,
			Source:  strings.ReplaceAll(string(ai.Item.SourceType), "_", " "),
			Signal:  signal(ai.Item),
			Summary: ai.Item.Summary,
		}
		if a := ai.Analysis; a != nil {
			ei.Summary = a.Summary
			ei.Actionability = string(a.Actionability)
			ei.Insights = first(3, a.KeyInsights)
		}
		data.Items = append(data.Items, ei)
	}
	return data
}

func signalOf(ai model.AnalyzedItem) int {
	if ai.Item == nil || ai.Item.SignalScore == nil {
		return 0
	}
	return *ai.Item.SignalScore
}

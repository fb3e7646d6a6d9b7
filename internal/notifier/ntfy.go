package notifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"basegraph.app/radar/core/config"
)

const ntfyTimeout = 10 * time.Second

// Ntfy publishes messages to an ntfy topic as plain-text POSTs.
type Ntfy struct {
	url    string
	client *http.Client
}

func NewNtfy(cfg config.NtfyConfig) *Ntfy {
	base := cfg.URL
	if base == "" {
		base = "https://ntfy.sh"
	}
	return &Ntfy{
		url:    strings.TrimSuffix(base, "/") + "/" + cfg.Topic,
		client: &http.Client{Timeout: ntfyTimeout},
	}
}

func (n *Ntfy) WithClient(c *http.Client) *Ntfy {
	n.client = c
	return n
}

func (n *Ntfy) Name() string {
	return "ntfy"
}

func (n *Ntfy) Send(ctx context.Context, msg Message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, strings.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}

	priority := msg.Priority
	if priority == "" {
		priority = PriorityDefault
	}
	req.Header.Set("Priority", string(priority))
	if msg.Title != "" {
		req.Header.Set("Title", msg.Title)
	}
	if len(msg.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.Tags, ","))
	}
	if msg.Click != "" {
		req.Header.Set("Click", msg.Click)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to ntfy: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MY221B/bird-download/internal/config"
	"github.com/MY221B/bird-download/internal/report"
)

const userAgent = "birdsync/0.1.0"

// Service is the notification surface used by the refresh run.
type Service interface {
	NotifyRunStarted(ctx context.Context, locations int) error
	NotifyRunCompleted(ctx context.Context, rep report.Report) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is
// configured.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:      topic,
		token:         strings.TrimSpace(cfg.Credentials.NtfyToken),
		onlyOnFailure: cfg.Notifications.OnlyOnFailure,
		client:        &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint      string
	token         string
	onlyOnFailure bool
	client        *http.Client
}

func (n *ntfyService) NotifyRunStarted(ctx context.Context, locations int) error {
	if n.onlyOnFailure {
		return nil
	}
	return n.send(ctx, payload{
		title:    "Birdsync - Refresh Started",
		message:  fmt.Sprintf("Refreshing %d location(s)", locations),
		tags:     []string{"birdsync", "refresh", "started"},
		priority: "low",
	})
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, rep report.Report) error {
	clean := rep.Success() && len(rep.Failures) == 0
	if clean && n.onlyOnFailure {
		return nil
	}
	data := payload{
		title:   "Birdsync - Refresh Complete",
		message: "🐦 " + report.Headline(rep),
		tags:    []string{"birdsync", "refresh", "completed"},
	}
	switch {
	case !rep.Success():
		data.title = "Birdsync - Refresh Failed"
		data.message = "❌ " + report.Headline(rep)
		data.tags = []string{"birdsync", "refresh", "failed"}
		data.priority = "high"
	case !clean:
		data.title = "Birdsync - Refresh Complete (with issues)"
	}
	if len(rep.Hints) > 0 {
		data.message += "\n" + strings.Join(rep.Hints, "\n")
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	return n.send(ctx, payload{
		title:    "Birdsync - Error",
		message:  builder.String(),
		tags:     []string{"birdsync", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Birdsync - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"birdsync", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRunStarted(context.Context, int) error             { return nil }
func (noopService) NotifyRunCompleted(context.Context, report.Report) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error        { return nil }
func (noopService) TestNotification(context.Context) error                  { return nil }

package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/options-screener/internal/download"
	"github.com/dgnsrekt/options-screener/internal/screener"
)

// Notifier is the interface for sending screening and fetch notifications.
type Notifier interface {
	SendScreen(ctx context.Context, preset, date string, res *screener.Result) error
	SendFetch(ctx context.Context, result *download.BatchResult, duration time.Duration, err error) error
}

// Client implements the ntfy notification client.
type Client struct {
	httpClient *http.Client
	config     *Config
	logger     *zap.Logger
}

// NewClient creates a new ntfy client.
func NewClient(cfg *Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
	}
}

// SendScreen sends a summary of a screening run.
func (c *Client) SendScreen(ctx context.Context, preset, date string, res *screener.Result) error {
	if !c.config.Enabled {
		return nil
	}

	title := fmt.Sprintf("Screen %s: %d matches (%s)", preset, res.Passed, date)
	message := FormatScreenMessage(res, c.config.TopN)

	return c.send(ctx, title, message, c.config.Tags, c.config.Priority)
}

// SendFetch sends a chain fetch report. Failures are sent with high priority.
func (c *Client) SendFetch(ctx context.Context, result *download.BatchResult, duration time.Duration, err error) error {
	if !c.config.Enabled {
		return nil
	}

	title := "Chain Fetch Complete"
	tags := c.config.Tags + ",white_check_mark"
	priority := c.config.Priority
	if err != nil || result.Failed > 0 {
		title = "Chain Fetch Failed"
		tags = c.config.Tags + ",x"
		priority = "high" // Override to high priority for failures
	}

	return c.send(ctx, title, FormatFetchMessage(result, duration, err), tags, priority)
}

func (c *Client) send(ctx context.Context, title, message, tags, priority string) error {
	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(c.config.Server, "/"), c.config.Topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Title", title)
	req.Header.Set("Priority", priority)
	req.Header.Set("Tags", tags)

	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("failed to send notification", zap.Error(err))
		return fmt.Errorf("sending notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain response body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("notification failed",
			zap.Int("status", resp.StatusCode),
			zap.String("url", url),
		)
		return fmt.Errorf("notification failed with status: %d", resp.StatusCode)
	}

	c.logger.Debug("notification sent", zap.String("title", title))
	return nil
}

// NoopNotifier is a no-op implementation for when notifications are disabled.
type NoopNotifier struct{}

// SendScreen is a no-op.
func (n *NoopNotifier) SendScreen(_ context.Context, _, _ string, _ *screener.Result) error {
	return nil
}

// SendFetch is a no-op.
func (n *NoopNotifier) SendFetch(_ context.Context, _ *download.BatchResult, _ time.Duration, _ error) error {
	return nil
}

// New creates the appropriate notifier based on config.
func New(cfg *Config, logger *zap.Logger) Notifier {
	if !cfg.Enabled {
		return &NoopNotifier{}
	}
	return NewClient(cfg, logger)
}

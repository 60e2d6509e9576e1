// Package notify pushes operational alerts to an ntfy topic: backfill
// pass summaries and feed connectivity loss. Disabled by default.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sileric/mbwatch/internal/backfill"
)

// Connection-loss alerts are suppressed for this long after one fires,
// so a flapping feed does not flood the topic.
const connectionAlertCooldown = 15 * time.Minute

// Notifier is the interface the daemon wires; a disabled Client
// satisfies it with no-ops.
type Notifier interface {
	BackfillFinished(ctx context.Context, result *backfill.Result) error
	ConnectionLost(ctx context.Context) error
}

// Client implements the ntfy notification client.
type Client struct {
	httpClient *http.Client
	config     *Config
	logger     *zap.Logger

	mu        sync.Mutex
	lastAlert time.Time
	now       func() time.Time
}

// NewClient creates a new ntfy client.
func NewClient(cfg *Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// BackfillFinished sends a pass summary. Passes with failures get a
// warning tag.
func (c *Client) BackfillFinished(ctx context.Context, result *backfill.Result) error {
	if !c.config.Enabled {
		return nil
	}

	title := "Backfill complete"
	tags := c.config.Tags + ",white_check_mark"
	if result.FailedBatches > 0 {
		title = "Backfill finished with errors"
		tags = c.config.Tags + ",warning"
	}

	return c.send(ctx, title, FormatBackfillMessage(result), tags, c.config.Priority)
}

// ConnectionLost alerts that the feed dropped, at most once per
// cooldown window.
func (c *Client) ConnectionLost(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	c.mu.Lock()
	if c.now().Sub(c.lastAlert) < connectionAlertCooldown {
		c.mu.Unlock()
		return nil
	}
	c.lastAlert = c.now()
	c.mu.Unlock()

	return c.send(ctx, "Price feed disconnected",
		"Live updates paused; reconnecting. Cache entries will go stale until the feed returns.",
		c.config.Tags+",electric_plug", c.config.Priority)
}

func (c *Client) send(ctx context.Context, title, message, tags, priority string) error {
	url := strings.TrimRight(c.config.ServerURL, "/") + "/" + c.config.Topic

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("creating notification request: %w", err)
	}
	req.Header.Set("Title", title)
	req.Header.Set("Tags", strings.Trim(tags, ","))
	if priority != "" {
		req.Header.Set("Priority", priority)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notification rejected: status %d", resp.StatusCode)
	}

	c.logger.Debug("notification sent", zap.String("title", title))
	return nil
}

package notifications

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"wp_schema_sync/internal/model"
	"wp_schema_sync/internal/retry"

	"github.com/rs/zerolog/log"
)

// Client posts batch notices to an ntfy topic. A disabled client is a no-op.
type Client struct {
	httpClient *http.Client
	baseURL    string
	topic      string
	enabled    bool
	priority   string
	retry      retry.Config
	// Circuit breaker state
	failures    int
	lastFailure time.Time
	circuitOpen bool
	mutex       sync.Mutex
	// Metrics
	totalSent   int64
	totalFailed int64
	// in-flight background notices
	pending sync.WaitGroup
}

type NotificationError struct {
	Type       string
	StatusCode int
	Underlying error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification failed [%s]: %v", e.Type, e.Underlying)
}

func (e *NotificationError) IsRetryable() bool {
	switch e.Type {
	case "network", "server", "rate_limit":
		return true
	case "auth", "client", "circuit_open":
		return false
	default:
		return e.StatusCode >= 500
	}
}

func NewClient(baseURL, topic string, enabled bool, priority string, maxRetries int, baseDelay, maxDelay time.Duration) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:  strings.TrimRight(baseURL, "/"),
		topic:    topic,
		enabled:  enabled && baseURL != "" && topic != "",
		priority: priority,
	}
	c.retry = retry.Config{
		Name:       "ntfy",
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		MaxDelay:   maxDelay,
		Retryable: func(err error) bool {
			var notifErr *NotificationError
			return !errors.As(err, &notifErr) || notifErr.IsRetryable()
		},
	}
	return c
}

// Enabled reports whether notices are actually sent.
func (c *Client) Enabled() bool {
	return c != nil && c.enabled
}

func (c *Client) SendNotification(ctx context.Context, title, message string) error {
	if !c.Enabled() {
		log.Debug().Msg("Notifications disabled, skipping")
		return nil
	}

	if c.isCircuitOpen() {
		log.Warn().Msg("Circuit breaker open, skipping notification")
		return &NotificationError{
			Type:       "circuit_open",
			Underlying: fmt.Errorf("circuit breaker is open"),
		}
	}

	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.sendSingleNotification(ctx, title, message)
	})
	if err != nil {
		c.recordFailure()
		return err
	}
	c.recordSuccess()
	return nil
}

func (c *Client) sendSingleNotification(ctx context.Context, title, message string) error {
	url := fmt.Sprintf("%s/%s", c.baseURL, c.topic)

	log.Debug().
		Str("url", url).
		Str("title", title).
		Msg("Sending notification")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(message))
	if err != nil {
		return &NotificationError{Type: "client", Underlying: err}
	}

	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if title != "" {
		req.Header.Set("Title", title)
	}
	if c.priority != "" {
		req.Header.Set("Priority", c.priority)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NotificationError{Type: "network", Underlying: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &NotificationError{
			Type:       categorizeHTTPError(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Underlying: fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status),
		}
	}

	log.Debug().Int("status_code", resp.StatusCode).Msg("Notification sent successfully")
	return nil
}

// NotifyBatchFinished sends the batch summary in the background.
func (c *Client) NotifyBatchFinished(ctx context.Context, table *model.ResultTable, source string) {
	if !c.Enabled() {
		return
	}

	title, message := formatBatchMessage(table, source)
	log.Info().
		Str("batch_id", table.BatchID).
		Msg("Sending batch finished notification")

	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		if err := c.SendNotification(context.WithoutCancel(ctx), title, message); err != nil {
			log.Warn().Err(err).Str("batch_id", table.BatchID).Msg("Batch notification failed")
		}
	}()
}

// Wait blocks until background notices have been sent or given up on.
func (c *Client) Wait() {
	if c == nil {
		return
	}
	c.pending.Wait()
}

func formatBatchMessage(table *model.ResultTable, source string) (string, string) {
	title := "Schema batch finished"
	if table.Cancelled {
		title = "Schema batch cancelled"
	}

	var sb strings.Builder
	if source != "" {
		sb.WriteString(fmt.Sprintf("Nguồn: %s\n", source))
	}
	for _, item := range table.Summary() {
		sb.WriteString(fmt.Sprintf("%s: %s\n", item.Label, item.Value))
	}
	return title, strings.TrimSuffix(sb.String(), "\n")
}

// Circuit breaker helpers

func (c *Client) isCircuitOpen() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.circuitOpen && time.Since(c.lastFailure) > 30*time.Second {
		c.circuitOpen = false
		c.failures = 0
		log.Info().Msg("Circuit breaker moving to half-open state")
	}
	return c.circuitOpen
}

func (c *Client) recordSuccess() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.totalSent++
	c.failures = 0
	if c.circuitOpen {
		c.circuitOpen = false
		log.Info().Msg("Circuit breaker closed after successful notification")
	}
}

func (c *Client) recordFailure() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.totalFailed++
	c.failures++
	c.lastFailure = time.Now()

	// open after 5 consecutive failures
	if c.failures >= 5 && !c.circuitOpen {
		c.circuitOpen = true
		log.Warn().
			Int("failures", c.failures).
			Msg("Circuit breaker opened due to consecutive failures")
	}
}

func categorizeHTTPError(statusCode int) string {
	switch {
	case statusCode == 401 || statusCode == 403:
		return "auth"
	case statusCode == 429:
		return "rate_limit"
	case statusCode >= 400 && statusCode < 500:
		return "client"
	case statusCode >= 500:
		return "server"
	default:
		return "unknown"
	}
}

// GetMetrics returns current notification metrics
func (c *Client) GetMetrics() (sent, failed int64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.totalSent, c.totalFailed
}

package config

import (
	"time"

	"wp_schema_sync/internal/retry"
)

// ResilienceConfig holds retry settings per boundary transport. WordPress
// calls are never retried; a failed write is recorded on its row.
type ResilienceConfig struct {
	// ChatPolling keeps the long-poll loop alive through outages.
	ChatPolling retry.Config
	ChatSend    retry.Config
	SheetRead   retry.Config
	SheetWrite  retry.Config
}

var DefaultResilienceConfig = ResilienceConfig{
	ChatPolling: retry.Config{
		Name:          "telegram.getUpdates",
		BaseDelay:     1 * time.Second,
		MaxDelay:      60 * time.Second,
		InfiniteRetry: true,
	},
	ChatSend: retry.Config{
		Name:       "telegram.send",
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   10 * time.Second,
		Timeout:    60 * time.Second,
	},
	SheetRead: retry.Config{
		Name:       "sheets.read",
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
		Timeout:    15 * time.Second,
	},
	SheetWrite: retry.Config{
		Name:       "sheets.write",
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
		Timeout:    30 * time.Second,
	},
}

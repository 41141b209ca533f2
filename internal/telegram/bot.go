package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"wp_schema_sync/internal/config"
	"wp_schema_sync/internal/retry"
	"wp_schema_sync/internal/session"

	"github.com/rs/zerolog/log"
)

const (
	textForbidden      = "⛔ Bạn không có quyền sử dụng bot này."
	textTooLarge       = "❌ File quá lớn (tối đa 20MB)."
	textDownloadFailed = "❌ Không tải được file: %v"
)

// Bot feeds Telegram updates to the session controller.
type Bot struct {
	client      *Client
	controller  *session.Controller
	allowed     map[int64]bool
	pollTimeout time.Duration
	polling     retry.Config
	send        retry.Config
}

// NewBot builds a bot. An empty allowedUsers list lets everyone in.
func NewBot(client *Client, controller *session.Controller, allowedUsers []int64, pollTimeout time.Duration) *Bot {
	allowed := make(map[int64]bool, len(allowedUsers))
	for _, id := range allowedUsers {
		allowed[id] = true
	}
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}

	retryable := func(err error) bool {
		var apiErr *APIError
		return !errors.As(err, &apiErr) || apiErr.Retryable()
	}
	polling := config.DefaultResilienceConfig.ChatPolling
	polling.Retryable = retryable
	send := config.DefaultResilienceConfig.ChatSend
	send.Retryable = retryable

	return &Bot{
		client:      client,
		controller:  controller,
		allowed:     allowed,
		pollTimeout: pollTimeout,
		polling:     polling,
		send:        send,
	}
}

// Poll long-polls for updates until ctx is done. Updates are handled in
// order; batches run in the background, so a long batch does not block
// /cancel.
func (b *Bot) Poll(ctx context.Context) error {
	log.Info().Dur("poll_timeout", b.pollTimeout).Int("allowed_users", len(b.allowed)).Msg("Starting telegram polling")

	var offset int64
	for {
		updates, err := retry.WithRetry(ctx, b.polling, func(ctx context.Context) ([]Update, error) {
			return b.client.GetUpdates(ctx, offset, b.pollTimeout)
		})
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("Telegram polling stopped")
				return ctx.Err()
			}
			return err
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate dispatches one update. ctx must outlive the update: batches
// started from it keep running on it.
func (b *Bot) HandleUpdate(ctx context.Context, update Update) {
	msg := update.Message
	if msg == nil {
		return
	}

	userID := msg.Chat.ID
	if msg.From != nil {
		userID = msg.From.ID
	}
	replier := &chatReplier{client: b.client, chatID: msg.Chat.ID, retry: b.send}

	if len(b.allowed) > 0 && !b.allowed[userID] {
		log.Warn().Int64("user", userID).Msg("Rejected message from unknown user")
		replier.reply(ctx, textForbidden)
		return
	}

	user := strconv.FormatInt(userID, 10)
	var err error
	switch {
	case msg.Document != nil:
		err = b.handleDocument(ctx, user, msg.Document, replier)
	case strings.HasPrefix(strings.TrimSpace(msg.Text), "/"):
		err = b.controller.HandleCommand(ctx, user, msg.Text, replier)
	default:
		err = b.controller.HandleCommand(ctx, user, "/help", replier)
	}
	if err != nil {
		log.Warn().Err(err).Int64("user", userID).Int64("update_id", update.UpdateID).Msg("Failed to handle update")
	}
}

func (b *Bot) handleDocument(ctx context.Context, user string, doc *Document, replier *chatReplier) error {
	if doc.FileSize > MaxDownloadSize {
		return replier.Text(ctx, textTooLarge)
	}

	data, err := retry.WithRetry(ctx, b.send, func(ctx context.Context) ([]byte, error) {
		file, err := b.client.GetFile(ctx, doc.FileID)
		if err != nil {
			return nil, err
		}
		return b.client.Download(ctx, file)
	})
	if err != nil {
		log.Warn().Err(err).Str("user", user).Str("file", doc.FileName).Msg("Failed to download upload")
		return replier.Text(ctx, fmt.Sprintf(textDownloadFailed, err))
	}

	log.Info().Str("user", user).Str("file", doc.FileName).Int("bytes", len(data)).Msg("Received upload")
	return b.controller.HandleUpload(ctx, user, doc.FileName, data, replier)
}

// chatReplier sends session replies to one chat.
type chatReplier struct {
	client *Client
	chatID int64
	retry  retry.Config
}

func (r *chatReplier) Text(ctx context.Context, text string) error {
	return retry.Do(ctx, r.retry, func(ctx context.Context) error {
		return r.client.SendMessage(ctx, r.chatID, text)
	})
}

func (r *chatReplier) Document(ctx context.Context, filename string, data []byte, caption string) error {
	return retry.Do(ctx, r.retry, func(ctx context.Context) error {
		return r.client.SendDocument(ctx, r.chatID, filename, data, caption)
	})
}

func (r *chatReplier) reply(ctx context.Context, text string) {
	if err := r.Text(ctx, text); err != nil {
		log.Warn().Err(err).Int64("chat_id", r.chatID).Msg("Failed to send reply")
	}
}

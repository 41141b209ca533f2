package server

import (
	"context"
	"sync"

	"wp_schema_sync/internal/telegram"

	"github.com/rs/zerolog/log"
)

// updateQueue runs webhook updates one chat at a time, in arrival order.
// Telegram may deliver the next update before the previous one is handled,
// so /insert followed by a file must not race. Chats do not wait on each other.
type updateQueue struct {
	ctx    context.Context
	handle func(context.Context, telegram.Update)

	mu sync.Mutex
	// pending has an entry for every chat with a running worker.
	pending map[int64][]telegram.Update
}

func newUpdateQueue(ctx context.Context, handle func(context.Context, telegram.Update)) *updateQueue {
	return &updateQueue{
		ctx:     ctx,
		handle:  handle,
		pending: make(map[int64][]telegram.Update),
	}
}

func (q *updateQueue) push(update telegram.Update) {
	chat := chatOf(update)

	q.mu.Lock()
	defer q.mu.Unlock()
	if queued, running := q.pending[chat]; running {
		q.pending[chat] = append(queued, update)
		return
	}
	q.pending[chat] = nil
	go q.drain(chat, update)
}

// drain handles update and then whatever queued up behind it. The worker
// exits once the chat has nothing left.
func (q *updateQueue) drain(chat int64, update telegram.Update) {
	for {
		if q.ctx.Err() != nil {
			q.mu.Lock()
			dropped := len(q.pending[chat]) + 1
			delete(q.pending, chat)
			q.mu.Unlock()
			log.Warn().Int64("chat", chat).Int("dropped", dropped).Msg("Shutting down, dropping queued updates")
			return
		}

		q.handle(q.ctx, update)

		q.mu.Lock()
		queued := q.pending[chat]
		if len(queued) == 0 {
			delete(q.pending, chat)
			q.mu.Unlock()
			return
		}
		update = queued[0]
		q.pending[chat] = queued[1:]
		q.mu.Unlock()
	}
}

func chatOf(update telegram.Update) int64 {
	if update.Message == nil {
		return 0
	}
	return update.Message.Chat.ID
}

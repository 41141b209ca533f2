package server

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

type resultDownload struct {
	filename  string
	data      []byte
	userID    string
	expiresAt time.Time
}

// downloadStore keeps result workbooks in memory behind one-off tokens.
type downloadStore struct {
	mu    sync.Mutex
	items map[string]resultDownload
	ttl   time.Duration
}

func newDownloadStore(ttl time.Duration) *downloadStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &downloadStore{
		items: make(map[string]resultDownload),
		ttl:   ttl,
	}
}

func (s *downloadStore) put(userID, filename string, data []byte) (token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked(time.Now())

	token = newRandomToken(24)
	s.items[token] = resultDownload{
		filename:  filename,
		data:      data,
		userID:    userID,
		expiresAt: time.Now().Add(s.ttl),
	}
	return token
}

func (s *downloadStore) get(token string) (resultDownload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked(time.Now())

	v, ok := s.items[token]
	return v, ok
}

func (s *downloadStore) purgeExpiredLocked(now time.Time) {
	for k, v := range s.items {
		if now.After(v.expiresAt) {
			delete(s.items, k)
		}
	}
}

func newRandomToken(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

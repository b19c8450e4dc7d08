package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/anujsainicse/funding-profit-inr/internal/application/port"
)

type record struct {
	fields    map[string]string
	expiresAt time.Time
}

// FieldStore is an in-process FieldStore with per-key expiry. It backs the
// monitor when Redis is disabled and the store-level tests.
type FieldStore struct {
	mu   sync.Mutex
	data map[string]*record
	now  func() time.Time
}

func New() *FieldStore {
	return &FieldStore{
		data: make(map[string]*record),
		now:  time.Now,
	}
}

// NewWithClock allows tests to control expiry.
func NewWithClock(now func() time.Time) *FieldStore {
	s := New()
	s.now = now
	return s
}

func (s *FieldStore) MergeFields(_ context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if len(fields) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[key]
	if !ok || s.expired(rec) {
		rec = &record{fields: make(map[string]string, len(fields))}
		s.data[key] = rec
	}
	for k, v := range fields {
		rec.fields[k] = v
	}
	if ttl > 0 {
		rec.expiresAt = s.now().Add(ttl)
	} else {
		rec.expiresAt = time.Time{}
	}
	return nil
}

func (s *FieldStore) Read(_ context.Context, key string) (map[string]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	if s.expired(rec) {
		delete(s.data, key)
		return nil, false, nil
	}
	out := make(map[string]string, len(rec.fields))
	for k, v := range rec.fields {
		out[k] = v
	}
	return out, true, nil
}

func (s *FieldStore) ListKeys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for k, rec := range s.data {
		if s.expired(rec) {
			delete(s.data, k)
			continue
		}
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *FieldStore) expired(rec *record) bool {
	return !rec.expiresAt.IsZero() && !s.now().Before(rec.expiresAt)
}

var _ port.FieldStore = (*FieldStore)(nil)

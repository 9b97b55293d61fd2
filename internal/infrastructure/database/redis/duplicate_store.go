package redis

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"sync/atomic"
	"time"

	"github.com/turtacn/SynthonScout/internal/infrastructure/monitoring/logging"
)

const (
	defaultDuplicatePrefix = "synthonscout:seen:"
	defaultDuplicateTTL    = 24 * time.Hour
)

// DuplicateStore is a seen-set shared by every screening process that points
// at the same Redis.  A Redis failure reports "not a duplicate".
type DuplicateStore struct {
	client *Client
	logger logging.Logger
	prefix string
	ttl    time.Duration
	errs   atomic.Int64
}

// DuplicateStoreOption configures a DuplicateStore.
type DuplicateStoreOption func(*DuplicateStore)

// WithKeyPrefix sets the key namespace; an empty prefix keeps the default.
func WithKeyPrefix(prefix string) DuplicateStoreOption {
	return func(s *DuplicateStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL sets the expiry of remembered codes; zero keeps them forever.
func WithTTL(ttl time.Duration) DuplicateStoreOption {
	return func(s *DuplicateStore) { s.ttl = ttl }
}

// NewDuplicateStore creates a Redis-backed duplicate filter shared by every
// process that uses the same prefix.
func NewDuplicateStore(client *Client, log logging.Logger, opts ...DuplicateStoreOption) *DuplicateStore {
	if log == nil {
		log = logging.NewNopLogger()
	}
	s := &DuplicateStore{
		client: client,
		logger: log,
		prefix: defaultDuplicatePrefix,
		ttl:    defaultDuplicateTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the Redis key used for a structure code.
func (s *DuplicateStore) Key(code string) string {
	sum := sha1.Sum([]byte(code))
	return s.prefix + hex.EncodeToString(sum[:])
}

// MarkIfDuplicate records code and reports whether it had been seen.
func (s *DuplicateStore) MarkIfDuplicate(ctx context.Context, code string) bool {
	inserted, err := s.client.SetNX(ctx, s.Key(code), 1, s.ttl).Result()
	if err != nil {
		s.errs.Add(1)
		s.logger.Warn("duplicate check failed, treating as new", logging.Err(err))
		return false
	}
	return !inserted
}

// Errors returns how many checks fell back because Redis failed.
func (s *DuplicateStore) Errors() int64 { return s.errs.Load() }

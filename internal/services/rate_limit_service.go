package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// CounterStore is an expiring counter store addressed by opaque keys
type CounterStore interface {
	// Get returns the counter value and whether the counter exists
	Get(ctx context.Context, key string) (int64, bool, error)
	// IncrWithTTL atomically increments the counter and resets its expiry
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Delete removes the counter; a missing key is not an error
	Delete(ctx context.Context, key string) error
}

// IPKey returns the counter key for a source address
func IPKey(ip string) string {
	return "ip:" + ip
}

// EmailKey returns the counter key for a login email
func EmailKey(email string) string {
	return "email:" + email
}

// RateLimitService counts attempts per key inside a sliding window. Every
// increment refreshes the window, so a key stays limited until it has been
// quiet for the full window.
type RateLimitService struct {
	store  CounterStore
	logger *slog.Logger
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(store CounterStore, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		store:  store,
		logger: logger,
	}
}

// IsLimited reports whether the key's counter exists and has reached max
func (s *RateLimitService) IsLimited(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	count, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return ok && count >= int64(max), nil
}

// Increment records one attempt against key and restarts its window
func (s *RateLimitService) Increment(ctx context.Context, key string, window time.Duration) error {
	count, err := s.store.IncrWithTTL(ctx, key, window)
	if err != nil {
		return err
	}
	s.logger.Debug("rate limit counter incremented", slog.String("key_type", keyType(key)), slog.Int64("count", count))
	return nil
}

// Reset clears the key's counter
func (s *RateLimitService) Reset(ctx context.Context, key string) error {
	return s.store.Delete(ctx, key)
}

// CheckLogin evaluates the IP and email keys concurrently. The result is the
// same as checking them one after the other.
func (s *RateLimitService) CheckLogin(ctx context.Context, ip, email string, max int, window time.Duration) (ipLimited, emailLimited bool, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		limited, err := s.IsLimited(gctx, IPKey(ip), max, window)
		ipLimited = limited
		return err
	})
	g.Go(func() error {
		limited, err := s.IsLimited(gctx, EmailKey(email), max, window)
		emailLimited = limited
		return err
	})

	if err := g.Wait(); err != nil {
		return false, false, err
	}
	return ipLimited, emailLimited, nil
}

// RecordFailure increments both login keys
func (s *RateLimitService) RecordFailure(ctx context.Context, ip, email string, window time.Duration) error {
	if err := s.Increment(ctx, IPKey(ip), window); err != nil {
		return err
	}
	return s.Increment(ctx, EmailKey(email), window)
}

// ResetLogin clears both login keys
func (s *RateLimitService) ResetLogin(ctx context.Context, ip, email string) error {
	if err := s.Reset(ctx, IPKey(ip)); err != nil {
		return err
	}
	return s.Reset(ctx, EmailKey(email))
}

func keyType(key string) string {
	if prefix, _, ok := strings.Cut(key, ":"); ok {
		return prefix
	}
	return "unknown"
}

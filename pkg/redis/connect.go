package redis

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Option adjusts the client options derived from the connection URL.
type Option func(*settings)

type settings struct {
	client   redis.Options
	attempts int
	backoff  time.Duration
	log      *slog.Logger
}

// Pool sizes are small: a device daemon holds few concurrent connections
// and sessions are read once per connection.
func newSettings(base *redis.Options) *settings {
	s := &settings{
		client:   *base,
		attempts: 3,
		backoff:  2 * time.Second,
	}
	s.client.PoolSize = 4
	s.client.MinIdleConns = 1
	s.client.ConnMaxIdleTime = 5 * time.Minute
	s.client.ConnMaxLifetime = 30 * time.Minute
	s.client.DialTimeout = 5 * time.Second
	s.client.ReadTimeout = 2 * time.Second
	s.client.WriteTimeout = 2 * time.Second
	s.client.ClientName = "voltd"
	return s
}

// WithPoolSize caps open connections. Default: 4.
func WithPoolSize(n int) Option {
	return func(s *settings) { s.client.PoolSize = n }
}

// WithMinIdleConns keeps n idle connections open. Default: 1.
func WithMinIdleConns(n int) Option {
	return func(s *settings) { s.client.MinIdleConns = n }
}

// WithMaxIdleTime closes connections idle longer than d. Default: 5m.
func WithMaxIdleTime(d time.Duration) Option {
	return func(s *settings) { s.client.ConnMaxIdleTime = d }
}

// WithMaxActiveTime recycles connections older than d. Default: 30m.
func WithMaxActiveTime(d time.Duration) Option {
	return func(s *settings) { s.client.ConnMaxLifetime = d }
}

// WithRetry sets how many times Open pings before giving up and the base
// delay between attempts. The n-th retry waits n*backoff. Default: 3, 2s.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(s *settings) {
		s.attempts = attempts
		s.backoff = backoff
	}
}

// WithReadTimeout bounds socket reads. Default: 2s.
func WithReadTimeout(d time.Duration) Option {
	return func(s *settings) { s.client.ReadTimeout = d }
}

// WithWriteTimeout bounds socket writes. Default: 2s.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *settings) { s.client.WriteTimeout = d }
}

// WithDialTimeout bounds connection setup. Default: 5s.
func WithDialTimeout(d time.Duration) Option {
	return func(s *settings) { s.client.DialTimeout = d }
}

// WithClientName sets the name shown by CLIENT LIST. Default: "voltd".
func WithClientName(name string) Option {
	return func(s *settings) { s.client.ClientName = name }
}

// WithLogger reports failed attempts at WARN.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.log = l }
}

// Open parses url, applies opts and pings until the server answers.
// Only redis:// and rediss:// (TLS) URLs are accepted.
//
//	client, err := redis.Open(ctx, "redis://localhost:6379/0",
//	    redis.WithPoolSize(8),
//	    redis.WithRetry(5, time.Second),
//	)
func Open(ctx context.Context, url string, opts ...Option) (redis.UniversalClient, error) {
	base, err := parseURL(url)
	if err != nil {
		return nil, err
	}

	s := newSettings(base)
	for _, opt := range opts {
		opt(s)
	}
	return s.dial(ctx)
}

func parseURL(url string) (*redis.Options, error) {
	if url == "" {
		return nil, ErrEmptyConnectionURL
	}
	if !strings.HasPrefix(url, "redis://") && !strings.HasPrefix(url, "rediss://") {
		return nil, ErrFailedToParseURL
	}
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseURL, err)
	}
	return o, nil
}

func (s *settings) dial(ctx context.Context) (redis.UniversalClient, error) {
	attempts := max(s.attempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		client := redis.NewClient(&s.client)
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
		_ = client.Close()

		if s.log != nil {
			s.log.WarnContext(ctx, "redis not reachable",
				slog.String("addr", s.client.Addr),
				slog.Int("attempt", attempt),
				slog.Int("of", attempts),
				slog.Any("error", lastErr),
			)
		}
		if attempt == attempts {
			break
		}
		if err := wait(ctx, time.Duration(attempt)*s.backoff); err != nil {
			return nil, errors.Join(ErrConnectionFailed, err)
		}
	}
	return nil, errors.Join(ErrConnectionFailed, lastErr)
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

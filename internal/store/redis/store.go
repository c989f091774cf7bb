// Package redis persists settings documents in Redis so several chartd
// instances can share them. Calls go through a circuit breaker; saves made
// while it is open are buffered and flushed when it closes.
package redis

import (
	"context"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"stockchart/internal/breaker"
	"stockchart/internal/model"
)

const (
	keyPrefix      = "chartd:"
	defaultChannel = "chartd:settings:changed"
	opTimeout      = 2 * time.Second
)

// Config configures the Redis store.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int

	Breaker *breaker.CircuitBreaker
	Log     *zap.Logger
}

// Store is a model.SettingsStore on Redis.
type Store struct {
	client   *goredis.Client
	cb       *breaker.CircuitBreaker
	log      *zap.Logger
	instance string
	channel  string

	pending *pending

	// OnBuffer is called when a save is deferred because the breaker is open.
	OnBuffer func()
	// OnFlush is called with the number of deferred saves written after the
	// breaker closed.
	OnFlush func(count int)
}

// New connects to Redis and pings the server.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "redis ping")
	}

	s := NewWithClient(client, cfg)
	s.log.Info("connected", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return s, nil
}

// NewWithClient wraps an existing client without checking connectivity.
func NewWithClient(client *goredis.Client, cfg Config) *Store {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	cb := cfg.Breaker
	if cb == nil {
		cb = breaker.New(5, 30*time.Second)
	}
	s := &Store{
		client:   client,
		cb:       cb,
		log:      log.Named("redis"),
		instance: uuid.NewString(),
		channel:  defaultChannel,
		pending:  newPending(),
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to breaker.State) {
		if prev != nil {
			prev(from, to)
		}
		if to == breaker.StateClosed {
			go s.flush(context.Background())
		}
	}
	return s
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

func redisKey(key string) string { return keyPrefix + key }

// Load returns the document under key. A missing key is not a breaker
// failure.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	if data, ok := s.pending.get(key); ok {
		return data, nil
	}

	var data []byte
	err := s.cb.Execute(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		b, err := s.client.Get(ctx, redisKey(key)).Bytes()
		if err == goredis.Nil {
			return nil
		}
		data = b
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "redis load %q", key)
	}
	if data == nil {
		return nil, model.ErrNotFound
	}
	return data, nil
}

// Save writes the document and announces the change to other instances.
// While the breaker is open the write is kept in memory, replacing any
// earlier deferred write for the same key, and nil is returned.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	err := s.cb.Execute(ctx, func(ctx context.Context) error {
		return s.write(ctx, key, data)
	})
	if errors.Is(err, breaker.ErrCircuitOpen) {
		s.pending.put(key, data)
		s.log.Warn("breaker open, save deferred", zap.String("key", key), zap.Int("pending", s.pending.len()))
		if s.OnBuffer != nil {
			s.OnBuffer()
		}
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "redis save %q", key)
	}
	s.pending.drop(key)
	return nil
}

func (s *Store) write(ctx context.Context, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, redisKey(key), data, 0)
		p.Publish(ctx, s.channel, s.instance+" "+key)
		return nil
	})
	return err
}

// flush writes every deferred save directly, bypassing the breaker.
func (s *Store) flush(ctx context.Context) {
	batch := s.pending.take()
	if len(batch) == 0 {
		return
	}
	flushed := 0
	for key, data := range batch {
		if err := s.write(ctx, key, data); err != nil {
			s.log.Warn("deferred save failed", zap.String("key", key), zap.Error(err))
			s.pending.putIfAbsent(key, data)
			continue
		}
		flushed++
	}
	s.log.Info("flushed deferred saves", zap.Int("count", flushed))
	if s.OnFlush != nil {
		s.OnFlush(flushed)
	}
}

// PendingCount returns the number of deferred saves.
func (s *Store) PendingCount() int { return s.pending.len() }

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client. Deferred saves that were never flushed are lost
// and logged.
func (s *Store) Close() error {
	if n := s.pending.len(); n > 0 {
		s.log.Warn("closing with deferred saves", zap.Int("pending", n))
	}
	return s.client.Close()
}

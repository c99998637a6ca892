package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("publisher unavailable")

type Options struct {
	Channel   string
	LatestKey string
	LatestTTL time.Duration
}

// Redis publishes each cycle on a channel and keeps the newest one under a
// key for late subscribers.
type Redis struct {
	client  *redis.Client
	opts    Options
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// Dial connects to Redis and checks the connection.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

func NewRedis(client *redis.Client, opts Options, logger zerolog.Logger) *Redis {
	logger = logger.With().Str("component", "publisher").Logger()

	st := gobreaker.Settings{Name: "redis-publisher"}
	st.Interval = 60 * time.Second
	st.Timeout = 30 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 3
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
			Msg("NewRedis | breaker state changed")
	}

	return &Redis{
		client:  client,
		opts:    opts,
		breaker: gobreaker.NewCircuitBreaker(st),
		logger:  logger,
	}
}

func (r *Redis) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode cycle: %w", err)
	}

	_, err = r.breaker.Execute(func() (any, error) {
		if err := r.client.Publish(ctx, r.opts.Channel, payload).Err(); err != nil {
			return nil, fmt.Errorf("redis publish: %w", err)
		}
		if r.opts.LatestKey != "" {
			if err := r.client.Set(ctx, r.opts.LatestKey, payload, r.opts.LatestTTL).Err(); err != nil {
				return nil, fmt.Errorf("redis set: %w", err)
			}
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return err
	}

	r.logger.Debug().Str("channel", r.opts.Channel).Int("bytes", len(payload)).
		Int("long", len(msg.Long)).Int("short", len(msg.Short)).Msg("Publish | cycle published")
	return nil
}

// Latest returns the newest published cycle, if it has not expired.
func (r *Redis) Latest(ctx context.Context) (Message, bool, error) {
	raw, err := r.client.Get(ctx, r.opts.LatestKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, fmt.Errorf("redis get: %w", err)
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, false, fmt.Errorf("failed to decode cycle: %w", err)
	}
	return msg, true, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Package redis publishes upload completion events over Redis pub/sub and
// keeps a per-slot board of the last successful upload.
//
// Each event is JSON-encoded and sent with PUBLISH. When the upload reached
// Done, the same JSON is stored in a hash keyed by slot number, so tools
// that were not subscribed can still ask what a brain's slots should hold.
// Both writes go in one MULTI/EXEC; failures are retried with backoff.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/brainlink/adapter"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "brainlink:upload_completed"

// DefaultBoardKey is the default hash holding the last upload per slot.
const DefaultBoardKey = "brainlink:slots"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the Redis adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default: brainlink:upload_completed).
	Channel string
	// BoardKey is the slot board hash (default: brainlink:slots).
	BoardKey string
	// Timeout bounds each publish attempt (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure.
	Retries int
}

// Adapter publishes upload completion events to Redis.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis adapter. It does not connect until the first publish.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.BoardKey == "" {
		cfg.BoardKey = DefaultBoardKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{config: cfg, client: goredis.NewClient(opts)}, nil
}

// Publish announces the event and, for successful uploads, records it on
// the slot board.
func (a *Adapter) Publish(ctx context.Context, event *adapter.UploadCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	field := strconv.Itoa(event.Slot)
	done := event.Outcome == adapter.OutcomeDone

	return adapter.Retry(ctx, "redis", a.config.Retries, nil, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		_, err := a.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Publish(ctx, a.config.Channel, body)
			if done {
				pipe.HSet(ctx, a.config.BoardKey, field, body)
			}
			return nil
		})
		return err
	})
}

// Latest returns the last successful upload recorded for slot, or nil if
// the board has none.
func (a *Adapter) Latest(ctx context.Context, slot int) (*adapter.UploadCompletedEvent, error) {
	raw, err := a.client.HGet(ctx, a.config.BoardKey, strconv.Itoa(slot)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: read slot %d: %w", slot, err)
	}
	var event adapter.UploadCompletedEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("redis: decode slot %d: %w", slot, err)
	}
	return &event, nil
}

// Close releases the connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)

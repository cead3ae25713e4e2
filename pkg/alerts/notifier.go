package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
)

// Notification is emitted when the number of unacknowledged critical alerts
// grows.
type Notification struct {
	Count    int       `json:"count"`
	Previous int       `json:"previous"`
	Alerts   []Alert   `json:"alerts"`
	At       time.Time `json:"at"`
}

// Notifier delivers notifications. Failures are logged by the pipeline and
// never change alert state.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs n at warn level.
func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	ids := make([]string, len(n.Alerts))
	for i, a := range n.Alerts {
		ids[i] = a.ID
	}
	l.logger.Warn("new critical alerts",
		"unacknowledged", n.Count,
		"previous", n.Previous,
		"alertIDs", ids)
	return nil
}

// Publisher is the subset of *redis.Client used by RedisNotifier.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// DefaultRedisChannel is the pub/sub channel notifications are published on.
const DefaultRedisChannel = "sazpd:alerts:critical"

// RedisNotifier publishes notifications as JSON on a Redis channel.
type RedisNotifier struct {
	client  Publisher
	channel string
}

// NewRedisNotifier creates a RedisNotifier. An empty channel selects
// DefaultRedisChannel.
func NewRedisNotifier(client Publisher, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisNotifier{client: client, channel: channel}
}

// NewRedisNotifierFromURL connects to the Redis server at url.
func NewRedisNotifierFromURL(url, channel string) (*RedisNotifier, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return NewRedisNotifier(client, channel), client, nil
}

// Notify publishes n.
func (r *RedisNotifier) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification to %s: %w", r.channel, err)
	}
	return nil
}

// MultiNotifier fans a notification out to every notifier.
type MultiNotifier []Notifier

// Notify calls every notifier and aggregates their errors.
func (m MultiNotifier) Notify(ctx context.Context, n Notification) error {
	var result *multierror.Error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"camwatch/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType identifies what an Event announces.
type EventType string

const EventAlertRaised EventType = "alert.raised"

// Event is the envelope every camwatch instance publishes.
type Event struct {
	Type       EventType          `json:"type"`
	InstanceID string             `json:"instance_id"`
	Timestamp  time.Time          `json:"timestamp"`
	StreamID   domain.StreamID    `json:"stream_id,omitempty"`
	Alert      *domain.AlertEvent `json:"alert,omitempty"`
}

func newAlertEnvelope(instanceID string, alert *domain.AlertEvent, now time.Time) *Event {
	return &Event{
		Type:       EventAlertRaised,
		InstanceID: instanceID,
		Timestamp:  now,
		StreamID:   alert.StreamID,
		Alert:      alert,
	}
}

// NewRedisClient creates a new Redis client with connection pooling and
// verifies the server answers.
func NewRedisClient(ctx context.Context, address, password string, db, poolSize int, logger *zap.SugaredLogger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         address,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Infow("connected to Redis",
		"address", address,
		"db", db,
		"pool_size", poolSize,
	)
	return client, nil
}

// RedisPublisher publishes alert events on a Redis pub/sub channel.
type RedisPublisher struct {
	client     *redis.Client
	channel    string
	instanceID string
	logger     *zap.SugaredLogger
	now        func() time.Time
}

func NewRedisPublisher(client *redis.Client, channel, instanceID string, logger *zap.SugaredLogger) *RedisPublisher {
	return &RedisPublisher{
		client:     client,
		channel:    channel,
		instanceID: instanceID,
		logger:     logger,
		now:        time.Now,
	}
}

func (p *RedisPublisher) PublishAlert(ctx context.Context, alert *domain.AlertEvent) error {
	data, err := json.Marshal(newAlertEnvelope(p.instanceID, alert, p.now()))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debugw("published alert event",
		"channel", p.channel,
		"alert_id", alert.AlertID,
		"stream_id", alert.StreamID,
	)
	return nil
}

// Ping reports whether Redis is reachable.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

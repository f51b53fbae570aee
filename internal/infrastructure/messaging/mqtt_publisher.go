package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"camwatch/internal/core/domain"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("mqtt not connected")

const publishTimeout = 2 * time.Second

// MQTTConfig describes the broker connection.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
}

// MQTTPublisher publishes alert events to an MQTT broker under
// <topic>/<stream_id>.
type MQTTPublisher struct {
	cfg        MQTTConfig
	instanceID string
	client     mqtt.Client
	logger     *zap.SugaredLogger
	now        func() time.Time

	mu        sync.RWMutex
	published uint64
	errors    uint64
	connected bool
}

func NewMQTTPublisher(cfg MQTTConfig, instanceID string, logger *zap.SugaredLogger) *MQTTPublisher {
	return &MQTTPublisher{
		cfg:        cfg,
		instanceID: instanceID,
		logger:     logger,
		now:        time.Now,
	}
}

// Connect establishes the broker connection. The client reconnects on its own
// afterwards.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	broker := p.cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(p.cfg.ClientID + "-" + p.instanceID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		p.setConnected(true)
		p.logger.Infow("mqtt connection established", "broker", broker)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		p.setConnected(false)
		p.logger.Warnw("mqtt connection lost, will auto-reconnect", "broker", broker, "error", err)
	}

	p.client = mqtt.NewClient(opts)
	p.logger.Infow("connecting to mqtt broker", "broker", broker)

	token := p.client.Connect()
	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		p.client.Disconnect(0)
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	p.setConnected(true)
	return nil
}

func (p *MQTTPublisher) PublishAlert(ctx context.Context, alert *domain.AlertEvent) error {
	if !p.IsConnected() {
		p.countError()
		return ErrNotConnected
	}

	payload, err := json.Marshal(newAlertEnvelope(p.instanceID, alert, p.now()))
	if err != nil {
		p.countError()
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	topic := p.topicFor(alert.StreamID)
	token := p.client.Publish(topic, p.cfg.QoS, false, payload)

	timeout := publishTimeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		p.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		p.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	p.mu.Lock()
	p.published++
	p.mu.Unlock()

	p.logger.Debugw("alert published", "topic", topic, "qos", p.cfg.QoS, "size", len(payload))
	return nil
}

func (p *MQTTPublisher) topicFor(streamID domain.StreamID) string {
	if streamID == "" {
		return p.cfg.Topic + "/unbound"
	}
	return p.cfg.Topic + "/" + string(streamID)
}

// Disconnect closes the MQTT connection
func (p *MQTTPublisher) Disconnect() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
		p.logger.Infow("mqtt disconnected")
	}
	p.setConnected(false)
}

// Ping reports ErrNotConnected while the broker link is down.
func (p *MQTTPublisher) Ping(context.Context) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (p *MQTTPublisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// Stats returns published and failed publish counts.
func (p *MQTTPublisher) Stats() (published, failed uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.published, p.errors
}

func (p *MQTTPublisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

func (p *MQTTPublisher) countError() {
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
}

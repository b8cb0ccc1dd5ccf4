// Package mqtt fans audit log entries out to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/crf-paris15/crf.tools/internal/lockcrf/store"
	"github.com/crf-paris15/crf.tools/internal/metrics"
)

const defaultTimeout = 5 * time.Second

type Config struct {
	Broker      string // e.g. "tcp://localhost:1883"; empty disables publishing
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Timeout     time.Duration
}

type Publisher struct {
	client  paho.Client
	prefix  string
	timeout time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics
}

// Connect dials the broker and returns a ready Publisher.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger, m *metrics.Metrics) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: no broker configured")
	}
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	})

	client := paho.NewClient(opts)
	p := NewWithClient(client, cfg, logger, m)

	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("mqtt connect: %w", err)
		}
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	case <-time.After(p.timeout):
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect: timeout after %s", p.timeout)
	}
	logger.Info("mqtt connected", zap.String("broker", cfg.Broker))
	return p, nil
}

// NewWithClient wraps an existing paho client.
func NewWithClient(client paho.Client, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Publisher {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "lockcrf"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, prefix: cfg.TopicPrefix, timeout: cfg.Timeout, log: logger, metrics: m}
}

func Topic(prefix string, lockID int64) string {
	return fmt.Sprintf("%s/locks/%d/logs", prefix, lockID)
}

type logMessage struct {
	ID              int64     `json:"id"`
	LockID          int64     `json:"lockId"`
	UserID          *string   `json:"userId"`
	AuthorizationID *int64    `json:"authorizationId"`
	Action          *int      `json:"action"`
	Success         *bool     `json:"success"`
	Details         string    `json:"details"`
	Source          int       `json:"source"`
	CreatedAt       time.Time `json:"createdAt"`
}

// PublishLog sends rec on the lock's topic.  Failures are logged and
// counted, never returned.
func (p *Publisher) PublishLog(_ context.Context, rec store.LogRecord) {
	msg := logMessage{
		ID:              rec.ID,
		LockID:          rec.LockID,
		AuthorizationID: rec.AuthorizationID,
		Action:          rec.Action,
		Success:         rec.Success,
		Details:         rec.Details,
		Source:          int(rec.Source),
		CreatedAt:       rec.CreatedAt,
	}
	if rec.UserID != "" {
		msg.UserID = &rec.UserID
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		p.fail(rec, err)
		return
	}

	if !p.client.IsConnected() {
		p.fail(rec, errors.New("not connected"))
		return
	}

	topic := Topic(p.prefix, rec.LockID)
	token := p.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(p.timeout) {
		p.fail(rec, fmt.Errorf("publish timeout on %s", topic))
		return
	}
	if err := token.Error(); err != nil {
		p.fail(rec, err)
	}
}

func (p *Publisher) fail(rec store.LogRecord, err error) {
	p.metrics.IncMQTTError()
	p.log.Warn("mqtt publish failed",
		zap.Int64("lock_id", rec.LockID), zap.Int64("log_id", rec.ID), zap.Error(err))
}

func (p *Publisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

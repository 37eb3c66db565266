package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mmdatafocus/warehouse_stock/config"
	"github.com/mmdatafocus/warehouse_stock/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Publisher is the transport behind the notifier: publish payload on topic
// and return the broker's message id when it has one.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, orderingKey string) (string, error)
}

// PubSubPublisher publishes to one Google Pub/Sub topic per event type.
type PubSubPublisher struct{}

func (PubSubPublisher) Publish(ctx context.Context, topic string, payload []byte, orderingKey string) (string, error) {
	return config.PublishWithResult(ctx, topic, payload, orderingKey)
}

// RedisPublisher fans events out over redis PUBLISH.
type RedisPublisher struct {
	Client *redis.Client
	Prefix string
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload []byte, orderingKey string) (string, error) {
	if p.Client == nil {
		return "", fmt.Errorf("redis client is not configured")
	}
	receivers, err := p.Client.Publish(ctx, p.Prefix+topic, payload).Result()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(receivers, 10), nil
}

// LogPublisher writes events to the structured log only.
type LogPublisher struct {
	Logger *logrus.Logger
}

func (p *LogPublisher) Publish(ctx context.Context, topic string, payload []byte, orderingKey string) (string, error) {
	p.Logger.WithFields(logrus.Fields{
		"topic":        topic,
		"ordering_key": orderingKey,
		"payload":      string(payload),
	}).Info("stock event")
	return "", nil
}

// OutboxPublisher persists events as pending outbox rows; the dispatcher
// relays them to the broker with retries.
type OutboxPublisher struct {
	DB *gorm.DB
}

func (p *OutboxPublisher) Publish(ctx context.Context, topic string, payload []byte, orderingKey string) (string, error) {
	var event models.StockEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", err
	}
	record, err := models.NewStockEventRecord(event)
	if err != nil {
		return "", err
	}
	record.EventType = topic
	if err := p.DB.WithContext(ctx).Create(record).Error; err != nil {
		return "", err
	}
	return strconv.Itoa(record.ID), nil
}

// NewPublisher picks the transport named by NOTIFIER_TRANSPORT.
func NewPublisher(transport string, db *gorm.DB, rdb *redis.Client, logger *logrus.Logger) (Publisher, error) {
	switch transport {
	case config.NotifierPubSub:
		return PubSubPublisher{}, nil
	case config.NotifierRedis:
		if rdb == nil {
			return nil, fmt.Errorf("notifier transport %q needs redis", transport)
		}
		return &RedisPublisher{Client: rdb, Prefix: config.PubSubTopicPrefix()}, nil
	case config.NotifierOutbox:
		if db == nil {
			return nil, fmt.Errorf("notifier transport %q needs a database", transport)
		}
		return &OutboxPublisher{DB: db}, nil
	case config.NotifierLog, "":
		return &LogPublisher{Logger: logger}, nil
	}
	return nil, fmt.Errorf("unknown notifier transport %q", transport)
}

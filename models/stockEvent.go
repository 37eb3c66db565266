package models

import (
	"encoding/json"
	"time"
)

type StockEventType string

const (
	EventStockUpdated StockEventType = "stock.updated"
	EventStockLow     StockEventType = "stock.low"
	EventStockOut     StockEventType = "stock.out"
)

// StockEvent is the notification payload published after a committed mutation.
type StockEvent struct {
	Type          StockEventType `json:"type"`
	ProductId     string         `json:"productId"`
	WarehouseId   string         `json:"warehouseId"`
	Quantity      *int           `json:"quantity,omitempty"`
	Available     *int           `json:"available,omitempty"`
	Threshold     *int           `json:"threshold,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationId string         `json:"correlationId,omitempty"`
}

// OrderingKey keeps events of one balance in publish order on brokers that support it.
func (e StockEvent) OrderingKey() string {
	return BalanceKey(e.ProductId, e.WarehouseId)
}

func (e StockEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Outbox publish statuses for StockEventRecord.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// StockEventRecord is a durable outbox row relayed to the broker by the dispatcher.
type StockEventRecord struct {
	ID               int        `gorm:"primary_key;index:idx_stock_outbox_dispatch,priority:3" json:"id"`
	EventType        string     `gorm:"size:30;not null;index" json:"event_type"`
	ProductId        string     `gorm:"size:64;not null;index" json:"product_id"`
	WarehouseId      string     `gorm:"size:64;not null" json:"warehouse_id"`
	OrderingKey      string     `gorm:"size:140;not null" json:"ordering_key"`
	Payload          []byte     `gorm:"type:text" json:"payload"`
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_stock_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PublishMessageId *string    `gorm:"size:255" json:"publish_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_stock_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func NewStockEventRecord(e StockEvent) (*StockEventRecord, error) {
	payload, err := e.Marshal()
	if err != nil {
		return nil, err
	}
	return &StockEventRecord{
		EventType:     string(e.Type),
		ProductId:     e.ProductId,
		WarehouseId:   e.WarehouseId,
		OrderingKey:   e.OrderingKey(),
		Payload:       payload,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: e.CorrelationId,
	}, nil
}

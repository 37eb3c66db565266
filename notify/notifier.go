package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mmdatafocus/warehouse_stock/config"
	"github.com/mmdatafocus/warehouse_stock/models"
	"github.com/sirupsen/logrus"
)

var ErrQueueFull = errors.New("notification queue full")

const moduleName = "notify"

type queued struct {
	ctx   context.Context
	event models.StockEvent
}

// AsyncNotifier hands events to a Publisher from a single worker, so events
// leave in the order the ledger emitted them. Notify never waits on the
// transport: a full queue drops the event and says so in the log.
type AsyncNotifier struct {
	publisher Publisher
	logger    *logrus.Logger

	Attempts       int
	InitialBackoff time.Duration
	PublishTimeout time.Duration

	queue   chan queued
	done    chan struct{}
	closeMu sync.RWMutex
	closed  bool
}

func NewAsyncNotifier(publisher Publisher, logger *logrus.Logger, queueSize int) *AsyncNotifier {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = logrus.New()
	}
	n := &AsyncNotifier{
		publisher:      publisher,
		logger:         logger,
		Attempts:       3,
		InitialBackoff: 100 * time.Millisecond,
		PublishTimeout: 10 * time.Second,
		queue:          make(chan queued, queueSize),
		done:           make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *AsyncNotifier) Notify(ctx context.Context, event models.StockEvent) error {
	n.closeMu.RLock()
	defer n.closeMu.RUnlock()
	if n.closed {
		return errors.New("notifier closed")
	}
	select {
	case n.queue <- queued{ctx: ctx, event: event}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (n *AsyncNotifier) run() {
	defer close(n.done)
	for item := range n.queue {
		n.deliver(item.ctx, item.event)
	}
}

func (n *AsyncNotifier) deliver(ctx context.Context, event models.StockEvent) {
	fields := logrus.Fields{
		"type":         event.Type,
		"product_id":   event.ProductId,
		"warehouse_id": event.WarehouseId,
	}
	payload, err := event.Marshal()
	if err != nil {
		config.LogError(n.logger, moduleName, "deliver", "marshal event", fields, err)
		return
	}
	backoff := n.InitialBackoff
	for attempt := 1; attempt <= max(1, n.Attempts); attempt++ {
		pctx, cancel := context.WithTimeout(ctx, n.PublishTimeout)
		_, err = n.publisher.Publish(pctx, string(event.Type), payload, event.OrderingKey())
		cancel()
		if err == nil {
			return
		}
		fields["attempt"] = attempt
		n.logger.WithFields(fields).Warn("stock event publish failed: " + err.Error())
		if attempt < n.Attempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	config.LogError(n.logger, moduleName, "deliver", "stock event dropped after retries", fields, err)
}

// Close stops accepting events and waits for the queue to drain or ctx to end.
func (n *AsyncNotifier) Close(ctx context.Context) error {
	n.closeMu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.closeMu.Unlock()
	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/domain"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/models"
)

const (
	tracerName = "github.com/prudhivi99/Distributed-Systems/stocksync/internal/consumer"

	DefaultMaxRedeliveries = 3
	headerDeadLetterReason = "x-dead-letter-reason"
)

var errMalformed = errors.New("malformed cart event")

type StockReserver interface {
	ReserveStock(ctx context.Context, productID uuid.UUID, quantity int) error
}

// Publisher republishes failed deliveries to the work queue or the DLQ.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error
}

// Deduplicator guards a message id while it is applied and remembers it
// afterwards. Claim returns false when the id is already applied or another
// worker holds it.
type Deduplicator interface {
	Claim(ctx context.Context, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID string) error
	Release(ctx context.Context, messageID string) error
}

type CartEventConsumer struct {
	reserver        StockReserver
	mq              Publisher
	dedup           Deduplicator
	logger          *zap.Logger
	maxRedeliveries int
}

// NewCartEventConsumer wires the consumer. dedup may be nil.
func NewCartEventConsumer(reserver StockReserver, mq Publisher, dedup Deduplicator, logger *zap.Logger) *CartEventConsumer {
	return &CartEventConsumer{
		reserver:        reserver,
		mq:              mq,
		dedup:           dedup,
		logger:          logger,
		maxRedeliveries: DefaultMaxRedeliveries,
	}
}

// Run drains deliveries with a pool of workers until the channel closes or
// ctx is cancelled.
func (c *CartEventConsumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery, workers int) {
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					c.HandleDelivery(ctx, d)
				}
			}
		}(i)
	}

	c.logger.Info("👂 Cart event consumer started", zap.Int("workers", workers))
	wg.Wait()
	c.logger.Info("🛑 Cart event consumer stopped")
}

// HandleDelivery never lets a failure escape. The delivery is acked once it
// has been applied, skipped, requeued via republish, or dead-lettered.
func (c *CartEventConsumer) HandleDelivery(ctx context.Context, d amqp.Delivery) {
	ctx = messaging.ExtractTraceContext(ctx, d.Headers)
	ctx, span := otel.Tracer(tracerName).Start(ctx, "consume "+d.RoutingKey, trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.system", "rabbitmq"),
		attribute.String("messaging.message.id", d.MessageId),
		attribute.String("messaging.rabbitmq.destination.routing_key", d.RoutingKey),
	)

	log := c.logger.With(zap.String("message_id", d.MessageId), zap.String("routing_key", d.RoutingKey))
	log.Info("📥 Received cart event")

	held, duplicate := c.claim(ctx, d.MessageId, log)
	if duplicate {
		log.Info("⏭️ Duplicate delivery, skipping")
		c.ack(d, log)
		return
	}

	err := c.process(ctx, d)
	if err == nil {
		c.markProcessed(ctx, d.MessageId, log)
		c.ack(d, log)
		return
	}

	// The republished copy carries the same id and must be able to claim it.
	if held {
		c.release(ctx, d.MessageId, log)
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	attempt := messaging.RedeliveryCount(d.Headers)
	if isPermanent(err) || attempt >= c.maxRedeliveries {
		log.Error("❌ Cart event failed, dead-lettering",
			zap.Error(err),
			zap.Int("redeliveries", attempt),
			zap.Bool("permanent", isPermanent(err)),
		)
		c.settle(ctx, d, c.deadLetter(ctx, d, err), log)
		return
	}

	log.Warn("⚠️ Cart event failed, redelivering",
		zap.Error(err),
		zap.Int("redelivery", attempt+1),
	)
	c.settle(ctx, d, c.redeliver(ctx, d, attempt+1), log)
}

func (c *CartEventConsumer) process(ctx context.Context, d amqp.Delivery) error {
	var env models.Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}

	pattern := env.Pattern
	if pattern == "" {
		pattern = d.RoutingKey
	}
	if pattern != messaging.RoutingKeyCartAdded {
		c.logger.Info("ℹ️ Ignoring cart event", zap.String("pattern", pattern))
		return nil
	}

	var event domain.ItemAddedToCart
	if err := json.Unmarshal(env.Data, &event); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if event.ProductID == uuid.Nil || event.Quantity <= 0 {
		return fmt.Errorf("%w: productId=%s quantity=%d", errMalformed, event.ProductID, event.Quantity)
	}

	return c.reserver.ReserveStock(ctx, event.ProductID, event.Quantity)
}

// isPermanent reports failures that no redelivery can fix.
func isPermanent(err error) bool {
	return errors.Is(err, errMalformed) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrNotFound)
}

func (c *CartEventConsumer) redeliver(ctx context.Context, d amqp.Delivery, count int) error {
	headers := messaging.CopyHeaders(d.Headers)
	headers[messaging.HeaderRedeliveryCount] = int32(count)

	return c.mq.Publish(ctx, "", messaging.QueueCartEvents, republishing(d, headers))
}

func (c *CartEventConsumer) deadLetter(ctx context.Context, d amqp.Delivery, cause error) error {
	headers := messaging.CopyHeaders(d.Headers)
	headers[headerDeadLetterReason] = cause.Error()

	return c.mq.Publish(ctx, "", messaging.QueueCartEventsDLQ, republishing(d, headers))
}

func republishing(d amqp.Delivery, headers amqp.Table) amqp.Publishing {
	return amqp.Publishing{
		Headers:      headers,
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Timestamp:    d.Timestamp,
		Type:         d.Type,
		Body:         d.Body,
	}
}

// settle acks once the copy is safely republished. If the broker refused
// the copy the original is requeued so it is not lost.
func (c *CartEventConsumer) settle(ctx context.Context, d amqp.Delivery, publishErr error, log *zap.Logger) {
	if publishErr != nil {
		log.Error("❌ Failed to republish cart event, requeueing", zap.Error(publishErr))
		if err := d.Nack(false, true); err != nil {
			log.Error("❌ Failed to nack", zap.Error(err))
		}
		return
	}
	c.ack(d, log)
}

func (c *CartEventConsumer) ack(d amqp.Delivery, log *zap.Logger) {
	if err := d.Ack(false); err != nil {
		log.Error("❌ Failed to ack", zap.Error(err))
	}
}

// claim reports whether this worker now holds the message id and whether
// the delivery is a duplicate to skip.
func (c *CartEventConsumer) claim(ctx context.Context, messageID string, log *zap.Logger) (held, duplicate bool) {
	if c.dedup == nil || messageID == "" {
		return false, false
	}
	ok, err := c.dedup.Claim(ctx, messageID)
	if err != nil {
		log.Warn("⚠️ Dedup claim failed, processing anyway", zap.Error(err))
		return false, false
	}
	return ok, !ok
}

func (c *CartEventConsumer) release(ctx context.Context, messageID string, log *zap.Logger) {
	if err := c.dedup.Release(ctx, messageID); err != nil {
		log.Warn("⚠️ Failed to release message claim", zap.Error(err))
	}
}

func (c *CartEventConsumer) markProcessed(ctx context.Context, messageID string, log *zap.Logger) {
	if c.dedup == nil || messageID == "" {
		return
	}
	if err := c.dedup.MarkProcessed(ctx, messageID); err != nil {
		log.Warn("⚠️ Failed to record processed message", zap.Error(err))
	}
}

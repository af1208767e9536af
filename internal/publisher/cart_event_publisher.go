package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/domain"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/models"
)

const tracerName = "github.com/prudhivi99/Distributed-Systems/stocksync/internal/publisher"

// Publisher is the slice of messaging.RabbitMQ the relay needs.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error
}

type CartEventPublisher struct {
	mq     Publisher
	logger *zap.Logger
}

func NewCartEventPublisher(mq Publisher, logger *zap.Logger) *CartEventPublisher {
	return &CartEventPublisher{mq: mq, logger: logger}
}

// RoutingKey maps a domain event to its routing key on cart_events_exchange.
func RoutingKey(event domain.Event) (string, bool) {
	switch event.(type) {
	case domain.ItemAddedToCart, *domain.ItemAddedToCart:
		return messaging.RoutingKeyCartAdded, true
	case domain.CartItemQuantityUpdated, *domain.CartItemQuantityUpdated:
		return messaging.RoutingKeyCartQuantityUpdated, true
	default:
		return "", false
	}
}

// Relay publishes each event in order. Failures are logged and dropped;
// the cart is already saved by the time this runs.
func (p *CartEventPublisher) Relay(ctx context.Context, events []domain.Event) {
	for _, event := range events {
		if err := p.Publish(ctx, event); err != nil {
			p.logger.Error("❌ Failed to relay event",
				zap.String("event", event.EventName()),
				zap.String("event_id", event.ID().String()),
				zap.Error(err),
			)
		}
	}
}

func (p *CartEventPublisher) Publish(ctx context.Context, event domain.Event) error {
	key, ok := RoutingKey(event)
	if !ok {
		return fmt.Errorf("no routing key for event %s", event.EventName())
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "publish "+key, trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.system", "rabbitmq"),
		attribute.String("messaging.destination.name", messaging.ExchangeCartEvents),
		attribute.String("messaging.rabbitmq.destination.routing_key", key),
	)

	body, err := encodeEnvelope(key, event)
	if err != nil {
		span.RecordError(err)
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID().String(),
		Timestamp:    time.Now().UTC(),
		Type:         event.EventName(),
		Headers:      messaging.InjectTraceContext(ctx, nil),
		Body:         body,
	}

	if err := p.mq.Publish(ctx, messaging.ExchangeCartEvents, key, msg); err != nil {
		span.RecordError(err)
		return err
	}

	p.logger.Info("📤 Event published",
		zap.String("routing_key", key),
		zap.String("event_id", event.ID().String()),
	)
	return nil
}

func encodeEnvelope(pattern string, event domain.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	body, err := json.Marshal(models.Envelope{
		Pattern: pattern,
		Data:    data,
		ID:      event.ID().String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return body, nil
}

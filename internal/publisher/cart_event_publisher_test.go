package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap/zaptest"

	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/domain"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/models"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type mockPublisher struct {
	mu      sync.Mutex
	sent    []published
	failKey string
}

func (m *mockPublisher) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if routingKey == m.failKey {
		return errors.New("channel closed")
	}
	m.sent = append(m.sent, published{exchange: exchange, key: routingKey, msg: msg})
	return nil
}

func TestRelay_RoutesAndEncodes(t *testing.T) {
	mq := &mockPublisher{}
	p := NewCartEventPublisher(mq, zaptest.NewLogger(t))

	added := domain.ItemAddedToCart{
		EventID:    uuid.New(),
		CartID:     uuid.New(),
		ProductID:  uuid.New(),
		Quantity:   2,
		OccurredAt: time.Now().UTC(),
	}
	updated := domain.CartItemQuantityUpdated{
		EventID:            uuid.New(),
		CartID:             added.CartID,
		ProductID:          added.ProductID,
		PreviousQuantity:   2,
		NewQuantity:        5,
		QuantityDifference: 3,
	}

	p.Relay(context.Background(), []domain.Event{added, updated})

	if len(mq.sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(mq.sent))
	}
	if mq.sent[0].key != messaging.RoutingKeyCartAdded || mq.sent[1].key != messaging.RoutingKeyCartQuantityUpdated {
		t.Errorf("unexpected routing keys: %s, %s", mq.sent[0].key, mq.sent[1].key)
	}

	first := mq.sent[0]
	if first.exchange != messaging.ExchangeCartEvents {
		t.Errorf("expected exchange %s, got %s", messaging.ExchangeCartEvents, first.exchange)
	}
	if first.msg.MessageId != added.EventID.String() {
		t.Errorf("expected message id %s, got %s", added.EventID, first.msg.MessageId)
	}

	var env models.Envelope
	if err := json.Unmarshal(first.msg.Body, &env); err != nil {
		t.Fatalf("bad envelope: %v", err)
	}
	if env.Pattern != messaging.RoutingKeyCartAdded || env.ID != added.EventID.String() {
		t.Errorf("unexpected envelope: %+v", env)
	}

	var data struct {
		CartID    uuid.UUID `json:"cartId"`
		ProductID uuid.UUID `json:"productId"`
		Quantity  int       `json:"quantity"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("bad data: %v", err)
	}
	if data.ProductID != added.ProductID || data.Quantity != 2 || data.CartID != added.CartID {
		t.Errorf("unexpected data: %+v", data)
	}
}

func TestRelay_AbsorbsFailures(t *testing.T) {
	mq := &mockPublisher{failKey: messaging.RoutingKeyCartAdded}
	p := NewCartEventPublisher(mq, zaptest.NewLogger(t))

	p.Relay(context.Background(), []domain.Event{
		domain.ItemAddedToCart{EventID: uuid.New()},
		domain.CartItemQuantityUpdated{EventID: uuid.New()},
	})

	if len(mq.sent) != 1 || mq.sent[0].key != messaging.RoutingKeyCartQuantityUpdated {
		t.Errorf("expected the second event to still be published, got %+v", mq.sent)
	}
}

type unknownEvent struct{}

func (unknownEvent) EventName() string { return "Unknown" }
func (unknownEvent) ID() uuid.UUID     { return uuid.Nil }

func TestPublish_UnknownEvent(t *testing.T) {
	p := NewCartEventPublisher(&mockPublisher{}, zaptest.NewLogger(t))

	if err := p.Publish(context.Background(), unknownEvent{}); err == nil {
		t.Error("expected error for unmapped event")
	}
}

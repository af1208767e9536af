package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap/zaptest"

	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/domain"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/models"
)

// Mock Acknowledger records how each delivery was settled
type mockAck struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue bool
}

func (m *mockAck) Ack(tag uint64, multiple bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acks++
	return nil
}

func (m *mockAck) Nack(tag uint64, multiple, requeue bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nacks++
	m.requeue = requeue
	return nil
}

func (m *mockAck) Reject(tag uint64, requeue bool) error {
	return m.Nack(tag, false, requeue)
}

type reservation struct {
	productID uuid.UUID
	quantity  int
}

type mockReserver struct {
	mu    sync.Mutex
	calls []reservation
	err   error
}

func (m *mockReserver) ReserveStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, reservation{productID, quantity})
	return m.err
}

type sentMessage struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type mockPublisher struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (m *mockPublisher) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMessage{exchange, routingKey, msg})
	return nil
}

type mockDedup struct {
	mu       sync.Mutex
	seen     map[string]bool
	claimed  map[string]bool
	releases int
}

func newMockDedup() *mockDedup {
	return &mockDedup{seen: make(map[string]bool), claimed: make(map[string]bool)}
}

func (m *mockDedup) Claim(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[id] || m.claimed[id] {
		return false, nil
	}
	m.claimed[id] = true
	return true, nil
}

func (m *mockDedup) MarkProcessed(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[id] = true
	delete(m.claimed, id)
	return nil
}

func (m *mockDedup) Release(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releases++
	delete(m.claimed, id)
	return nil
}

// Reserver that parks every call until release is closed
type blockingReserver struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (b *blockingReserver) ReserveStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	b.calls.Add(1)
	b.entered <- struct{}{}
	<-b.release
	return nil
}

func cartAddedDelivery(t *testing.T, ack amqp.Acknowledger, productID uuid.UUID, quantity int, headers amqp.Table) amqp.Delivery {
	t.Helper()
	data, _ := json.Marshal(domain.ItemAddedToCart{
		CartID:     uuid.New(),
		ProductID:  productID,
		Quantity:   quantity,
		OccurredAt: time.Now().UTC(),
	})
	body, _ := json.Marshal(models.Envelope{Pattern: messaging.RoutingKeyCartAdded, Data: data})
	return amqp.Delivery{
		Acknowledger: ack,
		Headers:      headers,
		Exchange:     messaging.ExchangeCartEvents,
		RoutingKey:   messaging.RoutingKeyCartAdded,
		MessageId:    uuid.NewString(),
		Body:         body,
	}
}

func newTestConsumer(t *testing.T, reserver *mockReserver, mq *mockPublisher, dedup Deduplicator) *CartEventConsumer {
	return NewCartEventConsumer(reserver, mq, dedup, zaptest.NewLogger(t))
}

func TestHandleDelivery_ReservesStock(t *testing.T) {
	reserver := &mockReserver{}
	mq := &mockPublisher{}
	ack := &mockAck{}
	c := newTestConsumer(t, reserver, mq, nil)
	productID := uuid.New()

	c.HandleDelivery(context.Background(), cartAddedDelivery(t, ack, productID, 3, nil))

	if len(reserver.calls) != 1 || reserver.calls[0] != (reservation{productID, 3}) {
		t.Errorf("unexpected reservations: %+v", reserver.calls)
	}
	if ack.acks != 1 || ack.nacks != 0 {
		t.Errorf("expected a single ack, got acks=%d nacks=%d", ack.acks, ack.nacks)
	}
	if len(mq.sent) != 0 {
		t.Errorf("expected nothing republished, got %d", len(mq.sent))
	}
}

func TestHandleDelivery_IgnoresOtherPatterns(t *testing.T) {
	reserver := &mockReserver{}
	ack := &mockAck{}
	c := newTestConsumer(t, reserver, &mockPublisher{}, nil)

	body, _ := json.Marshal(models.Envelope{Pattern: messaging.RoutingKeyCartQuantityUpdated, Data: json.RawMessage(`{}`)})
	c.HandleDelivery(context.Background(), amqp.Delivery{
		Acknowledger: ack,
		RoutingKey:   messaging.RoutingKeyCartQuantityUpdated,
		Body:         body,
	})

	if len(reserver.calls) != 0 {
		t.Error("expected no reservation")
	}
	if ack.acks != 1 {
		t.Errorf("expected ack, got %d", ack.acks)
	}
}

func TestHandleDelivery_MalformedGoesToDLQ(t *testing.T) {
	mq := &mockPublisher{}
	ack := &mockAck{}
	c := newTestConsumer(t, &mockReserver{}, mq, nil)

	c.HandleDelivery(context.Background(), amqp.Delivery{
		Acknowledger: ack,
		RoutingKey:   messaging.RoutingKeyCartAdded,
		MessageId:    "bad-1",
		Body:         []byte("{not json"),
	})

	if len(mq.sent) != 1 || mq.sent[0].key != messaging.QueueCartEventsDLQ || mq.sent[0].exchange != "" {
		t.Fatalf("expected one DLQ publish, got %+v", mq.sent)
	}
	if mq.sent[0].msg.MessageId != "bad-1" {
		t.Errorf("expected message id preserved, got %s", mq.sent[0].msg.MessageId)
	}
	if ack.acks != 1 {
		t.Errorf("expected original acked, got %d", ack.acks)
	}
}

func TestHandleDelivery_PermanentErrorsDeadLetter(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not found", domain.ErrProductNotFound},
		{"insufficient stock", domain.ErrInsufficientStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mq := &mockPublisher{}
			ack := &mockAck{}
			c := newTestConsumer(t, &mockReserver{err: tt.err}, mq, nil)

			c.HandleDelivery(context.Background(), cartAddedDelivery(t, ack, uuid.New(), 1, nil))

			if len(mq.sent) != 1 || mq.sent[0].key != messaging.QueueCartEventsDLQ {
				t.Fatalf("expected DLQ publish, got %+v", mq.sent)
			}
			if reason, _ := mq.sent[0].msg.Headers[headerDeadLetterReason].(string); reason == "" {
				t.Error("expected dead-letter reason header")
			}
			if ack.acks != 1 {
				t.Errorf("expected ack, got %d", ack.acks)
			}
		})
	}
}

func TestHandleDelivery_TransientErrorRedelivers(t *testing.T) {
	mq := &mockPublisher{}
	ack := &mockAck{}
	productID := uuid.New()
	reserver := &mockReserver{err: &domain.StockReservationError{ProductID: productID, Attempts: 3}}
	c := newTestConsumer(t, reserver, mq, nil)

	c.HandleDelivery(context.Background(), cartAddedDelivery(t, ack, productID, 1, amqp.Table{messaging.HeaderRedeliveryCount: int32(1)}))

	if len(mq.sent) != 1 {
		t.Fatalf("expected one republish, got %d", len(mq.sent))
	}
	sent := mq.sent[0]
	if sent.exchange != "" || sent.key != messaging.QueueCartEvents {
		t.Errorf("expected republish straight to the work queue, got %q/%s", sent.exchange, sent.key)
	}
	if got := messaging.RedeliveryCount(sent.msg.Headers); got != 2 {
		t.Errorf("expected redelivery count 2, got %d", got)
	}
	if ack.acks != 1 {
		t.Errorf("expected ack, got %d", ack.acks)
	}
}

func TestHandleDelivery_ExhaustedRedeliveriesDeadLetter(t *testing.T) {
	mq := &mockPublisher{}
	ack := &mockAck{}
	c := newTestConsumer(t, &mockReserver{err: errors.New("db down")}, mq, nil)

	headers := amqp.Table{messaging.HeaderRedeliveryCount: int32(DefaultMaxRedeliveries)}
	c.HandleDelivery(context.Background(), cartAddedDelivery(t, ack, uuid.New(), 1, headers))

	if len(mq.sent) != 1 || mq.sent[0].key != messaging.QueueCartEventsDLQ {
		t.Fatalf("expected DLQ publish, got %+v", mq.sent)
	}
}

func TestHandleDelivery_RepublishFailureRequeues(t *testing.T) {
	mq := &mockPublisher{err: errors.New("channel closed")}
	ack := &mockAck{}
	c := newTestConsumer(t, &mockReserver{err: errors.New("db down")}, mq, nil)

	c.HandleDelivery(context.Background(), cartAddedDelivery(t, ack, uuid.New(), 1, nil))

	if ack.acks != 0 || ack.nacks != 1 || !ack.requeue {
		t.Errorf("expected nack with requeue, got acks=%d nacks=%d requeue=%v", ack.acks, ack.nacks, ack.requeue)
	}
}

func TestHandleDelivery_Deduplicates(t *testing.T) {
	reserver := &mockReserver{}
	dedup := newMockDedup()
	c := newTestConsumer(t, reserver, &mockPublisher{}, dedup)
	ack := &mockAck{}

	d := cartAddedDelivery(t, ack, uuid.New(), 2, nil)
	c.HandleDelivery(context.Background(), d)
	c.HandleDelivery(context.Background(), d)

	if len(reserver.calls) != 1 {
		t.Errorf("expected one reservation, got %d", len(reserver.calls))
	}
	if ack.acks != 2 {
		t.Errorf("expected both deliveries acked, got %d", ack.acks)
	}
}

func TestHandleDelivery_FailureNotMarkedProcessed(t *testing.T) {
	dedup := newMockDedup()
	mq := &mockPublisher{}
	c := newTestConsumer(t, &mockReserver{err: errors.New("db down")}, mq, dedup)

	d := cartAddedDelivery(t, &mockAck{}, uuid.New(), 2, nil)
	c.HandleDelivery(context.Background(), d)

	if dedup.seen[d.MessageId] {
		t.Error("failed delivery must not be marked processed")
	}
	if dedup.claimed[d.MessageId] || dedup.releases != 1 {
		t.Errorf("expected claim released, claimed=%v releases=%d", dedup.claimed[d.MessageId], dedup.releases)
	}

	// The republished copy is applied once the store recovers
	c.reserver = &mockReserver{}
	copyAck := &mockAck{}
	redelivered := mq.sent[0].msg
	c.HandleDelivery(context.Background(), amqp.Delivery{
		Acknowledger: copyAck,
		Headers:      redelivered.Headers,
		RoutingKey:   messaging.QueueCartEvents,
		MessageId:    redelivered.MessageId,
		Body:         redelivered.Body,
	})
	if !dedup.seen[d.MessageId] || copyAck.acks != 1 {
		t.Errorf("expected redelivered copy applied, seen=%v acks=%d", dedup.seen[d.MessageId], copyAck.acks)
	}
}

func TestRun_ConcurrentDuplicatesReserveOnce(t *testing.T) {
	reserver := &blockingReserver{
		entered: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	c := NewCartEventConsumer(reserver, &mockPublisher{}, newMockDedup(), zaptest.NewLogger(t))

	var acked atomic.Int32
	d := cartAddedDelivery(t, &countingAck{n: &acked}, uuid.New(), 1, nil)

	deliveries := make(chan amqp.Delivery, 2)
	deliveries <- d
	deliveries <- d
	close(deliveries)

	done := make(chan struct{})
	go func() {
		c.Run(context.Background(), deliveries, 2)
		close(done)
	}()

	select {
	case <-reserver.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("no worker reached ReserveStock")
	}

	// The copy must be skipped while the first worker is still reserving
	deadline := time.After(2 * time.Second)
	for acked.Load() < 1 {
		select {
		case <-reserver.entered:
			t.Fatal("duplicate delivery reached ReserveStock concurrently")
		case <-deadline:
			t.Fatal("duplicate delivery was not acked")
		case <-time.After(10 * time.Millisecond):
		}
	}

	close(reserver.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not finish")
	}

	if got := reserver.calls.Load(); got != 1 {
		t.Errorf("expected 1 reservation, got %d", got)
	}
	if acked.Load() != 2 {
		t.Errorf("expected both deliveries acked, got %d", acked.Load())
	}
}

func TestRun_WorkerPoolDrainsChannel(t *testing.T) {
	reserver := &mockReserver{}
	c := newTestConsumer(t, reserver, &mockPublisher{}, nil)

	var acked atomic.Int32
	ack := &countingAck{n: &acked}

	deliveries := make(chan amqp.Delivery, 50)
	for i := 0; i < 50; i++ {
		deliveries <- cartAddedDelivery(t, ack, uuid.New(), 1, nil)
	}
	close(deliveries)

	c.Run(context.Background(), deliveries, 4)

	if len(reserver.calls) != 50 {
		t.Errorf("expected 50 reservations, got %d", len(reserver.calls))
	}
	if acked.Load() != 50 {
		t.Errorf("expected 50 acks, got %d", acked.Load())
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	c := newTestConsumer(t, &mockReserver{}, &mockPublisher{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Run(ctx, make(chan amqp.Delivery), 2)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type countingAck struct {
	n *atomic.Int32
}

func (a *countingAck) Ack(uint64, bool) error {
	a.n.Add(1)
	return nil
}

func (a *countingAck) Nack(uint64, bool, bool) error { return nil }
func (a *countingAck) Reject(uint64, bool) error     { return nil }

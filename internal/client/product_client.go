package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/domain"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/models"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/rpc"
)

var ErrTimeout = errors.New("product service did not reply in time")

type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error
}

// ProductClient calls product-service over product_queue using direct
// reply-to. Listen must be running for calls to complete.
type ProductClient struct {
	mq      Publisher
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]chan models.Reply
}

func NewProductClient(mq Publisher, timeout time.Duration, logger *zap.Logger) *ProductClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ProductClient{
		mq:      mq,
		timeout: timeout,
		logger:  logger,
		pending: make(map[string]chan models.Reply),
	}
}

// Listen routes replies to waiting callers until replies closes or ctx is done.
func (c *ProductClient) Listen(ctx context.Context, replies <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-replies:
			if !ok {
				return
			}
			c.deliver(d)
		}
	}
}

func (c *ProductClient) deliver(d amqp.Delivery) {
	var reply models.Reply
	if err := json.Unmarshal(d.Body, &reply); err != nil {
		c.logger.Error("❌ Failed to decode reply", zap.String("correlation_id", d.CorrelationId), zap.Error(err))
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[d.CorrelationId]
	delete(c.pending, d.CorrelationId)
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("⚠️ Reply for unknown or expired request", zap.String("correlation_id", d.CorrelationId))
		return
	}
	ch <- reply
}

// Call sends one request and decodes the response into out.
func (c *ProductClient) Call(ctx context.Context, pattern string, data, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	correlationID := uuid.NewString()
	body, err := json.Marshal(models.Envelope{Pattern: pattern, Data: raw, ID: correlationID})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	ch := make(chan models.Reply, 1)
	c.mu.Lock()
	c.pending[correlationID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, correlationID)
		c.mu.Unlock()
	}()

	msg := amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		ReplyTo:       messaging.DirectReplyTo,
		Headers:       messaging.InjectTraceContext(ctx, nil),
		Body:          body,
	}
	if err := c.mq.Publish(ctx, "", messaging.QueueProductRPC, msg); err != nil {
		return fmt.Errorf("failed to call product service: %w", err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %v", ErrTimeout, pattern, ctx.Err())
	case reply := <-ch:
		if reply.Err != nil {
			return rpc.ErrorFromReply(reply.Err)
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(reply.Response, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}
}

// GetProductDetailsWithStock implements service.ProductCatalog.
func (c *ProductClient) GetProductDetailsWithStock(ctx context.Context, productID uuid.UUID, requiredQuantity int) (*models.ProductDetailsWithStock, error) {
	req := models.GetProductDetailsWithStockRequest{ProductID: productID, RequiredQuantity: requiredQuantity}

	var resp models.ProductDetailsWithStock
	if err := c.Call(ctx, models.PatternGetProductDetailsWithStock, req, &resp); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
		}
		return nil, err
	}
	return &resp, nil
}

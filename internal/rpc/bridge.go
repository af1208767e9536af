package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

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

const tracerName = "github.com/prudhivi99/Distributed-Systems/stocksync/internal/rpc"

var (
	ErrUnsupportedPattern = errors.New("unsupported pattern")
	ErrBadEnvelope        = errors.New("malformed envelope")
)

type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error
}

// route decodes a pattern's data and runs its handler.
type route func(ctx context.Context, data json.RawMessage) (any, error)

// Bridge turns messages on a request queue into calls and sends the result
// back to the caller's ReplyTo queue. It has no timeout of its own; a
// handler that never returns stalls that correlation.
type Bridge struct {
	mu     sync.RWMutex
	routes map[string]route
	mq     Publisher
	logger *zap.Logger
}

func NewBridge(mq Publisher, logger *zap.Logger) *Bridge {
	return &Bridge{
		routes: make(map[string]route),
		mq:     mq,
		logger: logger,
	}
}

// Handle registers h for pattern. Registering a pattern twice replaces it.
func Handle[Req, Resp any](b *Bridge, pattern string, h func(ctx context.Context, req Req) (Resp, error)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.routes[pattern] = func(ctx context.Context, data json.RawMessage) (any, error) {
		var req Req
		if len(data) > 0 {
			if err := json.Unmarshal(data, &req); err != nil {
				return nil, fmt.Errorf("%w: bad data for %s: %v", domain.ErrValidation, pattern, err)
			}
		}
		return h(ctx, req)
	}
}

func (b *Bridge) Patterns() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.routes))
	for p := range b.routes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Dispatch runs the handler registered for env.Pattern.
func (b *Bridge) Dispatch(ctx context.Context, env models.Envelope) (any, error) {
	b.mu.RLock()
	r, ok := b.routes[env.Pattern]
	b.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPattern, env.Pattern)
	}
	return r(ctx, env.Data)
}

// Serve consumes requests with a pool of workers until deliveries closes or
// ctx is cancelled.
func (b *Bridge) Serve(ctx context.Context, deliveries <-chan amqp.Delivery, workers int) {
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					b.HandleDelivery(ctx, d)
				}
			}
		}()
	}

	b.logger.Info("👂 RPC bridge serving", zap.Strings("patterns", b.Patterns()), zap.Int("workers", workers))
	wg.Wait()
}

// HandleDelivery dispatches one request, replies, then acks.
func (b *Bridge) HandleDelivery(ctx context.Context, d amqp.Delivery) {
	ctx = messaging.ExtractTraceContext(ctx, d.Headers)

	var env models.Envelope
	var result any
	err := json.Unmarshal(d.Body, &env)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "rpc "+env.Pattern, trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		attribute.String("rpc.system", "rabbitmq"),
		attribute.String("rpc.method", env.Pattern),
		attribute.String("messaging.message.conversation_id", d.CorrelationId),
	)

	if err == nil {
		result, err = b.Dispatch(ctx, env)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.logger.Warn("⚠️ RPC request failed",
			zap.String("pattern", env.Pattern),
			zap.String("correlation_id", d.CorrelationId),
			zap.String("code", ErrorCode(err)),
			zap.Error(err),
		)
	}

	b.reply(ctx, d, replyID(env, d), result, err)
	span.End()

	if ackErr := d.Ack(false); ackErr != nil {
		b.logger.Error("❌ Failed to ack request", zap.Error(ackErr))
	}
}

func (b *Bridge) reply(ctx context.Context, d amqp.Delivery, id string, result any, err error) {
	if d.ReplyTo == "" {
		b.logger.Warn("⚠️ Request without reply_to, dropping result", zap.String("id", id))
		return
	}

	body, encErr := EncodeReply(id, result, err)
	if encErr != nil {
		b.logger.Error("❌ Failed to encode reply", zap.Error(encErr))
		body, _ = EncodeReply(id, nil, encErr)
	}

	msg := amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: d.CorrelationId,
		Headers:       messaging.InjectTraceContext(ctx, nil),
		Body:          body,
	}
	if pubErr := b.mq.Publish(ctx, "", d.ReplyTo, msg); pubErr != nil {
		b.logger.Error("❌ Failed to send reply",
			zap.String("reply_to", d.ReplyTo),
			zap.String("correlation_id", d.CorrelationId),
			zap.Error(pubErr),
		)
	}
}

func replyID(env models.Envelope, d amqp.Delivery) string {
	if env.ID != "" {
		return env.ID
	}
	return d.CorrelationId
}

// EncodeReply builds the {id, response | err, isDisposed} reply body.
func EncodeReply(id string, result any, err error) ([]byte, error) {
	reply := models.Reply{ID: id, IsDisposed: true}
	if err != nil {
		reply.Err = &models.ReplyError{Code: ErrorCode(err), Message: err.Error()}
	} else {
		raw, mErr := json.Marshal(result)
		if mErr != nil {
			return nil, fmt.Errorf("failed to marshal response: %w", mErr)
		}
		reply.Response = raw
	}
	return json.Marshal(reply)
}

// ErrorCode classifies err for the wire.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedPattern):
		return models.ErrCodeUnsupportedPattern
	case errors.Is(err, ErrBadEnvelope):
		return models.ErrCodeBadEnvelope
	case errors.Is(err, domain.ErrNotFound):
		return models.ErrCodeNotFound
	case errors.Is(err, domain.ErrValidation):
		return models.ErrCodeValidation
	case errors.Is(err, domain.ErrReservationFailed):
		return models.ErrCodeReservationFailed
	default:
		return models.ErrCodeInternal
	}
}

// ErrorFromReply turns a wire error back into one that matches the same
// sentinel with errors.Is.
func ErrorFromReply(e *models.ReplyError) error {
	if e == nil {
		return nil
	}
	var base error
	switch e.Code {
	case models.ErrCodeUnsupportedPattern:
		base = ErrUnsupportedPattern
	case models.ErrCodeBadEnvelope:
		base = ErrBadEnvelope
	case models.ErrCodeNotFound:
		base = domain.ErrNotFound
	case models.ErrCodeValidation:
		base = domain.ErrValidation
	case models.ErrCodeReservationFailed:
		base = domain.ErrReservationFailed
	default:
		return fmt.Errorf("remote error %s: %s", e.Code, e.Message)
	}
	return &RemoteError{Code: e.Code, Message: e.Message, base: base}
}

type RemoteError struct {
	Code    string
	Message string
	base    error
}

func (e *RemoteError) Error() string { return e.Message }
func (e *RemoteError) Unwrap() error { return e.base }

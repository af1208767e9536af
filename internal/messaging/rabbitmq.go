package messaging

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Topology shared by cart-service and product-service.
const (
	ExchangeCartEvents = "cart_events_exchange"
	QueueCartEvents    = "cart_events_queue"
	QueueCartEventsDLQ = "cart_events_queue.dlq"
	CartRoutingPattern = "cart.*"

	RoutingKeyCartAdded           = "cart.added"
	RoutingKeyCartQuantityUpdated = "cart.quantity.updated"

	QueueProductRPC = "product_queue"
	DirectReplyTo   = "amq.rabbitmq.reply-to"
)

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *zap.Logger
}

func NewRabbitMQ(host string, port int, user, password string, logger *zap.Logger) (*RabbitMQ, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d/", user, password, host, port)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	logger.Info("✅ Connected to RabbitMQ", zap.String("host", host), zap.Int("port", port))

	return &RabbitMQ{
		conn:    conn,
		channel: channel,
		logger:  logger,
	}, nil
}

// DeclareExchange creates a durable topic exchange if it doesn't exist
func (r *RabbitMQ) DeclareExchange(name string) error {
	err := r.channel.ExchangeDeclare(
		name,    // exchange name
		"topic", // kind
		true,    // durable
		false,   // auto-delete
		false,   // internal
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", name, err)
	}

	r.logger.Info("✅ Exchange declared", zap.String("exchange", name))
	return nil
}

// DeclareQueue creates a durable queue if it doesn't exist
func (r *RabbitMQ) DeclareQueue(name string) error {
	_, err := r.channel.QueueDeclare(
		name,  // queue name
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}

	r.logger.Info("✅ Queue declared", zap.String("queue", name))
	return nil
}

func (r *RabbitMQ) BindQueue(queue, routingKey, exchange string) error {
	if err := r.channel.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind %s to %s (%s): %w", queue, exchange, routingKey, err)
	}

	r.logger.Info("✅ Queue bound",
		zap.String("queue", queue),
		zap.String("exchange", exchange),
		zap.String("routing_key", routingKey),
	)
	return nil
}

// Qos caps unacknowledged deliveries per consumer on this channel.
func (r *RabbitMQ) Qos(prefetch int) error {
	if err := r.channel.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}
	return nil
}

// Publish sends a message to an exchange. An empty exchange routes by queue name.
func (r *RabbitMQ) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	if msg.ContentType == "" {
		msg.ContentType = "application/json"
	}

	err := r.channel.PublishWithContext(ctx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	r.logger.Debug("📤 Message published",
		zap.String("exchange", exchange),
		zap.String("routing_key", routingKey),
		zap.String("message_id", msg.MessageId),
	)
	return nil
}

// Consume receives messages from a queue with manual acknowledgement
func (r *RabbitMQ) Consume(queue string) (<-chan amqp.Delivery, error) {
	return r.consume(queue, false)
}

// ConsumeReplies listens on the direct reply-to pseudo queue. It must be
// called before publishing any request that names it as ReplyTo.
func (r *RabbitMQ) ConsumeReplies() (<-chan amqp.Delivery, error) {
	return r.consume(DirectReplyTo, true)
}

func (r *RabbitMQ) consume(queue string, autoAck bool) (<-chan amqp.Delivery, error) {
	messages, err := r.channel.Consume(
		queue,   // queue name
		"",      // consumer tag
		autoAck, // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	r.logger.Info("👂 Listening on queue", zap.String("queue", queue))
	return messages, nil
}

// SetupCartEventTopology declares the exchange, the work queue with its
// binding and the dead-letter queue.
func (r *RabbitMQ) SetupCartEventTopology() error {
	if err := r.DeclareExchange(ExchangeCartEvents); err != nil {
		return err
	}
	if err := r.DeclareQueue(QueueCartEvents); err != nil {
		return err
	}
	if err := r.BindQueue(QueueCartEvents, CartRoutingPattern, ExchangeCartEvents); err != nil {
		return err
	}
	return r.DeclareQueue(QueueCartEventsDLQ)
}

// Close closes the connection
func (r *RabbitMQ) Close() {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}
}

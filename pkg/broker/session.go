// Package broker wraps the AMQP client used by workers, the database
// manager and the control tool. Each Session owns one connection and one
// channel and must not be shared between goroutines.
package broker

import (
	"context"
	"fmt"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/utils"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Delivery is a message received from a queue. It is acknowledged through
// its Ack, Reject and Nack methods.
type Delivery = amqp.Delivery

type Session interface {
	// Declare a queue. Durable queues survive broker restarts; other queues
	// are deleted by the broker once their last consumer goes away.
	DeclareQueue(name string, durable bool) error

	// Declare a fanout exchange.
	DeclareFanout(exchange string) error

	// Bind a queue to an exchange.
	BindQueue(queue, exchange string) error

	// Limit the number of unacknowledged deliveries.
	Qos(prefetch int) error

	// Publish a persistent text message. An empty exchange routes to the
	// queue named by key.
	Publish(ctx context.Context, exchange, key string, body []byte) error

	// Consume deliveries from a queue with manual acknowledgements. The
	// channel is closed when the session is closed or lost.
	Consume(queue, tag string) (<-chan Delivery, error)

	// Delete a queue.
	DeleteQueue(name string) error

	Close() error
}

// Dialer opens a new session.
type Dialer func(ctx context.Context) (Session, error)

type session struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial opens a connection and a channel. It makes a single attempt.
func Dial(opts *Options) (Session, error) {
	conn, err := amqp.DialConfig(opts.URI(), amqp.Config{
		Heartbeat: opts.Heartbeat,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &session{conn: conn, ch: ch}, nil
}

// NewDialer returns a Dialer that retries forever with the configured
// fixed delay until the broker accepts the connection or ctx ends.
func NewDialer(opts *Options) Dialer {
	return func(ctx context.Context) (Session, error) {
		var s Session
		err := utils.RetryForever(ctx, fmt.Sprintf("Connecting to %s", opts.Redacted()), opts.ReconnectDelay, func() error {
			var err error
			s, err = Dial(opts)
			return err
		})
		if err != nil {
			return nil, err
		}
		log.Debug("Connected to broker", opts.Redacted())
		return s, nil
	}
}

func (s *session) DeclareQueue(name string, durable bool) error {
	_, err := s.ch.QueueDeclare(name, durable, !durable, false, false, nil)
	return err
}

func (s *session) DeclareFanout(exchange string) error {
	return s.ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil)
}

func (s *session) BindQueue(queue, exchange string) error {
	return s.ch.QueueBind(queue, "", exchange, false, nil)
}

func (s *session) Qos(prefetch int) error {
	return s.ch.Qos(prefetch, 0, false)
}

func (s *session) Publish(ctx context.Context, exchange, key string, body []byte) error {
	return s.ch.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (s *session) Consume(queue, tag string) (<-chan Delivery, error) {
	return s.ch.Consume(queue, tag, false, false, false, false, nil)
}

func (s *session) DeleteQueue(name string) error {
	_, err := s.ch.QueueDelete(name, false, false, false)
	return err
}

func (s *session) Close() error {
	chErr := s.ch.Close()
	connErr := s.conn.Close()
	if connErr != nil && connErr != amqp.ErrClosed {
		return connErr
	}
	if chErr != nil && chErr != amqp.ErrClosed {
		return chErr
	}
	return nil
}

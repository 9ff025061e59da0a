// Package brokertest provides an in-memory broker implementing the
// broker.Session contract, for tests.
package brokertest

import (
	"context"
	"errors"
	"sync"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/broker"
	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrClosed = errors.New("session closed")

// Outcome of a delivery.
type Outcome struct {
	Queue   string
	Body    string
	Acked   bool
	Requeue bool
}

type queue struct {
	name    string
	durable bool
	ch      chan amqp.Delivery
}

type inflight struct {
	queue string
	body  []byte
}

// Broker is a set of queues and fanout exchanges shared by all sessions
// dialed from it. Publishing to an undeclared queue creates it.
type Broker struct {
	mu        sync.Mutex
	queues    map[string]*queue
	bindings  map[string][]string
	inflight  map[uint64]inflight
	outcomes  []Outcome
	deleted   []string
	nextTag   uint64
	sessions  int
	open      int
	failDials int
	failPubs  int
}

func New() *Broker {
	return &Broker{
		queues:   map[string]*queue{},
		bindings: map[string][]string{},
		inflight: map[uint64]inflight{},
	}
}

// FailDials makes the next n dial attempts fail.
func (b *Broker) FailDials(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failDials = n
}

// FailPublishes makes the next n publications fail.
func (b *Broker) FailPublishes(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failPubs = n
}

// Sessions returns the number of sessions dialed so far.
func (b *Broker) Sessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions
}

// Dialer returns a broker.Dialer connecting to b.
func (b *Broker) Dialer() broker.Dialer {
	return func(ctx context.Context) (broker.Session, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.failDials > 0 {
			b.failDials--
			return nil, errors.New("connection refused")
		}
		b.sessions++
		b.open++
		return &session{broker: b}, nil
	}
}

func (b *Broker) queue(name string) *queue {
	q, ok := b.queues[name]
	if !ok {
		q = &queue{name: name, ch: make(chan amqp.Delivery, 1024)}
		b.queues[name] = q
	}
	return q
}

func (b *Broker) deliver(q *queue, body []byte, redelivered bool) {
	b.nextTag++
	tag := b.nextTag
	b.inflight[tag] = inflight{queue: q.name, body: body}
	q.ch <- amqp.Delivery{
		Acknowledger: b,
		DeliveryTag:  tag,
		Body:         body,
		Redelivered:  redelivered,
	}
}

// Publish enqueues body on the named queue.
func (b *Broker) Publish(queue string, body []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliver(b.queue(queue), body, false)
}

// PublishExchange copies body to every queue bound to exchange.
func (b *Broker) PublishExchange(exchange string, body []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, name := range b.bindings[exchange] {
		if q, ok := b.queues[name]; ok {
			b.deliver(q, body, false)
		}
	}
}

// Pending returns the bodies waiting in a queue without consuming them.
func (b *Broker) Pending(name string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		return nil
	}
	var bodies []string
	n := len(q.ch)
	for i := 0; i < n; i++ {
		d := <-q.ch
		bodies = append(bodies, string(d.Body))
		q.ch <- d
	}
	return bodies
}

// Drain removes and returns everything waiting in a queue.
func (b *Broker) Drain(name string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		return nil
	}
	var bodies []string
	for {
		select {
		case d := <-q.ch:
			delete(b.inflight, d.DeliveryTag)
			bodies = append(bodies, string(d.Body))
		default:
			return bodies
		}
	}
}

func (b *Broker) Outcomes() []Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Outcome(nil), b.outcomes...)
}

func (b *Broker) HasQueue(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.queues[name]
	return ok
}

// Bound reports whether queue is bound to exchange.
func (b *Broker) Bound(exchange, queue string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, name := range b.bindings[exchange] {
		if name == queue {
			return true
		}
	}
	return false
}

func (b *Broker) Deleted() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.deleted...)
}

// OpenSessions returns the number of sessions not yet closed.
func (b *Broker) OpenSessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

func (b *Broker) settle(tag uint64, acked, requeue bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg, ok := b.inflight[tag]
	if !ok {
		return errors.New("unknown delivery tag")
	}
	delete(b.inflight, tag)
	b.outcomes = append(b.outcomes, Outcome{Queue: msg.queue, Body: string(msg.body), Acked: acked, Requeue: requeue})
	if requeue {
		if q, ok := b.queues[msg.queue]; ok {
			b.deliver(q, msg.body, true)
		}
	}
	return nil
}

func (b *Broker) Ack(tag uint64, multiple bool) error {
	return b.settle(tag, true, false)
}

func (b *Broker) Nack(tag uint64, multiple, requeue bool) error {
	return b.settle(tag, false, requeue)
}

func (b *Broker) Reject(tag uint64, requeue bool) error {
	return b.settle(tag, false, requeue)
}

type session struct {
	broker *Broker
	closed bool
}

func (s *session) check() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *session) DeclareQueue(name string, durable bool) error {
	if err := s.check(); err != nil {
		return err
	}
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	s.broker.queue(name).durable = durable
	return nil
}

func (s *session) DeclareFanout(exchange string) error {
	if err := s.check(); err != nil {
		return err
	}
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	if _, ok := s.broker.bindings[exchange]; !ok {
		s.broker.bindings[exchange] = nil
	}
	return nil
}

func (s *session) BindQueue(queue, exchange string) error {
	if err := s.check(); err != nil {
		return err
	}
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	s.broker.bindings[exchange] = append(s.broker.bindings[exchange], queue)
	return nil
}

func (s *session) Qos(prefetch int) error {
	return s.check()
}

func (s *session) Publish(ctx context.Context, exchange, key string, body []byte) error {
	if err := s.check(); err != nil {
		return err
	}
	s.broker.mu.Lock()
	if s.broker.failPubs > 0 {
		s.broker.failPubs--
		s.broker.mu.Unlock()
		return errors.New("channel closed")
	}
	s.broker.mu.Unlock()
	if exchange == "" {
		s.broker.Publish(key, body)
	} else {
		s.broker.PublishExchange(exchange, body)
	}
	return nil
}

func (s *session) Consume(name, tag string) (<-chan amqp.Delivery, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	return s.broker.queue(name).ch, nil
}

func (s *session) DeleteQueue(name string) error {
	if err := s.check(); err != nil {
		return err
	}
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	delete(s.broker.queues, name)
	for exchange, queues := range s.broker.bindings {
		kept := queues[:0]
		for _, q := range queues {
			if q != name {
				kept = append(kept, q)
			}
		}
		s.broker.bindings[exchange] = kept
	}
	s.broker.deleted = append(s.broker.deleted, name)
	return nil
}

func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.broker.mu.Lock()
	s.broker.open--
	s.broker.mu.Unlock()
	return nil
}

package worker

import (
	"context"
	"sync"
	"time"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/broker"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/protocol"
)

// Updater relays bookkeeping updates to the database manager queue in the
// order they were queued.
type Updater struct {
	dial    broker.Dialer
	queue   string
	delay   time.Duration
	metrics *metrics

	mu      sync.RWMutex
	closed  bool
	updates chan protocol.Update
	done    chan struct{}
}

func NewUpdater(dial broker.Dialer, queue string, delay time.Duration, capacity int) *Updater {
	return &Updater{
		dial:    dial,
		queue:   queue,
		delay:   delay,
		updates: make(chan protocol.Update, capacity),
		done:    make(chan struct{}),
	}
}

// Notify queues an update. Updates queued after Close, or once Run has
// returned, are dropped. When the backlog is full Notify waits for room
// until ctx is cancelled, then drops the update.
func (u *Updater) Notify(ctx context.Context, update protocol.Update) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if u.closed {
		log.Debugf("Updater closed, dropping %v update", update.Mode)
		return
	}

	select {
	case u.updates <- update:
		return
	default:
	}

	select {
	case u.updates <- update:
	case <-u.done:
		log.Debugf("Updater stopped, dropping %v update", update.Mode)
	case <-ctx.Done():
		log.Warnf("Update backlog full, dropping %v update", update.Mode)
	}
}

// Close stops accepting updates. Run returns once the queued ones have
// been published.
func (u *Updater) Close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.closed {
		u.closed = true
		close(u.updates)
	}
}

// Run publishes queued updates until Close is called and the queue is
// drained, or ctx is cancelled. Failed publications are retried on a new
// session after a fixed delay.
func (u *Updater) Run(ctx context.Context) error {
	defer close(u.done)

	var session broker.Session
	defer func() {
		if session != nil {
			session.Close()
		}
	}()

	for update := range u.updates {
		body := update.Encode()

		for {
			err := u.publish(ctx, &session, body)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			log.Warnf("Failed to publish %v update, retrying in %v: %v", update.Mode, u.delay, err)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(u.delay):
			}
		}

		log.Debugf("Published %v update for workflow %d job %d", update.Mode, update.WorkflowID, update.JobID)
		if u.metrics != nil {
			u.metrics.updates.WithLabelValues(update.Mode.String()).Inc()
		}
	}

	return nil
}

// publish sends body on *session, opening a new session first if there is
// none. A session that failed is closed and cleared.
func (u *Updater) publish(ctx context.Context, session *broker.Session, body []byte) error {
	if *session == nil {
		s, err := u.dial(ctx)
		if err != nil {
			return err
		}
		if err := s.DeclareQueue(u.queue, true); err != nil {
			s.Close()
			return err
		}
		*session = s
	}

	if err := (*session).Publish(ctx, "", u.queue, body); err != nil {
		(*session).Close()
		*session = nil
		return err
	}
	return nil
}

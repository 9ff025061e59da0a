package dbmanager

import (
	"context"
	"errors"
	"time"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/broker"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/protocol"
	"github.com/google/uuid"
)

var errUpdateQueueClosed = errors.New("update queue closed")

// Manager is the only writer of the store. It applies updates one at a
// time in the order the broker delivers them.
type Manager struct {
	store          *Store
	dial           broker.Dialer
	queue          string
	retryDelay     time.Duration
	reconnectDelay time.Duration
}

func NewManager(store *Store, dial broker.Dialer, config *Config) *Manager {
	return &Manager{
		store:          store,
		dial:           dial,
		queue:          config.UpdateQueue,
		retryDelay:     config.RetryDelay,
		reconnectDelay: config.Broker.ReconnectDelay,
	}
}

// Run consumes updates until ctx is cancelled, reconnecting whenever the
// session is lost.
func (m *Manager) Run(ctx context.Context) error {
	log.Info("Starting")
	defer log.Info("Terminating")

	for {
		err := m.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}

		log.Warnf("Update consumer stopped, reconnecting in %v: %v", m.reconnectDelay, err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(m.reconnectDelay):
		}
	}
}

func (m *Manager) consume(ctx context.Context) error {
	session, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.DeclareQueue(m.queue, true); err != nil {
		return err
	}
	if err := session.Qos(1); err != nil {
		return err
	}

	deliveries, err := session.Consume(m.queue, uuid.NewString())
	if err != nil {
		return err
	}

	log.Debugf("Consuming updates from %s", m.queue)

	for {
		select {
		case <-ctx.Done():
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				return errUpdateQueueClosed
			}

			update, err := protocol.ParseUpdate(delivery.Body)
			if err != nil {
				log.Errorf("Dropping malformed update %q: %v", delivery.Body, err)
				delivery.Reject(false)
				continue
			}

			if err := m.apply(ctx, update); err != nil {
				if ctx.Err() != nil {
					// Left unacknowledged, the update is redelivered.
					return nil
				}
				log.Errorf("Dropping %v update from %s: %v", update.Mode, update.Worker, err)
				delivery.Reject(false)
				continue
			}

			delivery.Ack(false)
		}
	}
}

// apply writes an update, retrying while the database is locked.
func (m *Manager) apply(ctx context.Context, update protocol.Update) error {
	for {
		err := m.store.Apply(ctx, update)
		if err == nil {
			log.Debugf("Applied %v update from %s (workflow %d job %d)", update.Mode, update.Worker, update.WorkflowID, update.JobID)
			return nil
		}
		if !Transient(err) {
			return err
		}

		log.Warnf("Database busy, retrying %v update in %v: %v", update.Mode, m.retryDelay, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.retryDelay):
		}
	}
}

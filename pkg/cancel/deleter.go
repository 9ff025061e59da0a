package cancel

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/broker"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/protocol"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var errQueueClosed = errors.New("cancel queue closed")

// Killer terminates the process tree of a job.
type Killer interface {
	Kill(pid int) error
}

type DeleterConfig struct {
	// Fanout exchange on which cancellations are broadcast to all workers.
	Exchange string

	// Queue of this worker instance, bound to Exchange and deleted on exit.
	Queue string

	// Minimum interval between two scans while cancellations are armed.
	ScanInterval time.Duration

	// Delay between reconnection attempts.
	ReconnectDelay time.Duration

	// Called for every job killed.
	OnKill func(workflow, pid int)
}

// Deleter consumes cancellation requests, arms the registry and kills the
// running jobs of armed workflows until their entries expire.
type Deleter struct {
	config   DeleterConfig
	registry *Registry
	slots    []*Slot
	killer   Killer
	dial     broker.Dialer
	wake     chan struct{}
	limiter  *rate.Limiter
	running  atomic.Bool
}

func NewDeleter(config DeleterConfig, registry *Registry, slots []*Slot, killer Killer, dial broker.Dialer) *Deleter {
	if config.ScanInterval <= 0 {
		config.ScanInterval = 100 * time.Millisecond
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = 5 * time.Second
	}
	return &Deleter{
		config:   config,
		registry: registry,
		slots:    slots,
		killer:   killer,
		dial:     dial,
		wake:     make(chan struct{}, 1),
		limiter:  rate.NewLimiter(rate.Every(config.ScanInterval), 1),
	}
}

// Request arms the registry for a cancellation and wakes the scanner.
// A request that finds the registry full is ignored.
func (d *Deleter) Request(c protocol.Cancel) bool {
	if !d.registry.Arm(c.WorkflowID, c.Checks) {
		log.Debugf("Cancellation registry full, ignoring cancellation of workflow %d", c.WorkflowID)
		return false
	}

	log.Infof("Cancelling workflow %d", c.WorkflowID)
	d.Wake()
	return true
}

// Wake schedules a scan.
func (d *Deleter) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Scan makes one pass over the registry: expired entries are freed and the
// jobs of the remaining workflows are killed. It returns the number of
// workflows still armed. Concurrent calls return immediately.
func (d *Deleter) Scan() int {
	if !d.running.CompareAndSwap(false, true) {
		return d.registry.Armed()
	}
	defer d.running.Store(false)

	live := d.registry.Sweep()
	for _, workflow := range live {
		for _, slot := range d.slots {
			pid, ok := slot.release(workflow)
			if !ok {
				continue
			}

			log.Infof("Killing job of cancelled workflow %d on dispatcher %d (pid %d)", workflow, slot.Index(), pid)
			if err := d.killer.Kill(pid); err != nil {
				log.Warnf("Failed to kill pid %d: %v", pid, err)
				slot.restore(workflow, pid)
				continue
			}
			if d.config.OnKill != nil {
				d.config.OnKill(workflow, pid)
			}
		}
	}
	return len(live)
}

// Run consumes cancellations and scans until ctx is cancelled. The
// worker's cancel queue is deleted before returning.
func (d *Deleter) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-d.wake:
			}

			for d.Scan() > 0 {
				if err := d.limiter.Wait(ctx); err != nil {
					return nil
				}
			}
		}
	})

	g.Go(func() error {
		for {
			err := d.consume(ctx)
			if ctx.Err() != nil {
				return nil
			}
			log.Warnf("Cancellation consumer stopped, reconnecting in %v: %v", d.config.ReconnectDelay, err)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(d.config.ReconnectDelay):
			}
		}
	})

	return g.Wait()
}

func (d *Deleter) consume(ctx context.Context) error {
	session, err := d.dial(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.DeclareFanout(d.config.Exchange); err != nil {
		return err
	}
	if err := session.DeclareQueue(d.config.Queue, false); err != nil {
		return err
	}
	if err := session.BindQueue(d.config.Queue, d.config.Exchange); err != nil {
		return err
	}

	deliveries, err := session.Consume(d.config.Queue, d.config.Queue)
	if err != nil {
		return err
	}

	log.Debugf("Consuming cancellations from %s", d.config.Queue)

	for {
		select {
		case <-ctx.Done():
			if err := session.DeleteQueue(d.config.Queue); err != nil {
				log.Warnf("Failed to delete queue %s: %v", d.config.Queue, err)
			}
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				return errQueueClosed
			}

			request, err := protocol.ParseCancel(delivery.Body)
			if err != nil {
				log.Errorf("Dropping malformed cancellation %q: %v", delivery.Body, err)
				delivery.Reject(false)
				continue
			}

			d.Request(request)
			delivery.Ack(false)
		}
	}
}

// Package worker consumes analytics tasks from the broker and runs them
// under the node's core budget.
package worker

import (
	"context"
	"errors"
	"os"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/admission"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/broker"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/cancel"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/protocol"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/runner"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/utils"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Number of bookkeeping updates buffered before dispatchers block.
const updateBacklog = 1024

type Options struct {
	// Opens broker sessions. Defaults to a dialer built from the broker
	// options that retries until the broker is reachable.
	Dialer broker.Dialer

	// Filesystem receiving job logs. Defaults to the OS filesystem.
	Fs afero.Fs

	// Kills the jobs of cancelled workflows. Defaults to killing the job's
	// process tree.
	Killer cancel.Killer

	// Worker executable used by the auto launcher.
	Executable string

	// Node identifier used in the cancel queue name. Defaults to NodeID().
	Node string

	// Do not start the status server.
	DisableStatus bool
}

// Worker holds the state shared by the dispatchers for the lifetime of the
// process. Cancellation support is optional; when disabled the registry,
// deleter and updater are nil.
type Worker struct {
	config   *WorkerConfig
	identity protocol.WorkerIdentity
	pid      int
	dial     broker.Dialer
	options  Options

	gate    *admission.Gate
	runner  *runner.Runner
	slots   []*cancel.Slot
	metrics *metrics

	registry *cancel.Registry
	deleter  *cancel.Deleter
	updater  *Updater

	closers utils.Closers
}

func NewWorker(config *WorkerConfig, options Options) (*Worker, error) {
	if options.Dialer == nil {
		options.Dialer = broker.NewDialer(&config.Broker)
	}
	if options.Fs == nil {
		options.Fs = afero.NewOsFs()
	}
	if options.Killer == nil {
		options.Killer = cancel.NewProcessKiller()
	}
	if options.Node == "" {
		options.Node = NodeID()
	}

	runnerConfig := config.RunnerConfig()
	runnerConfig.Executable = options.Executable

	gate := admission.NewGate(config.MaxCores)
	jobRunner, err := runner.New(gate, runnerConfig, options.Fs)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		config:   config,
		identity: config.Identity(options.Node),
		pid:      os.Getpid(),
		dial:     options.Dialer,
		options:  options,
		gate:     gate,
		runner:   jobRunner,
		slots:    cancel.NewSlots(config.ThreadCount),
		metrics:  newMetrics(),
	}
	w.metrics.setupGateMetrics(gate)

	if config.Cancellation.Enabled {
		w.registry = cancel.NewRegistry(config.Cancellation.MaxEntries, config.Cancellation.Factor)
		w.metrics.setupRegistryMetrics(w.registry)

		w.deleter = cancel.NewDeleter(cancel.DeleterConfig{
			Exchange:       config.DeleteQueue,
			Queue:          w.identity.DeleteQueue,
			ReconnectDelay: config.Broker.ReconnectDelay,
			OnKill: func(workflow, pid int) {
				w.metrics.kills.Inc()
			},
		}, w.registry, w.slots, options.Killer, options.Dialer)

		w.updater = NewUpdater(options.Dialer, config.UpdateQueue, config.Broker.ReconnectDelay, updateBacklog)
		w.updater.metrics = w.metrics
	}

	return w, nil
}

func (w *Worker) Identity() protocol.WorkerIdentity {
	return w.identity
}

// notify queues a bookkeeping update if cancellation support is enabled.
func (w *Worker) notify(ctx context.Context, mode protocol.Mode, workflow, job int) {
	if w.updater == nil {
		return
	}

	update := protocol.Update{
		Worker:     w.identity,
		WorkflowID: workflow,
		JobID:      job,
		Mode:       mode,
	}
	if mode.IsWorkerUpdate() {
		update.PID = w.pid
		update.Count = w.config.ThreadCount
	}
	if mode == protocol.ModeWorkerDown {
		update.PID = 0
		update.Count = 0
	}
	w.updater.Notify(ctx, update)
}

// start launches a background service and registers its teardown. The
// service runs until stop is called or hard is cancelled.
func (w *Worker) start(hard context.Context, name string, run func(ctx context.Context) error, stop func()) {
	ctx, cancelCtx := context.WithCancel(hard)
	done := make(chan error, 1)
	go func() {
		done <- run(ctx)
	}()

	w.closers.Push(name, func() error {
		if stop != nil {
			stop()
		} else {
			cancelCtx()
		}
		err := <-done
		cancelCtx()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}

// Run starts the services and the dispatchers, then waits for soft to be
// cancelled. Teardown happens in reverse order of startup: dispatchers
// first, so that in-flight jobs are requeued, then the deleter, the
// updater after a final WorkerDown update, and the status server. Hard
// cancellation aborts pending retries.
func (w *Worker) Run(soft, hard context.Context) error {
	log.Info("Starting", w.identity)

	if !w.options.DisableStatus {
		r := utils.NewEcho()
		NewHttpHandler(w, r)
		w.start(hard, "status server", func(ctx context.Context) error {
			return utils.ServeHttp(ctx, r, w.config.ListenAddress())
		}, nil)
	}

	if w.updater != nil {
		// WorkerUp is queued before any dispatcher can queue a job update.
		w.notify(hard, protocol.ModeWorkerUp, 0, 0)
		w.start(hard, "updater", w.updater.Run, func() {
			w.notify(hard, protocol.ModeWorkerDown, 0, 0)
			w.updater.Close()
		})
	}

	if w.deleter != nil {
		w.start(hard, "deleter", w.deleter.Run, nil)
	}

	var dispatchers errgroup.Group
	for _, slot := range w.slots {
		dispatchers.Go(func() error {
			return w.dispatch(soft, slot)
		})
	}

	var result *multierror.Error
	if err := dispatchers.Wait(); err != nil {
		result = multierror.Append(result, err)
	}

	log.Info("Dispatchers stopped")

	if err := w.closers.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	log.Info("Terminating")
	return result.ErrorOrNil()
}

package worker

import (
	"context"
	"errors"
	"time"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/admission"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/broker"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/cancel"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/protocol"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var errTaskQueueClosed = errors.New("task queue closed")

// dispatch consumes tasks on its own broker session until ctx is
// cancelled, reconnecting whenever the session is lost.
func (w *Worker) dispatch(ctx context.Context, slot *cancel.Slot) error {
	logger := log.WithFields(log.Fields{"thread": slot.Index()})

	for {
		err := w.consume(ctx, slot, logger)
		if ctx.Err() != nil {
			return nil
		}

		logger.Warnf("Task consumer stopped, reconnecting in %v: %v", w.config.Broker.ReconnectDelay, err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.config.Broker.ReconnectDelay):
		}
	}
}

func (w *Worker) consume(ctx context.Context, slot *cancel.Slot, logger *logrus.Entry) error {
	session, err := w.dial(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.DeclareQueue(w.config.TaskQueue, true); err != nil {
		return err
	}
	if err := session.Qos(1); err != nil {
		return err
	}

	tag := uuid.NewString()
	deliveries, err := session.Consume(w.config.TaskQueue, tag)
	if err != nil {
		return err
	}

	logger.Debugf("Consuming tasks from %s as %s", w.config.TaskQueue, tag)

	for {
		select {
		case <-ctx.Done():
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				return errTaskQueueClosed
			}
			if ctx.Err() != nil {
				// Unacknowledged deliveries return to the queue with the session.
				return nil
			}
			w.handle(ctx, slot, delivery, logger)
		}
	}
}

// handle runs one task and settles its delivery. Malformed tasks are
// requeued once and dropped when they come back. Tasks of cancelled
// workflows are acknowledged without running.
func (w *Worker) handle(ctx context.Context, slot *cancel.Slot, delivery broker.Delivery, logger *logrus.Entry) {
	task, err := protocol.ParseTask(delivery.Body)
	if err != nil {
		w.metrics.task(outcomeMalformed)
		if delivery.Redelivered {
			logger.Errorf("Dropping malformed task %q: %v", delivery.Body, err)
			delivery.Reject(false)
		} else {
			logger.Errorf("Rejecting malformed task %q: %v", delivery.Body, err)
			delivery.Reject(true)
		}
		return
	}

	logger = logger.WithFields(log.Fields{"workflow": task.WorkflowID, "job": task.JobID})

	if w.registry != nil && w.registry.IsArmed(task.WorkflowID) {
		logger.Info("Discarding job of cancelled workflow")
		w.metrics.task(outcomeDiscarded)
		delivery.Ack(false)
		return
	}

	logger.Infof("Running job on %d cores", task.Cores)

	slot.Assign(task.WorkflowID)
	w.notify(ctx, protocol.ModeInsertJob, task.WorkflowID, task.JobID)

	result, err := w.runner.Run(ctx, task, slot)

	// The deleter clears the workflow of a slot whose job it killed.
	workflow, _ := slot.Snapshot()
	cancelled := workflow != task.WorkflowID
	slot.Clear()

	w.notify(ctx, protocol.ModeRemoveJob, task.WorkflowID, task.JobID)
	if w.registry != nil {
		w.registry.Observe()
	}

	switch {
	case err == nil:
		logger.Infof("Job completed in %v", result.Duration.Round(time.Millisecond))
		w.metrics.task(outcomeSucceeded)
		w.metrics.duration.Observe(result.Duration.Seconds())
		delivery.Ack(false)

	case cancelled:
		logger.Info("Job killed by cancellation")
		w.metrics.task(outcomeCancelled)
		delivery.Ack(false)

	case ctx.Err() != nil:
		logger.Info("Job interrupted by shutdown, requeueing")
		w.metrics.task(outcomeRequeued)
		delivery.Reject(true)

	case errors.Is(err, admission.ErrExceedsBudget) && delivery.Redelivered:
		logger.Errorf("Dropping job: %v", err)
		w.metrics.task(outcomeRejected)
		delivery.Reject(false)

	default:
		logger.Errorf("Job failed: %v", err)
		if details := utils.ErrorDetails(err); details != "" {
			logger.Debug(details)
		}
		w.metrics.task(outcomeFailed)
		delivery.Reject(true)
	}
}

package worker

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type SlotStatus struct {
	Index      int `json:"index"`
	WorkflowID int `json:"workflow_id"`
	PID        int `json:"pid"`
}

type CancellationStatus struct {
	WorkflowID int `json:"workflow_id"`
	Budget     int `json:"budget"`
	Observed   int `json:"observed"`
}

type Status struct {
	Host          string               `json:"host"`
	Port          int                  `json:"port"`
	DeleteQueue   string               `json:"delete_queue,omitempty"`
	PID           int                  `json:"pid"`
	Threads       int                  `json:"threads"`
	CoresUsed     int                  `json:"cores_used"`
	CoresMax      int                  `json:"cores_max"`
	JobsWaiting   int                  `json:"jobs_waiting"`
	Slots         []SlotStatus         `json:"slots"`
	Cancellations []CancellationStatus `json:"cancellations,omitempty"`
}

// Status returns a snapshot of the worker state.
func (w *Worker) Status() Status {
	status := Status{
		Host:        w.identity.Host,
		Port:        w.identity.Port,
		DeleteQueue: w.identity.DeleteQueue,
		PID:         w.pid,
		Threads:     len(w.slots),
		CoresUsed:   w.gate.Used(),
		CoresMax:    w.gate.Max(),
		JobsWaiting: w.gate.Waiting(),
	}

	for _, slot := range w.slots {
		workflow, pid := slot.Snapshot()
		status.Slots = append(status.Slots, SlotStatus{Index: slot.Index(), WorkflowID: workflow, PID: pid})
	}

	if w.registry != nil {
		for _, e := range w.registry.Entries() {
			status.Cancellations = append(status.Cancellations, CancellationStatus{
				WorkflowID: e.WorkflowID,
				Budget:     e.Budget,
				Observed:   e.Observed,
			})
		}
	}

	return status
}

func NewHttpHandler(w *Worker, r *echo.Echo) {
	r.GET("/status", func(c echo.Context) error {
		return c.JSON(http.StatusOK, w.Status())
	})

	r.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(w.metrics.reg, promhttp.HandlerOpts{})))
}

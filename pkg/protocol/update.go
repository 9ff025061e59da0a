package protocol

import (
	"fmt"
	"strings"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/utils"
)

// Kind of bookkeeping transition requested by an update message.
type Mode int

const (
	ModeInsertJob  Mode = 1
	ModeRemoveJob  Mode = 2
	ModeWorkerUp   Mode = 3
	ModeWorkerDown Mode = 4
)

var modeNames = map[Mode]string{
	ModeInsertJob:  "insert-job",
	ModeRemoveJob:  "remove-job",
	ModeWorkerUp:   "worker-up",
	ModeWorkerDown: "worker-down",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// Should return true if the update concerns a single job
func (m Mode) IsJobUpdate() bool {
	switch m {
	case ModeInsertJob, ModeRemoveJob:
		return true
	default:
		return false
	}
}

// Should return true if the update changes the liveness of a worker
func (m Mode) IsWorkerUpdate() bool {
	switch m {
	case ModeWorkerUp, ModeWorkerDown:
		return true
	default:
		return false
	}
}

// Identity of a worker instance. A host may run several instances, so the
// port and the per-instance delete queue are part of the key.
type WorkerIdentity struct {
	Host        string
	Port        int
	DeleteQueue string
}

func (w WorkerIdentity) String() string {
	return fmt.Sprintf("%s:%d/%s", w.Host, w.Port, w.DeleteQueue)
}

// A bookkeeping notification relayed from a worker to the database manager.
type Update struct {
	Worker     WorkerIdentity
	WorkflowID int
	JobID      int
	PID        int
	Count      int
	Mode       Mode
}

// ParseUpdate decodes
// "ip***port***workflow_id***job_id***delete_queue***pid***count***mode".
func ParseUpdate(body []byte) (Update, error) {
	fields, err := split(string(body), UpdateSeparator, 8)
	if err != nil {
		return Update{}, err
	}

	var u Update
	u.Worker.Host = fields[0]
	if u.Worker.Host == "" {
		return Update{}, fmt.Errorf("%w: empty worker address", utils.ErrParse)
	}
	if u.Worker.Port, err = parseInt("port", fields[1], 0); err != nil {
		return Update{}, err
	}
	if u.WorkflowID, err = parseInt("workflow id", fields[2], 0); err != nil {
		return Update{}, err
	}
	if u.JobID, err = parseInt("job id", fields[3], 0); err != nil {
		return Update{}, err
	}
	u.Worker.DeleteQueue = fields[4]
	if u.Worker.DeleteQueue == "" {
		return Update{}, fmt.Errorf("%w: empty delete queue name", utils.ErrParse)
	}
	if u.PID, err = parseInt("pid", fields[5], 0); err != nil {
		return Update{}, err
	}
	if u.Count, err = parseInt("worker count", fields[6], 0); err != nil {
		return Update{}, err
	}
	mode, err := parseInt("mode", fields[7], 0)
	if err != nil {
		return Update{}, err
	}
	u.Mode = Mode(mode)
	if !u.Mode.Valid() {
		return Update{}, fmt.Errorf("%w: unknown mode %d", utils.ErrParse, mode)
	}
	return u, nil
}

func (u Update) Encode() []byte {
	return []byte(strings.Join([]string{
		u.Worker.Host,
		fmt.Sprint(u.Worker.Port),
		fmt.Sprint(u.WorkflowID),
		fmt.Sprint(u.JobID),
		u.Worker.DeleteQueue,
		fmt.Sprint(u.PID),
		fmt.Sprint(u.Count),
		fmt.Sprint(int(u.Mode)),
	}, UpdateSeparator))
}

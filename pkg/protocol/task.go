package protocol

import (
	"fmt"
	"strings"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/utils"
)

// A unit of work published by the master on the task queue.
type Task struct {
	// Opaque payload handed to the analytics framework unchanged.
	Submission string

	// Workflow the job belongs to. Zero is never a valid workflow.
	WorkflowID int

	// Job within the workflow.
	JobID int

	// Number of cores the job needs.
	Cores int
}

// ParseTask decodes "submission*workflow_id*job_id*ncores".
func ParseTask(body []byte) (Task, error) {
	fields, err := split(string(body), FieldSeparator, 4)
	if err != nil {
		return Task{}, err
	}

	task := Task{Submission: fields[0]}
	if strings.TrimSpace(task.Submission) == "" {
		return Task{}, fmt.Errorf("%w: empty submission string", utils.ErrParse)
	}
	if task.WorkflowID, err = parseInt("workflow id", fields[1], 1); err != nil {
		return Task{}, err
	}
	if task.JobID, err = parseInt("job id", fields[2], 0); err != nil {
		return Task{}, err
	}
	if task.Cores, err = parseInt("core count", fields[3], 1); err != nil {
		return Task{}, err
	}
	return task, nil
}

func (t Task) Encode() []byte {
	return []byte(strings.Join([]string{
		t.Submission,
		fmt.Sprint(t.WorkflowID),
		fmt.Sprint(t.JobID),
		fmt.Sprint(t.Cores),
	}, FieldSeparator))
}

// LogName is the name of the file receiving the output of the job.
func (t Task) LogName() string {
	return fmt.Sprintf("%d_%d.log", t.WorkflowID, t.JobID)
}

func (t Task) String() string {
	return fmt.Sprintf("workflow %d job %d (%d cores)", t.WorkflowID, t.JobID, t.Cores)
}

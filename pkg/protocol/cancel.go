package protocol

import (
	"fmt"
)

// A request to cancel all queued and running jobs of a workflow.
type Cancel struct {
	WorkflowID int

	// Number of processed messages to observe before the request expires.
	// Zero selects the configured default.
	Checks int
}

// ParseCancel decodes "workflow_id*checks_todo".
func ParseCancel(body []byte) (Cancel, error) {
	fields, err := split(string(body), FieldSeparator, 2)
	if err != nil {
		return Cancel{}, err
	}

	var c Cancel
	if c.WorkflowID, err = parseInt("workflow id", fields[0], 1); err != nil {
		return Cancel{}, err
	}
	if c.Checks, err = parseInt("check count", fields[1], 0); err != nil {
		return Cancel{}, err
	}
	return c, nil
}

func (c Cancel) Encode() []byte {
	return []byte(fmt.Sprintf("%d%s%d", c.WorkflowID, FieldSeparator, c.Checks))
}

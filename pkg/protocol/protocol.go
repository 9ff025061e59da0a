// Package protocol holds the text encodings of the messages exchanged over
// the broker: task messages consumed by workers, update messages consumed
// by the database manager and cancellation messages consumed by the
// deleter of every worker.
package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/utils"
)

const (
	// Field separator of task and cancellation messages.
	FieldSeparator = "*"

	// Field separator of update messages.
	UpdateSeparator = "***"
)

func split(body, sep string, want int) ([]string, error) {
	fields := strings.Split(body, sep)
	if len(fields) != want {
		return nil, fmt.Errorf("%w: expected %d fields separated by %q, got %d", utils.ErrParse, want, sep, len(fields))
	}
	return fields, nil
}

// parseInt decodes a numeric field. Surrounding whitespace, such as a
// trailing newline, is ignored.
func parseInt(name, value string, min int) (int, error) {
	value = strings.TrimSpace(value)
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not an integer", utils.ErrParse, name, value)
	}
	if n < min {
		return 0, fmt.Errorf("%w: %s must be at least %d, got %d", utils.ErrParse, name, min, n)
	}
	return n, nil
}

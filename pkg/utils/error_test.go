package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCmdErrorDetails(t *testing.T) {
	cause := errors.New("job failed")
	err := NewCmdError(cause, "workflow 7 job 3 exited with status 1", "broken")

	assert.Equal(t, "workflow 7 job 3 exited with status 1", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "broken", ErrorDetails(fmt.Errorf("running: %w", err)))
	assert.Empty(t, ErrorDetails(cause))
}

package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryForeverSucceeds(t *testing.T) {
	attempts := 0
	err := RetryForever(context.Background(), "Connecting", time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("refused")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryForeverStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	refused := errors.New("refused")
	err := RetryForever(ctx, "Connecting", time.Millisecond, func() error {
		return refused
	})
	assert.ErrorIs(t, err, refused)
}

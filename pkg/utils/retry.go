package utils

import (
	"context"
	"time"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
)

// RetryForever calls fn until it succeeds or ctx is done, sleeping a fixed
// delay between attempts. The last error is returned when ctx ends first.
func RetryForever(ctx context.Context, what string, delay time.Duration, fn func() error) error {
	for {
		err := fn()
		if err == nil {
			return nil
		}

		log.Warnf("%s failed, retrying in %v: %v", what, delay, err)

		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
	}
}

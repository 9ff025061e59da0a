package utils

import (
	"fmt"
	"sync"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
	"github.com/hashicorp/go-multierror"
)

type closer struct {
	name string
	fn   func() error
}

// Closers is a stack of teardown functions. Resources register their
// release when they are acquired and Close releases them in reverse order.
type Closers struct {
	mu      sync.Mutex
	closers []closer
}

func (c *Closers) Push(name string, fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, closer{name: name, fn: fn})
}

func (c *Closers) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.closers)
}

// Close runs every registered function, last pushed first, and returns
// all failures. The stack is empty afterwards.
func (c *Closers) Close() error {
	c.mu.Lock()
	closers := c.closers
	c.closers = nil
	c.mu.Unlock()

	var result *multierror.Error
	for i := len(closers) - 1; i >= 0; i-- {
		log.Debug("Releasing", closers[i].name)
		if err := closers[i].fn(); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", closers[i].name, err))
		}
	}
	return result.ErrorOrNil()
}

// Package admission bounds the number of cores reserved by concurrently
// running jobs on a worker node.
package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
)

var (
	ErrExceedsBudget = errors.New("job requires more cores than the node allows")
	ErrInvalidCores  = errors.New("core count must be positive")
)

// Gate is a monitor over the cores in use. Acquire blocks until enough of
// the budget is free; Release wakes every waiter, which then re-check the
// condition. Waiters are not served in arrival order.
type Gate struct {
	mu      sync.Mutex
	cond    *sync.Cond
	used    int
	max     int
	waiting int
}

func NewGate(max int) *Gate {
	g := &Gate{max: max}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Acquire reserves n cores, blocking while used+n would exceed the budget.
// A request larger than the whole budget fails immediately instead of
// waiting forever. If ctx ends first nothing is reserved.
func (g *Gate) Acquire(ctx context.Context, n int) error {
	if n <= 0 {
		return ErrInvalidCores
	}
	if n > g.max {
		return fmt.Errorf("%w: %d > %d", ErrExceedsBudget, n, g.max)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.used+n > g.max {
		stop := context.AfterFunc(ctx, func() {
			g.mu.Lock()
			g.cond.Broadcast()
			g.mu.Unlock()
		})
		defer stop()

		g.waiting++
		for g.used+n > g.max {
			if err := ctx.Err(); err != nil {
				g.waiting--
				return err
			}
			g.cond.Wait()
		}
		g.waiting--
	}

	g.used += n
	return nil
}

// Release returns n cores to the budget and wakes all waiters.
func (g *Gate) Release(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.used -= n
	if g.used < 0 {
		log.Errorf("Released more cores than reserved (%d below zero)", -g.used)
		g.used = 0
	}
	g.cond.Broadcast()
}

// Used returns the number of cores currently reserved.
func (g *Gate) Used() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.used
}

func (g *Gate) Max() int {
	return g.max
}

// Waiting returns the number of callers blocked in Acquire.
func (g *Gate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiting
}

package utils

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
)

// SignalContexts returns two contexts derived from parent. The first
// SIGINT or SIGTERM cancels soft, asking the process to wind down. A second
// one cancels hard as well, aborting retries and grace periods. SIGUSR1
// dumps the stacks of all goroutines.
func SignalContexts(parent context.Context) (soft context.Context, hard context.Context, stop func()) {
	hard, cancelHard := context.WithCancel(parent)
	soft, cancelSoft := context.WithCancel(hard)

	ch := make(chan os.Signal, 10)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)

	done := make(chan struct{})
	go func() {
		received := 0
		for {
			select {
			case sig := <-ch:
				switch sig {
				case syscall.SIGUSR1:
					buf := make([]byte, 1<<16)
					len := runtime.Stack(buf, true)
					fmt.Printf("%s\n", buf[:len])
				default:
					received++
					if received == 1 {
						log.Infof("Received %v, shutting down", sig)
						cancelSoft()
					} else {
						log.Warnf("Received %v again, aborting", sig)
						cancelHard()
					}
				}
			case <-done:
				return
			}
		}
	}()

	stop = func() {
		signal.Stop(ch)
		close(done)
		cancelSoft()
		cancelHard()
	}
	return soft, hard, stop
}

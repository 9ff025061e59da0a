//go:build unix

package utils

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
)

// Command is a child process started in its own process group, so that
// the whole tree it spawns can be signalled at once.
type Command struct {
	cmd *exec.Cmd
}

func NewCommand(args ...string) *Command {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdin = nil
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: 0}
	cmd.WaitDelay = 5 * time.Second
	return &Command{cmd: cmd}
}

func (c *Command) Start() error {
	log.Debug("Running", strings.Join(c.cmd.Args, " "))
	return c.cmd.Start()
}

// Wait blocks until the child exits. A non-zero exit or a termination by
// signal is not returned as an error; use ExitStatus to inspect it. Output
// still held open by descendants after the child has exited is abandoned
// once the wait delay expires.
func (c *Command) Wait() error {
	err := c.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	if errors.Is(err, exec.ErrWaitDelay) && c.cmd.ProcessState != nil {
		log.Debugf("Pid %d exited with descendants holding its output", c.GetPid())
		return nil
	}
	return err
}

// ExitStatus reports the exit code of a finished child, or the signal
// that terminated it. Code is -1 when the child was signalled.
func (c *Command) ExitStatus() (code int, signaled bool, sig syscall.Signal) {
	state := c.cmd.ProcessState
	if state == nil {
		return -1, false, 0
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -1, true, ws.Signal()
	}
	return state.ExitCode(), false, 0
}

func (c *Command) Kill() error {
	return KillGroup(c.GetPid(), syscall.SIGKILL)
}

func (c *Command) SetStdout(w io.Writer) {
	c.cmd.Stdout = w
}

func (c *Command) SetStderr(w io.Writer) {
	c.cmd.Stderr = w
}

func (c *Command) SetEnv(env []string) {
	c.cmd.Env = env
}

// SetWaitDelay bounds how long Wait keeps reading output after the child
// has exited.
func (c *Command) SetWaitDelay(d time.Duration) {
	c.cmd.WaitDelay = d
}

func (c *Command) GetPid() int {
	if c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

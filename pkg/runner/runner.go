// Package runner executes jobs out of process under the admission gate.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/admission"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/protocol"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/utils"
	"github.com/google/shlex"
	"github.com/spf13/afero"
)

// Launcher value selecting the in-process engine.
const AutoLauncher = "auto"

// Name of the worker subcommand that hosts the engine in a child process.
const EngineCommand = "engine"

var (
	ErrJobFailed  = errors.New("job exited with non-zero status")
	ErrJobCrashed = errors.New("job terminated by signal")
)

// Receives the pid of the child running the current job, and zero once it
// has been reaped.
type PIDPublisher interface {
	SetPID(pid int)
}

type Config struct {
	// Launcher command prefix, or "auto".
	Launcher string

	// Path of the analytics framework executable.
	FrameworkPath string

	// Directory for per-job output. Empty sends output to the worker log.
	LogDir string

	// Worker executable re-executed in auto mode. Defaults to os.Executable.
	Executable string

	// How long output is read after the job has exited while descendants
	// still hold it open. Zero keeps the command default.
	WaitDelay time.Duration
}

type Result struct {
	ExitCode int
	Signaled bool
	Signal   syscall.Signal
	Duration time.Duration
}

func (r Result) Success() bool {
	return !r.Signaled && r.ExitCode == 0
}

type Runner struct {
	gate     *admission.Gate
	config   Config
	fs       afero.Fs
	launcher []string
}

func New(gate *admission.Gate, config Config, fs afero.Fs) (*Runner, error) {
	r := &Runner{gate: gate, config: config, fs: fs}

	if config.Launcher == AutoLauncher {
		if r.config.Executable == "" {
			exe, err := os.Executable()
			if err != nil {
				return nil, fmt.Errorf("cannot locate worker executable: %w", err)
			}
			r.config.Executable = exe
		}
	} else {
		args, err := shlex.Split(config.Launcher)
		if err != nil {
			return nil, fmt.Errorf("invalid launcher %q: %w", config.Launcher, err)
		}
		if len(args) == 0 {
			return nil, errors.New("empty launcher")
		}
		r.launcher = args
	}

	return r, nil
}

// Command returns the argument vector that runs task.
func (r *Runner) Command(task protocol.Task) []string {
	cores := strconv.Itoa(task.Cores)

	if r.launcher == nil {
		return []string{
			r.config.Executable, EngineCommand,
			"--cores", cores,
			"--framework", r.config.FrameworkPath,
			"--", task.Submission,
		}
	}

	args := append([]string{}, r.launcher...)
	return append(args, "-n", cores, r.config.FrameworkPath, task.Submission)
}

// Run reserves the task's cores, runs it in a new process group and waits
// for it. The cores are released on every path. The pid of the child is
// published through slot while it runs. Cancelling ctx kills the child.
func (r *Runner) Run(ctx context.Context, task protocol.Task, slot PIDPublisher) (Result, error) {
	if err := r.gate.Acquire(ctx, task.Cores); err != nil {
		return Result{}, err
	}
	defer r.gate.Release(task.Cores)

	cmd := utils.NewCommand(r.Command(task)...)
	if r.config.WaitDelay > 0 {
		cmd.SetWaitDelay(r.config.WaitDelay)
	}
	cmd.SetEnv(append(os.Environ(),
		fmt.Sprintf("OPH_NCORES=%d", task.Cores),
		fmt.Sprintf("OPH_WORKFLOW_ID=%d", task.WorkflowID),
		fmt.Sprintf("OPH_JOB_ID=%d", task.JobID),
	))

	tail := newTailBuffer(4096)
	out, closeOut, err := r.output(task)
	if err != nil {
		return Result{}, err
	}
	defer closeOut()

	w := io.MultiWriter(out, tail)
	cmd.SetStdout(w)
	cmd.SetStderr(w)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("cannot start %s: %w", task, err)
	}

	slot.SetPID(cmd.GetPid())
	defer slot.SetPID(0)

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr error
	cancelled := false
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		cancelled = true
		log.Infof("Killing %s (pid %d)", task, cmd.GetPid())
		if err := cmd.Kill(); err != nil {
			log.Warn("Failed to kill job:", err)
		}
		waitErr = <-done
	}

	// Nothing the job started may outlive it.
	if err := utils.KillGroup(cmd.GetPid(), syscall.SIGKILL); err != nil {
		log.Warnf("Failed to kill remaining processes of %s: %v", task, err)
	}

	code, signaled, sig := cmd.ExitStatus()
	result := Result{
		ExitCode: code,
		Signaled: signaled,
		Signal:   sig,
		Duration: time.Since(start),
	}

	switch {
	case waitErr != nil:
		return result, fmt.Errorf("waiting for %s: %w", task, waitErr)
	case cancelled:
		return result, ctx.Err()
	case signaled:
		message := fmt.Sprintf("%s terminated by signal %v", task, sig)
		return result, utils.NewCmdError(ErrJobCrashed, message, tail.String())
	case code != 0:
		message := fmt.Sprintf("%s exited with status %d", task, code)
		return result, utils.NewCmdError(ErrJobFailed, message, tail.String())
	}
	return result, nil
}

func (r *Runner) output(task protocol.Task) (io.Writer, func(), error) {
	if r.config.LogDir == "" {
		return log.NewLogWriter(log.DebugLevel), func() {}, nil
	}

	if err := r.fs.MkdirAll(r.config.LogDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("job log directory: %w", err)
	}

	name := filepath.Join(r.config.LogDir, task.LogName())
	file, err := r.fs.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("job log file: %w", err)
	}
	return file, func() { file.Close() }, nil
}

// tailBuffer keeps the last bytes written to it.
type tailBuffer struct {
	max  int
	data []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.data = append(t.data, p...)
	if len(t.data) > t.max {
		t.data = t.data[len(t.data)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(t.data))
}

package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/admission"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/protocol"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/utils"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pidRecorder struct {
	mu   sync.Mutex
	pids []int
}

func (p *pidRecorder) SetPID(pid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pids = append(p.pids, pid)
}

func (p *pidRecorder) last() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pids) == 0 {
		return -1
	}
	return p.pids[len(p.pids)-1]
}

// Writes a launcher script and returns a launcher template running it.
func launcher(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "launcher.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return "/bin/sh " + path
}

func newRunner(t *testing.T, max int, script string, fs afero.Fs, logDir string) (*Runner, *admission.Gate) {
	t.Helper()
	gate := admission.NewGate(max)
	r, err := New(gate, Config{
		Launcher:      launcher(t, script),
		FrameworkPath: "/opt/ophidia/bin/oph_analytics_framework",
		LogDir:        logDir,
	}, fs)
	require.NoError(t, err)
	return r, gate
}

var echoTask = protocol.Task{Submission: "echo ok", WorkflowID: 7, JobID: 3, Cores: 2}

func TestRunnerSuccess(t *testing.T) {
	fs := afero.NewMemMapFs()
	r, gate := newRunner(t, 4, `echo "$@"`, fs, "/var/log/jobs")
	slot := &pidRecorder{}

	result, err := r.Run(context.Background(), echoTask, slot)
	require.NoError(t, err)
	assert.True(t, result.Success())
	assert.Equal(t, 0, gate.Used())

	require.Len(t, slot.pids, 2)
	assert.Greater(t, slot.pids[0], 0)
	assert.Equal(t, 0, slot.last())

	data, err := afero.ReadFile(fs, "/var/log/jobs/7_3.log")
	require.NoError(t, err)
	assert.Equal(t, "-n 2 /opt/ophidia/bin/oph_analytics_framework echo ok\n", string(data))
}

func TestRunnerNonZeroExit(t *testing.T) {
	r, gate := newRunner(t, 4, "echo broken >&2; exit 3", afero.NewMemMapFs(), "")

	result, err := r.Run(context.Background(), echoTask, &pidRecorder{})
	assert.ErrorIs(t, err, ErrJobFailed)
	assert.Equal(t, 3, result.ExitCode)
	assert.False(t, result.Signaled)
	assert.Equal(t, "broken", utils.ErrorDetails(err))
	assert.Equal(t, 0, gate.Used())
}

func TestRunnerCrash(t *testing.T) {
	r, gate := newRunner(t, 4, "kill -9 $$", afero.NewMemMapFs(), "")

	result, err := r.Run(context.Background(), echoTask, &pidRecorder{})
	assert.ErrorIs(t, err, ErrJobCrashed)
	assert.True(t, result.Signaled)
	assert.False(t, result.Success())
	assert.Equal(t, 0, gate.Used())
}

func TestRunnerExceedsBudget(t *testing.T) {
	r, gate := newRunner(t, 1, "exit 0", afero.NewMemMapFs(), "")
	slot := &pidRecorder{}

	_, err := r.Run(context.Background(), echoTask, slot)
	assert.ErrorIs(t, err, admission.ErrExceedsBudget)
	assert.Empty(t, slot.pids)
	assert.Equal(t, 0, gate.Used())
}

func TestRunnerCancelKillsChild(t *testing.T) {
	r, gate := newRunner(t, 4, "sleep 30", afero.NewMemMapFs(), "")
	slot := &pidRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		assert.Eventually(t, func() bool { return slot.last() > 0 }, 5*time.Second, 10*time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := r.Run(ctx, echoTask, slot)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, 0, slot.last())
	assert.Equal(t, 0, gate.Used())
}

func TestRunnerAutoCommand(t *testing.T) {
	r, err := New(admission.NewGate(4), Config{
		Launcher:      AutoLauncher,
		FrameworkPath: "/fw",
		Executable:    "/usr/bin/oph-worker",
	}, afero.NewMemMapFs())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/usr/bin/oph-worker", "engine", "--cores", "2", "--framework", "/fw", "--", "echo ok",
	}, r.Command(echoTask))
}

func TestRunnerLauncherTemplate(t *testing.T) {
	r, err := New(admission.NewGate(4), Config{
		Launcher:      `mpirun --mca btl "^openib"`,
		FrameworkPath: "/fw",
	}, afero.NewMemMapFs())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"mpirun", "--mca", "btl", "^openib", "-n", "2", "/fw", "echo ok",
	}, r.Command(echoTask))

	_, err = New(admission.NewGate(4), Config{Launcher: "  "}, afero.NewMemMapFs())
	assert.Error(t, err)
}

func TestTailBuffer(t *testing.T) {
	tail := newTailBuffer(5)
	tail.Write([]byte("abc"))
	tail.Write([]byte("defg"))
	assert.Equal(t, "cdefg", tail.String())
}

func processGone(pid int) bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return true
	}
	// Reparented descendants may linger as zombies until init reaps them.
	fields := strings.Fields(string(data[strings.LastIndexByte(string(data), ')')+1:]))
	return len(fields) > 0 && fields[0] == "Z"
}

func TestRunnerBackgroundDescendant(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "bg.pid")
	r, gate := newRunner(t, 4, fmt.Sprintf("sleep 30 &\necho $! > %s\nexit 0", pidFile), afero.NewMemMapFs(), "")
	r.config.WaitDelay = 200 * time.Millisecond

	start := time.Now()
	result, err := r.Run(context.Background(), echoTask, &pidRecorder{})
	require.NoError(t, err)
	assert.True(t, result.Success())
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, 0, gate.Used())

	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return processGone(pid) }, 5*time.Second, 20*time.Millisecond)
}

func TestRunnerBackgroundDescendantFailure(t *testing.T) {
	r, _ := newRunner(t, 4, "sleep 30 &\nexit 4", afero.NewMemMapFs(), "")
	r.config.WaitDelay = 200 * time.Millisecond

	result, err := r.Run(context.Background(), echoTask, &pidRecorder{})
	assert.ErrorIs(t, err, ErrJobFailed)
	assert.Equal(t, 4, result.ExitCode)
}

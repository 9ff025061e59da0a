//go:build linux

package cancel

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func processGone(pid int) bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return true
	}
	// Reparented processes may linger as zombies until init reaps them.
	fields := strings.Fields(string(data[strings.LastIndexByte(string(data), ')')+1:]))
	return len(fields) > 0 && fields[0] == "Z"
}

func TestProcessKillerKillsDescendantsOutsideGroup(t *testing.T) {
	if _, err := exec.LookPath("setsid"); err != nil {
		t.Skip("setsid not available")
	}

	out, in := io.Pipe()
	cmd := utils.NewCommand("/bin/sh", "-c", "setsid sleep 30 & echo $!; wait")
	cmd.SetStdout(in)
	require.NoError(t, cmd.Start())

	line, err := bufio.NewReader(out).ReadString('\n')
	require.NoError(t, err)
	escaped, err := strconv.Atoi(strings.TrimSpace(line))
	require.NoError(t, err)

	// The descendant runs in its own process group.
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", escaped))
		return err == nil && strings.HasPrefix(string(data), "sleep")
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, NewProcessKiller().Kill(cmd.GetPid()))
	in.Close()
	require.NoError(t, cmd.Wait())

	_, signaled, _ := cmd.ExitStatus()
	assert.True(t, signaled)
	assert.Eventually(t, func() bool { return processGone(escaped) }, 5*time.Second, 10*time.Millisecond)
}

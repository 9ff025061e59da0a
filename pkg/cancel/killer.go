//go:build unix

package cancel

import (
	"syscall"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/log"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/utils"
	"github.com/shirou/gopsutil/v3/process"
)

type processKiller struct{}

// NewProcessKiller returns a Killer that kills the process group led by the
// job's pid, and any descendants found in the process table. Launchers
// such as mpirun start workers that may leave the group.
func NewProcessKiller() Killer {
	return processKiller{}
}

func (processKiller) Kill(pid int) error {
	if pid <= 0 {
		return nil
	}

	descendants := descendants(int32(pid))

	if err := utils.KillGroup(pid, syscall.SIGKILL); err != nil {
		return err
	}

	for _, child := range descendants {
		log.Debugf("Killing descendant %d of job %d", child, pid)
		if err := utils.KillProcess(int(child), syscall.SIGKILL); err != nil {
			log.Warnf("Failed to kill descendant %d: %v", child, err)
		}
	}
	return nil
}

// descendants walks the process table for every process below pid.
func descendants(pid int32) []int32 {
	procs, err := process.Processes()
	if err != nil {
		log.Debugf("Cannot list processes: %v", err)
		return nil
	}

	children := map[int32][]int32{}
	for _, proc := range procs {
		ppid, err := proc.Ppid()
		if err != nil {
			continue
		}
		children[ppid] = append(children[ppid], proc.Pid)
	}

	var pids []int32
	queue := children[pid]
	for len(queue) > 0 {
		child := queue[0]
		queue = queue[1:]
		pids = append(pids, child)
		queue = append(queue, children[child]...)
	}
	return pids
}

package cancel

import (
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/utils"
)

// Slot describes what one dispatcher is running. It is written by its
// dispatcher and read, or cleared, by the deleter.
type Slot struct {
	mu       utils.RWMutex
	index    int
	workflow int
	pid      int
}

func NewSlots(n int) []*Slot {
	slots := make([]*Slot, n)
	for i := range slots {
		slots[i] = &Slot{mu: utils.NewRWMutex(), index: i}
	}
	return slots
}

func (s *Slot) Index() int {
	return s.index
}

// Assign marks the slot as running a job of workflow.
func (s *Slot) Assign(workflow int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflow = workflow
}

// Clear marks the slot idle.
func (s *Slot) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflow = 0
	s.pid = 0
}

func (s *Slot) SetPID(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pid = pid
}

// Snapshot returns the workflow and pid currently held by the slot.
func (s *Slot) Snapshot() (workflow, pid int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workflow, s.pid
}

// release clears the workflow if the slot runs a process of it and returns
// the pid to kill. A job still waiting for cores has no pid yet and is left
// for a later pass. The pid stays published until the dispatcher reaps it.
func (s *Slot) release(workflow int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workflow == 0 || s.workflow != workflow || s.pid == 0 {
		return 0, false
	}
	s.workflow = 0
	return s.pid, true
}

// restore undoes release after a failed kill, unless the dispatcher has
// moved on to another job meanwhile.
func (s *Slot) restore(workflow, pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workflow == 0 && s.pid == pid {
		s.workflow = workflow
	}
}

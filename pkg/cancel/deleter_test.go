package cancel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/broker/brokertest"
	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKiller struct {
	mu     sync.Mutex
	killed []int
	err    error
}

func (k *fakeKiller) Kill(pid int) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.err != nil {
		return k.err
	}
	k.killed = append(k.killed, pid)
	return nil
}

func (k *fakeKiller) fail(err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.err = err
}

func (k *fakeKiller) Killed() []int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]int(nil), k.killed...)
}

func TestSlotLifecycle(t *testing.T) {
	slots := NewSlots(2)
	require.Len(t, slots, 2)
	assert.Equal(t, 1, slots[1].Index())

	s := slots[0]
	s.Assign(5)
	s.SetPID(100)
	workflow, pid := s.Snapshot()
	assert.Equal(t, 5, workflow)
	assert.Equal(t, 100, pid)

	_, ok := s.release(6)
	assert.False(t, ok)

	pid, ok = s.release(5)
	assert.True(t, ok)
	assert.Equal(t, 100, pid)

	workflow, pid = s.Snapshot()
	assert.Equal(t, 0, workflow)
	assert.Equal(t, 100, pid)

	s.Clear()
	workflow, pid = s.Snapshot()
	assert.Zero(t, workflow)
	assert.Zero(t, pid)
}

func TestSlotWithoutProcessIsNotReleased(t *testing.T) {
	s := NewSlots(1)[0]
	s.Assign(5)

	_, ok := s.release(5)
	assert.False(t, ok)

	workflow, _ := s.Snapshot()
	assert.Equal(t, 5, workflow)
}

func TestDeleterScanKillsArmedWorkflows(t *testing.T) {
	registry := NewRegistry(4, 1)
	slots := NewSlots(3)
	killer := &fakeKiller{}

	var kills []int
	config := DeleterConfig{OnKill: func(workflow, pid int) { kills = append(kills, workflow) }}
	d := NewDeleter(config, registry, slots, killer, nil)

	slots[0].Assign(42)
	slots[0].SetPID(1000)
	slots[1].Assign(7)
	slots[1].SetPID(1001)
	slots[2].Assign(42)
	slots[2].SetPID(1002)

	assert.True(t, d.Request(protocol.Cancel{WorkflowID: 42, Checks: 1}))
	assert.Equal(t, 1, d.Scan())

	assert.ElementsMatch(t, []int{1000, 1002}, killer.Killed())
	assert.Equal(t, []int{42, 42}, kills)

	workflow, _ := slots[1].Snapshot()
	assert.Equal(t, 7, workflow)

	// Slots already released are not killed twice.
	d.Scan()
	assert.Len(t, killer.Killed(), 2)
}

func TestDeleterScanKeepsSlotWhenKillFails(t *testing.T) {
	registry := NewRegistry(4, 1)
	slots := NewSlots(1)
	killer := &fakeKiller{}
	killer.fail(errors.New("operation not permitted"))

	kills := 0
	config := DeleterConfig{OnKill: func(workflow, pid int) { kills++ }}
	d := NewDeleter(config, registry, slots, killer, nil)

	slots[0].Assign(42)
	slots[0].SetPID(1000)

	require.True(t, d.Request(protocol.Cancel{WorkflowID: 42, Checks: 1}))
	d.Scan()

	workflow, pid := slots[0].Snapshot()
	assert.Equal(t, 42, workflow)
	assert.Equal(t, 1000, pid)
	assert.Zero(t, kills)

	// The next pass tries again.
	killer.fail(nil)
	d.Scan()
	assert.Equal(t, []int{1000}, killer.Killed())
	assert.Equal(t, 1, kills)
	workflow, _ = slots[0].Snapshot()
	assert.Zero(t, workflow)
}

func TestSlotRestoreAfterReuse(t *testing.T) {
	s := NewSlots(1)[0]
	s.Assign(42)
	s.SetPID(1000)

	pid, ok := s.release(42)
	require.True(t, ok)

	// The dispatcher moved on to another job before the restore.
	s.Clear()
	s.Assign(7)
	s.SetPID(2000)
	s.restore(42, pid)

	workflow, _ := s.Snapshot()
	assert.Equal(t, 7, workflow)
}

func TestDeleterScanRetiresExpiredEntries(t *testing.T) {
	registry := NewRegistry(4, 1)
	d := NewDeleter(DeleterConfig{}, registry, NewSlots(1), &fakeKiller{}, nil)

	require.True(t, d.Request(protocol.Cancel{WorkflowID: 3, Checks: 1}))
	registry.Observe()
	registry.Observe()

	assert.Equal(t, 0, d.Scan())
	assert.Equal(t, 0, registry.Armed())
}

func TestDeleterConsumesCancellations(t *testing.T) {
	b := brokertest.New()
	registry := NewRegistry(4, 2)
	slots := NewSlots(1)
	killer := &fakeKiller{}

	config := DeleterConfig{
		Exchange:     "oph_delete",
		Queue:        "oph_delete.host.11732",
		ScanInterval: time.Millisecond,
	}
	d := NewDeleter(config, registry, slots, killer, b.Dialer())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx)
	}()

	require.Eventually(t, func() bool { return b.Bound(config.Exchange, config.Queue) }, time.Second, time.Millisecond)

	slots[0].Assign(42)
	slots[0].SetPID(4242)

	b.PublishExchange(config.Exchange, []byte("not a cancellation"))
	b.PublishExchange(config.Exchange, []byte("42*3"))

	require.Eventually(t, func() bool { return len(killer.Killed()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []int{4242}, killer.Killed())

	entry, ok := registry.Lookup(42)
	require.True(t, ok)
	assert.Equal(t, 6, entry.Budget)

	require.Eventually(t, func() bool { return len(b.Outcomes()) == 2 }, time.Second, time.Millisecond)
	outcomes := b.Outcomes()
	assert.Equal(t, brokertest.Outcome{Queue: config.Queue, Body: "not a cancellation"}, outcomes[0])
	assert.Equal(t, brokertest.Outcome{Queue: config.Queue, Body: "42*3", Acked: true}, outcomes[1])

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{config.Queue}, b.Deleted())
	assert.Equal(t, 0, b.OpenSessions())
}

func TestDeleterRetriesConnection(t *testing.T) {
	b := brokertest.New()
	b.FailDials(2)

	config := DeleterConfig{
		Exchange:       "oph_delete",
		Queue:          "oph_delete.host.1",
		ReconnectDelay: time.Millisecond,
	}
	d := NewDeleter(config, NewRegistry(1, 1), NewSlots(1), &fakeKiller{}, b.Dialer())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx)
	}()

	require.Eventually(t, func() bool { return b.Bound(config.Exchange, config.Queue) }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

package kthread

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type stubLock struct{ holder *Thread }

func (l *stubLock) Holder() *Thread { return l.holder }

func TestCheckInvariants_unsortedReadyQueue(t *testing.T) {
	s := newScheduler(t, WithMainThread("main", PriMax))
	s.Create("a", 10, func(any) {}, nil)
	s.Create("b", 20, func(any) {}, nil)
	require.NoError(t, s.CheckInvariants())

	s.ready.threads[0], s.ready.threads[1] = s.ready.threads[1], s.ready.threads[0]
	err := s.CheckInvariants()
	require.Error(t, err)
	require.Contains(t, err.Error(), "ready queue unsorted")
	s.ready.threads[0], s.ready.threads[1] = s.ready.threads[1], s.ready.threads[0]
}

func TestCheckInvariants_reportsEveryViolation(t *testing.T) {
	s := newScheduler(t, WithMainThread("main", PriMax))
	tid := s.Create("a", 10, func(any) {}, nil)
	a, _ := s.Lookup(tid)

	a.status = StatusDying
	s.earliestWake = 100
	s.sleepers.threads = append(s.sleepers.threads, &Thread{name: "ghost", wakeTick: 5, status: StatusBlocked, queue: queueSleep})

	err := s.CheckInvariants()
	require.Error(t, err)
	msg := err.Error()
	require.Contains(t, msg, "dying thread in the ready queue")
	require.Contains(t, msg, "earliest wake 100 after sleeper wake 5")
}

func TestCheckInvariants_waitCycle(t *testing.T) {
	s := newScheduler(t, WithMainThread("main", PriMax))
	a, _ := s.Lookup(s.Create("a", 10, func(any) {}, nil))
	b, _ := s.Lookup(s.Create("b", 10, func(any) {}, nil))
	a.waitOnLock = &stubLock{holder: b}
	b.waitOnLock = &stubLock{holder: a}

	err := s.CheckInvariants()
	require.Error(t, err)
	require.Contains(t, err.Error(), "lock wait-for cycle")
}

func TestQueue_rejectsDoubleMembership(t *testing.T) {
	s := newScheduler(t, WithMainThread("main", PriMax))
	a, _ := s.Lookup(s.Create("a", 10, func(any) {}, nil))

	err := recoverInvariant(func() { s.sleepers.pushBack(a) })
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "already in the ready queue")
}

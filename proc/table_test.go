package proc

import (
	"testing"

	"go.uber.org/zap"

	"minikern/mem"
)

// ═══════════════════════════════════════════════════════════════════════════
// MINIKERN Process Manager - Test Suite
// ═══════════════════════════════════════════════════════════════════════════
//
// TEST ORGANIZATION:
// ─────────────────
// 1. CREATE            field init, PID assignment, resource claims
// 2. BOUNDARIES        table full, stack exhaustion, rollback
// 3. STATE MACHINE     queue membership transitions, idempotence
// 4. READY QUEUE       priority order, FIFO within level
// 5. PRIORITY          set/boost relocation, saturation
// 6. TERMINATE         full teardown, unknown PIDs
// 7. SLEEP             timed wake, indefinite sleep
//
// The load-bearing invariant, checked after nearly every operation:
// a PCB is linked into the ready queue iff its state is READY.
//
// ═══════════════════════════════════════════════════════════════════════════

const testEntry mem.Addr = 0x0010_0000

func newTable() *Table {
	nop := zap.NewNop()
	return New(nop, nop, mem.New(nop))
}

// checkQueueInvariants verifies the state⇔queue law, the at-most-one
// CURRENT law, and non-increasing queue priority with FIFO sub-runs.
func checkQueueInvariants(t *testing.T, tb *Table) {
	t.Helper()

	current := 0
	for _, p := range tb.slots {
		if p == nil {
			continue
		}
		if (p.State == StateReady) != p.InQueue() {
			t.Errorf("pid %d: state %s but InQueue=%v", p.PID, p.State, p.InQueue())
		}
		if p.State == StateCurrent {
			current++
		}
	}
	if current > 1 {
		t.Errorf("%d CURRENT processes, want at most 1", current)
	}

	// Queue order: priority never increases front to back.
	n := 0
	var prev *PCB
	for p := tb.head; p != nil; p = p.next {
		n++
		if prev != nil && p.Priority > prev.Priority {
			t.Errorf("queue order violation: pid %d (%s) after pid %d (%s)",
				p.PID, p.Priority, prev.PID, prev.Priority)
		}
		prev = p
	}
	if n != tb.readyCount {
		t.Errorf("queue length %d, readyCount %d", n, tb.readyCount)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 1. CREATE
// ═══════════════════════════════════════════════════════════════════════════

func TestCreate_InitializesPCB(t *testing.T) {
	tb := newTable()
	p := tb.Create("worker", testEntry, PriorityHigh, 500)
	if p == nil {
		t.Fatal("Create returned nil")
	}

	if p.PID != 1 {
		t.Errorf("first PID = %d, want 1", p.PID)
	}
	if p.State != StateReady || !p.InQueue() {
		t.Errorf("new process state %s, queued %v; want READY and queued", p.State, p.InQueue())
	}
	if p.Quantum != 100 {
		t.Errorf("HIGH default quantum = %d, want 100", p.Quantum)
	}
	if p.RequiredTime != 500 || p.RemainingTime != 500 {
		t.Errorf("budget %d/%d, want 500/500", p.RequiredTime, p.RemainingTime)
	}
	if p.StackTop-p.StackBase != mem.Addr(p.StackSize) || p.StackSize != mem.StackSize {
		t.Errorf("stack geometry %08X..%08X size %d",
			uint32(p.StackBase), uint32(p.StackTop), p.StackSize)
	}
	checkQueueInvariants(t, tb)
}

func TestCreate_ContextImage(t *testing.T) {
	// WHAT: the creation-time register record points at the entry with an
	//       empty stack, interrupts enabled, kernel segments
	// WHY: restore must be able to launch the process from this image
	//      without any other component touching the record
	tb := newTable()
	p := tb.Create("ctx", testEntry, PriorityNormal, 0)

	if p.Ctx.EIP != uint32(testEntry) {
		t.Errorf("EIP = %08X, want %08X", p.Ctx.EIP, uint32(testEntry))
	}
	if p.Ctx.ESP != uint32(p.StackTop) || p.Ctx.EBP != uint32(p.StackTop) {
		t.Errorf("ESP/EBP = %08X/%08X, want stack top %08X",
			p.Ctx.ESP, p.Ctx.EBP, uint32(p.StackTop))
	}
	if p.Ctx.EFLAGS&0x200 == 0 {
		t.Errorf("EFLAGS = %08X, interrupt flag clear", p.Ctx.EFLAGS)
	}
	if p.Ctx.CS != 0x08 || p.Ctx.DS != 0x10 || p.Ctx.SS != 0x10 {
		t.Errorf("segments CS=%02X DS=%02X SS=%02X, want kernel defaults",
			p.Ctx.CS, p.Ctx.DS, p.Ctx.SS)
	}
	if p.Ctx.EAX != uint32(p.PID) {
		t.Errorf("EAX = %08X, want PID-derived %08X", p.Ctx.EAX, uint32(p.PID))
	}
}

func TestCreate_PIDsMonotonicNeverReused(t *testing.T) {
	// WHAT: PIDs keep climbing even across terminations
	// WHY: a stale PID must never alias a newer process
	tb := newTable()
	a := tb.Create("a", testEntry, PriorityNormal, 0)
	tb.Terminate(a.PID)
	b := tb.Create("b", testEntry, PriorityNormal, 0)
	if b.PID <= a.PID {
		t.Errorf("PID %d reused at or below %d", b.PID, a.PID)
	}
}

func TestCreate_NameTruncated(t *testing.T) {
	tb := newTable()
	p := tb.Create("this-name-is-far-too-long-to-store", testEntry, PriorityLow, 0)
	if len(p.Name) > MaxNameLen {
		t.Errorf("name length %d exceeds %d", len(p.Name), MaxNameLen)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 2. BOUNDARIES
// ═══════════════════════════════════════════════════════════════════════════

func TestCreate_TableFullRollsBack(t *testing.T) {
	// WHAT: the 33rd create fails and leaks neither PCB heap nor a stack
	// WHY: every failure step must release exactly what it claimed
	tb := newTable()
	for i := 0; i < MaxProcesses; i++ {
		if tb.Create("filler", testEntry, PriorityNormal, 0) == nil {
			t.Fatalf("create %d failed before the table was full", i)
		}
	}

	memBefore := tb.mem.Stats()
	if p := tb.Create("overflow", testEntry, PriorityNormal, 0); p != nil {
		t.Fatal("create succeeded on a full table")
	}
	memAfter := tb.mem.Stats()

	if memAfter.HeapUsed != memBefore.HeapUsed {
		t.Errorf("heap leaked: %d -> %d used", memBefore.HeapUsed, memAfter.HeapUsed)
	}
	if memAfter.StacksUsed != memBefore.StacksUsed {
		t.Errorf("stack slot leaked: %d -> %d used", memBefore.StacksUsed, memAfter.StacksUsed)
	}
	checkQueueInvariants(t, tb)
}

func TestCreate_AfterTerminateReusesSlot(t *testing.T) {
	tb := newTable()
	for i := 0; i < MaxProcesses; i++ {
		tb.Create("filler", testEntry, PriorityNormal, 0)
	}
	victim := tb.Snapshot()[5]
	tb.Terminate(victim.PID)
	if tb.Create("reborn", testEntry, PriorityNormal, 0) == nil {
		t.Error("create failed after a slot was released")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 3. STATE MACHINE
// ═══════════════════════════════════════════════════════════════════════════

func TestSetState_QueueMembershipFollowsState(t *testing.T) {
	tb := newTable()
	p := tb.Create("p", testEntry, PriorityNormal, 0)

	steps := []struct {
		to     State
		queued bool
	}{
		{StateBlocked, false},
		{StateReady, true},
		{StateCurrent, false},
		{StateReady, true},
		{StateSleeping, false},
		{StateReady, true},
	}
	for _, s := range steps {
		tb.SetState(p.PID, s.to)
		if p.State != s.to || p.InQueue() != s.queued {
			t.Errorf("after SetState(%s): state %s queued %v, want queued %v",
				s.to, p.State, p.InQueue(), s.queued)
		}
		checkQueueInvariants(t, tb)
	}
}

func TestSetState_Idempotent(t *testing.T) {
	// WHAT: repeating a transition is a no-op beyond the first call
	tb := newTable()
	p := tb.Create("p", testEntry, PriorityNormal, 0)
	q := tb.Create("q", testEntry, PriorityNormal, 0)

	tb.SetState(p.PID, StateBlocked)
	tb.SetState(p.PID, StateBlocked)
	if p.InQueue() || tb.readyCount != 1 {
		t.Errorf("double block broke queue accounting: count %d", tb.readyCount)
	}

	tb.SetState(q.PID, StateReady) // already READY
	if tb.readyCount != 1 {
		t.Errorf("re-READY duplicated a queue entry: count %d", tb.readyCount)
	}
	checkQueueInvariants(t, tb)
}

func TestSetState_CurrentPointerTracking(t *testing.T) {
	tb := newTable()
	p := tb.Create("p", testEntry, PriorityNormal, 0)
	q := tb.Create("q", testEntry, PriorityNormal, 0)

	tb.SetState(p.PID, StateCurrent)
	if tb.Current() != p {
		t.Fatal("current pointer not set")
	}

	// A second CURRENT displaces the pointer only via explicit
	// transitions; move p away first, as the scheduler does.
	tb.SetState(p.PID, StateReady)
	if tb.Current() != nil {
		t.Error("current pointer survives leaving CURRENT")
	}
	tb.SetState(q.PID, StateCurrent)
	if tb.Current() != q {
		t.Error("current pointer not retargeted")
	}
	checkQueueInvariants(t, tb)
}

func TestSetState_UnknownPID(t *testing.T) {
	tb := newTable()
	if tb.SetState(999, StateReady) {
		t.Error("SetState on unknown PID reported success")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 4. READY QUEUE
// ═══════════════════════════════════════════════════════════════════════════

func TestQueue_PriorityOrderWithFIFOWithinLevel(t *testing.T) {
	// WHAT: higher priority first; equal priority keeps insertion order
	// WHY: this single ordering rule is what every policy dispatches on
	tb := newTable()
	n1 := tb.Create("n1", testEntry, PriorityNormal, 0)
	h1 := tb.Create("h1", testEntry, PriorityHigh, 0)
	n2 := tb.Create("n2", testEntry, PriorityNormal, 0)
	l1 := tb.Create("l1", testEntry, PriorityLow, 0)
	h2 := tb.Create("h2", testEntry, PriorityHigh, 0)
	c1 := tb.Create("c1", testEntry, PriorityCritical, 0)

	want := []PID{c1.PID, h1.PID, h2.PID, n1.PID, n2.PID, l1.PID}
	got := tb.readyOrder()
	if len(got) != len(want) {
		t.Fatalf("queue length %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("queue[%d] = pid %d, want pid %d (order %v)", i, got[i], want[i], got)
		}
	}
	checkQueueInvariants(t, tb)
}

func TestQueue_DequeuePopsHighestPriority(t *testing.T) {
	tb := newTable()
	tb.Create("low", testEntry, PriorityLow, 0)
	hi := tb.Create("high", testEntry, PriorityHigh, 0)

	p := tb.DequeueReady()
	if p != hi {
		t.Errorf("dequeued pid %d, want pid %d", p.PID, hi.PID)
	}
	if p.InQueue() {
		t.Error("dequeued PCB still linked")
	}
	if tb.ReadyCount() != 1 {
		t.Errorf("ready count %d after dequeue, want 1", tb.ReadyCount())
	}
}

func TestQueue_DequeueEmptyReturnsNil(t *testing.T) {
	tb := newTable()
	if tb.DequeueReady() != nil {
		t.Error("dequeue on empty queue returned a PCB")
	}
}

func TestQueue_ReadmissionGoesBehindPeers(t *testing.T) {
	// WHAT: a process leaving and re-entering READY queues behind its
	//       equal-priority peers
	// WHY: this is the round-robin property within one level
	tb := newTable()
	a := tb.Create("a", testEntry, PriorityNormal, 0)
	b := tb.Create("b", testEntry, PriorityNormal, 0)

	tb.SetState(a.PID, StateCurrent)
	tb.SetState(a.PID, StateReady)

	if got := tb.readyOrder(); got[0] != b.PID || got[1] != a.PID {
		t.Errorf("readmission order %v, want [%d %d]", got, b.PID, a.PID)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 5. PRIORITY
// ═══════════════════════════════════════════════════════════════════════════

func TestSetPriority_RelocatesInQueue(t *testing.T) {
	tb := newTable()
	a := tb.Create("a", testEntry, PriorityLow, 0)
	b := tb.Create("b", testEntry, PriorityNormal, 0)

	tb.SetPriority(a.PID, PriorityHigh)
	if got := tb.readyOrder(); got[0] != a.PID || got[1] != b.PID {
		t.Errorf("order after raise %v, want a before b", got)
	}
	if a.Quantum != PriorityHigh.DefaultQuantum() {
		t.Errorf("quantum %d did not follow priority, want %d",
			a.Quantum, PriorityHigh.DefaultQuantum())
	}
	checkQueueInvariants(t, tb)
}

func TestBoostPriority_ReentersBehindNewPeers(t *testing.T) {
	// WHAT: a boosted process queues AFTER existing processes at the new
	//       level
	tb := newTable()
	n1 := tb.Create("n1", testEntry, PriorityNormal, 0)
	l1 := tb.Create("l1", testEntry, PriorityLow, 0)

	tb.BoostPriority(l1.PID)
	if l1.Priority != PriorityNormal {
		t.Fatalf("boost result %s, want NORMAL", l1.Priority)
	}
	if got := tb.readyOrder(); got[0] != n1.PID || got[1] != l1.PID {
		t.Errorf("boosted order %v, want boosted behind incumbent", got)
	}
}

func TestBoostPriority_SaturatesAtCritical(t *testing.T) {
	// WHAT: two boosts raise by min(2, CRITICAL - initial), never beyond
	tb := newTable()
	p := tb.Create("p", testEntry, PriorityHigh, 0)
	tb.SetState(p.PID, StateBlocked) // boost works off-queue too

	tb.BoostPriority(p.PID)
	tb.BoostPriority(p.PID)
	if p.Priority != PriorityCritical {
		t.Errorf("priority %s after double boost from HIGH, want CRITICAL", p.Priority)
	}
	tb.BoostPriority(p.PID)
	if p.Priority != PriorityCritical {
		t.Errorf("boost past CRITICAL: %s", p.Priority)
	}
}

func TestResetAge(t *testing.T) {
	tb := newTable()
	p := tb.Create("p", testEntry, PriorityLow, 0)
	p.Age = 57
	tb.ResetAge(p.PID)
	if p.Age != 0 {
		t.Errorf("age %d after reset, want 0", p.Age)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 6. TERMINATE
// ═══════════════════════════════════════════════════════════════════════════

func TestTerminate_ReleasesEverything(t *testing.T) {
	// WHAT: terminate unlinks, frees the stack slot, clears the table
	//       slot and returns the PCB heap image
	tb := newTable()
	memBefore := tb.mem.Stats()
	p := tb.Create("doomed", testEntry, PriorityNormal, 0)
	pid := p.PID

	if !tb.Terminate(pid) {
		t.Fatal("terminate failed")
	}
	if p.State != StateTerminated || p.InQueue() {
		t.Errorf("post-terminate state %s queued %v", p.State, p.InQueue())
	}
	if tb.Lookup(pid) != nil {
		t.Error("terminated PID still resolvable")
	}
	memAfter := tb.mem.Stats()
	if memAfter.HeapUsed != memBefore.HeapUsed || memAfter.StacksUsed != memBefore.StacksUsed {
		t.Errorf("resources leaked: heap %d->%d stacks %d->%d",
			memBefore.HeapUsed, memAfter.HeapUsed,
			memBefore.StacksUsed, memAfter.StacksUsed)
	}
	checkQueueInvariants(t, tb)
}

func TestTerminate_CurrentClearsCPU(t *testing.T) {
	tb := newTable()
	p := tb.Create("p", testEntry, PriorityNormal, 0)
	tb.SetState(p.PID, StateCurrent)
	tb.Terminate(p.PID)
	if tb.Current() != nil {
		t.Error("current pointer survives terminating the current process")
	}
}

func TestTerminate_UnknownPID(t *testing.T) {
	tb := newTable()
	if tb.Terminate(12345) {
		t.Error("terminate on unknown PID reported success")
	}
}

func TestExit_RecordsCodeOnCurrent(t *testing.T) {
	tb := newTable()
	p := tb.Create("p", testEntry, PriorityNormal, 0)
	tb.SetState(p.PID, StateCurrent)

	if !tb.Exit(42) {
		t.Fatal("exit failed with a current process")
	}
	if p.ExitCode != 42 || p.State != StateTerminated {
		t.Errorf("exit code %d state %s, want 42 TERMINATED", p.ExitCode, p.State)
	}
	if tb.Exit(0) {
		t.Error("exit succeeded with no current process")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 7. SLEEP
// ═══════════════════════════════════════════════════════════════════════════

func TestSleep_TimedWake(t *testing.T) {
	tb := newTable()
	tick := uint64(0)
	tb.Clock = func() uint64 { return tick }
	p := tb.Create("sleeper", testEntry, PriorityNormal, 0)

	tick = 10
	tb.Sleep(p.PID, 5)
	if p.State != StateSleeping || p.WakeTick != 15 {
		t.Fatalf("state %s wake %d, want SLEEPING at 15", p.State, p.WakeTick)
	}

	if n := tb.WakeDue(14); n != 0 || p.State != StateSleeping {
		t.Error("woke before the deadline")
	}
	if n := tb.WakeDue(15); n != 1 || p.State != StateReady {
		t.Errorf("deadline wake failed: state %s", p.State)
	}
	if p.WakeTick != 0 {
		t.Error("wake deadline not cleared on wake")
	}
	checkQueueInvariants(t, tb)
}

func TestSleep_ZeroTicksIsIndefinite(t *testing.T) {
	// WHAT: sleep(pid, 0) has no deadline; only Unblock wakes it
	tb := newTable()
	p := tb.Create("p", testEntry, PriorityNormal, 0)
	tb.Sleep(p.PID, 0)

	tb.WakeDue(1 << 40)
	if p.State != StateSleeping {
		t.Fatal("indefinite sleeper woke on its own")
	}
	tb.Unblock(p.PID)
	if p.State != StateReady {
		t.Error("unblock did not wake the indefinite sleeper")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// REPORTING
// ═══════════════════════════════════════════════════════════════════════════

func TestCounts(t *testing.T) {
	tb := newTable()
	a := tb.Create("a", testEntry, PriorityNormal, 0)
	tb.Create("b", testEntry, PriorityNormal, 0)
	tb.Create("c", testEntry, PriorityNormal, 0)
	tb.SetState(a.PID, StateBlocked)

	if got := tb.Count(); got != 3 {
		t.Errorf("Count = %d, want 3", got)
	}
	if got := tb.CountByState(StateReady); got != 2 {
		t.Errorf("CountByState(READY) = %d, want 2", got)
	}
	if got := tb.CountByState(StateBlocked); got != 1 {
		t.Errorf("CountByState(BLOCKED) = %d, want 1", got)
	}

	st := tb.GetStats()
	if st.Live != 3 || st.ReadyQueue != 2 {
		t.Errorf("GetStats live %d ready %d, want 3/2", st.Live, st.ReadyQueue)
	}
}

func TestSnapshot_OrderedByPID(t *testing.T) {
	tb := newTable()
	for i := 0; i < 5; i++ {
		tb.Create("p", testEntry, PriorityNormal, 0)
	}
	ps := tb.Snapshot()
	for i := 1; i < len(ps); i++ {
		if ps[i].PID <= ps[i-1].PID {
			t.Errorf("snapshot not PID-ordered at %d", i)
		}
	}
}

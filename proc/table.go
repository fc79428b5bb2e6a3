package proc

import (
	"go.uber.org/zap"

	"minikern/mem"
)

// ═══════════════════════════════════════════════════════════════════════════
// PROCESS TABLE AND LIFECYCLE
// ═══════════════════════════════════════════════════════════════════════════
//
// Fixed array of PCB pointers; nil = free slot. PIDs come from a monotonic
// counter and are never reused within a boot, so a stale PID can never
// alias a new process.
//
// Creation order matters: heap block → fields → stack slot → table slot →
// ready queue. Every failure step releases exactly what earlier steps
// claimed, so a failed create leaks nothing.
//
// ═══════════════════════════════════════════════════════════════════════════

// Table owns the process table, the ready queue and the current-process
// pointer. The scheduler mutates all three only through these operations.
type Table struct {
	log *zap.Logger
	ipc *zap.Logger
	mem *mem.Manager

	slots   [MaxProcesses]*PCB
	nextPID PID

	head, tail *PCB
	readyCount int

	current *PCB

	// Clock supplies the current tick for creation stamps and sleep
	// deadlines. Wired to the scheduler at boot; nil reads as tick 0.
	Clock func() uint64

	// OnAdmit fires after a new process enters the ready queue, giving
	// the scheduler a chance to take a dispatch decision before the next
	// tick (idle CPU, or a creation that outranks the current process).
	OnAdmit func(*PCB)
}

// New initializes an empty process table over the given memory manager.
func New(log, ipcLog *zap.Logger, m *mem.Manager) *Table {
	t := &Table{
		log:     log,
		ipc:     ipcLog,
		mem:     m,
		nextPID: IdlePID + 1,
	}
	t.log.Info("process table initialized", zap.Int("slots", MaxProcesses))
	return t
}

func (t *Table) now() uint64 {
	if t.Clock == nil {
		return 0
	}
	return t.Clock()
}

// Lookup returns the PCB for pid, nil when unknown.
func (t *Table) Lookup(pid PID) *PCB {
	if pid == IdlePID {
		return nil
	}
	for _, p := range t.slots {
		if p != nil && p.PID == pid {
			return p
		}
	}
	return nil
}

// Current returns the running process, nil when the CPU is idle.
func (t *Table) Current() *PCB { return t.current }

// ═══════════════════════════════════════════════════════════════════════════
// CREATE / TERMINATE
// ═══════════════════════════════════════════════════════════════════════════

// Create builds a new process in the READY state and admits it to the
// ready queue. requiredTime > 0 puts the process on an execution budget:
// it terminates itself after that many CPU ticks. Returns nil on any
// resource exhaustion; partial claims are rolled back.
func (t *Table) Create(name string, entry mem.Addr, priority Priority, requiredTime uint32) *PCB {
	if len(name) > MaxNameLen {
		name = name[:MaxNameLen]
	}
	if priority > PriorityCritical {
		priority = PriorityCritical
	}

	// Step 1: the PCB's own heap image.
	block := t.mem.Allocate(pcbImageSize)
	if block == 0 {
		t.log.Warn("create failed: no kernel heap", zap.String("name", name))
		return nil
	}

	// Step 2: identity and scheduling fields.
	pid := t.nextPID
	t.nextPID++

	p := &PCB{
		PID:           pid,
		Name:          name,
		State:         StateReady,
		Priority:      priority,
		Quantum:       priority.DefaultQuantum(),
		CreationTick:  t.now(),
		RequiredTime:  requiredTime,
		RemainingTime: requiredTime,
		heapBlock:     block,
	}

	// Step 3: stack slot (zeroed on claim).
	top := t.mem.StackAlloc(uint32(pid))
	if top == 0 {
		t.mem.Free(block)
		t.log.Warn("create failed: no stack slot", zap.String("name", name))
		return nil
	}
	p.StackTop = top
	p.StackBase = top - mem.Addr(mem.StackSize)
	p.StackSize = mem.StackSize

	// Execution begins at the entry point on an empty stack.
	p.Ctx.Init(pid, entry, top)

	// Step 4: table slot.
	slot := -1
	for i := range t.slots {
		if t.slots[i] == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		t.mem.StackFree(uint32(pid))
		t.mem.Free(block)
		t.log.Warn("create failed: process table full", zap.String("name", name))
		return nil
	}
	t.slots[slot] = p

	// Step 5: admit to the ready queue at priority position.
	t.enqueue(p)

	t.log.Info("process created",
		zap.Uint32("pid", uint32(pid)),
		zap.String("name", name),
		zap.String("priority", priority.String()),
		zap.Uint32("required_ticks", requiredTime))

	if t.OnAdmit != nil {
		t.OnAdmit(p)
	}
	return p
}

// Terminate tears a process down: queue unlink, current-pointer clear,
// TERMINATED state, stack release, table slot clear, heap image free.
// Unknown PIDs are a no-op returning false.
func (t *Table) Terminate(pid PID) bool {
	p := t.Lookup(pid)
	if p == nil {
		t.log.Warn("terminate: unknown pid", zap.Uint32("pid", uint32(pid)))
		return false
	}

	// Inspect the former state before overwriting it: READY means queue
	// cleanup, CURRENT means the CPU goes idle.
	if p.State == StateReady {
		t.unlink(p)
	}
	if t.current == p {
		t.current = nil
	}
	p.State = StateTerminated

	t.mem.StackFree(uint32(pid))

	for i := range t.slots {
		if t.slots[i] == p {
			t.slots[i] = nil
			break
		}
	}

	t.mem.Free(p.heapBlock)
	p.heapBlock = 0

	t.log.Info("process terminated",
		zap.Uint32("pid", uint32(pid)),
		zap.String("name", p.Name),
		zap.Int32("exit_code", p.ExitCode),
		zap.Uint32("cpu_ticks", p.CPUTime))
	return true
}

// Exit records an exit code on the current process and terminates it.
func (t *Table) Exit(code int32) bool {
	p := t.current
	if p == nil {
		t.log.Warn("exit: no current process")
		return false
	}
	p.ExitCode = code
	return t.Terminate(p.PID)
}

// ═══════════════════════════════════════════════════════════════════════════
// STATE MACHINE
// ═══════════════════════════════════════════════════════════════════════════

// SetState moves pid to newState, keeping queue membership and the
// current-process pointer consistent:
//
//	leaving READY    → unlink from the ready queue
//	entering READY   → insert at priority position
//	entering CURRENT → becomes the current process
//	leaving CURRENT  → current pointer cleared (when it was this PCB)
//
// Setting the state a process already has is a no-op.
func (t *Table) SetState(pid PID, newState State) bool {
	p := t.Lookup(pid)
	if p == nil {
		t.log.Warn("set state: unknown pid", zap.Uint32("pid", uint32(pid)))
		return false
	}
	if p.State == newState {
		return true
	}

	old := p.State

	if old == StateReady {
		t.unlink(p)
	}
	if old == StateCurrent && t.current == p {
		t.current = nil
	}

	p.State = newState

	switch newState {
	case StateReady:
		p.WakeTick = 0
		t.enqueue(p)
	case StateCurrent:
		t.current = p
	}
	return true
}

// Block suspends pid until an explicit Unblock.
func (t *Table) Block(pid PID) bool { return t.SetState(pid, StateBlocked) }

// Unblock returns a suspended pid to the ready queue.
func (t *Table) Unblock(pid PID) bool { return t.SetState(pid, StateReady) }

// Sleep puts pid into SLEEPING. ticks > 0 arms an automatic wake that many
// ticks from now; ticks == 0 sleeps until an explicit Unblock, exactly
// like Block.
func (t *Table) Sleep(pid PID, ticks uint32) bool {
	if !t.SetState(pid, StateSleeping) {
		return false
	}
	p := t.Lookup(pid)
	if ticks > 0 {
		p.WakeTick = t.now() + uint64(ticks)
	} else {
		p.WakeTick = 0
	}
	return true
}

// WakeDue moves every sleeper whose deadline has passed back to READY.
// Called by the scheduler once per tick, before accounting. Returns the
// number woken.
func (t *Table) WakeDue(now uint64) int {
	woken := 0
	for _, p := range t.slots {
		if p == nil || p.State != StateSleeping || p.WakeTick == 0 {
			continue
		}
		if now >= p.WakeTick {
			t.SetState(p.PID, StateReady)
			woken++
		}
	}
	return woken
}

// ChargeWaiting bumps the wait counter of every READY process by one tick.
// Bookkeeping only; nothing reads it for scheduling decisions.
func (t *Table) ChargeWaiting() {
	for p := t.head; p != nil; p = p.next {
		p.WaitTime++
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// PRIORITY
// ═══════════════════════════════════════════════════════════════════════════

// SetPriority moves pid to priority pr. A READY process is relocated in
// the queue: it leaves its old level and enters BEHIND every process
// already at the new level. Unless an explicit quantum override is
// pinned, the default quantum follows the new level.
func (t *Table) SetPriority(pid PID, pr Priority) bool {
	p := t.Lookup(pid)
	if p == nil {
		t.log.Warn("set priority: unknown pid", zap.Uint32("pid", uint32(pid)))
		return false
	}
	if pr > PriorityCritical {
		pr = PriorityCritical
	}
	if p.Priority == pr {
		return true
	}

	wasQueued := p.queued
	if wasQueued {
		t.unlink(p)
	}
	p.Priority = pr
	if !p.QuantumFixed {
		p.Quantum = pr.DefaultQuantum()
	}
	if wasQueued {
		t.enqueue(p)
	}
	return true
}

// BoostPriority raises pid by one level, saturating at CRITICAL.
func (t *Table) BoostPriority(pid PID) bool {
	p := t.Lookup(pid)
	if p == nil {
		return false
	}
	if p.Priority >= PriorityCritical {
		return true
	}
	return t.SetPriority(pid, p.Priority+1)
}

// ResetAge clears pid's age counter.
func (t *Table) ResetAge(pid PID) bool {
	p := t.Lookup(pid)
	if p == nil {
		return false
	}
	p.Age = 0
	return true
}

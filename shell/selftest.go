package shell

import (
	"fmt"

	"minikern/proc"
)

// ═══════════════════════════════════════════════════════════════════════════
// BUILT-IN SCENARIOS (memtest / proctest)
// ═══════════════════════════════════════════════════════════════════════════
//
// Smoke scenarios runnable from the live shell. Each prints one PASS/FAIL
// line and cleans up after itself; the engine keeps running either way.
//
// ═══════════════════════════════════════════════════════════════════════════

func (sh *Shell) report(name string, ok bool) bool {
	verdict := "FAIL"
	if ok {
		verdict = "PASS"
	}
	sh.con.PutString(fmt.Sprintf("  [%s] %s\n", verdict, name))
	return ok
}

func (sh *Shell) runMemTest() {
	m := sh.k.Mem
	sh.con.PutString("memory scenarios:\n")
	passed := 0
	total := 0
	run := func(name string, ok bool) {
		total++
		if sh.report(name, ok) {
			passed++
		}
	}

	// Allocate/free round trip: the free-byte total is restored.
	before := m.Stats().HeapFree
	p := m.Allocate(1024)
	mid := m.Stats().HeapFree
	m.Free(p)
	after := m.Stats().HeapFree
	run("alloc/free round trip", p != 0 && mid == before-1024 && after == before)

	// Free-then-refit: a freed gap is reused at the same base.
	a := m.Allocate(512)
	b := m.Allocate(2048)
	c := m.Allocate(256)
	m.Free(b)
	d := m.Allocate(1024)
	run("first-fit reuses freed gap", d == b && d != 0)
	m.Free(a)
	m.Free(c)
	m.Free(d)
	run("coalesce restores free total", m.Stats().HeapFree == before)

	// Zero-size requests return null.
	run("zero-size alloc is null", m.Allocate(0) == 0)

	// Double free is detected, not fatal.
	e := m.Allocate(64)
	m.Free(e)
	failsBefore := m.Stats().Failures
	m.Free(e)
	run("double free detected", m.Stats().Failures == failsBefore+1)

	// Invalid pointer free is detected, not fatal.
	failsBefore = m.Stats().Failures
	m.Free(0x00300001)
	run("invalid pointer free detected", m.Stats().Failures == failsBefore+1)

	sh.con.PutString(fmt.Sprintf("memtest: %d/%d passed\n", passed, total))
}

func (sh *Shell) runProcTest() {
	t := sh.k.Proc
	sh.con.PutString("process scenarios:\n")
	passed := 0
	total := 0
	run := func(name string, ok bool) {
		total++
		if sh.report(name, ok) {
			passed++
		}
	}

	// Create/terminate round trip: table count restored.
	countBefore := t.Count()
	p := t.Create("pt-roundtrip", demoEntry, proc.PriorityNormal, 0)
	created := p != nil && t.Lookup(p.PID) == p && p.State != proc.StateTerminated
	if p != nil {
		t.Terminate(p.PID)
	}
	run("create/terminate round trip", created && t.Count() == countBefore)

	// Priority ordering: a HIGH creation outranks a LOW one in the queue
	// (and takes the CPU at once when the scheduler is running).
	lo := t.Create("pt-low", demoEntry, proc.PriorityLow, 0)
	hi := t.Create("pt-high", demoEntry, proc.PriorityHigh, 0)
	ordered := lo != nil && hi != nil
	if ordered {
		if sh.k.Sched.Running() {
			ordered = t.Current() == hi ||
				(t.Current() != nil && t.Current().Priority >= proc.PriorityHigh)
		} else {
			ordered = t.PeekReady() == hi
		}
	}
	run("high priority outranks low", ordered)
	if hi != nil {
		t.Terminate(hi.PID)
	}
	if lo != nil {
		t.Terminate(lo.PID)
	}

	// IPC: send lands in the ring, fills at capacity, rejects overflow.
	r := t.Create("pt-ipc", demoEntry, proc.PriorityNormal, 0)
	ipcOK := r != nil
	if ipcOK {
		for i := 0; i < proc.MsgCapacity; i++ {
			ipcOK = ipcOK && t.Send(r.PID, uint32(i)) == proc.IPCOK
		}
		ipcOK = ipcOK && t.HasMessage(r.PID)
		ipcOK = ipcOK && t.Send(r.PID, 0xFFFF) == proc.IPCErrFull
		t.Terminate(r.PID)
	}
	run("message ring fills at capacity", ipcOK)

	sh.con.PutString(fmt.Sprintf("proctest: %d/%d passed\n", passed, total))
}

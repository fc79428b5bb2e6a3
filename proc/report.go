package proc

import (
	"fmt"

	"golang.org/x/exp/slices"

	"minikern/console"
)

// ═══════════════════════════════════════════════════════════════════════════
// REPORTING
// ═══════════════════════════════════════════════════════════════════════════
//
// Single-scan, read-only views of the process table. Slot order is an
// artifact of slot reuse, so user-facing listings are sorted by PID.
//
// ═══════════════════════════════════════════════════════════════════════════

// Count returns the number of live processes.
func (t *Table) Count() int {
	n := 0
	for _, p := range t.slots {
		if p != nil {
			n++
		}
	}
	return n
}

// CountByState returns the number of live processes in state s.
func (t *Table) CountByState(s State) int {
	n := 0
	for _, p := range t.slots {
		if p != nil && p.State == s {
			n++
		}
	}
	return n
}

// ForEach visits every live PCB in table-slot order. Read-mostly walker
// for the scheduler's aging pass; fn must not create or terminate.
func (t *Table) ForEach(fn func(*PCB)) {
	for _, p := range t.slots {
		if p != nil {
			fn(p)
		}
	}
}

// Snapshot returns the live PCBs ordered by PID.
func (t *Table) Snapshot() []*PCB {
	var ps []*PCB
	for _, p := range t.slots {
		if p != nil {
			ps = append(ps, p)
		}
	}
	slices.SortFunc(ps, func(a, b *PCB) int { return int(a.PID) - int(b.PID) })
	return ps
}

// PrintTable emits the process listing through the byte sink.
func (t *Table) PrintTable(sink console.Sink) {
	ps := t.Snapshot()
	sink.PutString(fmt.Sprintf("%d process(es)\n", len(ps)))
	sink.PutString("  PID  NAME             STATE       PRI       CPU     WAIT  REMAINING\n")
	for _, p := range ps {
		marker := " "
		if p.State == StateCurrent {
			marker = "*"
		}
		sink.PutString(fmt.Sprintf("%s %4d  %-15s  %-10s  %-8s %6d  %7d  %9d\n",
			marker, p.PID, p.Name, p.State, p.Priority,
			p.CPUTime, p.WaitTime, p.RemainingTime))
	}
}

// PrintInfo emits the full detail record for one process. Unknown PIDs
// print a one-line notice.
func (t *Table) PrintInfo(sink console.Sink, pid PID) {
	p := t.Lookup(pid)
	if p == nil {
		sink.PutString(fmt.Sprintf("no such process: %d\n", pid))
		return
	}
	sink.PutString(fmt.Sprintf("process %d (%s)\n", p.PID, p.Name))
	sink.PutString(fmt.Sprintf("  state:       %s\n", p.State))
	sink.PutString(fmt.Sprintf("  priority:    %s (quantum %d)\n", p.Priority, p.Quantum))
	sink.PutString(fmt.Sprintf("  age:         %d\n", p.Age))
	sink.PutString(fmt.Sprintf("  cpu ticks:   %d\n", p.CPUTime))
	sink.PutString(fmt.Sprintf("  wait ticks:  %d\n", p.WaitTime))
	sink.PutString(fmt.Sprintf("  created at:  tick %d\n", p.CreationTick))
	if p.RequiredTime > 0 {
		sink.PutString(fmt.Sprintf("  budget:      %d/%d ticks\n", p.CPUTime, p.RequiredTime))
	}
	if p.State == StateSleeping && p.WakeTick > 0 {
		sink.PutString(fmt.Sprintf("  wakes at:    tick %d\n", p.WakeTick))
	}
	sink.PutString("  stack:       ")
	sink.PutHex32(uint32(p.StackBase))
	sink.PutString("..")
	sink.PutHex32(uint32(p.StackTop))
	sink.PutString(fmt.Sprintf(" (%d bytes)\n", p.StackSize))
	sink.PutString("  context:     EIP=")
	sink.PutHex32(p.Ctx.EIP)
	sink.PutString(" ESP=")
	sink.PutHex32(p.Ctx.ESP)
	sink.PutString("\n")
	sink.PutString(fmt.Sprintf("  messages:    %d pending", p.MsgCount))
	if p.WaitingMsg {
		sink.PutString(" (waiting for message)")
	}
	sink.PutString("\n")
}

// TableStats is the aggregate view behind get_stats.
type TableStats struct {
	Live       int
	ByState    [6]int
	TotalCPU   uint64
	TotalWait  uint64
	NextPID    PID
	ReadyQueue int
}

// GetStats derives the aggregate counters in a single scan.
func (t *Table) GetStats() TableStats {
	st := TableStats{NextPID: t.nextPID, ReadyQueue: t.readyCount}
	for _, p := range t.slots {
		if p == nil {
			continue
		}
		st.Live++
		st.ByState[p.State]++
		st.TotalCPU += uint64(p.CPUTime)
		st.TotalWait += uint64(p.WaitTime)
	}
	return st
}

package mem

import (
	"fmt"

	"minikern/console"
)

// Stats is a point-in-time summary of allocator state, derived by a single
// scan of the bookkeeping. No mutation.
type Stats struct {
	HeapTotal   uint32
	HeapUsed    uint32
	HeapFree    uint32
	LargestFree uint32
	Blocks      int
	FreeBlocks  int

	StacksTotal int
	StacksUsed  int
	StacksFree  int

	Allocations uint64
	Frees       uint64
	Failures    uint64
}

// Stats scans the descriptor array and stack pool.
func (m *Manager) Stats() Stats {
	st := Stats{
		HeapTotal:   HeapSize,
		Blocks:      len(m.blocks),
		StacksTotal: NumStacks,
		Allocations: m.allocations,
		Frees:       m.frees,
		Failures:    m.failures,
	}
	for i := range m.blocks {
		b := &m.blocks[i]
		if b.free {
			st.FreeBlocks++
			st.HeapFree += b.size
			if b.size > st.LargestFree {
				st.LargestFree = b.size
			}
		} else {
			st.HeapUsed += b.size
		}
	}
	for i := range m.stacks {
		if m.stacks[i].free {
			st.StacksFree++
		} else {
			st.StacksUsed++
		}
	}
	return st
}

// PrintStats emits the memstats report through the byte sink.
func (m *Manager) PrintStats(sink console.Sink) {
	st := m.Stats()
	sink.PutString("Memory statistics\n")
	sink.PutString("  heap base:     ")
	sink.PutHex32(uint32(HeapBase))
	sink.PutString(fmt.Sprintf("\n  heap total:    %d bytes\n", st.HeapTotal))
	sink.PutString(fmt.Sprintf("  heap used:     %d bytes\n", st.HeapUsed))
	sink.PutString(fmt.Sprintf("  heap free:     %d bytes\n", st.HeapFree))
	sink.PutString(fmt.Sprintf("  largest free:  %d bytes\n", st.LargestFree))
	sink.PutString(fmt.Sprintf("  descriptors:   %d (%d free)\n", st.Blocks, st.FreeBlocks))
	sink.PutString(fmt.Sprintf("  stack slots:   %d/%d in use\n", st.StacksUsed, st.StacksTotal))
	sink.PutString(fmt.Sprintf("  allocations:   %d  frees: %d  failures: %d\n",
		st.Allocations, st.Frees, st.Failures))
}

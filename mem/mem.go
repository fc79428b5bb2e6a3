// ═══════════════════════════════════════════════════════════════════════════
// MINIKERN Memory Manager - Fixed-Region Heap + Stack Pool
// ═══════════════════════════════════════════════════════════════════════════
//
// DESIGN:
// ──────
// 1. One contiguous physical region at a fixed build-time address
// 2. First-fit heap: descriptor array, split on allocation, coalesce on free
// 3. Stack pool: N fixed slots above the heap, one per process
// 4. Failure by null return, never by abort; bookkeeping never corrupts
//
// LAYOUT (part of the external contract with the boot stub / linker):
// ──────────────────────────────────────────────────────────────────
//   0x0020_0000  heap base
//   0x01E0_0000  heap size (30 MiB)
//   0x0200_0000  stack pool base (32 slots × 16 KiB)
//   0x0208_0000  end of managed memory
//
// The region itself is a flat bounds-checked byte slice. On hardware the
// slice disappears and the addresses become real; nothing else changes.
//
// ═══════════════════════════════════════════════════════════════════════════

package mem

import (
	"go.uber.org/zap"
)

// Addr is a physical address inside the managed region. 0 is the null
// address: no managed range ever starts below HeapBase.
type Addr uint32

const (
	// HeapBase and HeapSize pin the general allocation arena.
	HeapBase Addr   = 0x0020_0000
	HeapSize uint32 = 0x01E0_0000

	// StackPoolBase sits immediately above the heap. Slot i occupies
	// StackPoolBase + i*StackSize.
	StackPoolBase Addr   = HeapBase + Addr(HeapSize)
	NumStacks            = 32
	StackSize     uint32 = 0x4000

	// RegionEnd is the first address past managed memory.
	RegionEnd = StackPoolBase + Addr(NumStacks*StackSize)

	// MaxBlocks bounds the heap descriptor array. Allocate/free/coalesce
	// are O(MaxBlocks) worst case, which is fine at this scale.
	MaxBlocks = 1024

	// SplitThreshold: a block is split only when the remainder would
	// exceed this, so the free list never fills with unusable slivers.
	SplitThreshold uint32 = 32

	// allocAlign: every request is rounded up to 4 bytes.
	allocAlign uint32 = 4
)

// blockDesc is one heap bookkeeping entry. The array is kept sorted by
// base: splits insert the remainder right after the parent and coalesce
// removes merged neighbours, so order is preserved by construction.
type blockDesc struct {
	base Addr
	size uint32
	free bool
}

// stackSlot describes one fixed stack. owner is the PID holding the slot,
// 0 when free.
type stackSlot struct {
	base  Addr
	top   Addr
	size  uint32
	owner uint32
	free  bool
}

// Manager owns the physical region and all allocation bookkeeping. One per
// kernel, initialized once at boot, single-threaded like the rest of the
// engine.
type Manager struct {
	log *zap.Logger

	// data backs [HeapBase, RegionEnd). Index = addr - HeapBase.
	data []byte

	blocks []blockDesc // heap descriptors, base-sorted, cap MaxBlocks
	stacks [NumStacks]stackSlot

	// Lifetime counters (monotonic; Prometheus mirrors them).
	allocations uint64
	frees       uint64
	failures    uint64
}

// New initializes the memory manager: the whole heap as a single FREE
// descriptor and every stack slot free.
func New(log *zap.Logger) *Manager {
	registerMetrics()

	m := &Manager{
		log:    log,
		data:   make([]byte, uint32(RegionEnd-HeapBase)),
		blocks: make([]blockDesc, 1, MaxBlocks),
	}
	m.blocks[0] = blockDesc{base: HeapBase, size: HeapSize, free: true}

	for i := range m.stacks {
		base := StackPoolBase + Addr(uint32(i)*StackSize)
		m.stacks[i] = stackSlot{
			base: base,
			top:  base + Addr(StackSize),
			size: StackSize,
			free: true,
		}
	}

	m.log.Info("memory manager initialized",
		zap.Uint32("heap_base", uint32(HeapBase)),
		zap.Uint32("heap_size", HeapSize),
		zap.Int("stack_slots", NumStacks))
	return m
}

// ═══════════════════════════════════════════════════════════════════════════
// REGION ACCESS
// ═══════════════════════════════════════════════════════════════════════════
//
// Bounds-checked flat loads and stores. Out-of-range access reads as zero
// and writes nowhere: the model has no bus fault to raise.
//
// ═══════════════════════════════════════════════════════════════════════════

func (m *Manager) inRange(p Addr, n uint32) bool {
	return p >= HeapBase && uint32(p-HeapBase)+n <= uint32(len(m.data))
}

// Load32 reads a little-endian word.
func (m *Manager) Load32(p Addr) uint32 {
	if !m.inRange(p, 4) {
		return 0
	}
	off := p - HeapBase
	return uint32(m.data[off]) |
		uint32(m.data[off+1])<<8 |
		uint32(m.data[off+2])<<16 |
		uint32(m.data[off+3])<<24
}

// Store32 writes a little-endian word.
func (m *Manager) Store32(p Addr, v uint32) {
	if !m.inRange(p, 4) {
		return
	}
	off := p - HeapBase
	m.data[off] = byte(v)
	m.data[off+1] = byte(v >> 8)
	m.data[off+2] = byte(v >> 16)
	m.data[off+3] = byte(v >> 24)
}

// Zero clears n bytes starting at p.
func (m *Manager) Zero(p Addr, n uint32) {
	if !m.inRange(p, n) {
		return
	}
	off := p - HeapBase
	clear(m.data[off : uint32(off)+n])
}

// Copy moves n bytes from src to dst (forward copy; callers never overlap).
func (m *Manager) Copy(dst, src Addr, n uint32) {
	if !m.inRange(dst, n) || !m.inRange(src, n) {
		return
	}
	copy(m.data[dst-HeapBase:uint32(dst-HeapBase)+n], m.data[src-HeapBase:uint32(src-HeapBase)+n])
}

// ═══════════════════════════════════════════════════════════════════════════
// HEAP ALLOCATOR (first-fit, split, coalesce)
// ═══════════════════════════════════════════════════════════════════════════

// Allocate returns the base address of a block of at least n bytes, or 0.
//
// WHAT: First-fit scan over the descriptor array
// HOW:  Round to alignment → scan → on miss coalesce and retry once →
//       split when the remainder is worth keeping
func (m *Manager) Allocate(n uint32) Addr {
	if n == 0 {
		return 0
	}
	n = (n + allocAlign - 1) &^ (allocAlign - 1)

	idx := m.findFit(n)
	if idx < 0 {
		// One coalesce pass may assemble a large-enough block out of
		// fragmented neighbours.
		m.coalesce()
		idx = m.findFit(n)
	}
	if idx < 0 {
		m.failures++
		memFailures.Inc()
		m.log.Warn("out of memory", zap.Uint32("requested", n))
		return 0
	}

	b := &m.blocks[idx]

	// Split when the tail is big enough to be a block of its own and the
	// descriptor array has room. Inserting right after the parent keeps
	// the array base-sorted.
	if b.size > n+SplitThreshold && len(m.blocks) < MaxBlocks {
		rest := blockDesc{base: b.base + Addr(n), size: b.size - n, free: true}
		b.size = n
		m.blocks = append(m.blocks, blockDesc{})
		copy(m.blocks[idx+2:], m.blocks[idx+1:])
		m.blocks[idx+1] = rest
		b = &m.blocks[idx]
	}

	b.free = false
	m.allocations++
	memAllocations.Inc()
	return b.base
}

// findFit returns the index of the first FREE descriptor with size >= n,
// or -1. The array is base-sorted, so first fit is lowest-address fit.
func (m *Manager) findFit(n uint32) int {
	for i := range m.blocks {
		if m.blocks[i].free && m.blocks[i].size >= n {
			return i
		}
	}
	return -1
}

// Free releases the block whose base is p. Bad pointers and double frees
// are logged no-ops.
func (m *Manager) Free(p Addr) {
	if p == 0 {
		return
	}
	idx := m.findBlock(p)
	if idx < 0 {
		m.failures++
		memFailures.Inc()
		m.log.Warn("invalid pointer free", zap.Uint32("addr", uint32(p)))
		return
	}
	if m.blocks[idx].free {
		m.failures++
		memFailures.Inc()
		m.log.Warn("double free", zap.Uint32("addr", uint32(p)))
		return
	}
	m.blocks[idx].free = true
	m.frees++
	memReleases.Inc()
	m.coalesce()
}

// Reallocate resizes the block at p to n bytes, moving it if it must grow.
func (m *Manager) Reallocate(p Addr, n uint32) Addr {
	if p == 0 {
		return m.Allocate(n)
	}
	if n == 0 {
		m.Free(p)
		return 0
	}
	idx := m.findBlock(p)
	if idx < 0 || m.blocks[idx].free {
		m.failures++
		memFailures.Inc()
		m.log.Warn("invalid pointer realloc", zap.Uint32("addr", uint32(p)))
		return 0
	}
	old := m.blocks[idx].size
	if old >= n {
		return p
	}
	np := m.Allocate(n)
	if np == 0 {
		return 0
	}
	m.Copy(np, p, old)
	m.Free(p)
	return np
}

// ZeroAllocate allocates count*size bytes and zero-fills them.
func (m *Manager) ZeroAllocate(count, size uint32) Addr {
	total := count * size
	p := m.Allocate(total)
	if p == 0 {
		return 0
	}
	// Zero the rounded size, not just the request, so a later exact-size
	// reuse sees clean memory.
	m.Zero(p, m.BlockSize(p))
	return p
}

// BlockSize reports the bookkept size of the block at p, 0 if unknown.
func (m *Manager) BlockSize(p Addr) uint32 {
	idx := m.findBlock(p)
	if idx < 0 {
		return 0
	}
	return m.blocks[idx].size
}

func (m *Manager) findBlock(p Addr) int {
	for i := range m.blocks {
		if m.blocks[i].base == p {
			return i
		}
	}
	return -1
}

// coalesce merges adjacent FREE descriptors until none remain adjacent.
//
// HOW: For each FREE entry, look for another FREE entry starting exactly at
// base+size; absorb it and compact the array by shift. Repeat to fixpoint.
// The invariant on exit: no two adjacent FREE descriptors exist.
func (m *Manager) coalesce() int {
	merges := 0
	for {
		merged := false
		for i := 0; i < len(m.blocks); i++ {
			if !m.blocks[i].free {
				continue
			}
			for j := 0; j < len(m.blocks); j++ {
				if j == i || !m.blocks[j].free {
					continue
				}
				if m.blocks[j].base == m.blocks[i].base+Addr(m.blocks[i].size) {
					m.blocks[i].size += m.blocks[j].size
					m.blocks = append(m.blocks[:j], m.blocks[j+1:]...)
					merges++
					merged = true
					break
				}
			}
			if merged {
				break
			}
		}
		if !merged {
			break
		}
	}
	if merges > 0 {
		memCoalesceMerges.Add(float64(merges))
	}
	return merges
}

// ═══════════════════════════════════════════════════════════════════════════
// STACK POOL
// ═══════════════════════════════════════════════════════════════════════════
//
// One fixed 16 KiB slot per process. Claimed on creation, zeroed on claim,
// released on termination. Ownership is exclusive: a PID holds at most one
// slot, a slot is held by at most one PID.
//
// ═══════════════════════════════════════════════════════════════════════════

// StackAlloc claims the first free slot for pid and returns its top address
// (stacks grow down). Returns 0 when the pool is exhausted.
func (m *Manager) StackAlloc(pid uint32) Addr {
	for i := range m.stacks {
		s := &m.stacks[i]
		if !s.free {
			continue
		}
		s.free = false
		s.owner = pid
		m.Zero(s.base, s.size)
		return s.top
	}
	m.failures++
	memFailures.Inc()
	m.log.Warn("no free stack slot", zap.Uint32("pid", pid))
	return 0
}

// StackFree releases the slot owned by pid. Unknown owners are a no-op.
func (m *Manager) StackFree(pid uint32) {
	for i := range m.stacks {
		s := &m.stacks[i]
		if !s.free && s.owner == pid {
			s.free = true
			s.owner = 0
			return
		}
	}
}

// StackBase returns the base of pid's stack, 0 if pid owns none.
func (m *Manager) StackBase(pid uint32) Addr {
	for i := range m.stacks {
		if !m.stacks[i].free && m.stacks[i].owner == pid {
			return m.stacks[i].base
		}
	}
	return 0
}

// StackTop returns the top of pid's stack, 0 if pid owns none.
func (m *Manager) StackTop(pid uint32) Addr {
	for i := range m.stacks {
		if !m.stacks[i].free && m.stacks[i].owner == pid {
			return m.stacks[i].top
		}
	}
	return 0
}

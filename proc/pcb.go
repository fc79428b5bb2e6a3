// ═══════════════════════════════════════════════════════════════════════════
// MINIKERN Process Manager - PCB and State Machine
// ═══════════════════════════════════════════════════════════════════════════
//
// DESIGN:
// ──────
// 1. One PCB per process; the PCB owns its stack slot and heap block
// 2. Exactly-one-state machine: READY ⇔ linked into the ready queue
// 3. Priority-ordered doubly-linked ready queue, FIFO within level
// 4. Fixed 16-word message ring per process
// 5. Opaque CPU context record: written by save, read by restore, never
//    interpreted by the core
//
// ═══════════════════════════════════════════════════════════════════════════

package proc

import (
	"minikern/mem"
)

// PID identifies a process. PIDs are assigned monotonically and never
// reused within one boot. PID 0 is reserved (idle/none).
type PID uint32

// IdlePID is the reserved "no process" identity.
const IdlePID PID = 0

const (
	// MaxProcesses bounds the process table.
	MaxProcesses = 32

	// MaxNameLen bounds the display name stored in the PCB.
	MaxNameLen = 15

	// MsgCapacity is the fixed message ring size, in words.
	MsgCapacity = 16

	// pcbImageSize is the footprint of one PCB in kernel heap bytes. The
	// reference model keeps the live record on the Go heap, but the
	// allocation is real: creation fails when the kernel heap cannot
	// carry another PCB image.
	pcbImageSize uint32 = 256
)

// State is the scheduling state of a process.
type State uint8

const (
	StateReady State = iota
	StateCurrent
	StateBlocked
	StateWaiting
	StateSleeping
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateCurrent:
		return "CURRENT"
	case StateBlocked:
		return "BLOCKED"
	case StateWaiting:
		return "WAITING"
	case StateSleeping:
		return "SLEEPING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// Priority is the scheduling priority level. Higher value = more urgent.
type Priority uint8

const (
	PriorityLow      Priority = 0
	PriorityNormal   Priority = 1
	PriorityHigh     Priority = 2
	PriorityCritical Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// DefaultQuantum maps a priority level to its default time slice in ticks.
// Higher priority gets a shorter quantum: urgent work runs soon and often,
// background work runs long and rarely.
func (p Priority) DefaultQuantum() uint32 {
	switch p {
	case PriorityCritical:
		return 50
	case PriorityHigh:
		return 100
	case PriorityNormal:
		return 150
	default:
		return 200
	}
}

// Context is the per-process CPU register record. The core owns the
// storage but never interprets the fields: Init writes it once at
// creation, and the scheduler's save/restore path is the only other code
// allowed to touch it. The fields exist so real save/restore assembly can
// drop in later without changing any other component.
type Context struct {
	EIP    uint32
	ESP    uint32
	EBP    uint32
	EFLAGS uint32

	EAX uint32
	EBX uint32
	ECX uint32
	EDX uint32
	ESI uint32
	EDI uint32

	CS uint32
	DS uint32
	SS uint32
}

const (
	// Reset values for a fresh context: interrupts enabled, flat kernel
	// code and data segments.
	flagsInterruptsEnabled = 0x0000_0202
	kernelCodeSegment      = 0x08
	kernelDataSegment      = 0x10
)

// InitContext writes the creation-time register image: execution starts at
// the entry point with an empty stack. General registers carry
// deterministic PID-derived values so a context switch is observable in
// register dumps without real hardware.
func (c *Context) Init(pid PID, entry, stackTop mem.Addr) {
	c.EIP = uint32(entry)
	c.ESP = uint32(stackTop)
	c.EBP = uint32(stackTop)
	c.EFLAGS = flagsInterruptsEnabled

	c.EAX = uint32(pid)
	c.EBX = uint32(pid) << 4
	c.ECX = uint32(pid) << 8
	c.EDX = uint32(pid) << 12
	c.ESI = 0
	c.EDI = 0

	c.CS = kernelCodeSegment
	c.DS = kernelDataSegment
	c.SS = kernelDataSegment
}

// PCB is the Process Control Block: everything the kernel knows about one
// process.
type PCB struct {
	// Identity
	PID       PID
	Name      string
	ParentPID PID
	ExitCode  int32

	// Scheduling
	State          State
	Priority       Priority
	Age            uint32
	Quantum        uint32 // per-process time slice (default from priority)
	QuantumFixed   bool   // set when an explicit override pins Quantum
	SliceRemaining uint32 // ticks left in the current slice
	CPUTime        uint32 // cumulative ticks on the CPU
	WaitTime       uint32 // cumulative ticks spent READY
	CreationTick   uint64

	// Execution budget (simulation mode). RequiredTime 0 = unbounded.
	RequiredTime  uint32
	RemainingTime uint32

	// Timed sleep. 0 = no automatic wake.
	WakeTick uint64

	// Memory ownership, exclusive to this PCB for its lifetime.
	StackBase mem.Addr
	StackTop  mem.Addr
	StackSize uint32
	heapBlock mem.Addr // this PCB's own kernel heap allocation

	// CPU context record (opaque, see Context).
	Ctx Context

	// IPC: fixed ring, FIFO.
	Messages   [MsgCapacity]uint32
	MsgCount   int
	WaitingMsg bool

	// Ready queue links. Valid only while queued (State == READY).
	prev, next *PCB
	queued     bool
}

// InQueue reports whether the PCB is currently linked into the ready
// queue. Exposed for invariant checking.
func (p *PCB) InQueue() bool { return p.queued }

package proc

import (
	"go.uber.org/zap"
)

// ═══════════════════════════════════════════════════════════════════════════
// IPC - FIXED MESSAGE RINGS
// ═══════════════════════════════════════════════════════════════════════════
//
// Each process owns a 16-word FIFO ring. Send appends to the destination's
// ring; Receive pops the caller's own. A receive on an empty ring blocks
// the caller and raises its waiting-for-message flag; the next send to it
// clears the flag and unblocks it. That is the engine's only suspension
// point.
//
// Failures are negative return codes, never partial state changes.
//
// ═══════════════════════════════════════════════════════════════════════════

// IPC result codes.
const (
	IPCOK          = 0
	IPCErrNoDest   = -1 // destination PID unknown
	IPCErrFull     = -2 // destination ring at capacity
	IPCErrNoSender = -3 // receive with no current process
	IPCErrEmpty    = -4 // receive on empty ring; caller is now blocked
)

// Send appends word to dest's message ring. If dest was blocked waiting
// for a message, it is unblocked exactly once and its flag cleared.
func (t *Table) Send(dest PID, word uint32) int {
	p := t.Lookup(dest)
	if p == nil {
		t.ipc.Warn("send: unknown destination", zap.Uint32("dest", uint32(dest)))
		return IPCErrNoDest
	}
	if p.MsgCount >= MsgCapacity {
		t.ipc.Warn("send: message queue full",
			zap.Uint32("dest", uint32(dest)),
			zap.Int("capacity", MsgCapacity))
		return IPCErrFull
	}

	p.Messages[p.MsgCount] = word
	p.MsgCount++

	if p.WaitingMsg {
		p.WaitingMsg = false
		t.Unblock(dest)
	}
	return IPCOK
}

// Receive pops the oldest word from the current process's ring into out.
// On an empty ring the caller is blocked with its waiting-for-message flag
// set and IPCErrEmpty is returned; the call itself never suspends.
func (t *Table) Receive(out *uint32) int {
	p := t.current
	if p == nil {
		t.ipc.Warn("receive: no current process")
		return IPCErrNoSender
	}

	if p.MsgCount == 0 {
		p.WaitingMsg = true
		t.Block(p.PID)
		return IPCErrEmpty
	}

	*out = p.Messages[0]
	// Shift the remainder down; capacity 16 keeps this trivial.
	copy(p.Messages[:], p.Messages[1:p.MsgCount])
	p.MsgCount--
	return IPCOK
}

// HasMessage reports whether pid has at least one pending message.
func (t *Table) HasMessage(pid PID) bool {
	p := t.Lookup(pid)
	return p != nil && p.MsgCount > 0
}

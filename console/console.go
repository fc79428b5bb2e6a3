// ═══════════════════════════════════════════════════════════════════════════
// MINIKERN Serial Console - Byte Sink / Byte Source
// ═══════════════════════════════════════════════════════════════════════════
//
// The console is the kernel's only I/O device. Everything the engine says
// goes out through single-byte writes; everything the shell reads comes in
// through single-byte reads. On real hardware this would be a 16550 UART
// behind two port registers; in the reference model it is an io.Writer and
// an io.Reader.
//
// The sink contract is byte-exact:
//   - PutHex32 emits exactly 8 uppercase hex digits, no prefix
//   - PutDec32 emits the minimal decimal form
//
// The console also satisfies zapcore.WriteSyncer so the kernel's structured
// logger drains into the same device as the shell output. One device, one
// ordering.
//
// ═══════════════════════════════════════════════════════════════════════════

package console

import (
	"io"
)

// Sink is the byte-oriented output contract consumed by the core.
type Sink interface {
	PutByte(b byte)
	PutString(s string)
	PutHex32(v uint32)
	PutDec32(v uint32)
}

// Source is the blocking byte input contract consumed by the shell.
type Source interface {
	// GetByte blocks until one byte is available. The second return is
	// false once the underlying reader is exhausted (host EOF).
	GetByte() (byte, bool)
}

// Console couples a byte sink and a byte source over host streams.
type Console struct {
	w io.Writer
	r io.Reader

	// Single-byte scratch buffers. The device is single-threaded like
	// everything else in the engine, so these never race.
	wbuf [1]byte
	rbuf [1]byte
}

// New wires a console over the given host streams. r may be nil for a
// write-only console (logs without a shell).
func New(w io.Writer, r io.Reader) *Console {
	return &Console{w: w, r: r}
}

// PutByte writes one byte to the device. Write errors are swallowed: the
// serial line has no backchannel and the kernel has no failure path for
// diagnostics about diagnostics.
func (c *Console) PutByte(b byte) {
	c.wbuf[0] = b
	c.w.Write(c.wbuf[:])
}

// PutString writes each byte of s in order.
func (c *Console) PutString(s string) {
	for i := 0; i < len(s); i++ {
		c.PutByte(s[i])
	}
}

const hexDigits = "0123456789ABCDEF"

// PutHex32 emits v as exactly 8 uppercase hex digits, no prefix.
//
// WHAT: Fixed-width hex for addresses and register dumps
// HOW: Nibble extraction, most significant first
func (c *Console) PutHex32(v uint32) {
	for shift := 28; shift >= 0; shift -= 4 {
		c.PutByte(hexDigits[(v>>uint(shift))&0xF])
	}
}

// PutDec32 emits v in minimal decimal form.
//
// HOW: Divide-down into a 10-byte scratch (2^32-1 has 10 digits), then
// drain back-to-front. No allocation, no fmt.
func (c *Console) PutDec32(v uint32) {
	if v == 0 {
		c.PutByte('0')
		return
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	for ; i < len(buf); i++ {
		c.PutByte(buf[i])
	}
}

// ClearScreen emits the ANSI clear + home sequence.
func (c *Console) ClearScreen() {
	c.PutString("\x1b[2J\x1b[H")
}

// GetByte blocks for one byte of input.
func (c *Console) GetByte() (byte, bool) {
	if c.r == nil {
		return 0, false
	}
	for {
		n, err := c.r.Read(c.rbuf[:])
		if n == 1 {
			return c.rbuf[0], true
		}
		if err != nil {
			return 0, false
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// ZAP SINK ADAPTER
// ═══════════════════════════════════════════════════════════════════════════

// Write satisfies io.Writer so the console can back a zapcore.WriteSyncer.
// The logger's output is serial traffic like any other.
func (c *Console) Write(p []byte) (int, error) {
	for _, b := range p {
		c.PutByte(b)
	}
	return len(p), nil
}

// Sync is a no-op: the device writes through on every byte.
func (c *Console) Sync() error { return nil }

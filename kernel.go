// ═══════════════════════════════════════════════════════════════════════════
// MINIKERN - Deterministic Tick-Driven Process Scheduling Engine
// ═══════════════════════════════════════════════════════════════════════════
//
// An educational single-CPU kernel core as an executable reference model:
// a fixed-region memory manager, a process manager with a priority ready
// queue and message-ring IPC, and a tick-driven preemptive scheduler with
// priority aging.
//
// Boot order is fixed and happens exactly once per kernel:
//
//	memory manager → process table → scheduler
//
// SINGLE-THREADED CONTRACT:
// ────────────────────────
// The engine runs cooperatively on one CPU. Tick processing, dispatch
// decisions, queue mutations and IPC are atomic units; nothing preempts a
// core operation, so no component takes a lock. Every kernel entry point
// must be called from one goroutine. A port to a threaded substrate must
// put one monitor around every ready-queue and table mutation; nothing
// finer-grained is part of the design.
//
// ═══════════════════════════════════════════════════════════════════════════

package minikern

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"minikern/console"
	"minikern/mem"
	"minikern/proc"
	"minikern/sched"
)

// Kernel owns the three engine singletons and the console they share.
type Kernel struct {
	Console *console.Console
	Log     *zap.Logger

	Mem   *mem.Manager
	Proc  *proc.Table
	Sched *sched.Scheduler
}

// New boots a kernel over the given console. The scheduler comes up
// stopped; call Boot to start accepting ticks.
func New(con *console.Console) *Kernel {
	log := newLogger(con)

	m := mem.New(log.Named("memory"))
	t := proc.New(log.Named("process"), log.Named("ipc"), m)
	s := sched.New(log.Named("scheduler"), t)

	// Close the loop: the table stamps creations and sleep deadlines
	// from the scheduler's tick clock, and pokes it on admission.
	t.Clock = s.Now
	t.OnAdmit = s.Admit

	return &Kernel{
		Console: con,
		Log:     log,
		Mem:     m,
		Proc:    t,
		Sched:   s,
	}
}

// Boot starts the scheduler.
func (k *Kernel) Boot() {
	k.Sched.Start()
}

// Stats returns a one-screen summary across all three subsystems.
func (k *Kernel) Stats() string {
	ms := k.Mem.Stats()
	ps := k.Proc.GetStats()
	ss := k.Sched.StatsSnapshot()
	return fmt.Sprintf(`minikern status
  heap:      %d/%d bytes used, %d descriptors
  stacks:    %d/%d slots used
  processes: %d live, %d ready, next pid %d
  ticks:     %d total, %d idle
  switches:  %d (%d preemptions, %d yields, %d boosts)
`,
		ms.HeapUsed, ms.HeapTotal, ms.Blocks,
		ms.StacksUsed, ms.StacksTotal,
		ps.Live, ps.ReadyQueue, ps.NextPID,
		ss.TotalTicks, ss.IdleTicks,
		ss.ContextSwitches, ss.Preemptions, ss.VoluntaryYields, ss.AgingBoosts,
	)
}

// ═══════════════════════════════════════════════════════════════════════════
// DIAGNOSTIC LOGGER
// ═══════════════════════════════════════════════════════════════════════════
//
// All kernel diagnostics drain through the serial console as lines tagged
// with the owning component: [MEMORY], [PROCESS], [SCHEDULER], [IPC].
// Output carries no timestamps: the engine's clock is the tick counter,
// and log output must be deterministic for a given command sequence.
//
// ═══════════════════════════════════════════════════════════════════════════

func newLogger(con *console.Console) *zap.Logger {
	enc := zapcore.EncoderConfig{
		MessageKey:       "msg",
		NameKey:          "name",
		LevelKey:         zapcore.OmitKey,
		TimeKey:          zapcore.OmitKey,
		CallerKey:        zapcore.OmitKey,
		StacktraceKey:    zapcore.OmitKey,
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeName:       bracketNameEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), con, zapcore.InfoLevel)
	return zap.New(core)
}

// bracketNameEncoder renders a component name as its diagnostic tag:
// "memory" → "[MEMORY]".
func bracketNameEncoder(name string, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + strings.ToUpper(name) + "]")
}

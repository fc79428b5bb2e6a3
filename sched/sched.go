// ═══════════════════════════════════════════════════════════════════════════
// MINIKERN Scheduler - Tick Accounting, Policy Selection, Aging
// ═══════════════════════════════════════════════════════════════════════════
//
// DESIGN:
// ──────
// 1. One logical tick = one unit of CPU time = one unit of quantum. The
//    constants below only mean anything while this stays 1:1.
// 2. Per-tick order is fixed: wake sleepers → CPU accounting → completion
//    check → quantum decrement → preemption decision → periodic aging.
// 3. Every policy reduces to popping the ready-queue head; the queue
//    already encodes priority and FIFO-within-level.
// 4. Aging: READY processes accumulate age at each aging pass; on crossing
//    the threshold they are boosted one level and their age resets. No
//    process starves forever.
// 5. No operation aborts. Empty queue on schedule leaves the CPU idle.
//
// ═══════════════════════════════════════════════════════════════════════════

package sched

import (
	"go.uber.org/zap"

	"minikern/proc"
)

// Policy selects the dispatch discipline.
//
// All four delegate to the ready-queue head: the queue is priority-ordered
// and FIFO within level, which already realizes PRIORITY, degenerates to
// FIFO under equal priorities (ROUND_ROBIN with preemption, FCFS without),
// and leaves PRIORITY_RR identical to PRIORITY until per-level rotation
// pointers exist. The variant records intent and keeps the dispatch
// surface stable for richer policies later.
type Policy uint8

const (
	PolicyRoundRobin Policy = iota
	PolicyPriority
	PolicyPriorityRR
	PolicyFCFS
)

func (p Policy) String() string {
	switch p {
	case PolicyRoundRobin:
		return "ROUND_ROBIN"
	case PolicyPriority:
		return "PRIORITY"
	case PolicyPriorityRR:
		return "PRIORITY_RR"
	case PolicyFCFS:
		return "FCFS"
	default:
		return "UNKNOWN"
	}
}

const (
	// MinQuantum / MaxQuantum clamp every configurable quantum.
	MinQuantum uint32 = 10
	MaxQuantum uint32 = 1000

	// Aging defaults: every AgingInterval ticks, READY processes age by
	// one; at AgingThreshold they are boosted one priority level.
	DefaultAgingThreshold uint32 = 100
	DefaultAgingInterval  uint64 = 50

	// DefaultQuantum is the level-independent slice used by the
	// round-robin policy, where priority-derived quanta do not apply.
	DefaultQuantum uint32 = 100
)

// Config is the runtime-mutable scheduler configuration.
type Config struct {
	Policy            Policy
	DefaultQuantum    uint32
	AgingEnabled      bool
	AgingThreshold    uint32
	AgingInterval     uint64
	PreemptionEnabled bool
}

// Stats are the scheduler's monotonic counters. They only grow, except
// through an explicit ResetStats.
type Stats struct {
	TotalTicks      uint64
	IdleTicks       uint64
	ContextSwitches uint64
	Preemptions     uint64
	VoluntaryYields uint64
	AgingBoosts     uint64
}

// Scheduler drives the engine: an external clock calls Tick once per
// logical tick, and everything else follows.
type Scheduler struct {
	log   *zap.Logger
	table *proc.Table

	running bool
	cfg     Config
	stats   Stats

	// cpu is the live register file of the simulated CPU. A context
	// switch saves it into the outgoing PCB's record and reloads it from
	// the incoming one. Nothing else reads or writes it.
	cpu proc.Context
}

// New builds a stopped scheduler with the default configuration.
func New(log *zap.Logger, table *proc.Table) *Scheduler {
	registerMetrics()
	s := &Scheduler{
		log:   log,
		table: table,
		cfg: Config{
			Policy:            PolicyPriority,
			DefaultQuantum:    DefaultQuantum,
			AgingEnabled:      true,
			AgingThreshold:    DefaultAgingThreshold,
			AgingInterval:     DefaultAgingInterval,
			PreemptionEnabled: true,
		},
	}
	s.log.Info("scheduler initialized", zap.String("policy", s.cfg.Policy.String()))
	return s
}

// Start sets the running flag. Ticks are ignored until then.
func (s *Scheduler) Start() {
	if s.running {
		return
	}
	s.running = true
	s.log.Info("scheduler started")
}

// Stop clears the running flag. The current process keeps its state; time
// simply stops advancing.
func (s *Scheduler) Stop() {
	if !s.running {
		return
	}
	s.running = false
	s.log.Info("scheduler stopped")
}

// Running reports the running flag.
func (s *Scheduler) Running() bool { return s.running }

// Now returns the monotonic tick counter. This is the engine's only clock.
func (s *Scheduler) Now() uint64 { return s.stats.TotalTicks }

// ═══════════════════════════════════════════════════════════════════════════
// TICK HANDLER
// ═══════════════════════════════════════════════════════════════════════════

// Tick advances logical time by one unit. Invoked once per external tick
// while running; a stopped scheduler ignores it.
//
// The step order is a contract (see §2 of the package banner): completion
// is checked before the quantum so a process finishing on its last slice
// tick terminates rather than being preempted, and aging runs last so a
// boost never reorders the queue mid-decision.
func (s *Scheduler) Tick() {
	if !s.running {
		return
	}

	s.stats.TotalTicks++
	schedTicks.Inc()

	// Housekeeping walk: due sleepers return to READY, waiters accrue
	// wait time. Before accounting so a fresh wake can be dispatched on
	// this very tick if the CPU is idle.
	s.table.WakeDue(s.stats.TotalTicks)
	s.table.ChargeWaiting()

	c := s.table.Current()
	if c == nil {
		s.stats.IdleTicks++
		schedIdleTicks.Inc()
		s.Schedule()
		return
	}

	// CPU accounting: one tick billed to the current process.
	c.CPUTime++
	if c.RequiredTime > 0 {
		if c.RemainingTime > 0 {
			c.RemainingTime--
		}
		if c.CPUTime >= c.RequiredTime {
			s.log.Info("process completed",
				zap.Uint32("pid", uint32(c.PID)),
				zap.String("name", c.Name),
				zap.Uint32("cpu_ticks", c.CPUTime),
				zap.Uint64("tick", s.stats.TotalTicks))
			s.table.Terminate(c.PID)
			s.Schedule()
			return
		}
	}

	// Quantum accounting and the preemption decision.
	if c.SliceRemaining > 0 {
		c.SliceRemaining--
		if s.cfg.PreemptionEnabled && c.SliceRemaining == 0 {
			s.stats.Preemptions++
			schedPreemptions.Inc()
			s.Schedule()
			return
		}
	}

	// Periodic aging pass.
	if s.cfg.AgingEnabled && s.stats.TotalTicks%s.cfg.AgingInterval == 0 {
		s.checkAging()
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// DISPATCH
// ═══════════════════════════════════════════════════════════════════════════

// Schedule performs one dispatch decision: the current process (if still
// CURRENT) returns to the ready queue at its priority position, and the
// policy picks a successor. An empty queue idles the CPU.
func (s *Scheduler) Schedule() {
	if !s.running {
		return
	}

	prev := s.table.Current()
	if prev != nil && prev.State == proc.StateCurrent {
		// The sole return-to-queue path: re-enters behind its
		// priority peers, which is what makes equal-priority
		// scheduling round-robin.
		s.table.SetState(prev.PID, proc.StateReady)
	}

	next := s.selectNext()
	if next == nil {
		s.log.Info("no runnable process, cpu idle")
		return
	}

	s.table.SetState(next.PID, proc.StateCurrent)
	q := s.effectiveQuantum(next)
	if !next.QuantumFixed {
		// Keep the stored quantum in step with what was actually
		// granted, so remaining ≤ quantum holds under every policy.
		next.Quantum = q
	}
	next.SliceRemaining = q
	s.stats.ContextSwitches++
	schedContextSwitches.Inc()

	if prev != next && prev != nil {
		s.switchContext(prev, next)
	} else if prev == nil {
		s.restoreContext(next)
	}
}

// selectNext dispatches on policy. Every current policy delegates to the
// ready-queue head (see the Policy doc).
func (s *Scheduler) selectNext() *proc.PCB {
	switch s.cfg.Policy {
	case PolicyRoundRobin, PolicyPriority, PolicyPriorityRR, PolicyFCFS:
		return s.table.DequeueReady()
	default:
		return s.table.DequeueReady()
	}
}

// effectiveQuantum resolves the slice for a dispatched process: an
// explicit per-process override wins; round-robin uses the configured
// flat quantum; otherwise the per-priority default.
func (s *Scheduler) effectiveQuantum(p *proc.PCB) uint32 {
	if p.QuantumFixed {
		return p.Quantum
	}
	if s.cfg.Policy == PolicyRoundRobin {
		return s.cfg.DefaultQuantum
	}
	return p.Priority.DefaultQuantum()
}

// Yield gives up the CPU voluntarily.
func (s *Scheduler) Yield() {
	s.stats.VoluntaryYields++
	s.Schedule()
}

// Admit is the process manager's creation hook: a new READY process takes
// the CPU immediately when the CPU is idle, or when preemption is enabled
// and it outranks the current process. Wired as Table.OnAdmit at boot.
func (s *Scheduler) Admit(p *proc.PCB) {
	if !s.running {
		return
	}
	c := s.table.Current()
	if c == nil || (s.cfg.PreemptionEnabled && p.Priority > c.Priority) {
		s.Schedule()
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// CONTEXT SWITCH
// ═══════════════════════════════════════════════════════════════════════════
//
// The record is opaque: save copies the live register file into the
// outgoing PCB, restore loads it from the incoming one. These two
// assignments are the only code in the engine allowed to touch context
// bytes; on real hardware they become the save/restore assembly.
//
// ═══════════════════════════════════════════════════════════════════════════

func (s *Scheduler) switchContext(prev, next *proc.PCB) {
	prev.Ctx = s.cpu
	s.cpu = next.Ctx
}

func (s *Scheduler) restoreContext(next *proc.PCB) {
	s.cpu = next.Ctx
}

// ═══════════════════════════════════════════════════════════════════════════
// AGING
// ═══════════════════════════════════════════════════════════════════════════

// checkAging walks the table: every READY process ages by one; at the
// threshold it is boosted one level (re-entering BEHIND its new peers)
// and its age resets. CRITICAL processes never boost further.
func (s *Scheduler) checkAging() {
	s.table.ForEach(func(p *proc.PCB) {
		if p.State != proc.StateReady {
			return
		}
		p.Age++
		if p.Age >= s.cfg.AgingThreshold && p.Priority < proc.PriorityCritical {
			old := p.Priority
			s.table.BoostPriority(p.PID)
			s.table.ResetAge(p.PID)
			s.stats.AgingBoosts++
			schedAgingBoosts.Inc()
			s.log.Info("aging boost",
				zap.Uint32("pid", uint32(p.PID)),
				zap.String("from", old.String()),
				zap.String("to", p.Priority.String()),
				zap.Uint64("tick", s.stats.TotalTicks))
		}
	})
}

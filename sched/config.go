package sched

import (
	"go.uber.org/zap"

	"minikern/proc"
)

// ═══════════════════════════════════════════════════════════════════════════
// RUNTIME CONFIGURATION
// ═══════════════════════════════════════════════════════════════════════════
//
// Every knob is mutable while the engine runs. Quanta are clamped to
// [MinQuantum, MaxQuantum]; every change is logged old → new. Changes take
// effect at the next dispatch; the current slice is never rewritten.
//
// ═══════════════════════════════════════════════════════════════════════════

// clampQuantum forces q into the legal range.
func clampQuantum(q uint32) uint32 {
	if q < MinQuantum {
		return MinQuantum
	}
	if q > MaxQuantum {
		return MaxQuantum
	}
	return q
}

// Configuration returns a copy of the active configuration.
func (s *Scheduler) Configuration() Config { return s.cfg }

// SetPolicy switches the dispatch policy.
func (s *Scheduler) SetPolicy(p Policy) {
	if p > PolicyFCFS {
		return
	}
	if p == s.cfg.Policy {
		return
	}
	s.log.Info("policy changed",
		zap.String("old", s.cfg.Policy.String()),
		zap.String("new", p.String()))
	s.cfg.Policy = p
}

// SetDefaultQuantum changes the flat round-robin quantum, clamped.
func (s *Scheduler) SetDefaultQuantum(q uint32) uint32 {
	q = clampQuantum(q)
	if q != s.cfg.DefaultQuantum {
		s.log.Info("default quantum changed",
			zap.Uint32("old", s.cfg.DefaultQuantum),
			zap.Uint32("new", q))
		s.cfg.DefaultQuantum = q
	}
	return q
}

// SetProcessQuantum pins an explicit per-process quantum override,
// clamped. The override survives priority changes until the process
// terminates. Unknown PIDs are a logged no-op.
func (s *Scheduler) SetProcessQuantum(pid proc.PID, q uint32) bool {
	p := s.table.Lookup(pid)
	if p == nil {
		s.log.Warn("set process quantum: unknown pid", zap.Uint32("pid", uint32(pid)))
		return false
	}
	q = clampQuantum(q)
	s.log.Info("process quantum override",
		zap.Uint32("pid", uint32(pid)),
		zap.Uint32("old", p.Quantum),
		zap.Uint32("new", q))
	p.Quantum = q
	p.QuantumFixed = true
	return true
}

// SetAging configures the starvation protection.
func (s *Scheduler) SetAging(enabled bool, threshold uint32, interval uint64) {
	if threshold == 0 {
		threshold = 1
	}
	if interval == 0 {
		interval = 1
	}
	s.log.Info("aging configured",
		zap.Bool("enabled", enabled),
		zap.Uint32("threshold", threshold),
		zap.Uint64("interval", interval))
	s.cfg.AgingEnabled = enabled
	s.cfg.AgingThreshold = threshold
	s.cfg.AgingInterval = interval
}

// SetPreemption toggles quantum-expiry preemption. FCFS setups disable it.
func (s *Scheduler) SetPreemption(enabled bool) {
	if enabled == s.cfg.PreemptionEnabled {
		return
	}
	s.log.Info("preemption toggled", zap.Bool("enabled", enabled))
	s.cfg.PreemptionEnabled = enabled
}

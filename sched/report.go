package sched

import (
	"fmt"

	"minikern/console"
)

// StatsSnapshot returns a copy of the counters.
func (s *Scheduler) StatsSnapshot() Stats { return s.stats }

// ResetStats zeroes the counters. The tick clock restarts too, so this is
// only safe on a quiet engine (no live sleep deadlines or creation
// stamps); the shell does not expose it.
func (s *Scheduler) ResetStats() { s.stats = Stats{} }

// PrintStats emits the schedstats report through the byte sink.
func (s *Scheduler) PrintStats(sink console.Sink) {
	st := s.stats
	busy := uint64(0)
	if st.TotalTicks > 0 {
		busy = (st.TotalTicks - st.IdleTicks) * 100 / st.TotalTicks
	}
	sink.PutString("Scheduler statistics\n")
	sink.PutString(fmt.Sprintf("  total ticks:       %d\n", st.TotalTicks))
	sink.PutString(fmt.Sprintf("  idle ticks:        %d (%d%% busy)\n", st.IdleTicks, busy))
	sink.PutString(fmt.Sprintf("  context switches:  %d\n", st.ContextSwitches))
	sink.PutString(fmt.Sprintf("  preemptions:       %d\n", st.Preemptions))
	sink.PutString(fmt.Sprintf("  voluntary yields:  %d\n", st.VoluntaryYields))
	sink.PutString(fmt.Sprintf("  aging boosts:      %d\n", st.AgingBoosts))
}

// PrintConfig emits the schedconf report through the byte sink.
func (s *Scheduler) PrintConfig(sink console.Sink) {
	c := s.cfg
	running := "stopped"
	if s.running {
		running = "running"
	}
	sink.PutString("Scheduler configuration\n")
	sink.PutString(fmt.Sprintf("  state:            %s\n", running))
	sink.PutString(fmt.Sprintf("  policy:           %s\n", c.Policy))
	sink.PutString(fmt.Sprintf("  default quantum:  %d ticks (clamp %d..%d)\n",
		c.DefaultQuantum, MinQuantum, MaxQuantum))
	sink.PutString(fmt.Sprintf("  preemption:       %v\n", c.PreemptionEnabled))
	sink.PutString(fmt.Sprintf("  aging:            %v (threshold %d, every %d ticks)\n",
		c.AgingEnabled, c.AgingThreshold, c.AgingInterval))
}

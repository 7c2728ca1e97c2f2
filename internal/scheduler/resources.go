package scheduler

import "github.com/cwobiora/oncoflow/internal/config"

// ledger tracks the combined resource reservation of all running stages
// against the run's global ceiling. A ceiling dimension of zero means that
// dimension is unbounded.
type ledger struct {
	ceiling config.ResourceSpec
	inUse   config.ResourceSpec
}

func newLedger(ceiling config.ResourceSpec) *ledger {
	return &ledger{ceiling: ceiling}
}

// admits reports whether dispatching a stage with the given spec would keep
// the combined reservation within the ceiling.
func (l *ledger) admits(spec config.ResourceSpec) bool {
	return withinCeiling(l.inUse.Add(spec), l.ceiling)
}

func (l *ledger) reserve(spec config.ResourceSpec) {
	l.inUse = l.inUse.Add(spec)
}

func (l *ledger) release(spec config.ResourceSpec) {
	l.inUse.Cpus -= spec.Cpus
	l.inUse.MemoryMB -= spec.MemoryMB
}

func withinCeiling(spec, ceiling config.ResourceSpec) bool {
	if ceiling.Cpus > 0 && spec.Cpus > ceiling.Cpus {
		return false
	}
	if ceiling.MemoryMB > 0 && spec.MemoryMB > ceiling.MemoryMB {
		return false
	}
	return true
}

package rhi

import "fmt"

// Stats is a snapshot of device bookkeeping.
type Stats struct {
	// Containers is the number of live buffers, textures and transfer buffers.
	Containers int64
	// Generations is the number of physical resources backing them.
	Generations int64
	// Cycles counts writes that switched to another generation.
	Cycles uint64
	// Reuses counts cycles that found an idle generation.
	Reuses uint64
	// Allocations counts cycles that allocated a new generation.
	Allocations uint64
	// Submissions counts submitted command buffers.
	Submissions uint64

	CommandBuffers       int64
	PooledCommandBuffers int
	InFlight             int
	Fences               int64
	PooledFences         int
	UniformRings         int64
	PooledUniformRings   int
	PendingDestroys      int
}

// String returns a compact single-line summary.
func (s Stats) String() string {
	return fmt.Sprintf("Stats[%d containers, %d generations, %d cycles (%d reused, %d allocated), "+
		"%d/%d command buffers pooled, %d in flight, %d/%d fences pooled, %d/%d rings pooled, %d pending destroys]",
		s.Containers, s.Generations, s.Cycles, s.Reuses, s.Allocations,
		s.PooledCommandBuffers, s.CommandBuffers, s.InFlight,
		s.PooledFences, s.Fences, s.PooledUniformRings, s.UniformRings, s.PendingDestroys)
}

// Stats returns current device statistics.
func (d *Device) Stats() Stats {
	s := Stats{
		Containers:     d.stats.containers.Load(),
		Generations:    d.stats.generations.Load(),
		Cycles:         d.stats.cycles.Load(),
		Reuses:         d.stats.reuses.Load(),
		Allocations:    d.stats.allocations.Load(),
		Submissions:    d.stats.submissions.Load(),
		CommandBuffers: d.stats.cmdBuffers.Load(),
		Fences:         d.stats.fences.Load(),
		UniformRings:   d.stats.rings.Load(),
	}
	d.poolMu.Lock()
	s.PooledCommandBuffers = d.available.Len()
	s.InFlight = len(d.submitted)
	s.PooledFences = d.fences.Len()
	s.PooledUniformRings = d.rings.Len()
	s.PendingDestroys = len(d.garbage)
	d.poolMu.Unlock()
	return s
}

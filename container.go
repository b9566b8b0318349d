package rhi

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rhi/driver"
)

// refCount counts the command buffers that have not yet completed and
// reference an object. Zero means the object may be reused or destroyed.
type refCount struct {
	refs atomic.Int32
}

func (r *refCount) acquire() { r.refs.Add(1) }

func (r *refCount) release() {
	if r.refs.Add(-1) < 0 {
		panic(errors.AssertionFailedf("rhi: reference count dropped below zero"))
	}
}

func (r *refCount) inUse() bool { return r.refs.Load() > 0 }

// generation is one physical backend resource owned by a container.
type generation[H driver.Resource] struct {
	refCount
	native H
	index  int
}

// container is a logical resource backed by one or more generations. Only the
// active generation receives new commands; older generations finish their
// in-flight work untouched.
//
// A container may be written from one goroutine at a time. Generation
// reference counts are updated concurrently by command buffer cleanup.
type container[H driver.Resource] struct {
	dev      *Device
	kind     string
	label    string
	gens     []*generation[H]
	active   int
	canCycle bool
	released bool
	create   func() (H, error)
}

// init allocates the first generation.
func (c *container[H]) init(dev *Device, kind, label string, canCycle bool, create func() (H, error)) error {
	c.dev = dev
	c.kind = kind
	c.label = label
	c.canCycle = canCycle
	c.create = create
	native, err := create()
	if err != nil {
		return err
	}
	c.adopt(native)
	dev.stats.containers.Add(1)
	return nil
}

func (c *container[H]) adopt(native H) *generation[H] {
	if c.label != "" {
		native.SetLabel(c.label)
	}
	g := &generation[H]{native: native, index: len(c.gens)}
	c.gens = append(c.gens, g)
	c.active = g.index
	c.dev.stats.generations.Add(1)
	return g
}

// current returns the active generation.
func (c *container[H]) current() *generation[H] {
	return c.gens[c.active]
}

type cycleKind int

const (
	cycleNone cycleKind = iota
	cycleReuse
	cycleAlloc
)

// write is the generation chosen for a write that has not been recorded yet.
// The container already targets gen; commit keeps that choice and rollback
// restores the previous active generation, destroying a generation that was
// allocated for the write.
type write[H driver.Resource] struct {
	c    *container[H]
	gen  *generation[H]
	prev int
	kind cycleKind
}

func (w write[H]) commit() {
	c := w.c
	switch w.kind {
	case cycleReuse:
		c.dev.stats.cycles.Add(1)
		c.dev.stats.reuses.Add(1)
		c.dev.log.Debug("rhi: cycled to idle generation",
			"kind", c.kind, "label", c.label, "generation", w.gen.index)
	case cycleAlloc:
		c.dev.stats.cycles.Add(1)
		c.dev.stats.allocations.Add(1)
		c.dev.log.Debug("rhi: cycled to new generation",
			"kind", c.kind, "label", c.label, "generation", w.gen.index)
	}
}

func (w write[H]) rollback() {
	c := w.c
	if w.kind == cycleAlloc {
		// Nothing else touches the container between beginWrite and
		// rollback, so the new generation is still the last one.
		c.gens[len(c.gens)-1] = nil
		c.gens = c.gens[:len(c.gens)-1]
		w.gen.native.Destroy()
		c.dev.stats.generations.Add(-1)
	}
	c.active = w.prev
}

// beginWrite picks the generation a write should target.
//
// Without cycle the active generation is returned even if in-flight work
// still reads it. With cycle, an in-use active generation is replaced by the
// first idle one, or by a newly allocated one when none is idle. A failed
// allocation leaves the container unchanged.
func (c *container[H]) beginWrite(cycle bool) (write[H], error) {
	cur := c.gens[c.active]
	w := write[H]{c: c, gen: cur, prev: c.active}
	if !cycle || !c.canCycle || !cur.inUse() {
		return w, nil
	}

	for i, g := range c.gens {
		if !g.inUse() {
			c.active = i
			w.gen, w.kind = g, cycleReuse
			return w, nil
		}
	}

	native, err := c.create()
	if err != nil {
		return write[H]{}, errors.Wrapf(err, "rhi: cycle %s %q", c.kind, c.label)
	}
	w.gen, w.kind = c.adopt(native), cycleAlloc
	return w, nil
}

// prepareForWrite is beginWrite for writes that cannot fail afterwards.
func (c *container[H]) prepareForWrite(cycle bool) (*generation[H], error) {
	w, err := c.beginWrite(cycle)
	if err != nil {
		return nil, err
	}
	w.commit()
	return w.gen, nil
}

// pendingWrite is a write[H] of any resource type.
type pendingWrite interface {
	commit()
	rollback()
}

// writes collects the targets of one command so they are committed or
// rolled back together.
type writes []pendingWrite

func (ws writes) commit() {
	for _, w := range ws {
		w.commit()
	}
}

// rollback undoes the writes newest first, so a container cycled twice by
// the same command returns to its original generation.
func (ws writes) rollback() {
	for i := len(ws) - 1; i >= 0; i-- {
		ws[i].rollback()
	}
}

// setLabel renames the container and all of its generations.
func (c *container[H]) setLabel(label string) {
	c.label = label
	for _, g := range c.gens {
		g.native.SetLabel(label)
	}
}

// generationCount returns the number of physical resources backing the container.
func (c *container[H]) generationCount() int { return len(c.gens) }

// idle reports whether no generation is referenced by pending work.
func (c *container[H]) idle() bool {
	for _, g := range c.gens {
		if g.inUse() {
			return false
		}
	}
	return true
}

func (c *container[H]) destroy() {
	for _, g := range c.gens {
		g.native.Destroy()
	}
	c.dev.stats.generations.Add(-int64(len(c.gens)))
	c.dev.stats.containers.Add(-1)
	c.gens = nil
}

// release hands the container to the deferred-destroy list.
func (c *container[H]) release() error {
	if c.released {
		return ErrReleased
	}
	c.released = true
	c.dev.deferDestroy(c)
	return nil
}

// object is a single-generation resource that cannot be cycled, such as a
// sampler or a pipeline.
type object[H driver.Resource] struct {
	refCount
	dev      *Device
	native   H
	released bool
}

func (o *object[H]) idle() bool { return !o.inUse() }
func (o *object[H]) destroy()   { o.native.Destroy() }

func (o *object[H]) release() error {
	if o.released {
		return ErrReleased
	}
	o.released = true
	o.dev.deferDestroy(o)
	return nil
}

// SetLabel sets the debug label.
func (o *object[H]) SetLabel(label string) { o.native.SetLabel(label) }

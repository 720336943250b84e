package hooking

import (
	"sync"
)

// A Contextual item carries the context it runs in, such as the node an
// event belongs to.
type Contextual interface {
	Context() uint32
}

// ContextCounter counts how many times a hook position is invoked for each
// context. Items that are not Contextual are ignored.
type ContextCounter struct {
	pos  *HookPos
	lock sync.Mutex

	contexts []uint32
	counts   map[uint32]uint64
}

// NewContextCounter creates a counter for the given position.
func NewContextCounter(pos *HookPos) *ContextCounter {
	return &ContextCounter{
		pos:    pos,
		counts: make(map[uint32]uint64),
	}
}

// Func counts the invocation.
func (c *ContextCounter) Func(ctx HookCtx) {
	if ctx.Pos != c.pos {
		return
	}

	item, ok := ctx.Item.(Contextual)
	if !ok {
		return
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	context := item.Context()
	if _, seen := c.counts[context]; !seen {
		c.contexts = append(c.contexts, context)
	}

	c.counts[context]++
}

// Contexts returns the contexts seen, in order of first appearance.
func (c *ContextCounter) Contexts() []uint32 {
	c.lock.Lock()
	defer c.lock.Unlock()

	return append([]uint32(nil), c.contexts...)
}

// Count returns the number of invocations seen for a context.
func (c *ContextCounter) Count(context uint32) uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.counts[context]
}

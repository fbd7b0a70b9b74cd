// Package idgen generates numeric record ids.
//
// Ids stay close to the wall clock in milliseconds, the form callers have
// always stored, but are strictly increasing: two ids requested in the same
// millisecond, or after the clock steps back, still differ.
package idgen

import (
	"sync/atomic"
	"time"
)

// Generator hands out strictly increasing ids. It is safe for concurrent use.
type Generator struct {
	last atomic.Int64
	now  func() time.Time
}

func New() *Generator {
	return &Generator{now: time.Now}
}

// Observe records an id already in use so Next never returns it or anything
// lower.
func (g *Generator) Observe(id int64) {
	for {
		last := g.last.Load()
		if id <= last || g.last.CompareAndSwap(last, id) {
			return
		}
	}
}

// Next returns a new id.
func (g *Generator) Next() int64 {
	for {
		last := g.last.Load()
		next := max(g.now().UnixMilli(), last+1)
		if g.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Package idgenerator hands out connection ids shared by every transport of
// the relay, so a session id is unique whether it came in over TCP, WebSocket
// or SSH.
package idgenerator

import (
	"strconv"
	"sync/atomic"
)

// IdGenerator generates monotonically increasing uint32 IDs in a
// concurrency-safe manner. The first Id() returns startValue+1.
type IdGenerator struct {
	prefix string
	id     atomic.Uint32
}

// NewIdGenerator creates an IdGenerator whose labels carry the given prefix.
//
// Parameters:
//   - prefix: Text put in front of every label, e.g. "s"
//   - startValue: Counter start; the first Id() returns startValue+1
//
// Returns:
//   - A new IdGenerator instance
func NewIdGenerator(prefix string, startValue uint32) *IdGenerator {
	gen := &IdGenerator{prefix: prefix}
	gen.id.Store(startValue)
	return gen
}

// Id returns the next unique ID. It is safe for concurrent use.
func (g *IdGenerator) Id() uint32 {
	return g.id.Add(1)
}

// Last returns the most recently issued ID without issuing a new one.
func (g *IdGenerator) Last() uint32 {
	return g.id.Load()
}

// Label renders id as "<prefix>-<id>" for logs. An empty prefix yields just
// the number.
//
// Parameters:
//   - id: An ID previously returned by Id
//
// Returns:
//   - The printable label
func (g *IdGenerator) Label(id uint32) string {
	n := strconv.FormatUint(uint64(id), 10)
	if g.prefix == "" {
		return n
	}

	return g.prefix + "-" + n
}

package chat

import (
	"slices"

	"github.com/cyberinferno/chatrelay/safemap"
	"github.com/cyberinferno/chatrelay/safeset"
)

// Registry maps each online display name to that session's Sink. It is the
// only state shared between sessions. No method holds a lock while a Sink is
// written to.
type Registry struct {
	entries  *safemap.SafeMap[string, Sink]
	reserved *safeset.SafeSet[string]
}

// NewRegistry creates an empty Registry. Reserved names can never be
// registered; they are refused exactly like a name already in use.
//
// Parameters:
//   - reserved: Names nobody may claim, compared case-sensitively
//
// Returns:
//   - A new Registry
func NewRegistry(reserved ...string) *Registry {
	return &Registry{
		entries:  safemap.NewSafeMap[string, Sink](),
		reserved: safeset.NewSafeSet(reserved...),
	}
}

// TryRegister inserts (name, sink) iff name is free. The check and the insert
// are a single atomic step: of any number of concurrent calls with the same
// name, exactly one returns true.
//
// Parameters:
//   - name: The display name to claim
//   - sink: Where lines for name are delivered
//
// Returns:
//   - true if the name was claimed, false if it is taken or reserved
func (r *Registry) TryRegister(name string, sink Sink) bool {
	if r.reserved.Contains(name) {
		return false
	}

	_, loaded := r.entries.LoadOrStore(name, sink)
	return !loaded
}

// Remove deletes the entry for name if present. It is idempotent.
func (r *Registry) Remove(name string) {
	r.entries.Delete(name)
}

// Lookup returns the sink registered under name.
func (r *Registry) Lookup(name string) (Sink, bool) {
	return r.entries.Load(name)
}

// Snapshot returns the sinks registered at roughly this instant. The slice is
// detached from the registry: sessions may join or leave while the caller
// iterates it.
func (r *Registry) Snapshot() []Sink {
	return r.entries.Values()
}

// Names returns the online names sorted ascending.
func (r *Registry) Names() []string {
	names := r.entries.Keys()
	slices.Sort(names)
	return names
}

// Len returns the number of online names.
func (r *Registry) Len() int {
	return r.entries.Len()
}

// Package hooks provides typed extension points.
//
// A Filter transforms a value through every registered callback. An Action
// holds callbacks that are invoked in turn. A Family is a set of Actions keyed
// by name, used where the extension point name carries a parameter such as an
// action identifier.
//
// Callbacks run in ascending priority order; callbacks with equal priority run
// in registration order. All types are safe for concurrent use.
package hooks

import (
	"slices"
	"sort"
	"sync"
)

// DefaultPriority is the priority used by callers that don't care.
const DefaultPriority = 10

type entry[F any] struct {
	priority int
	seq      int
	fn       F
}

// list is the ordered callback storage shared by Filter and Action.
type list[F any] struct {
	mu      sync.RWMutex
	entries []entry[F]
	seq     int
}

func (l *list[F]) add(priority int, fn F) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	l.entries = append(l.entries, entry[F]{priority: priority, seq: l.seq, fn: fn})
	sort.SliceStable(l.entries, func(i, j int) bool {
		if l.entries[i].priority != l.entries[j].priority {
			return l.entries[i].priority < l.entries[j].priority
		}
		return l.entries[i].seq < l.entries[j].seq
	})
}

// snapshot returns the callbacks in run order. Callbacks are invoked outside
// the lock so they may register further callbacks.
func (l *list[F]) snapshot() []F {
	l.mu.RLock()
	defer l.mu.RUnlock()

	fns := make([]F, len(l.entries))
	for i, e := range l.entries {
		fns[i] = e.fn
	}
	return fns
}

func (l *list[F]) len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Filter passes a value through registered callbacks.
type Filter[T any] struct {
	l list[func(T) T]
}

// NewFilter creates an empty filter.
func NewFilter[T any]() *Filter[T] {
	return &Filter[T]{}
}

// Add registers fn at the given priority.
func (f *Filter[T]) Add(priority int, fn func(T) T) {
	f.l.add(priority, fn)
}

// Apply runs v through every callback and returns the result.
// With no callbacks it returns v unchanged.
func (f *Filter[T]) Apply(v T) T {
	for _, fn := range f.l.snapshot() {
		v = fn(v)
	}
	return v
}

// Len reports the number of registered callbacks.
func (f *Filter[T]) Len() int {
	return f.l.len()
}

// Action holds callbacks of type F.
type Action[F any] struct {
	l list[F]
}

// NewAction creates an empty action.
func NewAction[F any]() *Action[F] {
	return &Action[F]{}
}

// Add registers fn at the given priority.
func (a *Action[F]) Add(priority int, fn F) {
	a.l.add(priority, fn)
}

// Each calls run once per registered callback, in order.
func (a *Action[F]) Each(run func(F)) {
	for _, fn := range a.l.snapshot() {
		run(fn)
	}
}

// Len reports the number of registered callbacks.
func (a *Action[F]) Len() int {
	return a.l.len()
}

// Family is a set of named actions.
type Family[F any] struct {
	mu      sync.RWMutex
	actions map[string]*Action[F]
}

// NewFamily creates an empty family.
func NewFamily[F any]() *Family[F] {
	return &Family[F]{actions: make(map[string]*Action[F])}
}

// Add registers fn under name at the given priority.
func (f *Family[F]) Add(name string, priority int, fn F) {
	f.mu.Lock()
	a, ok := f.actions[name]
	if !ok {
		a = NewAction[F]()
		f.actions[name] = a
	}
	f.mu.Unlock()

	a.Add(priority, fn)
}

// Each calls run once per callback registered under name.
// Unknown names are a no-op.
func (f *Family[F]) Each(name string, run func(F)) {
	f.mu.RLock()
	a, ok := f.actions[name]
	f.mu.RUnlock()

	if ok {
		a.Each(run)
	}
}

// Has reports whether any callback is registered under name.
func (f *Family[F]) Has(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	a, ok := f.actions[name]
	return ok && a.Len() > 0
}

// Names returns the registered names in sorted order.
func (f *Family[F]) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.actions))
	for name := range f.actions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

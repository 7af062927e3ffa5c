// Package memo keeps a value's identity stable across calls as long as its
// contents stay structurally equal.
//
// Callers rebuild parameter structs, maps and slices all the time; handing them
// straight to a fetch-state container would reset it on every rebuild. Passing
// them through a Memo first means downstream code only sees a new value when
// something actually changed.
package memo

import (
	"reflect"
	"sync"

	"github.com/google/go-cmp/cmp"
	"github.com/tiendc/go-deepcopy"
)

// compareAll lets cmp descend into unexported struct fields.
var compareAll = cmp.Exporter(func(reflect.Type) bool { return true })

// Memo stabilises values of type T. The zero value is ready to use and safe for
// concurrent use.
type Memo[T any] struct {
	mu       sync.Mutex
	has      bool
	current  T // returned to callers
	snapshot T // private deep copy compared against new input
	version  uint64
}

// New returns an empty Memo.
func New[T any]() *Memo[T] {
	return &Memo[T]{}
}

// Stabilize returns the previously stored value when v is structurally equal to
// it, and stores and returns v otherwise.
func (m *Memo[T]) Stabilize(v T) T {
	out, _ := m.Update(v)
	return out
}

// Update is Stabilize that also reports whether the stored value changed.
func (m *Memo[T]) Update(v T) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.has && Equal(m.snapshot, v) {
		return m.current, false
	}
	m.current = v
	m.snapshot = clone(v)
	m.has = true
	m.version++
	return m.current, true
}

// Version increases every time the stored value changes. It is 0 before the
// first Update.
func (m *Memo[T]) Version() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// Equal reports deep structural equality. Map order is irrelevant, slice order
// matters, and unexported fields are compared.
func Equal[T any](a, b T) bool {
	return cmp.Equal(a, b, compareAll)
}

// clone falls back to the original when v cannot be faithfully deep-copied
// (funcs, channels, fields the copier skips).
func clone[T any](v T) T {
	var out T
	if err := deepcopy.Copy(&out, v); err != nil || !Equal(out, v) {
		return v
	}
	return out
}

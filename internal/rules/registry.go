package rules

import (
	"fmt"
	"sync"
)

// Kind names a registered rule module variant. Settings wrapping a tagged
// variant (spec §3 "a tagged variant identifying the rule module and its
// per-module configuration") carries exactly this string plus the
// module's own settings bytes.
type Kind string

var (
	registryMu sync.RWMutex
	registry   = map[Kind]Constructor{}
)

// Register adds a constructor for kind. Called from each rule module
// package's init(), the idiomatic Go analogue of spec §9's "single-owner
// handle" tagged-variant dispatch: the session engine never type-switches
// on a concrete rule module type, it only holds a Module behind this
// registry lookup.
func Register(kind Kind, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("rules: duplicate registration for %q", kind))
	}
	registry[kind] = ctor
}

// New instantiates the rule module registered under kind.
func New(kind Kind, settings []byte, seed uint64, players []PlayerSeat) (Module, error) {
	registryMu.RLock()
	ctor, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("rules: unknown game kind %q", kind)
	}
	return ctor(settings, seed, players)
}

// Known reports whether kind has a registered constructor.
func Known(kind Kind) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[kind]
	return ok
}

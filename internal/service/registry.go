package service

import (
	"fmt"
	"sort"
	"sync"
)

// Descriptor describes a backend implementation.
type Descriptor struct {
	Name string

	// MinDepth and MaxDepth bound the directory nesting of stored notes.
	MinDepth int
	MaxDepth int

	// NeedsToken is set for backends that require a stored credential.
	NeedsToken bool

	// TokenPrompt is shown when the credential is requested interactively.
	TokenPrompt string

	New func(opts Options) (Backend, error)
}

var (
	registry      = make(map[string]Descriptor)
	registryMutex sync.RWMutex
)

// Register makes a backend available by name.
// This is called from init() functions in backend packages.
//
// Example:
//
//	func init() {
//	    service.Register(service.Descriptor{Name: "vault", New: New})
//	}
func Register(d Descriptor) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if d.New == nil {
		panic(fmt.Sprintf("service: Register constructor is nil for backend %s", d.Name))
	}
	if _, exists := registry[d.Name]; exists {
		panic(fmt.Sprintf("service: Register called twice for backend %s", d.Name))
	}
	registry[d.Name] = d
}

// Lookup returns the descriptor registered under name.
func Lookup(name string) (Descriptor, error) {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	d, ok := registry[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, name, namesLocked())
	}
	return d, nil
}

// Names returns the registered backend names in lexical order.
func Names() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// unregisterAll clears the registry. Used by tests.
func unregisterAll() {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	registry = make(map[string]Descriptor)
}

package driver

import (
	"slices"
	"sync"

	"github.com/matzehuels/phpup/pkg/capability"
)

type regKey struct {
	kind capability.Kind
	name string
}

// Registry holds descriptors in registration order. It is populated once at
// startup and safe for concurrent reads.
type Registry struct {
	mu      sync.RWMutex
	byName  map[regKey][]Descriptor
	generic map[capability.Kind]Descriptor

	// gen changes whenever an existing descriptor is dropped or replaced.
	gen uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[regKey][]Descriptor),
		generic: make(map[capability.Kind]Descriptor),
	}
}

// Register appends d to the descriptors for (kind, name). An empty runtime
// name registers under "php".
func (r *Registry) Register(kind capability.Kind, name string, d Descriptor) {
	k := key(kind, name)
	if d.Name == "" {
		d.Name = k.name
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[k] = append(r.byName[k], d)
}

// SetGeneric installs the fallback descriptor for kind, replacing any
// previous one.
func (r *Registry) SetGeneric(kind capability.Kind, d Descriptor) {
	if d.Name == "" {
		d.Name = "generic"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.generic[kind]; ok {
		r.gen++
	}
	r.generic[kind] = d
}

// Descriptors returns the descriptors for (kind, name) in registration order.
func (r *Registry) Descriptors(kind capability.Kind, name string) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.byName[key(kind, name)])
}

// Generic returns the fallback descriptor for kind.
func (r *Registry) Generic(kind capability.Kind) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.generic[kind]
	return d, ok
}

// Names lists the registered names for kind, sorted.
func (r *Registry) Names(kind capability.Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for k := range r.byName {
		if k.kind == kind {
			names = append(names, k.name)
		}
	}
	slices.Sort(names)
	return names
}

// Reset removes every descriptor.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.byName)
	clear(r.generic)
	r.gen++
}

func (r *Registry) generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gen
}

func key(kind capability.Kind, name string) regKey {
	return regKey{kind: kind, name: capability.Capability{Kind: kind, Name: name}.RegistryName()}
}

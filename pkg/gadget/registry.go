package gadget

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

const (
	// MaxNameLength bounds gadget names accepted at registration, mirroring
	// the teacher's tool-name size guard.
	MaxNameLength = 256
	// MaxParamsSize bounds the serialized size of parameters accepted at
	// execution time.
	MaxParamsSize = 10 << 20
)

// Registry holds named gadgets. Registration is last-writer-wins by name,
// matching the teacher's tool registry.
type Registry struct {
	mu      sync.RWMutex
	gadgets map[string]*Definition
}

func NewRegistry() *Registry {
	return &Registry{gadgets: make(map[string]*Definition)}
}

// Register adds or replaces a gadget definition by name.
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.Gadget == nil {
		return fmt.Errorf("gadget: nil definition")
	}
	name := def.Gadget.Name()
	if name == "" {
		return fmt.Errorf("gadget: empty name")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("gadget: name %q exceeds %d bytes", name, MaxNameLength)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gadgets[name] = def
	return nil
}

// Get returns the definition registered under name, if any.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.gadgets[name]
	return def, ok
}

// Names returns registered gadget names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.gadgets))
	for n := range r.gadgets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// All returns every registered definition, in name order.
func (r *Registry) All() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]*Definition, 0, len(r.gadgets))
	for _, n := range r.sortedNamesLocked() {
		defs = append(defs, r.gadgets[n])
	}
	return defs
}

func (r *Registry) sortedNamesLocked() []string {
	names := make([]string, 0, len(r.gadgets))
	for n := range r.gadgets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ValidationError describes a single schema-mismatch at a field path,
// surfaced per spec.md §4.B instead of a bare error.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidateParams validates raw parameters against the named gadget's
// schema, filling in declared top-level property defaults first. It never returns a bare Go
// error for a schema mismatch — callers should type-assert to
// *ValidationError to get the structured path/message pair spec.md §4.B
// requires.
func (r *Registry) ValidateParams(name string, raw json.RawMessage) (json.RawMessage, error) {
	def, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("gadget: unknown gadget %q", name)
	}
	if len(raw) > MaxParamsSize {
		return nil, fmt.Errorf("gadget: parameters for %q exceed %d bytes", name, MaxParamsSize)
	}
	return ValidateAgainstSchema(def.Gadget.Schema(), raw)
}

// AsCatalog renders the registry's gadgets as this package's CatalogEntry
// values; pkg/conversation converts them to message.CatalogEntry, keeping
// pkg/message free of a dependency on this package.
func (r *Registry) AsCatalog() []CatalogEntry {
	defs := r.All()
	entries := make([]CatalogEntry, 0, len(defs))
	for _, d := range defs {
		entries = append(entries, CatalogEntry{
			Name:        d.Gadget.Name(),
			Description: d.Gadget.Description(),
			Schema:      d.Gadget.Schema(),
			Examples:    d.Gadget.Examples(),
		})
	}
	return entries
}

// CatalogEntry mirrors message.CatalogEntry's shape; conversion happens at
// the pkg/conversation boundary to avoid a gadget->message import cycle
// (message already has no dependency on gadget).
type CatalogEntry struct {
	Name        string
	Description string
	Schema      json.RawMessage
	Examples    []string
}

package pickle

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Constructor builds a Go value for a Python class from its constructor
// arguments.
//
// The arguments are whatever REDUCE, NEWOBJ, INST or OBJ supplied. A
// constructor should validate them and return an error rather than guess.
type Constructor func(args Tuple) (any, error)

// StateSetter is implemented by constructed values that accept BUILD state.
type StateSetter interface {
	SetState(state any) error
}

// Registry maps Python classes to constructors, and copyreg extension
// codes to classes.
//
// A Registry is safe for concurrent use. Classes that are not registered
// decode to *Record.
type Registry struct {
	mu    sync.RWMutex
	ctors map[Class]Constructor
	exts  map[int]Class

	// modules whose unregistered *Error, *Warning and *Exception names
	// are exception classes
	excModules map[string]bool
}

// NewRegistry returns a registry with the built-in classes registered.
func NewRegistry() *Registry {
	r := newEmptyRegistry()
	registerBuiltins(r)
	return r
}

func newEmptyRegistry() *Registry {
	return &Registry{
		ctors:      make(map[Class]Constructor),
		exts:       make(map[int]Class),
		excModules: make(map[string]bool),
	}
}

var defaultRegistry = sync.OnceValue(NewRegistry)

// DefaultRegistry returns the process-wide registry used by decoders that
// are not configured with one.
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

// Register registers c for module.name on DefaultRegistry.
func Register(module, name string, c Constructor) {
	DefaultRegistry().Register(module, name, c)
}

// Register registers c for module.name, replacing any previous entry.
func (r *Registry) Register(module, name string, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[Class{Module: module, Name: name}] = c
}

// RegisterException makes module.name decode to *PyException.
func (r *Registry) RegisterException(module, name string) {
	cls := Class{Module: module, Name: name}
	r.Register(module, name, exceptionConstructor(cls))
}

// RegisterExceptionModule makes every unregistered class of module whose
// name ends in Error, Warning or Exception decode to *PyException.
func (r *Registry) RegisterExceptionModule(module string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.excModules[module] = true
}

// Resolve returns the constructor registered for module.name.
func (r *Registry) Resolve(module, name string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cls := Class{Module: module, Name: name}
	if c, ok := r.ctors[cls]; ok {
		return c, true
	}
	if r.excModules[module] && isExceptionName(name) {
		return exceptionConstructor(cls), true
	}
	return nil, false
}

func isExceptionName(name string) bool {
	for _, suffix := range []string{"Error", "Warning", "Exception"} {
		if len(name) > len(suffix) && strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// Alias makes alias decode the way target does. target must already be
// registered.
func (r *Registry) Alias(alias, target Class) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.ctors[target]
	if !ok {
		return fmt.Errorf("pickle: alias %s: class %s is not registered", alias, target)
	}
	r.ctors[alias] = c
	return nil
}

// RegisterExtension assigns copyreg extension code to module.name.
func (r *Registry) RegisterExtension(code int, module, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exts[code] = Class{Module: module, Name: name}
}

// Extension returns the class with extension code.
func (r *Registry) Extension(code int) (Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cls, ok := r.exts[code]
	return cls, ok
}

// Classes returns the registered classes sorted by module and name.
func (r *Registry) Classes() []Class {
	r.mu.RLock()
	classes := make([]Class, 0, len(r.ctors))
	for cls := range r.ctors {
		classes = append(classes, cls)
	}
	r.mu.RUnlock()

	sort.Slice(classes, func(i, j int) bool {
		if classes[i].Module != classes[j].Module {
			return classes[i].Module < classes[j].Module
		}
		return classes[i].Name < classes[j].Name
	})
	return classes
}

// Clone returns an independent copy of r.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := newEmptyRegistry()
	for k, v := range r.ctors {
		c.ctors[k] = v
	}
	for k, v := range r.exts {
		c.exts[k] = v
	}
	for k, v := range r.excModules {
		c.excModules[k] = v
	}
	return c
}

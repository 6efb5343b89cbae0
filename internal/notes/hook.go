// Package notes runs the partner-selected note hook: a small transform that
// may annotate a validated customer before it is serialized, for example by
// setting a category tag from the free-text notes.
package notes

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ilsgate/internal/customer"
	"ilsgate/internal/policy"
	dErrors "ilsgate/pkg/domain-errors"
)

// ErrorPrefix marks a notes value as a domain error raised by a hook.
const ErrorPrefix = "ERROR:"

// Hook is a partner note transform. Apply may mutate c freely; it receives
// a private copy.
type Hook interface {
	// Name is the reference partners use in notes.hook.
	Name() string
	Apply(ctx context.Context, c *customer.Customer, p policy.Policy) error
}

// Registry maps hook names to implementations. It is filled at startup and
// read-only afterwards.
type Registry struct {
	hooks map[string]Hook
}

func NewRegistry() *Registry {
	return &Registry{
		hooks: make(map[string]Hook),
	}
}

// NewDefaultRegistry returns a registry holding the built-in hooks.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, h := range Builtins() {
		// Built-in names are distinct.
		_ = r.Register(h)
	}
	return r
}

// Register adds a hook. Names are case-insensitive and must be unique.
func (r *Registry) Register(h Hook) error {
	name := strings.ToLower(h.Name())
	if name == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "hook name is required")
	}
	if _, exists := r.hooks[name]; exists {
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("hook %s already registered", name))
	}
	r.hooks[name] = h
	return nil
}

// Get retrieves a hook by name.
func (r *Registry) Get(name string) (Hook, bool) {
	h, ok := r.hooks[strings.ToLower(strings.TrimSpace(name))]
	return h, ok
}

// Names returns the registered hook names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.hooks))
	for name := range r.hooks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExtractError removes an error-shaped notes value from c and returns its
// message.
func ExtractError(c *customer.Customer, field string) (string, bool) {
	v := c.Value(field)
	rest, ok := strings.CutPrefix(v, ErrorPrefix)
	if !ok {
		return "", false
	}
	c.Delete(field)
	msg := strings.TrimSpace(rest)
	if msg == "" {
		msg = "note hook rejected the registration"
	}
	return msg, true
}

package model

import (
	"fmt"
	"sort"
)

// Registry maps model identities and table names to their descriptors.
//
// Registration happens once at startup; afterwards the registry is read-only
// and safe to share between goroutines.
type Registry struct {
	byIdentity map[string]*Model
	byTable    map[string]*Model
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byIdentity: make(map[string]*Model),
		byTable:    make(map[string]*Model),
	}
}

// Register adds a model. Identities and table names must be unique.
func (r *Registry) Register(m *Model) error {
	if m == nil {
		return fmt.Errorf("register: nil model")
	}
	if _, dup := r.byIdentity[m.Identity]; dup {
		return fmt.Errorf("register: model %q already registered", m.Identity)
	}
	if other, dup := r.byTable[m.TableName]; dup {
		return fmt.Errorf("register: table %q already used by model %q", m.TableName, other.Identity)
	}
	r.byIdentity[m.Identity] = m
	r.byTable[m.TableName] = m
	return nil
}

// MustRegister is Register for static setup code; it panics on error.
func (r *Registry) MustRegister(models ...*Model) *Registry {
	for _, m := range models {
		if err := r.Register(m); err != nil {
			panic(err)
		}
	}
	return r
}

// ByIdentity returns the model registered under identity.
func (r *Registry) ByIdentity(identity string) (*Model, bool) {
	m, ok := r.byIdentity[identity]
	return m, ok
}

// ByTableName returns the model stored in table.
func (r *Registry) ByTableName(table string) (*Model, bool) {
	m, ok := r.byTable[table]
	return m, ok
}

// Lookup resolves a name that may be either an identity or a table name.
// Identity wins when both match different models.
func (r *Registry) Lookup(name string) (*Model, bool) {
	if m, ok := r.byIdentity[name]; ok {
		return m, true
	}
	return r.ByTableName(name)
}

// Models returns all registered models sorted by identity.
func (r *Registry) Models() []*Model {
	out := make([]*Model, 0, len(r.byIdentity))
	for _, m := range r.byIdentity {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	return len(r.byIdentity)
}

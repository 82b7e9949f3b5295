package registry

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	json "github.com/goccy/go-json"
)

// RefPrefix is the JSON reference prefix for schema components.
const RefPrefix = "#/components/schemas/"

// Kind classifies a component. Only schemas are stored today.
type Kind string

const KindSchema Kind = "schema"

// Component is a named, reusable schema fragment.
type Component struct {
	Name   string
	Kind   Kind
	Schema *openapi3.Schema // nil for virtual components that contribute no fields
	Owner  any              // source declaration the schema was derived from
}

// Ref returns the JSON reference pointing at the component.
func (c *Component) Ref() string { return RefPrefix + c.Name }

// SchemaRef returns a reference that also carries the resolved value so the
// document validates without a loader pass.
func (c *Component) SchemaRef() *openapi3.SchemaRef {
	return openapi3.NewSchemaRef(c.Ref(), c.Schema)
}

// Virtual reports whether the component has no schema of its own.
func (c *Component) Virtual() bool { return c == nil || c.Schema == nil }

// DuplicateComponentNameError reports an attempt to register a different
// schema under a name that is already taken.
type DuplicateComponentNameError struct {
	Name string
}

func (e *DuplicateComponentNameError) Error() string {
	return fmt.Sprintf("registry: component %q already registered with a different schema", e.Name)
}

// Registry deduplicates components by name for one build.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]*Component
	order []string
}

func New() *Registry {
	return &Registry{byKey: make(map[string]*Component)}
}

// Register stores c unless a component with the same name exists. Registering
// an identical schema again returns the stored component; a different schema
// under the same name fails with *DuplicateComponentNameError.
func (r *Registry) Register(c Component) (*Component, error) {
	if c.Name == "" {
		return nil, fmt.Errorf("registry: component name is empty")
	}
	if c.Schema == nil {
		return nil, fmt.Errorf("registry: component %q has no schema", c.Name)
	}
	if c.Kind == "" {
		c.Kind = KindSchema
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byKey[c.Name]; ok {
		if existing.Schema == c.Schema {
			return existing, nil
		}
		same, err := sameSchema(existing.Schema, c.Schema)
		if err != nil {
			return nil, fmt.Errorf("registry: compare %q: %w", c.Name, err)
		}
		if !same {
			return nil, &DuplicateComponentNameError{Name: c.Name}
		}
		return existing, nil
	}

	stored := c
	r.byKey[c.Name] = &stored
	r.order = append(r.order, c.Name)
	return &stored, nil
}

// Lookup returns the component registered under name.
func (r *Registry) Lookup(name string) (*Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byKey[name]
	return c, ok
}

// Resolve maps a "#/components/schemas/<Name>" reference to its component.
func (r *Registry) Resolve(ref string) (*Component, bool) {
	if len(ref) <= len(RefPrefix) || ref[:len(RefPrefix)] != RefPrefix {
		return nil, false
	}
	return r.Lookup(ref[len(RefPrefix):])
}

// Components returns every component in registration order.
func (r *Registry) Components() []*Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Component, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byKey[name])
	}
	return out
}

// Schemas renders the registry as a components.schemas map.
func (r *Registry) Schemas() openapi3.Schemas {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(openapi3.Schemas, len(r.byKey))
	for name, c := range r.byKey {
		out[name] = &openapi3.SchemaRef{Value: c.Schema}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// sameSchema compares two schemas by their canonical JSON encoding. References
// encode as {"$ref": ...} so cyclic graphs terminate.
func sameSchema(a, b *openapi3.Schema) (bool, error) {
	ab, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}

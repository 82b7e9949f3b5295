// Package polymorphic turns a discriminator field and its variants into an
// OpenAPI discriminated union backed by one typed component per variant.
package polymorphic

import (
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/mark3labs/oasgen/internal/casing"
	"github.com/mark3labs/oasgen/internal/registry"
)

const (
	requestSuffix = "Request"
	typedSuffix   = "Typed"
)

// EmptyUnionError reports a discriminator declared without variants.
type EmptyUnionError struct {
	Field string
	Union string
}

func (e *EmptyUnionError) Error() string {
	if e.Union != "" {
		return fmt.Sprintf("polymorphic: union %q on field %q has no variants", e.Union, e.Field)
	}
	return fmt.Sprintf("polymorphic: union on field %q has no variants", e.Field)
}

// DuplicateDiscriminatorError reports a discriminator value used twice.
type DuplicateDiscriminatorError struct {
	Field string
	Value string
}

func (e *DuplicateDiscriminatorError) Error() string {
	return fmt.Sprintf("polymorphic: discriminator %q maps value %q more than once", e.Field, e.Value)
}

// Variant pairs a discriminator value with the component describing the rest
// of the payload. A nil or virtual Base means the variant adds no fields.
type Variant struct {
	Value string
	Base  *registry.Component
}

// Options tune naming and requiredness of the typed components.
type Options struct {
	// Union is the component name of the union itself. Virtual variants are
	// named inside it so that two unions never share a virtual name.
	Union string
	// SplitRequest enables the "...Request" naming rule.
	SplitRequest bool
	// Patched drops the required list from discriminator objects.
	Patched bool
}

// Member is a resolved variant.
type Member struct {
	Value     string
	Component *registry.Component
}

// Union is a discriminated union whose members are registered components.
type Union struct {
	Field   string
	Members []Member
}

// Resolve registers one typed component per variant and returns the union.
// Variant order is preserved in the resulting oneOf list.
func Resolve(reg *registry.Registry, field string, variants []Variant, opts Options) (*Union, error) {
	if len(variants) == 0 {
		return nil, &EmptyUnionError{Field: field, Union: opts.Union}
	}
	if reg == nil {
		return nil, fmt.Errorf("polymorphic: nil registry")
	}

	union := &Union{Field: field, Members: make([]Member, 0, len(variants))}
	seen := make(map[string]struct{}, len(variants))
	for _, v := range variants {
		if _, dup := seen[v.Value]; dup {
			return nil, &DuplicateDiscriminatorError{Field: field, Value: v.Value}
		}
		seen[v.Value] = struct{}{}

		var owner any
		if v.Base != nil {
			owner = v.Base.Owner
		}
		c, err := reg.Register(registry.Component{
			Name:   TypedName(variantName(v, opts), opts.SplitRequest),
			Kind:   registry.KindSchema,
			Schema: TypedSchema(field, v.Value, v.Base, opts.Patched),
			Owner:  owner,
		})
		if err != nil {
			return nil, err
		}
		union.Members = append(union.Members, Member{Value: v.Value, Component: c})
	}
	return union, nil
}

// Schema renders the union as oneOf plus a discriminator mapping.
func (u *Union) Schema() *openapi3.Schema {
	refs := make(openapi3.SchemaRefs, 0, len(u.Members))
	mapping := make(openapi3.StringMap, len(u.Members))
	for _, m := range u.Members {
		refs = append(refs, m.Component.SchemaRef())
		mapping[m.Value] = m.Component.Ref()
	}
	return &openapi3.Schema{
		OneOf: refs,
		Discriminator: &openapi3.Discriminator{
			PropertyName: u.Field,
			Mapping:      mapping,
		},
	}
}

// Values returns the discriminator values in declaration order.
func (u *Union) Values() []string {
	out := make([]string, len(u.Members))
	for i, m := range u.Members {
		out[i] = m.Value
	}
	return out
}

// TypedName derives the typed component name for base. With split requests a
// trailing "Request" stays last: "PetRequest" becomes "PetTypedRequest".
func TypedName(base string, splitRequest bool) string {
	if splitRequest && strings.HasSuffix(base, requestSuffix) {
		return strings.TrimSuffix(base, requestSuffix) + typedSuffix + requestSuffix
	}
	return base + typedSuffix
}

// DiscriminatorObject is the object pinning field to value.
func DiscriminatorObject(field, value string, patched bool) *openapi3.Schema {
	obj := openapi3.NewObjectSchema().
		WithProperty(field, openapi3.NewStringSchema().WithEnum(value))
	if !patched {
		obj.Required = []string{field}
	}
	return obj
}

// TypedSchema wraps base with the discriminator constraint. A variant without
// fields degenerates to the bare discriminator object.
func TypedSchema(field, value string, base *registry.Component, patched bool) *openapi3.Schema {
	obj := DiscriminatorObject(field, value, patched)
	if IsEmpty(base) {
		return obj
	}
	return &openapi3.Schema{
		AllOf: openapi3.SchemaRefs{
			{Value: obj},
			base.SchemaRef(),
		},
	}
}

// IsEmpty reports whether c contributes nothing beyond the discriminator.
func IsEmpty(c *registry.Component) bool {
	if c.Virtual() {
		return true
	}
	s := c.Schema
	return len(s.Properties) == 0 &&
		len(s.AllOf) == 0 && len(s.OneOf) == 0 && len(s.AnyOf) == 0 &&
		s.AdditionalProperties.Schema == nil
}

func variantName(v Variant, opts Options) string {
	if !IsEmpty(v.Base) {
		return v.Base.Name
	}
	suffix := casing.Pascal(v.Value)
	if opts.Union == "" {
		if v.Base != nil && v.Base.Name != "" {
			return v.Base.Name
		}
		return suffix
	}
	if opts.SplitRequest && strings.HasSuffix(opts.Union, requestSuffix) {
		return strings.TrimSuffix(opts.Union, requestSuffix) + suffix + requestSuffix
	}
	return opts.Union + suffix
}

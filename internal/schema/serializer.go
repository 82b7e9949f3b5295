// Package schema declares serializers and derives registered components from
// them.
package schema

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Direction tells whether a schema describes a request or a response body.
type Direction int

const (
	Response Direction = iota
	Request
)

func (d Direction) String() string {
	if d == Request {
		return "request"
	}
	return "response"
}

// Serializer is a named payload declaration. Implementations are pointers so
// serializers can be compared by identity.
type Serializer interface {
	Name() string
}

// Exampler is implemented by serializers that carry sample payloads.
type Exampler interface {
	ExampleValues() []any
}

// FieldType is the JSON type of a declared field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeObject, TypeArray:
		return true
	}
	return false
}

// Field is one property of an Object serializer.
type Field struct {
	Name        string
	Type        FieldType
	Format      string
	Enum        []any
	Nullable    bool
	ReadOnly    bool
	WriteOnly   bool
	Required    bool
	Description string
	Example     any
	// Items is the element type when Type is array and Ref is nil.
	Items FieldType
	// Ref nests another serializer. With Many the field is an array of it.
	Ref  Serializer
	Many bool
}

// Object is a serializer with an explicit, ordered field list.
type Object struct {
	Title       string
	Description string
	Fields      []Field
	Examples    []any
}

func (o *Object) Name() string         { return o.Title }
func (o *Object) ExampleValues() []any { return o.Examples }

// Struct derives its fields from a Go value by reflection. Properties follow
// json tags; fields without omitempty that are not pointers are required. The
// doc tag sets a description and the oas tag accepts readonly, writeonly and
// nullable.
type Struct struct {
	Title       string
	Description string
	Value       any
	Examples    []any
}

func (s *Struct) Name() string         { return s.Title }
func (s *Struct) ExampleValues() []any { return s.Examples }

// DefaultDiscriminatorField is used when a Polymorphic leaves Field empty.
const DefaultDiscriminatorField = "type"

// Variant binds a discriminator value to the serializer for that shape. A nil
// Serializer declares a variant without extra fields.
type Variant struct {
	Value      string
	Serializer Serializer
}

// Polymorphic serializes differently depending on a discriminator value.
type Polymorphic struct {
	Title       string
	Description string
	Field       string
	Variants    []Variant
	// Discriminate returns the discriminator value of an instance.
	Discriminate func(instance any) (string, error)
	Examples     []any
}

func (p *Polymorphic) Name() string         { return p.Title }
func (p *Polymorphic) ExampleValues() []any { return p.Examples }

// DiscriminatorField returns the property carrying the discriminator.
func (p *Polymorphic) DiscriminatorField() string {
	if p.Field == "" {
		return DefaultDiscriminatorField
	}
	return p.Field
}

// UnknownDiscriminatorError reports a discriminator value with no variant.
type UnknownDiscriminatorError struct {
	Serializer string
	Field      string
	Value      string
}

func (e *UnknownDiscriminatorError) Error() string {
	return fmt.Sprintf("schema: %s has no variant for %s=%q", e.Serializer, e.Field, e.Value)
}

// SerializerFor returns the variant serializer registered for value.
func (p *Polymorphic) SerializerFor(value string) (Serializer, error) {
	for _, v := range p.Variants {
		if v.Value == value {
			return v.Serializer, nil
		}
	}
	return nil, &UnknownDiscriminatorError{Serializer: p.Title, Field: p.DiscriminatorField(), Value: value}
}

// Encode renders instance as a JSON object and stamps the discriminator value
// returned by Discriminate into it.
func (p *Polymorphic) Encode(instance any) (map[string]any, error) {
	if p.Discriminate == nil {
		return nil, fmt.Errorf("schema: %s has no discriminator accessor", p.Title)
	}
	value, err := p.Discriminate(instance)
	if err != nil {
		return nil, fmt.Errorf("schema: %s: discriminate: %w", p.Title, err)
	}
	if _, err := p.SerializerFor(value); err != nil {
		return nil, err
	}

	out := map[string]any{}
	if instance != nil {
		raw, err := json.Marshal(instance)
		if err != nil {
			return nil, fmt.Errorf("schema: %s: encode: %w", p.Title, err)
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("schema: %s: instance is not an object: %w", p.Title, err)
		}
	}
	out[p.DiscriminatorField()] = value
	return out, nil
}

// FieldDiscriminator returns an accessor reading field from map instances
// such as decoded JSON documents.
func FieldDiscriminator(field string) func(any) (string, error) {
	return func(instance any) (string, error) {
		m, ok := instance.(map[string]any)
		if !ok {
			return "", fmt.Errorf("expected an object, got %T", instance)
		}
		raw, ok := m[field]
		if !ok {
			return "", fmt.Errorf("missing discriminator %q", field)
		}
		s, ok := raw.(string)
		if !ok {
			return "", fmt.Errorf("discriminator %q must be a string, got %T", field, raw)
		}
		return s, nil
	}
}

package schema

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"

	"github.com/mark3labs/oasgen/internal/casing"
	"github.com/mark3labs/oasgen/internal/polymorphic"
	"github.com/mark3labs/oasgen/internal/registry"
)

// Options configure a Deriver.
type Options struct {
	// SplitRequest registers request bodies as separate "<Name>Request"
	// components without read-only fields.
	SplitRequest bool
	// Case renames top-level properties of every derived object.
	Case casing.Mapper
}

type cacheKey struct {
	name string
	ser  Serializer
}

// Deriver converts serializers into registered components for one build.
type Deriver struct {
	reg      *registry.Registry
	opts     Options
	building map[string]*openapi3.Schema
	cache    map[cacheKey]*registry.Component
}

func NewDeriver(reg *registry.Registry, opts Options) *Deriver {
	if opts.Case == nil {
		opts.Case = casing.Identity
	}
	return &Deriver{
		reg:      reg,
		opts:     opts,
		building: map[string]*openapi3.Schema{},
		cache:    map[cacheKey]*registry.Component{},
	}
}

// ComponentName is the name s is registered under for dir. Patched bodies get
// a "Patched" prefix; split request bodies get a "Request" suffix.
func (d *Deriver) ComponentName(s Serializer, dir Direction, patched bool) string {
	name := s.Name()
	if patched {
		name = "Patched" + name
	}
	if d.opts.SplitRequest && dir == Request {
		name += "Request"
	}
	return name
}

// Component derives s for dir and registers the result. Serializers without
// fields yield a virtual component that is not registered.
func (d *Deriver) Component(s Serializer, dir Direction, patched bool) (*registry.Component, error) {
	if s == nil {
		return nil, fmt.Errorf("schema: nil serializer")
	}
	if strings.TrimSpace(s.Name()) == "" {
		return nil, fmt.Errorf("schema: serializer %T has no name", s)
	}
	if dir == Response {
		patched = false
	}
	name := d.ComponentName(s, dir, patched)
	key := cacheKey{name: name, ser: s}
	if c, ok := d.cache[key]; ok {
		return c, nil
	}
	if _, ok := d.building[name]; ok {
		return nil, fmt.Errorf("schema: %s refers to itself without a field", name)
	}

	placeholder := &openapi3.Schema{}
	d.building[name] = placeholder
	built, err := d.derive(s, name, dir, patched)
	delete(d.building, name)
	if err != nil {
		return nil, err
	}

	if built == nil {
		c := &registry.Component{Name: name, Kind: registry.KindSchema, Owner: s}
		d.cache[key] = c
		return c, nil
	}
	*placeholder = *built
	c, err := d.reg.Register(registry.Component{Name: name, Kind: registry.KindSchema, Schema: placeholder, Owner: s})
	if err != nil {
		return nil, err
	}
	d.cache[key] = c
	return c, nil
}

// Ref returns a schema reference to s, usable as a property or body schema.
// Recursive references resolve to the component being built.
func (d *Deriver) Ref(s Serializer, dir Direction, patched bool) (*openapi3.SchemaRef, error) {
	if dir == Response {
		patched = false
	}
	name := d.ComponentName(s, dir, patched)
	if inProgress, ok := d.building[name]; ok {
		return openapi3.NewSchemaRef(registry.RefPrefix+name, inProgress), nil
	}
	c, err := d.Component(s, dir, patched)
	if err != nil {
		return nil, err
	}
	if c.Virtual() {
		return &openapi3.SchemaRef{Value: openapi3.NewObjectSchema()}, nil
	}
	return c.SchemaRef(), nil
}

func (d *Deriver) derive(s Serializer, name string, dir Direction, patched bool) (*openapi3.Schema, error) {
	var (
		out *openapi3.Schema
		err error
	)
	switch v := s.(type) {
	case *Object:
		out, err = d.object(v, dir, patched)
	case *Struct:
		out, err = d.reflect(v, dir, patched)
	case *Polymorphic:
		return d.polymorphic(v, name, dir, patched)
	default:
		return nil, fmt.Errorf("schema: unsupported serializer %T", s)
	}
	if err != nil || out == nil {
		return nil, err
	}
	out, err = casing.Properties(out, d.opts.Case)
	if err != nil {
		return nil, fmt.Errorf("schema: %s: %w", name, err)
	}
	return out, nil
}

func (d *Deriver) skip(readOnly, writeOnly bool, dir Direction) bool {
	if !d.opts.SplitRequest {
		return false
	}
	if dir == Request {
		return readOnly
	}
	return writeOnly
}

func (d *Deriver) object(o *Object, dir Direction, patched bool) (*openapi3.Schema, error) {
	out := openapi3.NewObjectSchema()
	out.Description = o.Description
	var required []string
	for _, f := range o.Fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema: %s has a field without a name", o.Title)
		}
		if d.skip(f.ReadOnly, f.WriteOnly, dir) {
			continue
		}
		ref, err := d.field(f, dir)
		if err != nil {
			return nil, fmt.Errorf("schema: %s.%s: %w", o.Title, f.Name, err)
		}
		out.Properties[f.Name] = ref
		if f.Required && !patched {
			required = append(required, f.Name)
		}
	}
	if len(out.Properties) == 0 {
		return nil, nil
	}
	out.Required = required
	return out, nil
}

func (d *Deriver) field(f Field, dir Direction) (*openapi3.SchemaRef, error) {
	var ref *openapi3.SchemaRef
	switch {
	case f.Ref != nil:
		nested, err := d.Ref(f.Ref, dir, false)
		if err != nil {
			return nil, err
		}
		ref = nested
		if f.Many {
			ref = &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{openapi3.TypeArray}, Items: nested}}
		}
	case f.Type == TypeArray:
		itemType := f.Items
		if itemType == "" {
			itemType = TypeString
		}
		items, err := scalar(itemType, "")
		if err != nil {
			return nil, err
		}
		ref = &openapi3.SchemaRef{Value: openapi3.NewArraySchema().WithItems(items)}
	default:
		s, err := scalar(f.Type, f.Format)
		if err != nil {
			return nil, err
		}
		ref = &openapi3.SchemaRef{Value: s}
	}
	if len(f.Enum) > 0 && ref.Ref == "" {
		ref.Value.Enum = append([]any(nil), f.Enum...)
	}
	return decorate(ref, f.Nullable, f.ReadOnly, f.WriteOnly, f.Description, f.Example), nil
}

// decorate sets property-level flags. A $ref cannot carry siblings in
// OpenAPI 3.0, so referenced schemas are wrapped in allOf.
func decorate(ref *openapi3.SchemaRef, nullable, readOnly, writeOnly bool, description string, example any) *openapi3.SchemaRef {
	if !nullable && !readOnly && !writeOnly && description == "" && example == nil {
		return ref
	}
	target := ref.Value
	if ref.Ref != "" {
		target = &openapi3.Schema{AllOf: openapi3.SchemaRefs{ref}}
		ref = &openapi3.SchemaRef{Value: target}
	}
	target.Nullable = target.Nullable || nullable
	target.ReadOnly = target.ReadOnly || readOnly
	target.WriteOnly = target.WriteOnly || writeOnly
	if description != "" {
		target.Description = description
	}
	if example != nil {
		target.Example = example
	}
	return ref
}

func scalar(t FieldType, format string) (*openapi3.Schema, error) {
	var s *openapi3.Schema
	switch t {
	case TypeString, "":
		s = openapi3.NewStringSchema()
	case TypeInteger:
		s = openapi3.NewIntegerSchema()
	case TypeNumber:
		s = openapi3.NewFloat64Schema()
	case TypeBoolean:
		s = openapi3.NewBoolSchema()
	case TypeObject:
		s = openapi3.NewObjectSchema().WithAnyAdditionalProperties()
	default:
		return nil, fmt.Errorf("unknown field type %q", t)
	}
	if format != "" {
		s.Format = format
	}
	return s, nil
}

func (d *Deriver) reflect(s *Struct, dir Direction, patched bool) (*openapi3.Schema, error) {
	if s.Value == nil {
		return nil, nil
	}
	gen := openapi3gen.NewGenerator(openapi3gen.SchemaCustomizer(customizeStruct))
	ref, err := gen.NewSchemaRefForValue(s.Value, nil)
	if err != nil {
		return nil, fmt.Errorf("schema: reflect %s: %w", s.Title, err)
	}
	out := ref.Value
	if out == nil || len(out.Properties) == 0 {
		return nil, nil
	}
	if s.Description != "" {
		out.Description = s.Description
	}

	kept := make(map[string]struct{}, len(out.Properties))
	for name, prop := range out.Properties {
		if prop.Value != nil && d.skip(prop.Value.ReadOnly, prop.Value.WriteOnly, dir) {
			delete(out.Properties, name)
			continue
		}
		kept[name] = struct{}{}
	}
	if len(out.Properties) == 0 {
		return nil, nil
	}
	var required []string
	if !patched {
		for _, name := range out.Required {
			if _, ok := kept[name]; ok {
				required = append(required, name)
			}
		}
	}
	out.Required = required
	return out, nil
}

// customizeStruct marks required fields on structs and applies the doc and
// oas tags on fields.
func customizeStruct(_ string, t reflect.Type, tag reflect.StructTag, schema *openapi3.Schema) error {
	if doc := tag.Get("doc"); doc != "" {
		schema.Description = doc
	}
	for _, opt := range strings.Split(tag.Get("oas"), ",") {
		switch strings.TrimSpace(strings.ToLower(opt)) {
		case "readonly":
			schema.ReadOnly = true
		case "writeonly":
			schema.WriteOnly = true
		case "nullable":
			schema.Nullable = true
		}
	}

	if t.Kind() != reflect.Struct {
		return nil
	}
	var required []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() || field.Anonymous {
			continue
		}
		jsonTag, ok := field.Tag.Lookup("json")
		if !ok || jsonTag == "-" {
			continue
		}
		parts := strings.Split(jsonTag, ",")
		name := parts[0]
		if name == "" {
			name = field.Name
		}
		omitempty := false
		for _, p := range parts[1:] {
			if p == "omitempty" || p == "omitzero" {
				omitempty = true
			}
		}
		if field.Type.Kind() != reflect.Ptr && !omitempty {
			if _, ok := schema.Properties[name]; ok {
				required = append(required, name)
			}
		}
	}
	if len(required) > 0 {
		schema.Required = required
	}
	return nil
}

func (d *Deriver) polymorphic(p *Polymorphic, name string, dir Direction, patched bool) (*openapi3.Schema, error) {
	variants := make([]polymorphic.Variant, 0, len(p.Variants))
	for _, v := range p.Variants {
		var base *registry.Component
		if v.Serializer != nil {
			c, err := d.Component(v.Serializer, dir, patched)
			if err != nil {
				return nil, fmt.Errorf("schema: %s variant %q: %w", p.Title, v.Value, err)
			}
			base = c
		}
		variants = append(variants, polymorphic.Variant{Value: v.Value, Base: base})
	}
	union, err := polymorphic.Resolve(d.reg, p.DiscriminatorField(), variants, polymorphic.Options{
		Union:        name,
		SplitRequest: d.opts.SplitRequest,
		Patched:      patched,
	})
	if err != nil {
		return nil, err
	}
	out := union.Schema()
	out.Description = p.Description
	return out, nil
}

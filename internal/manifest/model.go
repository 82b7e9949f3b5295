package manifest

import (
	"bytes"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

// Manifest is the decoded endpoint registry.
type Manifest struct {
	Title           string                              `yaml:"title"`
	Version         string                              `yaml:"version"`
	Description     string                              `yaml:"description"`
	Servers         []Server                            `yaml:"servers"`
	SecuritySchemes map[string]*openapi3.SecurityScheme `yaml:"securitySchemes"`
	Serializers     Serializers                         `yaml:"serializers"`
	Endpoints       []Endpoint                          `yaml:"endpoints"`

	// Source is the file path or URL the manifest was loaded from.
	Source string `yaml:"-"`
}

type Server struct {
	URL         string `yaml:"url"`
	Description string `yaml:"description"`
}

// Endpoint declares one handler. Serializers are referenced by name.
type Endpoint struct {
	Kind           string   `yaml:"kind"`
	Path           string   `yaml:"path"`
	Methods        []string `yaml:"methods"`
	Request        string   `yaml:"request"`
	Response       string   `yaml:"response"`
	CreateResponse string   `yaml:"createResponse"`
	Security       []string `yaml:"security"`
	Tags           []string `yaml:"tags"`
	Description    string   `yaml:"description"`
	Deprecated     bool     `yaml:"deprecated"`
}

// Serializers keeps declarations in document order.
type Serializers []SerializerDecl

// SerializerDecl is either a field list or a discriminated union.
type SerializerDecl struct {
	Name          string             `yaml:"-"`
	Line          int                `yaml:"-"`
	Description   string             `yaml:"description"`
	Fields        Fields             `yaml:"fields"`
	Discriminator *DiscriminatorDecl `yaml:"discriminator"`
	Examples      []any              `yaml:"examples"`
}

type DiscriminatorDecl struct {
	Field    string   `yaml:"field"`
	Variants Variants `yaml:"variants"`
}

// Fields keeps field declarations in document order.
type Fields []FieldDecl

type FieldDecl struct {
	Name        string `yaml:"-"`
	Type        string `yaml:"type"`
	Format      string `yaml:"format"`
	Enum        []any  `yaml:"enum"`
	Nullable    bool   `yaml:"nullable"`
	ReadOnly    bool   `yaml:"readOnly"`
	WriteOnly   bool   `yaml:"writeOnly"`
	Required    bool   `yaml:"required"`
	Description string `yaml:"description"`
	Example     any    `yaml:"example"`
	Items       string `yaml:"items"`
	Ref         string `yaml:"ref"`
	Many        bool   `yaml:"many"`
}

// Variants maps discriminator values to serializer names in document order.
type Variants []VariantDecl

type VariantDecl struct {
	Value string
	// Serializer is empty for variants without extra fields.
	Serializer string
}

// Lookup returns the declaration named name.
func (s Serializers) Lookup(name string) (SerializerDecl, bool) {
	for _, d := range s {
		if d.Name == name {
			return d, true
		}
	}
	return SerializerDecl{}, false
}

func (s *Serializers) UnmarshalYAML(node *yaml.Node) error {
	return eachPair(node, "serializers", func(key string, value *yaml.Node) error {
		var d SerializerDecl
		if err := decodeStrict(value, &d); err != nil {
			return fmt.Errorf("serializer %q: %w", key, err)
		}
		d.Name, d.Line = key, value.Line
		*s = append(*s, d)
		return nil
	})
}

// UnmarshalYAML accepts either a full field mapping or a bare type name,
// e.g. "name: string".
func (f *Fields) UnmarshalYAML(node *yaml.Node) error {
	return eachPair(node, "fields", func(key string, value *yaml.Node) error {
		var d FieldDecl
		if value.Kind == yaml.ScalarNode {
			d.Type = value.Value
		} else if err := decodeStrict(value, &d); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		d.Name = key
		*f = append(*f, d)
		return nil
	})
}

func (v *Variants) UnmarshalYAML(node *yaml.Node) error {
	return eachPair(node, "variants", func(key string, value *yaml.Node) error {
		if value.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: variant %q must name a serializer", value.Line, key)
		}
		name := value.Value
		if value.Tag == "!!null" {
			name = ""
		}
		*v = append(*v, VariantDecl{Value: key, Serializer: name})
		return nil
	})
}

func eachPair(node *yaml.Node, what string, fn func(key string, value *yaml.Node) error) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: %s must be a mapping", node.Line, what)
	}
	seen := make(map[string]struct{}, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if _, dup := seen[key]; dup {
			return fmt.Errorf("line %d: duplicate %s key %q", node.Content[i].Line, what, key)
		}
		seen[key] = struct{}{}
		if err := fn(key, node.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// decodeStrict decodes node rejecting unknown keys; Node.Decode alone does not
// inherit the outer decoder's KnownFields setting.
func decodeStrict(node *yaml.Node, out any) error {
	raw, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	return dec.Decode(out)
}

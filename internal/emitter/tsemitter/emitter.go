// Package tsemitter writes TypeScript declarations for the components of a
// generated document, so clients can consume the discriminated unions.
package tsemitter

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	json "github.com/goccy/go-json"

	"github.com/mark3labs/oasgen/internal/emitter"
	"github.com/mark3labs/oasgen/internal/registry"
)

// FileName is the single file written by Emit.
const FileName = "types.ts"

type Options struct {
	emitter.Options
}

// Emit renders doc's components and writes them under OutDir.
func Emit(ctx context.Context, doc *openapi3.T, opts Options) (*emitter.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("tsemitter: nil document")
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("tsemitter: OutDir is required")
	}
	return emitter.Emit("tsemitter", map[string][]byte{FileName: Render(doc)}, opts.Options)
}

// Render returns one exported declaration per component, sorted by name.
func Render(doc *openapi3.T) []byte {
	var b strings.Builder
	b.WriteString("// Code generated by oasgen. DO NOT EDIT.\n")
	if doc.Info != nil && doc.Info.Title != "" {
		fmt.Fprintf(&b, "// %s %s\n", doc.Info.Title, doc.Info.Version)
	}

	var schemas openapi3.Schemas
	if doc.Components != nil {
		schemas = doc.Components.Schemas
	}
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ref := schemas[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		s := ref.Value
		b.WriteString("\n")
		writeDoc(&b, s.Description, "")
		if isInterface(s) {
			fmt.Fprintf(&b, "export interface %s %s\n", name, objectBody(s, ""))
			continue
		}
		fmt.Fprintf(&b, "export type %s = %s;\n", name, typeOf(&openapi3.SchemaRef{Value: s}, ""))
	}
	return []byte(b.String())
}

func isInterface(s *openapi3.Schema) bool {
	return s.Type.Is(openapi3.TypeObject) && len(s.Properties) > 0 &&
		len(s.AllOf) == 0 && len(s.OneOf) == 0 && len(s.AnyOf) == 0 &&
		!s.Nullable && !hasExtra(s)
}

func hasExtra(s *openapi3.Schema) bool {
	ap := s.AdditionalProperties
	return ap.Schema != nil || (ap.Has != nil && *ap.Has)
}

// typeOf renders an inline type expression for ref.
func typeOf(ref *openapi3.SchemaRef, indent string) string {
	if ref == nil {
		return "unknown"
	}
	if ref.Ref != "" {
		return strings.TrimPrefix(ref.Ref, registry.RefPrefix)
	}
	s := ref.Value
	if s == nil {
		return "unknown"
	}
	t := baseType(s, indent)
	if s.Nullable {
		t = t + " | null"
	}
	return t
}

func baseType(s *openapi3.Schema, indent string) string {
	switch {
	case len(s.Enum) > 0:
		lits := make([]string, 0, len(s.Enum))
		for _, v := range s.Enum {
			lits = append(lits, literal(v))
		}
		return strings.Join(lits, " | ")
	case len(s.OneOf) > 0:
		return join(s.OneOf, " | ", indent)
	case len(s.AnyOf) > 0:
		return join(s.AnyOf, " | ", indent)
	case len(s.AllOf) > 0:
		return join(s.AllOf, " & ", indent)
	}

	switch {
	case s.Type.Is(openapi3.TypeString):
		return "string"
	case s.Type.Is(openapi3.TypeInteger), s.Type.Is(openapi3.TypeNumber):
		return "number"
	case s.Type.Is(openapi3.TypeBoolean):
		return "boolean"
	case s.Type.Is(openapi3.TypeArray):
		item := typeOf(s.Items, indent)
		if strings.ContainsAny(item, "|&") {
			item = "(" + item + ")"
		}
		return item + "[]"
	case s.Type.Is(openapi3.TypeObject):
		var parts []string
		if len(s.Properties) > 0 {
			parts = append(parts, objectBody(s, indent))
		}
		if hasExtra(s) {
			value := "unknown"
			if s.AdditionalProperties.Schema != nil {
				value = typeOf(s.AdditionalProperties.Schema, indent)
			}
			parts = append(parts, "Record<string, "+value+">")
		}
		if len(parts) == 0 {
			return "Record<string, unknown>"
		}
		return strings.Join(parts, " & ")
	}
	return "unknown"
}

func join(refs openapi3.SchemaRefs, sep, indent string) string {
	parts := make([]string, 0, len(refs))
	for _, r := range refs {
		t := typeOf(r, indent)
		if sep == " & " && strings.Contains(t, " | ") {
			t = "(" + t + ")"
		}
		parts = append(parts, t)
	}
	return strings.Join(parts, sep)
}

func objectBody(s *openapi3.Schema, indent string) string {
	required := make(map[string]struct{}, len(s.Required))
	for _, r := range s.Required {
		required[r] = struct{}{}
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	inner := indent + "  "
	var b strings.Builder
	b.WriteString("{\n")
	for _, name := range names {
		prop := s.Properties[name]
		if prop.Value != nil && prop.Ref == "" {
			writeDoc(&b, prop.Value.Description, inner)
		}
		b.WriteString(inner)
		if prop.Value != nil && prop.Value.ReadOnly {
			b.WriteString("readonly ")
		}
		b.WriteString(propertyName(name))
		if _, ok := required[name]; !ok {
			b.WriteString("?")
		}
		fmt.Fprintf(&b, ": %s;\n", typeOf(prop, inner))
	}
	b.WriteString(indent + "}")
	return b.String()
}

func writeDoc(b *strings.Builder, text, indent string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	text = strings.ReplaceAll(text, "*/", "*\\/")
	lines := strings.Split(text, "\n")
	if len(lines) == 1 {
		fmt.Fprintf(b, "%s/** %s */\n", indent, lines[0])
		return
	}
	fmt.Fprintf(b, "%s/**\n", indent)
	for _, l := range lines {
		fmt.Fprintf(b, "%s * %s\n", indent, strings.TrimRight(l, " "))
	}
	fmt.Fprintf(b, "%s */\n", indent)
}

var identRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

func propertyName(name string) string {
	if identRe.MatchString(name) {
		return name
	}
	return literal(name)
}

func literal(v any) string {
	if v == nil {
		return "null"
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "unknown"
	}
	return string(out)
}

// Package verify checks generated documents: structural validity, a
// serialize/parse round trip, and declared examples against the components
// generated for them.
package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	json "github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/mark3labs/oasgen/internal/registry"
	"github.com/mark3labs/oasgen/internal/schema"
)

// Code categorizes verification failures.
type Code string

const (
	StructureError Code = "StructureError"
	RoundTripError Code = "RoundTripError"
	ExampleError   Code = "ExampleError"
)

// Error is a verification failure with an optional JSON Pointer into the
// generated document.
type Error struct {
	Code        Code
	Message     string
	JSONPointer string
	Cause       error
}

func (e *Error) Error() string {
	if e.JSONPointer != "" {
		return fmt.Sprintf("%s: %s (at %s)", e.Code, e.Message, e.JSONPointer)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Document validates doc and checks that its serialized form loads back into
// an equally valid document.
func Document(ctx context.Context, doc *openapi3.T) error {
	if doc == nil {
		return &Error{Code: StructureError, Message: "document is nil"}
	}
	if err := doc.Validate(ctx); err != nil {
		return mapError(StructureError, err)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return &Error{Code: RoundTripError, Message: fmt.Sprintf("marshal: %v", err), Cause: err}
	}
	loaded, err := openapi3.NewLoader().LoadFromData(raw)
	if err != nil {
		return mapError(RoundTripError, err)
	}
	if err := loaded.Validate(ctx); err != nil {
		return mapError(RoundTripError, err)
	}
	return nil
}

func mapError(code Code, err error) error {
	return &Error{Code: code, Message: err.Error(), JSONPointer: extractJSONPointer(err), Cause: err}
}

var jsonPtrRe = regexp.MustCompile(`#/[^\s'"]+`)

func extractJSONPointer(err error) string {
	if err == nil {
		return ""
	}
	var me openapi3.MultiError
	if errors.As(err, &me) && len(me) > 0 {
		return extractJSONPointer(me[0])
	}
	var se *openapi3.SchemaError
	if errors.As(err, &se) {
		if parts := se.JSONPointer(); len(parts) > 0 {
			return "#/" + strings.Join(parts, "/")
		}
	}
	if m := jsonPtrRe.FindString(err.Error()); m != "" {
		return m
	}
	return ""
}

// Report summarizes an Examples run.
type Report struct {
	// Checked counts validated example payloads.
	Checked int
	// Skipped lists serializers with examples but no generated component.
	Skipped []string
}

const resourceURL = "https://oasgen.local/openapi.json"

var printer = message.NewPrinter(language.English)

// Examples validates every example carried by serializers against the
// component generated under the serializer's name. Polymorphic examples are
// encoded first, so an unknown discriminator value is reported as well.
func Examples(doc *openapi3.T, serializers []schema.Serializer) (*Report, error) {
	report := &Report{}
	if doc == nil || doc.Components == nil {
		return report, &Error{Code: StructureError, Message: "document has no components"}
	}

	compiler, err := newCompiler(doc.Components.Schemas)
	if err != nil {
		return report, &Error{Code: ExampleError, Message: fmt.Sprintf("prepare schemas: %v", err), Cause: err}
	}

	var errs []error
	for _, s := range serializers {
		ex, ok := s.(schema.Exampler)
		if !ok || len(ex.ExampleValues()) == 0 {
			continue
		}
		name := s.Name()
		ptr := registry.RefPrefix + escapePointer(name)
		if _, ok := doc.Components.Schemas[name]; !ok {
			report.Skipped = append(report.Skipped, name)
			continue
		}
		sch, err := compiler.Compile(resourceURL + ptr)
		if err != nil {
			errs = append(errs, &Error{Code: ExampleError, Message: fmt.Sprintf("compile %s: %v", name, err), JSONPointer: ptr, Cause: err})
			continue
		}
		for i, value := range ex.ExampleValues() {
			report.Checked++
			if err := validateExample(sch, s, value); err != nil {
				errs = append(errs, &Error{
					Code:        ExampleError,
					Message:     fmt.Sprintf("%s example %d: %v", name, i, err),
					JSONPointer: ptr,
					Cause:       err,
				})
			}
		}
	}
	return report, errors.Join(errs...)
}

func validateExample(sch *jsonschema.Schema, s schema.Serializer, value any) error {
	if p, ok := s.(*schema.Polymorphic); ok {
		encoded, err := p.Encode(value)
		if err != nil {
			return err
		}
		value = encoded
	}
	inst, err := canonical(value)
	if err != nil {
		return err
	}
	err = sch.Validate(inst)
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	var msgs []string
	for _, leaf := range rootCauses(ve) {
		loc := "/" + strings.Join(leaf.InstanceLocation, "/")
		switch leaf.ErrorKind.(type) {
		case *kind.Required:
			msgs = append(msgs, fmt.Sprintf("%s: missing field, %s", loc, leaf.ErrorKind.LocalizedString(printer)))
		case *kind.Type:
			msgs = append(msgs, fmt.Sprintf("%s: type mismatch, %s", loc, leaf.ErrorKind.LocalizedString(printer)))
		default:
			msgs = append(msgs, fmt.Sprintf("%s: %s", loc, leaf.ErrorKind.LocalizedString(printer)))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func rootCauses(err *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(err.Causes) == 0 {
		return []*jsonschema.ValidationError{err}
	}
	var out []*jsonschema.ValidationError
	for _, c := range err.Causes {
		out = append(out, rootCauses(c)...)
	}
	return out
}

func newCompiler(schemas openapi3.Schemas) (*jsonschema.Compiler, error) {
	raw, err := json.Marshal(map[string]any{"components": map[string]any{"schemas": schemas}})
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceURL, downgradeNullable(doc)); err != nil {
		return nil, err
	}
	return c, nil
}

// canonical converts v to the value model the validator expects: decoded
// JSON with json.Number numbers.
func canonical(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(raw))
}

// downgradeNullable rewrites the OpenAPI 3.0 nullable keyword into JSON Schema:
// a typed schema gains "null" in its type list, an untyped one is wrapped in
// anyOf with a null branch.
func downgradeNullable(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = downgradeNullable(child)
		}
		nullable, isBool := t["nullable"].(bool)
		if !isBool {
			return t
		}
		delete(t, "nullable")
		if !nullable {
			return t
		}
		if enum, ok := t["enum"].([]any); ok {
			t["enum"] = append(enum, nil)
		}
		if typ, ok := t["type"].(string); ok {
			t["type"] = []any{typ, "null"}
			return t
		}
		return map[string]any{"anyOf": []any{map[string]any{"type": "null"}, t}}
	case []any:
		for i, child := range t {
			t[i] = downgradeNullable(child)
		}
	}
	return v
}

func escapePointer(s string) string {
	return strings.NewReplacer("~", "~0", "/", "~1").Replace(s)
}

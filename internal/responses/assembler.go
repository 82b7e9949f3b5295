// Package responses builds the status-code keyed response map of an
// operation.
package responses

import (
	"net/http"
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/mark3labs/oasgen/internal/naming"
	"github.com/mark3labs/oasgen/internal/registry"
)

const (
	DefaultNonFieldErrorsKey = "non_field_errors"
	DefaultMediaType         = "application/json"

	ErrorComponent    = "Error"
	NotFoundComponent = "NotFound"
	ObjectComponent   = "Object"
)

// Options configure an Assembler.
type Options struct {
	// NonFieldErrorsKey names the 400 body property holding errors that are
	// not tied to a single field.
	NonFieldErrorsKey string
	MediaType         string
}

// Assembler derives response maps and owns the stock error components.
type Assembler struct {
	reg  *registry.Registry
	opts Options
}

func New(reg *registry.Registry, opts Options) *Assembler {
	if opts.NonFieldErrorsKey == "" {
		opts.NonFieldErrorsKey = DefaultNonFieldErrorsKey
	}
	if opts.MediaType == "" {
		opts.MediaType = DefaultMediaType
	}
	return &Assembler{reg: reg, opts: opts}
}

// Input is everything Assemble needs to know about one operation.
type Input struct {
	Descriptor naming.Descriptor
	// Success is the response serializer's schema; nil means no body.
	Success *openapi3.SchemaRef
	// CreateResponse replaces Success for Create operations. When nil the
	// generic Object representation is used.
	CreateResponse   *openapi3.SchemaRef
	HasPathVariables bool
	RequiresAuth     bool
}

// SuccessStatus is the status code a successful call of method returns.
func SuccessStatus(method string) int {
	switch method {
	case http.MethodPost:
		return http.StatusCreated
	case http.MethodDelete:
		return http.StatusNoContent
	default:
		return http.StatusOK
	}
}

// Assemble builds the response map. Rules are applied in order: base success
// body, create echo, update without body, 404, 400 and finally 401/403.
func (a *Assembler) Assemble(in Input) (*openapi3.Responses, error) {
	d := in.Descriptor
	out := openapi3.NewResponsesWithCapacity(6)

	status := SuccessStatus(d.Method)
	success := in.Success
	if success != nil && d.Verb == naming.List {
		success = &openapi3.SchemaRef{Value: &openapi3.Schema{
			Type:  &openapi3.Types{openapi3.TypeArray},
			Items: success,
		}}
	}
	if status == http.StatusNoContent {
		success = nil
	}
	out.Set(strconv.Itoa(status), a.response(http.StatusText(status), success))

	if d.Verb == naming.Create {
		body := in.CreateResponse
		if body == nil {
			obj, err := a.Object()
			if err != nil {
				return nil, err
			}
			body = obj.SchemaRef()
		}
		out.Set(strconv.Itoa(status), a.response(http.StatusText(status), body))
	}

	if d.Verb == naming.Update || d.Verb == naming.PartialUpdate {
		if out.Value("200") != nil {
			out.Delete("200")
			out.Set("204", a.response(http.StatusText(http.StatusNoContent), nil))
		}
	}

	if in.HasPathVariables {
		nf, err := a.notFound()
		if err != nil {
			return nil, err
		}
		out.Set("404", a.response("Resource Not Found", nf.SchemaRef()))
	}

	if d.Mutating() {
		out.Set("400", a.response("Bad Request", &openapi3.SchemaRef{Value: a.ValidationErrorSchema()}))
	}

	if in.RequiresAuth {
		e, err := a.errorComponent()
		if err != nil {
			return nil, err
		}
		out.Set("401", a.response("Unauthorized", e.SchemaRef()))
		out.Set("403", a.response("Request Forbidden", e.SchemaRef()))
	}

	return out, nil
}

func (a *Assembler) response(description string, body *openapi3.SchemaRef) *openapi3.ResponseRef {
	r := openapi3.NewResponse().WithDescription(description)
	if body != nil {
		r.Content = openapi3.Content{a.opts.MediaType: openapi3.NewMediaType().WithSchemaRef(body)}
	}
	return &openapi3.ResponseRef{Value: r}
}

// ValidationErrorSchema is the 400 body: an optional list of non-field errors
// plus one string list per invalid field.
func (a *Assembler) ValidationErrorSchema() *openapi3.Schema {
	nonField := openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())
	nonField.Description = "List of non-field errors"
	return openapi3.NewObjectSchema().
		WithProperty(a.opts.NonFieldErrorsKey, nonField).
		WithAdditionalProperties(openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema()))
}

func (a *Assembler) errorComponent() (*registry.Component, error) {
	code := openapi3.NewStringSchema()
	code.Description = "Short code describing the error"
	return a.reg.Register(registry.Component{
		Name: ErrorComponent,
		Schema: openapi3.NewObjectSchema().
			WithProperty("message", openapi3.NewStringSchema()).
			WithProperty("code", code).
			WithRequired([]string{"message", "code"}),
		Owner: ErrorComponent,
	})
}

func (a *Assembler) notFound() (*registry.Component, error) {
	return a.reg.Register(registry.Component{
		Name: NotFoundComponent,
		Schema: openapi3.NewObjectSchema().
			WithProperty("detail", openapi3.NewStringSchema()).
			WithRequired([]string{"detail"}),
		Owner: NotFoundComponent,
	})
}

// Object registers the generic representation echoed by create endpoints.
func (a *Assembler) Object() (*registry.Component, error) {
	uid := openapi3.NewStringSchema().WithNullable()
	uid.ReadOnly = true
	uid.Description = "Unique identifier of object"
	urn := openapi3.NewStringSchema().WithNullable()
	urn.Description = "Unique resource name of object"
	value := openapi3.NewStringSchema()
	value.Description = "String representation of object"
	return a.reg.Register(registry.Component{
		Name: ObjectComponent,
		Schema: openapi3.NewObjectSchema().
			WithProperty("uid", uid).
			WithProperty("urn", urn).
			WithProperty("value", value).
			WithRequired([]string{"uid", "urn", "value"}),
		Owner: ObjectComponent,
	})
}

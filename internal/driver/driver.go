// Package driver assembles a complete OpenAPI document from endpoint
// declarations.
package driver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/rs/zerolog"

	"github.com/mark3labs/oasgen/internal/casing"
	"github.com/mark3labs/oasgen/internal/naming"
	"github.com/mark3labs/oasgen/internal/registry"
	"github.com/mark3labs/oasgen/internal/responses"
	"github.com/mark3labs/oasgen/internal/schema"
)

// OpenAPIVersion is the version written into generated documents.
const OpenAPIVersion = "3.0.3"

// DefaultSecurityScheme is registered when no scheme is configured.
const DefaultSecurityScheme = "bearerAuth"

// Endpoint is one declared handler served under Path.
type Endpoint struct {
	// Kind is the handler's declared name, e.g. "ListCreateWidgetView".
	Kind    string
	Path    string
	Methods []string
	// Request and Response are the body serializers; either may be nil.
	Request  schema.Serializer
	Response schema.Serializer
	// CreateResponse is echoed by Create operations instead of Response.
	CreateResponse schema.Serializer
	// Security lists the names of the schemes that may authorize a call.
	Security    []string
	Tags        []string
	Description string
	Deprecated  bool
}

// Result is the output of a build.
type Result struct {
	Document   *openapi3.T
	Registry   *registry.Registry
	Operations []naming.Descriptor
}

// OperationError ties a failure to the operation it aborted.
type OperationError struct {
	Method string
	Path   string
	Err    error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// UnknownSecuritySchemeError reports an endpoint naming an undeclared scheme.
type UnknownSecuritySchemeError struct {
	Name string
}

func (e *UnknownSecuritySchemeError) Error() string {
	return fmt.Sprintf("unknown security scheme %q", e.Name)
}

// DuplicateOperationIDError reports two operations deriving the same id.
type DuplicateOperationIDError struct {
	OperationID string
	First       string
}

func (e *DuplicateOperationIDError) Error() string {
	return fmt.Sprintf("operationId %q is already used by %s", e.OperationID, e.First)
}

var pathVarRe = regexp.MustCompile(`\{([^{}/]+)\}`)

// PathVariables returns the template variables of path in order.
func PathVariables(path string) []string {
	matches := pathVarRe.FindAllStringSubmatch(path, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

type builder struct {
	cfg     *config
	reg     *registry.Registry
	derive  *schema.Deriver
	respond *responses.Assembler
	ids     map[string]string
}

// Build derives the document for endpoints. A component name collision aborts
// the build immediately. Any other failure aborts only its operation, and all
// of them are reported together; no document is returned in either case.
func Build(ctx context.Context, endpoints []Endpoint, opts ...Option) (*Result, error) {
	cfg := newConfig(opts)
	reg := registry.New()
	b := &builder{
		cfg: cfg,
		reg: reg,
		derive: schema.NewDeriver(reg, schema.Options{
			SplitRequest: cfg.splitRequest,
			Case:         cfg.propertyCase,
		}),
		respond: responses.New(reg, responses.Options{NonFieldErrorsKey: cfg.nonFieldErrorsKey}),
		ids:     map[string]string{},
	}

	doc := &openapi3.T{
		OpenAPI: OpenAPIVersion,
		Info: &openapi3.Info{
			Title:       cfg.title,
			Version:     cfg.version,
			Description: cfg.description,
		},
		Paths:      openapi3.NewPaths(),
		Components: &openapi3.Components{},
	}
	for _, s := range cfg.servers {
		doc.AddServer(s)
	}

	var (
		errs []error
		ops  []naming.Descriptor
		tags = map[string]struct{}{}
	)
	for _, ep := range endpoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		methods := ep.Methods
		if len(methods) == 0 {
			errs = append(errs, &OperationError{Path: ep.Path, Err: fmt.Errorf("endpoint %q declares no methods", ep.Kind)})
			continue
		}
		for _, raw := range methods {
			method := strings.ToUpper(strings.TrimSpace(raw))
			op, desc, err := b.operation(ep, method)
			if err != nil {
				opErr := &OperationError{Method: method, Path: ep.Path, Err: err}
				var dup *registry.DuplicateComponentNameError
				if errors.As(err, &dup) {
					return nil, opErr
				}
				cfg.logger.Debug().Err(err).Str("method", method).Str("path", ep.Path).Msg("operation failed")
				errs = append(errs, opErr)
				continue
			}
			doc.AddOperation(ep.Path, method, op)
			ops = append(ops, desc)
			for _, t := range op.Tags {
				tags[t] = struct{}{}
			}
			cfg.logger.Debug().
				Str("method", method).
				Str("path", ep.Path).
				Str("operationId", op.OperationID).
				Strs("responses", responseCodes(op.Responses)).
				Msg("operation")
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	doc.Components.Schemas = reg.Schemas()
	if len(cfg.schemes) > 0 {
		doc.Components.SecuritySchemes = make(openapi3.SecuritySchemes, len(cfg.schemes))
		for name, scheme := range cfg.schemes {
			doc.Components.SecuritySchemes[name] = &openapi3.SecuritySchemeRef{Value: scheme}
		}
	}
	doc.Tags = sortedTags(tags)

	cfg.logger.Info().
		Int("operations", len(ops)).
		Int("components", reg.Len()).
		Msg("document built")
	return &Result{Document: doc, Registry: reg, Operations: ops}, nil
}

func (b *builder) operation(ep Endpoint, method string) (*openapi3.Operation, naming.Descriptor, error) {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete,
		http.MethodHead, http.MethodOptions:
	default:
		return nil, naming.Descriptor{}, fmt.Errorf("unsupported method %q", method)
	}
	if !strings.HasPrefix(ep.Path, "/") {
		return nil, naming.Descriptor{}, fmt.Errorf("path %q must start with /", ep.Path)
	}

	desc := naming.Describe(ep.Kind, method, ep.Path)
	if first, taken := b.ids[desc.OperationID]; taken {
		return nil, desc, &DuplicateOperationIDError{OperationID: desc.OperationID, First: first}
	}

	op := openapi3.NewOperation()
	op.OperationID = desc.OperationID
	op.Summary = desc.Summary
	op.Description = ep.Description
	op.Deprecated = ep.Deprecated
	op.Tags = ep.Tags
	if len(op.Tags) == 0 {
		if tag := DefaultTag(ep.Path); tag != "" {
			op.Tags = []string{tag}
		}
	}

	vars := PathVariables(ep.Path)
	for _, v := range vars {
		op.AddParameter(openapi3.NewPathParameter(v).WithSchema(openapi3.NewStringSchema()))
	}

	if desc.Mutating() && ep.Request != nil {
		patched := method == http.MethodPatch
		c, err := b.derive.Component(ep.Request, schema.Request, patched)
		if err != nil {
			return nil, desc, fmt.Errorf("request body: %w", err)
		}
		if !c.Virtual() {
			body := openapi3.NewRequestBody().
				WithRequired(!patched).
				WithJSONSchemaRef(c.SchemaRef())
			op.RequestBody = &openapi3.RequestBodyRef{Value: body}
		}
	}

	in := responses.Input{
		Descriptor:       desc,
		HasPathVariables: len(vars) > 0,
	}
	// The assembler drops the success body for these verbs, so resolving
	// it would register a component nothing references.
	var err error
	switch desc.Verb {
	case naming.Create:
		if in.CreateResponse, err = b.bodyRef(ep.CreateResponse); err != nil {
			return nil, desc, fmt.Errorf("create response body: %w", err)
		}
	case naming.Update, naming.PartialUpdate:
	default:
		if in.Success, err = b.bodyRef(ep.Response); err != nil {
			return nil, desc, fmt.Errorf("response body: %w", err)
		}
	}

	if len(ep.Security) > 0 {
		reqs := openapi3.NewSecurityRequirements()
		for _, name := range ep.Security {
			if _, ok := b.cfg.schemes[name]; !ok {
				return nil, desc, &UnknownSecuritySchemeError{Name: name}
			}
			reqs.With(openapi3.NewSecurityRequirement().Authenticate(name))
		}
		op.Security = reqs
		in.RequiresAuth = true
	}

	op.Responses, err = b.respond.Assemble(in)
	if err != nil {
		return nil, desc, err
	}

	b.ids[desc.OperationID] = method + " " + ep.Path
	return op, desc, nil
}

func (b *builder) bodyRef(s schema.Serializer) (*openapi3.SchemaRef, error) {
	if s == nil {
		return nil, nil
	}
	c, err := b.derive.Component(s, schema.Response, false)
	if err != nil {
		return nil, err
	}
	if c.Virtual() {
		return nil, nil
	}
	return c.SchemaRef(), nil
}

// DefaultTag is the first literal segment of path, used when an endpoint
// declares no tags.
func DefaultTag(path string) string {
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || strings.HasPrefix(seg, "{") {
			continue
		}
		return seg
	}
	return ""
}

func sortedTags(set map[string]struct{}) openapi3.Tags {
	if len(set) == 0 {
		return nil
	}
	names := make([]string, 0, len(set))
	for t := range set {
		names = append(names, t)
	}
	sort.Strings(names)
	out := make(openapi3.Tags, 0, len(names))
	for _, n := range names {
		out = append(out, &openapi3.Tag{Name: n})
	}
	return out
}

func responseCodes(r *openapi3.Responses) []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, r.Len())
	for code := range r.Map() {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Option configures Build.
type Option func(*config)

type config struct {
	title             string
	version           string
	description       string
	servers           []*openapi3.Server
	splitRequest      bool
	propertyCase      casing.Mapper
	nonFieldErrorsKey string
	schemes           map[string]*openapi3.SecurityScheme
	logger            zerolog.Logger
}

func newConfig(opts []Option) *config {
	cfg := &config{
		title:        "API",
		version:      "1.0.0",
		propertyCase: casing.LowerCamel,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.schemes == nil {
		cfg.schemes = map[string]*openapi3.SecurityScheme{
			DefaultSecurityScheme: BearerScheme(),
		}
	}
	return cfg
}

// BearerScheme is the JWT bearer scheme used for user access tokens.
func BearerScheme() *openapi3.SecurityScheme {
	return openapi3.NewJWTSecurityScheme().WithDescription("User access token")
}

func WithInfo(title, version, description string) Option {
	return func(c *config) {
		if t := strings.TrimSpace(title); t != "" {
			c.title = t
		}
		if v := strings.TrimSpace(version); v != "" {
			c.version = v
		}
		c.description = strings.TrimSpace(description)
	}
}

func WithServer(url, description string) Option {
	return func(c *config) {
		c.servers = append(c.servers, &openapi3.Server{URL: url, Description: description})
	}
}

// WithSplitRequest registers request bodies as separate components.
func WithSplitRequest(split bool) Option { return func(c *config) { c.splitRequest = split } }

// WithPropertyCase sets the mapper applied to top-level property names.
func WithPropertyCase(m casing.Mapper) Option {
	return func(c *config) {
		if m != nil {
			c.propertyCase = m
		}
	}
}

func WithNonFieldErrorsKey(key string) Option {
	return func(c *config) { c.nonFieldErrorsKey = strings.TrimSpace(key) }
}

// WithSecurityScheme declares a scheme endpoints may reference by name. The
// first call replaces the default bearer scheme.
func WithSecurityScheme(name string, scheme *openapi3.SecurityScheme) Option {
	return func(c *config) {
		if c.schemes == nil {
			c.schemes = map[string]*openapi3.SecurityScheme{}
		}
		c.schemes[name] = scheme
	}
}

func WithLogger(l zerolog.Logger) Option { return func(c *config) { c.logger = l } }

package manifest

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/mark3labs/oasgen/internal/driver"
	"github.com/mark3labs/oasgen/internal/schema"
)

// Linked holds the serializers of a manifest with every reference resolved.
type Linked struct {
	Manifest    *Manifest
	Serializers map[string]schema.Serializer
	// Order lists serializer names in declaration order.
	Order []string
}

// Link resolves serializer references in two passes, so declarations may
// appear in any order and refer to each other.
func Link(m *Manifest) (*Linked, error) {
	if m == nil {
		return nil, &ManifestError{Code: InputError, Message: "manifest: nil manifest"}
	}
	l := &Linked{Manifest: m, Serializers: make(map[string]schema.Serializer, len(m.Serializers))}

	for _, d := range m.Serializers {
		ptr := "#/serializers/" + escapePointer(d.Name)
		if strings.TrimSpace(d.Name) == "" {
			return nil, l.invalid(ptr, "serializer name is empty")
		}
		switch {
		case d.Discriminator != nil && len(d.Fields) > 0:
			return nil, l.invalid(ptr, fmt.Sprintf("serializer %q declares both fields and a discriminator", d.Name))
		case d.Discriminator != nil:
			l.Serializers[d.Name] = &schema.Polymorphic{
				Title:        d.Name,
				Description:  d.Description,
				Field:        d.Discriminator.Field,
				Discriminate: schema.FieldDiscriminator(discriminatorField(d.Discriminator.Field)),
				Examples:     d.Examples,
			}
		default:
			l.Serializers[d.Name] = &schema.Object{Title: d.Name, Description: d.Description, Examples: d.Examples}
		}
		l.Order = append(l.Order, d.Name)
	}

	for _, d := range m.Serializers {
		ptr := "#/serializers/" + escapePointer(d.Name)
		switch s := l.Serializers[d.Name].(type) {
		case *schema.Polymorphic:
			for _, v := range d.Discriminator.Variants {
				variant := schema.Variant{Value: v.Value}
				if v.Serializer != "" {
					target, ok := l.Serializers[v.Serializer]
					if !ok {
						return nil, l.invalid(ptr+"/discriminator/variants/"+escapePointer(v.Value),
							fmt.Sprintf("variant %q refers to unknown serializer %q", v.Value, v.Serializer))
					}
					variant.Serializer = target
				}
				s.Variants = append(s.Variants, variant)
			}
		case *schema.Object:
			for _, f := range d.Fields {
				field, err := l.field(f)
				if err != nil {
					return nil, l.invalid(ptr+"/fields/"+escapePointer(f.Name), err.Error())
				}
				s.Fields = append(s.Fields, field)
			}
		}
	}
	return l, nil
}

func (l *Linked) field(f FieldDecl) (schema.Field, error) {
	out := schema.Field{
		Name:        f.Name,
		Type:        schema.FieldType(f.Type),
		Format:      f.Format,
		Enum:        f.Enum,
		Nullable:    f.Nullable,
		ReadOnly:    f.ReadOnly,
		WriteOnly:   f.WriteOnly,
		Required:    f.Required,
		Description: f.Description,
		Example:     f.Example,
		Items:       schema.FieldType(f.Items),
		Many:        f.Many,
	}
	if f.Ref != "" {
		target, ok := l.Serializers[f.Ref]
		if !ok {
			return out, fmt.Errorf("field %q refers to unknown serializer %q", f.Name, f.Ref)
		}
		out.Ref = target
		return out, nil
	}
	if f.Many {
		return out, fmt.Errorf("field %q sets many without ref", f.Name)
	}
	if out.Type == "" {
		out.Type = schema.TypeString
	}
	if !out.Type.Valid() {
		return out, fmt.Errorf("field %q has unknown type %q", f.Name, f.Type)
	}
	if out.Items != "" && (!out.Items.Valid() || out.Items == schema.TypeArray) {
		return out, fmt.Errorf("field %q has unknown item type %q", f.Name, f.Items)
	}
	return out, nil
}

func (l *Linked) lookup(name, ptr string) (schema.Serializer, error) {
	if name == "" {
		return nil, nil
	}
	s, ok := l.Serializers[name]
	if !ok {
		return nil, l.invalid(ptr, fmt.Sprintf("unknown serializer %q", name))
	}
	return s, nil
}

func (l *Linked) invalid(ptr, msg string) error {
	return &ManifestError{Code: ValidationError, Message: "manifest: " + msg, Location: l.Manifest.Source, JSONPointer: ptr}
}

// BuildOption filters the endpoints produced by Endpoints.
type BuildOption func(*buildConfig)

type buildConfig struct {
	includeTags map[string]struct{}
	excludeTags map[string]struct{}
	methods     map[string]struct{}
	patterns    []string
}

// WithIncludeTags keeps only endpoints that have at least one of the given tags.
func WithIncludeTags(tags []string) BuildOption {
	return func(c *buildConfig) { c.includeTags = addSet(c.includeTags, tags, false) }
}

// WithExcludeTags removes endpoints that have any of the given tags.
func WithExcludeTags(tags []string) BuildOption {
	return func(c *buildConfig) { c.excludeTags = addSet(c.excludeTags, tags, false) }
}

// WithMethods keeps only the listed HTTP methods of each endpoint.
func WithMethods(methods []string) BuildOption {
	return func(c *buildConfig) { c.methods = addSet(c.methods, methods, true) }
}

// WithPathPatterns keeps only endpoints whose path matches at least one of the
// given regular expressions.
func WithPathPatterns(patterns []string) BuildOption {
	return func(c *buildConfig) {
		for _, p := range patterns {
			if p = strings.TrimSpace(p); p != "" {
				c.patterns = append(c.patterns, p)
			}
		}
	}
}

func addSet(set map[string]struct{}, values []string, upper bool) map[string]struct{} {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if upper {
			v = strings.ToUpper(v)
		}
		if set == nil {
			set = make(map[string]struct{}, len(values))
		}
		set[v] = struct{}{}
	}
	return set
}

// Endpoints converts the manifest's endpoints, in manifest order, applying the
// filters. An invalid path pattern is an InputError.
func (l *Linked) Endpoints(opts ...BuildOption) ([]driver.Endpoint, error) {
	cfg := &buildConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	pathRes := make([]*regexp.Regexp, 0, len(cfg.patterns))
	for _, p := range cfg.patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, &ManifestError{Code: InputError, Message: fmt.Sprintf("invalid path pattern %q: %v", p, err), Cause: err}
		}
		pathRes = append(pathRes, re)
	}

	var out []driver.Endpoint
	for i, ep := range l.Manifest.Endpoints {
		ptr := fmt.Sprintf("#/endpoints/%d", i)
		if strings.TrimSpace(ep.Kind) == "" {
			return nil, l.invalid(ptr+"/kind", "endpoint kind is empty")
		}
		if !strings.HasPrefix(ep.Path, "/") {
			return nil, l.invalid(ptr+"/path", fmt.Sprintf("endpoint path %q must start with /", ep.Path))
		}
		if len(ep.Methods) == 0 {
			return nil, l.invalid(ptr+"/methods", "endpoint declares no methods")
		}

		d := driver.Endpoint{
			Kind:        ep.Kind,
			Path:        ep.Path,
			Security:    ep.Security,
			Tags:        ep.Tags,
			Description: ep.Description,
			Deprecated:  ep.Deprecated,
		}
		var err error
		if d.Request, err = l.lookup(ep.Request, ptr+"/request"); err != nil {
			return nil, err
		}
		if d.Response, err = l.lookup(ep.Response, ptr+"/response"); err != nil {
			return nil, err
		}
		if d.CreateResponse, err = l.lookup(ep.CreateResponse, ptr+"/createResponse"); err != nil {
			return nil, err
		}

		tags := ep.Tags
		if len(tags) == 0 {
			if t := driver.DefaultTag(ep.Path); t != "" {
				tags = []string{t}
			}
		}
		if !allowByTags(tags, cfg) || !allowByPath(ep.Path, pathRes) {
			continue
		}
		for _, m := range ep.Methods {
			m = strings.ToUpper(strings.TrimSpace(m))
			if len(cfg.methods) > 0 {
				if _, ok := cfg.methods[m]; !ok {
					continue
				}
			}
			d.Methods = append(d.Methods, m)
		}
		if len(d.Methods) == 0 {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func allowByTags(tags []string, cfg *buildConfig) bool {
	if len(cfg.includeTags) > 0 {
		ok := false
		for _, t := range tags {
			if _, yes := cfg.includeTags[t]; yes {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, t := range tags {
		if _, blocked := cfg.excludeTags[t]; blocked {
			return false
		}
	}
	return true
}

func allowByPath(path string, res []*regexp.Regexp) bool {
	if len(res) == 0 {
		return true
	}
	for _, re := range res {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// DriverOptions translates the manifest's document metadata and security
// schemes into driver options. Schemes are validated here so a bad scheme is
// reported against the manifest rather than the generated document.
func (l *Linked) DriverOptions(ctx context.Context) ([]driver.Option, error) {
	m := l.Manifest
	opts := []driver.Option{driver.WithInfo(m.Title, m.Version, m.Description)}
	for i, s := range m.Servers {
		if strings.TrimSpace(s.URL) == "" {
			return nil, l.invalid(fmt.Sprintf("#/servers/%d/url", i), "server url is empty")
		}
		opts = append(opts, driver.WithServer(s.URL, s.Description))
	}

	names := make([]string, 0, len(m.SecuritySchemes))
	for name := range m.SecuritySchemes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		scheme := m.SecuritySchemes[name]
		ptr := "#/securitySchemes/" + escapePointer(name)
		if scheme == nil {
			return nil, l.invalid(ptr, fmt.Sprintf("security scheme %q is empty", name))
		}
		if err := scheme.Validate(ctx); err != nil {
			me := l.invalid(ptr, fmt.Sprintf("security scheme %q: %v", name, err)).(*ManifestError)
			me.Cause = err
			return nil, me
		}
		opts = append(opts, driver.WithSecurityScheme(name, scheme))
	}
	return opts, nil
}

// Examples returns declared example payloads by serializer name.
func (l *Linked) Examples() map[string][]any {
	out := map[string][]any{}
	for _, name := range l.Order {
		if ex, ok := l.Serializers[name].(schema.Exampler); ok && len(ex.ExampleValues()) > 0 {
			out[name] = ex.ExampleValues()
		}
	}
	return out
}

// Methods lists the HTTP methods a manifest may declare.
var Methods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
	http.MethodDelete, http.MethodHead, http.MethodOptions,
}

func discriminatorField(f string) string {
	if f == "" {
		return schema.DefaultDiscriminatorField
	}
	return f
}

func escapePointer(s string) string {
	return strings.NewReplacer("~", "~0", "/", "~1").Replace(s)
}

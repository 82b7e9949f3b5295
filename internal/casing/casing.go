// Package casing converts identifiers between naming conventions.
package casing

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stoewer/go-strcase"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Mapper rewrites a single property name.
type Mapper func(string) string

var (
	Identity   Mapper = func(s string) string { return s }
	LowerCamel Mapper = strcase.LowerCamelCase
	Snake      Mapper = strcase.SnakeCase
	Kebab      Mapper = strcase.KebabCase
)

// Lookup returns the mapper registered under name. The empty name selects
// camelCase, which is what the generated documents use by default.
func Lookup(name string) (Mapper, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "camel", "lowercamel", "camelcase":
		return LowerCamel, nil
	case "snake", "snake_case":
		return Snake, nil
	case "kebab", "kebab-case":
		return Kebab, nil
	case "none", "identity", "preserve":
		return Identity, nil
	default:
		return nil, fmt.Errorf("casing: unknown property case %q (allowed: camel, snake, kebab, none)", name)
	}
}

// CollisionError reports two properties that map to the same name.
type CollisionError struct {
	Mapped string
	First  string
	Second string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("casing: properties %q and %q both map to %q", e.First, e.Second, e.Mapped)
}

// Properties returns a shallow copy of s whose top-level property names and
// required entries are passed through m. Nested schemas are shared, not
// rewritten. Two properties mapping to one name yield a *CollisionError.
func Properties(s *openapi3.Schema, m Mapper) (*openapi3.Schema, error) {
	if s == nil || m == nil || len(s.Properties) == 0 {
		return s, nil
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	out := *s
	out.Properties = make(openapi3.Schemas, len(s.Properties))
	from := make(map[string]string, len(s.Properties))
	for _, name := range names {
		mapped := m(name)
		if prev, taken := from[mapped]; taken {
			return nil, &CollisionError{Mapped: mapped, First: prev, Second: name}
		}
		from[mapped] = name
		out.Properties[mapped] = s.Properties[name]
	}
	if len(s.Required) > 0 {
		out.Required = make([]string, len(s.Required))
		for i, name := range s.Required {
			out.Required[i] = m(name)
		}
	}
	return &out, nil
}

// Pascal renders s as an exported identifier ("dog_walker" -> "DogWalker").
func Pascal(s string) string {
	return strcase.UpperCamelCase(s)
}

// Words splits an identifier on case transitions, digits and separators.
// Runs of capitals stay together as an acronym: "RetrieveAPIKey" yields
// Retrieve, API, Key.
func Words(s string) []string {
	runes := []rune(strings.TrimSpace(s))
	var words []string
	start := -1
	flush := func(end int) {
		if start >= 0 && end > start {
			words = append(words, string(runes[start:end]))
		}
		start = -1
	}
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush(i)
			continue
		}
		if start < 0 {
			start = i
			continue
		}
		prev := runes[i-1]
		switch {
		case unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			flush(i)
			start = i
		case unicode.IsUpper(r) && unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
			flush(i)
			start = i
		case unicode.IsDigit(r) && unicode.IsLetter(prev):
			flush(i)
			start = i
		}
	}
	flush(len(runes))
	return words
}

var titler = cases.Title(language.English, cases.NoLower)

// Humanize renders an identifier as a capitalized phrase:
// "PartialUpdateWidget" becomes "Partial Update Widget".
func Humanize(identifier string) string {
	words := Words(identifier)
	for i, w := range words {
		words[i] = titler.String(w)
	}
	return strings.Join(words, " ")
}

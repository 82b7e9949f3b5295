// Package naming derives operation identity from an endpoint's declared kind
// name and HTTP method.
package naming

import (
	"net/http"
	"sort"
	"strings"

	"github.com/mark3labs/oasgen/internal/casing"
)

// Verb is a CRUD action token that may appear in a kind name.
type Verb string

const (
	List          Verb = "List"
	Retrieve      Verb = "Retrieve"
	Create        Verb = "Create"
	Update        Verb = "Update"
	PartialUpdate Verb = "PartialUpdate"
	Destroy       Verb = "Destroy"
)

// Verbs lists every verb in priority order. When several verbs qualify for a
// method the earliest one wins.
var Verbs = []Verb{List, Retrieve, Create, Update, PartialUpdate, Destroy}

// suffixes are generic kind-name tokens that never belong to the resource.
var suffixes = []string{"View", "API"}

var candidates = map[string][]Verb{
	http.MethodGet:    {List, Retrieve},
	http.MethodPost:   {Create},
	http.MethodPut:    {Update},
	http.MethodPatch:  {PartialUpdate},
	http.MethodDelete: {Destroy},
}

var defaults = map[string]Verb{
	http.MethodPut:   Update,
	http.MethodPatch: PartialUpdate,
}

func priority(v Verb) int {
	for i, known := range Verbs {
		if known == v {
			return i
		}
	}
	return len(Verbs)
}

// VerbSet is an unordered set of verbs.
type VerbSet map[Verb]struct{}

func NewVerbSet(verbs ...Verb) VerbSet {
	s := make(VerbSet, len(verbs))
	for _, v := range verbs {
		s[v] = struct{}{}
	}
	return s
}

func (s VerbSet) Has(v Verb) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in priority order.
func (s VerbSet) Sorted() []Verb {
	out := make([]Verb, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return priority(out[i]) < priority(out[j]) })
	return out
}

// DeriveVerbs returns every verb whose token occurs in kind. Update implies
// PartialUpdate.
func DeriveVerbs(kind string) VerbSet {
	set := VerbSet{}
	for _, v := range Verbs {
		if strings.Contains(kind, string(v)) {
			set[v] = struct{}{}
		}
	}
	if set.Has(Update) {
		set[PartialUpdate] = struct{}{}
	}
	return set
}

// SelectVerb picks the verb serving method from the declared set. PUT and
// PATCH fall back to Update and PartialUpdate; other methods yield "" when
// nothing matches.
func SelectVerb(declared VerbSet, method string) Verb {
	method = strings.ToUpper(strings.TrimSpace(method))
	for _, v := range candidates[method] {
		if declared.Has(v) {
			return v
		}
	}
	return defaults[method]
}

// DeriveResourceName strips every declared verb token and then the generic
// suffix tokens from kind, repeating until nothing changes so the result
// contains none of them.
func DeriveResourceName(kind string, declared VerbSet) string {
	tokens := make([]string, 0, len(declared)+len(suffixes))
	for _, v := range declared.Sorted() {
		tokens = append(tokens, string(v))
	}
	// Longer tokens first so PartialUpdate is removed before Update.
	sort.SliceStable(tokens, func(i, j int) bool { return len(tokens[i]) > len(tokens[j]) })
	tokens = append(tokens, suffixes...)

	name := kind
	for {
		next := name
		for _, tok := range tokens {
			next = strings.ReplaceAll(next, tok, "")
		}
		if next == name {
			return name
		}
		name = next
	}
}

// ResourceName derives the resource from kind alone. Verbs are recomputed on
// every pass, which makes ResourceName(ResourceName(x)) == ResourceName(x).
func ResourceName(kind string) string {
	name := kind
	for {
		next := DeriveResourceName(name, DeriveVerbs(name))
		if next == name {
			return name
		}
		name = next
	}
}

// Descriptor is the derived identity of one endpoint and method pair.
type Descriptor struct {
	Method      string
	Path        string
	Kind        string
	Verb        Verb
	Resource    string
	OperationID string
	Summary     string
}

// Describe derives the descriptor for kind served under method and path.
func Describe(kind, method, path string) Descriptor {
	method = strings.ToUpper(strings.TrimSpace(method))
	verbs := DeriveVerbs(kind)
	verb := SelectVerb(verbs, method)
	resource := ResourceName(kind)
	id := string(verb) + resource
	return Descriptor{
		Method:      method,
		Path:        path,
		Kind:        kind,
		Verb:        verb,
		Resource:    resource,
		OperationID: id,
		Summary:     casing.Humanize(id),
	}
}

// Mutating reports whether the method carries a request body.
func (d Descriptor) Mutating() bool {
	switch d.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

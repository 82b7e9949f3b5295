package manifest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/oasgen/internal/driver"
	"github.com/mark3labs/oasgen/internal/schema"
)

func linked(t *testing.T, content string) *Linked {
	t.Helper()
	m, err := Parse([]byte(content))
	require.NoError(t, err)
	l, err := Link(m)
	require.NoError(t, err)
	return l
}

func TestLink_ResolvesForwardAndMutualRefs(t *testing.T) {
	t.Parallel()
	l := linked(t, widgetManifest)
	assert.Equal(t, []string{"Widget", "Pet", "Dog"}, l.Order)

	pet, ok := l.Serializers["Pet"].(*schema.Polymorphic)
	require.True(t, ok)
	assert.Equal(t, "kind", pet.DiscriminatorField())
	require.Len(t, pet.Variants, 2)
	assert.Same(t, l.Serializers["Dog"], pet.Variants[0].Serializer)
	assert.Nil(t, pet.Variants[1].Serializer)

	dog := l.Serializers["Dog"].(*schema.Object)
	assert.Same(t, pet, dog.Fields[1].Ref)

	out, err := pet.Encode(map[string]any{"kind": "dog", "name": "Rex"})
	require.NoError(t, err)
	assert.Equal(t, "dog", out["kind"])

	widget := l.Serializers["Widget"].(*schema.Object)
	assert.Equal(t, schema.TypeInteger, widget.Fields[2].Type)
	assert.Len(t, l.Examples()["Widget"], 1)
}

func TestLink_Errors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		content string
		pointer string
	}{
		{"unknown variant", "serializers:\n  P:\n    discriminator: {variants: {a: Nope}}\n", "#/serializers/P/discriminator/variants/a"},
		{"unknown ref", "serializers:\n  A:\n    fields:\n      b: {ref: Nope}\n", "#/serializers/A/fields/b"},
		{"bad type", "serializers:\n  A:\n    fields:\n      b: date\n", "#/serializers/A/fields/b"},
		{"many without ref", "serializers:\n  A:\n    fields:\n      b: {type: string, many: true}\n", "#/serializers/A/fields/b"},
		{"fields and union", "serializers:\n  A:\n    fields: {a: string}\n    discriminator: {variants: {}}\n", "#/serializers/A"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := Parse([]byte(tc.content))
			require.NoError(t, err)
			_, err = Link(m)
			var me *ManifestError
			require.True(t, errors.As(err, &me), "got %v", err)
			assert.Equal(t, ValidationError, me.Code)
			assert.Equal(t, tc.pointer, me.JSONPointer)
		})
	}
}

func TestEndpoints(t *testing.T) {
	t.Parallel()
	l := linked(t, widgetManifest)
	eps, err := l.Endpoints()
	require.NoError(t, err)
	require.Len(t, eps, 2)
	assert.Equal(t, []string{"GET", "POST"}, eps[0].Methods)
	assert.Same(t, l.Serializers["Widget"], eps[0].Request)
	assert.Nil(t, eps[0].CreateResponse)
	assert.Equal(t, []string{"bearerAuth"}, eps[0].Security)
	assert.Same(t, l.Serializers["Pet"], eps[1].Response)
}

func TestEndpoints_Filters(t *testing.T) {
	t.Parallel()
	l := linked(t, widgetManifest)

	eps, err := l.Endpoints(WithIncludeTags([]string{"pets"}))
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, "/pets/{id}", eps[0].Path)

	eps, err = l.Endpoints(WithExcludeTags([]string{"pets"}))
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, "/widgets", eps[0].Path, "untagged endpoints use their path tag")

	eps, err = l.Endpoints(WithMethods([]string{"post"}))
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, []string{"POST"}, eps[0].Methods)

	eps, err = l.Endpoints(WithPathPatterns([]string{`^/pets/`}))
	require.NoError(t, err)
	require.Len(t, eps, 1)

	_, err = l.Endpoints(WithPathPatterns([]string{`(`}))
	var me *ManifestError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, InputError, me.Code)
}

func TestEndpoints_UnknownSerializer(t *testing.T) {
	t.Parallel()
	l := linked(t, "endpoints:\n  - {kind: ListWidgetView, path: /widgets, methods: [GET], response: Widget}\n")
	_, err := l.Endpoints()
	var me *ManifestError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "#/endpoints/0/response", me.JSONPointer)
	assert.Contains(t, me.Error(), `unknown serializer "Widget"`)
}

func TestEndpoints_Invalid(t *testing.T) {
	t.Parallel()
	for name, content := range map[string]string{
		"#/endpoints/0/kind":    "endpoints:\n  - {path: /w, methods: [GET]}\n",
		"#/endpoints/0/path":    "endpoints:\n  - {kind: ListWView, path: w, methods: [GET]}\n",
		"#/endpoints/0/methods": "endpoints:\n  - {kind: ListWView, path: /w}\n",
	} {
		_, err := linked(t, content).Endpoints()
		var me *ManifestError
		require.ErrorAs(t, err, &me)
		assert.Equal(t, name, me.JSONPointer)
	}
}

func TestDriverOptions_BuildsDocument(t *testing.T) {
	t.Parallel()
	l := linked(t, widgetManifest+`securitySchemes:
  bearerAuth: {type: http, scheme: bearer, bearerFormat: JWT}
`)
	opts, err := l.DriverOptions(context.Background())
	require.NoError(t, err)
	eps, err := l.Endpoints()
	require.NoError(t, err)

	res, err := driver.Build(context.Background(), eps, opts...)
	require.NoError(t, err)
	doc := res.Document
	assert.Equal(t, "Widget API", doc.Info.Title)
	require.Len(t, doc.Servers, 1)
	assert.Equal(t, "https://api.example.com", doc.Servers[0].URL)
	assert.Equal(t, "JWT", doc.Components.SecuritySchemes["bearerAuth"].Value.BearerFormat)
	assert.Contains(t, doc.Components.Schemas, "PetCatTyped")
	require.NoError(t, doc.Validate(context.Background()))
}

func TestDriverOptions_InvalidScheme(t *testing.T) {
	t.Parallel()
	l := linked(t, "securitySchemes:\n  broken: {type: carrier-pigeon}\n")
	_, err := l.DriverOptions(context.Background())
	var me *ManifestError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "#/securitySchemes/broken", me.JSONPointer)
	require.Error(t, me.Cause)
}

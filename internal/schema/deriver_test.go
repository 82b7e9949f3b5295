package schema

import (
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/oasgen/internal/casing"
	"github.com/mark3labs/oasgen/internal/polymorphic"
	"github.com/mark3labs/oasgen/internal/registry"
)

func widget() *Object {
	return &Object{
		Title: "Widget",
		Fields: []Field{
			{Name: "uid", Type: TypeString, ReadOnly: true},
			{Name: "display_name", Type: TypeString, Required: true, Description: "Shown in lists"},
			{Name: "secret_token", Type: TypeString, WriteOnly: true},
			{Name: "size", Type: TypeInteger, Enum: []any{1, 2, 3}},
			{Name: "labels", Type: TypeArray, Items: TypeString},
		},
	}
}

func TestComponent_Object(t *testing.T) {
	t.Parallel()
	reg := registry.New()
	d := NewDeriver(reg, Options{Case: casing.LowerCamel})

	c, err := d.Component(widget(), Response, false)
	require.NoError(t, err)
	assert.Equal(t, "Widget", c.Name)
	s := c.Schema
	assert.ElementsMatch(t, []string{"uid", "displayName", "secretToken", "size", "labels"}, keys(s.Properties))
	assert.Equal(t, []string{"displayName"}, s.Required)
	assert.True(t, s.Properties["uid"].Value.ReadOnly)
	assert.True(t, s.Properties["secretToken"].Value.WriteOnly)
	assert.Equal(t, "Shown in lists", s.Properties["displayName"].Value.Description)
	assert.Equal(t, []any{1, 2, 3}, s.Properties["size"].Value.Enum)
	assert.True(t, s.Properties["labels"].Value.Items.Value.Type.Is(openapi3.TypeString))

	// Without splitting, one component serves both directions.
	again, err := d.Component(widget(), Request, false)
	require.NoError(t, err)
	assert.Equal(t, "Widget", again.Name)
	assert.Equal(t, 1, reg.Len())
}

func TestComponent_SplitRequest(t *testing.T) {
	t.Parallel()
	reg := registry.New()
	d := NewDeriver(reg, Options{SplitRequest: true, Case: casing.LowerCamel})
	w := widget()

	resp, err := d.Component(w, Response, true)
	require.NoError(t, err)
	assert.Equal(t, "Widget", resp.Name, "patched only applies to requests")
	assert.NotContains(t, resp.Schema.Properties, "secretToken")
	assert.Contains(t, resp.Schema.Properties, "uid")

	req, err := d.Component(w, Request, false)
	require.NoError(t, err)
	assert.Equal(t, "WidgetRequest", req.Name)
	assert.NotContains(t, req.Schema.Properties, "uid")
	assert.Contains(t, req.Schema.Properties, "secretToken")
	assert.Equal(t, []string{"displayName"}, req.Schema.Required)

	patched, err := d.Component(w, Request, true)
	require.NoError(t, err)
	assert.Equal(t, "PatchedWidgetRequest", patched.Name)
	assert.Empty(t, patched.Schema.Required)

	assert.Equal(t, 3, reg.Len())
}

func TestComponent_EmptyIsVirtual(t *testing.T) {
	t.Parallel()
	reg := registry.New()
	d := NewDeriver(reg, Options{SplitRequest: true})

	c, err := d.Component(&Object{Title: "Cat"}, Response, false)
	require.NoError(t, err)
	assert.True(t, c.Virtual())

	// Only read-only fields: nothing left in a split request.
	ro := &Object{Title: "Stamp", Fields: []Field{{Name: "at", Type: TypeString, ReadOnly: true}}}
	c, err = d.Component(ro, Request, false)
	require.NoError(t, err)
	assert.True(t, c.Virtual())
	assert.Equal(t, 0, reg.Len())

	ref, err := d.Ref(&Object{Title: "Nothing"}, Response, false)
	require.NoError(t, err)
	assert.Empty(t, ref.Ref)
	assert.True(t, ref.Value.Type.Is(openapi3.TypeObject))
}

func TestComponent_NestedRefs(t *testing.T) {
	t.Parallel()
	reg := registry.New()
	d := NewDeriver(reg, Options{})
	owner := &Object{Title: "User", Fields: []Field{{Name: "email", Type: TypeString, Required: true}}}
	team := &Object{Title: "Team", Fields: []Field{
		{Name: "lead", Ref: owner, Nullable: true, Description: "Team lead"},
		{Name: "members", Ref: owner, Many: true},
		{Name: "backup", Ref: owner},
	}}

	c, err := d.Component(team, Response, false)
	require.NoError(t, err)

	lead := c.Schema.Properties["lead"]
	assert.Empty(t, lead.Ref)
	require.Len(t, lead.Value.AllOf, 1)
	assert.Equal(t, "#/components/schemas/User", lead.Value.AllOf[0].Ref)
	assert.True(t, lead.Value.Nullable)
	assert.Equal(t, "Team lead", lead.Value.Description)

	members := c.Schema.Properties["members"].Value
	assert.True(t, members.Type.Is(openapi3.TypeArray))
	assert.Equal(t, "#/components/schemas/User", members.Items.Ref)

	assert.Equal(t, "#/components/schemas/User", c.Schema.Properties["backup"].Ref)
	_, ok := reg.Lookup("User")
	assert.True(t, ok)
}

func TestComponent_Recursive(t *testing.T) {
	t.Parallel()
	reg := registry.New()
	d := NewDeriver(reg, Options{})
	node := &Object{Title: "Node", Fields: []Field{{Name: "label", Type: TypeString}}}
	node.Fields = append(node.Fields, Field{Name: "children", Ref: node, Many: true})

	c, err := d.Component(node, Response, false)
	require.NoError(t, err)
	items := c.Schema.Properties["children"].Value.Items
	assert.Equal(t, "#/components/schemas/Node", items.Ref)
	assert.Same(t, c.Schema, items.Value)

	_, err = c.Schema.MarshalJSON()
	require.NoError(t, err)
}

type account struct {
	ID       string  `json:"id" oas:"readonly" doc:"Account identifier"`
	Owner    string  `json:"owner_name"`
	Nickname *string `json:"nickname"`
	Note     string  `json:"note,omitempty"`
	internal string
}

func TestComponent_Struct(t *testing.T) {
	t.Parallel()
	reg := registry.New()
	d := NewDeriver(reg, Options{SplitRequest: true, Case: casing.LowerCamel})
	s := &Struct{Title: "Account", Value: account{}}

	c, err := d.Component(s, Response, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"id", "ownerName", "nickname", "note"}, keys(c.Schema.Properties))
	assert.Equal(t, []string{"id", "ownerName"}, c.Schema.Required)
	assert.True(t, c.Schema.Properties["nickname"].Value.Nullable)
	assert.True(t, c.Schema.Properties["id"].Value.ReadOnly)
	assert.Equal(t, "Account identifier", c.Schema.Properties["id"].Value.Description)

	req, err := d.Component(s, Request, false)
	require.NoError(t, err)
	assert.Equal(t, "AccountRequest", req.Name)
	assert.NotContains(t, req.Schema.Properties, "id")
	assert.Equal(t, []string{"ownerName"}, req.Schema.Required)
}

func pets() (*Polymorphic, *Object) {
	dog := &Object{Title: "Dog", Fields: []Field{
		{Name: "name", Type: TypeString, Required: true},
		{Name: "breed", Type: TypeString},
	}}
	return &Polymorphic{
		Title: "Pet",
		Variants: []Variant{
			{Value: "cat", Serializer: &Object{Title: "Cat"}},
			{Value: "dog", Serializer: dog},
		},
		Discriminate: FieldDiscriminator("type"),
	}, dog
}

func TestComponent_Polymorphic(t *testing.T) {
	t.Parallel()
	reg := registry.New()
	d := NewDeriver(reg, Options{})
	pet, _ := pets()

	c, err := d.Component(pet, Response, false)
	require.NoError(t, err)
	assert.Equal(t, "Pet", c.Name)
	require.Len(t, c.Schema.OneOf, 2)
	assert.Equal(t, "#/components/schemas/PetCatTyped", c.Schema.OneOf[0].Ref)
	assert.Equal(t, "#/components/schemas/DogTyped", c.Schema.OneOf[1].Ref)
	assert.Equal(t, "type", c.Schema.Discriminator.PropertyName)

	cat, ok := reg.Lookup("PetCatTyped")
	require.True(t, ok)
	assert.Empty(t, cat.Schema.AllOf)
	dog, ok := reg.Lookup("DogTyped")
	require.True(t, ok)
	assert.Equal(t, "#/components/schemas/Dog", dog.Schema.AllOf[1].Ref)
}

func TestComponent_PolymorphicSplitPatched(t *testing.T) {
	t.Parallel()
	reg := registry.New()
	d := NewDeriver(reg, Options{SplitRequest: true})
	pet, _ := pets()

	c, err := d.Component(pet, Request, true)
	require.NoError(t, err)
	assert.Equal(t, "PatchedPetRequest", c.Name)
	assert.Equal(t, "#/components/schemas/PatchedPetCatTypedRequest", c.Schema.OneOf[0].Ref)
	assert.Equal(t, "#/components/schemas/PatchedDogTypedRequest", c.Schema.OneOf[1].Ref)

	dog, ok := reg.Lookup("PatchedDogRequest")
	require.True(t, ok)
	assert.Empty(t, dog.Schema.Required)
}

func TestComponent_PolymorphicEmpty(t *testing.T) {
	t.Parallel()
	d := NewDeriver(registry.New(), Options{})
	_, err := d.Component(&Polymorphic{Title: "Nothing"}, Response, false)
	var empty *polymorphic.EmptyUnionError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, "Nothing", empty.Union)
}

func TestComponent_PolymorphicRecursive(t *testing.T) {
	t.Parallel()
	reg := registry.New()
	d := NewDeriver(reg, Options{})
	pet, dog := pets()
	dog.Fields = append(dog.Fields, Field{Name: "best_friend", Ref: pet})

	c, err := d.Component(pet, Response, false)
	require.NoError(t, err)
	dogC, ok := reg.Lookup("Dog")
	require.True(t, ok)
	friend := dogC.Schema.Properties["best_friend"]
	assert.Equal(t, "#/components/schemas/Pet", friend.Ref)
	assert.Same(t, c.Schema, friend.Value)
}

func TestComponent_Errors(t *testing.T) {
	t.Parallel()
	d := NewDeriver(registry.New(), Options{})
	_, err := d.Component(&Object{Title: ""}, Response, false)
	require.Error(t, err)
	_, err = d.Component(&Object{Title: "Bad", Fields: []Field{{Name: "x", Type: "date"}}}, Response, false)
	require.ErrorContains(t, err, "unknown field type")
}

func TestComponent_PropertyCaseCollision(t *testing.T) {
	t.Parallel()
	reg := registry.New()
	d := NewDeriver(reg, Options{Case: casing.LowerCamel})
	_, err := d.Component(&Object{Title: "Person", Fields: []Field{
		{Name: "first_name", Type: TypeString},
		{Name: "firstName", Type: TypeInteger},
	}}, Response, false)
	var collision *casing.CollisionError
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, "firstName", collision.Mapped)
	_, ok := reg.Lookup("Person")
	assert.False(t, ok, "a component with a dropped field must not be registered")
}

func TestComponent_NameCollision(t *testing.T) {
	t.Parallel()
	d := NewDeriver(registry.New(), Options{})
	_, err := d.Component(&Object{Title: "Thing", Fields: []Field{{Name: "a"}}}, Response, false)
	require.NoError(t, err)
	_, err = d.Component(&Object{Title: "Thing", Fields: []Field{{Name: "b"}}}, Response, false)
	var dup *registry.DuplicateComponentNameError
	require.ErrorAs(t, err, &dup)
}

func TestPolymorphic_Runtime(t *testing.T) {
	t.Parallel()
	pet, dog := pets()

	s, err := pet.SerializerFor("dog")
	require.NoError(t, err)
	assert.Same(t, dog, s)

	_, err = pet.SerializerFor("fish")
	var unknown *UnknownDiscriminatorError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "fish", unknown.Value)
	assert.Equal(t, "type", unknown.Field)

	out, err := pet.Encode(map[string]any{"type": "dog", "name": "Rex"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "dog", "name": "Rex"}, out)

	_, err = pet.Encode(map[string]any{"type": "fish"})
	require.ErrorAs(t, err, &unknown)

	_, err = pet.Encode(map[string]any{"name": "Rex"})
	require.ErrorContains(t, err, "missing discriminator")

	type cat struct {
		Lives int `json:"lives"`
	}
	typed := &Polymorphic{Title: "Pet", Field: "kind", Variants: []Variant{{Value: "cat"}},
		Discriminate: func(any) (string, error) { return "cat", nil }}
	out, err = typed.Encode(cat{Lives: 9})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"kind": "cat", "lives": float64(9)}, out)
}

func keys(m openapi3.Schemas) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

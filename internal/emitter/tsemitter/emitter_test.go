package tsemitter

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/oasgen/internal/casing"
	"github.com/mark3labs/oasgen/internal/driver"
	"github.com/mark3labs/oasgen/internal/emitter"
	"github.com/mark3labs/oasgen/internal/schema"
)

func render(t *testing.T) string {
	t.Helper()
	dog := &schema.Object{Title: "Dog", Description: "A good dog", Fields: []schema.Field{
		{Name: "name", Type: schema.TypeString, Required: true},
		{Name: "tags", Type: schema.TypeArray, Items: schema.TypeString},
		{Name: "size", Type: schema.TypeString, Enum: []any{"s", "m"}, Nullable: true},
		{Name: "x-ray", Type: schema.TypeBoolean},
	}}
	pet := &schema.Polymorphic{Title: "Pet", Variants: []schema.Variant{
		{Value: "cat"},
		{Value: "dog", Serializer: dog},
	}}
	res, err := driver.Build(context.Background(), []driver.Endpoint{
		{Kind: "RetrievePetView", Path: "/pets/{id}", Methods: []string{http.MethodGet}, Response: pet},
	}, driver.WithPropertyCase(casing.Identity))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return string(Render(res.Document))
}

func TestRender_Declarations(t *testing.T) {
	t.Parallel()
	out := render(t)
	for _, want := range []string{
		"// Code generated by oasgen. DO NOT EDIT.",
		"/** A good dog */\nexport interface Dog {",
		"  name: string;",
		"  tags?: string[];",
		"  size?: \"s\" | \"m\" | null;",
		"  \"x-ray\"?: boolean;",
		"export type Pet = PetCatTyped | DogTyped;",
		"export type DogTyped = {\n  type: \"dog\";\n} & Dog;",
		"export interface PetCatTyped {\n  type: \"cat\";\n}",
		"export interface NotFound {\n  detail: string;\n}",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Index(out, "export type DogTyped") > strings.Index(out, "export type Pet ") {
		t.Fatalf("declarations are not sorted")
	}
}

func TestEmit_Writes(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	res, err := driver.Build(context.Background(), []driver.Endpoint{
		{Kind: "ListWidgetView", Path: "/widgets", Methods: []string{http.MethodGet},
			Response: &schema.Object{Title: "Widget", Fields: []schema.Field{{Name: "id", Type: schema.TypeInteger}}}},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	plan, err := Emit(context.Background(), res.Document, Options{emitter.Options{OutDir: dir}})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(plan.Planned) != 1 || plan.Planned[0].RelPath != FileName {
		t.Fatalf("unexpected plan: %+v", plan.Planned)
	}
	raw, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(raw), "export interface Widget {\n  id?: number;\n}") {
		t.Fatalf("unexpected output:\n%s", raw)
	}
}

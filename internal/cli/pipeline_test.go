package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
)

func captureStdout(fn func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	defer func() { os.Stdout = old }()
	fn()
	_ = w.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

func writeSampleManifest(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "api.yaml")
	if err := os.WriteFile(path, []byte(sampleManifestYAML), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func silenceLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logOutput = &buf
	t.Cleanup(func() { logOutput = os.Stderr })
	return &buf
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	var err error
	out := captureStdout(func() { err = root.Execute() })
	return out, err
}

func TestGeneratePipeline_DryRun(t *testing.T) {
	silenceLogs(t)
	dir := t.TempDir()
	manifestPath := writeSampleManifest(t, dir)
	outDir := filepath.Join(dir, "out")
	tsDir := filepath.Join(dir, "web")

	out, err := execute(t, "generate", "--manifest", manifestPath, "--out", outDir, "--ts-out", tsDir, "--dry-run")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "Planned writes to") || !strings.Contains(out, "- openapi.json") || !strings.Contains(out, "- types.ts") {
		t.Fatalf("expected dry-run plan output, got: %s", out)
	}
	// Dry-run should not create the directories
	for _, d := range []string{outDir, tsDir} {
		if _, err := os.Stat(d); err == nil {
			t.Fatalf("expected no writes on dry-run, found %s", d)
		}
	}
}

func TestGeneratePipeline_WritesValidatedDocument(t *testing.T) {
	logs := silenceLogs(t)
	dir := t.TempDir()
	manifestPath := writeSampleManifest(t, dir)
	outDir := filepath.Join(dir, "out")

	_, err := execute(t, "-v", "generate", "--manifest", manifestPath, "--out", outDir,
		"--ts-out", outDir, "--format", "yaml", "--split-request", "--validate")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(outDir, "openapi.yaml"))
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	doc, err := openapi3.NewLoader().LoadFromData(raw)
	if err != nil {
		t.Fatalf("load document: %v", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		t.Fatalf("validate document: %v", err)
	}
	for _, name := range []string{"Owner", "OwnerRequest", "PatchedOwnerRequest", "Pet", "Dog", "Cat"} {
		if _, ok := doc.Components.Schemas[name]; !ok {
			t.Fatalf("missing component %s", name)
		}
	}
	if doc.Paths.Value("/owners/{id}").Delete == nil {
		t.Fatalf("missing DELETE /owners/{id}")
	}
	ts, err := os.ReadFile(filepath.Join(outDir, "types.ts"))
	if err != nil {
		t.Fatalf("read types: %v", err)
	}
	if !strings.Contains(string(ts), "export interface Owner {") {
		t.Fatalf("unexpected types:\n%s", ts)
	}
	if !strings.Contains(logs.String(), `"message":"document built"`) || !strings.Contains(logs.String(), `"level":"debug"`) {
		t.Fatalf("expected json debug logs, got: %s", logs.String())
	}
}

func TestGeneratePipeline_ManifestErrorIsUsageError(t *testing.T) {
	silenceLogs(t)
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "api.yaml")
	content := strings.Replace(sampleManifestYAML, "response: Pet", "response: Parrot", 1)
	if err := os.WriteFile(manifestPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	_, err := execute(t, "generate", "--manifest", manifestPath, "--out", filepath.Join(dir, "out"))
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Pointer: #/endpoints/2/response") {
		t.Fatalf("expected pointer in message, got: %v", err)
	}
}

func TestGeneratePipeline_RefusesForeignFiles(t *testing.T) {
	silenceLogs(t)
	dir := t.TempDir()
	manifestPath := writeSampleManifest(t, dir)

	// The manifest itself occupies dir, so writing there needs --force.
	_, err := execute(t, "generate", "--manifest", manifestPath, "--out", dir)
	if err == nil {
		t.Fatalf("expected refusal to write into a directory with other files")
	}
	if _, err := execute(t, "generate", "--manifest", manifestPath, "--out", dir, "--force"); err != nil {
		t.Fatalf("forced execute: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "openapi.json")); err != nil {
		t.Fatalf("expected document: %v", err)
	}
}

func TestValidate_ReportsSummary(t *testing.T) {
	silenceLogs(t)
	dir := t.TempDir()
	manifestPath := writeSampleManifest(t, dir)

	out, err := execute(t, "validate", "--manifest", manifestPath)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "Pet Store 1.0.0:") || !strings.Contains(out, "1 examples checked") {
		t.Fatalf("unexpected report: %s", out)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 1 {
		t.Fatalf("validate must not write files")
	}
}

func TestValidate_BadExample(t *testing.T) {
	silenceLogs(t)
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "api.yaml")
	content := strings.Replace(sampleManifestYAML, "{uid: o1, name: Ada, email: ada@example.com}", "{uid: o1, email: ada@example.com}", 1)
	if err := os.WriteFile(manifestPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	_, err := execute(t, "validate", "--manifest", manifestPath)
	if err == nil || !strings.Contains(err.Error(), "Owner example 0") {
		t.Fatalf("expected example failure, got %v", err)
	}
}

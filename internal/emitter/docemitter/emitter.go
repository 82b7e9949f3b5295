// Package docemitter writes the generated OpenAPI document as JSON or YAML.
package docemitter

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/oasgen/internal/emitter"
)

// Format selects the document encoding.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// ParseFormat accepts json, yaml or yml in any case; empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	default:
		return "", fmt.Errorf("unknown format %q (want json or yaml)", s)
	}
}

// FileName is the file the document is written to for f.
func (f Format) FileName() string {
	if f == YAML {
		return "openapi.yaml"
	}
	return "openapi.json"
}

type Options struct {
	emitter.Options
	Format Format
}

// Render encodes doc. JSON is indented by two spaces; both encodings end
// with a newline.
func Render(doc *openapi3.T, f Format) ([]byte, error) {
	switch f {
	case YAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("docemitter: encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("docemitter: encode yaml: %w", err)
		}
		return buf.Bytes(), nil
	case JSON, "":
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("docemitter: encode json: %w", err)
		}
		return append(out, '\n'), nil
	default:
		return nil, fmt.Errorf("docemitter: unknown format %q", f)
	}
}

// Emit renders doc and writes it under OutDir.
func Emit(ctx context.Context, doc *openapi3.T, opts Options) (*emitter.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("docemitter: nil document")
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("docemitter: OutDir is required")
	}
	body, err := Render(doc, opts.Format)
	if err != nil {
		return nil, err
	}
	return emitter.Emit("docemitter", map[string][]byte{opts.Format.FileName(): body}, opts.Options)
}

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// InitConfig captures the options for the init command.
type InitConfig struct {
	OutputPath   string
	ManifestPath string
	Force        bool
	Verbose      bool
}

const (
	defaultConfigPath   = "oasgen.yaml"
	defaultManifestPath = "api.yaml"
)

var initRunner = runInit

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a sample oasgen configuration and endpoint manifest",
		Long: "Scaffold a commented oasgen configuration file that documents available options, " +
			"together with a small endpoint manifest it points at.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return err
			}
			manifestOut, err := cmd.Flags().GetString("manifest-out")
			if err != nil {
				return err
			}
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			cfg := &InitConfig{
				OutputPath:   out,
				ManifestPath: manifestOut,
				Force:        force,
				Verbose:      verbose,
			}
			return initRunner(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("out", defaultConfigPath, "Where to write the sample config file")
	cmd.Flags().String("manifest-out", "", "Where to write the sample manifest (default: api.yaml next to the config)")
	cmd.Flags().Bool("force", false, "Overwrite the target files if they already exist")

	return cmd
}

func runInit(ctx context.Context, cfg *InitConfig) error {
	_ = ctx

	out := strings.TrimSpace(cfg.OutputPath)
	if out == "" {
		out = defaultConfigPath
	}
	configPath, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("init: resolve output path: %w", err)
	}
	manifestOut := strings.TrimSpace(cfg.ManifestPath)
	if manifestOut == "" {
		manifestOut = filepath.Join(filepath.Dir(configPath), defaultManifestPath)
	}
	manifestPath, err := filepath.Abs(manifestOut)
	if err != nil {
		return fmt.Errorf("init: resolve manifest path: %w", err)
	}
	if manifestPath == configPath {
		return newUsageError("init: config and manifest must be different files")
	}

	// Check both targets before writing either one.
	for _, p := range []string{configPath, manifestPath} {
		if st, err := os.Stat(p); err == nil && !cfg.Force {
			if st.Mode().IsRegular() {
				return newUsageError(fmt.Sprintf("init: %q already exists (use --force to overwrite)", p))
			}
		}
	}

	config := fmt.Sprintf(strings.TrimSpace(sampleConfigYAML)+"\n", manifestPath)
	if err := writeAtomic(configPath, config); err != nil {
		return err
	}
	if err := writeAtomic(manifestPath, strings.TrimSpace(sampleManifestYAML)+"\n"); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Wrote sample config to %s\n", configPath)
	fmt.Fprintf(os.Stdout, "Wrote sample manifest to %s\n", manifestPath)
	return nil
}

func writeAtomic(absPath, content string) error {
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot create parent directory: %v", err))
	}

	// Atomic write via temp + rename
	tmp := absPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return usageErrorf("choose a different --out or check directory permissions.", "init: cannot write temp file: %w", err)
	}
	if err := os.Rename(tmp, absPath); err != nil {
		_ = os.Remove(tmp)
		return newUsageError(fmt.Sprintf("init: cannot place file at %s: %v", absPath, err))
	}
	return nil
}

// sampleConfigYAML is a commented example config documenting available
// options. The single verb receives the manifest path.
const sampleConfigYAML = `# oasgen configuration (YAML)
# All fields are optional except manifest. Command-line flags override config values.

# Path or URL to the endpoint manifest (http/https or local file).
manifest: %q

# Output directory for the generated document.
# out: ./api

# Document encoding (json|yaml). Defaults to json.
# format: json

# Also write TypeScript declarations for every component to this directory.
# tsOut: ./api

# Property name case (camel|snake|kebab|none). Defaults to camel.
# propertyCase: camel

# Emit <Name>Request and Patched<Name>Request components for request bodies.
# splitRequest: false

# Key carrying non-field validation errors in 400 response bodies.
# nonFieldErrorsKey: non_field_errors

# Only include operations with these tags (comma-separated or list).
# includeTags: [pets]

# Exclude operations with these tags (comma-separated or list).
# excludeTags: [internal]

# Only include these HTTP methods.
# methods: [GET, POST]

# Only include paths matching these regular expressions.
# paths: ['^/pets']

# Verify the document and the manifest's examples before writing.
# validate: false

# Preview planned outputs without writing files.
# dryRun: false

# Write into an output directory that holds other files.
# force: false

# Enable verbose logging.
# verbose: false
`

// sampleManifestYAML declares a small pet store with a discriminated union.
const sampleManifestYAML = `title: Pet Store
version: 1.0.0
description: Sample API scaffolded by oasgen init.
servers:
  - url: https://api.example.com
    description: production
securitySchemes:
  bearerAuth:
    type: http
    scheme: bearer
    bearerFormat: JWT
    description: User access token
serializers:
  Owner:
    description: A person who owns pets.
    fields:
      uid: {type: string, readOnly: true}
      name: {type: string, required: true}
      email: {type: string, format: email}
    examples:
      - {uid: o1, name: Ada, email: ada@example.com}
  Pet:
    discriminator:
      field: type
      variants:
        dog: Dog
        cat: Cat
        fish: ~
  Dog:
    fields:
      name: {type: string, required: true}
      good: boolean
  Cat:
    fields:
      name: {type: string, required: true}
      lives: integer
endpoints:
  - kind: ListCreateOwnerView
    path: /owners
    methods: [GET, POST]
    request: Owner
    response: Owner
    security: [bearerAuth]
    tags: [owners]
  - kind: RetrieveUpdateDestroyOwnerView
    path: /owners/{id}
    methods: [GET, PUT, PATCH, DELETE]
    request: Owner
    response: Owner
    security: [bearerAuth]
    tags: [owners]
  - kind: ListPetView
    path: /pets
    methods: [GET]
    response: Pet
    tags: [pets]
`

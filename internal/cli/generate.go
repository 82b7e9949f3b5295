package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/oasgen/internal/casing"
	"github.com/mark3labs/oasgen/internal/driver"
	"github.com/mark3labs/oasgen/internal/emitter"
	"github.com/mark3labs/oasgen/internal/emitter/docemitter"
	"github.com/mark3labs/oasgen/internal/emitter/tsemitter"
	"github.com/mark3labs/oasgen/internal/manifest"
	"github.com/mark3labs/oasgen/internal/schema"
	"github.com/mark3labs/oasgen/internal/verify"
)

// GenerateConfig captures all inputs that influence the generate command after
// merging defaults, config file values, and CLI overrides.
type GenerateConfig struct {
	Manifest          string
	Out               string
	Format            string
	TSOut             string
	PropertyCase      string
	SplitRequest      bool
	NonFieldErrorsKey string
	IncludeTags       []string
	ExcludeTags       []string
	Methods           []string
	Paths             []string
	ConfigPath        string
	DryRun            bool
	Force             bool
	Verbose           bool
	Validate          bool
}

const defaultOutDir = "api"

func defaultGenerateConfig() GenerateConfig {
	return GenerateConfig{Out: defaultOutDir, Format: string(docemitter.JSON)}
}

var generateRunner = runGenerate

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an OpenAPI document from an endpoint manifest",
		Long: "Generate an OpenAPI 3 document (and optionally TypeScript declarations) from an endpoint manifest. " +
			"Options can be provided via flags, config files, or defaults.",
		Example: strings.TrimSpace(`  oasgen generate --manifest api.yaml --out ./api --format yaml
  oasgen --config oasgen.yaml generate --force --dry-run`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveGenerateConfig(cmd)
			if err != nil {
				return err
			}
			return generateRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	addBuildFlags(flags)
	flags.String("out", "", "Output directory for the document (default \"api\")")
	flags.String("format", "", "Document encoding (json|yaml); defaults to json")
	flags.String("ts-out", "", "Also write TypeScript declarations to this directory")
	flags.Bool("validate", false, "Verify the document and manifest examples before writing")
	flags.Bool("dry-run", false, "Preview planned outputs without writing files")
	flags.Bool("force", false, "Write into a directory that holds other files")

	return cmd
}

// addBuildFlags registers the flags shared by every command that builds a
// document from a manifest.
func addBuildFlags(flags *pflag.FlagSet) {
	flags.String("manifest", "", "Path or URL to the endpoint manifest")
	flags.String("property-case", "", "Property name case (camel|snake|kebab|none); defaults to camel")
	flags.Bool("split-request", false, "Emit separate <Name>Request components for request bodies")
	flags.String("non-field-errors-key", "", "Key carrying non-field validation errors in 400 bodies")
	flags.StringSlice("include-tags", nil, "Only include operations with these tags")
	flags.StringSlice("exclude-tags", nil, "Exclude operations with these tags")
	flags.StringSlice("methods", nil, "Only include these HTTP methods")
	flags.StringSlice("paths", nil, "Only include paths matching these regular expressions")
}

func resolveGenerateConfig(cmd *cobra.Command) (*GenerateConfig, error) {
	cfg := defaultGenerateConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyGenerateConfigFromFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyGenerateFlagOverrides(cmd.Flags(), &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyGenerateFlagOverrides(flags *pflag.FlagSet, cfg *GenerateConfig) error {
	strs := map[string]*string{
		"manifest":             &cfg.Manifest,
		"out":                  &cfg.Out,
		"format":               &cfg.Format,
		"ts-out":               &cfg.TSOut,
		"property-case":        &cfg.PropertyCase,
		"non-field-errors-key": &cfg.NonFieldErrorsKey,
	}
	for name, dst := range strs {
		if !flags.Changed(name) {
			continue
		}
		value, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(value)
	}

	lists := map[string]*[]string{
		"include-tags": &cfg.IncludeTags,
		"exclude-tags": &cfg.ExcludeTags,
		"methods":      &cfg.Methods,
		"paths":        &cfg.Paths,
	}
	for name, dst := range lists {
		if !flags.Changed(name) {
			continue
		}
		value, err := flags.GetStringSlice(name)
		if err != nil {
			return err
		}
		*dst = sanitizeTags(value)
	}

	bools := map[string]*bool{
		"split-request": &cfg.SplitRequest,
		"validate":      &cfg.Validate,
		"dry-run":       &cfg.DryRun,
		"force":         &cfg.Force,
		"verbose":       &cfg.Verbose,
	}
	for name, dst := range bools {
		if !flags.Changed(name) {
			continue
		}
		value, err := flags.GetBool(name)
		if err != nil {
			return err
		}
		*dst = value
	}

	return nil
}

func (c *GenerateConfig) normalize() {
	c.Manifest = strings.TrimSpace(c.Manifest)
	c.Out = strings.TrimSpace(c.Out)
	if c.Out == "" {
		c.Out = defaultOutDir
	}
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	c.TSOut = strings.TrimSpace(c.TSOut)
	c.PropertyCase = strings.TrimSpace(c.PropertyCase)
	c.NonFieldErrorsKey = strings.TrimSpace(c.NonFieldErrorsKey)
	c.IncludeTags = sanitizeTags(c.IncludeTags)
	c.ExcludeTags = sanitizeTags(c.ExcludeTags)
	c.Paths = sanitizeTags(c.Paths)
	methods := make([]string, 0, len(c.Methods))
	for _, m := range c.Methods {
		methods = append(methods, strings.ToUpper(m))
	}
	c.Methods = sanitizeTags(methods)
}

func (c *GenerateConfig) validate() error {
	if c.Manifest == "" {
		return newUsageError("generate: --manifest is required (set via flag or config file)")
	}

	if _, err := docemitter.ParseFormat(c.Format); err != nil {
		return newUsageError(fmt.Sprintf("generate: unsupported --format %q (allowed: json, yaml)", c.Format))
	}
	if _, err := casing.Lookup(c.PropertyCase); err != nil {
		return newUsageError(fmt.Sprintf("generate: %v", err))
	}
	for _, m := range c.Methods {
		if !slices.Contains(manifest.Methods, m) {
			return newUsageError(fmt.Sprintf("generate: unsupported method %q (allowed: %s)", m, strings.Join(manifest.Methods, ", ")))
		}
	}

	overlap := intersect(c.IncludeTags, c.ExcludeTags)
	if len(overlap) > 0 {
		return newUsageError(fmt.Sprintf("generate: include/exclude tags overlap: %s", strings.Join(overlap, ", ")))
	}

	return nil
}

// built is the outcome of loading a manifest and running the driver over it.
type built struct {
	linked *manifest.Linked
	result *driver.Result
}

// serializers returns the manifest's serializers in declaration order.
func (b *built) serializers() []schema.Serializer {
	out := make([]schema.Serializer, 0, len(b.linked.Order))
	for _, name := range b.linked.Order {
		out = append(out, b.linked.Serializers[name])
	}
	return out
}

func buildDocument(ctx context.Context, cfg *GenerateConfig, logger zerolog.Logger) (*built, error) {
	// 1) Load the manifest (file or http/https URL) and resolve serializer names
	m, err := manifest.Load(ctx, cfg.Manifest, manifest.WithLogger(logger))
	if err != nil {
		return nil, manifestUsageError(err)
	}
	linked, err := manifest.Link(m)
	if err != nil {
		return nil, manifestUsageError(err)
	}

	// 2) Select endpoints with the configured filters
	endpoints, err := linked.Endpoints(
		manifest.WithIncludeTags(cfg.IncludeTags),
		manifest.WithExcludeTags(cfg.ExcludeTags),
		manifest.WithMethods(cfg.Methods),
		manifest.WithPathPatterns(cfg.Paths),
	)
	if err != nil {
		return nil, manifestUsageError(err)
	}
	logger.Debug().Int("endpoints", len(endpoints)).Str("manifest", m.Source).Msg("manifest linked")

	// 3) Run the driver
	opts, err := linked.DriverOptions(ctx)
	if err != nil {
		return nil, manifestUsageError(err)
	}
	mapper, err := casing.Lookup(cfg.PropertyCase)
	if err != nil {
		return nil, newUsageError(err.Error())
	}
	opts = append(opts,
		driver.WithPropertyCase(mapper),
		driver.WithSplitRequest(cfg.SplitRequest),
		driver.WithLogger(logger),
	)
	if cfg.NonFieldErrorsKey != "" {
		opts = append(opts, driver.WithNonFieldErrorsKey(cfg.NonFieldErrorsKey))
	}
	res, err := driver.Build(ctx, endpoints, opts...)
	if err != nil {
		return nil, fmt.Errorf("build document: %w", err)
	}
	return &built{linked: linked, result: res}, nil
}

// verifyBuilt checks the document structure and the manifest's examples.
func verifyBuilt(ctx context.Context, b *built) (*verify.Report, error) {
	if err := verify.Document(ctx, b.result.Document); err != nil {
		return nil, fmt.Errorf("verify document: %w", err)
	}
	report, err := verify.Examples(b.result.Document, b.serializers())
	if err != nil {
		return report, fmt.Errorf("verify examples: %w", err)
	}
	return report, nil
}

func runGenerate(ctx context.Context, cfg *GenerateConfig) error {
	logger := newLogger(cfg.Verbose)

	b, err := buildDocument(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if cfg.Validate {
		report, err := verifyBuilt(ctx, b)
		if err != nil {
			return err
		}
		logger.Info().Int("examples", report.Checked).Strs("skipped", report.Skipped).Msg("document verified")
	}

	format, err := docemitter.ParseFormat(cfg.Format)
	if err != nil {
		return newUsageError(err.Error())
	}
	outputs := emitter.Options{OutDir: cfg.Out, Force: cfg.Force, DryRun: cfg.DryRun, Verbose: cfg.Verbose}

	res, err := docemitter.Emit(ctx, b.result.Document, docemitter.Options{Options: outputs, Format: format})
	if err != nil {
		return wrapOutputError(err, absPath(cfg.Out))
	}
	if cfg.DryRun {
		printPlan(absPath(cfg.Out), res.Planned)
	}

	if cfg.TSOut != "" {
		outputs.OutDir = cfg.TSOut
		if absPath(cfg.TSOut) == absPath(cfg.Out) {
			outputs.Siblings = []string{format.FileName()}
		}
		res, err := tsemitter.Emit(ctx, b.result.Document, tsemitter.Options{Options: outputs})
		if err != nil {
			return wrapOutputError(err, absPath(cfg.TSOut))
		}
		if cfg.DryRun {
			printPlan(absPath(cfg.TSOut), res.Planned)
		}
	}

	if !cfg.DryRun {
		logger.Info().
			Str("out", absPath(cfg.Out)).
			Int("operations", len(b.result.Operations)).
			Msg("document written")
	}
	return nil
}

func absPath(dir string) string {
	if ap, err := filepath.Abs(dir); err == nil {
		return ap
	}
	return dir
}

func printPlan(outDir string, planned []emitter.PlannedFile) {
	fmt.Fprintf(os.Stdout, "Planned writes to %s (%d files):\n", outDir, len(planned))
	for _, p := range planned {
		fmt.Fprintf(os.Stdout, "- %s\n", p.RelPath)
	}
}

func wrapOutputError(err error, outDir string) error {
	// Provide clearer guidance for common FS failures.
	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "permission") || strings.Contains(lower, "read-only") || strings.Contains(lower, "mkdir") || strings.Contains(lower, "rename") || strings.Contains(lower, "output directory") {
		return usageErrorf("choose a different --out or use --force when appropriate.", "output error for %s: %w", outDir, err)
	}
	return err
}

func sanitizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(a))
	for _, item := range a {
		set[item] = struct{}{}
	}
	var result []string
	for _, item := range b {
		if _, ok := set[item]; ok {
			result = append(result, item)
		}
	}
	return result
}

func applyGenerateConfigFromFile(cfg *GenerateConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return newUsageError(fmt.Sprintf("read config file %q: %v", path, err))
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return newUsageError(fmt.Sprintf("parse config file %q: %v", path, err))
	}

	strs := map[string]*string{
		"manifest":          &cfg.Manifest,
		"out":               &cfg.Out,
		"format":            &cfg.Format,
		"tsout":             &cfg.TSOut,
		"propertycase":      &cfg.PropertyCase,
		"nonfielderrorskey": &cfg.NonFieldErrorsKey,
	}
	lists := map[string]*[]string{
		"includetags": &cfg.IncludeTags,
		"excludetags": &cfg.ExcludeTags,
		"methods":     &cfg.Methods,
		"paths":       &cfg.Paths,
	}
	bools := map[string]*bool{
		"splitrequest": &cfg.SplitRequest,
		"validate":     &cfg.Validate,
		"dryrun":       &cfg.DryRun,
		"force":        &cfg.Force,
		"verbose":      &cfg.Verbose,
	}

	for key, value := range raw {
		normalized := normalizeKey(key)
		if dst, ok := strs[normalized]; ok {
			str, err := valueAsString(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			*dst = str
			continue
		}
		if dst, ok := lists[normalized]; ok {
			list, err := valueAsStringSlice(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			*dst = sanitizeTags(list)
			continue
		}
		if dst, ok := bools[normalized]; ok {
			val, err := valueAsBool(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			*dst = val
			continue
		}
		return newUsageError(fmt.Sprintf("config file %q: unknown field %q", path, key))
	}

	return nil
}

func normalizeKey(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	lowered = strings.ReplaceAll(lowered, "-", "")
	lowered = strings.ReplaceAll(lowered, "_", "")
	return lowered
}

func valueAsString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func valueAsStringSlice(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		return splitAndTrim(val), nil
	case []any:
		items := make([]string, 0, len(val))
		for idx, elem := range val {
			str, err := valueAsString(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", idx, err)
			}
			if str != "" {
				items = append(items, str)
			}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected string or list, got %T", v)
	}
}

func valueAsBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		trimmed := strings.ToLower(strings.TrimSpace(val))
		switch trimmed {
		case "true", "t", "1", "yes", "y":
			return true, nil
		case "false", "f", "0", "no", "n":
			return false, nil
		case "":
			return false, nil
		default:
			return false, fmt.Errorf("invalid boolean value %q", val)
		}
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}

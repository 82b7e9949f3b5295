package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var validateRunner = runValidate

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Build the document in memory and verify it",
		Long: "Build the OpenAPI document from an endpoint manifest without writing it, " +
			"then check its structure and validate every declared example against its component.",
		Example: strings.TrimSpace(`  oasgen validate --manifest api.yaml
  oasgen --config oasgen.yaml validate`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveGenerateConfig(cmd)
			if err != nil {
				return err
			}
			return validateRunner(cmd.Context(), cfg)
		},
	}
	addBuildFlags(cmd.Flags())
	return cmd
}

func runValidate(ctx context.Context, cfg *GenerateConfig) error {
	logger := newLogger(cfg.Verbose)

	b, err := buildDocument(ctx, cfg, logger)
	if err != nil {
		return err
	}
	report, err := verifyBuilt(ctx, b)
	if err != nil {
		return err
	}

	doc := b.result.Document
	fmt.Fprintf(os.Stdout, "%s %s: %d operations, %d components, %d examples checked\n",
		doc.Info.Title, doc.Info.Version, len(b.result.Operations), len(doc.Components.Schemas), report.Checked)
	for _, name := range report.Skipped {
		fmt.Fprintf(os.Stdout, "- skipped examples of %s (not referenced by any endpoint)\n", name)
	}
	return nil
}

package cli

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// SchemaOptions holds flags for the schema commands.
type SchemaOptions struct {
	*RootOptions
	SchemaDir string
}

// NewSchemaCommand creates the schema command and its export subcommand.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SchemaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect the types of a schema",
	}
	cmd.PersistentFlags().StringVar(&opts.SchemaDir, "schema", "", "CUE schema package directory")

	export := &cobra.Command{
		Use:   "export",
		Short: "Print the named types as a JSON schema document",
		Long: `Compile the schema and print every named, non-builtin type as a JSON
document. Anonymous member types are written inline.

Example:
  cpcflow schema export --schema ./schema`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaExport(opts, cmd.OutOrStdout())
		},
	}
	cmd.AddCommand(export)

	return cmd
}

func runSchemaExport(opts *SchemaOptions, w io.Writer) error {
	formatter := newFormatter(opts.RootOptions, w)

	wf, err := LoadWorkflow(opts.SchemaDir)
	if err != nil {
		return failLoad(formatter, err)
	}
	doc, err := wf.Registry.ExportJSON()
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, err.Error(), nil)
	}
	return formatter.Success(json.RawMessage(doc), strings.TrimSuffix(string(doc), "\n"))
}

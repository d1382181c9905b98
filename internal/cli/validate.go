package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/cpcflow/internal/compiler"
	"github.com/roach88/cpcflow/internal/network"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	SchemaDir string
}

// ValidationIssue is one problem found in a schema or a network file.
type ValidationIssue struct {
	Source  string `json:"source"` // "schema" | "network"
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationIssue `json:"errors,omitempty"`
	Cycles []network.Cycle   `json:"cycles,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [network-file]",
		Short: "Validate a schema and a network definition without running",
		Long: `Validate a CUE schema package and a network definition file.

All problems are reported at once: schema structure, type references,
unknown functions, malformed endpoints, literals that do not parse as the
destination's type, and dependency cycles between instances.

Examples:
  cpcflow validate --schema ./schema ./network.yaml
  cpcflow validate --schema ./schema
  cpcflow validate ./network.hcl --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var networkFile string
			if len(args) == 1 {
				networkFile = args[0]
			}
			return runValidate(opts, networkFile, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.SchemaDir, "schema", "", "CUE schema package directory")

	return cmd
}

func runValidate(opts *ValidateOptions, networkFile string, w io.Writer) error {
	formatter := newFormatter(opts.RootOptions, w)
	if opts.SchemaDir == "" && networkFile == "" {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "nothing to validate: give a network file or --schema", nil)
	}

	var result ValidationResult

	if opts.SchemaDir != "" {
		issues, err := validateSchema(opts.SchemaDir)
		if err != nil {
			return failLoad(formatter, err)
		}
		result.Errors = append(result.Errors, issues...)
	}

	if networkFile != "" && len(result.Errors) == 0 {
		wf, err := LoadWorkflow(opts.SchemaDir)
		if err != nil {
			return failLoad(formatter, err)
		}
		def, err := network.LoadFile(networkFile)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error(), nil)
		}

		result.Cycles = network.Cycles(def)
		cycleMsgs := make(map[string]bool, len(result.Cycles))
		for _, c := range result.Cycles {
			cycleMsgs[c.Message] = true
		}
		for _, err := range def.Validate(wf.Library) {
			code := ErrCodeInvalidNetwork
			if cycleMsgs[err.Error()] {
				code = ErrCodeCycle
			}
			result.Errors = append(result.Errors, ValidationIssue{Source: "network", Message: err.Error(), Code: code})
		}
	}

	if len(result.Errors) > 0 {
		return outputValidationErrors(formatter, result)
	}
	result.Valid = true
	return formatter.Success(result, "✓ Valid")
}

// validateSchema runs the structural checks over the whole package and,
// when they pass, compiles it to resolve type references. An error is
// returned only when the package cannot be loaded at all.
func validateSchema(dir string) ([]ValidationIssue, error) {
	if err := checkSchemaDir(dir); err != nil {
		return nil, err
	}
	v, err := compiler.BuildDir(dir)
	if err != nil {
		return nil, convertCompileError(err)
	}

	var issues []ValidationIssue
	for _, ve := range compiler.Validate(v) {
		issues = append(issues, ValidationIssue{
			Source:  "schema",
			Field:   ve.Field,
			Message: ve.Message,
			Code:    ve.Code,
			Line:    ve.Line,
		})
	}
	if len(issues) > 0 {
		return issues, nil
	}

	if _, err := LoadWorkflow(dir); err != nil {
		var le *LoadError
		if !errors.As(err, &le) {
			return nil, err
		}
		issue := ValidationIssue{Source: "schema", Message: le.Message, Code: le.Code}
		if le.Pos.IsValid() {
			issue.Line = le.Pos.Line()
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

func failLoad(formatter *OutputFormatter, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		return formatter.Fail(ExitCommandError, le.Code, le.Message, nil)
	}
	return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))

	if formatter.JSON() {
		first := result.Errors[0]
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: first.Code, Message: first.Message},
		}); err != nil {
			return err
		}
		return exitErr
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, issue := range result.Errors {
		if issue.Line > 0 {
			fmt.Fprintf(w, "%s line %d\n", issue.Source, issue.Line)
		} else {
			fmt.Fprintln(w, issue.Source)
		}
		if issue.Field != "" {
			fmt.Fprintf(w, "  %s: %s: %s\n\n", issue.Code, issue.Field, issue.Message)
		} else {
			fmt.Fprintf(w, "  %s: %s\n\n", issue.Code, issue.Message)
		}
	}
	return exitErr
}

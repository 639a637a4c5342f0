package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/litequery/internal/model"
	"github.com/roach88/litequery/internal/schema"
)

// ModelSummary describes one loaded model.
type ModelSummary struct {
	Identity   string `json:"identity"`
	Table      string `json:"table"`
	PrimaryKey string `json:"primaryKey"`
	Attributes int    `json:"attributes"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool           `json:"valid"`
	Models []ModelSummary `json:"models,omitempty"`
	Line   int            `json:"line,omitempty"`
	File   string         `json:"file,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [models-path]",
		Short: "Validate model definitions without touching a database",
		Long: `Load CUE or YAML model definitions and report the models they declare.

The path defaults to the configured models path.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Config.Models
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	reg, err := schema.Load(path, schema.WithCaseInsensitive(opts.Config.CaseInsensitive))
	if err != nil {
		return outputValidateError(formatter, err)
	}

	summaries := summarize(reg)
	for _, s := range summaries {
		formatter.VerboseLog("model %s: table %s, %d attribute(s)", s.Identity, s.Table, s.Attributes)
	}
	return outputValidateSuccess(formatter, summaries)
}

func summarize(reg *model.Registry) []ModelSummary {
	models := reg.Models()
	out := make([]ModelSummary, 0, len(models))
	for _, m := range models {
		out = append(out, ModelSummary{
			Identity:   m.Identity,
			Table:      m.TableName,
			PrimaryKey: m.PrimaryKey,
			Attributes: len(m.Attributes()),
		})
	}
	return out
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, models []ModelSummary) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Models: models})
	}

	for _, m := range models {
		fmt.Fprintf(formatter.Writer, "  %s %s\n", m.Identity, dim(fmt.Sprintf("(table %s, %d attributes)", m.Table, m.Attributes)))
	}
	fmt.Fprintf(formatter.Writer, "%s %d model(s) valid\n", okMark("✓"), len(models))
	return nil
}

// outputValidateError reports a load failure. A missing or empty path is a
// command error (exit code 2); a rejected definition is a validation
// failure (exit code 1).
func outputValidateError(formatter *OutputFormatter, err error) error {
	code := ErrorCode(err)
	exit := ExitFailure
	result := ValidationResult{Valid: false}

	var loadErr *schema.Error
	if errors.As(err, &loadErr) {
		switch loadErr.Code {
		case schema.ErrCodeNotFound, schema.ErrCodeNoFiles, schema.ErrCodeScanError:
			exit = ExitCommandError
		}
		if loadErr.Pos.IsValid() {
			result.Line = loadErr.Pos.Line()
			result.File = loadErr.Pos.Filename()
		}
	}

	if formatter.Format == "json" {
		if outErr := formatter.JSON(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: code, Message: err.Error()},
		}); outErr != nil {
			return outErr
		}
		return WrapExitError(exit, "validation failed", err)
	}

	// Text format
	fmt.Fprintf(formatter.Writer, "%s Validation failed\n", failMark("✗"))
	if result.Line > 0 {
		fmt.Fprintf(formatter.Writer, "%s line %d\n", result.File, result.Line)
	}
	fmt.Fprintf(formatter.Writer, "  %v\n", err)
	return WrapExitError(exit, "validation failed", err)
}

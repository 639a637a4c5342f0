package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/litequery/internal/model"
)

// DropOptions holds flags for the drop command.
type DropOptions struct {
	*RootOptions
	All bool
}

// TableResult describes one table touched by define or drop.
type TableResult struct {
	Model string `json:"model"`
	Table string `json:"table"`
}

// NewDefineCommand creates the define command.
func NewDefineCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "define [model...]",
		Short: "Create tables for the loaded models",
		Long: `Create the table of each named model, or of every loaded model.

Tables that already exist are left unchanged.

Example:
  litequery define --models ./models --db ./app.db
  litequery define user pet`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDefine(rootOpts, args, cmd)
		},
	}
}

// NewDropCommand creates the drop command.
func NewDropCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DropOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "drop [model...]",
		Short: "Drop the tables of loaded models",
		Long: `Drop the table of each named model. Dropping a missing table is not
an error.

Example:
  litequery drop pet
  litequery drop --all`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !opts.All {
				return NewExitError(ExitCommandError, "name at least one model or pass --all")
			}
			return runDrop(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "drop every loaded model's table")

	return cmd
}

func runDefine(opts *RootOptions, names []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	s, err := openSession(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer s.Close()

	models, err := s.models(names)
	if err != nil {
		return err
	}
	done := make([]TableResult, 0, len(models))
	for _, m := range models {
		if err := s.adapter.DefineModel(cmd.Context(), s.conn, m.Identity); err != nil {
			return f.Fail(ExitFailure, fmt.Sprintf("define %s failed", m.Identity), err)
		}
		f.VerboseLog("defined %s", m.Identity)
		done = append(done, tableResult(m))
	}
	return outputTables(f, "defined", done)
}

func runDrop(opts *DropOptions, names []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	s, err := openSession(cmd.Context(), opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	models, err := s.models(names)
	if err != nil {
		return err
	}
	done := make([]TableResult, 0, len(models))
	for _, m := range models {
		if err := s.adapter.Drop(cmd.Context(), s.conn, m.TableName); err != nil {
			return f.Fail(ExitFailure, fmt.Sprintf("drop %s failed", m.Identity), err)
		}
		f.VerboseLog("dropped %s", m.TableName)
		done = append(done, tableResult(m))
	}
	return outputTables(f, "dropped", done)
}

func tableResult(m *model.Model) TableResult {
	return TableResult{Model: m.Identity, Table: m.TableName}
}

func outputTables(f *OutputFormatter, verb string, tables []TableResult) error {
	if f.Format == "json" {
		return f.Success(map[string]any{verb: tables})
	}
	for _, t := range tables {
		fmt.Fprintf(f.Writer, "%s %s %s %s\n", okMark("✓"), verb, t.Model, dim("("+t.Table+")"))
	}
	return nil
}

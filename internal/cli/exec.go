package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/litequery/internal/adapter"
	"github.com/roach88/litequery/internal/dberr"
	"github.com/roach88/litequery/internal/record"
	"github.com/roach88/litequery/internal/stage3"
	"github.com/roach88/litequery/internal/wherelang"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	Where  string
	Define bool
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <query-file>",
		Short: "Execute a stage-three query document",
		Long: `Execute a stage-three query read from a YAML or JSON file ("-" reads
stdin) and print the result.

Records print one canonical JSON object per line; count, sum and avg
print the scalar.

Example:
  litequery exec ./queries/adults.yaml
  litequery exec --where 'age >= 21' ./queries/find-users.yaml
  echo '{method: count, using: user}' | litequery exec -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Where, "where", "", "where expression replacing the query's criteria.where")
	cmd.Flags().BoolVar(&opts.Define, "define", false, "create missing tables before executing")

	return cmd
}

func runExec(opts *ExecOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	data, err := readQuery(path, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read query", err)
	}
	q, err := stage3.DecodeYAML(data)
	if err != nil {
		return f.Fail(ExitCommandError, "invalid query", err)
	}
	if opts.Where != "" {
		if q, err = applyWhere(q, opts.Where); err != nil {
			return f.Fail(ExitCommandError, "invalid --where", err)
		}
	}

	s, err := openSession(cmd.Context(), opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	if opts.Define {
		for _, m := range s.adapter.Registry().Models() {
			if err := s.adapter.DefineModel(cmd.Context(), s.conn, m.Identity); err != nil {
				return f.Fail(ExitFailure, fmt.Sprintf("define %s failed", m.Identity), err)
			}
		}
	}

	f.VerboseLog("executing %s on %s", q.Method(), q.Model())
	res, err := s.adapter.Execute(cmd.Context(), s.conn, q)
	if err != nil {
		return f.Fail(ExitFailure, fmt.Sprintf("%s failed", q.Method()), err)
	}
	return outputResult(f, res)
}

func readQuery(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// applyWhere parses expr and sets it as q's where clause.
func applyWhere(q stage3.Query, expr string) (stage3.Query, error) {
	where, err := wherelang.Parse(expr)
	if err != nil {
		return nil, err
	}
	out, ok := stage3.WithWhere(q, where)
	if !ok {
		return nil, dberr.Malformed(dberr.CodeMalformedQuery, "%s does not take a where clause", q.Method())
	}
	return out, nil
}

// outputResult prints whichever part of res the operation produced.
func outputResult(f *OutputFormatter, res adapter.Result) error {
	if f.Format == "json" {
		data := map[string]any{}
		switch {
		case res.Record != nil:
			data["record"] = res.Record
		case res.Records != nil:
			data["records"] = res.Records
		case res.Scalar != nil:
			data["scalar"] = res.Scalar
		}
		return f.Success(data)
	}

	switch {
	case res.Record != nil:
		return f.Records([]record.Record{res.Record})
	case res.Records != nil:
		if err := f.Records(res.Records); err != nil {
			return err
		}
		fmt.Fprintln(f.GetErrWriter(), dim(fmt.Sprintf("%d record(s)", len(res.Records))))
		return nil
	case res.Scalar != nil:
		return f.Success(res.Scalar)
	}
	fmt.Fprintln(f.Writer, okMark("✓"), "ok")
	return nil
}

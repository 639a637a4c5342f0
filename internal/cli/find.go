package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/litequery/internal/stage3"
)

// FindOptions holds flags for the find command.
type FindOptions struct {
	*RootOptions
	Where  string
	Limit  int64
	Skip   int64
	Sort   []string
	Select []string
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FindOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "find <model>",
		Short: "Find records of a model",
		Long: `Find records of a model, filtered by a where expression.

Where expressions compare attributes with =, !=, <, <=, >, >=, in, nin,
like, contains, startsWith and endsWith, combined with and, or and
parentheses.

Example:
  litequery find user --where 'age >= 21 and name startsWith "A"'
  litequery find user --sort 'age DESC' --limit 5 --select name,age`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFind(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Where, "where", "w", "", "where expression")
	cmd.Flags().Int64Var(&opts.Limit, "limit", 100, "maximum number of records")
	cmd.Flags().Int64Var(&opts.Skip, "skip", 0, "records to skip")
	cmd.Flags().StringArrayVar(&opts.Sort, "sort", nil, `sort clause such as "age DESC" (repeatable)`)
	cmd.Flags().StringSliceVar(&opts.Select, "select", nil, "attributes to return (primary key always included)")

	return cmd
}

func runFind(opts *FindOptions, name string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--limit must not be negative, got %d", opts.Limit))
	}

	s, err := openSession(cmd.Context(), opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := s.model(name)
	if err != nil {
		return err
	}

	criteria := map[string]any{"limit": opts.Limit, "skip": opts.Skip}
	if len(opts.Sort) > 0 {
		criteria["sort"] = toAny(opts.Sort)
	}
	if len(opts.Select) > 0 {
		criteria["select"] = toAny(opts.Select)
	}
	q, err := stage3.Decode(map[string]any{
		"method":   string(stage3.MethodFind),
		"using":    m.Identity,
		"criteria": criteria,
	})
	if err != nil {
		return f.Fail(ExitCommandError, "invalid criteria", err)
	}
	if opts.Where != "" {
		if q, err = applyWhere(q, opts.Where); err != nil {
			return f.Fail(ExitCommandError, "invalid --where", err)
		}
	}

	res, err := s.adapter.Execute(cmd.Context(), s.conn, q)
	if err != nil {
		return f.Fail(ExitFailure, "find failed", err)
	}
	return outputResult(f, res)
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hugr-lab/staquery"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Entity  string
	Filter  string
	OrderBy string
	Top     int
	Skip    int
	ID      string
	Count   bool
}

// CompileResult is the output of the compile command.
type CompileResult struct {
	EntityType string     `json:"entity_type"`
	Query      string     `json:"query"`
	SQL        string     `json:"sql"`
	Args       []Argument `json:"args"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a filter to SQL",
		Long: `Compile a $filter (and optionally $orderby, $top, $skip) for an entity
type and print the DuckDB statement with its arguments.

Example:
  stafilter compile --entity Locations \
    --filter "not st_equals(location, geography'POINT(30 10)')"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Entity, "entity", "e", "", "entity type, singular or plural (required)")
	cmd.Flags().StringVarP(&opts.Filter, "filter", "f", "", "$filter expression")
	cmd.Flags().StringVarP(&opts.OrderBy, "orderby", "o", "", "$orderby expression")
	cmd.Flags().IntVar(&opts.Top, "top", -1, "$top, negative for the maximum page size")
	cmd.Flags().IntVar(&opts.Skip, "skip", 0, "$skip")
	cmd.Flags().StringVar(&opts.ID, "id", "", "select a single entity by identifier")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "print the count statement instead of the select")
	_ = cmd.MarkFlagRequired("entity")

	return cmd
}

func runCompile(opts *CompileOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
	}

	config, err := opts.builderConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	b, err := staquery.NewBuilder(config)
	if err != nil {
		return err
	}

	qo := staquery.QueryOptions{
		Filter:  opts.Filter,
		OrderBy: opts.OrderBy,
		Skip:    opts.Skip,
		ID:      opts.ID,
	}
	if opts.Top >= 0 {
		qo.Top = &opts.Top
	}
	q, err := b.BuildQuery(opts.Entity, qo)
	if err != nil {
		return formatter.Fail(err)
	}

	var sql string
	var args []any
	if opts.Count {
		sql, args, err = q.CountSQL()
	} else {
		sql, args, err = q.SQL()
	}
	if err != nil {
		return formatter.Fail(err)
	}

	result := &CompileResult{
		EntityType: q.EntityType,
		Query:      q.String(),
		SQL:        sql,
		Args:       describeArgs(args),
	}
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return outputCompileText(formatter, result)
}

func outputCompileText(f *OutputFormatter, result *CompileResult) error {
	fmt.Fprintf(f.Writer, "%s %s\n\n", color.GreenString("✓"), result.Query)
	fmt.Fprintln(f.Writer, highlightSQL(result.SQL))
	if len(result.Args) == 0 {
		return nil
	}

	fmt.Fprintln(f.Writer)
	rows := make([][]string, len(result.Args))
	for i, a := range result.Args {
		rows[i] = []string{fmt.Sprint(a.Position), a.Type, a.Value}
	}
	return renderTable(f.Writer, []string{"#", "type", "value"}, rows)
}

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/hugr-lab/staquery"
	"github.com/hugr-lab/staquery/geom"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitInvalidQuery = 1 // The filter or query parameters were rejected
	ExitCommandError = 2 // Bad flags, unreadable config, internal failures
)

// reportedError marks an error whose output was already written.
type reportedError struct {
	code int
	err  error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// Execute runs the command tree with args and returns the process exit
// code. Errors not reported by a command are printed to stderr.
func Execute(args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}
	var reported *reportedError
	if errors.As(err, &reported) {
		return reported.code
	}
	fmt.Fprintf(stderr, "%s %v\n", color.RedString("error:"), err)
	return ExitCommandError
}

// Response is the JSON envelope of every command output.
type Response struct {
	Status string         `json:"status"` // "ok" or "error"
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError describes a failed command in JSON output.
type ResponseError struct {
	// Code is the gRPC status code name, e.g. "InvalidArgument".
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OutputFormatter writes command results as text or JSON.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
}

// Success writes data as a JSON envelope. Text output is written by the
// commands themselves.
func (f *OutputFormatter) Success(data any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(Response{Status: "ok", Data: data})
}

// Fail reports err and returns it marked as reported.
func (f *OutputFormatter) Fail(err error) error {
	st := staquery.Status(err)
	code := ExitCommandError
	if staquery.IsInvalidQuery(err) {
		code = ExitInvalidQuery
	}

	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(Response{
			Status: "error",
			Error:  &ResponseError{Code: st.Code().String(), Message: st.Message()},
		}); encErr != nil {
			return encErr
		}
	} else {
		fmt.Fprintf(f.ErrWriter, "%s %s\n", color.RedString(st.Code().String()+":"), st.Message())
	}
	return &reportedError{code: code, err: err}
}

// Argument is a positional SQL parameter in display form.
type Argument struct {
	Position int    `json:"position"`
	Type     string `json:"type"`
	Value    string `json:"value"`
}

// describeArgs converts SQL parameters for display. WKB parameters are
// shown as WKT.
func describeArgs(args []any) []Argument {
	out := make([]Argument, len(args))
	for i, a := range args {
		arg := Argument{Position: i + 1}
		switch v := a.(type) {
		case int64:
			arg.Type, arg.Value = "BIGINT", fmt.Sprint(v)
		case float64:
			arg.Type, arg.Value = "DOUBLE", fmt.Sprint(v)
		case string:
			arg.Type, arg.Value = "VARCHAR", v
		case bool:
			arg.Type, arg.Value = "BOOLEAN", fmt.Sprint(v)
		case time.Time:
			arg.Type, arg.Value = "TIMESTAMPTZ", v.Format(time.RFC3339Nano)
		case []byte:
			arg.Type = "GEOMETRY"
			if g, err := geom.DecodeWKB(v); err == nil {
				arg.Value = wkt.MarshalString(g)
			} else {
				arg.Value = fmt.Sprintf("<%d bytes WKB>", len(v))
			}
		default:
			arg.Type, arg.Value = fmt.Sprintf("%T", v), fmt.Sprint(v)
		}
		out[i] = arg
	}
	return out
}

// renderTable writes rows as a markdown table.
func renderTable(w io.Writer, headers []string, rows [][]string) error {
	alignment := make([]tw.Align, len(headers))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(headers)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

// highlightSQL colours the keywords of a rendered statement.
func highlightSQL(sql string) string {
	if color.NoColor {
		return sql
	}
	keyword := color.New(color.FgCyan, color.Bold).SprintFunc()
	words := strings.Split(sql, " ")
	for i, word := range words {
		if sqlKeywords[word] {
			words[i] = keyword(word)
		}
	}
	return strings.Join(words, " ")
}

var sqlKeywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "AND": true, "OR": true,
	"NOT": true, "LEFT": true, "JOIN": true, "ON": true, "ORDER": true,
	"BY": true, "DESC": true, "LIMIT": true, "OFFSET": true, "EXISTS": true,
	"IS": true, "NULL": true, "CAST": true, "AS": true, "COUNT(*)": true,
}

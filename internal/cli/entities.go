package cli

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hugr-lab/staquery/compiler"
	"github.com/hugr-lab/staquery/schema"
)

// EntityInfo describes an entity type in command output.
type EntityInfo struct {
	Name       string         `json:"name"`
	Plural     string         `json:"plural"`
	Table      string         `json:"table"`
	Properties []PropertyInfo `json:"properties,omitempty"`
	Relations  []string       `json:"relations,omitempty"`
}

// PropertyInfo describes a filterable property.
type PropertyInfo struct {
	Name   string `json:"name"`
	Column string `json:"column"`
	Type   string `json:"type"`
}

// NewEntitiesCommand creates the entities command.
func NewEntitiesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "entities [entity]",
		Short: "List entity types or the properties of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{
				Format:    rootOpts.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: cmd.ErrOrStderr(),
			}
			sch := schema.Default()

			if len(args) == 0 {
				var infos []EntityInfo
				for _, t := range sch.EntityTypes() {
					infos = append(infos, describeEntity(t))
				}
				if formatter.Format == "json" {
					return formatter.Success(infos)
				}
				rows := make([][]string, len(infos))
				for i, info := range infos {
					rows[i] = []string{info.Name, info.Plural, info.Table, strings.Join(info.Relations, ", ")}
				}
				return renderTable(formatter.Writer, []string{"entity", "collection", "table", "relations"}, rows)
			}

			t, err := sch.EntityType(args[0])
			if err != nil {
				return formatter.Fail(err)
			}
			info := describeEntity(t)
			if formatter.Format == "json" {
				return formatter.Success(info)
			}
			rows := make([][]string, len(info.Properties))
			for i, p := range info.Properties {
				rows[i] = []string{p.Name, p.Column, p.Type}
			}
			return renderTable(formatter.Writer, []string{"property", "column", "type"}, rows)
		},
	}
}

// describeEntity flattens complex properties to their slash paths.
func describeEntity(t *schema.EntityType) EntityInfo {
	info := EntityInfo{Name: t.Name, Plural: t.Plural, Table: t.Table}
	for _, p := range t.Properties {
		if p.Complex() {
			for _, f := range p.Fields {
				info.Properties = append(info.Properties, PropertyInfo{
					Name: p.Name + "/" + f.Name, Column: f.Column, Type: f.Type.String(),
				})
			}
			continue
		}
		column := p.Column
		if len(p.Variants) > 0 {
			columns := make([]string, 0, len(p.Variants))
			for _, c := range p.Variants {
				columns = append(columns, c)
			}
			sort.Strings(columns)
			column = strings.Join(columns, " | ")
		}
		info.Properties = append(info.Properties, PropertyInfo{Name: p.Name, Column: column, Type: p.Type.String()})
	}
	for _, r := range t.Relations {
		info.Relations = append(info.Relations, r.Name)
	}
	return info
}

// NewFunctionsCommand creates the functions command.
func NewFunctionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "functions",
		Short: "List the functions accepted in filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{
				Format:    rootOpts.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: cmd.ErrOrStderr(),
			}
			names := compiler.Functions()
			if formatter.Format == "json" {
				return formatter.Success(names)
			}
			rows := make([][]string, len(names))
			for i, name := range names {
				rows[i] = []string{name}
			}
			return renderTable(formatter.Writer, []string{"function"}, rows)
		},
	}
}

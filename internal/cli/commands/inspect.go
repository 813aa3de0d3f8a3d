package commands

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/galotfa/internal/output/duckdb"
	"github.com/leapstack-labs/galotfa/internal/output/sqlite"
	"github.com/leapstack-labs/galotfa/internal/output/sqlstore"
)

// readers opens an output file read-only, by file extension.
var readers = map[string]sqlstore.Opener{
	".sqlite": sqlite.OpenReadOnly,
	".db":     sqlite.OpenReadOnly,
	".duckdb": duckdb.OpenReadOnly,
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand() *cobra.Command {
	var (
		dataset string
		tail    int
		format  string
		follow  bool
	)
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Show the tree, attributes and records of an output file",
		Long: `Show the content of a SQLite or DuckDB output file.

Without --dataset, inspect lists every node with its kind and shape,
followed by the attributes. With --dataset, it prints the last records of
that dataset; long records are summarised. With --follow, inspect keeps
watching the file and prints records as a running simulation appends them.`,
		Example: `  galotfa inspect otfoutput/model.sqlite
  galotfa inspect otfoutput/model.sqlite --dataset /model/scalar/total_mass --tail 20
  galotfa inspect otfoutput/orbit.duckdb --format markdown
  galotfa inspect otfoutput/model.sqlite -d /model/step --follow --format csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if follow && dataset == "" {
				return fmt.Errorf("--follow needs --dataset")
			}
			db, err := openOutput(args[0])
			if err != nil {
				return err
			}
			cat, err := sqlstore.ReadCatalog(cmd.Context(), db)
			if err != nil {
				_ = db.Close()
				return err
			}
			if dataset == "" {
				defer func() { _ = db.Close() }()
				return inspectTree(cmd, cat, format)
			}

			seen, err := inspectDataset(cmd, db, cat, dataset, tail, format)
			_ = db.Close()
			if err != nil || !follow {
				return err
			}
			return followDataset(cmd, args[0], dataset, format, seen)
		},
	}
	cmd.Flags().StringVarP(&dataset, "dataset", "d", "", "Dataset to print records of")
	cmd.Flags().IntVarP(&tail, "tail", "n", 10, "Number of trailing records to print (0 for all)")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table|markdown|csv|json)")
	cmd.Flags().BoolVar(&follow, "follow", false, "Keep printing records as they are appended")
	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return formats, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func openOutput(path string) (*sql.DB, error) {
	ext := strings.ToLower(filepath.Ext(path))
	open, ok := readers[ext]
	if !ok {
		known := make([]string, 0, len(readers))
		for k := range readers {
			known = append(known, k)
		}
		slices.Sort(known)
		return nil, fmt.Errorf("cannot inspect %s: unsupported extension %q (supported: %s)",
			path, ext, strings.Join(known, ", "))
	}
	db, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return db, nil
}

func inspectTree(cmd *cobra.Command, cat *sqlstore.Catalog, format string) error {
	w := cmd.OutOrStdout()
	rows := make([][]string, 0, len(cat.Nodes))
	for _, n := range cat.Nodes {
		row := []string{n.Name, n.Kind, "", "", ""}
		if info, ok := cat.Datasets[n.Name]; ok {
			row[2] = info.Descriptor.Type.String()
			row[3] = formatDims(info.Shape())
			row[4] = formatDims(info.Chunk)
		}
		rows = append(rows, row)
	}
	if err := renderRows(w, format, []string{"node", "kind", "type", "shape", "chunk"}, rows); err != nil {
		return err
	}

	attrs := make([][]string, 0, len(cat.Attributes))
	for _, a := range cat.Attributes {
		attrs = append(attrs, []string{a.Node, a.Name, a.Descriptor.String(), formatValue(a.Value)})
	}
	if format == "table" {
		_, _ = fmt.Fprintln(w)
	}
	return renderRows(w, format, []string{"node", "attribute", "type", "value"}, attrs)
}

// inspectDataset prints the last tail records of name and returns the
// number of records the dataset holds.
func inspectDataset(cmd *cobra.Command, db *sql.DB, cat *sqlstore.Catalog, name string, tail int, format string) (int, error) {
	info, ok := cat.Datasets[name]
	if !ok {
		return 0, fmt.Errorf("no dataset %q in this file", name)
	}
	records, err := sqlstore.ReadRecords(cmd.Context(), db, info)
	if err != nil {
		return 0, err
	}

	first := 0
	if tail > 0 && len(records) > tail {
		first = len(records) - tail
	}
	return len(records), printRecords(cmd, name, records, first, format)
}

func printRecords(cmd *cobra.Command, name string, records []any, first int, format string) error {
	rows := make([][]string, 0, len(records)-first)
	for i := first; i < len(records); i++ {
		rows = append(rows, []string{fmt.Sprint(i), formatValue(records[i])})
	}
	return renderRows(cmd.OutOrStdout(), format, []string{"record", name}, rows)
}

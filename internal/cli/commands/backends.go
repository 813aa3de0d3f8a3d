package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/galotfa/internal/output"
)

// NewBackendsCommand creates the backends command.
func NewBackendsCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "backends",
		Short: "List the available output backends",
		Long: `List the output backends compiled into this binary.

The default build carries memory, sqlite and duckdb. HDF5, the format the
output tree mirrors, needs cgo and libhdf5 and is only available in a
binary built with -tags hdf5:

  go build -tags hdf5 ./cmd/galotfa`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := slog.New(slog.DiscardHandler)
			var rows [][]string
			for _, name := range output.ListBackends() {
				b, err := output.NewBackend(name, logger)
				if err != nil {
					return err
				}
				rows = append(rows, []string{name, "." + b.Extension()})
			}
			return renderRows(cmd.OutOrStdout(), format, []string{"backend", "extension"}, rows)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table|markdown|csv|json)")
	return cmd
}

package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/stacklok/toolhive-roster/internal/projection"
	"github.com/stacklok/toolhive-roster/internal/store"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

func newListCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the roster in display order",
		Long: `list prints every known client with connected clients first, then by numeric
family code, then by id. With --raw the stored roster file contents are printed
in their canonical form instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, _ := cmd.Flags().GetString("format")
			raw, _ := cmd.Flags().GetBool("raw")
			reg := st.engine().Snapshot(cmd.Context())
			if raw {
				data, err := store.Marshal(reg, st.store.Encoding())
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			rows := projection.Project(reg)
			switch format {
			case formatJSON:
				return writeJSON(cmd.OutOrStdout(), rows)
			case formatTable, "":
				if err := writeTable(cmd.OutOrStdout(), rows); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d connected\n", projection.ActiveCount(rows), len(rows))
				return nil
			default:
				return fmt.Errorf("unsupported format %q (use %s or %s)", format, formatTable, formatJSON)
			}
		},
	}
	cmd.Flags().String("format", formatTable, "Output format: table or json")
	cmd.Flags().Bool("raw", false, "Print the stored roster instead of display rows")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

func writeTable(w io.Writer, rows []projection.Row) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "NAME", "FAMILY", "CONNECTED")
	for _, r := range rows {
		if err := table.Append([]string{r.ID, r.DisplayName, r.FamilyID, strconv.FormatBool(r.Active)}); err != nil {
			return fmt.Errorf("failed to render roster: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render roster: %w", err)
	}
	return nil
}

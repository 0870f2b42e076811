package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/tabexp-labs/tabexp/experiment"
	"github.com/tabexp-labs/tabexp/tracking"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded experiment runs",
	}
	cmd.AddCommand(newRunsListCmd())
	cmd.AddCommand(newRunsShowCmd())
	cmd.AddCommand(newRunsExportCmd())
	return cmd
}

func openStore() (*tracking.SQLiteStore, error) {
	return tracking.OpenSQLite(dbPath)
}

func newRunsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List()
			if err != nil {
				return err
			}

			// Runs with a recorded test RMSE rank first, best RMSE on top.
			// Failed or unfinished runs follow in listing order.
			type row struct {
				record  *tracking.RunRecord
				rmse    float64
				hasRMSE bool
			}
			rows := make([]row, 0, len(records))
			for _, r := range records {
				full, err := store.Get(r.ID)
				if err != nil {
					return err
				}
				rw := row{record: r}
				for _, p := range full.Metrics {
					if p.Name == experiment.MetricTestRMSE {
						rw.rmse = p.Value
						rw.hasRMSE = true
					}
				}
				rows = append(rows, rw)
			}
			sort.SliceStable(rows, func(i, j int) bool {
				if rows[i].hasRMSE != rows[j].hasRMSE {
					return rows[i].hasRMSE
				}
				return rows[i].rmse < rows[j].rmse
			})

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"ID", "Name", "Status", "Test RMSE", "Started", "Sealed"})
			for _, rw := range rows {
				r := rw.record
				rmse := ""
				if rw.hasRMSE {
					rmse = fmt.Sprintf("%.6f", rw.rmse)
				}
				sealed := ""
				if r.SealedAt != nil {
					sealed = r.SealedAt.Format("2006-01-02 15:04:05")
				}
				t.AppendRow(table.Row{
					r.ID, r.Name, r.Status, rmse,
					r.StartedAt.Format("2006-01-02 15:04:05"), sealed,
				})
			}
			t.Render()
			return nil
		},
	}
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run's parameters, metrics, and artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			record, err := store.Get(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run:    %s\n", record.ID)
			fmt.Fprintf(out, "name:   %s\n", record.Name)
			fmt.Fprintf(out, "status: %s\n", record.Status)
			if record.Error != "" {
				fmt.Fprintf(out, "error:  %s\n", record.Error)
			}
			for k, v := range record.Tags {
				fmt.Fprintf(out, "tag:    %s=%s\n", k, v)
			}

			if len(record.Params) > 0 {
				t := table.NewWriter()
				t.SetOutputMirror(out)
				t.AppendHeader(table.Row{"Param", "Value"})
				for k, v := range record.Params {
					t.AppendRow(table.Row{k, v})
				}
				t.Render()
			}

			if len(record.Metrics) > 0 {
				t := table.NewWriter()
				t.SetOutputMirror(out)
				t.AppendHeader(table.Row{"Metric", "Step", "Value"})
				for _, p := range record.Metrics {
					t.AppendRow(table.Row{p.Name, p.Step, fmt.Sprintf("%.6f", p.Value)})
				}
				t.Render()
			}

			for _, name := range record.Artifacts {
				fmt.Fprintf(out, "artifact: %s\n", name)
			}
			return nil
		},
	}
}

func newRunsExportCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Write a run's artifacts to a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			record, err := store.Get(args[0])
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			for _, name := range record.Artifacts {
				data, err := store.LoadArtifact(record.ID, name)
				if err != nil {
					return err
				}
				path := filepath.Join(outDir, name)
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "directory to write artifacts into")
	return cmd
}

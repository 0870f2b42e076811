package cli

import (
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/tabexp-labs/tabexp/dataset"
	"github.com/tabexp-labs/tabexp/experiment"
	"github.com/tabexp-labs/tabexp/internal/config"
	"github.com/tabexp-labs/tabexp/tracking"
)

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one experiment from a YAML definition",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			data, err := dataset.LoadCSV(cfg.Data.Path, cfg.Data.Label)
			if err != nil {
				return err
			}
			parts, err := dataset.Prepare(data, dataset.PrepareOptions{
				TestFraction: cfg.Data.TestFraction,
				ValFraction:  cfg.Data.ValFraction,
				Seed:         cfg.Seed,
			})
			if err != nil {
				return err
			}

			store, err := tracking.OpenSQLite(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			results, err := experiment.ExecuteAll(cfg, parts, store)
			if len(results) > 0 {
				sort.Slice(results, func(i, j int) bool {
					return results[i].TestRMSE < results[j].TestRMSE
				})
				t := table.NewWriter()
				t.SetOutputMirror(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"Run", "Name", "Best Epoch", "Val RMSE", "Test RMSE"})
				for _, r := range results {
					t.AppendRow(table.Row{
						r.RunID, r.Name, r.History.BestEpoch,
						fmt.Sprintf("%.6f", r.History.BestValRMSE),
						fmt.Sprintf("%.6f", r.TestRMSE),
					})
				}
				t.Render()
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "experiment.yaml", "path to the experiment definition")
	return cmd
}

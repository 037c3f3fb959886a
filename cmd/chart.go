package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/insighto/internal/charts"
)

var chartReq charts.CustomRequest

var chartCmd = &cobra.Command{
	Use:   "chart <session-id>",
	Short: "Render a custom chart for a session and add it to its report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if chartReq.Column == "" {
			return fmt.Errorf("--column is required")
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		spec, err := a.orch.CustomChart(cmd.Context(), args[0], chartReq)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Chart written: %s\n", spec.Path)
		fmt.Fprintf(out, "  %s\n", spec.Description)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chartCmd)
	chartCmd.Flags().StringVarP(&chartReq.Column, "column", "c", "", "primary column")
	chartCmd.Flags().StringVar(&chartReq.Column2, "column2", "", "optional second column")
	chartCmd.Flags().StringVarP(&chartReq.Type, "type", "t", "", "chart type preference, e.g. histogram, bar, box, scatter, line, heatmap (default Auto)")
}

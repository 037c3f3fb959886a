package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/insighto/internal/report"
	"github.com/KaramelBytes/insighto/internal/store"
)

var runQuiet bool

var runCmd = &cobra.Command{
	Use:   "run <session-id>",
	Short: "Analyse an uploaded session: clean, profile, chart and narrate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		rep, err := a.orch.Run(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !runQuiet {
			printRunSummary(cmd.OutOrStdout(), a.store, rep)
		}
		return nil
	},
}

func printRunSummary(w io.Writer, st *store.Store, rep *report.Report) {
	s := rep.Sections
	fmt.Fprintf(w, "✓ Analysis completed for %s (session %s)\n", rep.Filename, rep.SessionID)
	if s.DataQuality != nil {
		q := s.DataQuality.Content
		fmt.Fprintf(w, "  rows: %d → %d, columns: %d → %d\n", q.OriginalRows, q.CleanedRows, q.OriginalCols, q.CleanedCols)
	}
	if s.DatasetOverview != nil {
		fmt.Fprintf(w, "  quality score: %.1f\n", s.DatasetOverview.Content.QualityScore)
	}
	if s.Visualizations != nil {
		fmt.Fprintf(w, "  charts: %d\n", s.Visualizations.Content.TotalCharts)
	}
	fmt.Fprintf(w, "  artifacts: %s\n", st.SessionDir(rep.SessionID))
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "suppress the summary")
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	anaName       string
	anaOutputPath string
	anaPrint      bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Upload a dataset and analyse it in one step",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		sess, err := a.orch.Upload(ctx, anaName, args[0])
		if err != nil {
			return err
		}
		rep, err := a.orch.Run(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("session %s: %w", sess.ID, err)
		}
		out := cmd.OutOrStdout()
		printRunSummary(out, a.store, rep)

		md := rep.Markdown()
		if anaOutputPath != "" {
			if err := os.WriteFile(anaOutputPath, []byte(md), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(out, "✓ Wrote report to %s\n", anaOutputPath)
		}
		if anaPrint {
			fmt.Fprintln(out, md)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVar(&anaName, "name", "", "display name for the dataset (defaults to the file name)")
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "optional path to write the report (Markdown)")
	analyzeCmd.Flags().BoolVar(&anaPrint, "print", false, "print the Markdown report to stdout")
}

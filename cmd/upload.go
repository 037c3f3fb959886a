package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var upName string

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Register a CSV/TSV/XLSX file as a new analysis session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		sess, err := a.orch.Upload(cmd.Context(), upName, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Session created: %s (%s)\n", sess.ID, sess.Filename)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVar(&upName, "name", "", "display name for the dataset (defaults to the file name)")
}

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/insighto/internal/cleaner"
	"github.com/KaramelBytes/insighto/internal/dataset"
	"github.com/KaramelBytes/insighto/internal/profile"
)

var inspOutputPath string

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Clean and profile a file locally, without a session or narrative calls",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		raw, err := dataset.Load(path)
		if err != nil {
			return err
		}
		opt := cleaner.DefaultOptions()
		if cfg != nil {
			opt = cfg.Cleaner()
		}
		cleaned, rep := cleaner.New(opt).Clean(cmd.Context(), raw)
		prof, err := profile.Build(cleaned)
		if err != nil {
			return err
		}

		var b strings.Builder
		b.WriteString(prof.Markdown(filepath.Base(path)))
		b.WriteString("\n## Cleaning log\n\n")
		for _, e := range rep.Entries {
			fmt.Fprintf(&b, "- %s\n", e)
		}
		md := b.String()

		if inspOutputPath != "" {
			if err := os.WriteFile(inspOutputPath, []byte(md), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote profile to %s\n", inspOutputPath)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), md)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVarP(&inspOutputPath, "output", "o", "", "optional path to write the profile (Markdown)")
}

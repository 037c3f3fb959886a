package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
)

var (
	abParallel int
	abQuiet    bool
)

var analyzeBatchCmd = &cobra.Command{
	Use:   "analyze-batch <files...>",
	Short: "Upload and analyse several CSV/TSV/XLSX files concurrently",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var files []string
		seen := map[string]struct{}{}
		for _, arg := range args {
			matches, _ := filepath.Glob(arg)
			if len(matches) == 0 {
				// treat as literal path if exists
				if _, err := os.Stat(arg); err == nil {
					matches = []string{arg}
				}
			}
			for _, m := range matches {
				if _, ok := seen[m]; ok {
					continue
				}
				seen[m] = struct{}{}
				files = append(files, m)
			}
		}
		if len(files) == 0 {
			return fmt.Errorf("no input files matched")
		}
		sort.Strings(files)

		ctx := cmd.Context()
		if cfg != nil && abParallel > 0 {
			cfg.BatchParallelism = abParallel
		}
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		ids := make([]string, 0, len(files))
		names := map[string]string{}
		total := len(files)
		for i, path := range files {
			if !abQuiet {
				fmt.Fprintf(out, "[%d/%d] Uploading %s...\n", i+1, total, filepath.Base(path))
			}
			sess, err := a.orch.Upload(ctx, "", path)
			if err != nil {
				fmt.Fprintf(out, "✗ %s: %v\n", filepath.Base(path), err)
				continue
			}
			ids = append(ids, sess.ID)
			names[sess.ID] = sess.Filename
		}

		failed := total - len(ids)
		for _, r := range a.orch.RunBatch(ctx, ids) {
			if r.Err != nil {
				failed++
				fmt.Fprintf(out, "✗ %s (%s): %v\n", names[r.SessionID], r.SessionID, r.Err)
				continue
			}
			if !abQuiet {
				fmt.Fprintf(out, "✓ %s (%s): %s, %d charts\n", names[r.SessionID], r.SessionID, r.Status, r.Charts)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, total)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeBatchCmd)
	analyzeBatchCmd.Flags().IntVar(&abParallel, "parallel", 0, "maximum concurrent analyses (overrides batch_parallelism)")
	analyzeBatchCmd.Flags().BoolVar(&abQuiet, "quiet", false, "suppress progress and non-essential output")
}

package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var sessJSON bool

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect analysis sessions",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show session metadata, artifacts and a data preview",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		sess, err := a.store.GetSession(ctx, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if sessJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(sess)
		}
		fmt.Fprintf(out, "Session:  %s\n", sess.ID)
		fmt.Fprintf(out, "File:     %s\n", sess.Filename)
		fmt.Fprintf(out, "Status:   %s\n", sess.Status)
		fmt.Fprintf(out, "Uploaded: %s\n", sess.UploadedAt.Format(time.RFC3339))
		fmt.Fprintf(out, "Dir:      %s\n", a.store.SessionDir(sess.ID))
		if list, err := a.orch.Charts(ctx, sess.ID); err == nil {
			fmt.Fprintf(out, "Charts:   %d\n", len(list))
			for _, c := range list {
				fmt.Fprintf(out, "  - [%s] %s (%s)\n", c.Kind, c.Title, c.Filename)
			}
		}

		p, err := a.orch.Preview(ctx, sess.ID)
		if err != nil {
			fmt.Fprintf(out, "Preview:  unavailable (%v)\n", err)
			return nil
		}
		fmt.Fprintf(out, "Preview:  %d rows × %d columns\n", p.TotalRows, p.TotalColumns)
		fmt.Fprintf(out, "  | %s |\n", strings.Join(p.Columns, " | "))
		for _, row := range p.Rows {
			fmt.Fprintf(out, "  | %s |\n", strings.Join(row, " | "))
		}
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		list, err := a.store.ListSessions(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "(no sessions)")
			return nil
		}
		for _, s := range list {
			fmt.Fprintf(out, "- %s: %s [%s] %s\n", s.ID, s.Filename, s.Status, s.UploadedAt.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionShowCmd.Flags().BoolVar(&sessJSON, "json", false, "print metadata as JSON")
}

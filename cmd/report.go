package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/insighto/internal/report"
)

var (
	repRender    bool
	repWrap      int
	repFormat    string
	repOutputPth string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show or export the report of an analysed session",
}

var reportShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print the report as Markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := loadReport(cmd, args[0])
		if err != nil {
			return err
		}
		md := rep.Markdown()
		if repRender {
			r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(repWrap))
			if err != nil {
				return fmt.Errorf("terminal renderer: %w", err)
			}
			out, err := r.Render(md)
			if err != nil {
				return fmt.Errorf("render markdown: %w", err)
			}
			md = out
		}
		fmt.Fprintln(cmd.OutOrStdout(), md)
		return nil
	},
}

var reportExportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export the report as json, yaml or markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := loadReport(cmd, args[0])
		if err != nil {
			return err
		}
		data, err := encodeReport(rep, repFormat)
		if err != nil {
			return err
		}
		if repOutputPth == "" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(repOutputPth, data, 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s report to %s\n", strings.ToLower(repFormat), repOutputPth)
		return nil
	},
}

func loadReport(cmd *cobra.Command, id string) (*report.Report, error) {
	a, err := openApp(cmd.Context())
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return a.orch.Report(cmd.Context(), id)
}

func encodeReport(rep *report.Report, format string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		data, err := rep.Marshal()
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case "yaml", "yml":
		return reportYAML(rep)
	case "md", "markdown":
		return []byte(rep.Markdown()), nil
	default:
		return nil, fmt.Errorf("unsupported --format: %s (use json|yaml|markdown)", format)
	}
}

// reportYAML goes through the JSON form so the section order and field
// names match report.json.
func reportYAML(rep *report.Report) ([]byte, error) {
	data, err := rep.Marshal()
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("convert report: %w", err)
	}
	blockStyle(&doc)
	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func blockStyle(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode && n.Tag == "!!str" && strings.Contains(n.Value, "\n") {
		n.Style = yaml.LiteralStyle
	} else {
		n.Style = 0
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportShowCmd)
	reportCmd.AddCommand(reportExportCmd)
	reportShowCmd.Flags().BoolVar(&repRender, "render", false, "render Markdown for the terminal")
	reportShowCmd.Flags().IntVar(&repWrap, "wrap", 100, "word wrap width when rendering")
	reportExportCmd.Flags().StringVarP(&repFormat, "format", "f", "json", "output format: json|yaml|markdown")
	reportExportCmd.Flags().StringVarP(&repOutputPth, "output", "o", "", "write to this path instead of stdout")
}

package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	cobra.OnInitialize(loadConfig)
	os.Exit(m.Run())
}

// resetFlags restores every flag to its default so state does not leak
// between invocations of the shared root command.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if f.Changed {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execCmd runs the root command with args and returns its output.
func execCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// runCLI is a helper to execute the root command with args.
func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execCmd(t, args...)
	if err != nil {
		t.Fatalf("command %v failed: %v\n%s", args, err, out)
	}
	return out
}

var sessionIDRe = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

func isolatedHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("INSIGHTO_PROVIDER", "none")
	return home
}

func writeCSV(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	body := "store,revenue,visits\nA,120.5,10\nB,98.0,7\nC,143.25,12\nA,110.0,9\nB,101.5,8\nC,150.0,14\nA,118.75,11\n"
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestCLI_AnalyzeReportChartClear(t *testing.T) {
	home := isolatedHome(t)
	path := writeCSV(t, home, "stores.csv")
	mdPath := filepath.Join(home, "report.md")

	out := runCLI(t, "analyze", path, "-o", mdPath)
	assert.Contains(t, out, "✓ Analysis completed for stores.csv")
	assert.Contains(t, out, "charts: 3")
	id := sessionIDRe.FindString(out)
	require.NotEmpty(t, id)
	md, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(md), "# Analysis Report"))

	out = runCLI(t, "report", "show", id)
	assert.Contains(t, out, "## Executive Summary")

	out = runCLI(t, "report", "export", id, "--format", "yaml")
	assert.Contains(t, out, "session_id: "+id)
	assert.Less(t, strings.Index(out, "dataset_overview:"), strings.Index(out, "data_quality:"))
	assert.Less(t, strings.Index(out, "insights:"), strings.Index(out, "recommendations:"))

	_, err = execCmd(t, "report", "export", id, "--format", "xml")
	assert.ErrorContains(t, err, "unsupported --format")

	out = runCLI(t, "chart", id, "--column", "revenue", "--type", "box")
	assert.Contains(t, out, "✓ Chart written:")
	assert.FileExists(t, filepath.Join(home, ".insighto", "storage", id, "custom_revenue_box.png"))

	out = runCLI(t, "session", "show", id)
	assert.Contains(t, out, "Status:   completed")
	assert.Contains(t, out, "Charts:   4")

	out = runCLI(t, "session", "list")
	assert.Contains(t, out, id)

	runCLI(t, "clear", id)
	assert.NoDirExists(t, filepath.Join(home, ".insighto", "storage", id))
}

func TestCLI_UploadThenRunOnce(t *testing.T) {
	home := isolatedHome(t)
	path := writeCSV(t, home, "stores.csv")

	out := runCLI(t, "upload", path, "--name", "Q1 stores.csv")
	assert.Contains(t, out, "(Q1 stores.csv)")
	id := sessionIDRe.FindString(out)
	require.NotEmpty(t, id)

	runCLI(t, "run", id, "--quiet")
	_, err := execCmd(t, "run", id)
	assert.ErrorContains(t, err, "already analysed")

	_, err = execCmd(t, "upload", filepath.Join(home, "notes.json"))
	assert.ErrorContains(t, err, "unsupported dataset format")
}

func TestCLI_Inspect(t *testing.T) {
	home := isolatedHome(t)
	path := writeCSV(t, home, "stores.csv")

	out := runCLI(t, "inspect", path)
	assert.Contains(t, out, "# Dataset profile")
	assert.Contains(t, out, "File: `stores.csv`")
	assert.Contains(t, out, "## Cleaning log")
	assert.NoDirExists(t, filepath.Join(home, ".insighto", "storage"), "inspect creates no session")
}

func TestCLI_AnalyzeBatch(t *testing.T) {
	home := isolatedHome(t)
	for _, d := range []string{"d1", "d2"} {
		require.NoError(t, os.MkdirAll(filepath.Join(home, d), 0o755))
		writeCSV(t, filepath.Join(home, d), "stores.csv")
	}

	out := runCLI(t, "analyze-batch", filepath.Join(home, "d*", "stores.csv"), "--parallel", "2")
	assert.Contains(t, out, "[2/2] Uploading stores.csv")
	assert.Equal(t, 2, strings.Count(out, ": completed, 3 charts"))

	_, err := execCmd(t, "analyze-batch", filepath.Join(home, "none*.csv"))
	assert.ErrorContains(t, err, "no input files matched")
}

func TestCLI_ConfigSetShow(t *testing.T) {
	home := isolatedHome(t)

	runCLI(t, "config", "set", "max_charts", "3")
	runCLI(t, "config", "set", "api_key", "sk-abcdefghijkl")
	assert.FileExists(t, filepath.Join(home, ".insighto", "config.yaml"))

	out := runCLI(t, "config", "show")
	assert.Contains(t, out, "max_charts: 3\n")
	assert.Contains(t, out, "api_key: sk-****jkl\n")
	assert.NotContains(t, out, "abcdefghijkl")

	_, err := execCmd(t, "config", "set", "nope", "1")
	assert.ErrorContains(t, err, "unknown config key")
}

package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/KaramelBytes/insighto/internal/ai"
	"github.com/KaramelBytes/insighto/internal/charts"
	"github.com/KaramelBytes/insighto/internal/cleaner"
	"github.com/KaramelBytes/insighto/internal/dataset"
	"github.com/KaramelBytes/insighto/internal/narrative"
	"github.com/KaramelBytes/insighto/internal/pipeline"
	"github.com/KaramelBytes/insighto/internal/report"
	"github.com/KaramelBytes/insighto/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubRuntime answers chart requests with descriptors and everything else
// with fixed prose. When gate is set the first call blocks until it closes.
type stubRuntime struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	gate    chan struct{}
}

func (s *stubRuntime) Generate(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()
	if first && s.gate != nil {
		close(s.entered)
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	prompt := req.Messages[len(req.Messages)-1].Content
	reply := "narrative for the dataset"
	switch {
	case strings.Contains(prompt, "Chart type preference: Correlation Heatmap"):
		reply = "```json\n{\"chart\": \"heatmap\", \"title\": \"Correlations\"}\n```"
	case strings.Contains(prompt, "Chart type preference: Scatter"):
		reply = `{"chart": "scatter", "x": "price", "y": "units", "title": "Price vs units"}`
	case strings.Contains(prompt, "Chart type preference:"):
		reply = "I cannot draw that"
	}
	return &ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{Role: "assistant", Content: reply}}}}, nil
}

const salesCSV = `region,price,units
North,10.5,3
South,12.0,5
East,9.75,2
West,11.25,7
North,13.0,4
South,8.5,6
East,14.25,1
West,10.0,8
North,12.75,9
South,9.0,3
East,11.5,5
West,,4
`

func newOrchestrator(t *testing.T, rt ai.Runtime) *pipeline.Orchestrator {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(context.Background(), filepath.Join(dir, "storage"), filepath.Join(dir, "insighto.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	var narr *narrative.Service
	var instr charts.Instructor
	if rt != nil {
		narr = narrative.New(rt, narrative.Options{Model: "stub"})
		instr = narr
	}
	eng := charts.NewEngine(charts.NewRenderer(4, 3, 50), instr, 0)
	return pipeline.New(st, cleaner.New(cleaner.DefaultOptions()), eng, narr, pipeline.Options{PreviewRows: 3, Parallelism: 2})
}

func upload(t *testing.T, o *pipeline.Orchestrator, name, body string) *store.Session {
	t.Helper()
	src := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(src, []byte(body), 0o644))
	sess, err := o.Upload(context.Background(), name, src)
	require.NoError(t, err)
	return sess
}

func status(t *testing.T, o *pipeline.Orchestrator, id string) store.Status {
	t.Helper()
	sess, err := o.Store().GetSession(context.Background(), id)
	require.NoError(t, err)
	return sess.Status
}

func TestRunWithNarrativeCapability(t *testing.T) {
	o := newOrchestrator(t, &stubRuntime{})
	sess := upload(t, o, "sales.csv", salesCSV)
	ctx := context.Background()

	rep, err := o.Run(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, status(t, o, sess.ID))
	assert.Equal(t, report.Order, rep.IDs())
	assert.Equal(t, "sales.csv", rep.Filename)

	vis := rep.Sections.Visualizations.Content
	require.Equal(t, 5, vis.TotalCharts)
	assert.Equal(t, "correlation_heatmap.png", vis.Charts[0].Filename)
	assert.Equal(t, charts.KindCustom, vis.Charts[0].Kind)
	assert.Equal(t, "ai_relationship_plot.png", vis.Charts[4].Filename)
	for _, c := range vis.Charts {
		assert.FileExists(t, c.Path)
	}
	assert.Equal(t, "narrative for the dataset", rep.Sections.Insights.Content)
	assert.Equal(t, "narrative for the dataset", rep.Sections.ExecutiveSummary.Content)

	dir := o.Store().SessionDir(sess.ID)
	for _, name := range []string{store.ArtifactProfile, store.ArtifactCharts, store.ArtifactInsights, store.ArtifactReport, sess.ID + "_cleaned.csv"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	saved, err := o.Report(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, rep.GeneratedAt, saved.GeneratedAt)
	prof, err := o.Profile(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, prof.BasicInfo.TotalRows)
}

func TestRunWithoutNarrativeCapability(t *testing.T) {
	o := newOrchestrator(t, nil)
	sess := upload(t, o, "sales.csv", salesCSV)

	rep, err := o.Run(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, status(t, o, sess.ID))
	assert.Equal(t, 3, rep.Sections.Visualizations.Content.TotalCharts)
	for _, c := range rep.Sections.Visualizations.Content.Charts {
		assert.Equal(t, charts.KindBasic, c.Kind)
	}
	assert.Equal(t, narrative.FallbackInsights, rep.Sections.Insights.Content)
	assert.Equal(t, narrative.FallbackSummary, rep.Sections.ExecutiveSummary.Content)
	assert.Equal(t, narrative.FallbackRecommendations, rep.Sections.Recommendations.Content)
}

func TestRunLoadFailureMarksError(t *testing.T) {
	o := newOrchestrator(t, nil)
	sess := upload(t, o, "empty.csv", "a,b\n")

	_, err := o.Run(context.Background(), sess.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, dataset.ErrEmpty)
	assert.Equal(t, store.StatusError, status(t, o, sess.ID))

	_, err = o.Report(context.Background(), sess.ID)
	assert.ErrorIs(t, err, store.ErrArtifactNotFound)
}

func TestRunRejectsTerminalSession(t *testing.T) {
	o := newOrchestrator(t, nil)
	sess := upload(t, o, "sales.csv", salesCSV)
	_, err := o.Run(context.Background(), sess.ID)
	require.NoError(t, err)

	_, err = o.Run(context.Background(), sess.ID)
	assert.ErrorIs(t, err, pipeline.ErrSessionTerminal)
	assert.Equal(t, store.StatusCompleted, status(t, o, sess.ID))

	_, err = o.Run(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	rt := &stubRuntime{entered: make(chan struct{}), gate: make(chan struct{})}
	o := newOrchestrator(t, rt)
	sess := upload(t, o, "sales.csv", salesCSV)

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), sess.ID)
		done <- err
	}()
	<-rt.entered
	assert.Equal(t, store.StatusAnalyzing, status(t, o, sess.ID))

	_, err := o.Run(context.Background(), sess.ID)
	assert.ErrorIs(t, err, pipeline.ErrRunInProgress)
	_, err = o.CustomChart(context.Background(), sess.ID, charts.CustomRequest{Column: "price"})
	assert.ErrorIs(t, err, pipeline.ErrRunInProgress)

	close(rt.gate)
	require.NoError(t, <-done)
	assert.Equal(t, store.StatusCompleted, status(t, o, sess.ID))
}

// cancelRuntime cancels the run from inside the first narrative call.
type cancelRuntime struct{ cancel context.CancelFunc }

func (c cancelRuntime) Generate(ctx context.Context, _ ai.GenerateRequest) (*ai.GenerateResponse, error) {
	c.cancel()
	return nil, ctx.Err()
}

func TestRunCanceledMarksError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o := newOrchestrator(t, cancelRuntime{cancel: cancel})
	sess := upload(t, o, "sales.csv", salesCSV)

	_, err := o.Run(ctx, sess.ID)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, store.StatusError, status(t, o, sess.ID))
	assert.FileExists(t, filepath.Join(o.Store().SessionDir(sess.ID), store.ArtifactProfile), "partial artifacts stay")
	assert.NoFileExists(t, filepath.Join(o.Store().SessionDir(sess.ID), store.ArtifactReport))
}

func TestCustomChartAppends(t *testing.T) {
	o := newOrchestrator(t, &stubRuntime{})
	sess := upload(t, o, "sales.csv", salesCSV)
	ctx := context.Background()

	spec, err := o.CustomChart(ctx, sess.ID, charts.CustomRequest{Column: "price", Type: "histogram"})
	require.NoError(t, err, "works before any run, from the uploaded file")
	assert.Equal(t, "custom_price_histogram.png", spec.Filename)
	assert.Equal(t, "narrative for the dataset", spec.Description)
	list, err := o.Charts(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	o2 := newOrchestrator(t, &stubRuntime{})
	sess2 := upload(t, o2, "sales.csv", salesCSV)
	_, err = o2.Run(ctx, sess2.ID)
	require.NoError(t, err)
	_, err = o2.CustomChart(ctx, sess2.ID, charts.CustomRequest{Column: "region", Column2: "units", Type: "bar"})
	require.NoError(t, err)

	list, err = o2.Charts(ctx, sess2.ID)
	require.NoError(t, err)
	assert.Len(t, list, 6)
	rep, err := o2.Report(ctx, sess2.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, rep.Sections.Visualizations.Content.TotalCharts)
	assert.Equal(t, "custom_region_bar.png", rep.Sections.Visualizations.Content.Charts[5].Filename)

	_, err = o2.CustomChart(ctx, sess2.ID, charts.CustomRequest{Column: "nope"})
	assert.ErrorIs(t, err, charts.ErrUnknownColumn)
}

func TestRunKeepsEarlierCustomCharts(t *testing.T) {
	o := newOrchestrator(t, &stubRuntime{})
	sess := upload(t, o, "sales.csv", salesCSV)
	ctx := context.Background()

	custom, err := o.CustomChart(ctx, sess.ID, charts.CustomRequest{Column: "price", Type: "histogram"})
	require.NoError(t, err)
	rep, err := o.Run(ctx, sess.ID)
	require.NoError(t, err)

	list, err := o.Charts(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, list, 6)
	assert.Equal(t, custom, list[5])
	assert.False(t, list[0].OnDemand())
	assert.FileExists(t, custom.Path)

	viz := rep.Sections.Visualizations.Content
	assert.Equal(t, 6, viz.TotalCharts)
	assert.Equal(t, "custom_price_histogram.png", viz.Charts[5].Filename)
}

func TestRepeatedCustomChartReplacesEntry(t *testing.T) {
	o := newOrchestrator(t, nil)
	sess := upload(t, o, "sales.csv", salesCSV)
	ctx := context.Background()

	req := charts.CustomRequest{Column: "units", Type: "box"}
	_, err := o.CustomChart(ctx, sess.ID, req)
	require.NoError(t, err)
	_, err = o.CustomChart(ctx, sess.ID, req)
	require.NoError(t, err)

	list, err := o.Charts(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "custom_units_box.png", list[0].Filename)
}

func TestPreview(t *testing.T) {
	o := newOrchestrator(t, nil)
	sess := upload(t, o, "sales.csv", salesCSV)

	p, err := o.Preview(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "price", "units"}, p.Columns)
	assert.Equal(t, 12, p.TotalRows)
	assert.Equal(t, 3, p.TotalColumns)
	require.Len(t, p.Rows, 3)
	assert.Equal(t, []string{"North", "10.5", "3"}, p.Rows[0])
}

func TestUploadRejectsUnsupportedFormat(t *testing.T) {
	o := newOrchestrator(t, nil)
	src := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(src, []byte("{}"), 0o644))
	_, err := o.Upload(context.Background(), "", src)
	assert.ErrorIs(t, err, dataset.ErrUnsupportedFormat)
}

func TestClear(t *testing.T) {
	o := newOrchestrator(t, nil)
	sess := upload(t, o, "sales.csv", salesCSV)
	require.NoError(t, o.Clear(context.Background(), sess.ID))
	assert.NoDirExists(t, o.Store().SessionDir(sess.ID))
}

func TestRunBatch(t *testing.T) {
	o := newOrchestrator(t, nil)
	var ids []string
	for i := range 4 {
		ids = append(ids, upload(t, o, fmt.Sprintf("sales_%d.csv", i), salesCSV).ID)
	}
	bad := upload(t, o, "bad.csv", "x\n")
	ids = append(ids, bad.ID)

	results := o.RunBatch(context.Background(), ids)
	require.Len(t, results, len(ids))
	for i, r := range results[:4] {
		assert.Equal(t, ids[i], r.SessionID)
		assert.NoError(t, r.Err)
		assert.Equal(t, store.StatusCompleted, r.Status)
		assert.Equal(t, 3, r.Charts)
	}
	last := results[4]
	assert.True(t, errors.Is(last.Err, dataset.ErrEmpty))
	assert.Equal(t, store.StatusError, last.Status)
}

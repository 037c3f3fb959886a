// Package pipeline runs the analysis of one session: load, clean, profile,
// chart, narrate, assemble and persist, tracking the session status.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/insighto/internal/apperrors"
	"github.com/KaramelBytes/insighto/internal/charts"
	"github.com/KaramelBytes/insighto/internal/cleaner"
	"github.com/KaramelBytes/insighto/internal/dataset"
	"github.com/KaramelBytes/insighto/internal/narrative"
	"github.com/KaramelBytes/insighto/internal/profile"
	"github.com/KaramelBytes/insighto/internal/report"
	"github.com/KaramelBytes/insighto/internal/store"
	"github.com/KaramelBytes/insighto/internal/utils"
)

var (
	// ErrRunInProgress is returned when the session is already being analysed.
	ErrRunInProgress = errors.New("analysis already running for session")
	// ErrSessionTerminal is returned when the session already completed or failed.
	ErrSessionTerminal = errors.New("session already analysed; upload again to start a new run")
)

// Options tune the orchestrator.
type Options struct {
	PreviewRows int
	Parallelism int
}

// Orchestrator sequences the stages of a run. Runs of different sessions may
// proceed concurrently; a session runs at most once at a time.
type Orchestrator struct {
	store    *store.Store
	cleaner  *cleaner.Cleaner
	charts   *charts.Engine
	narr     *narrative.Service
	opt      Options
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New wires an orchestrator. narr may be nil, in which case every narrative
// output is the fallback text.
func New(st *store.Store, cl *cleaner.Cleaner, eng *charts.Engine, narr *narrative.Service, opt Options) *Orchestrator {
	if cl == nil {
		cl = cleaner.New(cleaner.DefaultOptions())
	}
	if narr == nil {
		narr = narrative.New(nil, narrative.Options{})
	}
	if eng == nil {
		eng = charts.NewEngine(nil, narr, 0)
	}
	if opt.PreviewRows <= 0 {
		opt.PreviewRows = 10
	}
	if opt.Parallelism <= 0 {
		opt.Parallelism = 4
	}
	return &Orchestrator{store: st, cleaner: cl, charts: eng, narr: narr, opt: opt, inFlight: map[string]struct{}{}}
}

// Store exposes the result store.
func (o *Orchestrator) Store() *store.Store { return o.store }

func (o *Orchestrator) acquire(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[id]; busy {
		return false
	}
	o.inFlight[id] = struct{}{}
	return true
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	delete(o.inFlight, id)
	o.mu.Unlock()
}

// Upload registers a local file as a new session.
func (o *Orchestrator) Upload(ctx context.Context, filename, src string) (*store.Session, error) {
	if filename == "" {
		filename = src
	}
	if !dataset.Supported(filename) {
		return nil, fmt.Errorf("%w: %s", dataset.ErrUnsupportedFormat, filename)
	}
	sess, err := o.store.CreateSession(ctx, filename, src)
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("session_id", sess.ID).Str("file", sess.Filename).Msg("session created")
	return sess, nil
}

// Run analyses a session. Errors returned before the session entered
// analyzing leave its status untouched; any later failure marks it error.
// Non-fatal degradations never surface here.
func (o *Orchestrator) Run(ctx context.Context, id string) (rep *report.Report, err error) {
	if !o.acquire(id) {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, id)
	}
	defer o.release(id)

	sess, err := o.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case sess.Status == store.StatusAnalyzing:
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, id)
	case sess.Status.Terminal():
		return nil, fmt.Errorf("%w: %s is %s", ErrSessionTerminal, id, sess.Status)
	}

	logger := zerolog.Ctx(ctx).With().Str("session_id", id).Logger()
	ctx = logger.WithContext(ctx)
	if err := o.store.SetSessionStatus(ctx, id, store.StatusAnalyzing); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run panicked: %v", r)
		}
		if err != nil {
			rep = nil
			logger.Error().Err(err).Str("kind", apperrors.KindOf(err).String()).Msg("analysis failed")
			if serr := o.store.SetSessionStatus(context.WithoutCancel(ctx), id, store.StatusError); serr != nil {
				logger.Error().Err(serr).Msg("could not record error status")
			}
		}
	}()

	rep, err = o.run(ctx, sess)
	if err != nil {
		return nil, err
	}
	if err := o.store.SetSessionStatus(ctx, id, store.StatusCompleted); err != nil {
		return nil, err
	}
	logger.Info().Int("charts", rep.Sections.Visualizations.Content.TotalCharts).Msg("analysis completed")
	return rep, nil
}

func (o *Orchestrator) run(ctx context.Context, sess *store.Session) (*report.Report, error) {
	log := zerolog.Ctx(ctx)
	id := sess.ID
	stage := func(name string) error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("canceled before %s: %w", name, err)
		}
		log.Debug().Str("stage", name).Msg("stage started")
		return nil
	}

	if err := stage("load"); err != nil {
		return nil, err
	}
	raw, err := dataset.Load(sess.Path)
	if err != nil {
		return nil, apperrors.New(apperrors.LoadFailure, "pipeline.load", err)
	}

	if err := stage("clean"); err != nil {
		return nil, err
	}
	cleaned, cleanRep := o.cleaner.Clean(ctx, raw)
	if cleaned.Empty() {
		return nil, apperrors.Newf(apperrors.LoadFailure, "pipeline.clean", "no data left after cleaning %s", sess.Filename)
	}
	if _, err := o.store.SaveDataset(id, cleaned); err != nil {
		return nil, err
	}

	if err := stage("profile"); err != nil {
		return nil, err
	}
	prof, err := profile.Build(cleaned)
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	for _, w := range prof.Warnings {
		log.Warn().Str("stage", "profile").Msg(w)
	}
	if err := o.saveJSON(id, store.ArtifactProfile, prof); err != nil {
		return nil, err
	}

	if err := stage("charts"); err != nil {
		return nil, err
	}
	prior, err := o.Charts(ctx, id)
	if err != nil && !errors.Is(err, store.ErrArtifactNotFound) {
		return nil, err
	}
	specs := o.charts.Generate(ctx, cleaned, prof, o.store.SessionDir(id))
	specs = keepCustom(specs, prior)
	if err := o.saveJSON(id, store.ArtifactCharts, specs); err != nil {
		return nil, err
	}

	if err := stage("narrate"); err != nil {
		return nil, err
	}
	ops, _ := json.MarshalIndent(cleanRep.Entries, "", "  ")
	dataContext := fmt.Sprintf("Dataset: %s\n\nCleaning Summary:\n%s", sess.Filename, ops)
	profJSON, _ := utils.PrettyJSON(prof)
	insights := o.narr.Insights(ctx, dataContext, string(profJSON))
	summaryText := prof.SummaryText()
	execSummary := o.narr.ExecutiveSummary(ctx, summaryText+"\n\nTop Insights:\n"+insights)
	recs := o.narr.Recommendations(ctx, summaryText+"\n\nInsights:\n"+insights)
	if err := o.store.SaveArtifact(id, store.ArtifactInsights, []byte(insights)); err != nil {
		return nil, err
	}

	if err := stage("assemble"); err != nil {
		return nil, err
	}
	rep := report.NewBuilder(id, sess.Filename).
		AddDatasetOverview(prof).
		AddDataQuality(cleanRep).
		AddStatistics(prof).
		AddVisualizations(specs).
		AddInsights(insights).
		AddExecutiveSummary(execSummary).
		AddRecommendations(recs).
		Build()
	data, err := rep.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	if err := o.store.SaveArtifact(id, store.ArtifactReport, data); err != nil {
		return nil, err
	}
	return rep, nil
}

func (o *Orchestrator) saveJSON(id, name string, v any) error {
	data, err := utils.PrettyJSON(v)
	if err != nil {
		return err
	}
	return o.store.SaveArtifact(id, name, data)
}

// CustomChart renders an on-demand chart for a session and appends it to the
// persisted chart list, and to the report when one exists.
func (o *Orchestrator) CustomChart(ctx context.Context, id string, req charts.CustomRequest) (charts.Spec, error) {
	if !o.acquire(id) {
		return charts.Spec{}, fmt.Errorf("%w: %s", ErrRunInProgress, id)
	}
	defer o.release(id)

	sess, err := o.store.GetSession(ctx, id)
	if err != nil {
		return charts.Spec{}, err
	}
	ds, err := o.workingDataset(sess)
	if err != nil {
		return charts.Spec{}, err
	}
	spec, err := o.charts.Custom(ctx, ds, o.store.SessionDir(id), req)
	if err != nil {
		return charts.Spec{}, err
	}
	spec.Description = o.narr.ExplainChart(ctx, spec.Title, "Columns available: "+fmt.Sprint(ds.Names()))

	list, err := o.Charts(ctx, id)
	if err != nil && !errors.Is(err, store.ErrArtifactNotFound) {
		return charts.Spec{}, err
	}
	list = upsertChart(list, spec)
	if err := o.saveJSON(id, store.ArtifactCharts, list); err != nil {
		return charts.Spec{}, err
	}
	if rep, err := o.Report(ctx, id); err == nil {
		rep.SetCharts(list)
		data, err := rep.Marshal()
		if err != nil {
			return charts.Spec{}, fmt.Errorf("marshal report: %w", err)
		}
		if err := o.store.SaveArtifact(id, store.ArtifactReport, data); err != nil {
			return charts.Spec{}, err
		}
	} else if !errors.Is(err, store.ErrArtifactNotFound) {
		return charts.Spec{}, err
	}
	zerolog.Ctx(ctx).Info().Str("session_id", id).Str("chart", spec.Filename).Msg("custom chart added")
	return spec, nil
}

// keepCustom appends the on-demand charts of an earlier list to freshly
// generated specs. The result is never nil.
func keepCustom(specs, prior []charts.Spec) []charts.Spec {
	out := make([]charts.Spec, 0, len(specs)+len(prior))
	out = append(out, specs...)
	for _, p := range prior {
		if p.OnDemand() {
			out = upsertChart(out, p)
		}
	}
	return out
}

// upsertChart replaces the entry sharing spec's file name, or appends.
func upsertChart(list []charts.Spec, spec charts.Spec) []charts.Spec {
	for i := range list {
		if list[i].Filename == spec.Filename {
			list[i] = spec
			return list
		}
	}
	return append(list, spec)
}

// workingDataset prefers the cleaned dataset and falls back to the upload.
func (o *Orchestrator) workingDataset(sess *store.Session) (*dataset.Dataset, error) {
	path := o.store.CleanedPath(sess.ID)
	if _, err := os.Stat(path); err != nil {
		path = sess.Path
	}
	ds, err := o.store.LoadDataset(path)
	if err != nil {
		return nil, apperrors.New(apperrors.LoadFailure, "pipeline.dataset", err)
	}
	return ds, nil
}

// Preview is the first rows of an uploaded dataset.
type Preview struct {
	Columns      []string   `json:"columns"`
	Rows         [][]string `json:"rows"`
	TotalRows    int        `json:"total_rows"`
	TotalColumns int        `json:"total_columns"`
}

// Preview loads the uploaded dataset and returns its first rows.
func (o *Orchestrator) Preview(ctx context.Context, id string) (*Preview, error) {
	sess, err := o.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	ds, err := o.store.LoadDataset(sess.Path)
	if err != nil {
		return nil, apperrors.New(apperrors.LoadFailure, "pipeline.preview", err)
	}
	n := min(o.opt.PreviewRows, ds.Rows())
	p := &Preview{Columns: ds.Names(), Rows: make([][]string, n), TotalRows: ds.Rows(), TotalColumns: ds.Cols()}
	for i := 0; i < n; i++ {
		row := make([]string, ds.Cols())
		for j, c := range ds.Columns {
			row[j] = c.Format(i, "")
		}
		p.Rows[i] = row
	}
	return p, nil
}

// Report loads the persisted report of a session.
func (o *Orchestrator) Report(ctx context.Context, id string) (*report.Report, error) {
	if _, err := o.store.GetSession(ctx, id); err != nil {
		return nil, err
	}
	data, err := o.store.LoadArtifact(id, store.ArtifactReport)
	if err != nil {
		return nil, err
	}
	return report.Parse(data)
}

// Charts loads the persisted chart list of a session.
func (o *Orchestrator) Charts(ctx context.Context, id string) ([]charts.Spec, error) {
	data, err := o.store.LoadArtifact(id, store.ArtifactCharts)
	if err != nil {
		return nil, err
	}
	var list []charts.Spec
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse charts: %w", err)
	}
	return list, nil
}

// Profile loads the persisted profile of a session.
func (o *Orchestrator) Profile(ctx context.Context, id string) (*profile.Profile, error) {
	data, err := o.store.LoadArtifact(id, store.ArtifactProfile)
	if err != nil {
		return nil, err
	}
	var p profile.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	return &p, nil
}

// Clear deletes the artifacts of a session that is not running.
func (o *Orchestrator) Clear(ctx context.Context, id string) error {
	if !o.acquire(id) {
		return fmt.Errorf("%w: %s", ErrRunInProgress, id)
	}
	defer o.release(id)
	return o.store.ClearSession(ctx, id)
}

// BatchResult is the outcome of one session in a batch.
type BatchResult struct {
	SessionID string       `json:"session_id"`
	Status    store.Status `json:"status"`
	Charts    int          `json:"charts"`
	Err       error        `json:"-"`
}

// RunBatch analyses several sessions with at most Parallelism runs in
// flight. A failing session does not stop the others; results keep the
// order of ids.
func (o *Orchestrator) RunBatch(ctx context.Context, ids []string) []BatchResult {
	results := make([]BatchResult, len(ids))
	var g errgroup.Group
	g.SetLimit(o.opt.Parallelism)
	for i, id := range ids {
		g.Go(func() error {
			res := BatchResult{SessionID: id}
			rep, err := o.Run(ctx, id)
			res.Err = err
			if rep != nil {
				res.Charts = rep.Sections.Visualizations.Content.TotalCharts
			}
			if sess, gerr := o.store.GetSession(context.WithoutCancel(ctx), id); gerr == nil {
				res.Status = sess.Status
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

package cmd

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/KaramelBytes/insighto/internal/ai"
	"github.com/KaramelBytes/insighto/internal/charts"
	"github.com/KaramelBytes/insighto/internal/cleaner"
	cfgpkg "github.com/KaramelBytes/insighto/internal/config"
	"github.com/KaramelBytes/insighto/internal/narrative"
	"github.com/KaramelBytes/insighto/internal/pipeline"
	"github.com/KaramelBytes/insighto/internal/store"
)

// app holds the components a session command works with.
type app struct {
	cfg   *cfgpkg.Global
	store *store.Store
	orch  *pipeline.Orchestrator
}

func openApp(ctx context.Context) (*app, error) {
	c, err := requireConfig()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, c.StorageDir, c.DatabasePath)
	if err != nil {
		return nil, err
	}

	log := zerolog.Ctx(ctx)
	var narr *narrative.Service
	var instr charts.Instructor
	if rt, ok := c.Runtime(); ok {
		narr = narrative.New(rt, c.Narrative())
		instr = narr
		log.Debug().Str("provider", c.Provider).Str("model", c.Model).Msg("narrative provider configured")
	} else if c.Provider != "" && c.Provider != ai.ProviderNone {
		log.Warn().Str("provider", c.Provider).Msg("unknown narrative provider, using fallback text")
	}

	eng := charts.NewEngine(charts.NewRenderer(c.ChartWidthIn, c.ChartHeightIn, c.ChartDPI), instr, c.MaxCharts)
	orch := pipeline.New(st, cleaner.New(c.Cleaner()), eng, narr, c.Pipeline())
	return &app{cfg: c, store: st, orch: orch}, nil
}

func (a *app) Close() error { return a.store.Close() }

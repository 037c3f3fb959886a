// Package narrative produces the natural-language parts of a report through
// an ai.Runtime. Every call is bounded by a timeout and degrades to fixed
// fallback text, so a missing or failing runtime never fails a run.
package narrative

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/KaramelBytes/insighto/internal/ai"
	"github.com/KaramelBytes/insighto/internal/apperrors"
	"github.com/KaramelBytes/insighto/internal/utils"
)

const systemPrompt = "You are a professional data analyst. " +
	"Provide clear, accurate insights based only on the data provided. " +
	"Never hallucinate or make up information."

// Fallback texts used when the runtime is unavailable.
const (
	FallbackInsights = `**Insights (Basic Analysis):**

The narrative service is currently unavailable. Here are basic observations:

1. The dataset has been successfully loaded and cleaned
2. Statistical analysis has been performed on all numeric columns
3. Visualizations have been generated for key variables
4. Please review the charts and statistics for detailed information`

	FallbackSummary = "This report presents an analysis of the uploaded dataset. " +
		"The data has been processed, cleaned, and analyzed to extract key statistics and patterns."

	FallbackRecommendations = `1. Review the statistical summaries for each variable
2. Examine the visualizations to identify patterns
3. Check for any data quality issues
4. Consider domain-specific analysis
5. Use insights to guide decisions`
)

var errNoRuntime = errors.New("no narrative runtime configured")

// Options tune the runtime calls.
type Options struct {
	Model       string
	MaxTokens   int // upper bound applied to every call; 0 keeps the per-call budgets
	Temperature float64
	Timeout     time.Duration
	// ContextTokens bounds the data context inserted into each prompt.
	ContextTokens int
}

// Service is the narrative generator. A nil runtime is valid and always
// yields the fallbacks.
type Service struct {
	rt  ai.Runtime
	opt Options
}

// New returns a Service over rt.
func New(rt ai.Runtime, opt Options) *Service {
	if opt.Timeout <= 0 {
		opt.Timeout = 60 * time.Second
	}
	if opt.Temperature <= 0 {
		opt.Temperature = 0.7
	}
	if opt.ContextTokens <= 0 {
		opt.ContextTokens = 3000
	}
	return &Service{rt: rt, opt: opt}
}

// Available reports whether a runtime is configured.
func (s *Service) Available() bool { return s != nil && s.rt != nil }

// Insights returns Markdown observations for the dataset.
func (s *Service) Insights(ctx context.Context, dataContext, dataSummary string) string {
	prompt := `STRICT RESPONSE RULES:
1. OUTPUT FORMAT: Markdown with short bullet points.
2. NO LONG PARAGRAPHS.
3. BE CONCISE: direct and to the point.
4. FACTS ONLY: use only the provided data.

You are analyzing a dataset. Based on the following information, provide clear insights.

DATASET CONTEXT:
` + s.clip(dataContext) + `

DATA SUMMARY:
` + s.clip(dataSummary) + `

Provide the following sections, each as a level 3 heading:
### 1. Key Observations
(3-5 bullet points)
### 2. Trends & Patterns
### 3. Data Quality Notes
### 4. Recommended Actions`
	return s.textOr(ctx, "narrative.insights", prompt, 1000, s.opt.Temperature, FallbackInsights)
}

// ExecutiveSummary condenses analysis text into a short summary.
func (s *Service) ExecutiveSummary(ctx context.Context, analysis string) string {
	prompt := `You are writing a professional executive summary for a data analysis report.

ANALYSIS RESULTS:
` + s.clip(analysis) + `

INSTRUCTIONS:
1. Start with a brief introductory paragraph of one or two sentences.
2. Follow with a bullet list of key findings.
3. Use **bold** to highlight important metrics or keywords.
4. Do not use emojis.
5. Keep it concise and easy to scan.`
	return s.textOr(ctx, "narrative.executive_summary", prompt, 800, s.opt.Temperature, FallbackSummary)
}

// Recommendations returns 3-5 actionable recommendations.
func (s *Service) Recommendations(ctx context.Context, analysis string) string {
	prompt := `Based on the data analysis, provide 3-5 strategic recommendations.

ANALYSIS RESULTS:
` + s.clip(analysis) + `

INSTRUCTIONS:
1. Output a Markdown bullet list.
2. Start each item with a **Bold Strategy Title:**.
3. Be actionable and professional.
4. Do not use emojis.`
	return s.textOr(ctx, "narrative.recommendations", prompt, 600, s.opt.Temperature, FallbackRecommendations)
}

// ExplainChart describes a chart in two or three plain sentences.
func (s *Service) ExplainChart(ctx context.Context, description, dataContext string) string {
	prompt := `Explain this chart in simple, plain English (2-3 sentences).

CHART DESCRIPTION:
` + description + `

DATA CONTEXT:
` + s.clip(dataContext) + `

Focus on what the chart reveals about the data.`
	return s.textOr(ctx, "narrative.explain_chart", prompt, 200, s.opt.Temperature, "This chart shows: "+description)
}

// ChartInstructions asks for a JSON chart descriptor. ok is false when the
// runtime is unavailable, failed, or returned nothing.
func (s *Service) ChartInstructions(ctx context.Context, prompt string, columns []string, hint string) (string, bool) {
	if hint == "" {
		hint = "Best fit"
	}
	full := `STRICT RULES:
1. OUTPUT: return ONLY one JSON object, no code and no prose.
2. The object has the fields:
   "chart": one of "heatmap", "histogram", "bar", "box", "scatter", "line"
   "x", "y": column names (as needed by the chart)
   "columns": list of column names (heatmap, box)
   "aggregation": one of "count", "sum", "mean", "median", "min", "max" (bar, line)
   "group_by": optional column name used for color or grouping
   "title": short chart title
3. Use only the column names listed below, spelled exactly.

CONTEXT:
` + s.clip(prompt) + `

REQUEST:
Describe a reasonable chart using columns: ` + strings.Join(columns, ", ") + `.
Chart type preference: ` + hint
	out, err := s.complete(ctx, "narrative.chart_instructions", full, 600, 0.5)
	if err != nil {
		s.warn(ctx, err)
		return "", false
	}
	return out, true
}

func (s *Service) textOr(ctx context.Context, op, prompt string, budget int, temp float64, fallback string) string {
	out, err := s.complete(ctx, op, prompt, budget, temp)
	if err != nil {
		s.warn(ctx, err)
		return fallback
	}
	return out
}

// complete runs one bounded call. Every failure, empty answers included, is
// tagged CapabilityUnavailable.
func (s *Service) complete(ctx context.Context, op, prompt string, budget int, temp float64) (string, error) {
	if !s.Available() {
		return "", apperrors.New(apperrors.CapabilityUnavailable, op, errNoRuntime)
	}
	if s.opt.MaxTokens > 0 && s.opt.MaxTokens < budget {
		budget = s.opt.MaxTokens
	}
	cctx, cancel := context.WithTimeout(ctx, s.opt.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.rt.Generate(cctx, ai.GenerateRequest{
		Model: s.opt.Model,
		Messages: []ai.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   budget,
		Temperature: temp,
	})
	if err != nil {
		return "", apperrors.New(apperrors.CapabilityUnavailable, op, err)
	}
	text := resp.Text()
	if text == "" {
		return "", apperrors.Newf(apperrors.CapabilityUnavailable, op, "empty response")
	}
	zerolog.Ctx(ctx).Debug().
		Str("op", op).
		Dur("elapsed", time.Since(start)).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Str("request_id", resp.RequestID).
		Msg("narrative call")
	return text, nil
}

func (s *Service) warn(ctx context.Context, err error) {
	ev := zerolog.Ctx(ctx).Warn().Err(err)
	if errors.Is(err, errNoRuntime) {
		ev = zerolog.Ctx(ctx).Debug().Err(err)
	}
	ev.Str("kind", apperrors.KindOf(err).String()).
		Str("reason", ai.Reason(err)).
		Msg("narrative fallback used")
}

func (s *Service) clip(text string) string {
	return utils.ClipTokens(text, s.opt.ContextTokens)
}

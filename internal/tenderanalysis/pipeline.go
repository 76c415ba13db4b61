package tenderanalysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/joelkehle/tender-advisor/internal/tenderanalysis"

var errNoGenerator = errors.New("text generation not configured")

type AnalyzerConfig struct {
	// Generator may be nil; keywords then come from the deterministic extractor
	// and the recommendation carries an error.
	Generator         Generator
	Source            RecordSource
	Fields            RecordFields
	MinPlausibleAward float64
	Normalizer        *Normalizer
	TargetRecords     int
	PageSize          int
	Tracer            trace.Tracer
}

// Analyzer runs the keyword, search, pricing and strategy stages for one tender
// at a time. It holds no per-analysis state and may be shared.
type Analyzer struct {
	cfg AnalyzerConfig
}

func NewAnalyzer(cfg AnalyzerConfig) (*Analyzer, error) {
	if cfg.Source == nil {
		return nil, errors.New("record source is required")
	}
	cfg.Fields = cfg.Fields.withDefaults()
	if cfg.MinPlausibleAward <= 0 {
		cfg.MinPlausibleAward = DefaultMinPlausibleAward
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = defaultNormalizer
	}
	if cfg.TargetRecords <= 0 {
		cfg.TargetRecords = DefaultTargetRecords
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = cfg.TargetRecords
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	return &Analyzer{cfg: cfg}, nil
}

func (a *Analyzer) ModelName() string {
	if a.cfg.Generator == nil {
		return "none"
	}
	return a.cfg.Generator.ModelName()
}

// ReportOptions returns the record layout and normalizer this analyzer prices
// with, for rendering its results.
func (a *Analyzer) ReportOptions() ReportOptions {
	return ReportOptions{Fields: a.cfg.Fields, Normalizer: a.cfg.Normalizer}
}

func (a *Analyzer) Analyse(ctx context.Context, req TenderRequest) AnalysisResult {
	return a.AnalyseWithProgress(ctx, req, nil)
}

// AnalyseWithProgress always returns a complete result. Stage failures are
// recorded in the metadata and the recommendation instead of being returned.
func (a *Analyzer) AnalyseWithProgress(ctx context.Context, req TenderRequest, progress StageProgressFn) AnalysisResult {
	res := AnalysisResult{
		ID:       uuid.NewString(),
		Request:  req,
		Metadata: AnalysisMetadata{StartedAt: time.Now(), Model: a.ModelName()},
	}
	ctx, span := a.cfg.Tracer.Start(ctx, "tenderanalysis.Analyse", trace.WithAttributes(
		attribute.String("analysis.id", res.ID),
		attribute.String("tender.title", req.Title),
	))
	defer span.End()
	log.Printf("tender-advisor analysis_start id=%s title=%q estimate=%q", res.ID, req.Title, req.EstimatedValue)

	emit(progress, StageKeywords, "Deriving search keywords...")
	res.Keywords = a.keywords(ctx, req, &res.Metadata)
	res.Metadata.StagesExecuted = append(res.Metadata.StagesExecuted, StageKeywords)

	emit(progress, StageSearch, fmt.Sprintf("Searching historical awards for %d keywords...", len(res.Keywords)))
	collected := a.search(ctx, res.Keywords)
	res.SimilarRecords = collected.Records
	res.Metadata.SearchErrors = collected.Errors
	res.Metadata.StagesExecuted = append(res.Metadata.StagesExecuted, StageSearch)

	emit(progress, StagePricing, fmt.Sprintf("Analysing pricing across %d awards...", len(res.SimilarRecords)))
	res.PricingSummary = a.pricing(ctx, res.SimilarRecords, req.EstimatedValue)
	res.Metadata.StagesExecuted = append(res.Metadata.StagesExecuted, StagePricing)

	emit(progress, StageStrategy, "Generating bid recommendation...")
	res.Recommendation = a.strategy(ctx, req, res.PricingSummary, &res.Metadata)
	res.Metadata.StagesExecuted = append(res.Metadata.StagesExecuted, StageStrategy)

	res.Metadata.CompletedAt = time.Now()
	res.Metadata.DurationMS = res.Metadata.CompletedAt.Sub(res.Metadata.StartedAt).Milliseconds()
	if res.Recommendation.Failed() {
		span.SetAttributes(attribute.String("recommendation.error", res.Recommendation.Error))
	}
	log.Printf("tender-advisor analysis_complete id=%s keywords=%d records=%d usable=%d recommendation_error=%q duration_ms=%d",
		res.ID, len(res.Keywords), len(res.SimilarRecords), res.PricingSummary.UsableRecords, res.Recommendation.Error, res.Metadata.DurationMS)
	return res
}

func (a *Analyzer) keywords(ctx context.Context, req TenderRequest, meta *AnalysisMetadata) []string {
	ctx, span := a.cfg.Tracer.Start(ctx, "tenderanalysis.keywords")
	defer span.End()

	kws, err := a.generateKeywords(ctx, req)
	if err != nil {
		serr := &StageError{Stage: StageKeywords, Err: err}
		log.Printf("tender-advisor keywords_fallback err=%q", serr.Error())
		span.RecordError(serr)
		meta.KeywordsFallback = true
		meta.KeywordsError = serr.Error()
		kws = FallbackKeywords(req.Title+" "+req.Description, FallbackKeywordLimit)
	}
	span.SetAttributes(
		attribute.Int("keywords.count", len(kws)),
		attribute.Bool("keywords.fallback", meta.KeywordsFallback),
	)
	return kws
}

func (a *Analyzer) generateKeywords(ctx context.Context, req TenderRequest) ([]string, error) {
	if a.cfg.Generator == nil {
		return nil, errNoGenerator
	}
	raw, err := a.cfg.Generator.Generate(ctx, BuildKeywordPrompt(req.Title, req.Description))
	if err != nil {
		return nil, err
	}
	return ParseKeywordResponse(raw)
}

func (a *Analyzer) search(ctx context.Context, keywords []string) CollectResult {
	ctx, span := a.cfg.Tracer.Start(ctx, "tenderanalysis.search")
	defer span.End()

	collector := NewCollector(a.cfg.Fields)
	out := collector.Collect(ctx, keywords, SourceFetch(a.cfg.Source, a.cfg.PageSize), a.cfg.TargetRecords)
	span.SetAttributes(
		attribute.Int("search.records", len(out.Records)),
		attribute.Int("search.failed_keywords", len(out.Errors)),
	)
	if len(out.Errors) > 0 && len(out.Errors) == countNonBlank(keywords) {
		span.SetStatus(codes.Error, "every keyword search failed")
	}
	return out
}

func (a *Analyzer) pricing(ctx context.Context, records []Record, estimate string) PricingSummary {
	_, span := a.cfg.Tracer.Start(ctx, "tenderanalysis.pricing")
	defer span.End()

	summary := Aggregate(records, estimate, AggregateOptions{
		Fields:            a.cfg.Fields,
		MinPlausibleAward: a.cfg.MinPlausibleAward,
		Normalizer:        a.cfg.Normalizer,
	})
	span.SetAttributes(
		attribute.Int("pricing.total", summary.TotalRecords),
		attribute.Int("pricing.usable", summary.UsableRecords),
		attribute.Bool("pricing.insufficient", summary.InsufficientData()),
		attribute.Bool("pricing.estimate_invalid", summary.EstimateInvalid),
	)
	return summary
}

func (a *Analyzer) strategy(ctx context.Context, req TenderRequest, summary PricingSummary, meta *AnalysisMetadata) BidRecommendation {
	ctx, span := a.cfg.Tracer.Start(ctx, "tenderanalysis.strategy")
	defer span.End()

	prompt, short := BuildStrategyPrompt(summary, req.Context())
	if short != nil {
		log.Printf("tender-advisor strategy_skipped reason=%q", short.Error)
		meta.StrategySkipped = true
		span.SetAttributes(attribute.Bool("strategy.skipped", true))
		return *short
	}
	if a.cfg.Generator == nil {
		meta.StrategySkipped = true
		return errorRecommendation(errNoGenerator.Error())
	}
	raw, err := a.cfg.Generator.Generate(ctx, prompt)
	if err != nil {
		serr := &StageError{Stage: StageStrategy, Err: err}
		log.Printf("tender-advisor strategy_failed err=%q", serr.Error())
		span.RecordError(serr)
		span.SetStatus(codes.Error, "generation failed")
		return errorRecommendation(fmt.Sprintf("strategy generation failed: %v", err))
	}
	rec := ParseStrategyResponse(raw)
	if rec.Failed() {
		log.Printf("tender-advisor strategy_unparsable err=%q response_chars=%d", rec.Error, len(raw))
		span.SetStatus(codes.Error, rec.Error)
		return rec
	}
	return ApplyEstimate(rec, a.cfg.Normalizer.Normalize(TextValue(req.EstimatedValue)))
}

func emit(progress StageProgressFn, stage, message string) {
	if progress != nil {
		progress(stage, message)
	}
}

func countNonBlank(xs []string) int {
	n := 0
	for _, x := range xs {
		if strings.TrimSpace(x) != "" {
			n++
		}
	}
	return n
}

package tenderanalysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type fakeSource struct {
	byQuery map[string][]Record
	all     []Record
	err     error
	queries []string
}

func (f *fakeSource) Search(_ context.Context, query string, pageSize int) ([]Record, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	if recs, ok := f.byQuery[query]; ok {
		return recs, nil
	}
	return f.all, nil
}

func threeRecords() []Record {
	return []Record{
		{"tender_no": "GOV1", "awarded_amt": "900,000", "tender_description": "Web portal"},
		{"tender_no": "GOV2", "awarded_amt": 1100000.0, "tender_description": "Database services"},
		{"tender_no": "GOV3", "awarded_amt": "0", "tender_description": "Cancelled award"},
	}
}

func newTestAnalyzer(t *testing.T, gen Generator, src RecordSource) (*Analyzer, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	a, err := NewAnalyzer(AnalyzerConfig{Generator: gen, Source: src, Tracer: tp.Tracer("test")})
	if err != nil {
		t.Fatal(err)
	}
	return a, rec
}

func softwareRequest() TenderRequest {
	return TenderRequest{Title: "Software Development", Description: "web and database services", EstimatedValue: "1000000 SGD"}
}

func TestAnalyseEndToEndWithAmounts(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		`["software development"]`,
		"```json\n{\"bid_range_min_pct\": 0.92, \"bid_range_max_pct\": 0.98, \"risk_level\": \"Low\", \"confidence_level\": \"Medium\", \"reasoning\": \"Two comparable awards\"}\n```",
	}}
	src := &fakeSource{all: threeRecords()}
	a, spans := newTestAnalyzer(t, gen, src)

	var stages []string
	res := a.AnalyseWithProgress(context.Background(), softwareRequest(), func(stage, _ string) { stages = append(stages, stage) })

	if res.PricingSummary.UsableRecords != 2 || res.PricingSummary.TotalRecords != 3 {
		t.Fatalf("unexpected pricing %+v", res.PricingSummary)
	}
	if res.Recommendation.Failed() {
		t.Fatalf("unexpected recommendation error %q", res.Recommendation.Error)
	}
	if res.Recommendation.MinAmount == nil || res.Recommendation.MaxAmount == nil {
		t.Fatalf("expected amounts, got %+v", res.Recommendation)
	}
	if !approx(*res.Recommendation.MinAmount, 920000) || !approx(*res.Recommendation.MaxAmount, 980000) {
		t.Fatalf("unexpected amounts %v %v", *res.Recommendation.MinAmount, *res.Recommendation.MaxAmount)
	}
	if res.ID == "" || res.Metadata.Model != "test-model" || res.Metadata.KeywordsFallback {
		t.Fatalf("unexpected metadata %+v", res.Metadata)
	}
	if strings.Join(stages, ",") != "keywords,search,pricing,strategy" {
		t.Fatalf("unexpected progress %v", stages)
	}
	if len(gen.prompts) != 2 || !strings.Contains(gen.prompts[1], "Awards with valid pricing: 2") {
		t.Fatalf("unexpected prompts %v", gen.prompts)
	}
	if got := len(spans.Ended()); got != 5 {
		t.Fatalf("expected 5 spans, got %d", got)
	}
}

func TestAnalyseZeroPercentagesOmitAmounts(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		`["software"]`,
		`{"bid_range_min_pct": 0, "bid_range_max_pct": 0.97, "risk_level": "High", "confidence_level": "Low", "reasoning": "thin data"}`,
	}}
	a, _ := newTestAnalyzer(t, gen, &fakeSource{all: threeRecords()})
	res := a.Analyse(context.Background(), softwareRequest())
	if res.Recommendation.Failed() {
		t.Fatalf("unexpected error %q", res.Recommendation.Error)
	}
	if res.Recommendation.MinAmount != nil || res.Recommendation.MaxAmount != nil {
		t.Fatalf("expected no amounts, got %+v", res.Recommendation)
	}
}

func TestAnalyseFallsBackToLocalKeywords(t *testing.T) {
	gen := &fakeGenerator{errs: []error{errors.New("status code: 503")}, responses: []string{"", `{"bid_range_min_pct":0.9,"bid_range_max_pct":1.0}`}}
	src := &fakeSource{all: threeRecords()}
	a, _ := newTestAnalyzer(t, gen, src)
	res := a.Analyse(context.Background(), softwareRequest())
	if !res.Metadata.KeywordsFallback || res.Metadata.KeywordsError == "" {
		t.Fatalf("expected keyword fallback, got %+v", res.Metadata)
	}
	if len(res.Keywords) == 0 || res.Keywords[0] != "software" {
		t.Fatalf("unexpected fallback keywords %v", res.Keywords)
	}
	if res.Recommendation.Failed() {
		t.Fatalf("unexpected recommendation error %q", res.Recommendation.Error)
	}
}

func TestAnalyseSearchFailureSkipsGeneration(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`["a", "b"]`}}
	a, spans := newTestAnalyzer(t, gen, &fakeSource{err: errors.New("connection refused")})
	res := a.Analyse(context.Background(), softwareRequest())
	if len(res.SimilarRecords) != 0 || len(res.Metadata.SearchErrors) != 2 {
		t.Fatalf("unexpected search outcome records=%d errors=%v", len(res.SimilarRecords), res.Metadata.SearchErrors)
	}
	if res.Recommendation.Error != ErrInsufficientPricing || !res.Metadata.StrategySkipped {
		t.Fatalf("expected insufficient data recommendation, got %+v", res.Recommendation)
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("expected generator called only for keywords, got %d calls", len(gen.prompts))
	}
	for _, s := range spans.Ended() {
		if s.Name() == "tenderanalysis.search" && s.Status().Description == "" {
			t.Fatal("expected search span error status")
		}
	}
}

func TestAnalyseInvalidEstimateSkipsStrategy(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`["software"]`, `{"bid_range_min_pct": 0.9, "bid_range_max_pct": 0.95}`}}
	a, spans := newTestAnalyzer(t, gen, &fakeSource{all: threeRecords()})
	req := softwareRequest()
	req.EstimatedValue = "TBD"
	res := a.Analyse(context.Background(), req)
	if res.Recommendation.Error != `invalid estimated value: "TBD"` || !res.Metadata.StrategySkipped {
		t.Fatalf("expected invalid estimate recommendation, got %+v", res.Recommendation)
	}
	if !res.PricingSummary.EstimateInvalid || res.PricingSummary.Stats != nil || len(res.SimilarRecords) != 3 {
		t.Fatalf("unexpected pricing %+v", res.PricingSummary)
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("expected generator called only for keywords, got %d calls", len(gen.prompts))
	}
	flagged := false
	for _, s := range spans.Ended() {
		if s.Name() != "tenderanalysis.pricing" {
			continue
		}
		for _, kv := range s.Attributes() {
			if kv.Key == "pricing.estimate_invalid" && kv.Value.AsBool() {
				flagged = true
			}
		}
	}
	if !flagged {
		t.Fatal("expected pricing span to flag the estimate")
	}
}

func TestAnalyseUnparsableStrategy(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`["software"]`, "Sorry, I can't produce JSON today."}}
	a, _ := newTestAnalyzer(t, gen, &fakeSource{all: threeRecords()})
	res := a.Analyse(context.Background(), softwareRequest())
	if !res.Recommendation.Failed() || res.Recommendation.MinAmount != nil {
		t.Fatalf("expected error recommendation, got %+v", res.Recommendation)
	}
	if len(res.Metadata.StagesExecuted) != 4 {
		t.Fatalf("expected all stages executed, got %v", res.Metadata.StagesExecuted)
	}
}

func TestAnalyseWithoutGenerator(t *testing.T) {
	a, _ := newTestAnalyzer(t, nil, &fakeSource{all: threeRecords()})
	res := a.Analyse(context.Background(), softwareRequest())
	if !res.Metadata.KeywordsFallback || res.Metadata.Model != "none" {
		t.Fatalf("unexpected metadata %+v", res.Metadata)
	}
	if res.Recommendation.Error != errNoGenerator.Error() {
		t.Fatalf("unexpected recommendation %+v", res.Recommendation)
	}
	if res.PricingSummary.Stats == nil {
		t.Fatal("expected pricing stats without generator")
	}
}

func TestNewAnalyzerRequiresSource(t *testing.T) {
	if _, err := NewAnalyzer(AnalyzerConfig{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestAnalyseDedupesAcrossKeywords(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`["web", "database"]`, `{}`}}
	src := &fakeSource{byQuery: map[string][]Record{
		"web":      {{"tender_no": "1", "awarded_amt": 5000.0}, {"tender_no": "1", "awarded_amt": 9999.0}},
		"database": {{"tender_no": "2", "awarded_amt": 3000.0}},
	}}
	a, _ := newTestAnalyzer(t, gen, src)
	res := a.Analyse(context.Background(), softwareRequest())
	if len(res.SimilarRecords) != 2 {
		t.Fatalf("expected 2 distinct records, got %d", len(res.SimilarRecords))
	}
	if len(src.queries) != 2 {
		t.Fatalf("expected both keywords searched, got %v", src.queries)
	}
}

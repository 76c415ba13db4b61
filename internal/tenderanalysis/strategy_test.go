package tenderanalysis

import (
	"strings"
	"testing"
)

func sampleSummary() PricingSummary {
	return PricingSummary{
		TotalRecords:   3,
		UsableRecords:  2,
		Awards:         []float64{900000, 1100000},
		Ratios:         []float64{0.9, 1.1},
		Stats:          &PricingStats{MeanAward: 1000000, MeanRatio: 1.0, MinRatio: 0.9, MaxRatio: 1.1},
		TargetEstimate: "1000000 SGD",
	}
}

func TestBuildStrategyPromptShortCircuitsWithoutStats(t *testing.T) {
	prompt, rec := BuildStrategyPrompt(PricingSummary{}, "ctx")
	if prompt != "" || rec == nil {
		t.Fatalf("expected short circuit, prompt=%q rec=%v", prompt, rec)
	}
	if rec.Error != ErrInsufficientPricing {
		t.Fatalf("unexpected error %q", rec.Error)
	}
}

func TestBuildStrategyPromptRejectsInvalidEstimate(t *testing.T) {
	summary := sampleSummary()
	summary.TargetEstimate = "TBD"
	summary.EstimateInvalid = true
	prompt, rec := BuildStrategyPrompt(summary, "ctx")
	if prompt != "" || rec == nil {
		t.Fatalf("expected short circuit, prompt=%q rec=%v", prompt, rec)
	}
	if rec.Error != `invalid estimated value: "TBD"` {
		t.Fatalf("unexpected error %q", rec.Error)
	}
}

func TestBuildStrategyPromptEmbedsStats(t *testing.T) {
	prompt, rec := BuildStrategyPrompt(sampleSummary(), "Title: Software Development")
	if rec != nil {
		t.Fatalf("unexpected short circuit %+v", rec)
	}
	for _, want := range []string{"Title: Software Development", "Total analyzed awards: 3", "Awards with valid pricing: 2", "1000000.00", "100.00%", "90.00%", "110.00%", "bid_range_min_pct"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestParseStrategyResponseFenced(t *testing.T) {
	raw := "Here you go:\n```json\n{\"bid_range_min_pct\": 0.88, \"bid_range_max_pct\": \"0.95\", \"risk_level\": \"medium\", \"confidence_level\": \"High\", \"reasoning\": \"Awards cluster {tightly} near estimate\"}\n```\nGood luck."
	rec := ParseStrategyResponse(raw)
	if rec.Failed() {
		t.Fatalf("unexpected error %q", rec.Error)
	}
	if rec.MinPct != 0.88 || rec.MaxPct != 0.95 {
		t.Fatalf("unexpected pcts %+v", rec)
	}
	if rec.RiskLevel != LevelMedium || rec.ConfidenceLevel != LevelHigh {
		t.Fatalf("unexpected levels %+v", rec)
	}
	if rec.Reasoning != "Awards cluster {tightly} near estimate" {
		t.Fatalf("unexpected reasoning %q", rec.Reasoning)
	}
}

func TestParseStrategyResponseNoObject(t *testing.T) {
	rec := ParseStrategyResponse("I cannot help with that.")
	if !rec.Failed() {
		t.Fatal("expected error recommendation")
	}
	if rec.MinPct != 0 || rec.MaxPct != 0 || rec.RiskLevel != "" || rec.Reasoning != "" {
		t.Fatalf("expected no partial fields, got %+v", rec)
	}
}

func TestParseStrategyResponseInvalidJSON(t *testing.T) {
	rec := ParseStrategyResponse(`{"bid_range_min_pct": 0.9, "bid_range_max_pct": }`)
	if !rec.Failed() || rec.MinPct != 0 {
		t.Fatalf("expected clean error recommendation, got %+v", rec)
	}
}

func TestParseStrategyResponseCoercion(t *testing.T) {
	rec := ParseStrategyResponse(`{"bid_range_min_pct": "92%", "bid_range_max_pct": "about right", "risk_level": "Extreme"}`)
	if rec.Failed() {
		t.Fatalf("unexpected error %q", rec.Error)
	}
	if !approx(rec.MinPct, 0.92) || rec.MaxPct != 0 {
		t.Fatalf("unexpected pcts %+v", rec)
	}
	if rec.RiskLevel != LevelUnknown || rec.RiskLevel.Valid() {
		t.Fatalf("expected unrecognised level to become Unknown, got %q", rec.RiskLevel)
	}
	if rec.ConfidenceLevel != LevelUnknown {
		t.Fatalf("expected missing level to be Unknown, got %q", rec.ConfidenceLevel)
	}
}

func TestApplyEstimate(t *testing.T) {
	rec := BidRecommendation{MinPct: 0.9, MaxPct: 0.95}
	got := ApplyEstimate(rec, AmountOf(1000000))
	if got.MinAmount == nil || got.MaxAmount == nil || !approx(*got.MinAmount, 900000) || !approx(*got.MaxAmount, 950000) {
		t.Fatalf("unexpected amounts %+v", got)
	}
	if zero := ApplyEstimate(BidRecommendation{MinPct: 0.9}, AmountOf(1000000)); zero.MinAmount != nil || zero.MaxAmount != nil {
		t.Fatalf("expected no amounts with zero pct, got %+v", zero)
	}
	if absent := ApplyEstimate(rec, Absent); absent.MinAmount != nil {
		t.Fatalf("expected no amounts without estimate, got %+v", absent)
	}
}

func TestFirstBalancedSpanSkipsUnbalancedPrefix(t *testing.T) {
	span, ok := firstBalancedSpan(`note { unclosed "}" and then {"a": "}"}`, '{', '}')
	if !ok {
		t.Fatal("expected span")
	}
	if span != `{"a": "}"}` {
		t.Fatalf("unexpected span %q", span)
	}
}

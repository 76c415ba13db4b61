package tenderanalysis

import (
	"strings"
	"time"
)

const Disclaimer = "This is an automated bid-pricing estimate derived from historical public awards. " +
	"It is not financial advice; verify the figures against the tender documents before bidding."

const (
	DefaultEstimatedValue    = "1000000 SGD"
	DefaultTitle             = "Untitled Tender"
	DefaultTargetRecords     = 20
	DefaultMinPlausibleAward = 1000
	MaxKeywords              = 12
	FallbackKeywordLimit     = 10
	ErrInsufficientPricing   = "insufficient pricing data"
)

const (
	StageKeywords = "keywords"
	StageSearch   = "search"
	StagePricing  = "pricing"
	StageStrategy = "strategy"
)

type TenderRequest struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	EstimatedValue string `json:"estimated_value"`
}

// Context is the tender summary handed to the strategy prompt.
func (r TenderRequest) Context() string {
	return "Title: " + r.Title + "\nDescription: " + r.Description + "\nOur estimate: " + r.EstimatedValue
}

// WithDefaults fills a blank title or estimate with the conventional defaults.
func (r TenderRequest) WithDefaults() TenderRequest {
	if strings.TrimSpace(r.Title) == "" {
		r.Title = DefaultTitle
	}
	if strings.TrimSpace(r.EstimatedValue) == "" {
		r.EstimatedValue = DefaultEstimatedValue
	}
	return r
}

type Level string

const (
	LevelLow     Level = "Low"
	LevelMedium  Level = "Medium"
	LevelHigh    Level = "High"
	LevelUnknown Level = "Unknown"
)

func (l Level) Valid() bool {
	return l == LevelLow || l == LevelMedium || l == LevelHigh
}

// parseLevel maps a generated level onto Low, Medium or High. Anything else,
// including a missing value, becomes LevelUnknown.
func parseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return LevelLow
	case "medium", "moderate":
		return LevelMedium
	case "high":
		return LevelHigh
	default:
		return LevelUnknown
	}
}

type PricingStats struct {
	MeanAward float64 `json:"avg_awarded"`
	MeanRatio float64 `json:"avg_ratio"`
	MinRatio  float64 `json:"min_ratio"`
	MaxRatio  float64 `json:"max_ratio"`
}

type PricingSummary struct {
	TotalRecords   int           `json:"total"`
	UsableRecords  int           `json:"with_price"`
	Awards         []float64     `json:"awards"`
	Ratios         []float64     `json:"ratios"`
	Stats          *PricingStats `json:"stats,omitempty"`
	TargetEstimate string        `json:"target_estimate"`
	// EstimateInvalid is set when TargetEstimate holds no usable amount; no
	// ratios are computed then.
	EstimateInvalid bool `json:"estimate_invalid,omitempty"`
}

// InsufficientData reports whether no statistics could be computed.
func (p PricingSummary) InsufficientData() bool { return p.Stats == nil }

type BidRecommendation struct {
	Error           string   `json:"error,omitempty"`
	MinPct          float64  `json:"bid_range_min_pct"`
	MaxPct          float64  `json:"bid_range_max_pct"`
	MinAmount       *float64 `json:"bid_range_min_amt,omitempty"`
	MaxAmount       *float64 `json:"bid_range_max_amt,omitempty"`
	RiskLevel       Level    `json:"risk_level,omitempty"`
	ConfidenceLevel Level    `json:"confidence_level,omitempty"`
	Reasoning       string   `json:"reasoning,omitempty"`
}

func errorRecommendation(msg string) BidRecommendation {
	return BidRecommendation{Error: msg}
}

func (b BidRecommendation) Failed() bool { return b.Error != "" }

// AnalysisMetadata records how an analysis ran. EstimateDefaulted is set by
// callers that substituted DefaultEstimatedValue before analysing.
type AnalysisMetadata struct {
	StagesExecuted    []string          `json:"stages_executed"`
	KeywordsFallback  bool              `json:"keywords_fallback"`
	KeywordsError     string            `json:"keywords_error,omitempty"`
	EstimateDefaulted bool              `json:"estimate_defaulted"`
	SearchErrors      map[string]string `json:"search_errors,omitempty"`
	StrategySkipped   bool              `json:"strategy_skipped"`
	Model             string            `json:"model"`
	StartedAt         time.Time         `json:"started_at"`
	CompletedAt       time.Time         `json:"completed_at"`
	DurationMS        int64             `json:"duration_ms"`
}

type AnalysisResult struct {
	ID             string            `json:"id"`
	Request        TenderRequest     `json:"-"`
	Keywords       []string          `json:"keywords"`
	SimilarRecords []Record          `json:"similar_tenders"`
	PricingSummary PricingSummary    `json:"pricing_analysis"`
	Recommendation BidRecommendation `json:"bid_recommendation"`
	Metadata       AnalysisMetadata  `json:"metadata"`
}

type StageProgressFn func(stage, message string)

type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

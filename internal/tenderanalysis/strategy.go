package tenderanalysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// BuildStrategyPrompt formats the pricing summary and tender context into the
// bid-range request. With an invalid estimate or no statistics it returns the
// error recommendation instead of a prompt, and the generator must not be called.
func BuildStrategyPrompt(summary PricingSummary, tenderContext string) (string, *BidRecommendation) {
	if summary.EstimateInvalid {
		rec := errorRecommendation(fmt.Sprintf("invalid estimated value: %q", summary.TargetEstimate))
		return "", &rec
	}
	if summary.Stats == nil {
		rec := errorRecommendation(ErrInsufficientPricing)
		return "", &rec
	}
	p := summary.Stats
	var b strings.Builder
	b.WriteString("Return valid JSON only. No markdown fences, no commentary.\n\n")
	b.WriteString(`Using the tender context and historical pricing below, recommend an optimal
numeric bid range (minimum and maximum) as fractions of our estimated tender value.

`)
	b.WriteString(tenderContext)
	b.WriteString("\n\nPRICING SUMMARY:\n")
	fmt.Fprintf(&b, "- Total analyzed awards: %d\n", summary.TotalRecords)
	fmt.Fprintf(&b, "- Awards with valid pricing: %d\n", summary.UsableRecords)
	fmt.Fprintf(&b, "- Average awarded amount: %.2f\n", p.MeanAward)
	fmt.Fprintf(&b, "- Average bid-to-estimate ratio: %.2f%%\n", p.MeanRatio*100)
	fmt.Fprintf(&b, "- Minimum ratio: %.2f%%, Maximum ratio: %.2f%%\n\n", p.MinRatio*100, p.MaxRatio*100)
	b.WriteString(`Respond with a single JSON object in exactly this shape:
{
  "bid_range_min_pct": decimal,
  "bid_range_max_pct": decimal,
  "risk_level": "Low" | "Medium" | "High",
  "confidence_level": "Low" | "Medium" | "High",
  "reasoning": "Brief reasoning"
}
Percentages are decimals relative to our estimate, e.g. 0.92 for 92%.`)
	return b.String(), nil
}

// ParseStrategyResponse extracts the first JSON object from a free-text reply.
// Any failure yields an error recommendation with no other fields set.
func ParseStrategyResponse(raw string) BidRecommendation {
	span, ok := firstBalancedSpan(stripCodeFences(raw), '{', '}')
	if !ok {
		return errorRecommendation(ErrNoJSONObject.Error())
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(span), &fields); err != nil {
		return errorRecommendation(fmt.Sprintf("parse strategy response: %v", err))
	}
	return BidRecommendation{
		MinPct:          coercePct(fields["bid_range_min_pct"]),
		MaxPct:          coercePct(fields["bid_range_max_pct"]),
		RiskLevel:       parseLevel(str(fields["risk_level"])),
		ConfidenceLevel: parseLevel(str(fields["confidence_level"])),
		Reasoning:       strings.TrimSpace(str(fields["reasoning"])),
	}
}

// ApplyEstimate derives absolute amounts when the estimate is known and both
// percentages are non-zero. Otherwise the amounts stay unset.
func ApplyEstimate(rec BidRecommendation, estimate Amount) BidRecommendation {
	rec.MinAmount, rec.MaxAmount = nil, nil
	if rec.Failed() || !estimate.Present() || rec.MinPct == 0 || rec.MaxPct == 0 {
		return rec
	}
	lo := estimate.Value() * rec.MinPct
	hi := estimate.Value() * rec.MaxPct
	rec.MinAmount = &lo
	rec.MaxAmount = &hi
	return rec
}

func coercePct(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		s := strings.TrimSpace(t)
		scale := decimal.NewFromInt(1)
		if strings.HasSuffix(s, "%") {
			s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
			scale = decimal.NewFromInt(100)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return 0
		}
		f, _ := d.Div(scale).Float64()
		return f
	default:
		return 0
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

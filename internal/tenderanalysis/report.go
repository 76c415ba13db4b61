package tenderanalysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	reportMaxAwards      = 15
	reportMaxDescription = 75
)

// ReportOptions tells the report how the similar records were read. Use the
// layout and normalizer the analysis ran with so award amounts agree.
type ReportOptions struct {
	Fields     RecordFields
	Normalizer *Normalizer
}

func (o ReportOptions) withDefaults() ReportOptions {
	o.Fields = o.Fields.withDefaults()
	if o.Normalizer == nil {
		o.Normalizer = defaultNormalizer
	}
	return o
}

// BuildReportMarkdown renders a finished analysis for people.
func BuildReportMarkdown(result AnalysisResult, opts ReportOptions) string {
	opts = opts.withDefaults()
	var b strings.Builder
	buildHeader(&b, result)
	buildKeywords(&b, result)
	buildAwards(&b, result, opts)
	buildPricing(&b, result.PricingSummary)
	buildRecommendation(&b, result.Recommendation)
	buildMetadata(&b, result)
	return b.String()
}

func buildHeader(b *strings.Builder, result AnalysisResult) {
	fmt.Fprintf(b, "# Tender Bid Analysis\n\n")
	fmt.Fprintf(b, "- Tender: %s\n", safe(result.Request.Title))
	fmt.Fprintf(b, "- Our estimate: %s\n", safe(result.Request.EstimatedValue))
	fmt.Fprintf(b, "- Analysis ID: %s\n", safe(result.ID))
	date := result.Metadata.CompletedAt
	if date.IsZero() {
		date = time.Now()
	}
	fmt.Fprintf(b, "- Date: %s\n\n", date.Format(time.RFC3339))
	fmt.Fprintf(b, "%s\n\n", Disclaimer)
}

func buildKeywords(b *strings.Builder, result AnalysisResult) {
	fmt.Fprintf(b, "## Search Keywords\n\n")
	if len(result.Keywords) == 0 {
		b.WriteString("No keywords could be derived.\n\n")
		return
	}
	quoted := make([]string, 0, len(result.Keywords))
	for _, kw := range result.Keywords {
		quoted = append(quoted, "`"+kw+"`")
	}
	b.WriteString(strings.Join(quoted, ", "))
	if result.Metadata.KeywordsFallback {
		b.WriteString("\n\n_Keywords were extracted locally because generation failed._")
	}
	b.WriteString("\n\n")
}

func buildAwards(b *strings.Builder, result AnalysisResult, opts ReportOptions) {
	fields := opts.Fields
	fmt.Fprintf(b, "## Similar Awards (%d found)\n\n", len(result.SimilarRecords))
	if len(result.SimilarRecords) == 0 {
		b.WriteString("No similar awards were found.\n\n")
		return
	}
	b.WriteString("| Tender | Awarded | Agency | Description |\n")
	b.WriteString("|---|---:|---|---|\n")
	for i, rec := range result.SimilarRecords {
		if i == reportMaxAwards {
			break
		}
		price := "n/a"
		if amt := opts.Normalizer.Normalize(fields.PriceValue(rec)); amt.Present() {
			price = formatMoney(amt.Value())
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n",
			cell(fields.ID(rec)), price, cell(fields.AgencyText(rec)), cell(clampString(fields.DescriptionText(rec), reportMaxDescription)))
	}
	if extra := len(result.SimilarRecords) - reportMaxAwards; extra > 0 {
		fmt.Fprintf(b, "\n_%d more awards not shown._\n", extra)
	}
	b.WriteString("\n")
}

func buildPricing(b *strings.Builder, p PricingSummary) {
	fmt.Fprintf(b, "## Pricing Analysis\n\n")
	fmt.Fprintf(b, "- Awards analysed: %d\n", p.TotalRecords)
	fmt.Fprintf(b, "- Awards with usable pricing: %d\n", p.UsableRecords)
	if p.EstimateInvalid {
		fmt.Fprintf(b, "\nOur estimate %q is not a usable amount, so no ratios were computed.\n\n", p.TargetEstimate)
		return
	}
	if p.Stats == nil {
		b.WriteString("\nNot enough pricing data to compute statistics.\n\n")
		return
	}
	fmt.Fprintf(b, "- Average award: %s\n", formatMoney(p.Stats.MeanAward))
	fmt.Fprintf(b, "- Average award-to-estimate ratio: %s\n", formatPct(p.Stats.MeanRatio))
	fmt.Fprintf(b, "- Ratio range: %s to %s\n\n", formatPct(p.Stats.MinRatio), formatPct(p.Stats.MaxRatio))
}

func buildRecommendation(b *strings.Builder, rec BidRecommendation) {
	fmt.Fprintf(b, "## Bid Recommendation\n\n")
	if rec.Failed() {
		fmt.Fprintf(b, "**No recommendation:** %s\n\n", rec.Error)
		return
	}
	fmt.Fprintf(b, "- Bid range: %s to %s of estimate\n", formatPct(rec.MinPct), formatPct(rec.MaxPct))
	if rec.MinAmount != nil && rec.MaxAmount != nil {
		fmt.Fprintf(b, "- Bid amount: %s to %s\n", formatMoney(*rec.MinAmount), formatMoney(*rec.MaxAmount))
	}
	fmt.Fprintf(b, "- Risk level: %s\n", levelText(rec.RiskLevel))
	fmt.Fprintf(b, "- Confidence: %s\n\n", levelText(rec.ConfidenceLevel))
	if rec.Reasoning != "" {
		fmt.Fprintf(b, "%s\n\n", rec.Reasoning)
	}
}

func buildMetadata(b *strings.Builder, result AnalysisResult) {
	m := result.Metadata
	fmt.Fprintf(b, "## Run Metadata\n\n")
	fmt.Fprintf(b, "- Model: %s\n", safe(m.Model))
	fmt.Fprintf(b, "- Stages: %s\n", strings.Join(m.StagesExecuted, ", "))
	if len(m.SearchErrors) > 0 {
		fmt.Fprintf(b, "- Failed keyword searches: %d\n", len(m.SearchErrors))
	}
	fmt.Fprintf(b, "- Duration: %dms\n", m.DurationMS)
}

func formatMoney(v float64) string { return humanize.CommafWithDigits(v, 2) }

func formatPct(ratio float64) string { return fmt.Sprintf("%.1f%%", ratio*100) }

func safe(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

func levelText(l Level) string {
	if !l.Valid() {
		return string(LevelUnknown)
	}
	return string(l)
}

func cell(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "|", "/")
	s = strings.ReplaceAll(s, "\n", " ")
	if s == "" {
		return "-"
	}
	return s
}

func clampString(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}

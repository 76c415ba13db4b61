package tenderanalysis

import (
	"errors"
	"log"
)

var ErrEmptySample = errors.New("empty sample")

type AggregateOptions struct {
	Fields RecordFields
	// MinPlausibleAward rejects prices below it as mis-parsed fragments.
	MinPlausibleAward float64
	Normalizer        *Normalizer
}

func (o AggregateOptions) withDefaults() AggregateOptions {
	o.Fields = o.Fields.withDefaults()
	if o.MinPlausibleAward <= 0 {
		o.MinPlausibleAward = DefaultMinPlausibleAward
	}
	if o.Normalizer == nil {
		o.Normalizer = defaultNormalizer
	}
	return o
}

// Aggregate computes award/estimate ratios over the records with a usable price.
// Stats stays nil when the estimate is absent or no record is usable; an absent
// estimate also sets EstimateInvalid.
func Aggregate(records []Record, estimate string, opts AggregateOptions) PricingSummary {
	opts = opts.withDefaults()
	out := PricingSummary{
		TotalRecords:   len(records),
		Awards:         []float64{},
		Ratios:         []float64{},
		TargetEstimate: estimate,
	}
	est := opts.Normalizer.Normalize(TextValue(estimate))
	if !est.Present() {
		log.Printf("tender-advisor pricing_invalid_estimate estimate=%q", estimate)
		out.EstimateInvalid = true
		return out
	}

	for i, rec := range records {
		price := opts.Normalizer.Normalize(opts.Fields.PriceValue(rec))
		if !price.Present() || price.Value() < opts.MinPlausibleAward {
			log.Printf("tender-advisor pricing_skip index=%d id=%q", i, opts.Fields.ID(rec))
			continue
		}
		out.Awards = append(out.Awards, price.Value())
		out.Ratios = append(out.Ratios, price.Value()/est.Value())
	}
	out.UsableRecords = len(out.Awards)

	stats, err := summarize(out.Awards, out.Ratios)
	if err != nil {
		log.Printf("tender-advisor pricing_insufficient usable=%d total=%d", out.UsableRecords, out.TotalRecords)
		return out
	}
	out.Stats = &stats
	return out
}

func summarize(awards, ratios []float64) (PricingStats, error) {
	meanAward, err := mean(awards)
	if err != nil {
		return PricingStats{}, err
	}
	meanRatio, err := mean(ratios)
	if err != nil {
		return PricingStats{}, err
	}
	lo, hi, err := minMax(ratios)
	if err != nil {
		return PricingStats{}, err
	}
	return PricingStats{MeanAward: meanAward, MeanRatio: meanRatio, MinRatio: lo, MaxRatio: hi}, nil
}

func mean(xs []float64) (float64, error) {
	if len(xs) == 0 {
		return 0, ErrEmptySample
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs)), nil
}

func minMax(xs []float64) (float64, float64, error) {
	if len(xs) == 0 {
		return 0, 0, ErrEmptySample
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi, nil
}

package tenderanalysis

import (
	"context"
	"log"
	"strings"
)

// FetchFunc returns the records one keyword matches. Pagination and transport
// live behind it.
type FetchFunc func(ctx context.Context, keyword string) ([]Record, error)

type CollectResult struct {
	Records []Record
	// Errors maps a failed keyword to its error message.
	Errors map[string]string
}

type Collector struct {
	fields RecordFields
}

func NewCollector(fields RecordFields) *Collector {
	return &Collector{fields: fields.withDefaults()}
}

// Collect gathers records across keywords in order, skipping identity keys it has
// already seen, and stops once target records are held. Records with no identity
// key are always kept since duplicates among them cannot be detected.
func (c *Collector) Collect(ctx context.Context, keywords []string, fetch FetchFunc, target int) CollectResult {
	out := CollectResult{Records: []Record{}}
	if target <= 0 {
		return out
	}
	seen := map[string]struct{}{}
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			log.Printf("tender-advisor collect_cancelled keyword=%q collected=%d err=%v", kw, len(out.Records), err)
			return out
		}
		records, err := fetch(ctx, kw)
		if err != nil {
			log.Printf("tender-advisor collect_keyword_failed keyword=%q err=%q", kw, err.Error())
			if out.Errors == nil {
				out.Errors = map[string]string{}
			}
			out.Errors[kw] = err.Error()
			continue
		}
		for _, rec := range records {
			id := c.fields.ID(rec)
			if id != "" {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
			}
			out.Records = append(out.Records, rec)
			if len(out.Records) >= target {
				return out
			}
		}
	}
	return out
}

package tenderanalysis

import (
	"fmt"
	"strings"
)

// Record is one historical award as returned by a dataset. Fields pass through
// untouched; RecordFields names the few that the analysis reads.
type Record map[string]any

// RecordFields maps semantic fields onto dataset column names.
type RecordFields struct {
	PrimaryID   string
	FallbackID  string
	Price       string
	Description []string
	Agency      string
	Supplier    string
}

// GeBIZFields matches the data.gov.sg "Government Procurement via GeBIZ" dataset.
var GeBIZFields = RecordFields{
	PrimaryID:   "tender_no",
	FallbackID:  "ref_no",
	Price:       "awarded_amt",
	Description: []string{"tender_description", "description"},
	Agency:      "agency",
	Supplier:    "supplier_name",
}

// TEDFields matches TED v3 notice search results.
var TEDFields = RecordFields{
	PrimaryID:   "publication-number",
	FallbackID:  "notice-identifier",
	Price:       "BT-711-LotResult",
	Description: []string{"TI", "description-lot"},
	Agency:      "buyer-name",
	Supplier:    "winner-name",
}

func (f RecordFields) withDefaults() RecordFields {
	if f.PrimaryID == "" && f.FallbackID == "" {
		f.PrimaryID, f.FallbackID = GeBIZFields.PrimaryID, GeBIZFields.FallbackID
	}
	if f.Price == "" {
		f.Price = GeBIZFields.Price
	}
	if len(f.Description) == 0 {
		f.Description = GeBIZFields.Description
	}
	return f
}

// ID returns the identity key, falling back to the secondary id field.
func (f RecordFields) ID(r Record) string {
	for _, key := range []string{f.PrimaryID, f.FallbackID} {
		if key == "" {
			continue
		}
		if id := textOf(r[key]); id != "" {
			return id
		}
	}
	return ""
}

func (f RecordFields) PriceValue(r Record) Value { return ValueOf(r[f.Price]) }

func (f RecordFields) DescriptionText(r Record) string {
	for _, key := range f.Description {
		if d := textOf(r[key]); d != "" {
			return d
		}
	}
	return ""
}

func (f RecordFields) AgencyText(r Record) string   { return textOf(r[f.Agency]) }
func (f RecordFields) SupplierText(r Record) string { return textOf(r[f.Supplier]) }

// textOf flattens strings, numbers, lists and language maps into one line.
func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprint(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := textOf(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		if s := textOf(t["eng"]); s != "" {
			return s
		}
		for _, inner := range t {
			if s := textOf(inner); s != "" {
				return s
			}
		}
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

package tenderanalysis

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

type valueKind int

const (
	kindAbsent valueKind = iota
	kindNumber
	kindText
)

// Value is a raw price or estimate as it arrives from a dataset or a caller.
type Value struct {
	kind valueKind
	num  float64
	text string
}

func NumberValue(f float64) Value { return Value{kind: kindNumber, num: f} }
func TextValue(s string) Value    { return Value{kind: kindText, text: s} }
func AbsentValue() Value          { return Value{kind: kindAbsent} }

// ValueOf classifies a decoded JSON value. Lists collapse to their first element
// and language/amount maps collapse to their most useful entry.
func ValueOf(v any) Value {
	switch t := v.(type) {
	case nil:
		return AbsentValue()
	case Value:
		return t
	case float64:
		return NumberValue(t)
	case float32:
		return NumberValue(float64(t))
	case int:
		return NumberValue(float64(t))
	case int64:
		return NumberValue(float64(t))
	case int32:
		return NumberValue(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return TextValue(t.String())
		}
		return NumberValue(f)
	case decimal.Decimal:
		f, _ := t.Float64()
		return NumberValue(f)
	case string:
		return TextValue(t)
	case []any:
		if len(t) == 0 {
			return AbsentValue()
		}
		return ValueOf(t[0])
	case map[string]any:
		for _, key := range []string{"eng", "value", "amount", "text"} {
			if inner, ok := t[key]; ok {
				return ValueOf(inner)
			}
		}
		if len(t) == 1 {
			for _, inner := range t {
				return ValueOf(inner)
			}
		}
		return AbsentValue()
	default:
		return TextValue(fmt.Sprint(t))
	}
}

// Amount is a strictly positive price, or absent.
type Amount struct {
	value float64
	ok    bool
}

var Absent = Amount{}

func AmountOf(f float64) Amount {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return Absent
	}
	return Amount{value: f, ok: true}
}

func (a Amount) Present() bool  { return a.ok }
func (a Amount) Value() float64 { return a.value }

func (a Amount) String() string {
	if !a.ok {
		return "absent"
	}
	return decimal.NewFromFloat(a.value).String()
}

type Normalizer struct {
	CurrencyCodes []string
}

var defaultNormalizer = &Normalizer{CurrencyCodes: []string{"SGD"}}

func NewNormalizer(currencyCodes []string) *Normalizer {
	codes := make([]string, 0, len(currencyCodes))
	for _, c := range currencyCodes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			codes = append(codes, c)
		}
	}
	if len(codes) == 0 {
		return defaultNormalizer
	}
	return &Normalizer{CurrencyCodes: codes}
}

// Normalize uses the default SGD normalizer.
func Normalize(v Value) Amount { return defaultNormalizer.Normalize(v) }

func (n *Normalizer) Normalize(v Value) Amount {
	switch v.kind {
	case kindNumber:
		return AmountOf(v.num)
	case kindText:
		return n.parseText(v.text)
	default:
		return Absent
	}
}

func (n *Normalizer) NormalizeAny(v any) Amount { return n.Normalize(ValueOf(v)) }

func (n *Normalizer) parseText(s string) Amount {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
	if s == "" {
		return Absent
	}
	upper := strings.ToUpper(s)
	for _, code := range n.CurrencyCodes {
		upper = strings.ReplaceAll(upper, code, "")
	}
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == '.' {
			return r
		}
		return -1
	}, upper)
	if cleaned == "" {
		return Absent
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return Absent
	}
	if d.Sign() <= 0 {
		return Absent
	}
	f, _ := d.Float64()
	return AmountOf(f)
}

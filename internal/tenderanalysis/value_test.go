package tenderanalysis

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeTextAmountsAgree(t *testing.T) {
	for _, in := range []string{"1,234.50 SGD", "SGD 1234.5", " 1234.50 ", "SGD 1,234.50"} {
		got := Normalize(TextValue(in))
		if !got.Present() || got.Value() != 1234.5 {
			t.Fatalf("Normalize(%q) = %v, want 1234.5", in, got)
		}
	}
}

func TestNormalizeAbsentInputs(t *testing.T) {
	cases := map[string]Value{
		"nil":        ValueOf(nil),
		"empty":      TextValue(""),
		"n/a":        TextValue("N/A"),
		"zero text":  TextValue("0"),
		"zero":       NumberValue(0),
		"negative":   NumberValue(-5),
		"empty list": ValueOf([]any{}),
		"dots":       TextValue("..."),
	}
	for name, v := range cases {
		if got := Normalize(v); got.Present() {
			t.Fatalf("%s: expected absent, got %v", name, got)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	first := Normalize(TextValue("SGD 98,765.43"))
	if !first.Present() {
		t.Fatal("expected amount")
	}
	second := Normalize(NumberValue(first.Value()))
	if second != first {
		t.Fatalf("expected %v, got %v", first, second)
	}
	third := Normalize(TextValue(first.String()))
	if third != first {
		t.Fatalf("expected %v after text round trip, got %v", first, third)
	}
}

func TestValueOfDecodedShapes(t *testing.T) {
	var decoded map[string]any
	if err := json.Unmarshal([]byte(`{"a":1500,"b":"2,000","c":["3000","x"],"d":{"eng":"4000 EUR"},"e":{"value":5000}}`), &decoded); err != nil {
		t.Fatal(err)
	}
	n := NewNormalizer([]string{"sgd", "eur"})
	want := map[string]float64{"a": 1500, "b": 2000, "c": 3000, "d": 4000, "e": 5000}
	for key, w := range want {
		got := n.NormalizeAny(decoded[key])
		if !got.Present() || got.Value() != w {
			t.Fatalf("%s: expected %v, got %v", key, w, got)
		}
	}
	if got := n.NormalizeAny(decimal.RequireFromString("12.5")); got.Value() != 12.5 {
		t.Fatalf("expected decimal to normalize, got %v", got)
	}
	if got := n.NormalizeAny(json.Number("77")); got.Value() != 77 {
		t.Fatalf("expected json.Number to normalize, got %v", got)
	}
}

func TestNewNormalizerFallsBackToDefault(t *testing.T) {
	if n := NewNormalizer([]string{" ", ""}); n != defaultNormalizer {
		t.Fatal("expected default normalizer for blank codes")
	}
}

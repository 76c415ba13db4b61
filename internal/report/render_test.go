package report

import (
	"strings"
	"testing"
	"time"
)

func TestHTMLRendersTablesAndMeta(t *testing.T) {
	md := "# Tender Bid Analysis\n\n| Tender | Awarded |\n|---|---:|\n| GOV1 | 900,000 |\n\n## Bid Recommendation\n\n- Bid range: 92.0% to 98.0%\n"
	out, err := HTML(md, Meta{Title: "Web <Portal>", AnalysisID: "a1", Badge: "Bid 92-98%", CompletedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"<table>", "<td>GOV1</td>", "Web &lt;Portal&gt;", "<strong>Reference:</strong> a1", "report-badge", `data-highlight="true">Bid Recommendation</h2>`} {
		if !strings.Contains(out, want) {
			t.Fatalf("html missing %q:\n%s", want, out)
		}
	}
}

func TestApplyPrintLayoutHooksBreaksBeforeMetadata(t *testing.T) {
	in := "<h2>Pricing Analysis</h2><p>x</p><h2>Run Metadata</h2><p>y</p>"
	out := applyPrintLayoutHooks(in)
	if !strings.Contains(out, `<h2 data-page-break-before="true">Run Metadata</h2>`) {
		t.Fatalf("expected page break injection, got: %s", out)
	}
}

func TestApplyPrintLayoutHooksNoopWhenHeadingsMissing(t *testing.T) {
	in := "<h2>Pricing Analysis</h2><p>x</p>"
	if out := applyPrintLayoutHooks(in); out != in {
		t.Fatalf("expected no change, got: %s", out)
	}
}

func TestHTMLDefaultTitle(t *testing.T) {
	out, err := HTML("body", Meta{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "<title>Tender Bid Analysis</title>") {
		t.Fatalf("expected default title, got %s", out)
	}
}

func TestA4PrintParams(t *testing.T) {
	p := a4PrintParams()
	if p.PaperWidth != 8.27 || p.PaperHeight != 11.69 {
		t.Fatalf("expected A4 paper, got %vx%v", p.PaperWidth, p.PaperHeight)
	}
	if !p.DisplayHeaderFooter || !strings.Contains(p.FooterTemplate, "pageNumber") {
		t.Fatalf("expected page counter footer, got %+v", p)
	}
}

func TestNewChromiumPDFRendererKeepsExplicitPath(t *testing.T) {
	r := NewChromiumPDFRenderer("/opt/chrome/chrome")
	if r.chromePath != "/opt/chrome/chrome" || r.timeout <= 0 {
		t.Fatalf("unexpected renderer %+v", r)
	}
}

package report

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Meta is shown in the document header above the markdown body.
type Meta struct {
	Title      string
	AnalysisID string
	// Badge is a short highlight such as the recommended bid range.
	Badge       string
	CompletedAt time.Time
}

const styleCSS = `
:root{--ink:#1c1917;--muted:#57534e;--accent:#0f766e;--rule:#d6d3d1;}
body{font-family:"Helvetica Neue",Arial,sans-serif;color:var(--ink);background:#fff;margin:0;padding:0.6rem;line-height:1.45;}
.report-wrap{max-width:960px;margin:0 auto;}
.report-header{border-bottom:3px solid var(--accent);padding-bottom:0.5rem;margin-bottom:1rem;}
.report-meta{color:var(--muted);font-size:0.85rem;}
.report-meta strong{color:var(--ink);}
.report-badge{display:inline-block;margin-top:0.4rem;padding:0.15rem 0.5rem;border-radius:4px;background:#ccfbf1;color:#134e4a;border:1px solid #5eead4;font-weight:600;}
.report-html h1{font-size:1.5rem;margin:0.2rem 0 0.8rem;}
.report-html h2{font-size:1.15rem;border-bottom:1px solid var(--rule);padding-bottom:0.2rem;margin-top:1.4rem;}
.report-html h2[data-highlight="true"]{color:var(--accent);}
.report-html table{width:100%;border-collapse:collapse;font-size:0.8rem;}
.report-html th,.report-html td{border:1px solid var(--rule);padding:0.3rem 0.45rem;text-align:left;vertical-align:top;}
.report-html thead th{background:#f5f5f4;}
.report-html code{background:#f5f5f4;padding:0 0.2rem;border-radius:3px;}
h2[data-page-break-before="true"]{break-before:page;page-break-before:always;}
@media print{@page{size:auto;margin:12mm;} body{padding:0;} .report-wrap{max-width:none;}}
`

var (
	reRecommendationHeading = regexp.MustCompile(`(?i)<h2([^>]*)>\s*(Bid Recommendation)\s*</h2>`)
	reMetadataHeading       = regexp.MustCompile(`(?i)<h2([^>]*)>\s*(Run Metadata)\s*</h2>`)
)

// HTML renders markdown (GitHub flavoured) into a standalone document.
func HTML(markdown string, meta Meta) (string, error) {
	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = "Tender Bid Analysis"
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>" + html.EscapeString(title) + "</title>" +
		"<style>" + styleCSS + "</style></head><body>" +
		"<div class='report-wrap'><div class='report-header'>" +
		"<div class='report-meta'>" + buildMetaHTML(meta) + "</div>" +
		"</div><div class='report-html'>" + applyPrintLayoutHooks(content.String()) + "</div></div>" +
		"</body></html>", nil
}

func buildMetaHTML(meta Meta) string {
	var out strings.Builder
	if t := strings.TrimSpace(meta.Title); t != "" {
		out.WriteString("<div><strong>Tender:</strong> " + html.EscapeString(t) + "</div>")
	}
	if id := strings.TrimSpace(meta.AnalysisID); id != "" {
		out.WriteString("<div><strong>Reference:</strong> " + html.EscapeString(id) + "</div>")
	}
	if !meta.CompletedAt.IsZero() {
		out.WriteString("<div><strong>Date:</strong> " + html.EscapeString(meta.CompletedAt.In(time.Local).Format("January 2, 2006 at 3:04 PM MST")) + "</div>")
	}
	if b := strings.TrimSpace(meta.Badge); b != "" {
		out.WriteString("<span class='report-badge'>" + html.EscapeString(b) + "</span>")
	}
	return out.String()
}

func applyPrintLayoutHooks(contentHTML string) string {
	out := reRecommendationHeading.ReplaceAllString(contentHTML, `<h2$1 data-highlight="true">$2</h2>`)
	return reMetadataHeading.ReplaceAllString(out, `<h2$1 data-page-break-before="true">$2</h2>`)
}

type ChromiumPDFRenderer struct {
	chromePath string
	timeout    time.Duration
}

// NewChromiumPDFRenderer uses chromePath when set and otherwise looks for a
// Chromium install in the usual places.
func NewChromiumPDFRenderer(chromePath string) *ChromiumPDFRenderer {
	if strings.TrimSpace(chromePath) == "" {
		chromePath = detectChromePath()
	}
	return &ChromiumPDFRenderer{chromePath: chromePath, timeout: 30 * time.Second}
}

func (r *ChromiumPDFRenderer) Render(ctx context.Context, markdown string, meta Meta) ([]byte, error) {
	htmlDoc, err := HTML(markdown, meta)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var pdf []byte
	doc := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(htmlDoc))
	err = chromedp.Run(taskCtx,
		chromedp.Navigate(doc),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			out, _, err := a4PrintParams().Do(ctx)
			pdf = out
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	return pdf, nil
}

const pageFooter = `<div style="width:100%;text-align:center;font-size:9px;color:#666;">` +
	`Tender Bid Analysis &middot; page <span class="pageNumber"></span>/<span class="totalPages"></span></div>`

// a4PrintParams prints A4 portrait with inch margins and a page counter footer.
func a4PrintParams() *page.PrintToPDFParams {
	return page.PrintToPDF().
		WithPaperWidth(8.27).
		WithPaperHeight(11.69).
		WithMarginTop(0.5).
		WithMarginBottom(0.75).
		WithMarginLeft(0.45).
		WithMarginRight(0.45).
		WithPrintBackground(true).
		WithDisplayHeaderFooter(true).
		WithHeaderTemplate("<span></span>").
		WithFooterTemplate(pageFooter)
}

func detectChromePath() string {
	for _, p := range []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

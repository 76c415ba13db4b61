package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/joelkehle/tender-advisor/internal/intake"
	"github.com/joelkehle/tender-advisor/internal/report"
	"github.com/joelkehle/tender-advisor/internal/tenderanalysis"
)

const (
	defaultMaxBodyBytes   = 1 << 20
	defaultMaxUploadBytes = 10 << 20
	defaultRequestTimeout = 150 * time.Second
)

type Analyzer interface {
	Analyse(ctx context.Context, req tenderanalysis.TenderRequest) tenderanalysis.AnalysisResult
}

type PDFRenderer interface {
	Render(ctx context.Context, markdown string, meta report.Meta) ([]byte, error)
}

type Config struct {
	Analyzer Analyzer
	// Report should match the analyzer's record layout and normalizer.
	Report tenderanalysis.ReportOptions
	// PDF may be nil; pdf reports then answer 503.
	PDF            PDFRenderer
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

type Server struct {
	analyzer       Analyzer
	reportOpts     tenderanalysis.ReportOptions
	pdf            PDFRenderer
	maxUploadBytes int64
	validate       *validator.Validate
}

type analyzeRequest struct {
	Title          string `json:"title" validate:"max=500"`
	Description    string `json:"description" validate:"max=50000"`
	EstimatedValue string `json:"estimated_value" validate:"max=100"`
}

func (r analyzeRequest) tender() tenderanalysis.TenderRequest {
	return tenderanalysis.TenderRequest{
		Title:          strings.TrimSpace(r.Title),
		Description:    strings.TrimSpace(r.Description),
		EstimatedValue: strings.TrimSpace(r.EstimatedValue),
	}
}

func NewServer(cfg Config) (http.Handler, error) {
	if cfg.Analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	s := &Server{
		analyzer:       cfg.Analyzer,
		reportOpts:     cfg.Report,
		pdf:            cfg.PDF,
		maxUploadBytes: cfg.MaxUploadBytes,
		validate:       validator.New(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/analyze/upload", s.handleUpload)
		r.Post("/report", s.handleReport)
	})
	return r, nil
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.Printf("tender-advisor http method=%s path=%s status=%d bytes=%d duration_ms=%d request_id=%s",
				r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start).Milliseconds(), middleware.GetReqID(r.Context()))
		}()
		next.ServeHTTP(ww, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeTender reads a JSON tender and applies the conventional defaults. The
// returned flag reports whether the estimate was substituted.
func (s *Server) decodeTender(w http.ResponseWriter, r *http.Request) (tenderanalysis.TenderRequest, bool, bool) {
	var body analyzeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, defaultMaxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "request body is required")
		case isTooLarge(err):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		default:
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		}
		return tenderanalysis.TenderRequest{}, false, false
	}
	if err := s.validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return tenderanalysis.TenderRequest{}, false, false
	}
	req := body.tender()
	if req.Title == "" && req.Description == "" {
		writeError(w, http.StatusBadRequest, "title or description is required")
		return tenderanalysis.TenderRequest{}, false, false
	}
	defaulted := req.EstimatedValue == ""
	if !defaulted && !s.estimatePresent(req.EstimatedValue) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid estimated value: %q", req.EstimatedValue))
		return tenderanalysis.TenderRequest{}, false, false
	}
	return req.WithDefaults(), defaulted, true
}

func (s *Server) estimatePresent(estimate string) bool {
	v := tenderanalysis.TextValue(estimate)
	if s.reportOpts.Normalizer != nil {
		return s.reportOpts.Normalizer.Normalize(v).Present()
	}
	return tenderanalysis.Normalize(v).Present()
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	return fmt.Sprintf("field %s exceeds %s characters", strings.ToLower(fe.Field()), fe.Param())
}

func (s *Server) analyse(ctx context.Context, req tenderanalysis.TenderRequest, defaulted bool) tenderanalysis.AnalysisResult {
	res := s.analyzer.Analyse(ctx, req)
	res.Metadata.EstimateDefaulted = defaulted
	return res
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, defaulted, ok := s.decodeTender(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.analyse(r.Context(), req, defaulted))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}

	text, err := intake.ExtractText(r.Context(), data, header.Header.Get("Content-Type"), header.Filename)
	if err != nil {
		switch {
		case errors.Is(err, intake.ErrUnsupportedType):
			writeError(w, http.StatusUnsupportedMediaType, err.Error())
		case errors.Is(err, intake.ErrEmptyTender):
			writeError(w, http.StatusBadRequest, "document contains no text")
		default:
			writeError(w, http.StatusBadRequest, "could not read document: "+err.Error())
		}
		return
	}
	req, defaulted, err := intake.ParseTenderText(text)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.EstimatedValue) == "" {
		defaulted = true
	}
	log.Printf("tender-advisor upload_parsed file=%q bytes=%d title=%q estimate_defaulted=%v", header.Filename, len(data), req.Title, defaulted)
	writeJSON(w, http.StatusOK, s.analyse(r.Context(), req.WithDefaults(), defaulted))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "markdown"
	}
	switch format {
	case "markdown", "html", "pdf":
	default:
		writeError(w, http.StatusBadRequest, "format must be markdown, html or pdf")
		return
	}
	if format == "pdf" && s.pdf == nil {
		writeError(w, http.StatusServiceUnavailable, "pdf rendering is not available")
		return
	}

	req, defaulted, ok := s.decodeTender(w, r)
	if !ok {
		return
	}
	res := s.analyse(r.Context(), req, defaulted)
	md := tenderanalysis.BuildReportMarkdown(res, s.reportOpts)
	meta := report.Meta{Title: req.Title, AnalysisID: res.ID, Badge: badge(res.Recommendation), CompletedAt: res.Metadata.CompletedAt}

	switch format {
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, md)
	case "html":
		doc, err := report.HTML(md, meta)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, doc)
	case "pdf":
		pdf, err := s.pdf.Render(r.Context(), md, meta)
		if err != nil {
			log.Printf("tender-advisor pdf_render_failed id=%s err=%v", res.ID, err)
			writeError(w, http.StatusInternalServerError, "pdf rendering failed")
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "tender-analysis-"+res.ID+".pdf"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(pdf)
	}
}

func badge(rec tenderanalysis.BidRecommendation) string {
	if rec.Failed() {
		return ""
	}
	return fmt.Sprintf("Bid %.1f%% to %.1f%% of estimate", rec.MinPct*100, rec.MaxPct*100)
}

package app

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/joelkehle/tender-advisor/internal/config"
	"github.com/joelkehle/tender-advisor/internal/dataset"
	"github.com/joelkehle/tender-advisor/internal/tenderanalysis"
)

const sourceHTTPTimeout = 30 * time.Second

type App struct {
	Config   config.Config
	Analyzer *tenderanalysis.Analyzer
	Report   tenderanalysis.ReportOptions
	closers  []func() error
}

func New(cfg config.Config) (*App, error) {
	gen, err := NewGenerator(cfg.LLM)
	if err != nil {
		return nil, err
	}
	src, closeSrc, err := NewSource(cfg)
	if err != nil {
		return nil, err
	}
	analyzer, err := tenderanalysis.NewAnalyzer(tenderanalysis.AnalyzerConfig{
		Generator:         gen,
		Source:            src,
		Fields:            cfg.RecordFields(),
		MinPlausibleAward: cfg.Pricing.MinPlausibleAward,
		Normalizer:        tenderanalysis.NewNormalizer(cfg.Pricing.CurrencyCodes),
		TargetRecords:     cfg.Search.TargetRecords,
		PageSize:          cfg.Search.PageSize,
	})
	if err != nil {
		_ = closeSrc()
		return nil, err
	}
	log.Printf("tender-advisor configured provider=%s model=%s source=%s target=%d", cfg.LLM.Provider, analyzer.ModelName(), cfg.Search.Source, cfg.Search.TargetRecords)
	return &App{Config: cfg, Analyzer: analyzer, Report: analyzer.ReportOptions(), closers: []func() error{closeSrc}}, nil
}

func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// NewGenerator returns nil for provider "none".
func NewGenerator(cfg config.LLMConfig) (tenderanalysis.Generator, error) {
	var (
		gen tenderanalysis.Generator
		err error
	)
	switch cfg.Provider {
	case "none":
		return nil, nil
	case "openai":
		gen, err = tenderanalysis.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens)
	case "anthropic", "":
		gen, err = tenderanalysis.NewAnthropicGenerator(cfg.AnthropicAPIKey, cfg.Model, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return tenderanalysis.NewRetryingGenerator(gen, cfg.Attempts), nil
}

// NewSource opens the configured record source. The returned func releases it.
func NewSource(cfg config.Config) (tenderanalysis.RecordSource, func() error, error) {
	client := &http.Client{Timeout: sourceHTTPTimeout}
	switch cfg.Search.Source {
	case "ted":
		src := tenderanalysis.NewTEDSource(tenderanalysis.TEDConfig{
			BaseURL:            cfg.Search.BaseURL,
			RateLimitPerMinute: cfg.Search.RateLimitPerMinute,
			HTTPClient:         client,
		})
		return src, func() error { src.Close(); return nil }, nil
	case "sqlite":
		store, err := dataset.Open(cfg.Search.SQLitePath, cfg.RecordFields())
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case "datastore", "":
		src := NewDatastore(cfg.Search, client)
		return src, func() error { src.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown search source %q", cfg.Search.Source)
	}
}

func NewDatastore(cfg config.SearchConfig, client *http.Client) *tenderanalysis.DatastoreSource {
	if client == nil {
		client = &http.Client{Timeout: sourceHTTPTimeout}
	}
	return tenderanalysis.NewDatastoreSource(tenderanalysis.DatastoreConfig{
		BaseURL:            cfg.BaseURL,
		ResourceID:         cfg.ResourceID,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		HTTPClient:         client,
	})
}

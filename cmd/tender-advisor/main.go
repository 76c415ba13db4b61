package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joelkehle/tender-advisor/internal/app"
	"github.com/joelkehle/tender-advisor/internal/config"
	"github.com/joelkehle/tender-advisor/internal/httpapi"
	"github.com/joelkehle/tender-advisor/internal/report"
	"github.com/joelkehle/tender-advisor/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Optional config file (yaml, toml or json)")
	noPDF := flag.Bool("no-pdf", false, "Disable PDF report rendering")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	var pdf httpapi.PDFRenderer
	if !*noPDF {
		pdf = report.NewChromiumPDFRenderer(cfg.Report.ChromePath)
	}
	h, err := httpapi.NewServer(httpapi.Config{
		Analyzer:       a.Analyzer,
		Report:         a.Report,
		PDF:            pdf,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		RequestTimeout: cfg.Server.RequestTimeout,
	})
	if err != nil {
		log.Fatal(err)
	}
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("tender-advisor listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Printf("tender-advisor shutting down")
		return errors.Join(srv.Shutdown(shutdownCtx), shutdownTracing(shutdownCtx))
	})
	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
}

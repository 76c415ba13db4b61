package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joelkehle/tender-advisor/internal/app"
	"github.com/joelkehle/tender-advisor/internal/config"
	"github.com/joelkehle/tender-advisor/internal/intake"
	"github.com/joelkehle/tender-advisor/internal/tenderanalysis"
)

const sampleTender = `Title: Software Development Services for Government Portal
Description: Design, build and maintain a citizen-facing web portal with case
management, payment integration and database services for three years.
Estimated value: 1,000,000 SGD
`

func main() {
	configPath := flag.String("config", "", "Optional config file (yaml, toml or json)")
	asJSON := flag.Bool("json", false, "Print the analysis result as JSON instead of markdown")
	outputPath := flag.String("output", "", "Path to write the output (defaults to stdout)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [tender.txt|tender.md|tender.pdf|tender.docx]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	text := sampleTender
	if flag.NArg() > 0 {
		text, err = readTender(ctx, flag.Arg(0))
		if err != nil {
			log.Fatalf("read tender: %v", err)
		}
	}
	req, defaulted, err := intake.ParseTenderText(text)
	if err != nil {
		log.Fatalf("parse tender: %v", err)
	}
	if req.EstimatedValue == "" {
		defaulted = true
	}
	if defaulted {
		log.Printf("tender-analyze no estimate found, using %s", tenderanalysis.DefaultEstimatedValue)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	res := a.Analyzer.AnalyseWithProgress(ctx, req.WithDefaults(), func(stage, message string) {
		log.Printf("tender-analyze stage=%s %s", stage, message)
	})
	res.Metadata.EstimateDefaulted = defaulted

	var out []byte
	if *asJSON {
		out, err = json.MarshalIndent(res, "", "  ")
		if err != nil {
			log.Fatalf("encode result: %v", err)
		}
		out = append(out, '\n')
	} else {
		out = []byte(tenderanalysis.BuildReportMarkdown(res, a.Report))
	}
	if err := writeOutput(*outputPath, out); err != nil {
		log.Fatalf("write output: %v", err)
	}
}

func readTender(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return intake.ExtractText(ctx, data, "", path)
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Command export writes the student archive for one school to disk using the
// same bundler as the admin API.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"studentportal/internal/config"
	"studentportal/internal/export"
	"studentportal/internal/record"
	"studentportal/internal/store"
)

func main() {
	school := flag.String("school", "", "school name to export (required)")
	out := flag.String("out", ".", "directory the zip archive is written to")
	flag.Parse()

	if *school == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path, err := run(ctx, cfg, *school, *out)
	if errors.Is(err, export.ErrNoRecords) {
		log.Printf("no students to download for %q", *school)
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("export: %v", err)
	}
	log.Printf("wrote %s", path)
}

func run(ctx context.Context, cfg config.App, school, outDir string) (string, error) {
	backend, err := store.Open(ctx, cfg)
	if err != nil {
		return "", err
	}
	defer backend.Close()
	return exportSchool(ctx, backend.Records, export.NewBundler(&http.Client{Timeout: cfg.FetchTimeout}, cfg.Location()), school, outDir)
}

func exportSchool(ctx context.Context, records record.Store, bundler *export.Bundler, school, outDir string) (string, error) {
	all, err := records.ListAll(ctx)
	if err != nil {
		return "", err
	}

	bundle, err := bundler.Export(ctx, record.BySchool(all, school), school)
	if err != nil {
		return "", err
	}
	for _, f := range bundle.Failures {
		log.Printf("image for %s (%s) skipped: %v", f.Name, f.URL, f.Err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(outDir, bundle.Filename)
	if err := os.WriteFile(path, bundle.Data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

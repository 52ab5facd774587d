package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codepilot/config"
	"codepilot/internal/adapter/cache"
	"codepilot/internal/adapter/fs"
	"codepilot/internal/adapter/ollama"
	"codepilot/internal/adapter/prompt"
	"codepilot/internal/domain"
	"codepilot/internal/usecase"
)

// nullSink drops diagnostics; only the analysis result is measured.
type nullSink struct{}

func (nullSink) Set(string, []domain.Diagnostic) {}
func (nullSink) Clear(string) {}

func main() {
	dir := flag.String("dir", ".", "Workspace directory holding the config")
	file := flag.String("f", "", "Source file to analyze")
	models := flag.String("models", "", "Comma-separated models to compare (default: every installed model)")
	flag.Parse()

	if *file == "" {
		fmt.Println("Usage: go run cmd/benchmark/main.go -f server.go [-models a,b]")
		fmt.Println("\nMeasures, per model:")
		fmt.Println("  1. Latency of one suggestions request")
		fmt.Println("  2. Whether the answer parsed into suggestions")
		fmt.Println("  3. How many suggestions point inside the file")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	abs, err := filepath.Abs(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid path: %v\n", err)
		os.Exit(1)
	}
	text, err := fs.ReadFile(abs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}
	doc := domain.Document{ID: "file://" + filepath.ToSlash(abs), Path: *file, Text: text, LanguageID: fs.LanguageID(abs)}
	lines := strings.Count(text, "\n") + 1

	ctx := context.Background()
	client := ollama.NewClient(config.NewStore("", cfg))
	if !client.CheckAvailability(ctx) {
		fmt.Fprintf(os.Stderr, "Inference server %s is not reachable\n", cfg.BaseURL)
		os.Exit(1)
	}

	names := splitList(*models)
	if len(names) == 0 {
		for _, m := range client.ListModels(ctx) {
			names = append(names, m.Name)
		}
	}
	if len(names) == 0 {
		fmt.Fprintln(os.Stderr, "No models installed")
		os.Exit(1)
	}

	fmt.Println("SUGGESTION BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("File: %s (%d lines, %s)\n", *file, lines, doc.LanguageID)
	fmt.Printf("Models: %d\n\n", len(names))

	for i, name := range names {
		modelCfg := cfg.Clone()
		modelCfg.Model = name
		settings := config.NewStore("", modelCfg)
		syncer := usecase.NewDiagnosticsSynchronizer(
			ollama.NewClient(settings), prompt.DefaultRegistry(), settings, cache.NewAnalysisCache(1), nullSink{},
		)

		start := time.Now()
		result, _, err := syncer.Analyze(ctx, doc)
		elapsed := time.Since(start)

		switch {
		case errors.Is(err, domain.ErrUnparseable):
			fmt.Printf("%d. [FAIL %6s] %s: answer had no usable JSON\n", i+1, elapsed.Round(time.Millisecond), name)
			continue
		case err != nil:
			fmt.Printf("%d. [ERR  %6s] %s: %v\n", i+1, elapsed.Round(time.Millisecond), name, err)
			continue
		}

		inside := 0
		for _, s := range result.Suggestions {
			if s.Start.Line >= 1 && s.End.Line <= lines {
				inside++
			}
		}
		rating := "LOW"
		if len(result.Suggestions) > 0 && inside == len(result.Suggestions) {
			rating = "GOOD"
		} else if inside > 0 {
			rating = "OK"
		}
		fmt.Printf("%d. [%-4s %6s] %s: %d suggestions, %d in range\n",
			i+1, rating, elapsed.Round(time.Millisecond), name, len(result.Suggestions), inside)
		if result.Summary != "" {
			fmt.Printf("   %s\n", result.Summary)
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/graphloom/graphloom/internal/models"
	"github.com/graphloom/graphloom/internal/types"
	cfgPkg "github.com/graphloom/graphloom/pkg/config"
	"github.com/graphloom/graphloom/pkg/extractor"
	"github.com/graphloom/graphloom/pkg/gate"
	"github.com/graphloom/graphloom/pkg/gleaning"
	"github.com/graphloom/graphloom/pkg/llm"
	"github.com/graphloom/graphloom/pkg/metrics"
	"github.com/graphloom/graphloom/pkg/parser"
	"github.com/graphloom/graphloom/pkg/pipeline"
	"github.com/graphloom/graphloom/pkg/store"
)

func main() {
	var (
		configPath string
		inputPath  string
		docID      string
	)

	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&inputPath, "input", "", "Text file to extract a graph from")
	flag.StringVar(&docID, "doc-id", "", "Document ID (defaults to the input file name)")
	flag.Parse()

	if inputPath == "" {
		log.Fatal("-input is required")
	}
	if docID == "" {
		docID = strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	}

	config, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}
	if errs := config.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %v", e)
		}
		os.Exit(1)
	}

	if err := run(config, inputPath, docID); err != nil {
		log.Fatal(err)
	}
}

func run(config *cfgPkg.Config, inputPath, docID string) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read input: %v", err)
	}
	doc := buildDocument(docID, string(data))
	if len(doc.Chunks) == 0 {
		return fmt.Errorf("input contains no text")
	}

	client, err := llm.NewClient(llm.ClientConfig{BaseURL: config.LLM.BaseURL})
	if err != nil {
		return fmt.Errorf("failed to initialize LLM client: %v", err)
	}

	attempts := gate.NewAttemptLog(config.Gate.CascadeWindow, config.Gate.Rank3AlertFraction, func(message string) {
		color.Yellow("\n⚠ %s", message)
	})

	invoker, err := llm.NewInvoker(llm.InvokerConfig{
		LLM:         client,
		Sink:        attempts,
		RateLimit:   config.LLM.RateLimit,
		Temperature: config.LLM.Temperature,
		MaxTokens:   config.LLM.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize invoker: %v", err)
	}

	rankedModels := buildRankedModels(config)

	chunkExtractor, err := extractor.NewWithConfig(extractor.ExtractorConfig{
		Invoker:       invoker,
		Parser:        parser.NewChain(),
		Fallback:      extractor.NewHeuristicFallback(),
		Sink:          attempts,
		Models:        rankedModels,
		EntityNameCap: config.Pipeline.EntityNameCap,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize extractor: %v", err)
	}

	// The completeness check runs against the cheapest ranked model.
	checkModel := rankedModels[len(rankedModels)-1]
	gleaner, err := gleaning.NewWithConfig(gleaning.ControllerConfig{
		Checker:      gleaning.NewLLMChecker(invoker, checkModel),
		Continuation: chunkExtractor,
		MaxRounds:    config.Pipeline.MaxGleaningRounds,
		OnCheckError: func(chunkID string, err error) {
			color.Yellow("\n⚠ chunk %s: completeness check failed, keeping first-pass relations: %v", chunkID, err)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize gleaning controller: %v", err)
	}

	qualityGate := gate.NewWithConfig(gate.GateConfig{
		MinEntitiesPerChunk: config.Gate.MinEntitiesPerChunk,
		ZeroRelationStreak:  config.Gate.ZeroRelationStreak,
		OnWarn: func(documentID, message string) {
			color.Yellow("\n⚠ document %s: %s", documentID, message)
		},
	})

	var graphStore types.GraphStore
	if config.Database.URL != "" {
		pg, err := store.NewWithConfig(store.GraphStoreConfig{
			ConnString: config.Database.URL,
			BatchSize:  config.Database.BatchSize,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize graph store: %v", err)
		}
		defer pg.Close()
		graphStore = pg
	} else {
		color.Yellow("no database URL configured; extraction results will not be persisted")
	}

	bar := getProgressBar(len(doc.Chunks), " Extracting knowledge graph...")
	tracker := pipeline.NewProgressTracker(func(batchID string, p pipeline.BatchProgress) {
		bar.Set(p.Done)
	})

	pipe, err := pipeline.NewWithConfig(pipeline.PipelineConfig{
		Extractor: chunkExtractor,
		Gleaner:   gleaner,
		Gate:      qualityGate,
		Store:     graphStore,
		Tracker:   tracker,
		Workers:   config.Pipeline.Workers,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %v", err)
	}

	color.Blue("\nExtracting from %d chunks of %s\n", len(doc.Chunks), docID)
	start := time.Now()

	report, err := pipe.ProcessDocument(context.Background(), doc)
	bar.Finish()

	if err != nil {
		if violation, ok := err.(*gate.ThresholdViolation); ok {
			color.Red("\n✗ extraction aborted: %v", violation)
			os.Exit(1)
		}
		return err
	}

	color.Green("\n✓ Extracted in %s\n", time.Since(start).Round(time.Millisecond))
	printReport(report)
	return nil
}

// buildDocument splits the input on blank lines. This is deliberately
// trivial; real chunking happens upstream of this pipeline.
func buildDocument(docID, text string) models.Document {
	doc := models.Document{ID: docID}
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		idx := len(doc.Chunks)
		doc.Chunks = append(doc.Chunks, models.Chunk{
			ID:    fmt.Sprintf("%s_%d", docID, idx),
			Index: idx,
			Text:  block,
		})
	}
	return doc
}

func buildRankedModels(config *cfgPkg.Config) []types.ModelDescriptor {
	var ranked []types.ModelDescriptor
	for i, modelID := range config.LLM.RankedModels {
		timeout := 120 * time.Second
		if i < len(config.LLM.RankTimeoutsSec) {
			timeout = time.Duration(config.LLM.RankTimeoutsSec[i]) * time.Second
		}
		ranked = append(ranked, types.ModelDescriptor{
			Rank:    i + 1,
			ModelID: modelID,
			Timeout: timeout,
		})
	}
	return ranked
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("chunks"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func printReport(report *metrics.Report) {
	fmt.Println()
	color.Cyan("Document %s", report.DocumentID)
	fmt.Printf("  chunks processed:   %d\n", report.ChunksProcessed)
	fmt.Printf("  entities:           %d extracted, %d unique\n", report.EntitiesTotal, report.EntitiesUnique)
	fmt.Printf("  relations:          %d extracted, %d unique\n", report.RelationsTotal, report.RelationsUnique)
	fmt.Printf("  relation ratio:     %.2f\n", report.RelationRatio)
	fmt.Printf("  typed coverage:     %.0f%%\n", report.TypedCoverage*100)
	fmt.Printf("  duplication rate:   %.0f%%\n", report.DuplicationRate*100)
	fmt.Printf("  unresolved edges:   %d\n", report.UnresolvedTotal)
	fmt.Printf("  gleaning rounds:    %d\n", report.GleaningRounds)

	if len(report.CascadeRankUsed) > 0 {
		var parts []string
		for rank := 1; rank <= 3; rank++ {
			if n := report.CascadeRankUsed[rank]; n > 0 {
				parts = append(parts, fmt.Sprintf("rank %d: %d", rank, n))
			}
		}
		fmt.Printf("  cascade ranks used: %s\n", strings.Join(parts, ", "))
	}

	if len(report.RelationTypes) > 0 {
		fmt.Printf("  relation types:\n")
		for typ, n := range report.RelationTypes {
			fmt.Printf("    %-20s %d\n", typ, n)
		}
	}
}

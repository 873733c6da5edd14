package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"

	"forgerylens/pkg/classifier"
	"forgerylens/pkg/engine"
	"forgerylens/pkg/models"
)

var (
	// Color printers
	infoColor    = color.New(color.FgBlue).SprintFunc()
	successColor = color.New(color.FgGreen).SprintFunc()
	errorColor   = color.New(color.FgRed).SprintFunc()
	alertColor   = color.New(color.FgRed, color.Bold).SprintFunc()
)

func printInfo(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", infoColor("[*]"), fmt.Sprintf(format, args...))
}

func printSuccess(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", successColor("[+]"), fmt.Sprintf(format, args...))
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s %s\n", errorColor("[-]"), fmt.Sprintf(format, args...))
}

func printAlert(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", alertColor("[!!!]"), fmt.Sprintf(format, args...))
}

func main() {
	var (
		filePath     = flag.String("file", "", "Path to the image or PDF to analyze")
		analysisType = flag.String("type", "auto", "Analysis type: image (deepfake), document (ELA), pdf, or auto")
		outputDir    = flag.String("outdir", "forgerylens_output", "Directory to store generated artifacts")
		configPath   = flag.String("config", "", "Optional TOML engine config")
		modelPath    = flag.String("model", "", "Optional TOML classifier weight file (default: built-in weights)")
		jsonOut      = flag.Bool("json", false, "Emit the full report as JSON")
		verbose      = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	if *filePath == "" {
		fmt.Println("Usage:")
		fmt.Println("  forgerylens -file <path> [-type image|document|pdf|auto]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := engine.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = engine.LoadConfig(*configPath)
		if err != nil {
			printError("Failed to load config: %v", err)
			os.Exit(1)
		}
	}

	model := classifier.DefaultModel()
	if *modelPath != "" {
		var err error
		model, err = classifier.LoadModel(*modelPath)
		if err != nil {
			printError("Failed to load model weights: %v", err)
			os.Exit(1)
		}
	}

	detector, err := engine.New(model, cfg, logger)
	if err != nil {
		printError("Failed to initialize detector: %v", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		printError("Failed to create output directory: %v", err)
		os.Exit(1)
	}

	target := models.AnalysisTarget{Path: *filePath, Kind: resolveKind(*analysisType, *filePath)}

	printInfo("Analyzing %s (%s)", *filePath, target.Kind)

	report, err := detector.Analyze(context.Background(), target, *outputDir)
	if err != nil {
		printError("Analysis failed (%s): %v", engine.Kind(err), err)
		os.Exit(1)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			printError("Failed to encode report: %v", err)
			os.Exit(1)
		}
		return
	}

	printReport(report)
}

func resolveKind(analysisType, path string) models.AnalysisKind {
	switch analysisType {
	case "image":
		return models.KindImage
	case "document":
		return models.KindDocument
	case "pdf":
		return models.KindPDF
	default:
		return models.KindForPath(path)
	}
}

func printReport(report *models.Report) {
	switch {
	case report.Image != nil:
		iv := report.Image
		fmt.Printf("Authentic: %.2f%%  Manipulated: %.2f%%\n", iv.RealScore(), iv.FakeScore())
		if iv.Verdict == models.DeepfakeDetected {
			printAlert("%s", iv.Verdict)
		} else {
			printSuccess("%s", iv.Verdict)
		}
		fmt.Println(report.Explanation)
		if iv.HighlightPath != "" {
			printInfo("Highlight artifact: %s", iv.HighlightPath)
		}

	case report.Document != nil:
		dr := report.Document
		fmt.Printf("Forgery score: %.2f\n", dr.Score)
		if dr.Verdict == models.SuspiciousForgery {
			printAlert("%s", dr.Verdict)
		} else {
			printSuccess("%s", dr.Verdict)
		}
		fmt.Println(report.Explanation)
		if dr.AnalyzedPath != "" {
			printInfo("ELA artifact: %s", dr.AnalyzedPath)
		}

	default:
		if len(report.Pages) == 0 {
			printInfo("PDF contains no pages")
			return
		}
		for _, page := range report.Pages {
			switch page.Verdict {
			case models.SuspiciousForgery:
				printAlert("Page %d: %s (score %.2f)", page.PageNumber, page.Verdict, page.Score)
			case models.AnalysisFailed:
				printError("Page %d: %s (%s)", page.PageNumber, page.Verdict, page.Err)
			default:
				printSuccess("Page %d: %s (score %.2f)", page.PageNumber, page.Verdict, page.Score)
			}
		}
	}
}

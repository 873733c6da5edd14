package engine

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"forgerylens/pkg/ela"
	"forgerylens/pkg/pdfrender"
)

// ArtifactPolicy decides when visual artifacts are produced.
type ArtifactPolicy string

const (
	// ArtifactsAlways writes a highlight/analyzed artifact for every
	// analysis, including authentic verdicts. This is the default: audit
	// trails need the visualization that justified a negative as much as
	// a positive.
	ArtifactsAlways ArtifactPolicy = "always"

	// ArtifactsOnDetection writes artifacts only when the verdict is
	// positive for manipulation.
	ArtifactsOnDetection ArtifactPolicy = "on-detection"
)

// Config holds every tunable of the engine. All thresholds and constants
// live here by name; nothing is hard-coded at call sites.
type Config struct {
	// ForgeryThreshold is T on the 0..100 ELA inconsistency scale. Scores
	// strictly above it yield SuspiciousForgery.
	ForgeryThreshold float64 `toml:"forgery_threshold"`

	ELAQuality   int `toml:"ela_quality"`    // JPEG recompression quality, 1..100
	ELAScale     int `toml:"ela_scale"`      // error amplification factor
	ELABlockSize int `toml:"ela_block_size"` // block edge for the inconsistency aggregate

	RasterDPI int `toml:"raster_dpi"` // PDF page render resolution

	MaxImageDim    int `toml:"max_image_dim"`    // per-axis pixel cap on inputs
	MaxPDFPages    int `toml:"max_pdf_pages"`    // page-count cap on PDFs
	MaxPageWorkers int `toml:"max_page_workers"` // bounded page concurrency

	AnalysisTimeoutSec int `toml:"analysis_timeout_sec"` // per-call budget

	HighlightAlpha float64 `toml:"highlight_alpha"` // heat overlay opacity

	Artifacts ArtifactPolicy `toml:"artifacts"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		ForgeryThreshold:   15.0,
		ELAQuality:         ela.DefaultQuality,
		ELAScale:           ela.DefaultScale,
		ELABlockSize:       ela.DefaultBlockSize,
		RasterDPI:          pdfrender.DefaultDPI,
		MaxImageDim:        8192,
		MaxPDFPages:        200,
		MaxPageWorkers:     4,
		AnalysisTimeoutSec: 60,
		HighlightAlpha:     0.45,
		Artifacts:          ArtifactsAlways,
	}
}

// LoadConfig reads a TOML config file over the defaults, so partial files
// only override what they name.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("engine: read config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks all tunables for usable ranges.
func (c Config) Validate() error {
	if c.ForgeryThreshold < 0 || c.ForgeryThreshold > 100 {
		return fmt.Errorf("engine: forgery_threshold %.2f outside 0..100", c.ForgeryThreshold)
	}
	if err := c.elaParams().Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if c.RasterDPI < 1 {
		return fmt.Errorf("engine: raster_dpi %d below 1", c.RasterDPI)
	}
	if c.MaxImageDim < 1 || c.MaxPDFPages < 1 || c.MaxPageWorkers < 1 {
		return fmt.Errorf("engine: size limits must be positive")
	}
	if c.AnalysisTimeoutSec < 1 {
		return fmt.Errorf("engine: analysis_timeout_sec %d below 1", c.AnalysisTimeoutSec)
	}
	if c.HighlightAlpha < 0 || c.HighlightAlpha > 1 {
		return fmt.Errorf("engine: highlight_alpha %.2f outside 0..1", c.HighlightAlpha)
	}
	switch c.Artifacts {
	case ArtifactsAlways, ArtifactsOnDetection:
	default:
		return fmt.Errorf("engine: unknown artifact policy %q", c.Artifacts)
	}
	return nil
}

func (c Config) elaParams() ela.Params {
	return ela.Params{Quality: c.ELAQuality, Scale: c.ELAScale, BlockSize: c.ELABlockSize}
}

func (c Config) timeout() time.Duration {
	return time.Duration(c.AnalysisTimeoutSec) * time.Second
}

package engine

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forgerylens/pkg/classifier"
	"forgerylens/pkg/models"
)

func newDetector(t *testing.T, mutate func(*Config)) *Detector {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	d, err := New(classifier.DefaultModel(), cfg, nil)
	require.NoError(t, err)
	return d
}

// writeFlatPNG produces an image with uniform compression history: every
// region recompresses identically, so its ELA score stays low.
func writeFlatPNG(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetRGBA(x, y, color.RGBA{128, 128, 128, 255})
		}
	}
	return writePNG(t, dir, name, img)
}

func noiseRGBA(w, h int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255,
			})
		}
	}
	return img
}

// writeNoisePNG produces an image that resists recompression everywhere.
// The error level is high but uniform, so the forgery verdict stays
// authentic; it mainly feeds tests that need busy pixel content.
func writeNoisePNG(t *testing.T, dir, name string, seed int64) string {
	t.Helper()
	return writePNG(t, dir, name, noiseRGBA(64, 64, seed))
}

// recompressRGBA runs img through a JPEG encode/decode cycle at the given
// quality, giving it the compression history of that quality.
func recompressRGBA(t *testing.T, img image.Image, quality int) *image.RGBA {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}))
	decoded, err := jpeg.Decode(&buf)
	require.NoError(t, err)
	out := image.NewRGBA(image.Rect(0, 0, decoded.Bounds().Dx(), decoded.Bounds().Dy()))
	draw.Draw(out, out.Bounds(), decoded, decoded.Bounds().Min, draw.Src)
	return out
}

// writeSplicedPNG writes an image with uniform q90 compression history whose
// left half was re-encoded at a much lower quality and spliced back in, the
// canonical locally-forged document.
func writeSplicedPNG(t *testing.T, dir, name string, seed int64) string {
	t.Helper()
	base := recompressRGBA(t, noiseRGBA(128, 128, seed), 90)
	region := image.Rect(0, 0, 64, 128)
	patch := recompressRGBA(t, base.SubImage(region), 25)
	draw.Draw(base, region, patch, image.Point{}, draw.Src)
	return writePNG(t, dir, name, base)
}

func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestNewRequiresModel(t *testing.T) {
	_, err := New(nil, DefaultConfig(), nil)
	assert.Error(t, err)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ELAQuality = 0
	_, err := New(classifier.DefaultModel(), cfg, nil)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative threshold", func(c *Config) { c.ForgeryThreshold = -1 }},
		{"threshold over 100", func(c *Config) { c.ForgeryThreshold = 101 }},
		{"zero ela quality", func(c *Config) { c.ELAQuality = 0 }},
		{"zero ela scale", func(c *Config) { c.ELAScale = 0 }},
		{"zero ela block size", func(c *Config) { c.ELABlockSize = 0 }},
		{"zero dpi", func(c *Config) { c.RasterDPI = 0 }},
		{"zero max image dim", func(c *Config) { c.MaxImageDim = 0 }},
		{"zero page workers", func(c *Config) { c.MaxPageWorkers = 0 }},
		{"zero timeout", func(c *Config) { c.AnalysisTimeoutSec = 0 }},
		{"alpha over 1", func(c *Config) { c.HighlightAlpha = 1.5 }},
		{"unknown artifact policy", func(c *Config) { c.Artifacts = "sometimes" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, DefaultConfig().Validate())
}

func TestLoadConfigPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte("forgery_threshold = 25.0\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 25.0, cfg.ForgeryThreshold)
	assert.Equal(t, DefaultConfig().ELAQuality, cfg.ELAQuality, "unnamed fields keep defaults")
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte("ela_quality = 400\n"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestDocumentForgeryAuthentic(t *testing.T) {
	// Scenario: uniform compression history stays under the threshold.
	d := newDetector(t, nil)
	dir := t.TempDir()
	out := t.TempDir()
	path := writeFlatPNG(t, dir, "uniform.png")

	res, err := d.AnalyzeDocumentForgery(context.Background(), path, out)
	require.NoError(t, err)

	assert.Less(t, res.Score, DefaultConfig().ForgeryThreshold)
	assert.Equal(t, models.LikelyAuthentic, res.Verdict)
	require.NotEmpty(t, res.AnalyzedPath, "artifact must be produced for authentic verdicts too")
	assert.FileExists(t, res.AnalyzedPath)
}

func TestDocumentForgerySuspicious(t *testing.T) {
	// Scenario: a region recompressed at a different quality than the rest
	// of the image must push the score over the threshold.
	d := newDetector(t, nil)
	dir := t.TempDir()
	out := t.TempDir()
	path := writeSplicedPNG(t, dir, "edited.png", 11)

	res, err := d.AnalyzeDocumentForgery(context.Background(), path, out)
	require.NoError(t, err)

	assert.Greater(t, res.Score, DefaultConfig().ForgeryThreshold)
	assert.Equal(t, models.SuspiciousForgery, res.Verdict)
	assert.FileExists(t, res.AnalyzedPath)
}

func TestDocumentForgeryUniformNoiseAuthentic(t *testing.T) {
	// High recompression error that is uniform across the image carries no
	// evidence of local tampering and must not trip the verdict.
	d := newDetector(t, nil)
	path := writeNoisePNG(t, t.TempDir(), "busy.png", 13)

	res, err := d.AnalyzeDocumentForgery(context.Background(), path, t.TempDir())
	require.NoError(t, err)

	assert.Less(t, res.Score, DefaultConfig().ForgeryThreshold)
	assert.Equal(t, models.LikelyAuthentic, res.Verdict)
}

func TestDocumentForgeryScoreBounds(t *testing.T) {
	d := newDetector(t, nil)
	dir := t.TempDir()
	for seed := int64(1); seed <= 3; seed++ {
		path := writeNoisePNG(t, dir, fmt.Sprintf("n%d.png", seed), seed)
		res, err := d.AnalyzeDocumentForgery(context.Background(), path, t.TempDir())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Score, 0.0)
		assert.LessOrEqual(t, res.Score, 100.0)
		if res.Score > d.cfg.ForgeryThreshold {
			assert.Equal(t, models.SuspiciousForgery, res.Verdict)
		} else {
			assert.Equal(t, models.LikelyAuthentic, res.Verdict)
		}
	}
}

func TestDocumentForgeryDeterministic(t *testing.T) {
	d := newDetector(t, nil)
	dir := t.TempDir()
	path := writeNoisePNG(t, dir, "same.png", 42)

	out1 := t.TempDir()
	out2 := t.TempDir()

	first, err := d.AnalyzeDocumentForgery(context.Background(), path, out1)
	require.NoError(t, err)
	second, err := d.AnalyzeDocumentForgery(context.Background(), path, out2)
	require.NoError(t, err)

	assert.Equal(t, first.Score, second.Score)

	a, err := os.ReadFile(first.AnalyzedPath)
	require.NoError(t, err)
	b, err := os.ReadFile(second.AnalyzedPath)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b), "analyzed artifacts must be byte-identical across runs")
}

func TestDocumentForgeryCorruptInput(t *testing.T) {
	d := newDetector(t, nil)
	path := filepath.Join(t.TempDir(), "corrupt.jpg")
	require.NoError(t, os.WriteFile(path, []byte("garbage bytes, not JPEG"), 0644))

	_, err := d.AnalyzeDocumentForgery(context.Background(), path, t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestDocumentForgeryRejectsPDF(t *testing.T) {
	d := newDetector(t, nil)
	_, err := d.AnalyzeDocumentForgery(context.Background(), "scan.pdf", t.TempDir())
	assert.ErrorIs(t, err, ErrUnsupportedInput)
}

func TestDocumentForgeryDimensionCap(t *testing.T) {
	d := newDetector(t, func(c *Config) { c.MaxImageDim = 32 })
	path := writeNoisePNG(t, t.TempDir(), "big.png", 1)

	_, err := d.AnalyzeDocumentForgery(context.Background(), path, t.TempDir())
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestArtifactPolicyOnDetection(t *testing.T) {
	d := newDetector(t, func(c *Config) { c.Artifacts = ArtifactsOnDetection })
	dir := t.TempDir()

	authentic, err := d.AnalyzeDocumentForgery(context.Background(), writeFlatPNG(t, dir, "flat.png"), t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, authentic.AnalyzedPath, "authentic verdict should suppress the artifact")

	suspicious, err := d.AnalyzeDocumentForgery(context.Background(), writeSplicedPNG(t, dir, "spliced.png", 5), t.TempDir())
	require.NoError(t, err)
	assert.NotEmpty(t, suspicious.AnalyzedPath)
}

func TestDocumentForgeryArtifactWriteFailure(t *testing.T) {
	d := newDetector(t, nil)
	path := writeNoisePNG(t, t.TempDir(), "in.png", 2)

	_, err := d.AnalyzeDocumentForgery(context.Background(), path, filepath.Join(t.TempDir(), "missing-subdir"))
	assert.ErrorIs(t, err, ErrArtifactWrite)
}

func TestPredictImageDeepfake(t *testing.T) {
	d := newDetector(t, nil)
	path := writeNoisePNG(t, t.TempDir(), "photo.png", 8)
	out := t.TempDir()

	iv, err := d.PredictImageDeepfake(context.Background(), path, out)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, iv.Probability, 0.0)
	assert.LessOrEqual(t, iv.Probability, 1.0)
	if iv.Probability > 0.5 {
		assert.Equal(t, models.DeepfakeDetected, iv.Verdict)
	} else {
		assert.Equal(t, models.LikelyAuthentic, iv.Verdict)
	}
	require.NotEmpty(t, iv.HighlightPath)
	assert.FileExists(t, iv.HighlightPath)
	assert.True(t, strings.HasSuffix(iv.HighlightPath, "photo_highlight.png"),
		"highlight name must derive from the input name")
}

func TestPredictImageDeepfakeRejectsPDF(t *testing.T) {
	d := newDetector(t, nil)
	_, err := d.PredictImageDeepfake(context.Background(), "doc.pdf", t.TempDir())
	assert.ErrorIs(t, err, ErrUnsupportedInput)
}

func TestPredictImageDeepfakeCorruptInput(t *testing.T) {
	d := newDetector(t, nil)
	path := filepath.Join(t.TempDir(), "bad.png")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 0x50, 0x4e}, 0644))

	_, err := d.PredictImageDeepfake(context.Background(), path, t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestPredictImageDeepfakeCancellation(t *testing.T) {
	d := newDetector(t, nil)
	path := writeNoisePNG(t, t.TempDir(), "p.png", 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.PredictImageDeepfake(ctx, path, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeDispatch(t *testing.T) {
	d := newDetector(t, nil)
	dir := t.TempDir()
	path := writeFlatPNG(t, dir, "doc.png")

	report, err := d.Analyze(context.Background(), models.AnalysisTarget{Path: path, Kind: models.KindDocument}, t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, report.Document)
	assert.Nil(t, report.Image)
	assert.Empty(t, report.Pages)
	assert.NotEmpty(t, report.Explanation)

	report, err = d.Analyze(context.Background(), models.AnalysisTarget{Path: path, Kind: models.KindImage}, t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, report.Image)
	assert.Nil(t, report.Document)
}

func TestAnalyzeUnknownKind(t *testing.T) {
	d := newDetector(t, nil)
	_, err := d.Analyze(context.Background(), models.AnalysisTarget{Path: "x.png", Kind: models.AnalysisKind(99)}, t.TempDir())
	assert.ErrorIs(t, err, ErrUnsupportedInput)
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrUnsupportedInput, "input"},
		{ErrInvalidImage, "decode"},
		{ErrInvalidPDF, "decode"},
		{ErrTooLarge, "limit"},
		{ErrInference, "inference"},
		{ErrArtifactWrite, "io"},
		{ErrAllPagesFailed, "analysis"},
		{fmt.Errorf("wrapped: %w", ErrInvalidImage), "decode"},
		{fmt.Errorf("plain"), "internal"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Kind(tc.err))
	}
}

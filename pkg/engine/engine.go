// Package engine exposes the forensic detection core: deepfake scoring for
// images, ELA forgery analysis for documents, and per-page forgery analysis
// for PDFs. A Detector is constructed once around loaded model weights and
// is safe for concurrent use; every call receives its inputs and output
// directory explicitly and owns nothing beyond the artifacts it writes.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"forgerylens/pkg/classifier"
	"forgerylens/pkg/ela"
	"forgerylens/pkg/highlight"
	"forgerylens/pkg/imaging"
	"forgerylens/pkg/models"
	"forgerylens/pkg/pdfrender"
)

// Detector is the engine entry point. The model and config are immutable
// after construction; calls share them read-only.
type Detector struct {
	model  *classifier.Model
	cfg    Config
	logger *slog.Logger
}

// New constructs a Detector. A nil logger falls back to slog.Default.
func New(model *classifier.Model, cfg Config, logger *slog.Logger) (*Detector, error) {
	if model == nil {
		return nil, fmt.Errorf("engine: nil model")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		model:  model,
		cfg:    cfg,
		logger: logger.With("component", "detector"),
	}, nil
}

// Analyze dispatches a target to the operation matching its kind and
// assembles the outcome into a Report.
func (d *Detector) Analyze(ctx context.Context, target models.AnalysisTarget, outDir string) (*models.Report, error) {
	started := time.Now()
	report := &models.Report{Target: target, AnalysisTime: started}

	switch target.Kind {
	case models.KindImage:
		iv, err := d.PredictImageDeepfake(ctx, target.Path, outDir)
		if err != nil {
			return nil, err
		}
		report.Image = &iv
		report.Explanation = iv.Verdict.Explanation(target.Kind)

	case models.KindDocument:
		dr, err := d.AnalyzeDocumentForgery(ctx, target.Path, outDir)
		if err != nil {
			return nil, err
		}
		report.Document = &dr
		report.Explanation = dr.Verdict.Explanation(target.Kind)

	case models.KindPDF:
		pages, err := d.AnalyzePDFForgery(ctx, target.Path, outDir)
		if err != nil {
			return nil, err
		}
		report.Pages = pages

	default:
		return nil, fmt.Errorf("%w: unknown analysis kind %d", ErrUnsupportedInput, target.Kind)
	}

	report.Duration = time.Since(started)
	return report, nil
}

// PredictImageDeepfake scores the image at path for AI manipulation and,
// artifact policy permitting, writes a saliency highlight overlay to outDir.
func (d *Detector) PredictImageDeepfake(ctx context.Context, path, outDir string) (models.ImageVerdict, error) {
	var out models.ImageVerdict

	if isPDF(path) {
		return out, fmt.Errorf("%w: deepfake analysis is for images, not PDFs", ErrUnsupportedInput)
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.timeout())
	defer cancel()

	raw, err := os.ReadFile(path)
	if err != nil {
		return out, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	img, err := imaging.Decode(bytes.NewReader(raw), d.cfg.MaxImageDim)
	if err != nil {
		return out, mapImagingErr(err)
	}

	pred, err := d.model.Predict(ctx, img, raw)
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return out, fmt.Errorf("%w: %v", ErrInference, err)
	}

	out.Probability = pred.Probability
	out.Verdict = models.LikelyAuthentic
	if pred.Probability > 0.5 {
		out.Verdict = models.DeepfakeDetected
	}

	if d.wantArtifact(out.Verdict) {
		heat := highlight.FromGrid(pred.Saliency)
		overlay := highlight.Blend(img, heat, d.cfg.HighlightAlpha)
		dest := imaging.ArtifactPath(outDir, path, imaging.RoleHighlight)
		if err := imaging.SavePNG(dest, overlay); err != nil {
			return out, fmt.Errorf("%w: %v", ErrArtifactWrite, err)
		}
		out.HighlightPath = dest
	}

	d.logger.Debug("deepfake prediction",
		"path", path,
		"probability", out.Probability,
		"verdict", out.Verdict.String(),
	)
	return out, nil
}

// AnalyzeDocumentForgery runs ELA on the image at path and, artifact policy
// permitting, writes the colormapped error visualization to outDir.
func (d *Detector) AnalyzeDocumentForgery(ctx context.Context, path, outDir string) (models.DocumentForgeryResult, error) {
	var out models.DocumentForgeryResult

	if isPDF(path) {
		return out, fmt.Errorf("%w: document analysis expects an image; use PDF analysis for PDFs", ErrUnsupportedInput)
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.timeout())
	defer cancel()

	img, err := imaging.Load(path, d.cfg.MaxImageDim)
	if err != nil {
		return out, mapImagingErr(err)
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	score, verdict, analyzedPath, err := d.elaVerdict(img, path, outDir)
	if err != nil {
		return out, err
	}

	out.Score = score
	out.Verdict = verdict
	out.AnalyzedPath = analyzedPath

	d.logger.Debug("document forgery analysis",
		"path", path,
		"score", out.Score,
		"verdict", out.Verdict.String(),
	)
	return out, nil
}

// AnalyzePDFForgery rasterizes each page of the PDF at path and runs ELA on
// it. Pages are processed by a bounded worker pool but results always come
// back in physical page order, pageNumber 1..N. A single failed page is
// recorded with AnalysisFailed and does not abort the document; the call
// fails only when the PDF is unreadable, over the page cap, or every page
// failed.
func (d *Detector) AnalyzePDFForgery(ctx context.Context, path, outDir string) ([]models.PDFPageResult, error) {
	if !isPDF(path) {
		return nil, fmt.Errorf("%w: PDF analysis expects a .pdf file", ErrUnsupportedInput)
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.timeout())
	defer cancel()

	n, err := pdfrender.PageCount(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	if n == 0 {
		return []models.PDFPageResult{}, nil
	}
	if n > d.cfg.MaxPDFPages {
		return nil, fmt.Errorf("%w: %d pages exceeds limit %d", ErrTooLarge, n, d.cfg.MaxPDFPages)
	}

	results := make([]models.PDFPageResult, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.MaxPageWorkers)

	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = d.analyzePage(path, outDir, i+1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	failed := 0
	for _, r := range results {
		if r.Verdict == models.AnalysisFailed {
			failed++
		}
	}
	if failed == n {
		return results, fmt.Errorf("%w: %d of %d", ErrAllPagesFailed, failed, n)
	}

	d.logger.Debug("pdf forgery analysis",
		"path", path,
		"pages", n,
		"failed", failed,
	)
	return results, nil
}

// analyzePage renders and analyzes one page. Failures are folded into the
// returned result rather than propagated, preserving per-page isolation.
func (d *Detector) analyzePage(pdfPath, outDir string, pageNr int) models.PDFPageResult {
	result := models.PDFPageResult{PageNumber: pageNr}

	fail := func(stage string, err error) models.PDFPageResult {
		d.logger.Warn("page analysis failed",
			"path", pdfPath,
			"page", pageNr,
			"stage", stage,
			"error", err,
		)
		result.Verdict = models.AnalysisFailed
		result.Err = fmt.Sprintf("%s: %v", stage, err)
		return result
	}

	page, err := pdfrender.RenderPage(pdfPath, pageNr, d.cfg.RasterDPI, d.cfg.MaxImageDim)
	if err != nil {
		return fail("render", err)
	}

	origPath := imaging.ArtifactPath(outDir, pdfPath, imaging.PageRole(pageNr))
	if err := imaging.SavePNG(origPath, page); err != nil {
		return fail("persist page", err)
	}
	result.OriginalPath = origPath

	score, verdict, analyzedPath, err := d.elaVerdict(page, pageArtifactStem(pdfPath, pageNr), outDir)
	if err != nil {
		return fail("ela", err)
	}

	result.Score = score
	result.Verdict = verdict
	result.AnalyzedPath = analyzedPath
	return result
}

// elaVerdict runs the shared ELA pass: score, threshold verdict, and the
// policy-gated analyzed artifact named after inputPath.
func (d *Detector) elaVerdict(img image.Image, inputPath, outDir string) (float64, models.Verdict, string, error) {
	res, err := ela.Analyze(img, d.cfg.elaParams())
	if err != nil {
		return 0, models.LikelyAuthentic, "", fmt.Errorf("%w: %v", ErrInference, err)
	}

	verdict := models.LikelyAuthentic
	if res.Score > d.cfg.ForgeryThreshold {
		verdict = models.SuspiciousForgery
	}

	var analyzedPath string
	if d.wantArtifact(verdict) {
		analyzedPath = imaging.ArtifactPath(outDir, inputPath, imaging.RoleELA)
		if err := imaging.SavePNG(analyzedPath, highlight.FromGray(res.ErrorMap)); err != nil {
			return 0, models.LikelyAuthentic, "", fmt.Errorf("%w: %v", ErrArtifactWrite, err)
		}
	}

	return res.Score, verdict, analyzedPath, nil
}

// wantArtifact applies the artifact policy to a computed verdict.
func (d *Detector) wantArtifact(v models.Verdict) bool {
	if d.cfg.Artifacts == ArtifactsAlways {
		return true
	}
	return v == models.DeepfakeDetected || v == models.SuspiciousForgery
}

// pageArtifactStem builds the synthetic input name that page-level ELA
// artifacts derive from, so page N of scan.pdf yields scan_pageN_ela.png.
func pageArtifactStem(pdfPath string, pageNr int) string {
	base := filepath.Base(pdfPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return base + "_" + imaging.PageRole(pageNr)
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

func mapImagingErr(err error) error {
	switch {
	case errors.Is(err, imaging.ErrTooLarge):
		return fmt.Errorf("%w: %v", ErrTooLarge, err)
	case errors.Is(err, imaging.ErrDecode):
		return fmt.Errorf("%w: %v", ErrInvalidImage, err)
	default:
		return err
	}
}

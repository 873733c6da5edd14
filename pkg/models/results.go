package models

import (
	"path/filepath"
	"strings"
	"time"
)

// AnalysisKind identifies which of the three analysis operations a target
// should be routed to.
type AnalysisKind int

const (
	KindImage    AnalysisKind = iota // deepfake scoring of a single image
	KindDocument                     // ELA forgery analysis of a single image
	KindPDF                          // per-page ELA forgery analysis of a PDF
)

// String returns the lowercase name of the analysis kind.
func (k AnalysisKind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindDocument:
		return "document"
	case KindPDF:
		return "pdf"
	default:
		return "unknown"
	}
}

// KindForPath infers the natural analysis kind from a file extension:
// PDFs route to per-page analysis, everything else to document forgery
// analysis. Deepfake scoring is never inferred; it must be requested
// explicitly by the caller.
func KindForPath(path string) AnalysisKind {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return KindPDF
	}
	return KindDocument
}

// Verdict is a categorical label derived by thresholding a continuous score.
type Verdict int

const (
	LikelyAuthentic Verdict = iota
	DeepfakeDetected
	SuspiciousForgery
	AnalysisFailed // per-page sentinel; never produced for whole-file operations
)

// String returns the display form of the verdict.
func (v Verdict) String() string {
	switch v {
	case DeepfakeDetected:
		return "DeepFake Detected"
	case SuspiciousForgery:
		return "Suspicious Forgery"
	case AnalysisFailed:
		return "Analysis Failed"
	default:
		return "Likely Authentic"
	}
}

// MarshalText implements encoding.TextMarshaler so verdicts serialize as
// their display strings.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Explanation returns the human-readable rationale shown alongside a verdict.
func (v Verdict) Explanation(kind AnalysisKind) string {
	switch {
	case v == DeepfakeDetected:
		return "The model detected subtle artifacts consistent with AI-generated images."
	case v == SuspiciousForgery:
		return "ELA detected inconsistencies in JPEG compression levels, suggesting a potential digital modification."
	case v == AnalysisFailed:
		return "The page could not be analyzed."
	case kind == KindImage:
		return "The model did not find significant evidence of AI manipulation."
	default:
		return "The document's compression levels appear consistent, indicating it is likely unmodified."
	}
}

// AnalysisTarget is an immutable per-request description of what to analyze.
type AnalysisTarget struct {
	Path string       `json:"path"`
	Kind AnalysisKind `json:"kind"`
}

// ImageVerdict is the outcome of deepfake scoring for a single image.
// Probability is always in [0,1]; the verdict is DeepfakeDetected iff
// Probability > 0.5.
type ImageVerdict struct {
	Probability   float64 `json:"probability"`
	Verdict       Verdict `json:"verdict"`
	HighlightPath string  `json:"highlightPath,omitempty"`
}

// RealScore returns the authenticity percentage view (1-p)*100.
func (iv ImageVerdict) RealScore() float64 { return (1 - iv.Probability) * 100 }

// FakeScore returns the manipulation percentage view p*100.
func (iv ImageVerdict) FakeScore() float64 { return iv.Probability * 100 }

// DocumentForgeryResult is the outcome of ELA forgery analysis for a single
// image. Score is always in [0,100]; the verdict is SuspiciousForgery iff
// Score exceeds the configured forgery threshold.
type DocumentForgeryResult struct {
	Score        float64 `json:"score"`
	Verdict      Verdict `json:"verdict"`
	AnalyzedPath string  `json:"analyzedPath,omitempty"`
}

// PDFPageResult is the per-page outcome of PDF forgery analysis. PageNumber
// is 1-indexed and contiguous across the returned slice. A page that could
// not be rendered or analyzed carries AnalysisFailed, a zero score, and a
// non-empty Err; its sibling pages are unaffected.
type PDFPageResult struct {
	PageNumber   int     `json:"pageNumber"`
	Score        float64 `json:"score"`
	Verdict      Verdict `json:"verdict"`
	OriginalPath string  `json:"originalPageArtifact,omitempty"`
	AnalyzedPath string  `json:"analyzedArtifact,omitempty"`
	Err          string  `json:"error,omitempty"`
}

// Report is the assembled result of a dispatched analysis. Exactly one of
// Image, Document, or Pages is populated, matching Target.Kind.
type Report struct {
	Target       AnalysisTarget         `json:"target"`
	Image        *ImageVerdict          `json:"image,omitempty"`
	Document     *DocumentForgeryResult `json:"document,omitempty"`
	Pages        []PDFPageResult        `json:"pages,omitempty"`
	Explanation  string                 `json:"explanation,omitempty"`
	AnalysisTime time.Time              `json:"analysisTime"`
	Duration     time.Duration          `json:"analysisDuration"`
}

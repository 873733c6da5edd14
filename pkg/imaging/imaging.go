// Package imaging provides image decoding, resampling, and artifact
// persistence shared by the forensic analyzers.
package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Sentinel errors reported by this package.
var (
	ErrDecode   = errors.New("image cannot be decoded")
	ErrTooLarge = errors.New("image dimensions exceed configured limit")
)

// Artifact role suffixes. Names derived from the same input and role are
// stable across runs, so re-analyzing a file overwrites its own artifacts
// and never collides with artifacts from other inputs.
const (
	RoleHighlight = "highlight"
	RoleELA       = "ela"
)

// PageRole returns the artifact role for a rasterized PDF page.
func PageRole(pageNumber int) string {
	return fmt.Sprintf("page%d", pageNumber)
}

// ArtifactPath builds the deterministic output path for an artifact derived
// from inputPath with the given role, e.g. "scan.jpg" + "ela" →
// "<outDir>/scan_ela.png". Artifacts are always PNG: lossless persistence
// keeps analyzed output byte-reproducible.
func ArtifactPath(outDir, inputPath, role string) string {
	base := filepath.Base(inputPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outDir, base+"_"+role+".png")
}

// Load decodes the image at path. Dimensions are checked against maxDim
// before the full decode so oversized inputs are rejected cheaply. A maxDim
// of zero disables the limit.
func Load(path string, maxDim int) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, filepath.Base(path), err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: %s: zero dimension", ErrDecode, filepath.Base(path))
	}
	if maxDim > 0 && (cfg.Width > maxDim || cfg.Height > maxDim) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d", ErrTooLarge, cfg.Width, cfg.Height, maxDim)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, filepath.Base(path), err)
	}
	return img, nil
}

// Decode decodes an image from r, enforcing the same dimension rules as Load.
func Decode(r io.Reader, maxDim int) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: zero dimension", ErrDecode)
	}
	if maxDim > 0 && (b.Dx() > maxDim || b.Dy() > maxDim) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d", ErrTooLarge, b.Dx(), b.Dy(), maxDim)
	}
	return img, nil
}

// ToRGBA returns img as *image.RGBA, copying only when necessary.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Copy(rgba, image.Point{}, img, b, draw.Src, nil)
	return rgba
}

// Resize resamples img to width x height using Catmull-Rom interpolation.
func Resize(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// ScaleToLongEdge resamples img so its longer edge equals longEdge,
// preserving aspect ratio. Images already at or below the target are
// returned converted but unscaled.
func ScaleToLongEdge(img image.Image, longEdge int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= longEdge && h <= longEdge {
		return ToRGBA(img)
	}
	if w >= h {
		h = h * longEdge / w
		w = longEdge
	} else {
		w = w * longEdge / h
		h = longEdge
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return Resize(img, w, h)
}

// SavePNG writes img to path as PNG. PNG encoding is deterministic for a
// fixed input, which keeps analyzed artifacts byte-reproducible.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// EncodeJPEG encodes img as JPEG at the given quality into w.
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

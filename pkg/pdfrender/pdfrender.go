// Package pdfrender turns PDF pages into standalone raster images suitable
// for forensic analysis. Pages are materialized from their embedded raster
// content via pdfcpu: for the scanned documents this engine targets, each
// page carries one full-page image, which is exactly the surface ELA needs.
package pdfrender

import (
	"errors"
	"fmt"
	"image"
	"os"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"forgerylens/pkg/imaging"
)

// DefaultDPI is the target render resolution. A page's long edge is capped
// at DPI * letterLongEdgeInches; smaller page images are kept as-is rather
// than upscaled.
const (
	DefaultDPI           = 150
	letterLongEdgeInches = 11
)

// Sentinel errors reported by this package.
var (
	ErrInvalidPDF = errors.New("pdf cannot be opened")
	ErrNoRaster   = errors.New("page has no raster content")
)

// PageCount returns the number of pages in the PDF at path.
func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	return n, nil
}

// RenderPage materializes page pageNr (1-indexed) as an RGBA image scaled to
// at most dpi's letter-size long edge. maxDim bounds the decoded source
// image the same way direct image inputs are bounded.
func RenderPage(path string, pageNr, dpi, maxDim int) (*image.RGBA, error) {
	if dpi <= 0 {
		dpi = DefaultDPI
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	extracted, err := api.ExtractImagesRaw(f, []string{strconv.Itoa(pageNr)}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %v", ErrInvalidPDF, pageNr, err)
	}

	// A page may carry several images (stamps, logos); the page raster is
	// the largest one by pixel area.
	var page image.Image
	for _, pageImages := range extracted {
		for _, im := range pageImages {
			decoded, err := imaging.Decode(im, maxDim)
			if err != nil {
				continue
			}
			if page == nil || area(decoded) > area(page) {
				page = decoded
			}
		}
	}
	if page == nil {
		return nil, fmt.Errorf("%w: page %d", ErrNoRaster, pageNr)
	}

	return imaging.ScaleToLongEdge(page, dpi*letterLongEdgeInches), nil
}

func area(img image.Image) int {
	b := img.Bounds()
	return b.Dx() * b.Dy()
}

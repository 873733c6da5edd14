// Package ela implements Error Level Analysis, a forensic technique that
// recompresses an image at a known JPEG quality and measures how much each
// pixel resists recompression. Regions edited after the original save cycle
// exhibit a different error level than their surroundings; the aggregate
// score measures that divergence across blocks, not the error magnitude
// itself, so a uniformly noisy image and a uniformly clean one both score
// low while a locally respliced region scores high.
package ela

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"

	"forgerylens/pkg/imaging"
)

// Tunable defaults. All are configurable through Params; results are only
// comparable across runs when the same values are used.
const (
	DefaultQuality   = 90 // JPEG recompression quality
	DefaultScale     = 15 // amplification applied to per-pixel error
	DefaultBlockSize = 16 // block edge for the inconsistency aggregate
)

// ErrBadParams reports an out-of-range quality or scale.
var ErrBadParams = errors.New("ela: invalid parameters")

// Params holds the named constants of the analysis.
type Params struct {
	Quality   int // JPEG quality used for the recompression pass, 1..100
	Scale     int // error amplification factor, >= 1
	BlockSize int // block edge for the inconsistency aggregate, >= 1
}

// DefaultParams returns the standard analysis parameters.
func DefaultParams() Params {
	return Params{Quality: DefaultQuality, Scale: DefaultScale, BlockSize: DefaultBlockSize}
}

// Validate checks that the parameters are usable.
func (p Params) Validate() error {
	if p.Quality < 1 || p.Quality > 100 {
		return fmt.Errorf("%w: quality %d outside 1..100", ErrBadParams, p.Quality)
	}
	if p.Scale < 1 {
		return fmt.Errorf("%w: scale %d below 1", ErrBadParams, p.Scale)
	}
	if p.BlockSize < 1 {
		return fmt.Errorf("%w: block size %d below 1", ErrBadParams, p.BlockSize)
	}
	return nil
}

// Result carries the aggregate score and the amplified per-pixel error map.
type Result struct {
	Score    float64     // block-level error inconsistency scaled to [0,100]
	ErrorMap *image.Gray // amplified error, one byte per pixel
}

// Analyze recompresses img at p.Quality, computes the amplified per-pixel
// error against the original, and aggregates it into a [0,100] inconsistency
// score: the dispersion of per-block mean error. Error magnitude alone cannot
// separate a local splice from untouched content, because a region saved at
// a lower quality produces less recompression error than its surroundings,
// pulling a global mean down instead of up. The computation is fully
// deterministic for a fixed input and parameters.
func Analyze(img image.Image, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	src := imaging.ToRGBA(img)

	var buf bytes.Buffer
	if err := imaging.EncodeJPEG(&buf, src, p.Quality); err != nil {
		return nil, fmt.Errorf("ela: recompress: %w", err)
	}
	recompressed, err := imaging.Decode(&buf, 0)
	if err != nil {
		return nil, fmt.Errorf("ela: decode recompressed: %w", err)
	}
	rec := imaging.ToRGBA(recompressed)

	b := src.Bounds()
	errMap := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := src.PixOffset(x, y)
			j := rec.PixOffset(x-b.Min.X+rec.Bounds().Min.X, y-b.Min.Y+rec.Bounds().Min.Y)

			// Max channel difference, amplified and clamped.
			var maxDiff int
			for c := 0; c < 3; c++ {
				d := int(src.Pix[i+c]) - int(rec.Pix[j+c])
				if d < 0 {
					d = -d
				}
				if d > maxDiff {
					maxDiff = d
				}
			}
			amp := maxDiff * p.Scale
			if amp > 255 {
				amp = 255
			}

			errMap.Pix[errMap.PixOffset(x-b.Min.X, y-b.Min.Y)] = uint8(amp)
		}
	}

	return &Result{Score: blockDispersion(errMap, p.BlockSize), ErrorMap: errMap}, nil
}

// blockDispersion reduces the error map to per-block mean errors and scores
// how unevenly they are distributed: the coefficient of variation of the
// block means, scaled to [0,100]. An image with a uniform compression
// history keeps similar error in every block regardless of how large that
// error is; a region recompressed at a different quality shifts its blocks
// away from the rest and the dispersion rises. Images no larger than a
// single block carry no measurable inconsistency and score zero.
func blockDispersion(m *image.Gray, blockSize int) float64 {
	b := m.Bounds()
	bw := (b.Dx() + blockSize - 1) / blockSize
	bh := (b.Dy() + blockSize - 1) / blockSize
	if bw < 1 || bh < 1 {
		return 0
	}

	sums := make([]float64, bw*bh)
	counts := make([]int, bw*bh)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			bi := (y/blockSize)*bw + x/blockSize
			sums[bi] += float64(m.Pix[m.PixOffset(x+b.Min.X, y+b.Min.Y)])
			counts[bi]++
		}
	}

	var mean float64
	for i := range sums {
		sums[i] /= float64(counts[i])
		mean += sums[i]
	}
	mean /= float64(len(sums))
	if mean == 0 {
		return 0
	}

	var variance float64
	for _, v := range sums {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(sums))

	score := math.Sqrt(variance) / mean * 100
	if score > 100 {
		score = 100
	}
	return score
}

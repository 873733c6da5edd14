// Package highlight renders heat-style visualizations of forensic error maps
// and saliency grids, and blends them over the originating image.
package highlight

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"forgerylens/pkg/imaging"
)

// Colormap maps a normalized intensity in [0,1] onto a blue→cyan→green→
// yellow→red heat ramp. Values outside the range are clamped.
func Colormap(v float64) color.RGBA {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	// Four linear segments of the ramp.
	switch {
	case v < 0.25:
		t := v / 0.25
		return color.RGBA{0, uint8(255 * t), 255, 255}
	case v < 0.5:
		t := (v - 0.25) / 0.25
		return color.RGBA{0, 255, uint8(255 * (1 - t)), 255}
	case v < 0.75:
		t := (v - 0.5) / 0.25
		return color.RGBA{uint8(255 * t), 255, 0, 255}
	default:
		t := (v - 0.75) / 0.25
		return color.RGBA{255, uint8(255 * (1 - t)), 0, 255}
	}
}

// FromGray renders a grayscale error map through the heat colormap.
// Intensity 0 maps to the cold end and 255 to the hot end.
func FromGray(m *image.Gray) *image.RGBA {
	b := m.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := float64(m.GrayAt(x, y).Y) / 255
			out.SetRGBA(x-b.Min.X, y-b.Min.Y, Colormap(v))
		}
	}
	return out
}

// FromGrid renders a saliency grid (one cell per value) through the heat
// colormap, normalizing the grid to its own min/max first. A flat grid
// renders entirely cold.
func FromGrid(grid [][]float64) *image.RGBA {
	rows := len(grid)
	if rows == 0 {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	cols := len(grid[0])

	lo, hi := grid[0][0], grid[0][0]
	for _, row := range grid {
		for _, v := range row {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, cols, rows))
	for y, row := range grid {
		for x, v := range row {
			n := 0.0
			if hi > lo {
				n = (v - lo) / (hi - lo)
			}
			out.SetRGBA(x, y, Colormap(n))
		}
	}
	return out
}

// Blend scales heat to the bounds of base and alpha-composites it on top.
// Alpha is the heat layer's opacity in [0,1]; 0 returns the base unchanged.
func Blend(base image.Image, heat image.Image, alpha float64) *image.RGBA {
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}

	out := imaging.ToRGBA(base)
	b := out.Bounds()

	scaled := image.NewRGBA(b)
	draw.ApproxBiLinear.Scale(scaled, b, heat, heat.Bounds(), draw.Src, nil)

	a := uint32(alpha * 256)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := out.PixOffset(x, y)
			j := scaled.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				bg := uint32(out.Pix[i+c])
				fg := uint32(scaled.Pix[j+c])
				out.Pix[i+c] = uint8((fg*a + bg*(256-a)) >> 8)
			}
			out.Pix[i+3] = 0xff
		}
	}
	return out
}

package classifier

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/bep/imagemeta"
	"github.com/corona10/goimagehash"

	"forgerylens/pkg/ela"
	"forgerylens/pkg/imaging"
)

// selfHashQuality is the recompression quality used by the frequency branch.
// Deliberately lower than the ELA quality so the perceptual hash sees the
// image through an aggressive compression cycle.
const selfHashQuality = 75

// neutralMetadataScore is the metadata feature when no signal is available:
// both AI generators and privacy strippers produce bare files, so absence of
// metadata is weak evidence either way.
const neutralMetadataScore = 0.5

// extractFeatures runs all feature branches on img and returns the feature
// vector plus the per-block saliency grid. Cancellation is honored between
// branches.
func extractFeatures(ctx context.Context, img image.Image, raw []byte) (Features, [][]float64, error) {
	var feats Features

	input := imaging.Resize(img, InputSize, InputSize)

	if err := ctx.Err(); err != nil {
		return feats, nil, err
	}
	uniformity, residualBlocks := residualUniformity(input)
	feats.ResidualUniformity = uniformity

	if err := ctx.Err(); err != nil {
		return feats, nil, err
	}
	elaRes, err := ela.Analyze(input, ela.DefaultParams())
	if err != nil {
		return feats, nil, fmt.Errorf("classifier: ela branch: %w", err)
	}
	feats.ELAEnergy = elaRes.Score / 100
	elaBlocks := blockMeans(elaRes.ErrorMap)

	if err := ctx.Err(); err != nil {
		return feats, nil, err
	}
	dist, err := hashSelfDistance(input)
	if err != nil {
		return feats, nil, fmt.Errorf("classifier: frequency branch: %w", err)
	}
	feats.HashSelfDistance = dist

	feats.MetadataFingerprint = metadataFingerprint(raw)

	saliency := make([][]float64, GridSize)
	for y := 0; y < GridSize; y++ {
		saliency[y] = make([]float64, GridSize)
		for x := 0; x < GridSize; x++ {
			saliency[y][x] = residualBlocks[y][x] + elaBlocks[y][x]
		}
	}

	return feats, saliency, nil
}

// residualUniformity measures how uniformly high-frequency noise is spread
// across the image. Camera sensors leave unevenly distributed noise; AI
// generators tend to produce an unnaturally uniform residual. Returns the
// uniformity score in [0,1] plus the per-block residual energy grid.
func residualUniformity(input *image.RGBA) (float64, [][]float64) {
	lum := make([]float64, InputSize*InputSize)
	for y := 0; y < InputSize; y++ {
		for x := 0; x < InputSize; x++ {
			i := input.PixOffset(x, y)
			r := float64(input.Pix[i])
			g := float64(input.Pix[i+1])
			b := float64(input.Pix[i+2])
			lum[y*InputSize+x] = 0.299*r + 0.587*g + 0.114*b
		}
	}

	blocks := make([][]float64, GridSize)
	for i := range blocks {
		blocks[i] = make([]float64, GridSize)
	}

	// Laplacian high-pass over the interior; accumulate per-block energy.
	counts := make([][]int, GridSize)
	for i := range counts {
		counts[i] = make([]int, GridSize)
	}
	for y := 1; y < InputSize-1; y++ {
		for x := 1; x < InputSize-1; x++ {
			c := lum[y*InputSize+x]
			hp := math.Abs(4*c - lum[(y-1)*InputSize+x] - lum[(y+1)*InputSize+x] -
				lum[y*InputSize+x-1] - lum[y*InputSize+x+1])
			by, bx := y/BlockSize, x/BlockSize
			blocks[by][bx] += hp
			counts[by][bx]++
		}
	}

	var mean float64
	for y := 0; y < GridSize; y++ {
		for x := 0; x < GridSize; x++ {
			if counts[y][x] > 0 {
				blocks[y][x] /= float64(counts[y][x])
			}
			mean += blocks[y][x]
		}
	}
	mean /= GridSize * GridSize

	if mean == 0 {
		// No high-frequency content at all (flat synthetic image).
		return 1, blocks
	}

	var variance float64
	for y := 0; y < GridSize; y++ {
		for x := 0; x < GridSize; x++ {
			d := blocks[y][x] - mean
			variance += d * d
		}
	}
	variance /= GridSize * GridSize

	cv := math.Sqrt(variance) / mean
	uniformity := 1 - cv
	if uniformity < 0 {
		uniformity = 0
	}
	return uniformity, blocks
}

// blockMeans reduces an InputSize x InputSize error map to the saliency grid,
// normalizing each cell to [0,1].
func blockMeans(m *image.Gray) [][]float64 {
	blocks := make([][]float64, GridSize)
	for i := range blocks {
		blocks[i] = make([]float64, GridSize)
	}
	b := m.Bounds()
	for y := 0; y < b.Dy() && y < InputSize; y++ {
		for x := 0; x < b.Dx() && x < InputSize; x++ {
			blocks[y/BlockSize][x/BlockSize] += float64(m.Pix[m.PixOffset(x+b.Min.X, y+b.Min.Y)])
		}
	}
	denom := float64(BlockSize * BlockSize * 255)
	for y := 0; y < GridSize; y++ {
		for x := 0; x < GridSize; x++ {
			blocks[y][x] /= denom
		}
	}
	return blocks
}

// hashSelfDistance compares the perceptual hash of the input against the
// hash of an aggressively recompressed copy. Natural photographs survive a
// compression cycle with a near-identical hash; images whose frequency
// content is synthetic or already heavily manipulated drift further.
func hashSelfDistance(input *image.RGBA) (float64, error) {
	orig, err := goimagehash.PerceptionHash(input)
	if err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	if err := imaging.EncodeJPEG(&buf, input, selfHashQuality); err != nil {
		return 0, err
	}
	rec, err := imaging.Decode(&buf, 0)
	if err != nil {
		return 0, err
	}
	recHash, err := goimagehash.PerceptionHash(rec)
	if err != nil {
		return 0, err
	}

	dist, err := orig.Distance(recHash)
	if err != nil {
		return 0, err
	}
	return float64(dist) / 64, nil
}

// generatorKeywords fingerprint known AI image generators in software and
// creator-tool metadata fields.
var generatorKeywords = []string{
	"midjourney",
	"stable diffusion",
	"stablediffusion",
	"dall-e",
	"dall·e",
	"dalle",
	"firefly",
	"flux",
	"imagen",
	"leonardo.ai",
	"runway",
	"ai generated",
}

// editorKeywords fingerprint common raster editors.
var editorKeywords = []string{
	"photoshop",
	"gimp",
	"affinity photo",
	"paint.net",
	"pixelmator",
}

// metadataFingerprint scores the metadata branch from raw encoded bytes.
// Graceful degradation throughout: any parse failure yields the neutral
// score rather than an error, mirroring how little weight absent metadata
// deserves.
func metadataFingerprint(raw []byte) float64 {
	software, hasCamera, found := extractProvenance(raw)
	return scoreProvenance(software, hasCamera, found)
}

// scoreProvenance turns the parsed provenance signals into the feature tiers.
func scoreProvenance(software string, hasCamera, found bool) float64 {
	if !found {
		return neutralMetadataScore
	}

	lower := strings.ToLower(software)
	for _, kw := range generatorKeywords {
		if strings.Contains(lower, kw) {
			return 1.0
		}
	}

	edited := false
	for _, kw := range editorKeywords {
		if strings.Contains(lower, kw) {
			edited = true
			break
		}
	}

	switch {
	case edited && !hasCamera:
		return 0.7
	case edited:
		return 0.4
	case hasCamera:
		return 0.1
	default:
		return 0.3
	}
}

// provenanceTags maps (source, tag-name) → true for the tags the metadata
// branch inspects.
var provenanceTags = map[imagemeta.Source]map[string]bool{
	imagemeta.EXIF: {
		"Software": true,
		"Make":     true,
		"Model":    true,
	},
	imagemeta.XMP: {
		"CreatorTool": true,
	},
}

// extractProvenance parses EXIF/XMP from raw bytes and returns the combined
// software/creator-tool string, whether camera make/model fields are present,
// and whether any inspected tag was found at all.
func extractProvenance(raw []byte) (software string, hasCamera, found bool) {
	if len(raw) == 0 {
		return "", false, false
	}

	var tools []string

	_, err := imagemeta.Decode(imagemeta.Options{
		R:       bytes.NewReader(raw),
		Sources: imagemeta.EXIF | imagemeta.XMP,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			if tags, ok := provenanceTags[ti.Source]; ok {
				return tags[ti.Tag]
			}
			return false
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			s, _ := ti.Value.(string)
			if s == "" {
				return nil
			}
			found = true
			switch ti.Tag {
			case "Software", "CreatorTool":
				tools = append(tools, s)
			case "Make", "Model":
				hasCamera = true
			}
			return nil
		},
	})
	if err != nil {
		return "", false, false
	}

	return strings.Join(tools, " "), hasCamera, found
}

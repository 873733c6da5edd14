// Package classifier implements the hybrid deepfake model: a logistic
// combination of spatial, recompression, frequency, and metadata signals
// collapsed into a single manipulation probability. Weights are loaded once
// at startup and the model is immutable afterwards.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/BurntSushi/toml"
)

// Model input geometry. Every image is resampled to InputSize x InputSize
// before feature extraction; saliency is computed on a GridSize x GridSize
// block grid over that input.
const (
	InputSize = 256
	BlockSize = 16
	GridSize  = InputSize / BlockSize
)

// ErrBadWeights reports a weight file that parsed but fails validation.
var ErrBadWeights = errors.New("classifier: invalid weight file")

// Weights are the learned parameters of the logistic combination. Positive
// weights push toward a manipulation verdict.
type Weights struct {
	Bias                float64 `toml:"bias"`
	ResidualUniformity  float64 `toml:"residual_uniformity"`
	ELAEnergy           float64 `toml:"ela_energy"`
	HashSelfDistance    float64 `toml:"hash_self_distance"`
	MetadataFingerprint float64 `toml:"metadata_fingerprint"`
}

// Features are the extracted per-image signals, each normalized to [0,1].
type Features struct {
	ResidualUniformity  float64 `json:"residualUniformity"`
	ELAEnergy           float64 `json:"elaEnergy"`
	HashSelfDistance    float64 `json:"hashSelfDistance"`
	MetadataFingerprint float64 `json:"metadataFingerprint"`
}

// Model wraps a fixed set of weights. Safe for concurrent use: prediction
// never mutates model state.
type Model struct {
	w Weights
}

// DefaultModel returns a model with the baked-in reference weights.
func DefaultModel() *Model {
	return &Model{w: Weights{
		Bias:                -2.0,
		ResidualUniformity:  1.8,
		ELAEnergy:           1.2,
		HashSelfDistance:    1.6,
		MetadataFingerprint: 2.2,
	}}
}

// LoadModel reads a TOML weight file and returns an immutable model.
func LoadModel(path string) (*Model, error) {
	var w Weights
	if _, err := toml.DecodeFile(path, &w); err != nil {
		return nil, fmt.Errorf("classifier: read weights %s: %w", path, err)
	}
	if err := validateWeights(w); err != nil {
		return nil, err
	}
	return &Model{w: w}, nil
}

func validateWeights(w Weights) error {
	for name, v := range map[string]float64{
		"bias":                 w.Bias,
		"residual_uniformity":  w.ResidualUniformity,
		"ela_energy":           w.ELAEnergy,
		"hash_self_distance":   w.HashSelfDistance,
		"metadata_fingerprint": w.MetadataFingerprint,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrBadWeights, name)
		}
	}
	return nil
}

// Prediction is the output of a forward pass.
type Prediction struct {
	Probability float64     // manipulation likelihood in [0,1]
	Features    Features    // the extracted signals behind the score
	Saliency    [][]float64 // GridSize x GridSize block contribution map
}

// Predict runs the forward pass on a decoded image. The raw encoded bytes
// feed the metadata branch; pass nil to skip it (its feature degrades to the
// neutral value). The context bounds the pass; cancellation aborts between
// feature stages.
func (m *Model) Predict(ctx context.Context, img image.Image, raw []byte) (*Prediction, error) {
	feats, saliency, err := extractFeatures(ctx, img, raw)
	if err != nil {
		return nil, err
	}

	z := m.w.Bias +
		m.w.ResidualUniformity*feats.ResidualUniformity +
		m.w.ELAEnergy*feats.ELAEnergy +
		m.w.HashSelfDistance*feats.HashSelfDistance +
		m.w.MetadataFingerprint*feats.MetadataFingerprint

	p := sigmoid(z)
	if math.IsNaN(p) {
		return nil, fmt.Errorf("classifier: non-finite activation")
	}

	return &Prediction{Probability: p, Features: feats, Saliency: saliency}, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

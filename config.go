package cevae

import "fmt"

// Default network sizes, matching the reference architecture for
// causal effect inference with deep latent-variable models.
const (
	DefaultLatentDim = 20
	DefaultHiddenDim = 200
	DefaultNumLayers = 3
)

// Config specifies the sizes of every network in the model and guide.
// All fields must be positive. A Config is validated once at
// construction of the CEVAE and never mutated afterwards; the model
// and guide share it read-only.
type Config struct {
	// FeatureDim is the dimension of the feature space x
	FeatureDim int

	// LatentDim is the dimension of the latent confounder z
	LatentDim int

	// HiddenDim is the width of the hidden layers of all fully
	// connected networks
	HiddenDim int

	// NumLayers is the number of hidden layers in all fully
	// connected networks
	NumLayers int
}

// DefaultConfig returns a Config for the given feature dimension with
// all other sizes at their defaults.
func DefaultConfig(featureDim int) Config {
	return Config{
		FeatureDim: featureDim,
		LatentDim:  DefaultLatentDim,
		HiddenDim:  DefaultHiddenDim,
		NumLayers:  DefaultNumLayers,
	}
}

func (c Config) validate() error {
	fields := []struct {
		name string
		size int
	}{
		{"FeatureDim", c.FeatureDim},
		{"LatentDim", c.LatentDim},
		{"HiddenDim", c.HiddenDim},
		{"NumLayers", c.NumLayers},
	}

	for _, field := range fields {
		if field.size <= 0 {
			return fmt.Errorf("expected %v > 0 but got %v", field.name,
				field.size)
		}
	}

	return nil
}

// hiddenSizes returns NumLayers copies of HiddenDim.
func (c Config) hiddenSizes() []int {
	sizes := make([]int, c.NumLayers)
	for i := range sizes {
		sizes[i] = c.HiddenDim
	}
	return sizes
}

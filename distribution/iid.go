package distribution

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Event dims always taken from right...

// IID reinterprets the rightmost dims dimensions of a Distribution as
// a single joint event of independent components. Log probabilities
// and entropies are summed over the event dimensions, so a
// Distribution of shape (n, d) wrapped with dims = 1 scores each of
// its n rows as one d-dimensional event. Sampling is unaffected.
type IID struct {
	Distribution
	dims int // The number of trailing dimensions to interpret as events
}

func NewIID(d Distribution, dims int) *IID {
	return &IID{d, dims}
}

// SetDims sets the number of event dims
func (i *IID) SetDims(dims int) {
	i.dims = dims
}

func (i *IID) LogProb(x *G.Node) (*G.Node, error) {
	if x.Dims() < i.dims {
		return nil, fmt.Errorf("logProb: expected dims >= %v but got %v",
			i.dims, x.Dims())
	}

	x, err := i.Distribution.LogProb(x)
	if err != nil {
		return nil, fmt.Errorf("logProb: could not compute iid prob: %v", err)
	}

	// Combine event dims
	for j := 0; j < i.dims; j++ {
		x, err = G.Sum(x, x.Dims()-1)
		if err != nil {
			return nil, fmt.Errorf("logProb: could not combine event "+
				"dims: %v", err)
		}
	}

	return x, nil
}

func (i *IID) Entropy() (*G.Node, error) {
	x, err := i.Distribution.Entropy()
	if err != nil {
		return nil, fmt.Errorf("entropy: could not take entropy of each "+
			"i.i.d. variable: %v", err)
	}

	// Combine event dims
	for j := 0; j < i.dims; j++ {
		x, err = G.Sum(x, x.Dims()-1)
		if err != nil {
			return nil, fmt.Errorf("entropy: could not combine event "+
				"dims: %v", err)
		}
	}

	return x, nil
}

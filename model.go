package cevae

import (
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/causalgo/cevae/distribution"
	"github.com/causalgo/cevae/trace"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Model is the generative half of the CEVAE, representing a causal
// model with latent confounder z and binary treatment t:
//
//	z ~ p(z)      // latent confounder
//	x ~ p(x|z)    // partial noisy observation of z
//	t ~ p(t|z)    // treatment, whose application is biased by z
//	y ~ p(y|t,z)  // outcome
//
// Each conditional distribution is defined by a neural network. The y
// distribution is defined by a disjoint pair of networks for p(y|t=0,z)
// and p(y|t=1,z), so the two treatment arms can learn arbitrarily
// different response surfaces even under highly imbalanced treatment.
type Model struct {
	config Config

	xNet  *DiagNormalNet
	y0Net *BernoulliNet
	y1Net *BernoulliNet
	tNet  *BernoulliNet
}

// NewModel returns a new Model with networks sized by config and
// initialized from rng.
func NewModel(config Config, rng *rand.Rand) (*Model, error) {
	hidden := config.hiddenSizes()

	xNet, err := NewDiagNormalNet("model_x",
		flatSizes(config.LatentDim, hidden, config.FeatureDim), rng)
	if err != nil {
		return nil, fmt.Errorf("newModel: %v", err)
	}

	y0Net, err := NewBernoulliNet("model_y0",
		flatSizes(config.LatentDim, hidden), rng)
	if err != nil {
		return nil, fmt.Errorf("newModel: %v", err)
	}

	y1Net, err := NewBernoulliNet("model_y1",
		flatSizes(config.LatentDim, hidden), rng)
	if err != nil {
		return nil, fmt.Errorf("newModel: %v", err)
	}

	tNet, err := NewBernoulliNet("model_t", []int{config.LatentDim}, rng)
	if err != nil {
		return nil, fmt.Errorf("newModel: %v", err)
	}

	return &Model{
		config: config,
		xNet:   xNet,
		y0Net:  y0Net,
		y1Net:  y1Net,
		tNet:   tNet,
	}, nil
}

// ZDist returns the standard normal prior over the latent confounder
// for a batch of n rows, treated as one LatentDim-sized joint event
// per row.
func (m *Model) ZDist(g *G.ExprGraph, n int) (distribution.Distribution,
	error) {
	shape := []int{n, m.config.LatentDim}

	zeroT := tensor.NewDense(
		tensor.Float64,
		shape,
		tensor.WithBacking(make([]float64, n*m.config.LatentDim)),
	)
	zero := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(shape...),
		G.WithValue(zeroT),
		G.WithName("model_z_loc"),
	)

	oneT := tensor.Ones(tensor.Float64, shape...)
	one := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(shape...),
		G.WithValue(oneT),
		G.WithName("model_z_scale"),
	)

	normal, err := distribution.NewNormal(zero, one)
	if err != nil {
		return nil, fmt.Errorf("zDist: %v", err)
	}

	return distribution.NewIID(normal, 1), nil
}

// XDist returns p(x|z), a diagonal Normal over FeatureDim dimensions
// treated as one joint event per row.
func (m *Model) XDist(z *G.Node) (distribution.Distribution, error) {
	loc, scale, err := m.xNet.Fwd(z)
	if err != nil {
		return nil, fmt.Errorf("xDist: %v", err)
	}

	normal, err := distribution.NewNormal(loc, scale)
	if err != nil {
		return nil, fmt.Errorf("xDist: %v", err)
	}

	return distribution.NewIID(normal, 1), nil
}

// TDist returns p(t|z), a Bernoulli over the binary treatment.
func (m *Model) TDist(z *G.Node) (distribution.Distribution, error) {
	logits, err := m.tNet.Fwd(z)
	if err != nil {
		return nil, fmt.Errorf("tDist: %v", err)
	}

	return distribution.NewBernoulli(logits)
}

// YDist returns p(y|t,z), a Bernoulli whose logits are selected
// per-row between the two treatment-arm networks. Parameters are not
// shared among t values.
func (m *Model) YDist(t, z *G.Node) (distribution.Distribution, error) {
	logits0, err := m.y0Net.Fwd(z)
	if err != nil {
		return nil, fmt.Errorf("yDist: %v", err)
	}
	logits1, err := m.y1Net.Fwd(z)
	if err != nil {
		return nil, fmt.Errorf("yDist: %v", err)
	}

	logits, err := selectByFlag(t, logits1, logits0)
	if err != nil {
		return nil, fmt.Errorf("yDist: %v", err)
	}

	return distribution.NewBernoulli(logits)
}

// Forward runs one joint evaluation of the generative model over a
// minibatch, drawing or observing z, x, t, and y in dependency order
// under the sampler's handlers. A nil t or y is sampled rather than
// observed; x must be non-nil. The value of the y site is returned.
func (m *Model) Forward(s *trace.Sampler, x, t, y *G.Node) (*G.Node,
	error) {
	if x == nil {
		return nil, fmt.Errorf("forward: x must be non-nil")
	}

	zDist, err := m.ZDist(x.Graph(), x.Shape()[0])
	if err != nil {
		return nil, fmt.Errorf("forward: %v", err)
	}
	z, err := s.Sample("z", zDist, nil, false)
	if err != nil {
		return nil, fmt.Errorf("forward: %v", err)
	}

	xDist, err := m.XDist(z)
	if err != nil {
		return nil, fmt.Errorf("forward: %v", err)
	}
	if _, err := s.Sample("x", xDist, x, false); err != nil {
		return nil, fmt.Errorf("forward: %v", err)
	}

	tDist, err := m.TDist(z)
	if err != nil {
		return nil, fmt.Errorf("forward: %v", err)
	}
	tVal, err := s.Sample("t", tDist, t, false)
	if err != nil {
		return nil, fmt.Errorf("forward: %v", err)
	}

	yDist, err := m.YDist(tVal, z)
	if err != nil {
		return nil, fmt.Errorf("forward: %v", err)
	}
	yVal, err := s.Sample("y", yDist, y, false)
	if err != nil {
		return nil, fmt.Errorf("forward: %v", err)
	}

	return yVal, nil
}

// Params returns every parameter node of the model bound to g, in a
// stable order.
func (m *Model) Params(g *G.ExprGraph) G.Nodes {
	var params G.Nodes
	params = append(params, m.xNet.Params(g)...)
	params = append(params, m.y0Net.Params(g)...)
	params = append(params, m.y1Net.Params(g)...)
	params = append(params, m.tNet.Params(g)...)
	return params
}

// flatSizes concatenates a leading size, hidden sizes, and optional
// trailing sizes into one slice.
func flatSizes(first int, hidden []int, rest ...int) []int {
	sizes := make([]int, 0, 1+len(hidden)+len(rest))
	sizes = append(sizes, first)
	sizes = append(sizes, hidden...)
	sizes = append(sizes, rest...)
	return sizes
}

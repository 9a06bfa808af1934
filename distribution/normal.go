package distribution

import (
	"fmt"
	"math"

	"github.com/causalgo/cevae/op"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// TODO: make work with float32

// Normal is a batch of univariate normal distributions, one per
// element of the mean and standard deviation tensors. For example,
// with
//
//	mean   := [m_1, m_2, ..., m_N]
//	stddev := [s_1, s_2, ..., s_N]
//
// the Normal is considered to hold the distributions
//
//	[𝒩(m_1, s_1), 𝒩(m_2, s_2), ..., 𝒩(m_N, s_N)]
//
// The mean and standard deviation tensors constitute the shape of the
// Normal, and any input to any method must have exactly that shape.
// Batched conditional distributions are built by letting upstream
// networks emit one (mean, stddev) row per conditioning value.
//
// Normal supports the following data types:
//   - tensor.Float64
type Normal struct {
	mean    *G.Node
	meanVal G.Value

	stddev    *G.Node
	stddevVal G.Value
}

// NewNormal returns a new Normal with one distribution element per
// element of mean and stddev.
func NewNormal(mean, stddev *G.Node) (*Normal, error) {
	if !mean.Shape().Eq(stddev.Shape()) {
		return nil, fmt.Errorf("newNormal: expected mean and stddev to "+
			"have the same shape but got %v and %v", mean.Shape(),
			stddev.Shape())
	}

	if mean.Dtype() != stddev.Dtype() {
		return nil, fmt.Errorf("newNormal: expected mean and stddev to "+
			"have the same data type but got %v and %v", mean.Dtype(),
			stddev.Dtype())
	} else if mean.Dtype() != tensor.Float64 {
		return nil, fmt.Errorf("newNormal: data type %v unsupported",
			mean.Dtype())
	}

	var err error
	if mean.IsScalar() {
		mean, err = G.Reshape(mean, []int{1})
		if err != nil {
			return nil, fmt.Errorf("newNormal: could not expand mean to "+
				"shape (1): %v", err)
		}
		stddev, err = G.Reshape(stddev, []int{1})
		if err != nil {
			return nil, fmt.Errorf("newNormal: could not expand stddev to "+
				"shape (1): %v", err)
		}
	}

	normal := &Normal{
		mean:   mean,
		stddev: stddev,
	}

	G.Read(normal.mean, &normal.meanVal)
	G.Read(normal.stddev, &normal.stddevVal)

	return normal, nil
}

// LogProb calculates the element-wise log probability density of x.
// The shape of x must equal the shape of the Normal.
func (n *Normal) LogProb(x *G.Node) (*G.Node, error) {
	x, err := n.checkShape(x)
	if err != nil {
		return nil, fmt.Errorf("logProb: %v", err)
	}

	negativeHalf := x.Graph().Constant(G.NewF64(-0.5))
	two := x.Graph().Constant(G.NewF64(2.0))
	lnRootTwoPi := x.Graph().Constant(G.NewF64(math.Log(math.Sqrt(
		math.Pi * 2.))))

	x = G.Must(G.Sub(x, n.mean))
	x = G.Must(G.HadamardDiv(x, n.stddev))
	x = G.Must(G.Pow(x, two))
	x = G.Must(G.HadamardProd(negativeHalf, x))
	lnStd := G.Must(G.Log(n.stddev))
	x = G.Must(G.Sub(x, lnStd))
	x = G.Must(G.Sub(x, lnRootTwoPi))

	return x, nil
}

// Prob calculates the element-wise probability density of x. The
// shape of x must equal the shape of the Normal.
func (n *Normal) Prob(x *G.Node) (*G.Node, error) {
	logProb, err := n.LogProb(x)
	if err != nil {
		return nil, fmt.Errorf("prob: %v", err)
	}

	return G.Exp(logProb)
}

// Cdf computes the element-wise cumulative distribution function of
// x. The shape of x must equal the shape of the Normal.
func (n *Normal) Cdf(x *G.Node) (*G.Node, error) {
	x, err := n.checkShape(x)
	if err != nil {
		return nil, fmt.Errorf("cdf: %v", err)
	}

	rootTwo := x.Graph().Constant(G.NewF64(math.Sqrt(2.0)))
	one := x.Graph().Constant(G.NewF64(1.0))
	half := x.Graph().Constant(G.NewF64(0.5))

	x = G.Must(G.Sub(x, n.mean))
	x = G.Must(G.HadamardDiv(x, n.stddev))
	x = G.Must(G.HadamardDiv(x, rootTwo))
	x, err = op.Erf(x)
	if err != nil {
		return nil, fmt.Errorf("cdf: %v", err)
	}
	x = G.Must(G.Add(one, x))
	x = G.Must(G.HadamardProd(half, x))

	return x, nil
}

// Cdfinv computes the element-wise inverse cumulative distribution
// function at probability p. The shape of p must equal the shape of
// the Normal.
func (n *Normal) Cdfinv(p *G.Node) (*G.Node, error) {
	p, err := n.checkShape(p)
	if err != nil {
		return nil, fmt.Errorf("cdfinv: %v", err)
	}

	rootTwo := p.Graph().Constant(G.NewF64(math.Sqrt(2.0)))
	one := p.Graph().Constant(G.NewF64(1.0))
	two := p.Graph().Constant(G.NewF64(2.0))

	p = G.Must(G.HadamardProd(two, p))
	p = G.Must(G.Sub(p, one))
	p, err = op.Erfinv(p)
	if err != nil {
		return nil, fmt.Errorf("cdfinv: %v", err)
	}
	p = G.Must(G.HadamardProd(p, rootTwo))
	p = G.Must(G.HadamardProd(p, n.stddev))
	p = G.Must(G.Add(n.mean, p))

	return p, nil
}

// Entropy returns the element-wise entropy of the distribution(s)
// stored by the receiver
func (n *Normal) Entropy() (*G.Node, error) {
	half := n.mean.Graph().Constant(G.NewF64(0.5))
	twoPi := n.mean.Graph().Constant(G.NewF64(math.Pi * 2.0))
	two := n.mean.Graph().Constant(G.NewF64(2.0))

	entropy := G.Must(G.Pow(n.stddev, two))
	entropy = G.Must(G.HadamardProd(entropy, twoPi))
	entropy = G.Must(G.Log(entropy))
	entropy = G.Must(G.HadamardProd(half, entropy))
	entropy = G.Must(G.Add(entropy, half))

	return entropy, nil
}

// Shape returns the shape of the distribution(s) stored by the
// receiver
func (n *Normal) Shape() tensor.Shape {
	return n.mean.Shape()
}

// Mean returns the mean of the distribution(s) stored by the
// receiver
func (n *Normal) Mean() *G.Node {
	return n.mean
}

// StdDev returns the standard deviation of the distribution(s)
// stored by the receiver
func (n *Normal) StdDev() *G.Node {
	return n.stddev
}

// Variance returns the variance of the distribution(s) stored by the
// receiver
func (n *Normal) Variance() *G.Node {
	two := n.mean.Graph().Constant(G.NewF64(2.0))
	return G.Must(G.Pow(n.stddev, two))
}

// Sample returns a node holding one non-differentiable draw per
// distribution element.
func (n *Normal) Sample(seed uint64) (*G.Node, error) {
	return NormalRand(n.mean, n.stddev, seed)
}

// Rsample returns a node holding one reparameterized draw per
// distribution element:
//
//	z = mean + stddev ⊙ ε,  ε ~ 𝒩(0, 1)
//
// Gradients flow through mean and stddev but not through ε.
func (n *Normal) Rsample(seed uint64) (*G.Node, error) {
	g := n.mean.Graph()
	shape := n.mean.Shape()

	zeroT := tensor.NewDense(
		tensor.Float64,
		shape,
		tensor.WithBacking(make([]float64, tensor.ProdInts(shape))),
	)
	zero := G.NewTensor(
		g,
		tensor.Float64,
		shape.Dims(),
		G.WithShape(shape...),
		G.WithValue(zeroT),
		G.WithName(fmt.Sprintf("rsample_zero_%d", seed)),
	)

	oneT := tensor.Ones(tensor.Float64, shape...)
	one := G.NewTensor(
		g,
		tensor.Float64,
		shape.Dims(),
		G.WithShape(shape...),
		G.WithValue(oneT),
		G.WithName(fmt.Sprintf("rsample_one_%d", seed)),
	)

	eps, err := NormalRand(zero, one, seed)
	if err != nil {
		return nil, fmt.Errorf("rsample: could not sample noise: %v", err)
	}

	scaled, err := G.HadamardProd(n.stddev, eps)
	if err != nil {
		return nil, fmt.Errorf("rsample: %v", err)
	}

	return G.Add(n.mean, scaled)
}

func (n *Normal) HasRsample() bool { return true }

// checkShape adjusts the shape of x so that it can be used in some
// method. It returns an error indicating if x is of an invalid shape
// which could not be adjusted.
func (n *Normal) checkShape(x *G.Node) (*G.Node, error) {
	if x.IsScalar() && n.mean.Shape()[0] == 1 {
		return G.Reshape(x, []int{1})
	}

	if !n.Shape().Eq(x.Shape()) {
		return nil, fmt.Errorf("expected shape to match distribution "+
			"shape %v but got %v", n.Shape(), x.Shape())
	}

	return x, nil
}

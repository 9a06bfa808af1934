package cevae

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"github.com/causalgo/cevae/op"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// scaleFloor is the smallest standard deviation a DiagNormalNet may
// emit, preventing degenerate zero-variance distributions.
const scaleFloor = 1e-10

// FullyConnected is a fully connected multi-layer network with ELU
// activations between layers and no activation after the final layer.
// Parameters are held as tensors that persist across computation
// graphs; Fwd binds them to the graph of its input, so one set of
// parameters can be reused over many per-minibatch graphs while an
// external optimizer mutates the underlying tensors in place.
type FullyConnected struct {
	name  string
	sizes []int

	weights []*tensor.Dense
	biases  []*tensor.Dense

	// Nodes bound to the most recently seen graph
	graph       *G.ExprGraph
	weightNodes G.Nodes
	biasNodes   G.Nodes
}

// NewFullyConnected returns a new FullyConnected with layer widths
// sizes[0] → sizes[1] → ... → sizes[len(sizes)-1]. Weights are
// Glorot-initialized from rng; biases start at zero.
func NewFullyConnected(name string, sizes []int,
	rng *rand.Rand) (*FullyConnected, error) {
	if len(sizes) < 2 {
		return nil, fmt.Errorf("newFullyConnected: expected at least 2 "+
			"sizes but got %v", len(sizes))
	}
	for i, size := range sizes {
		if size <= 0 {
			return nil, fmt.Errorf("newFullyConnected: expected "+
				"sizes[%d] > 0 but got %v", i, size)
		}
	}

	f := &FullyConnected{
		name:    name,
		sizes:   append([]int(nil), sizes...),
		weights: make([]*tensor.Dense, len(sizes)-1),
		biases:  make([]*tensor.Dense, len(sizes)-1),
	}

	for i := 0; i < len(sizes)-1; i++ {
		in, out := sizes[i], sizes[i+1]

		dist := distuv.Normal{
			Mu:    0.0,
			Sigma: math.Sqrt(2.0 / float64(in+out)),
			Src:   rand.NewSource(rng.Uint64()),
		}
		backing := make([]float64, in*out)
		for j := range backing {
			backing[j] = dist.Rand()
		}

		f.weights[i] = tensor.NewDense(
			tensor.Float64,
			[]int{in, out},
			tensor.WithBacking(backing),
		)
		f.biases[i] = tensor.NewDense(
			tensor.Float64,
			[]int{out},
			tensor.WithBacking(make([]float64, out)),
		)
	}

	return f, nil
}

// bind creates nodes for the parameters on g, reusing them on
// repeated calls with the same graph.
func (f *FullyConnected) bind(g *G.ExprGraph) {
	if f.graph == g {
		return
	}

	f.graph = g
	f.weightNodes = make(G.Nodes, len(f.weights))
	f.biasNodes = make(G.Nodes, len(f.biases))

	for i := range f.weights {
		f.weightNodes[i] = G.NewMatrix(
			g,
			tensor.Float64,
			G.WithShape(f.weights[i].Shape()...),
			G.WithValue(f.weights[i]),
			G.WithName(fmt.Sprintf("%v_w%d", f.name, i)),
		)
		f.biasNodes[i] = G.NewVector(
			g,
			tensor.Float64,
			G.WithShape(f.biases[i].Shape()...),
			G.WithValue(f.biases[i]),
			G.WithName(fmt.Sprintf("%v_b%d", f.name, i)),
		)
	}
}

// Params returns the parameter nodes bound to g, in a stable order.
func (f *FullyConnected) Params(g *G.ExprGraph) G.Nodes {
	f.bind(g)

	params := make(G.Nodes, 0, len(f.weightNodes)*2)
	for i := range f.weightNodes {
		params = append(params, f.weightNodes[i], f.biasNodes[i])
	}

	return params
}

// Fwd applies the network to a batch x of shape (n, sizes[0]),
// returning a node of shape (n, sizes[len(sizes)-1]).
func (f *FullyConnected) Fwd(x *G.Node) (*G.Node, error) {
	f.bind(x.Graph())

	out := x
	var err error
	for i := range f.weightNodes {
		out, err = G.Mul(out, f.weightNodes[i])
		if err != nil {
			return nil, fmt.Errorf("fwd: could not apply layer %d of %v: "+
				"%v", i, f.name, err)
		}

		out, err = G.BroadcastAdd(out, f.biasNodes[i], nil, []byte{0})
		if err != nil {
			return nil, fmt.Errorf("fwd: could not add bias %d of %v: %v",
				i, f.name, err)
		}

		if i < len(f.weightNodes)-1 {
			out, err = op.Elu(out)
			if err != nil {
				return nil, fmt.Errorf("fwd: could not activate layer %d "+
					"of %v: %v", i, f.name, err)
			}
		}
	}

	return out, nil
}

// DiagNormalNet is a FullyConnected network outputting a constrained
// (loc, scale) pair, representing the conditional distribution of a
// sizes[len(sizes)-1]-dimensional diagonal Normal random variable
// given a sizes[0]-dimensional real value. The scale is squashed
// through a softplus and floored at scaleFloor.
type DiagNormalNet struct {
	fc     *FullyConnected
	outDim int
}

func NewDiagNormalNet(name string, sizes []int,
	rng *rand.Rand) (*DiagNormalNet, error) {
	if len(sizes) < 2 {
		return nil, fmt.Errorf("newDiagNormalNet: expected at least 2 "+
			"sizes but got %v", len(sizes))
	}

	outDim := sizes[len(sizes)-1]
	fcSizes := append(append([]int(nil), sizes[:len(sizes)-1]...), outDim*2)

	fc, err := NewFullyConnected(name, fcSizes, rng)
	if err != nil {
		return nil, fmt.Errorf("newDiagNormalNet: %v", err)
	}

	return &DiagNormalNet{fc: fc, outDim: outDim}, nil
}

// Params returns the parameter nodes bound to g, in a stable order.
func (d *DiagNormalNet) Params(g *G.ExprGraph) G.Nodes {
	return d.fc.Params(g)
}

// Fwd applies the network to a batch x of shape (n, sizes[0]),
// returning loc and scale nodes each of shape (n, outDim). The scale
// is strictly positive for any input.
func (d *DiagNormalNet) Fwd(x *G.Node) (*G.Node, *G.Node, error) {
	out, err := d.fc.Fwd(x)
	if err != nil {
		return nil, nil, fmt.Errorf("fwd: %v", err)
	}

	loc, err := G.Slice(out, nil, G.S(0, d.outDim))
	if err != nil {
		return nil, nil, fmt.Errorf("fwd: could not slice loc: %v", err)
	}

	rawScale, err := G.Slice(out, nil, G.S(d.outDim, 2*d.outDim))
	if err != nil {
		return nil, nil, fmt.Errorf("fwd: could not slice scale: %v", err)
	}

	scale, err := op.Softplus(rawScale)
	if err != nil {
		return nil, nil, fmt.Errorf("fwd: could not squash scale: %v", err)
	}

	scale, err = op.Clamp(scale, scaleFloor, math.MaxFloat64, false)
	if err != nil {
		return nil, nil, fmt.Errorf("fwd: could not floor scale: %v", err)
	}

	return loc, scale, nil
}

// BernoulliNet is a FullyConnected network outputting a single logit
// per row, representing the conditional distribution of a single
// Bernoulli random variable given a sizes[0]-dimensional real value.
type BernoulliNet struct {
	fc *FullyConnected
}

func NewBernoulliNet(name string, sizes []int,
	rng *rand.Rand) (*BernoulliNet, error) {
	fc, err := NewFullyConnected(name, append(append([]int(nil),
		sizes...), 1), rng)
	if err != nil {
		return nil, fmt.Errorf("newBernoulliNet: %v", err)
	}

	return &BernoulliNet{fc: fc}, nil
}

// Params returns the parameter nodes bound to g, in a stable order.
func (b *BernoulliNet) Params(g *G.ExprGraph) G.Nodes {
	return b.fc.Params(g)
}

// Fwd applies the network to a batch x of shape (n, sizes[0]),
// returning a logit vector of shape (n).
func (b *BernoulliNet) Fwd(x *G.Node) (*G.Node, error) {
	out, err := b.fc.Fwd(x)
	if err != nil {
		return nil, fmt.Errorf("fwd: %v", err)
	}

	return G.Reshape(out, []int{x.Shape()[0]})
}

// selectByFlag returns flag ⊙ onTrue + (1 − flag) ⊙ onFalse
// element-wise, where flag is a vector of {0, 1} values with one
// entry per row of onTrue and onFalse. Matrix arguments have the flag
// broadcast across their columns. Because the two branches are owned
// by independently parameterized networks, this implements runtime
// dispatch between twin sub-networks without sharing parameters.
func selectByFlag(flag, onTrue, onFalse *G.Node) (*G.Node, error) {
	one := flag.Graph().Constant(G.NewF64(1.0))
	flipped, err := G.Sub(one, flag)
	if err != nil {
		return nil, fmt.Errorf("selectByFlag: %v", err)
	}

	if onTrue.Dims() == flag.Dims() {
		chosen, err := G.HadamardProd(flag, onTrue)
		if err != nil {
			return nil, fmt.Errorf("selectByFlag: %v", err)
		}
		rejected, err := G.HadamardProd(flipped, onFalse)
		if err != nil {
			return nil, fmt.Errorf("selectByFlag: %v", err)
		}

		return G.Add(chosen, rejected)
	}

	// Matrix case: broadcast the flag across columns
	n := flag.Shape()[0]
	col, err := G.Reshape(flag, []int{n, 1})
	if err != nil {
		return nil, fmt.Errorf("selectByFlag: %v", err)
	}
	flippedCol, err := G.Reshape(flipped, []int{n, 1})
	if err != nil {
		return nil, fmt.Errorf("selectByFlag: %v", err)
	}

	chosen, err := G.BroadcastHadamardProd(onTrue, col, nil, []byte{1})
	if err != nil {
		return nil, fmt.Errorf("selectByFlag: %v", err)
	}
	rejected, err := G.BroadcastHadamardProd(onFalse, flippedCol, nil,
		[]byte{1})
	if err != nil {
		return nil, fmt.Errorf("selectByFlag: %v", err)
	}

	return G.Add(chosen, rejected)
}

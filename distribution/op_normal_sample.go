package distribution

import (
	"fmt"
	"hash"

	"golang.org/x/exp/rand"

	"github.com/causalgo/cevae/op"
	"github.com/chewxy/hm"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

type normalSampleOp struct {
	dt     tensor.Dtype
	shape  tensor.Shape
	seed   uint64
	dist   distuv.Normal
	source rand.Source
}

func newNormalSampleOp(dt tensor.Dtype, seed uint64,
	shape ...int) (*normalSampleOp, error) {
	if dt != tensor.Float64 {
		return nil, fmt.Errorf("newNormalSampleOp: dtype %v not supported",
			dt)
	}

	source := rand.NewSource(seed)

	return &normalSampleOp{
		dt:     dt,
		shape:  tensor.Shape(shape),
		seed:   seed,
		source: source,
		dist: distuv.Normal{
			Mu:    0.0,
			Sigma: 1.0,
			Src:   source,
		},
	}, nil
}

func (n *normalSampleOp) Arity() int { return 2 }

func (n *normalSampleOp) Type() hm.Type {
	tt := G.TensorType{
		Dims: n.shape.Dims(),
		Of:   n.dt,
	}

	return hm.NewFnType(tt, tt, tt)
}

func (n *normalSampleOp) InferShape(...G.DimSizer) (tensor.Shape, error) {
	return n.shape, nil
}

func (n *normalSampleOp) ReturnsPtr() bool { return false }

func (n *normalSampleOp) CallsExtern() bool { return false }

func (n *normalSampleOp) OverwritesInput() int { return -1 }

// String identifies the op. The seed is included so that draws with
// different seeds are never deduplicated into one graph node.
func (n *normalSampleOp) String() string {
	return fmt.Sprintf("NormalSample{shape=%v, seed=%d}()", n.shape, n.seed)
}

func (n *normalSampleOp) WriteHash(h hash.Hash) {
	fmt.Fprint(h, n.String())
}

func (n *normalSampleOp) Hashcode() uint32 {
	return op.SimpleHash(n)
}

// DiffWRT marks the draw as non-differentiable in both parameters so
// that symbolic differentiation passes over it. Gradients flow through
// the location and scale only when the draw is combined with them
// outside the op, as in reparameterized sampling.
func (n *normalSampleOp) DiffWRT(inputs int) []bool {
	if inputs != 2 {
		panic(fmt.Sprintf("normalSample operator only supports two "+
			"inputs, got %d instead", inputs))
	}
	return []bool{false, false}
}

func (n *normalSampleOp) SymDiff(inputs G.Nodes, output,
	grad *G.Node) (G.Nodes, error) {
	if err := op.CheckArity(n, len(inputs)); err != nil {
		return nil, fmt.Errorf("symDiff: %v", err)
	}

	return G.Nodes{nil, nil}, nil
}

func (n *normalSampleOp) Do(inputs ...G.Value) (G.Value, error) {
	if err := n.checkInputs(inputs...); err != nil {
		return nil, fmt.Errorf("do: %v", err)
	}

	mean := inputs[0].(tensor.Tensor)
	std := inputs[1].(tensor.Tensor)

	out := tensor.NewDense(n.dt, n.shape.Clone())

	meanData := mean.Data().([]float64)
	stdData := std.Data().([]float64)
	outData := out.Data().([]float64)

	for i := range outData {
		n.dist.Mu = meanData[i]
		n.dist.Sigma = stdData[i]
		outData[i] = n.dist.Rand()
	}

	return out, nil
}

func (n *normalSampleOp) checkInputs(inputs ...G.Value) error {
	if err := op.CheckArity(n, len(inputs)); err != nil {
		return err
	}

	mean := inputs[0].(tensor.Tensor)
	if mean == nil {
		return fmt.Errorf("cannot sample from nil mean")
	} else if mean.Size() == 0 {
		return fmt.Errorf("cannot sample from empty mean tensor")
	} else if !mean.Shape().Eq(n.shape) {
		return fmt.Errorf("expected mean to have shape %v but got %v",
			n.shape, mean.Shape())
	} else if !mean.Dtype().Eq(n.dt) {
		return fmt.Errorf("expected mean to have dtype %v but got %v",
			n.dt, mean.Dtype())
	}

	stddev := inputs[1].(tensor.Tensor)
	if stddev == nil {
		return fmt.Errorf("cannot sample from nil stddev")
	} else if stddev.Size() == 0 {
		return fmt.Errorf("cannot sample from empty stddev tensor")
	} else if !stddev.Shape().Eq(n.shape) {
		return fmt.Errorf("expected stddev to have shape %v but got %v",
			n.shape, stddev.Shape())
	} else if !stddev.Dtype().Eq(n.dt) {
		return fmt.Errorf("expected stddev to have dtype %v but got %v",
			n.dt, stddev.Dtype())
	}

	return nil
}

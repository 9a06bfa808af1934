package distribution

import (
	"fmt"
	"hash"
	"math"

	"golang.org/x/exp/rand"

	"github.com/causalgo/cevae/op"
	"github.com/chewxy/hm"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

type bernoulliSampleOp struct {
	dt     tensor.Dtype
	shape  tensor.Shape
	seed   uint64
	dist   distuv.Bernoulli
	source rand.Source
}

func newBernoulliSampleOp(dt tensor.Dtype, seed uint64,
	shape ...int) (*bernoulliSampleOp, error) {
	if dt != tensor.Float64 {
		return nil, fmt.Errorf("newBernoulliSampleOp: dtype %v not "+
			"supported", dt)
	}

	source := rand.NewSource(seed)

	return &bernoulliSampleOp{
		dt:     dt,
		shape:  tensor.Shape(shape),
		seed:   seed,
		source: source,
		dist: distuv.Bernoulli{
			P:   0.5,
			Src: source,
		},
	}, nil
}

func (b *bernoulliSampleOp) Arity() int { return 1 }

func (b *bernoulliSampleOp) Type() hm.Type {
	tt := G.TensorType{
		Dims: b.shape.Dims(),
		Of:   b.dt,
	}

	return hm.NewFnType(tt, tt)
}

func (b *bernoulliSampleOp) InferShape(...G.DimSizer) (tensor.Shape, error) {
	return b.shape, nil
}

func (b *bernoulliSampleOp) ReturnsPtr() bool { return false }

func (b *bernoulliSampleOp) CallsExtern() bool { return false }

func (b *bernoulliSampleOp) OverwritesInput() int { return -1 }

// String identifies the op. The seed is included so that draws with
// different seeds are never deduplicated into one graph node.
func (b *bernoulliSampleOp) String() string {
	return fmt.Sprintf("BernoulliSample{shape=%v, seed=%d}()", b.shape,
		b.seed)
}

func (b *bernoulliSampleOp) WriteHash(h hash.Hash) {
	fmt.Fprint(h, b.String())
}

func (b *bernoulliSampleOp) Hashcode() uint32 {
	return op.SimpleHash(b)
}

// DiffWRT marks the draw as non-differentiable in its logits so that
// symbolic differentiation passes over it.
func (b *bernoulliSampleOp) DiffWRT(inputs int) []bool {
	if inputs != 1 {
		panic(fmt.Sprintf("bernoulliSample operator only supports one "+
			"input, got %d instead", inputs))
	}
	return []bool{false}
}

func (b *bernoulliSampleOp) SymDiff(inputs G.Nodes, output,
	grad *G.Node) (G.Nodes, error) {
	if err := op.CheckArity(b, len(inputs)); err != nil {
		return nil, fmt.Errorf("symDiff: %v", err)
	}

	return G.Nodes{nil}, nil
}

func (b *bernoulliSampleOp) Do(inputs ...G.Value) (G.Value, error) {
	if err := b.checkInputs(inputs...); err != nil {
		return nil, fmt.Errorf("do: %v", err)
	}

	logits := inputs[0].(tensor.Tensor)

	out := tensor.NewDense(b.dt, b.shape.Clone())

	logitsData := logits.Data().([]float64)
	outData := out.Data().([]float64)

	for i, logit := range logitsData {
		b.dist.P = 1.0 / (1.0 + math.Exp(-logit))
		outData[i] = b.dist.Rand()
	}

	return out, nil
}

func (b *bernoulliSampleOp) checkInputs(inputs ...G.Value) error {
	if err := op.CheckArity(b, len(inputs)); err != nil {
		return err
	}

	logits := inputs[0].(tensor.Tensor)
	if logits == nil {
		return fmt.Errorf("cannot sample from nil logits")
	} else if logits.Size() == 0 {
		return fmt.Errorf("cannot sample from empty logits tensor")
	} else if !logits.Shape().Eq(b.shape) {
		return fmt.Errorf("expected logits to have shape %v but got %v",
			b.shape, logits.Shape())
	} else if !logits.Dtype().Eq(b.dt) {
		return fmt.Errorf("expected logits to have dtype %v but got %v",
			b.dt, logits.Dtype())
	}

	return nil
}

package op

import (
	"fmt"
	"hash"
	"math"

	"github.com/chewxy/hm"
	"github.com/chewxy/math32"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// eluOp is the exponential linear unit activation
type eluOp struct{}

func newEluOp() *eluOp { return &eluOp{} }

func (e *eluOp) Arity() int { return 1 }

func (e *eluOp) Type() hm.Type {
	// All pointwise unary operations have this type:
	// op :: (Arithable a) => a -> a
	a := hm.TypeVariable('a')
	return hm.NewFnType(a, a)
}

func (e *eluOp) InferShape(inputs ...G.DimSizer) (tensor.Shape, error) {
	err := CheckArity(e, len(inputs))
	if err != nil {
		return nil, fmt.Errorf("inferShape: %v", err)
	}
	if inputs[0] == nil {
		return nil, fmt.Errorf("inferShape: nil input")
	}

	return inputs[0].(tensor.Shape), nil
}

func (e *eluOp) ReturnsPtr() bool { return false }

func (e *eluOp) CallsExtern() bool { return false }

func (e *eluOp) OverwritesInput() int { return -1 }

func (e *eluOp) String() string { return "Elu()" }

// WriteHash writes the hash of the receiver to a hash struct
func (e *eluOp) WriteHash(h hash.Hash) { fmt.Fprint(h, e.String()) }

// Hashcode returns the hash code of the receiver
func (e *eluOp) Hashcode() uint32 { return SimpleHash(e) }

func (e *eluOp) Do(inputs ...G.Value) (G.Value, error) {
	if err := checkUnaryFloats(e, inputs...); err != nil {
		return nil, fmt.Errorf("do: %v", err)
	}

	in := inputs[0].(tensor.Tensor)
	out := tensor.New(
		tensor.WithShape(in.Shape().Clone()...),
		tensor.Of(in.Dtype()),
	)

	switch in.Dtype() {
	case tensor.Float64:
		x := in.Data().([]float64)
		ret := out.Data().([]float64)
		for i, elem := range x {
			if elem > 0 {
				ret[i] = elem
			} else {
				ret[i] = math.Exp(elem) - 1.0
			}
		}

	case tensor.Float32:
		x := in.Data().([]float32)
		ret := out.Data().([]float32)
		for i, elem := range x {
			if elem > 0 {
				ret[i] = elem
			} else {
				ret[i] = math32.Exp(elem) - 1.0
			}
		}
	}

	return out, nil
}

func (e *eluOp) DiffWRT(inputs int) []bool {
	if inputs != 1 {
		panic(fmt.Sprintf("elu operator only supports one input, got %d "+
			"instead", inputs))
	}
	return []bool{true}
}

func (e *eluOp) SymDiff(inputs G.Nodes, output, grad *G.Node) (G.Nodes,
	error) {
	err := CheckArity(e, len(inputs))
	if err != nil {
		return nil, fmt.Errorf("symDiff: %v", err)
	}

	diffOp := &eluDiffOp{}
	nodes := make(G.Nodes, 1)

	nodes[0], err = G.ApplyOp(diffOp, inputs[0], grad)

	return nodes, err
}

type eluDiffOp struct{}

func (e *eluDiffOp) Arity() int { return 2 }

func (e *eluDiffOp) Type() hm.Type {
	a := hm.TypeVariable('a')
	return hm.NewFnType(a, a, a)
}

func (e *eluDiffOp) InferShape(inputs ...G.DimSizer) (tensor.Shape, error) {
	err := CheckArity(e, len(inputs))
	if err != nil {
		return nil, fmt.Errorf("inferShape: %v", err)
	}
	if inputs[0] == nil {
		return nil, fmt.Errorf("inferShape: nil input")
	}

	return inputs[0].(tensor.Shape), nil
}

func (e *eluDiffOp) ReturnsPtr() bool { return false }

func (e *eluDiffOp) CallsExtern() bool { return false }

func (e *eluDiffOp) OverwritesInput() int { return -1 }

func (e *eluDiffOp) String() string { return "EluDiff()" }

// WriteHash writes the hash of the receiver to a hash struct
func (e *eluDiffOp) WriteHash(h hash.Hash) { fmt.Fprint(h, e.String()) }

// Hashcode returns the hash code of the receiver
func (e *eluDiffOp) Hashcode() uint32 { return SimpleHash(e) }

func (e *eluDiffOp) Do(inputs ...G.Value) (G.Value, error) {
	if err := CheckArity(e, len(inputs)); err != nil {
		return nil, fmt.Errorf("do: %v", err)
	}

	in, okIn := inputs[0].(tensor.Tensor)
	upstream, okGrad := inputs[1].(tensor.Tensor)
	if !okIn || !okGrad {
		return nil, fmt.Errorf("do: expected tensor inputs but got %T "+
			"and %T", inputs[0], inputs[1])
	}

	out := tensor.New(
		tensor.WithShape(in.Shape().Clone()...),
		tensor.Of(in.Dtype()),
	)

	switch in.Dtype() {
	case tensor.Float64:
		x := in.Data().([]float64)
		grad := upstream.Data().([]float64)
		ret := out.Data().([]float64)
		for i, elem := range x {
			if elem > 0 {
				ret[i] = grad[i]
			} else {
				ret[i] = grad[i] * math.Exp(elem)
			}
		}

	case tensor.Float32:
		x := in.Data().([]float32)
		grad := upstream.Data().([]float32)
		ret := out.Data().([]float32)
		for i, elem := range x {
			if elem > 0 {
				ret[i] = grad[i]
			} else {
				ret[i] = grad[i] * math32.Exp(elem)
			}
		}
	}

	return out, nil
}

// checkUnaryFloats returns an error if the single input to a pointwise
// floating point Op is invalid
func checkUnaryFloats(op G.Op, inputs ...G.Value) error {
	if err := CheckArity(op, len(inputs)); err != nil {
		return err
	}

	t, okTensor := inputs[0].(tensor.Tensor)
	if !okTensor {
		return fmt.Errorf("expected input to be a tensor, got %T", inputs[0])
	} else if t.Size() == 0 {
		return fmt.Errorf("cannot operate on empty tensor")
	} else if t.Dtype() != tensor.Float64 && t.Dtype() != tensor.Float32 {
		return fmt.Errorf("dtype %v unsupported", t.Dtype())
	}

	return nil
}

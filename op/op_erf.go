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

// erfOp is the error function
type erfOp struct{}

func newErfOp() *erfOp { return &erfOp{} }

func (e *erfOp) Arity() int { return 1 }

func (e *erfOp) Type() hm.Type {
	a := hm.TypeVariable('a')
	return hm.NewFnType(a, a)
}

func (e *erfOp) InferShape(inputs ...G.DimSizer) (tensor.Shape, error) {
	err := CheckArity(e, len(inputs))
	if err != nil {
		return nil, fmt.Errorf("inferShape: %v", err)
	}
	if inputs[0] == nil {
		return nil, fmt.Errorf("inferShape: nil input")
	}

	return inputs[0].(tensor.Shape), nil
}

func (e *erfOp) ReturnsPtr() bool { return false }

func (e *erfOp) CallsExtern() bool { return false }

func (e *erfOp) OverwritesInput() int { return -1 }

func (e *erfOp) String() string { return "Erf()" }

// WriteHash writes the hash of the receiver to a hash struct
func (e *erfOp) WriteHash(h hash.Hash) { fmt.Fprint(h, e.String()) }

// Hashcode returns the hash code of the receiver
func (e *erfOp) Hashcode() uint32 { return SimpleHash(e) }

func (e *erfOp) Do(inputs ...G.Value) (G.Value, error) {
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
			ret[i] = math.Erf(elem)
		}

	case tensor.Float32:
		x := in.Data().([]float32)
		ret := out.Data().([]float32)
		for i, elem := range x {
			ret[i] = float32(math.Erf(float64(elem)))
		}
	}

	return out, nil
}

func (e *erfOp) DiffWRT(inputs int) []bool {
	if inputs != 1 {
		panic(fmt.Sprintf("erf operator only supports one input, got %d "+
			"instead", inputs))
	}
	return []bool{true}
}

func (e *erfOp) SymDiff(inputs G.Nodes, output, grad *G.Node) (G.Nodes,
	error) {
	err := CheckArity(e, len(inputs))
	if err != nil {
		return nil, fmt.Errorf("symDiff: %v", err)
	}

	diffOp := &erfDiffOp{}
	nodes := make(G.Nodes, 1)

	nodes[0], err = G.ApplyOp(diffOp, inputs[0], grad)

	return nodes, err
}

type erfDiffOp struct{}

func (e *erfDiffOp) Arity() int { return 2 }

func (e *erfDiffOp) Type() hm.Type {
	a := hm.TypeVariable('a')
	return hm.NewFnType(a, a, a)
}

func (e *erfDiffOp) InferShape(inputs ...G.DimSizer) (tensor.Shape, error) {
	err := CheckArity(e, len(inputs))
	if err != nil {
		return nil, fmt.Errorf("inferShape: %v", err)
	}
	if inputs[0] == nil {
		return nil, fmt.Errorf("inferShape: nil input")
	}

	return inputs[0].(tensor.Shape), nil
}

func (e *erfDiffOp) ReturnsPtr() bool { return false }

func (e *erfDiffOp) CallsExtern() bool { return false }

func (e *erfDiffOp) OverwritesInput() int { return -1 }

func (e *erfDiffOp) String() string { return "ErfDiff()" }

// WriteHash writes the hash of the receiver to a hash struct
func (e *erfDiffOp) WriteHash(h hash.Hash) { fmt.Fprint(h, e.String()) }

// Hashcode returns the hash code of the receiver
func (e *erfDiffOp) Hashcode() uint32 { return SimpleHash(e) }

func (e *erfDiffOp) Do(inputs ...G.Value) (G.Value, error) {
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

	// d/dx erf(x) = (2 / √π) * exp(-x²)
	switch in.Dtype() {
	case tensor.Float64:
		scale := 2.0 / math.Sqrt(math.Pi)
		x := in.Data().([]float64)
		grad := upstream.Data().([]float64)
		ret := out.Data().([]float64)
		for i, elem := range x {
			ret[i] = grad[i] * scale * math.Exp(-elem*elem)
		}

	case tensor.Float32:
		scale := float32(2.0 / math.Sqrt(math.Pi))
		x := in.Data().([]float32)
		grad := upstream.Data().([]float32)
		ret := out.Data().([]float32)
		for i, elem := range x {
			ret[i] = grad[i] * scale * math32.Exp(-elem*elem)
		}
	}

	return out, nil
}

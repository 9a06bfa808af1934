package op

import (
	"fmt"
	"hash"
	"math"

	"github.com/chewxy/hm"
	math32 "github.com/samuelfneumann/math32"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// erfinvOp is the inverse error function
type erfinvOp struct{}

func newErfinvOp() *erfinvOp { return &erfinvOp{} }

func (e *erfinvOp) Arity() int { return 1 }

func (e *erfinvOp) Type() hm.Type {
	a := hm.TypeVariable('a')
	return hm.NewFnType(a, a)
}

func (e *erfinvOp) InferShape(inputs ...G.DimSizer) (tensor.Shape, error) {
	err := CheckArity(e, len(inputs))
	if err != nil {
		return nil, fmt.Errorf("inferShape: %v", err)
	}
	if inputs[0] == nil {
		return nil, fmt.Errorf("inferShape: nil input")
	}

	return inputs[0].(tensor.Shape), nil
}

func (e *erfinvOp) ReturnsPtr() bool { return false }

func (e *erfinvOp) CallsExtern() bool { return false }

func (e *erfinvOp) OverwritesInput() int { return -1 }

func (e *erfinvOp) String() string { return "Erfinv()" }

// WriteHash writes the hash of the receiver to a hash struct
func (e *erfinvOp) WriteHash(h hash.Hash) { fmt.Fprint(h, e.String()) }

// Hashcode returns the hash code of the receiver
func (e *erfinvOp) Hashcode() uint32 { return SimpleHash(e) }

func (e *erfinvOp) Do(inputs ...G.Value) (G.Value, error) {
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
			ret[i] = math.Erfinv(elem)
		}

	case tensor.Float32:
		x := in.Data().([]float32)
		ret := out.Data().([]float32)
		for i, elem := range x {
			ret[i] = math32.Erfinv(elem)
		}
	}

	return out, nil
}

func (e *erfinvOp) DiffWRT(inputs int) []bool {
	if inputs != 1 {
		panic(fmt.Sprintf("erfinv operator only supports one input, got %d "+
			"instead", inputs))
	}
	return []bool{true}
}

func (e *erfinvOp) SymDiff(inputs G.Nodes, output, grad *G.Node) (G.Nodes,
	error) {
	err := CheckArity(e, len(inputs))
	if err != nil {
		return nil, fmt.Errorf("symDiff: %v", err)
	}

	diffOp := &erfinvDiffOp{}
	nodes := make(G.Nodes, 1)

	nodes[0], err = G.ApplyOp(diffOp, inputs[0], grad)

	return nodes, err
}

type erfinvDiffOp struct{}

func (e *erfinvDiffOp) Arity() int { return 2 }

func (e *erfinvDiffOp) Type() hm.Type {
	a := hm.TypeVariable('a')
	return hm.NewFnType(a, a, a)
}

func (e *erfinvDiffOp) InferShape(inputs ...G.DimSizer) (tensor.Shape,
	error) {
	err := CheckArity(e, len(inputs))
	if err != nil {
		return nil, fmt.Errorf("inferShape: %v", err)
	}
	if inputs[0] == nil {
		return nil, fmt.Errorf("inferShape: nil input")
	}

	return inputs[0].(tensor.Shape), nil
}

func (e *erfinvDiffOp) ReturnsPtr() bool { return false }

func (e *erfinvDiffOp) CallsExtern() bool { return false }

func (e *erfinvDiffOp) OverwritesInput() int { return -1 }

func (e *erfinvDiffOp) String() string { return "ErfinvDiff()" }

// WriteHash writes the hash of the receiver to a hash struct
func (e *erfinvDiffOp) WriteHash(h hash.Hash) { fmt.Fprint(h, e.String()) }

// Hashcode returns the hash code of the receiver
func (e *erfinvDiffOp) Hashcode() uint32 { return SimpleHash(e) }

func (e *erfinvDiffOp) Do(inputs ...G.Value) (G.Value, error) {
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

	// d/dx erfinv(x) = (√π / 2) * exp(erfinv(x)²)
	switch in.Dtype() {
	case tensor.Float64:
		scale := math.Sqrt(math.Pi) / 2.0
		x := in.Data().([]float64)
		grad := upstream.Data().([]float64)
		ret := out.Data().([]float64)
		for i, elem := range x {
			inv := math.Erfinv(elem)
			ret[i] = grad[i] * scale * math.Exp(inv*inv)
		}

	case tensor.Float32:
		scale := float32(math.Sqrt(math.Pi) / 2.0)
		x := in.Data().([]float32)
		grad := upstream.Data().([]float32)
		ret := out.Data().([]float32)
		for i, elem := range x {
			inv := math32.Erfinv(elem)
			ret[i] = grad[i] * scale * math32.Exp(inv*inv)
		}
	}

	return out, nil
}

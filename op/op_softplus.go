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

// softplusOp is the softplus activation ln(1 + exp(x))
type softplusOp struct{}

func newSoftplusOp() *softplusOp { return &softplusOp{} }

func (s *softplusOp) Arity() int { return 1 }

func (s *softplusOp) Type() hm.Type {
	a := hm.TypeVariable('a')
	return hm.NewFnType(a, a)
}

func (s *softplusOp) InferShape(inputs ...G.DimSizer) (tensor.Shape, error) {
	err := CheckArity(s, len(inputs))
	if err != nil {
		return nil, fmt.Errorf("inferShape: %v", err)
	}
	if inputs[0] == nil {
		return nil, fmt.Errorf("inferShape: nil input")
	}

	return inputs[0].(tensor.Shape), nil
}

func (s *softplusOp) ReturnsPtr() bool { return false }

func (s *softplusOp) CallsExtern() bool { return false }

func (s *softplusOp) OverwritesInput() int { return -1 }

func (s *softplusOp) String() string { return "Softplus()" }

// WriteHash writes the hash of the receiver to a hash struct
func (s *softplusOp) WriteHash(h hash.Hash) { fmt.Fprint(h, s.String()) }

// Hashcode returns the hash code of the receiver
func (s *softplusOp) Hashcode() uint32 { return SimpleHash(s) }

func (s *softplusOp) Do(inputs ...G.Value) (G.Value, error) {
	if err := checkUnaryFloats(s, inputs...); err != nil {
		return nil, fmt.Errorf("do: %v", err)
	}

	in := inputs[0].(tensor.Tensor)
	out := tensor.New(
		tensor.WithShape(in.Shape().Clone()...),
		tensor.Of(in.Dtype()),
	)

	// Stable form: softplus(x) = max(x, 0) + ln(1 + exp(-|x|))
	switch in.Dtype() {
	case tensor.Float64:
		x := in.Data().([]float64)
		ret := out.Data().([]float64)
		for i, elem := range x {
			ret[i] = math.Max(elem, 0) + math.Log1p(math.Exp(-math.Abs(elem)))
		}

	case tensor.Float32:
		x := in.Data().([]float32)
		ret := out.Data().([]float32)
		for i, elem := range x {
			ret[i] = math32.Max(elem, 0) +
				math32.Log1p(math32.Exp(-math32.Abs(elem)))
		}
	}

	return out, nil
}

func (s *softplusOp) DiffWRT(inputs int) []bool {
	if inputs != 1 {
		panic(fmt.Sprintf("softplus operator only supports one input, "+
			"got %d instead", inputs))
	}
	return []bool{true}
}

func (s *softplusOp) SymDiff(inputs G.Nodes, output, grad *G.Node) (G.Nodes,
	error) {
	err := CheckArity(s, len(inputs))
	if err != nil {
		return nil, fmt.Errorf("symDiff: %v", err)
	}

	diffOp := &softplusDiffOp{}
	nodes := make(G.Nodes, 1)

	nodes[0], err = G.ApplyOp(diffOp, inputs[0], grad)

	return nodes, err
}

type softplusDiffOp struct{}

func (s *softplusDiffOp) Arity() int { return 2 }

func (s *softplusDiffOp) Type() hm.Type {
	a := hm.TypeVariable('a')
	return hm.NewFnType(a, a, a)
}

func (s *softplusDiffOp) InferShape(inputs ...G.DimSizer) (tensor.Shape,
	error) {
	err := CheckArity(s, len(inputs))
	if err != nil {
		return nil, fmt.Errorf("inferShape: %v", err)
	}
	if inputs[0] == nil {
		return nil, fmt.Errorf("inferShape: nil input")
	}

	return inputs[0].(tensor.Shape), nil
}

func (s *softplusDiffOp) ReturnsPtr() bool { return false }

func (s *softplusDiffOp) CallsExtern() bool { return false }

func (s *softplusDiffOp) OverwritesInput() int { return -1 }

func (s *softplusDiffOp) String() string { return "SoftplusDiff()" }

// WriteHash writes the hash of the receiver to a hash struct
func (s *softplusDiffOp) WriteHash(h hash.Hash) { fmt.Fprint(h, s.String()) }

// Hashcode returns the hash code of the receiver
func (s *softplusDiffOp) Hashcode() uint32 { return SimpleHash(s) }

func (s *softplusDiffOp) Do(inputs ...G.Value) (G.Value, error) {
	if err := CheckArity(s, len(inputs)); err != nil {
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

	// d/dx softplus(x) = sigmoid(x)
	switch in.Dtype() {
	case tensor.Float64:
		x := in.Data().([]float64)
		grad := upstream.Data().([]float64)
		ret := out.Data().([]float64)
		for i, elem := range x {
			ret[i] = grad[i] / (1.0 + math.Exp(-elem))
		}

	case tensor.Float32:
		x := in.Data().([]float32)
		grad := upstream.Data().([]float32)
		ret := out.Data().([]float32)
		for i, elem := range x {
			ret[i] = grad[i] / (1.0 + math32.Exp(-elem))
		}
	}

	return out, nil
}

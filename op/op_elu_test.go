package op

import (
	"math"
	"math/rand"
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const threshold float64 = 1e-7 // Threshold at which floats are equal

func randomVec(size, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	backing := make([]float64, size)
	for i := range backing {
		backing[i] = (rng.Float64() - 0.5) * 10
	}
	return backing
}

func vecNode(g *G.ExprGraph, name string, backing []float64) *G.Node {
	vecT := tensor.NewDense(
		tensor.Float64,
		[]int{len(backing)},
		tensor.WithBacking(backing),
	)
	return G.NewVector(
		g,
		vecT.Dtype(),
		G.WithValue(vecT),
		G.WithName(name),
	)
}

func TestElu(t *testing.T) {
	const size = 16
	backing := randomVec(size, 1)

	g := G.NewGraph()
	in := vecNode(g, "in", backing)

	out, err := Elu(in)
	if err != nil {
		t.Fatal(err)
	}
	var outVal G.Value
	G.Read(out, &outVal)

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	data := outVal.Data().([]float64)
	for i, x := range backing {
		expected := x
		if x <= 0 {
			expected = math.Exp(x) - 1
		}
		if math.Abs(data[i]-expected) > threshold {
			t.Errorf("expected elu(%v) = %v but got %v", x, expected, data[i])
		}
	}
}

func TestEluGrad(t *testing.T) {
	const size = 16
	backing := randomVec(size, 2)

	g := G.NewGraph()
	in := vecNode(g, "in", backing)

	out, err := Elu(in)
	if err != nil {
		t.Fatal(err)
	}
	cost, err := G.Sum(out)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := G.Grad(cost, in); err != nil {
		t.Fatal(err)
	}

	vm := G.NewTapeMachine(g, G.BindDualValues(in))
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	gradVal, err := in.Grad()
	if err != nil {
		t.Fatal(err)
	}
	grads := gradVal.Data().([]float64)
	for i, x := range backing {
		expected := 1.0
		if x <= 0 {
			expected = math.Exp(x)
		}
		if math.Abs(grads[i]-expected) > threshold {
			t.Errorf("expected elu'(%v) = %v but got %v", x, expected,
				grads[i])
		}
	}
}

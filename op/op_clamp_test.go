package op

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
)

func TestClamp(t *testing.T) {
	const min, max = -1.0, 1.0
	backing := []float64{-3, -1, -0.5, 0, 0.5, 1, 3}

	g := G.NewGraph()
	in := vecNode(g, "in", backing)

	out, err := Clamp(in, min, max, false)
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
		expected := math.Min(math.Max(x, min), max)
		if math.Abs(data[i]-expected) > threshold {
			t.Errorf("expected clamp(%v) = %v but got %v", x, expected,
				data[i])
		}
	}
}

func TestClampGrad(t *testing.T) {
	const min, max = -1.0, 1.0
	backing := []float64{-3, -0.5, 0.5, 3}

	g := G.NewGraph()
	in := vecNode(g, "in", backing)

	out, err := Clamp(in, min, max, false)
	if err != nil {
		t.Fatal(err)
	}

	// Scale the cost so the upstream gradient is not all ones
	two := g.Constant(G.NewF64(2.0))
	scaled, err := G.HadamardProd(two, out)
	if err != nil {
		t.Fatal(err)
	}
	cost, err := G.Sum(scaled)
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
		expected := 0.0
		if x >= min && x <= max {
			expected = 2.0
		}
		if math.Abs(grads[i]-expected) > threshold {
			t.Errorf("expected grad at %v to be %v but got %v", x, expected,
				grads[i])
		}
	}
}

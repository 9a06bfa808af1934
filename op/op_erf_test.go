package op

import (
	"math"
	"math/rand"
	"testing"

	G "gorgonia.org/gorgonia"
)

func TestErf(t *testing.T) {
	const size = 16
	backing := randomVec(size, 5)

	g := G.NewGraph()
	in := vecNode(g, "in", backing)

	out, err := Erf(in)
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
		expected := math.Erf(x)
		if math.Abs(data[i]-expected) > threshold {
			t.Errorf("expected erf(%v) = %v but got %v", x, expected, data[i])
		}
	}
}

func TestErfinv(t *testing.T) {
	const size = 16
	rng := rand.New(rand.NewSource(6))
	backing := make([]float64, size)
	for i := range backing {
		backing[i] = rng.Float64()*1.8 - 0.9
	}

	g := G.NewGraph()
	in := vecNode(g, "in", backing)

	out, err := Erfinv(in)
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
		expected := math.Erfinv(x)
		if math.Abs(data[i]-expected) > threshold {
			t.Errorf("expected erfinv(%v) = %v but got %v", x, expected,
				data[i])
		}
	}
}

func TestErfGrad(t *testing.T) {
	const size = 16
	backing := randomVec(size, 7)

	g := G.NewGraph()
	in := vecNode(g, "in", backing)

	out, err := Erf(in)
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
		expected := 2.0 / math.Sqrt(math.Pi) * math.Exp(-x*x)
		if math.Abs(grads[i]-expected) > threshold {
			t.Errorf("expected erf'(%v) = %v but got %v", x, expected,
				grads[i])
		}
	}
}

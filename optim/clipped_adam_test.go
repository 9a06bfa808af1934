package optim

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const threshold float64 = 1e-6 // Threshold at which floats are equal

// quadratic builds the cost sum(w ⊙ w) over a parameter vector with
// the given starting values and returns the bound parameter node and a
// tape machine ready to run.
func quadratic(t *testing.T, backing []float64) (*G.Node, G.VM) {
	t.Helper()

	g := G.NewGraph()
	wT := tensor.NewDense(
		tensor.Float64,
		[]int{len(backing)},
		tensor.WithBacking(backing),
	)
	w := G.NewVector(
		g,
		wT.Dtype(),
		G.WithValue(wT),
		G.WithName("w"),
	)

	squared, err := G.HadamardProd(w, w)
	if err != nil {
		t.Fatal(err)
	}
	cost, err := G.Sum(squared)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := G.Grad(cost, w); err != nil {
		t.Fatal(err)
	}

	return w, G.NewTapeMachine(g, G.BindDualValues(w))
}

// TestClippedAdamFirstStep checks that the first update moves each
// weight by approximately lr in the direction opposing its gradient.
func TestClippedAdamFirstStep(t *testing.T) {
	const lr = 0.1
	backing := []float64{3, -2}

	w, vm := quadratic(t, backing)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	solver, err := NewClippedAdam(lr, 1.0, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if err := solver.Step([]G.ValueGrad{w}); err != nil {
		t.Fatal(err)
	}

	weights := w.Value().Data().([]float64)
	expected := []float64{3 - lr, -2 + lr}
	for i := range weights {
		if math.Abs(weights[i]-expected[i]) > threshold {
			t.Errorf("expected weight %d to be %v but got %v", i,
				expected[i], weights[i])
		}
	}
}

// TestClippedAdamClips checks that enormous gradients produce the same
// first step as moderate ones, since both saturate the clip bound.
func TestClippedAdamClips(t *testing.T) {
	const lr = 0.1
	const clip = 1.0

	step := func(start float64) float64 {
		w, vm := quadratic(t, []float64{start})
		defer vm.Close()
		if err := vm.RunAll(); err != nil {
			t.Fatal(err)
		}

		solver, err := NewClippedAdam(lr, 1.0, 0, clip)
		if err != nil {
			t.Fatal(err)
		}
		if err := solver.Step([]G.ValueGrad{w}); err != nil {
			t.Fatal(err)
		}

		return start - w.Value().Data().([]float64)[0]
	}

	// Gradients are 2·w = 20 and 2000, both clipped to 1
	small := step(10)
	large := step(1000)
	if math.Abs(small-large) > threshold {
		t.Errorf("expected equal clipped steps but got %v and %v", small,
			large)
	}
}

func TestClippedAdamLearningRateDecay(t *testing.T) {
	const lr = 0.1
	const decay = 0.5

	w, vm := quadratic(t, []float64{1})
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	solver, err := NewClippedAdam(lr, decay, 0, 100)
	if err != nil {
		t.Fatal(err)
	}

	if solver.LearningRate() != lr {
		t.Errorf("expected initial learning rate %v but got %v", lr,
			solver.LearningRate())
	}
	if err := solver.Step([]G.ValueGrad{w}); err != nil {
		t.Fatal(err)
	}
	if math.Abs(solver.LearningRate()-lr*decay) > threshold {
		t.Errorf("expected decayed learning rate %v but got %v", lr*decay,
			solver.LearningRate())
	}
}

func TestNewClippedAdamValidates(t *testing.T) {
	invalid := []struct {
		lr, decay, weightDecay, clip float64
	}{
		{0, 1, 0, 10},
		{-1, 1, 0, 10},
		{1e-3, 0, 0, 10},
		{1e-3, 1.5, 0, 10},
		{1e-3, 1, -1, 10},
		{1e-3, 1, 0, 0},
	}

	for _, args := range invalid {
		_, err := NewClippedAdam(args.lr, args.decay, args.weightDecay,
			args.clip)
		if err == nil {
			t.Errorf("expected an error for arguments %+v", args)
		}
	}
}

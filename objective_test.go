package cevae

import (
	"math"
	"testing"

	"github.com/causalgo/cevae/distribution"
	"github.com/causalgo/cevae/trace"
	G "gorgonia.org/gorgonia"
)

func constNormal(t *testing.T, g *G.ExprGraph, prefix string, means,
	stddevs []float64) distribution.Distribution {
	t.Helper()
	n, err := distribution.NewNormal(
		vecNode(t, g, prefix+"_mean", means),
		vecNode(t, g, prefix+"_stddev", stddevs),
	)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

// TestCausalEffectELBODecomposition checks the training objective
// against a manual computation from the recorded sites:
//
//	loss = −(Σ model log p − log q(z)) − log q(t) − log q(y)
func TestCausalEffectELBODecomposition(t *testing.T) {
	g := G.NewGraph()

	obsT := vecNode(t, g, "obsT", []float64{0, 1})
	obsY := vecNode(t, g, "obsY", []float64{1, 0})
	obsX := vecNode(t, g, "obsX", []float64{0.1, -0.2})

	guideSampler := trace.NewSampler(trace.WithSeed(1))
	if _, err := guideSampler.Sample("t",
		constNormal(t, g, "qt", []float64{0.2, 0.8}, []float64{1, 1}),
		obsT, true); err != nil {
		t.Fatal(err)
	}
	if _, err := guideSampler.Sample("y",
		constNormal(t, g, "qy", []float64{0.6, 0.4}, []float64{1, 1}),
		obsY, true); err != nil {
		t.Fatal(err)
	}
	if _, err := guideSampler.Sample("z",
		constNormal(t, g, "qz", []float64{0, 0}, []float64{0.5, 0.5}),
		nil, false); err != nil {
		t.Fatal(err)
	}

	modelSampler := trace.NewSampler(
		trace.WithSeed(2),
		trace.WithReplay(guideSampler.Trace()),
	)
	if _, err := modelSampler.Sample("z",
		constNormal(t, g, "pz", []float64{0, 0}, []float64{1, 1}),
		nil, false); err != nil {
		t.Fatal(err)
	}
	if _, err := modelSampler.Sample("x",
		constNormal(t, g, "px", []float64{0, 0}, []float64{2, 2}),
		obsX, false); err != nil {
		t.Fatal(err)
	}
	if _, err := modelSampler.Sample("t",
		constNormal(t, g, "pt", []float64{0.5, 0.5}, []float64{1, 1}),
		obsT, false); err != nil {
		t.Fatal(err)
	}
	if _, err := modelSampler.Sample("y",
		constNormal(t, g, "py", []float64{0.5, 0.5}, []float64{1, 1}),
		obsY, false); err != nil {
		t.Fatal(err)
	}

	objective := NewCausalEffectELBO()
	if _, err := objective.Loss(); err == nil {
		t.Error("expected an error before any loss has been evaluated")
	}

	if _, err := objective.DifferentiableLoss(modelSampler.Trace(),
		guideSampler.Trace()); err != nil {
		t.Fatal(err)
	}

	siteLogProb := func(tr *trace.Trace, name string) *G.Value {
		site, ok := tr.At(name)
		if !ok {
			t.Fatalf("expected site %q to be recorded", name)
		}
		var val G.Value
		G.Read(site.LogProb, &val)
		return &val
	}

	modelVals := make([]*G.Value, 0, 4)
	for _, name := range modelSampler.Trace().Names() {
		modelVals = append(modelVals, siteLogProb(modelSampler.Trace(), name))
	}
	qz := siteLogProb(guideSampler.Trace(), "z")
	qt := siteLogProb(guideSampler.Trace(), "t")
	qy := siteLogProb(guideSampler.Trace(), "y")

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	var modelSum float64
	for _, val := range modelVals {
		modelSum += (*val).Data().(float64)
	}
	expected := -(modelSum - (*qz).Data().(float64)) -
		(*qt).Data().(float64) - (*qy).Data().(float64)

	got, err := objective.Loss()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-expected) > threshold {
		t.Errorf("expected loss %v but got %v", expected, got)
	}
}

// TestCausalEffectELBOReplaySharesLatent checks that the latent site
// scored by the model is the same node the guide sampled, so the
// bound compares both densities at one point.
func TestCausalEffectELBOReplaySharesLatent(t *testing.T) {
	g := G.NewGraph()

	guideSampler := trace.NewSampler(trace.WithSeed(3))
	if _, err := guideSampler.Sample("z",
		constNormal(t, g, "qz", []float64{0, 0}, []float64{1, 1}),
		nil, false); err != nil {
		t.Fatal(err)
	}

	modelSampler := trace.NewSampler(
		trace.WithSeed(4),
		trace.WithReplay(guideSampler.Trace()),
	)
	if _, err := modelSampler.Sample("z",
		constNormal(t, g, "pz", []float64{1, 1}, []float64{2, 2}),
		nil, false); err != nil {
		t.Fatal(err)
	}

	guideSite, _ := guideSampler.Trace().At("z")
	modelSite, _ := modelSampler.Trace().At("z")
	if guideSite.Value != modelSite.Value {
		t.Error("expected the model to score the guide's latent sample")
	}
	if guideSite.LogProb == modelSite.LogProb {
		t.Error("expected the two densities to be scored separately")
	}
}

package cevae

import (
	"math"
	"testing"

	"github.com/causalgo/cevae/trace"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func testConfig() Config {
	return Config{FeatureDim: 5, LatentDim: 2, HiddenDim: 8, NumLayers: 1}
}

func testData(t *testing.T) (*tensor.Dense, *tensor.Dense, *tensor.Dense) {
	t.Helper()
	const n = 4

	x := tensor.NewDense(
		tensor.Float64,
		[]int{n, 5},
		tensor.WithBacking(randomBacking(n*5, 1)),
	)
	treatment := tensor.NewDense(
		tensor.Float64,
		[]int{n},
		tensor.WithBacking([]float64{0, 1, 0, 1}),
	)
	y := tensor.NewDense(
		tensor.Float64,
		[]int{n},
		tensor.WithBacking([]float64{0, 1, 1, 0}),
	)

	return x, treatment, y
}

func TestNewValidatesConfig(t *testing.T) {
	invalid := []Config{
		{FeatureDim: 0, LatentDim: 2, HiddenDim: 8, NumLayers: 1},
		{FeatureDim: 5, LatentDim: -1, HiddenDim: 8, NumLayers: 1},
		{FeatureDim: 5, LatentDim: 2, HiddenDim: 0, NumLayers: 1},
		{FeatureDim: 5, LatentDim: 2, HiddenDim: 8, NumLayers: 0},
	}

	for _, config := range invalid {
		if _, err := New(config, 1); err == nil {
			t.Errorf("expected an error for config %+v", config)
		}
	}

	if _, err := New(testConfig(), 1); err != nil {
		t.Errorf("expected no error for a valid config but got %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig(7)
	if config.FeatureDim != 7 {
		t.Errorf("expected FeatureDim 7 but got %v", config.FeatureDim)
	}
	if config.LatentDim != DefaultLatentDim {
		t.Errorf("expected LatentDim %v but got %v", DefaultLatentDim,
			config.LatentDim)
	}
	if config.HiddenDim != DefaultHiddenDim {
		t.Errorf("expected HiddenDim %v but got %v", DefaultHiddenDim,
			config.HiddenDim)
	}
	if config.NumLayers != DefaultNumLayers {
		t.Errorf("expected NumLayers %v but got %v", DefaultNumLayers,
			config.NumLayers)
	}
}

func TestFitReturnsEpochLosses(t *testing.T) {
	c, err := New(testConfig(), 2)
	if err != nil {
		t.Fatal(err)
	}

	x, treatment, y := testData(t)
	losses, err := c.Fit(x, treatment, y, FitConfig{
		NumEpochs: 2,
		BatchSize: 4,
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(losses) != 2 {
		t.Fatalf("expected 2 epoch losses but got %d", len(losses))
	}
	for i, loss := range losses {
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			t.Errorf("expected epoch %d loss to be finite but got %v", i,
				loss)
		}
	}
}

// TestFitScenario trains for a single epoch on a one-batch dataset of
// zero features and checks that exactly one loss is returned.
func TestFitScenario(t *testing.T) {
	c, err := New(testConfig(), 14)
	if err != nil {
		t.Fatal(err)
	}

	const n = 4
	x := tensor.NewDense(
		tensor.Float64,
		[]int{n, 5},
		tensor.WithBacking(make([]float64, n*5)),
	)
	treatment := tensor.NewDense(
		tensor.Float64,
		[]int{n},
		tensor.WithBacking([]float64{0, 1, 0, 1}),
	)
	y := tensor.NewDense(
		tensor.Float64,
		[]int{n},
		tensor.WithBacking([]float64{0, 1, 1, 0}),
	)

	losses, err := c.Fit(x, treatment, y, FitConfig{
		NumEpochs: 1,
		BatchSize: 4,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(losses) != 1 {
		t.Fatalf("expected 1 epoch loss but got %d", len(losses))
	}
	if math.IsNaN(losses[0]) || math.IsInf(losses[0], 0) {
		t.Errorf("expected a finite loss but got %v", losses[0])
	}
}

func TestFitReportsToSink(t *testing.T) {
	c, err := New(testConfig(), 3)
	if err != nil {
		t.Fatal(err)
	}

	var epochs []int
	var reported []float64
	x, treatment, y := testData(t)
	losses, err := c.Fit(x, treatment, y, FitConfig{
		NumEpochs: 3,
		BatchSize: 2,
		Sink: func(epoch int, loss float64) {
			epochs = append(epochs, epoch)
			reported = append(reported, loss)
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(epochs) != 3 {
		t.Fatalf("expected 3 sink calls but got %d", len(epochs))
	}
	for i := range epochs {
		if epochs[i] != i {
			t.Errorf("expected epoch %d but got %d", i, epochs[i])
		}
		if reported[i] != losses[i] {
			t.Errorf("expected reported loss %v to equal returned loss %v",
				reported[i], losses[i])
		}
	}
}

func TestFitValidatesData(t *testing.T) {
	c, err := New(testConfig(), 4)
	if err != nil {
		t.Fatal(err)
	}

	x, treatment, y := testData(t)

	shortT := tensor.NewDense(
		tensor.Float64,
		[]int{3},
		tensor.WithBacking([]float64{0, 1, 0}),
	)
	if _, err := c.Fit(x, shortT, y, FitConfig{}); err == nil {
		t.Error("expected an error for a treatment vector of the wrong size")
	}

	narrowX := tensor.NewDense(
		tensor.Float64,
		[]int{4, 3},
		tensor.WithBacking(randomBacking(12, 2)),
	)
	if _, err := c.Fit(narrowX, treatment, y, FitConfig{}); err == nil {
		t.Error("expected an error for features of the wrong width")
	}

	if _, err := c.Fit(x, treatment, nil, FitConfig{}); err == nil {
		t.Error("expected an error for nil outcomes")
	}

	if _, err := c.Fit(x, treatment, y, FitConfig{NumEpochs: -1}); err == nil {
		t.Error("expected an error for a negative epoch count")
	}
}

// TestITEScenario estimates effects for 10 rows with a single
// posterior sample and checks the result is a finite length-10 vector.
func TestITEScenario(t *testing.T) {
	c, err := New(testConfig(), 5)
	if err != nil {
		t.Fatal(err)
	}

	const rows = 10
	x := tensor.NewDense(
		tensor.Float64,
		[]int{rows, 5},
		tensor.WithBacking(make([]float64, rows*5)),
	)

	ite, err := c.ITE(x, 1)
	if err != nil {
		t.Fatal(err)
	}

	if !ite.Shape().Eq(tensor.Shape{rows}) {
		t.Fatalf("expected shape %v but got %v", tensor.Shape{rows},
			ite.Shape())
	}
	for i, effect := range ite.Data().([]float64) {
		if math.IsNaN(effect) || math.IsInf(effect, 0) {
			t.Errorf("expected effect %d to be finite but got %v", i, effect)
		}
	}
}

func TestITEValidates(t *testing.T) {
	c, err := New(testConfig(), 6)
	if err != nil {
		t.Fatal(err)
	}

	narrow := tensor.NewDense(
		tensor.Float64,
		[]int{2, 3},
		tensor.WithBacking(make([]float64, 6)),
	)
	if _, err := c.ITE(narrow, 1); err == nil {
		t.Error("expected an error for features of the wrong width")
	}

	x := tensor.NewDense(
		tensor.Float64,
		[]int{2, 5},
		tensor.WithBacking(make([]float64, 10)),
	)
	if _, err := c.ITE(x, -1); err == nil {
		t.Error("expected an error for a negative sample count")
	}
}

// TestITEAntisymmetry checks that swapping the two intervention arms
// negates the estimate when both are computed from the same latent
// samples.
func TestITEAntisymmetry(t *testing.T) {
	const n = 4
	config := Config{FeatureDim: 3, LatentDim: 2, HiddenDim: 8, NumLayers: 1}

	c, err := New(config, 7)
	if err != nil {
		t.Fatal(err)
	}

	g := G.NewGraph()
	x := matNode(t, g, "x", n, 3, randomBacking(n*3, 8))

	guideSampler := trace.NewSampler(
		trace.WithSeed(9),
		trace.WithHidden("t", "y"),
	)
	if err := c.Guide().Forward(guideSampler, x, nil, nil); err != nil {
		t.Fatal(err)
	}

	zeros := vecNode(t, g, "do_t0", make([]float64, n))
	ones := vecNode(t, g, "do_t1", []float64{1, 1, 1, 1})

	untreated := trace.NewSampler(
		trace.WithSeed(10),
		trace.WithReplay(guideSampler.Trace()),
		trace.WithInterventions(map[string]*G.Node{"t": zeros}),
	)
	y0, err := c.Model().Forward(untreated, x, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	treated := trace.NewSampler(
		trace.WithSeed(11),
		trace.WithReplay(guideSampler.Trace()),
		trace.WithInterventions(map[string]*G.Node{"t": ones}),
	)
	y1, err := c.Model().Forward(treated, x, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	forward, err := G.Sub(y1, y0)
	if err != nil {
		t.Fatal(err)
	}
	backward, err := G.Sub(y0, y1)
	if err != nil {
		t.Fatal(err)
	}

	var forwardVal, backwardVal G.Value
	G.Read(forward, &forwardVal)
	G.Read(backward, &backwardVal)

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	forwardData := forwardVal.Data().([]float64)
	backwardData := backwardVal.Data().([]float64)
	for i := range forwardData {
		if math.Abs(forwardData[i]+backwardData[i]) > threshold {
			t.Errorf("expected effect %d to negate under arm swap but got "+
				"%v and %v", i, forwardData[i], backwardData[i])
		}
	}

	untreatedSite, ok := untreated.Trace().At("t")
	if !ok {
		t.Fatal("expected the intervened site to be recorded")
	}
	if !untreatedSite.Intervened {
		t.Error("expected the treatment site to be marked intervened")
	}
}

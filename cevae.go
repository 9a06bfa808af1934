package cevae

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"github.com/causalgo/cevae/optim"
	"github.com/causalgo/cevae/trace"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Defaults for Fit and ITE, used in place of zero-valued fields.
const (
	DefaultNumEpochs         = 100
	DefaultBatchSize         = 100
	DefaultLearningRate      = 1e-3
	DefaultLearningRateDecay = 0.1
	DefaultWeightDecay       = 1e-4
	DefaultNumSamples        = 100

	// gradClip is the element-wise gradient clipping bound used
	// during training
	gradClip = 10.0
)

// EpochSink receives the average per-example loss of each completed
// training epoch. Epochs are numbered from 0.
type EpochSink func(epoch int, loss float64)

// FitConfig configures one call to Fit. A zero-valued field means its
// default; the zero value of FitConfig itself is a usable
// configuration.
type FitConfig struct {
	NumEpochs int
	BatchSize int

	// LearningRate is the initial Adam learning rate
	LearningRate float64

	// LearningRateDecay is the total multiplicative learning rate
	// decay over the whole run; the per-step decay factor is derived
	// from it so that the final learning rate is
	// LearningRate · LearningRateDecay
	LearningRateDecay float64

	// WeightDecay is the L2 penalty coefficient on all parameters
	WeightDecay float64

	// Sink, when non-nil, is called with the average loss of each
	// completed epoch
	Sink EpochSink
}

func (f FitConfig) withDefaults() FitConfig {
	if f.NumEpochs == 0 {
		f.NumEpochs = DefaultNumEpochs
	}
	if f.BatchSize == 0 {
		f.BatchSize = DefaultBatchSize
	}
	if f.LearningRate == 0 {
		f.LearningRate = DefaultLearningRate
	}
	if f.LearningRateDecay == 0 {
		f.LearningRateDecay = DefaultLearningRateDecay
	}
	if f.WeightDecay == 0 {
		f.WeightDecay = DefaultWeightDecay
	}
	return f
}

func (f FitConfig) validate() error {
	if f.NumEpochs < 0 {
		return fmt.Errorf("expected NumEpochs >= 0 but got %v", f.NumEpochs)
	}
	if f.BatchSize < 0 {
		return fmt.Errorf("expected BatchSize >= 0 but got %v", f.BatchSize)
	}
	if f.LearningRate < 0 {
		return fmt.Errorf("expected LearningRate >= 0 but got %v",
			f.LearningRate)
	}
	if f.LearningRateDecay < 0 || f.LearningRateDecay > 1 {
		return fmt.Errorf("expected LearningRateDecay in [0, 1] but got %v",
			f.LearningRateDecay)
	}
	if f.WeightDecay < 0 {
		return fmt.Errorf("expected WeightDecay >= 0 but got %v",
			f.WeightDecay)
	}
	return nil
}

// CEVAE estimates individual treatment effects from observational data
// with unobserved confounding, by jointly training a generative Model
// and an amortized inference Guide with stochastic variational
// inference. Treatment t and outcome y are binary; features x are
// real-valued.
//
// A CEVAE is not safe for concurrent use.
type CEVAE struct {
	config    Config
	model     *Model
	guide     *Guide
	objective *CausalEffectELBO
	rng       *rand.Rand
}

// New returns a CEVAE with freshly initialized model and guide
// networks. All randomness, including network initialization,
// minibatch shuffling, and Monte Carlo sampling, descends from seed.
func New(config Config, seed uint64) (*CEVAE, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	rng := rand.New(rand.NewSource(seed))

	model, err := NewModel(config, rng)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	guide, err := NewGuide(config, rng)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	return &CEVAE{
		config:    config,
		model:     model,
		guide:     guide,
		objective: NewCausalEffectELBO(),
		rng:       rng,
	}, nil
}

// Config returns the network configuration.
func (c *CEVAE) Config() Config { return c.config }

// Model returns the generative model.
func (c *CEVAE) Model() *Model { return c.model }

// Guide returns the amortized inference guide.
func (c *CEVAE) Guide() *Guide { return c.guide }

// Fit trains the model and guide on the dataset (x, t, y), where x is
// a (n, FeatureDim) feature matrix and t and y are length-n vectors of
// {0, 1} values. It returns the average per-example loss of each
// epoch.
func (c *CEVAE) Fit(x, t, y *tensor.Dense, conf FitConfig) ([]float64,
	error) {
	if err := c.validateData(x, t, y); err != nil {
		return nil, fmt.Errorf("fit: %v", err)
	}
	if err := conf.validate(); err != nil {
		return nil, fmt.Errorf("fit: %v", err)
	}
	conf = conf.withDefaults()

	n := x.Shape()[0]
	batchSize := conf.BatchSize
	if batchSize > n {
		batchSize = n
	}
	numBatches := (n + batchSize - 1) / batchSize

	numSteps := conf.NumEpochs * numBatches
	stepDecay := math.Pow(conf.LearningRateDecay, 1.0/float64(numSteps))

	solver, err := optim.NewClippedAdam(conf.LearningRate, stepDecay,
		conf.WeightDecay, gradClip)
	if err != nil {
		return nil, fmt.Errorf("fit: %v", err)
	}

	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}

	losses := make([]float64, 0, conf.NumEpochs)
	for epoch := 0; epoch < conf.NumEpochs; epoch++ {
		c.rng.Shuffle(n, func(i, j int) {
			perm[i], perm[j] = perm[j], perm[i]
		})

		var epochLoss float64
		for start := 0; start < n; start += batchSize {
			end := start + batchSize
			if end > n {
				end = n
			}

			xb, tb, yb := c.gatherBatch(x, t, y, perm[start:end])
			stepLoss, err := c.step(xb, tb, yb, n, solver)
			if err != nil {
				return nil, fmt.Errorf("fit: epoch %d: %v", epoch, err)
			}

			epochLoss += stepLoss / float64(end-start)
		}

		epochLoss /= float64(numBatches)
		losses = append(losses, epochLoss)
		if conf.Sink != nil {
			conf.Sink(epoch, epochLoss)
		}
	}

	return losses, nil
}

// step runs one gradient update on a single minibatch, building a
// fresh graph for the batch and returning the detached loss value.
func (c *CEVAE) step(xb, tb, yb *tensor.Dense, datasetSize int,
	solver *optim.ClippedAdam) (float64, error) {
	g := G.NewGraph()
	nb := xb.Shape()[0]

	xNode := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(nb, c.config.FeatureDim),
		G.WithValue(xb),
		G.WithName("x"),
	)
	tNode := G.NewVector(
		g,
		tensor.Float64,
		G.WithShape(nb),
		G.WithValue(tb),
		G.WithName("t"),
	)
	yNode := G.NewVector(
		g,
		tensor.Float64,
		G.WithShape(nb),
		G.WithValue(yb),
		G.WithName("y"),
	)

	scale := float64(datasetSize) / float64(nb)

	guideSampler := trace.NewSampler(
		trace.WithScale(scale),
		trace.WithSeed(c.rng.Uint64()),
	)
	if err := c.guide.Forward(guideSampler, xNode, tNode, yNode); err != nil {
		return 0, fmt.Errorf("step: could not evaluate guide: %v", err)
	}

	modelSampler := trace.NewSampler(
		trace.WithScale(scale),
		trace.WithSeed(c.rng.Uint64()),
		trace.WithReplay(guideSampler.Trace()),
	)
	if _, err := c.model.Forward(modelSampler, xNode, tNode,
		yNode); err != nil {
		return 0, fmt.Errorf("step: could not evaluate model: %v", err)
	}

	loss, err := c.objective.DifferentiableLoss(modelSampler.Trace(),
		guideSampler.Trace())
	if err != nil {
		return 0, fmt.Errorf("step: %v", err)
	}

	params := c.params(g)
	if _, err := G.Grad(loss, params...); err != nil {
		return 0, fmt.Errorf("step: could not construct gradient: %v", err)
	}

	vm := G.NewTapeMachine(g, G.BindDualValues(params...))
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return 0, fmt.Errorf("step: could not run graph: %v", err)
	}

	if err := solver.Step(G.NodesToValueGrads(params)); err != nil {
		return 0, fmt.Errorf("step: %v", err)
	}

	return c.objective.Loss()
}

// ITE returns the expected individual treatment effect for each row of
// x:
//
//	ITE(x) = E[y | x, do(t=1)] − E[y | x, do(t=0)]
//
// estimated with numSamples Monte Carlo posterior samples per row (0
// means DefaultNumSamples). The latent confounder is sampled once per
// particle from the guide and the same sample is replayed through both
// intervened model evaluations, so the two arms differ only in the
// forced treatment. Cost grows as O(len(x) · numSamples²) because the
// particle dimension is retained throughout both model replays.
func (c *CEVAE) ITE(x *tensor.Dense, numSamples int) (*tensor.Dense,
	error) {
	if numSamples == 0 {
		numSamples = DefaultNumSamples
	}
	if numSamples < 0 {
		return nil, fmt.Errorf("ite: expected numSamples >= 0 but got %v",
			numSamples)
	}
	if err := c.validateFeatures(x); err != nil {
		return nil, fmt.Errorf("ite: %v", err)
	}

	m := x.Shape()[0]
	total := numSamples * m

	g := G.NewGraph()
	xNode := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(total, c.config.FeatureDim),
		G.WithValue(c.replicateRows(x, numSamples)),
		G.WithName("x"),
	)

	// Draw the posterior particles: only z is recorded, so the replays
	// below resample nothing but the forced treatment's descendants.
	guideSampler := trace.NewSampler(
		trace.WithSeed(c.rng.Uint64()),
		trace.WithHidden("t", "y"),
	)
	if err := c.guide.Forward(guideSampler, xNode, nil, nil); err != nil {
		return nil, fmt.Errorf("ite: could not evaluate guide: %v", err)
	}

	zeros := G.NewVector(
		g,
		tensor.Float64,
		G.WithShape(total),
		G.WithValue(tensor.NewDense(
			tensor.Float64,
			[]int{total},
			tensor.WithBacking(make([]float64, total)),
		)),
		G.WithName("do_t0"),
	)
	ones := G.NewVector(
		g,
		tensor.Float64,
		G.WithShape(total),
		G.WithValue(tensor.Ones(tensor.Float64, total)),
		G.WithName("do_t1"),
	)

	untreated := trace.NewSampler(
		trace.WithSeed(c.rng.Uint64()),
		trace.WithReplay(guideSampler.Trace()),
		trace.WithInterventions(map[string]*G.Node{"t": zeros}),
	)
	y0, err := c.model.Forward(untreated, xNode, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("ite: could not evaluate untreated model: %v",
			err)
	}

	treated := trace.NewSampler(
		trace.WithSeed(c.rng.Uint64()),
		trace.WithReplay(guideSampler.Trace()),
		trace.WithInterventions(map[string]*G.Node{"t": ones}),
	)
	y1, err := c.model.Forward(treated, xNode, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("ite: could not evaluate treated model: %v",
			err)
	}

	diff, err := G.Sub(y1, y0)
	if err != nil {
		return nil, fmt.Errorf("ite: %v", err)
	}
	diff, err = G.Reshape(diff, []int{numSamples, m})
	if err != nil {
		return nil, fmt.Errorf("ite: %v", err)
	}
	ite, err := G.Mean(diff, 0)
	if err != nil {
		return nil, fmt.Errorf("ite: %v", err)
	}

	var iteVal G.Value
	G.Read(ite, &iteVal)

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return nil, fmt.Errorf("ite: could not run graph: %v", err)
	}

	backing := make([]float64, m)
	switch data := iteVal.Data().(type) {
	case float64:
		backing[0] = data
	case []float64:
		copy(backing, data)
	default:
		return nil, fmt.Errorf("ite: unsupported result type %T", data)
	}

	return tensor.NewDense(
		tensor.Float64,
		[]int{m},
		tensor.WithBacking(backing),
	), nil
}

// params returns every trainable parameter bound to g, in a stable
// order.
func (c *CEVAE) params(g *G.ExprGraph) G.Nodes {
	params := c.model.Params(g)
	return append(params, c.guide.Params(g)...)
}

// gatherBatch copies the given rows of the dataset into fresh batch
// tensors.
func (c *CEVAE) gatherBatch(x, t, y *tensor.Dense,
	rows []int) (*tensor.Dense, *tensor.Dense, *tensor.Dense) {
	d := c.config.FeatureDim
	xData := x.Data().([]float64)
	tData := t.Data().([]float64)
	yData := y.Data().([]float64)

	nb := len(rows)
	xb := make([]float64, nb*d)
	tb := make([]float64, nb)
	yb := make([]float64, nb)
	for i, row := range rows {
		copy(xb[i*d:(i+1)*d], xData[row*d:(row+1)*d])
		tb[i] = tData[row]
		yb[i] = yData[row]
	}

	return tensor.NewDense(tensor.Float64, []int{nb, d},
			tensor.WithBacking(xb)),
		tensor.NewDense(tensor.Float64, []int{nb}, tensor.WithBacking(tb)),
		tensor.NewDense(tensor.Float64, []int{nb}, tensor.WithBacking(yb))
}

// replicateRows stacks numSamples copies of the whole feature matrix,
// giving a (numSamples·m, FeatureDim) matrix whose row s·m+i is row i
// of x.
func (c *CEVAE) replicateRows(x *tensor.Dense,
	numSamples int) *tensor.Dense {
	d := c.config.FeatureDim
	m := x.Shape()[0]
	xData := x.Data().([]float64)

	backing := make([]float64, numSamples*m*d)
	for s := 0; s < numSamples; s++ {
		copy(backing[s*m*d:(s+1)*m*d], xData)
	}

	return tensor.NewDense(
		tensor.Float64,
		[]int{numSamples * m, d},
		tensor.WithBacking(backing),
	)
}

func (c *CEVAE) validateFeatures(x *tensor.Dense) error {
	if x == nil {
		return fmt.Errorf("expected non-nil x")
	}
	if x.Dtype() != tensor.Float64 {
		return fmt.Errorf("expected x of type float64 but got %v", x.Dtype())
	}
	if x.Dims() != 2 {
		return fmt.Errorf("expected x to have 2 dimensions but got %v",
			x.Dims())
	}
	if x.Shape()[1] != c.config.FeatureDim {
		return fmt.Errorf("expected x to have %v columns but got %v",
			c.config.FeatureDim, x.Shape()[1])
	}
	if x.Shape()[0] == 0 {
		return fmt.Errorf("expected x to have at least 1 row")
	}
	return nil
}

func (c *CEVAE) validateData(x, t, y *tensor.Dense) error {
	if err := c.validateFeatures(x); err != nil {
		return err
	}

	n := x.Shape()[0]
	vectors := []struct {
		name string
		v    *tensor.Dense
	}{{"t", t}, {"y", y}}

	for _, vec := range vectors {
		if vec.v == nil {
			return fmt.Errorf("expected non-nil %v", vec.name)
		}
		if vec.v.Dtype() != tensor.Float64 {
			return fmt.Errorf("expected %v of type float64 but got %v",
				vec.name, vec.v.Dtype())
		}
		if vec.v.Dims() != 1 {
			return fmt.Errorf("expected %v to have 1 dimension but got %v",
				vec.name, vec.v.Dims())
		}
		if vec.v.Shape()[0] != n {
			return fmt.Errorf("expected %v to have %v entries but got %v",
				vec.name, n, vec.v.Shape()[0])
		}
	}

	return nil
}

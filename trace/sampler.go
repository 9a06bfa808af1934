package trace

import (
	"fmt"
	"time"

	"golang.org/x/exp/rand"

	"github.com/causalgo/cevae/distribution"
	G "gorgonia.org/gorgonia"
)

// Sampler executes the sample statements of one evaluation of a model
// or guide, recording each as a Site. Handlers are configured up
// front as options and decide how a statement resolves, in priority
// order:
//
//  1. an intervention (do) forces the value and marks it observed
//  2. a replayed trace substitutes its previously sampled value
//  3. an observation fixes the value to the supplied data
//  4. otherwise the value is drawn from the distribution, with the
//     reparameterized sampler when the distribution has one
//
// Hidden sites are executed like any other but left out of the
// recorded trace, so a later replay will not force them.
//
// A Sampler is single-use: one evaluation produces one Trace.
type Sampler struct {
	trace         *Trace
	scale         float64
	interventions map[string]*G.Node
	replay        *Trace
	hidden        map[string]struct{}
	rng           *rand.Rand
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithScale sets the subsampling scale applied to every site's
// log-density, typically datasetSize/batchSize when the batch is a
// subsample of a larger dataset.
func WithScale(scale float64) Option {
	return func(s *Sampler) { s.scale = scale }
}

// WithSeed seeds the stream of per-site sampling seeds. Two samplers
// with equal seeds executing the same program draw identical values.
func WithSeed(seed uint64) Option {
	return func(s *Sampler) { s.rng = rand.New(rand.NewSource(seed)) }
}

// WithInterventions forces the named sites to the given values,
// implementing do() queries.
func WithInterventions(values map[string]*G.Node) Option {
	return func(s *Sampler) { s.interventions = values }
}

// WithReplay substitutes values recorded in tr for sites sharing a
// name with one of its sites, rather than resampling them.
func WithReplay(tr *Trace) Option {
	return func(s *Sampler) { s.replay = tr }
}

// WithHidden executes the named sites without recording them.
func WithHidden(names ...string) Option {
	return func(s *Sampler) {
		for _, name := range names {
			s.hidden[name] = struct{}{}
		}
	}
}

func NewSampler(opts ...Option) *Sampler {
	s := &Sampler{
		trace:  NewTrace(),
		scale:  1.0,
		hidden: make(map[string]struct{}),
		rng:    rand.New(rand.NewSource(uint64(time.Now().UnixNano()))),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Trace returns the trace recorded so far.
func (s *Sampler) Trace() *Trace { return s.trace }

// Sample resolves one named sample statement. When obs is non-nil the
// site is treated as observed at that value; its log-density is still
// recorded. The auxiliary flag is stored on the site so objectives
// can exclude prediction-only sites from the variational bound. The
// resolved value node is returned.
func (s *Sampler) Sample(name string, d distribution.Distribution,
	obs *G.Node, auxiliary bool) (*G.Node, error) {
	var value *G.Node
	observed := obs != nil
	intervened := false

	if forced, ok := s.interventions[name]; ok {
		value = forced
		observed = true
		intervened = true
	} else if s.replay != nil {
		if site, ok := s.replay.At(name); ok {
			value = site.Value
		}
	}

	if value == nil && observed {
		value = obs
	}

	if value == nil {
		var err error
		if d.HasRsample() {
			value, err = d.Rsample(s.rng.Uint64())
		} else {
			value, err = d.Sample(s.rng.Uint64())
		}
		if err != nil {
			return nil, fmt.Errorf("sample: could not draw site %q: %v",
				name, err)
		}
	}

	logProb, err := s.scaledLogProb(d, value)
	if err != nil {
		return nil, fmt.Errorf("sample: could not score site %q: %v",
			name, err)
	}

	if _, ok := s.hidden[name]; !ok {
		err = s.trace.Add(&Site{
			Name:       name,
			Dist:       d,
			Value:      value,
			LogProb:    logProb,
			Observed:   observed,
			Intervened: intervened,
			Auxiliary:  auxiliary,
			Scale:      s.scale,
		})
		if err != nil {
			return nil, fmt.Errorf("sample: %v", err)
		}
	}

	return value, nil
}

// scaledLogProb sums the element-wise log-density of value over the
// batch and applies the subsampling scale.
func (s *Sampler) scaledLogProb(d distribution.Distribution,
	value *G.Node) (*G.Node, error) {
	logProb, err := d.LogProb(value)
	if err != nil {
		return nil, err
	}

	if !logProb.IsScalar() {
		logProb, err = G.Sum(logProb)
		if err != nil {
			return nil, fmt.Errorf("could not sum log-density: %v", err)
		}
	}

	if s.scale != 1.0 {
		scale := logProb.Graph().Constant(G.NewF64(s.scale))
		logProb, err = G.Mul(logProb, scale)
		if err != nil {
			return nil, fmt.Errorf("could not scale log-density: %v", err)
		}
	}

	return logProb, nil
}

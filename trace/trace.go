// Package trace records named random-variable sites produced by one
// evaluation of a probabilistic program built on Gorgonia graphs. A
// Trace is an ordered mapping from site name to Site; downstream
// consumers inspect it to assemble variational objectives or replay
// it to force a later evaluation through previously sampled values.
package trace

import (
	"fmt"

	"github.com/causalgo/cevae/distribution"
	G "gorgonia.org/gorgonia"
)

// Site is one named, typed sample point recorded during a single
// evaluation of a model or guide. A Site is created by a Sampler,
// consumed immediately by whoever owns the Trace, and discarded with
// it.
type Site struct {
	Name string
	Dist distribution.Distribution

	// Value holds the observed, forced, replayed, or freshly sampled
	// value of the site
	Value *G.Node

	// LogProb is the total log-density of Value under Dist, summed
	// over the batch and scaled by the subsampling scale
	LogProb *G.Node

	// Observed is true when Value was supplied by the caller rather
	// than drawn from Dist, including forced (intervened) values
	Observed bool

	// Intervened is true when Value was forced by a do() intervention
	Intervened bool

	// Auxiliary marks sites that exist for prediction bookkeeping
	// only and do not correspond to latent variables of the model
	Auxiliary bool

	// Scale is the subsampling scale applied to LogProb
	Scale float64
}

// Trace is an ordered mapping from site name to Site. It is immutable
// once its producing evaluation completes; filtering methods return
// copies.
type Trace struct {
	order []string
	sites map[string]*Site
}

func NewTrace() *Trace {
	return &Trace{sites: make(map[string]*Site)}
}

// Add records a new site. Site names must be unique within a trace.
func (t *Trace) Add(s *Site) error {
	if _, ok := t.sites[s.Name]; ok {
		return fmt.Errorf("add: site %q already recorded", s.Name)
	}

	t.order = append(t.order, s.Name)
	t.sites[s.Name] = s

	return nil
}

// At returns the site with the given name, if present.
func (t *Trace) At(name string) (*Site, bool) {
	s, ok := t.sites[name]
	return s, ok
}

// Len returns the number of recorded sites.
func (t *Trace) Len() int { return len(t.order) }

// Names returns the site names in recording order.
func (t *Trace) Names() []string {
	names := make([]string, len(t.order))
	copy(names, t.order)
	return names
}

// ObservedNames returns, in recording order, the names of all sites
// whose values were observed (supplied as data or forced).
func (t *Trace) ObservedNames() []string {
	var names []string
	for _, name := range t.order {
		if t.sites[name].Observed {
			names = append(names, name)
		}
	}
	return names
}

// Without returns a copy of the trace with the named sites removed.
func (t *Trace) Without(names ...string) *Trace {
	excluded := make(map[string]struct{}, len(names))
	for _, name := range names {
		excluded[name] = struct{}{}
	}

	out := NewTrace()
	for _, name := range t.order {
		if _, ok := excluded[name]; ok {
			continue
		}
		out.order = append(out.order, name)
		out.sites[name] = t.sites[name]
	}

	return out
}

// LogProbSum returns a node holding the sum of the log-densities of
// every site in the trace.
func (t *Trace) LogProbSum() (*G.Node, error) {
	if len(t.order) == 0 {
		return nil, fmt.Errorf("logProbSum: empty trace")
	}

	terms := make(G.Nodes, 0, len(t.order))
	for _, name := range t.order {
		terms = append(terms, t.sites[name].LogProb)
	}

	if len(terms) == 1 {
		return terms[0], nil
	}

	sum, err := G.ReduceAdd(terms)
	if err != nil {
		return nil, fmt.Errorf("logProbSum: %v", err)
	}

	return sum, nil
}

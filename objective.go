package cevae

import (
	"fmt"

	"github.com/causalgo/cevae/trace"
	G "gorgonia.org/gorgonia"
)

// CausalEffectELBO is the loss for training a CEVAE. The objective
// (to maximize) is
//
//	-loss = ELBO + log q(t|x) + log q(y|t,x)
//
// The standard evidence lower bound is computed over a reduced guide
// trace from which every observed site has been removed, so it covers
// the latent confounder only; the predictive log-densities of the
// removed sites are then added back as auxiliary terms. The gradient
// for the latent site uses the pathwise (reparameterized) estimator;
// no score-function estimator is needed because the discrete sites
// are always observed when this loss is evaluated.
type CausalEffectELBO struct {
	lossVal G.Value
}

func NewCausalEffectELBO() *CausalEffectELBO {
	return &CausalEffectELBO{}
}

// DifferentiableLoss returns the surrogate loss node for one pair of
// traces recorded over the same minibatch. Differentiating and
// running the graph leaves the detached reporting value available
// from Loss.
func (o *CausalEffectELBO) DifferentiableLoss(modelTrace,
	guideTrace *trace.Trace) (*G.Node, error) {
	blocked := guideTrace.ObservedNames()
	reduced := guideTrace.Without(blocked...)

	loss, err := elboLoss(modelTrace, reduced)
	if err != nil {
		return nil, fmt.Errorf("differentiableLoss: %v", err)
	}

	// Add the auxiliary log q terms for the observed sites.
	for _, name := range blocked {
		site, ok := guideTrace.At(name)
		if !ok {
			return nil, fmt.Errorf("differentiableLoss: site %q missing "+
				"from guide trace", name)
		}

		loss, err = G.Sub(loss, site.LogProb)
		if err != nil {
			return nil, fmt.Errorf("differentiableLoss: could not add "+
				"log q term for site %q: %v", name, err)
		}
	}

	G.Read(loss, &o.lossVal)

	return loss, nil
}

// Loss returns the detached scalar value of the most recently built
// loss, for logging and early stopping. It is valid only after the
// graph holding the surrogate loss has been evaluated.
func (o *CausalEffectELBO) Loss() (float64, error) {
	if o.lossVal == nil {
		return 0, fmt.Errorf("loss: no loss has been evaluated")
	}

	return scalarValue(o.lossVal)
}

// elboLoss returns the negative per-particle evidence lower bound:
// the guide trace's log-density minus the model trace's log joint.
func elboLoss(modelTrace, guideTrace *trace.Trace) (*G.Node, error) {
	modelLogProb, err := modelTrace.LogProbSum()
	if err != nil {
		return nil, fmt.Errorf("elboLoss: could not sum model trace: %v",
			err)
	}

	if guideTrace.Len() == 0 {
		return G.Neg(modelLogProb)
	}

	guideLogProb, err := guideTrace.LogProbSum()
	if err != nil {
		return nil, fmt.Errorf("elboLoss: could not sum guide trace: %v",
			err)
	}

	elbo, err := G.Sub(modelLogProb, guideLogProb)
	if err != nil {
		return nil, fmt.Errorf("elboLoss: %v", err)
	}

	return G.Neg(elbo)
}

// scalarValue extracts the float64 held by a scalar or 1-element
// value.
func scalarValue(v G.Value) (float64, error) {
	switch data := v.Data().(type) {
	case float64:
		return data, nil
	case []float64:
		if len(data) == 1 {
			return data[0], nil
		}
		return 0, fmt.Errorf("scalarValue: expected 1 element but got %d",
			len(data))
	default:
		return 0, fmt.Errorf("scalarValue: unsupported type %T", data)
	}
}

package distribution

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// NormalRand returns a node holding one draw from 𝒩(mean, stddev)
// per element of mean and stddev. The draws are recomputed on every
// evaluation of the graph and are not differentiable.
func NormalRand(mean, stddev *G.Node, seed uint64) (*G.Node, error) {
	if mean.Dtype() != stddev.Dtype() {
		return nil, fmt.Errorf("normalRand: mean and stddev should have "+
			"same dtype but got %v and %v", mean.Dtype(), stddev.Dtype())
	}

	if !mean.Shape().Eq(stddev.Shape()) {
		return nil, fmt.Errorf("normalRand: mean and stddev should have "+
			"same shape but got %v and %v", mean.Shape(), stddev.Shape())
	}

	n, err := newNormalSampleOp(mean.Dtype(), seed, mean.Shape()...)
	if err != nil {
		return nil, fmt.Errorf("normalRand: %v", err)
	}

	return G.ApplyOp(n, mean, stddev)
}

// BernoulliRand returns a node holding one draw in {0, 1} from
// Bernoulli(sigmoid(logit)) per element of logits. The draws are
// recomputed on every evaluation of the graph and are not
// differentiable.
func BernoulliRand(logits *G.Node, seed uint64) (*G.Node, error) {
	b, err := newBernoulliSampleOp(logits.Dtype(), seed, logits.Shape()...)
	if err != nil {
		return nil, fmt.Errorf("bernoulliRand: %v", err)
	}

	return G.ApplyOp(b, logits)
}

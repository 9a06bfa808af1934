package cevae

import (
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/causalgo/cevae/distribution"
	"github.com/causalgo/cevae/trace"
	G "gorgonia.org/gorgonia"
)

// Guide is the amortized inference half of the CEVAE, approximating
// the posterior over the latent confounder z while also modeling the
// treatment and outcome directly from observed features:
//
//	t ~ q(t|x)      // treatment
//	y ~ q(y|t,x)    // outcome
//	z ~ q(z|y,t,x)  // latent confounder, an embedding
//
// The y and z distributions are defined by disjoint pairs of networks
// for t=0 and t=1, mirroring the twin-network pattern of the Model.
// The t and y sites are auxiliary: they exist so their predictive
// log-density can be added to the training objective and so the guide
// can answer treatment and outcome queries at prediction time without
// touching the generative model.
type Guide struct {
	config Config

	tNet   *BernoulliNet
	yTrunk *FullyConnected
	y0Net  *BernoulliNet
	y1Net  *BernoulliNet
	z0Net  *DiagNormalNet
	z1Net  *DiagNormalNet
}

// NewGuide returns a new Guide with networks sized by config and
// initialized from rng.
func NewGuide(config Config, rng *rand.Rand) (*Guide, error) {
	hidden := config.hiddenSizes()

	tNet, err := NewBernoulliNet("guide_t", []int{config.FeatureDim}, rng)
	if err != nil {
		return nil, fmt.Errorf("newGuide: %v", err)
	}

	yTrunk, err := NewFullyConnected("guide_y",
		flatSizes(config.FeatureDim, hidden), rng)
	if err != nil {
		return nil, fmt.Errorf("newGuide: %v", err)
	}

	y0Net, err := NewBernoulliNet("guide_y0", []int{config.HiddenDim}, rng)
	if err != nil {
		return nil, fmt.Errorf("newGuide: %v", err)
	}

	y1Net, err := NewBernoulliNet("guide_y1", []int{config.HiddenDim}, rng)
	if err != nil {
		return nil, fmt.Errorf("newGuide: %v", err)
	}

	z0Net, err := NewDiagNormalNet("guide_z0",
		flatSizes(1+config.FeatureDim, hidden, config.LatentDim), rng)
	if err != nil {
		return nil, fmt.Errorf("newGuide: %v", err)
	}

	z1Net, err := NewDiagNormalNet("guide_z1",
		flatSizes(1+config.FeatureDim, hidden, config.LatentDim), rng)
	if err != nil {
		return nil, fmt.Errorf("newGuide: %v", err)
	}

	return &Guide{
		config: config,
		tNet:   tNet,
		yTrunk: yTrunk,
		y0Net:  y0Net,
		y1Net:  y1Net,
		z0Net:  z0Net,
		z1Net:  z1Net,
	}, nil
}

// TDist returns q(t|x), a Bernoulli over the binary treatment.
func (gd *Guide) TDist(x *G.Node) (distribution.Distribution, error) {
	logits, err := gd.tNet.Fwd(x)
	if err != nil {
		return nil, fmt.Errorf("tDist: %v", err)
	}

	return distribution.NewBernoulli(logits)
}

// YDist returns q(y|t,x). The trunk layers are identical for all t
// values; in the final layer parameters are not shared among t
// values.
func (gd *Guide) YDist(t, x *G.Node) (distribution.Distribution, error) {
	hidden, err := gd.yTrunk.Fwd(x)
	if err != nil {
		return nil, fmt.Errorf("yDist: %v", err)
	}

	logits0, err := gd.y0Net.Fwd(hidden)
	if err != nil {
		return nil, fmt.Errorf("yDist: %v", err)
	}
	logits1, err := gd.y1Net.Fwd(hidden)
	if err != nil {
		return nil, fmt.Errorf("yDist: %v", err)
	}

	logits, err := selectByFlag(t, logits1, logits0)
	if err != nil {
		return nil, fmt.Errorf("yDist: %v", err)
	}

	return distribution.NewBernoulli(logits)
}

// ZDist returns q(z|y,t,x), a diagonal Normal over LatentDim
// dimensions treated as one joint event per row. The scalar outcome
// is concatenated with the features and routed through the
// t-selected network; parameters are not shared among t values.
func (gd *Guide) ZDist(y, t, x *G.Node) (distribution.Distribution,
	error) {
	n := x.Shape()[0]

	yCol, err := G.Reshape(y, []int{n, 1})
	if err != nil {
		return nil, fmt.Errorf("zDist: could not reshape y: %v", err)
	}

	yx, err := G.Concat(1, yCol, x)
	if err != nil {
		return nil, fmt.Errorf("zDist: could not concatenate y and x: %v",
			err)
	}

	loc0, scale0, err := gd.z0Net.Fwd(yx)
	if err != nil {
		return nil, fmt.Errorf("zDist: %v", err)
	}
	loc1, scale1, err := gd.z1Net.Fwd(yx)
	if err != nil {
		return nil, fmt.Errorf("zDist: %v", err)
	}

	loc, err := selectByFlag(t, loc1, loc0)
	if err != nil {
		return nil, fmt.Errorf("zDist: %v", err)
	}
	scale, err := selectByFlag(t, scale1, scale0)
	if err != nil {
		return nil, fmt.Errorf("zDist: %v", err)
	}

	normal, err := distribution.NewNormal(loc, scale)
	if err != nil {
		return nil, fmt.Errorf("zDist: %v", err)
	}

	return distribution.NewIID(normal, 1), nil
}

// Forward runs one joint evaluation of the guide over a minibatch.
// The t and y sites are sampled or observed first and marked
// auxiliary; z is then sampled from the posterior approximation
// conditioned on them. A nil t or y is sampled rather than observed;
// x must be non-nil.
func (gd *Guide) Forward(s *trace.Sampler, x, t, y *G.Node) error {
	if x == nil {
		return fmt.Errorf("forward: x must be non-nil")
	}

	tDist, err := gd.TDist(x)
	if err != nil {
		return fmt.Errorf("forward: %v", err)
	}
	tVal, err := s.Sample("t", tDist, t, true)
	if err != nil {
		return fmt.Errorf("forward: %v", err)
	}

	yDist, err := gd.YDist(tVal, x)
	if err != nil {
		return fmt.Errorf("forward: %v", err)
	}
	yVal, err := s.Sample("y", yDist, y, true)
	if err != nil {
		return fmt.Errorf("forward: %v", err)
	}

	zDist, err := gd.ZDist(yVal, tVal, x)
	if err != nil {
		return fmt.Errorf("forward: %v", err)
	}
	if _, err := s.Sample("z", zDist, nil, false); err != nil {
		return fmt.Errorf("forward: %v", err)
	}

	return nil
}

// Params returns every parameter node of the guide bound to g, in a
// stable order.
func (gd *Guide) Params(g *G.ExprGraph) G.Nodes {
	var params G.Nodes
	params = append(params, gd.tNet.Params(g)...)
	params = append(params, gd.yTrunk.Params(g)...)
	params = append(params, gd.y0Net.Params(g)...)
	params = append(params, gd.y1Net.Params(g)...)
	params = append(params, gd.z0Net.Params(g)...)
	params = append(params, gd.z1Net.Params(g)...)
	return params
}

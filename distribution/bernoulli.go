package distribution

import (
	"fmt"

	"github.com/causalgo/cevae/op"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Bernoulli is a batch of Bernoulli distributions parameterized by
// logits, one distribution per element of the logits tensor:
//
//	P(x = 1) = sigmoid(logit)
//
// Inputs to LogProb are expected to hold values in {0, 1} and must
// have the same shape as the logits tensor.
//
// Bernoulli supports the following data types:
//   - tensor.Float64
type Bernoulli struct {
	logits    *G.Node
	logitsVal G.Value
}

// NewBernoulli returns a new Bernoulli with one distribution element
// per element of logits.
func NewBernoulli(logits *G.Node) (*Bernoulli, error) {
	if logits.Dtype() != tensor.Float64 {
		return nil, fmt.Errorf("newBernoulli: data type %v unsupported",
			logits.Dtype())
	}

	var err error
	if logits.IsScalar() {
		logits, err = G.Reshape(logits, []int{1})
		if err != nil {
			return nil, fmt.Errorf("newBernoulli: could not expand logits "+
				"to shape (1): %v", err)
		}
	}

	bernoulli := &Bernoulli{logits: logits}
	G.Read(bernoulli.logits, &bernoulli.logitsVal)

	return bernoulli, nil
}

// LogProb calculates the element-wise log probability mass of x,
// which must hold values in {0, 1} and have the same shape as the
// distribution:
//
//	log P(x) = x·logit − softplus(logit)
func (b *Bernoulli) LogProb(x *G.Node) (*G.Node, error) {
	if !b.Shape().Eq(x.Shape()) {
		return nil, fmt.Errorf("logProb: expected shape to match "+
			"distribution shape %v but got %v", b.Shape(), x.Shape())
	}

	sp, err := op.Softplus(b.logits)
	if err != nil {
		return nil, fmt.Errorf("logProb: %v", err)
	}

	weighted, err := G.HadamardProd(x, b.logits)
	if err != nil {
		return nil, fmt.Errorf("logProb: %v", err)
	}

	return G.Sub(weighted, sp)
}

// Prob calculates the element-wise probability mass of x. The shape
// of x must equal the shape of the distribution.
func (b *Bernoulli) Prob(x *G.Node) (*G.Node, error) {
	logProb, err := b.LogProb(x)
	if err != nil {
		return nil, fmt.Errorf("prob: %v", err)
	}

	return G.Exp(logProb)
}

// Entropy returns the element-wise entropy of the distribution(s)
// stored by the receiver:
//
//	H = p·softplus(−logit) + (1 − p)·softplus(logit)
func (b *Bernoulli) Entropy() (*G.Node, error) {
	one := b.logits.Graph().Constant(G.NewF64(1.0))

	p := G.Must(G.Sigmoid(b.logits))

	spNeg, err := op.Softplus(G.Must(G.Neg(b.logits)))
	if err != nil {
		return nil, fmt.Errorf("entropy: %v", err)
	}
	spPos, err := op.Softplus(b.logits)
	if err != nil {
		return nil, fmt.Errorf("entropy: %v", err)
	}

	left := G.Must(G.HadamardProd(p, spNeg))
	right := G.Must(G.HadamardProd(G.Must(G.Sub(one, p)), spPos))

	return G.Add(left, right)
}

// Shape returns the shape of the distribution(s) stored by the
// receiver
func (b *Bernoulli) Shape() tensor.Shape {
	return b.logits.Shape()
}

// Mean returns the mean sigmoid(logits) of the distribution(s)
// stored by the receiver
func (b *Bernoulli) Mean() *G.Node {
	return G.Must(G.Sigmoid(b.logits))
}

// Logits returns the logits of the distribution(s) stored by the
// receiver
func (b *Bernoulli) Logits() *G.Node {
	return b.logits
}

// Sample returns a node holding one draw in {0, 1} per distribution
// element.
func (b *Bernoulli) Sample(seed uint64) (*G.Node, error) {
	return BernoulliRand(b.logits, seed)
}

// Rsample is not supported: the Bernoulli distribution admits no
// reparameterized sampler.
func (b *Bernoulli) Rsample(seed uint64) (*G.Node, error) {
	return nil, fmt.Errorf("rsample: Bernoulli has no reparameterized " +
		"sampler")
}

func (b *Bernoulli) HasRsample() bool { return false }

// Package distribution provides probability distributions over
// Gorgonia nodes
package distribution

import (
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Distribution is a batch of probability distributions, one per
// element of its parameter tensors. A Distribution with parameter
// shape (n, d) holds n*d independent scalar distributions; how many
// of the trailing dimensions form a single joint event is decided by
// wrapping the Distribution in an IID.
type Distribution interface {
	// LogProb returns the element-wise log probability density or
	// mass of x. The shape of x must equal the shape of the
	// distribution.
	LogProb(x *G.Node) (*G.Node, error)

	// Entropy returns the element-wise entropy of the distribution
	Entropy() (*G.Node, error)

	// Shape returns the shape of the distribution, which is the
	// shape of its parameter tensors and of its samples
	Shape() tensor.Shape

	// Sample returns a node holding one draw per distribution
	// element. The node's value changes on every evaluation of the
	// graph. This function is not differentiable.
	Sample(seed uint64) (*G.Node, error)

	// Rsample returns a node holding one reparameterized draw per
	// distribution element. This function is differentiable with
	// respect to the distribution parameters.
	Rsample(seed uint64) (*G.Node, error)

	// HasRsample returns whether the distribution has
	// reparameterized samples or not
	HasRsample() bool
}

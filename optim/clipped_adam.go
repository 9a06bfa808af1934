// Package optim provides gradient-based optimizers for parameters
// held in Gorgonia dual values
package optim

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
)

// ClippedAdam is the Adam optimizer augmented with element-wise
// gradient clipping, L2 weight decay, and multiplicative learning
// rate decay applied after every step:
//
//	lr ← lr · decay
//
// A total decay of d over a run of k steps is obtained by passing
// decay = d^(1/k).
//
// Moment estimates are cached by parameter position, so every call to
// Step must pass the same parameters in the same order. The caller
// must not step the same ClippedAdam from multiple goroutines.
type ClippedAdam struct {
	lr          float64
	decay       float64
	weightDecay float64
	clip        float64

	beta1 float64
	beta2 float64
	eps   float64

	steps int
	m     [][]float64
	v     [][]float64
}

// NewClippedAdam returns a new ClippedAdam. The clip bound is applied
// element-wise, clamping every gradient entry to [-clip, clip] before
// the weight decay term is added.
func NewClippedAdam(lr, decay, weightDecay, clip float64) (*ClippedAdam,
	error) {
	if lr <= 0 {
		return nil, fmt.Errorf("newClippedAdam: expected lr > 0 but got %v",
			lr)
	}
	if decay <= 0 || decay > 1 {
		return nil, fmt.Errorf("newClippedAdam: expected decay in (0, 1] "+
			"but got %v", decay)
	}
	if weightDecay < 0 {
		return nil, fmt.Errorf("newClippedAdam: expected weightDecay >= 0 "+
			"but got %v", weightDecay)
	}
	if clip <= 0 {
		return nil, fmt.Errorf("newClippedAdam: expected clip > 0 but "+
			"got %v", clip)
	}

	return &ClippedAdam{
		lr:          lr,
		decay:       decay,
		weightDecay: weightDecay,
		clip:        clip,
		beta1:       0.9,
		beta2:       0.999,
		eps:         1e-8,
	}, nil
}

// LearningRate returns the current (decayed) learning rate.
func (c *ClippedAdam) LearningRate() float64 { return c.lr }

// Step applies one update to every parameter, reading gradients from
// the parameters' dual values and mutating their value tensors in
// place.
func (c *ClippedAdam) Step(params []G.ValueGrad) error {
	if c.m == nil {
		c.m = make([][]float64, len(params))
		c.v = make([][]float64, len(params))
	}
	if len(params) != len(c.m) {
		return fmt.Errorf("step: expected %d parameters but got %d",
			len(c.m), len(params))
	}

	c.steps++
	correction1 := 1.0 - math.Pow(c.beta1, float64(c.steps))
	correction2 := 1.0 - math.Pow(c.beta2, float64(c.steps))

	for i, param := range params {
		weights, ok := param.Value().Data().([]float64)
		if !ok {
			return fmt.Errorf("step: parameter %d is not a float64 "+
				"tensor", i)
		}

		gradValue, err := param.Grad()
		if err != nil {
			return fmt.Errorf("step: could not get gradient of "+
				"parameter %d: %v", i, err)
		}
		grads, ok := gradValue.Data().([]float64)
		if !ok {
			return fmt.Errorf("step: gradient of parameter %d is not a "+
				"float64 tensor", i)
		}
		if len(grads) != len(weights) {
			return fmt.Errorf("step: parameter %d has %d weights but %d "+
				"gradient entries", i, len(weights), len(grads))
		}

		if c.m[i] == nil {
			c.m[i] = make([]float64, len(weights))
			c.v[i] = make([]float64, len(weights))
		}

		for j, grad := range grads {
			if grad > c.clip {
				grad = c.clip
			} else if grad < -c.clip {
				grad = -c.clip
			}
			grad += c.weightDecay * weights[j]

			c.m[i][j] = c.beta1*c.m[i][j] + (1.0-c.beta1)*grad
			c.v[i][j] = c.beta2*c.v[i][j] + (1.0-c.beta2)*grad*grad

			mHat := c.m[i][j] / correction1
			vHat := c.v[i][j] / correction2

			weights[j] -= c.lr * mHat / (math.Sqrt(vHat) + c.eps)
		}
	}

	c.lr *= c.decay

	return nil
}

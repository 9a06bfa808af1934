// Package op provides extended operations for Gorgonia
package op

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Elu computes the element-wise exponential linear unit of x:
//
//	elu(x) = x            if x > 0
//	elu(x) = exp(x) - 1   otherwise
func Elu(x *G.Node) (*G.Node, error) {
	return G.ApplyOp(newEluOp(), x)
}

// Softplus computes the element-wise softplus of x:
//
//	softplus(x) = ln(1 + exp(x))
//
// The computation is performed in a numerically stable way, so that
// softplus never overflows for large positive x nor returns -Inf for
// large negative x.
func Softplus(x *G.Node) (*G.Node, error) {
	return G.ApplyOp(newSoftplusOp(), x)
}

// Clamp clamps a node's values to be between min and max. If
// passGradient is true, then the gradient is passed through the
// clamping operation unchanged:
//
//	        { 1 if min <= x <= max
//	grad =  {
//	        { 1 otherwise
//
// Otherwise, the regular clamp gradient is used:
//
//	        { 1 if min <= x <= max
//	grad =  {
//	        { 0 otherwise
func Clamp(x *G.Node, min, max interface{}, passGradient bool) (*G.Node,
	error) {
	op, err := newClampOp(min, max, passGradient)
	if err != nil {
		return nil, fmt.Errorf("clamp: %v", err)
	}

	return G.ApplyOp(op, x)
}

// Erf computes the element-wise error function
func Erf(x *G.Node) (*G.Node, error) {
	return G.ApplyOp(newErfOp(), x)
}

// Erfinv computes the element-wise inverse error function
func Erfinv(x *G.Node) (*G.Node, error) {
	return G.ApplyOp(newErfinvOp(), x)
}

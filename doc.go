// Package cevae implements the Causal Effect Variational Autoencoder
// for estimating individual treatment effects from observational data
// with unobserved confounding.
//
// The generative model assumes a latent confounder z from which the
// observed features x, a binary treatment t, and a binary outcome y
// are generated. An amortized variational guide learns an approximate
// posterior over z together with predictive distributions q(t|x) and
// q(y|t,x); the two halves are trained jointly by stochastic
// variational inference on the objective
//
//	-loss = ELBO + log q(t|x) + log q(y|t,x)
//
// After training, ITE estimates E[y|x, do(t=1)] − E[y|x, do(t=0)] per
// example by sampling the posterior over z and replaying those samples
// through the model under both interventions.
//
// Reference: Louizos et al., "Causal Effect Inference with Deep
// Latent-Variable Models" (2017), https://arxiv.org/abs/1705.08821.
//
// All numeric computation is expressed as Gorgonia expression graphs
// over float64 tensors.
package cevae

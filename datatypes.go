// Project: MLE and Metropolis-Hastings Estimation of a Multinomial Logit Choice Model
// Data: simulated conjoint choice panels over brand, ad exposure, and price attributes.

package main

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// AttributeSet defines the attribute domains a choice panel is built from.
type AttributeSet struct {
	// Brand levels; Brands[0] is the reference level and carries no coefficient
	Brands []string
	// Price levels the simulator draws from
	Prices []float64
}

// NumParams returns the length of a parameter vector for this attribute set:
// one coefficient per non-reference brand, one for ad exposure, one for price.
func (a AttributeSet) NumParams() int {
	return len(a.Brands) - 1 + 2
}

// ParamNames returns human-readable coefficient names in parameter order.
func (a AttributeSet) ParamNames() []string {
	names := make([]string, 0, a.NumParams())
	for _, b := range a.Brands[1:] {
		names = append(names, "brand:"+b)
	}
	names = append(names, "ad", "price")
	return names
}

// Profile is one alternative shown inside a choice task. Immutable once generated.
type Profile struct {
	Brand string
	Ad    bool
	Price float64
}

// ChoiceTask is one respondent facing one task: a fixed list of alternatives
// with exactly one chosen. Chosen indexes into Profiles.
type ChoiceTask struct {
	Respondent int
	Task       int
	Profiles   []Profile
	Chosen     int
}

// ChoicePanel is the full collection of tasks across respondents, plus the
// attribute domains used to code covariates. Read-only after simulation/load.
type ChoicePanel struct {
	Attrs AttributeSet
	Tasks []ChoiceTask
}

// ParameterVector holds the utility coefficients in the order given by
// AttributeSet.ParamNames: brand dummies, ad, price.
type ParameterVector []float64

// Clone returns an independent copy.
func (p ParameterVector) Clone() ParameterVector {
	return append(ParameterVector(nil), p...)
}

// Options for the choice-panel simulator.
type SimulationOptions struct {
	Respondents         int
	TasksPerRespondent  int
	AlternativesPerTask int
	// RNG seed; required input, there is no time-based default
	Seed uint64
}

// MLEResult holds the output of a maximum-likelihood fit.
type MLEResult struct {
	Estimate  ParameterVector
	NegLogLik float64

	// Observed information (Hessian of the negative log-likelihood) at the
	// estimate, and standard errors from the inverse-Hessian diagonal.
	// Both are nil when the optimizer stopped before convergence.
	Hessian   *mat.SymDense
	StdErrors []float64

	// False when the iteration budget ran out; Estimate is then the best
	// point found, reported as a warning rather than an error.
	Converged bool
}

// Options for a single Metropolis-Hastings run.
type SamplerOptions struct {
	// Total iterations of the chain
	Iterations int
	// Initial draws dropped before computing summaries
	BurnIn int
	// Per-coordinate Gaussian proposal standard deviations.
	// Nil selects defaults: wider for brand/ad, narrower for price.
	ProposalScales []float64
	// Per-coordinate zero-mean Gaussian prior standard deviations.
	// Nil selects defaults: wider for brand/ad, narrower for price.
	PriorScales []float64
	// RNG seed
	Seed uint64
}

// PosteriorChain is the full record of one Metropolis-Hastings run.
// Row it of Draws is the post-decision state after iteration it.
type PosteriorChain struct {
	Draws        *mat.Dense
	LogPosterior []float64
	Accepted     int
	BurnIn       int
}

// Options for running several independent chains in parallel.
type ChainOptions struct {
	NChains int
	Sampler SamplerOptions
	// Standard deviation of the Gaussian jitter applied to each chain's
	// starting point (chain 0 starts exactly at the supplied initial vector).
	// Zero disables jitter.
	StartJitter float64
}

// ChainSet holds independent chains over the same posterior, pooled for
// convergence diagnostics.
type ChainSet struct {
	Chains []*PosteriorChain
}

// CoordinateSummary is one row of a posterior summary table.
type CoordinateSummary struct {
	Name   string
	Mean   float64
	StdDev float64
	// Equal-tailed credible interval bounds
	Lower float64
	Upper float64
}

// ErrEstimationFailed marks numerical failures (singular or non-positive-
// definite Hessian, optimizer breakdown) as distinct from malformed input.
var ErrEstimationFailed = errors.New("estimation failed")

// chainResult carries one finished chain from a sampling worker.
type chainResult struct {
	Index int
	Chain *PosteriorChain
	Err   error
}

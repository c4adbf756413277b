// Project: MLE and Metropolis-Hastings Estimation of a Multinomial Logit Choice Model
// Data: simulated conjoint choice panels over brand, ad exposure, and price attributes.

package main

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// isFinite reports whether v is neither NaN nor infinite.
func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if !isFinite(x) {
			return false
		}
	}
	return true
}

// covariates fills dst with the design row for one profile:
// brand dummies relative to Brands[0], then the ad dummy, then price.
// dst must have length NumParams().
func (a AttributeSet) covariates(p Profile, dst []float64) {
	for i, b := range a.Brands[1:] {
		if p.Brand == b {
			dst[i] = 1
		} else {
			dst[i] = 0
		}
	}
	if p.Ad {
		dst[len(a.Brands)-1] = 1
	} else {
		dst[len(a.Brands)-1] = 0
	}
	dst[len(dst)-1] = p.Price
}

// profiles enumerates the full attribute cross-product: every brand at every
// price, with and without ad exposure.
func (a AttributeSet) profiles() []Profile {
	out := make([]Profile, 0, len(a.Brands)*2*len(a.Prices))
	for _, b := range a.Brands {
		for _, ad := range []bool{false, true} {
			for _, pr := range a.Prices {
				out = append(out, Profile{Brand: b, Ad: ad, Price: pr})
			}
		}
	}
	return out
}

// Validate checks the structural invariants of a panel: at least one task,
// known brand levels, finite prices, and a chosen index inside each task.
// Malformed input is reported to the caller, never repaired.
func (p *ChoicePanel) Validate() error {
	if p == nil || len(p.Tasks) == 0 {
		return fmt.Errorf("choice panel is empty")
	}
	if len(p.Attrs.Brands) == 0 {
		return fmt.Errorf("attribute set has no brand levels")
	}
	brands := make(map[string]bool, len(p.Attrs.Brands))
	for _, b := range p.Attrs.Brands {
		if brands[b] {
			return fmt.Errorf("duplicate brand level %q in attribute set", b)
		}
		brands[b] = true
	}
	for i := range p.Tasks {
		task := &p.Tasks[i]
		if len(task.Profiles) == 0 {
			return fmt.Errorf("respondent %d task %d has no alternatives", task.Respondent, task.Task)
		}
		if task.Chosen < 0 || task.Chosen >= len(task.Profiles) {
			return fmt.Errorf("respondent %d task %d: chosen index %d out of range [0, %d)",
				task.Respondent, task.Task, task.Chosen, len(task.Profiles))
		}
		for j, prof := range task.Profiles {
			if !brands[prof.Brand] {
				return fmt.Errorf("respondent %d task %d alternative %d: unknown brand %q",
					task.Respondent, task.Task, j, prof.Brand)
			}
			if !isFinite(prof.Price) {
				return fmt.Errorf("respondent %d task %d alternative %d: price is not finite",
					task.Respondent, task.Task, j)
			}
		}
	}
	return nil
}

// Simulate generates a choice panel from a known ground-truth parameter
// vector. Each task draws AlternativesPerTask profiles without replacement
// from the attribute cross-product; the chosen alternative maximizes
// deterministic utility plus one standard Gumbel draw per alternative.
// Exact floating-point ties go to the first index achieving the maximum.
func Simulate(attrs AttributeSet, truth ParameterVector, opts SimulationOptions) (*ChoicePanel, error) {
	if len(attrs.Brands) == 0 {
		return nil, fmt.Errorf("attribute set has no brand levels")
	}
	if len(attrs.Prices) == 0 {
		return nil, fmt.Errorf("attribute set has no price levels")
	}
	K := attrs.NumParams()
	if len(truth) != K {
		return nil, fmt.Errorf("ground truth has length %d, want %d", len(truth), K)
	}
	if !allFinite(truth) {
		return nil, fmt.Errorf("ground truth contains non-finite values")
	}
	if opts.Respondents <= 0 {
		return nil, fmt.Errorf("respondents must be > 0")
	}
	if opts.TasksPerRespondent <= 0 {
		return nil, fmt.Errorf("tasks per respondent must be > 0")
	}
	all := attrs.profiles()
	n := opts.AlternativesPerTask
	if n <= 0 || n > len(all) {
		return nil, fmt.Errorf("alternatives per task must be in [1, %d], got %d", len(all), n)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	gumbel := distuv.GumbelRight{Mu: 0, Beta: 1, Src: rng}

	x := make([]float64, K)
	total := make([]float64, n)
	tasks := make([]ChoiceTask, 0, opts.Respondents*opts.TasksPerRespondent)

	for r := 1; r <= opts.Respondents; r++ {
		for t := 1; t <= opts.TasksPerRespondent; t++ {
			perm := rng.Perm(len(all))
			profiles := make([]Profile, n)
			for j := 0; j < n; j++ {
				profiles[j] = all[perm[j]]
				attrs.covariates(profiles[j], x)
				total[j] = floats.Dot(truth, x) + gumbel.Rand()
			}
			tasks = append(tasks, ChoiceTask{
				Respondent: r,
				Task:       t,
				Profiles:   profiles,
				Chosen:     floats.MaxIdx(total),
			})
		}
	}

	return &ChoicePanel{Attrs: attrs, Tasks: tasks}, nil
}

// LogLikelihood computes the multinomial-logit log-likelihood of params given
// the panel: the sum over tasks of the log softmax probability of the chosen
// alternative. Pure function, deterministic for fixed inputs.
// LogSumExp subtracts the per-task maximum utility before exponentiating, so
// extreme parameter values cannot overflow the normalization.
func LogLikelihood(params ParameterVector, panel *ChoicePanel) (float64, error) {
	if panel == nil || len(panel.Tasks) == 0 {
		return 0, fmt.Errorf("choice panel not provided")
	}
	K := panel.Attrs.NumParams()
	if len(params) != K {
		return 0, fmt.Errorf("parameter vector has length %d, want %d", len(params), K)
	}
	if !allFinite(params) {
		return 0, fmt.Errorf("parameter vector contains non-finite values")
	}

	x := make([]float64, K)
	var u []float64
	ll := 0.0

	for i := range panel.Tasks {
		task := &panel.Tasks[i]
		n := len(task.Profiles)
		if n == 0 {
			return 0, fmt.Errorf("respondent %d task %d has no alternatives", task.Respondent, task.Task)
		}
		if task.Chosen < 0 || task.Chosen >= n {
			return 0, fmt.Errorf("respondent %d task %d: chosen index %d out of range [0, %d)",
				task.Respondent, task.Task, task.Chosen, n)
		}
		if cap(u) < n {
			u = make([]float64, n)
		}
		u = u[:n]
		for j := range task.Profiles {
			panel.Attrs.covariates(task.Profiles[j], x)
			u[j] = floats.Dot(params, x)
		}
		ll += u[task.Chosen] - floats.LogSumExp(u)
	}
	return ll, nil
}

// negLogLikGradient fills grad with the gradient of the negative
// log-likelihood at params: sum over tasks of the probability-weighted mean
// design row minus the chosen row.
func negLogLikGradient(grad []float64, params []float64, panel *ChoicePanel) {
	for k := range grad {
		grad[k] = 0
	}
	K := len(grad)
	x := make([]float64, K)
	var u, prob []float64

	for i := range panel.Tasks {
		task := &panel.Tasks[i]
		n := len(task.Profiles)
		if cap(u) < n {
			u = make([]float64, n)
			prob = make([]float64, n)
		}
		u, prob = u[:n], prob[:n]
		for j := range task.Profiles {
			panel.Attrs.covariates(task.Profiles[j], x)
			u[j] = floats.Dot(params, x)
		}
		lse := floats.LogSumExp(u)
		for j := range u {
			prob[j] = math.Exp(u[j] - lse)
		}
		for j := range task.Profiles {
			panel.Attrs.covariates(task.Profiles[j], x)
			for k := 0; k < K; k++ {
				grad[k] += prob[j] * x[k]
				if j == task.Chosen {
					grad[k] -= x[k]
				}
			}
		}
	}
}

// observedInformation computes the Hessian of the negative log-likelihood at
// params: sum over tasks of the softmax covariance of the design rows. For
// the multinomial logit this is exact and positive semi-definite everywhere.
func observedInformation(params ParameterVector, panel *ChoicePanel) *mat.SymDense {
	K := panel.Attrs.NumParams()
	hess := mat.NewSymDense(K, nil)
	x := make([]float64, K)
	s := make([]float64, K)
	var u, prob []float64

	for i := range panel.Tasks {
		task := &panel.Tasks[i]
		n := len(task.Profiles)
		if cap(u) < n {
			u = make([]float64, n)
			prob = make([]float64, n)
		}
		u, prob = u[:n], prob[:n]
		for j := range task.Profiles {
			panel.Attrs.covariates(task.Profiles[j], x)
			u[j] = floats.Dot(params, x)
		}
		lse := floats.LogSumExp(u)
		for j := range u {
			prob[j] = math.Exp(u[j] - lse)
		}

		// E[x x'] - E[x] E[x]' under the task's choice probabilities
		for k := range s {
			s[k] = 0
		}
		for j := range task.Profiles {
			panel.Attrs.covariates(task.Profiles[j], x)
			for a := 0; a < K; a++ {
				s[a] += prob[j] * x[a]
				for b := a; b < K; b++ {
					hess.SetSym(a, b, hess.At(a, b)+prob[j]*x[a]*x[b])
				}
			}
		}
		for a := 0; a < K; a++ {
			for b := a; b < K; b++ {
				hess.SetSym(a, b, hess.At(a, b)-s[a]*s[b])
			}
		}
	}
	return hess
}

// FitMLE minimizes the negative log-likelihood over the parameter vector with
// BFGS, starting from initial. On convergence it also returns the Hessian at
// the optimum and standard errors from the inverse-Hessian diagonal; a
// non-positive-definite Hessian is reported as an estimation failure. When
// the optimizer stops on its iteration budget the best-found estimate is
// returned with Converged=false and no curvature information.
func FitMLE(panel *ChoicePanel, initial ParameterVector) (*MLEResult, error) {
	if err := panel.Validate(); err != nil {
		return nil, err
	}
	K := panel.Attrs.NumParams()
	if len(initial) != K {
		return nil, fmt.Errorf("initial vector has length %d, want %d", len(initial), K)
	}
	if !allFinite(initial) {
		return nil, fmt.Errorf("initial vector contains non-finite values")
	}

	problem := optimize.Problem{
		Func: func(xv []float64) float64 {
			ll, err := LogLikelihood(xv, panel)
			if err != nil {
				return math.Inf(1)
			}
			return -ll
		},
		Grad: func(grad, xv []float64) {
			negLogLikGradient(grad, xv, panel)
		},
	}

	settings := &optimize.Settings{GradientThreshold: 1e-6}
	res, err := optimize.Minimize(problem, initial.Clone(), settings, &optimize.BFGS{})
	if res == nil || len(res.X) != K || !allFinite(res.X) {
		return nil, fmt.Errorf("%w: optimizer returned no usable point: %v", ErrEstimationFailed, err)
	}

	converged := false
	switch res.Status {
	case optimize.GradientThreshold, optimize.FunctionConvergence, optimize.StepConvergence:
		converged = err == nil
	}
	if !converged {
		// First-order check at the returned point; the line search can stall
		// with the gradient already negligible.
		grad := make([]float64, K)
		negLogLikGradient(grad, res.X, panel)
		converged = floats.Norm(grad, math.Inf(1)) <= 1e-4
	}

	out := &MLEResult{
		Estimate:  ParameterVector(res.X).Clone(),
		NegLogLik: res.F,
		Converged: converged,
	}
	if !converged {
		// Iteration budget exhausted (or the line search stalled): surface
		// the best point found but no curvature at a non-optimum.
		return out, nil
	}

	hess := observedInformation(out.Estimate, panel)
	var chol mat.Cholesky
	if !chol.Factorize(hess) {
		return nil, fmt.Errorf("%w: Hessian not positive definite at the optimum", ErrEstimationFailed)
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, fmt.Errorf("%w: Hessian inversion: %v", ErrEstimationFailed, err)
	}
	se := make([]float64, K)
	for i := range se {
		se[i] = math.Sqrt(inv.At(i, i))
	}
	out.Hessian = hess
	out.StdErrors = se
	return out, nil
}

// Default scales put the wide value on the brand and ad coefficients and the
// narrow value on the trailing price coefficient, whose natural magnitude is
// an order smaller.
func defaultScales(K int, wide, narrow float64) []float64 {
	s := make([]float64, K)
	for i := range s {
		s[i] = wide
	}
	s[K-1] = narrow
	return s
}

// withDefaults fills unset sampler options and validates the rest.
func (o SamplerOptions) withDefaults(K int) (SamplerOptions, error) {
	if o.Iterations <= 0 {
		o.Iterations = 11000
	}
	if o.BurnIn < 0 {
		return o, fmt.Errorf("burn-in must be >= 0, got %d", o.BurnIn)
	}
	if o.BurnIn == 0 {
		o.BurnIn = o.Iterations / 10
	}
	if o.Iterations-o.BurnIn < 2 {
		return o, fmt.Errorf("need at least 2 retained draws: iterations=%d, burn-in=%d", o.Iterations, o.BurnIn)
	}
	if o.ProposalScales == nil {
		o.ProposalScales = defaultScales(K, 0.05, 0.005)
	}
	if o.PriorScales == nil {
		o.PriorScales = defaultScales(K, math.Sqrt(5), 1.0)
	}
	if len(o.ProposalScales) != K {
		return o, fmt.Errorf("proposal scales have length %d, want %d", len(o.ProposalScales), K)
	}
	if len(o.PriorScales) != K {
		return o, fmt.Errorf("prior scales have length %d, want %d", len(o.PriorScales), K)
	}
	for j := 0; j < K; j++ {
		if !(o.ProposalScales[j] > 0) || !(o.PriorScales[j] > 0) {
			return o, fmt.Errorf("proposal and prior scales must be > 0 (coordinate %d)", j)
		}
	}
	return o, nil
}

// SamplePosterior draws from the posterior over the parameter vector with a
// random-walk Metropolis-Hastings sampler: independent Gaussian proposal per
// coordinate, independent zero-mean Gaussian prior. The log-posterior of the
// current state is cached so each iteration evaluates the likelihood once.
// The post-decision state is appended every iteration, accepted or not.
func SamplePosterior(panel *ChoicePanel, initial ParameterVector, opts SamplerOptions) (*PosteriorChain, error) {
	if err := panel.Validate(); err != nil {
		return nil, err
	}
	K := panel.Attrs.NumParams()
	if len(initial) != K {
		return nil, fmt.Errorf("initial vector has length %d, want %d", len(initial), K)
	}
	if !allFinite(initial) {
		return nil, fmt.Errorf("initial vector contains non-finite values")
	}
	opts, err := opts.withDefaults(K)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	proposals := make([]distuv.Normal, K)
	priors := make([]distuv.Normal, K)
	for j := 0; j < K; j++ {
		proposals[j] = distuv.Normal{Mu: 0, Sigma: opts.ProposalScales[j], Src: rng}
		priors[j] = distuv.Normal{Mu: 0, Sigma: opts.PriorScales[j]}
	}

	logPost := func(p ParameterVector) (float64, error) {
		ll, err := LogLikelihood(p, panel)
		if err != nil {
			return 0, err
		}
		for j := range p {
			ll += priors[j].LogProb(p[j])
		}
		return ll, nil
	}

	current := initial.Clone()
	curLP, err := logPost(current)
	if err != nil {
		return nil, err
	}

	draws := mat.NewDense(opts.Iterations, K, nil)
	lps := make([]float64, opts.Iterations)
	accepted := 0
	cand := make(ParameterVector, K)

	for it := 0; it < opts.Iterations; it++ {
		for j := range cand {
			cand[j] = current[j] + proposals[j].Rand()
		}
		candLP, err := logPost(cand)
		if err != nil {
			return nil, err
		}
		// accept iff log U < log posterior difference
		if math.Log(rng.Float64()) < candLP-curLP {
			current = cand.Clone()
			curLP = candLP
			accepted++
		}
		draws.SetRow(it, current)
		lps[it] = curLP
	}

	return &PosteriorChain{
		Draws:        draws,
		LogPosterior: lps,
		Accepted:     accepted,
		BurnIn:       opts.BurnIn,
	}, nil
}

// Iterations returns the total chain length including burn-in.
func (c *PosteriorChain) Iterations() int {
	r, _ := c.Draws.Dims()
	return r
}

// AcceptanceRate is the fraction of proposed moves that were accepted over
// the full run. A tuning diagnostic, not an error condition.
func (c *PosteriorChain) AcceptanceRate() float64 {
	return float64(c.Accepted) / float64(c.Iterations())
}

// Retained returns a copy of the chain with the burn-in prefix dropped.
func (c *PosteriorChain) Retained() *mat.Dense {
	r, k := c.Draws.Dims()
	return mat.DenseCopyOf(c.Draws.Slice(c.BurnIn, r, 0, k))
}

// Summary computes per-coordinate posterior mean, standard deviation, and
// equal-tailed (1-alpha) credible interval over the retained draws.
// alpha outside (0, 1) falls back to 0.05.
func (c *PosteriorChain) Summary(names []string, alpha float64) []CoordinateSummary {
	return summarizeDraws(c.Retained(), names, alpha)
}

func summarizeDraws(draws *mat.Dense, names []string, alpha float64) []CoordinateSummary {
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.05
	}
	_, K := draws.Dims()
	out := make([]CoordinateSummary, K)
	for k := 0; k < K; k++ {
		col := mat.Col(nil, k, draws)
		name := fmt.Sprintf("param%d", k+1)
		if len(names) == K {
			name = names[k]
		}
		out[k] = CoordinateSummary{
			Name:   name,
			Mean:   stat.Mean(col, nil),
			StdDev: stat.StdDev(col, nil),
			Lower:  credibleQuantile(col, alpha/2),
			Upper:  credibleQuantile(col, 1-alpha/2),
		}
	}
	return out
}

// credibleQuantile returns the empirical q-quantile of samples (0 <= q <= 1)
// using linear interpolation between order statistics.
func credibleQuantile(samples []float64, q float64) float64 {
	n := len(samples)
	if n == 0 {
		return math.NaN()
	}

	tmp := make([]float64, n)
	copy(tmp, samples)
	sort.Float64s(tmp)

	if q <= 0 {
		return tmp[0]
	}
	if q >= 1 {
		return tmp[n-1]
	}

	pos := q * float64(n-1)
	idxBelow := int(math.Floor(pos))
	idxAbove := int(math.Ceil(pos))

	if idxAbove == idxBelow {
		return tmp[idxBelow]
	}

	weight := pos - float64(idxBelow)
	return tmp[idxBelow]*(1.0-weight) + tmp[idxAbove]*weight
}

// SampleChains runs NChains independent Metropolis-Hastings chains over the
// same posterior in parallel. A master RNG derives one seed per chain so
// workers never share a random source; chains past the first may start from
// a jittered copy of the initial vector so the diagnostics see genuinely
// distinct starting points.
func SampleChains(panel *ChoicePanel, initial ParameterVector, opts ChainOptions) (*ChainSet, error) {
	if err := panel.Validate(); err != nil {
		return nil, err
	}
	K := panel.Attrs.NumParams()
	if len(initial) != K {
		return nil, fmt.Errorf("initial vector has length %d, want %d", len(initial), K)
	}
	if opts.NChains <= 0 {
		opts.NChains = 4
	}
	sopts, err := opts.Sampler.withDefaults(K)
	if err != nil {
		return nil, err
	}

	// Per-chain seeds and starting points, all derived from the master seed
	// so the whole chain set is reproducible.
	masterRng := rand.New(rand.NewSource(sopts.Seed))
	seeds := make([]uint64, opts.NChains)
	starts := make([]ParameterVector, opts.NChains)
	for c := 0; c < opts.NChains; c++ {
		seeds[c] = masterRng.Uint64()
		starts[c] = initial.Clone()
		if c > 0 && opts.StartJitter > 0 {
			for j := range starts[c] {
				starts[c][j] += opts.StartJitter * masterRng.NormFloat64()
			}
		}
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > opts.NChains {
		numWorkers = opts.NChains
	}

	jobs := make(chan int)
	resultsCh := make(chan chainResult, opts.NChains)

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	worker := func() {
		defer wg.Done()
		for c := range jobs {
			o := sopts
			o.Seed = seeds[c]
			chain, err := SamplePosterior(panel, starts[c], o)
			resultsCh <- chainResult{Index: c, Chain: chain, Err: err}
		}
	}

	for w := 0; w < numWorkers; w++ {
		go worker()
	}

	go func() {
		for c := 0; c < opts.NChains; c++ {
			jobs <- c
		}
		close(jobs)
	}()

	chains := make([]*PosteriorChain, opts.NChains)
	var firstErr error
	for i := 0; i < opts.NChains; i++ {
		res := <-resultsCh
		if res.Err != nil && firstErr == nil {
			firstErr = fmt.Errorf("chain %d: %v", res.Index, res.Err)
		}
		chains[res.Index] = res.Chain
	}

	wg.Wait()
	close(resultsCh)

	if firstErr != nil {
		return nil, firstErr
	}
	return &ChainSet{Chains: chains}, nil
}

// AcceptanceRates returns the per-chain acceptance rates.
func (cs *ChainSet) AcceptanceRates() []float64 {
	out := make([]float64, len(cs.Chains))
	for i, c := range cs.Chains {
		out[i] = c.AcceptanceRate()
	}
	return out
}

// retainedMatrices returns each chain's post-burn-in draws, verifying that
// all chains share the same dimensions.
func (cs *ChainSet) retainedMatrices() ([]*mat.Dense, int, int, error) {
	if len(cs.Chains) == 0 {
		return nil, 0, 0, fmt.Errorf("chain set is empty")
	}
	ms := make([]*mat.Dense, len(cs.Chains))
	var n, K int
	for i, c := range cs.Chains {
		ms[i] = c.Retained()
		r, k := ms[i].Dims()
		if i == 0 {
			n, K = r, k
		} else if r != n || k != K {
			return nil, 0, 0, fmt.Errorf("chain %d has retained shape %dx%d, want %dx%d", i, r, k, n, K)
		}
	}
	return ms, n, K, nil
}

// Pooled stacks the retained draws of all chains into one matrix.
func (cs *ChainSet) Pooled() (*mat.Dense, error) {
	ms, n, K, err := cs.retainedMatrices()
	if err != nil {
		return nil, err
	}
	pooled := mat.NewDense(n*len(ms), K, nil)
	for i, m := range ms {
		for r := 0; r < n; r++ {
			for k := 0; k < K; k++ {
				pooled.Set(i*n+r, k, m.At(r, k))
			}
		}
	}
	return pooled, nil
}

// Summary computes the posterior summary table over the pooled retained draws.
func (cs *ChainSet) Summary(names []string, alpha float64) ([]CoordinateSummary, error) {
	pooled, err := cs.Pooled()
	if err != nil {
		return nil, err
	}
	return summarizeDraws(pooled, names, alpha), nil
}

// RHat computes the split-chain Gelman-Rubin statistic per coordinate: each
// retained chain is split in half and the between-sequence variance is
// compared against the within-sequence variance. Values near 1 indicate the
// chains have mixed; a common cutoff for concern is 1.1.
func (cs *ChainSet) RHat() ([]float64, error) {
	ms, n, K, err := cs.retainedMatrices()
	if err != nil {
		return nil, err
	}
	half := n / 2
	if half < 2 {
		return nil, fmt.Errorf("need at least 4 retained draws per chain, got %d", n)
	}

	out := make([]float64, K)
	for k := 0; k < K; k++ {
		var seqs [][]float64
		for _, m := range ms {
			col := mat.Col(nil, k, m)
			seqs = append(seqs, col[:half], col[n-half:])
		}
		means := make([]float64, len(seqs))
		vars := make([]float64, len(seqs))
		for i, s := range seqs {
			means[i] = stat.Mean(s, nil)
			vars[i] = stat.Variance(s, nil)
		}
		W := stat.Mean(vars, nil)
		B := float64(half) * stat.Variance(means, nil)
		if W <= 0 {
			// Degenerate (constant) sequences; nothing to diagnose.
			out[k] = 1
			continue
		}
		varPlus := float64(half-1)/float64(half)*W + B/float64(half)
		out[k] = math.Sqrt(varPlus / W)
	}
	return out, nil
}

// EffectiveSampleSize estimates the number of independent draws the pooled
// chains are worth per coordinate, using chain-averaged autocorrelations
// truncated at the first negative paired sum (Geyer's initial positive
// sequence rule).
func (cs *ChainSet) EffectiveSampleSize() ([]float64, error) {
	ms, n, K, err := cs.retainedMatrices()
	if err != nil {
		return nil, err
	}
	if n < 4 {
		return nil, fmt.Errorf("need at least 4 retained draws per chain, got %d", n)
	}
	m := len(ms)
	total := float64(m * n)

	out := make([]float64, K)
	for k := 0; k < K; k++ {
		cols := make([][]float64, m)
		means := make([]float64, m)
		vars := make([]float64, m)
		for c, mm := range ms {
			cols[c] = mat.Col(nil, k, mm)
			means[c] = stat.Mean(cols[c], nil)
			vars[c] = stat.Variance(cols[c], nil)
		}
		W := stat.Mean(vars, nil)
		B := float64(n) * stat.Variance(means, nil)
		varPlus := float64(n-1)/float64(n)*W + B/float64(n)
		if varPlus <= 0 {
			out[k] = total
			continue
		}

		sumRho := 0.0
		for t := 1; t+1 < n; t += 2 {
			rho1 := 1 - (W-meanAutocov(cols, means, t))/varPlus
			rho2 := 1 - (W-meanAutocov(cols, means, t+1))/varPlus
			if rho1+rho2 <= 0 {
				break
			}
			sumRho += rho1 + rho2
		}

		ess := total / (1 + 2*sumRho)
		if ess > total {
			ess = total
		}
		out[k] = ess
	}
	return out, nil
}

// meanAutocov averages the lag-t autocovariance across chains.
func meanAutocov(cols [][]float64, means []float64, t int) float64 {
	totalCov := 0.0
	for c, x := range cols {
		n := len(x)
		s := 0.0
		for i := 0; i+t < n; i++ {
			s += (x[i] - means[c]) * (x[i+t] - means[c])
		}
		totalCov += s / float64(n)
	}
	return totalCov / float64(len(cols))
}

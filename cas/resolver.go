package cas

import (
	"context"
	"time"

	"github.com/rickchristie/flowmap"
	"github.com/rickchristie/flowmap/logging"
)

// ServiceName identifies registry lookups in traces.
const ServiceName = "cas_registry"

// Resolver picks one CAS number for a synonym set.
type Resolver struct {
	registry    Registry
	maxAttempts int
	timeout     time.Duration
	log         logging.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithMaxAttempts sets how many synonyms are tried, in order, until one yields a
// number. The default of 1 looks up the primary name only.
func WithMaxAttempts(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithTimeout bounds each registry call.
func WithTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(log logging.Logger) ResolverOption {
	return func(r *Resolver) { r.log = logging.OrNop(log) }
}

// NewResolver creates a Resolver over registry.
func NewResolver(registry Registry, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		registry:    registry,
		maxAttempts: 1,
		timeout:     flowmap.DefaultCASTimeout,
		log:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the CAS number for synonyms, or flowmap.NoCAS. Registry
// failures, timeouts and empty answers all yield NoCAS; they are logged and
// traced but never returned.
func (r *Resolver) Resolve(
	ctx context.Context,
	execCtx *flowmap.ExecutionContext,
	synonyms flowmap.SynonymSet,
) flowmap.CASNumber {
	names := synonyms.Names()
	if len(names) > r.maxAttempts {
		names = names[:r.maxAttempts]
	}

	for _, name := range names {
		number, err := r.Lookup(ctx, execCtx, name)
		if err != nil {
			r.log.Warn("cas lookup failed, treating as none",
				logging.String("query", name), logging.Err(err))
			if ctx.Err() != nil {
				return flowmap.NoCAS
			}
			continue
		}
		if number.Found() {
			if !number.ValidCheckDigit() {
				r.log.Info("cas number fails check digit",
					logging.String("query", name), logging.String("cas", number.Formatted()))
			}
			return number
		}
	}
	return flowmap.NoCAS
}

// Lookup searches the registry for one name and returns the most common number
// among the hits, or NoCAS when there are none. Unlike Resolve it returns
// registry errors.
func (r *Resolver) Lookup(
	ctx context.Context,
	execCtx *flowmap.ExecutionContext,
	query string,
) (flowmap.CASNumber, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	var (
		results  []Result
		cacheHit bool
		err      error
	)
	if cached, ok := r.registry.(CacheReporter); ok {
		results, cacheHit, err = cached.SearchCached(ctx, query)
	} else {
		results, err = r.registry.Search(ctx, query)
	}
	duration := time.Since(start)

	if execCtx != nil {
		execCtx.Trace(flowmap.LookupTrace{
			Service:   ServiceName,
			Operation: "search",
			Query:     query,
			Results:   len(results),
			CacheHit:  cacheHit,
			Duration:  duration,
			Error:     err,
		})
	}
	if err != nil {
		return flowmap.NoCAS, err
	}
	return MostCommon(results), nil
}

// MostCommon returns the number that occurs most often among results after
// normalization. Ties go to the higher-ranked hit.
func MostCommon(results []Result) flowmap.CASNumber {
	counts := make(map[flowmap.CASNumber]int)
	order := make([]flowmap.CASNumber, 0, len(results))
	for _, res := range results {
		n := flowmap.NormalizeCAS(res.RN)
		if !n.Found() {
			continue
		}
		if counts[n] == 0 {
			order = append(order, n)
		}
		counts[n]++
	}

	best := flowmap.NoCAS
	bestCount := 0
	for _, n := range order {
		if counts[n] > bestCount {
			best, bestCount = n, counts[n]
		}
	}
	return best
}

package rag

import (
	"context"
	"fmt"
	"time"

	"case-explainer/cache"
	apperrors "case-explainer/errors"
	"case-explainer/metrics"
	"case-explainer/types"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Source names used in degradations, logs and metrics.
const (
	sourceApplication = "application"
	sourceDecision    = "decision"
	sourceValidation  = "validation"
	sourceDocuments   = "document_cache"
	sourceGraphSim    = "graph_similar"
	sourceGraphProg   = "graph_programs"
	sourceVector      = "vector"
)

// Aggregator builds a CaseContext from the four stores, caching the result per case.
type Aggregator struct {
	sources       Sources
	contexts      *cache.Cache
	timeout       time.Duration
	similarLimit  int
	semanticLimit int
	logger        *zap.Logger
	now           func() time.Time
}

// NewAggregator wires the sources to a context cache. timeout bounds each individual source call.
func NewAggregator(sources Sources, contexts *cache.Cache, timeout time.Duration, similarLimit, semanticLimit int, logger *zap.Logger) (*Aggregator, error) {
	if sources.Relational == nil {
		return nil, fmt.Errorf("aggregator: relational source is required")
	}
	if contexts == nil {
		return nil, fmt.Errorf("aggregator: context cache is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		sources:       sources,
		contexts:      contexts,
		timeout:       timeout,
		similarLimit:  similarLimit,
		semanticLimit: semanticLimit,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// callWithTimeout runs fn under the per-source deadline. A source that ignores
// its context is abandoned once the deadline passes.
func callWithTimeout[T any](ctx context.Context, d time.Duration, source string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	start := time.Now()
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-ctx.Done():
		r.err = ctx.Err()
	}
	metrics.ObserveSource(source, start, r.err)
	return r.v, r.err
}

// Aggregate returns the context for caseID. Only a relational failure is an error,
// and it wraps apperrors.ErrMandatorySourceFailed.
func (a *Aggregator) Aggregate(ctx context.Context, caseID, question string) (*CaseContext, error) {
	wantSemantic := HasComparisonIntent(question) && a.sources.Vectors != nil && a.semanticLimit > 0
	key := cache.ContextKey(caseID)

	if v, ok := a.contexts.Get(key); ok {
		metrics.IncCacheLookup("context", true)
		cached := v.(*CaseContext)
		if !wantSemantic || cached.SemanticFetched {
			return cached, nil
		}
		// The cached context was built for a question without comparison intent.
		cc := cached.clone()
		if a.fetchSemantic(ctx, cc, question) {
			a.contexts.Put(key, cc)
		}
		return cc, nil
	}
	metrics.IncCacheLookup("context", false)

	app, err := callWithTimeout(ctx, a.timeout, sourceApplication, func(ctx context.Context) (*types.Application, error) {
		return a.sources.Relational.GetApplication(ctx, caseID)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: application %s: %v", apperrors.ErrMandatorySourceFailed, caseID, err)
	}
	decision, err := callWithTimeout(ctx, a.timeout, sourceDecision, func(ctx context.Context) (*types.Decision, error) {
		return a.sources.Relational.GetDecision(ctx, caseID)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: decision %s: %v", apperrors.ErrMandatorySourceFailed, caseID, err)
	}

	cc := &CaseContext{
		CaseID:           caseID,
		Application:      app,
		Decision:         decision,
		HasRealData:      hasRealData(app),
		IsFullyProcessed: isFullyProcessed(app),
		BuiltAt:          a.now(),
	}

	var (
		validation *types.Validation
		fields     types.ExtractedFields
		similar    []string
		programs   []types.ProgramRef
		failed     = make([]string, 4)
	)

	// Optional sources never fail the group; each records its own degradation slot.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := callWithTimeout(gctx, a.timeout, sourceValidation, func(ctx context.Context) (*types.Validation, error) {
			return a.sources.Relational.GetLatestValidation(ctx, caseID)
		})
		if err != nil {
			failed[0] = sourceValidation
			a.logSourceFailure(sourceValidation, caseID, err)
			return nil
		}
		validation = v
		return nil
	})
	if a.sources.Documents != nil {
		g.Go(func() error {
			f, err := callWithTimeout(gctx, a.timeout, sourceDocuments, func(ctx context.Context) (types.ExtractedFields, error) {
				return a.sources.Documents.GetExtractedFields(ctx, caseID)
			})
			if err != nil {
				failed[1] = sourceDocuments
				a.logSourceFailure(sourceDocuments, caseID, err)
				return nil
			}
			fields = f
			return nil
		})
	}
	if a.sources.Graph != nil {
		g.Go(func() error {
			s, err := callWithTimeout(gctx, a.timeout, sourceGraphSim, func(ctx context.Context) ([]string, error) {
				return a.sources.Graph.GetSimilar(ctx, caseID, a.similarLimit)
			})
			if err != nil {
				failed[2] = sourceGraphSim
				a.logSourceFailure(sourceGraphSim, caseID, err)
				return nil
			}
			similar = s
			return nil
		})
		g.Go(func() error {
			p, err := callWithTimeout(gctx, a.timeout, sourceGraphProg, func(ctx context.Context) ([]types.ProgramRef, error) {
				return a.sources.Graph.GetRecommendedPrograms(ctx, caseID)
			})
			if err != nil {
				failed[3] = sourceGraphProg
				a.logSourceFailure(sourceGraphProg, caseID, err)
				return nil
			}
			programs = p
			return nil
		})
	}
	if wantSemantic {
		g.Go(func() error {
			a.fetchSemantic(gctx, cc, question)
			return nil
		})
	}
	_ = g.Wait()

	cc.Validation = validation
	cc.ExtractedFields = fields
	cc.SimilarCases = similar
	cc.RecommendedPrograms = programs
	for _, f := range failed {
		if f != "" {
			cc.degraded(f)
		}
	}

	a.contexts.Put(key, cc)
	a.logger.Debug("Aggregated case context",
		zap.String("case_id", caseID),
		zap.Bool("has_real_data", cc.HasRealData),
		zap.Bool("fully_processed", cc.IsFullyProcessed),
		zap.Strings("degraded", cc.Degradations))
	return cc, nil
}

// fetchSemantic fills cc.SemanticMatches and reports whether the lookup succeeded.
// cc must not be shared yet.
func (a *Aggregator) fetchSemantic(ctx context.Context, cc *CaseContext, question string) bool {
	matches, err := callWithTimeout(ctx, a.timeout, sourceVector, func(ctx context.Context) ([]types.SemanticMatch, error) {
		return a.sources.Vectors.Search(ctx, question, a.semanticLimit)
	})
	if err != nil {
		a.logSourceFailure(sourceVector, cc.CaseID, err)
		cc.degraded(sourceVector)
		return false
	}
	// The case itself is not a useful comparison.
	filtered := matches[:0:0]
	for _, m := range matches {
		if m.CaseID != cc.CaseID {
			filtered = append(filtered, m)
		}
	}
	cc.SemanticMatches = filtered
	cc.SemanticFetched = true
	return true
}

func (a *Aggregator) logSourceFailure(source, caseID string, err error) {
	a.logger.Warn("Source unavailable, continuing without it",
		zap.String("source", source),
		zap.String("case_id", caseID),
		zap.Error(fmt.Errorf("%w: %v", apperrors.ErrSourceUnavailable, err)))
}

// Invalidate drops the cached context of a case.
func (a *Aggregator) Invalidate(caseID string) bool {
	return a.contexts.Invalidate(cache.ContextKey(caseID))
}

func (a *Aggregator) CacheStats() cache.Stats {
	return a.contexts.Stats()
}

func (a *Aggregator) Purge() {
	a.contexts.Purge()
}

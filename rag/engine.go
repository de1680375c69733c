package rag

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"case-explainer/cache"
	"case-explainer/config"
	apperrors "case-explainer/errors"
	"case-explainer/llmclient"
	"case-explainer/metrics"
	"case-explainer/types"
	"case-explainer/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Source labels reported on answers.
const (
	LabelRelational = "relational"
	LabelDocuments  = "document_cache"
	LabelGraph      = "graph"
	LabelVector     = "vector"
	LabelCaseStatus = "case_status"
)

// GeneratedAnswer is what a caller gets back. Values held in the answer cache are
// never handed out directly; callers receive copies.
type GeneratedAnswer struct {
	CaseID          string    `json:"case_id"`
	Question        string    `json:"question"`
	Text            string    `json:"text"`
	Confidence      float64   `json:"confidence"`
	Sources         []string  `json:"sources"`
	QueryType       QueryType `json:"query_type"`
	Degraded        bool      `json:"degraded"`
	ServedFromCache bool      `json:"served_from_cache"`
	LatencyMs       int64     `json:"latency_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

func (a *GeneratedAnswer) copy() *GeneratedAnswer {
	cp := *a
	cp.Sources = append([]string(nil), a.Sources...)
	return &cp
}

// Stats summarizes engine activity since construction.
type Stats struct {
	TotalQueries    int64       `json:"total_queries"`
	CacheHits       int64       `json:"cache_hits"`
	GenerationCalls int64       `json:"generation_calls"`
	ErrorCount      int64       `json:"error_count"`
	CacheHitRate    float64     `json:"cache_hit_rate"`
	AvgLatencyMs    float64     `json:"avg_latency_ms"`
	AnswerCache     cache.Stats `json:"answer_cache"`
	ContextCache    cache.Stats `json:"context_cache"`
}

// HealthReport lists the reachability of every registered store.
type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Engine answers questions about a case: answer cache, aggregation, ranking,
// prompt assembly and generation.
type Engine struct {
	aggregator *Aggregator
	assembler  *PromptAssembler
	generator  *Generator
	answers    *cache.Cache
	history    HistoryStore
	pingers    map[string]Pinger
	logger     *zap.Logger

	coalesce       bool
	inflight       singleflight.Group
	adapterTimeout time.Duration
	historyLimit   int

	totalQueries    atomic.Int64
	cacheHits       atomic.Int64
	generationCalls atomic.Int64
	errorCount      atomic.Int64
	latencyTotalMs  atomic.Int64
	latencySamples  atomic.Int64
}

type Option func(*Engine)

// WithHistory persists every answered turn and enables History.
func WithHistory(h HistoryStore) Option {
	return func(e *Engine) { e.history = h }
}

// WithHealthCheck registers a store for Health.
func WithHealthCheck(name string, p Pinger) Option {
	return func(e *Engine) {
		if p != nil {
			e.pingers[name] = p
		}
	}
}

// New builds an engine from configuration, the retrieval sources and the text generator.
func New(cfg *config.Config, sources Sources, llm TextGenerator, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if llm == nil {
		return nil, fmt.Errorf("engine: text generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	answers, err := cache.New(cfg.AnswerCacheSize, cfg.AnswerCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("answer cache: %w", err)
	}
	contexts, err := cache.New(cfg.ContextCacheSize, cfg.ContextCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("context cache: %w", err)
	}
	aggregator, err := NewAggregator(sources, contexts, cfg.AdapterTimeout, cfg.SimilarCasesLimit, cfg.SemanticResults, logger)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		aggregator: aggregator,
		assembler:  NewPromptAssembler(cfg.PromptMaxChars, cfg.CurrencyMarker),
		generator: NewGenerator(llm, cfg.LLMRequestTimeout, cfg.GenerationRetries, cfg.RetryDelaySeconds, llmclient.Options{
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
		}, cfg.CurrencyMarker, logger),
		answers:        answers,
		pingers:        make(map[string]Pinger),
		logger:         logger,
		coalesce:       cfg.CoalesceMisses,
		adapterTimeout: aggregator.timeout,
		historyLimit:   cfg.HistoryLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Answer returns the answer for a question about caseID.
//
// A relational failure returns (nil, err) wrapping apperrors.ErrMandatorySourceFailed.
// A generation failure returns the apology answer together with
// apperrors.ErrGenerationTimeout or apperrors.ErrGenerationTransport; it is not cached.
func (e *Engine) Answer(ctx context.Context, caseID, question string) (*GeneratedAnswer, error) {
	start := time.Now()
	if err := utils.ValidateCaseID(caseID); err != nil {
		return nil, err
	}
	question, err := utils.ValidateQuestion(question)
	if err != nil {
		return nil, err
	}
	e.totalQueries.Add(1)

	key := cache.AnswerKey(caseID, question)
	if v, ok := e.answers.Get(key); ok {
		metrics.IncCacheLookup("answer", true)
		e.cacheHits.Add(1)
		ans := v.(*GeneratedAnswer).copy()
		ans.ServedFromCache = true
		ans.LatencyMs = time.Since(start).Milliseconds()
		e.recordLatency(ans.LatencyMs)
		metrics.ObserveAnswer(metrics.OutcomeCacheHit, start)
		e.recordTurn(ctx, question, ans)
		e.logger.Debug("Answer cache hit", zap.String("case_id", caseID))
		return ans, nil
	}
	metrics.IncCacheLookup("answer", false)

	var ans *GeneratedAnswer
	if e.coalesce {
		v, err, shared := e.inflight.Do(key, func() (interface{}, error) {
			resolved, err := e.resolve(ctx, caseID, question, key)
			if resolved == nil {
				return nil, err
			}
			return resolved, err
		})
		if v != nil {
			ans = v.(*GeneratedAnswer).copy()
		}
		if shared {
			e.logger.Debug("Coalesced concurrent miss", zap.String("case_id", caseID))
		}
		if err != nil && ans == nil {
			return nil, err
		}
		if ans != nil {
			ans.LatencyMs = time.Since(start).Milliseconds()
			e.recordLatency(ans.LatencyMs)
			e.recordTurn(ctx, question, ans)
		}
		return ans, err
	}

	ans, err = e.resolve(ctx, caseID, question, key)
	if ans != nil {
		ans.LatencyMs = time.Since(start).Milliseconds()
		e.recordLatency(ans.LatencyMs)
		e.recordTurn(ctx, question, ans)
	}
	return ans, err
}

// resolve computes an answer on a cache miss.
func (e *Engine) resolve(ctx context.Context, caseID, question, key string) (*GeneratedAnswer, error) {
	start := time.Now()

	cc, err := e.aggregator.Aggregate(ctx, caseID, question)
	if err != nil {
		e.errorCount.Add(1)
		metrics.ObserveAnswer(metrics.OutcomeMandatoryFailed, start)
		e.logger.Error("Aggregation failed", zap.String("case_id", caseID), zap.Error(err))
		return nil, err
	}

	qt := ClassifyQuestion(question)
	frags := Rank(question, cc)
	metrics.ObserveFragments(len(frags))

	prompt, degraded, err := e.assembler.Build(question, qt, cc, frags)
	if err != nil {
		e.errorCount.Add(1)
		return nil, fmt.Errorf("assemble prompt: %w", err)
	}

	e.generationCalls.Add(1)
	text, confidence, genErr := e.generator.Generate(ctx, prompt)

	ans := &GeneratedAnswer{
		CaseID:    caseID,
		Question:  question,
		Text:      text,
		QueryType: qt,
		Degraded:  degraded,
		CreatedAt: time.Now(),
	}

	if genErr != nil {
		e.errorCount.Add(1)
		ans.Confidence = 0
		ans.Sources = []string{}
		metrics.ObserveAnswer(metrics.OutcomeGenerationFailed, start)
		return ans, genErr
	}

	outcome := metrics.OutcomeGenerated
	if degraded {
		ans.Confidence = DegradedConfidence
		ans.Sources = []string{LabelCaseStatus}
		outcome = metrics.OutcomeDegraded
	} else {
		ans.Confidence = confidence
		ans.Sources = sourceLabels(frags)
	}
	metrics.ObserveConfidence(ans.Confidence)
	metrics.ObserveAnswer(outcome, start)

	e.answers.Put(key, ans.copy())
	e.logger.Info("Generated answer",
		zap.String("case_id", caseID),
		zap.String("query_type", string(qt)),
		zap.Bool("degraded", degraded),
		zap.Float64("confidence", ans.Confidence),
		zap.Int("fragments", len(frags)))
	return ans, nil
}

func sourceLabels(frags []RankedFragment) []string {
	seen := make(map[string]bool)
	labels := []string{}
	for _, f := range frags {
		var label string
		switch f.Source {
		case FragmentApplication, FragmentDecision, FragmentValidation:
			label = LabelRelational
		case FragmentDocuments:
			label = LabelDocuments
		case FragmentSimilarCases, FragmentGraph:
			label = LabelGraph
		case FragmentSemanticMatches:
			label = LabelVector
		default:
			continue
		}
		if !seen[label] {
			seen[label] = true
			labels = append(labels, label)
		}
	}
	return labels
}

func (e *Engine) recordLatency(ms int64) {
	e.latencyTotalMs.Add(ms)
	e.latencySamples.Add(1)
}

// recordTurn persists the exchange. Failures are logged, never returned.
func (e *Engine) recordTurn(ctx context.Context, question string, ans *GeneratedAnswer) {
	if e.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.adapterTimeout)
	defer cancel()
	turn := types.ConversationTurn{
		ID:         utils.GenerateTurnID(),
		CaseID:     ans.CaseID,
		Question:   question,
		Answer:     ans.Text,
		Confidence: ans.Confidence,
		Cached:     ans.ServedFromCache,
		CreatedAt:  time.Now(),
	}
	if err := e.history.StoreConversation(ctx, turn); err != nil {
		e.logger.Warn("Failed to store conversation turn", zap.String("case_id", ans.CaseID), zap.Error(err))
	}
}

// Stats returns a snapshot of engine counters and both caches.
func (e *Engine) Stats() Stats {
	s := Stats{
		TotalQueries:    e.totalQueries.Load(),
		CacheHits:       e.cacheHits.Load(),
		GenerationCalls: e.generationCalls.Load(),
		ErrorCount:      e.errorCount.Load(),
		AnswerCache:     e.answers.Stats(),
		ContextCache:    e.aggregator.CacheStats(),
	}
	if s.TotalQueries > 0 {
		s.CacheHitRate = float64(s.CacheHits) / float64(s.TotalQueries)
	}
	if n := e.latencySamples.Load(); n > 0 {
		s.AvgLatencyMs = float64(e.latencyTotalMs.Load()) / float64(n)
	}
	return s
}

// Invalidate drops the cached context and every cached answer of a case.
// It returns the number of answers removed.
func (e *Engine) Invalidate(caseID string) int {
	e.aggregator.Invalidate(caseID)
	removed := e.answers.InvalidateFunc(func(_ string, v any) bool {
		ans, ok := v.(*GeneratedAnswer)
		return ok && ans.CaseID == caseID
	})
	e.logger.Info("Invalidated case", zap.String("case_id", caseID), zap.Int("answers_removed", removed))
	return removed
}

// ClearCaches empties both caches.
func (e *Engine) ClearCaches() {
	e.answers.Purge()
	e.aggregator.Purge()
}

// History returns the most recent turns of a case, oldest first.
func (e *Engine) History(ctx context.Context, caseID string, limit int) ([]types.ConversationTurn, error) {
	if err := utils.ValidateCaseID(caseID); err != nil {
		return nil, err
	}
	if e.history == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = e.historyLimit
	}
	turns, err := e.history.GetConversation(ctx, caseID, limit)
	if err != nil {
		return nil, apperrors.WrapError(err, "load conversation history")
	}
	return turns, nil
}

// Health pings every registered store under the adapter timeout.
func (e *Engine) Health(ctx context.Context) HealthReport {
	report := HealthReport{Status: "ok", Checks: make(map[string]string, len(e.pingers))}
	for name, p := range e.pingers {
		pctx, cancel := context.WithTimeout(ctx, e.adapterTimeout)
		err := p.Ping(pctx)
		cancel()
		if err != nil {
			report.Checks[name] = err.Error()
			report.Status = "degraded"
			continue
		}
		report.Checks[name] = "ok"
	}
	return report
}

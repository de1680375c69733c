package rag

import (
	"context"
	"testing"
	"time"

	"case-explainer/cache"
	"case-explainer/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAggregator(t *testing.T, sources Sources) *Aggregator {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	contexts, err := cache.New(10, time.Minute)
	require.NoError(t, err)
	a, err := NewAggregator(sources, contexts, 100*time.Millisecond, 5, 3, logger)
	require.NoError(t, err)
	return a
}

func TestNewAggregatorRequiresRelational(t *testing.T) {
	contexts, err := cache.New(1, 0)
	require.NoError(t, err)
	_, err = NewAggregator(Sources{}, contexts, time.Second, 5, 3, nil)
	assert.Error(t, err)
}

func TestAggregateFlags(t *testing.T) {
	tests := []struct {
		name          string
		app           *types.Application
		wantReal      bool
		wantProcessed bool
	}{
		{"missing_application", nil, false, false},
		{"pending_no_data", &types.Application{CaseID: "C", Status: "PENDING"}, false, false},
		{"unknown_employment", &types.Application{CaseID: "C", Status: "COMPLETED", EmploymentStatus: "Unknown"}, false, true},
		{"income_pending", &types.Application{CaseID: "C", Status: "pending", MonthlyIncome: 10}, true, false},
		{"credit_processed", &types.Application{CaseID: "C", Status: " processed ", CreditScore: 640}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel := newFakeRelational()
			if tt.app != nil {
				rel.apps["C"] = tt.app
			}
			cc, err := newTestAggregator(t, Sources{Relational: rel}).Aggregate(context.Background(), "C", "hello")
			require.NoError(t, err)
			assert.Equal(t, tt.wantReal, cc.HasRealData)
			assert.Equal(t, tt.wantProcessed, cc.IsFullyProcessed)
		})
	}
}

func TestAggregateUsesContextCache(t *testing.T) {
	rel := newFakeRelational()
	rel.apps["C"] = processedApplication("C")
	a := newTestAggregator(t, Sources{Relational: rel})
	ctx := context.Background()

	first, err := a.Aggregate(ctx, "C", "why")
	require.NoError(t, err)
	second, err := a.Aggregate(ctx, "C", "what is my income")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.EqualValues(t, 1, rel.appCalls.Load())

	require.True(t, a.Invalidate("C"))
	_, err = a.Aggregate(ctx, "C", "why")
	require.NoError(t, err)
	assert.EqualValues(t, 2, rel.appCalls.Load())
}

func TestAggregateAddsSemanticToCachedContext(t *testing.T) {
	rel := newFakeRelational()
	rel.apps["C"] = processedApplication("C")
	vectors := &fakeVectors{matches: []types.SemanticMatch{{CaseID: "D", Distance: 0.1}}}
	a := newTestAggregator(t, Sources{Relational: rel, Vectors: vectors})
	ctx := context.Background()

	plain, err := a.Aggregate(ctx, "C", "why was I approved")
	require.NoError(t, err)
	assert.Empty(t, plain.SemanticMatches)
	assert.Zero(t, vectors.calls.Load())

	compared, err := a.Aggregate(ctx, "C", "show similar cases")
	require.NoError(t, err)
	assert.Len(t, compared.SemanticMatches, 1)
	assert.Empty(t, plain.SemanticMatches, "cached context must not be mutated")

	again, err := a.Aggregate(ctx, "C", "compare me")
	require.NoError(t, err)
	assert.Same(t, compared, again)
	assert.EqualValues(t, 1, vectors.calls.Load())
	assert.EqualValues(t, 1, rel.appCalls.Load())
}

func TestAggregateFailedSemanticIsNotCached(t *testing.T) {
	rel := newFakeRelational()
	rel.apps["C"] = processedApplication("C")
	vectors := &fakeVectors{err: errStoreDown}
	a := newTestAggregator(t, Sources{Relational: rel, Vectors: vectors})
	ctx := context.Background()

	cc, err := a.Aggregate(ctx, "C", "similar cases?")
	require.NoError(t, err)
	assert.Contains(t, cc.Degradations, sourceVector)
	assert.False(t, cc.SemanticFetched)

	vectors.err = nil
	vectors.matches = []types.SemanticMatch{{CaseID: "D"}}
	cc, err = a.Aggregate(ctx, "C", "similar cases?")
	require.NoError(t, err)
	assert.True(t, cc.SemanticFetched)
	assert.Len(t, cc.SemanticMatches, 1)
}

func TestAggregateTimesOutSlowSource(t *testing.T) {
	rel := newFakeRelational()
	rel.apps["C"] = processedApplication("C")
	docs := &fakeDocuments{delay: time.Second, fields: map[string]types.ExtractedFields{"C": {"a": 1}}}
	a := newTestAggregator(t, Sources{Relational: rel, Documents: docs})

	start := time.Now()
	cc, err := a.Aggregate(context.Background(), "C", "why")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Nil(t, cc.ExtractedFields)
	assert.Equal(t, []string{sourceDocuments}, cc.Degradations)
}

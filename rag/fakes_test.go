package rag

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"case-explainer/config"
	"case-explainer/llmclient"
	"case-explainer/types"
)

type fakeRelational struct {
	mu          sync.Mutex
	apps        map[string]*types.Application
	decisions   map[string]*types.Decision
	validations map[string]*types.Validation
	appErr      error
	decisionErr error
	validErr    error
	appCalls    atomic.Int64
}

func newFakeRelational() *fakeRelational {
	return &fakeRelational{
		apps:        make(map[string]*types.Application),
		decisions:   make(map[string]*types.Decision),
		validations: make(map[string]*types.Validation),
	}
}

func (f *fakeRelational) GetApplication(_ context.Context, caseID string) (*types.Application, error) {
	f.appCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appErr != nil {
		return nil, f.appErr
	}
	return f.apps[caseID], nil
}

func (f *fakeRelational) GetDecision(_ context.Context, caseID string) (*types.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.decisionErr != nil {
		return nil, f.decisionErr
	}
	return f.decisions[caseID], nil
}

func (f *fakeRelational) GetLatestValidation(_ context.Context, caseID string) (*types.Validation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.validErr != nil {
		return nil, f.validErr
	}
	return f.validations[caseID], nil
}

type fakeDocuments struct {
	fields map[string]types.ExtractedFields
	err    error
	delay  time.Duration
}

func (f *fakeDocuments) GetExtractedFields(ctx context.Context, caseID string) (types.ExtractedFields, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.fields[caseID], nil
}

type fakeVectors struct {
	matches []types.SemanticMatch
	err     error
	calls   atomic.Int64
}

func (f *fakeVectors) Search(_ context.Context, _ string, limit int) ([]types.SemanticMatch, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.matches) {
		return f.matches[:limit], nil
	}
	return f.matches, nil
}

type fakeGraph struct {
	similar  map[string][]string
	programs map[string][]types.ProgramRef
	err      error
}

func (f *fakeGraph) GetSimilar(_ context.Context, caseID string, _ int) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.similar[caseID], nil
}

func (f *fakeGraph) GetRecommendedPrograms(_ context.Context, caseID string) ([]types.ProgramRef, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.programs[caseID], nil
}

type fakeLLM struct {
	mu      sync.Mutex
	reply   string
	errs    []error
	prompts []string
	opts    []llmclient.Options
	delay   time.Duration
	calls   atomic.Int64
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string, opts llmclient.Options) (string, error) {
	n := f.calls.Add(1)
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)
	var err error
	if int(n) <= len(f.errs) {
		err = f.errs[n-1]
	}
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return f.reply, nil
}

func (f *fakeLLM) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

type fakeHistory struct {
	mu    sync.Mutex
	turns []types.ConversationTurn
	err   error
}

func (f *fakeHistory) StoreConversation(_ context.Context, turn types.ConversationTurn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.turns = append(f.turns, turn)
	return nil
}

func (f *fakeHistory) GetConversation(_ context.Context, caseID string, limit int) ([]types.ConversationTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.ConversationTurn
	for _, t := range f.turns {
		if t.CaseID == caseID {
			out = append(out, t)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

var errStoreDown = errors.New("connection refused")

func testConfig() *config.Config {
	return &config.Config{
		AnswerCacheSize:   100,
		AnswerCacheTTL:    10 * time.Minute,
		ContextCacheSize:  100,
		ContextCacheTTL:   10 * time.Minute,
		AdapterTimeout:    200 * time.Millisecond,
		LLMRequestTimeout: time.Second,
		GenerationRetries: 1,
		LLMTemperature:    0.7,
		LLMMaxTokens:      400,
		SimilarCasesLimit: 5,
		SemanticResults:   3,
		CurrencyMarker:    "AED",
		PromptMaxChars:    12000,
		HistoryLimit:      10,
	}
}

func processedApplication(caseID string) *types.Application {
	return &types.Application{
		CaseID:           caseID,
		ApplicantName:    "Fatima Al Zahra",
		Status:           "COMPLETED",
		MonthlyIncome:    5000,
		MonthlyExpenses:  3200,
		FamilySize:       4,
		EmploymentStatus: "employed",
		CompanyName:      "Gulf Logistics",
		TotalAssets:      20000,
		TotalLiabilities: 8000,
		CreditScore:      690,
		CreditRating:     "fair",
		SubmittedAt:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func approvedDecision(caseID string) *types.Decision {
	return &types.Decision{
		DecisionID:     "DEC_" + caseID,
		CaseID:         caseID,
		Outcome:        "APPROVED",
		PolicyScore:    72.5,
		Priority:       "MEDIUM",
		Reasoning:      "Household income below threshold for family size",
		SupportType:    "financial",
		SupportAmount:  1500,
		DurationMonths: 6,
		DecidedAt:      time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC),
	}
}

package rag

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	apperrors "case-explainer/errors"
	"case-explainer/llmclient"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
)

// ApologyText is returned whenever generation fails after its retry.
const ApologyText = "I apologize, but I'm having trouble generating a response right now. Please try again in a moment."

// DegradedConfidence is the fixed confidence of guardrail answers.
const DegradedConfidence = 0.1

var failureWords = []string{"error", "cannot", "can't", "unable", "sorry", "apologize"}

// DefaultStopSequences keep the model from echoing prompt headings.
var DefaultStopSequences = []string{"\n\nUSER", "\n\nINSTRUCTIONS"}

var (
	placeholderPattern = regexp.MustCompile(`(?i)\[(your name|name|signature|date|your position|your title|applicant name)\]`)
	underscoreLine     = regexp.MustCompile(`(?m)^[ \t]*_{3,}[ \t]*$`)
	signOffPattern     = regexp.MustCompile(`(?is)\n\s*(best regards|kind regards|regards|sincerely|yours (truly|sincerely))\s*,?\s*(\n.*)?$`)
	blankRuns          = regexp.MustCompile(`\n{3,}`)
	trailingSpace      = regexp.MustCompile(`(?m)[ \t]+$`)
)

// Generator calls the text-generation service and scores what comes back.
type Generator struct {
	llm        TextGenerator
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	opts       llmclient.Options
	currency   string
	logger     *zap.Logger
}

func NewGenerator(llm TextGenerator, timeout time.Duration, retries int, retryDelay time.Duration, opts llmclient.Options, currency string, logger *zap.Logger) *Generator {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	if len(opts.Stop) == 0 {
		opts.Stop = DefaultStopSequences
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		llm:        llm,
		timeout:    timeout,
		retries:    retries,
		retryDelay: retryDelay,
		opts:       opts,
		currency:   currency,
		logger:     logger,
	}
}

// Generate returns the cleaned answer and its confidence. On failure it returns
// ApologyText, 0 and either apperrors.ErrGenerationTimeout or apperrors.ErrGenerationTransport.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, float64, error) {
	var raw string
	err := retry.Do(
		func() error {
			callCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()
			out, err := g.llm.Complete(callCtx, prompt, g.opts)
			if err != nil {
				return classifyGeneration(callCtx, err)
			}
			raw = out
			return nil
		},
		retry.Attempts(uint(g.retries+1)),
		retry.Delay(g.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			g.logger.Warn("Generation attempt failed, retrying", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		sentinel := apperrors.ErrGenerationTransport
		if errors.Is(err, apperrors.ErrGenerationTimeout) || errors.Is(err, context.DeadlineExceeded) {
			sentinel = apperrors.ErrGenerationTimeout
		}
		g.logger.Error("Generation failed", zap.Error(err))
		return ApologyText, 0, sentinel
	}

	text := PostProcess(raw)
	return text, Confidence(text, g.currency), nil
}

func classifyGeneration(ctx context.Context, err error) error {
	if errors.Is(err, apperrors.ErrGenerationFailed) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(apperrors.ErrGenerationTimeout, err)
	}
	return errors.Join(apperrors.ErrGenerationTransport, err)
}

// PostProcess strips template artifacts and normalizes whitespace.
func PostProcess(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = placeholderPattern.ReplaceAllString(text, "")
	text = underscoreLine.ReplaceAllString(text, "")
	text = signOffPattern.ReplaceAllString(text, "")
	text = trailingSpace.ReplaceAllString(text, "")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Confidence scores an answer: base 0.5, +0.2 for 50-800 chars, +0.15 for any digit,
// +0.1 for the currency marker, +0.05 when no failure word appears. Capped at 1.
func Confidence(text, currency string) float64 {
	score := 0.5
	if n := len(text); n >= 50 && n <= 800 {
		score += 0.2
	}
	if strings.ContainsAny(text, "0123456789") {
		score += 0.15
	}
	if currency != "" && strings.Contains(text, currency) {
		score += 0.1
	}
	lower := strings.ToLower(text)
	clean := true
	for _, w := range failureWords {
		if strings.Contains(lower, w) {
			clean = false
			break
		}
	}
	if clean {
		score += 0.05
	}
	if score > 1 {
		score = 1
	}
	return score
}

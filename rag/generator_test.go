package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "case-explainer/errors"
	"case-explainer/llmclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPostProcess(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "placeholders",
			in:   "Your case was approved.\n\n[Your Name]\n[Date]",
			want: "Your case was approved.",
		},
		{
			name: "sign_off",
			in:   "You receive 1500 AED per month.\n\nBest regards,\nCase Team",
			want: "You receive 1500 AED per month.",
		},
		{
			name: "underscore_lines",
			in:   "Approved.\n_____\nThanks for asking",
			want: "Approved.\n\nThanks for asking",
		},
		{
			name: "blank_runs_and_trailing_space",
			in:   "  First paragraph.   \n\n\n\n\nSecond paragraph.  ",
			want: "First paragraph.\n\nSecond paragraph.",
		},
		{
			name: "crlf",
			in:   "Line one\r\nLine two",
			want: "Line one\nLine two",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PostProcess(tt.in))
		})
	}
}

func TestConfidence(t *testing.T) {
	long := "Your application was approved because your household income is below the threshold."
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"short_plain", "Approved.", 0.55},
		{"medium_length", long, 0.75},
		{"with_digits", long + " 5000", 0.9},
		{"with_currency", long + " 5000 AED", 1.0},
		{"failure_word", "Sorry, I cannot answer that.", 0.5},
		{"too_long", string(make([]byte, 801)), 0.55},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Confidence(tt.text, "AED"), 1e-9)
		})
	}
}

func TestGenerateSendsOptions(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	llm := &fakeLLM{reply: "  Approved for 1500 AED.  \n\nSincerely,\nThe team"}
	g := NewGenerator(llm, time.Second, 1, 0, llmclient.Options{Temperature: 0.7, MaxTokens: 400}, "AED", logger)

	text, conf, err := g.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "Approved for 1500 AED.", text)
	assert.InDelta(t, 0.8, conf, 1e-9)

	require.Len(t, llm.opts, 1)
	assert.Equal(t, 400, llm.opts[0].MaxTokens)
	assert.Equal(t, 0.7, llm.opts[0].Temperature)
	assert.Equal(t, DefaultStopSequences, llm.opts[0].Stop)
}

func TestGenerateKeepsTypedFailure(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	llm := &fakeLLM{errs: []error{
		apperrors.ErrGenerationTransport,
		errors.Join(apperrors.ErrGenerationTimeout, context.DeadlineExceeded),
	}}
	g := NewGenerator(llm, time.Second, 1, time.Millisecond, llmclient.Options{}, "AED", logger)

	text, conf, err := g.Generate(context.Background(), "prompt")
	assert.ErrorIs(t, err, apperrors.ErrGenerationTimeout)
	assert.Equal(t, ApologyText, text)
	assert.Zero(t, conf)
}

func TestGenerateWithoutRetries(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	llm := &fakeLLM{errs: []error{errStoreDown}, reply: "unused"}
	g := NewGenerator(llm, time.Second, 0, 0, llmclient.Options{}, "AED", logger)

	_, _, err := g.Generate(context.Background(), "prompt")
	assert.ErrorIs(t, err, apperrors.ErrGenerationTransport)
	assert.EqualValues(t, 1, llm.calls.Load())
}

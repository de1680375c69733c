package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"case-explainer/config"
	apperrors "case-explainer/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, host string) *Client {
	t.Helper()
	cfg := &config.Config{
		MainLLMHost:       host,
		EmbeddingLLMHost:  host,
		LLMModel:          "test-model",
		LLMRequestTimeout: 2 * time.Second,
		RetryDelaySeconds: time.Millisecond,
	}
	logger, _ := zap.NewDevelopment()
	return New(cfg, logger)
}

func TestCompleteSendsOptions(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Your income is 5000 AED."}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	text, err := c.Complete(context.Background(), "why?", Options{
		Temperature: 0.7,
		MaxTokens:   400,
		Stop:        []string{"\n\nUSER"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Your income is 5000 AED.", text)

	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 400, got.MaxTokens)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.7, *got.Temperature, 1e-9)
	assert.Equal(t, []string{"\n\nUSER"}, got.Stop)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "why?", got.Messages[0].Content)
}

func TestCompleteClassifiesFailures(t *testing.T) {
	t.Run("server error is transport", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv.URL).Complete(context.Background(), "q", Options{})
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrGenerationTransport)
		assert.ErrorIs(t, err, apperrors.ErrGenerationFailed)
	})

	t.Run("deadline is timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := newTestClient(t, srv.URL).Complete(ctx, "q", Options{})
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrGenerationTimeout)
	})

	t.Run("unreachable host is transport", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := newTestClient(t, url).Complete(context.Background(), "q", Options{})
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrGenerationTransport)
	})

	t.Run("context window", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "the request exceeds the available context size", http.StatusBadRequest)
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv.URL).Complete(context.Background(), "q", Options{})
		assert.ErrorIs(t, err, ErrContextWindowExceeded)
		assert.ErrorIs(t, err, apperrors.ErrGenerationTransport)
	})
}

func TestEmbedRetriesWhileModelLoads(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"embedding":[[0.1,0.2,0.3]]}]`))
	}))
	defer srv.Close()

	vec, err := newTestClient(t, srv.URL).Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbedRetryLimits(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
	}{
		{"model never loads", http.StatusServiceUnavailable, embedAttempts},
		{"bad request is not retried", http.StatusBadRequest, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL).Embed(context.Background(), "hello")
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrLLMCommunication)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

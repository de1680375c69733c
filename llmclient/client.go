package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"case-explainer/config"
	apperrors "case-explainer/errors"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
)

// ErrContextWindowExceeded is returned when the model reports the prompt
// exceeds the available context size.
var ErrContextWindowExceeded = stderrors.New("context window exceeded")

const embedAttempts = 3

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Stop        []string      `json:"stop,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Embedding request/response mirror llama.cpp's expected schema
type embeddingRequest struct {
	Content string `json:"content"`
}

type embeddingResponse []struct {
	Embedding [][]float32 `json:"embedding"`
}

// Options tune a single completion.
type Options struct {
	Temperature float64
	MaxTokens   int
	Stop        []string
}

type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	logger     *zap.Logger
}

func New(cfg *config.Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	// Deadlines come from the caller's context; the client timeout is a backstop.
	timeout := cfg.LLMRequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout + 5*time.Second},
		logger:     logger,
	}
}

// Complete performs one non-streaming chat completion against the main host.
// Failures are classified as apperrors.ErrGenerationTimeout or
// apperrors.ErrGenerationTransport; retrying is the caller's decision.
func (c *Client) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	temperature := opts.Temperature
	reqBody := chatRequest{
		Model:       c.cfg.LLMModel,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Stream:      false,
		Stop:        opts.Stop,
		Temperature: &temperature,
		MaxTokens:   opts.MaxTokens,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/chat/completions", strings.TrimRight(c.cfg.MainLLMHost, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classify(ctx, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classify(ctx, fmt.Errorf("read chat response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		if strings.Contains(string(bodyBytes), "exceeds the available context size") {
			return "", fmt.Errorf("%w: %w", apperrors.ErrGenerationTransport, ErrContextWindowExceeded)
		}
		return "", fmt.Errorf("%w: llm server status %s: %s", apperrors.ErrGenerationTransport, resp.Status, truncate(string(bodyBytes), 200))
	}

	var cr chatResponse
	if err := json.Unmarshal(bodyBytes, &cr); err != nil {
		return "", fmt.Errorf("%w: decode chat response: %v", apperrors.ErrGenerationTransport, err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("%w: no response choices from llm server", apperrors.ErrGenerationTransport)
	}
	return cr.Choices[0].Message.Content, nil
}

// classify maps a transport-level failure onto the generation error taxonomy.
func classify(ctx context.Context, err error) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) || stderrors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", apperrors.ErrGenerationTimeout, err)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", apperrors.ErrGenerationTimeout, err)
	}
	return fmt.Errorf("%w: %v", apperrors.ErrGenerationTransport, err)
}

// Embed generates an embedding vector for text using the llama.cpp-compatible
// embeddings endpoint on the embedding host. Connection failures and 503 (model
// loading) are retried with exponential backoff; other statuses fail at once.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	jsonBody, err := json.Marshal(embeddingRequest{Content: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	delay := c.cfg.RetryDelaySeconds
	if delay <= 0 {
		delay = time.Second
	}
	jitter := delay / 10
	if jitter <= 0 {
		jitter = time.Nanosecond
	}
	url := fmt.Sprintf("%s/v1/embeddings", strings.TrimRight(c.cfg.EmbeddingLLMHost, "/"))

	var bodyBytes []byte
	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create embedding request: %w", err))
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("%w: no response from embedding server: %v", apperrors.ErrLLMCommunication, err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read embedding response: %w", err)
			}
			switch {
			case resp.StatusCode == http.StatusServiceUnavailable:
				return fmt.Errorf("%w: embedding server unavailable", apperrors.ErrLLMCommunication)
			case resp.StatusCode != http.StatusOK:
				return retry.Unrecoverable(fmt.Errorf("%w: embedding server status %s: %s",
					apperrors.ErrLLMCommunication, resp.Status, truncate(string(body), 200)))
			}
			bodyBytes = body
			return nil
		},
		retry.Attempts(embedAttempts),
		retry.Delay(delay),
		retry.MaxJitter(jitter),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("Embedding request failed, retrying", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, err
	}

	var er embeddingResponse
	if err := json.Unmarshal(bodyBytes, &er); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(er) == 0 || len(er[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding response was empty")
	}
	return er[0].Embedding[0], nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/aeo-tracker/backend/internal/metrics"
	"github.com/aeo-tracker/backend/pkg/circuitbreaker"
	"github.com/aeo-tracker/backend/pkg/logger"
	"github.com/aeo-tracker/backend/pkg/retry"
)

var ErrEmptyCompletion = errors.New("llm returned no choices")

type Client struct {
	client      *openai.Client
	temperature float32
	maxTokens   int
	timeout     time.Duration
	retryConfig retry.Config

	// One breaker per model, so a broken model mapping does not trip the
	// others.
	cbConfig circuitbreaker.Config
	mu       sync.Mutex
	breakers map[string]*circuitbreaker.CircuitBreaker
}

type CompletionRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// RankedAnswer is an LLM's recommendation list for a query, in the order
// the model gave it.
type RankedAnswer struct {
	Model   string
	Content string
	Items   []string
	Usage   Usage
}

// NewClient builds an OpenAI-compatible client. baseURL may point at any
// gateway speaking the chat completions API; empty keeps the default.
func NewClient(apiKey, baseURL string, temperature float32, maxTokens int, timeout time.Duration) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	cbConfig := circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	}

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM client initialized",
		zap.String("base_url", cfg.BaseURL),
		zap.Duration("timeout", timeout),
	)

	return &Client{
		client:      openai.NewClientWithConfig(cfg),
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     timeout,
		retryConfig: retryConfig,
		cbConfig:    cbConfig,
		breakers:    make(map[string]*circuitbreaker.CircuitBreaker),
	}
}

func (c *Client) breaker(model string) *circuitbreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	cb, ok := c.breakers[model]
	if !ok {
		cb = circuitbreaker.NewCircuitBreaker("llm:"+model, c.cbConfig)
		c.breakers[model] = cb
	}
	return cb
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		},
	}

	var result *CompletionResponse

	err := c.breaker(req.Model).Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       req.Model,
					Messages:    messages,
					Temperature: temperature,
					MaxTokens:   maxTokens,
				},
			)
			if err != nil {
				err = fmt.Errorf("failed to create completion: %w", err)
				if !isTransient(err) {
					return retry.Permanent(err)
				}
				return err
			}
			if len(resp.Choices) == 0 {
				return ErrEmptyCompletion
			}

			metrics.LLMTokensUsed.WithLabelValues(req.Model, "prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.LLMTokensUsed.WithLabelValues(req.Model, "completion").Add(float64(resp.Usage.CompletionTokens))
			logger.Debug("LLM completion generated",
				zap.String("model", req.Model),
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

const rankingSystemPrompt = `You are a helpful assistant answering a user's question about products, services or companies.

Answer with a numbered list of your top recommendations, best first, at most 10 entries.
Each line must look like:
1. Name (website) - one sentence on why it is recommended

Do not add any text before or after the list.`

// RankedAnswer asks model for its recommendations for query and parses the
// numbered list out of the reply.
func (c *Client) RankedAnswer(ctx context.Context, model, query string) (*RankedAnswer, error) {
	resp, err := c.Complete(ctx, CompletionRequest{
		Model:        model,
		SystemPrompt: rankingSystemPrompt,
		UserPrompt:   query,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get ranked answer from %s: %w", model, err)
	}

	items := ParseRankedList(resp.Content)

	logger.Debug("Ranked answer parsed",
		zap.String("model", model),
		zap.Int("items", len(items)),
	)

	return &RankedAnswer{
		Model:   model,
		Content: resp.Content,
		Items:   items,
		Usage:   resp.Usage,
	}, nil
}

var listItemPattern = regexp.MustCompile(`^\s*(?:\d{1,2}[.)]|[-*•])\s+(.+?)\s*$`)

// ParseRankedList returns the entries of a numbered or bulleted list in
// order, with markdown emphasis removed. Lines that are not list entries
// are skipped.
func ParseRankedList(content string) []string {
	var items []string
	for _, line := range strings.Split(content, "\n") {
		m := listItemPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		item := strings.NewReplacer("**", "", "__", "", "`", "").Replace(m[1])
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// isTransient reports whether a failed request is worth retrying: rate
// limits, server errors and transport failures are; other client errors
// are not.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return true
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError || code == 0
}

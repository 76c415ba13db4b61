package tenderanalysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"regexp"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
)

const (
	DefaultAnthropicModel = "claude-sonnet-4-5"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultMaxTokens      = 2048
)

const systemPrompt = "You are a procurement pricing analyst for a company bidding on public tenders. You ground every answer in the historical awards provided and do not invent figures. Return strict JSON only."

var statusCodeRe = regexp.MustCompile(`status(?:\s+code)?[:=\s]+(\d{3})`)

type failureClass int

const (
	failureNone failureClass = iota
	failureTimeout
	failureRateLimit
	failureServer
	failureClient
)

func (c failureClass) String() string {
	switch c {
	case failureTimeout:
		return "timeout"
	case failureRateLimit:
		return "rate_limit"
	case failureServer:
		return "server"
	case failureClient:
		return "client"
	default:
		return "none"
	}
}

// Generator is the text-generation collaborator. Its output is untrusted text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	ModelName() string
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...anthropicoption.RequestOption) (*anthropic.Message, error)
}

type AnthropicGenerator struct {
	messages  AnthropicMessager
	model     string
	maxTokens int64
}

func NewAnthropicGenerator(apiKey, model string, maxTokens int64) (*AnthropicGenerator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("anthropic api key not configured")
	}
	c := anthropic.NewClient(anthropicoption.WithAPIKey(apiKey))
	return newAnthropicGenerator(&c.Messages, model, maxTokens), nil
}

func newAnthropicGenerator(m AnthropicMessager, model string, maxTokens int64) *AnthropicGenerator {
	if strings.TrimSpace(model) == "" {
		model = DefaultAnthropicModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &AnthropicGenerator{messages: m, model: model, maxTokens: maxTokens}
}

func (a *AnthropicGenerator) ModelName() string { return a.model }

func (a *AnthropicGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}

type ChatCompleter interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...openaioption.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIGenerator talks to the chat completions API or any compatible endpoint.
type OpenAIGenerator struct {
	completions ChatCompleter
	model       string
	maxTokens   int64
}

func NewOpenAIGenerator(apiKey, baseURL, model string, maxTokens int64) (*OpenAIGenerator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("openai api key not configured")
	}
	opts := []openaioption.RequestOption{openaioption.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, openaioption.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return newOpenAIGenerator(client.Chat.Completions, model, maxTokens), nil
}

func newOpenAIGenerator(c ChatCompleter, model string, maxTokens int64) *OpenAIGenerator {
	if strings.TrimSpace(model) == "" {
		model = DefaultOpenAIModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &OpenAIGenerator{completions: c, model: model, maxTokens: maxTokens}
}

func (o *OpenAIGenerator) ModelName() string { return o.model }

func (o *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.F(openai.ChatModel(o.model)),
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		}),
		Temperature: openai.F(0.0),
		MaxTokens:   openai.F(o.maxTokens),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// RetryingGenerator retries transient failures of the wrapped generator.
// Client errors fail on the first attempt.
type RetryingGenerator struct {
	next     Generator
	attempts int
	sleep    func(context.Context, time.Duration) error
}

func NewRetryingGenerator(next Generator, attempts int) *RetryingGenerator {
	if attempts <= 0 {
		attempts = 3
	}
	return &RetryingGenerator{next: next, attempts: attempts, sleep: sleepCtx}
}

func (r *RetryingGenerator) ModelName() string { return r.next.ModelName() }

func (r *RetryingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		start := time.Now()
		raw, err := r.next.Generate(ctx, prompt)
		if err == nil {
			log.Printf("tender-advisor llm_attempt_success model=%s attempt=%d elapsed_ms=%d response_chars=%d", r.next.ModelName(), attempt, time.Since(start).Milliseconds(), len(raw))
			return raw, nil
		}
		lastErr = err
		class := classifyTransportError(err)
		log.Printf("tender-advisor llm_attempt_error model=%s attempt=%d class=%s elapsed_ms=%d err=%q", r.next.ModelName(), attempt, class, time.Since(start).Milliseconds(), err.Error())
		if class == failureClient || errors.Is(err, context.Canceled) || attempt == r.attempts {
			break
		}
		if err := r.sleep(ctx, backoffDelay(attempt)); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("generate: %w", lastErr)
}

func classifyTransportError(err error) failureClass {
	if err == nil {
		return failureNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failureTimeout
	}
	var ae *anthropic.Error
	if errors.As(err, &ae) {
		return classifyStatus(ae.StatusCode)
	}
	var oe *openai.Error
	if errors.As(err, &oe) {
		return classifyStatus(oe.StatusCode)
	}
	msg := strings.ToLower(err.Error())
	if m := statusCodeRe.FindStringSubmatch(msg); len(m) == 2 {
		var code int
		fmt.Sscanf(m[1], "%d", &code)
		return classifyStatus(code)
	}
	if strings.Contains(msg, "rate limit") {
		return failureRateLimit
	}
	return failureServer
}

func classifyStatus(code int) failureClass {
	switch {
	case code == 429:
		return failureRateLimit
	case code == 408:
		return failureTimeout
	case code >= 500:
		return failureServer
	case code >= 400:
		return failureClient
	default:
		return failureServer
	}
}

func backoffDelay(attempt int) time.Duration {
	switch attempt {
	case 1:
		return 1 * time.Second
	case 2:
		return 2 * time.Second
	default:
		return 4 * time.Second
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

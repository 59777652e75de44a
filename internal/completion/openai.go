package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTimeout = 60 * time.Second

	// Generation parameters for the chat widget. Short, slightly creative
	// answers; the panel only renders a few paragraphs.
	chatTemperature = 0.7
	chatMaxTokens   = 500
)

// OpenAIClient talks to an OpenAI-compatible chat-completions endpoint.
// Failures are not retried here: the caller proxies the failure class back
// to the browser and the user decides whether to resend.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewOpenAIClient(apiKey, baseURL, model string, logger *zap.Logger) *OpenAIClient {
	return &OpenAIClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends one system turn and one user turn and returns the assistant
// reply text.
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	if c.apiKey == "" {
		return "", &Error{Kind: KindAuth, Message: "api key not configured"}
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("completion: request failed", zap.Error(err))
		return "", &Error{Kind: KindUnknown, Message: "request failed", cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &Error{Kind: KindUnknown, Message: "read response", cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", c.classify(resp.StatusCode, raw)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &Error{Kind: KindUnknown, Message: "malformed response", cause: err}
	}
	if parsed.Error != nil {
		return "", &Error{Kind: KindUpstream, Status: resp.StatusCode, Message: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 {
		return "", &Error{Kind: KindUpstream, Message: "no completion returned"}
	}

	reply := strings.TrimSpace(parsed.Choices[0].Message.Content)
	c.logger.Debug("completion: reply",
		zap.String("model", c.model),
		zap.Int("reply_len", len(reply)),
		zap.Duration("took", time.Since(start)))
	return reply, nil
}

func (c *OpenAIClient) classify(status int, raw []byte) error {
	message := upstreamMessage(raw)
	c.logger.Warn("completion: upstream error", zap.Int("status", status), zap.String("message", message))

	kind := KindUpstream
	switch {
	case status == http.StatusBadRequest:
		kind = KindInvalidRequest
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	case status >= 500:
		kind = KindUpstream
	default:
		kind = KindUnknown
	}
	return &Error{Kind: kind, Status: status, Message: message}
}

func upstreamMessage(raw []byte) string {
	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error != nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// Package llm implements the process collaborator: an OpenAI-compatible
// chat-completions client that evaluates page text against a prompt and
// returns the extracted fields.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config controls the chat client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client calls a chat-completions endpoint. It implements
// pipeline.Processor.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New builds a Client. The base URL and model are required; the API key
// may be empty for unauthenticated gateways.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Process submits prompt+content as a single user message at temperature
// zero and parses the JSON object out of the reply.
func (c *Client) Process(ctx context.Context, content string, prompt string) (map[string]string, error) {
	payload := chatRequest{
		Model:       c.cfg.Model,
		Temperature: 0.0,
		Messages: []chatMessage{
			{Role: "user", Content: prompt + content + " "},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat request: status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("no response content from API")
	}

	c.logger.Debug("chat completion received",
		zap.String("model", c.cfg.Model),
		zap.Duration("duration", time.Since(start)),
	)

	fields, err := ParseFields(parsed.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	return fields, nil
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// StripMarkdown extracts the JSON object from a model reply that may wrap
// it in markdown fences or prose. No object yields "{}".
func StripMarkdown(text string) string {
	if match := jsonObjectPattern.FindString(text); match != "" {
		return strings.TrimSpace(match)
	}
	return "{}"
}

// ParseFields decodes the JSON object in a reply into a flat field map.
// Non-string values are re-encoded as JSON so list answers survive.
func ParseFields(reply string) (map[string]string, error) {
	stripped := StripMarkdown(reply)

	var decoded map[string]any
	if err := json.Unmarshal([]byte(stripped), &decoded); err != nil {
		return nil, fmt.Errorf("decode reply json: %w", err)
	}

	fields := make(map[string]string, len(decoded))
	for name, value := range decoded {
		switch v := value.(type) {
		case nil:
			continue
		case string:
			fields[name] = v
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encode field %s: %w", name, err)
			}
			fields[name] = string(encoded)
		}
	}
	return fields, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

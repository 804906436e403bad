package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"voice-notes-go/internal/logger"
	"voice-notes-go/internal/types"
)

// DefaultTimeout bounds one chat-completions call.
const DefaultTimeout = 5 * time.Minute

var (
	ErrTimeout = errors.New("llm request timed out")
	// ErrIncompleteSummary is returned when the model omits the title or the content.
	ErrIncompleteSummary = errors.New("llm summary missing title or content")
)

type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm gateway returned http %d: %s", e.StatusCode, snippet(e.Body))
}

type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("llm gateway unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type Client struct {
	httpClient *http.Client
	timeout    time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{httpClient: &http.Client{}, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Summarize turns a transcript into note fields. When categories is non-empty the
// returned Category is one of them or empty.
func (c *Client) Summarize(ctx context.Context, transcript string, settings types.LLMSettings, categories []string) (types.Summary, error) {
	log := logger.New().WithField("component", "summarizer")

	if strings.TrimSpace(transcript) == "" {
		return types.Summary{}, errors.New("summarize: empty transcript")
	}
	model := strings.TrimSpace(settings.SummaryModel)
	if model == "" {
		model = strings.TrimSpace(settings.Model)
	}

	content, err := c.complete(ctx, settings, model, summarySystemPrompt(categories), transcript)
	if err != nil {
		return types.Summary{}, err
	}

	var out types.Summary
	if err := DecodeLLMJSON(content, &out); err != nil {
		log.WithError(err).Warn("summary payload not parseable")
		return types.Summary{}, fmt.Errorf("summarize: parse payload: %w", err)
	}
	out.Title = strings.TrimSpace(out.Title)
	out.Description = strings.TrimSpace(out.Description)
	out.Content = strings.TrimSpace(out.Content)
	out.Category = matchCategory(out.Category, categories)
	if out.Title == "" || out.Content == "" {
		return types.Summary{}, ErrIncompleteSummary
	}

	log.WithField("title", out.Title).WithField("category", out.Category).Debug("summary parsed")
	return out, nil
}

func summarySystemPrompt(categories []string) string {
	var b strings.Builder
	b.WriteString(`You turn voice memo transcripts into concise study notes.
Respond with ONLY a JSON object, no commentary, matching:
{"title": "", "description": "", "content": "", "category": ""}

- title: short headline, at most 80 characters
- description: one or two sentences summarizing the memo
- content: the full note as Markdown with headings and bullet points
- Write in the language of the transcript.
`)
	if len(categories) > 0 {
		b.WriteString("- category: pick exactly one label from this list, copied verbatim: ")
		b.WriteString(strings.Join(categories, ", "))
		b.WriteString("\n")
	} else {
		b.WriteString("- category: leave empty\n")
	}
	return b.String()
}

func matchCategory(got string, categories []string) string {
	got = strings.TrimSpace(got)
	if len(categories) == 0 || got == "" {
		return ""
	}
	for _, c := range categories {
		if strings.EqualFold(strings.TrimSpace(c), got) {
			return c
		}
	}
	return ""
}

// complete sends a single chat-completions request and returns the assistant content.
func (c *Client) complete(ctx context.Context, settings types.LLMSettings, model, system, user string) (string, error) {
	if strings.TrimSpace(settings.BaseURL) == "" {
		return "", errors.New("llm gateway not configured")
	}
	if model == "" {
		return "", errors.New("llm model not configured")
	}

	data, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("llm: encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, chatEndpoint(settings.BaseURL), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if settings.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+settings.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
		}
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(ctx, err) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
		}
		return "", &TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	// Try choices[0].message.content (OpenAI-like), then the raw body.
	if content := extractContentFromChoices(body); content != "" {
		return content, nil
	}
	if raw := extractJSON(string(body)); raw != "" {
		return raw, nil
	}
	return "", fmt.Errorf("no JSON found in llm output: %s", snippet(string(body)))
}

func chatEndpoint(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

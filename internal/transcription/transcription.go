package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"voice-notes-go/internal/logger"
	"voice-notes-go/internal/types"
)

type transcriptResponse struct {
	Text  string `json:"text"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Transcribe uploads audioPath to an OpenAI-compatible speech-to-text endpoint and returns the text.
func (c *Client) Transcribe(ctx context.Context, audioPath string, settings types.STTSettings, lang string) (string, error) {
	log := logger.New().WithField("module", "transcription")

	if strings.TrimSpace(settings.BaseURL) == "" {
		return "", errors.New("transcription: base url not configured")
	}
	model := ModelFor(settings, lang)
	if model == "" {
		return "", errors.New("transcription: model not configured")
	}

	body, contentType, err := buildForm(audioPath, model, settings, NormalizeLanguage(lang))
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(settings), body)
	if err != nil {
		return "", fmt.Errorf("transcription: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if settings.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+settings.APIKey)
	}

	log.WithField("model", model).WithField("audio", filepath.Base(audioPath)).Debug("sending transcription request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
		}
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(ctx, err) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
		}
		return "", &TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var parsed transcriptResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		// some servers ignore response_format and answer with plain text
		text := strings.TrimSpace(string(raw))
		if text == "" {
			return "", errors.New("transcription: empty response")
		}
		return text, nil
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("transcription: api error: %s", parsed.Error.Message)
	}
	text := strings.TrimSpace(parsed.Text)
	if text == "" {
		return "", errors.New("transcription: empty transcript")
	}
	return text, nil
}

func buildForm(audioPath, model string, settings types.STTSettings, lang string) (*bytes.Buffer, string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("transcription: open audio: %w", err)
	}
	defer f.Close()

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", fmt.Errorf("transcription: form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("transcription: copy audio: %w", err)
	}
	_ = w.WriteField("model", model)
	_ = w.WriteField("response_format", "json")
	_ = w.WriteField("temperature", strconv.FormatFloat(settings.Temperature, 'f', -1, 64))
	if lang != "" && !isTranslate(settings) {
		_ = w.WriteField("language", lang)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("transcription: close form: %w", err)
	}
	return &b, w.FormDataContentType(), nil
}

func endpoint(settings types.STTSettings) string {
	base := strings.TrimRight(settings.BaseURL, "/")
	if isTranslate(settings) {
		return base + "/audio/translations"
	}
	return base + "/audio/transcriptions"
}

func isTranslate(settings types.STTSettings) bool {
	return strings.EqualFold(strings.TrimSpace(settings.Task), "translate")
}

// ModelFor picks the per-language model variant when one is configured.
func ModelFor(settings types.STTSettings, lang string) string {
	if code := NormalizeLanguage(lang); code != "" {
		if m := strings.TrimSpace(settings.ModelVariants[code]); m != "" {
			return m
		}
	}
	return strings.TrimSpace(settings.Model)
}

// NormalizeLanguage reduces a language hint to its ISO 639-1 base ("de-AT" -> "de").
// Empty and "auto" mean no hint.
func NormalizeLanguage(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "auto") {
		return ""
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	base, conf := tag.Base()
	if conf == language.No {
		return strings.ToLower(raw)
	}
	return base.String()
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

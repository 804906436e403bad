package extractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DecodeLLMJSON unmarshals model output into target, tolerating code fences and
// prose around the JSON payload.
func DecodeLLMJSON(content string, target any) error {
	trimmed := strings.TrimSpace(strings.ReplaceAll(content, "\r\n", "\n"))
	if trimmed == "" {
		return errors.New("empty payload")
	}

	directErr := json.Unmarshal([]byte(trimmed), target)
	if directErr == nil {
		return nil
	}
	if fenced := stripCodeFence(trimmed); fenced != trimmed {
		if json.Unmarshal([]byte(fenced), target) == nil {
			return nil
		}
	}

	candidates := jsonCandidates(trimmed)
	if len(candidates) == 0 {
		return fmt.Errorf("%w (payload snippet: %s)", directErr, snippet(trimmed))
	}
	var firstErr error
	for _, c := range candidates {
		err := json.Unmarshal([]byte(c), target)
		if err == nil {
			return nil
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("%w (sanitized payload snippet: %s)", err, snippet(c))
		}
	}
	return firstErr
}

// extractContentFromChoices reads choices[0] content from a chat-completions body.
// Some providers return the streaming delta or the legacy text field instead of message.
func extractContentFromChoices(body []byte) string {
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
			Text string `json:"text"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Choices) == 0 {
		return ""
	}
	c0 := parsed.Choices[0]
	for _, candidate := range []string{c0.Message.Content, c0.Delta.Content, c0.Text} {
		if s := strings.TrimSpace(candidate); s != "" {
			return s
		}
	}
	return ""
}

// extractJSON returns the first balanced JSON object or array in s that is valid JSON.
func extractJSON(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
	for _, c := range jsonCandidates(s) {
		if json.Valid([]byte(c)) {
			return c
		}
	}
	return ""
}

const maxJSONCandidates = 16

// jsonCandidates lists balanced {...} or [...] spans in order of their opening
// bracket. The scan skips brackets inside JSON strings, so fences and braces in
// string values do not cut a payload short.
func jsonCandidates(s string) []string {
	var out []string
	for i := 0; i < len(s) && len(out) < maxJSONCandidates; i++ {
		if s[i] != '{' && s[i] != '[' {
			continue
		}
		if end := balancedEnd(s, i); end > 0 {
			out = append(out, s[i:end+1])
		}
	}
	return out
}

// balancedEnd returns the index of the bracket closing s[start], or -1.
func balancedEnd(s string, start int) int {
	open, closing := s[start], byte('}')
	if open == '[' {
		closing = ']'
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// stripCodeFence returns the body between the first fence and the last one.
func stripCodeFence(s string) string {
	first := strings.Index(s, "```")
	last := strings.LastIndex(s, "```")
	if first < 0 || last <= first {
		return s
	}
	body := s[first+3 : last]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		// drop the info string ("json", "JSON", ...)
		body = body[nl+1:]
	}
	return strings.TrimSpace(body)
}

func snippet(body string) string {
	clean := strings.Join(strings.Fields(body), " ")
	const limit = 200
	if r := []rune(clean); len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return clean
}

package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"voice-notes-go/internal/logger"
	"voice-notes-go/internal/types"
)

const (
	defaultFlashcards = 10
	defaultQuestions  = 5
)

// Flashcards builds question/answer cards from note content.
func (c *Client) Flashcards(ctx context.Context, content string, settings types.LLMSettings, count int) ([]types.Flashcard, error) {
	log := logger.New().WithField("component", "study-flashcards")

	if strings.TrimSpace(content) == "" {
		return nil, errors.New("flashcards: empty content")
	}
	if count <= 0 {
		count = defaultFlashcards
	}

	prompt := fmt.Sprintf(`You create study flashcards from notes.
Respond with ONLY a JSON object, no commentary, matching:
{"flashcards": [{"front": "", "back": ""}]}

- Produce at most %d cards.
- front is a question or term, back is the answer or definition.
- Write in the language of the notes.
`, count)

	raw, err := c.complete(ctx, settings, settings.Model, prompt, content)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Flashcards []types.Flashcard `json:"flashcards"`
	}
	if err := DecodeLLMJSON(raw, &payload); err != nil {
		// some models answer with the bare array
		var cards []types.Flashcard
		if arrErr := DecodeLLMJSON(raw, &cards); arrErr != nil {
			return nil, fmt.Errorf("flashcards: parse payload: %w", err)
		}
		payload.Flashcards = cards
	}

	out := make([]types.Flashcard, 0, len(payload.Flashcards))
	for _, card := range payload.Flashcards {
		card.Front = strings.TrimSpace(card.Front)
		card.Back = strings.TrimSpace(card.Back)
		if card.Front == "" || card.Back == "" {
			continue
		}
		out = append(out, card)
		if len(out) == count {
			break
		}
	}
	if len(out) == 0 {
		return nil, errors.New("flashcards: model returned no usable cards")
	}
	log.WithField("cards", len(out)).Debug("flashcards parsed")
	return out, nil
}

// Quiz builds multiple-choice questions from note content.
func (c *Client) Quiz(ctx context.Context, content string, settings types.LLMSettings, count int) ([]types.QuizQuestion, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("quiz: empty content")
	}
	if count <= 0 {
		count = defaultQuestions
	}

	prompt := fmt.Sprintf(`You write multiple-choice quizzes from notes.
Respond with ONLY a JSON object, no commentary, matching:
{"questions": [{"question": "", "options": ["", "", "", ""], "answer_index": 0, "explanation": ""}]}

- Produce at most %d questions with four options each.
- answer_index is the zero-based index of the correct option.
- Write in the language of the notes.
`, count)

	raw, err := c.complete(ctx, settings, settings.Model, prompt, content)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Questions []types.QuizQuestion `json:"questions"`
	}
	if err := DecodeLLMJSON(raw, &payload); err != nil {
		return nil, fmt.Errorf("quiz: parse payload: %w", err)
	}

	out := make([]types.QuizQuestion, 0, len(payload.Questions))
	for _, q := range payload.Questions {
		q.Question = strings.TrimSpace(q.Question)
		if q.Question == "" || len(q.Options) < 2 {
			continue
		}
		if q.AnswerIndex < 0 || q.AnswerIndex >= len(q.Options) {
			continue
		}
		out = append(out, q)
		if len(out) == count {
			break
		}
	}
	if len(out) == 0 {
		return nil, errors.New("quiz: model returned no usable questions")
	}
	return out, nil
}

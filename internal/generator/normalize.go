package generator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/recall/internal/srs"
)

// Text is a JSON value read as display text. Models are loose with types:
// ids arrive as numbers, true/false answers as booleans and source pages as
// lists. Lists are joined with ", " and null reads as empty.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	case '[':
		var items []Text
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			if s := strings.TrimSpace(string(item)); s != "" {
				parts = append(parts, s)
			}
		}
		*t = Text(strings.Join(parts, ", "))
	case 't', 'f':
		b, err := strconv.ParseBool(string(data))
		if err != nil {
			return fmt.Errorf("invalid text value %s", data)
		}
		if b {
			*t = "True"
		} else {
			*t = "False"
		}
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("invalid text value %s", data)
		}
		*t = Text(n.String())
	}
	return nil
}

// RawCard is one card as returned by a model or the generation service,
// before normalization.
type RawCard struct {
	ID           Text   `json:"id"`
	Question     Text   `json:"question"`
	Answer       Text   `json:"answer"`
	Options      []Text `json:"options"`
	QuestionType string `json:"question_type"`
	SourcePage   Text   `json:"source_page"`
}

// Normalize turns raw cards into study cards. Items without a question or
// an answer are dropped, as are repeated questions. Missing or repeated IDs
// are replaced with fresh UUIDs. A card's own question type wins over
// requested; options survive only on multiple-choice cards. Every card starts
// with a fresh schedule due at now.
func Normalize(raw []RawCard, requested srs.QuestionType, now time.Time) []srs.Card {
	cards := make([]srs.Card, 0, len(raw))
	seenQuestions := make(map[string]struct{}, len(raw))
	seenIDs := make(map[string]struct{}, len(raw))
	dropped := 0

	for _, r := range raw {
		question := strings.TrimSpace(string(r.Question))
		answer := strings.TrimSpace(string(r.Answer))
		if question == "" || answer == "" {
			dropped++
			continue
		}
		key := strings.ToLower(question)
		if _, dup := seenQuestions[key]; dup {
			dropped++
			continue
		}
		seenQuestions[key] = struct{}{}

		id := strings.TrimSpace(string(r.ID))
		if _, used := seenIDs[id]; id == "" || used {
			id = uuid.NewString()
		}
		seenIDs[id] = struct{}{}

		qt := requested
		if override, err := srs.ParseQuestionType(r.QuestionType); err == nil {
			qt = override
		}

		card := srs.Card{
			ID:           id,
			Question:     question,
			Answer:       answer,
			QuestionType: qt,
			SourcePage:   strings.TrimSpace(string(r.SourcePage)),
			Schedule:     srs.NewSchedule(now),
		}
		if qt == srs.MultipleChoice {
			for _, opt := range r.Options {
				if s := strings.TrimSpace(string(opt)); s != "" {
					card.Options = append(card.Options, s)
				}
			}
		}
		cards = append(cards, card)
	}

	if dropped > 0 {
		slog.Warn("dropped malformed or duplicate cards", "dropped", dropped, "kept", len(cards))
	}
	return cards
}

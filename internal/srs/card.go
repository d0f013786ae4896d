// Package srs implements the SM-2 style scheduler that drives study rounds.
package srs

import (
	"fmt"
	"strings"
	"time"
)

// Scheduling defaults for a card that has never been reviewed.
const (
	DefaultEaseFactor = 2.5
	MinEaseFactor     = 1.3
)

// QuestionType selects how a card is presented and graded.
// Values are the names used by the flashcard generation service.
type QuestionType string

const (
	MultipleChoice QuestionType = "MCQs"
	TrueOrFalse    QuestionType = "True or False"
	FillInBlank    QuestionType = "Fill-in-the-Blanks"
	OneWord        QuestionType = "One-word Answer"
	ShortAnswer    QuestionType = "Short Answer"
)

var questionTypeAliases = map[string]QuestionType{
	"mcq":                MultipleChoice,
	"mcqs":               MultipleChoice,
	"multiple-choice":    MultipleChoice,
	"multiple choice":    MultipleChoice,
	"true or false":      TrueOrFalse,
	"true-or-false":      TrueOrFalse,
	"truefalse":          TrueOrFalse,
	"tf":                 TrueOrFalse,
	"fill-in-the-blanks": FillInBlank,
	"fill-in-blank":      FillInBlank,
	"fill in the blanks": FillInBlank,
	"blanks":             FillInBlank,
	"one-word answer":    OneWord,
	"one-word":           OneWord,
	"one word":           OneWord,
	"short answer":       ShortAnswer,
	"short-answer":       ShortAnswer,
	"short":              ShortAnswer,
}

// QuestionTypes returns every supported question type in display order.
func QuestionTypes() []QuestionType {
	return []QuestionType{MultipleChoice, ShortAnswer, FillInBlank, OneWord, TrueOrFalse}
}

// IsValid reports whether t is one of the supported question types.
func (t QuestionType) IsValid() bool {
	switch t {
	case MultipleChoice, TrueOrFalse, FillInBlank, OneWord, ShortAnswer:
		return true
	}
	return false
}

// ParseQuestionType accepts the wire name or a common alias, case-insensitively.
func ParseQuestionType(s string) (QuestionType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if t, ok := questionTypeAliases[key]; ok {
		return t, nil
	}
	for _, t := range QuestionTypes() {
		if strings.EqualFold(string(t), key) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown question type %q", s)
}

// Schedule is the persistent scheduling state of a card.
// Only RecomputeSchedule produces new values.
type Schedule struct {
	Interval    int       `json:"interval"` // days
	Repetitions int       `json:"repetitions"`
	EaseFactor  float64   `json:"ease_factor"`
	DueDate     time.Time `json:"due_date"`              // informational, never used for ordering
	LastQuality *int      `json:"last_quality,omitempty"` // nil until the first review
}

// NewSchedule returns the scheduling state of a card that was never reviewed.
func NewSchedule(now time.Time) Schedule {
	return Schedule{
		EaseFactor: DefaultEaseFactor,
		DueDate:    now,
	}
}

// Quality returns the last recorded quality, or fallback when none was recorded.
func (s Schedule) Quality(fallback int) int {
	if s.LastQuality == nil {
		return fallback
	}
	return *s.LastQuality
}

// Card is a unit of study content plus its scheduling state.
type Card struct {
	ID           string       `json:"id"`
	Question     string       `json:"question"`
	Answer       string       `json:"answer"`
	QuestionType QuestionType `json:"question_type"`
	Options      []string     `json:"options,omitempty"` // multiple-choice only
	SourcePage   string       `json:"source_page,omitempty"`
	Schedule     Schedule     `json:"schedule"`
}

// clone returns a deep copy. Options and LastQuality are copied by value.
func (c Card) clone() Card {
	out := c
	if c.Options != nil {
		out.Options = append([]string(nil), c.Options...)
	}
	if c.Schedule.LastQuality != nil {
		q := *c.Schedule.LastQuality
		out.Schedule.LastQuality = &q
	}
	return out
}

// Clone returns a deep copy of the card.
func (c Card) Clone() Card {
	return c.clone()
}

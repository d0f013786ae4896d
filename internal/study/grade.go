package study

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/p-n-ai/recall/internal/srs"
)

// normalizeAnswer folds case and width, drops punctuation and collapses
// whitespace so that "  Paris. " and "paris" compare equal.
func normalizeAnswer(s string) string {
	s = cases.Fold().String(norm.NFKC.String(s))
	var sb strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			sb.WriteRune(' ')
		default:
			sb.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// Grade reports whether input matches the card's answer. Matching is a plain
// comparison after normalization. Multiple-choice cards also accept the
// option number or letter; true/false cards accept t/f and yes/no.
// An input that spells out one of the options is taken literally, so a
// card whose options are themselves numbers or letters grades by text.
func Grade(card srs.Card, input string) bool {
	input = strings.TrimSpace(input)
	if input == "" {
		return false
	}
	want := normalizeAnswer(card.Answer)
	got := normalizeAnswer(input)

	switch card.QuestionType {
	case srs.MultipleChoice:
		if got == want || matchesOption(card.Options, got) {
			return got == want
		}
		if opt, ok := pickOption(card.Options, input); ok {
			return normalizeAnswer(opt) == want
		}
	case srs.TrueOrFalse:
		return truthValue(input) != "" && truthValue(input) == truthValue(card.Answer)
	}
	return got == want
}

func matchesOption(options []string, normalized string) bool {
	for _, o := range options {
		if normalizeAnswer(o) == normalized {
			return true
		}
	}
	return false
}

func pickOption(options []string, input string) (string, bool) {
	if len(options) == 0 {
		return "", false
	}
	if n, err := strconv.Atoi(input); err == nil {
		if n >= 1 && n <= len(options) {
			return options[n-1], true
		}
		return "", false
	}
	if len(input) == 1 {
		r := unicode.ToLower(rune(input[0]))
		if idx := int(r - 'a'); idx >= 0 && idx < len(options) {
			return options[idx], true
		}
	}
	return "", false
}

func truthValue(s string) string {
	switch normalizeAnswer(s) {
	case "true", "t", "yes", "y", "benar", "betul":
		return "true"
	case "false", "f", "no", "n", "salah":
		return "false"
	}
	return ""
}

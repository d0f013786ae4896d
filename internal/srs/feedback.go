package srs

import "strings"

// FeedbackLabel is the user's self-reported recall difficulty for a card.
type FeedbackLabel string

const (
	Repeat    FeedbackLabel = "repeat"    // forgot completely
	Difficult FeedbackLabel = "difficult" // recalled with significant difficulty
	Medium    FeedbackLabel = "medium"    // recalled after some thought
	Easy      FeedbackLabel = "easy"      // recalled perfectly
)

// BorderlineQuality is the score used for labels the scheduler does not know.
const BorderlineQuality = 3

var qualityByLabel = map[FeedbackLabel]int{
	Repeat:    0,
	Difficult: 2,
	Medium:    4,
	Easy:      5,
}

// FeedbackLabels returns the known labels from hardest to easiest.
func FeedbackLabels() []FeedbackLabel {
	return []FeedbackLabel{Repeat, Difficult, Medium, Easy}
}

// Quality maps a label to a score in [0,5]. Unknown labels score 3.
func Quality(label FeedbackLabel) int {
	if q, ok := qualityByLabel[label]; ok {
		return q
	}
	return BorderlineQuality
}

// IsKnown reports whether l is one of the four labels.
func (l FeedbackLabel) IsKnown() bool {
	_, ok := qualityByLabel[l]
	return ok
}

// ParseFeedback reads a label from free text. It accepts the label names
// in any case and the shortcuts 1-4 (repeat..easy).
func ParseFeedback(text string) (FeedbackLabel, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	switch s {
	case "1":
		return Repeat, true
	case "2":
		return Difficult, true
	case "3":
		return Medium, true
	case "4":
		return Easy, true
	}
	l := FeedbackLabel(s)
	if l.IsKnown() {
		return l, true
	}
	return "", false
}

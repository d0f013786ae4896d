package srs_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-n-ai/recall/internal/srs"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func freshCard(id string) srs.Card {
	return srs.Card{
		ID:           id,
		Question:     "Q " + id,
		Answer:       "A " + id,
		QuestionType: srs.ShortAnswer,
		Schedule:     srs.NewSchedule(testNow),
	}
}

func withQuality(c srs.Card, q int) srs.Card {
	c.Schedule.LastQuality = &q
	return c
}

func ids(cards []srs.Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.ID
	}
	return out
}

func TestQuality(t *testing.T) {
	tests := []struct {
		label srs.FeedbackLabel
		want  int
	}{
		{srs.Repeat, 0},
		{srs.Difficult, 2},
		{srs.Medium, 4},
		{srs.Easy, 5},
		{"", 3},
		{"so-so", 3},
		{"EASY", 3},
	}
	for _, tt := range tests {
		t.Run(string(tt.label), func(t *testing.T) {
			assert.Equal(t, tt.want, srs.Quality(tt.label))
		})
	}
}

func TestRecomputeSchedule_FreshCardEasy(t *testing.T) {
	got := srs.RecomputeSchedule(freshCard("a"), srs.Easy, testNow)

	assert.Equal(t, 1, got.Schedule.Repetitions)
	assert.Equal(t, 1, got.Schedule.Interval)
	assert.InDelta(t, 2.6, got.Schedule.EaseFactor, 1e-9)
	require.NotNil(t, got.Schedule.LastQuality)
	assert.Equal(t, 5, *got.Schedule.LastQuality)
	assert.Equal(t, testNow.AddDate(0, 0, 1), got.Schedule.DueDate)
}

func TestRecomputeSchedule_EasyTwice(t *testing.T) {
	once := srs.RecomputeSchedule(freshCard("a"), srs.Easy, testNow)
	twice := srs.RecomputeSchedule(once, srs.Easy, testNow)

	assert.Equal(t, 2, twice.Schedule.Repetitions)
	assert.Equal(t, 6, twice.Schedule.Interval)
}

func TestRecomputeSchedule_ThirdSuccessUsesPreviousEaseFactor(t *testing.T) {
	c := freshCard("a")
	c.Schedule.Repetitions = 2
	c.Schedule.Interval = 6
	c.Schedule.EaseFactor = 2.5

	got := srs.RecomputeSchedule(c, srs.Medium, testNow)

	assert.Equal(t, 3, got.Schedule.Repetitions)
	assert.Equal(t, 15, got.Schedule.Interval) // round(6 * 2.5)
	assert.InDelta(t, 2.5, got.Schedule.EaseFactor, 1e-9)
}

func TestRecomputeSchedule_FailureResets(t *testing.T) {
	for _, label := range []srs.FeedbackLabel{srs.Repeat, srs.Difficult} {
		t.Run(string(label), func(t *testing.T) {
			c := freshCard("a")
			c.Schedule.Repetitions = 4
			c.Schedule.Interval = 30

			got := srs.RecomputeSchedule(c, label, testNow)

			assert.Equal(t, 0, got.Schedule.Repetitions)
			assert.Equal(t, 1, got.Schedule.Interval)
		})
	}
}

func TestRecomputeSchedule_EaseFactorDeltas(t *testing.T) {
	tests := []struct {
		label srs.FeedbackLabel
		want  float64
	}{
		{srs.Easy, 2.6},
		{srs.Medium, 2.5},
		{srs.Difficult, 2.18},
		{srs.Repeat, 1.7},
		{"unknown", 2.36},
	}
	for _, tt := range tests {
		t.Run(string(tt.label), func(t *testing.T) {
			got := srs.RecomputeSchedule(freshCard("a"), tt.label, testNow)
			assert.InDelta(t, tt.want, got.Schedule.EaseFactor, 1e-9)
		})
	}
}

func TestRecomputeSchedule_UnknownLabelIsBorderlinePass(t *testing.T) {
	got := srs.RecomputeSchedule(freshCard("a"), "meh", testNow)

	require.NotNil(t, got.Schedule.LastQuality)
	assert.Equal(t, 3, *got.Schedule.LastQuality)
	assert.Equal(t, 1, got.Schedule.Repetitions)
	assert.Equal(t, 1, got.Schedule.Interval)
}

func TestRecomputeSchedule_EaseFactorFloor(t *testing.T) {
	for _, ef := range []float64{1.3, 1.35, 1.5, 2.5, 4.0} {
		for q, label := range map[int]srs.FeedbackLabel{0: srs.Repeat, 2: srs.Difficult, 3: "x", 4: srs.Medium, 5: srs.Easy} {
			c := freshCard("a")
			c.Schedule.EaseFactor = ef
			got := srs.RecomputeSchedule(c, label, testNow)
			assert.GreaterOrEqualf(t, got.Schedule.EaseFactor, srs.MinEaseFactor, "ef=%v q=%d", ef, q)
		}
	}

	c := freshCard("a")
	c.Schedule.EaseFactor = 1.3
	for range 10 {
		c = srs.RecomputeSchedule(c, srs.Repeat, testNow)
	}
	assert.Equal(t, srs.MinEaseFactor, c.Schedule.EaseFactor)
}

func TestRecomputeSchedule_Deterministic(t *testing.T) {
	c := freshCard("a")
	c.Options = []string{"x", "y"}
	for _, label := range srs.FeedbackLabels() {
		first := srs.RecomputeSchedule(c, label, testNow)
		second := srs.RecomputeSchedule(c, label, testNow)
		assert.Equal(t, first, second, label)
	}
}

func TestRecomputeSchedule_DoesNotMutateInput(t *testing.T) {
	q := 4
	c := freshCard("a")
	c.Options = []string{"x", "y"}
	c.Schedule.LastQuality = &q
	before := c.Clone()

	got := srs.RecomputeSchedule(c, srs.Repeat, testNow)
	got.Options[0] = "changed"

	assert.Equal(t, before, c)
	assert.Equal(t, 4, *c.Schedule.LastQuality)
	assert.Equal(t, 0, *got.Schedule.LastQuality)
}

func TestReorderForNextRound_SortsByQuality(t *testing.T) {
	cards := []srs.Card{
		withQuality(freshCard("a"), 5),
		withQuality(freshCard("b"), 0),
		freshCard("c"), // unreviewed counts as 3
		withQuality(freshCard("d"), 2),
		withQuality(freshCard("e"), 4),
	}

	got := srs.ReorderForNextRound(cards)

	assert.Equal(t, []string{"b", "d", "c", "e", "a"}, ids(got))
}

func TestReorderForNextRound_StableForEqualQuality(t *testing.T) {
	cards := []srs.Card{
		withQuality(freshCard("a"), 4),
		withQuality(freshCard("b"), 2),
		withQuality(freshCard("c"), 4),
		withQuality(freshCard("d"), 2),
		withQuality(freshCard("e"), 3),
		freshCard("f"),
	}

	got := srs.ReorderForNextRound(cards)

	assert.Equal(t, []string{"b", "d", "e", "f", "a", "c"}, ids(got))
}

func TestReorderForNextRound_Permutation(t *testing.T) {
	var cards []srs.Card
	for i, q := range []int{3, 1, 4, 1, 5, 0, 2, 5} {
		cards = append(cards, withQuality(freshCard(string(rune('a'+i))), q))
	}

	got := srs.ReorderForNextRound(cards)

	require.Len(t, got, len(cards))
	assert.ElementsMatch(t, ids(cards), ids(got))
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, *got[i-1].Schedule.LastQuality, *got[i].Schedule.LastQuality)
	}
}

func TestReorderForNextRound_ReturnsCopies(t *testing.T) {
	cards := []srs.Card{withQuality(freshCard("a"), 2)}
	cards[0].Options = []string{"x"}

	got := srs.ReorderForNextRound(cards)
	got[0].Options[0] = "changed"
	*got[0].Schedule.LastQuality = 5

	assert.Equal(t, "x", cards[0].Options[0])
	assert.Equal(t, 2, *cards[0].Schedule.LastQuality)
}

func TestReorderForNextRound_Empty(t *testing.T) {
	assert.Empty(t, srs.ReorderForNextRound(nil))
}

func TestRoundScenario(t *testing.T) {
	a := srs.RecomputeSchedule(freshCard("A"), srs.Difficult, testNow)
	b := srs.RecomputeSchedule(freshCard("B"), srs.Easy, testNow)
	c := srs.RecomputeSchedule(freshCard("C"), srs.Repeat, testNow)

	assert.Equal(t, 2, *a.Schedule.LastQuality)
	assert.Equal(t, 5, *b.Schedule.LastQuality)
	assert.Equal(t, 0, *c.Schedule.LastQuality)

	assert.Equal(t, []string{"C", "A", "B"}, ids(srs.ReorderForNextRound([]srs.Card{a, b, c})))
}

package srs

import (
	"math"
	"slices"
	"time"
)

// RecomputeSchedule applies one review with the given feedback to card and
// returns the updated copy. The input card is not mutated.
func RecomputeSchedule(card Card, label FeedbackLabel, now time.Time) Card {
	c := card.clone()
	s := c.Schedule
	q := Quality(label)

	if q < 3 {
		s.Repetitions = 0
		s.Interval = 1
	} else {
		s.Repetitions++
		switch s.Repetitions {
		case 1:
			s.Interval = 1
		case 2:
			s.Interval = 6
		default:
			s.Interval = int(math.Round(float64(s.Interval) * s.EaseFactor))
		}
	}

	miss := float64(5 - q)
	s.EaseFactor += 0.1 - miss*(0.08+miss*0.02)
	if s.EaseFactor < MinEaseFactor {
		s.EaseFactor = MinEaseFactor
	}

	s.DueDate = now.AddDate(0, 0, s.Interval)
	s.LastQuality = &q

	c.Schedule = s
	return c
}

// ReorderForNextRound orders reviewed cards for the next round: hardest
// first by last quality, cards without a quality counting as 3. Cards with
// equal quality keep their input order. The result is a new slice of copies.
func ReorderForNextRound(cards []Card) []Card {
	out := make([]Card, len(cards))
	for i, c := range cards {
		out[i] = c.clone()
	}
	slices.SortStableFunc(out, func(a, b Card) int {
		return a.Schedule.Quality(BorderlineQuality) - b.Schedule.Quality(BorderlineQuality)
	})
	return out
}

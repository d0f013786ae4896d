// Package round drives one pass through a fixed, ordered batch of cards.
package round

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/p-n-ai/recall/internal/srs"
)

// Errors returned by Controller. Use errors.Is to check.
var (
	ErrEmptyRound    = errors.New("round: no cards to review")
	ErrDuplicateCard = errors.New("round: duplicate card id")
	ErrNoRound       = errors.New("round: no active round")
	ErrUnknownCard   = errors.New("round: card not in current round")
	ErrNotCurrent    = errors.New("round: card is not the current card")
	ErrInvalidState  = errors.New("round: action not allowed in current state")
	ErrNoFeedback    = errors.New("round: feedback label is required")
)

// State is the position of the controller in a round.
type State int

const (
	Idle             State = iota // no round started, or the round was abandoned
	InProgress                    // current card shown, waiting for an answer
	AwaitingFeedback              // answer recorded, waiting for a feedback label
	Advancing                     // feedback recorded, moving to the next card
	Complete                      // every card processed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case InProgress:
		return "in_progress"
	case AwaitingFeedback:
		return "awaiting_feedback"
	case Advancing:
		return "advancing"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// View is the transient presentation state of a card within one round.
type View struct {
	Flipped      bool
	UserAnswer   string
	ShowFeedback bool
}

// Outcome is what the round recorded for a card.
type Outcome struct {
	Answered  bool
	IsCorrect bool
	Feedback  srs.FeedbackLabel
	Updated   *srs.Card // set once feedback was given
}

// Config holds the controller's collaborators. All fields are optional.
type Config struct {
	Now          func() time.Time
	AdvanceDelay time.Duration // cosmetic pause between feedback and the next card
	OnAdvance    func(index int)
	OnComplete   func(cards []srs.Card)
}

// Controller tracks the current card of a round and the outcome of every
// card, and emits the updated batch when the round completes.
type Controller struct {
	now          func() time.Time
	advanceDelay time.Duration
	onAdvance    func(int)
	onComplete   func([]srs.Card)

	mu         sync.Mutex
	generation uint64
	timer      *time.Timer
	state      State
	cards      []srs.Card
	index      int
	views      map[string]*View
	outcomes   map[string]*Outcome
	result     []srs.Card
}

// NewController creates an idle controller.
func NewController(cfg Config) *Controller {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		now:          now,
		advanceDelay: cfg.AdvanceDelay,
		onAdvance:    cfg.OnAdvance,
		onComplete:   cfg.OnComplete,
	}
}

// StartRound begins a round over cards in the given order. Any active
// round is discarded first.
func (c *Controller) StartRound(cards []srs.Card) error {
	if len(cards) == 0 {
		return ErrEmptyRound
	}
	seen := make(map[string]struct{}, len(cards))
	snapshot := make([]srs.Card, len(cards))
	for i, card := range cards {
		if _, dup := seen[card.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateCard, card.ID)
		}
		seen[card.ID] = struct{}{}
		snapshot[i] = card.Clone()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetLocked()
	c.cards = snapshot
	c.state = InProgress
	c.views = make(map[string]*View, len(snapshot))
	c.outcomes = make(map[string]*Outcome, len(snapshot))
	for _, card := range snapshot {
		c.views[card.ID] = &View{}
		c.outcomes[card.ID] = &Outcome{}
	}

	slog.Debug("round started", "cards", len(snapshot))
	return nil
}

// SubmitAnswer records whether the current card was answered correctly.
func (c *Controller) SubmitAnswer(cardID string, isCorrect bool) error {
	return c.SubmitAnswerText(cardID, "", isCorrect)
}

// SubmitAnswerText is SubmitAnswer that also keeps the user's answer text.
func (c *Controller) SubmitAnswerText(cardID, answer string, isCorrect bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkCurrentLocked(cardID); err != nil {
		return err
	}
	if c.state != InProgress {
		return fmt.Errorf("%w: submit answer in %s", ErrInvalidState, c.state)
	}

	out := c.outcomes[cardID]
	out.Answered = true
	out.IsCorrect = isCorrect

	view := c.views[cardID]
	view.Flipped = true
	view.UserAnswer = answer
	view.ShowFeedback = true

	c.state = AwaitingFeedback
	return nil
}

// SelectFeedback schedules the current card with label and moves on.
// An empty label is rejected and leaves the round untouched; labels the
// scheduler does not know are accepted as a borderline pass.
func (c *Controller) SelectFeedback(cardID string, label srs.FeedbackLabel) error {
	if label == "" {
		return ErrNoFeedback
	}

	c.mu.Lock()
	if err := c.checkCurrentLocked(cardID); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.state != AwaitingFeedback {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: select feedback in %s", ErrInvalidState, state)
	}

	updated := srs.RecomputeSchedule(c.cards[c.index], label, c.now())
	out := c.outcomes[cardID]
	out.Feedback = label
	out.Updated = &updated
	c.state = Advancing

	gen := c.generation
	if c.advanceDelay > 0 {
		c.timer = time.AfterFunc(c.advanceDelay, func() { c.advance(gen) })
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.advance(gen)
	return nil
}

// advance leaves the Advancing state. It is a no-op when the round it was
// scheduled for has since been abandoned or replaced.
func (c *Controller) advance(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.state != Advancing {
		c.mu.Unlock()
		return
	}
	c.timer = nil

	if c.index < len(c.cards)-1 {
		c.index++
		c.state = InProgress
		index := c.index
		onAdvance := c.onAdvance
		c.mu.Unlock()
		if onAdvance != nil {
			onAdvance(index)
		}
		return
	}

	c.state = Complete
	c.result = c.gatherLocked()
	result := cloneCards(c.result)
	onComplete := c.onComplete
	c.mu.Unlock()

	slog.Debug("round complete", "cards", len(result))
	if onComplete != nil {
		onComplete(result)
	}
}

// gatherLocked returns every card of the round in round order, carrying the
// updated schedule when the card received feedback and the original record
// otherwise.
func (c *Controller) gatherLocked() []srs.Card {
	out := make([]srs.Card, len(c.cards))
	for i, card := range c.cards {
		if o := c.outcomes[card.ID]; o != nil && o.Updated != nil {
			out[i] = o.Updated.Clone()
			continue
		}
		out[i] = card.Clone()
	}
	return out
}

// Abandon discards the active round. Nothing is emitted and no pending
// advance will fire.
func (c *Controller) Abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Controller) resetLocked() {
	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.state = Idle
	c.cards = nil
	c.index = 0
	c.views = nil
	c.outcomes = nil
	c.result = nil
}

func (c *Controller) checkCurrentLocked(cardID string) error {
	if c.state == Idle {
		return ErrNoRound
	}
	if _, ok := c.outcomes[cardID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCard, cardID)
	}
	if c.state == Complete || c.cards[c.index].ID != cardID {
		return fmt.Errorf("%w: %s", ErrNotCurrent, cardID)
	}
	return nil
}

// State returns the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentIndex returns the position of the current card.
func (c *Controller) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Len returns the number of cards in the round.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cards)
}

// CurrentCard returns the card being reviewed. ok is false when there is
// no active round or it is complete.
func (c *Controller) CurrentCard() (srs.Card, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle || c.state == Complete {
		return srs.Card{}, false
	}
	return c.cards[c.index].Clone(), true
}

// IsComplete reports whether every card of the round was processed.
func (c *Controller) IsComplete() bool {
	return c.State() == Complete
}

// View returns the transient state of a card in the active round.
func (c *Controller) View(cardID string) (View, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.views[cardID]
	if !ok {
		return View{}, false
	}
	return *v, true
}

// Outcome returns what was recorded for a card in the active round.
func (c *Controller) Outcome(cardID string) (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.outcomes[cardID]
	if !ok {
		return Outcome{}, false
	}
	out := *o
	if o.Updated != nil {
		u := o.Updated.Clone()
		out.Updated = &u
	}
	return out, true
}

// Result returns the cards emitted at completion.
func (c *Controller) Result() ([]srs.Card, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Complete {
		return nil, false
	}
	return cloneCards(c.result), true
}

func cloneCards(cards []srs.Card) []srs.Card {
	out := make([]srs.Card, len(cards))
	for i, card := range cards {
		out[i] = card.Clone()
	}
	return out
}

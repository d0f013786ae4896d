// Package study drives flashcard rounds from chat messages.
package study

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/p-n-ai/recall/internal/ai"
	"github.com/p-n-ai/recall/internal/chat"
	"github.com/p-n-ai/recall/internal/deck"
	"github.com/p-n-ai/recall/internal/document"
	"github.com/p-n-ai/recall/internal/generator"
	"github.com/p-n-ai/recall/internal/round"
	"github.com/p-n-ai/recall/internal/srs"
)

const (
	defaultGenerationTimeout = 3 * time.Minute
	msgTechnicalIssue        = "Sorry, something went wrong on my side. Please try again in a moment."
)

// Reply is the engine's answer to one inbound message.
type Reply struct {
	Text    string
	Options []string // quick replies, rendered as a keyboard where supported
}

// DeckSource provides pre-authored decks.
type DeckSource interface {
	Get(id string) (deck.Deck, bool)
	All() []deck.Deck
}

// EngineConfig holds dependencies for the study engine.
type EngineConfig struct {
	Generator           generator.Generator // nil disables document uploads
	Decks               DeckSource          // nil disables /decks
	Events              EventLogger
	DefaultQuestionType srs.QuestionType
	GenerationTimeout   time.Duration
	Now                 func() time.Time
}

// Engine keeps one study session per user and routes messages into it.
type Engine struct {
	generator         generator.Generator
	decks             DeckSource
	events            EventLogger
	questionType      srs.QuestionType
	generationTimeout time.Duration
	now               func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// Session is the per-user study state. It lives in memory only.
type Session struct {
	ID           string
	UserID       string
	QuestionType srs.QuestionType
	Source       string // deck or document the cards came from
	Round        int
	Cards        []srs.Card // latest scheduling state of every card

	controller *round.Controller
	finished   []srs.Card // set by the controller when a round completes
	mu         sync.Mutex
}

// NewEngine creates a new study engine.
func NewEngine(cfg EngineConfig) *Engine {
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	qt := cfg.DefaultQuestionType
	if !qt.IsValid() {
		qt = srs.ShortAnswer
	}
	timeout := cfg.GenerationTimeout
	if timeout == 0 {
		timeout = defaultGenerationTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		generator:         cfg.Generator,
		decks:             cfg.Decks,
		events:            events,
		questionType:      qt,
		generationTimeout: timeout,
		now:               now,
		sessions:          make(map[string]*Session),
	}
}

func (e *Engine) session(userID string) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.sessions[userID]; ok {
		return s
	}
	s := &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		QuestionType: e.questionType,
	}
	// Advancing is synchronous, so OnComplete runs while the caller holds s.mu.
	s.controller = round.NewController(round.Config{
		Now:        e.now,
		OnComplete: func(cards []srs.Card) { s.finished = cards },
	})
	e.sessions[userID] = s
	return s
}

// SessionCards returns a copy of the user's latest card set.
func (e *Engine) SessionCards(userID string) []srs.Card {
	s := e.session(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]srs.Card, len(s.Cards))
	for i, c := range s.Cards {
		out[i] = c.Clone()
	}
	return out
}

// ProcessMessage handles an incoming message and returns a response. User
// mistakes never surface as errors; they get an explanatory reply instead.
func (e *Engine) ProcessMessage(ctx context.Context, msg chat.InboundMessage) (Reply, error) {
	slog.Info("processing message",
		"channel", msg.Channel,
		"user_id", msg.UserID,
		"text_len", len(msg.Text),
		"has_document", msg.Document != nil,
	)

	s := e.session(msg.UserID)
	s.mu.Lock()
	defer s.mu.Unlock()

	text := strings.TrimSpace(msg.Text)
	switch {
	case msg.DocumentErr != nil:
		return Reply{Text: "I couldn't download that file. Please try sending it again."}, nil
	case msg.Document != nil:
		return e.handleDocument(ctx, s, msg), nil
	case strings.HasPrefix(text, "/"):
		return e.handleCommand(s, msg), nil
	}

	switch s.controller.State() {
	case round.InProgress:
		return e.handleAnswer(s, text), nil
	case round.AwaitingFeedback:
		return e.handleFeedback(s, text), nil
	default:
		return Reply{Text: "Send me a document to turn into flashcards, or pick a deck with /decks."}, nil
	}
}

func (e *Engine) handleDocument(ctx context.Context, s *Session, msg chat.InboundMessage) Reply {
	if e.generator == nil {
		return Reply{Text: "Document uploads are not enabled here. Try /decks instead."}
	}

	qt := s.QuestionType
	if caption := strings.TrimSpace(msg.Caption); caption != "" {
		if parsed, err := srs.ParseQuestionType(caption); err == nil {
			qt = parsed
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.generationTimeout)
	defer cancel()

	cards, err := e.generator.Generate(ctx, generator.Request{
		UserID: msg.UserID,
		Document: document.Document{
			Name:     msg.Document.Name,
			MIMEType: msg.Document.MIMEType,
			Data:     msg.Document.Data,
		},
		QuestionType: qt,
	})
	if err != nil {
		slog.Error("generation failed", "user_id", msg.UserID, "document", msg.Document.Name, "error", err)
		return Reply{Text: generationErrorText(err)}
	}

	// A new set replaces whatever was being studied. A failed upload
	// leaves the current round untouched.
	s.controller.Abandon()
	s.ID = uuid.NewString()
	s.Source = msg.Document.Name
	s.Round = 0
	s.Cards = cards
	e.logEvent(s, EventDeckLoaded, map[string]any{
		"source":        s.Source,
		"origin":        "document",
		"cards":         len(cards),
		"question_type": string(qt),
	})

	if err := e.startRound(s, cards); err != nil {
		slog.Error("failed to start round", "user_id", s.UserID, "error", err)
		return Reply{Text: msgTechnicalIssue}
	}
	return e.showCard(s, fmt.Sprintf("Made %d %s cards from %s.", len(cards), qt, s.Source))
}

func generationErrorText(err error) string {
	switch {
	case errors.Is(err, generator.ErrNoCards), errors.Is(err, document.ErrNoContent):
		return "I couldn't find anything to ask about in that file. Try another document."
	case errors.Is(err, document.ErrUnsupportedType):
		return "I can read .pdf, .txt, .md, .csv and .xlsx files, and PNG, JPEG, WebP, GIF or BMP images."
	case errors.Is(err, ai.ErrBudgetExceeded):
		return "You've used up your card generation budget for now."
	case errors.Is(err, context.DeadlineExceeded):
		return "Generating cards took too long. Try a smaller document."
	default:
		return "Sorry, I couldn't generate cards from that file. Please try again later."
	}
}

func (e *Engine) handleAnswer(s *Session, text string) Reply {
	card, ok := s.controller.CurrentCard()
	if !ok {
		return Reply{Text: msgTechnicalIssue}
	}

	correct := Grade(card, text)
	if err := s.controller.SubmitAnswerText(card.ID, text, correct); err != nil {
		slog.Error("failed to submit answer", "user_id", s.UserID, "card_id", card.ID, "error", err)
		return Reply{Text: msgTechnicalIssue}
	}
	e.logEvent(s, EventAnswerSubmitted, map[string]any{
		"card_id": card.ID,
		"correct": correct,
		"round":   s.Round,
	})

	verdict := "Correct!"
	if !correct {
		verdict = "Not quite. The answer is: " + card.Answer
	}
	return Reply{
		Text:    verdict + "\n\nHow well did you remember it?",
		Options: feedbackOptions(),
	}
}

func (e *Engine) handleFeedback(s *Session, text string) Reply {
	label, ok := srs.ParseFeedback(text)
	if !ok {
		return Reply{
			Text:    "Please rate your recall: repeat, difficult, medium or easy.",
			Options: feedbackOptions(),
		}
	}

	card, ok := s.controller.CurrentCard()
	if !ok {
		return Reply{Text: msgTechnicalIssue}
	}
	if err := s.controller.SelectFeedback(card.ID, label); err != nil {
		slog.Error("failed to select feedback", "user_id", s.UserID, "card_id", card.ID, "error", err)
		return Reply{Text: msgTechnicalIssue}
	}
	e.logEvent(s, EventFeedbackSelected, map[string]any{
		"card_id": card.ID,
		"label":   string(label),
		"quality": srs.Quality(label),
		"round":   s.Round,
	})

	if s.controller.IsComplete() {
		return e.completeRound(s)
	}
	return e.showCard(s, "")
}

// completeRound records the finished round and immediately starts the next
// one, hardest cards first.
func (e *Engine) completeRound(s *Session) Reply {
	finished := s.finished
	s.finished = nil
	if finished == nil {
		finished, _ = s.controller.Result()
	}

	correct := 0
	for _, c := range finished {
		if out, ok := s.controller.Outcome(c.ID); ok && out.IsCorrect {
			correct++
		}
	}
	s.Cards = finished
	e.logEvent(s, EventRoundCompleted, map[string]any{
		"round":   s.Round,
		"cards":   len(finished),
		"correct": correct,
	})
	slog.Info("round completed", "user_id", s.UserID, "round", s.Round, "cards", len(finished), "correct", correct)

	summary := fmt.Sprintf("Round %d complete: %d/%d correct.", s.Round, correct, len(finished))
	if err := e.startRound(s, srs.ReorderForNextRound(finished)); err != nil {
		slog.Error("failed to start round", "user_id", s.UserID, "error", err)
		return Reply{Text: summary}
	}
	return e.showCard(s, summary+fmt.Sprintf("\nStarting round %d with the hardest cards first.", s.Round))
}

func (e *Engine) startRound(s *Session, cards []srs.Card) error {
	if err := s.controller.StartRound(cards); err != nil {
		return err
	}
	s.Round++
	e.logEvent(s, EventRoundStarted, map[string]any{
		"round": s.Round,
		"cards": len(cards),
	})
	return nil
}

func (e *Engine) showCard(s *Session, prefix string) Reply {
	card, ok := s.controller.CurrentCard()
	if !ok {
		return Reply{Text: prefix}
	}

	var sb strings.Builder
	if prefix != "" {
		sb.WriteString(prefix)
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(&sb, "Card %d/%d · %s", s.controller.CurrentIndex()+1, s.controller.Len(), card.QuestionType)
	if card.SourcePage != "" {
		fmt.Fprintf(&sb, " (page %s)", card.SourcePage)
	}
	sb.WriteString("\n\n")
	sb.WriteString(card.Question)

	reply := Reply{}
	switch {
	case card.QuestionType == srs.MultipleChoice && len(card.Options) > 0:
		sb.WriteString("\n")
		for i, opt := range card.Options {
			fmt.Fprintf(&sb, "\n%d. %s", i+1, opt)
		}
		reply.Options = append([]string(nil), card.Options...)
	case card.QuestionType == srs.TrueOrFalse:
		reply.Options = []string{"True", "False"}
	}
	reply.Text = sb.String()
	return reply
}

func feedbackOptions() []string {
	labels := srs.FeedbackLabels()
	opts := make([]string, len(labels))
	for i, l := range labels {
		opts[i] = title(string(l))
	}
	return opts
}

func (e *Engine) logEvent(s *Session, eventType string, data map[string]any) {
	if err := e.events.LogEvent(Event{
		SessionID: s.ID,
		UserID:    s.UserID,
		EventType: eventType,
		Data:      data,
		CreatedAt: e.now(),
	}); err != nil {
		slog.Warn("failed to log event", "type", eventType, "user_id", s.UserID, "error", err)
	}
}

// title capitalizes a label. Casers keep state, so each call gets its own.
func title(s string) string {
	return cases.Title(language.English).String(s)
}

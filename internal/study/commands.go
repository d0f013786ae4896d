package study

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/p-n-ai/recall/internal/chat"
	"github.com/p-n-ai/recall/internal/round"
	"github.com/p-n-ai/recall/internal/srs"
)

const helpText = `Send me a document (.txt, .md, .csv, .xlsx or an image) and I'll turn it into flashcards.

For each card, type your answer, then rate how well you remembered it:
repeat, difficult, medium or easy (or 1-4). Each new round starts with the cards you found hardest.

Commands:
/type [name] - show or set the question type for uploads
/decks - list ready-made decks
/deck <id> - study a ready-made deck
/next - restart with the hardest cards first
/progress - show how you're doing
/reset - stop studying and clear your cards`

func (e *Engine) handleCommand(s *Session, msg chat.InboundMessage) Reply {
	fields := strings.Fields(strings.TrimSpace(msg.Text))
	cmd := strings.ToLower(fields[0])
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i] // "/help@recall_bot" in group chats
	}
	arg := strings.TrimSpace(strings.Join(fields[1:], " "))

	switch cmd {
	case "/start":
		return e.handleStart(msg)
	case "/help":
		return Reply{Text: helpText}
	case "/type":
		return e.handleType(s, arg)
	case "/decks":
		return e.handleDecks()
	case "/deck":
		return e.handleDeck(s, arg)
	case "/next":
		return e.handleNext(s)
	case "/progress":
		return e.handleProgress(s)
	case "/reset":
		s.controller.Abandon()
		s.Cards = nil
		s.Source = ""
		s.Round = 0
		return Reply{Text: "Cleared. Send a document or pick a deck to start again."}
	default:
		return Reply{Text: fmt.Sprintf("Unknown command: %s\nUse /help to see what I can do.", cmd)}
	}
}

func (e *Engine) handleStart(msg chat.InboundMessage) Reply {
	name := msg.FirstName
	if name == "" {
		name = msg.Username
	}
	if name == "" {
		name = "there"
	}
	return Reply{Text: fmt.Sprintf("Hi %s!\n\n%s", name, helpText)}
}

func (e *Engine) handleType(s *Session, arg string) Reply {
	types := srs.QuestionTypes()
	opts := make([]string, len(types))
	for i, t := range types {
		opts[i] = "/type " + string(t)
	}

	if arg == "" {
		return Reply{
			Text:    fmt.Sprintf("Uploads currently make %s cards. Pick another type:", s.QuestionType),
			Options: opts,
		}
	}

	qt, err := srs.ParseQuestionType(arg)
	if err != nil {
		return Reply{Text: fmt.Sprintf("I don't know the question type %q.", arg), Options: opts}
	}
	s.QuestionType = qt
	return Reply{Text: fmt.Sprintf("Next uploads will make %s cards.", qt)}
}

func (e *Engine) handleDecks() Reply {
	if e.decks == nil {
		return Reply{Text: "There are no ready-made decks here. Send a document instead."}
	}
	decks := e.decks.All()
	if len(decks) == 0 {
		return Reply{Text: "There are no ready-made decks yet. Send a document instead."}
	}

	var sb strings.Builder
	sb.WriteString("Ready-made decks:\n")
	opts := make([]string, 0, len(decks))
	for _, d := range decks {
		fmt.Fprintf(&sb, "\n%s - %s (%d cards)", d.ID, d.Name, len(d.Cards))
		opts = append(opts, "/deck "+d.ID)
	}
	return Reply{Text: sb.String(), Options: opts}
}

func (e *Engine) handleDeck(s *Session, id string) Reply {
	if e.decks == nil {
		return Reply{Text: "There are no ready-made decks here. Send a document instead."}
	}
	if id == "" {
		return Reply{Text: "Which deck? Use /decks to see them."}
	}
	d, ok := e.decks.Get(id)
	if !ok {
		return Reply{Text: fmt.Sprintf("There is no deck called %q. Use /decks to see them.", id)}
	}

	s.controller.Abandon()
	s.ID = uuid.NewString()
	s.Source = d.Name
	s.Round = 0
	s.Cards = d.Fresh(e.now())
	e.logEvent(s, EventDeckLoaded, map[string]any{
		"source":        d.ID,
		"origin":        "deck",
		"cards":         len(s.Cards),
		"question_type": string(d.QuestionType),
	})

	if err := e.startRound(s, s.Cards); err != nil {
		slog.Error("failed to start round", "user_id", s.UserID, "error", err)
		return Reply{Text: msgTechnicalIssue}
	}

	prefix := fmt.Sprintf("Studying %s (%d cards).", d.Name, len(s.Cards))
	if d.Notes != "" {
		prefix += "\n\n" + d.Notes
	}
	return e.showCard(s, prefix)
}

// handleNext drops the active round and starts over from the last completed
// scheduling state.
func (e *Engine) handleNext(s *Session) Reply {
	if len(s.Cards) == 0 {
		return Reply{Text: "Nothing to study yet. Send a document or pick a deck."}
	}
	s.controller.Abandon()
	if err := e.startRound(s, srs.ReorderForNextRound(s.Cards)); err != nil {
		slog.Error("failed to start round", "user_id", s.UserID, "error", err)
		return Reply{Text: msgTechnicalIssue}
	}
	return e.showCard(s, fmt.Sprintf("Round %d.", s.Round))
}

func (e *Engine) handleProgress(s *Session) Reply {
	if len(s.Cards) == 0 {
		return Reply{Text: "Nothing to study yet. Send a document or pick a deck."}
	}

	counts := make(map[srs.FeedbackLabel]int)
	unrated, due := 0, 0
	now := e.now()
	for _, c := range s.Cards {
		if !c.Schedule.DueDate.After(now) {
			due++
		}
		if c.Schedule.LastQuality == nil {
			unrated++
			continue
		}
		counts[labelForQuality(*c.Schedule.LastQuality)]++
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d cards, round %d", s.Source, len(s.Cards), s.Round)
	if st := s.controller.State(); st == round.InProgress || st == round.AwaitingFeedback {
		fmt.Fprintf(&sb, ", card %d/%d", s.controller.CurrentIndex()+1, s.controller.Len())
	}
	sb.WriteString("\n\nLast ratings:")
	for _, l := range srs.FeedbackLabels() {
		fmt.Fprintf(&sb, "\n%s: %d", title(string(l)), counts[l])
	}
	if unrated > 0 {
		fmt.Fprintf(&sb, "\nNot rated yet: %d", unrated)
	}
	fmt.Fprintf(&sb, "\n\nDue now: %d", due)
	return Reply{Text: sb.String()}
}

func labelForQuality(q int) srs.FeedbackLabel {
	for _, l := range srs.FeedbackLabels() {
		if srs.Quality(l) == q {
			return l
		}
	}
	return ""
}

package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/recall/internal/ai"
	"github.com/p-n-ai/recall/internal/document"
	"github.com/p-n-ai/recall/internal/srs"
)

const (
	defaultMaxChunkChars = 12000
	defaultConcurrency   = 4
	maxTokensPerRequest  = 4096
)

// AIGenerator builds cards by prompting an LLM through the AI gateway.
type AIGenerator struct {
	completer     ai.Completer
	budget        ai.BudgetChecker
	model         string
	maxChunkChars int
	concurrency   int
	now           func() time.Time
}

// AIOption configures an AIGenerator.
type AIOption func(*AIGenerator)

// WithBudget enforces per-user token budgets.
func WithBudget(b ai.BudgetChecker) AIOption {
	return func(g *AIGenerator) { g.budget = b }
}

// WithModel pins the model name sent with every request.
func WithModel(model string) AIOption {
	return func(g *AIGenerator) { g.model = model }
}

// WithMaxChunkChars sets the largest text block sent in one request.
func WithMaxChunkChars(n int) AIOption {
	return func(g *AIGenerator) {
		if n > 0 {
			g.maxChunkChars = n
		}
	}
}

// WithConcurrency bounds the number of chunk requests in flight.
func WithConcurrency(n int) AIOption {
	return func(g *AIGenerator) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

// WithClock overrides time.Now for the initial due date.
func WithClock(now func() time.Time) AIOption {
	return func(g *AIGenerator) { g.now = now }
}

// NewAIGenerator creates a generator backed by completer.
func NewAIGenerator(completer ai.Completer, opts ...AIOption) *AIGenerator {
	g := &AIGenerator{
		completer:     completer,
		maxChunkChars: defaultMaxChunkChars,
		concurrency:   defaultConcurrency,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *AIGenerator) Generate(ctx context.Context, req Request) ([]srs.Card, error) {
	if !req.QuestionType.IsValid() {
		return nil, fmt.Errorf("unknown question type %q", req.QuestionType)
	}
	if err := g.checkBudget(req.UserID); err != nil {
		return nil, err
	}

	content, err := document.Extract(req.Document)
	if err != nil {
		return nil, fmt.Errorf("extracting %s: %w", req.Document.Name, err)
	}

	var raw []RawCard
	if content.Image != nil {
		raw, err = g.complete(ctx, req.UserID, ai.TaskVision, []ai.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: imagePrompt(req.QuestionType), ImageURLs: []string{content.Image.DataURL}},
		})
	} else {
		raw, err = g.generateText(ctx, req, content.Pages)
	}
	if err != nil {
		return nil, err
	}

	cards := Normalize(raw, req.QuestionType, g.now())
	if len(cards) == 0 {
		return nil, ErrNoCards
	}

	slog.Info("cards generated",
		"user_id", req.UserID,
		"document", req.Document.Name,
		"question_type", string(req.QuestionType),
		"cards", len(cards),
	)
	return cards, nil
}

// generateText prompts once per chunk. A failed chunk is logged and skipped;
// generation fails only when every chunk failed.
func (g *AIGenerator) generateText(ctx context.Context, req Request, pages []document.Page) ([]RawCard, error) {
	chunks := document.Split(pages, g.maxChunkChars)
	if len(chunks) == 0 {
		return nil, document.ErrNoContent
	}

	results := make([][]RawCard, len(chunks))
	errs := make([]error, len(chunks))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for i, chunk := range chunks {
		eg.Go(func() error {
			cards, err := g.complete(egCtx, req.UserID, ai.TaskGeneration, []ai.Message{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: textPrompt(chunk.Text, req.QuestionType, chunk.Pages, i+1, len(chunks))},
			})
			if err != nil {
				if errors.Is(err, ai.ErrBudgetExceeded) || egCtx.Err() != nil {
					return err
				}
				slog.Warn("chunk generation failed",
					"user_id", req.UserID,
					"chunk", i+1,
					"chunks", len(chunks),
					"error", err,
				)
				errs[i] = err
				return nil
			}
			results[i] = cards
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var raw []RawCard
	failed := 0
	for i := range chunks {
		if errs[i] != nil {
			failed++
			continue
		}
		raw = append(raw, results[i]...)
	}
	if failed == len(chunks) {
		return nil, fmt.Errorf("all %d chunks failed: %w", failed, errors.Join(errs...))
	}
	return raw, nil
}

func (g *AIGenerator) complete(ctx context.Context, userID string, task ai.TaskType, messages []ai.Message) ([]RawCard, error) {
	if err := g.checkBudget(userID); err != nil {
		return nil, err
	}

	resp, err := g.completer.Complete(ctx, ai.CompletionRequest{
		Messages:  messages,
		Model:     g.model,
		MaxTokens: maxTokensPerRequest,
		JSON:      true,
		Task:      task,
	})
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}

	if g.budget != nil {
		if err := g.budget.Record(userID, resp.TotalTokens()); err != nil {
			slog.Warn("recording token usage failed", "user_id", userID, "error", err)
		}
	}

	return ParsePayload(resp.Content)
}

func (g *AIGenerator) checkBudget(userID string) error {
	if g.budget == nil {
		return nil
	}
	ok, err := g.budget.Check(userID)
	if err != nil {
		return fmt.Errorf("checking budget: %w", err)
	}
	if !ok {
		return ai.ErrBudgetExceeded
	}
	return nil
}

// Package generator turns uploaded documents into study cards.
package generator

import (
	"context"
	"errors"

	"github.com/p-n-ai/recall/internal/document"
	"github.com/p-n-ai/recall/internal/srs"
)

var (
	// ErrNoCards means generation finished without a single usable card.
	ErrNoCards = errors.New("generator: no cards generated")
	// ErrInvalidPayload means a model or service returned a body that is not
	// a {"questions": [...]} object.
	ErrInvalidPayload = errors.New("generator: invalid payload")
)

// Request asks for cards of one question type from one document.
type Request struct {
	UserID       string
	Document     document.Document
	QuestionType srs.QuestionType
}

// Generator produces normalized cards for a document. Implementations
// return ErrNoCards rather than an empty slice.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]srs.Card, error)
}

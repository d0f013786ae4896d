package generator_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-n-ai/recall/internal/document"
	"github.com/p-n-ai/recall/internal/generator"
	"github.com/p-n-ai/recall/internal/srs"
)

func TestServiceClient_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate-flashcards", r.URL.Path)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "MCQs", r.FormValue("question_type"))
		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "lecture.txt", header.Filename)
		assert.Equal(t, "lecture body", string(data))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"questions": []map[string]any{
				{"id": "q1", "question": "Pick one", "answer": "B", "options": []string{"A", "B"}, "source_page": "4"},
				{"question": "Missing answer"},
			},
		})
	}))
	defer server.Close()

	client := generator.NewServiceClient(server.URL+"/", generator.WithServiceClock(clock))

	cards, err := client.Generate(context.Background(), generator.Request{
		Document:     document.Document{Name: "lecture.txt", Data: []byte("lecture body")},
		QuestionType: srs.MultipleChoice,
	})

	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "q1", cards[0].ID)
	assert.Equal(t, []string{"A", "B"}, cards[0].Options)
	assert.Equal(t, "4", cards[0].SourcePage)
	assert.Equal(t, srs.NewSchedule(testNow), cards[0].Schedule)
}

func TestServiceClient_ErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error": "No extractable text in PDF."}`))
	}))
	defer server.Close()

	client := generator.NewServiceClient(server.URL)

	_, err := client.Generate(context.Background(), generator.Request{
		Document:     document.Document{Name: "scan.pdf", Data: []byte("%PDF")},
		QuestionType: srs.ShortAnswer,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 422")
	assert.Contains(t, err.Error(), "No extractable text in PDF.")
}

func TestServiceClient_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": []}`))
	}))
	defer server.Close()

	client := generator.NewServiceClient(server.URL)

	_, err := client.Generate(context.Background(), generator.Request{
		Document:     document.Document{Name: "a.txt", Data: []byte("x")},
		QuestionType: srs.ShortAnswer,
	})

	assert.ErrorIs(t, err, generator.ErrInvalidPayload)
}

func TestServiceClient_NoCards(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"questions": []}`))
	}))
	defer server.Close()

	client := generator.NewServiceClient(server.URL)

	_, err := client.Generate(context.Background(), generator.Request{
		Document:     document.Document{Name: "a.txt", Data: []byte("x")},
		QuestionType: srs.ShortAnswer,
	})

	assert.ErrorIs(t, err, generator.ErrNoCards)
}

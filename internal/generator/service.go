package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/p-n-ai/recall/internal/srs"
)

const (
	generatePath    = "/api/generate-flashcards"
	maxResponseSize = 16 << 20
)

// ServiceClient calls an external flashcard generation service over HTTP.
type ServiceClient struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

// ServiceOption configures a ServiceClient.
type ServiceOption func(*ServiceClient)

// WithServiceHTTPClient sets a custom HTTP client.
func WithServiceHTTPClient(c *http.Client) ServiceOption {
	return func(s *ServiceClient) { s.client = c }
}

// WithServiceClock overrides time.Now for the initial due date.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *ServiceClient) { s.now = now }
}

// NewServiceClient creates a client for the service at baseURL.
func NewServiceClient(baseURL string, opts ...ServiceOption) *ServiceClient {
	s := &ServiceClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Minute},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type serviceError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *ServiceClient) Generate(ctx context.Context, req Request) ([]srs.Card, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", req.Document.Name)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(req.Document.Data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.WriteField("question_type", string(req.QuestionType)); err != nil {
		return nil, fmt.Errorf("write question type: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+generatePath, &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var se serviceError
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &se) == nil {
			switch {
			case se.Error != "":
				msg = se.Error
			case se.Message != "":
				msg = se.Message
			}
		}
		return nil, fmt.Errorf("generation service error (status %d): %s", resp.StatusCode, msg)
	}

	raw, err := ParsePayload(string(respBody))
	if err != nil {
		return nil, err
	}
	cards := Normalize(raw, req.QuestionType, s.now())
	if len(cards) == 0 {
		return nil, ErrNoCards
	}
	return cards, nil
}

package generator

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// payloadSchema checks the envelope only. Individual malformed items are
// dropped by Normalize instead of failing the whole batch.
const payloadSchema = `{
	"type": "object",
	"required": ["questions"],
	"properties": {
		"questions": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"id":            {"type": ["string", "integer", "null"]},
					"question":      {"type": ["string", "null"]},
					"answer":        {"type": ["string", "number", "boolean", "null"]},
					"options":       {"type": ["array", "null"], "items": {"type": ["string", "number", "boolean"]}},
					"question_type": {"type": ["string", "null"]},
					"source_page":   {"type": ["string", "integer", "array", "null"]}
				}
			}
		}
	}
}`

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(payloadSchema))
})

type payload struct {
	Questions []RawCard `json:"questions"`
}

// ParsePayload extracts the cards from a model or service response. It
// tolerates markdown code fences and prose around the JSON object.
func ParsePayload(content string) ([]RawCard, error) {
	body := extractJSON(content)
	if body == "" {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrInvalidPayload)
	}

	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling payload schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewStringLoader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, strings.Join(msgs, "; "))
	}

	var p payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p.Questions, nil
}

func extractJSON(content string) string {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

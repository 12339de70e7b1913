package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jerllllllllyn/smart-grade/internal/models"
)

// ErrMalformedResult indicates the model's response does not satisfy the
// grading result contract. A response failing the contract is rejected
// whole; there is no field-by-field fallback, because a partially-trusted
// grade is worse than a visible failure.
var ErrMalformedResult = errors.New("model response does not satisfy the grading result contract")

// gradingResultSchemaJSON declares the exact shape the model's structured
// output must satisfy. rubricReference is the only optional question field;
// studentName is the only optional top-level field.
const gradingResultSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["totalScore", "maxScore", "letterGrade", "summary", "constructiveFeedback", "questions"],
  "properties": {
    "studentName": {"type": "string"},
    "totalScore": {"type": "number", "minimum": 0},
    "maxScore": {"type": "number", "exclusiveMinimum": 0},
    "letterGrade": {"type": "string"},
    "summary": {"type": "string"},
    "constructiveFeedback": {"type": "string"},
    "questions": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["questionId", "score", "maxScore", "isCorrect", "studentAnswer", "correction", "comments"],
        "properties": {
          "questionId": {"type": "string"},
          "score": {"type": "number", "minimum": 0},
          "maxScore": {"type": "number", "exclusiveMinimum": 0},
          "isCorrect": {"type": "boolean"},
          "studentAnswer": {"type": "string"},
          "correction": {"type": "string"},
          "rubricReference": {"type": "string"},
          "comments": {"type": "string"}
        }
      }
    }
  }
}`

// ResultSchema enforces the grading output contract at the trust boundary
// between the model and the rest of the system.
type ResultSchema struct {
	compiled *jsonschema.Schema
}

// NewResultSchema compiles the grading result schema.
func NewResultSchema() *ResultSchema {
	return &ResultSchema{
		compiled: jsonschema.MustCompileString("grading_result.schema.json", gradingResultSchemaJSON),
	}
}

// Definition returns the schema document handed to the provider as the
// response-schema constraint.
func (s *ResultSchema) Definition() json.RawMessage {
	return json.RawMessage(gradingResultSchemaJSON)
}

// Parse validates the raw model output against the contract and decodes it.
// Any violation fails the whole attempt with ErrMalformedResult.
func (s *ResultSchema) Parse(text string) (models.GradingResult, error) {
	text = stripCodeFences(strings.TrimSpace(text))
	if text == "" {
		return models.GradingResult{}, fmt.Errorf("empty response body: %w", ErrMalformedResult)
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return models.GradingResult{}, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}

	if err := s.compiled.Validate(doc); err != nil {
		return models.GradingResult{}, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}

	var result models.GradingResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return models.GradingResult{}, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}

	if result.TotalScore > result.MaxScore {
		return models.GradingResult{}, fmt.Errorf("total score %g exceeds max score %g: %w", result.TotalScore, result.MaxScore, ErrMalformedResult)
	}
	for _, q := range result.Questions {
		if q.Score > q.MaxScore {
			return models.GradingResult{}, fmt.Errorf("question %q score %g exceeds max score %g: %w", q.QuestionID, q.Score, q.MaxScore, ErrMalformedResult)
		}
	}

	return result, nil
}

// stripCodeFences removes a surrounding markdown code fence if the model
// wrapped its JSON in one despite the instructions.
func stripCodeFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

package dto

import (
	"time"

	"github.com/jerllllllllyn/smart-grade/internal/models"
)

// CreateSessionRequest represents the payload for opening a grading session.
type CreateSessionRequest struct {
	Language string `json:"language" validate:"omitempty,oneof=primary secondary"`
}

// RefineRequest carries the teacher's feedback on a grading result.
type RefineRequest struct {
	Feedback string `json:"feedback" validate:"required"`
}

// RefineResponse carries the rule generated from the feedback. Applied is
// false when the model produced no usable rule; the previous result is then
// still in place.
type RefineResponse struct {
	Rule    string `json:"rule"`
	Applied bool   `json:"applied"`
}

// QuestionResultResponse mirrors one graded question to API consumers.
type QuestionResultResponse struct {
	QuestionID      string  `json:"question_id"`
	Score           float64 `json:"score"`
	MaxScore        float64 `json:"max_score"`
	IsCorrect       bool    `json:"is_correct"`
	StudentAnswer   string  `json:"student_answer"`
	Correction      string  `json:"correction"`
	RubricReference string  `json:"rubric_reference,omitempty"`
	Comments        string  `json:"comments"`
}

// GradingResultResponse mirrors a validated grading result to API consumers.
type GradingResultResponse struct {
	StudentName          string                   `json:"student_name,omitempty"`
	TotalScore           float64                  `json:"total_score"`
	MaxScore             float64                  `json:"max_score"`
	LetterGrade          string                   `json:"letter_grade"`
	Summary              string                   `json:"summary"`
	ConstructiveFeedback string                   `json:"constructive_feedback"`
	Questions            []QuestionResultResponse `json:"questions"`
}

// SessionResponse describes a grading session to API consumers.
type SessionResponse struct {
	ID           string                 `json:"id"`
	Language     string                 `json:"language"`
	Status       string                 `json:"status"`
	LastError    string                 `json:"last_error,omitempty"`
	Result       *GradingResultResponse `json:"result,omitempty"`
	Instructions string                 `json:"instructions"`
	RuleCount    int                    `json:"rule_count"`
	CreatedAt    time.Time              `json:"created_at"`
}

// NewGradingResultResponse builds a response DTO from a grading result.
func NewGradingResultResponse(result models.GradingResult) GradingResultResponse {
	questions := make([]QuestionResultResponse, 0, len(result.Questions))
	for _, q := range result.Questions {
		questions = append(questions, QuestionResultResponse{
			QuestionID:      q.QuestionID,
			Score:           q.Score,
			MaxScore:        q.MaxScore,
			IsCorrect:       q.IsCorrect,
			StudentAnswer:   q.StudentAnswer,
			Correction:      q.Correction,
			RubricReference: q.RubricReference,
			Comments:        q.Comments,
		})
	}

	return GradingResultResponse{
		StudentName:          result.StudentName,
		TotalScore:           result.TotalScore,
		MaxScore:             result.MaxScore,
		LetterGrade:          result.LetterGrade,
		Summary:              result.Summary,
		ConstructiveFeedback: result.ConstructiveFeedback,
		Questions:            questions,
	}
}

package models

// Language selects the language for every free-text field the model produces.
type Language string

const (
	// LanguagePrimary requests output in the deployment's primary language.
	LanguagePrimary Language = "primary"
	// LanguageSecondary requests output in the configured secondary language.
	LanguageSecondary Language = "secondary"
)

// Valid reports whether the language selector is one of the known values.
func (l Language) Valid() bool {
	return l == LanguagePrimary || l == LanguageSecondary
}

// EncodedImage is an inline, content-addressed image payload ready to be
// embedded into a model request.
type EncodedImage struct {
	Data      string `json:"data"`
	MimeType  string `json:"mime_type"`
	Checksum  string `json:"checksum"`
	SizeBytes int64  `json:"size_bytes"`
}

// GradingRequest carries everything one grading round-trip needs. Page order
// inside each group is significant: the model correlates questions by
// position across the rubric and exam sequences.
type GradingRequest struct {
	RubricImages []EncodedImage
	ExamImages   []EncodedImage
	Instructions string
	Language     Language
}

// QuestionResult is the model's judgment for a single exam question.
// IsCorrect is an independent field, not derived from the scores: the model
// may set it false while still awarding partial credit.
type QuestionResult struct {
	QuestionID      string  `json:"questionId"`
	Score           float64 `json:"score"`
	MaxScore        float64 `json:"maxScore"`
	IsCorrect       bool    `json:"isCorrect"`
	StudentAnswer   string  `json:"studentAnswer"`
	Correction      string  `json:"correction"`
	RubricReference string  `json:"rubricReference,omitempty"`
	Comments        string  `json:"comments"`
}

// GradingResult is the full structured grade for one exam.
type GradingResult struct {
	StudentName          string           `json:"studentName,omitempty"`
	TotalScore           float64          `json:"totalScore"`
	MaxScore             float64          `json:"maxScore"`
	LetterGrade          string           `json:"letterGrade"`
	Summary              string           `json:"summary"`
	ConstructiveFeedback string           `json:"constructiveFeedback"`
	Questions            []QuestionResult `json:"questions"`
}

// QuestionScoreSum returns the sum of per-question scores and max scores.
func (r GradingResult) QuestionScoreSum() (score, maxScore float64) {
	for _, q := range r.Questions {
		score += q.Score
		maxScore += q.MaxScore
	}
	return score, maxScore
}

package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jerllllllllyn/smart-grade/internal/models"
	"github.com/jerllllllllyn/smart-grade/pkg/ai"
)

// ErrInvalidRequest indicates a precondition was violated before any
// external call was made.
var ErrInvalidRequest = errors.New("invalid grading request")

// ComposerConfig maps the abstract primary/secondary language selector to
// concrete language names used in the output-language directive.
type ComposerConfig struct {
	PrimaryLanguage   string
	SecondaryLanguage string
}

// RequestComposer deterministically serializes a grading request into the
// ordered segment sequence the model consumes. Ordering is a contract, not
// an optimization: the leading instruction segment comes first, then every
// rubric page, then every exam page, each group in upload order, because the
// model correlates questions by position across the two groups.
type RequestComposer struct {
	cfg ComposerConfig
}

// NewRequestComposer constructs a composer.
func NewRequestComposer(cfg ComposerConfig) *RequestComposer {
	if cfg.PrimaryLanguage == "" {
		cfg.PrimaryLanguage = "English"
	}
	if cfg.SecondaryLanguage == "" {
		cfg.SecondaryLanguage = "Spanish"
	}
	return &RequestComposer{cfg: cfg}
}

// OutputLanguage resolves the language selector to a concrete language name.
func (c *RequestComposer) OutputLanguage(language models.Language) string {
	if language == models.LanguageSecondary {
		return c.cfg.SecondaryLanguage
	}
	return c.cfg.PrimaryLanguage
}

// Validate checks the preconditions Compose relies on, so callers can
// reject a request before taking any state transition.
func (c *RequestComposer) Validate(req models.GradingRequest) error {
	if len(req.RubricImages) == 0 {
		return fmt.Errorf("at least one answer key page is required: %w", ErrInvalidRequest)
	}
	if len(req.ExamImages) == 0 {
		return fmt.Errorf("at least one exam page is required: %w", ErrInvalidRequest)
	}
	return nil
}

// Compose builds the grading request payload. ledger is the rendered
// instruction ledger snapshot taken at composition time; it may be empty.
func (c *RequestComposer) Compose(req models.GradingRequest, ledger string) ([]ai.Segment, error) {
	if err := c.Validate(req); err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("You are an experienced teacher grading a scanned exam against a scanned answer key.\n")
	b.WriteString("The answer key pages are provided first, followed by the student's exam pages, each in upload order.\n\n")
	b.WriteString("Grading policy:\n")
	b.WriteString("1. Match every question on the exam pages to the corresponding question on the answer key pages by its position and label.\n")
	b.WriteString("2. Award points according to the point allocation on the answer key. Give partial credit where the answer key allows it.\n")
	b.WriteString("3. For every question, report the student's answer as written, the correct answer, and a short comment explaining the score.\n")
	b.WriteString("4. When you cite the answer key in rubricReference, quote it verbatim; never paraphrase.\n")
	b.WriteString("5. Set isCorrect according to your judgment of the answer, independently of the numeric score.\n")
	b.WriteString("6. Keep every question's score between zero and that question's maximum.\n\n")
	fmt.Fprintf(&b, "Write every free-text field in %s.\n", c.OutputLanguage(req.Language))

	if instructions := strings.TrimSpace(req.Instructions); instructions != "" {
		b.WriteString("\nAdditional instructions from the teacher:\n")
		b.WriteString(instructions)
		b.WriteString("\n")
	}
	if ledger = strings.TrimSpace(ledger); ledger != "" {
		b.WriteString("\nAccumulated grading rules from previous feedback. Later rules take precedence over earlier ones:\n")
		b.WriteString(ledger)
		b.WriteString("\n")
	}

	segments := make([]ai.Segment, 0, 1+2*(len(req.RubricImages)+len(req.ExamImages)))
	segments = append(segments, ai.TextSegment(b.String()))

	for i, img := range req.RubricImages {
		segments = append(segments,
			ai.TextSegment(fmt.Sprintf("Answer key, page %d:", i+1)),
			ai.ImageSegment(img.Data, img.MimeType),
		)
	}
	for i, img := range req.ExamImages {
		segments = append(segments,
			ai.TextSegment(fmt.Sprintf("Student exam, page %d:", i+1)),
			ai.ImageSegment(img.Data, img.MimeType),
		)
	}

	return segments, nil
}

// ComposeRefinement builds the text-only payload for the instruction
// refinement round-trip: current ledger, the teacher's feedback, and the
// directive to emit exactly one new rule with no conversational wrapping.
func (c *RequestComposer) ComposeRefinement(ledger, feedback string, language models.Language) []ai.Segment {
	var b strings.Builder
	b.WriteString("You maintain the grading rules for an exam-grading assistant.\n")
	b.WriteString("A teacher reviewed a grading result and gave feedback. Turn that feedback into exactly one new grading rule.\n\n")

	if ledger = strings.TrimSpace(ledger); ledger != "" {
		b.WriteString("Current grading rules:\n")
		b.WriteString(ledger)
		b.WriteString("\n\n")
	}

	b.WriteString("Teacher feedback:\n")
	b.WriteString(strings.TrimSpace(feedback))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Reply with the new rule only, written in %s, as one sentence or short paragraph. ", c.OutputLanguage(language))
	b.WriteString("No greeting, no explanation, no quotation marks. If the feedback contains no usable rule, reply with nothing at all.")

	return []ai.Segment{ai.TextSegment(b.String())}
}

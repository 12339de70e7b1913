package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jerllllllllyn/smart-grade/internal/models"
	"github.com/jerllllllllyn/smart-grade/pkg/ai"
)

type invokeReply struct {
	text string
	err  error
}

type fakeInvoker struct {
	mu      sync.Mutex
	replies []invokeReply
	calls   []ai.InvokeRequest
}

func (f *fakeInvoker) Invoke(ctx context.Context, req ai.InvokeRequest) (ai.InvokeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, req)
	if len(f.replies) == 0 {
		return ai.InvokeResult{}, errors.New("no scripted reply")
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	if reply.err != nil {
		return ai.InvokeResult{}, reply.err
	}
	return ai.InvokeResult{Text: reply.text}, nil
}

func (f *fakeInvoker) Name() string { return "fake" }

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestGradingService(t *testing.T, invoker ai.Invoker) (GradingService, *GradingSession) {
	t.Helper()

	registry := NewSessionRegistry(0, testLogger())
	session, err := registry.Create(models.LanguagePrimary)
	require.NoError(t, err)

	svc := NewGradingService(invoker, NewRequestComposer(ComposerConfig{}), NewResultSchema(), 0, testLogger())
	return svc, session
}

func sampleGradingRequest() models.GradingRequest {
	return models.GradingRequest{
		RubricImages: []models.EncodedImage{testImage("rubric")},
		ExamImages:   []models.EncodedImage{testImage("exam")},
	}
}

// Puts a session into success with a stored result, the precondition for
// refinement.
func gradeToSuccess(t *testing.T, svc GradingService, session *GradingSession, invoker *fakeInvoker) models.GradingResult {
	t.Helper()

	invoker.mu.Lock()
	invoker.replies = append([]invokeReply{{text: validResultJSON}}, invoker.replies...)
	invoker.mu.Unlock()

	result, err := svc.Grade(context.Background(), session, sampleGradingRequest())
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusSuccess, session.Status())
	return result
}

func TestGradeSuccess(t *testing.T) {
	invoker := &fakeInvoker{replies: []invokeReply{{text: validResultJSON}}}
	svc, session := newTestGradingService(t, invoker)

	result, err := svc.Grade(context.Background(), session, sampleGradingRequest())
	require.NoError(t, err)
	require.Equal(t, 8.5, result.TotalScore)
	require.Len(t, result.Questions, 2)

	require.Equal(t, models.SessionStatusSuccess, session.Status())
	stored := session.Result()
	require.NotNil(t, stored)
	require.Equal(t, result, *stored)

	require.Equal(t, 1, invoker.callCount())
	call := invoker.calls[0]
	require.NotNil(t, call.ResponseSchema)
	require.Equal(t, "grading_result", call.SchemaName)
	require.NotNil(t, call.Temperature)
	require.Equal(t, defaultTemperature, *call.Temperature)
	require.Len(t, call.Segments, 5)
}

func TestGradeProviderFailure(t *testing.T) {
	invoker := &fakeInvoker{replies: []invokeReply{
		{err: ai.NewProviderError("gemini", errors.New("quota exhausted for project"))},
	}}
	svc, session := newTestGradingService(t, invoker)
	session.Ledger().Append("Pre-existing rule survives failures.")

	_, err := svc.Grade(context.Background(), session, sampleGradingRequest())
	require.Error(t, err)

	var providerErr *ai.ProviderError
	require.ErrorAs(t, err, &providerErr)

	require.Equal(t, models.SessionStatusError, session.Status())
	snapshot := session.Snapshot()
	require.Equal(t, "quota exhausted for project", snapshot.LastError)
	require.Equal(t, 1, session.Ledger().Len())
	require.Nil(t, session.Result())
}

func TestGradeMalformedResponse(t *testing.T) {
	invoker := &fakeInvoker{replies: []invokeReply{{text: `{"verdict": "looks fine"}`}}}
	svc, session := newTestGradingService(t, invoker)

	_, err := svc.Grade(context.Background(), session, sampleGradingRequest())
	require.ErrorIs(t, err, ErrMalformedResult)
	require.Equal(t, models.SessionStatusError, session.Status())
	require.Nil(t, session.Result())
}

func TestGradeInvalidRequestLeavesSessionUntouched(t *testing.T) {
	invoker := &fakeInvoker{}
	svc, session := newTestGradingService(t, invoker)

	_, err := svc.Grade(context.Background(), session, models.GradingRequest{
		ExamImages: []models.EncodedImage{testImage("exam")},
	})
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.Equal(t, models.SessionStatusIdle, session.Status())
	require.Equal(t, 0, invoker.callCount())
}

func TestGradeRejectsConcurrentCall(t *testing.T) {
	invoker := &fakeInvoker{}
	svc, session := newTestGradingService(t, invoker)

	_, _, err := session.beginGrade(context.Background())
	require.NoError(t, err)

	_, err = svc.Grade(context.Background(), session, sampleGradingRequest())
	require.ErrorIs(t, err, ErrSessionBusy)
	require.Equal(t, 0, invoker.callCount())
}

func TestGradeRejectedWhileRefinementInFlight(t *testing.T) {
	invoker := &fakeInvoker{}
	svc, session := newTestGradingService(t, invoker)
	gradeToSuccess(t, svc, session, invoker)
	before := invoker.callCount()

	_, _, err := session.beginRefine(context.Background())
	require.NoError(t, err)

	_, err = svc.Grade(context.Background(), session, sampleGradingRequest())
	require.ErrorIs(t, err, ErrSessionBusy)
	require.Equal(t, models.SessionStatusImproving, session.Status())
	require.Equal(t, before, invoker.callCount())
}

func TestGradeRetryAfterErrorSucceeds(t *testing.T) {
	invoker := &fakeInvoker{replies: []invokeReply{
		{err: ai.NewProviderError("gemini", errors.New("transient"))},
		{text: validResultJSON},
	}}
	svc, session := newTestGradingService(t, invoker)

	_, err := svc.Grade(context.Background(), session, sampleGradingRequest())
	require.Error(t, err)
	require.Equal(t, models.SessionStatusError, session.Status())

	result, err := svc.Grade(context.Background(), session, sampleGradingRequest())
	require.NoError(t, err)
	require.Equal(t, 8.5, result.TotalScore)
	require.Equal(t, models.SessionStatusSuccess, session.Status())
	require.Empty(t, session.Snapshot().LastError)
}

func TestGradeReplaysLedgerIntoPrompt(t *testing.T) {
	invoker := &fakeInvoker{replies: []invokeReply{{text: validResultJSON}}}
	svc, session := newTestGradingService(t, invoker)
	session.Ledger().Append("Award full credit for unsimplified fractions.")

	_, err := svc.Grade(context.Background(), session, sampleGradingRequest())
	require.NoError(t, err)

	require.Equal(t, 1, invoker.callCount())
	require.Contains(t, invoker.calls[0].Segments[0].Text, "Award full credit for unsimplified fractions.")
}

func TestRefineAppendsRuleAndDiscardsResult(t *testing.T) {
	invoker := &fakeInvoker{}
	svc, session := newTestGradingService(t, invoker)
	session.Ledger().Append("Earlier rule about rounding.")
	gradeToSuccess(t, svc, session, invoker)

	invoker.replies = []invokeReply{{text: "  Count method marks even when the final answer is wrong.  "}}

	rule, err := svc.RefineInstructions(context.Background(), session, "Question 2 deserved method marks.")
	require.NoError(t, err)
	require.Equal(t, "Count method marks even when the final answer is wrong.", rule)

	require.Equal(t, models.SessionStatusIdle, session.Status())
	require.Nil(t, session.Result())

	// New rules land after everything already in the ledger.
	require.Equal(t, []string{
		"Earlier rule about rounding.",
		"Count method marks even when the final answer is wrong.",
	}, session.Ledger().Entries())
	rendered := session.Ledger().Render()
	require.Less(t,
		strings.Index(rendered, "Earlier rule about rounding."),
		strings.Index(rendered, "Count method marks even when the final answer is wrong."),
	)

	// The refinement call is free-text: no schema, single text segment.
	call := invoker.calls[len(invoker.calls)-1]
	require.Nil(t, call.ResponseSchema)
	require.Len(t, call.Segments, 1)
	require.Contains(t, call.Segments[0].Text, "Question 2 deserved method marks.")
}

func TestRefineEmptyRuleKeepsResult(t *testing.T) {
	invoker := &fakeInvoker{}
	svc, session := newTestGradingService(t, invoker)
	graded := gradeToSuccess(t, svc, session, invoker)

	invoker.replies = []invokeReply{{text: "   \n"}}

	rule, err := svc.RefineInstructions(context.Background(), session, "Thanks, this looks right.")
	require.NoError(t, err)
	require.Empty(t, rule)

	require.Equal(t, models.SessionStatusSuccess, session.Status())
	stored := session.Result()
	require.NotNil(t, stored)
	require.Equal(t, graded, *stored)
	require.Equal(t, 0, session.Ledger().Len())
}

func TestRefineProviderFailureRestoresSuccess(t *testing.T) {
	invoker := &fakeInvoker{}
	svc, session := newTestGradingService(t, invoker)
	graded := gradeToSuccess(t, svc, session, invoker)

	invoker.replies = []invokeReply{{err: ai.NewProviderError("gemini", errors.New("deadline exceeded"))}}

	_, err := svc.RefineInstructions(context.Background(), session, "Be stricter on question 3.")
	require.Error(t, err)

	require.Equal(t, models.SessionStatusSuccess, session.Status())
	stored := session.Result()
	require.NotNil(t, stored)
	require.Equal(t, graded, *stored)
	require.Equal(t, 0, session.Ledger().Len())
}

func TestRefineRejectsEmptyFeedback(t *testing.T) {
	invoker := &fakeInvoker{}
	svc, session := newTestGradingService(t, invoker)
	gradeToSuccess(t, svc, session, invoker)
	before := invoker.callCount()

	_, err := svc.RefineInstructions(context.Background(), session, "   ")
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.Equal(t, models.SessionStatusSuccess, session.Status())
	require.Equal(t, before, invoker.callCount())
}

func TestRefineRequiresGradedResult(t *testing.T) {
	invoker := &fakeInvoker{}
	svc, session := newTestGradingService(t, invoker)

	_, err := svc.RefineInstructions(context.Background(), session, "Too generous on question 1.")
	require.ErrorIs(t, err, ErrNoGradedResult)
	require.Equal(t, models.SessionStatusIdle, session.Status())
	require.Equal(t, 0, invoker.callCount())
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jerllllllllyn/smart-grade/internal/models"
)

var (
	// ErrSessionNotFound indicates the session does not exist or has expired.
	ErrSessionNotFound = errors.New("grading session not found")
	// ErrSessionBusy indicates a model call is already in flight for the session.
	ErrSessionBusy = errors.New("a grading or refinement call is already in flight")
	// ErrNoGradedResult indicates refinement was requested without a completed grade.
	ErrNoGradedResult = errors.New("instruction refinement requires a completed grading result")
)

// GradingSession owns the mutable per-session state: the language selector,
// the instruction ledger, the last grading result, and the status machine.
// At most one model call is in flight per session; the status gates new
// invocations. Generation counting makes Reset safe against stale in-flight
// completions overwriting state the teacher has already moved past.
type GradingSession struct {
	ID        string
	Language  models.Language
	CreatedAt time.Time

	mu         sync.Mutex
	status     models.SessionStatus
	ledger     *InstructionLedger
	result     *models.GradingResult
	lastError  string
	cancel     context.CancelFunc
	generation uint64
	lastActive time.Time
}

// SessionSnapshot is a consistent read of session state.
type SessionSnapshot struct {
	ID           string
	Language     models.Language
	Status       models.SessionStatus
	Result       *models.GradingResult
	LastError    string
	Instructions string
	RuleCount    int
	CreatedAt    time.Time
}

// Status returns the current lifecycle status.
func (s *GradingSession) Status() models.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Ledger returns the session's instruction ledger.
func (s *GradingSession) Ledger() *InstructionLedger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger
}

// Result returns a copy of the last grading result, if any.
func (s *GradingSession) Result() *models.GradingResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil
	}
	copied := *s.result
	return &copied
}

// Snapshot returns a consistent view of the session.
func (s *GradingSession) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := SessionSnapshot{
		ID:           s.ID,
		Language:     s.Language,
		Status:       s.status,
		LastError:    s.lastError,
		Instructions: s.ledger.Render(),
		RuleCount:    s.ledger.Len(),
		CreatedAt:    s.CreatedAt,
	}
	if s.result != nil {
		copied := *s.result
		snapshot.Result = &copied
	}
	return snapshot
}

// Reset aborts any in-flight call and clears all session state: ledger,
// result, error, and status.
func (s *GradingSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	s.status = models.SessionStatusIdle
	s.ledger = NewInstructionLedger()
	s.result = nil
	s.lastError = ""
	s.lastActive = time.Now()
}

// beginGrade transitions the session into processing. Accepted from idle,
// success, and error; rejected while another call is in flight. The returned
// context is cancelled by Reset.
func (s *GradingSession) beginGrade(ctx context.Context) (context.Context, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Busy() {
		return nil, 0, ErrSessionBusy
	}

	callCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.status = models.SessionStatusProcessing
	s.lastActive = time.Now()
	return callCtx, s.generation, nil
}

// completeGrade stores the validated result and transitions to success.
// Stale completions from before a Reset are dropped.
func (s *GradingSession) completeGrade(generation uint64, result models.GradingResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != generation || s.status != models.SessionStatusProcessing {
		return
	}
	s.status = models.SessionStatusSuccess
	s.result = &result
	s.lastError = ""
	s.cancel = nil
	s.lastActive = time.Now()
}

// failGrade transitions to error with a human-readable cause. The ledger and
// any previous result are left untouched so the teacher can retry.
func (s *GradingSession) failGrade(generation uint64, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != generation || s.status != models.SessionStatusProcessing {
		return
	}
	s.status = models.SessionStatusError
	s.lastError = cause.Error()
	s.cancel = nil
	s.lastActive = time.Now()
}

// beginRefine transitions success into improving. Only a session holding a
// validated result may refine.
func (s *GradingSession) beginRefine(ctx context.Context) (context.Context, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Busy() {
		return nil, 0, ErrSessionBusy
	}
	if s.status != models.SessionStatusSuccess {
		return nil, 0, ErrNoGradedResult
	}

	callCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.status = models.SessionStatusImproving
	s.lastActive = time.Now()
	return callCtx, s.generation, nil
}

// completeRefine resolves the improving state. A non-empty rule is appended
// to the ledger, the previous result is discarded, and the session returns
// to idle so the teacher re-runs grading. An empty rule (or a failed call)
// restores success with the previous result untouched.
func (s *GradingSession) completeRefine(generation uint64, rule string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != generation || s.status != models.SessionStatusImproving {
		return
	}
	if rule == "" {
		s.status = models.SessionStatusSuccess
	} else {
		s.ledger.Append(rule)
		s.result = nil
		s.status = models.SessionStatusIdle
	}
	s.cancel = nil
	s.lastActive = time.Now()
}

// SessionRegistry owns the in-memory session table. Sessions never outlive
// the process: there is no cross-session persistence, only a TTL sweep for
// abandoned entries.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*GradingSession
	ttl      time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewSessionRegistry constructs a registry with the given idle TTL.
func NewSessionRegistry(ttl time.Duration, logger zerolog.Logger) *SessionRegistry {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionRegistry{
		sessions: make(map[string]*GradingSession),
		ttl:      ttl,
		logger:   logger.With().Str("component", "session_registry").Logger(),
		now:      time.Now,
	}
}

// Create registers a new idle session for the given output language.
func (r *SessionRegistry) Create(language models.Language) (*GradingSession, error) {
	if language == "" {
		language = models.LanguagePrimary
	}
	if !language.Valid() {
		return nil, fmt.Errorf("unknown language %q: %w", language, ErrInvalidRequest)
	}

	session := &GradingSession{
		ID:         uuid.NewString(),
		Language:   language,
		CreatedAt:  r.now(),
		status:     models.SessionStatusIdle,
		ledger:     NewInstructionLedger(),
		lastActive: r.now(),
	}

	r.mu.Lock()
	r.sessions[session.ID] = session
	r.mu.Unlock()

	r.logger.Info().Str("session_id", session.ID).Str("language", string(language)).Msg("session created")
	return session, nil
}

// Get returns the session with the given ID.
func (r *SessionRegistry) Get(id string) (*GradingSession, error) {
	r.mu.RLock()
	session, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Delete aborts any in-flight work and removes the session.
func (r *SessionRegistry) Delete(id string) error {
	r.mu.Lock()
	session, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	session.Reset()
	r.logger.Info().Str("session_id", id).Msg("session deleted")
	return nil
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Start launches the background sweep that evicts idle sessions.
func (r *SessionRegistry) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep()
			}
		}
	}()
}

func (r *SessionRegistry) sweep() {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var expired []*GradingSession
	for id, session := range r.sessions {
		session.mu.Lock()
		idle := session.lastActive.Before(cutoff) && !session.status.Busy()
		session.mu.Unlock()
		if idle {
			delete(r.sessions, id)
			expired = append(expired, session)
		}
	}
	r.mu.Unlock()

	for _, session := range expired {
		session.Reset()
		r.logger.Info().Str("session_id", session.ID).Msg("idle session evicted")
	}
}

package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
)

// Countdown is one tick of a live session.
type Countdown struct {
	AttemptID    string `json:"attempt_id"`
	RemainingSec int    `json:"remaining_sec"`
}

// SessionOutcome records how a session ended its attempt.
type SessionOutcome struct {
	Result        *models.AttemptResult
	Err           error
	AutoSubmitted bool
}

// TimerCoordinator runs one countdown per open attempt and forces a single
// submission when it reaches zero.
type TimerCoordinator struct {
	attempts AttemptService
	tick     time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*TimerSession
}

type TimerOption func(*TimerCoordinator)

func WithTimerClock(now func() time.Time) TimerOption {
	return func(c *TimerCoordinator) { c.now = now }
}

func NewTimerCoordinator(attempts AttemptService, tick time.Duration, logger *slog.Logger, opts ...TimerOption) *TimerCoordinator {
	if tick <= 0 {
		tick = time.Second
	}
	c := &TimerCoordinator{
		attempts: attempts,
		tick:     tick,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*TimerSession),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Begin starts a session for an in-progress attempt owned by studentID. A
// session already running for the same attempt is stopped first.
func (c *TimerCoordinator) Begin(ctx context.Context, attemptID, studentID string) (*TimerSession, error) {
	view, err := c.attempts.Get(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	switch view.Status {
	case models.AttemptSubmitted, models.AttemptGraded:
		return nil, ErrAttemptAlreadySubmitted
	case models.AttemptExpired:
		return nil, ErrAttemptExpired
	}

	sessCtx, cancel := context.WithCancel(ctx)
	s := &TimerSession{
		AttemptID: attemptID,
		StudentID: studentID,
		ExpiresAt: view.ExpiresAt,
		coord:     c,
		ctx:       sessCtx,
		cancel:    cancel,
		ticks:     make(chan Countdown, 1),
		done:      make(chan struct{}),
	}

	c.mu.Lock()
	prev := c.sessions[attemptID]
	c.sessions[attemptID] = s
	c.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	c.logger.Info("Timer session started",
		"attempt_id", attemptID,
		"student_id", studentID,
		"expires_at", view.ExpiresAt)

	go s.run()
	return s, nil
}

// Release stops the session of an attempt that left in_progress elsewhere.
func (c *TimerCoordinator) Release(attemptID string) {
	c.mu.Lock()
	s := c.sessions[attemptID]
	c.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

// Shutdown stops every live session and waits for them to exit.
func (c *TimerCoordinator) Shutdown() {
	c.mu.Lock()
	live := make([]*TimerSession, 0, len(c.sessions))
	for _, s := range c.sessions {
		live = append(live, s)
	}
	c.mu.Unlock()

	for _, s := range live {
		s.Stop()
	}
}

func (c *TimerCoordinator) ActiveSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

func (c *TimerCoordinator) remove(s *TimerSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessions[s.AttemptID] == s {
		delete(c.sessions, s.AttemptID)
	}
}

// TimerSession is bound to one client connection.
type TimerSession struct {
	AttemptID string
	StudentID string
	ExpiresAt time.Time

	coord  *TimerCoordinator
	ctx    context.Context
	cancel context.CancelFunc
	ticks  chan Countdown
	done   chan struct{}

	// submitting is the single latch shared by manual and forced submission.
	submitting atomic.Bool

	mu      sync.Mutex
	outcome *SessionOutcome
}

// Ticks delivers the latest countdown; slow readers skip stale ticks. The
// channel is closed when the session ends.
func (s *TimerSession) Ticks() <-chan Countdown { return s.ticks }

// Done is closed once the session goroutine has exited.
func (s *TimerSession) Done() <-chan struct{} { return s.done }

// Stop ends the session and waits for its goroutine to exit.
func (s *TimerSession) Stop() {
	s.cancel()
	<-s.done
}

func (s *TimerSession) Outcome() *SessionOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// RecordAnswer autosaves through the state machine. An expiry rejection is
// treated as the trigger for the forced submission.
func (s *TimerSession) RecordAnswer(ctx context.Context, req *models.RecordAnswerRequest) error {
	err := s.coord.attempts.RecordAnswer(ctx, s.AttemptID, req, s.StudentID)
	if errors.Is(err, ErrAttemptExpired) {
		s.forceSubmit()
	}
	return err
}

// Submit is the manual submission. It wins the latch or reports that a
// submission already happened.
func (s *TimerSession) Submit(ctx context.Context, answers models.AnswerSet) (*models.AttemptResult, error) {
	if !s.submitting.CompareAndSwap(false, true) {
		return nil, ErrAttemptAlreadySubmitted
	}

	result, err := s.coord.attempts.Submit(ctx, &models.SubmitAttemptRequest{
		AttemptID: s.AttemptID,
		Answers:   answers,
	}, s.StudentID)
	if err != nil && !isTerminal(err) {
		s.submitting.Store(false)
		// A countdown that reached zero while the latch was held has already
		// stopped, so the forced submission happens here instead.
		if remainingSeconds(s.ExpiresAt, s.coord.now()) == 0 {
			s.forceSubmit()
		}
		return nil, err
	}

	s.setOutcome(&SessionOutcome{Result: result, Err: err})
	s.cancel()
	return result, err
}

func (s *TimerSession) run() {
	defer close(s.done)
	defer close(s.ticks)
	defer s.coord.remove(s)

	ticker := time.NewTicker(s.coord.tick)
	defer ticker.Stop()

	if s.emit() {
		return
	}
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.emit() {
				return
			}
		}
	}
}

// emit publishes the current countdown and reports whether the session ended.
func (s *TimerSession) emit() bool {
	if s.ctx.Err() != nil {
		return true
	}

	remaining := remainingSeconds(s.ExpiresAt, s.coord.now())
	s.send(Countdown{AttemptID: s.AttemptID, RemainingSec: remaining})

	if remaining > 0 {
		return false
	}
	s.forceSubmit()
	return true
}

// send replaces any unread tick with c.
func (s *TimerSession) send(c Countdown) {
	select {
	case s.ticks <- c:
		return
	default:
	}
	select {
	case <-s.ticks:
	default:
	}
	select {
	case s.ticks <- c:
	default:
	}
}

// forceSubmit fires at most once per session and never while a manual
// submission holds the latch.
func (s *TimerSession) forceSubmit() {
	if !s.submitting.CompareAndSwap(false, true) {
		return
	}

	// The submission must finish even if the client disconnects right now.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), 10*time.Second)
	defer cancel()

	result, err := s.coord.attempts.SubmitRecorded(ctx, s.AttemptID, s.StudentID)
	s.setOutcome(&SessionOutcome{Result: result, Err: err, AutoSubmitted: true})

	if err != nil {
		s.coord.logger.Warn("Forced submission rejected",
			"attempt_id", s.AttemptID,
			"error", err)
	} else {
		s.coord.logger.Info("Attempt auto-submitted on timeout",
			"attempt_id", s.AttemptID,
			"score", result.Score,
			"max_score", result.MaxScore)
	}
	s.cancel()
}

func (s *TimerSession) setOutcome(o *SessionOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == nil {
		s.outcome = o
	}
}

func remainingSeconds(expiresAt, now time.Time) int {
	d := expiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

// isTerminal reports errors after which retrying a submission is pointless.
func isTerminal(err error) bool {
	return errors.Is(err, ErrAttemptAlreadySubmitted) ||
		errors.Is(err, ErrAttemptExpired) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrNotFound)
}

// Package memory is a process-local Repository used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/repositories"
)

type store struct {
	// txMu serializes WithTransaction callers.
	txMu sync.Mutex

	mu        sync.RWMutex
	tests     map[string]*models.Test
	questions map[string]*models.Question
	attempts  map[string]*models.Attempt
}

// MemoryRepository keeps all records in maps guarded by one lock. Every value
// handed out is a copy.
type MemoryRepository struct {
	s    *store
	inTx bool
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{s: &store{
		tests:     make(map[string]*models.Test),
		questions: make(map[string]*models.Question),
		attempts:  make(map[string]*models.Attempt),
	}}
}

func (r *MemoryRepository) Test() repositories.TestRepository         { return &testStore{r.s} }
func (r *MemoryRepository) Question() repositories.QuestionRepository { return &questionStore{r.s} }
func (r *MemoryRepository) Attempt() repositories.AttemptRepository   { return &attemptStore{r.s} }

// WithTransaction runs transactions one at a time. There is no rollback; each
// store call is atomic on its own.
func (r *MemoryRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	r.s.txMu.Lock()
	defer r.s.txMu.Unlock()
	return fn(&MemoryRepository{s: r.s, inTx: true})
}

func (r *MemoryRepository) Ping(ctx context.Context) error { return nil }
func (r *MemoryRepository) Close() error                   { return nil }

// ===== TESTS =====

type testStore struct{ s *store }

func (t *testStore) Create(ctx context.Context, test *models.Test) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if _, ok := t.s.tests[test.ID]; ok {
		return fmt.Errorf("test %s: %w", test.ID, repositories.ErrConflict)
	}
	now := time.Now()
	test.CreatedAt, test.UpdatedAt = now, now
	stored := *test
	stored.Questions = nil
	t.s.tests[test.ID] = &stored
	for i := range test.Questions {
		q := test.Questions[i]
		q.TestID = test.ID
		q.CreatedAt, q.UpdatedAt = now, now
		t.s.questions[q.ID] = &q
	}
	return nil
}

func (t *testStore) GetByID(ctx context.Context, id string) (*models.Test, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	test, ok := t.s.tests[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := *test
	return &c, nil
}

// GetByIDForUpdate relies on WithTransaction for serialization.
func (t *testStore) GetByIDForUpdate(ctx context.Context, id string) (*models.Test, error) {
	return t.GetByID(ctx, id)
}

func (t *testStore) GetByIDWithQuestions(ctx context.Context, id string) (*models.Test, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	test, ok := t.s.tests[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := *test
	c.Questions = nil
	for _, q := range t.s.questionsOf(id) {
		c.Questions = append(c.Questions, *q)
	}
	return &c, nil
}

func (t *testStore) Update(ctx context.Context, test *models.Test) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if _, ok := t.s.tests[test.ID]; !ok {
		return repositories.ErrNotFound
	}
	test.UpdatedAt = time.Now()
	stored := *test
	stored.Questions = nil
	t.s.tests[test.ID] = &stored
	return nil
}

func (t *testStore) UpdateStatus(ctx context.Context, id string, status models.TestStatus) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	test, ok := t.s.tests[id]
	if !ok {
		return repositories.ErrNotFound
	}
	test.Status = status
	test.UpdatedAt = time.Now()
	return nil
}

func (t *testStore) List(ctx context.Context, filters repositories.TestFilters) ([]*models.Test, int64, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	var out []*models.Test
	for _, test := range t.s.tests {
		if filters.Status != nil && test.Status != *filters.Status {
			continue
		}
		if filters.CreatedBy != nil && test.CreatedBy != *filters.CreatedBy {
			continue
		}
		c := *test
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := int64(len(out))
	return paginate(out, filters.Offset, filters.Limit), total, nil
}

// ===== QUESTIONS =====

type questionStore struct{ s *store }

func (q *questionStore) Create(ctx context.Context, question *models.Question) error {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()

	if _, ok := q.s.tests[question.TestID]; !ok {
		return fmt.Errorf("test %s: %w", question.TestID, repositories.ErrNotFound)
	}
	if _, ok := q.s.questions[question.ID]; ok {
		return fmt.Errorf("question %s: %w", question.ID, repositories.ErrConflict)
	}
	now := time.Now()
	question.CreatedAt, question.UpdatedAt = now, now
	c := *question
	q.s.questions[question.ID] = &c
	return nil
}

func (q *questionStore) GetByID(ctx context.Context, id string) (*models.Question, error) {
	q.s.mu.RLock()
	defer q.s.mu.RUnlock()

	question, ok := q.s.questions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := *question
	return &c, nil
}

func (q *questionStore) Update(ctx context.Context, question *models.Question) error {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()

	if _, ok := q.s.questions[question.ID]; !ok {
		return repositories.ErrNotFound
	}
	question.UpdatedAt = time.Now()
	c := *question
	q.s.questions[question.ID] = &c
	return nil
}

func (q *questionStore) Delete(ctx context.Context, id string) error {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()

	if _, ok := q.s.questions[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(q.s.questions, id)
	return nil
}

func (q *questionStore) ListByTest(ctx context.Context, testID string) ([]*models.Question, error) {
	q.s.mu.RLock()
	defer q.s.mu.RUnlock()

	var out []*models.Question
	for _, question := range q.s.questionsOf(testID) {
		c := *question
		out = append(out, &c)
	}
	return out, nil
}

func (q *questionStore) NextPosition(ctx context.Context, testID string) (int, error) {
	q.s.mu.RLock()
	defer q.s.mu.RUnlock()

	next := 0
	for _, question := range q.s.questionsOf(testID) {
		if question.Position >= next {
			next = question.Position + 1
		}
	}
	return next, nil
}

// questionsOf must be called with the lock held.
func (s *store) questionsOf(testID string) []*models.Question {
	var out []*models.Question
	for _, q := range s.questions {
		if q.TestID == testID {
			out = append(out, q)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ===== ATTEMPTS =====

type attemptStore struct{ s *store }

func (a *attemptStore) Create(ctx context.Context, attempt *models.Attempt) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	if _, ok := a.s.attempts[attempt.ID]; ok {
		return fmt.Errorf("attempt %s: %w", attempt.ID, repositories.ErrConflict)
	}
	if attempt.Status == models.AttemptInProgress && a.s.activeAttempt(attempt.TestID, attempt.StudentID) != nil {
		return fmt.Errorf("student %s already has an attempt in progress: %w", attempt.StudentID, repositories.ErrConflict)
	}
	now := time.Now()
	attempt.CreatedAt, attempt.UpdatedAt = now, now
	if attempt.Answers == nil {
		attempt.Answers = models.AnswerSet{}
	}
	a.s.attempts[attempt.ID] = attempt.Clone()
	return nil
}

func (a *attemptStore) GetByID(ctx context.Context, id string) (*models.Attempt, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	attempt, ok := a.s.attempts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return attempt.Clone(), nil
}

func (a *attemptStore) GetActive(ctx context.Context, testID, studentID string) (*models.Attempt, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	attempt := a.s.activeAttempt(testID, studentID)
	if attempt == nil {
		return nil, repositories.ErrNotFound
	}
	return attempt.Clone(), nil
}

func (a *attemptStore) CountCompleted(ctx context.Context, testID, studentID string) (int64, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	var n int64
	for _, attempt := range a.s.attempts {
		if attempt.TestID == testID && attempt.StudentID == studentID &&
			(attempt.Status == models.AttemptSubmitted || attempt.Status == models.AttemptGraded) {
			n++
		}
	}
	return n, nil
}

func (a *attemptStore) SaveAnswer(ctx context.Context, id, questionID string, answer models.Answer, now time.Time) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	attempt, ok := a.s.attempts[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if !attempt.IsOpen(now) {
		return repositories.ErrConflict
	}
	if attempt.Answers == nil {
		attempt.Answers = models.AnswerSet{}
	}
	attempt.Answers[questionID] = answer.Clone()
	attempt.UpdatedAt = now
	return nil
}

func (a *attemptStore) CompleteSubmission(ctx context.Context, id string, answers models.AnswerSet, result *models.AttemptResult, submittedAt time.Time) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	attempt, ok := a.s.attempts[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if attempt.Status != models.AttemptInProgress {
		return repositories.ErrConflict
	}
	t := submittedAt
	attempt.Status = models.AttemptSubmitted
	attempt.SubmittedAt = &t
	attempt.Answers = answers.Clone()
	r := *result
	r.Breakdown = append([]models.QuestionBreakdown(nil), result.Breakdown...)
	attempt.Result = &r
	attempt.UpdatedAt = submittedAt
	return nil
}

func (a *attemptStore) MarkExpired(ctx context.Context, id string) (bool, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	attempt, ok := a.s.attempts[id]
	if !ok {
		return false, repositories.ErrNotFound
	}
	if attempt.Status != models.AttemptInProgress {
		return false, nil
	}
	attempt.Status = models.AttemptExpired
	attempt.UpdatedAt = time.Now()
	return true, nil
}

func (a *attemptStore) ListByTest(ctx context.Context, testID string, filters repositories.AttemptFilters) ([]*models.Attempt, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	var out []*models.Attempt
	for _, attempt := range a.s.attempts {
		if attempt.TestID != testID {
			continue
		}
		if filters.Status != nil && attempt.Status != *filters.Status {
			continue
		}
		if filters.StudentID != nil && attempt.StudentID != *filters.StudentID {
			continue
		}
		out = append(out, attempt.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return paginate(out, filters.Offset, filters.Limit), nil
}

// activeAttempt must be called with the lock held.
func (s *store) activeAttempt(testID, studentID string) *models.Attempt {
	for _, attempt := range s.attempts {
		if attempt.TestID == testID && attempt.StudentID == studentID && attempt.Status == models.AttemptInProgress {
			return attempt
		}
	}
	return nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

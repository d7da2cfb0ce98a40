package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/events"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
)

func TestAttemptService_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("creates then resumes", func(t *testing.T) {
		env := newTestEnv(t)
		test := env.publishedTest(t, "t1")

		first := env.start(t, test.ID, studentID)
		if first.Resumed {
			t.Error("first start reported as resumed")
		}
		if first.Attempt.Status != models.AttemptInProgress {
			t.Errorf("status = %s, want in_progress", first.Attempt.Status)
		}
		if first.Attempt.RemainingSeconds != 60 {
			t.Errorf("remaining = %d, want 60", first.Attempt.RemainingSeconds)
		}
		if len(first.Test.Questions) != 4 || first.Test.TotalPoints != 20 {
			t.Errorf("test view has %d questions worth %d", len(first.Test.Questions), first.Test.TotalPoints)
		}

		env.clock.Advance(10 * time.Second)
		second := env.start(t, test.ID, studentID)
		if !second.Resumed || second.Attempt.ID != first.Attempt.ID {
			t.Fatalf("second start = %s resumed=%v, want resume of %s", second.Attempt.ID, second.Resumed, first.Attempt.ID)
		}
		if second.Attempt.RemainingSeconds != 50 {
			t.Errorf("remaining after resume = %d, want 50", second.Attempt.RemainingSeconds)
		}
		if n := len(env.publisher.EventsOfType(events.EventAttemptStarted)); n != 1 {
			t.Errorf("started events = %d, want 1", n)
		}
	})

	t.Run("resume keeps recorded answers", func(t *testing.T) {
		env := newTestEnv(t)
		test := env.publishedTest(t, "t1")
		first := env.start(t, test.ID, studentID)

		err := env.attempts.RecordAnswer(ctx, first.Attempt.ID, &models.RecordAnswerRequest{
			QuestionID: "t1-q1",
			Answer:     models.SingleAnswer("b"),
		}, studentID)
		if err != nil {
			t.Fatalf("RecordAnswer() error = %v", err)
		}

		resumed := env.start(t, test.ID, studentID)
		if got := resumed.Attempt.Answers["t1-q1"].OptionID; got != "b" {
			t.Errorf("resumed answer = %q, want b", got)
		}
	})

	t.Run("hides correctness data", func(t *testing.T) {
		env := newTestEnv(t)
		test := env.publishedTest(t, "t1")
		resp := env.start(t, test.ID, studentID)
		for _, q := range resp.Test.Questions {
			if q.Type.IsChoice() && len(q.Options) == 0 {
				t.Errorf("%s: options missing from view", q.ID)
			}
		}
	})

	t.Run("unknown or unpublished test", func(t *testing.T) {
		env := newTestEnv(t)
		draft := env.publishedTest(t, "draft")
		if err := env.repo.Test().UpdateStatus(ctx, draft.ID, models.TestDraft); err != nil {
			t.Fatal(err)
		}

		for _, id := range []string{"missing", draft.ID} {
			_, err := env.attempts.Start(ctx, &models.StartAttemptRequest{TestID: id}, studentID)
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("Start(%s) error = %v, want ErrNotFound", id, err)
			}
		}
	})

	t.Run("missing test id", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.attempts.Start(ctx, &models.StartAttemptRequest{}, studentID)
		if !errors.Is(err, ErrValidationFailed) {
			t.Errorf("error = %v, want ErrValidationFailed", err)
		}
	})

	t.Run("single attempt after submit", func(t *testing.T) {
		env := newTestEnv(t)
		test := env.publishedTest(t, "t1")
		resp := env.start(t, test.ID, studentID)
		if _, err := env.attempts.Submit(ctx, &models.SubmitAttemptRequest{AttemptID: resp.Attempt.ID}, studentID); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}

		_, err := env.attempts.Start(ctx, &models.StartAttemptRequest{TestID: test.ID}, studentID)
		if !errors.Is(err, ErrTestAlreadyCompleted) {
			t.Errorf("error = %v, want ErrTestAlreadyCompleted", err)
		}
		// Another student is unaffected.
		env.start(t, test.ID, "student-2")
	})

	t.Run("max attempts policy", func(t *testing.T) {
		env := newTestEnv(t, WithAttemptPolicy(MaxAttemptsPolicy{Max: 2}))
		test := env.publishedTest(t, "t1")

		seen := map[string]bool{}
		for i := 0; i < 2; i++ {
			resp := env.start(t, test.ID, studentID)
			if seen[resp.Attempt.ID] {
				t.Fatalf("attempt %s reused", resp.Attempt.ID)
			}
			seen[resp.Attempt.ID] = true
			if _, err := env.attempts.Submit(ctx, &models.SubmitAttemptRequest{AttemptID: resp.Attempt.ID}, studentID); err != nil {
				t.Fatalf("Submit() error = %v", err)
			}
		}

		_, err := env.attempts.Start(ctx, &models.StartAttemptRequest{TestID: test.ID}, studentID)
		if !errors.Is(err, ErrTestAlreadyCompleted) {
			t.Errorf("third start error = %v, want ErrTestAlreadyCompleted", err)
		}
	})

	t.Run("stale attempt is expired and replaced", func(t *testing.T) {
		env := newTestEnv(t)
		test := env.publishedTest(t, "t1")
		first := env.start(t, test.ID, studentID)

		env.clock.Advance(61 * time.Second)
		second := env.start(t, test.ID, studentID)
		if second.Resumed || second.Attempt.ID == first.Attempt.ID {
			t.Fatalf("expected a fresh attempt, got %s resumed=%v", second.Attempt.ID, second.Resumed)
		}

		old, err := env.repo.Attempt().GetByID(ctx, first.Attempt.ID)
		if err != nil {
			t.Fatal(err)
		}
		if old.Status != models.AttemptExpired {
			t.Errorf("old attempt status = %s, want expired", old.Status)
		}
		if n := len(env.publisher.EventsOfType(events.EventAttemptExpired)); n != 1 {
			t.Errorf("expired events = %d, want 1", n)
		}
	})
}

func TestAttemptService_RecordAnswer(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	test := env.publishedTest(t, "t1")
	attemptID := env.start(t, test.ID, studentID).Attempt.ID

	tests := []struct {
		name    string
		student string
		req     *models.RecordAnswerRequest
		wantErr error
	}{
		{
			name:    "valid answer",
			student: studentID,
			req:     &models.RecordAnswerRequest{QuestionID: "t1-q3", Answer: models.ShortAnswer("Paris")},
		},
		{
			name:    "overwrite answer",
			student: studentID,
			req:     &models.RecordAnswerRequest{QuestionID: "t1-q3", Answer: models.ShortAnswer("Lyon")},
		},
		{
			name:    "unknown question",
			student: studentID,
			req:     &models.RecordAnswerRequest{QuestionID: "nope", Answer: models.ShortAnswer("x")},
			wantErr: ErrQuestionNotFound,
		},
		{
			name:    "malformed variant",
			student: studentID,
			req:     &models.RecordAnswerRequest{QuestionID: "t1-q1", Answer: models.Answer{Type: models.QuestionSingle, Text: "b"}},
			wantErr: ErrValidationFailed,
		},
		{
			name:    "missing question id",
			student: studentID,
			req:     &models.RecordAnswerRequest{Answer: models.SingleAnswer("a")},
			wantErr: ErrValidationFailed,
		},
		{
			name:    "other student",
			student: "student-2",
			req:     &models.RecordAnswerRequest{QuestionID: "t1-q1", Answer: models.SingleAnswer("a")},
			wantErr: ErrUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.attempts.RecordAnswer(ctx, attemptID, tt.req, tt.student)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("RecordAnswer() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("RecordAnswer() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	view, err := env.attempts.Get(ctx, attemptID, studentID)
	if err != nil {
		t.Fatal(err)
	}
	if got := view.Answers["t1-q3"].Text; got != "Lyon" {
		t.Errorf("latest answer = %q, want Lyon", got)
	}
	if len(view.Answers) != 1 {
		t.Errorf("answers = %v, want only t1-q3", view.Answers)
	}
}

func TestAttemptService_RecordAnswerAfterDeadline(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	test := env.publishedTest(t, "t1")
	attemptID := env.start(t, test.ID, studentID).Attempt.ID

	env.clock.Advance(61 * time.Second)
	err := env.attempts.RecordAnswer(ctx, attemptID, &models.RecordAnswerRequest{
		QuestionID: "t1-q1",
		Answer:     models.SingleAnswer("b"),
	}, studentID)
	if !errors.Is(err, ErrAttemptExpired) {
		t.Fatalf("error = %v, want ErrAttemptExpired", err)
	}

	// Rejecting a late answer does not change the attempt's status.
	stored, err := env.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.AttemptInProgress || len(stored.Answers) != 0 {
		t.Errorf("stored = %s with %d answers, want untouched", stored.Status, len(stored.Answers))
	}
}

func TestAttemptService_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("uses recorded answers when none are sent", func(t *testing.T) {
		env := newTestEnv(t)
		test := env.publishedTest(t, "t1")
		attemptID := env.start(t, test.ID, studentID).Attempt.ID

		for qid, a := range answersFor(test) {
			if qid == "t1-q3" {
				continue
			}
			if err := env.attempts.RecordAnswer(ctx, attemptID, &models.RecordAnswerRequest{QuestionID: qid, Answer: a}, studentID); err != nil {
				t.Fatal(err)
			}
		}

		result, err := env.attempts.Submit(ctx, &models.SubmitAttemptRequest{AttemptID: attemptID}, studentID)
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if result.Score != 16 || result.MaxScore != 20 || result.Percentage != 80 || !result.Passed {
			t.Errorf("result = %d/%d %v%% passed=%v, want 16/20 80%% passed", result.Score, result.MaxScore, result.Percentage, result.Passed)
		}

		view, err := env.attempts.Get(ctx, attemptID, studentID)
		if err != nil {
			t.Fatal(err)
		}
		if view.Status != models.AttemptGraded || view.SubmittedAt == nil {
			t.Errorf("status = %s submitted_at = %v", view.Status, view.SubmittedAt)
		}
		if view.RemainingSeconds != 0 {
			t.Errorf("remaining = %d after submit", view.RemainingSeconds)
		}

		submitted := env.publisher.EventsOfType(events.EventAttemptSubmitted)
		if len(submitted) != 1 {
			t.Fatalf("submitted events = %d, want 1", len(submitted))
		}
		var data events.AttemptEventData
		if err := submitted[0].DecodeData(&data); err != nil {
			t.Fatal(err)
		}
		if data.AttemptID != attemptID || data.Score == nil || *data.Score != 16 || data.AutoSubmitted {
			t.Errorf("event data = %+v", data)
		}
	})

	t.Run("sent answers replace recorded ones", func(t *testing.T) {
		env := newTestEnv(t)
		test := env.publishedTest(t, "t1")
		attemptID := env.start(t, test.ID, studentID).Attempt.ID

		if err := env.attempts.RecordAnswer(ctx, attemptID, &models.RecordAnswerRequest{QuestionID: "t1-q1", Answer: models.SingleAnswer("a")}, studentID); err != nil {
			t.Fatal(err)
		}
		result, err := env.attempts.Submit(ctx, &models.SubmitAttemptRequest{AttemptID: attemptID, Answers: answersFor(test)}, studentID)
		if err != nil {
			t.Fatal(err)
		}
		if result.Score != 20 {
			t.Errorf("score = %d, want 20", result.Score)
		}
	})

	t.Run("grades against the start snapshot", func(t *testing.T) {
		env := newTestEnv(t)
		test := env.publishedTest(t, "t1")
		attemptID := env.start(t, test.ID, studentID).Attempt.ID

		q, err := env.repo.Question().GetByID(ctx, "t1-q1")
		if err != nil {
			t.Fatal(err)
		}
		q.CorrectOptionIDs = []string{"c"}
		q.Points = 50
		if err := env.repo.Question().Update(ctx, q); err != nil {
			t.Fatal(err)
		}

		result, err := env.attempts.Submit(ctx, &models.SubmitAttemptRequest{AttemptID: attemptID, Answers: answersFor(test)}, studentID)
		if err != nil {
			t.Fatal(err)
		}
		if result.Score != 20 || result.MaxScore != 20 {
			t.Errorf("result = %d/%d, want 20/20 from the snapshot", result.Score, result.MaxScore)
		}
	})

	t.Run("malformed or foreign answers are rejected", func(t *testing.T) {
		cases := []struct {
			name    string
			answers func(test *models.Test) models.AnswerSet
		}{
			{
				name: "single with several selections",
				answers: func(test *models.Test) models.AnswerSet {
					return models.AnswerSet{test.ID + "-q1": {Type: models.QuestionSingle, OptionID: "b", OptionIDs: []string{"a", "b"}}}
				},
			},
			{
				name: "unknown answer type",
				answers: func(test *models.Test) models.AnswerSet {
					return models.AnswerSet{test.ID + "-q1": {Type: "bogus"}}
				},
			},
			{
				name: "question outside the attempt",
				answers: func(test *models.Test) models.AnswerSet {
					set := answersFor(test)
					set["ghost"] = models.SingleAnswer("a")
					return set
				},
			},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				env := newTestEnv(t)
				test := env.publishedTest(t, "t1")
				attemptID := env.start(t, test.ID, studentID).Attempt.ID

				_, err := env.attempts.Submit(ctx, &models.SubmitAttemptRequest{AttemptID: attemptID, Answers: tc.answers(test)}, studentID)
				if !errors.Is(err, ErrValidationFailed) {
					t.Fatalf("Submit() error = %v, want ErrValidationFailed", err)
				}

				view, err := env.attempts.Get(ctx, attemptID, studentID)
				if err != nil {
					t.Fatal(err)
				}
				if view.Status != models.AttemptInProgress {
					t.Errorf("status = %s, want in_progress after a rejected submit", view.Status)
				}
				if _, err := env.attempts.Submit(ctx, &models.SubmitAttemptRequest{AttemptID: attemptID, Answers: answersFor(test)}, studentID); err != nil {
					t.Errorf("corrected Submit() error = %v", err)
				}
			})
		}
	})

	t.Run("second submit is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		test := env.publishedTest(t, "t1")
		attemptID := env.start(t, test.ID, studentID).Attempt.ID

		req := &models.SubmitAttemptRequest{AttemptID: attemptID, Answers: answersFor(test)}
		first, err := env.attempts.Submit(ctx, req, studentID)
		if err != nil {
			t.Fatal(err)
		}
		_, err = env.attempts.Submit(ctx, &models.SubmitAttemptRequest{AttemptID: attemptID, Answers: models.AnswerSet{}}, studentID)
		if !errors.Is(err, ErrAttemptAlreadySubmitted) {
			t.Fatalf("error = %v, want ErrAttemptAlreadySubmitted", err)
		}

		stored, err := env.attempts.GetResult(ctx, attemptID, studentID)
		if err != nil {
			t.Fatal(err)
		}
		if stored.Score != first.Score {
			t.Errorf("stored score = %d, want first submission's %d", stored.Score, first.Score)
		}
	})

	t.Run("after deadline expires the attempt", func(t *testing.T) {
		env := newTestEnv(t)
		test := env.publishedTest(t, "t1")
		attemptID := env.start(t, test.ID, studentID).Attempt.ID

		env.clock.Advance(60*time.Second + time.Millisecond)
		_, err := env.attempts.Submit(ctx, &models.SubmitAttemptRequest{AttemptID: attemptID, Answers: answersFor(test)}, studentID)
		if !errors.Is(err, ErrAttemptExpired) {
			t.Fatalf("error = %v, want ErrAttemptExpired", err)
		}

		view, err := env.attempts.Get(ctx, attemptID, studentID)
		if err != nil {
			t.Fatal(err)
		}
		if view.Status != models.AttemptExpired {
			t.Errorf("status = %s, want expired", view.Status)
		}
		if _, err := env.attempts.GetResult(ctx, attemptID, studentID); !errors.Is(err, ErrResultNotReady) {
			t.Errorf("GetResult() error = %v, want ErrResultNotReady", err)
		}

		// Expired attempts do not use up the single attempt.
		next := env.start(t, test.ID, studentID)
		if next.Attempt.ID == attemptID {
			t.Error("expired attempt was resumed")
		}
	})

	t.Run("exactly at the deadline is accepted", func(t *testing.T) {
		env := newTestEnv(t)
		test := env.publishedTest(t, "t1")
		attemptID := env.start(t, test.ID, studentID).Attempt.ID

		env.clock.Advance(60 * time.Second)
		if _, err := env.attempts.Submit(ctx, &models.SubmitAttemptRequest{AttemptID: attemptID}, studentID); err != nil {
			t.Fatalf("Submit() at deadline error = %v", err)
		}
	})

	t.Run("other student cannot submit", func(t *testing.T) {
		env := newTestEnv(t)
		test := env.publishedTest(t, "t1")
		attemptID := env.start(t, test.ID, studentID).Attempt.ID

		_, err := env.attempts.Submit(ctx, &models.SubmitAttemptRequest{AttemptID: attemptID}, "student-2")
		var perr *PermissionError
		if !errors.As(err, &perr) || !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("error = %v, want PermissionError", err)
		}
	})

	t.Run("unknown attempt", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.attempts.Submit(ctx, &models.SubmitAttemptRequest{AttemptID: "missing"}, studentID)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestAttemptService_ConcurrentSubmit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	test := env.publishedTest(t, "t1")
	attemptID := env.start(t, test.ID, studentID).Attempt.ID

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(auto bool) {
			defer wg.Done()
			var err error
			if auto {
				_, err = env.attempts.SubmitRecorded(ctx, attemptID, studentID)
			} else {
				_, err = env.attempts.Submit(ctx, &models.SubmitAttemptRequest{AttemptID: attemptID, Answers: answersFor(test)}, studentID)
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrAttemptAlreadySubmitted):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i%2 == 0)
	}
	wg.Wait()

	if successes != 1 || rejected != workers-1 {
		t.Fatalf("successes = %d rejected = %d, want 1 and %d", successes, rejected, workers-1)
	}
	if n := len(env.publisher.EventsOfType(events.EventAttemptSubmitted)); n != 1 {
		t.Errorf("submitted events = %d, want 1", n)
	}
}

func TestAttemptService_ConcurrentStart(t *testing.T) {
	env := newTestEnv(t)
	test := env.publishedTest(t, "t1")

	const workers = 8
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := env.attempts.Start(context.Background(), &models.StartAttemptRequest{TestID: test.ID}, studentID)
			if err != nil {
				t.Errorf("Start() error = %v", err)
				return
			}
			ids[i] = resp.Attempt.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("concurrent starts produced different attempts: %v", ids)
		}
	}
}

func TestAttemptService_GetResult(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	test := env.publishedTest(t, "t1")
	attemptID := env.start(t, test.ID, studentID).Attempt.ID

	if _, err := env.attempts.GetResult(ctx, attemptID, studentID); !errors.Is(err, ErrResultNotReady) {
		t.Fatalf("before submit error = %v, want ErrResultNotReady", err)
	}
	if _, err := env.attempts.Submit(ctx, &models.SubmitAttemptRequest{AttemptID: attemptID, Answers: answersFor(test)}, studentID); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		user    string
		wantErr error
	}{
		{name: "owner", user: studentID},
		{name: "test author", user: teacherID},
		{name: "stranger", user: "student-2", wantErr: ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := env.attempts.GetResult(ctx, attemptID, tt.user)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if result.Score != 20 || len(result.Breakdown) != 4 {
				t.Errorf("result = %d points, %d items", result.Score, len(result.Breakdown))
			}
		})
	}
}

func TestAttemptService_TimeRemaining(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	test := env.publishedTest(t, "t1")
	attemptID := env.start(t, test.ID, studentID).Attempt.ID

	tests := []struct {
		advance time.Duration
		want    int
	}{
		{advance: 0, want: 60},
		{advance: 500 * time.Millisecond, want: 59},
		{advance: 15 * time.Second, want: 44},
		{advance: 50 * time.Second, want: 0},
	}
	for _, tt := range tests {
		env.clock.Advance(tt.advance)
		resp, err := env.attempts.TimeRemaining(ctx, attemptID, studentID)
		if err != nil {
			t.Fatal(err)
		}
		if resp.RemainingSeconds != tt.want {
			t.Errorf("after +%v remaining = %d, want %d", tt.advance, resp.RemainingSeconds, tt.want)
		}
	}
}

func TestAttemptService_Expire(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	test := env.publishedTest(t, "t1")
	attemptID := env.start(t, test.ID, studentID).Attempt.ID

	for i := 0; i < 2; i++ {
		if err := env.attempts.Expire(ctx, attemptID); err != nil {
			t.Fatalf("Expire() #%d error = %v", i+1, err)
		}
	}
	if n := len(env.publisher.EventsOfType(events.EventAttemptExpired)); n != 1 {
		t.Errorf("expired events = %d, want 1", n)
	}
	if _, err := env.attempts.SubmitRecorded(ctx, attemptID, studentID); !errors.Is(err, ErrAttemptExpired) {
		t.Errorf("submit after expire error = %v, want ErrAttemptExpired", err)
	}
	if err := env.attempts.Expire(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expire(missing) error = %v, want ErrNotFound", err)
	}
}

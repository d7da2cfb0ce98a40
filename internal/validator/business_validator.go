package validator

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
)

// registerBusinessRules registers custom tag validators
func (v *Validator) registerBusinessRules() {
	v.validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		return models.QuestionType(fl.Field().String()).Valid()
	})

	// Title validation (1-200 characters)
	v.validate.RegisterValidation("test_title", func(fl validator.FieldLevel) bool {
		title := strings.TrimSpace(fl.Field().String())
		return len(title) >= 1 && len(title) <= 200
	})

	// Time limit between 10 seconds and 24 hours
	v.validate.RegisterValidation("time_limit_sec", func(fl validator.FieldLevel) bool {
		sec := fl.Field().Int()
		return sec >= 10 && sec <= 24*60*60
	})

	v.validate.RegisterValidation("passing_percent", func(fl validator.FieldLevel) bool {
		p := fl.Field().Int()
		return p >= 0 && p <= 100
	})
}

// ValidateQuestion checks tag rules plus the correctness shape required by
// the question type: exactly one representation populated, and a single
// question with exactly one correct option.
func (v *Validator) ValidateQuestion(req *models.QuestionCreateRequest) error {
	var errs ValidationErrors
	if err := v.Validate(req); err != nil {
		errs = append(errs, err.(ValidationErrors)...)
	}
	errs = append(errs, questionShapeErrors(req)...)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateTestCreate validates the test and each inline question.
func (v *Validator) ValidateTestCreate(req *models.TestCreateRequest) error {
	var errs ValidationErrors
	if err := v.Validate(req); err != nil {
		errs = append(errs, err.(ValidationErrors)...)
	}
	for i := range req.Questions {
		for _, e := range questionShapeErrors(&req.Questions[i]) {
			e.Field = fmt.Sprintf("questions[%d].%s", i, e.Field)
			errs = append(errs, e)
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateAnswer checks the tagged variant: the tag is known and only the
// payload belonging to it is populated.
func (v *Validator) ValidateAnswer(a models.Answer) error {
	var errs ValidationErrors
	add := func(field, msg string, value interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: msg, Value: value, Rule: "answer_shape"})
	}

	if !a.Type.Valid() {
		add("type", "must be one of single, multiple, short, numeric", a.Type)
		return errs
	}

	switch a.Type {
	case models.QuestionSingle:
		if a.OptionID == "" {
			add("option_id", "is required for single answers", nil)
		}
		if len(a.OptionIDs) > 0 || a.Text != "" || a.Value != nil {
			add("answer", "single answers carry only option_id", nil)
		}
	case models.QuestionMultiple:
		if a.OptionID != "" || a.Text != "" || a.Value != nil {
			add("answer", "multiple answers carry only option_ids", nil)
		}
	case models.QuestionShort:
		if a.OptionID != "" || len(a.OptionIDs) > 0 || a.Value != nil {
			add("answer", "short answers carry only text", nil)
		}
		if len(a.Text) > 1000 {
			add("text", "must be at most 1000 characters", len(a.Text))
		}
	case models.QuestionNumeric:
		if a.OptionID != "" || len(a.OptionIDs) > 0 {
			add("answer", "numeric answers carry only value", nil)
		}
		if a.Value != nil && a.Text != "" {
			add("answer", "numeric answers carry either value or text", nil)
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateStatusTransition validates test status transitions
func (v *Validator) ValidateStatusTransition(current, next models.TestStatus, questionCount int) error {
	allowed := map[models.TestStatus][]models.TestStatus{
		models.TestDraft:     {models.TestPublished, models.TestArchived},
		models.TestPublished: {models.TestArchived},
		models.TestArchived:  {},
	}

	var errs ValidationErrors
	ok := false
	for _, s := range allowed[current] {
		if s == next {
			ok = true
			break
		}
	}
	if !ok {
		errs = append(errs, ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("cannot transition from %s to %s", current, next),
			Value:   next,
			Rule:    "status_transition",
		})
	}

	if next == models.TestPublished && questionCount == 0 {
		errs = append(errs, ValidationError{
			Field:   "questions",
			Message: "test must have at least one question before publishing",
			Value:   questionCount,
			Rule:    "business_logic",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func questionShapeErrors(req *models.QuestionCreateRequest) ValidationErrors {
	var errs ValidationErrors
	add := func(field, msg string, value interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: msg, Value: value, Rule: "question_shape"})
	}

	switch req.Type {
	case models.QuestionSingle, models.QuestionMultiple:
		if len(req.Options) == 0 {
			add("options", "choice questions need at least one option", nil)
		}
		seen := make(map[string]bool, len(req.Options))
		for i, o := range req.Options {
			if strings.TrimSpace(o.ID) == "" {
				add(fmt.Sprintf("options[%d].id", i), "is required", nil)
			}
			if strings.TrimSpace(o.Text) == "" {
				add(fmt.Sprintf("options[%d].text", i), "is required", nil)
			}
			if seen[o.ID] {
				add(fmt.Sprintf("options[%d].id", i), "duplicate option id", o.ID)
			}
			seen[o.ID] = true
		}

		if req.Type == models.QuestionSingle && len(req.CorrectOptionIDs) != 1 {
			add("correct_option_ids", "single questions need exactly one correct option", len(req.CorrectOptionIDs))
		}
		if req.Type == models.QuestionMultiple && len(req.CorrectOptionIDs) == 0 {
			add("correct_option_ids", "multiple questions need at least one correct option", nil)
		}
		dup := make(map[string]bool, len(req.CorrectOptionIDs))
		for _, id := range req.CorrectOptionIDs {
			if !seen[id] {
				add("correct_option_ids", "references an unknown option", id)
			}
			if dup[id] {
				add("correct_option_ids", "duplicate correct option", id)
			}
			dup[id] = true
		}
		if req.ExpectedText != "" || req.ExpectedNumber != nil {
			add("expected", "choice questions use correct_option_ids only", nil)
		}

	case models.QuestionShort:
		if strings.IndexFunc(req.ExpectedText, func(r rune) bool { return !unicode.IsSpace(r) }) < 0 {
			add("expected_text", "is required for short questions", nil)
		}
		if len(req.Options) > 0 || len(req.CorrectOptionIDs) > 0 || req.ExpectedNumber != nil {
			add("expected_text", "short questions use expected_text only", nil)
		}

	case models.QuestionNumeric:
		if req.ExpectedNumber == nil {
			add("expected_number", "is required for numeric questions", nil)
		} else if math.IsNaN(*req.ExpectedNumber) || math.IsInf(*req.ExpectedNumber, 0) {
			add("expected_number", "must be a finite number", nil)
		}
		if req.Tolerance < 0 || math.IsNaN(req.Tolerance) {
			add("tolerance", "must be zero or positive", req.Tolerance)
		}
		if len(req.Options) > 0 || len(req.CorrectOptionIDs) > 0 || req.ExpectedText != "" {
			add("expected_number", "numeric questions use expected_number and tolerance only", nil)
		}
	}
	return errs
}

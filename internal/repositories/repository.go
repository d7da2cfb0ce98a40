package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Repository groups every store the service needs.
type Repository interface {
	Test() TestRepository
	Question() QuestionRepository
	Attempt() AttemptRepository

	// WithTransaction runs fn against a repository bound to a single transaction.
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	Ping(ctx context.Context) error
	Close() error
}

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a conditional write loses to a concurrent
	// writer or a uniqueness rule rejects the row.
	ErrConflict = errors.New("write conflict")
)

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, gorm.ErrDuplicatedKey)
}

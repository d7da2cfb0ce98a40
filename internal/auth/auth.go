// Package auth resolves callers from Telegram Mini-App launch data, tokens
// this service issues, and Casdoor tokens.
package auth

import (
	"context"
	"errors"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrInvalidInitData = errors.New("invalid telegram init data")
	ErrInitDataExpired = errors.New("telegram init data expired")
)

// TokenVerifier turns a bearer token into a principal.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*models.Principal, error)
}

// Chain tries each verifier in order and returns the first success.
type Chain []TokenVerifier

func (c Chain) Verify(ctx context.Context, token string) (*models.Principal, error) {
	var errs []error
	for _, v := range c {
		p, err := v.Verify(ctx, token)
		if err == nil {
			return p, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, ErrInvalidToken
	}
	return nil, errors.Join(append([]error{ErrInvalidToken}, errs...)...)
}

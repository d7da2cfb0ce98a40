package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/config"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
)

// CasdoorVerifier accepts tokens issued by a Casdoor deployment, used by
// teachers signing in from the web dashboard.
type CasdoorVerifier struct {
	client *casdoorsdk.Client
}

func NewCasdoorVerifier(cfg config.CasdoorConfig) *CasdoorVerifier {
	client := casdoorsdk.NewClient(
		cfg.Endpoint,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.Cert,
		cfg.Organization,
		cfg.Application,
	)
	return &CasdoorVerifier{client: client}
}

func (v *CasdoorVerifier) Verify(ctx context.Context, token string) (*models.Principal, error) {
	claims, err := v.client.ParseJwtToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return principalFromClaims(claims)
}

func principalFromClaims(claims *casdoorsdk.Claims) (*models.Principal, error) {
	id := claims.User.Id
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}

	name := claims.User.DisplayName
	if name == "" {
		name = claims.User.Name
	}
	return &models.Principal{
		ID:       id,
		Name:     name,
		Username: claims.User.Name,
		Role:     roleFromCasdoorType(claims.User.Type),
	}, nil
}

// roleFromCasdoorType maps a Casdoor user type onto a role.
func roleFromCasdoorType(casdoorType string) models.UserRole {
	switch strings.ToLower(casdoorType) {
	case "admin", "administrator":
		return models.RoleAdmin
	case "teacher", "instructor", "educator":
		return models.RoleTeacher
	default:
		return models.RoleStudent
	}
}

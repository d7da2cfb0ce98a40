package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/auth"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/utils"
)

const (
	ctxPrincipal = "principal"
	ctxUserID    = "user_id"
	ctxUserRole  = "user_role"
)

// AuthMiddleware authenticates bearer tokens against a verifier chain.
type AuthMiddleware struct {
	verifier auth.TokenVerifier
	logger   utils.Logger
}

func NewAuthMiddleware(verifier auth.TokenVerifier, logger utils.Logger) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, logger: logger}
}

// Authenticate requires a valid token. Browsers cannot set headers on a
// WebSocket handshake, so the access_token query parameter is accepted too.
func (am *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: err.Error(),
				Code:    "unauthenticated",
			})
			return
		}

		principal, err := am.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			utils.GetLogger(c, am.logger).Debug("Token rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "Invalid token",
				Code:    "unauthenticated",
			})
			return
		}

		c.Set(ctxPrincipal, principal)
		c.Set(ctxUserID, principal.ID)
		c.Set(ctxUserRole, principal.Role)
		c.Next()
	}
}

// RequireRole lets admins and the listed roles through.
func (am *AuthMiddleware) RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := GetPrincipal(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "User not authenticated",
				Code:    "unauthenticated",
			})
			return
		}
		if p.Role != models.RoleAdmin && !slices.Contains(roles, p.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Message: fmt.Sprintf("insufficient permissions, required role: %v", roles),
				Code:    "forbidden",
			})
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if t := c.Query("access_token"); t != "" {
			return t, nil
		}
		return "", errors.New("authorization header missing")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}

// GetPrincipal extracts the authenticated caller from the gin context.
func GetPrincipal(c *gin.Context) (*models.Principal, error) {
	v, exists := c.Get(ctxPrincipal)
	if !exists {
		return nil, errors.New("principal not found in context")
	}
	p, ok := v.(*models.Principal)
	if !ok {
		return nil, errors.New("invalid principal type in context")
	}
	return p, nil
}

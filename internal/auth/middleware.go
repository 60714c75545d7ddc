package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/MaysHroub/cst-management-info-system/internal/domain"
	apperrors "github.com/MaysHroub/cst-management-info-system/pkg/util/errorutil"
)

const actorKey = "auth_actor"

// AnonymousActor acts for callers without a token when authentication is optional.
var AnonymousActor = domain.SystemActor("anonymous")

// AuthMiddleware resolves the bearer token into the acting principal.
type AuthMiddleware struct {
	tokens   *TokenManager
	required bool
}

// NewAuthMiddleware constructs middleware. With required unset, requests
// without an Authorization header proceed as AnonymousActor.
func NewAuthMiddleware(tokens *TokenManager, required bool) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, required: required}
}

// Handle identifies the caller. A presented token must always be valid.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		if m.required {
			return apperrors.NewUnauthorized("missing authorization header")
		}
		c.Locals(actorKey, AnonymousActor)
		return c.Next()
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(actorKey, claims.Actor())
	return c.Next()
}

// ActorFromContext returns the caller resolved by the middleware, or
// AnonymousActor when none was set.
func ActorFromContext(c *fiber.Ctx) domain.Actor {
	if actor, ok := c.Locals(actorKey).(domain.Actor); ok {
		return actor
	}
	return AnonymousActor
}

package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/MaysHroub/cst-management-info-system/internal/domain"
	apperrors "github.com/MaysHroub/cst-management-info-system/pkg/util/errorutil"
)

// RequireActor ensures the caller is one of the allowed actor types. System
// actors pass every check.
func RequireActor(allowed ...domain.ActorType) fiber.Handler {
	allowedSet := make(map[domain.ActorType]struct{}, len(allowed)+1)
	for _, t := range allowed {
		allowedSet[t] = struct{}{}
	}
	allowedSet[domain.ActorSystem] = struct{}{}

	return func(c *fiber.Ctx) error {
		actor := ActorFromContext(c)
		if _, ok := allowedSet[actor.Type]; !ok {
			return apperrors.NewForbidden("actor type " + string(actor.Type) + " may not perform this action")
		}
		return c.Next()
	}
}

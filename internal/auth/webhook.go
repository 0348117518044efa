package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

// WebhookAuth verifies HS256 bearer tokens signed with the shared n8n secret.
func WebhookAuth(verifier *TokenManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return apperrors.NewUnauthorized("missing webhook token")
		}
		if _, err := verifier.ParseToken(strings.TrimSpace(token)); err != nil {
			return apperrors.NewUnauthorized("invalid webhook token")
		}
		return c.Next()
	}
}

package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"

	"url2pdf/internal/domain"
)

const (
	APIKeyHeader = "X-API-Key"
	// APIKeyLocal is the c.Locals key holding an authenticated API key.
	APIKeyLocal = "api_key"
)

// TokenValidator answers whether API keys are known.
type TokenValidator interface {
	Ready() bool
	Valid(token string) bool
}

// APIKey authenticates requests that carry an X-API-Key header. Requests
// without the header pass through anonymously.
func APIKey(tokens TokenValidator) fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup:  "header:" + APIKeyHeader,
		ContextKey: APIKeyLocal,
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			if !tokens.Ready() {
				return false, domain.ErrTokenStoreNotReady
			}
			if !tokens.Valid(key) {
				return false, domain.ErrInvalidAPIKey
			}
			return true, nil
		},
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || c.Get(APIKeyHeader) == ""
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Keyauth can call ErrorHandler with a nil error.
			status := fiber.StatusUnauthorized
			if err == nil {
				err = fiber.ErrUnauthorized
			}
			if errors.Is(err, domain.ErrTokenStoreNotReady) {
				status = fiber.StatusServiceUnavailable
			}
			return c.Status(status).JSON(fiber.Map{"error": err.Error()})
		},
	})
}

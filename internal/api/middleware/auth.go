package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/studymate/studymate-backend/internal/api/models"
	"github.com/studymate/studymate-backend/internal/auth"
)

// UserContextKey is the locals key holding *models.UserContext
const UserContextKey = "user_context"

// AuthRequired creates a middleware that requires a valid access token
func AuthRequired(validator *auth.TokenValidator) fiber.Handler {
	return authenticate(validator, false)
}

// OptionalAuth lets guests through and attaches the user when a valid
// token is present
func OptionalAuth(validator *auth.TokenValidator) fiber.Handler {
	return authenticate(validator, true)
}

func authenticate(validator *auth.TokenValidator, optional bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := auth.ExtractTokenFromBearer(c.Get(fiber.HeaderAuthorization))
		// browsers cannot set headers on WebSocket upgrades
		if token == "" {
			token = c.Query("token")
		}

		if token == "" || !validator.Enabled() {
			if optional {
				return c.Next()
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		claims, err := validator.Validate(token)
		if err == nil {
			var userID uuid.UUID
			if userID, err = claims.UserID(); err == nil {
				storeUserContext(c, &models.UserContext{UserID: userID, Email: claims.Email, Role: claims.Role})
				return c.Next()
			}
		}

		if optional {
			return c.Next()
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
		})
	}
}

func storeUserContext(c *fiber.Ctx, user *models.UserContext) {
	c.Locals("user_id", user.UserID.String())
	c.Locals("user_email", user.Email)
	c.Locals(UserContextKey, user)
}

// GetUserContext retrieves the user context from the fiber context
func GetUserContext(c *fiber.Ctx) *models.UserContext {
	return UserContextFrom(c.Locals(UserContextKey))
}

// UserContextFrom converts a locals value; websocket handlers pass
// conn.Locals(UserContextKey)
func UserContextFrom(v interface{}) *models.UserContext {
	if userContext, ok := v.(*models.UserContext); ok {
		return userContext
	}
	return nil
}

// GetUserID retrieves the user ID from the fiber context
func GetUserID(c *fiber.Ctx) (uuid.UUID, error) {
	if user := GetUserContext(c); user != nil {
		return user.UserID, nil
	}
	return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "User not authenticated")
}

// IsAuthenticated checks if the request is authenticated
func IsAuthenticated(c *fiber.Ctx) bool {
	return GetUserContext(c) != nil
}

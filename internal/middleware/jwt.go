package middleware

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/mirelo-edu/coursegate-api/internal/utils"
)

// JWTProtected validates the bearer token issued by the LMS and binds the
// learner identity and platform role to the request.
func JWTProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authorization := c.Get("Authorization")
		if authorization == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}

		const bearer = "Bearer "
		if !strings.HasPrefix(strings.ToLower(authorization), strings.ToLower(bearer)) {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}

		tokenString := strings.TrimSpace(authorization[len(bearer):])
		if tokenString == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token claims")
		}

		if userID := userIDFromClaims(claims); userID != nil {
			c.Locals("user_id", *userID)
		}
		if role := roleFromClaims(claims); role != "" {
			c.Locals("user_role", role)
		}

		return c.Next()
	}
}

func userIDFromClaims(claims jwt.MapClaims) *uint {
	for _, key := range []string{"sub", "user_id"} {
		if value, ok := claims[key]; ok {
			if normalized, err := normalizeUserID(value); err == nil {
				return &normalized
			}
		}
	}

	return nil
}

func normalizeUserID(value interface{}) (uint, error) {
	switch v := value.(type) {
	case float64:
		if v < 0 {
			return 0, fmt.Errorf("invalid subject")
		}
		return uint(v), nil
	case string:
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, err
		}
		return uint(parsed), nil
	case int:
		if v < 0 {
			return 0, fmt.Errorf("invalid subject")
		}
		return uint(v), nil
	default:
		return 0, fmt.Errorf("unsupported subject type")
	}
}

// roleFromClaims maps LMS token claims onto the platform roles. A bare
// "staff": true claim is accepted alongside the role claims because older
// LMS tokens carry only the boolean.
func roleFromClaims(claims jwt.MapClaims) string {
	if isStaff, ok := claims["staff"].(bool); ok && isStaff {
		return RoleStaff
	}

	for _, key := range []string{"role", "roles"} {
		if value, ok := claims[key]; ok {
			if role := pickKnownRole(value); role != "" {
				return role
			}
		}
	}
	return ""
}

// pickKnownRole prefers the most privileged platform role when the token
// carries several, so an instructor with a learner enrollment is not
// demoted by claim ordering.
func pickKnownRole(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case []interface{}:
		best := ""
		bestRank := len(rolePrivilegeOrder)
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				continue
			}
			role := strings.ToLower(strings.TrimSpace(str))
			if role == "" {
				continue
			}
			rank, known := rolePrivilegeOrder[role]
			if !known {
				rank = len(rolePrivilegeOrder) - 1
			}
			if best == "" || rank < bestRank {
				best = role
				bestRank = rank
			}
		}
		return best
	default:
		return ""
	}
}

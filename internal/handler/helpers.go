package handler

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/mirelo-edu/coursegate-api/internal/middleware"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func userIDFromContext(c *fiber.Ctx) uint {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
		if id, ok := v.(int); ok {
			if id < 0 {
				return 0
			}
			return uint(id)
		}
	}
	return 0
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}

// courseIDParam decodes the course id path segment. Course ids carry
// characters like ':' and '+' and arrive percent-encoded.
func courseIDParam(c *fiber.Ctx) (structure.CourseID, error) {
	raw := c.Params("courseID")
	if raw == "" {
		return "", errors.New("course id required")
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", errors.New("invalid course id")
	}
	return structure.CourseID(decoded), nil
}

func usageKeyParam(c *fiber.Ctx, name string) (structure.BlockID, error) {
	raw := c.Params(name)
	if raw == "" {
		return "", errors.New("usage key required")
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", errors.New("invalid usage key")
	}
	return structure.BlockID(decoded), nil
}

func parseQueryUint(c *fiber.Ctx, key string) (uint, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(parsed), nil
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

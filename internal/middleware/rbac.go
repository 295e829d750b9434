package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/mirelo-edu/coursegate-api/internal/utils"
)

// Platform roles recognised by the API. Course-scoped staff access on top
// of these is resolved per request by the role service.
const (
	RoleAdmin      = "admin"
	RoleStaff      = "staff"
	RoleInstructor = "instructor"
	RoleLearner    = "learner"
)

// rolePrivilegeOrder ranks roles from most to least privileged.
var rolePrivilegeOrder = map[string]int{
	RoleAdmin:      0,
	RoleStaff:      1,
	RoleInstructor: 2,
	RoleLearner:    3,
}

// RequireStaff restricts a route to the roles allowed to author gating
// policy and mutate grades.
func RequireStaff() fiber.Handler {
	return RequireRole(RoleAdmin, RoleStaff, RoleInstructor)
}

// RequireRole ensures that the authenticated user possesses one of the allowed roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		normalized := strings.ToLower(strings.TrimSpace(role))
		if normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		roleValue := c.Locals("user_role")
		role := normalizeRoleValue(roleValue)
		if _, ok := allowed[role]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}

func normalizeRoleValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(v.String()))
	default:
		if value == nil {
			return ""
		}
		return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", value)))
	}
}

package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v3"
)

const (
	// Memory permissions
	ReadMemoryPermission   = "read:memory"
	WriteMemoryPermission  = "write:memory"
	UpdateMemoryPermission = "update:memory"
	DeleteMemoryPermission = "delete:memory"

	// Trust configuration permissions
	ReadTrustPermission   = "read:trust"
	ManageTrustPermission = "manage:trust"

	// Publication permissions
	PublishMemoryPermission        = "publish:memory"
	ModeratePublicationsPermission = "moderate:publications"

	// Admin permissions (for backward compatibility)
	AdminPermission   = "admin"
	ManagerPermission = "manager"
)

// PermissionRequired checks the gateway-injected X-User-Permissions header
// for the given permission. Admin and manager grants pass everything.
func PermissionRequired(requiredPermission string) fiber.Handler {
	return func(c fiber.Ctx) error {
		userPermissions := c.Get("X-User-Permissions")
		hasPermission := false
		if userPermissions != "" {
			permissions := strings.Split(userPermissions, ",")

			for _, perm := range permissions {
				if perm == requiredPermission || strings.HasPrefix(perm, "admin") || strings.HasPrefix(perm, "manager") {
					hasPermission = true
					break
				}
			}
		}

		if !hasPermission {
			log.Printf("Permission %s denied for %s %s", requiredPermission, c.Method(), c.OriginalURL())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}
		return c.Next()
	}
}

// UserRequired rejects requests that arrive without a gateway identity.
func UserRequired() fiber.Handler {
	return func(c fiber.Ctx) error {
		if c.Get("X-User-ID") == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}
		return c.Next()
	}
}

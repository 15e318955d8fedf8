package middleware

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/admin"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/domain"
)

const (
	// LocalAdminClaims is the key to retrieve the validated claims from context
	LocalAdminClaims = "admin_claims"
	// LocalAdminUser is the key to retrieve admin user from context
	LocalAdminUser = "admin_user"
	// LocalAdminRole is the key to retrieve admin role from context
	LocalAdminRole = "admin_role"
	// LocalAccessToken holds the raw bearer token, forwarded to the configuration service
	LocalAccessToken = "access_token"
)

// AdminAuthDependencies contains dependencies for admin authentication
type AdminAuthDependencies struct {
	JWTService *admin.JWTService
	Logger     *slog.Logger
}

// AdminAuth validates the JWT from the Authorization header and stores the
// claims in the request context.
func AdminAuth(deps AdminAuthDependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c)
		if token == "" {
			deps.Logger.Debug("missing authorization header")
			return domain.ErrUnauthorized
		}

		claims, err := deps.JWTService.ValidateToken(token)
		if err != nil {
			deps.Logger.Warn("invalid JWT token", "error", err, "path", c.Path())
			return domain.ErrUnauthorized
		}

		c.Locals(LocalAdminClaims, claims)
		c.Locals(LocalAdminUser, claims.UserID)
		c.Locals(LocalAdminRole, claims.Role)
		c.Locals(LocalAccessToken, token)

		deps.Logger.Debug("admin authenticated",
			"user_id", claims.UserID,
			"email", claims.Email,
			"role", claims.Role,
		)

		return c.Next()
	}
}

// RequireMutation rejects roles that are read-only. Chain after AdminAuth.
func RequireMutation() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := GetAdminClaims(c)
		if err != nil {
			return err
		}
		if !claims.CanMutate() {
			return domain.ErrForbidden
		}
		return c.Next()
	}
}

func extractBearerToken(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if auth == "" {
		// Browsers cannot set headers on a websocket handshake
		if strings.EqualFold(c.Get(fiber.HeaderUpgrade), "websocket") {
			return c.Query("access_token")
		}
		return ""
	}

	// Expected format: "Bearer <token>"
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// GetAdminClaims retrieves the validated claims from context
func GetAdminClaims(c *fiber.Ctx) (*admin.AdminClaims, error) {
	claims, ok := c.Locals(LocalAdminClaims).(*admin.AdminClaims)
	if !ok || claims == nil {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}

// GetAdminUserID retrieves admin user ID from context
func GetAdminUserID(c *fiber.Ctx) (uuid.UUID, error) {
	userID, ok := c.Locals(LocalAdminUser).(uuid.UUID)
	if !ok {
		return uuid.Nil, domain.ErrUnauthorized
	}
	return userID, nil
}

// GetAdminRole retrieves admin role from context
func GetAdminRole(c *fiber.Ctx) (string, error) {
	role, ok := c.Locals(LocalAdminRole).(string)
	if !ok {
		return "", domain.ErrUnauthorized
	}
	return role, nil
}

// GetActor returns the identity recorded on created_by / updated_by.
func GetActor(c *fiber.Ctx) (string, error) {
	claims, err := GetAdminClaims(c)
	if err != nil {
		return "", err
	}
	return claims.Actor(), nil
}

// GetAccessToken returns the bearer token the request was authenticated with.
func GetAccessToken(c *fiber.Ctx) string {
	token, _ := c.Locals(LocalAccessToken).(string)
	return token
}

package middleware

import (
	"log/slog"
	"runtime/debug"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/admin"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/domain"
)

// Recover turns a panic in a handler into the standard 500 envelope. Behind
// AdminAuth the log line also names the acting operator.
func Recover(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			requestID, _ := c.Locals("requestid").(string)
			attrs := []any{
				slog.Any("panic", r),
				slog.String("request_id", requestID),
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
			}
			if claims, ok := c.Locals(LocalAdminClaims).(*admin.AdminClaims); ok && claims != nil {
				attrs = append(attrs, slog.String("actor", claims.Actor()))
			}
			attrs = append(attrs, slog.String("stack", string(debug.Stack())))
			logger.Error("panic recovered", attrs...)

			_ = c.Status(domain.ErrInternal.StatusCode).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    domain.ErrInternal.Code,
					"message": domain.ErrInternal.Message,
				},
			})
		}()
		return c.Next()
	}
}

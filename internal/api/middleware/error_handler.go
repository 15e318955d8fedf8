package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/domain"
)

func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		// Check if it's a Fiber error
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    "HTTP_ERROR",
					"message": fiberErr.Message,
				},
			})
		}

		// Field errors go out as a map, never as a single message
		var valErr *domain.ValidationError
		if errors.As(err, &valErr) {
			return c.Status(domain.ErrValidationFailed.StatusCode).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    domain.ErrValidationFailed.Code,
					"message": domain.ErrValidationFailed.Message,
					"fields":  valErr.Fields,
				},
			})
		}

		// Failures reported by the configuration service keep its message
		var remoteErr *domain.RemoteError
		if errors.As(err, &remoteErr) {
			status := remoteErr.StatusCode
			if status < 400 {
				status = fiber.StatusBadGateway
			}
			code := remoteErr.Code
			if code == "" {
				code = "REMOTE_ERROR"
			}

			body := fiber.Map{
				"code":    code,
				"message": remoteErr.Message,
			}
			if len(remoteErr.Fields) > 0 {
				body["fields"] = remoteErr.Fields
			}

			logger.Warn("configuration service error",
				slog.Int("status", remoteErr.StatusCode),
				slog.String("code", code),
				slog.String("message", remoteErr.Message),
				slog.String("path", c.Path()),
			)
			return c.Status(status).JSON(fiber.Map{"error": body})
		}

		// Check if it's our AppError
		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			// Log internal errors
			if appErr.StatusCode >= 500 {
				logger.Error("internal error",
					slog.String("code", appErr.Code),
					slog.String("message", appErr.Message),
					slog.Any("error", appErr.Err),
				)
			}

			return c.Status(appErr.StatusCode).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    appErr.Code,
					"message": appErr.Message,
				},
			})
		}

		// Unknown error - log and return generic message
		logger.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Path()),
		)

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "INTERNAL_ERROR",
				"message": "An unexpected error occurred",
			},
		})
	}
}

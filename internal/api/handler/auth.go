package handler

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/admin"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/domain"
)

type AuthHandler struct {
	jwt    *admin.JWTService
	logger *slog.Logger
}

func NewAuthHandler(jwt *admin.JWTService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{jwt: jwt, logger: logger}
}

type TokenResponse struct {
	Token string `json:"token"`
}

type MeResponse struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role"`
	CanMutate bool   `json:"can_mutate"`
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	claims, err := middleware.GetAdminClaims(c)
	if err != nil {
		return err
	}
	return c.JSON(MeResponse{
		UserID:    claims.UserID.String(),
		Email:     claims.Email,
		Role:      claims.Role,
		CanMutate: claims.CanMutate(),
	})
}

// Refresh handles POST /auth/refresh
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	token, err := h.jwt.RefreshToken(middleware.GetAccessToken(c))
	if err != nil {
		h.logger.Debug("token refresh rejected", "error", err)
		return domain.ErrUnauthorized
	}
	return c.JSON(TokenResponse{Token: token})
}

package handler

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/domain"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/repository"
)

type ConfigServiceInterface interface {
	Get(ctx context.Context, t domain.ConfigType, clientID int64) (domain.Config, error)
	List(ctx context.Context, f repository.ConfigFilter) ([]domain.Config, error)
	Validate(params domain.Params) error
	Create(ctx context.Context, actor string, clientID int64, params domain.Params) (domain.Config, error)
	Update(ctx context.Context, actor string, clientID int64, params domain.Params) (domain.Config, error)
	Delete(ctx context.Context, actor string, t domain.ConfigType, clientID int64) error
}

type ConfigHandler struct {
	service ConfigServiceInterface
	logger  *slog.Logger
}

func NewConfigHandler(service ConfigServiceInterface, logger *slog.Logger) *ConfigHandler {
	return &ConfigHandler{
		service: service,
		logger:  logger,
	}
}

type ConfigListResponse struct {
	Configs []domain.Config `json:"configs"`
	Total   int             `json:"total"`
}

type ValidateResponse struct {
	Valid bool `json:"valid"`
}

// List handles GET /v1/configs?client_id=&type=
func (h *ConfigHandler) List(c *fiber.Ctx) error {
	var f repository.ConfigFilter

	if raw := c.Query("client_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid client_id")
		}
		f.ClientID = id
	}
	if raw := c.Query("type"); raw != "" {
		t, err := domain.ParseConfigType(raw)
		if err != nil {
			return err
		}
		f.Type = t
	}

	configs, err := h.service.List(c.UserContext(), f)
	if err != nil {
		return err
	}

	return c.JSON(ConfigListResponse{Configs: configs, Total: len(configs)})
}

// Get handles GET /v1/configs/:type/:clientId
func (h *ConfigHandler) Get(c *fiber.Ctx) error {
	t, clientID, err := h.address(c)
	if err != nil {
		return err
	}

	cfg, err := h.service.Get(c.UserContext(), t, clientID)
	if err != nil {
		return err
	}

	return c.JSON(cfg)
}

// Validate handles POST /v1/configs/:type/validate
func (h *ConfigHandler) Validate(c *fiber.Ctx) error {
	t, err := configTypeParam(c)
	if err != nil {
		return err
	}

	params, err := h.decode(c, t)
	if err != nil {
		return err
	}

	if err := h.service.Validate(params); err != nil {
		return err
	}

	return c.JSON(ValidateResponse{Valid: true})
}

// Create handles POST /v1/configs/:type/:clientId
func (h *ConfigHandler) Create(c *fiber.Ctx) error {
	t, clientID, err := h.address(c)
	if err != nil {
		return err
	}

	params, err := h.decode(c, t)
	if err != nil {
		return err
	}

	actor, err := middleware.GetActor(c)
	if err != nil {
		return err
	}

	cfg, err := h.service.Create(c.UserContext(), actor, clientID, params)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(cfg)
}

// Update handles PUT /v1/configs/:type/:clientId
func (h *ConfigHandler) Update(c *fiber.Ctx) error {
	t, clientID, err := h.address(c)
	if err != nil {
		return err
	}

	params, err := h.decode(c, t)
	if err != nil {
		return err
	}

	actor, err := middleware.GetActor(c)
	if err != nil {
		return err
	}

	cfg, err := h.service.Update(c.UserContext(), actor, clientID, params)
	if err != nil {
		return err
	}

	return c.JSON(cfg)
}

// Delete handles DELETE /v1/configs/:type/:clientId
func (h *ConfigHandler) Delete(c *fiber.Ctx) error {
	t, clientID, err := h.address(c)
	if err != nil {
		return err
	}

	actor, err := middleware.GetActor(c)
	if err != nil {
		return err
	}

	if err := h.service.Delete(c.UserContext(), actor, t, clientID); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ConfigHandler) address(c *fiber.Ctx) (domain.ConfigType, int64, error) {
	t, err := configTypeParam(c)
	if err != nil {
		return "", 0, err
	}
	clientID, err := int64Param(c, "clientId")
	if err != nil {
		return "", 0, err
	}
	return t, clientID, nil
}

// The route decides the variant; the body shape is never used to infer it.
func (h *ConfigHandler) decode(c *fiber.Ctx, t domain.ConfigType) (domain.Params, error) {
	params, err := domain.DecodeParams(t, c.Body())
	if err != nil {
		h.logger.Debug("invalid request body", "error", err, "type", t)
		if ve := domain.FieldTypeError(err); ve != nil {
			return nil, ve
		}
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return params, nil
}

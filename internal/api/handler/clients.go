package handler

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/domain"
)

type ClientServiceInterface interface {
	List(ctx context.Context) ([]domain.Client, error)
	Get(ctx context.Context, id int64) (*domain.Client, error)
	Create(ctx context.Context, actor, name string) (*domain.Client, error)
	SetStatus(ctx context.Context, actor string, id int64, status domain.ClientStatus) (*domain.Client, error)
}

type ClientHandler struct {
	service ClientServiceInterface
	logger  *slog.Logger
}

func NewClientHandler(service ClientServiceInterface, logger *slog.Logger) *ClientHandler {
	return &ClientHandler{
		service: service,
		logger:  logger,
	}
}

type ClientListResponse struct {
	Clients []domain.Client `json:"clients"`
	Total   int             `json:"total"`
}

type CreateClientRequest struct {
	Name string `json:"name"`
}

type ClientStatusRequest struct {
	Status domain.ClientStatus `json:"status"`
}

// List handles GET /v1/clients
func (h *ClientHandler) List(c *fiber.Ctx) error {
	clients, err := h.service.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(ClientListResponse{Clients: clients, Total: len(clients)})
}

// Get handles GET /v1/clients/:id
func (h *ClientHandler) Get(c *fiber.Ctx) error {
	id, err := int64Param(c, "id")
	if err != nil {
		return err
	}

	client, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(client)
}

// Create handles POST /v1/clients
func (h *ClientHandler) Create(c *fiber.Ctx) error {
	var req CreateClientRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Debug("invalid request body", "error", err)
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	actor, err := middleware.GetActor(c)
	if err != nil {
		return err
	}

	client, err := h.service.Create(c.UserContext(), actor, req.Name)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(client)
}

// SetStatus handles PUT /v1/clients/:id/status
func (h *ClientHandler) SetStatus(c *fiber.Ctx) error {
	id, err := int64Param(c, "id")
	if err != nil {
		return err
	}

	var req ClientStatusRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Debug("invalid request body", "error", err)
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	actor, err := middleware.GetActor(c)
	if err != nil {
		return err
	}

	client, err := h.service.SetStatus(c.UserContext(), actor, id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(client)
}

// Package console serves the verification configuration console: the list,
// detail and form views plus the guarded create, update, delete and client
// status operations.
package console

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/domain"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/lifecycle"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/presentation"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/registry"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/transport"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/validation"
)

// Manager is the subset of *lifecycle.Manager the handlers use.
type Manager interface {
	Collection() *registry.Collection
	Refresh(ctx context.Context, forceRefresh bool) (*registry.Collection, error)
	Validate(t domain.ConfigType, f validation.Fields) validation.Errors
	Create(ctx context.Context, t domain.ConfigType, clientID int64, f validation.Fields) (domain.Config, error)
	Update(ctx context.Context, t domain.ConfigType, clientID int64, f validation.Fields) (domain.Config, error)
	RequestDelete(t domain.ConfigType, clientID int64) (lifecycle.Intent, error)
	RequestClientStatus(clientID int64, status domain.ClientStatus) (lifecycle.Intent, error)
	Confirm(ctx context.Context, token string) (lifecycle.Notice, error)
	View(id uuid.UUID) (presentation.Detail, error)
	List(f registry.Filter) []lifecycle.Row
	Form(t domain.ConfigType, clientID int64) (validation.Fields, bool, error)
}

type Handler struct {
	manager Manager
	logger  *slog.Logger
}

func NewHandler(manager Manager, logger *slog.Logger) *Handler {
	return &Handler{
		manager: manager,
		logger:  logger.With("component", "console"),
	}
}

type ListResponse struct {
	Rows     []lifecycle.Row     `json:"rows"`
	Total    int                 `json:"total"`
	LoadedAt time.Time           `json:"loaded_at"`
	Report   registry.LoadReport `json:"report"`
}

type ClientsResponse struct {
	Clients []domain.Client `json:"clients"`
	Total   int             `json:"total"`
}

type ValidateResponse struct {
	Valid  bool              `json:"valid"`
	Errors validation.Errors `json:"errors,omitempty"`
}

type ConfigResponse struct {
	Config  domain.Config        `json:"config"`
	Summary presentation.Summary `json:"summary"`
}

type FormResponse struct {
	Type     domain.ConfigType `json:"type"`
	ClientID int64             `json:"client_id"`
	Exists   bool              `json:"exists"`
	Fields   validation.Fields `json:"fields"`
}

type StatusIntentRequest struct {
	Status domain.ClientStatus `json:"status"`
}

type RefreshResponse struct {
	Total    int                 `json:"total"`
	LoadedAt time.Time           `json:"loaded_at"`
	Report   registry.LoadReport `json:"report"`
}

// List handles GET /console/configs?client_id=&type=&q=
func (h *Handler) List(c *fiber.Ctx) error {
	f := registry.Filter{Query: c.Query("q")}

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

	rows := h.manager.List(f)
	col := h.manager.Collection()

	return c.JSON(ListResponse{
		Rows:     rows,
		Total:    len(rows),
		LoadedAt: col.LoadedAt(),
		Report:   col.Report(),
	})
}

// View handles GET /console/configs/:id
func (h *Handler) View(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid configuration ID format")
	}

	detail, err := h.manager.View(id)
	if err != nil {
		return err
	}
	return c.JSON(detail)
}

// Clients handles GET /console/clients
func (h *Handler) Clients(c *fiber.Ctx) error {
	clients := h.manager.Collection().Clients()
	return c.JSON(ClientsResponse{Clients: clients, Total: len(clients)})
}

// Validate handles POST /console/configs/:type/validate. It never calls
// the configuration service.
func (h *Handler) Validate(c *fiber.Ctx) error {
	t, err := domain.ParseConfigType(c.Params("type"))
	if err != nil {
		return err
	}

	f, err := h.fields(c)
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			return c.JSON(ValidateResponse{Valid: false, Errors: validation.Errors(ve.Fields)})
		}
		return err
	}

	errs := h.manager.Validate(t, f)
	return c.JSON(ValidateResponse{Valid: errs.Empty(), Errors: errs})
}

// Form handles GET /console/configs/:type/:clientId/form
func (h *Handler) Form(c *fiber.Ctx) error {
	t, clientID, err := address(c)
	if err != nil {
		return err
	}

	f, exists, err := h.manager.Form(t, clientID)
	if err != nil {
		return err
	}

	return c.JSON(FormResponse{Type: t, ClientID: clientID, Exists: exists, Fields: f})
}

// Create handles POST /console/configs/:type/:clientId
func (h *Handler) Create(c *fiber.Ctx) error {
	t, clientID, err := address(c)
	if err != nil {
		return err
	}

	f, err := h.fields(c)
	if err != nil {
		return err
	}

	cfg, err := h.manager.Create(backendContext(c), t, clientID, f)
	if err != nil {
		return err
	}

	h.logger.Info("configuration created",
		slog.String("type", t.String()),
		slog.Int64("client_id", clientID),
		slog.String("actor", actor(c)),
	)
	return c.Status(fiber.StatusCreated).JSON(ConfigResponse{Config: cfg, Summary: presentation.Summarize(cfg)})
}

// Update handles PUT /console/configs/:type/:clientId
func (h *Handler) Update(c *fiber.Ctx) error {
	t, clientID, err := address(c)
	if err != nil {
		return err
	}

	f, err := h.fields(c)
	if err != nil {
		return err
	}

	cfg, err := h.manager.Update(backendContext(c), t, clientID, f)
	if err != nil {
		return err
	}

	h.logger.Info("configuration updated",
		slog.String("type", t.String()),
		slog.Int64("client_id", clientID),
		slog.String("actor", actor(c)),
	)
	return c.JSON(ConfigResponse{Config: cfg, Summary: presentation.Summarize(cfg)})
}

// RequestDelete handles POST /console/configs/:type/:clientId/delete-intents
func (h *Handler) RequestDelete(c *fiber.Ctx) error {
	t, clientID, err := address(c)
	if err != nil {
		return err
	}

	intent, err := h.manager.RequestDelete(t, clientID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(intent)
}

// RequestClientStatus handles POST /console/clients/:clientId/status-intents
func (h *Handler) RequestClientStatus(c *fiber.Ctx) error {
	clientID, err := strconv.ParseInt(c.Params("clientId"), 10, 64)
	if err != nil || clientID <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid clientId")
	}

	var req StatusIntentRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Debug("invalid request body", "error", err)
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	intent, err := h.manager.RequestClientStatus(clientID, req.Status)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(intent)
}

// Confirm handles POST /console/intents/:token/confirm
func (h *Handler) Confirm(c *fiber.Ctx) error {
	notice, err := h.manager.Confirm(backendContext(c), c.Params("token"))
	if err != nil {
		return err
	}

	h.logger.Info("operation confirmed",
		slog.String("action", string(notice.Action)),
		slog.String("actor", actor(c)),
	)
	return c.JSON(notice)
}

// Refresh handles POST /console/refresh
func (h *Handler) Refresh(c *fiber.Ctx) error {
	col, err := h.manager.Refresh(backendContext(c), true)
	if err != nil {
		return err
	}
	return c.JSON(RefreshResponse{Total: col.Len(), LoadedAt: col.LoadedAt(), Report: col.Report()})
}

func (h *Handler) fields(c *fiber.Ctx) (validation.Fields, error) {
	var f validation.Fields
	if err := c.BodyParser(&f); err != nil {
		h.logger.Debug("invalid request body", "error", err)
		if ve := domain.FieldTypeError(err); ve != nil {
			return f, ve
		}
		return f, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return f, nil
}

func address(c *fiber.Ctx) (domain.ConfigType, int64, error) {
	t, err := domain.ParseConfigType(c.Params("type"))
	if err != nil {
		return "", 0, err
	}
	clientID, err := strconv.ParseInt(c.Params("clientId"), 10, 64)
	if err != nil || clientID <= 0 {
		return "", 0, fiber.NewError(fiber.StatusBadRequest, "invalid clientId")
	}
	return t, clientID, nil
}

// backendContext forwards the operator's token so the configuration
// service records them as the author.
func backendContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if token := middleware.GetAccessToken(c); token != "" {
		ctx = transport.WithBearerToken(ctx, token)
	}
	return ctx
}

func actor(c *fiber.Ctx) string {
	a, _ := middleware.GetActor(c)
	return a
}

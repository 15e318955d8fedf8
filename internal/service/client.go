package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/audit"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/domain"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/repository"
)

type ClientService struct {
	clients repository.ClientRepositoryInterface
	audit   audit.Logger
	logger  *slog.Logger
}

func NewClientService(clients repository.ClientRepositoryInterface, auditLogger audit.Logger, logger *slog.Logger) *ClientService {
	if auditLogger == nil {
		auditLogger = &audit.NoOpLogger{}
	}
	return &ClientService{
		clients: clients,
		audit:   auditLogger,
		logger:  logger.With("component", "client_service"),
	}
}

func (s *ClientService) List(ctx context.Context) ([]domain.Client, error) {
	return s.clients.List(ctx)
}

func (s *ClientService) Get(ctx context.Context, id int64) (*domain.Client, error) {
	return s.clients.GetByID(ctx, id)
}

func (s *ClientService) Create(ctx context.Context, actor, name string) (*domain.Client, error) {
	client := &domain.Client{
		Name:   strings.TrimSpace(name),
		Status: domain.ClientStatusActive,
	}
	if err := client.Validate(); err != nil {
		return nil, domain.NewValidationError(map[string]string{"name": "is required"})
	}

	err := s.clients.Create(ctx, client)

	event := audit.Event{
		EventType: audit.EventClientCreated,
		ClientID:  client.ID,
		Actor:     actor,
		Success:   err == nil,
		Metadata:  map[string]string{"name": client.Name},
	}
	if err != nil {
		event.Error = err.Error()
	}
	s.logAudit(ctx, event)

	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "client created",
		slog.Int64("client_id", client.ID),
		slog.String("actor", actor),
	)
	return client, nil
}

// SetStatus activates, suspends or deactivates a client.
func (s *ClientService) SetStatus(ctx context.Context, actor string, id int64, status domain.ClientStatus) (*domain.Client, error) {
	if !domain.IsValidClientStatus(string(status)) {
		return nil, domain.ErrInvalidClientStatus
	}

	current, err := s.clients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.clients.UpdateStatus(ctx, id, status)

	event := audit.Event{
		EventType: audit.EventClientStatusChanged,
		ClientID:  id,
		Actor:     actor,
		Success:   err == nil,
		Metadata: map[string]string{
			"from": string(current.Status),
			"to":   string(status),
		},
	}
	if err != nil {
		event.Error = err.Error()
	}
	s.logAudit(ctx, event)

	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "client status changed",
		slog.Int64("client_id", id),
		slog.String("from", string(current.Status)),
		slog.String("to", string(status)),
		slog.String("actor", actor),
	)
	return updated, nil
}

func (s *ClientService) logAudit(ctx context.Context, event audit.Event) {
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event_type", string(event.EventType)),
			slog.String("error", err.Error()),
		)
	}
}

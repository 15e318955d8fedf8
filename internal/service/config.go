package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/audit"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/domain"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/repository"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/validation"
)

// ConfigService owns the verification configurations of every client.
// Every write is validated before it reaches the repository.
type ConfigService struct {
	configs repository.ConfigRepositoryInterface
	clients repository.ClientRepositoryInterface
	audit   audit.Logger
	logger  *slog.Logger
}

func NewConfigService(
	configs repository.ConfigRepositoryInterface,
	clients repository.ClientRepositoryInterface,
	auditLogger audit.Logger,
	logger *slog.Logger,
) *ConfigService {
	if auditLogger == nil {
		auditLogger = &audit.NoOpLogger{}
	}
	return &ConfigService{
		configs: configs,
		clients: clients,
		audit:   auditLogger,
		logger:  logger.With("component", "config_service"),
	}
}

func (s *ConfigService) Get(ctx context.Context, t domain.ConfigType, clientID int64) (domain.Config, error) {
	if !t.Valid() {
		return nil, domain.ErrUnknownConfigType
	}
	return s.configs.Get(ctx, t, clientID)
}

func (s *ConfigService) List(ctx context.Context, f repository.ConfigFilter) ([]domain.Config, error) {
	if f.Type != "" && !f.Type.Valid() {
		return nil, domain.ErrUnknownConfigType
	}
	return s.configs.List(ctx, f)
}

// Validate runs the validation rules without touching storage.
func (s *ConfigService) Validate(params domain.Params) error {
	return validation.ValidateParams(params).Err()
}

func (s *ConfigService) Create(ctx context.Context, actor string, clientID int64, params domain.Params) (domain.Config, error) {
	if err := s.Validate(params); err != nil {
		return nil, err
	}

	if _, err := s.clients.GetByID(ctx, clientID); err != nil {
		return nil, err
	}

	cfg, err := domain.NewConfig(domain.ConfigMeta{
		ID:        uuid.New(),
		ClientID:  clientID,
		CreatedBy: actor,
	}, params)
	if err != nil {
		return nil, err
	}

	err = s.configs.Create(ctx, cfg)
	s.record(ctx, audit.EventConfigCreated, actor, cfg, err)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "configuration created",
		slog.String("type", cfg.Type().String()),
		slog.Int64("client_id", clientID),
		slog.String("actor", actor),
	)
	return cfg, nil
}

func (s *ConfigService) Update(ctx context.Context, actor string, clientID int64, params domain.Params) (domain.Config, error) {
	if err := s.Validate(params); err != nil {
		return nil, err
	}

	cfg, err := domain.NewConfig(domain.ConfigMeta{
		ClientID:  clientID,
		UpdatedBy: &actor,
	}, params)
	if err != nil {
		return nil, err
	}

	err = s.configs.Update(ctx, cfg)
	s.record(ctx, audit.EventConfigUpdated, actor, cfg, err)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "configuration updated",
		slog.String("type", cfg.Type().String()),
		slog.Int64("client_id", clientID),
		slog.String("actor", actor),
	)
	return cfg, nil
}

func (s *ConfigService) Delete(ctx context.Context, actor string, t domain.ConfigType, clientID int64) error {
	if !t.Valid() {
		return domain.ErrUnknownConfigType
	}

	err := s.configs.Delete(ctx, t, clientID)

	event := audit.Event{
		EventType:  audit.EventConfigDeleted,
		ClientID:   clientID,
		ConfigType: t.String(),
		Actor:      actor,
		Success:    err == nil,
	}
	if err != nil {
		event.Error = err.Error()
	}
	s.logAudit(ctx, event)

	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "configuration deleted",
		slog.String("type", t.String()),
		slog.Int64("client_id", clientID),
		slog.String("actor", actor),
	)
	return nil
}

func (s *ConfigService) record(ctx context.Context, eventType audit.EventType, actor string, cfg domain.Config, opErr error) {
	meta := cfg.Meta()
	event := audit.Event{
		EventType:  eventType,
		ClientID:   meta.ClientID,
		ConfigType: cfg.Type().String(),
		Actor:      actor,
		Success:    opErr == nil,
	}
	if opErr == nil && meta.ID != uuid.Nil {
		event.ConfigID = meta.ID.String()
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}
	s.logAudit(ctx, event)
}

// The operation result stands even when the audit trail cannot be written.
func (s *ConfigService) logAudit(ctx context.Context, event audit.Event) {
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event_type", string(event.EventType)),
			slog.String("error", err.Error()),
		)
	}
}

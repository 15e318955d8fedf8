package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/domain"
)

// Each configuration type lives in its own table, one row per client.
var configTables = map[domain.ConfigType]string{
	domain.ConfigTypeLiveness:       "liveness_configs",
	domain.ConfigTypeMatching:       "matching_configs",
	domain.ConfigTypeSilentLiveness: "silent_liveness_configs",
}

const (
	livenessColumns       = `id, client_id, required_movements, movement_count, movement_duration_sec, fps, timeout_sec, created_at, updated_at, created_by, updated_by`
	matchingColumns       = `id, client_id, distance_method, threshold, minimum_confidence, max_angle, enable_preprocessing, enable_fraud_check, created_at, updated_at, created_by, updated_by`
	silentLivenessColumns = `id, client_id, fps, timeout_sec, min_frames, min_duration_sec, decision_threshold, created_at, updated_at, created_by, updated_by`
)

var configColumns = map[domain.ConfigType]string{
	domain.ConfigTypeLiveness:       livenessColumns,
	domain.ConfigTypeMatching:       matchingColumns,
	domain.ConfigTypeSilentLiveness: silentLivenessColumns,
}

// ConfigFilter narrows List. Zero values match everything.
type ConfigFilter struct {
	ClientID int64
	Type     domain.ConfigType
}

type ConfigRepository struct {
	pool PgxPool
}

func NewConfigRepository(pool PgxPool) *ConfigRepository {
	return &ConfigRepository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *ConfigRepository) Get(ctx context.Context, t domain.ConfigType, clientID int64) (domain.Config, error) {
	table, ok := configTables[t]
	if !ok {
		return nil, domain.ErrUnknownConfigType
	}

	query := `
		SELECT ` + configColumns[t] + `
		FROM ` + table + `
		WHERE client_id = $1
	`

	cfg, err := scanConfig(t, r.pool.QueryRow(ctx, query, clientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s config: %w", t, err)
	}

	return cfg, nil
}

// List returns configurations ordered by client, then type.
func (r *ConfigRepository) List(ctx context.Context, f ConfigFilter) ([]domain.Config, error) {
	types := domain.ConfigTypes()
	if f.Type != "" {
		if !f.Type.Valid() {
			return nil, domain.ErrUnknownConfigType
		}
		types = []domain.ConfigType{f.Type}
	}

	var configs []domain.Config
	for _, t := range types {
		part, err := r.listType(ctx, t, f.ClientID)
		if err != nil {
			return nil, err
		}
		configs = append(configs, part...)
	}

	rank := make(map[domain.ConfigType]int)
	for i, t := range domain.ConfigTypes() {
		rank[t] = i
	}
	sort.SliceStable(configs, func(i, j int) bool {
		a, b := configs[i], configs[j]
		if a.Meta().ClientID != b.Meta().ClientID {
			return a.Meta().ClientID < b.Meta().ClientID
		}
		return rank[a.Type()] < rank[b.Type()]
	})

	return configs, nil
}

func (r *ConfigRepository) listType(ctx context.Context, t domain.ConfigType, clientID int64) ([]domain.Config, error) {
	query := `
		SELECT ` + configColumns[t] + `
		FROM ` + configTables[t]

	var args []any
	if clientID != 0 {
		query += ` WHERE client_id = $1`
		args = append(args, clientID)
	}
	query += ` ORDER BY client_id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s configs: %w", t, err)
	}
	defer rows.Close()

	var configs []domain.Config
	for rows.Next() {
		cfg, err := scanConfig(t, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s config: %w", t, err)
		}
		configs = append(configs, cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s configs: %w", t, err)
	}

	return configs, nil
}

// Create inserts cfg and fills its ID and timestamps.
func (r *ConfigRepository) Create(ctx context.Context, cfg domain.Config) error {
	if cfg == nil {
		return domain.ErrUnknownConfigType
	}

	err := domain.MatchConfig(cfg,
		func(c *domain.LivenessConfig) error {
			query := `
				INSERT INTO liveness_configs (id, client_id, required_movements, movement_count, movement_duration_sec, fps, timeout_sec, created_by, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
				RETURNING created_at, updated_at
			`
			assignID(&c.ConfigMeta)
			return r.pool.QueryRow(ctx, query,
				c.ID,
				c.ClientID,
				movementStrings(c.RequiredMovements),
				c.MovementCount,
				c.MovementDurationSec,
				c.FPS,
				c.TimeoutSec,
				c.CreatedBy,
			).Scan(&c.CreatedAt, &c.UpdatedAt)
		},
		func(c *domain.MatchingConfig) error {
			query := `
				INSERT INTO matching_configs (id, client_id, distance_method, threshold, minimum_confidence, max_angle, enable_preprocessing, enable_fraud_check, created_by, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
				RETURNING created_at, updated_at
			`
			assignID(&c.ConfigMeta)
			return r.pool.QueryRow(ctx, query,
				c.ID,
				c.ClientID,
				string(c.DistanceMethod),
				c.Threshold,
				c.MinimumConfidence,
				c.MaxAngle,
				c.EnablePreprocessing,
				c.EnableFraudCheck,
				c.CreatedBy,
			).Scan(&c.CreatedAt, &c.UpdatedAt)
		},
		func(c *domain.SilentLivenessConfig) error {
			query := `
				INSERT INTO silent_liveness_configs (id, client_id, fps, timeout_sec, min_frames, min_duration_sec, decision_threshold, created_by, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
				RETURNING created_at, updated_at
			`
			assignID(&c.ConfigMeta)
			return r.pool.QueryRow(ctx, query,
				c.ID,
				c.ClientID,
				c.FPS,
				c.TimeoutSec,
				c.MinFrames,
				c.MinDurationSec,
				c.DecisionThreshold,
				c.CreatedBy,
			).Scan(&c.CreatedAt, &c.UpdatedAt)
		},
	)

	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConfigExists
		}
		if isForeignKeyViolation(err) {
			return domain.ErrClientNotFound
		}
		return fmt.Errorf("create %s config: %w", cfg.Type(), err)
	}

	return nil
}

// Update overwrites the type-specific fields of the row addressed by
// (type, client_id) and fills the stored ID, creation data and timestamps
// back into cfg.
func (r *ConfigRepository) Update(ctx context.Context, cfg domain.Config) error {
	if cfg == nil {
		return domain.ErrUnknownConfigType
	}

	err := domain.MatchConfig(cfg,
		func(c *domain.LivenessConfig) error {
			query := `
				UPDATE liveness_configs
				SET required_movements = $2, movement_count = $3, movement_duration_sec = $4, fps = $5, timeout_sec = $6, updated_by = $7, updated_at = NOW()
				WHERE client_id = $1
				RETURNING id, created_at, updated_at, created_by
			`
			return r.pool.QueryRow(ctx, query,
				c.ClientID,
				movementStrings(c.RequiredMovements),
				c.MovementCount,
				c.MovementDurationSec,
				c.FPS,
				c.TimeoutSec,
				c.UpdatedBy,
			).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt, &c.CreatedBy)
		},
		func(c *domain.MatchingConfig) error {
			query := `
				UPDATE matching_configs
				SET distance_method = $2, threshold = $3, minimum_confidence = $4, max_angle = $5, enable_preprocessing = $6, enable_fraud_check = $7, updated_by = $8, updated_at = NOW()
				WHERE client_id = $1
				RETURNING id, created_at, updated_at, created_by
			`
			return r.pool.QueryRow(ctx, query,
				c.ClientID,
				string(c.DistanceMethod),
				c.Threshold,
				c.MinimumConfidence,
				c.MaxAngle,
				c.EnablePreprocessing,
				c.EnableFraudCheck,
				c.UpdatedBy,
			).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt, &c.CreatedBy)
		},
		func(c *domain.SilentLivenessConfig) error {
			query := `
				UPDATE silent_liveness_configs
				SET fps = $2, timeout_sec = $3, min_frames = $4, min_duration_sec = $5, decision_threshold = $6, updated_by = $7, updated_at = NOW()
				WHERE client_id = $1
				RETURNING id, created_at, updated_at, created_by
			`
			return r.pool.QueryRow(ctx, query,
				c.ClientID,
				c.FPS,
				c.TimeoutSec,
				c.MinFrames,
				c.MinDurationSec,
				c.DecisionThreshold,
				c.UpdatedBy,
			).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt, &c.CreatedBy)
		},
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrConfigNotFound
	}
	if err != nil {
		return fmt.Errorf("update %s config: %w", cfg.Type(), err)
	}

	return nil
}

func (r *ConfigRepository) Delete(ctx context.Context, t domain.ConfigType, clientID int64) error {
	table, ok := configTables[t]
	if !ok {
		return domain.ErrUnknownConfigType
	}

	query := `
		DELETE FROM ` + table + `
		WHERE client_id = $1
	`

	result, err := r.pool.Exec(ctx, query, clientID)
	if err != nil {
		return fmt.Errorf("delete %s config: %w", t, err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrConfigNotFound
	}

	return nil
}

func scanConfig(t domain.ConfigType, row rowScanner) (domain.Config, error) {
	switch t {
	case domain.ConfigTypeLiveness:
		var c domain.LivenessConfig
		var movements []string
		err := row.Scan(
			&c.ID,
			&c.ClientID,
			&movements,
			&c.MovementCount,
			&c.MovementDurationSec,
			&c.FPS,
			&c.TimeoutSec,
			&c.CreatedAt,
			&c.UpdatedAt,
			&c.CreatedBy,
			&c.UpdatedBy,
		)
		if err != nil {
			return nil, err
		}
		c.RequiredMovements = make([]domain.Movement, 0, len(movements))
		for _, m := range movements {
			c.RequiredMovements = append(c.RequiredMovements, domain.Movement(m))
		}
		return &c, nil

	case domain.ConfigTypeMatching:
		var c domain.MatchingConfig
		var method string
		err := row.Scan(
			&c.ID,
			&c.ClientID,
			&method,
			&c.Threshold,
			&c.MinimumConfidence,
			&c.MaxAngle,
			&c.EnablePreprocessing,
			&c.EnableFraudCheck,
			&c.CreatedAt,
			&c.UpdatedAt,
			&c.CreatedBy,
			&c.UpdatedBy,
		)
		if err != nil {
			return nil, err
		}
		c.DistanceMethod = domain.DistanceMethod(method)
		return &c, nil

	case domain.ConfigTypeSilentLiveness:
		var c domain.SilentLivenessConfig
		err := row.Scan(
			&c.ID,
			&c.ClientID,
			&c.FPS,
			&c.TimeoutSec,
			&c.MinFrames,
			&c.MinDurationSec,
			&c.DecisionThreshold,
			&c.CreatedAt,
			&c.UpdatedAt,
			&c.CreatedBy,
			&c.UpdatedBy,
		)
		if err != nil {
			return nil, err
		}
		return &c, nil
	}

	return nil, domain.ErrUnknownConfigType
}

func assignID(meta *domain.ConfigMeta) {
	if meta.ID == uuid.Nil {
		meta.ID = uuid.New()
	}
}

func movementStrings(ms []domain.Movement) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, string(m))
	}
	return out
}

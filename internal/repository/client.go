package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/domain"
)

type ClientRepository struct {
	pool PgxPool
}

func NewClientRepository(pool PgxPool) *ClientRepository {
	return &ClientRepository{pool: pool}
}

func (r *ClientRepository) List(ctx context.Context) ([]domain.Client, error) {
	query := `
		SELECT id, name, status, created_at, updated_at
		FROM clients
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	clients := make([]domain.Client, 0)
	for rows.Next() {
		var client domain.Client
		err := rows.Scan(
			&client.ID,
			&client.Name,
			&client.Status,
			&client.CreatedAt,
			&client.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, client)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}

	return clients, nil
}

func (r *ClientRepository) GetByID(ctx context.Context, id int64) (*domain.Client, error) {
	query := `
		SELECT id, name, status, created_at, updated_at
		FROM clients
		WHERE id = $1
	`

	var client domain.Client
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&client.ID,
		&client.Name,
		&client.Status,
		&client.CreatedAt,
		&client.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get client by id: %w", err)
	}

	return &client, nil
}

func (r *ClientRepository) Create(ctx context.Context, client *domain.Client) error {
	query := `
		INSERT INTO clients (name, status, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	if client.Status == "" {
		client.Status = domain.ClientStatusActive
	}

	err := r.pool.QueryRow(ctx, query,
		client.Name,
		client.Status,
	).Scan(&client.ID, &client.CreatedAt, &client.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return &domain.AppError{
				Code:       "CLIENT_ALREADY_EXISTS",
				Message:    "Client with this name already exists",
				StatusCode: 409,
			}
		}
		return fmt.Errorf("create client: %w", err)
	}

	return nil
}

func (r *ClientRepository) UpdateStatus(ctx context.Context, id int64, status domain.ClientStatus) (*domain.Client, error) {
	query := `
		UPDATE clients
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, status, created_at, updated_at
	`

	var client domain.Client
	err := r.pool.QueryRow(ctx, query, id, status).Scan(
		&client.ID,
		&client.Name,
		&client.Status,
		&client.CreatedAt,
		&client.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update client status: %w", err)
	}

	return &client, nil
}

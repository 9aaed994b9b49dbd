package repository

import (
	"context"

	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
)

func (r *Repository) CreateClient(ctx context.Context, client *domain.Client) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO clients (id, agency_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		RETURNING created_at
	`

	if err := r.dbpool.QueryRowContext(ctx, query, client.ID, client.AgencyID, client.Name).Scan(&client.CreatedAt); err != nil {
		return err
	}

	return nil
}

func (r *Repository) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT agency_id, name, created_at FROM clients WHERE id = $1
	`

	client := &domain.Client{ID: id}
	if err := r.dbpool.QueryRowContext(ctx, query, id).Scan(&client.AgencyID, &client.Name, &client.CreatedAt); err != nil {
		return nil, err
	}

	return client, nil
}

func (r *Repository) GetAllClients(ctx context.Context) ([]*domain.Client, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, agency_id, name, created_at FROM clients ORDER BY id
	`

	rows, err := r.dbpool.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := make([]*domain.Client, 0)
	for rows.Next() {
		client := &domain.Client{}
		if err := rows.Scan(&client.ID, &client.AgencyID, &client.Name, &client.CreatedAt); err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return clients, nil
}

func (r *Repository) GetClientsByAgency(ctx context.Context, agencyID int64) ([]*domain.Client, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, name, created_at FROM clients WHERE agency_id = $1 ORDER BY name
	`

	rows, err := r.dbpool.QueryContext(ctx, query, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := make([]*domain.Client, 0)
	for rows.Next() {
		client := &domain.Client{AgencyID: agencyID}
		if err := rows.Scan(&client.ID, &client.Name, &client.CreatedAt); err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return clients, nil
}

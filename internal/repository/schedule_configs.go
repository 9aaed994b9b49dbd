package repository

import (
	"context"

	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
)

// GetScheduleConfigDocument 返回原始的配置文档，格式判断交给调用方
func (r *Repository) GetScheduleConfigDocument(ctx context.Context, clientID string) (*domain.ScheduleConfigDocument, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT document, updated_at FROM schedule_configs WHERE client_id = $1
	`

	doc := &domain.ScheduleConfigDocument{ClientID: clientID}
	if err := r.dbpool.QueryRowContext(ctx, query, clientID).Scan(&doc.Document, &doc.UpdatedAt); err != nil {
		return nil, err
	}

	return doc, nil
}

// PutScheduleConfigDocument 整体替换客户的配置文档，两种格式不会同时保留
func (r *Repository) PutScheduleConfigDocument(ctx context.Context, doc *domain.ScheduleConfigDocument) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO schedule_configs (client_id, document)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (client_id) DO UPDATE SET document = EXCLUDED.document, updated_at = NOW()
		RETURNING updated_at
	`

	if err := r.dbpool.QueryRowContext(ctx, query, doc.ClientID, string(doc.Document)).Scan(&doc.UpdatedAt); err != nil {
		return err
	}

	return nil
}

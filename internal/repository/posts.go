package repository

import (
	"context"
	"database/sql"

	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
)

func (r *Repository) CreatePost(ctx context.Context, post *domain.Post) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO posts (client_id, id, title, profile_id, profile_name, status, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING updated_at, version
	`

	args := []any{post.ClientID, post.ID, post.Title, post.ProfileID, post.ProfileName, post.Status, post.ScheduledAt}
	if err := r.dbpool.QueryRowContext(ctx, query, args...).Scan(&post.UpdatedAt, &post.Version); err != nil {
		return err
	}

	return nil
}

func (r *Repository) GetPost(ctx context.Context, clientID, postID string) (*domain.Post, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT title, profile_id, profile_name, status, scheduled_at, updated_at, version
		FROM posts WHERE client_id = $1 AND id = $2
	`

	post := &domain.Post{ClientID: clientID, ID: postID}
	var scheduledAt sql.NullTime

	dst := []any{&post.Title, &post.ProfileID, &post.ProfileName, &post.Status, &scheduledAt, &post.UpdatedAt, &post.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, clientID, postID).Scan(dst...); err != nil {
		return nil, err
	}
	if scheduledAt.Valid {
		post.ScheduledAt = &scheduledAt.Time
	}

	return post, nil
}

// MergePostFields 只写入 fields 中给出的字段，帖子不存在时返回 sql.ErrNoRows
func (r *Repository) MergePostFields(ctx context.Context, clientID, postID string, fields domain.PostFields) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE posts
		SET
			status = COALESCE($3, status),
			scheduled_at = CASE
				WHEN $4 THEN NULL
				WHEN $5::timestamptz IS NOT NULL THEN $5::timestamptz
				ELSE scheduled_at
			END,
			updated_at = NOW(),
			version = version + 1
		WHERE client_id = $1 AND id = $2
	`

	var status sql.NullString
	if fields.Status != nil {
		status = sql.NullString{String: string(*fields.Status), Valid: true}
	}
	var scheduledAt sql.NullTime
	if fields.ScheduledAt != nil {
		scheduledAt = sql.NullTime{Time: *fields.ScheduledAt, Valid: true}
	}

	result, err := r.dbpool.ExecContext(ctx, query, clientID, postID, status, fields.ClearScheduledAt, scheduledAt)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (r *Repository) GetPostsByClient(ctx context.Context, clientID string) ([]*domain.Post, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, title, profile_id, profile_name, status, scheduled_at, updated_at, version
		FROM posts WHERE client_id = $1
		ORDER BY updated_at DESC
	`

	rows, err := r.dbpool.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := make([]*domain.Post, 0)
	for rows.Next() {
		post := &domain.Post{ClientID: clientID}
		var scheduledAt sql.NullTime
		dst := []any{&post.ID, &post.Title, &post.ProfileID, &post.ProfileName, &post.Status, &scheduledAt, &post.UpdatedAt, &post.Version}
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}
		if scheduledAt.Valid {
			post.ScheduledAt = &scheduledAt.Time
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return posts, nil
}

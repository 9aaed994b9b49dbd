package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
)

// GetShard 返回某个月分片中的全部条目，分片不存在时返回空 map
func (r *Repository) GetShard(ctx context.Context, clientID, yearMonth string) (map[string]domain.ScheduleEntry, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT entries FROM schedule_shards WHERE client_id = $1 AND year_month = $2
	`

	var raw []byte
	if err := r.dbpool.QueryRowContext(ctx, query, clientID, yearMonth).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return map[string]domain.ScheduleEntry{}, nil
		}
		return nil, err
	}

	entries := make(map[string]domain.ScheduleEntry)
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode shard %s: %w", yearMonth, err)
	}
	for postID, entry := range entries {
		if entry.PostID == "" {
			entry.PostID = postID
			entries[postID] = entry
		}
	}

	return entries, nil
}

// GetShardEntries 一次读取多个月分片，供可见列表加载使用
func (r *Repository) GetShardEntries(ctx context.Context, clientID string, months []string) ([]domain.ScheduleEntry, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT year_month, entries FROM schedule_shards
		WHERE client_id = $1 AND year_month = ANY($2)
		ORDER BY year_month
	`

	rows, err := r.dbpool.QueryContext(ctx, query, clientID, months)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ScheduleEntry, 0)
	for rows.Next() {
		var (
			yearMonth string
			raw       []byte
		)
		if err := rows.Scan(&yearMonth, &raw); err != nil {
			return nil, err
		}

		entries := make(map[string]domain.ScheduleEntry)
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("decode shard %s: %w", yearMonth, err)
		}
		for postID, entry := range entries {
			if entry.PostID == "" {
				entry.PostID = postID
			}
			result = append(result, entry)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// PutEntry 以 postId 为键合并写入条目，同一分片中的其他条目不受影响
func (r *Repository) PutEntry(ctx context.Context, clientID, yearMonth, postID string, entry domain.ScheduleEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO schedule_shards (client_id, year_month, entries)
		VALUES ($1, $2, jsonb_build_object($3::text, $4::jsonb))
		ON CONFLICT (client_id, year_month) DO UPDATE
		SET entries = schedule_shards.entries || jsonb_build_object($3::text, $4::jsonb),
			updated_at = NOW()
	`

	if _, err := r.dbpool.ExecContext(ctx, query, clientID, yearMonth, postID, string(payload)); err != nil {
		return err
	}

	return nil
}

// DeleteEntry 删除分片中的条目，分片或条目不存在时什么也不做
func (r *Repository) DeleteEntry(ctx context.Context, clientID, yearMonth, postID string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE schedule_shards
		SET entries = entries - $3::text, updated_at = NOW()
		WHERE client_id = $1 AND year_month = $2
	`

	if _, err := r.dbpool.ExecContext(ctx, query, clientID, yearMonth, postID); err != nil {
		return err
	}

	return nil
}

func (r *Repository) ListShardMonths(ctx context.Context, clientID string) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT year_month FROM schedule_shards WHERE client_id = $1 ORDER BY year_month
	`

	rows, err := r.dbpool.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	months := make([]string, 0)
	for rows.Next() {
		var month string
		if err := rows.Scan(&month); err != nil {
			return nil, err
		}
		months = append(months, month)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return months, nil
}

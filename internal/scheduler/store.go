package scheduler

import (
	"context"

	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
)

type ConfigSource interface {
	GetScheduleConfigDocument(ctx context.Context, clientID string) (*domain.ScheduleConfigDocument, error)
}

type ShardReader interface {
	GetShard(ctx context.Context, clientID, yearMonth string) (map[string]domain.ScheduleEntry, error)
}

// ShardStore 是按月分片的排期索引，单次写入只保证同一分片内的合并语义，不提供跨分片原子性
type ShardStore interface {
	ShardReader
	PutEntry(ctx context.Context, clientID, yearMonth, postID string, entry domain.ScheduleEntry) error
	DeleteEntry(ctx context.Context, clientID, yearMonth, postID string) error
}

type ShardLister interface {
	ListShardMonths(ctx context.Context, clientID string) ([]string, error)
}

type PostStore interface {
	GetPost(ctx context.Context, clientID, postID string) (*domain.Post, error)
	MergePostFields(ctx context.Context, clientID, postID string, fields domain.PostFields) error
}

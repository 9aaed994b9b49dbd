package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
)

type OrphanKind string

const (
	// 分片中有条目，但帖子记录不存在
	OrphanPostMissing OrphanKind = "post_missing"
	// 分片中有条目，但帖子状态既不是 Scheduled 也不是 Posted
	OrphanNotScheduled OrphanKind = "not_scheduled"
	// 条目时间和帖子记录的 scheduledAt 不一致
	OrphanTimeMismatch OrphanKind = "time_mismatch"
	// 同一个帖子出现在多个分片中
	OrphanDuplicate OrphanKind = "duplicate"
)

type Orphan struct {
	Kind       OrphanKind           `json:"kind"`
	ClientID   string               `json:"clientID"`
	Shard      string               `json:"shard"`
	PostID     string               `json:"postId"`
	Entry      domain.ScheduleEntry `json:"entry"`
	PostStatus domain.PostStatus    `json:"postStatus,omitempty"`
}

type ReconcileStore interface {
	ShardReader
	ShardLister
}

// Reconciler 扫描客户的所有分片，找出与帖子记录不一致的条目。只报告，不修复。
type Reconciler struct {
	shards ReconcileStore
	posts  PostStore
}

func NewReconciler(shards ReconcileStore, posts PostStore) *Reconciler {
	return &Reconciler{shards: shards, posts: posts}
}

func (r *Reconciler) FindOrphans(ctx context.Context, clientID string) ([]Orphan, error) {
	months, err := r.shards.ListShardMonths(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("list shards for client %s: %w", clientID, err)
	}
	slices.Sort(months)

	orphans := []Orphan{}
	posts := make(map[string]*domain.Post)
	seenIn := make(map[string]string)

	for _, month := range months {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		shard, err := r.shards.GetShard(ctx, clientID, month)
		if err != nil {
			return nil, fmt.Errorf("read shard %s: %w", month, err)
		}

		postIDs := make([]string, 0, len(shard))
		for postID := range shard {
			postIDs = append(postIDs, postID)
		}
		slices.Sort(postIDs)

		for _, postID := range postIDs {
			entry := shard[postID]
			orphan := Orphan{ClientID: clientID, Shard: month, PostID: postID, Entry: entry}

			if _, seen := seenIn[postID]; seen {
				orphan.Kind = OrphanDuplicate
				orphans = append(orphans, orphan)
				continue
			}
			seenIn[postID] = month

			post, cached := posts[postID]
			if !cached {
				post, err = r.posts.GetPost(ctx, clientID, postID)
				if err != nil && !errors.Is(err, sql.ErrNoRows) {
					return nil, fmt.Errorf("load post %s: %w", postID, err)
				}
				posts[postID] = post
			}

			switch {
			case post == nil:
				orphan.Kind = OrphanPostMissing
			case post.Status != domain.PostStatusScheduled && post.Status != domain.PostStatusPosted:
				orphan.Kind = OrphanNotScheduled
				orphan.PostStatus = post.Status
			case post.Status == domain.PostStatusScheduled && !sameInstant(post.ScheduledAt, entry.ScheduledAt):
				orphan.Kind = OrphanTimeMismatch
				orphan.PostStatus = post.Status
			default:
				continue
			}
			orphans = append(orphans, orphan)
		}
	}

	return orphans, nil
}

func sameInstant(recorded *time.Time, entryAt time.Time) bool {
	if recorded == nil {
		return false
	}
	return recorded.Equal(entryAt)
}

// Summarize 按类型统计孤儿条目，输出形如 "duplicate=1, post_missing=2" 的文本
func Summarize(orphans []Orphan) string {
	counts := make(map[OrphanKind]int)
	for _, o := range orphans {
		counts[o.Kind]++
	}

	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, string(kind))
	}
	slices.Sort(kinds)

	parts := make([]string, len(kinds))
	for i, kind := range kinds {
		parts[i] = fmt.Sprintf("%s=%d", kind, counts[OrphanKind(kind)])
	}
	return strings.Join(parts, ", ")
}

package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
	"github.com/escribia-dev/post-scheduler/backend/internal/utils"
)

const DefaultProbeMonths = 5

type ScheduleRequest struct {
	ActorID     string
	ClientID    string
	PostID      string
	ScheduledAt time.Time
	Status      domain.PostStatus // 可以省略，只接受 Scheduled
}

type MoveRequest struct {
	ActorID     string
	ClientID    string
	PostID      string
	ScheduledAt time.Time
}

type CancelRequest struct {
	ActorID  string
	ClientID string
	PostID   string
}

// Outcome 描述一次排期流程最终落地的状态
type Outcome struct {
	PostID    string                `json:"postId"`
	Entry     *domain.ScheduleEntry `json:"entry"`
	FromShard string                `json:"fromShard,omitempty"`
	ToShard   string                `json:"toShard,omitempty"`
	NoOp      bool                  `json:"noOp"`
}

// Coordinator 在分片索引和帖子记录之间按固定顺序写入，维持
// "帖子状态为 Scheduled 当且仅当恰好一个分片中存在对应条目" 这一不变量。
// 两个存储之间没有事务，任一步骤失败都会以 *StepError 返回，不做自动回滚和重试。
type Coordinator struct {
	shards      ShardStore
	posts       PostStore
	loc         *time.Location
	now         func() time.Time
	probeMonths int
}

type CoordinatorOption func(*Coordinator)

func WithProbeMonths(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n >= 0 {
			c.probeMonths = n
		}
	}
}

func WithLocation(loc *time.Location) CoordinatorOption {
	return func(c *Coordinator) {
		if loc != nil {
			c.loc = loc
		}
	}
}

func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCoordinator(shards ShardStore, posts PostStore, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		shards:      shards,
		posts:       posts,
		loc:         time.UTC,
		now:         time.Now,
		probeMonths: DefaultProbeMonths,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// saga 记录一次流程中已经完成的步骤，失败时一并带出
type saga struct {
	clientID  string
	postID    string
	completed []Step
}

func (s *saga) fail(step Step, shard string, err error) error {
	slog.Warn("排期步骤失败", "client_id", s.clientID, "post_id", s.postID, "step", step, "shard", shard, "error", err)
	return &StepError{
		Step:      step,
		PostID:    s.postID,
		Shard:     shard,
		Completed: slices.Clone(s.completed),
		Err:       err,
	}
}

func (s *saga) done(step Step, shard string) {
	slog.Info("排期步骤完成", "client_id", s.clientID, "post_id", s.postID, "step", step, "shard", shard)
	s.completed = append(s.completed, step)
}

func (c *Coordinator) loadPost(ctx context.Context, s *saga) (*domain.Post, error) {
	post, err := c.posts.GetPost(ctx, s.clientID, s.postID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPostNotFound
		}
		return nil, s.fail(StepLoadPost, "", err)
	}
	s.done(StepLoadPost, "")
	return post, nil
}

// probeKeys 返回需要探测的分片键：先是帖子记录中时间所在的月份，再是当前月份往后 probeMonths 个月
func (c *Coordinator) probeKeys(post *domain.Post) []string {
	keys := make([]string, 0, c.probeMonths+2)
	if post.ScheduledAt != nil && !post.ScheduledAt.IsZero() {
		keys = append(keys, utils.YearMonth(*post.ScheduledAt, c.loc))
	}

	now := c.now().In(c.loc)
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, c.loc)
	for i := 0; i <= c.probeMonths; i++ {
		key := firstOfMonth.AddDate(0, i, 0).Format("2006-01")
		if !slices.Contains(keys, key) {
			keys = append(keys, key)
		}
	}
	return keys
}

// locate 在探测窗口内查找帖子所在的分片，找不到时返回空字符串。
// 分片不存在视为 "不在这里"，但读取出错会中止流程。
func (c *Coordinator) locate(ctx context.Context, s *saga, post *domain.Post) (string, *domain.ScheduleEntry, error) {
	for _, key := range c.probeKeys(post) {
		shard, err := c.shards.GetShard(ctx, s.clientID, key)
		if err != nil {
			return "", nil, s.fail(StepProbe, key, err)
		}
		if entry, exists := shard[s.postID]; exists {
			s.done(StepProbe, key)
			return key, &entry, nil
		}
	}
	s.done(StepProbe, "")
	return "", nil, nil
}

func (c *Coordinator) newSaga(actorID, clientID, postID string) (*saga, error) {
	if actorID == "" {
		return nil, ErrAuthRequired
	}
	if clientID == "" || postID == "" {
		return nil, fmt.Errorf("%w: client and post are required", ErrInvalidRequest)
	}
	return &saga{clientID: clientID, postID: postID}, nil
}

func (c *Coordinator) stamp(entry *domain.ScheduleEntry, at time.Time) {
	local := at.In(c.loc)
	entry.ScheduledAt = at
	entry.TimeOfDay = local.Format("15:04")
	entry.ScheduledDate = at.UTC().Format(time.RFC3339)
}

// relocate 删除旧分片中的条目（若与新分片不同），再把新条目写入新分片
func (c *Coordinator) relocate(ctx context.Context, s *saga, fromShard, toShard string, entry domain.ScheduleEntry) error {
	if fromShard != "" && fromShard != toShard {
		if err := c.shards.DeleteEntry(ctx, s.clientID, fromShard, s.postID); err != nil {
			return s.fail(StepDeleteEntry, fromShard, err)
		}
		s.done(StepDeleteEntry, fromShard)
	}

	if err := c.shards.PutEntry(ctx, s.clientID, toShard, s.postID, entry); err != nil {
		return s.fail(StepPutEntry, toShard, err)
	}
	s.done(StepPutEntry, toShard)
	return nil
}

// Schedule 创建或重新安排帖子的排期。
// 先在探测窗口内找到旧条目（包括之前失败流程残留的条目）并删除，然后写入新分片，最后更新帖子记录。
// 最后一步失败时新分片中会残留条目，返回的 *StepError 会标明这一点。
func (c *Coordinator) Schedule(ctx context.Context, req ScheduleRequest) (*Outcome, error) {
	s, err := c.newSaga(req.ActorID, req.ClientID, req.PostID)
	if err != nil {
		return nil, err
	}
	if req.ScheduledAt.IsZero() {
		return nil, fmt.Errorf("%w: scheduledAt is required", ErrInvalidRequest)
	}
	// 分片中的条目只能对应 Scheduled 状态的帖子
	if req.Status != "" && req.Status != domain.PostStatusScheduled {
		return nil, fmt.Errorf("%w: status must be %s", ErrInvalidRequest, domain.PostStatusScheduled)
	}
	status := domain.PostStatusScheduled

	post, err := c.loadPost(ctx, s)
	if err != nil {
		return nil, err
	}

	toShard := utils.YearMonth(req.ScheduledAt, c.loc)

	// 不论帖子记录的状态如何都要探测：上一次流程可能在更新帖子记录前中断，留下了条目
	fromShard, _, err := c.locate(ctx, s, post)
	if err != nil {
		return nil, err
	}

	entry := domain.ScheduleEntry{
		PostID:      post.ID,
		ProfileID:   post.ProfileID,
		ProfileName: post.ProfileName,
		Title:       post.Title,
		Status:      status,
	}
	c.stamp(&entry, req.ScheduledAt)

	if err := c.relocate(ctx, s, fromShard, toShard, entry); err != nil {
		return nil, err
	}

	scheduledAt := req.ScheduledAt
	if err := c.posts.MergePostFields(ctx, s.clientID, s.postID, domain.PostFields{
		Status:      &status,
		ScheduledAt: &scheduledAt,
	}); err != nil {
		return nil, s.fail(StepUpdatePost, "", err)
	}
	s.done(StepUpdatePost, "")

	return &Outcome{
		PostID:    s.postID,
		Entry:     &entry,
		FromShard: fromShard,
		ToShard:   toShard,
	}, nil
}

// Move 只改变排期时间：新条目沿用旧条目的 profile、标题和状态，帖子记录只更新 scheduledAt
func (c *Coordinator) Move(ctx context.Context, req MoveRequest) (*Outcome, error) {
	s, err := c.newSaga(req.ActorID, req.ClientID, req.PostID)
	if err != nil {
		return nil, err
	}
	if req.ScheduledAt.IsZero() {
		return nil, fmt.Errorf("%w: scheduledAt is required", ErrInvalidRequest)
	}

	post, err := c.loadPost(ctx, s)
	if err != nil {
		return nil, err
	}
	if post.Status != domain.PostStatusScheduled && post.ScheduledAt == nil {
		return nil, ErrNotScheduled
	}

	fromShard, prior, err := c.locate(ctx, s, post)
	if err != nil {
		return nil, err
	}

	var entry domain.ScheduleEntry
	if prior != nil {
		entry = *prior
	} else {
		// 探测窗口内找不到旧条目时，用帖子记录重建
		entry = domain.ScheduleEntry{
			PostID:      post.ID,
			ProfileID:   post.ProfileID,
			ProfileName: post.ProfileName,
			Title:       post.Title,
			Status:      post.Status,
		}
	}
	c.stamp(&entry, req.ScheduledAt)

	toShard := utils.YearMonth(req.ScheduledAt, c.loc)
	if err := c.relocate(ctx, s, fromShard, toShard, entry); err != nil {
		return nil, err
	}

	scheduledAt := req.ScheduledAt
	if err := c.posts.MergePostFields(ctx, s.clientID, s.postID, domain.PostFields{
		ScheduledAt: &scheduledAt,
	}); err != nil {
		return nil, s.fail(StepUpdatePost, "", err)
	}
	s.done(StepUpdatePost, "")

	return &Outcome{
		PostID:    s.postID,
		Entry:     &entry,
		FromShard: fromShard,
		ToShard:   toShard,
	}, nil
}

// Cancel 先删除分片中的条目，再把帖子记录改回 Drafted 并清除 scheduledAt。
// 探测不依赖帖子记录的状态，因此也会清理之前失败流程残留的条目。
// 对已经取消过的帖子重复调用是无操作。
func (c *Coordinator) Cancel(ctx context.Context, req CancelRequest) (*Outcome, error) {
	s, err := c.newSaga(req.ActorID, req.ClientID, req.PostID)
	if err != nil {
		return nil, err
	}

	post, err := c.loadPost(ctx, s)
	if err != nil {
		return nil, err
	}
	if post.Status == domain.PostStatusPosted {
		return nil, ErrAlreadyPosted
	}

	fromShard, _, err := c.locate(ctx, s, post)
	if err != nil {
		return nil, err
	}
	// 只有分片里没有条目、帖子记录也没有排期时才是无操作
	if fromShard == "" && post.Status != domain.PostStatusScheduled && post.ScheduledAt == nil {
		return &Outcome{PostID: s.postID, NoOp: true}, nil
	}
	if fromShard != "" {
		if err := c.shards.DeleteEntry(ctx, s.clientID, fromShard, s.postID); err != nil {
			return nil, s.fail(StepDeleteEntry, fromShard, err)
		}
		s.done(StepDeleteEntry, fromShard)
	}

	drafted := domain.PostStatusDrafted
	if err := c.posts.MergePostFields(ctx, s.clientID, s.postID, domain.PostFields{
		Status:           &drafted,
		ClearScheduledAt: true,
	}); err != nil {
		return nil, s.fail(StepUpdatePost, "", err)
	}
	s.done(StepUpdatePost, "")

	return &Outcome{
		PostID:    s.postID,
		FromShard: fromShard,
	}, nil
}

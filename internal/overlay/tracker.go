// Package overlay 维护一个客户可见的排期列表，并在其上叠加尚未确认的乐观修改
package overlay

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
	"github.com/escribia-dev/post-scheduler/backend/internal/utils"
)

var ErrInFlight = errors.New("overlay: post already has an in-flight update")

// Loader 读取若干个月分片中的全部条目
type Loader func(ctx context.Context, months []string) ([]domain.ScheduleEntry, error)

type Tracker struct {
	mu           sync.Mutex
	load         Loader
	loc          *time.Location
	now          func() time.Time
	posts        map[string]domain.ScheduleEntry
	inFlight     map[string]struct{}
	loadedMonths []string
	syncedAt     time.Time
}

func NewTracker(load Loader, loc *time.Location, now func() time.Time) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		load:     load,
		loc:      loc,
		now:      now,
		posts:    make(map[string]domain.ScheduleEntry),
		inFlight: make(map[string]struct{}),
	}
}

// DefaultMonths 返回默认加载窗口：当前月和下个月
func (t *Tracker) DefaultMonths() []string {
	current := utils.YearMonth(t.now(), t.loc)
	next, _ := utils.AddMonths(current, 1)
	return []string{current, next}
}

// Load 用默认窗口替换当前列表，已加载的月份会被清空
func (t *Tracker) Load(ctx context.Context) error {
	months := t.DefaultMonths()
	entries, err := t.load(ctx, months)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.posts = make(map[string]domain.ScheduleEntry, len(entries))
	t.merge(entries)
	t.loadedMonths = months
	t.syncedAt = t.now()
	return nil
}

// LoadMoreMonths 在已加载窗口之后追加 n 个月
func (t *Tracker) LoadMoreMonths(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}

	t.mu.Lock()
	last := ""
	if len(t.loadedMonths) > 0 {
		last = t.loadedMonths[len(t.loadedMonths)-1]
	}
	t.mu.Unlock()

	if last == "" {
		return t.Load(ctx)
	}

	months := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		month, err := utils.AddMonths(last, i)
		if err != nil {
			return err
		}
		months = append(months, month)
	}
	return t.fetchAndMerge(ctx, months)
}

// LoadPreviousMonths 在已加载窗口之前追加 n 个月
func (t *Tracker) LoadPreviousMonths(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}

	t.mu.Lock()
	first := ""
	if len(t.loadedMonths) > 0 {
		first = t.loadedMonths[0]
	}
	t.mu.Unlock()

	if first == "" {
		return t.Load(ctx)
	}

	months := make([]string, 0, n)
	for i := n; i >= 1; i-- {
		month, err := utils.AddMonths(first, -i)
		if err != nil {
			return err
		}
		months = append(months, month)
	}
	return t.fetchAndMerge(ctx, months)
}

func (t *Tracker) fetchAndMerge(ctx context.Context, months []string) error {
	entries, err := t.load(ctx, months)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.merge(entries)
	for _, m := range months {
		if !slices.Contains(t.loadedMonths, m) {
			t.loadedMonths = append(t.loadedMonths, m)
		}
	}
	slices.Sort(t.loadedMonths)
	return nil
}

// merge 按 postId 去重，有未确认修改的帖子保持乐观值不被覆盖
func (t *Tracker) merge(entries []domain.ScheduleEntry) {
	for _, entry := range entries {
		if _, pending := t.inFlight[entry.PostID]; pending {
			continue
		}
		t.posts[entry.PostID] = entry
	}
}

// Refetch 重新读取所有已加载的月份并替换列表，未确认的修改保持不变
func (t *Tracker) Refetch(ctx context.Context) error {
	t.mu.Lock()
	months := slices.Clone(t.loadedMonths)
	t.mu.Unlock()

	if len(months) == 0 {
		return t.Load(ctx)
	}

	entries, err := t.load(ctx, months)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	next := make(map[string]domain.ScheduleEntry, len(entries))
	for postID := range t.inFlight {
		if entry, ok := t.posts[postID]; ok {
			next[postID] = entry
		}
	}
	t.posts = next
	t.merge(entries)
	t.syncedAt = t.now()
	return nil
}

// Apply 立即把修改应用到可见列表并标记为未确认，帖子不在列表中时会被加入
func (t *Tracker) Apply(postID string, patch domain.EntryPatch) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, pending := t.inFlight[postID]; pending {
		return ErrInFlight
	}

	entry, ok := t.posts[postID]
	if !ok {
		entry = domain.ScheduleEntry{PostID: postID}
	}
	patch.ApplyTo(&entry)
	if patch.ScheduledAt != nil && patch.TimeOfDay == nil {
		entry.TimeOfDay = patch.ScheduledAt.In(t.loc).Format("15:04")
	}
	t.posts[postID] = entry
	t.inFlight[postID] = struct{}{}
	return nil
}

// Remove 立即从可见列表中移除帖子并标记为未确认
func (t *Tracker) Remove(postID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, pending := t.inFlight[postID]; pending {
		return ErrInFlight
	}
	delete(t.posts, postID)
	t.inFlight[postID] = struct{}{}
	return nil
}

// Clear 在服务端确认成功后清除未确认标记，可见列表保持不变
func (t *Tracker) Clear(postID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.inFlight, postID)
}

// Confirm 清除未确认标记，并用服务端返回的条目替换乐观值
func (t *Tracker) Confirm(postID string, entry *domain.ScheduleEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.inFlight, postID)
	if entry != nil {
		t.posts[postID] = *entry
	}
}

// RollbackAll 丢弃所有未确认的修改并重新读取已加载的月份
func (t *Tracker) RollbackAll(ctx context.Context) error {
	t.mu.Lock()
	pending := len(t.inFlight)
	t.inFlight = make(map[string]struct{})
	t.mu.Unlock()

	slog.Info("回滚乐观修改", "pending", pending)
	return t.Refetch(ctx)
}

func (t *Tracker) InFlight(postID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, pending := t.inFlight[postID]
	return pending
}

// Pending 返回未确认修改的数量
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.inFlight)
}

// SyncedAt 返回最近一次整体读取已加载月份的时间，追加月份不算
func (t *Tracker) SyncedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.syncedAt
}

func (t *Tracker) LoadedMonths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return slices.Clone(t.loadedMonths)
}

// Posts 返回按排期时间排序的列表副本，时间相同时按 postId 排序
func (t *Tracker) Posts() []domain.ScheduleEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	posts := make([]domain.ScheduleEntry, 0, len(t.posts))
	for _, entry := range t.posts {
		posts = append(posts, entry)
	}
	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].ScheduledAt.Equal(posts[j].ScheduledAt) {
			return posts[i].ScheduledAt.Before(posts[j].ScheduledAt)
		}
		return posts[i].PostID < posts[j].PostID
	})
	return posts
}

package scheduler_test

import (
	"context"
	"database/sql"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
)

// memShards 是分片索引的内存实现，可以按月份或操作注入错误
type memShards struct {
	mu      sync.Mutex
	data    map[string]map[string]map[string]domain.ScheduleEntry
	getErr  map[string]error
	putErr  error
	delErr  error
	deletes []string
	puts    []string
}

func newMemShards() *memShards {
	return &memShards{
		data:   make(map[string]map[string]map[string]domain.ScheduleEntry),
		getErr: make(map[string]error),
	}
}

func (m *memShards) GetShard(_ context.Context, clientID, yearMonth string) (map[string]domain.ScheduleEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.getErr[yearMonth]; err != nil {
		return nil, err
	}
	return maps.Clone(m.data[clientID][yearMonth]), nil
}

func (m *memShards) PutEntry(_ context.Context, clientID, yearMonth, postID string, entry domain.ScheduleEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.putErr != nil {
		return m.putErr
	}
	m.puts = append(m.puts, yearMonth)
	m.put(clientID, yearMonth, postID, entry)
	return nil
}

func (m *memShards) put(clientID, yearMonth, postID string, entry domain.ScheduleEntry) {
	if m.data[clientID] == nil {
		m.data[clientID] = make(map[string]map[string]domain.ScheduleEntry)
	}
	if m.data[clientID][yearMonth] == nil {
		m.data[clientID][yearMonth] = make(map[string]domain.ScheduleEntry)
	}
	m.data[clientID][yearMonth][postID] = entry
}

func (m *memShards) DeleteEntry(_ context.Context, clientID, yearMonth, postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.delErr != nil {
		return m.delErr
	}
	m.deletes = append(m.deletes, yearMonth)
	delete(m.data[clientID][yearMonth], postID)
	return nil
}

func (m *memShards) ListShardMonths(_ context.Context, clientID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	months := slices.Collect(maps.Keys(m.data[clientID]))
	slices.Sort(months)
	return months, nil
}

// occurrences 返回包含 postID 的所有分片
func (m *memShards) occurrences(clientID, postID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var months []string
	for month, entries := range m.data[clientID] {
		if _, ok := entries[postID]; ok {
			months = append(months, month)
		}
	}
	slices.Sort(months)
	return months
}

type memPosts struct {
	mu       sync.Mutex
	data     map[string]map[string]*domain.Post
	getErr   error
	mergeErr error
}

func newMemPosts() *memPosts {
	return &memPosts{data: make(map[string]map[string]*domain.Post)}
}

func (m *memPosts) add(post domain.Post) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data[post.ClientID] == nil {
		m.data[post.ClientID] = make(map[string]*domain.Post)
	}
	m.data[post.ClientID][post.ID] = &post
}

func (m *memPosts) GetPost(_ context.Context, clientID, postID string) (*domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	post, ok := m.data[clientID][postID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *post
	return &copied, nil
}

func (m *memPosts) MergePostFields(_ context.Context, clientID, postID string, fields domain.PostFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mergeErr != nil {
		return m.mergeErr
	}
	post, ok := m.data[clientID][postID]
	if !ok {
		return sql.ErrNoRows
	}
	if fields.Status != nil {
		post.Status = *fields.Status
	}
	if fields.ScheduledAt != nil {
		at := *fields.ScheduledAt
		post.ScheduledAt = &at
	}
	if fields.ClearScheduledAt {
		post.ScheduledAt = nil
	}
	post.Version++
	return nil
}

type memConfigs map[string][]byte

func (m memConfigs) GetScheduleConfigDocument(_ context.Context, clientID string) (*domain.ScheduleConfigDocument, error) {
	doc, ok := m[clientID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &domain.ScheduleConfigDocument{ClientID: clientID, Document: doc}, nil
}

// 2025-05-19 是星期一
var monday0800 = time.Date(2025, 5, 19, 8, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func ptr[T any](v T) *T {
	return &v
}

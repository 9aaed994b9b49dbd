package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
	"github.com/escribia-dev/post-scheduler/backend/internal/utils"
)

const (
	DefaultSearchCount = 5
	DefaultHorizonDays = 90
)

const slotKeyLayout = "2006-01-02 15:04"

type SearchOptions struct {
	Count       int
	HorizonDays int
}

// SlotSearchEngine 从当前时刻开始逐日向后检索可用的发帖时段，只读不写
type SlotSearchEngine struct {
	shards ShardReader
	loc    *time.Location
	now    func() time.Time
}

func NewSlotSearchEngine(shards ShardReader, loc *time.Location, now func() time.Time) *SlotSearchEngine {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &SlotSearchEngine{
		shards: shards,
		loc:    loc,
		now:    now,
	}
}

// monthIndex 缓存单次检索中读到的分片，键为 "YYYY-MM-DD HH:MM"
type monthIndex map[string]map[string][]domain.ScheduleEntry

func (e *SlotSearchEngine) occupants(ctx context.Context, cache monthIndex, clientID string, slotAt time.Time) ([]domain.ScheduleEntry, error) {
	yearMonth := utils.YearMonth(slotAt, e.loc)

	index, cached := cache[yearMonth]
	if !cached {
		shard, err := e.shards.GetShard(ctx, clientID, yearMonth)
		if err != nil {
			return nil, fmt.Errorf("read shard %s: %w", yearMonth, err)
		}

		index = make(map[string][]domain.ScheduleEntry)
		for _, entry := range shard {
			at := entryTime(entry)
			if at.IsZero() {
				continue
			}
			key := at.In(e.loc).Format(slotKeyLayout)
			index[key] = append(index[key], entry)
		}
		for key := range index {
			sort.Slice(index[key], func(i, j int) bool {
				return index[key][i].PostID < index[key][j].PostID
			})
		}
		cache[yearMonth] = index
	}

	return index[slotAt.In(e.loc).Format(slotKeyLayout)], nil
}

// 已发布的条目可能只有 postedAt，这种情况同样占用时段
func entryTime(entry domain.ScheduleEntry) time.Time {
	if !entry.ScheduledAt.IsZero() {
		return entry.ScheduledAt
	}
	if entry.PostedAt != nil {
		return *entry.PostedAt
	}
	return time.Time{}
}

// DisplayLabel 生成 "Monday 19, at 9:00 AM" 形式的展示文本
func DisplayLabel(t time.Time) string {
	return fmt.Sprintf("%s %d, at %s", t.Weekday(), t.Day(), t.Format("3:04 PM"))
}

// FindNextSlots 返回 profileID 接下来可用的时段，按时间先后排列，最多 opts.Count 个。
// 同一 profile 已占用的时段会被跳过；被其他 profile 占用的时段仍然返回，并标注冲突的 profile 名称。
func (e *SlotSearchEngine) FindNextSlots(ctx context.Context, clientID, profileID string, cfg *NormalizedConfig, opts SearchOptions) ([]domain.Candidate, error) {
	if opts.Count <= 0 {
		opts.Count = DefaultSearchCount
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = DefaultHorizonDays
	}

	candidates := []domain.Candidate{}
	if cfg == nil || cfg.IsEmpty() {
		return candidates, ErrConfigurationMissing
	}

	now := e.now().In(e.loc)
	today := utils.At(now, 0, 0, e.loc)
	cache := make(monthIndex)

	for offset := 0; offset < opts.HorizonDays && len(candidates) < opts.Count; offset++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		day := today.AddDate(0, 0, offset)
		times := cfg.TimesOn(day.Weekday())
		if len(times) == 0 {
			continue
		}

		for _, t := range times {
			if len(candidates) >= opts.Count {
				break
			}

			_, hour, minute, err := utils.ParseTimeOfDay(t)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
			}
			slotAt := utils.At(day, hour, minute, e.loc)
			if !slotAt.After(now) {
				continue
			}

			allowance, _ := cfg.AllowedProfiles(day.Weekday(), t)
			if !allowance.Permits(profileID) {
				continue
			}

			entries, err := e.occupants(ctx, cache, clientID, slotAt)
			if err != nil {
				return nil, err
			}

			var conflicting *string
			ownedBySameProfile := false
			for _, entry := range entries {
				if entry.ProfileID == profileID {
					ownedBySameProfile = true
					break
				}
				if conflicting == nil {
					name := entry.ProfileName
					conflicting = &name
				}
			}
			if ownedBySameProfile {
				continue
			}

			candidates = append(candidates, domain.Candidate{
				Date:                   slotAt.Format("2006-01-02"),
				TimeOfDay:              t,
				DisplayLabel:           DisplayLabel(slotAt),
				IsGeneric:              allowance.IsGeneric,
				AllowedProfileNames:    allowance.ProfileNames(),
				ConflictingProfileName: conflicting,
				ScheduledAt:            slotAt,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ScheduledAt.Before(candidates[j].ScheduledAt)
	})

	if len(candidates) == 0 {
		return candidates, ErrNoCandidateSlots
	}

	return candidates, nil
}

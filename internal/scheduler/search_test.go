package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
	"github.com/escribia-dev/post-scheduler/backend/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyMonWed = `{"activeDays": ["Monday", "Wednesday"], "predefinedTimeSlots": ["09:00", "14:00"]}`

func mustNormalize(t *testing.T, doc string) *scheduler.NormalizedConfig {
	t.Helper()
	cfg, err := scheduler.NormalizeConfig([]byte(doc))
	require.NoError(t, err)
	return cfg
}

func slotTimes(candidates []domain.Candidate) []time.Time {
	times := make([]time.Time, len(candidates))
	for i, c := range candidates {
		times[i] = c.ScheduledAt
	}
	return times
}

func at(month time.Month, day, hour, minute int) time.Time {
	return time.Date(2025, month, day, hour, minute, 0, 0, time.UTC)
}

// ── FindNextSlots: ordering and filtering ──────────────────────────────────

func TestFindNextSlots_LegacyOrdering(t *testing.T) {
	engine := scheduler.NewSlotSearchEngine(newMemShards(), time.UTC, fixedClock(monday0800))

	got, err := engine.FindNextSlots(context.Background(), "acme", "p-a", mustNormalize(t, legacyMonWed), scheduler.SearchOptions{})
	require.NoError(t, err)

	assert.Equal(t, []time.Time{
		at(time.May, 19, 9, 0),
		at(time.May, 19, 14, 0),
		at(time.May, 21, 9, 0),
		at(time.May, 21, 14, 0),
		at(time.May, 26, 9, 0),
	}, slotTimes(got))

	first := got[0]
	assert.Equal(t, "2025-05-19", first.Date)
	assert.Equal(t, "09:00", first.TimeOfDay)
	assert.Equal(t, "Monday 19, at 9:00 AM", first.DisplayLabel)
	assert.True(t, first.IsGeneric)
	assert.Nil(t, first.ConflictingProfileName)
	assert.Equal(t, "Monday 19, at 2:00 PM", got[1].DisplayLabel)
}

func TestFindNextSlots_RespectsCount(t *testing.T) {
	engine := scheduler.NewSlotSearchEngine(newMemShards(), time.UTC, fixedClock(monday0800))

	got, err := engine.FindNextSlots(context.Background(), "acme", "p-a", mustNormalize(t, legacyMonWed), scheduler.SearchOptions{Count: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFindNextSlots_ExcludesSlotAtNow(t *testing.T) {
	engine := scheduler.NewSlotSearchEngine(newMemShards(), time.UTC, fixedClock(at(time.May, 19, 9, 0)))

	got, err := engine.FindNextSlots(context.Background(), "acme", "p-a", mustNormalize(t, legacyMonWed), scheduler.SearchOptions{Count: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, at(time.May, 19, 14, 0), got[0].ScheduledAt)
}

func TestFindNextSlots_SkipsSlotsOwnedBySameProfile(t *testing.T) {
	shards := newMemShards()
	shards.put("acme", "2025-05", "post-1", domain.ScheduleEntry{
		PostID:      "post-1",
		ProfileID:   "p-a",
		ProfileName: "Alice",
		Status:      domain.PostStatusScheduled,
		ScheduledAt: at(time.May, 19, 9, 0),
	})
	engine := scheduler.NewSlotSearchEngine(shards, time.UTC, fixedClock(monday0800))

	got, err := engine.FindNextSlots(context.Background(), "acme", "p-a", mustNormalize(t, legacyMonWed), scheduler.SearchOptions{Count: 2})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(time.May, 19, 14, 0), at(time.May, 21, 9, 0)}, slotTimes(got))
}

func TestFindNextSlots_AnnotatesOtherProfileConflict(t *testing.T) {
	shards := newMemShards()
	shards.put("acme", "2025-05", "post-2", domain.ScheduleEntry{
		PostID:      "post-2",
		ProfileID:   "p-b",
		ProfileName: "Bob",
		Status:      domain.PostStatusScheduled,
		ScheduledAt: at(time.May, 19, 9, 0),
	})
	engine := scheduler.NewSlotSearchEngine(shards, time.UTC, fixedClock(monday0800))

	got, err := engine.FindNextSlots(context.Background(), "acme", "p-a", mustNormalize(t, legacyMonWed), scheduler.SearchOptions{Count: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, at(time.May, 19, 9, 0), got[0].ScheduledAt)
	require.NotNil(t, got[0].ConflictingProfileName)
	assert.Equal(t, "Bob", *got[0].ConflictingProfileName)
	assert.Nil(t, got[1].ConflictingProfileName)
}

func TestFindNextSlots_PostedEntryOccupiesSlot(t *testing.T) {
	shards := newMemShards()
	shards.put("acme", "2025-05", "post-3", domain.ScheduleEntry{
		PostID:    "post-3",
		ProfileID: "p-a",
		Status:    domain.PostStatusPosted,
		PostedAt:  ptr(at(time.May, 19, 9, 0)),
	})
	engine := scheduler.NewSlotSearchEngine(shards, time.UTC, fixedClock(monday0800))

	got, err := engine.FindNextSlots(context.Background(), "acme", "p-a", mustNormalize(t, legacyMonWed), scheduler.SearchOptions{Count: 1})
	require.NoError(t, err)
	assert.Equal(t, at(time.May, 19, 14, 0), got[0].ScheduledAt)
}

func TestFindNextSlots_RestrictedSlots(t *testing.T) {
	cfg := mustNormalize(t, `{
		"timeslotsData": {
			"Monday": {
				"09:00": [{"profileId": "p-b", "profileName": "Bob"}],
				"11:00": [{"profileId": "p-a", "profileName": "Alice"}],
				"15:00": []
			}
		}
	}`)
	engine := scheduler.NewSlotSearchEngine(newMemShards(), time.UTC, fixedClock(monday0800))

	got, err := engine.FindNextSlots(context.Background(), "acme", "p-a", cfg, scheduler.SearchOptions{Count: 3})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		at(time.May, 19, 11, 0),
		at(time.May, 19, 15, 0),
		at(time.May, 26, 11, 0),
	}, slotTimes(got))

	assert.False(t, got[0].IsGeneric)
	assert.Equal(t, []string{"Alice"}, got[0].AllowedProfileNames)
	assert.True(t, got[1].IsGeneric)
}

func TestFindNextSlots_CrossesMonthBoundary(t *testing.T) {
	shards := newMemShards()
	shards.put("acme", "2025-06", "post-4", domain.ScheduleEntry{
		PostID:      "post-4",
		ProfileID:   "p-a",
		Status:      domain.PostStatusScheduled,
		ScheduledAt: at(time.June, 2, 9, 0),
	})
	cfg := mustNormalize(t, `{"activeDays": ["Monday"], "predefinedTimeSlots": ["09:00"]}`)
	// 2025-05-30 是星期五
	engine := scheduler.NewSlotSearchEngine(shards, time.UTC, fixedClock(at(time.May, 30, 8, 0)))

	got, err := engine.FindNextSlots(context.Background(), "acme", "p-a", cfg, scheduler.SearchOptions{Count: 1})
	require.NoError(t, err)
	assert.Equal(t, at(time.June, 9, 9, 0), got[0].ScheduledAt)
}

func TestFindNextSlots_UsesConfiguredTimezone(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*60*60)
	cfg := mustNormalize(t, `{"activeDays": ["Monday"], "predefinedTimeSlots": ["09:00"]}`)
	// UTC 星期一 00:30 在 UTC+8 是星期一 08:30
	engine := scheduler.NewSlotSearchEngine(newMemShards(), loc, fixedClock(at(time.May, 19, 0, 30)))

	got, err := engine.FindNextSlots(context.Background(), "acme", "p-a", cfg, scheduler.SearchOptions{Count: 1})
	require.NoError(t, err)
	assert.True(t, got[0].ScheduledAt.Equal(at(time.May, 19, 1, 0)))
	assert.Equal(t, "2025-05-19", got[0].Date)
}

// ── FindNextSlots: empty results and errors ────────────────────────────────

func TestFindNextSlots_ConfigurationMissing(t *testing.T) {
	engine := scheduler.NewSlotSearchEngine(newMemShards(), time.UTC, fixedClock(monday0800))

	got, err := engine.FindNextSlots(context.Background(), "acme", "p-a", nil, scheduler.SearchOptions{})
	assert.ErrorIs(t, err, scheduler.ErrConfigurationMissing)
	assert.Empty(t, got)

	empty := mustNormalize(t, `{"activeDays": [], "predefinedTimeSlots": []}`)
	got, err = engine.FindNextSlots(context.Background(), "acme", "p-a", empty, scheduler.SearchOptions{})
	assert.ErrorIs(t, err, scheduler.ErrConfigurationMissing)
	assert.Empty(t, got)
}

func TestFindNextSlots_NoCandidateSlots(t *testing.T) {
	cfg := mustNormalize(t, `{"timeslotsData": {"Monday": {"09:00": [{"profileId": "p-b", "profileName": "Bob"}]}}}`)
	engine := scheduler.NewSlotSearchEngine(newMemShards(), time.UTC, fixedClock(monday0800))

	got, err := engine.FindNextSlots(context.Background(), "acme", "p-a", cfg, scheduler.SearchOptions{})
	assert.ErrorIs(t, err, scheduler.ErrNoCandidateSlots)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFindNextSlots_HorizonLimitsSearch(t *testing.T) {
	cfg := mustNormalize(t, `{"activeDays": ["Friday"], "predefinedTimeSlots": ["09:00"]}`)
	engine := scheduler.NewSlotSearchEngine(newMemShards(), time.UTC, fixedClock(monday0800))

	_, err := engine.FindNextSlots(context.Background(), "acme", "p-a", cfg, scheduler.SearchOptions{HorizonDays: 3})
	assert.ErrorIs(t, err, scheduler.ErrNoCandidateSlots)
}

func TestFindNextSlots_ShardReadError(t *testing.T) {
	shards := newMemShards()
	shards.getErr["2025-05"] = errors.New("connection reset")
	engine := scheduler.NewSlotSearchEngine(shards, time.UTC, fixedClock(monday0800))

	_, err := engine.FindNextSlots(context.Background(), "acme", "p-a", mustNormalize(t, legacyMonWed), scheduler.SearchOptions{})
	assert.ErrorContains(t, err, "connection reset")
}

func TestFindNextSlots_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	engine := scheduler.NewSlotSearchEngine(newMemShards(), time.UTC, fixedClock(monday0800))

	_, err := engine.FindNextSlots(ctx, "acme", "p-a", mustNormalize(t, legacyMonWed), scheduler.SearchOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFindNextSlots_DoesNotWrite(t *testing.T) {
	shards := newMemShards()
	engine := scheduler.NewSlotSearchEngine(shards, time.UTC, fixedClock(monday0800))

	_, err := engine.FindNextSlots(context.Background(), "acme", "p-a", mustNormalize(t, legacyMonWed), scheduler.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, shards.puts)
	assert.Empty(t, shards.deletes)
}

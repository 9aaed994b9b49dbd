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

type coordinatorFixture struct {
	shards      *memShards
	posts       *memPosts
	coordinator *scheduler.Coordinator
}

func newCoordinatorFixture(opts ...scheduler.CoordinatorOption) *coordinatorFixture {
	f := &coordinatorFixture{shards: newMemShards(), posts: newMemPosts()}
	opts = append([]scheduler.CoordinatorOption{scheduler.WithClock(fixedClock(monday0800))}, opts...)
	f.coordinator = scheduler.NewCoordinator(f.shards, f.posts, opts...)
	return f
}

func (f *coordinatorFixture) draft(id string) {
	f.posts.add(domain.Post{
		ClientID:    "acme",
		ID:          id,
		Title:       "Launch day",
		ProfileID:   "p-a",
		ProfileName: "Alice",
		Status:      domain.PostStatusDrafted,
	})
}

// scheduled 写入一条一致的已排期状态：帖子记录和分片条目同时存在
func (f *coordinatorFixture) scheduled(id string, when time.Time) {
	f.posts.add(domain.Post{
		ClientID:    "acme",
		ID:          id,
		Title:       "Launch day",
		ProfileID:   "p-a",
		ProfileName: "Alice",
		Status:      domain.PostStatusScheduled,
		ScheduledAt: &when,
	})
	f.shards.put("acme", when.Format("2006-01"), id, domain.ScheduleEntry{
		PostID:      id,
		ProfileID:   "p-a",
		ProfileName: "Alice",
		Title:       "Launch day",
		Status:      domain.PostStatusScheduled,
		ScheduledAt: when,
		TimeOfDay:   when.Format("15:04"),
	})
}

func (f *coordinatorFixture) post(t *testing.T, id string) *domain.Post {
	t.Helper()
	post, err := f.posts.GetPost(context.Background(), "acme", id)
	require.NoError(t, err)
	return post
}

func scheduleReq(postID string, when time.Time) scheduler.ScheduleRequest {
	return scheduler.ScheduleRequest{ActorID: "42", ClientID: "acme", PostID: postID, ScheduledAt: when}
}

// ── Schedule ───────────────────────────────────────────────────────────────

func TestSchedule_DraftedPost(t *testing.T) {
	f := newCoordinatorFixture()
	f.draft("post-1")
	when := at(time.May, 21, 9, 0)

	outcome, err := f.coordinator.Schedule(context.Background(), scheduleReq("post-1", when))
	require.NoError(t, err)

	assert.Equal(t, "2025-05", outcome.ToShard)
	assert.Empty(t, outcome.FromShard)
	assert.Equal(t, []string{"2025-05"}, f.shards.occurrences("acme", "post-1"))

	entry := f.shards.data["acme"]["2025-05"]["post-1"]
	assert.Equal(t, "p-a", entry.ProfileID)
	assert.Equal(t, "Alice", entry.ProfileName)
	assert.Equal(t, "Launch day", entry.Title)
	assert.Equal(t, domain.PostStatusScheduled, entry.Status)
	assert.Equal(t, "09:00", entry.TimeOfDay)
	assert.Equal(t, "2025-05-21T09:00:00Z", entry.ScheduledDate)

	post := f.post(t, "post-1")
	assert.Equal(t, domain.PostStatusScheduled, post.Status)
	require.NotNil(t, post.ScheduledAt)
	assert.True(t, post.ScheduledAt.Equal(when))
}

func TestSchedule_IsIdempotent(t *testing.T) {
	f := newCoordinatorFixture()
	f.draft("post-1")
	when := at(time.May, 21, 9, 0)

	_, err := f.coordinator.Schedule(context.Background(), scheduleReq("post-1", when))
	require.NoError(t, err)
	first := f.shards.data["acme"]["2025-05"]["post-1"]

	outcome, err := f.coordinator.Schedule(context.Background(), scheduleReq("post-1", when))
	require.NoError(t, err)

	assert.Equal(t, "2025-05", outcome.FromShard)
	assert.Equal(t, []string{"2025-05"}, f.shards.occurrences("acme", "post-1"))
	assert.Equal(t, first, f.shards.data["acme"]["2025-05"]["post-1"])
	assert.Empty(t, f.shards.deletes)
}

func TestSchedule_RescheduleAcrossMonths(t *testing.T) {
	f := newCoordinatorFixture()
	f.scheduled("post-1", at(time.May, 21, 9, 0))
	when := at(time.July, 2, 14, 0)

	outcome, err := f.coordinator.Schedule(context.Background(), scheduleReq("post-1", when))
	require.NoError(t, err)

	assert.Equal(t, "2025-05", outcome.FromShard)
	assert.Equal(t, "2025-07", outcome.ToShard)
	assert.Equal(t, []string{"2025-07"}, f.shards.occurrences("acme", "post-1"))
	assert.Equal(t, []string{"2025-05"}, f.shards.deletes)
	assert.True(t, f.post(t, "post-1").ScheduledAt.Equal(when))
}

func TestSchedule_RescheduleWithinMonthSkipsDelete(t *testing.T) {
	f := newCoordinatorFixture()
	f.scheduled("post-1", at(time.May, 21, 9, 0))

	_, err := f.coordinator.Schedule(context.Background(), scheduleReq("post-1", at(time.May, 28, 14, 0)))
	require.NoError(t, err)

	assert.Empty(t, f.shards.deletes)
	assert.Equal(t, "14:00", f.shards.data["acme"]["2025-05"]["post-1"].TimeOfDay)
}

func TestSchedule_FindsRecordedMonthOutsideProbeWindow(t *testing.T) {
	f := newCoordinatorFixture(scheduler.WithProbeMonths(1))
	f.scheduled("post-1", time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))

	outcome, err := f.coordinator.Schedule(context.Background(), scheduleReq("post-1", at(time.May, 21, 9, 0)))
	require.NoError(t, err)

	assert.Equal(t, "2026-01", outcome.FromShard)
	assert.Equal(t, []string{"2025-05"}, f.shards.occurrences("acme", "post-1"))
}

func TestSchedule_ExplicitScheduledStatus(t *testing.T) {
	f := newCoordinatorFixture()
	f.draft("post-1")
	req := scheduleReq("post-1", at(time.May, 21, 9, 0))
	req.Status = domain.PostStatusScheduled

	_, err := f.coordinator.Schedule(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.PostStatusScheduled, f.post(t, "post-1").Status)
}

func TestSchedule_RejectsOtherStatuses(t *testing.T) {
	for _, status := range []domain.PostStatus{domain.PostStatusDrafted, domain.PostStatusApproved, domain.PostStatusPosted} {
		t.Run(string(status), func(t *testing.T) {
			f := newCoordinatorFixture()
			f.draft("post-1")
			req := scheduleReq("post-1", at(time.May, 21, 9, 0))
			req.Status = status

			_, err := f.coordinator.Schedule(context.Background(), req)
			assert.ErrorIs(t, err, scheduler.ErrInvalidRequest)
			assert.Empty(t, f.shards.puts)
			assert.Equal(t, domain.PostStatusDrafted, f.post(t, "post-1").Status)
		})
	}
}

func TestSchedule_RequestValidation(t *testing.T) {
	f := newCoordinatorFixture()
	f.draft("post-1")
	when := at(time.May, 21, 9, 0)

	_, err := f.coordinator.Schedule(context.Background(), scheduler.ScheduleRequest{ClientID: "acme", PostID: "post-1", ScheduledAt: when})
	assert.ErrorIs(t, err, scheduler.ErrAuthRequired)

	_, err = f.coordinator.Schedule(context.Background(), scheduler.ScheduleRequest{ActorID: "42", ClientID: "acme", ScheduledAt: when})
	assert.ErrorIs(t, err, scheduler.ErrInvalidRequest)

	_, err = f.coordinator.Schedule(context.Background(), scheduler.ScheduleRequest{ActorID: "42", ClientID: "acme", PostID: "post-1"})
	assert.ErrorIs(t, err, scheduler.ErrInvalidRequest)

	_, err = f.coordinator.Schedule(context.Background(), scheduleReq("missing", when))
	assert.ErrorIs(t, err, scheduler.ErrPostNotFound)

	assert.Empty(t, f.shards.puts)
}

// ── Schedule: partial failures ─────────────────────────────────────────────

func TestSchedule_PostUpdateFailureLeavesDanglingEntry(t *testing.T) {
	f := newCoordinatorFixture()
	f.draft("post-1")
	f.posts.mergeErr = errors.New("write timeout")

	_, err := f.coordinator.Schedule(context.Background(), scheduleReq("post-1", at(time.May, 21, 9, 0)))

	var stepErr *scheduler.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, scheduler.StepUpdatePost, stepErr.Step)
	assert.True(t, stepErr.LeavesDanglingEntry())
	assert.ErrorContains(t, err, "write timeout")

	assert.Equal(t, []string{"2025-05"}, f.shards.occurrences("acme", "post-1"))
	assert.Equal(t, domain.PostStatusDrafted, f.post(t, "post-1").Status)
}

// danglingAfterFailedSchedule 让一次排期在更新帖子记录时失败，分片中留下条目，帖子仍是 Drafted
func danglingAfterFailedSchedule(t *testing.T, f *coordinatorFixture, when time.Time) {
	t.Helper()
	f.draft("post-1")
	f.posts.mergeErr = errors.New("write timeout")

	_, err := f.coordinator.Schedule(context.Background(), scheduleReq("post-1", when))
	require.Error(t, err)
	require.Equal(t, []string{when.Format("2006-01")}, f.shards.occurrences("acme", "post-1"))
	require.Equal(t, domain.PostStatusDrafted, f.post(t, "post-1").Status)

	f.posts.mergeErr = nil
}

func TestSchedule_RetryAcrossMonthsMovesDanglingEntry(t *testing.T) {
	f := newCoordinatorFixture()
	danglingAfterFailedSchedule(t, f, at(time.June, 4, 9, 0))

	outcome, err := f.coordinator.Schedule(context.Background(), scheduleReq("post-1", at(time.July, 2, 9, 0)))
	require.NoError(t, err)

	assert.Equal(t, "2025-06", outcome.FromShard)
	assert.Equal(t, []string{"2025-07"}, f.shards.occurrences("acme", "post-1"))
	assert.Equal(t, domain.PostStatusScheduled, f.post(t, "post-1").Status)
}

func TestSchedule_RetrySameMonthOverwritesDanglingEntry(t *testing.T) {
	f := newCoordinatorFixture()
	danglingAfterFailedSchedule(t, f, at(time.June, 4, 9, 0))

	_, err := f.coordinator.Schedule(context.Background(), scheduleReq("post-1", at(time.June, 4, 9, 0)))
	require.NoError(t, err)

	assert.Equal(t, []string{"2025-06"}, f.shards.occurrences("acme", "post-1"))
	assert.Empty(t, f.shards.deletes)
}

func TestSchedule_PutFailure(t *testing.T) {
	f := newCoordinatorFixture()
	f.scheduled("post-1", at(time.May, 21, 9, 0))
	f.shards.putErr = errors.New("quota exceeded")

	_, err := f.coordinator.Schedule(context.Background(), scheduleReq("post-1", at(time.June, 4, 9, 0)))

	var stepErr *scheduler.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, scheduler.StepPutEntry, stepErr.Step)
	assert.Equal(t, "2025-06", stepErr.Shard)
	assert.Contains(t, stepErr.Completed, scheduler.StepDeleteEntry)
	assert.False(t, stepErr.LeavesDanglingEntry())
}

func TestSchedule_ProbeReadErrorAborts(t *testing.T) {
	f := newCoordinatorFixture()
	f.scheduled("post-1", at(time.June, 4, 9, 0))
	f.shards.getErr["2025-06"] = errors.New("unavailable")

	_, err := f.coordinator.Schedule(context.Background(), scheduleReq("post-1", at(time.July, 2, 9, 0)))

	var stepErr *scheduler.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, scheduler.StepProbe, stepErr.Step)
	assert.Empty(t, f.shards.puts)
	assert.Empty(t, f.shards.deletes)
}

func TestSchedule_LoadPostFailure(t *testing.T) {
	f := newCoordinatorFixture()
	f.posts.getErr = errors.New("network down")

	_, err := f.coordinator.Schedule(context.Background(), scheduleReq("post-1", at(time.May, 21, 9, 0)))

	var stepErr *scheduler.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, scheduler.StepLoadPost, stepErr.Step)
	assert.Empty(t, stepErr.Completed)
}

// ── Move ───────────────────────────────────────────────────────────────────

func TestMove_PreservesEntryFields(t *testing.T) {
	f := newCoordinatorFixture()
	f.scheduled("post-1", at(time.May, 21, 9, 0))
	// 条目中的 profile 与帖子记录不同时，以条目为准
	entry := f.shards.data["acme"]["2025-05"]["post-1"]
	entry.ProfileID = "p-b"
	entry.ProfileName = "Bob"
	entry.Message = "keep me"
	f.shards.put("acme", "2025-05", "post-1", entry)

	when := at(time.June, 11, 14, 0)
	outcome, err := f.coordinator.Move(context.Background(), scheduler.MoveRequest{
		ActorID: "42", ClientID: "acme", PostID: "post-1", ScheduledAt: when,
	})
	require.NoError(t, err)

	assert.Equal(t, "2025-05", outcome.FromShard)
	assert.Equal(t, "2025-06", outcome.ToShard)
	moved := f.shards.data["acme"]["2025-06"]["post-1"]
	assert.Equal(t, "p-b", moved.ProfileID)
	assert.Equal(t, "Bob", moved.ProfileName)
	assert.Equal(t, "keep me", moved.Message)
	assert.Equal(t, domain.PostStatusScheduled, moved.Status)
	assert.Equal(t, "14:00", moved.TimeOfDay)
	assert.True(t, moved.ScheduledAt.Equal(when))
	assert.Equal(t, []string{"2025-06"}, f.shards.occurrences("acme", "post-1"))

	post := f.post(t, "post-1")
	assert.Equal(t, domain.PostStatusScheduled, post.Status)
	assert.True(t, post.ScheduledAt.Equal(when))
}

func TestMove_RebuildsMissingEntryFromPost(t *testing.T) {
	f := newCoordinatorFixture()
	when := at(time.May, 21, 9, 0)
	f.posts.add(domain.Post{
		ClientID: "acme", ID: "post-1", Title: "Launch day",
		ProfileID: "p-a", ProfileName: "Alice",
		Status: domain.PostStatusScheduled, ScheduledAt: &when,
	})

	_, err := f.coordinator.Move(context.Background(), scheduler.MoveRequest{
		ActorID: "42", ClientID: "acme", PostID: "post-1", ScheduledAt: at(time.May, 28, 9, 0),
	})
	require.NoError(t, err)

	entry := f.shards.data["acme"]["2025-05"]["post-1"]
	assert.Equal(t, "Alice", entry.ProfileName)
	assert.Equal(t, "Launch day", entry.Title)
}

func TestMove_UnscheduledPost(t *testing.T) {
	f := newCoordinatorFixture()
	f.draft("post-1")

	_, err := f.coordinator.Move(context.Background(), scheduler.MoveRequest{
		ActorID: "42", ClientID: "acme", PostID: "post-1", ScheduledAt: at(time.May, 28, 9, 0),
	})
	assert.ErrorIs(t, err, scheduler.ErrNotScheduled)
	assert.Empty(t, f.shards.puts)
}

// ── Cancel ─────────────────────────────────────────────────────────────────

func TestCancel_RemovesEntryAndDraftsPost(t *testing.T) {
	f := newCoordinatorFixture()
	f.scheduled("post-1", at(time.June, 4, 9, 0))

	outcome, err := f.coordinator.Cancel(context.Background(), scheduler.CancelRequest{ActorID: "42", ClientID: "acme", PostID: "post-1"})
	require.NoError(t, err)

	assert.Equal(t, "2025-06", outcome.FromShard)
	assert.False(t, outcome.NoOp)
	assert.Empty(t, f.shards.occurrences("acme", "post-1"))

	post := f.post(t, "post-1")
	assert.Equal(t, domain.PostStatusDrafted, post.Status)
	assert.Nil(t, post.ScheduledAt)
}

func TestCancel_IsIdempotent(t *testing.T) {
	f := newCoordinatorFixture()
	f.scheduled("post-1", at(time.June, 4, 9, 0))
	req := scheduler.CancelRequest{ActorID: "42", ClientID: "acme", PostID: "post-1"}

	_, err := f.coordinator.Cancel(context.Background(), req)
	require.NoError(t, err)

	outcome, err := f.coordinator.Cancel(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, outcome.NoOp)
	assert.Equal(t, []string{"2025-06"}, f.shards.deletes)
}

func TestCancel_RemovesDanglingEntry(t *testing.T) {
	f := newCoordinatorFixture()
	danglingAfterFailedSchedule(t, f, at(time.June, 4, 9, 0))

	outcome, err := f.coordinator.Cancel(context.Background(), scheduler.CancelRequest{ActorID: "42", ClientID: "acme", PostID: "post-1"})
	require.NoError(t, err)

	assert.False(t, outcome.NoOp)
	assert.Equal(t, "2025-06", outcome.FromShard)
	assert.Empty(t, f.shards.occurrences("acme", "post-1"))

	post := f.post(t, "post-1")
	assert.Equal(t, domain.PostStatusDrafted, post.Status)
	assert.Nil(t, post.ScheduledAt)
}

func TestCancel_UnscheduledPostWithoutEntryIsNoOp(t *testing.T) {
	f := newCoordinatorFixture()
	f.posts.add(domain.Post{ClientID: "acme", ID: "post-1", Status: domain.PostStatusApproved})

	outcome, err := f.coordinator.Cancel(context.Background(), scheduler.CancelRequest{ActorID: "42", ClientID: "acme", PostID: "post-1"})
	require.NoError(t, err)

	assert.True(t, outcome.NoOp)
	assert.Empty(t, f.shards.deletes)
	assert.Equal(t, domain.PostStatusApproved, f.post(t, "post-1").Status)
}

func TestCancel_PostedPost(t *testing.T) {
	f := newCoordinatorFixture()
	f.posts.add(domain.Post{ClientID: "acme", ID: "post-1", Status: domain.PostStatusPosted})

	_, err := f.coordinator.Cancel(context.Background(), scheduler.CancelRequest{ActorID: "42", ClientID: "acme", PostID: "post-1"})
	assert.ErrorIs(t, err, scheduler.ErrAlreadyPosted)
}

func TestCancel_EntryMissingStillDraftsPost(t *testing.T) {
	f := newCoordinatorFixture()
	when := at(time.June, 4, 9, 0)
	f.posts.add(domain.Post{ClientID: "acme", ID: "post-1", Status: domain.PostStatusScheduled, ScheduledAt: &when})

	outcome, err := f.coordinator.Cancel(context.Background(), scheduler.CancelRequest{ActorID: "42", ClientID: "acme", PostID: "post-1"})
	require.NoError(t, err)
	assert.Empty(t, outcome.FromShard)
	assert.Equal(t, domain.PostStatusDrafted, f.post(t, "post-1").Status)
}

func TestCancel_DeleteFailureKeepsPostScheduled(t *testing.T) {
	f := newCoordinatorFixture()
	f.scheduled("post-1", at(time.June, 4, 9, 0))
	f.shards.delErr = errors.New("permission denied")

	_, err := f.coordinator.Cancel(context.Background(), scheduler.CancelRequest{ActorID: "42", ClientID: "acme", PostID: "post-1"})

	var stepErr *scheduler.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, scheduler.StepDeleteEntry, stepErr.Step)
	assert.Equal(t, domain.PostStatusScheduled, f.post(t, "post-1").Status)
	assert.Equal(t, []string{"2025-06"}, f.shards.occurrences("acme", "post-1"))
}

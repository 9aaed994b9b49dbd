package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
	"github.com/escribia-dev/post-scheduler/backend/internal/notify"
	"github.com/escribia-dev/post-scheduler/backend/internal/overlay"
	"github.com/escribia-dev/post-scheduler/backend/internal/scheduler"
	"github.com/go-chi/chi/v5"
)

type schedulePostRequest struct {
	ScheduledAt time.Time         `json:"scheduledAt" validate:"required"`
	Status      domain.PostStatus `json:"status"`
}

type movePostRequest struct {
	ScheduledAt time.Time `json:"scheduledAt" validate:"required"`
}

var errUnschedulableStatus = errors.New("排期只能把帖子设为 Scheduled 状态")

// postOperation 是一次排期流程在 handler 层的公共部分：加锁、乐观修改、执行、确认或回滚
type postOperation struct {
	title    string
	optimist func(*overlay.Tracker, string) error
	run      func(ctx context.Context, actorID, clientID, postID string) (*scheduler.Outcome, error)
	success  func(*scheduler.Outcome) string
}

func (h *Handler) runPostOperation(w http.ResponseWriter, r *http.Request, op postOperation) {
	myInfo := r.Context().Value(MyInfoCtx).(*domain.User)
	client := r.Context().Value(ClientCtx).(*domain.Client)
	postID := chi.URLParam(r, "postID")

	unlock, err := h.locker.Lock(r.Context(), client.ID, postID)
	if err != nil {
		if errors.Is(err, errOperationInProgress) {
			h.errorResponse(w, r, err.Error())
			return
		}
		h.internalServerError(w, r, err)
		return
	}
	defer unlock()

	tracker, err := h.tracker(r.Context(), client.ID)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	if err := op.optimist(tracker, postID); err != nil {
		if errors.Is(err, overlay.ErrInFlight) {
			h.errorResponse(w, r, "该帖子正在处理中")
			return
		}
		h.internalServerError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.config.Scheduling.OperationTimeout)
	defer cancel()

	outcome, err := op.run(ctx, strconv.FormatInt(myInfo.ID, 10), client.ID, postID)
	if err != nil {
		h.sagaFailed(w, r, tracker, myInfo, op.title, err)
		return
	}

	if outcome.Entry != nil {
		tracker.Confirm(postID, outcome.Entry)
	} else {
		tracker.Clear(postID)
	}

	msg := op.success(outcome)
	h.notifier.Notify(r.Context(), notify.Success(myInfo, op.title, msg))
	h.successResponse(w, r, msg, outcome)
}

// sagaFailed 撤销所有乐观修改，并把排期错误转换成用户可读的提示
func (h *Handler) sagaFailed(w http.ResponseWriter, r *http.Request, tracker *overlay.Tracker, myInfo *domain.User, title string, err error) {
	if rollbackErr := tracker.RollbackAll(context.WithoutCancel(r.Context())); rollbackErr != nil {
		slog.Error("回滚排期列表失败", "error", rollbackErr)
	}

	msg := ""
	switch {
	case errors.Is(err, scheduler.ErrAuthRequired):
		msg = "请先登录"
	case errors.Is(err, scheduler.ErrInvalidRequest):
		msg = "请求参数无效"
	case errors.Is(err, scheduler.ErrPostNotFound):
		msg = "帖子不存在"
	case errors.Is(err, scheduler.ErrNotScheduled):
		msg = "帖子尚未排期"
	case errors.Is(err, scheduler.ErrAlreadyPosted):
		msg = "帖子已经发布，无法取消排期"
	}
	if msg != "" {
		h.errorResponse(w, r, msg)
		return
	}

	var stepErr *scheduler.StepError
	if errors.As(err, &stepErr) {
		slog.Error("排期流程中断",
			"step", stepErr.Step,
			"shard", stepErr.Shard,
			"post", stepErr.PostID,
			"dangling", stepErr.LeavesDanglingEntry(),
		)
		h.notifier.Notify(r.Context(), notify.Failure(myInfo, title, "排期保存失败，请刷新后重试"))
	}

	h.internalServerError(w, r, err)
}

func (h *Handler) scheduledMessage(outcome *scheduler.Outcome) string {
	if outcome.Entry == nil {
		return "排期成功"
	}
	return "已排期至 " + scheduler.DisplayLabel(outcome.Entry.ScheduledAt.In(h.loc))
}

func (h *Handler) SchedulePost(w http.ResponseWriter, r *http.Request) {
	var req schedulePostRequest
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if req.Status != "" && req.Status != domain.PostStatusScheduled {
		h.badRequest(w, r, errUnschedulableStatus)
		return
	}

	status := domain.PostStatusScheduled

	h.runPostOperation(w, r, postOperation{
		title: "排期帖子",
		optimist: func(t *overlay.Tracker, postID string) error {
			return t.Apply(postID, domain.EntryPatch{Status: &status, ScheduledAt: &req.ScheduledAt})
		},
		run: func(ctx context.Context, actorID, clientID, postID string) (*scheduler.Outcome, error) {
			return h.coordinator.Schedule(ctx, scheduler.ScheduleRequest{
				ActorID:     actorID,
				ClientID:    clientID,
				PostID:      postID,
				ScheduledAt: req.ScheduledAt,
				Status:      status,
			})
		},
		success: h.scheduledMessage,
	})
}

func (h *Handler) MovePost(w http.ResponseWriter, r *http.Request) {
	var req movePostRequest
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	h.runPostOperation(w, r, postOperation{
		title: "调整排期",
		optimist: func(t *overlay.Tracker, postID string) error {
			return t.Apply(postID, domain.EntryPatch{ScheduledAt: &req.ScheduledAt})
		},
		run: func(ctx context.Context, actorID, clientID, postID string) (*scheduler.Outcome, error) {
			return h.coordinator.Move(ctx, scheduler.MoveRequest{
				ActorID:     actorID,
				ClientID:    clientID,
				PostID:      postID,
				ScheduledAt: req.ScheduledAt,
			})
		},
		success: h.scheduledMessage,
	})
}

func (h *Handler) CancelPost(w http.ResponseWriter, r *http.Request) {
	h.runPostOperation(w, r, postOperation{
		title: "取消排期",
		optimist: func(t *overlay.Tracker, postID string) error {
			return t.Remove(postID)
		},
		run: func(ctx context.Context, actorID, clientID, postID string) (*scheduler.Outcome, error) {
			return h.coordinator.Cancel(ctx, scheduler.CancelRequest{
				ActorID:  actorID,
				ClientID: clientID,
				PostID:   postID,
			})
		},
		success: func(outcome *scheduler.Outcome) string {
			if outcome.NoOp {
				return "帖子没有排期，无需取消"
			}
			return "已取消排期"
		},
	})
}

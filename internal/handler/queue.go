package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
	"github.com/escribia-dev/post-scheduler/backend/internal/overlay"
)

type shardEntriesReader interface {
	GetShardEntries(ctx context.Context, clientID string, months []string) ([]domain.ScheduleEntry, error)
}

// clientQueue 是缓存的排期列表和最近一次被访问的时间
type clientQueue struct {
	tracker  *overlay.Tracker
	lastUsed time.Time
}

// tracker 返回客户的可见排期列表，第一次访问时加载默认窗口。
// 其他实例和对账任务的写入不会经过这里，所以距上次整体读取超过 QueueTTL 时重新读取。
func (h *Handler) tracker(ctx context.Context, clientID string) (*overlay.Tracker, error) {
	now := h.now()

	h.trackersMu.Lock()
	h.evictIdleQueues(clientID, now)
	queue, exists := h.trackers[clientID]
	if !exists {
		queue = &clientQueue{tracker: overlay.NewTracker(func(ctx context.Context, months []string) ([]domain.ScheduleEntry, error) {
			return h.entries.GetShardEntries(ctx, clientID, months)
		}, h.loc, h.now)}
		h.trackers[clientID] = queue
	}
	queue.lastUsed = now
	h.trackersMu.Unlock()

	tracker := queue.tracker
	if !exists {
		if err := tracker.Load(ctx); err != nil {
			// 加载失败时不缓存，下一次请求重新加载
			h.trackersMu.Lock()
			if h.trackers[clientID] == queue {
				delete(h.trackers, clientID)
			}
			h.trackersMu.Unlock()
			return nil, err
		}
		return tracker, nil
	}

	// 并发的第一次加载尚未完成时 SyncedAt 为零，也会走到这里
	if ttl := h.config.Scheduling.QueueTTL; ttl > 0 && now.Sub(tracker.SyncedAt()) > ttl {
		if err := tracker.Refetch(ctx); err != nil {
			return nil, err
		}
	}

	return tracker, nil
}

// evictIdleQueues 丢弃闲置超过 QueueIdle 且没有未确认修改的列表，调用方持有 trackersMu
func (h *Handler) evictIdleQueues(current string, now time.Time) {
	idle := h.config.Scheduling.QueueIdle
	if idle <= 0 {
		return
	}
	for clientID, queue := range h.trackers {
		if clientID == current || now.Sub(queue.lastUsed) <= idle || queue.tracker.Pending() > 0 {
			continue
		}
		delete(h.trackers, clientID)
		slog.Debug("丢弃闲置的排期列表", "client_id", clientID)
	}
}

type queueResponse struct {
	Months []string               `json:"months"`
	Posts  []domain.ScheduleEntry `json:"posts"`
}

func queueOf(tracker *overlay.Tracker) queueResponse {
	return queueResponse{
		Months: tracker.LoadedMonths(),
		Posts:  tracker.Posts(),
	}
}

func (h *Handler) GetQueue(w http.ResponseWriter, r *http.Request) {
	client := r.Context().Value(ClientCtx).(*domain.Client)

	tracker, err := h.tracker(r.Context(), client.ID)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取排期列表成功", queueOf(tracker))
}

type queueMonthsRequest struct {
	Months int `json:"months" validate:"omitempty,min=1,max=12"`
}

func (h *Handler) loadQueueMonths(w http.ResponseWriter, r *http.Request, load func(*overlay.Tracker, context.Context, int) error) {
	client := r.Context().Value(ClientCtx).(*domain.Client)

	var req queueMonthsRequest
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if req.Months == 0 {
		req.Months = 1
	}

	tracker, err := h.tracker(r.Context(), client.ID)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	if err := load(tracker, r.Context(), req.Months); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "加载排期列表成功", queueOf(tracker))
}

func (h *Handler) LoadMoreQueueMonths(w http.ResponseWriter, r *http.Request) {
	h.loadQueueMonths(w, r, (*overlay.Tracker).LoadMoreMonths)
}

func (h *Handler) LoadPreviousQueueMonths(w http.ResponseWriter, r *http.Request) {
	h.loadQueueMonths(w, r, (*overlay.Tracker).LoadPreviousMonths)
}

func (h *Handler) RefreshQueue(w http.ResponseWriter, r *http.Request) {
	client := r.Context().Value(ClientCtx).(*domain.Client)

	tracker, err := h.tracker(r.Context(), client.ID)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	if err := tracker.Refetch(r.Context()); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "排期列表已刷新", queueOf(tracker))
}

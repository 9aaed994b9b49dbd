package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
	"github.com/escribia-dev/post-scheduler/backend/internal/scheduler"
	"github.com/go-chi/chi/v5"
)

const maxHorizonDays = 366

// positiveQueryInt 读取正整数查询参数，缺省时返回 fallback
func positiveQueryInt(r *http.Request, name string, fallback, limit int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("参数 %s 必须是正整数", name)
	}
	if n > limit {
		return 0, fmt.Errorf("参数 %s 不能超过 %d", name, limit)
	}
	return n, nil
}

type nextSlotsResponse struct {
	Configured  bool               `json:"configured"`
	FullyBooked bool               `json:"fullyBooked"`
	Candidates  []domain.Candidate `json:"candidates"`
}

func (h *Handler) GetNextSlots(w http.ResponseWriter, r *http.Request) {
	client := r.Context().Value(ClientCtx).(*domain.Client)
	profileID := chi.URLParam(r, "profileID")

	count, err := positiveQueryInt(r, "count", h.config.Scheduling.SearchCount, 50)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	horizonDays, err := positiveQueryInt(r, "horizonDays", h.config.Scheduling.HorizonDays, maxHorizonDays)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	cfg, err := h.resolver.Resolve(r.Context(), client.ID)
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrConfigurationMissing):
			h.configurationMissing(w, r, client.ID)
		case errors.Is(err, scheduler.ErrInvalidConfig):
			h.errorResponse(w, r, "排期配置无效，请重新设置")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	candidates, err := h.search.FindNextSlots(r.Context(), client.ID, profileID, cfg, scheduler.SearchOptions{
		Count:       count,
		HorizonDays: horizonDays,
	})
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrConfigurationMissing):
			h.configurationMissing(w, r, client.ID)
		case errors.Is(err, scheduler.ErrNoCandidateSlots):
			h.successResponse(w, r, fmt.Sprintf("未来 %d 天内的时段已全部排满", horizonDays), nextSlotsResponse{
				Configured:  true,
				FullyBooked: true,
				Candidates:  []domain.Candidate{},
			})
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "获取可用时段成功", nextSlotsResponse{
		Configured: true,
		Candidates: candidates,
	})
}

package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
	"github.com/escribia-dev/post-scheduler/backend/internal/scheduler"
)

type scheduleConfigRequest struct {
	ActiveDays          []string                                  `json:"activeDays" validate:"omitempty,dive,weekday"`
	PredefinedTimeSlots []string                                  `json:"predefinedTimeSlots" validate:"omitempty,dive,timeofday"`
	TimeslotsData       map[string]map[string][]domain.ProfileRef `json:"timeslotsData" validate:"omitempty,dive,keys,weekday,endkeys,dive,keys,timeofday,endkeys"`
}

var (
	errBothConfigForms    = errors.New("只能提交一种排期配置格式")
	errMissingConfigForms = errors.New("请提交排期配置")
)

// document 把请求转换成要保存的配置文档，只保留请求中使用的那种格式
func (req *scheduleConfigRequest) document() ([]byte, error) {
	isLegacy := req.ActiveDays != nil || req.PredefinedTimeSlots != nil
	isCurrent := req.TimeslotsData != nil

	switch {
	case isLegacy && isCurrent:
		return nil, errBothConfigForms
	case isCurrent:
		return json.Marshal(domain.CurrentScheduleConfig{TimeslotsData: req.TimeslotsData})
	case isLegacy:
		legacy := domain.LegacyScheduleConfig{
			ActiveDays:          req.ActiveDays,
			PredefinedTimeSlots: req.PredefinedTimeSlots,
		}
		if legacy.ActiveDays == nil {
			legacy.ActiveDays = []string{}
		}
		if legacy.PredefinedTimeSlots == nil {
			legacy.PredefinedTimeSlots = []string{}
		}
		return json.Marshal(legacy)
	default:
		return nil, errMissingConfigForms
	}
}

type scheduleConfigResponse struct {
	Configured bool                                      `json:"configured"`
	Schema     scheduler.Schema                          `json:"schema"`
	Document   json.RawMessage                           `json:"document"`
	Slots      map[string]map[string]scheduler.Allowance `json:"slots"`
	UpdatedAt  time.Time                                 `json:"updatedAt"`
}

func (h *Handler) GetScheduleConfig(w http.ResponseWriter, r *http.Request) {
	client := r.Context().Value(ClientCtx).(*domain.Client)

	doc, err := h.repository.GetScheduleConfigDocument(r.Context(), client.ID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.configurationMissing(w, r, client.ID)
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	cfg, err := scheduler.NormalizeConfig(doc.Document)
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

	h.successResponse(w, r, "获取排期配置成功", scheduleConfigResponse{
		Configured: true,
		Schema:     cfg.Schema,
		Document:   doc.Document,
		Slots:      cfg.View(),
		UpdatedAt:  doc.UpdatedAt,
	})
}

func (h *Handler) UpdateScheduleConfig(w http.ResponseWriter, r *http.Request) {
	client := r.Context().Value(ClientCtx).(*domain.Client)

	var req scheduleConfigRequest
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	document, err := req.document()
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	cfg, err := scheduler.NormalizeConfig(document)
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrInvalidConfig):
			h.badRequest(w, r, errors.New("排期配置无效"))
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	doc := &domain.ScheduleConfigDocument{
		ClientID: client.ID,
		Document: document,
	}
	if err := h.repository.PutScheduleConfigDocument(r.Context(), doc); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "排期配置已保存", scheduleConfigResponse{
		Configured: !cfg.IsEmpty(),
		Schema:     cfg.Schema,
		Document:   doc.Document,
		Slots:      cfg.View(),
		UpdatedAt:  doc.UpdatedAt,
	})
}

package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/escribia-dev/post-scheduler/backend/internal/calendar"
	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
	"github.com/escribia-dev/post-scheduler/backend/internal/utils"
)

// calendarMonths 返回从 from 开始的连续 n 个月
func calendarMonths(from string, n int) ([]string, error) {
	months := make([]string, 0, n)
	for i := 0; i < n; i++ {
		month, err := utils.AddMonths(from, i)
		if err != nil {
			return nil, err
		}
		months = append(months, month)
	}
	return months, nil
}

func (h *Handler) ExportCalendar(w http.ResponseWriter, r *http.Request) {
	client := r.Context().Value(ClientCtx).(*domain.Client)

	from := r.URL.Query().Get("from")
	if from == "" {
		from = utils.YearMonth(h.now(), h.loc)
	} else if _, err := utils.ParseYearMonth(from); err != nil {
		h.badRequest(w, r, errors.New("参数 from 必须是 YYYY-MM 格式"))
		return
	}

	n, err := positiveQueryInt(r, "months", 3, 12)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	months, err := calendarMonths(from, n)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	entries, err := h.entries.GetShardEntries(r.Context(), client.ID, months)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.ics"`, client.ID))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(calendar.Export(client.Name, entries, h.now()))); err != nil {
		h.logInternalServerError(r, err)
	}
}

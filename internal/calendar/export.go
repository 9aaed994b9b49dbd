// Package calendar 把排期条目导出为 iCalendar 格式，供外部日历订阅
package calendar

import (
	"fmt"
	"sort"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
)

const (
	productID = "-//escribia//post-scheduler//ZH"
	// 发帖没有持续时间，日历中每条占用固定的时长
	slotDuration = 30 * time.Minute
)

// Export 生成客户的排期日历，没有时间的条目会被跳过
func Export(clientName string, entries []domain.ScheduleEntry, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetName(clientName)

	sorted := make([]domain.ScheduleEntry, 0, len(entries))
	for _, entry := range entries {
		if entryStart(entry).IsZero() {
			continue
		}
		sorted = append(sorted, entry)
	}
	sort.Slice(sorted, func(i, j int) bool {
		a, b := entryStart(sorted[i]), entryStart(sorted[j])
		if !a.Equal(b) {
			return a.Before(b)
		}
		return sorted[i].PostID < sorted[j].PostID
	})

	for _, entry := range sorted {
		start := entryStart(entry)

		event := cal.AddEvent(fmt.Sprintf("%s@post-scheduler", entry.PostID))
		event.SetDtStampTime(stamp)
		event.SetStartAt(start)
		event.SetEndAt(start.Add(slotDuration))
		event.SetSummary(summary(entry))
		event.SetDescription(fmt.Sprintf("状态: %s", entry.Status))
		if entry.ProfileName != "" {
			event.SetProperty(ical.ComponentPropertyCategories, entry.ProfileName)
		}
	}

	return cal.Serialize()
}

func entryStart(entry domain.ScheduleEntry) time.Time {
	if !entry.ScheduledAt.IsZero() {
		return entry.ScheduledAt
	}
	if entry.PostedAt != nil {
		return *entry.PostedAt
	}
	return time.Time{}
}

func summary(entry domain.ScheduleEntry) string {
	title := entry.Title
	if title == "" {
		title = entry.PostID
	}
	if entry.ProfileName == "" {
		return title
	}
	return fmt.Sprintf("[%s] %s", entry.ProfileName, title)
}

package domain

import "time"

type PostStatus string

const (
	PostStatusDrafted            PostStatus = "Drafted"
	PostStatusNeedsVisual        PostStatus = "Needs Visual"
	PostStatusWaitingForApproval PostStatus = "Waiting for Approval"
	PostStatusApproved           PostStatus = "Approved"
	PostStatusScheduled          PostStatus = "Scheduled"
	PostStatusPosted             PostStatus = "Posted"
	PostStatusError              PostStatus = "Error"
)

var PostStatuses = []PostStatus{
	PostStatusDrafted,
	PostStatusNeedsVisual,
	PostStatusWaitingForApproval,
	PostStatusApproved,
	PostStatusScheduled,
	PostStatusPosted,
	PostStatusError,
}

// ScheduleEntry 是月分片（YYYY-MM）中以 postId 为键的一条排期记录
type ScheduleEntry struct {
	PostID        string     `json:"postId"`
	ProfileID     string     `json:"profileId"`
	ProfileName   string     `json:"profileName"`
	Title         string     `json:"title"`
	Status        PostStatus `json:"status"`
	ScheduledAt   time.Time  `json:"scheduledAt"`
	TimeOfDay     string     `json:"timeOfDay"`
	ScheduledDate string     `json:"scheduledDate"`
	PostedAt      *time.Time `json:"postedAt,omitempty"`
	Message       string     `json:"message,omitempty"`
}

// EntryPatch 描述对可见排期列表的一次局部修改，nil 字段保持原值
type EntryPatch struct {
	ProfileID   *string     `json:"profileId,omitempty"`
	ProfileName *string     `json:"profileName,omitempty"`
	Title       *string     `json:"title,omitempty"`
	Status      *PostStatus `json:"status,omitempty"`
	ScheduledAt *time.Time  `json:"scheduledAt,omitempty"`
	TimeOfDay   *string     `json:"timeOfDay,omitempty"`
}

func (p EntryPatch) ApplyTo(entry *ScheduleEntry) {
	if p.ProfileID != nil {
		entry.ProfileID = *p.ProfileID
	}
	if p.ProfileName != nil {
		entry.ProfileName = *p.ProfileName
	}
	if p.Title != nil {
		entry.Title = *p.Title
	}
	if p.Status != nil {
		entry.Status = *p.Status
	}
	if p.ScheduledAt != nil {
		entry.ScheduledAt = *p.ScheduledAt
	}
	if p.TimeOfDay != nil {
		entry.TimeOfDay = *p.TimeOfDay
	}
}

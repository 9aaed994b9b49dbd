package domain

import "time"

// Post 是规范的帖子记录，排期状态以它为准
type Post struct {
	ClientID    string     `json:"clientID"`
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	ProfileID   string     `json:"profileId"`
	ProfileName string     `json:"profileName"`
	Status      PostStatus `json:"status"`
	ScheduledAt *time.Time `json:"scheduledAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Version     int32      `json:"-"`
}

// PostFields 是对帖子记录的合并写入，ClearScheduledAt 与设置 ScheduledAt 是两种不同的写入意图
type PostFields struct {
	Status           *PostStatus
	ScheduledAt      *time.Time
	ClearScheduledAt bool
}

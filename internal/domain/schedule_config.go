package domain

import "time"

type ProfileRef struct {
	ProfileID   string `json:"profileId" yaml:"profileId"`
	ProfileName string `json:"profileName" yaml:"profileName"`
}

// LegacyScheduleConfig 是旧版的排期配置：所有启用的日子共用同一组时间点，并且对所有 profile 开放
type LegacyScheduleConfig struct {
	ActiveDays          []string `json:"activeDays" yaml:"activeDays"`
	PredefinedTimeSlots []string `json:"predefinedTimeSlots" yaml:"predefinedTimeSlots"`
}

// CurrentScheduleConfig 是新版的排期配置：weekday -> "HH:MM" -> 允许使用的 profile，空列表表示通用时段
type CurrentScheduleConfig struct {
	TimeslotsData map[string]map[string][]ProfileRef `json:"timeslotsData" yaml:"timeslotsData"`
}

// ScheduleConfigDocument 是存储中的原始配置文档，两种格式只会出现一种
type ScheduleConfigDocument struct {
	ClientID  string    `json:"clientID"`
	Document  []byte    `json:"-"`
	UpdatedAt time.Time `json:"updatedAt"`
}

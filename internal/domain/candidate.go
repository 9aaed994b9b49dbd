package domain

import "time"

// Candidate 是一次检索得出的候选时段，不会被持久化
type Candidate struct {
	Date                   string    `json:"date"`
	TimeOfDay              string    `json:"timeOfDay"`
	DisplayLabel           string    `json:"displayLabel"`
	IsGeneric              bool      `json:"isGeneric"`
	AllowedProfileNames    []string  `json:"allowedProfileNames"`
	ConflictingProfileName *string   `json:"conflictingProfileName"`
	ScheduledAt            time.Time `json:"scheduledAt"`
}

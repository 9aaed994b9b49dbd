package domain

type NotificationKind string

const (
	NotificationSuccess NotificationKind = "success"
	NotificationError   NotificationKind = "error"
)

type Notification struct {
	Kind     NotificationKind `json:"kind"`
	Title    string           `json:"title"`
	Message  string           `json:"message"`
	To       string           `json:"to"`
	FullName string           `json:"fullName"`
}

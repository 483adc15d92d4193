package domain

import "time"

type NotificationID string

type Notification struct {
	ID        NotificationID
	Type      string
	Message   string
	Link      string
	IsRead    bool
	CreatedAt time.Time
}

// NotificationPage is the server baseline: the absolute unread count and
// the most recent notifications, newest first.
type NotificationPage struct {
	Count         int
	Notifications []Notification
}

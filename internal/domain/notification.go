package domain

import "time"

// Related entity kinds stored in notifications.related_type.
const (
	RelatedTask   = "task"
	RelatedDigest = "task_digest"
)

type Notification struct {
	ID          int64
	UserID      int64
	Title       string
	Message     string
	IsRead      bool
	RelatedType *string
	RelatedID   *int64
	CreatedAt   time.Time
}

package domain

import (
	"context"
	"time"
)

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusOverdue   TaskStatus = "overdue"
)

// Task is a row of a house's tasks table. Nullable columns are pointers.
type Task struct {
	ID          int64
	HouseID     int64
	Title       string
	Description string
	TaskTypeID  *int64
	Status      TaskStatus
	Priority    string
	DueDate     time.Time
	AssignedTo  *int64
	CreatedBy   int64
	DocumentID  *int64
}

// Recipient returns the user a notification about t is addressed to:
// the assignee, or the creator when the task is unassigned.
func (t *Task) Recipient() int64 {
	if t.AssignedTo != nil {
		return *t.AssignedTo
	}
	return t.CreatedBy
}

// RecurringTask is a completed task joined with its recurrence rule.
type RecurringTask struct {
	Task Task
	Rule RecurrenceRule
}

// TaskTx is the set of operations the batch jobs run inside one house
// transaction. All calls share the transaction; nothing is visible to other
// sessions until the surrounding HouseStore.InTx returns nil.
type TaskTx interface {
	// AdvisoryLock blocks until the transaction-scoped lock for key is held.
	AdvisoryLock(ctx context.Context, key int64) error
	ListRecurrenceCandidates(ctx context.Context, today time.Time) ([]*RecurringTask, error)
	CreateTask(ctx context.Context, t *Task) (int64, error)
	CreateRecurrenceRule(ctx context.Context, taskID int64, rule RecurrenceRule) error
	MarkOverdue(ctx context.Context, today time.Time) ([]*Task, error)
	ListPendingDueOn(ctx context.Context, day time.Time) ([]*Task, error)
	InstallmentForTask(ctx context.Context, taskID int64) (*Installment, error)
	CreateNotification(ctx context.Context, n *Notification) (int64, error)
}

// HouseStore opens transactions against one house database.
type HouseStore interface {
	InTx(ctx context.Context, fn func(tx TaskTx) error) error
}

package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/homeops/internal/domain"
	"github.com/gosuda/homeops/internal/jobs"
)

func pendingTask(title string, assignee *int64, creator int64, due time.Time) domain.Task {
	return domain.Task{
		Title:      title,
		Status:     domain.TaskStatusPending,
		Priority:   "medium",
		DueDate:    due,
		AssignedTo: assignee,
		CreatedBy:  creator,
	}
}

func TestOverdueSweeper_OnlyPastDue(t *testing.T) {
	t.Parallel()

	today := date(2024, 5, 10)

	h := newMemHouse(1)
	yesterday := h.addTask(pendingTask("Yesterday", ptr(int64(4)), 1, today.AddDate(0, 0, -1)), nil)
	todayID := h.addTask(pendingTask("Today", ptr(int64(4)), 1, today), nil)
	tomorrow := h.addTask(pendingTask("Tomorrow", ptr(int64(4)), 1, today.AddDate(0, 0, 1)), nil)

	notifier := &recordingNotifier{}
	sweeper := jobs.NewOverdueSweeper(newFakeStores(h), fixedClock{now: today.Add(23 * time.Hour)}, notifier)

	n, err := sweeper.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, domain.TaskStatusOverdue, h.task(yesterday).Status)
	assert.Equal(t, domain.TaskStatusPending, h.task(todayID).Status)
	assert.Equal(t, domain.TaskStatusPending, h.task(tomorrow).Status)

	notes := h.notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, int64(4), notes[0].UserID)
	assert.Equal(t, "Task overdue", notes[0].Title)
	assert.Contains(t, notes[0].Message, `"Yesterday"`)
	assert.Contains(t, notes[0].Message, "2024-05-09")
	require.NotNil(t, notes[0].RelatedType)
	assert.Equal(t, domain.RelatedTask, *notes[0].RelatedType)
	require.NotNil(t, notes[0].RelatedID)
	assert.Equal(t, yesterday, *notes[0].RelatedID)

	require.Len(t, notifier.calls[1], 1)
	assert.Equal(t, int64(4), notifier.calls[1][0].UserID)

	// Nothing left to sweep.
	n, err = sweeper.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, h.notifications(), 1)
}

func TestOverdueSweeper_UnassignedNotifiesCreator(t *testing.T) {
	t.Parallel()

	h := newMemHouse(1)
	h.addTask(pendingTask("Orphan", nil, 8, date(2024, 1, 1)), nil)

	sweeper := jobs.NewOverdueSweeper(newFakeStores(h), fixedClock{now: date(2024, 1, 5)}, nil)
	n, err := sweeper.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	notes := h.notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, int64(8), notes[0].UserID)
}

func TestOverdueSweeper_InstallmentAmount(t *testing.T) {
	t.Parallel()

	h := newMemHouse(1)
	id := h.addTask(pendingTask("Pay rent", ptr(int64(2)), 1, date(2024, 1, 1)), nil)
	h.installments = []*domain.Installment{{
		ID:      5,
		TaskID:  &id,
		Amount:  decimal.RequireFromString("1250.5"),
		DueDate: date(2024, 1, 1),
	}}

	sweeper := jobs.NewOverdueSweeper(newFakeStores(h), fixedClock{now: date(2024, 1, 2)}, nil)
	_, err := sweeper.Run(context.Background(), 1)
	require.NoError(t, err)

	notes := h.notifications()
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Message, "Installment amount: 1250.50.")
}

func TestOverdueSweeper_NotificationFailureRollsBack(t *testing.T) {
	t.Parallel()

	h := newMemHouse(1)
	a := h.addTask(pendingTask("A", ptr(int64(2)), 1, date(2024, 1, 1)), nil)
	b := h.addTask(pendingTask("B", ptr(int64(3)), 1, date(2024, 1, 1)), nil)
	h.failNotificationCall = 2

	notifier := &recordingNotifier{}
	sweeper := jobs.NewOverdueSweeper(newFakeStores(h), fixedClock{now: date(2024, 1, 2)}, notifier)

	n, err := sweeper.Run(context.Background(), 1)
	require.ErrorIs(t, err, errInjected)
	assert.Equal(t, 0, n)

	assert.Equal(t, domain.TaskStatusPending, h.task(a).Status, "status update must roll back with notifications")
	assert.Equal(t, domain.TaskStatusPending, h.task(b).Status)
	assert.Empty(t, h.notifications())
	assert.Empty(t, notifier.calls, "nothing is fanned out for a rolled back batch")
}

func TestOverdueSweeper_NotifierErrorDoesNotFailRun(t *testing.T) {
	t.Parallel()

	h := newMemHouse(1)
	h.addTask(pendingTask("A", ptr(int64(2)), 1, date(2024, 1, 1)), nil)

	notifier := &recordingNotifier{err: errInjected}
	sweeper := jobs.NewOverdueSweeper(newFakeStores(h), fixedClock{now: date(2024, 1, 2)}, notifier)

	n, err := sweeper.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, h.notifications(), 1)
}

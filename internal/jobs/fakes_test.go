package jobs_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/gosuda/homeops/internal/domain"
)

var errInjected = errors.New("injected failure")

// ---------------------------------------------------------------------------
// memHouse is an in-memory house database with transaction semantics: each
// InTx works on a copy that replaces the committed state only on success.
// ---------------------------------------------------------------------------

type memState struct {
	nextID int64
	tasks  []*domain.Task
	rules  map[int64]domain.RecurrenceRule
	notes  []*domain.Notification
}

func (s *memState) clone() *memState {
	c := &memState{
		nextID: s.nextID,
		rules:  make(map[int64]domain.RecurrenceRule, len(s.rules)),
	}
	for _, t := range s.tasks {
		cp := *t
		c.tasks = append(c.tasks, &cp)
	}
	for k, v := range s.rules {
		c.rules[k] = v
	}
	for _, n := range s.notes {
		cp := *n
		c.notes = append(c.notes, &cp)
	}
	return c
}

type memHouse struct {
	houseID int64

	mu           sync.Mutex
	state        *memState
	installments []*domain.Installment
	locks        []int64
	commits      int
	rollbacks    int

	beginErr             error
	failCreateTaskCall   int // 1-based CreateTask call within a tx that fails
	failNotificationCall int
}

func newMemHouse(houseID int64) *memHouse {
	return &memHouse{
		houseID: houseID,
		state:   &memState{nextID: 1, rules: make(map[int64]domain.RecurrenceRule)},
	}
}

func (h *memHouse) InTx(_ context.Context, fn func(tx domain.TaskTx) error) error {
	if h.beginErr != nil {
		return h.beginErr
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	tx := &memTx{house: h, state: h.state.clone()}
	if err := fn(tx); err != nil {
		h.rollbacks++
		return err
	}
	h.state = tx.state
	h.commits++
	return nil
}

// addTask inserts committed test data and returns its id.
func (h *memHouse) addTask(t domain.Task, rule *domain.RecurrenceRule) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	t.ID = h.state.nextID
	t.HouseID = h.houseID
	h.state.nextID++
	h.state.tasks = append(h.state.tasks, &t)
	if rule != nil {
		h.state.rules[t.ID] = *rule
	}
	return t.ID
}

func (h *memHouse) tasks() []domain.Task {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.Task, 0, len(h.state.tasks))
	for _, t := range h.state.tasks {
		out = append(out, *t)
	}
	return out
}

func (h *memHouse) task(id int64) domain.Task {
	for _, t := range h.tasks() {
		if t.ID == id {
			return t
		}
	}
	return domain.Task{}
}

func (h *memHouse) rule(taskID int64) (domain.RecurrenceRule, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.state.rules[taskID]
	return r, ok
}

func (h *memHouse) notifications() []domain.Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.Notification, 0, len(h.state.notes))
	for _, n := range h.state.notes {
		out = append(out, *n)
	}
	return out
}

type memTx struct {
	house *memHouse
	state *memState

	createTaskCalls   int
	notificationCalls int
}

func (tx *memTx) AdvisoryLock(_ context.Context, key int64) error {
	tx.house.locks = append(tx.house.locks, key)
	return nil
}

func (tx *memTx) ListRecurrenceCandidates(_ context.Context, today time.Time) ([]*domain.RecurringTask, error) {
	var out []*domain.RecurringTask
	for _, t := range tx.state.tasks {
		rule, ok := tx.state.rules[t.ID]
		if !ok || t.Status != domain.TaskStatusCompleted {
			continue
		}
		if rule.EndDate != nil && !rule.EndDate.After(today) {
			continue
		}
		later := slices.ContainsFunc(tx.state.tasks, func(u *domain.Task) bool {
			return u.Title == t.Title && u.CreatedBy == t.CreatedBy && u.DueDate.After(t.DueDate)
		})
		if later {
			continue
		}
		out = append(out, &domain.RecurringTask{Task: *t, Rule: rule})
	}
	return out, nil
}

func (tx *memTx) CreateTask(_ context.Context, t *domain.Task) (int64, error) {
	tx.createTaskCalls++
	if tx.house.failCreateTaskCall == tx.createTaskCalls {
		return 0, errInjected
	}
	cp := *t
	cp.ID = tx.state.nextID
	tx.state.nextID++
	tx.state.tasks = append(tx.state.tasks, &cp)
	return cp.ID, nil
}

func (tx *memTx) CreateRecurrenceRule(_ context.Context, taskID int64, rule domain.RecurrenceRule) error {
	tx.state.rules[taskID] = rule
	return nil
}

func (tx *memTx) MarkOverdue(_ context.Context, today time.Time) ([]*domain.Task, error) {
	var out []*domain.Task
	for _, t := range tx.state.tasks {
		if t.Status == domain.TaskStatusPending && t.DueDate.Before(today) {
			t.Status = domain.TaskStatusOverdue
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (tx *memTx) ListPendingDueOn(_ context.Context, day time.Time) ([]*domain.Task, error) {
	var out []*domain.Task
	for _, t := range tx.state.tasks {
		if t.Status == domain.TaskStatusPending && t.DueDate.Equal(day) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (tx *memTx) InstallmentForTask(_ context.Context, taskID int64) (*domain.Installment, error) {
	for _, inst := range tx.house.installments {
		if inst.TaskID != nil && *inst.TaskID == taskID {
			return inst, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (tx *memTx) CreateNotification(_ context.Context, n *domain.Notification) (int64, error) {
	tx.notificationCalls++
	if tx.house.failNotificationCall == tx.notificationCalls {
		return 0, errInjected
	}
	n.ID = int64(len(tx.state.notes) + 1)
	n.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cp := *n
	tx.state.notes = append(tx.state.notes, &cp)
	return n.ID, nil
}

// ---------------------------------------------------------------------------
// fakeStores maps house ids to memHouses.
// ---------------------------------------------------------------------------

type fakeStores struct {
	houses  map[int64]*memHouse
	openErr map[int64]error
}

func newFakeStores(houses ...*memHouse) *fakeStores {
	s := &fakeStores{houses: make(map[int64]*memHouse), openErr: make(map[int64]error)}
	for _, h := range houses {
		s.houses[h.houseID] = h
	}
	return s
}

func (s *fakeStores) Open(_ context.Context, houseID int64) (domain.HouseStore, error) {
	if err := s.openErr[houseID]; err != nil {
		return nil, err
	}
	h, ok := s.houses[houseID]
	if !ok {
		return nil, domain.ErrUnavailable
	}
	return h, nil
}

// ---------------------------------------------------------------------------
// Misc fakes
// ---------------------------------------------------------------------------

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type recordingNotifier struct {
	mu    sync.Mutex
	calls map[int64][]*domain.Notification
	err   error
}

func (n *recordingNotifier) NotificationsCreated(_ context.Context, houseID int64, notes []*domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.calls == nil {
		n.calls = make(map[int64][]*domain.Notification)
	}
	n.calls[houseID] = append(n.calls[houseID], notes...)
	return n.err
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

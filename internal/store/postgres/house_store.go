package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/gosuda/homeops/internal/domain"
	"github.com/gosuda/homeops/internal/tenant"
)

// PoolSource hands out house pools. *tenant.Registry satisfies this interface.
type PoolSource interface {
	Pool(ctx context.Context, houseID int64) (tenant.Pool, error)
}

// Houses opens HouseStores through the tenant registry.
type Houses struct {
	pools PoolSource
}

func NewHouses(pools PoolSource) *Houses {
	return &Houses{pools: pools}
}

func (h *Houses) Open(ctx context.Context, houseID int64) (domain.HouseStore, error) {
	pool, err := h.pools.Pool(ctx, houseID)
	if err != nil {
		return nil, fmt.Errorf("postgres.Houses.Open: %w", err)
	}
	return NewHouseStore(pool), nil
}

// HouseStore runs transactions against one house database.
type HouseStore struct {
	pool tenant.Pool
}

func NewHouseStore(pool tenant.Pool) *HouseStore {
	return &HouseStore{pool: pool}
}

// InTx runs fn in a transaction. The transaction commits only when fn
// returns nil and is rolled back on every other path.
func (s *HouseStore) InTx(ctx context.Context, fn func(tx domain.TaskTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("houseStore.InTx: begin: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Warn().Err(rbErr).Msg("houseStore: rollback failed")
		}
	}()

	if err := fn(&taskTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("houseStore.InTx: commit: %w", err)
	}

	return nil
}

const taskColumns = `id, title, COALESCE(description, ''), task_type_id, status, priority,
	        due_date, assigned_to, created_by, house_id, document_id`

type taskTx struct {
	tx pgx.Tx
}

func (t *taskTx) AdvisoryLock(ctx context.Context, key int64) error {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, key); err != nil {
		return fmt.Errorf("taskTx.AdvisoryLock: %w", err)
	}
	return nil
}

// ListRecurrenceCandidates returns completed tasks with a live recurrence
// rule for which no later task with the same title and creator exists.
func (t *taskTx) ListRecurrenceCandidates(ctx context.Context, today time.Time) ([]*domain.RecurringTask, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT t.id, t.title, COALESCE(t.description, ''), t.task_type_id, t.status, t.priority,
		        t.due_date, t.assigned_to, t.created_by, t.house_id, t.document_id,
		        r.recurrence_type, r.interval_value, r.end_date
		 FROM tasks t
		 JOIN task_recurrence r ON r.task_id = t.id
		 WHERE t.status = 'completed'
		   AND (r.end_date IS NULL OR r.end_date > $1)
		   AND NOT EXISTS (
		       SELECT 1 FROM tasks later
		       WHERE later.title = t.title
		         AND later.created_by = t.created_by
		         AND later.due_date > t.due_date
		   )
		 ORDER BY t.id`,
		today,
	)
	if err != nil {
		return nil, fmt.Errorf("taskTx.ListRecurrenceCandidates: %w", err)
	}
	defer rows.Close()

	var out []*domain.RecurringTask
	for rows.Next() {
		var rt domain.RecurringTask
		task := &rt.Task
		if err := rows.Scan(
			&task.ID, &task.Title, &task.Description, &task.TaskTypeID, &task.Status, &task.Priority,
			&task.DueDate, &task.AssignedTo, &task.CreatedBy, &task.HouseID, &task.DocumentID,
			&rt.Rule.Type, &rt.Rule.Interval, &rt.Rule.EndDate,
		); err != nil {
			return nil, fmt.Errorf("taskTx.ListRecurrenceCandidates: scan: %w", err)
		}
		out = append(out, &rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("taskTx.ListRecurrenceCandidates: rows: %w", err)
	}

	return out, nil
}

func (t *taskTx) CreateTask(ctx context.Context, task *domain.Task) (int64, error) {
	var id int64

	err := t.tx.QueryRow(ctx,
		`INSERT INTO tasks (title, description, task_type_id, status, priority, due_date,
		                    assigned_to, created_by, house_id, document_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		task.Title, task.Description, task.TaskTypeID, task.Status, task.Priority, task.DueDate,
		task.AssignedTo, task.CreatedBy, task.HouseID, task.DocumentID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("taskTx.CreateTask: %w", err)
	}

	return id, nil
}

func (t *taskTx) CreateRecurrenceRule(ctx context.Context, taskID int64, rule domain.RecurrenceRule) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO task_recurrence (task_id, recurrence_type, interval_value, end_date)
		 VALUES ($1, $2, $3, $4)`,
		taskID, rule.Type, rule.Interval, rule.EndDate,
	)
	if err != nil {
		return fmt.Errorf("taskTx.CreateRecurrenceRule: %w", err)
	}

	return nil
}

// MarkOverdue moves pending tasks due before today to overdue and returns them.
func (t *taskTx) MarkOverdue(ctx context.Context, today time.Time) ([]*domain.Task, error) {
	rows, err := t.tx.Query(ctx,
		`UPDATE tasks SET status = 'overdue', updated_at = now()
		 WHERE status = 'pending' AND due_date < $1
		 RETURNING `+taskColumns,
		today,
	)
	if err != nil {
		return nil, fmt.Errorf("taskTx.MarkOverdue: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows, "taskTx.MarkOverdue")
}

func (t *taskTx) ListPendingDueOn(ctx context.Context, day time.Time) ([]*domain.Task, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks
		 WHERE status = 'pending' AND due_date = $1
		 ORDER BY id`,
		day,
	)
	if err != nil {
		return nil, fmt.Errorf("taskTx.ListPendingDueOn: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows, "taskTx.ListPendingDueOn")
}

func (t *taskTx) InstallmentForTask(ctx context.Context, taskID int64) (*domain.Installment, error) {
	var (
		inst   domain.Installment
		amount string
	)

	err := t.tx.QueryRow(ctx,
		`SELECT id, task_id, amount::text, due_date
		 FROM finance_installments WHERE task_id = $1
		 ORDER BY due_date LIMIT 1`,
		taskID,
	).Scan(&inst.ID, &inst.TaskID, &amount, &inst.DueDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("taskTx.InstallmentForTask: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("taskTx.InstallmentForTask: %w", err)
	}

	inst.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("taskTx.InstallmentForTask: amount %q: %w", amount, err)
	}

	return &inst, nil
}

func (t *taskTx) CreateNotification(ctx context.Context, n *domain.Notification) (int64, error) {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO notifications (user_id, title, message, is_read, related_type, related_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		n.UserID, n.Title, n.Message, n.IsRead, n.RelatedType, n.RelatedID,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("taskTx.CreateNotification: %w", err)
	}

	return n.ID, nil
}

func scanTasks(rows pgx.Rows, caller string) ([]*domain.Task, error) {
	var tasks []*domain.Task
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(
			&t.ID, &t.Title, &t.Description, &t.TaskTypeID, &t.Status, &t.Priority,
			&t.DueDate, &t.AssignedTo, &t.CreatedBy, &t.HouseID, &t.DocumentID,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return tasks, nil
}

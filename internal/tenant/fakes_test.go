package tenant_test

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ---------------------------------------------------------------------------
// fakePool records executed statements and can fail on a given call.
// ---------------------------------------------------------------------------

type fakePool struct {
	houseID int64

	mu     sync.Mutex
	execs  []string
	failAt int // 1-based Exec call that fails; 0 = never
	closed bool
}

func (p *fakePool) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.execs = append(p.execs, sql)
	if p.failAt != 0 && len(p.execs) == p.failAt {
		return pgconn.CommandTag{}, &pgconn.PgError{Code: "42601", Message: "syntax error"}
	}
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (p *fakePool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("fakePool: Query not supported")
}

func (p *fakePool) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

func (p *fakePool) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakePool: Begin not supported")
}

func (p *fakePool) Ping(context.Context) error { return nil }

func (p *fakePool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *fakePool) statements() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.execs...)
}

func (p *fakePool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// ---------------------------------------------------------------------------
// fakeAdmin emulates a postgres server's CREATE DATABASE behaviour.
// ---------------------------------------------------------------------------

type fakeAdmin struct {
	mu        sync.Mutex
	databases map[string]bool
	execs     []string
	opened    int
	closed    int
	dialErr   error
	execErr   error
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{databases: make(map[string]bool)}
}

func (a *fakeAdmin) connect(context.Context) (*fakeAdminConn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dialErr != nil {
		return nil, a.dialErr
	}
	a.opened++
	return &fakeAdminConn{admin: a}, nil
}

type fakeAdminConn struct {
	admin *fakeAdmin
}

func (c *fakeAdminConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	a := c.admin
	a.mu.Lock()
	defer a.mu.Unlock()
	a.execs = append(a.execs, sql)
	if a.execErr != nil {
		return pgconn.CommandTag{}, a.execErr
	}
	if a.databases[sql] {
		return pgconn.CommandTag{}, &pgconn.PgError{Code: "42P04", Message: "database already exists"}
	}
	a.databases[sql] = true
	return pgconn.NewCommandTag("CREATE DATABASE"), nil
}

func (c *fakeAdminConn) Close(context.Context) error {
	c.admin.mu.Lock()
	c.admin.closed++
	c.admin.mu.Unlock()
	return nil
}

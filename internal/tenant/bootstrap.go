package tenant

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gosuda/homeops/internal/domain"
)

// Execer runs a single SQL statement.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Statements end with a semicolon at end of line. Dollar-quoted bodies that
// contain such a line are not supported by the house schema.
var statementEnd = regexp.MustCompile(`;[ \t]*\r?\n`)

// SplitStatements splits a schema script into statements. Chunks holding
// only whitespace or "--" comments are dropped.
func SplitStatements(script string) []string {
	chunks := statementEnd.Split(script, -1)
	stmts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		c = strings.TrimSpace(c)
		c = strings.TrimSpace(strings.TrimSuffix(c, ";"))
		if isBlank(c) {
			continue
		}
		stmts = append(stmts, c)
	}
	return stmts
}

func isBlank(chunk string) bool {
	for line := range strings.SplitSeq(chunk, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}

// Bootstrap applies the schema script at path to a freshly created house
// database, one statement at a time. It is not idempotent. The first failing
// statement stops the run; the database is then partially initialized.
func Bootstrap(ctx context.Context, db Execer, path string) error {
	script, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("tenant.Bootstrap: read %s: %w: %w", path, domain.ErrBootstrap, err)
	}

	for i, stmt := range SplitStatements(string(script)) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("tenant.Bootstrap: statement %d: %w: %w", i+1, domain.ErrBootstrap, err)
		}
	}

	return nil
}

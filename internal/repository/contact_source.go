package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go-lead-import/internal/config"

	_ "github.com/lib/pq"
	"go.uber.org/fx"
)

// ContactSource answers "does a contact with these field values already
// exist" against a store outside the CRM's own lead collection. Used by the
// duplicate resolver when a legacy contacts database is configured.
type ContactSource interface {
	Exists(ctx context.Context, fields map[string]string) (bool, error)
}

// PostgresContactSource queries a legacy contacts table over database/sql.
// Field names map 1:1 to column names; matching is case-insensitive and
// scoped to non-deleted records.
type PostgresContactSource struct {
	db *sql.DB
}

// NewContactSource returns nil when no CONTACTS_DSN is configured; the
// duplicate resolver treats a nil source as "no external checks".
func NewContactSource(lc fx.Lifecycle, cfg *config.Config) (ContactSource, error) {
	if cfg.ContactsDSN == "" {
		return nil, nil
	}

	db, err := sql.Open("postgres", cfg.ContactsDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open contacts database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return db.PingContext(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return db.Close()
		},
	})

	return &PostgresContactSource{db: db}, nil
}

func (s *PostgresContactSource) Exists(ctx context.Context, fields map[string]string) (bool, error) {
	if len(fields) == 0 {
		return false, nil
	}

	var clauses []string
	var args []interface{}
	i := 1
	for col, val := range fields {
		clauses = append(clauses, fmt.Sprintf("LOWER(%s) = LOWER($%d)", quoteIdent(col), i))
		args = append(args, val)
		i++
	}

	query := fmt.Sprintf(
		"SELECT EXISTS (SELECT 1 FROM contacts WHERE deleted_at IS NULL AND %s)",
		strings.Join(clauses, " AND "),
	)

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("contacts lookup failed: %w", err)
	}
	return exists, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, ``) + `"`
}

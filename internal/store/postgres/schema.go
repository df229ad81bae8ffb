package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// RequiredRelations lists every table and view the repositories query.
var RequiredRelations = []string{
	"organizations",
	"users",
	"org_members",
	"v_user_context",
	"processes",
	"process_events",
	"protocol_counters",
}

// SchemaStatus reports which required relations are missing.
type SchemaStatus struct {
	Ready   bool     `json:"ready"`
	Missing []string `json:"missing"`
}

// SchemaStatus checks the database for every required relation.
func (s *Store) SchemaStatus(ctx context.Context) (*SchemaStatus, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT rel FROM unnest($1::text[]) AS rel WHERE to_regclass(rel) IS NULL ORDER BY rel`,
		RequiredRelations,
	)
	if err != nil {
		return nil, classify("postgres.SchemaStatus", err)
	}
	defer rows.Close()

	missing := []string{}
	for rows.Next() {
		var rel string
		if err := rows.Scan(&rel); err != nil {
			return nil, classify("postgres.SchemaStatus: scan", err)
		}
		missing = append(missing, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("postgres.SchemaStatus: rows", err)
	}

	return &SchemaStatus{Ready: len(missing) == 0, Missing: missing}, nil
}

// Migrate applies the embedded schema files in name order inside one
// transaction. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	names, err := fs.Glob(schemaFS, "schema/*.sql")
	if err != nil {
		return fmt.Errorf("postgres.Migrate: %w", err)
	}
	sort.Strings(names)

	err = withTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, name := range names {
			ddl, err := schemaFS.ReadFile(name)
			if err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
			if _, err := tx.Exec(ctx, string(ddl)); err != nil {
				return fmt.Errorf("apply %s: %w", name, err)
			}
			log.Debug().Str("file", name).Msg("schema applied")
		}
		return nil
	})
	if err != nil {
		return classify("postgres.Migrate", err)
	}
	return nil
}

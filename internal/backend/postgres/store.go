// Package postgres implements backend.DataBackend on PostgreSQL through pgx.
// Rows map onto tables of the same name, procedures onto SQL functions, and
// objects onto the storage_objects table.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"studygenie/internal/backend"
	"studygenie/pkg/platform/sentinel"
)

// PostgreSQL error codes the adapter distinguishes.
const (
	codeUniqueViolation   = "23505"
	codeUndefinedFunction = "42883"
	codeUndefinedTable    = "42P01"
	codeNoDataFound       = "P0002"
)

// profilesTable holds one row per identity, keyed by the identity id.
const profilesTable = "user_profiles"

// DB is the subset of *pgxpool.Pool the store needs; pgxmock pools satisfy it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a PostgreSQL-backed DataBackend.
type Store struct {
	db DB
}

var _ backend.DataBackend = (*Store)(nil)

// New constructs a Store over db.
func New(db DB) *Store {
	return &Store{db: db}
}

func (s *Store) Execute(ctx context.Context, q backend.Query) ([]backend.Row, error) {
	if err := q.Validate(); err != nil {
		return nil, backend.Reject(err.Error(), err)
	}
	stmt, err := buildQuery(q)
	if err != nil {
		return nil, backend.Reject(err.Error(), err)
	}
	rows, err := s.db.Query(ctx, stmt.sql, stmt.args...)
	if err != nil {
		return nil, translate(fmt.Errorf("%s %s: %w", q.Operation, q.Collection, err))
	}
	out, err := pgx.CollectRows(rows, toRow)
	if err != nil {
		return nil, translate(fmt.Errorf("%s %s: %w", q.Operation, q.Collection, err))
	}
	return out, nil
}

func (s *Store) Upload(ctx context.Context, obj backend.Object) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO storage_objects (bucket, path, content_type, data) VALUES ($1, $2, $3, $4)`,
		obj.Bucket, obj.Path, obj.ContentType, obj.Data)
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return backend.Conflict("The resource already exists", err)
	}
	return translate(fmt.Errorf("upload %s/%s: %w", obj.Bucket, obj.Path, err))
}

func (s *Store) Call(ctx context.Context, procedure string, args map[string]any) error {
	stmt := buildCall(procedure, args)
	if _, err := s.db.Exec(ctx, stmt.sql, stmt.args...); err != nil {
		return translate(fmt.Errorf("call %s: %w", procedure, err))
	}
	return nil
}

// ProvisionProfile creates the profile row for identityID from the given
// columns, leaving an existing row as it is. Columns missing from traits take
// their table defaults.
func (s *Store) ProvisionProfile(ctx context.Context, identityID string, traits map[string]any) error {
	stmt := buildProvision(identityID, traits)
	if _, err := s.db.Exec(ctx, stmt.sql, stmt.args...); err != nil {
		return translate(fmt.Errorf("provision profile %s: %w", identityID, err))
	}
	return nil
}

// toRow collects one result row as a column map.
func toRow(row pgx.CollectableRow) (backend.Row, error) {
	values, err := row.Values()
	if err != nil {
		return nil, err
	}
	fields := row.FieldDescriptions()
	out := make(backend.Row, len(fields))
	for i, fd := range fields {
		if i < len(values) {
			out[fd.Name] = values[i]
		}
	}
	return out, nil
}

// translate classifies database failures: server-side errors are rejections
// carrying the server message; anything else means the database was unreachable.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUndefinedFunction, codeUndefinedTable, codeNoDataFound:
			return &backend.Error{Kind: sentinel.ErrNotFound, Message: pgErr.Message, Err: err}
		default:
			return backend.Reject(pgErr.Message, err)
		}
	}
	return backend.Unavailable(err)
}

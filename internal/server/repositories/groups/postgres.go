package groups

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/okaeri/internal/common"
	"github.com/dmitrijs2005/okaeri/internal/dbx"
	"github.com/dmitrijs2005/okaeri/internal/server/models"
	"github.com/dmitrijs2005/okaeri/internal/server/query"
	"github.com/google/uuid"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

func conflictOr(err error, code string) error {
	if _, ok := dbx.UniqueViolation(err); ok {
		return fmt.Errorf("code %q: %w", code, common.ErrConflict)
	}
	return fmt.Errorf("db error: %w", err)
}

func (r *PostgresRepository) Create(ctx context.Context, g *models.Group) error {
	query :=
		`INSERT INTO groups (id, name, code, accounts, creation)
		 VALUES ($1, $2, $3, $4::uuid[], $5)`

	_, err := r.db.ExecContext(ctx, query, g.ID, g.Name, g.Code, dbx.UUIDArray(g.Accounts), g.Creation)
	if err != nil {
		return conflictOr(err, g.Code)
	}
	return nil
}

func (r *PostgresRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM groups WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	query :=
		`SELECT id, name, code, array_to_json(accounts)::text, creation, last_update
		 FROM groups WHERE id = $1`

	var (
		g          models.Group
		accounts   []byte
		lastUpdate sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&g.ID, &g.Name, &g.Code, &accounts, &g.Creation, &lastUpdate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrUnknown
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if g.Accounts, err = dbx.ParseUUIDJSON(accounts); err != nil {
		return nil, err
	}
	if lastUpdate.Valid {
		lu := lastUpdate.Time
		g.LastUpdate = &lu
	}
	return &g, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id uuid.UUID, name, code *string, now time.Time) error {
	sets := []string{}
	args := []any{id}
	if name != nil {
		args = append(args, *name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if code != nil {
		args = append(args, *code)
		sets = append(sets, fmt.Sprintf("code = $%d", len(args)))
	}
	args = append(args, now)
	sets = append(sets, fmt.Sprintf("last_update = $%d", len(args)))

	res, err := r.db.ExecContext(ctx,
		`UPDATE groups SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		c := ""
		if code != nil {
			c = *code
		}
		return conflictOr(err, c)
	}
	return oneRow(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) (string, error) {
	var code string
	err := r.db.QueryRowContext(ctx, `DELETE FROM groups WHERE id = $1 RETURNING code`, id).Scan(&code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrUnknown
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return code, nil
}

func (r *PostgresRepository) Query(ctx context.Context, q *query.Compiled, limit, offset int) ([]models.GroupListing, error) {
	where, args := q.Where(nil)
	args = append(args, limit, offset)
	stmt := fmt.Sprintf(
		`SELECT id, name, code, cardinality(accounts), creation, last_update FROM groups WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		where, q.OrderBy(), len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := []models.GroupListing{}
	for rows.Next() {
		var (
			g          models.GroupListing
			lastUpdate sql.NullTime
		)
		if err := rows.Scan(&g.ID, &g.Name, &g.Code, &g.Members, &g.Creation, &lastUpdate); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if lastUpdate.Valid {
			lu := lastUpdate.Time
			g.LastUpdate = &lu
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) AddAccount(ctx context.Context, id, accountID uuid.UUID, now time.Time) error {
	query :=
		`UPDATE groups
		 SET accounts = CASE WHEN $2 = ANY(accounts) THEN accounts ELSE array_append(accounts, $2) END,
		     last_update = $3
		 WHERE id = $1`
	return r.execOne(ctx, query, id, accountID, now)
}

func (r *PostgresRepository) RemoveAccount(ctx context.Context, id, accountID uuid.UUID, now time.Time) error {
	return r.execOne(ctx,
		`UPDATE groups SET accounts = array_remove(accounts, $2), last_update = $3 WHERE id = $1`,
		id, accountID, now)
}

func (r *PostgresRepository) SetAccounts(ctx context.Context, id uuid.UUID, accounts []uuid.UUID, now time.Time) error {
	return r.execOne(ctx,
		`UPDATE groups SET accounts = $2::uuid[], last_update = $3 WHERE id = $1`,
		id, dbx.UUIDArray(accounts), now)
}

func (r *PostgresRepository) HasMember(ctx context.Context, codes []string, accountID uuid.UUID) (bool, error) {
	if len(codes) == 0 {
		return false, nil
	}
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM groups WHERE code = ANY($1::text[]) AND $2 = ANY(accounts))`,
		dbx.TextArray(codes), accountID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) AccountRefs(ctx context.Context) (map[uuid.UUID][]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, array_to_json(accounts)::text FROM groups ORDER BY id FOR UPDATE`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := map[uuid.UUID][]uuid.UUID{}
	for rows.Next() {
		var (
			id  uuid.UUID
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ids, err := dbx.ParseUUIDJSON(raw)
		if err != nil {
			return nil, err
		}
		out[id] = ids
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return oneRow(res)
}

func oneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrUnknown
	}
	return nil
}

package accounts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/okaeri/internal/common"
	"github.com/dmitrijs2005/okaeri/internal/dbx"
	"github.com/dmitrijs2005/okaeri/internal/server/models"
	"github.com/dmitrijs2005/okaeri/internal/server/query"
	"github.com/google/uuid"
)

const publicColumns = `id, login_key, array_to_json(groups)::text, profile::text, creation, last_update`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

func (r *PostgresRepository) Create(ctx context.Context, a *models.Account) error {
	profile, err := json.Marshal(nonNilProfile(a.Profile))
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	query :=
		`INSERT INTO accounts (id, login_key, salt, hash, groups, profile, creation)
		 VALUES ($1, $2, $3, $4, $5::uuid[], $6::jsonb, $7)`

	_, err = r.db.ExecContext(ctx, query,
		a.ID, a.LoginKey, a.Salt, a.Hash, dbx.UUIDArray(a.Groups), string(profile), a.Creation)
	if err != nil {
		if _, ok := dbx.UniqueViolation(err); ok {
			return fmt.Errorf("login key %q: %w", a.LoginKey, common.ErrConflict)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ExistsByLoginKey(ctx context.Context, loginKey string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE login_key = $1)`, loginKey).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) GetCredentials(ctx context.Context, loginKey string) (*models.Account, error) {
	query :=
		`SELECT id, salt, hash FROM accounts
		 WHERE login_key = $1`

	a := &models.Account{LoginKey: loginKey}
	err := r.db.QueryRowContext(ctx, query, loginKey).Scan(&a.ID, &a.Salt, &a.Hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrUnknown
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+publicColumns+` FROM accounts WHERE id = $1`, id)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrUnknown
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Account, error) {
	if len(ids) == 0 {
		return []models.Account{}, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+publicColumns+` FROM accounts WHERE id = ANY($1::uuid[])`, dbx.UUIDArray(ids))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return collect(rows)
}

func (r *PostgresRepository) UpdateProfile(ctx context.Context, id uuid.UUID, set map[string]any, unset []string, now time.Time) error {
	patch, err := json.Marshal(nonNilProfile(set))
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	query :=
		`UPDATE accounts SET profile = (profile || $2::jsonb) - $3::text[], last_update = $4
		 WHERE id = $1`
	return r.execOne(ctx, query, id, string(patch), dbx.TextArray(unset), now)
}

func (r *PostgresRepository) SetCredentials(ctx context.Context, id uuid.UUID, salt, hash string, now time.Time) error {
	return r.execOne(ctx,
		`UPDATE accounts SET salt = $2, hash = $3, last_update = $4 WHERE id = $1`,
		id, salt, hash, now)
}

func (r *PostgresRepository) SetLoginKey(ctx context.Context, id uuid.UUID, loginKey string, now time.Time) error {
	err := r.execOne(ctx,
		`UPDATE accounts SET login_key = $2, last_update = $3 WHERE id = $1`,
		id, loginKey, now)
	if _, ok := dbx.UniqueViolation(err); ok {
		return fmt.Errorf("login key %q: %w", loginKey, common.ErrConflict)
	}
	return err
}

func (r *PostgresRepository) AddGroup(ctx context.Context, id, groupID uuid.UUID, now time.Time) error {
	query :=
		`UPDATE accounts
		 SET groups = CASE WHEN $2 = ANY(groups) THEN groups ELSE array_append(groups, $2) END,
		     last_update = $3
		 WHERE id = $1`
	return r.execOne(ctx, query, id, groupID, now)
}

func (r *PostgresRepository) RemoveGroup(ctx context.Context, id, groupID uuid.UUID, now time.Time) error {
	return r.execOne(ctx,
		`UPDATE accounts SET groups = array_remove(groups, $2), last_update = $3 WHERE id = $1`,
		id, groupID, now)
}

func (r *PostgresRepository) RemoveGroupEverywhere(ctx context.Context, groupID uuid.UUID, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET groups = array_remove(groups, $1), last_update = $2 WHERE $1 = ANY(groups)`,
		groupID, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) SetGroups(ctx context.Context, id uuid.UUID, groups []uuid.UUID, now time.Time) error {
	return r.execOne(ctx,
		`UPDATE accounts SET groups = $2::uuid[], last_update = $3 WHERE id = $1`,
		id, dbx.UUIDArray(groups), now)
}

func (r *PostgresRepository) GroupRefs(ctx context.Context) (map[uuid.UUID][]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, array_to_json(groups)::text FROM accounts ORDER BY id FOR UPDATE`)
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
		groups, err := dbx.ParseUUIDJSON(raw)
		if err != nil {
			return nil, err
		}
		out[id] = groups
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Query(ctx context.Context, q *query.Compiled, limit, offset int) ([]models.Account, error) {
	where, args := q.Where(nil)
	args = append(args, limit, offset)
	stmt := fmt.Sprintf(`SELECT %s FROM accounts WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		publicColumns, where, q.OrderBy(), len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return collect(rows)
}

func (r *PostgresRepository) Iterate(ctx context.Context, q *query.Compiled) (Cursor, error) {
	where, args := q.Where(nil)
	stmt := fmt.Sprintf(`SELECT %s FROM accounts WHERE %s ORDER BY id ASC`, publicColumns, where)

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &rowsCursor{rows: rows}, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if _, ok := dbx.UniqueViolation(err); ok {
			return err
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrUnknown
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*models.Account, error) {
	var (
		a          models.Account
		groups     []byte
		profile    []byte
		lastUpdate sql.NullTime
	)
	if err := s.Scan(&a.ID, &a.LoginKey, &groups, &profile, &a.Creation, &lastUpdate); err != nil {
		return nil, err
	}
	var err error
	if a.Groups, err = dbx.ParseUUIDJSON(groups); err != nil {
		return nil, err
	}
	a.Profile = map[string]any{}
	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &a.Profile); err != nil {
			return nil, fmt.Errorf("decode profile: %w", err)
		}
	}
	if lastUpdate.Valid {
		lu := lastUpdate.Time
		a.LastUpdate = &lu
	}
	return &a, nil
}

func collect(rows *sql.Rows) ([]models.Account, error) {
	defer rows.Close()
	out := []models.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func nonNilProfile(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return p
}

type rowsCursor struct {
	rows *sql.Rows
	cur  models.Account
	err  error
}

func (c *rowsCursor) Next() bool {
	if c.err != nil {
		return false
	}
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			c.err = fmt.Errorf("db error: %w", err)
		}
		return false
	}
	a, err := scanAccount(c.rows)
	if err != nil {
		c.err = fmt.Errorf("db error: %w", err)
		return false
	}
	c.cur = *a
	return true
}

func (c *rowsCursor) Account() models.Account { return c.cur }
func (c *rowsCursor) Err() error              { return c.err }
func (c *rowsCursor) Close() error            { return c.rows.Close() }

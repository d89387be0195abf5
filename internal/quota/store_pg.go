package quota

import (
	"context"
	"database/sql"
	"errors"
)

type pgStore struct {
	DB *sql.DB
}

// NewPGStore constructs a Postgres-backed counter store.
func NewPGStore(db *sql.DB) *pgStore {
	return &pgStore{DB: db}
}

func (s *pgStore) Reserve(ctx context.Context, day string, cost, limit int) (int, bool, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	used, err := lockAndEnsure(ctx, tx, day)
	if err != nil {
		return 0, false, err
	}

	if used+cost > limit {
		if err = tx.Commit(); err != nil {
			return 0, false, err
		}
		return used, false, nil
	}
	used += cost
	if _, err = tx.ExecContext(ctx, `UPDATE quota_usage SET used = $1 WHERE day = $2`, used, day); err != nil {
		return 0, false, err
	}
	if err = tx.Commit(); err != nil {
		return 0, false, err
	}
	return used, true, nil
}

func (s *pgStore) Release(ctx context.Context, day string, cost int) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE quota_usage SET used = GREATEST(used - $1, 0) WHERE day = $2`, cost, day)
	return err
}

func (s *pgStore) Used(ctx context.Context, day string) (int, error) {
	var used int
	row := s.DB.QueryRowContext(ctx, `SELECT used FROM quota_usage WHERE day = $1`, day)
	if err := row.Scan(&used); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return used, nil
}

func lockAndEnsure(ctx context.Context, tx *sql.Tx, day string) (int, error) {
	var used int
	row := tx.QueryRowContext(ctx, `SELECT used FROM quota_usage WHERE day = $1 FOR UPDATE`, day)
	err := row.Scan(&used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, err = tx.ExecContext(ctx, `
INSERT INTO quota_usage (day, used) VALUES ($1, 0)
ON CONFLICT (day) DO NOTHING`, day); err != nil {
				return 0, err
			}
			// Re-read under lock in case a concurrent writer got there first.
			row = tx.QueryRowContext(ctx, `SELECT used FROM quota_usage WHERE day = $1 FOR UPDATE`, day)
			if err = row.Scan(&used); err != nil {
				return 0, err
			}
			return used, nil
		}
		return 0, err
	}
	return used, nil
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	movementColumns = `id, account_number, seq, occurred_on, kind, value, balance, created_at`
	uniqueViolation = "23505"
)

// PostgresStore persists movements in PostgreSQL. Each account has a row in
// account_heads whose version is compare-and-swapped on every write.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed movement store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Head reads the account version and its latest movement from one snapshot.
func (s *PostgresStore) Head(ctx context.Context, accountNumber string) (Head, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return Head{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	head := Head{AccountNumber: accountNumber}
	err = tx.QueryRow(ctx, `SELECT version FROM account_heads WHERE account_number = $1`, accountNumber).Scan(&head.Version)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Head{}, fmt.Errorf("read account head: %w", err)
	}

	row := tx.QueryRow(ctx, `SELECT `+movementColumns+` FROM movements
        WHERE account_number = $1
        ORDER BY occurred_on DESC, seq DESC
        LIMIT 1`, accountNumber)
	last, err := scanMovement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return head, nil
		}
		return Head{}, fmt.Errorf("read latest movement: %w", err)
	}
	head.Last = &last
	return head, tx.Commit(ctx)
}

// Append inserts the movement after advancing the account head from expected.
func (s *PostgresStore) Append(ctx context.Context, m Movement, expected Head) (Movement, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Movement{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := advanceHead(ctx, tx, expected); err != nil {
		return Movement{}, err
	}

	m.Seq = expected.Version + 1
	_, err = tx.Exec(ctx, `INSERT INTO movements (`+movementColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.AccountNumber, m.Seq, m.Date, m.Type, m.Value, m.Balance, m.CreatedAt.UTC())
	if err != nil {
		return Movement{}, mapWriteError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Movement{}, mapWriteError(err)
	}
	return m, nil
}

// Rewrite updates stored movements in place once every expected head has been advanced.
func (s *PostgresStore) Rewrite(ctx context.Context, expected []Head, revisions []Revision) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, h := range expected {
		if err := advanceHead(ctx, tx, h); err != nil {
			return err
		}
	}

	const update = `UPDATE movements
        SET account_number = $2, seq = $3, occurred_on = $4, kind = $5, value = $6, balance = $7
        WHERE id = $1`
	for _, r := range revisions {
		m := r.After
		tag, err := tx.Exec(ctx, update, m.ID, m.AccountNumber, m.Seq, m.Date, m.Type, m.Value, m.Balance)
		if err != nil {
			return mapWriteError(err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("rewrite %s: %w", m.ID, ErrNotFound)
		}
	}

	return mapWriteError(tx.Commit(ctx))
}

// Remove deletes a movement once the account head has been advanced.
func (s *PostgresStore) Remove(ctx context.Context, m Movement, expected Head) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := advanceHead(ctx, tx, expected); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM movements WHERE id = $1`, m.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return mapWriteError(tx.Commit(ctx))
}

// Get fetches a movement by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (Movement, error) {
	row := s.db.QueryRow(ctx, `SELECT `+movementColumns+` FROM movements WHERE id = $1`, id)
	m, err := scanMovement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, ErrNotFound
		}
		return Movement{}, err
	}
	return m, nil
}

// Find lists movements matching q, newest first.
func (s *PostgresStore) Find(ctx context.Context, q Query) ([]Movement, error) {
	var (
		conds []string
		args  []any
	)
	if len(q.AccountNumbers) > 0 {
		args = append(args, q.AccountNumbers)
		conds = append(conds, fmt.Sprintf("account_number = ANY($%d)", len(args)))
	}
	if !q.From.IsZero() {
		args = append(args, DateOf(q.From))
		conds = append(conds, fmt.Sprintf("occurred_on >= $%d", len(args)))
	}
	if !q.To.IsZero() {
		args = append(args, DateOf(q.To))
		conds = append(conds, fmt.Sprintf("occurred_on <= $%d", len(args)))
	}

	query := `SELECT ` + movementColumns + ` FROM movements`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY occurred_on DESC, seq DESC, id DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Movement, 0)
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// advanceHead bumps the account version only if it still equals expected.Version.
func advanceHead(ctx context.Context, tx pgx.Tx, expected Head) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if expected.Version == 0 {
		tag, err = tx.Exec(ctx, `INSERT INTO account_heads (account_number, version) VALUES ($1, 1)
            ON CONFLICT (account_number) DO NOTHING`, expected.AccountNumber)
	} else {
		tag, err = tx.Exec(ctx, `UPDATE account_heads SET version = version + 1, updated_at = now()
            WHERE account_number = $1 AND version = $2`, expected.AccountNumber, expected.Version)
	}
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s moved past version %d: %w", expected.AccountNumber, expected.Version, ErrWriteConflict)
	}
	return nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, ErrWriteConflict)
	}
	return err
}

func scanMovement(row pgx.Row) (Movement, error) {
	var (
		m         Movement
		date      time.Time
		value     decimal.Decimal
		balance   decimal.Decimal
		createdAt time.Time
	)
	if err := row.Scan(&m.ID, &m.AccountNumber, &m.Seq, &date, &m.Type, &value, &balance, &createdAt); err != nil {
		return Movement{}, err
	}
	m.Date = DateOf(date)
	m.Value = value
	m.Balance = balance
	m.CreatedAt = createdAt.UTC()
	return m, nil
}

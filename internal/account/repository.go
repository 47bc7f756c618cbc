package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/accountledger/internal/ledger"
)

// Repository persists accounts keyed by their number. Lookups of unknown
// numbers return ledger.ErrAccountNotFound.
type Repository interface {
	Create(ctx context.Context, a Account) error
	GetByNumber(ctx context.Context, number string) (Account, error)
	// List returns accounts ordered by number; an empty clientID lists all.
	List(ctx context.Context, clientID string) ([]Account, error)
	Update(ctx context.Context, a Account) error
	Delete(ctx context.Context, number string) error
}

const accountColumns = `id, number, kind, initial_balance, active, client_id, created_at`

// PostgresRepository stores accounts in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts an account record.
func (r *PostgresRepository) Create(ctx context.Context, a Account) error {
	id, err := uuid.Parse(a.ID)
	if err != nil {
		return err
	}
	clientID, err := uuid.Parse(a.ClientID)
	if err != nil {
		return ledger.ErrClientNotFound
	}
	_, err = r.db.Exec(ctx, `INSERT INTO accounts (`+accountColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, a.Number, a.Type, a.InitialBalance, a.Active, clientID, a.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrDuplicateAccount
		case "23503":
			return ledger.ErrClientNotFound
		}
	}
	return err
}

// GetByNumber fetches an account by its number.
func (r *PostgresRepository) GetByNumber(ctx context.Context, number string) (Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE number = $1`, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ledger.ErrAccountNotFound
	}
	return a, err
}

// List returns accounts, optionally restricted to one client.
func (r *PostgresRepository) List(ctx context.Context, clientID string) ([]Account, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if clientID == "" {
		rows, err = r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY number`)
	} else {
		id, parseErr := uuid.Parse(clientID)
		if parseErr != nil {
			return []Account{}, nil
		}
		rows, err = r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE client_id = $1 ORDER BY number`, id)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Update stores the mutable fields of an account.
func (r *PostgresRepository) Update(ctx context.Context, a Account) error {
	clientID, err := uuid.Parse(a.ClientID)
	if err != nil {
		return ledger.ErrClientNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET kind = $2, active = $3, client_id = $4 WHERE number = $1`,
		a.Number, a.Type, a.Active, clientID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ledger.ErrClientNotFound
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

// Delete removes an account.
func (r *PostgresRepository) Delete(ctx context.Context, number string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE number = $1`, number)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		a         Account
		id        uuid.UUID
		clientID  uuid.UUID
		initial   decimal.Decimal
		createdAt time.Time
	)
	if err := row.Scan(&id, &a.Number, &a.Type, &initial, &a.Active, &clientID, &createdAt); err != nil {
		return Account{}, err
	}
	a.ID = id.String()
	a.ClientID = clientID.String()
	a.InitialBalance = initial
	a.CreatedAt = createdAt.UTC()
	return a, nil
}

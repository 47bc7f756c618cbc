package client

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/accountledger/internal/ledger"
)

// Repository persists clients. Get, Update and Delete return
// ledger.ErrClientNotFound for unknown ids.
type Repository interface {
	Create(ctx context.Context, c Client) error
	Get(ctx context.Context, id string) (Client, error)
	List(ctx context.Context) ([]Client, error)
	Update(ctx context.Context, c Client) error
	Delete(ctx context.Context, id string) error
}

const clientColumns = `id, name, gender, age, identification, address, phone, password_hash, active, created_at`

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed client repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new client.
func (r *PostgresRepository) Create(ctx context.Context, c Client) error {
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO clients (`+clientColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, c.Name, c.Gender, c.Age, c.Identification, c.Address, c.Phone, c.PasswordHash, c.Active, c.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateClient
	}
	return err
}

// Get fetches a client by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Client, error) {
	clientID, err := uuid.Parse(id)
	if err != nil {
		return Client{}, ledger.ErrClientNotFound
	}
	c, err := scanClient(r.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, clientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Client{}, ledger.ErrClientNotFound
	}
	return c, err
}

// List returns every client ordered by registration time.
func (r *PostgresRepository) List(ctx context.Context) ([]Client, error) {
	rows, err := r.db.Query(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Client, 0)
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Update stores the mutable fields of a client.
func (r *PostgresRepository) Update(ctx context.Context, c Client) error {
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return ledger.ErrClientNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE clients
        SET name = $2, gender = $3, age = $4, address = $5, phone = $6, password_hash = $7, active = $8
        WHERE id = $1`, id, c.Name, c.Gender, c.Age, c.Address, c.Phone, c.PasswordHash, c.Active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ledger.ErrClientNotFound
	}
	return nil
}

// Delete removes a client.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	clientID, err := uuid.Parse(id)
	if err != nil {
		return ledger.ErrClientNotFound
	}
	cmd, err := r.db.Exec(ctx, `DELETE FROM clients WHERE id = $1`, clientID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ledger.ErrClientNotFound
	}
	return nil
}

func scanClient(row pgx.Row) (Client, error) {
	var (
		id        uuid.UUID
		createdAt time.Time
		c         Client
	)
	if err := row.Scan(&id, &c.Name, &c.Gender, &c.Age, &c.Identification, &c.Address, &c.Phone, &c.PasswordHash, &c.Active, &createdAt); err != nil {
		return Client{}, err
	}
	c.ID = id.String()
	c.CreatedAt = createdAt.UTC()
	return c, nil
}

// Package account tracks who uploads what and lets operators block callers.
package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Caller is an uploader, identified by network address.
type Caller struct {
	ID        string    `json:"id"`
	Addr      string    `json:"addr"`
	Blocked   bool      `json:"blocked"`
	CreatedAt time.Time `json:"createdAt"`
}

// Image is one accepted upload by a caller.
type Image struct {
	ID        string    `json:"id"`
	CallerID  string    `json:"callerId"`
	Hash      string    `json:"hash"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// ErrNotFound is returned when a caller does not exist.
var ErrNotFound = errors.New("caller not found")

// ErrAlreadyExists is returned when an address is already registered.
var ErrAlreadyExists = errors.New("caller already exists")

// Repository handles all accounting database operations.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new caller for addr.
func (r *Repository) Create(ctx context.Context, addr string) (*Caller, error) {
	c := &Caller{}
	err := r.db.QueryRow(ctx,
		`INSERT INTO callers (addr)
		 VALUES ($1)
		 RETURNING id, addr, blocked, created_at`,
		addr,
	).Scan(&c.ID, &c.Addr, &c.Blocked, &c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("create caller: %w", err)
	}
	return c, nil
}

// GetByID fetches a caller by UUID.
func (r *Repository) GetByID(ctx context.Context, id string) (*Caller, error) {
	c := &Caller{}
	err := r.db.QueryRow(ctx,
		`SELECT id, addr, blocked, created_at FROM callers WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Addr, &c.Blocked, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get caller by id: %w", err)
	}
	return c, nil
}

// GetByAddr fetches a caller by network address.
func (r *Repository) GetByAddr(ctx context.Context, addr string) (*Caller, error) {
	c := &Caller{}
	err := r.db.QueryRow(ctx,
		`SELECT id, addr, blocked, created_at FROM callers WHERE addr = $1`,
		addr,
	).Scan(&c.ID, &c.Addr, &c.Blocked, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get caller by addr: %w", err)
	}
	return c, nil
}

// SetBlocked updates the blocked flag of a caller.
func (r *Repository) SetBlocked(ctx context.Context, id string, blocked bool) (*Caller, error) {
	c := &Caller{}
	err := r.db.QueryRow(ctx,
		`UPDATE callers SET blocked = $2 WHERE id = $1
		 RETURNING id, addr, blocked, created_at`,
		id, blocked,
	).Scan(&c.ID, &c.Addr, &c.Blocked, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("set caller blocked: %w", err)
	}
	return c, nil
}

// AddImage records an upload.
func (r *Repository) AddImage(ctx context.Context, callerID, hash, filename string, size int64) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO images (caller_id, hash, filename, size) VALUES ($1, $2, $3, $4)`,
		callerID, hash, filename, size,
	)
	if err != nil {
		return fmt.Errorf("add image: %w", err)
	}
	return nil
}

// ListImages returns the most recent uploads of a caller, newest first.
func (r *Repository) ListImages(ctx context.Context, callerID string, limit int) ([]Image, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, caller_id, hash, filename, size, created_at
		 FROM images WHERE caller_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		callerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	images, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Image, error) {
		var img Image
		err := row.Scan(&img.ID, &img.CallerID, &img.Hash, &img.Filename, &img.Size, &img.CreatedAt)
		return img, err
	})
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return images, nil
}

// isUniqueViolation checks whether an error is a PostgreSQL unique_violation (code 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

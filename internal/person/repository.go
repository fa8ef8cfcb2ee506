package person

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cuongbtq/batch-scheduler/internal/batch"
	"github.com/cuongbtq/batch-scheduler/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

const createTable = `
CREATE TABLE IF NOT EXISTS person (
    person_id BIGSERIAL    PRIMARY KEY,
    name      VARCHAR(255) NOT NULL,
    email     VARCHAR(255) NOT NULL
)`

// Repository writes people to PostgreSQL. Each Write is one transaction.
type Repository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

var _ batch.ItemWriter = (*Repository)(nil)

// NewRepository creates a new Repository instance
func NewRepository(db *sqlx.DB, logger *slog.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Migrate creates the person table if it does not exist
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create person table: %w", err)
	}
	return nil
}

// Write inserts all items or none of them
func (r *Repository) Write(ctx context.Context, items []any) error {
	people, err := asPeople(items)
	if err != nil {
		return err
	}

	query := `INSERT INTO person (name, email) VALUES (:name, :email)`

	err = postgresql.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for i, p := range people {
			if _, err := tx.NamedExecContext(ctx, query, p); err != nil {
				return fmt.Errorf("failed to insert person %d of %d: %w", i+1, len(people), err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Debug("People saved", slog.Int("count", len(people)))
	return nil
}

// List returns every stored person in insertion order
func (r *Repository) List(ctx context.Context) ([]Person, error) {
	var people []Person
	if err := r.db.SelectContext(ctx, &people, `SELECT person_id, name, email FROM person ORDER BY person_id`); err != nil {
		return nil, fmt.Errorf("failed to list people: %w", err)
	}
	return people, nil
}

// MemoryRepository keeps people in memory. FailOn makes the n-th Write
// (1-based) fail without storing anything.
type MemoryRepository struct {
	mu     sync.Mutex
	people []Person
	writes int
	nextID int64

	FailOn  int
	FailErr error
}

var _ batch.ItemWriter = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty MemoryRepository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Write(_ context.Context, items []any) error {
	people, err := asPeople(items)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.writes++
	if r.FailOn == r.writes {
		if r.FailErr != nil {
			return r.FailErr
		}
		return fmt.Errorf("write %d rejected", r.writes)
	}

	for _, p := range people {
		r.nextID++
		p.ID = r.nextID
		r.people = append(r.people, p)
	}
	return nil
}

// List returns a copy of the stored people
func (r *MemoryRepository) List(_ context.Context) ([]Person, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Person, len(r.people))
	copy(out, r.people)
	return out, nil
}

package repositories

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"forge/internal/httpkit"
)

// CategoryRepository resolves template names to their storage category id.
// The mapping is read on every job operation, so resolved ids are cached
// for the process lifetime; categories are never renamed in place.
type CategoryRepository struct {
	db *pgxpool.Pool

	mu    sync.RWMutex
	cache map[string]string
}

func NewCategoryRepository(db *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{
		db:    db,
		cache: make(map[string]string),
	}
}

// Resolve returns the category id for a template name, creating the
// category row on first use.
func (r *CategoryRepository) Resolve(ctx context.Context, name string) (string, error) {
	r.mu.RLock()
	id, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	id, err := r.lookup(ctx, name)
	if err == nil {
		r.store(name, id)
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}

	id = uuid.NewString()
	_, err = r.db.Exec(ctx, `
		INSERT INTO template_categories (id, name)
		VALUES ($1, $2)
	`, id, name)
	if err != nil {
		if httpkit.IsUniqueViolation(err) {
			// Lost the insert race; the winner's row is authoritative.
			id, err = r.lookup(ctx, name)
			if err != nil {
				return "", err
			}
			r.store(name, id)
			return id, nil
		}
		return "", err
	}

	r.store(name, id)
	return id, nil
}

func (r *CategoryRepository) lookup(ctx context.Context, name string) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, `
		SELECT id FROM template_categories WHERE name=$1
	`, name).Scan(&id)
	return id, err
}

func (r *CategoryRepository) store(name, id string) {
	r.mu.Lock()
	r.cache[name] = id
	r.mu.Unlock()
}

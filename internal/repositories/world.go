package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/models"
	"github.com/myrjola/casefile/internal/sqlite"
	"github.com/myrjola/casefile/internal/world"
	"log/slog"
	"sync"
)

type cachedWorld struct {
	owner string
	world world.World
}

// WorldRepository stores world payloads. Decoded worlds are kept in an LRU cache because every gameplay request
// needs one.
type WorldRepository struct {
	db     *sqlite.Database
	cache  *lru.Cache[string, cachedWorld]
	logger *slog.Logger

	mu sync.Mutex
	// invalidations counts updates and deletes. A world loaded while it changed is returned but not cached.
	invalidations uint64
}

func NewWorldRepository(db *sqlite.Database, cacheSize int, logger *slog.Logger) (*WorldRepository, error) {
	cache, err := lru.New[string, cachedWorld](cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "new world cache", slog.Int("size", cacheSize))
	}
	return &WorldRepository{
		db:            db,
		cache:         cache,
		logger:        logger.With(slog.String("source", "WorldRepository")),
		mu:            sync.Mutex{},
		invalidations: 0,
	}, nil
}

// Create validates and stores a world. An empty ID gets a random one, and empty title and description are taken
// from the mystery.
func (r *WorldRepository) Create(ctx context.Context, w models.World) (models.World, error) {
	var err error
	if err = world.ValidatePayload(w.Payload); err != nil {
		return models.World{}, errors.Wrap(err, "validate world")
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	fillFromMystery(&w)
	var payload []byte
	if payload, err = json.Marshal(w.Payload); err != nil {
		return models.World{}, errors.Wrap(err, "encode world")
	}

	stmt := `INSERT INTO worlds (id, owner, title, description, payload)
VALUES (:id, :owner, :title, :description, :payload)
RETURNING created, updated`
	var created, updated string
	if err = r.db.ReadWrite.QueryRowContext(ctx, stmt,
		sql.Named("id", w.ID),
		sql.Named("owner", w.Owner),
		sql.Named("title", w.Title),
		sql.Named("description", w.Description),
		sql.Named("payload", string(payload)),
	).Scan(&created, &updated); err != nil {
		return models.World{}, errors.Wrap(err, "insert world", slog.String("world_id", w.ID))
	}
	if w.Created, err = parseTimestamp(created); err != nil {
		return models.World{}, err
	}
	if w.Updated, err = parseTimestamp(updated); err != nil {
		return models.World{}, err
	}
	r.logger.LogAttrs(ctx, slog.LevelInfo, "world created", slog.String("world_id", w.ID))
	return w, nil
}

// Get returns the owner's world or [ErrNotFound].
func (r *WorldRepository) Get(ctx context.Context, owner string, id string) (models.World, error) {
	var (
		w                         models.World
		payload, created, updated string
		err                       error
	)
	stmt := `SELECT id, owner, title, description, payload, created, updated
FROM worlds
WHERE id = ? AND owner = ?`
	if err = r.db.ReadOnly.QueryRowContext(ctx, stmt, id, owner).Scan(
		&w.ID, &w.Owner, &w.Title, &w.Description, &payload, &created, &updated,
	); err != nil {
		return models.World{}, notFoundOr(err, "read world", slog.String("world_id", id))
	}
	if err = json.Unmarshal([]byte(payload), &w.Payload); err != nil {
		return models.World{}, errors.Wrap(err, "decode world", slog.String("world_id", id))
	}
	if w.Created, err = parseTimestamp(created); err != nil {
		return models.World{}, err
	}
	if w.Updated, err = parseTimestamp(updated); err != nil {
		return models.World{}, err
	}
	return w, nil
}

// GetWorld returns the indexed world for gameplay.
func (r *WorldRepository) GetWorld(ctx context.Context, owner string, id string) (world.World, error) {
	if cached, ok := r.cache.Get(id); ok {
		if cached.owner != owner {
			return world.World{}, errors.Wrap(ErrNotFound, "read world", slog.String("world_id", id))
		}
		return cached.world, nil
	}
	seen := r.cacheGeneration()
	stored, err := r.Get(ctx, owner, id)
	if err != nil {
		return world.World{}, err
	}
	w := world.FromPayload(stored.Payload)
	r.cacheIfUnchanged(id, cachedWorld{owner: owner, world: w}, seen)
	return w, nil
}

func (r *WorldRepository) cacheGeneration() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invalidations
}

// cacheIfUnchanged caches w unless a world was updated or deleted since seen was read.
func (r *WorldRepository) cacheIfUnchanged(id string, w cachedWorld, seen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.invalidations == seen {
		r.cache.Add(id, w)
	}
}

// invalidate must be called after the row changed.
func (r *WorldRepository) invalidate(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidations++
	r.cache.Remove(id)
}

// Update replaces the payload of the owner's world.
func (r *WorldRepository) Update(ctx context.Context, w models.World) (models.World, error) {
	var err error
	if err = world.ValidatePayload(w.Payload); err != nil {
		return models.World{}, errors.Wrap(err, "validate world")
	}
	fillFromMystery(&w)
	var payload []byte
	if payload, err = json.Marshal(w.Payload); err != nil {
		return models.World{}, errors.Wrap(err, "encode world")
	}

	stmt := `UPDATE worlds
SET title = :title, description = :description, payload = :payload
WHERE id = :id AND owner = :owner
RETURNING created`
	var created string
	if err = r.db.ReadWrite.QueryRowContext(ctx, stmt,
		sql.Named("id", w.ID),
		sql.Named("owner", w.Owner),
		sql.Named("title", w.Title),
		sql.Named("description", w.Description),
		sql.Named("payload", string(payload)),
	).Scan(&created); err != nil {
		return models.World{}, notFoundOr(err, "update world", slog.String("world_id", w.ID))
	}
	r.invalidate(w.ID)
	// The trigger bumps the updated column after RETURNING is evaluated so read the row back.
	return r.Get(ctx, w.Owner, w.ID)
}

// Delete removes the owner's world with its game states and portraits.
func (r *WorldRepository) Delete(ctx context.Context, owner string, id string) error {
	result, err := r.db.ReadWrite.ExecContext(ctx, `DELETE FROM worlds WHERE id = ? AND owner = ?`, id, owner)
	if err != nil {
		return errors.Wrap(err, "delete world", slog.String("world_id", id))
	}
	r.invalidate(id)
	return requireAffected(result, "delete world", slog.String("world_id", id))
}

// ListByOwner returns the owner's worlds, newest first.
func (r *WorldRepository) ListByOwner(ctx context.Context, owner string) ([]models.WorldSummary, error) {
	var (
		rows      *sql.Rows
		err       error
		summaries = []models.WorldSummary{}
	)
	stmt := `SELECT id, title, description, created, updated
FROM worlds
WHERE owner = ?
ORDER BY created DESC, id`
	if rows, err = r.db.ReadOnly.QueryContext(ctx, stmt, owner); err != nil {
		return nil, errors.Wrap(err, "query worlds")
	}
	defer closeRows(ctx, r.logger, rows)
	for rows.Next() {
		var (
			s                models.WorldSummary
			created, updated string
		)
		if err = rows.Scan(&s.ID, &s.Title, &s.Description, &created, &updated); err != nil {
			return nil, errors.Wrap(err, "scan world")
		}
		if s.Created, err = parseTimestamp(created); err != nil {
			return nil, err
		}
		if s.Updated, err = parseTimestamp(updated); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate worlds")
	}
	return summaries, nil
}

func fillFromMystery(w *models.World) {
	if w.Title == "" {
		w.Title = w.Payload.Mystery.Title
	}
	if w.Description == "" {
		w.Description = w.Payload.Mystery.Description
	}
}

func requireAffected(result sql.Result, msg string, attrs ...slog.Attr) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg, attrs...)
	}
	if affected == 0 {
		return errors.Wrap(ErrNotFound, msg, attrs...)
	}
	return nil
}

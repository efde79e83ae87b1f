package repositories

import (
	"context"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/sqlite"
	"github.com/myrjola/casefile/internal/world"
	"log/slog"
)

// PortraitRepository stores generated character portraits as PNG bytes.
type PortraitRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func NewPortraitRepository(db *sqlite.Database, logger *slog.Logger) *PortraitRepository {
	return &PortraitRepository{
		db:     db,
		logger: logger.With(slog.String("source", "PortraitRepository")),
	}
}

func (r *PortraitRepository) Put(ctx context.Context, worldID string, characterID world.CharacterID, image []byte) error {
	stmt := `INSERT INTO portraits (world_id, character_id, image)
VALUES (?, ?, ?)
ON CONFLICT (world_id, character_id) DO UPDATE SET image = excluded.image`
	if _, err := r.db.ReadWrite.ExecContext(ctx, stmt, worldID, string(characterID), image); err != nil {
		return errors.Wrap(err, "upsert portrait",
			slog.String("world_id", worldID),
			slog.String("character_id", string(characterID)))
	}
	return nil
}

// Get returns the portrait of a character in one of the owner's worlds or [ErrNotFound].
func (r *PortraitRepository) Get(
	ctx context.Context,
	owner string,
	worldID string,
	characterID world.CharacterID,
) ([]byte, error) {
	stmt := `SELECT p.image
FROM portraits p
         JOIN worlds w ON w.id = p.world_id
WHERE p.world_id = ? AND p.character_id = ? AND w.owner = ?`
	var image []byte
	if err := r.db.ReadOnly.QueryRowContext(ctx, stmt, worldID, string(characterID), owner).Scan(&image); err != nil {
		return nil, notFoundOr(err, "read portrait",
			slog.String("world_id", worldID),
			slog.String("character_id", string(characterID)))
	}
	return image, nil
}

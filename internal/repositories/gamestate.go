package repositories

import (
	"context"
	"database/sql"
	"github.com/google/uuid"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/game"
	"github.com/myrjola/casefile/internal/models"
	"github.com/myrjola/casefile/internal/sqlite"
	"log/slog"
)

type GameStateRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func NewGameStateRepository(db *sqlite.Database, logger *slog.Logger) *GameStateRepository {
	return &GameStateRepository{
		db:     db,
		logger: logger.With(slog.String("source", "GameStateRepository")),
	}
}

// Create starts a game in one of the owner's worlds. A nil state starts from [game.NewState].
func (r *GameStateRepository) Create(
	ctx context.Context,
	owner string,
	worldID string,
	state *game.State,
) (models.GameState, error) {
	if state == nil {
		state = game.NewState()
	}
	payload, err := state.Marshal()
	if err != nil {
		return models.GameState{}, errors.Wrap(err, "encode game state")
	}

	gs := models.GameState{ID: uuid.NewString(), Owner: owner, WorldID: worldID, State: state}
	// Selecting from worlds enforces that the owner owns the world.
	stmt := `INSERT INTO game_states (id, owner, world_id, payload)
SELECT :id, :owner, id, :payload FROM worlds WHERE id = :world_id AND owner = :owner
RETURNING created, updated`
	var created, updated string
	if err = r.db.ReadWrite.QueryRowContext(ctx, stmt,
		sql.Named("id", gs.ID),
		sql.Named("owner", owner),
		sql.Named("world_id", worldID),
		sql.Named("payload", string(payload)),
	).Scan(&created, &updated); err != nil {
		return models.GameState{}, notFoundOr(err, "insert game state", slog.String("world_id", worldID))
	}
	if gs.Created, err = parseTimestamp(created); err != nil {
		return models.GameState{}, err
	}
	if gs.Updated, err = parseTimestamp(updated); err != nil {
		return models.GameState{}, err
	}
	return gs, nil
}

// Get returns the owner's game state or [ErrNotFound].
func (r *GameStateRepository) Get(ctx context.Context, owner string, id string) (models.GameState, error) {
	stmt := `SELECT id, owner, world_id, payload, created, updated FROM game_states WHERE id = ? AND owner = ?`
	gs, err := scanGameState(r.db.ReadOnly.QueryRowContext(ctx, stmt, id, owner))
	if err != nil {
		return models.GameState{}, notFoundOr(err, "read game state", slog.String("game_state_id", id))
	}
	return gs, nil
}

// Update stores the state of the owner's game.
func (r *GameStateRepository) Update(ctx context.Context, owner string, id string, state *game.State) error {
	payload, err := state.Marshal()
	if err != nil {
		return errors.Wrap(err, "encode game state")
	}
	result, err := r.db.ReadWrite.ExecContext(ctx, `UPDATE game_states SET payload = ? WHERE id = ? AND owner = ?`,
		string(payload), id, owner)
	if err != nil {
		return errors.Wrap(err, "update game state", slog.String("game_state_id", id))
	}
	return requireAffected(result, "update game state", slog.String("game_state_id", id))
}

func (r *GameStateRepository) Delete(ctx context.Context, owner string, id string) error {
	result, err := r.db.ReadWrite.ExecContext(ctx, `DELETE FROM game_states WHERE id = ? AND owner = ?`, id, owner)
	if err != nil {
		return errors.Wrap(err, "delete game state", slog.String("game_state_id", id))
	}
	return requireAffected(result, "delete game state", slog.String("game_state_id", id))
}

// ListByOwner returns the owner's games, most recently played first.
func (r *GameStateRepository) ListByOwner(ctx context.Context, owner string) ([]models.GameState, error) {
	var (
		rows   *sql.Rows
		err    error
		states = []models.GameState{}
	)
	stmt := `SELECT id, owner, world_id, payload, created, updated
FROM game_states
WHERE owner = ?
ORDER BY updated DESC, id`
	if rows, err = r.db.ReadOnly.QueryContext(ctx, stmt, owner); err != nil {
		return nil, errors.Wrap(err, "query game states")
	}
	defer closeRows(ctx, r.logger, rows)
	for rows.Next() {
		var gs models.GameState
		if gs, err = scanGameState(rows); err != nil {
			return nil, err
		}
		states = append(states, gs)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate game states")
	}
	return states, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGameState(row scanner) (models.GameState, error) {
	var (
		gs                        models.GameState
		payload, created, updated string
		err                       error
	)
	if err = row.Scan(&gs.ID, &gs.Owner, &gs.WorldID, &payload, &created, &updated); err != nil {
		return models.GameState{}, errors.Wrap(err, "scan game state")
	}
	if gs.State, err = game.UnmarshalState([]byte(payload)); err != nil {
		return models.GameState{}, err
	}
	if gs.Created, err = parseTimestamp(created); err != nil {
		return models.GameState{}, err
	}
	if gs.Updated, err = parseTimestamp(updated); err != nil {
		return models.GameState{}, err
	}
	return gs, nil
}

package repositories_test

import (
	"context"
	"github.com/myrjola/casefile/internal/game"
	"github.com/myrjola/casefile/internal/models"
	"github.com/myrjola/casefile/internal/repositories"
	"github.com/myrjola/casefile/internal/testhelpers"
	"github.com/myrjola/casefile/internal/world"
	"github.com/myrjola/casefile/internal/world/worldtest"
	"github.com/stretchr/testify/require"
	"io"
	"testing"
)

func newWorldRepository(t *testing.T) (*repositories.WorldRepository, *repositories.GameStateRepository,
	*repositories.PortraitRepository) {
	t.Helper()
	db := newTestDB(t)
	logger := testhelpers.NewLogger(io.Discard)
	worlds, err := repositories.NewWorldRepository(db, 2, logger)
	require.NoError(t, err)
	return worlds, repositories.NewGameStateRepository(db, logger), repositories.NewPortraitRepository(db, logger)
}

func TestWorldRepository(t *testing.T) {
	var (
		ctx          = context.Background()
		worlds, _, _ = newWorldRepository(t)
	)

	created, err := worlds.Create(ctx, models.World{Owner: "alice", Payload: worldtest.Payload()})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "The Blackwood Manor Affair", created.Title)
	require.False(t, created.Created.IsZero())

	read, err := worlds.Get(ctx, "alice", created.ID)
	require.NoError(t, err)
	require.Equal(t, created, read)

	w, err := worlds.GetWorld(ctx, "alice", created.ID)
	require.NoError(t, err)
	require.Equal(t, worldtest.World(), w)

	// Other owners can't see the world, cached or not.
	_, err = worlds.Get(ctx, "bob", created.ID)
	require.ErrorIs(t, err, repositories.ErrNotFound)
	_, err = worlds.GetWorld(ctx, "bob", created.ID)
	require.ErrorIs(t, err, repositories.ErrNotFound)

	updatedPayload := worldtest.Payload()
	updatedPayload.Mystery.Title = "The Blackwood Manor Affair, Revisited"
	updated, err := worlds.Update(ctx, models.World{ID: created.ID, Owner: "alice", Payload: updatedPayload})
	require.NoError(t, err)
	require.Equal(t, "The Blackwood Manor Affair, Revisited", updated.Title)

	// The cache was invalidated.
	w, err = worlds.GetWorld(ctx, "alice", created.ID)
	require.NoError(t, err)
	require.Equal(t, "The Blackwood Manor Affair, Revisited", w.Mystery.Title)

	_, err = worlds.Update(ctx, models.World{ID: created.ID, Owner: "bob", Payload: updatedPayload})
	require.ErrorIs(t, err, repositories.ErrNotFound)

	summaries, err := worlds.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, created.ID, summaries[0].ID)
	summaries, err = worlds.ListByOwner(ctx, "bob")
	require.NoError(t, err)
	require.Empty(t, summaries)

	require.ErrorIs(t, worlds.Delete(ctx, "bob", created.ID), repositories.ErrNotFound)
	require.NoError(t, worlds.Delete(ctx, "alice", created.ID))
	_, err = worlds.GetWorld(ctx, "alice", created.ID)
	require.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestWorldRepository_Create_invalid(t *testing.T) {
	var (
		ctx          = context.Background()
		worlds, _, _ = newWorldRepository(t)
		payload      = worldtest.Payload()
	)
	payload.Solution.CulpritID = "nobody"

	_, err := worlds.Create(ctx, models.World{Owner: "alice", Payload: payload})
	require.True(t, world.IsValidationError(err))
	summaries, err := worlds.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, summaries)
}

func TestGameStateRepository(t *testing.T) {
	var (
		ctx                   = context.Background()
		worlds, gameStates, _ = newWorldRepository(t)
	)
	w, err := worlds.Create(ctx, models.World{Owner: "alice", Payload: worldtest.Payload()})
	require.NoError(t, err)

	_, err = gameStates.Create(ctx, "bob", w.ID, nil)
	require.ErrorIs(t, err, repositories.ErrNotFound)

	gs, err := gameStates.Create(ctx, "alice", w.ID, nil)
	require.NoError(t, err)
	require.Equal(t, game.NewState(), gs.State)

	state := gs.State
	require.NoError(t, state.SelectCharacter(worldtest.World(), worldtest.Witness))
	state.RevealClue(worldtest.World(), "candle-wax")
	require.NoError(t, gameStates.Update(ctx, "alice", gs.ID, state))
	require.ErrorIs(t, gameStates.Update(ctx, "bob", gs.ID, state), repositories.ErrNotFound)

	read, err := gameStates.Get(ctx, "alice", gs.ID)
	require.NoError(t, err)
	require.Equal(t, state, read.State)
	require.Equal(t, w.ID, read.WorldID)

	list, err := gameStates.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, gameStates.Delete(ctx, "alice", gs.ID))
	_, err = gameStates.Get(ctx, "alice", gs.ID)
	require.ErrorIs(t, err, repositories.ErrNotFound)
	require.ErrorIs(t, gameStates.Delete(ctx, "alice", gs.ID), repositories.ErrNotFound)
}

func TestWorldRepository_Delete_cascades(t *testing.T) {
	var (
		ctx                           = context.Background()
		worlds, gameStates, portraits = newWorldRepository(t)
	)
	w, err := worlds.Create(ctx, models.World{Owner: "alice", Payload: worldtest.Payload()})
	require.NoError(t, err)
	gs, err := gameStates.Create(ctx, "alice", w.ID, nil)
	require.NoError(t, err)
	require.NoError(t, portraits.Put(ctx, w.ID, worldtest.Witness, []byte("png")))

	image, err := portraits.Get(ctx, "alice", w.ID, worldtest.Witness)
	require.NoError(t, err)
	require.Equal(t, []byte("png"), image)
	_, err = portraits.Get(ctx, "bob", w.ID, worldtest.Witness)
	require.ErrorIs(t, err, repositories.ErrNotFound)

	require.NoError(t, worlds.Delete(ctx, "alice", w.ID))
	_, err = gameStates.Get(ctx, "alice", gs.ID)
	require.ErrorIs(t, err, repositories.ErrNotFound)
	_, err = portraits.Get(ctx, "alice", w.ID, worldtest.Witness)
	require.ErrorIs(t, err, repositories.ErrNotFound)
}

package main

import (
	"context"
	"github.com/myrjola/casefile/internal/e2etest"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/logging"
	"github.com/myrjola/casefile/internal/models"
	"github.com/myrjola/casefile/internal/world/worldtest"
	"log/slog"
	"net/http"
	"os"
	"time"
)

func TestAuth(ctx context.Context, client *e2etest.Client) error {
	var (
		session e2etest.Session
		err     error
	)
	if session, err = client.Register(ctx); err != nil {
		return errors.Wrap(err, "register user")
	}
	if !session.Authenticated {
		return errors.New("not authenticated after registration")
	}
	if _, err = client.Logout(ctx); err != nil {
		return errors.Wrap(err, "logout user")
	}
	if session, err = client.Login(ctx); err != nil {
		return errors.Wrap(err, "login user")
	}
	if !session.Authenticated {
		return errors.New("not authenticated after login")
	}
	return nil
}

// TestWorldRoundTrip stores a world without involving the model provider, reads it back and deletes it.
func TestWorldRoundTrip(ctx context.Context, client *e2etest.Client) error {
	var (
		stored models.World
		err    error
	)
	if err = client.DoJSON(ctx, http.MethodPost, "/api/worlds",
		map[string]any{"payload": worldtest.Payload()}, http.StatusCreated, &stored); err != nil {
		return errors.Wrap(err, "create world")
	}
	path := "/api/worlds/" + stored.ID
	if err = client.DoJSON(ctx, http.MethodGet, path, nil, http.StatusOK, &stored); err != nil {
		return errors.Wrap(err, "get world", slog.String("world_id", stored.ID))
	}
	if err = client.DoJSON(ctx, http.MethodDelete, path, nil, http.StatusNoContent, nil); err != nil {
		return errors.Wrap(err, "delete world", slog.String("world_id", stored.ID))
	}
	return nil
}

func main() {
	logger := logging.NewLogger(os.Stdout, slog.LevelDebug)
	ctx := context.Background()

	if len(os.Args) != 2 { //nolint:mnd // we expect only hostname to be passed as argument.
		logger.LogAttrs(ctx, slog.LevelError, "usage: smoketest <hostname>")
		os.Exit(1)
	}

	var (
		hostname = os.Args[1]
		url      = "https://" + hostname
		client   *e2etest.Client
		err      error
	)
	ctx = logging.WithAttrs(ctx, slog.String("hostname", url))
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second) //nolint:mnd // 10 seconds
	defer cancel()

	if client, err = e2etest.NewClient(url, hostname, url); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating client", errors.SlogError(err))
		os.Exit(1) //nolint:gocritic // the deferred cancel does not matter when exiting.
	}
	if err = client.WaitForReady(ctx, "/api/healthy"); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "server not ready", errors.SlogError(err))
		os.Exit(1)
	}
	if err = TestAuth(ctx, client); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error testing auth", errors.SlogError(err))
		os.Exit(1)
	}
	if err = TestWorldRoundTrip(ctx, client); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error testing worlds", errors.SlogError(err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful 🙌")
}

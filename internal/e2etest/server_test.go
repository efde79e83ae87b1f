package e2etest_test

import (
	"context"
	"github.com/myrjola/casefile/internal/e2etest"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/stretchr/testify/require"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
)

func TestServerConfig_LookupEnv(t *testing.T) {
	tests := []struct {
		name   string
		cfg    e2etest.ServerConfig
		key    string
		want   string
		wantOK bool
	}{
		{
			name:   "random port",
			cfg:    e2etest.ServerConfig{ProviderURL: "", RedisURL: "", Env: nil},
			key:    "CASEFILE_ADDR",
			want:   "localhost:0",
			wantOK: true,
		},
		{
			name:   "in-memory database",
			cfg:    e2etest.ServerConfig{ProviderURL: "", RedisURL: "", Env: nil},
			key:    "CASEFILE_SQLITE_URL",
			want:   ":memory:",
			wantOK: true,
		},
		{
			name:   "provider",
			cfg:    e2etest.ServerConfig{ProviderURL: "http://127.0.0.1:9999", RedisURL: "", Env: nil},
			key:    "OPENAI_BASE_URL",
			want:   "http://127.0.0.1:9999",
			wantOK: true,
		},
		{
			name:   "in-process locker by default",
			cfg:    e2etest.ServerConfig{ProviderURL: "", RedisURL: "", Env: nil},
			key:    "CASEFILE_REDIS_URL",
			want:   "",
			wantOK: false,
		},
		{
			name:   "redis locker",
			cfg:    e2etest.ServerConfig{ProviderURL: "", RedisURL: "redis://127.0.0.1:6379", Env: nil},
			key:    "CASEFILE_REDIS_URL",
			want:   "redis://127.0.0.1:6379",
			wantOK: true,
		},
		{
			name: "overrides win",
			cfg: e2etest.ServerConfig{ProviderURL: "", RedisURL: "",
				Env: map[string]string{"CASEFILE_MAX_ATTEMPTS": "2", "CASEFILE_SQLITE_URL": "file:test.db"}},
			key:    "CASEFILE_SQLITE_URL",
			want:   "file:test.db",
			wantOK: true,
		},
		{
			name:   "real environment is never read",
			cfg:    e2etest.ServerConfig{ProviderURL: "", RedisURL: "", Env: nil},
			key:    "PATH",
			want:   "",
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.cfg.LookupEnv(tt.key)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

// healthyServer stands in for the casefile run function. It logs the listener address more than once, like a server
// whose later records happen to carry an addr attribute.
func healthyServer(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	addr, _ := lookupEnv("CASEFILE_ADDR")
	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr) //nolint:exhaustruct // defaults.
	if err != nil {
		return err //nolint:wrapcheck // test helper.
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/healthy", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Handler: mux} //nolint:exhaustruct,gosec // test server.
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	for range 3 {
		logger.LogAttrs(ctx, slog.LevelInfo, "listening", slog.String(e2etest.LogAddrKey, listener.Addr().String()))
	}
	if err = srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return err //nolint:wrapcheck // test helper.
	}
	return nil
}

func TestStartServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	server, err := e2etest.StartServer(ctx, io.Discard, e2etest.ServerConfig{ProviderURL: "", RedisURL: "", Env: nil},
		healthyServer)
	require.NoError(t, err)
	require.NotNil(t, server.Client())
	require.True(t, strings.HasPrefix(server.URL(), "http://"), server.URL())

	other, err := server.NewClient()
	require.NoError(t, err)
	require.NotSame(t, server.Client(), other)
	require.Empty(t, other.SessionToken())
}

func TestStartServer_runFails(t *testing.T) {
	failing := func(context.Context, *slog.Logger, func(string) (string, bool)) error {
		return errors.New("no database")
	}
	_, err := e2etest.StartServer(context.Background(), io.Discard,
		e2etest.ServerConfig{ProviderURL: "", RedisURL: "", Env: nil}, failing)
	require.ErrorContains(t, err, "no database")
}

package e2etest

import (
	"context"
	"fmt"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/logging"
	"io"
	"log/slog"
)

// LogAddrKey is the key used to log the address the server is listening on.
const LogAddrKey = "addr"

// ServerConfig describes the casefile deployment a test server runs as. The zero value is an in-memory server on a
// random port with the in-process turn locker and no reachable model provider.
type ServerConfig struct {
	// ProviderURL is the OpenAI-compatible endpoint, usually an [net/http/httptest.Server] faking the provider.
	ProviderURL string
	// RedisURL selects the redis turn locker, e.g. a miniredis address. Empty selects the in-process locker.
	RedisURL string
	// Env overrides any other setting by its environment variable name.
	Env map[string]string
}

// LookupEnv resolves the casefile environment of the test server. It has the same signature as [os.LookupEnv] and
// never reads the real environment.
func (c ServerConfig) LookupEnv(key string) (string, bool) {
	if value, ok := c.Env[key]; ok {
		return value, true
	}
	switch key {
	case "CASEFILE_ADDR":
		return "localhost:0", true
	case "CASEFILE_SQLITE_URL":
		return ":memory:", true
	case "OPENAI_API_KEY":
		return "test-key", true
	case "OPENAI_BASE_URL":
		return c.ProviderURL, c.ProviderURL != ""
	case "CASEFILE_REDIS_URL":
		return c.RedisURL, c.RedisURL != ""
	}
	return "", false
}

type Server struct {
	url    string
	client *Client
}

// StartServer starts a casefile server configured by cfg and waits until it reports healthy.
//
// logSink receives the server logs. You usually want [io.Discard].
// run starts the server and must log the address it's listening on under [LogAddrKey].
func StartServer(
	ctx context.Context,
	logSink io.Writer,
	cfg ServerConfig,
	run func(context.Context, *slog.Logger, func(string) (string, bool)) error,
) (*Server, error) {
	ctx, cancel := context.WithCancelCause(ctx)

	// The port is allocated dynamically so we grab it from the first record that logs it.
	addrCh := make(chan string, 1)
	logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(logSink, &slog.HandlerOptions{
		AddSource: false,
		Level:     slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == LogAddrKey {
				select {
				case addrCh <- a.Value.String():
				default:
				}
			}
			return a
		},
	})))

	go func() {
		if err := run(ctx, logger, cfg.LookupEnv); err != nil {
			cancel(err)
		}
	}()
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(context.Cause(ctx), "server stopped before listening")
	case addr := <-addrCh:
		server := &Server{url: fmt.Sprintf("http://%s", addr), client: nil}
		client, err := server.NewClient()
		if err != nil {
			return nil, err
		}
		if err = client.WaitForReady(ctx, "/api/healthy"); err != nil {
			return nil, errors.Wrap(err, "wait for ready")
		}
		server.client = client
		return server, nil
	}
}

// Client returns the client created when the server started.
func (s *Server) Client() *Client {
	return s.client
}

// NewClient returns a fresh anonymous client with its own authenticator and cookies, i.e. another player.
func (s *Server) NewClient() (*Client, error) {
	client, err := NewClient(s.url, "localhost", "http://localhost:0")
	if err != nil {
		return nil, errors.Wrap(err, "new client")
	}
	return client, nil
}

func (s *Server) URL() string {
	return s.url
}

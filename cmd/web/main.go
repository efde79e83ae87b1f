package main

import (
	"context"
	"fmt"
	"github.com/alexedwards/scs/v2"
	"github.com/myrjola/casefile/internal/ai"
	"github.com/myrjola/casefile/internal/broker"
	"github.com/myrjola/casefile/internal/envstruct"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/game"
	"github.com/myrjola/casefile/internal/generation"
	"github.com/myrjola/casefile/internal/logging"
	"github.com/myrjola/casefile/internal/portraits"
	"github.com/myrjola/casefile/internal/pprofserver"
	"github.com/myrjola/casefile/internal/repositories"
	"github.com/myrjola/casefile/internal/sessionlock"
	"github.com/myrjola/casefile/internal/sqlite"
	"github.com/myrjola/casefile/internal/tasks"
	"github.com/myrjola/casefile/internal/webauthnhandler"
	"golang.org/x/sync/errgroup"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

type application struct {
	logger          *slog.Logger
	webAuthnHandler *webauthnhandler.WebAuthnHandler
	sessionManager  *scs.SessionManager
	worlds          *repositories.WorldRepository
	gameStates      *repositories.GameStateRepository
	portraits       *repositories.PortraitRepository
	generator       *generation.Generator
	dialogue        *game.Engine
	judge           *game.Judge
	speech          ai.SpeechSynthesizer
	locker          sessionlock.Locker
	jobs            *jobRegistry
	events          *broker.ChannelBroker[string, generation.Event]
	tasks           *tasks.Runner
	requestTimeout  time.Duration
}

type config struct {
	// Addr is the address the HTTP server listens on. Port 0 picks a free port.
	Addr string `env:"CASEFILE_ADDR" envDefault:"localhost:4000"`
	// FQDN is the relying party id of the passkeys.
	FQDN string `env:"CASEFILE_FQDN" envDefault:"localhost"`
	// RPOrigin is the origin passkeys are bound to. Defaults to http://Addr.
	RPOrigin  string `env:"CASEFILE_RP_ORIGIN" envDefault:""`
	SqliteURL string `env:"CASEFILE_SQLITE_URL" envDefault:"./casefile.sqlite3"`
	// PprofAddr enables the pprof server on the given loopback address.
	PprofAddr string `env:"CASEFILE_PPROF_ADDR" envDefault:""`
	// RedisURL shares turn locks between instances. Locks are held in process when empty.
	RedisURL       string        `env:"CASEFILE_REDIS_URL" envDefault:""`
	OpenAIAPIKey   string        `env:"OPENAI_API_KEY" envDefault:""`
	OpenAIBaseURL  string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	ChatModel      string        `env:"CASEFILE_CHAT_MODEL" envDefault:"gpt-4o-mini"`
	WorldModel     string        `env:"CASEFILE_WORLD_MODEL" envDefault:"gpt-4o"`
	MaxAttempts    int           `env:"CASEFILE_MAX_ATTEMPTS" envDefault:"5"`
	RequestTimeout time.Duration `env:"CASEFILE_REQUEST_TIMEOUT" envDefault:"2m"`
	TaskTimeout    time.Duration `env:"CASEFILE_TASK_TIMEOUT" envDefault:"10m"`
	WorldCacheSize int           `env:"CASEFILE_WORLD_CACHE_SIZE" envDefault:"128"`
}

func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	var (
		cfg config
		err error
	)
	if err = envstruct.Populate(&cfg, lookupEnv); err != nil {
		return errors.Wrap(err, "populate config")
	}
	if cfg.RPOrigin == "" {
		cfg.RPOrigin = fmt.Sprintf("http://%s", cfg.Addr)
	}

	var db *sqlite.Database
	if db, err = sqlite.NewDatabase(ctx, cfg.SqliteURL, logger); err != nil {
		return errors.Wrap(err, "open database", slog.String("url", cfg.SqliteURL))
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "failed to close database", errors.SlogError(closeErr))
		}
	}()

	var locker sessionlock.Locker = sessionlock.NewLocalLocker()
	if cfg.RedisURL != "" {
		var redisLocker *sessionlock.RedisLocker
		if redisLocker, err = sessionlock.NewRedisLocker(ctx, cfg.RedisURL, logger); err != nil {
			return errors.Wrap(err, "connect turn locker")
		}
		defer func() {
			if closeErr := redisLocker.Close(); closeErr != nil {
				logger.LogAttrs(ctx, slog.LevelError, "failed to close redis", errors.SlogError(closeErr))
			}
		}()
		locker = redisLocker
	}

	var (
		users          = repositories.NewUserRepository(db, logger)
		gameStates     = repositories.NewGameStateRepository(db, logger)
		portraitImages = repositories.NewPortraitRepository(db, logger)
		sessionManager = newSessionManager(db)
		aiClient       = ai.NewClient(ai.Config{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL, HTTPClient: nil},
			logger)
		runner    = tasks.NewRunner(cfg.TaskTimeout, logger)
		extractor = game.NewExtractor(aiClient, cfg.ChatModel, logger)
		worlds    *repositories.WorldRepository
		webAuthn  *webauthnhandler.WebAuthnHandler
		jobs      *jobRegistry
	)
	if worlds, err = repositories.NewWorldRepository(db, cfg.WorldCacheSize, logger); err != nil {
		return errors.Wrap(err, "new world repository")
	}
	if webAuthn, err = webauthnhandler.New(cfg.FQDN, []string{cfg.RPOrigin}, logger, sessionManager, users); err != nil {
		return errors.Wrap(err, "new webauthn handler")
	}
	if jobs, err = newJobRegistry(); err != nil {
		return errors.Wrap(err, "new job registry")
	}
	sink := &worldSink{
		worlds:    worlds,
		painter:   portraits.NewPainter(aiClient, portraitImages, logger),
		scheduler: runner,
		logger:    logger,
	}
	events := broker.NewChannelBroker[string, generation.Event]()
	go events.Start()
	defer events.Stop()

	app := application{
		logger:          logger,
		webAuthnHandler: webAuthn,
		sessionManager:  sessionManager,
		worlds:          worlds,
		gameStates:      gameStates,
		portraits:       portraitImages,
		generator: generation.NewGenerator(aiClient,
			generation.Config{Model: cfg.WorldModel, MaxAttempts: cfg.MaxAttempts}, runner, sink, logger),
		dialogue:       game.NewEngine(aiClient, cfg.ChatModel, extractor, logger),
		judge:          game.NewJudge(aiClient, cfg.ChatModel, logger),
		speech:         aiClient,
		locker:         locker,
		jobs:           jobs,
		events:         events,
		tasks:          runner,
		requestTimeout: cfg.RequestTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.configureAndStartServer(ctx, cfg.Addr)
	})
	if cfg.PprofAddr != "" {
		g.Go(func() error {
			return pprofserver.Serve(ctx, cfg.PprofAddr, logger)
		})
	}
	if err = g.Wait(); err != nil {
		return err
	}

	// Let accepted worlds reach the database before closing it.
	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = runner.Wait(waitCtx); err != nil {
		logger.LogAttrs(ctx, slog.LevelWarn, "background tasks still running at shutdown", errors.SlogError(err))
	}
	return nil
}

func main() {
	logger := logging.NewLogger(os.Stdout, slog.LevelDebug)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, logger, os.LookupEnv); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failure starting application", errors.SlogError(err))
		stop()
		os.Exit(1) //nolint:gocritic // stop is called explicitly above.
	}
}

package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"quizplay-service/internal/app"
	"quizplay-service/internal/config"
	"quizplay-service/internal/duelview"
	"quizplay-service/internal/infra/memory"
	natsfeed "quizplay-service/internal/infra/nats"
	"quizplay-service/internal/infra/postgres"
	redisinfra "quizplay-service/internal/infra/redis"
	transport "quizplay-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the duel server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// backends holds the stores picked from config.
type backends struct {
	rooms   app.RoomRepository
	players app.PlayerRepository
	pairs   app.PairRepository
	writer  app.QuestionWriter
	loader  memory.QuestionLoader

	db    *bun.DB
	pool  *pgxpool.Pool
	redis *redis.Client
}

func (b *backends) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.db != nil {
		_ = b.db.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
}

func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	b := &backends{}
	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	if cfg.Postgres.URL == "" {
		log.Warn().Msg("postgres not configured, using in-memory store")
		store := memory.NewStore()
		b.rooms, b.players, b.pairs, b.writer, b.loader = store, store, store, store, store
		return b, nil
	}

	db, err := openDB(cfg)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.db = db
	if err := Migrate(ctx, db); err != nil {
		b.Close()
		return nil, err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.pool = pool

	store := postgres.NewStore(db)
	b.rooms, b.players, b.pairs, b.writer = store, store, store, store
	b.loader = postgres.NewQuestionLoader(pool)
	return b, nil
}

// feedRunner is a remote change feed that must be consumed in the background.
type feedRunner interface {
	app.ChangeFeed
	Run(ctx context.Context, ready chan<- struct{}) error
}

func openFeed(cfg config.Config, b *backends, local *memory.Feed) (app.ChangeFeed, feedRunner, func(), error) {
	noop := func() {}
	switch cfg.FeedDriver() {
	case "memory":
		return local, nil, noop, nil
	case "redis":
		if b.redis == nil {
			return nil, nil, nil, fmt.Errorf("feed driver redis needs redis.addr")
		}
		f := redisinfra.NewFeed(b.redis, cfg.Feed.Channel, local)
		return f, f, noop, nil
	case "postgres":
		if b.db == nil {
			return nil, nil, nil, fmt.Errorf("feed driver postgres needs postgres.url")
		}
		f := postgres.NewFeed(b.db, cfg.Postgres.URL, cfg.Feed.Channel, local)
		return f, f, noop, nil
	case "nats":
		if cfg.NATS.URL == "" {
			return nil, nil, nil, fmt.Errorf("feed driver nats needs nats.url")
		}
		nc, err := natsfeed.Connect(cfg.NATS.URL)
		if err != nil {
			return nil, nil, nil, err
		}
		f := natsfeed.NewFeed(nc, cfg.Feed.Channel, local)
		return f, f, nc.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown feed driver %q", cfg.Feed.Driver)
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	draw, err := app.ParseDrawMode(cfg.Duel.Draw)
	if err != nil {
		return err
	}

	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	roundTTL := config.TTLDuration(cfg.Duel.RoundTTL, 6*time.Hour)
	lockTTL := config.TTLDuration(cfg.Duel.LockTTL, 5*time.Second)

	var (
		questions app.QuestionRepository
		rounds    app.RoundStore
		locks     app.Locker
	)
	if b.redis != nil {
		questions = redisinfra.NewQuestionRepository(b.redis, b.loader, questionTTL)
		rounds = redisinfra.NewRoundStore(b.redis, roundTTL)
		locks = redisinfra.NewLocker(b.redis, lockTTL)
	} else {
		questions = memory.NewQuestionRepository(b.loader, questionTTL)
		rounds = memory.NewRoundStore()
		locks = memory.NewLocker()
	}

	local := memory.NewFeed()
	feed, runner, closeFeed, err := openFeed(cfg, b, local)
	if err != nil {
		return err
	}
	defer closeFeed()
	if runner != nil {
		ready := make(chan struct{})
		go func() {
			if err := runner.Run(ctx, ready); err != nil {
				log.Error().Err(err).Msg("change feed stopped")
			}
		}()
		select {
		case <-ready:
		case <-time.After(10 * time.Second):
			return fmt.Errorf("change feed %s did not start", cfg.FeedDriver())
		}
	}

	duels := app.NewDuelService(b.pairs, b.players, questions, rounds, locks, feed, app.DuelOptions{
		Draw:               draw,
		MaxConflictRetries: cfg.Duel.MaxConflictRetries,
	})
	lobby := app.NewLobbyService(b.rooms, b.players, b.pairs, b.writer, questions, rounds)

	router := transport.NewRouter(
		transport.NewAPIHandler(lobby, duels),
		transport.NewWSHandler(duels, duelview.Options{
			RevealDelay: config.TTLDuration(cfg.Duel.RevealDelay, duelview.DefaultRevealDelay),
		}),
		cfg.Server.CORSOrigins,
	)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", finalPort).
			Str("feed", cfg.FeedDriver()).
			Str("draw", string(draw)).
			Msg("starting quizplay service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
			cancelRun()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

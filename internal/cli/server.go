package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/config"
	"trivia-live-service/internal/contentfilter"
	"trivia-live-service/internal/domain"
	"trivia-live-service/internal/infra/memory"
	pginfra "trivia-live-service/internal/infra/postgres"
	redisinfra "trivia-live-service/internal/infra/redis"
	"trivia-live-service/internal/token"
	transport "trivia-live-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pginfra.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var store app.SessionStore = memory.NewStore()
	if pool != nil {
		store = pginfra.NewStore(pool)
	}

	var cache app.Cache = memory.NewCache()
	if redisClient != nil {
		cache = redisinfra.NewCache(redisClient)
	} else {
		log.Warn("redis not configured, using in-process cache; join codes and rate limits will not be shared across instances")
	}

	secret := cfg.Auth.Secret
	if secret == "" {
		secret = randomSecret()
		log.Warn("auth secret not configured, generated an ephemeral one; tokens will not survive restarts")
	}
	tokens := token.NewIssuer(secret, config.TTLDuration(cfg.Auth.TokenTTL, 12*time.Hour))

	service := app.NewService(store, cache, quizRepo, tokens, contentfilter.NewDefault(), app.Config{
		SessionTTL: config.TTLDuration(cfg.Session.TTL, 6*time.Hour),
		JoinLimit:  cfg.RateLimit.JoinLimit,
		JoinWindow: config.TTLDuration(cfg.RateLimit.JoinWindow, 60*time.Second),
		Scoring: app.ScoringRules{
			StreakBonusStep:      cfg.Scoring.StreakBonusStep,
			PartialCreditPenalty: cfg.Scoring.PartialCreditPenalty,
		},
	}, log)

	wsHandler := transport.NewWSHandler(service, tokens, log)
	hostHandler := transport.NewHostHandler(service, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	hostHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting trivia service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server stopped", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// sampleQuizzes seeds the in-memory loader when Postgres is not configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warmup",
			Questions: []domain.Question{
				{
					ID:          "q1",
					Prompt:      "What is 2 + 2?",
					TimeLimitMs: 30000,
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5"},
					},
					Scoring: domain.ScoringConfig{BasePoints: 100, SpeedBonusMultiplier: 0.5},
				},
				{
					ID:          "q2",
					Prompt:      "Which of these are prime?",
					TimeLimitMs: 30000,
					Options: []domain.Option{
						{ID: "o1", Text: "2", Correct: true},
						{ID: "o2", Text: "9"},
						{ID: "o3", Text: "11", Correct: true},
					},
					Scoring: domain.ScoringConfig{BasePoints: 100, SpeedBonusMultiplier: 0.5, PartialCreditEnabled: true},
				},
			},
		},
	}
}

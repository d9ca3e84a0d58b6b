package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Anubhav12123/AI-Recommender-System/internal/artifact"
	"github.com/Anubhav12123/AI-Recommender-System/internal/auth/apikey"
	"github.com/Anubhav12123/AI-Recommender-System/internal/builder"
	"github.com/Anubhav12123/AI-Recommender-System/internal/catalog"
	"github.com/Anubhav12123/AI-Recommender-System/internal/embedding"
	"github.com/Anubhav12123/AI-Recommender-System/internal/engine"
	"github.com/Anubhav12123/AI-Recommender-System/internal/feedback"
	"github.com/Anubhav12123/AI-Recommender-System/internal/server"
	"github.com/Anubhav12123/AI-Recommender-System/internal/vector"
	"github.com/Anubhav12123/AI-Recommender-System/pkg/config"
	apperrors "github.com/Anubhav12123/AI-Recommender-System/pkg/errors"
	"github.com/Anubhav12123/AI-Recommender-System/pkg/health"
	"github.com/Anubhav12123/AI-Recommender-System/pkg/kafka"
	"github.com/Anubhav12123/AI-Recommender-System/pkg/logger"
	"github.com/Anubhav12123/AI-Recommender-System/pkg/metrics"
	"github.com/Anubhav12123/AI-Recommender-System/pkg/middleware"
	pkgpostgres "github.com/Anubhav12123/AI-Recommender-System/pkg/postgres"
	pkgredis "github.com/Anubhav12123/AI-Recommender-System/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting recommender service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	items, ratings, pgClient, err := buildSources(cfg)
	if err != nil {
		slog.Error("failed to initialize snapshot sources", "error", err)
		os.Exit(1)
	}
	if pgClient != nil {
		defer pgClient.Close()
	}

	provider := buildProvider(cfg)
	embedCache := embedding.NewCache(filepath.Join(cfg.Builder.DataDir, "embeddings.gob"))
	if err := embedCache.Load(); err != nil {
		slog.Warn("embedding cache unavailable, starting empty", "error", err)
	}

	loadOpts := artifact.LoadOptions{
		VectorBackend: cfg.Vector.Backend,
		HNSW: vector.HNSWConfig{
			M:              cfg.Vector.M,
			EfConstruction: cfg.Vector.EfConstruction,
			EfSearch:       cfg.Vector.EfSearch,
		},
	}
	store, err := artifact.NewStore(cfg.Builder.DataDir, cfg.Builder.KeepVersions, loadOpts, slog.Default())
	if err != nil {
		slog.Error("failed to open artifact store", "error", err)
		os.Exit(1)
	}

	fbStore := feedback.NewStore()
	eng := engine.New(provider, fbStore, engine.Options{
		Fusion: cfg.Fusion,
		Boost: feedback.BoostParams{
			Window:   cfg.Feedback.Window,
			HalfLife: cfg.Feedback.HalfLife,
			MaxBoost: cfg.Feedback.MaxBoost,
		},
		DefaultLimit: cfg.Server.DefaultLimit,
		MaxResults:   cfg.Server.MaxResults,
	})

	if v, err := store.Current(); err == nil {
		eng.SetVersion(v)
	} else if errors.Is(err, apperrors.ErrNoVersion) {
		slog.Info("no artifact version published yet, serving will return 503 until a build completes")
	} else {
		slog.Error("failed to load current artifact version", "error", err)
		os.Exit(1)
	}

	var resultCache *engine.ResultCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, result caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		resultCache = engine.NewResultCache(redisClient, cfg.Redis)
		slog.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	feedbackProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.FeedbackEvents)
	defer feedbackProducer.Close()
	collector := feedback.NewCollector(feedbackProducer, 10000)
	collector.Start(ctx)
	defer collector.Close()
	slog.Info("feedback collector started", "topic", cfg.Kafka.Topics.FeedbackEvents)

	// Rebuilds from other nodes land here: swap in the named version as
	// soon as its bundle is visible.
	buildConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.BuildComplete,
		func(ctx context.Context, _ []byte, value []byte) error {
			notice, err := kafka.DecodeJSON[builder.BuildNotice](value)
			if err != nil {
				return err
			}
			current := eng.CurrentVersion()
			if current != nil && current.Manifest.VersionID == notice.VersionID {
				return nil
			}
			v, err := store.Load(notice.VersionID)
			if err != nil {
				return fmt.Errorf("loading announced version %s: %w", notice.VersionID, err)
			}
			eng.SetVersion(v)
			if resultCache != nil {
				if err := resultCache.Invalidate(ctx); err != nil {
					slog.Warn("result cache invalidation failed", "error", err)
				}
			}
			return nil
		})
	go func() {
		if err := buildConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("build-complete consumer error", "error", err)
		}
	}()
	defer buildConsumer.Close()

	b := builder.New(store, provider, embedCache, fbStore, builder.FromConfig(cfg))

	checker := health.NewChecker()
	checker.Register("artifact_version", func(ctx context.Context) health.ComponentHealth {
		v := eng.CurrentVersion()
		if v == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "no version published"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: v.Manifest.VersionID}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	if pgClient != nil {
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			if err := pgClient.DB.PingContext(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	h := server.New(eng, resultCache, collector, b, store, items, ratings)
	if pgClient != nil {
		h.AdminAuth = apikey.NewValidator(pgClient).Middleware()
		slog.Info("admin endpoints require an api key")
	}
	mux := http.NewServeMux()
	h.Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RateLimit(middleware.NewLimiter(time.Minute), cfg.Server.RateLimit)(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.Metrics(chain)
	chain = middleware.RequestID(chain)

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("recommender service listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("recommender service stopped")
}

func buildSources(cfg *config.Config) (catalog.ItemSource, catalog.RatingSource, *pkgpostgres.Client, error) {
	switch cfg.Sources.Backend {
	case "postgres":
		client, err := pkgpostgres.New(cfg.Postgres)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return catalog.PostgresItems{Client: client}, catalog.PostgresRatings{Client: client}, client, nil
	default:
		return catalog.CSVItems{Path: cfg.Sources.ItemsPath}, catalog.CSVRatings{Path: cfg.Sources.RatingsPath}, nil, nil
	}
}

func buildProvider(cfg *config.Config) embedding.Provider {
	var inner embedding.Provider
	switch cfg.Embedding.Provider {
	case "openai":
		inner = embedding.NewOpenAI(cfg.Embedding)
	default:
		inner = embedding.NewTFIDF(cfg.Embedding.Dimensions)
	}
	return embedding.NewResilient(inner, cfg.Embedding)
}

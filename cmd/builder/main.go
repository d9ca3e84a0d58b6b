package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Anubhav12123/AI-Recommender-System/internal/artifact"
	"github.com/Anubhav12123/AI-Recommender-System/internal/builder"
	"github.com/Anubhav12123/AI-Recommender-System/internal/catalog"
	"github.com/Anubhav12123/AI-Recommender-System/internal/embedding"
	"github.com/Anubhav12123/AI-Recommender-System/internal/evaluate"
	"github.com/Anubhav12123/AI-Recommender-System/internal/vector"
	"github.com/Anubhav12123/AI-Recommender-System/pkg/config"
	"github.com/Anubhav12123/AI-Recommender-System/pkg/kafka"
	"github.com/Anubhav12123/AI-Recommender-System/pkg/logger"
	pkgpostgres "github.com/Anubhav12123/AI-Recommender-System/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	itemsPath := flag.String("items", "", "items CSV path (overrides sources.itemsPath)")
	ratingsPath := flag.String("ratings", "", "ratings CSV path (overrides sources.ratingsPath)")
	announce := flag.Bool("announce", true, "publish a build-complete notice to Kafka")
	evalK := flag.Int("eval", 0, "after building, run leave-one-out CF evaluation at this cutoff (0 disables)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *itemsPath != "" {
		cfg.Sources.Backend = "csv"
		cfg.Sources.ItemsPath = *itemsPath
	}
	if *ratingsPath != "" {
		cfg.Sources.Backend = "csv"
		cfg.Sources.RatingsPath = *ratingsPath
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting index build",
		"sources", cfg.Sources.Backend,
		"embedding_provider", cfg.Embedding.Provider,
		"vector_backend", cfg.Vector.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	items, ratings, closefn, err := buildSources(cfg)
	if err != nil {
		slog.Error("failed to initialize snapshot sources", "error", err)
		os.Exit(1)
	}
	defer closefn()

	var inner embedding.Provider
	switch cfg.Embedding.Provider {
	case "openai":
		inner = embedding.NewOpenAI(cfg.Embedding)
	default:
		inner = embedding.NewTFIDF(cfg.Embedding.Dimensions)
	}
	provider := embedding.NewResilient(inner, cfg.Embedding)

	embedCache := embedding.NewCache(filepath.Join(cfg.Builder.DataDir, "embeddings.gob"))
	if err := embedCache.Load(); err != nil {
		slog.Warn("embedding cache unavailable, starting empty", "error", err)
	}

	store, err := artifact.NewStore(cfg.Builder.DataDir, cfg.Builder.KeepVersions, artifact.LoadOptions{
		VectorBackend: cfg.Vector.Backend,
		HNSW: vector.HNSWConfig{
			M:              cfg.Vector.M,
			EfConstruction: cfg.Vector.EfConstruction,
			EfSearch:       cfg.Vector.EfSearch,
		},
	}, slog.Default())
	if err != nil {
		slog.Error("failed to open artifact store", "error", err)
		os.Exit(1)
	}

	b := builder.New(store, provider, embedCache, nil, builder.FromConfig(cfg))
	v, err := b.BuildAll(ctx, items, ratings)
	if err != nil {
		slog.Error("build failed", "error", err)
		os.Exit(1)
	}

	if *announce {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.BuildComplete)
		defer producer.Close()
		err := producer.Publish(ctx, kafka.Event{
			Key: v.Manifest.VersionID,
			Value: builder.BuildNotice{
				VersionID: v.Manifest.VersionID,
				ItemCount: v.Manifest.ItemCount,
				BuiltAt:   v.Manifest.BuiltAt,
			},
		})
		if err != nil {
			slog.Warn("failed to announce build", "error", err)
		}
	}

	if *evalK > 0 {
		interactions, err := ratings.Interactions(ctx)
		if err != nil {
			slog.Error("loading interactions for evaluation failed", "error", err)
			os.Exit(1)
		}
		m, err := evaluate.RunCF(interactions, cfg.CF.NeighborK, evaluate.Options{K: *evalK})
		if err != nil {
			slog.Error("evaluation failed", "error", err)
			os.Exit(1)
		}
		slog.Info("offline evaluation complete",
			"k", m.K,
			"users", m.UsersEvaluated,
			"hit_rate", m.HitRate,
			"ndcg", m.NDCGAtK,
			"map", m.MAPAtK,
			"coverage", m.ItemCoverage,
		)
	}

	out, _ := json.MarshalIndent(v.Manifest, "", "  ")
	fmt.Println(string(out))
}

func buildSources(cfg *config.Config) (catalog.ItemSource, catalog.RatingSource, func(), error) {
	switch cfg.Sources.Backend {
	case "postgres":
		client, err := pkgpostgres.New(cfg.Postgres)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return catalog.PostgresItems{Client: client}, catalog.PostgresRatings{Client: client}, func() { client.Close() }, nil
	default:
		return catalog.CSVItems{Path: cfg.Sources.ItemsPath}, catalog.CSVRatings{Path: cfg.Sources.RatingsPath}, func() {}, nil
	}
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	v1 "github.com/pedro9bee/rag-qdrant-neo4j/internal/controller/http/v1"
	"github.com/pedro9bee/rag-qdrant-neo4j/internal/domain/usecase"
	"github.com/pedro9bee/rag-qdrant-neo4j/internal/repository/ner"
	"github.com/pedro9bee/rag-qdrant-neo4j/internal/repository/ollama"
	pgvectorRepo "github.com/pedro9bee/rag-qdrant-neo4j/internal/repository/pgvector"
	"github.com/pedro9bee/rag-qdrant-neo4j/internal/repository/postgres"
	redisRepo "github.com/pedro9bee/rag-qdrant-neo4j/internal/repository/redis"
	s3Repo "github.com/pedro9bee/rag-qdrant-neo4j/internal/repository/s3"
	psqlClient "github.com/pedro9bee/rag-qdrant-neo4j/pkg/client/psql"
	redisClient "github.com/pedro9bee/rag-qdrant-neo4j/pkg/client/redis"
	s3Client "github.com/pedro9bee/rag-qdrant-neo4j/pkg/client/s3"
	"github.com/pedro9bee/rag-qdrant-neo4j/pkg/middleware"
	"github.com/pedro9bee/rag-qdrant-neo4j/pkg/worker"
)

type Config struct {
	HTTPPort string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	JobTTL        time.Duration

	PSQLHost     string
	PSQLPort     string
	PSQLUser     string
	PSQLPassword string
	PSQLDBName   string
	PSQLSSLMode  string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Secure    bool

	OllamaBaseURL     string
	EmbeddingModel    string
	RelationshipModel string
	EmbeddingDims     int

	NERModelName   string
	NERModelDir    string
	NERThreshold   float64
	EntityLabels   []string
	RelationLabels []string

	CollectionPrefix  string
	ChunkSize         int
	ChunkOverlap      int
	MaxFileSizeMB     float64
	UpsertBatchSize   int
	RelationBatchSize int

	WorkerPoolSize  int
	RateLimit       int
	RateLimitWindow time.Duration
}

func main() {
	cfg := loadConfig()
	ctx := context.Background()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	redisCli, err := redisClient.NewRedisClient(ctx, redisClient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Error("redis connect failed", "error", err)
		os.Exit(1)
	}
	jobStore := redisRepo.NewJobStateRepo(redisCli, cfg.JobTTL, log)

	db, err := psqlClient.NewPostgresClient(ctx, psqlClient.Config{
		Host:     cfg.PSQLHost,
		Port:     cfg.PSQLPort,
		User:     cfg.PSQLUser,
		Password: cfg.PSQLPassword,
		Database: cfg.PSQLDBName,
		SSLMode:  cfg.PSQLSSLMode,
	})
	if err != nil {
		log.Error("postgres connect failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	vectors, err := pgvectorRepo.NewVectorRepo(db, cfg.CollectionPrefix, cfg.EmbeddingDims, log)
	if err != nil {
		log.Error("vector store init failed", "error", err)
		os.Exit(1)
	}
	if err := vectors.EnsureCollections(ctx); err != nil {
		log.Error("vector schema migration failed", "error", err)
		os.Exit(1)
	}

	graph := postgres.NewGraphRepo(db, cfg.RelationLabels, log)
	if err := graph.EnsureSchema(ctx); err != nil {
		log.Error("graph schema migration failed", "error", err)
		os.Exit(1)
	}

	minioCli, err := s3Client.NewS3Client(s3Client.Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Secure:    cfg.S3Secure,
	})
	if err != nil {
		log.Error("minio connect failed", "error", err)
		os.Exit(1)
	}
	storage := s3Repo.NewS3Repo(minioCli)

	embedder, err := ollama.NewEmbedder(cfg.OllamaBaseURL, cfg.EmbeddingModel, cfg.EmbeddingDims, log)
	if err != nil {
		log.Error("embedder init failed", "error", err)
		os.Exit(1)
	}
	relations, err := ollama.NewRelationExtractor(cfg.OllamaBaseURL, cfg.RelationshipModel, log)
	if err != nil {
		log.Error("relation extractor init failed", "error", err)
		os.Exit(1)
	}

	modelPath, err := ner.PrepareModel(cfg.NERModelName, cfg.NERModelDir)
	if err != nil {
		log.Error("ner model download failed", "error", err)
		os.Exit(1)
	}
	entities, err := ner.NewExtractor(modelPath, cfg.EntityLabels, float32(cfg.NERThreshold), log)
	if err != nil {
		log.Error("ner init failed", "error", err)
		os.Exit(1)
	}
	defer entities.Close()

	pool, err := worker.NewPool(cfg.WorkerPoolSize, log)
	if err != nil {
		log.Error("worker pool init failed", "error", err)
		os.Exit(1)
	}
	defer pool.Release()

	pipeline := usecase.NewPipelineUseCase(
		jobStore, storage, embedder, entities, relations, vectors, graph, pool,
		usecase.PipelineConfig{
			ChunkSize:         cfg.ChunkSize,
			ChunkOverlap:      cfg.ChunkOverlap,
			EmbeddingDims:     cfg.EmbeddingDims,
			MaxFileSizeMB:     cfg.MaxFileSizeMB,
			UpsertBatchSize:   cfg.UpsertBatchSize,
			RelationBatchSize: cfg.RelationBatchSize,
		},
		log,
	)
	query := usecase.NewQueryUseCase(embedder, vectors, graph, log)

	pipelineHandler := v1.NewPipelineHandler(pipeline)
	queryHandler := v1.NewQueryHandler(query, embedder)

	r := gin.Default()

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RedisClient: redisCli,
		Limit:       cfg.RateLimit,
		Window:      cfg.RateLimitWindow,
		KeyPrefix:   "rl:",
	})

	pipelineGroup := r.Group("/pipeline", rl)
	{
		pipelineGroup.POST("/process", pipelineHandler.Process)
		pipelineGroup.POST("/extract-entities", pipelineHandler.ExtractEntities)
		pipelineGroup.POST("/extract-relationships", pipelineHandler.ExtractRelationships)
		pipelineGroup.POST("/vectorize-chunks", pipelineHandler.VectorizeChunks)
		pipelineGroup.POST("/vectorize-entities", pipelineHandler.VectorizeEntities)
		pipelineGroup.POST("/vectorize-relationships", pipelineHandler.VectorizeRelationships)
		pipelineGroup.GET("/status/:job_id", pipelineHandler.Status)
		pipelineGroup.GET("/jobs", pipelineHandler.ListJobs)
		pipelineGroup.DELETE("/job/:job_id", pipelineHandler.DeleteJob)
	}
	r.POST("/query", queryHandler.Query)
	r.POST("/embed", queryHandler.Embed)
	r.GET("/health", queryHandler.Health)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: r,
	}

	go func() {
		log.Info("http server listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	log.Info("shutting down", "active_tasks", pool.Active())
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}

func loadConfig() Config {
	if err := godotenv.Load("./.env.local"); err != nil {
		slog.Info("no .env file found, falling back to OS environment variables")
	}

	getEnv := func(key, fallback string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return fallback
	}
	getEnvInt := func(key string, fallback int) int {
		val := os.Getenv(key)
		if val == "" {
			return fallback
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			slog.Error("invalid integer environment variable", "key", key, "value", val)
			os.Exit(1)
		}
		return n
	}
	getEnvFloat := func(key string, fallback float64) float64 {
		val := os.Getenv(key)
		if val == "" {
			return fallback
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			slog.Error("invalid float environment variable", "key", key, "value", val)
			os.Exit(1)
		}
		return f
	}
	getEnvList := func(key string, fallback []string) []string {
		val := os.Getenv(key)
		if val == "" {
			return fallback
		}
		parts := strings.Split(val, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}

	return Config{
		HTTPPort: getEnv("HTTP_PORT", "8000"),

		RedisAddr:     getEnv("REDIS_HOST", "localhost") + ":" + getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		JobTTL:        time.Duration(getEnvInt("REDIS_JOB_TTL", 172800)) * time.Second,

		PSQLHost:     getEnv("PSQL_HOST", "localhost"),
		PSQLPort:     getEnv("PSQL_PORT", "5432"),
		PSQLUser:     getEnv("PSQL_USER", "postgres"),
		PSQLPassword: getEnv("PSQL_PASSWORD", "postgres"),
		PSQLDBName:   getEnv("PSQL_DB", "rag"),
		PSQLSSLMode:  getEnv("PSQL_SSLMODE", "disable"),

		S3Endpoint:  getEnv("S3_HOST", "localhost") + ":" + getEnv("S3_PORT", "9000"),
		S3AccessKey: getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey: getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Secure:    getEnv("S3_SECURE", "false") == "true",

		OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434/v1"),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", "bge-m3"),
		RelationshipModel: getEnv("RELATIONSHIP_MODEL", "llama3.1"),
		EmbeddingDims:     getEnvInt("EMBEDDING_DIMENSIONS", 1024),

		NERModelName: getEnv("NER_MODEL", "dslim/bert-base-NER"),
		NERModelDir:  getEnv("NER_MODEL_DIR", "./models"),
		NERThreshold: getEnvFloat("NER_THRESHOLD", 0.3),
		EntityLabels: getEnvList("ENTITY_LABELS", []string{
			"PER", "ORG", "LOC", "MISC", "PERSON", "ORGANIZATION", "LOCATION",
			"TECHNOLOGY", "CONCEPT", "PRODUCT", "EVENT",
		}),
		RelationLabels: getEnvList("RELATION_LABELS", []string{
			"RELATED_TO", "PART_OF", "USES", "DEPENDS_ON", "LOCATED_IN",
			"WORKS_FOR", "CREATED_BY", "CONNECTS_TO", "DERIVED_FROM",
		}),

		CollectionPrefix:  getEnv("COLLECTION_PREFIX", "rag_embeddings"),
		ChunkSize:         getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:      getEnvInt("CHUNK_OVERLAP", 200),
		MaxFileSizeMB:     getEnvFloat("MAX_FILE_SIZE_MB", 50),
		UpsertBatchSize:   getEnvInt("UPSERT_BATCH_SIZE", 50),
		RelationBatchSize: getEnvInt("RELATION_BATCH_SIZE", 5),

		WorkerPoolSize:  getEnvInt("WORKER_POOL_SIZE", 8),
		RateLimit:       getEnvInt("RATE_LIMIT", 10),
		RateLimitWindow: time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 1)) * time.Second,
	}
}

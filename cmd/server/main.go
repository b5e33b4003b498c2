package main

import (
	"context"
	"fmt"
	"inspection-backend/cmd"
	"inspection-backend/internal/api"
	"inspection-backend/internal/core"
	"inspection-backend/internal/database"
	"inspection-backend/internal/messaging"
	"inspection-backend/internal/schema"
	"inspection-backend/internal/storage"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Config struct {
	DatabaseURL  string `env:"DATABASE_URL" envDefault:"sqlite:///predictions.db"`
	Port         int    `env:"PORT" envDefault:"5000"`
	SchemaPath   string `env:"SCHEMA_PATH" envDefault:""`
	ModelDir     string `env:"MODEL_DIR" envDefault:"./model"`
	PipelineKind string `env:"PIPELINE_KIND" envDefault:"linear"`

	ArtifactS3Bucket  string `env:"ARTIFACT_S3_BUCKET" envDefault:""`
	ArtifactS3Prefix  string `env:"ARTIFACT_S3_PREFIX" envDefault:""`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL" envDefault:""`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID" envDefault:""`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" envDefault:""`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`

	RabbitMQURL string `env:"RABBITMQ_URL" envDefault:""`
}

func loadSchema(path string) *schema.Schema {
	if path == "" {
		obsSchema, err := schema.Default()
		if err != nil {
			log.Fatalf("Failed to load embedded observation schema: %v", err)
		}
		return obsSchema
	}

	obsSchema, err := schema.LoadFile(path)
	if err != nil {
		log.Fatalf("Failed to load observation schema from %s: %v", path, err)
	}
	return obsSchema
}

func loadOracle(ctx context.Context, cfg Config) core.Oracle {
	if cfg.ArtifactS3Bucket != "" {
		provider, err := storage.NewS3Provider(storage.S3ClientConfig{
			Endpoint:        cfg.S3EndpointURL,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			log.Fatalf("Failed to create S3 client: %v", err)
		}

		if err := cmd.FetchPipelineArtifacts(ctx, provider, cfg.ArtifactS3Bucket, cfg.ArtifactS3Prefix, cfg.ModelDir); err != nil {
			log.Fatalf("Failed to fetch pipeline artifacts: %v", err)
		}
	}

	loaders := core.NewOracleLoaders()
	loader, ok := loaders[core.OracleKind(cfg.PipelineKind)]
	if !ok {
		log.Fatalf("Invalid pipeline kind: %s. Must be 'linear'", cfg.PipelineKind)
	}

	oracle, err := loader(cfg.ModelDir)
	if err != nil {
		log.Fatalf("Failed to load prediction pipeline: %v", err)
	}
	return oracle
}

func createPublisher(rabbitMQURL string) messaging.Publisher {
	if rabbitMQURL == "" {
		slog.Info("no rabbitmq url configured, keeping events in memory")
		return messaging.NewInMemoryQueue()
	}

	publisher, err := messaging.NewRabbitMQPublisher(rabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	return publisher
}

func main() {
	log.Println("Starting prediction server...")

	cmd.LoadEnvFile()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.GetMigrator(db).Migrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	obsSchema := loadSchema(cfg.SchemaPath)
	oracle := loadOracle(context.Background(), cfg)

	publisher := createPublisher(cfg.RabbitMQURL)
	defer publisher.Close()

	r := chi.NewRouter()

	// Middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},                                       // Allow all origins (TODO: make this an env var)
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}, // Allow all HTTP methods
		AllowedHeaders:   []string{"*"},                                       // Allow all headers
		ExposedHeaders:   []string{"*"},                                       // Expose all headers
		AllowCredentials: true,                                                // Allow cookies/auth headers
		MaxAge:           300,                                                 // Cache preflight response for 5 minutes
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)                    // Log requests
	r.Use(middleware.Recoverer)                 // Recover from panics
	r.Use(middleware.Timeout(60 * time.Second)) // Set request timeout

	service := api.NewPredictionService(database.NewStore(db), obsSchema, oracle, publisher)
	service.AddRoutes(r)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	slog.Info("server stopped")
}

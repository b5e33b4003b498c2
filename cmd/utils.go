package cmd

import (
	"context"
	"flag"
	"fmt"
	"inspection-backend/internal/storage"
	"log"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// FetchPipelineArtifacts downloads every object under bucket/prefix into
// modelDir, preserving names relative to the prefix. The oracle loader reads
// the artifacts from modelDir afterwards.
func FetchPipelineArtifacts(ctx context.Context, provider storage.Provider, bucket, prefix, modelDir string) error {
	objects, err := provider.ListObjects(ctx, bucket, prefix)
	if err != nil {
		return fmt.Errorf("error listing pipeline artifacts: %w", err)
	}

	if len(objects) == 0 {
		return fmt.Errorf("no pipeline artifacts found under s3://%s/%s", bucket, prefix)
	}

	for _, object := range objects {
		name := strings.TrimPrefix(strings.TrimPrefix(object.Name, prefix), "/")
		if err := provider.DownloadObject(ctx, bucket, object.Name, filepath.Join(modelDir, name)); err != nil {
			return fmt.Errorf("error downloading pipeline artifact %s: %w", object.Name, err)
		}
		slog.Info("downloaded pipeline artifact", "bucket", bucket, "object", object.Name, "size", object.Size)
	}

	return nil
}

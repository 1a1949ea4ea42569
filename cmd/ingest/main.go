package main

import (
	"context"
	stdlog "log"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/lmarsden/marksearch/internal/ai"
	"github.com/lmarsden/marksearch/internal/config"
	"github.com/lmarsden/marksearch/internal/rag"
	"github.com/lmarsden/marksearch/internal/store"
	"github.com/lmarsden/marksearch/internal/vectordb"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("marksearch-ingest", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		stdlog.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)

	client, err := buildClient(&cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create AI client")
	}

	ctx := context.Background()

	db, err := vectordb.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to vector store")
	}
	defer db.Close()

	st, err := store.New(ctx, db, cfg.Collection, client.Dim())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open collection")
	}

	app, err := rag.New(ctx, st, client, cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build facade")
	}

	var files, chunks int
	walkErr := godirwalk.Walk(cfg.DocsRoot, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de != nil && de.IsDir() {
				return nil
			}
			if shouldSkip(path) || !isMarkdown(path) {
				return nil
			}
			n, _, err := app.IngestDocument(ctx, path, cfg.Subject, cfg.ChunkSize, cfg.ChunkOverlap)
			if err != nil {
				log.Error().Err(err).Str("path", path).Msg("ingest failed")
				return nil
			}
			if n == 0 {
				log.Warn().Str("path", path).Msg("document produced no chunks")
				return nil
			}
			files++
			chunks += n
			return nil
		},
	})
	if walkErr != nil {
		log.Fatal().Err(walkErr).Str("root", cfg.DocsRoot).Msg("walk failed")
	}

	log.Info().Int("files", files).Int("chunks", chunks).Int64("total", app.Count(ctx)).Msg("ingest complete")
}

func buildClient(cfg *config.Specification) (ai.Client, error) {
	clientConfig := &ai.ClientConfig{
		APIKey:     cfg.APIKey,
		EmbedModel: cfg.EmbedModel,
		ChatModel:  cfg.ChatModel,
		Dim:        cfg.Dim,
		ProjectID:  cfg.ProjectID,
		Location:   cfg.Location,
		BaseURL:    cfg.OllamaURL,
	}

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		clientConfig.Provider = ai.ProviderOpenAI
	case "vertexai":
		clientConfig.Provider = ai.ProviderVertexAI
	case "ollama":
		clientConfig.Provider = ai.ProviderOllama
	case "stub":
		clientConfig.Provider = ai.ProviderStub
		if clientConfig.Dim == 0 {
			clientConfig.Dim = store.DefaultDim
		}
	default:
		clientConfig.Provider = ai.Provider(cfg.Provider)
	}

	return ai.NewRegistry().Client(clientConfig)
}

func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// shouldSkip returns true if the file at path should be skipped.
func shouldSkip(path string) bool {
	p := strings.ToLower(path)
	return strings.Contains(p, "/vendor/") ||
		strings.Contains(p, "/.git/") ||
		strings.Contains(p, "/node_modules/") ||
		strings.Contains(p, "/.venv/") ||
		strings.Contains(p, "/venv/") ||
		strings.Contains(p, "/.cache/")
}

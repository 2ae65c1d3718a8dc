package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/avasilev/skillgate/internal/chunker"
	"github.com/avasilev/skillgate/internal/embed"
	"github.com/avasilev/skillgate/internal/generator"
	"github.com/avasilev/skillgate/internal/grader"
	"github.com/avasilev/skillgate/internal/handler"
	"github.com/avasilev/skillgate/internal/ingest"
	"github.com/avasilev/skillgate/internal/llm"
	"github.com/avasilev/skillgate/internal/retriever"
	"github.com/avasilev/skillgate/internal/store"
	"github.com/avasilev/skillgate/internal/vectorstore"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "skillgate",
		Short: "RAG-grounded candidate assessment service",
	}

	serve := serveCmd()
	root.AddCommand(serve, ingestCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `skillgate --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func commonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "skillgate.db", "SQLite database path")
	f.String("vector-db", "vectordb", "Vector database directory (empty = in-memory)")
	f.String("collection", "kb_chunks", "Vector collection name")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for the LLM endpoint")
	f.String("llm-model", "llama3.2", "Chat model for assessment generation")
	f.String("embed-model", "nomic-embed-text", "Embedding model for ingestion and retrieval")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP assessment server",
		RunE:  runServe,
	}
	commonFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.Int("chunk-size", chunker.DefaultChunkSize, "Chunk window size in tokens")
	f.Int("chunk-overlap", chunker.DefaultChunkOverlap, "Chunk overlap in tokens")
	f.Int("batch-size", ingest.DefaultBatchSize, "Ingestion batch size")
	f.Float32("min-similarity", retriever.DefaultMinSimilarity, "Minimum retrieval similarity")
	f.Int("max-chunks", retriever.DefaultMaxChunks, "Maximum retrieved chunks per query")
	f.Int("aptitude-questions", generator.DefaultAptitudeCount, "Aptitude questions per assessment")
	f.Int("technical-questions", generator.DefaultTechnicalCount, "Technical questions per assessment")
	f.Int("pass-score", grader.DefaultPassScore, "Minimum percentage score to pass")
	return cmd
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Index plain-text documents into the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runIngest,
	}
	commonFlags(cmd)
	f := cmd.Flags()
	f.String("source-id", "", "Source id for the ingested documents (default: file basename)")
	f.Int("chunk-size", chunker.DefaultChunkSize, "Chunk window size in tokens")
	f.Int("chunk-overlap", chunker.DefaultChunkOverlap, "Chunk overlap in tokens")
	f.Int("batch-size", ingest.DefaultBatchSize, "Ingestion batch size")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export assessment results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "skillgate.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.Int("pass-score", grader.DefaultPassScore, "Pass threshold used when the sessions were graded")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("SKILLGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("skillgate")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/skillgate")
	v.AddConfigPath("/etc/skillgate")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	vectors, err := vectorstore.NewChromem(v.GetString("vector-db"), v.GetString("collection"))
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}

	embedder := embed.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("embed-model"))
	llmClient := llm.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"))
	if err := llmClient.Ping(context.Background()); err != nil {
		return err
	}
	slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))

	ret := retriever.New(vectors, embedder, float32(v.GetFloat64("min-similarity")), v.GetInt("max-chunks"))
	gen := generator.New(llmClient, ret, v.GetInt("aptitude-questions"), v.GetInt("technical-questions"))
	ing := ingest.New(embedder, vectors, v.GetInt("batch-size"))
	chk := chunker.New(v.GetInt("chunk-size"), v.GetInt("chunk-overlap"))
	gr := grader.New(v.GetInt("pass-score"))

	h := handler.New(db, gen, ing, chk, gr)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"embed_model", v.GetString("embed-model"),
		"llm_url", v.GetString("llm-url"),
		"min_similarity", v.GetFloat64("min-similarity"),
		"max_chunks", v.GetInt("max-chunks"),
		"pass_score", v.GetInt("pass-score"),
	)
	return http.ListenAndServe(addr, r)
}

func runIngest(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	vectors, err := vectorstore.NewChromem(v.GetString("vector-db"), v.GetString("collection"))
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}

	embedder := embed.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("embed-model"))
	ing := ingest.New(embedder, vectors, v.GetInt("batch-size"))
	chk := chunker.New(v.GetInt("chunk-size"), v.GetInt("chunk-overlap"))

	ctx := context.Background()
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		filename := filepath.Base(path)
		sourceID := v.GetString("source-id")
		if sourceID == "" {
			sourceID = strings.TrimSuffix(filename, filepath.Ext(filename))
		}

		chunks := chk.Chunk(string(data), sourceID, filename)
		result := ing.Ingest(ctx, chunks)
		for _, ingestErr := range result.Errors {
			slog.Error("ingestion batch failed", "path", path, "error", ingestErr)
		}
		if !result.Success() {
			return fmt.Errorf("ingest %s: %d of %d chunks failed", path, len(chunks)-result.ChunksIngested, len(chunks))
		}
		slog.Info("ingested document", "path", path, "source_id", sourceID, "chunks", result.ChunksIngested)
	}

	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportAllSessions(v.GetInt("pass-score"))
	if err != nil {
		return fmt.Errorf("export sessions: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

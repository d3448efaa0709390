// Package cli implements the sercha-crawl command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-crawl/internal/config"
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driving"
)

// BuildOptions tells the Builder which dependencies a command needs
type BuildOptions struct {
	// CrawlOnly skips the embedder and vector store (dry-run ingestion)
	CrawlOnly bool
}

// Services are the wired application services a command runs against
type Services struct {
	Ingest     driving.IngestService
	Retrieval  driving.RetrievalService
	Collection driving.CollectionService

	// Serve runs the HTTP API until ctx is cancelled
	Serve func(ctx context.Context) error

	// Close releases connections; may be nil
	Close func() error
}

// Builder wires Services from the loaded configuration
type Builder func(ctx context.Context, cfg *config.Config, opts BuildOptions) (*Services, error)

// VersionInfo contains build information
type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

// app carries state shared by every command of one invocation
type app struct {
	build   Builder
	version VersionInfo

	configPath string
	collection string
	provider   string
	backend    string

	cfg *config.Config
}

// NewRootCmd creates the root command with every subcommand attached
func NewRootCmd(build Builder, version VersionInfo) *cobra.Command {
	a := &app{build: build, version: version}

	cmd := &cobra.Command{
		Use:   "sercha-crawl",
		Short: "Crawl a site into a vector index and validate retrieval",
		Long: `sercha-crawl walks a website breadth-first, splits each page into
word-bounded chunks, embeds them and stores them in a vector index.
Retrieval can then be checked end to end with the validate command.

Examples:
  sercha-crawl ingest https://go.dev/doc/ --max-pages 50
  sercha-crawl validate "how do goroutines work" --k 5
  sercha-crawl serve`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", config.DefaultPath, "path to the YAML config file")
	flags.StringVar(&a.collection, "collection", "", "vector collection name (overrides config)")
	flags.StringVar(&a.provider, "provider", "", "embedding provider: cohere or openai (overrides config)")
	flags.StringVar(&a.backend, "backend", "", "vector backend: qdrant or pgvector (overrides config)")

	cmd.AddCommand(
		newIngestCmd(a),
		newValidateCmd(a),
		newSearchCmd(a),
		newInfoCmd(a),
		newDeleteCmd(a),
		newServeCmd(a),
		newVersionCmd(a),
	)
	return cmd
}

// loadConfig applies flags over the file and environment configuration
func (a *app) loadConfig() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.collection != "" {
		cfg.VectorStore.Collection = a.collection
	}
	if a.provider != "" {
		cfg.Embedding.Provider = a.provider
	}
	if a.backend != "" {
		cfg.VectorStore.Backend = a.backend
	}
	a.cfg = cfg
	return nil
}

// services validates the configuration and builds the services. The
// returned release func must be called when the command finishes.
func (a *app) services(ctx context.Context, opts BuildOptions) (*Services, func(), error) {
	if a.build == nil {
		return nil, nil, errors.New("services not configured")
	}
	if !opts.CrawlOnly {
		if err := a.cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	svc, err := a.build(ctx, a.cfg, opts)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if svc.Close != nil {
			_ = svc.Close()
		}
	}
	return svc, release, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// truncate shortens a string to maxLen runes, adding "..." if truncated
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

func validatePositiveInt(n int, name string) error {
	if n <= 0 {
		return fmt.Errorf("%s must be positive, got %d", name, n)
	}
	return nil
}

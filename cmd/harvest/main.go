// Command harvest drives the indexing pipeline and search API described
// by the core: `harvest index` runs one producer→SPIMI→merge pass over
// pending pages, `harvest serve` exposes POST /api/search.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wizenheimer/harvest/internal/analyzer"
	"github.com/wizenheimer/harvest/internal/api"
	"github.com/wizenheimer/harvest/internal/checkpoint"
	"github.com/wizenheimer/harvest/internal/config"
	"github.com/wizenheimer/harvest/internal/logging"
	"github.com/wizenheimer/harvest/internal/merge"
	"github.com/wizenheimer/harvest/internal/page"
	"github.com/wizenheimer/harvest/internal/producer"
	"github.com/wizenheimer/harvest/internal/query"
	"github.com/wizenheimer/harvest/internal/spimi"
	"github.com/wizenheimer/harvest/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "harvest",
		Short: "Positional inverted-index pipeline for the harvest search engine",
	}
	root.AddCommand(newIndexCmd())
	root.AddCommand(newServeCmd())
	return root
}

func newIndexCmd() *cobra.Command {
	var pageFetchLimit int
	var budgetBytes int64

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Run one producer -> SPIMI -> merge indexing pass over pending pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New(true, zerolog.InfoLevel)
			ctx := cmd.Context()

			cfg := config.Load()
			ms, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
			if err != nil {
				return fmt.Errorf("connect to store: %w", err)
			}
			defer ms.Close(ctx)

			pages := page.NewRepository(ms)
			if err := pages.EnsureIndexes(ctx); err != nil {
				return fmt.Errorf("ensure page indexes: %w", err)
			}
			if err := merge.EnsureIndexes(ctx, ms); err != nil {
				return fmt.Errorf("ensure inverted index indexes: %w", err)
			}

			prod := producer.New(pages, analyzer.Default(), pageFetchLimit, log)
			builder := spimi.NewBuilder(ms, budgetBytes, log)

			ch := make(chan spimi.TokenMsg, 4096)
			errCh := make(chan error, 1)
			go func() { errCh <- prod.Run(ctx, ch) }()

			if err := builder.Consume(ctx, ch); err != nil {
				return fmt.Errorf("spimi builder: %w", err)
			}
			if err := <-errCh; err != nil {
				return fmt.Errorf("token producer: %w", err)
			}

			checkpoints := checkpoint.New(ms)
			merger := merge.New(ms, log, checkpoints)
			if err := merger.Run(ctx); err != nil {
				return fmt.Errorf("merge: %w", err)
			}

			log.Info().Msg("index run complete")
			return nil
		},
	}
	cmd.Flags().IntVar(&pageFetchLimit, "page_fetch_limit", 10_000, "page batch size for the token stream producer")
	cmd.Flags().Int64Var(&budgetBytes, "budget_bytes", 100*1024*1024, "SPIMI in-memory byte budget before a block flush")
	return cmd
}

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose POST /api/search over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New(true, zerolog.InfoLevel)
			ctx := context.Background()

			cfg := config.Load()
			ms, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
			if err != nil {
				return fmt.Errorf("connect to store: %w", err)
			}
			defer ms.Close(ctx)

			a := analyzer.Default()
			engine := query.New(ms, a, log)
			pages := page.NewRepository(ms)
			srv := api.NewServer(engine, pages, log)

			log.Info().Str("addr", addr).Msg("serving search API")
			return srv.Router().Run(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

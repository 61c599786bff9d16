// Command envsync copies document collections between store environments.
//
// Usage:
//
//	envsync sync --from prod --to local --mode incremental
//	envsync sync --from local --to staging --collections teams --dry-run
//	envsync replace --from prod --to local --collection matches
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fortuna/volleysync/internal/config"
	"github.com/fortuna/volleysync/internal/logger"
	"github.com/fortuna/volleysync/internal/migrate"
	"github.com/fortuna/volleysync/internal/store"
)

const appName = "envsync"

var (
	configPath string
	from, to   string
)

func main() {
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:           appName,
		Short:         "Copy collections between store environments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config file (default $VOLLEYSYNC_CONFIG)")
	root.PersistentFlags().StringVar(&from, "from", "", "Source environment")
	root.PersistentFlags().StringVar(&to, "to", "", "Target environment")
	root.MarkPersistentFlagRequired("from")
	root.MarkPersistentFlagRequired("to")

	root.AddCommand(syncCmd())
	root.AddCommand(replaceCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type session struct {
	cfg *config.Config
	log *logger.Logger
	src *config.Store
	dst *config.Store
}

func openSession(ctx context.Context) (*session, func(), error) {
	if from == to {
		return nil, nil, fmt.Errorf("--from and --to must differ")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	zapSink, err := logger.NewZapSink(cfg.LogFile)
	if err != nil {
		return nil, nil, err
	}
	s := &session{cfg: cfg, log: logger.New(logger.ParseLevel(cfg.LogLevel), zapSink)}

	open := func(name string) (*config.Store, error) {
		env, err := cfg.Env(name)
		if err != nil {
			return nil, err
		}
		return env.Open(ctx)
	}
	if s.src, err = open(from); err != nil {
		return nil, nil, err
	}
	if s.dst, err = open(to); err != nil {
		s.src.Close()
		return nil, nil, err
	}

	cleanup := func() {
		s.dst.Close()
		s.src.Close()
		zapSink.Sync()
	}
	return s, cleanup, nil
}

func (s *session) syncer(dryRun bool, batchSize int) *migrate.Syncer {
	return migrate.NewSyncer(s.src, s.dst,
		migrate.WithBatchSize(batchSize),
		migrate.WithDryRun(dryRun),
		migrate.WithReporter(&consoleReporter{log: s.log, dryRun: dryRun}),
		migrate.WithLogger(s.log),
	)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func syncCmd() *cobra.Command {
	var (
		collections []string
		mode        string
		dryRun      bool
		batchSize   int
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy collections into the target environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := migrate.ParseMode(mode)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			s, cleanup, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if len(collections) == 0 {
				c := s.cfg.Collections
				collections = []string{c.Teams, c.Matches}
			}
			stats, err := s.syncer(dryRun, batchSize).Sync(ctx, collections, m)
			printStats(stats)
			return err
		},
	}
	cmd.Flags().StringSliceVar(&collections, "collections", nil, "Collections to copy (default teams and matches)")
	cmd.Flags().StringVar(&mode, "mode", string(migrate.ModeIncremental), "incremental or overwrite")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute what would be written without writing")
	cmd.Flags().IntVar(&batchSize, "batch-size", store.MaxBatchSize, "Documents per committed batch")
	return cmd
}

func replaceCmd() *cobra.Command {
	var (
		collection string
		yes        bool
		dryRun     bool
	)
	cmd := &cobra.Command{
		Use:   "replace",
		Short: "Delete a target collection and copy the source one in its place",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			s, cleanup, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			var confirm migrate.Confirmer = migrate.PromptConfirmer{In: os.Stdin, Out: os.Stderr}
			if yes {
				confirm = migrate.AutoConfirm{}
			}
			stats, err := s.syncer(dryRun, store.MaxBatchSize).Replace(ctx, collection, confirm)
			if err != nil {
				return err
			}
			printStats([]migrate.CollectionStats{stats})
			return nil
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "Collection to replace")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute what would be written without writing")
	cmd.MarkFlagRequired("collection")
	return cmd
}

func printStats(stats []migrate.CollectionStats) {
	if len(stats) == 0 {
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(stats)
}

type consoleReporter struct {
	log    *logger.Logger
	dryRun bool
}

func (c *consoleReporter) OnCollectionStart(collection string, mode migrate.Mode, total int) {
	c.log.Info("Starting collection", logger.Fields{"collection": collection, "mode": mode, "documents": total, "dry_run": c.dryRun})
}

func (c *consoleReporter) OnBatchCommitted(collection string, batch int, written int) {
	c.log.Info("Batch committed", logger.Fields{"collection": collection, "batch": batch, "documents": written})
}

func (c *consoleReporter) OnCollectionComplete(stats migrate.CollectionStats) {
	c.log.Info("Collection complete", logger.Fields{
		"collection": stats.Collection,
		"written":    stats.Written,
		"skipped":    stats.Skipped,
		"deleted":    stats.Deleted,
		"batches":    stats.Batches,
	})
}

func (c *consoleReporter) OnError(collection string, err error) {
	c.log.Error("Collection failed", logger.Fields{"collection": collection}, err)
}

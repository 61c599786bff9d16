// Command volleysync scrapes league pages and keeps the team and match
// collections in step with them.
//
// Usage:
//
//	volleysync serve
//	volleysync run N2F-A --force
//	volleysync state N2F-A
//	volleysync seed N2F-A
//	volleysync teams n2f-a
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fortuna/volleysync/internal/api/rest"
	"github.com/fortuna/volleysync/internal/api/websocket"
	"github.com/fortuna/volleysync/internal/changegate"
	"github.com/fortuna/volleysync/internal/logger"
	"github.com/fortuna/volleysync/internal/scheduler"
	"github.com/fortuna/volleysync/internal/store"
)

const (
	serviceName    = "volleysync"
	serviceVersion = "1.0.0"
)

var configPath string

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Volleyball results sync engine",
		Version:       serviceVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config file (default $VOLLEYSYNC_CONFIG)")

	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())
	root.AddCommand(stateCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(teamsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// withApp wires the process, runs fn and releases everything afterwards.
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --------------------------------------------------------------------------
// serve command
// --------------------------------------------------------------------------

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler with the status API and WebSocket feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(serve)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	a.log.Info("Starting service", logger.Fields{"service": serviceName, "version": serviceVersion, "sources": len(a.sources)})

	go a.hub.Run(ctx)

	sc := a.cfg.Scheduler
	orch := scheduler.NewOrchestrator(a.runner, a.gate, a.sources, &scheduler.Config{
		Tick:       sc.Tick,
		RunOnStart: sc.RunOnStart,
		MaxRetries: sc.MaxRetries,
		RetryDelay: sc.RetryDelay,
	}, a.log)
	go orch.Start(ctx)

	opts := rest.Options{CORSOrigins: a.cfg.CORSOrigins, Log: a.log}
	if a.metrics != nil {
		opts.Metrics = a.metrics.Handler()
	}
	restServer := rest.NewServer(a.cfg.APIAddr, rest.NewHandler(orch, a.league, a.health...), opts)
	errs := make(chan error, 2)
	go func() {
		a.log.Info("REST API server listening", logger.Fields{"addr": a.cfg.APIAddr})
		if err := restServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("rest server: %w", err)
		}
	}()

	var wsServer *websocket.Server
	if a.cfg.WSAddr != "" {
		wsServer = websocket.NewServer(a.cfg.WSAddr, a.hub, a.cfg.CORSOrigins, a.log)
		go func() {
			if err := wsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- fmt.Errorf("websocket server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("Shutting down gracefully", nil)
	case runErr = <-errs:
		a.log.Error("Server failed", nil, runErr)
	}

	orch.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := restServer.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("REST API server shutdown error", logger.Fields{"error": err.Error()})
	}
	if wsServer != nil {
		if err := wsServer.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("WebSocket server shutdown error", logger.Fields{"error": err.Error()})
		}
	}

	a.log.Info("Service stopped", nil)
	return runErr
}

// --------------------------------------------------------------------------
// one-shot commands
// --------------------------------------------------------------------------

func runCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "run <source>",
		Short: "Run one source once and print the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				src, err := a.source(args[0])
				if err != nil {
					return err
				}
				report, runErr := a.runner.Run(ctx, src, force)
				if report != nil {
					if err := printJSON(report); err != nil {
						return err
					}
				}
				return runErr
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Process every section even when unchanged")
	return cmd
}

type sectionState struct {
	Key string `json:"key"`
	store.ScrapeState
	Stale     bool   `json:"stale"`
	NextDelay string `json:"nextDelay"`
}

func stateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state <source>",
		Short: "Print the change-detection state of a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				src, err := a.source(args[0])
				if err != nil {
					return err
				}
				var out []sectionState
				for _, section := range src.Sections() {
					key := changegate.SectionKey(src.ID, section)
					st, err := a.gate.State(ctx, key)
					if err != nil {
						return err
					}
					out = append(out, sectionState{
						Key:         key,
						ScrapeState: st,
						Stale:       changegate.Stale(st),
						NextDelay:   changegate.NextDelay(st.ConsecutiveNoChange).String(),
					})
				}
				return printJSON(out)
			})
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <source>",
		Short: "Create the teams and matches of a source that are not stored yet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				src, err := a.source(args[0])
				if err != nil {
					return err
				}
				start := time.Now()
				result, err := a.runner.Seed(ctx, src)
				if err != nil {
					return err
				}
				a.log.Info("Seed finished", logger.Fields{
					"source":          src.ID,
					"duration":        time.Since(start).Round(time.Millisecond).String(),
					"teams_created":   result.Teams.Created,
					"matches_created": result.Matches.Created,
				})
				return printJSON(result)
			})
		},
	}
}

func teamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "teams <group>",
		Short: "List the stored standings of a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				teams, err := a.league.Standings(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(teams)
			})
		},
	}
}

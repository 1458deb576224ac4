// trainerd is the endgame trainer daemon: it serves the evaluation API and
// session websockets for the board UI, and offers a one-shot probe command
// for poking the oracle from the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hailam/endgamelab/internal/chess"
	"github.com/hailam/endgamelab/internal/config"
	"github.com/hailam/endgamelab/internal/server"
	"github.com/hailam/endgamelab/internal/storage"
	"github.com/hailam/endgamelab/internal/tablebase"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		PadLevelText:     true,
	})
	logrus.SetLevel(logrus.InfoLevel)

	if err := rootCommand().Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func rootCommand() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "trainerd",
		Short: "Chess endgame trainer backed by a perfect-play tablebase oracle",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(serveCommand(), probeCommand())
	return root
}

func newService(cfg config.Config, store tablebase.EvaluationStore) *tablebase.Service {
	client := tablebase.NewClient(tablebase.ClientConfig{
		BaseURL:        cfg.OracleBaseURL,
		Timeout:        cfg.OracleTimeout,
		MaxRetries:     cfg.MaxRetries,
		BackoffBase:    cfg.BackoffBase,
		BackoffCeiling: cfg.BackoffCeiling,
	})
	return tablebase.NewService(tablebase.ServiceConfig{
		Fetcher:       client,
		CacheCapacity: cfg.CacheCapacity,
		CacheTTL:      cfg.CacheTTL,
		TopMoveLimit:  cfg.TopMoveLimit,
		Store:         store,
	})
}

func openStore(cfg config.Config) (*storage.Store, error) {
	if !cfg.StoreEnabled {
		return nil, nil
	}
	dir := cfg.StoreDir
	if dir == "" {
		var err error
		dir, err = storage.DatabaseDir()
		if err != nil {
			return nil, err
		}
	}
	return storage.Open(dir, cfg.StoreTTL)
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the trainer API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()

			store, err := openStore(cfg)
			if err != nil {
				return fmt.Errorf("opening evaluation store: %w", err)
			}

			// tablebase.EvaluationStore is satisfied by *storage.Store, but a
			// nil *storage.Store must stay a nil interface.
			var tier tablebase.EvaluationStore
			if store != nil {
				tier = store
				defer store.Close()
			}

			svc := newService(cfg, tier)
			srv := server.New(svc, chess.BasicRules{}, logrus.NewEntry(logrus.StandardLogger()))

			httpServer := &http.Server{
				Addr:    cfg.ListenAddr,
				Handler: srv.Router(),
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logrus.WithField("addr", cfg.ListenAddr).Info("listening")
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logrus.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		},
	}
}

func probeCommand() *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "probe FEN",
		Short: "Look up a single position and print the verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := chess.ParseFEN(args[0])
			if err != nil {
				return err
			}

			cfg := config.FromEnv()
			svc := newService(cfg, nil)

			record, err := svc.GetEvaluation(cmd.Context(), pos)
			if err != nil {
				return err
			}

			fmt.Printf("%s to move: %s\n", sideName(pos.SideToMove), record.Outcome)
			if record.DTZ != nil {
				fmt.Printf("  dtz: %d\n", *record.DTZ)
			}
			if record.DTM != nil {
				fmt.Printf("  dtm: %d\n", *record.DTM)
			}

			best := tablebase.BestMoves(record.Moves, top)
			for i, move := range best {
				fmt.Printf("  %d. %s (%s", i+1, move.UCI, move.Outcome)
				if move.DTZ != nil {
					fmt.Printf(", dtz %d", *move.DTZ)
				}
				if move.DTM != nil {
					fmt.Printf(", dtm %d", *move.DTM)
				}
				fmt.Println(")")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 3, "number of best moves to print")
	return cmd
}

func sideName(side string) string {
	if side == "b" {
		return "black"
	}
	return "white"
}

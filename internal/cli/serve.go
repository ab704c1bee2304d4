package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lazypower/nudge/internal/config"
	"github.com/lazypower/nudge/internal/engine"
	"github.com/lazypower/nudge/internal/llm"
	"github.com/lazypower/nudge/internal/server"
	"github.com/lazypower/nudge/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

// openEngine opens the database and builds the engine with the configured
// completion client. A client that cannot be built leaves the engine on
// heuristics only.
func openEngine(cfg config.Config, log *zap.Logger) (*engine.Engine, *store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	creds := store.NewCredentials(db)
	var completer llm.Completer
	if cfg.LLM.Enabled {
		c, err := llm.NewClient(cfg.LLM, creds)
		if err != nil {
			log.Warn("completion client not configured, heuristics only", zap.Error(err))
		} else {
			completer = c
			log.Debug("completion client ready",
				zap.String("provider", cfg.LLM.Provider),
				zap.String("model", cfg.LLM.Model))
		}
	}

	eng := engine.New(db, completer,
		engine.WithLogger(log),
		engine.WithCredentials(creds))
	return eng, db, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	eng, db, err := openEngine(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	addr := cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.New(eng, db, VersionString(), log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("nudge serving",
			zap.String("addr", addr),
			zap.String("db", db.Path),
			zap.String("version", VersionString()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(sctx)
	})
	return g.Wait()
}

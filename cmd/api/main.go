package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kaiwenz/ai-chatbot/backend/internal/config"
	"github.com/kaiwenz/ai-chatbot/backend/internal/coordinator"
	"github.com/kaiwenz/ai-chatbot/backend/internal/generator"
	"github.com/kaiwenz/ai-chatbot/backend/internal/handler"
	"github.com/kaiwenz/ai-chatbot/backend/internal/history"
	"github.com/kaiwenz/ai-chatbot/backend/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// The generator is initialized exactly once, up front, so the first
	// request never pays the model setup cost.
	chatModel, err := cfg.Generator.NewChatModel(ctx)
	if err != nil {
		log.Fatalf("failed to initialize chat model: %v", err)
	}
	gen := generator.NewArk(chatModel, cfg.Generator.Model)
	log.Printf("chat model %s initialized", cfg.Generator.Model)

	store, err := history.OpenSQLite(cfg.History.Path)
	if err != nil {
		log.Fatalf("failed to open history store at %s: %v", cfg.History.Path, err)
	}
	defer store.Close()

	writer := history.NewWriter(store)
	writerCtx, stopWriter := context.WithCancel(context.Background())
	go writer.Run(writerCtx)

	sessions := session.NewStore(cfg.Session.ContextBudget, cfg.Session.MaxSessions)
	cleaner := session.NewCleaner(sessions, cfg.Session.IdleTTL, cfg.Session.CleanupInterval)
	go cleaner.Run(ctx)

	coord := coordinator.New(sessions, gen, writer, cfg.Session.GenerationTimeout)

	router := handler.NewRouter(coord, sessions, store, gen, cfg.Session.ContextBudget)

	startServer(ctx, cfg.Server, router)

	// Flush pending history writes before exiting.
	stopWriter()
	writer.Wait()
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("AI chatbot backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

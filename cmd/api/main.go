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

	"github.com/fetti/rideagent/internal/config"
	"github.com/fetti/rideagent/internal/handler"
	agenthandler "github.com/fetti/rideagent/internal/handler/agent"
	"github.com/fetti/rideagent/internal/model/query"
	"github.com/fetti/rideagent/internal/relay"
	agentservice "github.com/fetti/rideagent/internal/service/agent"
	"github.com/fetti/rideagent/internal/store"
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

	// Initialize the trip store and the SQL agent. A failure here keeps the
	// streaming and health endpoints up for diagnostics; queries return 503.
	var invoker relay.Invoker
	agentReady := false

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Printf("warning: failed to open trip database: %v", err)
		log.Println("continuing without query capability - check DB_PATH and run the ingest command")
	} else {
		defer st.Close()
		agentSvc, err := agentservice.NewService(ctx, st, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize SQL agent: %v", err)
			log.Println("continuing without query capability - check Ark model environment variables")
		} else {
			log.Println("SQL agent initialized successfully")
			invoker = agentSvc
			agentReady = true
		}
	}
	if invoker == nil {
		invoker = relay.InvokerFunc(func(context.Context, []query.Message) (string, error) {
			return "", errors.New("agent unavailable")
		})
	}

	sessions := relay.NewSessionStore(cfg.Relay.HistoryLimit)
	registry := relay.NewRegistry(cfg.Relay.ChannelBuffer)
	dispatcher := relay.NewDispatcher(invoker, sessions, registry, relay.Options{
		AgentTimeout:  cfg.Relay.AgentTimeout,
		HistoryWindow: cfg.Relay.HistoryWindow,
		Workers:       cfg.Relay.Workers,
	})

	agentHandler := agenthandler.New(dispatcher, registry, cfg.Relay.HeartbeatInterval,
		func() bool { return agentReady })
	router := handler.NewRouter(agentHandler)

	startServer(ctx, cfg.Server, router)

	// Let in-flight dispatches publish their terminal outcome before exit.
	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := dispatcher.Shutdown(drainCtx); err != nil {
		log.Printf("warning: dispatcher drain incomplete: %v", err)
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Ride agent backend listening on %s", addr)
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

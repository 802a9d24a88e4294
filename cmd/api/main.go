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

    "go.uber.org/zap"

    "itinerary/internal/api"
    "itinerary/internal/config"
    "itinerary/internal/logging"
)

func main() {
    if err := run(); err != nil {
        fmt.Fprintf(os.Stderr, "itinerary api: %v\n", err)
        os.Exit(1)
    }
}

func run() error {
    cfg, err := config.Load()
    if err != nil {
        return fmt.Errorf("load config: %w", err)
    }
    log, err := logging.New(cfg.Env, cfg.LogLevel)
    if err != nil {
        return fmt.Errorf("init logger: %w", err)
    }
    defer func() { _ = log.Sync() }()

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    srvDeps, err := api.NewServer(ctx, cfg, log)
    if err != nil {
        return fmt.Errorf("init server: %w", err)
    }
    defer func() { _ = srvDeps.Close() }()

    srv := &http.Server{
        Addr:              cfg.Addr(),
        Handler:           srvDeps.Routes(),
        ReadHeaderTimeout: 5 * time.Second,
    }

    // Start session janitor
    janitor := srvDeps.NewJanitor()
    janitor.Start()
    defer close(janitor.Stop)

    errc := make(chan error, 1)
    go func() {
        log.Info("API listening", zap.String("addr", cfg.Addr()), zap.String("env", cfg.Env))
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            errc <- err
        }
        close(errc)
    }()

    select {
    case err := <-errc:
        if err != nil {
            return fmt.Errorf("server error: %w", err)
        }
        return nil
    case <-ctx.Done():
    }

    log.Info("shutting down")
    sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    return srv.Shutdown(sctx)
}

package main

import (
    "context"
    "errors"
    "log/slog"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/jaminalder/tictactoe-engine/internal/app"
    "github.com/jaminalder/tictactoe-engine/internal/config"
    "github.com/jaminalder/tictactoe-engine/internal/store"
    "github.com/jaminalder/tictactoe-engine/internal/web"
)

const shutdownTimeout = 5 * time.Second

func main() {
    os.Exit(run(os.Args[0], os.Args[1:], os.Getenv))
}

// run serves until a signal or a server error and returns the exit code.
func run(name string, args []string, getenv func(string) string) int {
    cfg, err := config.Load(name, args, getenv)
    if err != nil {
        slog.Error("invalid configuration", "err", err)
        return 2
    }
    logger := config.NewLogger(os.Stdout, cfg.LogLevel)
    slog.SetDefault(logger)

    var recorder store.Recorder = store.NewMemoryStore()
    if cfg.RedisURL != "" {
        ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        client, err := store.Connect(ctx, cfg.RedisURL)
        cancel()
        if err != nil {
            logger.Error("redis unavailable", "err", err)
            return 1
        }
        defer client.Close()
        recorder = store.NewRedisStore(client, "")
        logger.Info("recording results in redis")
    }

    svc := app.NewServiceWithConfig(app.Config{
        DefaultMode:       cfg.DefaultMode,
        DefaultDifficulty: cfg.DefaultDifficulty,
        ComputerDelay:     cfg.ComputerDelay,
        Policy:            cfg.Policy(),
        Recorder:          recorder,
        Logger:            logger,
    })
    defer svc.Close()

    server := &http.Server{
        Addr:              cfg.Addr,
        Handler:           web.NewServer(svc, logger),
        ReadHeaderTimeout: 10 * time.Second,
    }
    serverErrCh := make(chan error, 1)
    go func() {
        if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            serverErrCh <- err
        }
        close(serverErrCh)
    }()

    sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stopSignals()

    logger.Info("listening", "addr", cfg.Addr,
        "mode", cfg.DefaultMode, "difficulty", cfg.DefaultDifficulty, "computer_delay", cfg.ComputerDelay)
    var runErr error
    select {
    case <-sigCtx.Done():
        logger.Info("shutdown signal received")
    case err, ok := <-serverErrCh:
        if ok {
            runErr = err
            logger.Error("server error", "err", err)
        }
    }

    shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
    defer cancelShutdown()
    if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
        logger.Error("graceful shutdown failed", "err", err)
        _ = server.Close()
    }
    if runErr != nil {
        return 1
    }
    return 0
}

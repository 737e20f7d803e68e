package config

import (
    "flag"
    "fmt"
    "io"
    "log/slog"
    "math/rand/v2"
    "strconv"
    "strings"
    "time"

    "github.com/jaminalder/tictactoe-engine/internal/ai"
    "github.com/jaminalder/tictactoe-engine/internal/app"
)

// Config holds values loaded from flags, with environment variables as fallbacks.
type Config struct {
    Addr              string
    LogLevel          slog.Level
    ComputerDelay     time.Duration
    DefaultDifficulty ai.Difficulty
    DefaultMode       app.Mode
    MediumOptimalRate float64
    Seed              uint64
    RedisURL          string
}

// Environment variables consulted when the matching flag is not given.
const (
    EnvAddr       = "TICTACTOE_ADDR"
    EnvLogLevel   = "LOG_LEVEL"
    EnvDelay      = "TICTACTOE_COMPUTER_DELAY"
    EnvDifficulty = "TICTACTOE_DIFFICULTY"
    EnvMode       = "TICTACTOE_MODE"
    EnvMediumRate = "TICTACTOE_MEDIUM_RATE"
    EnvSeed       = "TICTACTOE_SEED"
    EnvRedisURL   = "TICTACTOE_REDIS_URL"
)

func envOr(getenv func(string) string, key, def string) string {
    if v := getenv(key); v != "" {
        return v
    }
    return def
}

// Load parses args (without the program name). getenv is usually os.Getenv.
func Load(name string, args []string, getenv func(string) string) (Config, error) {
    fs := flag.NewFlagSet(name, flag.ContinueOnError)
    fs.SetOutput(io.Discard)
    addr := fs.String("addr", envOr(getenv, EnvAddr, ":8080"), "listen address")
    levelStr := fs.String("log-level", envOr(getenv, EnvLogLevel, "info"), "debug|info|warn|error")
    delayStr := fs.String("computer-delay", envOr(getenv, EnvDelay, app.DefaultComputerDelay.String()), "computer think time")
    diffStr := fs.String("difficulty", envOr(getenv, EnvDifficulty, ai.Medium.String()), "default difficulty: easy|medium|hard")
    modeStr := fs.String("mode", envOr(getenv, EnvMode, app.PlayerVsComputer.String()), "default mode: player-vs-computer|player-vs-player")
    rateStr := fs.String("medium-rate", envOr(getenv, EnvMediumRate, strconv.FormatFloat(ai.DefaultMediumOptimalRate, 'f', -1, 64)), "probability that medium plays the optimal move")
    seedStr := fs.String("seed", envOr(getenv, EnvSeed, "0"), "random seed, 0 seeds from the clock")
    redisURL := fs.String("redis-url", getenv(EnvRedisURL), "redis url for game statistics; empty keeps them in memory")
    if err := fs.Parse(args); err != nil {
        return Config{}, err
    }

    cfg := Config{Addr: *addr, RedisURL: *redisURL}
    var err error
    if cfg.LogLevel, err = ParseLevel(*levelStr); err != nil {
        return Config{}, err
    }
    if cfg.ComputerDelay, err = time.ParseDuration(*delayStr); err != nil {
        return Config{}, fmt.Errorf("invalid computer delay %q: %w", *delayStr, err)
    }
    if cfg.ComputerDelay < 0 {
        return Config{}, fmt.Errorf("invalid computer delay %q: negative", *delayStr)
    }
    if cfg.DefaultDifficulty, err = ai.ParseDifficulty(*diffStr); err != nil {
        return Config{}, err
    }
    if cfg.DefaultMode, err = app.ParseMode(*modeStr); err != nil {
        return Config{}, err
    }
    if cfg.MediumOptimalRate, err = strconv.ParseFloat(*rateStr, 64); err != nil {
        return Config{}, fmt.Errorf("invalid medium rate %q: %w", *rateStr, err)
    }
    if cfg.MediumOptimalRate < 0 || cfg.MediumOptimalRate > 1 {
        return Config{}, fmt.Errorf("invalid medium rate %q: must be in [0,1]", *rateStr)
    }
    if cfg.Seed, err = strconv.ParseUint(*seedStr, 10, 64); err != nil {
        return Config{}, fmt.Errorf("invalid seed %q: %w", *seedStr, err)
    }
    return cfg, nil
}

// ParseLevel maps debug|info|warn|error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
    switch strings.ToUpper(strings.TrimSpace(s)) {
    case "DEBUG":
        return slog.LevelDebug, nil
    case "INFO":
        return slog.LevelInfo, nil
    case "WARN":
        return slog.LevelWarn, nil
    case "ERROR":
        return slog.LevelError, nil
    }
    return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
}

// NewLogger returns a text logger writing to w at level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
    return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Policy builds the move policy. A zero Seed leaves seeding to the clock.
func (c Config) Policy() *ai.Policy {
    var rng ai.Rand
    if c.Seed != 0 {
        rng = rand.New(rand.NewPCG(c.Seed, 0))
    }
    return ai.NewPolicy(rng, ai.WithMediumOptimalRate(c.MediumOptimalRate))
}

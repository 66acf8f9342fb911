package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/vietddude/stylelog"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/vkclient"
	"github.com/vietddude/vkclient/api"
	"github.com/vietddude/vkclient/storage"
)

// fileConfig is the CLI's YAML configuration.
type fileConfig struct {
	Client   vkclient.Config         `yaml:"client"`
	Redis    *storage.RedisConfig    `yaml:"redis"`
	Postgres *storage.PostgresConfig `yaml:"postgres"`
	Logging  struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// paramFlags collects repeated -param key=value flags in order.
type paramFlags []string

func (p *paramFlags) String() string { return strings.Join(*p, ",") }

func (p *paramFlags) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("expected key=value, got %q", v)
	}
	*p = append(*p, v)
	return nil
}

func main() {
	var params paramFlags
	configPath := flag.String("config", "", "Path to configuration file")
	method := flag.String("method", "", "API method to call, e.g. users.get")
	retries := flag.Int("retries", 3, "Retry budget for the call")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	flag.Var(&params, "param", "Request parameter as key=value (repeatable)")
	flag.Parse()

	// .env supplies the token and store DSNs in development
	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if *isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}
	stylelog.InitDefault(
		&tint.Options{
			Level:      slogLevel,
			TimeFormat: time.RFC3339,
		})

	if *method == "" {
		slog.Error("No method given, use -method")
		os.Exit(1)
	}
	if cfg.Client.AccessToken == "" {
		cfg.Client.AccessToken = os.Getenv("VK_ACCESS_TOKEN")
	}

	store, cleanup, err := buildStorage(cfg)
	if err != nil {
		slog.Error("Failed to initialize token storage", "error", err)
		os.Exit(1)
	}
	defer cleanup()
	cfg.Client.Storage = store

	manager := vkclient.NewManager(cfg.Client)

	builder := api.NewCall(*method).Retries(*retries)
	for _, p := range params {
		key, value, _ := strings.Cut(p, "=")
		builder.Str(key, value)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	raw, err := manager.ExecuteRaw(ctx, builder.Build())
	if err != nil {
		slog.Error("Call failed", "method", *method, "error", err)
		os.Exit(1)
	}

	fmt.Println(string(raw))
}

func loadConfig(path string) (*fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// buildStorage picks the configured backing store for rate-limit state.
func buildStorage(cfg *fileConfig) (storage.TokenStorage, func(), error) {
	switch {
	case cfg.Redis != nil:
		s, err := storage.NewRedisStorage(*cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case cfg.Postgres != nil:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s, err := storage.NewPostgresStorage(ctx, *cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return storage.NewMemoryStorage(), func() {}, nil
	}
}

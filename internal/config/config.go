package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every setting the service needs.
type Config struct {
	Server    ServerConfig
	Generator GeneratorConfig
	Session   SessionConfig
	History   HistoryConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Generator: loadGeneratorConfig(),
		Session:   session,
		History:   loadHistoryConfig(),
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8000"
	}

	if strings.Contains(port, ":") {
		// Allow passing ":8000" or "127.0.0.1:8000" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// GeneratorConfig holds the Ark model credentials and identifier.
type GeneratorConfig struct {
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string
}

// Enabled reports whether the required credentials are present.
func (c GeneratorConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds the Ark chat model from this configuration.
func (c GeneratorConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("generator credentials missing: provide ARK_API_KEY + ARK_MODEL or an AK/SK pair")
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.Model,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		APIKey:    strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey: strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:     strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:   getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:    getEnvOrDefault("ARK_REGION", "cn-beijing"),
	}
}

// SessionConfig bounds the in-memory session engine. Zero values mean the
// package defaults apply.
type SessionConfig struct {
	ContextBudget     int // context window budget, in model tokens
	MaxSessions       int
	IdleTTL           time.Duration
	CleanupInterval   time.Duration
	GenerationTimeout time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	var cfg SessionConfig

	budget, err := parseOptionalIntEnv("CHAT_CONTEXT_BUDGET")
	if err != nil {
		return SessionConfig{}, err
	}
	if budget != nil {
		cfg.ContextBudget = *budget
	}

	maxSessions, err := parseOptionalIntEnv("CHAT_MAX_SESSIONS")
	if err != nil {
		return SessionConfig{}, err
	}
	if maxSessions != nil {
		cfg.MaxSessions = *maxSessions
	}

	idleSeconds, err := parseOptionalIntEnv("CHAT_SESSION_IDLE_SECONDS")
	if err != nil {
		return SessionConfig{}, err
	}
	if idleSeconds != nil {
		cfg.IdleTTL = time.Duration(*idleSeconds) * time.Second
	}

	cleanupSeconds, err := parseOptionalIntEnv("CHAT_CLEANUP_INTERVAL_SECONDS")
	if err != nil {
		return SessionConfig{}, err
	}
	if cleanupSeconds != nil {
		cfg.CleanupInterval = time.Duration(*cleanupSeconds) * time.Second
	}

	timeoutSeconds, err := parseOptionalIntEnv("CHAT_GENERATION_TIMEOUT_SECONDS")
	if err != nil {
		return SessionConfig{}, err
	}
	if timeoutSeconds != nil {
		cfg.GenerationTimeout = time.Duration(*timeoutSeconds) * time.Second
	}

	return cfg, nil
}

// HistoryConfig locates the durable turn log.
type HistoryConfig struct {
	Path string
}

func loadHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Path: getEnvOrDefault("CHAT_HISTORY_DB", "./chatbot.db"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

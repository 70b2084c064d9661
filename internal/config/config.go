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

// Config aggregates every runtime setting for the service.
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Store  StoreConfig
	Relay  RelayConfig
}

// Load reads the configuration from environment variables. Missing LLM
// credentials are a fatal configuration error: the server cannot answer a
// single query without them.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}
	if !ai.Enabled() {
		return nil, fmt.Errorf("missing LLM credentials: set ARK_API_KEY (or ARK_ACCESS_KEY + ARK_SECRET_KEY) and ARK_MODEL")
	}

	relay, err := loadRelayConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		AI:     ai,
		Store:  loadStoreConfig(),
		Relay:  relay,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "9000"
	}

	if strings.Contains(port, ":") {
		// Allow ":9000" or "127.0.0.1:9000" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// StoreConfig locates the trip database.
type StoreConfig struct {
	Path string
}

func loadStoreConfig() StoreConfig {
	return StoreConfig{Path: getEnvOrDefault("DB_PATH", "rides.sqlite")}
}

// RelayConfig bounds the dispatcher and the streaming endpoints.
type RelayConfig struct {
	AgentTimeout      time.Duration
	HeartbeatInterval time.Duration
	HistoryWindow     int
	HistoryLimit      int
	Workers           int
	ChannelBuffer     int
}

func loadRelayConfig() (RelayConfig, error) {
	cfg := RelayConfig{
		AgentTimeout:      45 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		HistoryWindow:     4,
		HistoryLimit:      8,
		Workers:           4,
		ChannelBuffer:     16,
	}

	if v, err := parseOptionalIntEnv("AGENT_TIMEOUT_SECONDS"); err != nil {
		return RelayConfig{}, err
	} else if v != nil && *v > 0 {
		cfg.AgentTimeout = time.Duration(*v) * time.Second
	}

	if v, err := parseOptionalIntEnv("HEARTBEAT_SECONDS"); err != nil {
		return RelayConfig{}, err
	} else if v != nil && *v > 0 {
		cfg.HeartbeatInterval = time.Duration(*v) * time.Second
	}

	if v, err := parseOptionalIntEnv("HISTORY_WINDOW"); err != nil {
		return RelayConfig{}, err
	} else if v != nil && *v > 0 {
		cfg.HistoryWindow = *v
	}

	if v, err := parseOptionalIntEnv("HISTORY_LIMIT"); err != nil {
		return RelayConfig{}, err
	} else if v != nil && *v > 0 {
		cfg.HistoryLimit = *v
	}

	if v, err := parseOptionalIntEnv("DISPATCH_WORKERS"); err != nil {
		return RelayConfig{}, err
	} else if v != nil && *v > 0 {
		cfg.Workers = *v
	}

	if cfg.HistoryWindow > cfg.HistoryLimit {
		cfg.HistoryWindow = cfg.HistoryLimit
	}

	return cfg, nil
}

// AIConfig describes the Ark chat model used by the SQL agent.
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	MaxSteps    int
}

// Enabled reports whether the required credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates a model instance from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark credentials or model missing: provide ARK_API_KEY + ARK_MODEL or the AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	maxSteps := 20
	if stepsOverride, err := parseOptionalIntEnv("AGENT_MAX_STEPS"); err != nil {
		return AIConfig{}, err
	} else if stepsOverride != nil {
		if *stepsOverride < 1 {
			maxSteps = 1
		} else {
			maxSteps = *stepsOverride
		}
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		MaxSteps:    maxSteps,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
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

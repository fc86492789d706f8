package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/deepseek-chatbot/internal/model/chat"
	"github.com/zhouzirui/deepseek-chatbot/internal/service/inference"
)

// 前端可选的 max_tokens 范围与默认值。
const (
	DefaultMaxTokens = 1000
	MinMaxTokens     = 100
	MaxMaxTokens     = 4000
)

// 支持的模型提供方。
const (
	ProviderAzure = "azure"
	ProviderArk   = "ark"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	AI     AIConfig
}

// Load 从配置文件（可选）与环境变量加载配置，环境变量优先。
func Load() (*Config, error) {
	file, err := loadFileConfig(strings.TrimSpace(os.Getenv("DEEPSEEK_CONFIG")))
	if err != nil {
		return nil, err
	}

	server, err := loadServerConfig(file)
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig(file)
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(file fileConfig) (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = file.Server.Addr
	}
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。凭证不在此处保存，由调用方单独传入。
type AIConfig struct {
	Provider       string
	Endpoint       string
	Model          string
	MaxTokens      int
	StreamResponse bool
	Temperature    *float64
	Timeout        time.Duration

	// Ark 专用配置，API Key 通过凭证传入
	ArkModel   string
	ArkBaseURL string
	ArkRegion  string
}

// NewChatModel 使用配置与凭证创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context, credential Credential) (model.BaseChatModel, error) {
	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	switch c.Provider {
	case ProviderAzure, "":
		chatModel, err := inference.NewChatModel(inference.Config{
			Endpoint:    c.Endpoint,
			Model:       c.Model,
			Token:       credential.Reveal(),
			MaxTokens:   c.MaxTokens,
			Temperature: temperature,
			Timeout:     c.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return chatModel, nil
	case ProviderArk:
		if c.ArkModel == "" {
			return nil, errors.New("ark provider requires a model id (Model)")
		}
		if credential.Empty() {
			return nil, fmt.Errorf("%w: ark provider requires %s", chat.ErrAuth, ArkCredentialEnvVar)
		}

		maxTokens := c.MaxTokens
		chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     c.ArkBaseURL,
			Region:      c.ArkRegion,
			APIKey:      credential.Reveal(),
			Model:       c.ArkModel,
			MaxTokens:   &maxTokens,
			Temperature: temperature,
		})
		if err != nil {
			return nil, err
		}
		return chatModel, nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q (supported: %s, %s)", c.Provider, ProviderAzure, ProviderArk)
	}
}

// ValidMaxTokens 判断前端传入的 max_tokens 是否在允许范围内。
func ValidMaxTokens(n int) bool {
	return n >= MinMaxTokens && n <= MaxMaxTokens
}

func loadAIConfig(file fileConfig) (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("DEEPSEEK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	if temperature == nil {
		temperature = file.AI.Temperature
	}

	maxTokens := DefaultMaxTokens
	if file.AI.MaxTokens != nil {
		maxTokens = *file.AI.MaxTokens
	}
	if override, err := parseOptionalIntEnv("DEEPSEEK_MAX_TOKENS"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		maxTokens = *override
	}
	if maxTokens <= 0 {
		return AIConfig{}, fmt.Errorf("max tokens must be positive, got %d", maxTokens)
	}

	streamDefault := true
	if file.AI.Stream != nil {
		streamDefault = *file.AI.Stream
	}
	stream, err := parseBoolEnv("DEEPSEEK_STREAM", streamDefault)
	if err != nil {
		return AIConfig{}, err
	}

	timeoutSeconds := 120
	if file.AI.TimeoutSeconds != nil {
		timeoutSeconds = *file.AI.TimeoutSeconds
	}
	if override, err := parseOptionalIntEnv("DEEPSEEK_TIMEOUT"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		timeoutSeconds = *override
	}
	if timeoutSeconds <= 0 {
		return AIConfig{}, fmt.Errorf("timeout must be positive, got %d", timeoutSeconds)
	}

	provider := strings.ToLower(firstNonEmpty(os.Getenv("LLM_PROVIDER"), file.AI.Provider, ProviderAzure))
	if provider != ProviderAzure && provider != ProviderArk {
		return AIConfig{}, fmt.Errorf("invalid LLM_PROVIDER value %q", provider)
	}

	return AIConfig{
		Provider:       provider,
		Endpoint:       firstNonEmpty(os.Getenv("DEEPSEEK_ENDPOINT"), file.AI.Endpoint, inference.DefaultEndpoint),
		Model:          firstNonEmpty(os.Getenv("DEEPSEEK_MODEL"), file.AI.Model, inference.DefaultModel),
		MaxTokens:      maxTokens,
		StreamResponse: stream,
		Temperature:    temperature,
		Timeout:        time.Duration(timeoutSeconds) * time.Second,
		ArkModel:       strings.TrimSpace(os.Getenv("Model")),
		ArkBaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		ArkRegion:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
	}, nil
}

// fileConfig 对应可选的 TOML 配置文件，所有字段均可省略。
type fileConfig struct {
	Server struct {
		Addr string `toml:"addr"`
	} `toml:"server"`
	AI struct {
		Provider       string   `toml:"provider"`
		Endpoint       string   `toml:"endpoint"`
		Model          string   `toml:"model"`
		MaxTokens      *int     `toml:"max_tokens"`
		Stream         *bool    `toml:"stream"`
		Temperature    *float64 `toml:"temperature"`
		TimeoutSeconds *int     `toml:"timeout_seconds"`
	} `toml:"ai"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
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

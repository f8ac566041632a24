package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	AI      AIConfig
	Dialog  DialogConfig
	Invoice InvoiceConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	dialog, err := loadDialogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		Log:     loadLogConfig(),
		AI:      ai,
		Dialog:  dialog,
		Invoice: loadInvoiceConfig(),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
	// RateLimitRPS 为每个客户端 IP 每秒允许的 API 请求数，0 表示不限流。
	RateLimitRPS   float64
	RateLimitBurst int
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "3001"
	}

	addr := ":" + port
	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":3001" 或 "127.0.0.1:3001"。
		addr = port
	} else if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	rps, err := parseOptionalFloatEnv("RATE_LIMIT_RPS")
	if err != nil {
		return ServerConfig{}, err
	}
	burst, err := parseOptionalIntEnv("RATE_LIMIT_BURST")
	if err != nil {
		return ServerConfig{}, err
	}

	cfg := ServerConfig{Addr: addr, RateLimitRPS: 2, RateLimitBurst: 5}
	if rps != nil {
		if *rps < 0 {
			return ServerConfig{}, fmt.Errorf("RATE_LIMIT_RPS must not be negative")
		}
		cfg.RateLimitRPS = *rps
	}
	if burst != nil {
		if *burst < 1 {
			return ServerConfig{}, fmt.Errorf("RATE_LIMIT_BURST must be at least 1")
		}
		cfg.RateLimitBurst = *burst
	}
	return cfg, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Format: getEnvOrDefault("LOG_FORMAT", "console"),
	}
}

// Provider 标识大模型后端。
type Provider string

const (
	ProviderArk    Provider = "ark"
	ProviderOpenAI Provider = "openai"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider    Provider
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	if c.Model == "" {
		return false
	}
	if c.Provider == ProviderOpenAI {
		return c.APIKey != ""
	}
	return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("model credentials missing: provide AI_MODEL plus %s credentials", c.Provider)
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

	switch c.Provider {
	case ProviderOpenAI:
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      c.APIKey,
			BaseURL:     c.BaseURL,
			Model:       c.Model,
			MaxTokens:   c.MaxTokens,
			Temperature: temperature,
			TopP:        topP,
		})
	case ProviderArk:
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     c.BaseURL,
			Region:      c.Region,
			APIKey:      c.APIKey,
			AccessKey:   c.AccessKey,
			SecretKey:   c.SecretKey,
			Model:       c.Model,
			MaxTokens:   c.MaxTokens,
			Temperature: temperature,
			TopP:        topP,
		})
	default:
		return nil, fmt.Errorf("unsupported AI_PROVIDER %q", c.Provider)
	}
}

func loadAIConfig() (AIConfig, error) {
	provider := Provider(strings.ToLower(getEnvOrDefault("AI_PROVIDER", string(ProviderArk))))
	if provider != ProviderArk && provider != ProviderOpenAI {
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	if temperature == nil {
		// 低温度让模型更稳定地输出 JSON。
		def := 0.3
		temperature = &def
	}

	topP, err := parseOptionalFloatEnv("AI_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("AI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	modelName := strings.TrimSpace(os.Getenv("AI_MODEL"))
	if modelName == "" {
		modelName = strings.TrimSpace(os.Getenv("Model"))
	}

	cfg := AIConfig{
		Provider:    provider,
		Model:       modelName,
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}

	switch provider {
	case ProviderOpenAI:
		cfg.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		cfg.BaseURL = getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	default:
		cfg.APIKey = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
		cfg.AccessKey = strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY"))
		cfg.SecretKey = strings.TrimSpace(os.Getenv("ARK_SECRET_KEY"))
		cfg.BaseURL = getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3")
		cfg.Region = getEnvOrDefault("ARK_REGION", "cn-beijing")
	}

	return cfg, nil
}

// DialogConfig 控制会话状态机的超时与回收策略。
type DialogConfig struct {
	GenerationTimeout time.Duration
	LockWait          time.Duration
	SessionTTL        time.Duration
	SweepInterval     time.Duration
}

func loadDialogConfig() (DialogConfig, error) {
	generationTimeout, err := parseDurationEnv("DIALOG_GENERATION_TIMEOUT", 60*time.Second)
	if err != nil {
		return DialogConfig{}, err
	}
	lockWait, err := parseDurationEnv("DIALOG_LOCK_WAIT", 90*time.Second)
	if err != nil {
		return DialogConfig{}, err
	}
	ttl, err := parseDurationEnv("DIALOG_SESSION_TTL", 30*time.Minute)
	if err != nil {
		return DialogConfig{}, err
	}
	sweep, err := parseDurationEnv("DIALOG_SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return DialogConfig{}, err
	}
	return DialogConfig{
		GenerationTimeout: generationTimeout,
		LockWait:          lockWait,
		SessionTTL:        ttl,
		SweepInterval:     sweep,
	}, nil
}

// InvoiceConfig 描述模型未给出时填充的发票默认值。
type InvoiceConfig struct {
	Terms             string
	ContractorLicense string
	Warranty          string
	PaymentMethods    []string
	TaxRateHint       string
}

func loadInvoiceConfig() InvoiceConfig {
	return InvoiceConfig{
		Terms:             getEnvOrDefault("INVOICE_TERMS", "Due on receipt"),
		ContractorLicense: getEnvOrDefault("INVOICE_CONTRACTOR_LICENSE", "NY-PL-123456"),
		Warranty:          getEnvOrDefault("INVOICE_WARRANTY", "30 days on labor; parts per manufacturer"),
		PaymentMethods:    parseListEnv("INVOICE_PAYMENT_METHODS", []string{"Card", "Cash", "Zelle"}),
		TaxRateHint:       getEnvOrDefault("INVOICE_TAX_RATE_HINT", "5-8%"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseListEnv(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return append([]string(nil), defaultValue...)
	}
	var items []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	if len(items) == 0 {
		return append([]string(nil), defaultValue...)
	}
	return items
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
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

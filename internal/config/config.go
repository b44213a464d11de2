package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Host string
	Port string
	// Server-side default credential for the upstream model. Requests may
	// override it per call.
	APIKey        string
	Provider      string
	Model         string
	BaseURL       string
	AllowedModels []string
	AllowedOrigin string
	LogLevel      string
	LogFormat     string
	// Rate limiting on /process; RateLimitRPS <= 0 disables it
	RateLimitRPS    float64
	RateLimitBurst  int
	UpstreamTimeout time.Duration
	MaxBodyBytes    int64
	PromptFile      string
	TracingEnabled  bool
	MetricsEnabled  bool
	// Warnings collected while loading, logged once the logger is configured.
	Warnings []string
}

// Addr returns the host:port pair the HTTP server binds to.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

func defaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", "8000")
	v.SetDefault("llm_provider", "gemini")
	v.SetDefault("llm_model", "gemini-1.5-flash")
	v.SetDefault("allowed_origin", "*")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("rate_limit_rps", 0)
	v.SetDefault("rate_limit_burst", 10)
	v.SetDefault("upstream_timeout", "0s")
	v.SetDefault("max_body_bytes", 2<<20)
}

// Load reads .env (if present), an optional YAML file named by CONFIG_FILE,
// and the process environment, in increasing order of precedence.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	apiKey := strings.TrimSpace(v.GetString("gemini_api_key"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(v.GetString("google_api_key"))
	}

	cfg := Config{
		Host:            v.GetString("host"),
		Port:            v.GetString("port"),
		APIKey:          apiKey,
		Provider:        strings.ToLower(strings.TrimSpace(v.GetString("llm_provider"))),
		Model:           strings.TrimSpace(v.GetString("llm_model")),
		BaseURL:         strings.TrimSpace(v.GetString("llm_base_url")),
		AllowedModels:   splitList(v.GetString("allowed_models")),
		AllowedOrigin:   v.GetString("allowed_origin"),
		LogLevel:        v.GetString("log_level"),
		LogFormat:       v.GetString("log_format"),
		RateLimitRPS:    v.GetFloat64("rate_limit_rps"),
		RateLimitBurst:  v.GetInt("rate_limit_burst"),
		UpstreamTimeout: v.GetDuration("upstream_timeout"),
		MaxBodyBytes:    v.GetInt64("max_body_bytes"),
		PromptFile:      strings.TrimSpace(v.GetString("prompt_file")),
		TracingEnabled:  parseBool(v.GetString("tracing_enabled"), false),
		MetricsEnabled:  parseBool(v.GetString("metrics_enabled"), false),
	}

	switch cfg.Provider {
	case "gemini", "openai":
	default:
		return Config{}, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.Provider)
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 1
	}
	if cfg.APIKey == "" {
		cfg.Warnings = append(cfg.Warnings, "GEMINI_API_KEY is not set; /process will require an apiKey in each request")
	}
	return cfg, nil
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseBool(v string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return def
}

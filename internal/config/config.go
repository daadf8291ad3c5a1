// Package config loads CodeGate's configuration from defaults, a YAML
// file, environment variables, and CLI flags, in that increasing order
// of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// LogLevel is the enumerated set of accepted log_level values.
type LogLevel string

const (
	LogError   LogLevel = "error"
	LogWarning LogLevel = "warning"
	LogInfo    LogLevel = "info"
	LogDebug   LogLevel = "debug"
)

// LogFormat is the enumerated set of accepted log_format values.
type LogFormat string

const (
	FormatText LogFormat = "text"
	FormatJSON LogFormat = "json"
)

// Config is CodeGate's full effective configuration.
type Config struct {
	Port      int    `yaml:"port"`
	ProxyPort int    `yaml:"proxy_port"`
	Host      string `yaml:"host"`
	AdminPort int    `yaml:"admin_port"`

	LogLevel  LogLevel  `yaml:"log_level"`
	LogFormat LogFormat `yaml:"log_format"`

	ProviderURLs map[string]string `yaml:"provider_urls"`

	CertsDir   string `yaml:"certs_dir"`
	CACert     string `yaml:"ca_cert"`
	CAKey      string `yaml:"ca_key"`
	ServerCert string `yaml:"server_cert"`
	ServerKey  string `yaml:"server_key"`

	Prompts map[string]string `yaml:"prompts"`

	DBPath        string `yaml:"db_path"`
	VecDBPath     string `yaml:"vec_db_path"`
	ModelBasePath string `yaml:"model_base_path"`

	AdminAPIKey string `yaml:"admin_api_key"`

	// RedisAddr, if set, backs the TLS interception leaf-certificate
	// cache with Redis so multiple gateway instances behind a load
	// balancer share issued leaves. Empty runs the cache purely
	// in-process.
	RedisAddr string `yaml:"redis_addr"`
}

// ConfigError signals a fatal configuration problem (exit code 2).
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

// Defaults returns the built-in configuration baseline, matching
// spec §6's enumerated defaults.
func Defaults() *Config {
	return &Config{
		Port:      8989,
		ProxyPort: 8990,
		Host:      "localhost",
		AdminPort: 9090,
		LogLevel:  LogInfo,
		LogFormat: FormatText,
		ProviderURLs: map[string]string{
			"openai":     "https://api.openai.com",
			"anthropic":  "https://api.anthropic.com",
			"ollama":     "http://localhost:11434",
			"vllm":       "http://localhost:8000",
			"llamacpp":   "http://localhost:8080",
			"openrouter": "https://openrouter.ai/api",
			"lm_studio":  "http://localhost:1234",
			"copilot":    "https://api.githubcopilot.com",
		},
		CertsDir:      "./codegate_volume/certs",
		CACert:        "ca.crt",
		CAKey:         "ca.key",
		ServerCert:    "server.crt",
		ServerKey:     "server.key",
		Prompts:       map[string]string{},
		DBPath:        "./codegate_volume/db/codegate.db",
		VecDBPath:     "./codegate_volume/vectordb.db",
		ModelBasePath: "./codegate_volume/models",
	}
}

// Load builds the effective configuration: defaults, overlaid with the
// YAML file at yamlPath (if non-empty and present), overlaid with
// CODEGATE_* environment variables, overlaid with flags already parsed
// into fs. Returns a *ConfigError for any invalid value.
func Load(yamlPath string, fs *pflag.FlagSet) (*Config, error) {
	cfg := Defaults()

	if yamlPath != "" {
		if err := applyYAML(cfg, yamlPath); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	if fs != nil {
		applyFlags(cfg, fs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &ConfigError{Field: "yaml", Msg: err.Error()}
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return &ConfigError{Field: "yaml", Msg: err.Error()}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("CODEGATE_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v, ok := os.LookupEnv("CODEGATE_PROXY_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ProxyPort = n
		}
	}
	if v, ok := os.LookupEnv("CODEGATE_ADMIN_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AdminPort = n
		}
	}
	if v, ok := os.LookupEnv("CODEGATE_HOST"); ok {
		cfg.Host = v
	}
	if v, ok := os.LookupEnv("CODEGATE_LOG_LEVEL"); ok {
		cfg.LogLevel = LogLevel(strings.ToLower(v))
	}
	if v, ok := os.LookupEnv("CODEGATE_LOG_FORMAT"); ok {
		cfg.LogFormat = LogFormat(strings.ToLower(v))
	}
	if v, ok := os.LookupEnv("CODEGATE_CERTS_DIR"); ok {
		cfg.CertsDir = v
	}
	if v, ok := os.LookupEnv("CODEGATE_DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v, ok := os.LookupEnv("CODEGATE_VEC_DB_PATH"); ok {
		cfg.VecDBPath = v
	}
	if v, ok := os.LookupEnv("CODEGATE_MODEL_BASE_PATH"); ok {
		cfg.ModelBasePath = v
	}
	if v, ok := os.LookupEnv("CODEGATE_ADMIN_API_KEY"); ok {
		cfg.AdminAPIKey = v
	}
	if v, ok := os.LookupEnv("CODEGATE_REDIS_ADDR"); ok {
		cfg.RedisAddr = v
	}
	// CODEGATE_PROVIDER_URL_<NAME>=https://... overrides one provider's base URL.
	const prefix = "CODEGATE_PROVIDER_URL_"
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, prefix) {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(parts[0], prefix))
		cfg.ProviderURLs[name] = parts[1]
	}
}

func applyFlags(cfg *Config, fs *pflag.FlagSet) {
	if fs.Changed("port") {
		if v, err := fs.GetInt("port"); err == nil {
			cfg.Port = v
		}
	}
	if fs.Changed("proxy-port") {
		if v, err := fs.GetInt("proxy-port"); err == nil {
			cfg.ProxyPort = v
		}
	}
	if fs.Changed("admin-port") {
		if v, err := fs.GetInt("admin-port"); err == nil {
			cfg.AdminPort = v
		}
	}
	if fs.Changed("host") {
		if v, err := fs.GetString("host"); err == nil {
			cfg.Host = v
		}
	}
	if fs.Changed("log-level") {
		if v, err := fs.GetString("log-level"); err == nil {
			cfg.LogLevel = LogLevel(v)
		}
	}
	if fs.Changed("log-format") {
		if v, err := fs.GetString("log-format"); err == nil {
			cfg.LogFormat = LogFormat(v)
		}
	}
}

// Validate checks port ranges and enumerated fields, returning a
// *ConfigError describing the first problem found.
func (c *Config) Validate() error {
	for name, p := range map[string]int{"port": c.Port, "proxy_port": c.ProxyPort, "admin_port": c.AdminPort} {
		if p < 1 || p > 65535 {
			return &ConfigError{Field: name, Msg: fmt.Sprintf("must be between 1 and 65535, got %d", p)}
		}
	}
	switch c.LogLevel {
	case LogError, LogWarning, LogInfo, LogDebug:
	default:
		return &ConfigError{Field: "log_level", Msg: fmt.Sprintf("unknown level %q", c.LogLevel)}
	}
	switch c.LogFormat {
	case FormatText, FormatJSON:
	default:
		return &ConfigError{Field: "log_format", Msg: fmt.Sprintf("unknown format %q", c.LogFormat)}
	}
	if c.Port == c.ProxyPort || c.Port == c.AdminPort || c.ProxyPort == c.AdminPort {
		return &ConfigError{Field: "port", Msg: "port, proxy_port, and admin_port must be distinct"}
	}
	return nil
}

package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/betbot/tradegate/pkg/secretstore"
)

// DefaultConfigPath 未指定 -config 时尝试加载的文件（不存在则只用环境变量）
const DefaultConfigPath = "yml/gateway.yaml"

// 默认值
const (
	DefaultDailyLimit    = "500"
	DefaultCooldown      = time.Hour
	DefaultAsset         = "XRP"
	DefaultQuoteCurrency = "USD"
	DefaultPort          = 3000
	DefaultLedgerDriver  = "json"
	DefaultStateDir      = "data/state"
	DefaultLogLevel      = "info"
	DefaultLogFile       = "logs/gateway.log"
)

// ConfigurationError 启动期配置错误，进程应直接退出
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Msg
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Msg)
}

func configErr(field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// KrakenConfig 交易所凭证与连接参数
type KrakenConfig struct {
	APIKey     string
	APISecret  string
	BaseURL    string
	Timeout    time.Duration
	AssetCodes map[string]string // 币种 -> Kraken 资产代码，覆盖内置映射
	RateLimit  bool              // 是否按 Kraken 私有接口计数器节流
}

// GateConfig 交易闸门参数
type GateConfig struct {
	AuthorizedCaller  string
	DailyLimit        decimal.Decimal
	Cooldown          time.Duration
	DefaultAsset      string
	QuoteCurrency     string
	SendClientOrderID bool
	PersistCooldown   bool   // 冷却状态落盘
	StateDir          string // PersistCooldown 时的存储目录
}

// LedgerConfig 每日花费账本存储
type LedgerConfig struct {
	Driver string // json | sqlite | badger
	Path   string
}

// RiskConfig 断路器，零值即关闭
type RiskConfig struct {
	MaxConsecutiveErrors int64
	HaltOnIndeterminate  bool
}

// ServerConfig HTTP 入口
type ServerConfig struct {
	Host        string
	Port        int
	MetricsAddr string // 非空时在该地址暴露 /debug/vars 与 pprof
}

// Addr 监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Config 应用配置
type Config struct {
	Kraken   KrakenConfig
	Gate     GateConfig
	Ledger   LedgerConfig
	Risk     RiskConfig
	Server   ServerConfig
	LogLevel string // 日志级别
	LogFile  string // 日志文件路径（可选）
}

// ConfigFile 配置文件结构（用于 YAML/JSON 解析）
type ConfigFile struct {
	Kraken struct {
		APIKey     string            `yaml:"api_key" json:"api_key"`
		APISecret  string            `yaml:"api_secret" json:"api_secret"`
		BaseURL    string            `yaml:"base_url" json:"base_url"`
		Timeout    string            `yaml:"timeout" json:"timeout"`
		AssetCodes map[string]string `yaml:"asset_codes" json:"asset_codes"`
		RateLimit  *bool             `yaml:"rate_limit" json:"rate_limit"`
	} `yaml:"kraken" json:"kraken"`
	Gate struct {
		AuthorizedCaller  string `yaml:"authorized_caller" json:"authorized_caller"`
		DailyLimit        string `yaml:"daily_limit" json:"daily_limit"` // 字符串，避免浮点误差
		Cooldown          string `yaml:"cooldown" json:"cooldown"`       // 如 "1h"、"90m"，纯数字按秒
		DefaultAsset      string `yaml:"default_asset" json:"default_asset"`
		QuoteCurrency     string `yaml:"quote_currency" json:"quote_currency"`
		SendClientOrderID bool   `yaml:"send_client_order_id" json:"send_client_order_id"`
		PersistCooldown   bool   `yaml:"persist_cooldown" json:"persist_cooldown"`
		StateDir          string `yaml:"state_dir" json:"state_dir"`
	} `yaml:"gate" json:"gate"`
	Ledger struct {
		Driver string `yaml:"driver" json:"driver"`
		Path   string `yaml:"path" json:"path"`
	} `yaml:"ledger" json:"ledger"`
	Risk struct {
		MaxConsecutiveErrors int64 `yaml:"max_consecutive_errors" json:"max_consecutive_errors"`
		HaltOnIndeterminate  bool  `yaml:"halt_on_indeterminate" json:"halt_on_indeterminate"`
	} `yaml:"risk" json:"risk"`
	Server struct {
		Host        string `yaml:"host" json:"host"`
		Port        int    `yaml:"port" json:"port"`
		MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	} `yaml:"server" json:"server"`
	LogLevel string `yaml:"log_level" json:"log_level"`
	LogFile  string `yaml:"log_file" json:"log_file"`
}

// Getenv 环境变量查找函数
type Getenv func(key string) string

// WithSecrets 先查进程环境变量，再查 secretstore 中的 env/<KEY>
func WithSecrets(store *secretstore.Store) Getenv {
	return func(key string) string {
		key = strings.TrimSpace(key)
		if key == "" {
			return ""
		}
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		return store.Getenv(key)
	}
}

// Load 加载配置。优先级：环境变量 > 配置文件 > 默认值。
// filePath 为空时只使用环境变量；getenv 为空时使用 os.Getenv。
func Load(filePath string, getenv Getenv) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cf := &ConfigFile{}
	if filePath != "" {
		var err error
		cf, err = loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}

	env := func(key, fileValue, defaultValue string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		if v := strings.TrimSpace(fileValue); v != "" {
			return v
		}
		return defaultValue
	}

	cfg := &Config{
		Kraken: KrakenConfig{
			APIKey:     env("KRAKEN_API_KEY", cf.Kraken.APIKey, ""),
			APISecret:  env("KRAKEN_API_SECRET", cf.Kraken.APISecret, ""),
			BaseURL:    env("KRAKEN_BASE_URL", cf.Kraken.BaseURL, ""),
			AssetCodes: cf.Kraken.AssetCodes,
			RateLimit:  cf.Kraken.RateLimit == nil || *cf.Kraken.RateLimit,
		},
		Gate: GateConfig{
			AuthorizedCaller:  env("AUTHORIZED_CALLER", "", env("ALLOWED_TELEGRAM_ID", cf.Gate.AuthorizedCaller, "")),
			DefaultAsset:      strings.ToUpper(env("DEFAULT_ASSET", cf.Gate.DefaultAsset, DefaultAsset)),
			QuoteCurrency:     strings.ToUpper(env("QUOTE_CURRENCY", cf.Gate.QuoteCurrency, DefaultQuoteCurrency)),
			SendClientOrderID: cf.Gate.SendClientOrderID,
			PersistCooldown:   cf.Gate.PersistCooldown,
			StateDir:          env("STATE_DIR", cf.Gate.StateDir, DefaultStateDir),
		},
		Ledger: LedgerConfig{
			Driver: strings.ToLower(env("LEDGER_DRIVER", cf.Ledger.Driver, DefaultLedgerDriver)),
			Path:   env("LEDGER_PATH", cf.Ledger.Path, ""),
		},
		Risk: RiskConfig{
			MaxConsecutiveErrors: cf.Risk.MaxConsecutiveErrors,
			HaltOnIndeterminate:  cf.Risk.HaltOnIndeterminate,
		},
		Server: ServerConfig{
			Host:        env("HOST", cf.Server.Host, ""),
			MetricsAddr: env("METRICS_ADDR", cf.Server.MetricsAddr, ""),
		},
		LogLevel: env("LOG_LEVEL", cf.LogLevel, DefaultLogLevel),
		LogFile:  env("LOG_FILE", cf.LogFile, DefaultLogFile),
	}

	var err error
	if cfg.Gate.DailyLimit, err = decimal.NewFromString(env("DAILY_LIMIT", cf.Gate.DailyLimit, DefaultDailyLimit)); err != nil {
		return nil, configErr("DAILY_LIMIT", "not a decimal number: %v", err)
	}
	if cfg.Gate.Cooldown, err = parseDuration(env("COOLDOWN", cf.Gate.Cooldown, ""), DefaultCooldown); err != nil {
		return nil, configErr("COOLDOWN", "%v", err)
	}
	if cfg.Kraken.Timeout, err = parseDuration(env("KRAKEN_TIMEOUT", cf.Kraken.Timeout, ""), 15*time.Second); err != nil {
		return nil, configErr("KRAKEN_TIMEOUT", "%v", err)
	}
	port := env("PORT", "", "")
	switch {
	case port != "":
		if cfg.Server.Port, err = strconv.Atoi(port); err != nil {
			return nil, configErr("PORT", "not an integer: %q", port)
		}
	case cf.Server.Port != 0:
		cfg.Server.Port = cf.Server.Port
	default:
		cfg.Server.Port = DefaultPort
	}
	if v := getenv("SEND_CLIENT_ORDER_ID"); v != "" {
		if cfg.Gate.SendClientOrderID, err = strconv.ParseBool(v); err != nil {
			return nil, configErr("SEND_CLIENT_ORDER_ID", "not a bool: %q", v)
		}
	}
	if v := getenv("PERSIST_COOLDOWN"); v != "" {
		if cfg.Gate.PersistCooldown, err = strconv.ParseBool(v); err != nil {
			return nil, configErr("PERSIST_COOLDOWN", "not a bool: %q", v)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration 支持 Go duration（"1h30m"）或纯数字秒
func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var configFile ConfigFile
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}

	return &configFile, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Kraken.APIKey == "" {
		return configErr("KRAKEN_API_KEY", "未配置")
	}
	if c.Kraken.APISecret == "" {
		return configErr("KRAKEN_API_SECRET", "未配置")
	}
	if _, err := base64.StdEncoding.DecodeString(c.Kraken.APISecret); err != nil {
		return configErr("KRAKEN_API_SECRET", "不是合法的 base64: %v", err)
	}
	if c.Kraken.Timeout <= 0 {
		return configErr("KRAKEN_TIMEOUT", "必须大于 0")
	}
	if strings.TrimSpace(c.Gate.AuthorizedCaller) == "" {
		return configErr("ALLOWED_TELEGRAM_ID", "未配置授权调用方")
	}
	if !c.Gate.DailyLimit.IsPositive() {
		return configErr("DAILY_LIMIT", "必须大于 0，当前 %s", c.Gate.DailyLimit)
	}
	if c.Gate.Cooldown < 0 {
		return configErr("COOLDOWN", "不能为负数，当前 %s", c.Gate.Cooldown)
	}
	if c.Gate.DefaultAsset == "" {
		return configErr("DEFAULT_ASSET", "不能为空")
	}
	if c.Gate.QuoteCurrency == "" {
		return configErr("QUOTE_CURRENCY", "不能为空")
	}
	switch c.Ledger.Driver {
	case "json", "sqlite", "badger":
	default:
		return configErr("LEDGER_DRIVER", "不支持的驱动 %q (支持 json, sqlite, badger)", c.Ledger.Driver)
	}
	if c.Risk.MaxConsecutiveErrors < 0 {
		return configErr("risk.max_consecutive_errors", "不能为负数")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return configErr("PORT", "端口超出范围: %d", c.Server.Port)
	}
	return nil
}

// Redacted 用于启动日志，隐藏凭证
func (c *Config) Redacted() map[string]interface{} {
	return map[string]interface{}{
		"kraken_api_key":    mask(c.Kraken.APIKey),
		"kraken_base_url":   c.Kraken.BaseURL,
		"authorized_caller": c.Gate.AuthorizedCaller,
		"daily_limit":       c.Gate.DailyLimit.String(),
		"cooldown":          c.Gate.Cooldown.String(),
		"default_asset":     c.Gate.DefaultAsset,
		"quote_currency":    c.Gate.QuoteCurrency,
		"ledger_driver":     c.Ledger.Driver,
		"persist_cooldown":  c.Gate.PersistCooldown,
		"addr":              c.Server.Addr(),
	}
}

func mask(s string) string {
	if len(s) <= 6 {
		return "***"
	}
	return s[:3] + "***" + s[len(s)-3:]
}

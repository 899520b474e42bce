package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDir         = "configs"
	envPrefix         = "SCANNER"

	VenueBybit = "bybit"
	VenueOKX   = "okx"
)

// Config ...
type Config struct {
	Service struct {
		Name        string `mapstructure:"name" yaml:"name" validate:"required"`
		HTTPAddr    string `mapstructure:"http_addr" yaml:"http_addr" validate:"required"`
		LogCapacity int    `mapstructure:"log_capacity" yaml:"log_capacity" validate:"gt=0"`
	} `mapstructure:"service" yaml:"service"`

	Exchange struct {
		Venue       string        `mapstructure:"venue" yaml:"venue" validate:"oneof=bybit okx"`
		HTTPTimeout time.Duration `mapstructure:"http_timeout" yaml:"http_timeout" validate:"gt=0"`

		Bybit struct {
			RestURL    string   `mapstructure:"rest_url" yaml:"rest_url" validate:"required,url"`
			StreamURL  string   `mapstructure:"stream_url" yaml:"stream_url" validate:"required"`
			Categories []string `mapstructure:"categories" yaml:"categories" validate:"min=1,dive,oneof=linear inverse"`
			APIKey     string   `mapstructure:"api_key" yaml:"api_key"`
			APISecret  string   `mapstructure:"api_secret" yaml:"api_secret"`
		} `mapstructure:"bybit" yaml:"bybit"`

		OKX struct {
			RestURL    string   `mapstructure:"rest_url" yaml:"rest_url" validate:"required,url"`
			StreamURL  string   `mapstructure:"stream_url" yaml:"stream_url" validate:"required"`
			InstTypes  []string `mapstructure:"inst_types" yaml:"inst_types" validate:"min=1,dive,oneof=SWAP FUTURES"`
			APIKey     string   `mapstructure:"api_key" yaml:"api_key"`
			APISecret  string   `mapstructure:"api_secret" yaml:"api_secret"`
			Passphrase string   `mapstructure:"passphrase" yaml:"passphrase"`
		} `mapstructure:"okx" yaml:"okx"`
	} `mapstructure:"exchange" yaml:"exchange"`

	// Скан: батчи и паузы между ними — это и есть rate limit.
	Scanner struct {
		Interval   string        `mapstructure:"interval" yaml:"interval" validate:"required"`
		Limit      int           `mapstructure:"limit" yaml:"limit" validate:"gt=0"`
		BatchSize  int           `mapstructure:"batch_size" yaml:"batch_size" validate:"gte=0"`
		BatchDelay time.Duration `mapstructure:"batch_delay" yaml:"batch_delay" validate:"gte=0"`
		ScanEvery  time.Duration `mapstructure:"scan_every" yaml:"scan_every" validate:"gte=0"`
		RunOnStart bool          `mapstructure:"run_on_start" yaml:"run_on_start"`
	} `mapstructure:"scanner" yaml:"scanner"`

	Detector struct {
		Lookback        int     `mapstructure:"lookback" yaml:"lookback" validate:"gt=0"`
		WickRatio       float64 `mapstructure:"wick_ratio" yaml:"wick_ratio" validate:"gt=0"`
		VolumeThreshold float64 `mapstructure:"volume_threshold" yaml:"volume_threshold" validate:"gt=0"`
		BodyEpsilon     float64 `mapstructure:"body_epsilon" yaml:"body_epsilon" validate:"gt=0"`
	} `mapstructure:"detector" yaml:"detector"`

	Stream struct {
		Enabled          bool          `mapstructure:"enabled" yaml:"enabled"`
		PingInterval     time.Duration `mapstructure:"ping_interval" yaml:"ping_interval" validate:"gt=0"`
		ReconnectDelay   time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay" validate:"gt=0"`
		HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout" validate:"gt=0"`
		CacheDepth       int           `mapstructure:"cache_depth" yaml:"cache_depth" validate:"gt=0"`
	} `mapstructure:"stream" yaml:"stream"`

	Notify struct {
		Sink           string        `mapstructure:"sink" yaml:"sink" validate:"omitempty,oneof=feishu telegram log"`
		FeishuWebhook  string        `mapstructure:"feishu_webhook" yaml:"feishu_webhook"`
		TelegramToken  string        `mapstructure:"telegram_token" yaml:"telegram_token"`
		TelegramChatID int64         `mapstructure:"telegram_chat_id" yaml:"telegram_chat_id"`
		Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	} `mapstructure:"notify" yaml:"notify"`

	Tracing struct {
		Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
		Host       string  `mapstructure:"host" yaml:"host"`
		Port       int     `mapstructure:"port" yaml:"port"`
		SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate" validate:"gte=0,lte=1"`
	} `mapstructure:"tracing" yaml:"tracing"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "pinbar-scanner")
	v.SetDefault("service.http_addr", ":8080")
	v.SetDefault("service.log_capacity", 500)

	v.SetDefault("exchange.venue", VenueBybit)
	v.SetDefault("exchange.http_timeout", "10s")
	v.SetDefault("exchange.bybit.rest_url", "https://api.bybit.com")
	v.SetDefault("exchange.bybit.stream_url", "wss://stream.bybit.com/v5/public/linear")
	v.SetDefault("exchange.bybit.categories", []string{"linear", "inverse"})
	v.SetDefault("exchange.okx.rest_url", "https://www.okx.com")
	v.SetDefault("exchange.okx.stream_url", "wss://ws.okx.com:8443/ws/v5/business")
	v.SetDefault("exchange.okx.inst_types", []string{"SWAP", "FUTURES"})

	v.SetDefault("scanner.interval", "15m")
	v.SetDefault("scanner.limit", 20)
	v.SetDefault("scanner.batch_size", 0) // 0 => дефолт площадки
	v.SetDefault("scanner.batch_delay", "0s")
	v.SetDefault("scanner.scan_every", "15m")
	v.SetDefault("scanner.run_on_start", true)

	v.SetDefault("detector.lookback", 10)
	v.SetDefault("detector.wick_ratio", 1.5)
	v.SetDefault("detector.volume_threshold", 1.5)
	v.SetDefault("detector.body_epsilon", 1e-4)

	v.SetDefault("stream.enabled", true)
	v.SetDefault("stream.ping_interval", "20s")
	v.SetDefault("stream.reconnect_delay", "5s")
	v.SetDefault("stream.handshake_timeout", "10s")
	v.SetDefault("stream.cache_depth", 200)

	v.SetDefault("notify.sink", "")
	v.SetDefault("notify.timeout", "10s")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.host", "localhost")
	v.SetDefault("tracing.port", 6831)
	v.SetDefault("tracing.sample_rate", 1.0)
}

// legacyEnv — имена переменных из старого деплоя.
var legacyEnv = map[string]string{
	"BYBIT_API_KEY":      "exchange.bybit.api_key",
	"BYBIT_API_SECRET":   "exchange.bybit.api_secret",
	"OKX_API_KEY":        "exchange.okx.api_key",
	"OKX_API_SECRET":     "exchange.okx.api_secret",
	"OKX_PASSPHRASE":     "exchange.okx.passphrase",
	"FEISHU_WEBHOOK_URL": "notify.feishu_webhook",
	"TELEGRAM_TOKEN":     "notify.telegram_token",
	"TELEGRAM_CHAT_ID":   "notify.telegram_chat_id",
	"KLINE_INTERVAL":     "scanner.interval",
}

func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for env, key := range legacyEnv {
		_ = v.BindEnv(key, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env)
	}

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	v.SetConfigFile(configDir + "/" + configFileName)
	if err := v.ReadInConfig(); err != nil {
		// файла может не быть — работаем на дефолтах и env
		if _, statErr := os.Stat(configDir + "/" + configFileName); statErr == nil {
			return nil, errors.Wrap(err, "read config")
		}
	}

	return Load(v)
}

// Load декодирует и валидирует конфиг из готового viper-инстанса.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	cfg.applyVenueDefaults()

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	// детектору нужна lookback-история плюс оцениваемая свеча
	if cfg.Scanner.Limit <= cfg.Detector.Lookback {
		return nil, errors.Errorf("validate config: scanner.limit (%d) must exceed detector.lookback (%d)",
			cfg.Scanner.Limit, cfg.Detector.Lookback)
	}
	return &cfg, nil
}

// NewViper — viper с дефолтами, без файла и env. Удобно в тестах.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// applyVenueDefaults: OKX строже по лимитам — меньше батч и длиннее пауза.
func (c *Config) applyVenueDefaults() {
	batch, delay := 5, 500*time.Millisecond
	if c.Exchange.Venue == VenueOKX {
		batch, delay = 3, 1500*time.Millisecond
	}
	if c.Scanner.BatchSize <= 0 {
		c.Scanner.BatchSize = batch
	}
	if c.Scanner.BatchDelay <= 0 {
		c.Scanner.BatchDelay = delay
	}
}

// Redacted — YAML эффективного конфига без секретов, для стартового лога.
func (c Config) Redacted() string {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	c.Exchange.Bybit.APIKey = mask(c.Exchange.Bybit.APIKey)
	c.Exchange.Bybit.APISecret = mask(c.Exchange.Bybit.APISecret)
	c.Exchange.OKX.APIKey = mask(c.Exchange.OKX.APIKey)
	c.Exchange.OKX.APISecret = mask(c.Exchange.OKX.APISecret)
	c.Exchange.OKX.Passphrase = mask(c.Exchange.OKX.Passphrase)
	c.Notify.FeishuWebhook = mask(c.Notify.FeishuWebhook)
	c.Notify.TelegramToken = mask(c.Notify.TelegramToken)

	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return string(out)
}

package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`

	Providers ProvidersConfig `mapstructure:"providers"`
	Spot      SpotConfig      `mapstructure:"spot"`
	Profiler  ProfilerConfig  `mapstructure:"profiler"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Movers    MoversConfig    `mapstructure:"movers"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

type PipelineConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	ProfileBatch int           `mapstructure:"profile_batch"`
	Retention    time.Duration `mapstructure:"retention"`
}

type ProvidersConfig struct {
	Polymarket PolymarketConfig `mapstructure:"polymarket"`
	Kalshi     KalshiConfig     `mapstructure:"kalshi"`
	Opinion    OpinionConfig    `mapstructure:"opinion"`
}

type PolymarketConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	GammaBaseURL    string        `mapstructure:"gamma_base_url"`
	ClobBaseURL     string        `mapstructure:"clob_base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MarketLimit     int           `mapstructure:"market_limit"`
	BookConcurrency int           `mapstructure:"book_concurrency"`
	BookDepthLevels int           `mapstructure:"book_depth_levels"`
}

type KalshiConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MarketLimit int           `mapstructure:"market_limit"`
}

type OpinionConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PageSize    int           `mapstructure:"page_size"`
	MaxRPS      float64       `mapstructure:"max_rps"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RetryBase   time.Duration `mapstructure:"retry_base"`
	MarketLimit int           `mapstructure:"market_limit"`
}

type SpotConfig struct {
	Endpoint  string        `mapstructure:"endpoint"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Symbols   []string      `mapstructure:"symbols"`
	Stream    bool          `mapstructure:"stream"`
	StreamURL string        `mapstructure:"stream_url"`
}

type ProfilerConfig struct {
	ModelPath      string        `mapstructure:"model_path"`
	ReloadInterval time.Duration `mapstructure:"reload_interval"`
}

type AlertsConfig struct {
	MinLiquidityUSD float64       `mapstructure:"min_liquidity_usd"`
	MaxSpreadPP     float64       `mapstructure:"max_spread_pp"`
	Cooldown        time.Duration `mapstructure:"cooldown"`
	ScanCap         int           `mapstructure:"scan_cap"`
}

type TelegramConfig struct {
	Mode     string        `mapstructure:"mode"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	UserAPI  string        `mapstructure:"user_api"`
	UserKey  string        `mapstructure:"user_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type MoversConfig struct {
	DefaultMinLiquidity float64 `mapstructure:"default_min_liquidity"`
	DefaultMaxSpread    float64 `mapstructure:"default_max_spread"`
}

// Load reads configuration from the YAML file at path, with MV_* environment
// variables taking precedence. When envOnly is true the file is skipped
// entirely and only defaults plus environment apply.
func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if !envOnly && path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")

	v.SetDefault("server.http_addr", ":8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)

	v.SetDefault("db.max_open_conns", 12)
	v.SetDefault("db.max_idle_conns", 4)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")

	v.SetDefault("pipeline.interval", "60s")
	v.SetDefault("pipeline.profile_batch", 600)
	v.SetDefault("pipeline.retention", "48h")

	v.SetDefault("providers.polymarket.enabled", true)
	v.SetDefault("providers.polymarket.gamma_base_url", "https://gamma-api.polymarket.com")
	v.SetDefault("providers.polymarket.clob_base_url", "https://clob.polymarket.com")
	v.SetDefault("providers.polymarket.timeout", "10s")
	v.SetDefault("providers.polymarket.market_limit", 500)
	v.SetDefault("providers.polymarket.book_concurrency", 16)
	v.SetDefault("providers.polymarket.book_depth_levels", 20)

	v.SetDefault("providers.kalshi.enabled", true)
	v.SetDefault("providers.kalshi.base_url", "https://api.elections.kalshi.com/trade-api/v2")
	v.SetDefault("providers.kalshi.timeout", "10s")
	v.SetDefault("providers.kalshi.market_limit", 1000)

	v.SetDefault("providers.opinion.enabled", false)
	v.SetDefault("providers.opinion.base_url", "")
	v.SetDefault("providers.opinion.api_key", "")
	v.SetDefault("providers.opinion.timeout", "10s")
	v.SetDefault("providers.opinion.page_size", 100)
	v.SetDefault("providers.opinion.max_rps", 14)
	v.SetDefault("providers.opinion.max_retries", 4)
	v.SetDefault("providers.opinion.retry_base", "500ms")
	v.SetDefault("providers.opinion.market_limit", 2000)

	v.SetDefault("spot.endpoint", "https://api.binance.com/api/v3/ticker/price")
	v.SetDefault("spot.timeout", "10s")
	v.SetDefault("spot.symbols", []string{"BTCUSDT", "ETHUSDT"})
	v.SetDefault("spot.stream", false)
	v.SetDefault("spot.stream_url", "wss://stream.binance.com:9443/ws")

	v.SetDefault("profiler.model_path", "data/anchor_model.json")
	v.SetDefault("profiler.reload_interval", "2m")

	v.SetDefault("alerts.min_liquidity_usd", 5000)
	v.SetDefault("alerts.max_spread_pp", 15)
	v.SetDefault("alerts.cooldown", "30m")
	v.SetDefault("alerts.scan_cap", 500)

	v.SetDefault("telegram.mode", "bot")
	v.SetDefault("telegram.timeout", "10s")

	v.SetDefault("movers.default_min_liquidity", 5000)
	v.SetDefault("movers.default_max_spread", 15)
}

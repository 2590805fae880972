package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"spot-engine/internal/domain"
	"spot-engine/internal/infrastructure/binance"
	"spot-engine/internal/infrastructure/indicators"
	"spot-engine/internal/usecase"
)

const (
	ModePaper   = "paper"
	ModeTestnet = "testnet"
	ModeLive    = "live"
)

type Config struct {
	Mode      string   `mapstructure:"mode" validate:"oneof=paper testnet live"`
	Symbols   []string `mapstructure:"symbols" validate:"min=1,dive,required,uppercase"`
	LogLevel  string   `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	LogFormat string   `mapstructure:"log_format" validate:"oneof=console json"`

	Server        ServerConfig                 `mapstructure:"server"`
	Engine        EngineSettings               `mapstructure:"engine"`
	Strategy      domain.ParameterSet          `mapstructure:"strategy"`
	Indicators    indicators.Periods           `mapstructure:"indicators"`
	Risk          domain.RiskConfig            `mapstructure:"risk"`
	Optimization  OptimizationConfig           `mapstructure:"optimization"`
	Validation    usecase.ValidationThresholds `mapstructure:"validation"`
	Binance       BinanceConfig                `mapstructure:"binance"`
	Database      DatabaseConfig               `mapstructure:"database"`
	Notifications NotificationConfig           `mapstructure:"notifications"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr" validate:"required"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	StatusPush      time.Duration `mapstructure:"status_push" validate:"gt=0"`
}

type EngineSettings struct {
	Interval          string        `mapstructure:"interval" validate:"required"`
	CycleInterval     time.Duration `mapstructure:"cycle_interval" validate:"gt=0"`
	CallTimeout       time.Duration `mapstructure:"call_timeout" validate:"gt=0"`
	CandleLimit       int           `mapstructure:"candle_limit" validate:"gte=50,lte=1000"`
	BacktestCandles   int           `mapstructure:"backtest_candles" validate:"gte=100,lte=1000"`
	MaxPositions      int           `mapstructure:"max_positions" validate:"gte=0"`
	Cooldown          time.Duration `mapstructure:"cooldown" validate:"gte=0"`
	MaxEntrySpreadPct float64       `mapstructure:"max_entry_spread_pct" validate:"gt=0"`
	AvoidHours        []string      `mapstructure:"avoid_hours"`
	CloseOnShutdown   bool          `mapstructure:"close_on_shutdown"`
	OptimizeEvery     time.Duration `mapstructure:"optimize_every" validate:"gte=0"`
}

type OptimizationConfig struct {
	Workers           int                  `mapstructure:"workers" validate:"gte=0"`
	MinImprovementPct float64              `mapstructure:"min_improvement_pct" validate:"gte=0"`
	Grid              map[string][]float64 `mapstructure:"grid"`
}

type BinanceConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	APISecret         string        `mapstructure:"api_secret"`
	BaseURL           string        `mapstructure:"base_url" validate:"omitempty,url"`
	StreamURL         string        `mapstructure:"stream_url" validate:"omitempty,url"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" validate:"gte=0"`
	OrdersPerMinute   int           `mapstructure:"orders_per_minute" validate:"gte=0"`
	MaxReconnects     int           `mapstructure:"max_reconnects" validate:"gte=0"`
	StaleAfter        time.Duration `mapstructure:"stale_after" validate:"gt=0"`
	PaperFeePct       float64       `mapstructure:"paper_fee_pct" validate:"gte=0"`
}

type DatabaseConfig struct {
	URL     string `mapstructure:"url"`
	SSLMode string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
}

type NotificationConfig struct {
	TelegramToken           string `mapstructure:"telegram_token"`
	TelegramChatID          int64  `mapstructure:"telegram_chat_id"`
	FirebaseCredentialsPath string `mapstructure:"firebase_credentials_path"`
	FirebaseCredentialsJSON string `mapstructure:"firebase_credentials_json"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", ModePaper)
	v.SetDefault("symbols", []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"})
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.grpc_addr", ":9090")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.status_push", 2*time.Second)

	v.SetDefault("engine.interval", "5m")
	v.SetDefault("engine.cycle_interval", 10*time.Second)
	v.SetDefault("engine.call_timeout", 10*time.Second)
	v.SetDefault("engine.candle_limit", 100)
	v.SetDefault("engine.backtest_candles", 1000)
	v.SetDefault("engine.max_positions", 2)
	v.SetDefault("engine.cooldown", 300*time.Second)
	v.SetDefault("engine.max_entry_spread_pct", 0.1)
	v.SetDefault("engine.avoid_hours", []string{"00:00-02:00", "12:00-13:00"})
	v.SetDefault("engine.close_on_shutdown", false)
	v.SetDefault("engine.optimize_every", 7*24*time.Hour)

	v.SetDefault("strategy.rsi_oversold", 32.0)
	v.SetDefault("strategy.rsi_overbought", 68.0)
	v.SetDefault("strategy.stop_loss_pct", 1.5)
	v.SetDefault("strategy.take_profit_pct", 2.5)
	v.SetDefault("strategy.min_volume_ratio", 0.5)
	v.SetDefault("strategy.min_bb_width", 0.8)
	v.SetDefault("strategy.bb_squeeze_ceiling", 5.0)

	p := indicators.DefaultPeriods()
	v.SetDefault("indicators.rsi", p.RSI)
	v.SetDefault("indicators.bollinger", p.Bollinger)
	v.SetDefault("indicators.bb_std_dev", p.BBStdDev)
	v.SetDefault("indicators.ema", p.EMA)
	v.SetDefault("indicators.volume", p.Volume)
	v.SetDefault("indicators.momentum", p.Momentum)
	v.SetDefault("indicators.volatility", p.Volatility)
	v.SetDefault("indicators.squeeze_width", p.SqueezeWidth)

	v.SetDefault("risk.initial_balance", 200.0)
	v.SetDefault("risk.capital_usage_pct", 75.0)
	v.SetDefault("risk.position_size_pct", 15.0)
	v.SetDefault("risk.min_position_size", 15.0)
	v.SetDefault("risk.max_position_size", 40.0)
	v.SetDefault("risk.min_order_size", 10.0)
	v.SetDefault("risk.daily_loss_limit", 15.0)
	v.SetDefault("risk.max_consecutive_losses", 3)
	v.SetDefault("risk.max_spread_pct", 0.3)
	v.SetDefault("risk.total_cost_pct", 0.25)

	v.SetDefault("optimization.workers", 0)
	v.SetDefault("optimization.min_improvement_pct", 5.0)

	v.SetDefault("validation.min_trades", 50)
	v.SetDefault("validation.min_win_rate", 0.55)
	v.SetDefault("validation.min_profit_factor", 1.2)
	v.SetDefault("validation.max_drawdown", 0.15)

	v.SetDefault("binance.api_key", "")
	v.SetDefault("binance.api_secret", "")
	v.SetDefault("binance.base_url", "")
	v.SetDefault("binance.stream_url", "")
	v.SetDefault("binance.requests_per_minute", 1200)
	v.SetDefault("binance.orders_per_minute", 50)
	v.SetDefault("binance.max_reconnects", 5)
	v.SetDefault("binance.stale_after", 5*time.Second)
	v.SetDefault("binance.paper_fee_pct", 0.1)

	v.SetDefault("database.url", "")
	v.SetDefault("database.ssl_mode", "require")

	v.SetDefault("notifications.telegram_token", "")
	v.SetDefault("notifications.telegram_chat_id", 0)
	v.SetDefault("notifications.firebase_credentials_path", "")
	v.SetDefault("notifications.firebase_credentials_json", "")
}

// Load reads an optional YAML/JSON file, then SPOT_* environment variables
// (e.g. SPOT_RISK_DAILY_LOSS_LIMIT), then validates.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SPOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unprefixed names kept for existing deployments.
	_ = v.BindEnv("database.url", "SPOT_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("notifications.telegram_token", "SPOT_NOTIFICATIONS_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("notifications.telegram_chat_id", "SPOT_NOTIFICATIONS_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID")
	_ = v.BindEnv("notifications.firebase_credentials_path", "SPOT_NOTIFICATIONS_FIREBASE_CREDENTIALS_PATH", "FIREBASE_CREDENTIALS_PATH")
	_ = v.BindEnv("notifications.firebase_credentials_json", "SPOT_NOTIFICATIONS_FIREBASE_CREDENTIALS_JSON", "FIREBASE_CREDENTIALS_JSON")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDerivedDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultGrid is used when no optimization.grid is configured. It is applied
// after decoding so a configured grid replaces it instead of merging axes.
func DefaultGrid() map[string][]float64 {
	return map[string][]float64{
		"rsi_oversold":    {30, 32, 35},
		"rsi_overbought":  {65, 68, 70},
		"stop_loss_pct":   {1.25, 1.5, 1.75},
		"take_profit_pct": {2.0, 2.5, 3.0},
	}
}

// applyDerivedDefaults fills endpoints and the grid when left empty. Paper
// mode reads public market data from the real venue.
func (c *Config) applyDerivedDefaults() {
	if len(c.Optimization.Grid) == 0 {
		c.Optimization.Grid = DefaultGrid()
	}
	for i, s := range c.Symbols {
		c.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	if c.Binance.BaseURL == "" {
		c.Binance.BaseURL = binance.SpotBaseURL
		if c.Mode == ModeTestnet {
			c.Binance.BaseURL = binance.TestnetBaseURL
		}
	}
	if c.Binance.StreamURL == "" {
		c.Binance.StreamURL = binance.SpotStreamURL
		if c.Mode == ModeTestnet {
			c.Binance.StreamURL = binance.TestnetStreamURL
		}
	}
}

var validate = validator.New()

// Validate checks field ranges and the cross-field rules tags cannot express.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var errs []error
	if c.Mode != ModePaper && (c.Binance.APIKey == "" || c.Binance.APISecret == "") {
		errs = append(errs, fmt.Errorf("mode %s requires binance.api_key and binance.api_secret", c.Mode))
	}
	if need := indicators.NewEngine(c.Indicators).MinCandles(); c.Engine.CandleLimit < need {
		errs = append(errs, fmt.Errorf("engine.candle_limit %d is below the indicator warm-up of %d", c.Engine.CandleLimit, need))
	}
	if _, err := binance.IntervalDuration(c.Engine.Interval); err != nil {
		errs = append(errs, fmt.Errorf("engine.interval: %w", err))
	}
	if _, err := usecase.ParseTimeWindows(c.Engine.AvoidHours); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Grid().Candidates(c.Strategy); err != nil {
		errs = append(errs, fmt.Errorf("optimization.grid: %w", err))
	}
	if c.Notifications.TelegramToken != "" && c.Notifications.TelegramChatID == 0 {
		errs = append(errs, errors.New("notifications.telegram_chat_id is required with a telegram token"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Grid is the optimization grid with axes sorted by field name.
func (c Config) Grid() domain.ParameterGrid {
	return domain.GridFromMap(c.Optimization.Grid)
}

// DefaultParameters implements domain.ParameterSource.
func (c Config) DefaultParameters() domain.ParameterSet {
	return c.Strategy
}

// OptimizationGrid implements domain.ParameterSource.
func (c Config) OptimizationGrid() domain.ParameterGrid {
	return c.Grid()
}

var _ domain.ParameterSource = Config{}

// EngineConfig maps the validated settings onto the live engine.
func (c Config) EngineConfig() (usecase.EngineConfig, error) {
	windows, err := usecase.ParseTimeWindows(c.Engine.AvoidHours)
	if err != nil {
		return usecase.EngineConfig{}, err
	}
	return usecase.EngineConfig{
		Symbols:           append([]string(nil), c.Symbols...),
		Mode:              c.Mode,
		CycleInterval:     c.Engine.CycleInterval,
		CallTimeout:       c.Engine.CallTimeout,
		CandleLimit:       c.Engine.CandleLimit,
		BacktestCandles:   c.Engine.BacktestCandles,
		MaxPositions:      c.Engine.MaxPositions,
		Cooldown:          c.Engine.Cooldown,
		MaxEntrySpreadPct: c.Engine.MaxEntrySpreadPct,
		AvoidWindows:      windows,
		CloseOnShutdown:   c.Engine.CloseOnShutdown,
		MinImprovementPct: c.Optimization.MinImprovementPct,
		OptimizerWorkers:  c.Optimization.Workers,
		Validation:        c.Validation,
		Risk:              c.Risk,
	}, nil
}

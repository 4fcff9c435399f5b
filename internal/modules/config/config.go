package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	apiKeyENV         = "OKX_API_KEY"
	apiSecretENV      = "OKX_API_SECRET"
	passphraseENV     = "OKX_PASSPHRASE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
)

// Credentials — ключи OKX. Живут только здесь и в клиенте, в логи не попадают.
type Credentials struct {
	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
	Passphrase string `yaml:"passphrase"`
}

// Config ...
type Config struct {
	OKX Credentials `yaml:"okx"`

	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB      string `yaml:"db_dsn"`
	Service struct {
		Host       string `yaml:"host"`
		AdminPort  int    `yaml:"admin_port"`
		JaegerHost string `yaml:"jaeger_host"`
		JaegerPort int    `yaml:"jaeger_port"`
	} `yaml:"service"`

	// Кандидаты на вход. Символы без истории свечей отфильтруются на старте.
	Symbols []string `yaml:"symbols"`

	Trading struct {
		// Порог входа по композитному скору [-1..1]
		EntryThreshold float64 `yaml:"entry_threshold"`
		// Доли, не проценты: 0.015 => +1.5%
		ProfitTarget float64 `yaml:"profit_target"`
		StopLoss     float64 `yaml:"stop_loss"` // отрицательная, напр. -0.02
		// Максимальное удержание позиции (MAX_HOLD, go-duration строка)
		MaxHold time.Duration `yaml:"-"`

		// Сколько USDT вкладываем в один вход
		PerTradeUSDT float64 `yaml:"per_trade_usdt"`
		// Буфер баланса, который не трогаем
		ReserveUSDT float64 `yaml:"reserve_usdt"`

		PollInterval     time.Duration `yaml:"-"` // POLL_INTERVAL
		MaxOpenPositions int           `yaml:"max_open_positions"`
		// 0 или 1 — последовательные входы, >1 — пул воркеров
		ParallelEntries int `yaml:"parallel_entries"`
	} `yaml:"trading"`

	Feed struct {
		TickBuffer    int           `yaml:"tick_buffer"`
		TradeBuffer   int           `yaml:"trade_buffer"`
		SpikeFactor   float64       `yaml:"spike_factor"`
		FlowWindow    time.Duration `yaml:"-"` // FEED_FLOW_WINDOW
		IdleThreshold time.Duration `yaml:"-"` // FEED_IDLE_THRESHOLD
	} `yaml:"feed"`
}

func NewConfig() (*Config, error) {

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{}

	config.Trading.EntryThreshold = floatFromEnv("ENTRY_THRESHOLD", 0.5)
	config.Trading.ProfitTarget = floatFromEnv("PROFIT_TARGET", 0.015)
	config.Trading.StopLoss = floatFromEnv("STOP_LOSS", -0.02)
	config.Trading.MaxHold = durationFromEnv("MAX_HOLD", "3m")
	config.Trading.PerTradeUSDT = floatFromEnv("PER_TRADE_USDT", 50)
	config.Trading.ReserveUSDT = floatFromEnv("RESERVE_USDT", 10)
	config.Trading.PollInterval = durationFromEnv("POLL_INTERVAL", "15s")
	config.Trading.MaxOpenPositions = intFromEnv("MAX_OPEN_POSITIONS", 3)
	config.Trading.ParallelEntries = intFromEnv("PARALLEL_ENTRIES", 0)

	config.Feed.TickBuffer = intFromEnv("FEED_TICK_BUFFER", 120)
	config.Feed.TradeBuffer = intFromEnv("FEED_TRADE_BUFFER", 200)
	config.Feed.SpikeFactor = floatFromEnv("FEED_SPIKE_FACTOR", 2.5)
	config.Feed.FlowWindow = durationFromEnv("FEED_FLOW_WINDOW", "60s")
	config.Feed.IdleThreshold = durationFromEnv("FEED_IDLE_THRESHOLD", "25s")

	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	// секреты из ENV всегда перекрывают файл
	if v := os.Getenv(apiKeyENV); v != "" {
		config.OKX.APIKey = v
	}
	if v := os.Getenv(apiSecretENV); v != "" {
		config.OKX.APISecret = v
	}
	if v := os.Getenv(passphraseENV); v != "" {
		config.OKX.Passphrase = v
	}

	token := os.Getenv(tokenTelegramENV)
	if token != "" {
		config.Telegram.Token = token
	}

	dsn := os.Getenv(databaseDSN)
	if dsn != "" {
		config.DB = dsn
	}

	// единственное фатальное условие на старте
	if config.OKX.APIKey == "" || config.OKX.APISecret == "" || config.OKX.Passphrase == "" {
		return nil, fmt.Errorf("okx credentials are required (env %s/%s/%s or config)",
			apiKeyENV, apiSecretENV, passphraseENV)
	}
	if len(config.Symbols) == 0 {
		return nil, fmt.Errorf("symbols list is empty")
	}

	return &config, nil
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}

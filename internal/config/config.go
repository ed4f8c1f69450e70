package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultShipAfter    = 5 * time.Second
	defaultDeliverAfter = 10 * time.Second
)

type Config struct {
	ListenAddr         string
	LogLevel           string
	StoreMode          string
	DatabaseURL        string
	MySQLDSN           string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisPrefix        string
	SQLitePath         string
	StoreEncryptionKey string
	JWTSecret          string
	SessionTokenTTL    time.Duration
	ShipAfter          time.Duration
	DeliverAfter       time.Duration
	DeliveryEstimate   time.Duration
	PaymentDelay       time.Duration
	TaxBasisPoints     int64
	CatalogPath        string
	LoginRatePerMin    int
	NotificationLimit  int
	WebhookURL         string
	WebhookTimeout     time.Duration
	WebhookMaxRetries  int
	WebhookRetryBase   time.Duration
	WebhookRetryMax    time.Duration
	TelegramBotToken   string
	TelegramChatID     string
	TelegramAPIBaseURL string
}

func Load() Config {
	cfg := Config{
		ListenAddr:         getEnv("LISTEN_ADDR", ":18080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		StoreMode:          strings.ToLower(getEnv("STORE_MODE", "sqlite")),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		MySQLDSN:           getEnv("MYSQL_DSN", ""),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getInt("REDIS_DB", 0),
		RedisPrefix:        getEnv("REDIS_PREFIX", "kynara:"),
		SQLitePath:         getEnv("SQLITE_PATH", "kynara.db"),
		StoreEncryptionKey: getEnv("STORE_ENCRYPTION_KEY", ""),
		JWTSecret:          getEnv("JWT_SECRET", "change-this-secret"),
		SessionTokenTTL:    getDuration("SESSION_TOKEN_TTL", 24*time.Hour),
		ShipAfter:          getDuration("SHIP_AFTER", defaultShipAfter),
		DeliverAfter:       getDuration("DELIVER_AFTER", defaultDeliverAfter),
		DeliveryEstimate:   getDuration("DELIVERY_ESTIMATE", 7*24*time.Hour),
		PaymentDelay:       getDuration("PAYMENT_DELAY", 2*time.Second),
		TaxBasisPoints:     int64(getInt("TAX_BASIS_POINTS", 1000)),
		CatalogPath:        getEnv("CATALOG_PATH", ""),
		LoginRatePerMin:    getInt("LOGIN_RATE_PER_MIN", 20),
		NotificationLimit:  getInt("NOTIFICATION_LIMIT", 50),
		WebhookURL:         getEnv("WEBHOOK_URL", ""),
		WebhookTimeout:     getDuration("WEBHOOK_TIMEOUT", 5*time.Second),
		WebhookMaxRetries:  getInt("WEBHOOK_MAX_RETRIES", 3),
		WebhookRetryBase:   getDuration("WEBHOOK_RETRY_BASE", 500*time.Millisecond),
		WebhookRetryMax:    getDuration("WEBHOOK_RETRY_MAX", 5*time.Second),
		TelegramBotToken:   getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:     getEnv("TELEGRAM_CHAT_ID", ""),
		TelegramAPIBaseURL: getEnv("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),
	}
	cfg.normalize()
	return cfg
}

// normalize keeps the fulfillment timeline ordered and the numeric knobs sane.
func (c *Config) normalize() {
	if c.ShipAfter <= 0 || c.DeliverAfter <= c.ShipAfter {
		c.ShipAfter, c.DeliverAfter = defaultShipAfter, defaultDeliverAfter
	}
	if c.PaymentDelay < 0 {
		c.PaymentDelay = 0
	}
	if c.TaxBasisPoints < 0 {
		c.TaxBasisPoints = 0
	}
	if c.LoginRatePerMin <= 0 {
		c.LoginRatePerMin = 20
	}
	if c.WebhookMaxRetries < 0 {
		c.WebhookMaxRetries = 0
	}
}

func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return d
}

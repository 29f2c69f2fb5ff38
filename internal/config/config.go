// Package config загружает конфигурацию сервиса из переменных окружения
// и опционального .env файла.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config представляет структуру конфигурации для приложения.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
}

// AppConfig конфигурация HTTP сервера
type AppConfig struct {
	Port            string `mapstructure:"port"`
	Env             string `mapstructure:"env"`
	LogLevel        string `mapstructure:"log_level"`
	ReadTimeout     int    `mapstructure:"read_timeout"`
	WriteTimeout    int    `mapstructure:"write_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig конфигурация базы данных
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig конфигурация Redis
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig конфигурация Kafka
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

// StripeConfig конфигурация Stripe
type StripeConfig struct {
	APIKey        string `mapstructure:"api_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// AuthConfig конфигурация аутентификации
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// JobsConfig расписания и окна фоновых задач
type JobsConfig struct {
	// ExpiryCron расписание пакетного возврата по истекшим заказам
	ExpiryCron string `mapstructure:"expiry_cron"`
	// OrphanScanCron расписание сканера осиротевших платежей
	OrphanScanCron string `mapstructure:"orphan_scan_cron"`
	// OrderExpiryHours возраст неисполненного заказа до истечения
	OrderExpiryHours int `mapstructure:"order_expiry_hours"`
	// OrphanLookbackHours глубина сканирования платежей шлюза
	OrphanLookbackHours int `mapstructure:"orphan_lookback_hours"`
}

// GetDSN возвращает строку подключения к базе данных
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// OrderExpiry возвращает возраст истечения заказа как Duration
func (c *JobsConfig) OrderExpiry() time.Duration {
	return time.Duration(c.OrderExpiryHours) * time.Hour
}

// OrphanLookback возвращает глубину сканирования как Duration
func (c *JobsConfig) OrphanLookback() time.Duration {
	return time.Duration(c.OrphanLookbackHours) * time.Hour
}

// Load загружает конфигурацию: .env файл вне production, затем
// переменные окружения поверх значений по умолчанию.
func Load() (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		// .env не обязателен, в контейнере переменные приходят извне
		_ = godotenv.Load()
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if brokers := v.GetString("kafka.brokers"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.read_timeout", 15)
	v.SetDefault("app.write_timeout", 15)
	v.SetDefault("app.shutdown_timeout", 30)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "reconciliation_service")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", "localhost:9092")

	v.SetDefault("stripe.api_key", "")
	v.SetDefault("stripe.webhook_secret", "")

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("jobs.expiry_cron", "0 * * * *")
	v.SetDefault("jobs.orphan_scan_cron", "*/30 * * * *")
	v.SetDefault("jobs.order_expiry_hours", 336)
	v.SetDefault("jobs.orphan_lookback_hours", 48)
}

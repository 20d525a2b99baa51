package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Business BusinessConfig `mapstructure:"business"`
	Catalog  []CatalogEntry `mapstructure:"catalog"`
}

type ServerConfig struct {
	Port                int `mapstructure:"port"`
	ReadTimeoutSeconds  int `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int `mapstructure:"write_timeout_seconds"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | console
}

// StorageConfig 用户数据 KV 存储后端
type StorageConfig struct {
	Driver     string `mapstructure:"driver"` // redis | mysql
	MaxRetries int    `mapstructure:"max_retries"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	PaymentResult string `mapstructure:"payment_result"`
	WalletFunded  string `mapstructure:"wallet_funded"`
}

type AuthConfig struct {
	JWTSecret       string `mapstructure:"jwt_secret"`
	Issuer          string `mapstructure:"issuer"`
	Audience        string `mapstructure:"audience"`
	TokenTTLMinutes int    `mapstructure:"token_ttl_minutes"`
}

func (c AuthConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

type BusinessConfig struct {
	StartingBalance       int64 `mapstructure:"starting_balance"`
	SettlementDelayMillis int   `mapstructure:"settlement_delay_ms"`
	LockTTLSeconds        int   `mapstructure:"lock_ttl_seconds"`
	LockRetryMillis       int   `mapstructure:"lock_retry_interval_ms"`
	LockMaxRetries        int   `mapstructure:"lock_max_retries"`
	PendingTimeoutMinutes int   `mapstructure:"pending_timeout_minutes"`
	MaxRetryCount         int   `mapstructure:"max_retry_count"`
}

func (c BusinessConfig) SettlementDelay() time.Duration {
	return time.Duration(c.SettlementDelayMillis) * time.Millisecond
}

func (c BusinessConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func (c BusinessConfig) LockRetryInterval() time.Duration {
	return time.Duration(c.LockRetryMillis) * time.Millisecond
}

func (c BusinessConfig) PendingTimeout() time.Duration {
	return time.Duration(c.PendingTimeoutMinutes) * time.Minute
}

// CatalogEntry 可缴费业务及其服务商
// 套餐标签格式为 "<描述> - ₦<金额>"，由 pricing 包解析金额
type CatalogEntry struct {
	Service   string            `mapstructure:"service" json:"service"`
	Name      string            `mapstructure:"name" json:"name"`
	Providers []CatalogProvider `mapstructure:"providers" json:"providers"`
}

type CatalogProvider struct {
	Name     string   `mapstructure:"name" json:"name"`
	Packages []string `mapstructure:"packages" json:"packages,omitempty"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Port: 8080, ReadTimeoutSeconds: 10, WriteTimeoutSeconds: 15},
		Log:     LogConfig{Level: "info", Format: "json"},
		Storage: StorageConfig{Driver: "redis", MaxRetries: 10},
		Redis:   RedisConfig{Host: "127.0.0.1", Port: 6379},
		Kafka: KafkaConfig{
			Topic: KafkaTopicConfig{
				PaymentResult: "billpay.payment.result",
				WalletFunded:  "billpay.wallet.funded",
			},
		},
		Auth: AuthConfig{
			Issuer:          "billpay",
			Audience:        "authenticated",
			TokenTTLMinutes: 60,
		},
		Business: BusinessConfig{
			StartingBalance:       25430,
			SettlementDelayMillis: 2000,
			LockTTLSeconds:        30,
			LockRetryMillis:       100,
			LockMaxRetries:        30,
			PendingTimeoutMinutes: 30,
			MaxRetryCount:         5,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout_seconds", d.Server.ReadTimeoutSeconds)
	v.SetDefault("server.write_timeout_seconds", d.Server.WriteTimeoutSeconds)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.max_retries", d.Storage.MaxRetries)
	v.SetDefault("mysql.host", "")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "")
	v.SetDefault("mysql.password", "")
	v.SetDefault("mysql.database", "")
	v.SetDefault("redis.host", d.Redis.Host)
	v.SetDefault("redis.port", d.Redis.Port)
	v.SetDefault("redis.password", "")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic.payment_result", d.Kafka.Topic.PaymentResult)
	v.SetDefault("kafka.topic.wallet_funded", d.Kafka.Topic.WalletFunded)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", d.Auth.Issuer)
	v.SetDefault("auth.audience", d.Auth.Audience)
	v.SetDefault("auth.token_ttl_minutes", d.Auth.TokenTTLMinutes)
	v.SetDefault("business.starting_balance", d.Business.StartingBalance)
	v.SetDefault("business.settlement_delay_ms", d.Business.SettlementDelayMillis)
	v.SetDefault("business.lock_ttl_seconds", d.Business.LockTTLSeconds)
	v.SetDefault("business.lock_retry_interval_ms", d.Business.LockRetryMillis)
	v.SetDefault("business.lock_max_retries", d.Business.LockMaxRetries)
	v.SetDefault("business.pending_timeout_minutes", d.Business.PendingTimeoutMinutes)
	v.SetDefault("business.max_retry_count", d.Business.MaxRetryCount)
}

// LoadConfig 加载配置文件
//
// yaml 中的配置可以被 BILLPAY_* 环境变量覆盖（如 BILLPAY_AUTH_JWT_SECRET），
// 工作目录下存在 .env 时会先加载
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("billpay")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验启动必需的配置项
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "redis", "mysql":
	default:
		return fmt.Errorf("不支持的存储驱动: %q", c.Storage.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret 不能为空")
	}
	if c.Business.StartingBalance < 0 {
		return fmt.Errorf("business.starting_balance 不能为负数")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("启用 kafka 时 kafka.brokers 不能为空")
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Billing  BillingConfig  `mapstructure:"billing"`
	Provider ProviderConfig `mapstructure:"provider"`
	Recon    ReconConfig    `mapstructure:"recon"`
	CORS     CORSConfig     `mapstructure:"cors"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// StripeConfig Stripe 密钥与回跳地址
type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	SuccessURL    string `mapstructure:"success_url"`
	CancelURL     string `mapstructure:"cancel_url"`
}

// BillingConfig 订阅套餐与积分包定义（price_id 为权威标识）
type BillingConfig struct {
	Plans       map[string]PlanConfig       `mapstructure:"plans"`
	CreditPacks map[string]CreditPackConfig `mapstructure:"credit_packs"`
}

type PlanConfig struct {
	PriceID        string  `mapstructure:"price_id"`
	MonthlyCredits int64   `mapstructure:"monthly_credits"`
	DisplayPrice   float64 `mapstructure:"display_price"`
}

type CreditPackConfig struct {
	PriceID string `mapstructure:"price_id"`
	Credits int64  `mapstructure:"credits"`
}

// ProviderConfig 生成服务商（KIE 异步任务队列）配置
type ProviderConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	APIKey           string `mapstructure:"api_key"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MusicCallbackURL string `mapstructure:"music_callback_url"`
	ResultTTLHours   int    `mapstructure:"result_ttl_hours"`
}

// ReconConfig 退款补偿巡检配置
type ReconConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
	MaxAttempts     int `mapstructure:"max_attempts"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// PlanByPriceID 按 Stripe price id 反查套餐，未命中返回空名和 nil
func (c *BillingConfig) PlanByPriceID(priceID string) (string, *PlanConfig) {
	if priceID == "" {
		return "", nil
	}
	for name, plan := range c.Plans {
		if plan.PriceID == priceID {
			p := plan
			return name, &p
		}
	}
	return "", nil
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	// 检查 config.local.yaml 是否存在
	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

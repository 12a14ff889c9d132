package config

import (
	"fmt"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	JWTSecret   string `env:"JWT_SECRET,required"`
	JWTExpiryH  int    `env:"JWT_EXPIRY_H" envDefault:"24"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	GatewayBaseURL    string `env:"GATEWAY_BASE_URL" envDefault:"https://painel.appcnpay.com/api/v1"`
	GatewayCallback   string `env:"GATEWAY_CALLBACK_URL" envDefault:"http://app:8080/api/v1/webhooks"`
	PublicIPLookupURL string `env:"PUBLIC_IP_LOOKUP_URL" envDefault:"https://api.ipify.org"`

	SettingsTTLSeconds int `env:"SETTINGS_TTL_S" envDefault:"30"`
	PostbackIntervalS  int `env:"POSTBACK_INTERVAL_S" envDefault:"5"`
	PostbackBatchSize  int `env:"POSTBACK_BATCH_SIZE" envDefault:"10"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	// Local development convenience; a missing .env is fine.
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

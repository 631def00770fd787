package config

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/fitpulse/service-billing/internal/platform/config"
)

// GatewayConfig holds simulated payment gateway settings.
type GatewayConfig struct {
	// DeclineAbove makes the simulated issuer decline larger charges; zero disables declines.
	DeclineAbove decimal.Decimal
}

// RevenueConfig holds revenue aggregation settings.
type RevenueConfig struct {
	ServerSideSummary bool
	Location          *time.Location
	BreakerFailures   uint32
	BreakerTimeout    time.Duration
}

// ServiceConfig holds all configuration for the billing service.
type ServiceConfig struct {
	Port                 string
	AppEnv               string
	DBConfig             config.DatabaseConfig
	JWTConfig            config.JWTConfig
	KafkaConfig          config.KafkaConfig
	GatewayConfig        GatewayConfig
	RevenueConfig        RevenueConfig
	UserSearchServerSide bool
}

// Load reads configuration from environment variables and returns a ServiceConfig.
func Load() (*ServiceConfig, error) {
	v, err := config.Load("billing")
	if err != nil {
		return nil, err
	}

	v.SetDefault("GATEWAY_DECLINE_ABOVE", "0")
	v.SetDefault("REVENUE_SERVER_SIDE_SUMMARY", false)
	v.SetDefault("REVENUE_TIMEZONE", "UTC")
	v.SetDefault("REVENUE_BREAKER_FAILURES", 5)
	v.SetDefault("REVENUE_BREAKER_TIMEOUT", "30s")
	v.SetDefault("USER_SEARCH_SERVER_SIDE", true)

	gateway, err := loadGatewayConfig(v)
	if err != nil {
		return nil, err
	}
	revenue, err := loadRevenueConfig(v)
	if err != nil {
		return nil, err
	}

	return &ServiceConfig{
		Port:                 config.GetServicePort(v, "SERVICE_PORT"),
		AppEnv:               config.GetAppEnv(v),
		DBConfig:             config.LoadDatabaseConfig(v, "DB_NAME"),
		JWTConfig:            config.LoadJWTConfig(v),
		KafkaConfig:          config.LoadKafkaConfig(v),
		GatewayConfig:        gateway,
		RevenueConfig:        revenue,
		UserSearchServerSide: v.GetBool("USER_SEARCH_SERVER_SIDE"),
	}, nil
}

// loadGatewayConfig extracts gateway configuration from Viper.
func loadGatewayConfig(v *viper.Viper) (GatewayConfig, error) {
	limit, err := decimal.NewFromString(v.GetString("GATEWAY_DECLINE_ABOVE"))
	if err != nil {
		return GatewayConfig{}, err
	}
	return GatewayConfig{DeclineAbove: limit}, nil
}

// loadRevenueConfig extracts revenue configuration from Viper.
func loadRevenueConfig(v *viper.Viper) (RevenueConfig, error) {
	loc, err := time.LoadLocation(v.GetString("REVENUE_TIMEZONE"))
	if err != nil {
		return RevenueConfig{}, err
	}
	return RevenueConfig{
		ServerSideSummary: v.GetBool("REVENUE_SERVER_SIDE_SUMMARY"),
		Location:          loc,
		BreakerFailures:   v.GetUint32("REVENUE_BREAKER_FAILURES"),
		BreakerTimeout:    v.GetDuration("REVENUE_BREAKER_TIMEOUT"),
	}, nil
}

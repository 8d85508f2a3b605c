package config

import (
	"os"
	"strconv"
)

type ServiceConfig struct {
	Port        string
	PostgresCfg PostgresConfig
	RedisCfg    RedisConfig
	RabbitMQCfg RabbitMQConfig
	OracleCfg   OracleConfig
	EngineCfg   EngineConfig
}

type PostgresConfig struct {
	DBname   string
	Username string
	Password string
	Host     string
	Port     string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type RabbitMQConfig struct {
	Username string
	Password string
	Host     string
	Port     string
}

type OracleConfig struct {
	BaseURL      string
	APIKey       string
	TimeoutSecs  int
	CacheTTLSecs int
}

// EngineConfig carries the accounting parameters, all on a basis-point
// scale (10000 = 100%).
type EngineConfig struct {
	MaxUtilizationBps     int64
	PlatformFeeBps        int64
	MinReserveBps         int64
	TargetReserveBps      int64
	RebalanceThresholdBps int64
	CancelRefundBps       int64
	MaxActivePerOwner     int
	MaxTrailingClaims     int
}

func New() *ServiceConfig {
	return &ServiceConfig{
		Port: getEnvOrDefault("PORT", "8086"),
		PostgresCfg: PostgresConfig{
			DBname:   getEnvOrDefault("POSTGRES_DB", "underwriting"),
			Username: getEnvOrDefault("POSTGRES_USER", "postgres"),
			Password: getEnvOrDefault("POSTGRES_PASSWORD", "postgres"),
			Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			Port:     getEnvOrDefault("POSTGRES_PORT", "5432"),
		},
		RedisCfg: RedisConfig{
			Host:     getEnvOrDefault("REDIS_HOST", "localhost"),
			Port:     getEnvOrDefault("REDIS_PORT", "6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       0,
		},
		RabbitMQCfg: RabbitMQConfig{
			Username: getEnvOrDefault("RABBITMQ_USER", "admin"),
			Password: getEnvOrDefault("RABBITMQ_PWD", "admin"),
			Host:     getEnvOrDefault("RABBITMQ_HOST", "localhost"),
			Port:     getEnvOrDefault("RABBITMQ_PORT", "5672"),
		},
		OracleCfg: OracleConfig{
			BaseURL:      getEnvOrDefault("DAMAGE_ORACLE_URL", "http://localhost:8090"),
			APIKey:       getEnvOrDefault("DAMAGE_ORACLE_KEY", ""),
			TimeoutSecs:  getEnvIntOrDefault("DAMAGE_ORACLE_TIMEOUT", 10),
			CacheTTLSecs: getEnvIntOrDefault("DAMAGE_ORACLE_CACHE_TTL", 300),
		},
		EngineCfg: EngineConfig{
			MaxUtilizationBps:     getEnvInt64OrDefault("MAX_UTILIZATION_BPS", 8000),
			PlatformFeeBps:        getEnvInt64OrDefault("PLATFORM_FEE_BPS", 1000),
			MinReserveBps:         getEnvInt64OrDefault("MIN_RESERVE_BPS", 1000),
			TargetReserveBps:      getEnvInt64OrDefault("TARGET_RESERVE_BPS", 2000),
			RebalanceThresholdBps: getEnvInt64OrDefault("REBALANCE_THRESHOLD_BPS", 500),
			CancelRefundBps:       getEnvInt64OrDefault("CANCEL_REFUND_BPS", 8000),
			MaxActivePerOwner:     getEnvIntOrDefault("MAX_ACTIVE_PER_OWNER", 5),
			MaxTrailingClaims:     getEnvIntOrDefault("MAX_TRAILING_CLAIMS", 3),
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

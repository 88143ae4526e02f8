package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Token    TokenConfig
	Webhook  WebhookConfig
	Fees     FeesConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
}

type TokenConfig struct {
	// RoomSecret signs room access tokens, SessionSecret verifies guide
	// session bearer tokens.
	RoomSecret    string
	SessionSecret string
	RoomTokenTTL  time.Duration
}

type WebhookConfig struct {
	// Secret is the shared HMAC key for provider webhook signatures.
	Secret string
}

// FeesConfig overrides the default usd processor fee structure. Zero values
// leave the defaults untouched.
type FeesConfig struct {
	USDPercentageFee float64
	USDFixedFeeCents int
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverHost := os.Getenv("SERVER_HOST")
	if serverHost == "" {
		serverHost = "localhost"
	}

	serverPortStr := os.Getenv("SERVER_PORT")
	if serverPortStr == "" {
		serverPortStr = "8080"
	}

	serverPort, err := strconv.Atoi(serverPortStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid SERVER_PORT: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host: serverHost,
		Port: serverPort,
	}

	postgresHost := os.Getenv("POSTGRES_HOST")
	if postgresHost == "" {
		postgresHost = "localhost"
	}

	postgresPortStr := os.Getenv("POSTGRES_PORT")
	if postgresPortStr == "" {
		postgresPortStr = "5432"
	}

	postgresPort, err := strconv.Atoi(postgresPortStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid POSTGRES_PORT: %w", op, err)
	}

	postgresUser := os.Getenv("POSTGRES_USER")
	if postgresUser == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
	}

	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	if postgresPassword == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
	}

	postgresDB := os.Getenv("POSTGRES_DB")
	if postgresDB == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
	}

	postgresSSLMode := os.Getenv("POSTGRES_SSLMODE")
	if postgresSSLMode == "" {
		postgresSSLMode = "disable"
	}

	postgresCfg := PostgresConfig{
		User:     postgresUser,
		Password: postgresPassword,
		Name:     postgresDB,
		Host:     postgresHost,
		Port:     postgresPort,
		SSLMode:  postgresSSLMode,
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	redisCfg := RedisConfig{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	}

	roomSecret := os.Getenv("ROOM_TOKEN_SECRET")
	if roomSecret == "" {
		return nil, fmt.Errorf("%s: missing ROOM_TOKEN_SECRET", op)
	}

	sessionSecret := os.Getenv("SESSION_TOKEN_SECRET")
	if sessionSecret == "" {
		return nil, fmt.Errorf("%s: missing SESSION_TOKEN_SECRET", op)
	}

	tokenTTL := 6 * time.Hour
	if s := os.Getenv("ROOM_TOKEN_TTL"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid ROOM_TOKEN_TTL: %w", op, err)
		}
		tokenTTL = d
	}

	tokenCfg := TokenConfig{
		RoomSecret:    roomSecret,
		SessionSecret: sessionSecret,
		RoomTokenTTL:  tokenTTL,
	}

	webhookSecret := os.Getenv("WEBHOOK_SECRET")
	if webhookSecret == "" {
		return nil, fmt.Errorf("%s: missing WEBHOOK_SECRET", op)
	}

	var feesCfg FeesConfig
	if s := os.Getenv("FEE_USD_PERCENTAGE"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid FEE_USD_PERCENTAGE: %w", op, err)
		}
		feesCfg.USDPercentageFee = v
	}
	if s := os.Getenv("FEE_USD_FIXED_CENTS"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid FEE_USD_FIXED_CENTS: %w", op, err)
		}
		feesCfg.USDFixedFeeCents = v
	}

	return &Config{
		Server:   serverCfg,
		Postgres: postgresCfg,
		Redis:    redisCfg,
		Token:    tokenCfg,
		Webhook:  WebhookConfig{Secret: webhookSecret},
		Fees:     feesCfg,
	}, nil
}

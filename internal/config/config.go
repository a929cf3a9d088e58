package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server ServerConfig
	Ledger LedgerConfig
	IPFS   IPFSConfig
	Redis  RedisConfig
	Kafka  KafkaConfig
	Claim  ClaimConfig
	Log    LogConfig
}

type ServerConfig struct {
	Port             string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	MintWriteTimeout time.Duration
	IdleTimeout      time.Duration
	ShutdownTimeout  time.Duration
}

type LedgerConfig struct {
	// URL selects the transport: http(s) for JSON-RPC, ws(s) for WebSocket.
	URL               string
	FaucetURL         string
	RequestTimeout    time.Duration
	MaxRetries        int
	ValidationTimeout time.Duration
	PollInterval      time.Duration
	MaxPages          int
	PageLimit         int
}

type IPFSConfig struct {
	Enabled       bool
	APIURL        string
	GatewayURL    string
	ProjectID     string
	ProjectSecret string
}

type RedisConfig struct {
	Enabled bool
	Addr    string
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	EventCreated     string
	ClaimTransferred string
}

type ClaimConfig struct {
	TokenLockTTL time.Duration
	PublicURL    string
}

type LogConfig struct {
	Dir   string
	Level string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             getEnv("PORT", ":4000"),
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Minute),
			MintWriteTimeout: getEnvDuration("SERVER_MINT_WRITE_TIMEOUT", 2*time.Hour),
			IdleTimeout:      60 * time.Second,
			ShutdownTimeout:  getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second),
		},
		Ledger: LedgerConfig{
			URL:               getEnv("SELECTED_NETWORK", "https://s.altnet.rippletest.net:51234"),
			FaucetURL:         getEnv("FAUCET_URL", "https://faucet.altnet.rippletest.net/accounts"),
			RequestTimeout:    getEnvDuration("LEDGER_REQUEST_TIMEOUT", 30*time.Second),
			MaxRetries:        getEnvInt("LEDGER_MAX_RETRIES", 3),
			ValidationTimeout: getEnvDuration("LEDGER_VALIDATION_TIMEOUT", 60*time.Second),
			PollInterval:      getEnvDuration("LEDGER_POLL_INTERVAL", time.Second),
			MaxPages:          getEnvInt("LEDGER_MAX_PAGES", 1000),
			PageLimit:         getEnvInt("LEDGER_PAGE_LIMIT", 400),
		},
		IPFS: IPFSConfig{
			Enabled:       getEnvBool("IPFS_ENABLED", false),
			APIURL:        getEnv("IPFS_API_URL", "https://infura-ipfs.io:5001/api/v0"),
			GatewayURL:    getEnv("IPFS_GATEWAY_URL", "https://ipfs.io/ipfs"),
			ProjectID:     getEnv("INFURA_ID", ""),
			ProjectSecret: getEnv("INFURA_SECRET", ""),
		},
		Redis: RedisConfig{
			Enabled: getEnvBool("REDIS_ENABLED", false),
			Addr:    getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Topics: TopicConfig{
				EventCreated:     getEnv("KAFKA_TOPIC_EVENT_CREATED", "attendify.event.created"),
				ClaimTransferred: getEnv("KAFKA_TOPIC_CLAIM_TRANSFERRED", "attendify.claim.transferred"),
			},
		},
		Claim: ClaimConfig{
			TokenLockTTL: time.Duration(getEnvInt("TOKEN_LOCK_TTL_MINUTES", 24*60)) * time.Minute,
			PublicURL:    getEnv("PUBLIC_URL", "http://localhost:3000"),
		},
		Log: LogConfig{
			Dir:   getEnv("LOG_DIR", "logs"),
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

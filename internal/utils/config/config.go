package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dwarvesf/zenz-bridge/internal/consts"
	"github.com/dwarvesf/zenz-bridge/internal/types/environments"
)

type AppConfig struct {
	Environment     environments.Environment
	ApiServer       ApiServerConfig
	Postgres        DBConnection
	Bitcoin         BitcoinConfig
	Zcash           ZcashConfig
	Solana          SolanaConfig
	Minter          MinterConfig
	Privacy         PrivacyConfig
	Relayer         RelayerConfig
	Schedules       ScheduleConfig
	Kafka           KafkaConfig
	Archive         ArchiveConfig
	Secrets         SecretsConfig
	UptimeWebhooks  UptimeWebhookConfig
	AlertWebhookURL string
}

type ApiServerConfig struct {
	Port           string
	AllowedOrigins string
	AdminToken     string
}

type DBConnection struct {
	Host string
	Port string
	User string
	Name string
	Pass string

	SSLMode string
}

type BitcoinConfig struct {
	BlockstreamAPIURL string
	Network           string
	TreasuryAddress   string
	// WalletWIF may be empty when the key is resolved through Secrets.
	WalletWIF        string
	WalletSecretKey  string
	MinConfirmations int
	FeeTargetBlocks  int
	RetryDelay       time.Duration
}

type ZcashConfig struct {
	RPCURL           string
	RPCUser          string
	RPCPass          string
	TreasuryAddress  string
	MinConfirmations int
}

type SolanaConfig struct {
	RPCURL              string
	BridgeProgramID     string
	TreasuryAddress     string
	CustodyTokenAccount string
	// WithdrawalMode is "burn" (Anchor burn events) or "transfer" (SPL transfer into custody).
	WithdrawalMode   string
	MinConfirmations int
}

type MinterConfig struct {
	BaseURL   string
	AuthToken string
}

type PrivacyConfig struct {
	Enabled   bool
	BaseURL   string
	AuthToken string
}

type RelayerConfig struct {
	MaxSettlementAttempts int
	RetryBaseDelay        time.Duration
	RetryMaxDelay         time.Duration
	VerifyTimeout         time.Duration
	SettleTimeout         time.Duration
	NotFoundTimeout       time.Duration
	ProcessingTimeout     time.Duration
	SweepBatchSize        int
	MaxMintPerTx          int64
	Paused                bool
	Bootstrap             BootstrapConfig
}

type BootstrapConfig struct {
	BTC int64
	ZEC int64
	SOL int64
}

type ScheduleConfig struct {
	WatchPeriod string
	SweepPeriod string
	RetryPeriod string
}

type KafkaConfig struct {
	Brokers []string
	Group   string
	Topic   string
}

type ArchiveConfig struct {
	Driver string
	Bucket string
	Prefix string
}

type SecretsConfig struct {
	Provider    string
	VaultAddr   string
	VaultRole   string
	VaultKVPath string
}

type UptimeWebhookConfig struct {
	WatchBtcURL     string
	WatchZecURL     string
	WatchSolURL     string
	RecoverStuckURL string
	RetryPendingURL string
}

func New() *AppConfig {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// this will not override env variables if they already exist
	godotenv.Load(".env." + env)

	return &AppConfig{
		Environment: environments.Parse(env),
		ApiServer: ApiServerConfig{
			Port:           envOr("PORT", "8080"),
			AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
			AdminToken:     os.Getenv("ADMIN_TOKEN"),
		},
		Postgres: DBConnection{
			Host:    os.Getenv("DB_HOST"),
			Port:    os.Getenv("DB_PORT"),
			User:    os.Getenv("DB_USER"),
			Name:    os.Getenv("DB_NAME"),
			Pass:    os.Getenv("DB_PASS"),
			SSLMode: os.Getenv("DB_SSL_MODE"),
		},
		Bitcoin: BitcoinConfig{
			BlockstreamAPIURL: os.Getenv("BTC_BLOCKSTREAM_API_URL"),
			Network:           envOr("BTC_NETWORK", "testnet"),
			TreasuryAddress:   os.Getenv("BTC_TREASURY_ADDRESS"),
			WalletWIF:         os.Getenv("BTC_WALLET_WIF"),
			WalletSecretKey:   envOr("BTC_WALLET_SECRET_KEY", "BTC_WALLET_WIF"),
			MinConfirmations:  envIntOr("BTC_MIN_CONFIRMATIONS", 6),
			FeeTargetBlocks:   envIntOr("BTC_FEE_TARGET_BLOCKS", 6),
			RetryDelay:        envDuration("BTC_RETRY_DELAY", time.Second),
		},
		Zcash: ZcashConfig{
			RPCURL:           os.Getenv("ZEC_RPC_URL"),
			RPCUser:          os.Getenv("ZEC_RPC_USER"),
			RPCPass:          os.Getenv("ZEC_RPC_PASS"),
			TreasuryAddress:  os.Getenv("ZEC_TREASURY_ADDRESS"),
			MinConfirmations: envIntOr("ZEC_MIN_CONFIRMATIONS", 10),
		},
		Solana: SolanaConfig{
			RPCURL:              os.Getenv("SOL_RPC_URL"),
			BridgeProgramID:     os.Getenv("SOL_BRIDGE_PROGRAM_ID"),
			TreasuryAddress:     os.Getenv("SOL_TREASURY_ADDRESS"),
			CustodyTokenAccount: os.Getenv("SOL_CUSTODY_TOKEN_ACCOUNT"),
			WithdrawalMode:      envOr("SOL_WITHDRAWAL_MODE", "burn"),
			MinConfirmations:    envIntOr("SOL_MIN_CONFIRMATIONS", 32),
		},
		Minter: MinterConfig{
			BaseURL:   os.Getenv("MINTER_BASE_URL"),
			AuthToken: os.Getenv("MINTER_AUTH_TOKEN"),
		},
		Privacy: PrivacyConfig{
			Enabled:   envVarAsBool("PRIVACY_ENABLED"),
			BaseURL:   os.Getenv("PRIVACY_BASE_URL"),
			AuthToken: os.Getenv("PRIVACY_AUTH_TOKEN"),
		},
		Relayer: RelayerConfig{
			MaxSettlementAttempts: envIntOr("RELAYER_MAX_SETTLEMENT_ATTEMPTS", consts.DefaultMaxSettlementAttempts),
			RetryBaseDelay:        envDuration("RELAYER_RETRY_BASE_DELAY", 2*time.Second),
			RetryMaxDelay:         envDuration("RELAYER_RETRY_MAX_DELAY", 30*time.Second),
			VerifyTimeout:         envDuration("RELAYER_VERIFY_TIMEOUT", 30*time.Second),
			SettleTimeout:         envDuration("RELAYER_SETTLE_TIMEOUT", 2*time.Minute),
			NotFoundTimeout:       envDuration("RELAYER_NOT_FOUND_TIMEOUT", 6*time.Hour),
			ProcessingTimeout:     envDuration("RELAYER_PROCESSING_TIMEOUT", 30*time.Minute),
			SweepBatchSize:        envIntOr("RELAYER_SWEEP_BATCH_SIZE", consts.DefaultSweepBatchSize),
			MaxMintPerTx:          envInt64Or("RELAYER_MAX_MINT_PER_TX", 0),
			Paused:                envVarAsBool("RELAYER_PAUSED"),
			Bootstrap: BootstrapConfig{
				BTC: envInt64Or("RESERVE_BOOTSTRAP_BTC", 0),
				ZEC: envInt64Or("RESERVE_BOOTSTRAP_ZEC", 0),
				SOL: envInt64Or("RESERVE_BOOTSTRAP_SOL", 0),
			},
		},
		Schedules: ScheduleConfig{
			WatchPeriod: envOr("WATCH_PERIOD", "@every 1m"),
			SweepPeriod: envOr("SWEEP_PERIOD", "@every 5m"),
			RetryPeriod: envOr("RETRY_PERIOD", "@every 2m"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Group:   envOr("KAFKA_GROUP", "zenz-bridge-relayer"),
			Topic:   os.Getenv("KAFKA_EVENTS_TOPIC"),
		},
		Archive: ArchiveConfig{
			Driver: envOr("ARCHIVE_DRIVER", "none"),
			Bucket: os.Getenv("ARCHIVE_BUCKET"),
			Prefix: envOr("ARCHIVE_PREFIX", "receipts"),
		},
		Secrets: SecretsConfig{
			Provider:    envOr("SECRETS_PROVIDER", "env"),
			VaultAddr:   os.Getenv("VAULT_ADDR"),
			VaultRole:   os.Getenv("VAULT_ROLE"),
			VaultKVPath: os.Getenv("VAULT_KV_PATH"),
		},
		UptimeWebhooks: UptimeWebhookConfig{
			WatchBtcURL:     os.Getenv("UPTIME_WEBHOOK_WATCH_BTC"),
			WatchZecURL:     os.Getenv("UPTIME_WEBHOOK_WATCH_ZEC"),
			WatchSolURL:     os.Getenv("UPTIME_WEBHOOK_WATCH_SOL"),
			RecoverStuckURL: os.Getenv("UPTIME_WEBHOOK_RECOVER_STUCK"),
			RetryPendingURL: os.Getenv("UPTIME_WEBHOOK_RETRY_PENDING"),
		},
		AlertWebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),
	}
}

func envOr(envName, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(envName)); v != "" {
		return v
	}
	return fallback
}

func envVarAtoi(envName string) int {
	valueStr := os.Getenv(envName)
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		panic(err)
	}

	return value
}

func envIntOr(envName string, fallback int) int {
	if os.Getenv(envName) == "" {
		return fallback
	}
	return envVarAtoi(envName)
}

func envInt64Or(envName string, fallback int64) int64 {
	valueStr := os.Getenv(envName)
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		panic(err)
	}
	return value
}

func envDuration(envName string, fallback time.Duration) time.Duration {
	valueStr := os.Getenv(envName)
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		panic(err)
	}
	return value
}

func envVarAsBool(envName string) bool {
	valueStr := os.Getenv(envName)
	return valueStr == "true"
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

package config

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/util"
)

// EchoServer holds the bind addresses for the UI-facing and management listeners.
type EchoServer struct {
	ListenAddress           string
	ManagementListenAddress string
	HideInternalServerError bool
}

// Wallet configures the delegated-authority wallet RPC.
type Wallet struct {
	RPCURL            string
	ChainID           int64
	AppOrigin         string
	PrimaryAddress    string // funded long-lived smart-contract wallet
	SessionManager    string // spender granted on sub-account creation
	StableToken       string // ERC-20 used for stable-priced sessions
	AllowanceCeiling  *big.Int
	ConfirmAttempts   int
	ConfirmInterval   time.Duration
	SubAccountFunding *big.Int // validity-window allowance granted at creation
}

// PrimaryOwnerKey is the EIP-55 form of the primary address. Preference
// documents are keyed by it; the raw env value may arrive in any case.
func (w Wallet) PrimaryOwnerKey() string {
	return common.HexToAddress(w.PrimaryAddress).Hex()
}

// Chain configures direct read-only chain access.
type Chain struct {
	RPCURL string
}

// Registry configures the marketplace host registry.
type Registry struct {
	URL             string
	RequestTimeout  time.Duration
	ProbeTimeout    time.Duration
	HostCacheMaxAge time.Duration
}

// Session configures the lifecycle coordinator.
type Session struct {
	DefaultDeposit      *big.Int
	MinimumBalance      *big.Int
	ProofInterval       int
	MaxDuration         time.Duration
	StartRetries        int
	ContextTurns        int
	ContextTurnMaxChars int
}

// Snapshot configures the local recovery snapshot slot.
type Snapshot struct {
	Path             string
	TTL              time.Duration
	AutoSaveInterval time.Duration
	UseRedis         bool
	RedisAddr        string
	EncryptionKeyHex string // 32-byte hex key; empty disables at-rest encryption
}

// RateLimit configures the two fixed-window limiters.
type RateLimit struct {
	SessionLimit  int
	SessionWindow time.Duration
	MessageLimit  int
	MessageWindow time.Duration
}

// Balance configures the balance poller.
type Balance struct {
	PollInterval time.Duration
}

// Inference configures the streaming inference client.
type Inference struct {
	RequestTimeout time.Duration
}

// Storage configures the durable (S5) storage gateway client.
type Storage struct {
	GatewayURL     string
	RequestTimeout time.Duration
}

// Logger configures zerolog.
type Logger struct {
	Level              string
	PrettyPrintConsole bool
}

// Server is the root configuration struct, populated from the environment.
type Server struct {
	Echo      EchoServer
	Wallet    Wallet
	Chain     Chain
	Registry  Registry
	Session   Session
	Snapshot  Snapshot
	RateLimit RateLimit
	Balance   Balance
	Inference Inference
	Storage   Storage
	Logger    Logger
}

// DefaultServiceConfigFromEnv returns the server config with every field read
// from the environment, falling back to development defaults.
func DefaultServiceConfigFromEnv() Server {
	return Server{
		Echo: EchoServer{
			ListenAddress:           util.GetEnv("FABSTIR_ECHO_LISTEN_ADDRESS", ":8077"),
			ManagementListenAddress: util.GetEnv("FABSTIR_ECHO_MGMT_LISTEN_ADDRESS", ":9077"),
			HideInternalServerError: util.GetEnvAsBool("FABSTIR_ECHO_HIDE_INTERNAL_SERVER_ERROR", true),
		},
		Wallet: Wallet{
			RPCURL:            util.GetEnv("FABSTIR_WALLET_RPC_URL", "http://localhost:8545"),
			ChainID:           int64(util.GetEnvAsInt("FABSTIR_CHAIN_ID", 84532)),
			AppOrigin:         util.GetEnv("FABSTIR_APP_ORIGIN", "https://llm.fabstir.com"),
			PrimaryAddress:    util.GetEnv("FABSTIR_PRIMARY_ADDRESS", "0x0000000000000000000000000000000000000000"),
			SessionManager:    util.GetEnv("FABSTIR_SESSION_MANAGER_ADDRESS", "0x0000000000000000000000000000000000000000"),
			StableToken:       util.GetEnv("FABSTIR_STABLE_TOKEN_ADDRESS", "0x0000000000000000000000000000000000000000"),
			AllowanceCeiling:  util.GetEnvAsBigInt("FABSTIR_ALLOWANCE_CEILING", big.NewInt(1_000_000_000_000)),
			ConfirmAttempts:   util.GetEnvAsInt("FABSTIR_CONFIRM_ATTEMPTS", 30),
			ConfirmInterval:   util.GetEnvAsDuration("FABSTIR_CONFIRM_INTERVAL", time.Second),
			SubAccountFunding: util.GetEnvAsBigInt("FABSTIR_SUB_ACCOUNT_FUNDING", big.NewInt(1_000_000_000_000)),
		},
		Chain: Chain{
			RPCURL: util.GetEnv("FABSTIR_CHAIN_RPC_URL", "http://localhost:8545"),
		},
		Registry: Registry{
			URL:             util.GetEnv("FABSTIR_REGISTRY_URL", "http://localhost:8080"),
			RequestTimeout:  util.GetEnvAsDuration("FABSTIR_REGISTRY_TIMEOUT", 10*time.Second),
			ProbeTimeout:    util.GetEnvAsDuration("FABSTIR_REGISTRY_PROBE_TIMEOUT", 5*time.Second),
			HostCacheMaxAge: util.GetEnvAsDuration("FABSTIR_REGISTRY_HOST_CACHE_MAX_AGE", time.Minute),
		},
		Session: Session{
			DefaultDeposit:      util.GetEnvAsBigInt("FABSTIR_SESSION_DEFAULT_DEPOSIT", big.NewInt(2_000_000)),
			MinimumBalance:      util.GetEnvAsBigInt("FABSTIR_SESSION_MINIMUM_BALANCE", big.NewInt(1_000_000)),
			ProofInterval:       util.GetEnvAsInt("FABSTIR_SESSION_PROOF_INTERVAL", 100),
			MaxDuration:         util.GetEnvAsDuration("FABSTIR_SESSION_MAX_DURATION", time.Hour),
			StartRetries:        util.GetEnvAsInt("FABSTIR_SESSION_START_RETRIES", 2),
			ContextTurns:        util.GetEnvAsInt("FABSTIR_SESSION_CONTEXT_TURNS", 10),
			ContextTurnMaxChars: util.GetEnvAsInt("FABSTIR_SESSION_CONTEXT_TURN_MAX_CHARS", 2000),
		},
		Snapshot: Snapshot{
			Path:             util.GetEnv("FABSTIR_SNAPSHOT_PATH", ".fabstir/session-snapshot.json"),
			TTL:              util.GetEnvAsDuration("FABSTIR_SNAPSHOT_TTL", 24*time.Hour),
			AutoSaveInterval: util.GetEnvAsDuration("FABSTIR_SNAPSHOT_AUTOSAVE_INTERVAL", 30*time.Second),
			UseRedis:         util.GetEnvAsBool("FABSTIR_SNAPSHOT_USE_REDIS", false),
			RedisAddr:        util.GetEnv("FABSTIR_SNAPSHOT_REDIS_ADDR", "localhost:6379"),
			EncryptionKeyHex: util.GetEnv("FABSTIR_SNAPSHOT_ENCRYPTION_KEY", ""),
		},
		RateLimit: RateLimit{
			SessionLimit:  util.GetEnvAsInt("FABSTIR_RATE_LIMIT_SESSION", 3),
			SessionWindow: util.GetEnvAsDuration("FABSTIR_RATE_LIMIT_SESSION_WINDOW", time.Hour),
			MessageLimit:  util.GetEnvAsInt("FABSTIR_RATE_LIMIT_MESSAGE", 20),
			MessageWindow: util.GetEnvAsDuration("FABSTIR_RATE_LIMIT_MESSAGE_WINDOW", time.Minute),
		},
		Balance: Balance{
			PollInterval: util.GetEnvAsDuration("FABSTIR_BALANCE_POLL_INTERVAL", 10*time.Second),
		},
		Inference: Inference{
			RequestTimeout: util.GetEnvAsDuration("FABSTIR_INFERENCE_TIMEOUT", 120*time.Second),
		},
		Storage: Storage{
			GatewayURL:     util.GetEnv("FABSTIR_STORAGE_GATEWAY_URL", "http://localhost:5050"),
			RequestTimeout: util.GetEnvAsDuration("FABSTIR_STORAGE_TIMEOUT", 15*time.Second),
		},
		Logger: Logger{
			Level:              util.GetEnv("FABSTIR_LOGGER_LEVEL", "debug"),
			PrettyPrintConsole: util.GetEnvAsBool("FABSTIR_LOGGER_PRETTY_PRINT_CONSOLE", false),
		},
	}
}

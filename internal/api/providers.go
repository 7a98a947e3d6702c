package api

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/config"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/inference"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/market/balance"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/market/host"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/market/payment"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/market/session"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/notify"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/ratelimit"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/snapshot"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/storageclient"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/wallet"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/pkg/snapcrypt"
)

// NewClock returns the mock clock when running under a test, the real clock
// otherwise.
func NewClock(t ...*testing.T) time2.Clock {
	useMock := len(t) > 0 && t[0] != nil
	if useMock {
		return time2.NewMockClock(time.Now())
	}
	return time2.DefaultClock
}

// NewSnapshotStore builds the configured snapshot backend: Redis when enabled,
// the single-slot file store otherwise. The optional cipher encrypts slots at
// rest.
func NewSnapshotStore(cfg config.Server, clock time2.Clock) (snapshot.Store, error) {
	cipher, err := newSnapshotCipher(cfg.Snapshot.EncryptionKeyHex)
	if err != nil {
		return nil, err
	}

	if cfg.Snapshot.UseRedis {
		if cipher != nil {
			// The Redis slot already lives server-side; encrypting it would
			// need key distribution the file path does not.
			log.Warn().Msg("Snapshot encryption key is ignored for the Redis backend")
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.Snapshot.RedisAddr})
		return snapshot.NewRedisStore(client, cfg.Snapshot.TTL, clock), nil
	}

	return snapshot.NewFileStore(cfg.Snapshot.Path, cfg.Snapshot.TTL, clock, cipher), nil
}

func newSnapshotCipher(keyHex string) (*snapcrypt.Cipher, error) {
	if keyHex == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, errors.Wrap(err, "snapshot encryption key is not valid hex")
	}
	return snapcrypt.New(key)
}

// InitServer wires every component in dependency order and performs the
// wallet bootstrap (sub-account enumeration or creation).
func InitServer(ctx context.Context, cfg config.Server) (*Server, error) {
	s := NewServer(cfg)
	s.Clock = NewClock()

	chainClient, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to dial chain RPC")
	}

	walletRPC := wallet.NewRPCClient(cfg.Wallet.RPCURL, nil)
	primary := common.HexToAddress(cfg.Wallet.PrimaryAddress)
	sessionManager := common.HexToAddress(cfg.Wallet.SessionManager)
	stableToken := common.HexToAddress(cfg.Wallet.StableToken)

	now := uint64(s.Clock.Now().Unix())
	sub, err := wallet.EnsureSubAccount(ctx, walletRPC, cfg.Wallet.AppOrigin, &wallet.SpendPermission{
		Spender:   sessionManager,
		Token:     stableToken,
		Allowance: (*hexutil.Big)(cfg.Wallet.SubAccountFunding),
		Start:     now,
		End:       now + uint64((365 * 24 * time.Hour).Seconds()),
	})
	if err != nil {
		return nil, err
	}

	s.Wallet = wallet.NewBroadcastAdapter(
		walletRPC,
		chainClient,
		primary,
		sub.Address,
		cfg.Wallet.ChainID,
		cfg.Wallet.ConfirmAttempts,
		cfg.Wallet.ConfirmInterval,
	)

	erc20 := payment.NewERC20Reader(chainClient)
	preflight := payment.NewAllowancePreflight(erc20, s.Wallet, cfg.Wallet.AllowanceCeiling)
	manager := payment.NewRemoteManager(cfg.Registry.URL, cfg.Registry.RequestTimeout, s.Wallet)

	s.Selector = host.NewSelector(
		host.NewHTTPRegistry(cfg.Registry.URL, cfg.Registry.RequestTimeout),
		host.NewHTTPProber(cfg.Registry.ProbeTimeout),
		s.Clock,
		cfg.Registry.HostCacheMaxAge,
	)

	s.Balances = balance.NewPoller(
		erc20,
		s.Clock,
		primary,
		sub.Address,
		stableToken,
		cfg.Session.MinimumBalance,
		cfg.Balance.PollInterval,
		true,
	)

	store, err := NewSnapshotStore(cfg, s.Clock)
	if err != nil {
		return nil, err
	}
	s.Snapshots = store

	s.Storage = storageclient.NewHTTPClient(cfg.Storage.GatewayURL, cfg.Storage.RequestTimeout)
	s.Notifier = notify.LogNotifier{}

	s.Coordinator = session.NewCoordinator(
		session.Config{
			Identity:            sub.Address.Hex(),
			PayerAddress:        primary,
			SessionManager:      sessionManager,
			StableToken:         stableToken,
			Deposit:             cfg.Session.DefaultDeposit,
			ProofInterval:       cfg.Session.ProofInterval,
			MaxDuration:         cfg.Session.MaxDuration,
			StartRetries:        cfg.Session.StartRetries,
			ContextTurns:        cfg.Session.ContextTurns,
			ContextTurnMaxChars: cfg.Session.ContextTurnMaxChars,
		},
		s.Selector,
		manager,
		preflight,
		inference.NewHTTPTransport(cfg.Inference.RequestTimeout),
		s.Storage,
		store,
		ratelimit.New(cfg.RateLimit.SessionLimit, cfg.RateLimit.SessionWindow, s.Clock),
		ratelimit.New(cfg.RateLimit.MessageLimit, cfg.RateLimit.MessageWindow, s.Clock),
		s.Notifier,
		s.Clock,
	)

	applyStoredPreferences(ctx, s.Storage, cfg.Wallet.PrimaryOwnerKey(), s.Coordinator)

	s.AutoSaver = snapshot.NewAutoSaver(store, s.Coordinator.SnapshotSource(), cfg.Snapshot.AutoSaveInterval)

	return s, nil
}

// applyStoredPreferences loads the user's preference document and applies the
// payment-token choice. The owner key must be the same canonical form the
// handlers store under. A missing document means a first-time user and keeps
// the defaults.
func applyStoredPreferences(ctx context.Context, storage storageclient.Client, ownerKey string, coordinator *session.Coordinator) {
	prefs, err := storage.LoadPreferences(ctx, ownerKey)
	if err != nil {
		if errors.Is(err, storageclient.ErrNotFound) {
			log.Info().Msg("No stored preferences, keeping first-time defaults")
		} else {
			log.Warn().Err(err).Msg("Failed to load preferences, keeping defaults")
		}
		return
	}
	coordinator.SetStablePayment(prefs.PreferStableToken)
}

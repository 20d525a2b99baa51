package service

import (
	"testing"
	"time"

	"billpay/internal/auth"
	"billpay/internal/config"
	"billpay/internal/infrastructure/lock"
	"billpay/internal/infrastructure/metrics"
	"billpay/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	mr       *miniredis.Miniredis
	client   *redis.Client
	store    *repository.RedisStore
	cfg      *config.Config
	ledger   *LedgerService
	pay      *PayService
	accounts *AccountService
	metrics  *metrics.Metrics
}

func newTestEnv(t *testing.T, mutate ...func(cfg *config.Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Business.SettlementDelayMillis = 30
	cfg.Business.LockRetryMillis = 5
	cfg.Business.LockMaxRetries = 400
	for _, fn := range mutate {
		fn(cfg)
	}

	log := zap.NewNop()
	m := metrics.New()
	store := repository.NewRedisStore(client, cfg.Storage.MaxRetries)
	ledger := NewLedgerService(store, cfg, log)
	locker := lock.NewUserLocker(client, cfg.Business.LockTTL(), cfg.Business.LockRetryInterval(), cfg.Business.LockMaxRetries)
	provider := auth.NewLocalProvider(store).WithCost(bcrypt.MinCost)
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience, time.Hour)

	return &testEnv{
		mr:       mr,
		client:   client,
		store:    store,
		cfg:      cfg,
		ledger:   ledger,
		pay:      NewPayService(ledger, locker, cfg, m, log),
		accounts: NewAccountService(store, ledger, provider, issuer, log),
		metrics:  m,
	}
}

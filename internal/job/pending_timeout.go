package job

import (
	"context"
	"strings"
	"time"

	"billpay/internal/config"
	"billpay/internal/infrastructure/metrics"
	"billpay/internal/repository"
	"billpay/internal/service"

	"go.uber.org/zap"
)

// PendingTransactionJob 把超时仍为 pending 的流水标记为 failed
type PendingTransactionJob struct {
	store    repository.Store
	ledger   *service.LedgerService
	cfg      *config.Config
	metrics  *metrics.Metrics
	log      *zap.Logger
	stopCh   chan struct{}
	interval time.Duration
	now      func() time.Time
}

func NewPendingTransactionJob(store repository.Store, ledger *service.LedgerService, cfg *config.Config, m *metrics.Metrics, log *zap.Logger) *PendingTransactionJob {
	return &PendingTransactionJob{
		store:    store,
		ledger:   ledger,
		cfg:      cfg,
		metrics:  m,
		log:      log,
		stopCh:   make(chan struct{}),
		interval: time.Minute,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (j *PendingTransactionJob) Start(ctx context.Context) {
	j.log.Info("[PendingTransactionJob] 超时流水任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("[PendingTransactionJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.log.Info("[PendingTransactionJob] 任务停止")
			return
		case <-ticker.C:
			j.expirePending(ctx)
		}
	}
}

func (j *PendingTransactionJob) Stop() {
	close(j.stopCh)
}

func (j *PendingTransactionJob) expirePending(ctx context.Context) int {
	keys, err := j.store.Keys(ctx, "user:")
	if err != nil {
		j.log.Error("[PendingTransactionJob] 查询流水失败", zap.Error(err))
		return 0
	}

	cutoff := j.now().Add(-j.cfg.Business.PendingTimeout())
	total := 0
	for _, key := range keys {
		if !strings.HasSuffix(key, ":transactions") {
			continue
		}
		userID, ok := repository.UserIDFromKey(key)
		if !ok {
			continue
		}
		n, err := j.ledger.ExpirePending(ctx, userID, cutoff)
		if err != nil {
			j.log.Error("[PendingTransactionJob] 处理超时流水失败", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		if n > 0 {
			j.log.Info("[PendingTransactionJob] 流水已超时标记为失败", zap.String("user_id", userID), zap.Int("count", n))
		}
		total += n
	}

	if total > 0 {
		j.metrics.PendingExpired.Add(float64(total))
	}
	return total
}

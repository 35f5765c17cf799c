package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/capital-cycle-ledger/internal/domain/account"
	"github.com/capital-cycle-ledger/internal/platform/metrics"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
)

// PassResult summarises one batch pass.
type PassResult struct {
	Pass      string `json:"pass"`
	Processed int64  `json:"processed"`
	Applied   int64  `json:"applied"`
	Skipped   int64  `json:"skipped"`
	Failed    int64  `json:"failed"`
}

type BatchConfig struct {
	WorkerPoolSize          int
	PageSize                int
	ReservationTimeoutHours int
}

// BatchRunner fans scheduled passes out over a worker pool. Every account
// settles in its own transaction; a failing account is logged and counted.
type BatchRunner struct {
	accountRepo account.Repository
	engine      *EngineService
	pools       *PoolService
	workers     *ants.Pool
	cfg         BatchConfig
	logger      *slog.Logger
	now         func() time.Time
}

func NewBatchRunner(
	accountRepo account.Repository,
	engine *EngineService,
	pools *PoolService,
	cfg BatchConfig,
	logger *slog.Logger,
) (*BatchRunner, error) {
	if cfg.WorkerPoolSize <= 0 {
		return nil, fmt.Errorf("worker pool size must be positive, got %d", cfg.WorkerPoolSize)
	}
	workers, err := ants.NewPool(cfg.WorkerPoolSize)
	if err != nil {
		return nil, err
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}

	return &BatchRunner{
		accountRepo: accountRepo,
		engine:      engine,
		pools:       pools,
		workers:     workers,
		cfg:         cfg,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// RunRecycle releases expired reservations.
func (r *BatchRunner) RunRecycle(ctx context.Context) (PassResult, error) {
	result := PassResult{Pass: "recycle"}
	count, err := r.pools.RecycleExpired(ctx, r.cfg.ReservationTimeoutHours)
	if err != nil {
		metrics.BatchPassAccounts.WithLabelValues(result.Pass, "failed").Inc()
		return result, err
	}
	result.Processed = count
	result.Applied = count
	metrics.BatchPassAccounts.WithLabelValues(result.Pass, "applied").Add(float64(count))
	return result, nil
}

// RunCommissionPass charges every plan account that is due.
func (r *BatchRunner) RunCommissionPass(ctx context.Context) (PassResult, error) {
	now := r.now()
	return r.run(ctx, "commission", r.accountRepo.ListCommissionCandidates, func(ctx context.Context, id uuid.UUID) (bool, error) {
		out, err := r.engine.ChargePlanCommission(ctx, id, now)
		return out.Applied, err
	})
}

// RunAccrualPass credits the day's plan or passive return to every eligible account.
func (r *BatchRunner) RunAccrualPass(ctx context.Context) (PassResult, error) {
	now := r.now()
	return r.run(ctx, "accrual", r.accountRepo.ListAccrualCandidates, func(ctx context.Context, id uuid.UUID) (bool, error) {
		planOut, err := r.engine.AccruePlanProfit(ctx, id, now)
		if err != nil {
			return false, err
		}
		passiveOut, err := r.engine.AccruePassiveProfit(ctx, id, now)
		if err != nil {
			return planOut.Applied, err
		}
		return planOut.Applied || passiveOut.Applied, nil
	})
}

type listFunc func(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)

type accountFunc func(ctx context.Context, id uuid.UUID) (applied bool, err error)

func (r *BatchRunner) run(ctx context.Context, pass string, list listFunc, apply accountFunc) (PassResult, error) {
	start := time.Now()
	logger := r.logger.With("pass", pass)
	logger.Info("Starting batch pass", "running_workers", r.workers.Running())

	var (
		wg                        sync.WaitGroup
		processed, applied, fails atomic.Int64
		after                     = uuid.Nil
	)

	for {
		if ctx.Err() != nil {
			break
		}
		ids, err := list(ctx, after, r.cfg.PageSize)
		if err != nil {
			wg.Wait()
			return r.result(pass, &processed, &applied, &fails), err
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			id := id
			wg.Add(1)
			err := r.workers.Submit(func() {
				defer wg.Done()
				processed.Add(1)
				ok, err := apply(ctx, id)
				switch {
				case err != nil:
					fails.Add(1)
					metrics.BatchPassAccounts.WithLabelValues(pass, "failed").Inc()
					logger.Error("Batch pass failed for account", "account_id", id.String(), "error", err)
				case ok:
					applied.Add(1)
					metrics.BatchPassAccounts.WithLabelValues(pass, "applied").Inc()
				default:
					metrics.BatchPassAccounts.WithLabelValues(pass, "skipped").Inc()
				}
			})
			if err != nil {
				wg.Done()
				processed.Add(1)
				fails.Add(1)
				logger.Error("Failed to submit account to worker pool", "account_id", id.String(), "error", err)
			}
		}

		after = ids[len(ids)-1]
		if len(ids) < r.cfg.PageSize {
			break
		}
	}

	wg.Wait()
	result := r.result(pass, &processed, &applied, &fails)
	logger.Info("Batch pass finished",
		"processed", result.Processed,
		"applied", result.Applied,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"duration", time.Since(start),
	)
	return result, ctx.Err()
}

func (r *BatchRunner) result(pass string, processed, applied, fails *atomic.Int64) PassResult {
	res := PassResult{
		Pass:      pass,
		Processed: processed.Load(),
		Applied:   applied.Load(),
		Failed:    fails.Load(),
	}
	res.Skipped = res.Processed - res.Applied - res.Failed
	if res.Skipped < 0 {
		res.Skipped = 0
	}
	return res
}

// Shutdown releases the worker pool.
func (r *BatchRunner) Shutdown() {
	r.logger.Info("Shutting down batch worker pool", "running_workers", r.workers.Running())
	r.workers.Release()
}

func (r *BatchRunner) Running() int {
	return r.workers.Running()
}

func (r *BatchRunner) Capacity() int {
	return r.workers.Cap()
}

// Package scheduler drives the periodic batch passes inside the settlement worker.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/capital-cycle-ledger/internal/config"
	"github.com/capital-cycle-ledger/internal/settlement/service"
)

// PassRunner runs the three scheduled passes. *service.BatchRunner implements it.
type PassRunner interface {
	RunRecycle(ctx context.Context) (service.PassResult, error)
	RunCommissionPass(ctx context.Context) (service.PassResult, error)
	RunAccrualPass(ctx context.Context) (service.PassResult, error)
}

type job struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) (service.PassResult, error)
}

// Scheduler starts one ticker per enabled pass. A pass never overlaps itself:
// a tick that fires while the previous run is still going is dropped.
type Scheduler struct {
	jobs   []job
	logger *slog.Logger
	wg     sync.WaitGroup
}

func New(cfg *config.SchedulerConfig, runner PassRunner, logger *slog.Logger) *Scheduler {
	all := []job{
		{name: "recycle", interval: cfg.RecycleInterval, run: runner.RunRecycle},
		{name: "commission", interval: cfg.CommissionInterval, run: runner.RunCommissionPass},
		{name: "accrual", interval: cfg.AccrualInterval, run: runner.RunAccrualPass},
	}

	s := &Scheduler{logger: logger}
	for _, j := range all {
		if j.interval <= 0 {
			logger.Info("Scheduled pass disabled", "pass", j.name)
			continue
		}
		s.jobs = append(s.jobs, j)
	}
	return s
}

// Jobs lists the enabled pass names.
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		names = append(names, j.name)
	}
	return names
}

// Start launches the tickers and returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
}

// Wait blocks until every loop has exited after ctx is canceled.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j job) {
	defer s.wg.Done()
	logger := s.logger.With("pass", j.name)
	logger.Info("Starting scheduled pass", "interval", j.interval.String())

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Scheduled pass stopping due to context cancellation.")
			return
		case <-ticker.C:
			start := time.Now()
			result, err := j.run(ctx)
			if err != nil {
				logger.Error("Scheduled pass failed", "error", err)
				continue
			}
			logger.Info("Scheduled pass finished",
				"processed", result.Processed,
				"applied", result.Applied,
				"skipped", result.Skipped,
				"failed", result.Failed,
				"duration", time.Since(start).String(),
			)
		}
	}
}

// Package metrics declares the Prometheus collectors shared by the gateway and the worker.
package metrics

import (
	"errors"
	"time"

	"github.com/capital-cycle-ledger/internal/domain/shared"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TaskSettlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capital_cycle_task_settlements_total",
		Help: "Task state transitions by kind and resulting status",
	}, []string{"kind", "status"})

	SettlementErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capital_cycle_settlement_errors_total",
		Help: "Failed settlement operations by operation and error class",
	}, []string{"operation", "class"})

	SettlementLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "capital_cycle_settlement_duration_seconds",
		Help:    "Duration of settlement transactions",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"operation"})

	PoolInventory = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "capital_cycle_pool_addresses",
		Help: "Deposit addresses in the pool by status",
	}, []string{"status"})

	BatchPassAccounts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capital_cycle_batch_pass_accounts_total",
		Help: "Accounts visited by scheduled passes by pass and outcome",
	}, []string{"pass", "outcome"})

	OutboxPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capital_cycle_outbox_messages_total",
		Help: "Outbox messages relayed by outcome",
	}, []string{"outcome"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capital_cycle_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "capital_cycle_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "route"})
)

// ObserveSettlement records the duration since start under operation.
func ObserveSettlement(operation string, start time.Time) {
	SettlementLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordInventory publishes the three pool gauges.
func RecordInventory(available, reserved, used int64) {
	PoolInventory.WithLabelValues("available").Set(float64(available))
	PoolInventory.WithLabelValues("reserved").Set(float64(reserved))
	PoolInventory.WithLabelValues("used").Set(float64(used))
}

// ErrorClass turns an error into a low-cardinality label.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrForbidden):
		return "forbidden"
	case errors.Is(err, shared.ErrAlreadySettled):
		return "already_settled"
	case errors.Is(err, shared.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, shared.ErrPoolExhausted):
		return "pool_exhausted"
	case errors.Is(err, shared.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, shared.ErrCycleCapExceeded):
		return "cycle_cap"
	case errors.Is(err, shared.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, shared.ErrInvalidRequest):
		return "invalid_request"
	default:
		return "internal"
	}
}

// Package settings holds mutable admin settings read by the settlement engine.
package settings

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// KeyReferralCommissionRate is the fraction of a referred first deposit paid to the referrer.
const KeyReferralCommissionRate = "referral_commission_rate"

// Repository reads and writes key/value settings.
type Repository interface {
	// GetDecimal returns the stored value, or fallback when the key is absent.
	GetDecimal(ctx context.Context, key string, fallback decimal.Decimal) (decimal.Decimal, error)
	SetDecimal(ctx context.Context, key string, value decimal.Decimal) error
	WithTx(tx pgx.Tx) Repository
}

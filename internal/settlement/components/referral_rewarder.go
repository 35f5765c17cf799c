package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/capital-cycle-ledger/internal/config"
	"github.com/capital-cycle-ledger/internal/domain/account"
	"github.com/capital-cycle-ledger/internal/domain/ledger"
	"github.com/capital-cycle-ledger/internal/domain/settings"
	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/capital-cycle-ledger/internal/settlement/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ReferralRewarderImpl handles everything a first deposit triggers besides the deposit itself.
type ReferralRewarderImpl struct {
	accountRepo  account.Repository
	ledgerRepo   ledger.Repository
	settingsRepo settings.Repository
	cfg          config.ReferralConfig
	logger       *slog.Logger
	now          func() time.Time
}

func NewReferralRewarder(
	accountRepo account.Repository,
	ledgerRepo ledger.Repository,
	settingsRepo settings.Repository,
	cfg config.ReferralConfig,
	logger *slog.Logger,
) service.ReferralRewarder {
	return &ReferralRewarderImpl{
		accountRepo:  accountRepo,
		ledgerRepo:   ledgerRepo,
		settingsRepo: settingsRepo,
		cfg:          cfg,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// OnFirstDeposit sets the referred account's passive rate and baseline, then pays
// the referrer. The referred account is saved by the caller; the referrer is
// locked and saved here, after the referred account.
func (r *ReferralRewarderImpl) OnFirstDeposit(ctx context.Context, tx pgx.Tx, referred *account.Account, amount decimal.Decimal, taskID uuid.UUID) ([]*ledger.Entry, error) {
	now := r.now()
	referred.PassiveRate = r.cfg.BasePassiveRate
	referred.LastPassiveAccrualDate = &now

	if referred.ReferrerID == nil || *referred.ReferrerID == referred.ID {
		return nil, nil
	}
	logger := r.logger.With("account_id", referred.ID.String(), "referrer_id", referred.ReferrerID.String())

	accounts := r.accountRepo.WithTx(tx)
	referrer, err := accounts.LockForUpdate(ctx, *referred.ReferrerID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			logger.Warn("Referrer no longer exists, skipping referral commission")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock referrer: %w", err)
	}

	hasReferral, err := r.ledgerRepo.WithTx(tx).HasTag(ctx, referrer.ID, ledger.TagReferralReward)
	if err != nil {
		return nil, fmt.Errorf("failed to check referrer history: %w", err)
	}
	if hasReferral {
		referred.PassiveRate = r.cfg.ElevatedPassiveRate
	}

	rate, err := r.settingsRepo.WithTx(tx).GetDecimal(ctx, settings.KeyReferralCommissionRate, r.cfg.DefaultCommissionRate)
	if err != nil {
		return nil, err
	}
	commission := amount.Mul(rate).Round(8)

	if err := referrer.CreditReferral(commission); err != nil {
		return nil, err
	}
	if referrer.PassiveRate.LessThan(r.cfg.ElevatedPassiveRate) {
		referrer.PassiveRate = r.cfg.ElevatedPassiveRate
	}
	if err := accounts.Update(ctx, referrer); err != nil {
		return nil, fmt.Errorf("failed to save referrer: %w", err)
	}

	logger.Info("Referral commission credited", "rate", rate.String(), "commission", commission.String())

	return []*ledger.Entry{
		ledger.NewEntry(referrer.ID, ledger.KindCommission, ledger.TagReferralReward, commission,
			"Referral commission for the first deposit of "+referred.ID.String(), &taskID),
		ledger.NewEntry(referred.ID, ledger.KindCommission, ledger.TagReferralAttribution, decimal.Zero,
			"Referred by "+referrer.ID.String(), &taskID),
	}, nil
}

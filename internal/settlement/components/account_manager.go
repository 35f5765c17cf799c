package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/capital-cycle-ledger/internal/domain/account"
	"github.com/capital-cycle-ledger/internal/settlement/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AccountManagerImpl implements the AccountManager interface
type AccountManagerImpl struct {
	accountRepo account.Repository
	logger      *slog.Logger
}

func NewAccountManager(accountRepo account.Repository, logger *slog.Logger) service.AccountManager {
	return &AccountManagerImpl{
		accountRepo: accountRepo,
		logger:      logger,
	}
}

func (m *AccountManagerImpl) Lock(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*account.Account, error) {
	acc, err := m.accountRepo.WithTx(tx).LockForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("Account locked", "account_id", id.String(), "capital", acc.Capital.String(), "balance", acc.Balance.String(), "version", acc.Version)
	return acc, nil
}

func (m *AccountManagerImpl) LockActive(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*account.Account, error) {
	acc, err := m.Lock(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if acc.IsBlocked {
		return nil, account.ErrAccountBlocked{AccountID: id, Reason: acc.BlockReason}
	}
	return acc, nil
}

// Save persists the account. A broken balance >= capital expectation is logged,
// negative funds are refused by the repository.
func (m *AccountManagerImpl) Save(ctx context.Context, tx pgx.Tx, acc *account.Account) error {
	if covers, err := acc.CheckInvariants(); err == nil && !covers {
		m.logger.Warn("Account balance is below capital",
			"account_id", acc.ID.String(),
			"capital", acc.Capital.String(),
			"balance", acc.Balance.String(),
		)
	}

	if err := m.accountRepo.WithTx(tx).Update(ctx, acc); err != nil {
		m.logger.Error("Failed to update account", "account_id", acc.ID.String(), "error", err)
		return fmt.Errorf("failed to save account %s: %w", acc.ID.String(), err)
	}
	return nil
}

func (m *AccountManagerImpl) HasDeposits(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	return m.accountRepo.WithTx(tx).HasDeposits(ctx, id)
}

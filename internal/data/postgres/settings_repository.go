package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/capital-cycle-ledger/internal/domain/settings"
	"github.com/capital-cycle-ledger/internal/platform/persistence"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// SettingsRepository implements settings.Repository for PostgreSQL
type SettingsRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewSettingsRepository(logger *slog.Logger, db *persistence.PostgresDB) settings.Repository {
	return &SettingsRepository{querier: db.Querier(), logger: logger}
}

func (r *SettingsRepository) WithTx(tx pgx.Tx) settings.Repository {
	return &SettingsRepository{querier: tx, logger: r.logger}
}

func (r *SettingsRepository) GetDecimal(ctx context.Context, key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	var raw string
	err := r.querier.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fallback, nil
		}
		r.logger.Error("Failed to read setting", "key", key, "error", err)
		return decimal.Zero, fmt.Errorf("failed to read setting %s: %w", key, err)
	}

	value, err := decimal.NewFromString(raw)
	if err != nil {
		r.logger.Warn("Setting is not a decimal, using fallback", "key", key, "value", raw, "fallback", fallback.String())
		return fallback, nil
	}
	return value, nil
}

func (r *SettingsRepository) SetDecimal(ctx context.Context, key string, value decimal.Decimal) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := r.querier.Exec(ctx, query, key, value.String()); err != nil {
		r.logger.Error("Failed to write setting", "key", key, "error", err)
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind classifies a ledger entry.
type Kind string

const (
	KindDeposit     Kind = "DEPOSIT"
	KindWithdrawal  Kind = "WITHDRAWAL"
	KindProfit      Kind = "PROFIT"
	KindDailyProfit Kind = "DAILY_PROFIT"
	KindCommission  Kind = "COMMISSION"
	KindReinvest    Kind = "REINVEST"
)

// Tag marks entries that cycle accounting and referral logic key off.
// Reference stays display-only.
type Tag string

const (
	TagNone                Tag = "NONE"
	TagCycleReset          Tag = "CYCLE_RESET"
	TagEarlyLiquidation    Tag = "EARLY_LIQUIDATION"
	TagManualAdjustment    Tag = "MANUAL_ADJUSTMENT"
	TagPlanCommission      Tag = "PLAN_COMMISSION"
	TagReferralReward      Tag = "REFERRAL_REWARD"
	TagReferralAttribution Tag = "REFERRAL_ATTRIBUTION"
	TagPlanDailyReturn     Tag = "PLAN_DAILY_RETURN"
	TagPassiveDailyReturn  Tag = "PASSIVE_DAILY_RETURN"
)

// CutoffTags are the withdrawal tags that close a cycle.
var CutoffTags = []Tag{TagCycleReset, TagEarlyLiquidation}

// ProfitKinds are summed as cycle profit.
var ProfitKinds = []Kind{KindProfit, KindDailyProfit}

// Entry is an immutable ledger record. Commission charges carry a negative amount.
type Entry struct {
	ID        uuid.UUID       `json:"id"`
	AccountID uuid.UUID       `json:"account_id"`
	Kind      Kind            `json:"kind"`
	Tag       Tag             `json:"tag"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
	TaskID    *uuid.UUID      `json:"task_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewEntry builds an entry stamped with a fresh id and the current time.
func NewEntry(accountID uuid.UUID, kind Kind, tag Tag, amount decimal.Decimal, reference string, taskID *uuid.UUID) *Entry {
	if tag == "" {
		tag = TagNone
	}
	return &Entry{
		ID:        uuid.New(),
		AccountID: accountID,
		Kind:      kind,
		Tag:       tag,
		Amount:    amount,
		Reference: reference,
		TaskID:    taskID,
		CreatedAt: time.Now().UTC(),
	}
}

// IsCutoff reports whether the entry closes the current cycle.
func (e *Entry) IsCutoff() bool {
	if e.Kind == KindReinvest {
		return true
	}
	return e.Kind == KindWithdrawal && (e.Tag == TagCycleReset || e.Tag == TagEarlyLiquidation)
}

func (k Kind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdrawal, KindProfit, KindDailyProfit, KindCommission, KindReinvest:
		return true
	}
	return false
}

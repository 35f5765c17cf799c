package task

import (
	"testing"

	"github.com/capital-cycle-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoute(t *testing.T) {
	collaborator := uuid.New()
	other := uuid.New()

	direct := func(status Status) *Task {
		return &Task{ID: uuid.New(), Status: status}
	}
	assigned := func(status Status) *Task {
		return &Task{ID: uuid.New(), Status: status, CollaboratorID: &collaborator}
	}
	payout := func(status Status) *Task {
		return &Task{ID: uuid.New(), Status: status, DestinationCollaboratorID: &collaborator}
	}

	tests := []struct {
		name     string
		task     *Task
		reviewer Reviewer
		want     Decision
		wantErr  error
	}{
		{"completed task", direct(StatusCompleted), Reviewer{other, TierSecond}, 0, shared.ErrAlreadySettled},
		{"rejected task", assigned(StatusRejected), Reviewer{collaborator, TierCollaborator}, 0, shared.ErrAlreadySettled},
		{"assigned collaborator settles", assigned(StatusPending), Reviewer{collaborator, TierCollaborator}, DecisionTerminal, nil},
		{"payout collaborator settles", payout(StatusPending), Reviewer{collaborator, TierCollaborator}, DecisionTerminal, nil},
		{"second tier settles assigned", assigned(StatusPending), Reviewer{other, TierSecond}, DecisionTerminal, nil},
		{"other collaborator forbidden", assigned(StatusPending), Reviewer{other, TierCollaborator}, 0, shared.ErrForbidden},
		{"first tier on assigned forbidden", assigned(StatusPending), Reviewer{other, TierFirst}, 0, shared.ErrForbidden},
		{"first tier pre-reviews direct", direct(StatusPending), Reviewer{other, TierFirst}, DecisionPreReview, nil},
		{"first tier on pre-approved", direct(StatusPreApproved), Reviewer{other, TierFirst}, 0, shared.ErrInvalidState},
		{"second tier settles direct", direct(StatusPreApproved), Reviewer{other, TierSecond}, DecisionTerminal, nil},
		{"collaborator on direct forbidden", direct(StatusPending), Reviewer{collaborator, TierCollaborator}, 0, shared.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Route(tt.task, tt.reviewer)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTier(t *testing.T) {
	tier, ok := ParseTier(" second_tier ")
	assert.True(t, ok)
	assert.Equal(t, TierSecond, tier)

	_, ok = ParseTier("admin")
	assert.False(t, ok)
}

func TestTask_SettlementAmount(t *testing.T) {
	tk := NewTask(uuid.New(), KindDepositAuto, decimal.NewFromInt(50))

	assert.True(t, decimal.NewFromInt(50).Equal(tk.SettlementAmount(decimal.NullDecimal{})))
	assert.True(t, decimal.NewFromInt(45).Equal(tk.SettlementAmount(decimal.NewNullDecimal(decimal.NewFromInt(45)))))
	assert.True(t, decimal.NewFromInt(50).Equal(tk.SettlementAmount(decimal.NewNullDecimal(decimal.Zero))))
}

func TestTask_Transitions(t *testing.T) {
	reviewer := uuid.New()
	tk := NewTask(uuid.New(), KindWithdrawal, decimal.NewFromInt(20))
	assert.Equal(t, StatusPending, tk.Status)
	assert.True(t, tk.Status.IsOpen())
	assert.True(t, tk.IsDirect())

	tk.PreReview(reviewer, StatusPreApproved, "")
	assert.Equal(t, StatusPreApproved, tk.Status)
	assert.Equal(t, &reviewer, tk.PreReviewedBy)
	assert.True(t, tk.Status.IsOpen())

	tk.Complete(reviewer, decimal.NewFromInt(20), "tx-hash")
	assert.True(t, tk.Status.IsTerminal())
	assert.False(t, tk.Status.IsOpen())
	assert.Equal(t, "tx-hash", tk.ProofRef)
	assert.NotNil(t, tk.SettledAt)
	assert.True(t, tk.SettledAmount.Valid)

	rej := NewTask(uuid.New(), KindDepositManual, decimal.NewFromInt(5))
	rej.Reject(reviewer, "no funds received")
	assert.Equal(t, StatusRejected, rej.Status)
	assert.Equal(t, "no funds received", rej.RejectionReason)
}

func TestKind(t *testing.T) {
	assert.True(t, KindDepositAuto.IsDeposit())
	assert.True(t, KindDepositManual.IsDeposit())
	assert.False(t, KindWithdrawal.IsDeposit())
	assert.True(t, KindLiquidation.Valid())
	assert.False(t, Kind("TRANSFER").Valid())
}

func TestErrors_Is(t *testing.T) {
	id := uuid.New()
	assert.ErrorIs(t, ErrTaskNotFound{TaskID: id}, shared.ErrNotFound)
	assert.ErrorIs(t, ErrTaskNotFound{TaskID: id}, ErrTaskNotFound{})
	assert.ErrorIs(t, ErrTaskAlreadySettled{TaskID: id, Status: StatusCompleted}, shared.ErrAlreadySettled)
	assert.ErrorIs(t, ErrReviewerForbidden{TaskID: id}, shared.ErrForbidden)
}

package components

import (
	"context"
	"errors"
	"testing"

	"github.com/capital-cycle-ledger/internal/domain/pool"
	"github.com/stretchr/testify/mock"
)

func TestInventoryWatcher_Check(t *testing.T) {
	tests := []struct {
		name       string
		inventory  pool.Inventory
		invErr     error
		wantNotify bool
	}{
		{name: "below threshold", inventory: pool.Inventory{Available: 3, Reserved: 10, Used: 40}, wantNotify: true},
		{name: "at threshold", inventory: pool.Inventory{Available: 5}},
		{name: "inventory unavailable", invErr: errors.New("pool closed")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockAddressRepo{}
			notifier := &MockNotifier{}
			repo.On("Inventory", mock.Anything).Return(tt.inventory, tt.invErr)
			if tt.wantNotify {
				notifier.On("NotifyLowInventory", mock.Anything, tt.inventory.Available, 5).Return(errors.New("broker down"))
			}

			NewInventoryWatcher(repo, notifier, 5, newTestLogger()).Check(context.Background())

			repo.AssertExpectations(t)
			notifier.AssertExpectations(t)
			if !tt.wantNotify {
				notifier.AssertNotCalled(t, "NotifyLowInventory", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

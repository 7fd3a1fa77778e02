package wallet

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// TestService_Deposit_Validation tests the guard rails ahead of any transaction
func TestService_Deposit_Validation(t *testing.T) {
	service := NewService(nil, nil, nil, nil)
	ctx := context.Background()
	userID := uuid.New()

	tests := []struct {
		name       string
		amount     int64
		paymentRef string
		wantErr    error
	}{
		{name: "zero amount", amount: 0, paymentRef: "payment-1", wantErr: ErrInvalidAmount},
		{name: "negative amount", amount: -100, paymentRef: "payment-1", wantErr: ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			balance, err := service.Deposit(ctx, userID, tt.amount, tt.paymentRef)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, balance)
		})
	}

	t.Run("missing payment reference", func(t *testing.T) {
		balance, err := service.Deposit(ctx, userID, 1000, "")
		assert.Error(t, err)
		assert.Nil(t, balance)
	})
}

// TestService_Withdraw_Validation tests amount validation on withdrawals
func TestService_Withdraw_Validation(t *testing.T) {
	service := NewService(nil, nil, nil, nil)
	ctx := context.Background()

	balance, err := service.Withdraw(ctx, uuid.New(), 0, "payout-1")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Nil(t, balance)

	balance, err = service.Withdraw(ctx, uuid.New(), -500, "payout-1")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Nil(t, balance)
}

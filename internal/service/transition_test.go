package service

import (
	"testing"

	"membership-payments/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	const amount = int64(150000)

	tests := []struct {
		current  model.PaymentStatus
		incoming model.PaymentStatus
		action   action
		effect   effect
		err      error
	}{
		{model.StatusPending, model.StatusPending, actionReplay, effectNone, nil},
		{model.StatusPending, model.StatusCapture, actionApply, effectPaid, nil},
		{model.StatusPending, model.StatusSettlement, actionApply, effectPaid, nil},
		{model.StatusPending, model.StatusExpire, actionApply, effectNone, nil},
		{model.StatusPending, model.StatusRefund, actionReject, effectNone, ErrPrematureRefund},

		{model.StatusCapture, model.StatusPending, actionReplay, effectNone, nil},
		{model.StatusCapture, model.StatusCapture, actionReplay, effectNone, nil},
		{model.StatusCapture, model.StatusSettlement, actionApply, effectNone, nil},
		{model.StatusSettlement, model.StatusCapture, actionReplay, effectNone, nil},
		{model.StatusSettlement, model.StatusDeny, actionReject, effectNone, ErrConflictingTransition},
		{model.StatusSettlement, model.StatusRefund, actionApply, effectRevoke, nil},

		{model.StatusCancel, model.StatusPending, actionReplay, effectNone, nil},
		{model.StatusCancel, model.StatusExpire, actionReplay, effectNone, nil},
		{model.StatusDeny, model.StatusSettlement, actionReject, effectNone, ErrConflictingTransition},
		{model.StatusExpire, model.StatusRefund, actionReject, effectNone, ErrConflictingTransition},

		{model.StatusRefund, model.StatusRefund, actionReplay, effectNone, nil},
		{model.StatusRefund, model.StatusSettlement, actionReplay, effectNone, nil},
		{model.StatusRefund, model.StatusPending, actionReplay, effectNone, nil},
		{model.StatusRefund, model.StatusCancel, actionReject, effectNone, ErrConflictingTransition},

		{model.StatusPending, model.StatusUnknown, actionReject, effectNone, ErrUnknownStatus},
	}

	for _, tt := range tests {
		t.Run(string(tt.current)+"->"+string(tt.incoming), func(t *testing.T) {
			d := decide(tt.current, tt.incoming, amount, amount)
			assert.Equal(t, tt.action, d.action)
			assert.Equal(t, tt.effect, d.effect)
			if tt.err != nil {
				assert.ErrorIs(t, d.err, tt.err)
			} else {
				assert.NoError(t, d.err)
			}
		})
	}
}

func TestDecideAmountMismatch(t *testing.T) {
	d := decide(model.StatusPending, model.StatusSettlement, 150000, 100000)
	assert.Equal(t, actionReject, d.action)
	assert.ErrorIs(t, d.err, ErrAmountMismatch)

	// amounts only matter for success reports
	d = decide(model.StatusPending, model.StatusExpire, 150000, 100000)
	assert.Equal(t, actionApply, d.action)
}

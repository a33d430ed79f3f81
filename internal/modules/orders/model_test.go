package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayable(t *testing.T) {
	for _, status := range []string{StatusPending, StatusAwaitingPayment, StatusPendingRetry} {
		assert.True(t, Order{Status: status}.Payable(), status)
	}
	for _, status := range []string{StatusProcessing, StatusCompleted, StatusFailed, StatusAdminReview, StatusCancelled} {
		assert.False(t, Order{Status: status}.Payable(), status)
	}
}

func TestNextStatus(t *testing.T) {
	cases := []struct {
		from   string
		action string
		want   string
		ok     bool
	}{
		{StatusPending, "await_payment", StatusAwaitingPayment, true},
		{StatusPendingRetry, "await_payment", StatusAwaitingPayment, true},
		{StatusAwaitingPayment, "await_payment", StatusAwaitingPayment, true},
		{StatusProcessing, "await_payment", "", false},

		{StatusAwaitingPayment, "process", StatusProcessing, true},
		{StatusCompleted, "process", "", false},

		{StatusProcessing, "complete", StatusCompleted, true},
		{StatusPending, "complete", "", false},

		{StatusAwaitingPayment, "fail", StatusFailed, true},
		{StatusProcessing, "fail", StatusFailed, true},
		{StatusCompleted, "fail", "", false},

		{StatusAwaitingPayment, "review", StatusAdminReview, true},
		{StatusPending, "review", "", false},

		{StatusPending, "cancel", StatusCancelled, true},
		{StatusProcessing, "cancel", "", false},

		{StatusPending, "bogus", "", false},
	}

	for _, tc := range cases {
		got, err := nextStatus(tc.from, tc.action)
		if tc.ok {
			require.NoError(t, err, "%s/%s", tc.from, tc.action)
			assert.Equal(t, tc.want, got)
		} else {
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s/%s", tc.from, tc.action)
		}
	}
}

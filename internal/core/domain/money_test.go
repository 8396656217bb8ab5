package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDisplayPrice(t *testing.T) {
	tests := []struct {
		display string
		want    string
		wantErr bool
	}{
		{display: "₹1999.00", want: "1999"},
		{display: "₹1,999.00", want: "1999"},
		{display: "$12.5", want: "12.5"},
		{display: " 499 ", want: "499"},
		{display: "INR 0.99", want: "0.99"},
		{display: "", wantErr: true},
		{display: "Free", wantErr: true},
		{display: "₹0.00", wantErr: true},
		{display: "1.2.3", wantErr: true},
		// More than one dot is not guessed at; the game is treated as unpriced.
		{display: "1.999.00", wantErr: true},
		{display: "-5", want: "5"},
	}

	for _, tt := range tests {
		t.Run(tt.display, func(t *testing.T) {
			got, err := ParseDisplayPrice(tt.display)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidPrice))
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestParseRate(t *testing.T) {
	rate, err := ParseRate(" 83.5 ")
	require.NoError(t, err)
	assert.Equal(t, "83.5", rate.String())

	for _, raw := range []string{"", "abc", "0", "-1"} {
		_, err := ParseRate(raw)
		assert.ErrorIs(t, err, ErrInvalidRate, "rate %q", raw)
	}
}

func TestConvert(t *testing.T) {
	rate := decimal.RequireFromString("83.5")

	money := Convert(decimal.RequireFromString("1999"), rate, "USD")
	assert.Equal(t, "23.94", money.Value())
	assert.Equal(t, "USD", money.Currency)

	// 1/83.5 = 0.01197... keeps a minimum non-zero cent.
	assert.Equal(t, "0.01", Convert(decimal.NewFromInt(1), rate, "USD").Value())
	assert.Equal(t, "10.00", Convert(decimal.RequireFromString("835"), rate, "USD").Value())
}

func TestCode(t *testing.T) {
	assert.Equal(t, "validation_error", Code(MissingFieldsError("orderId")))
	assert.Equal(t, "not_found", Code(NewNotFoundError(ErrProductNotFound)))
	assert.Equal(t, "payment_incomplete", Code(NewPaymentIncompleteError("DECLINED")))
	assert.Equal(t, "ledger_write_failed", Code(NewLedgerWriteError("ORDER123", errors.New("boom"))))
	assert.Equal(t, "order_mismatch", Code(NewOrderMismatchError("ORDER123", errors.New("boom"))))
	assert.Equal(t, "internal_error", Code(errors.New("boom")))
}

func TestErrorUnwrapsKindAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewUpstreamError("Failed to capture payment", cause)

	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Failed to capture payment", err.Error())
}

func TestMissingFieldsError(t *testing.T) {
	err := MissingFieldsError("orderId", "userId")
	assert.Equal(t, "Missing required fields: orderId, userId", err.Error())
}

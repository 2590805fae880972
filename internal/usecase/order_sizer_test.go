package usecase

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"spot-engine/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAdjustQuantity(t *testing.T) {
	c := domain.SymbolConstraints{MinQty: dec("0.001"), MaxQty: dec("5"), StepSize: dec("0.001")}

	tests := []struct {
		raw  string
		want string
	}{
		{raw: "0.12345", want: "0.123"},
		{raw: "0.1239999", want: "0.123"},
		{raw: "0.0004", want: "0.001"},
		{raw: "12.5", want: "5"},
		{raw: "2", want: "2"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := AdjustQuantity(c, dec(tt.raw))
			assert.True(t, got.Equal(dec(tt.want)), "got %s", got)
			assert.True(t, got.Mod(c.StepSize).IsZero())
		})
	}
}

func TestValidateNotional(t *testing.T) {
	assert.True(t, ValidateNotional(dec("0.005"), dec("2000"), dec("10")))
	assert.False(t, ValidateNotional(dec("0.0049"), dec("2000"), dec("10")))
}

func TestOrderSizer_EntryQuantity(t *testing.T) {
	port := new(mockConstraints)
	port.On("Constraints", mock.Anything, "ETHUSDT").Return(btcConstraints(), nil)

	s := NewOrderSizer(port)
	require.NoError(t, s.Load(context.Background(), []string{"ETHUSDT"}))

	qty, err := s.EntryQuantity("ETHUSDT", 22.5, 2000)
	require.NoError(t, err)
	assert.Equal(t, "0.0112", qty.String())

	_, err = s.EntryQuantity("ETHUSDT", 9, 2000)
	assert.ErrorIs(t, err, domain.ErrOrderTooSmall)

	_, err = s.EntryQuantity("SOLUSDT", 22.5, 100)
	assert.ErrorIs(t, err, domain.ErrConstraintUnavailable)

	port.AssertExpectations(t)
}

func TestOrderSizer_LoadRejectsMisalignedBounds(t *testing.T) {
	bad := btcConstraints()
	bad.MinQty = dec("0.00015")

	port := new(mockConstraints)
	port.On("Constraints", mock.Anything, "BTCUSDT").Return(btcConstraints(), nil)
	port.On("Constraints", mock.Anything, "XRPUSDT").Return(bad, nil)

	s := NewOrderSizer(port)
	err := s.Load(context.Background(), []string{"BTCUSDT", "XRPUSDT"})
	require.ErrorIs(t, err, domain.ErrConstraintUnavailable)

	_, err = s.Constraints("BTCUSDT")
	assert.NoError(t, err)
	_, err = s.Constraints("XRPUSDT")
	assert.ErrorIs(t, err, domain.ErrConstraintUnavailable)
}

func TestOrderSizer_ExitQuantityAndPrice(t *testing.T) {
	port := new(mockConstraints)
	port.On("Constraints", mock.Anything, "BTCUSDT").Return(btcConstraints(), nil)

	s := NewOrderSizer(port)
	require.NoError(t, s.Load(context.Background(), []string{"BTCUSDT"}))

	qty, err := s.ExitQuantity("BTCUSDT", 0.00056789)
	require.NoError(t, err)
	assert.Equal(t, "0.0005", qty.String())

	p, err := s.AdjustPrice("BTCUSDT", 30123.4567)
	require.NoError(t, err)
	assert.Equal(t, "30123.46", p.String())

	p, err = s.AdjustPrice("BTCUSDT", 100*(1+2.5/100))
	require.NoError(t, err)
	assert.Equal(t, "102.5", p.String(), "float noise does not drop a tick")
}

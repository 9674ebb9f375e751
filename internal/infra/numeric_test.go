package infra

import (
	"math"
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericToDecimal_Cash(t *testing.T) {
	// 30025 * 10^-2 = 300.25
	n := pgtype.Numeric{Int: big.NewInt(30025), Exp: -2, Valid: true}
	d, err := NumericToDecimal(n)
	require.NoError(t, err)
	assert.Equal(t, "300.25", d.StringFixed(2))
}

func TestNumericToDecimal_PositiveExponent(t *testing.T) {
	n := pgtype.Numeric{Int: big.NewInt(5), Exp: 3, Valid: true}
	d, err := NumericToDecimal(n)
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.NewFromInt(5000)))
}

func TestNumericToDecimal_NullReturnsError(t *testing.T) {
	_, err := NumericToDecimal(pgtype.Numeric{Valid: false})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NULL")
}

func TestNumericToDecimal_NaNReturnsError(t *testing.T) {
	_, err := NumericToDecimal(pgtype.Numeric{NaN: true, Valid: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NaN")
}

func TestNumericToDecimal_InfinityReturnsError(t *testing.T) {
	_, err := NumericToDecimal(pgtype.Numeric{InfinityModifier: pgtype.Infinity, Valid: true})
	require.Error(t, err)
}

func TestDecimalToNumeric_Roundtrip(t *testing.T) {
	values := []string{"0", "0.01", "-0.01", "300.00", "1000", "-25.50", "9999999999999999.99"}
	for _, v := range values {
		want := decimal.RequireFromString(v)
		got, err := NumericToDecimal(DecimalToNumeric(want))
		require.NoError(t, err, "value: %s", v)
		assert.True(t, want.Equal(got), "value: %s, got %s", v, got)
	}
}

func TestNumericToInt64(t *testing.T) {
	tests := []struct {
		name string
		n    pgtype.Numeric
		want int64
	}{
		{"zero", pgtype.Numeric{Int: big.NewInt(0), Valid: true}, 0},
		{"whole", pgtype.Numeric{Int: big.NewInt(500), Valid: true}, 500},
		{"negative", pgtype.Numeric{Int: big.NewInt(-200), Valid: true}, -200},
		{"positive exponent", pgtype.Numeric{Int: big.NewInt(5), Exp: 2, Valid: true}, 500},
		{"truncates fraction", pgtype.Numeric{Int: big.NewInt(50099), Exp: -2, Valid: true}, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NumericToInt64(tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestNumericToInt64_Overflow(t *testing.T) {
	overflow := new(big.Int).SetInt64(math.MaxInt64)
	overflow.Add(overflow, big.NewInt(1))
	_, err := NumericToInt64(pgtype.Numeric{Int: overflow, Valid: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overflows")
}

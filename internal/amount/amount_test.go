package amount

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"
)

func TestBounds(t *testing.T) {
	require.Equal(t, "170141183460469231731687303715884105727", Max().String())
	require.Equal(t, "-170141183460469231731687303715884105728", Min().String())

	_, err := Check(Max())
	require.NoError(t, err)
	_, err = Check(Max().AddRaw(1))
	require.ErrorIs(t, err, ErrOverflow)
	_, err = Check(Min().SubRaw(1))
	require.ErrorIs(t, err, ErrOverflow)
}

func TestCheckedOps(t *testing.T) {
	tests := []struct {
		name    string
		op      func() (sdkmath.Int, error)
		want    string
		wantErr error
	}{
		{"add", func() (sdkmath.Int, error) { return Add(New(2), New(3)) }, "5", nil},
		{"add overflow", func() (sdkmath.Int, error) { return Add(Max(), New(1)) }, "", ErrOverflow},
		{"sub", func() (sdkmath.Int, error) { return Sub(New(2), New(3)) }, "-1", nil},
		{"sub overflow", func() (sdkmath.Int, error) { return Sub(Min(), New(1)) }, "", ErrOverflow},
		{"mul overflow", func() (sdkmath.Int, error) { return Mul(Max(), New(2)) }, "", ErrOverflow},
		{"quo floors", func() (sdkmath.Int, error) { return Quo(New(7), New(2)) }, "3", nil},
		{"quo zero", func() (sdkmath.Int, error) { return Quo(New(7), Zero()) }, "", ErrDivisionByZero},
		{"muldiv", func() (sdkmath.Int, error) { return MulDiv(New(100), New(1000), New(300)) }, "333", nil},
		{"abs min", func() (sdkmath.Int, error) { return Abs(Min()) }, "", ErrOverflow},
		{"abs", func() (sdkmath.Int, error) { return Abs(New(-9)) }, "9", nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.op()
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got.String())
		})
	}
}

func TestParse(t *testing.T) {
	v, err := Parse("1000")
	require.NoError(t, err)
	require.True(t, v.Equal(New(1000)))

	_, err = Parse("abc")
	require.Error(t, err)

	_, err = Parse("170141183460469231731687303715884105728")
	require.ErrorIs(t, err, ErrOverflow)
}

func TestOrZero(t *testing.T) {
	var unset sdkmath.Int
	require.True(t, OrZero(unset).IsZero())
	require.True(t, OrZero(New(4)).Equal(New(4)))
}

package checkcode

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 256)
	}
	return data
}

func TestCalculate_TypeA_IsInternalError(t *testing.T) {
	_, err := Calculate(A, testMessage(DataLenMax))
	require.Error(t, err)
}

func TestCalculate_Lengths(t *testing.T) {
	cases := []struct {
		typ Type
		n   int
	}{
		{B, 4}, {C, 4}, {D, 2}, {E, 2},
	}
	for _, tc := range cases {
		code, err := Calculate(tc.typ, testMessage(DataLenMax))
		require.NoError(t, err)
		assert.Len(t, code, tc.n)
		assert.Equal(t, tc.n, tc.typ.Len())
	}
}

func TestCalculate_OutOfRangeLength(t *testing.T) {
	_, err := Calculate(B, testMessage(DataLenMin-1))
	require.Error(t, err)

	_, err = Calculate(B, testMessage(DataLenMax+1))
	require.Error(t, err)
}

func TestCalculate_Deterministic(t *testing.T) {
	data := testMessage(200)
	for _, typ := range []Type{B, C, D, E} {
		a, err := Calculate(typ, data)
		require.NoError(t, err)
		b, err := Calculate(typ, data)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(a, b))
	}
}

func TestCalculate_DistinguishesBFromCAndDFromE(t *testing.T) {
	data := testMessage(200)
	b, err := Calculate(B, data)
	require.NoError(t, err)
	c, err := Calculate(C, data)
	require.NoError(t, err)
	assert.False(t, bytes.Equal(b, c), "B and C must use distinct polynomials/inits")

	d, err := Calculate(D, data)
	require.NoError(t, err)
	e, err := Calculate(E, data)
	require.NoError(t, err)
	assert.False(t, bytes.Equal(d, e), "D and E must use distinct polynomials/inits")
}

func TestCalculate_InvalidType(t *testing.T) {
	_, err := Calculate(Type(99), testMessage(100))
	require.Error(t, err)
}

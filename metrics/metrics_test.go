package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isPrime(n uint32) bool {
	if n < 2 {
		return false
	}
	for i := uint32(2); i*i <= n; i++ {
		if n%i == 0 {
			return false
		}
	}
	return true
}

func TestPrimeLadderIsPrime(t *testing.T) {
	for _, p := range primeLadder {
		assert.True(t, isPrime(p), "ladder entry %d", p)
	}
}

func TestNextPrime(t *testing.T) {
	assert.Equal(t, uint32(0), NextPrime(0))
	assert.Equal(t, uint32(2), NextPrime(1))
	assert.Equal(t, uint32(5), NextPrime(5))
	assert.Equal(t, uint32(7), NextPrime(6))
	assert.GreaterOrEqual(t, NextPrime(1000), uint32(1000))
	assert.True(t, isPrime(NextPrime(123456)))
}

func TestRaisePercent(t *testing.T) {
	assert.Equal(t, uint32(105), RaisePercent(100, 5))
	assert.Equal(t, uint32(1050), RaisePercent(1000, 5))
	// no overflow-prone multiply on large counts
	assert.Equal(t, uint32(831228300), RaisePercent(791646000, 5))
}

func TestInterleaveTable(t *testing.T) {
	require.Len(t, InterleaveTable, MaxInterleaveEntry)
	for _, row := range InterleaveTable {
		assert.Equal(t, uint32(362880), row.NumStored*row.Step, "interleave %d", row.NumStored)
	}

	row := GetInterleave(9, 504)
	require.NotNil(t, row)
	assert.Equal(t, uint32(720), row.Step)

	assert.Nil(t, GetInterleave(9, 500))
	assert.Equal(t, 6, InterleaveIndex(9, 120))
}

func TestGetGenerator(t *testing.T) {
	row := GetGenerator(9, false, 4)
	require.NotNil(t, row)
	assert.Equal(t, uint32(791646), row.NumSignature)

	assert.Nil(t, GetGenerator(9, false, 9))
}

package rle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testRoundTrip(t *testing.T, counts []int, height, width int) {
	mask, err := Decode(counts, height, width)
	require.NoError(t, err)
	require.Len(t, mask, height*width)
	require.Equal(t, counts, Encode(mask))
}

func TestRLE(t *testing.T) {
	testRoundTrip(t, []int{}, 4, 4)
	testRoundTrip(t, []int{1, 3, 5, 7}, 10, 20)
	testRoundTrip(t, []int{1, 200}, 10, 20)
	testRoundTrip(t, []int{16, 1}, 4, 4)

	mask, err := Decode([]int{1, 3, 5, 7}, 10, 20)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.True(t, mask[i])
	}
	require.False(t, mask[3])
	for i := 4; i < 11; i++ {
		require.True(t, mask[i])
	}
	require.False(t, mask[11])
}

func TestRLEErrors(t *testing.T) {
	_, err := Decode([]int{1, 2, 3}, 4, 4)
	require.ErrorIs(t, err, ErrOddCounts)

	_, err = Decode([]int{-1, 2}, 4, 4)
	require.ErrorIs(t, err, ErrNegativeCount)

	_, err = Decode([]int{1, 2}, 0, 4)
	require.ErrorIs(t, err, ErrSizeDimensions)

	_, err = Decode([]int{15, 3}, 4, 4)
	require.Error(t, err)
}

package collections

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliceIterator(t *testing.T) {
	it := NewSliceIterator([]string{"a", "b", "c"})
	assert.True(t, it.IsDone(), "iterator must not be positioned before First")

	got, err := Collect(it)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)

	empty, err := Collect(NewSliceIterator[int](nil))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRangeIterator(t *testing.T) {
	tests := []struct {
		name       string
		begin, end uint64
		want       []uint64
	}{
		{"single", 5, 5, []uint64{5}},
		{"inclusive", 0, 3, []uint64{0, 1, 2, 3}},
		{"empty", 4, 3, nil},
		{"max", math.MaxUint64 - 1, math.MaxUint64, []uint64{math.MaxUint64 - 1, math.MaxUint64}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Collect(NewRangeIterator(tt.begin, tt.end))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAllStopsEarly(t *testing.T) {
	var got []uint64
	for v := range All(NewRangeIterator(1, 100)) {
		if v > 3 {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []uint64{1, 2, 3}, got)
}

func TestChainIterator(t *testing.T) {
	it := NewChainIterator(
		NewSliceIterator([]int{}),
		NewSliceIterator([]int{1, 2}),
		NewSliceIterator([]int{}),
		NewSliceIterator([]int{3}),
	)
	got, err := Collect(it)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)

	got, err = Collect(NewChainIterator[int]())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestChainIteratorStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	it := NewChainIterator(
		NewSliceIterator([]int{1}),
		newErrIterator[int](boom),
		NewSliceIterator([]int{2}),
	)
	got, err := Collect(it)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{1}, got)
}

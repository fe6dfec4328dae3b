package util

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistributionStats(t *testing.T) {
	even := CountStats([]uint64{10, 10, 10, 10})
	assert.Equal(t, 40.0, even.Sum)
	assert.Equal(t, 10.0, even.Mean)
	assert.Equal(t, 0.0, even.StdDeviation)
	assert.Equal(t, 1.0, even.DistributionQuality)

	skewed := CountStats([]uint64{0, 0, 0, 40})
	assert.Equal(t, 0.0, skewed.MinMaxRatio)
	assert.Less(t, skewed.DistributionQuality, 0.5)

	empty := CountStats(nil)
	assert.Equal(t, Stats{}, empty.Stats)
}

func TestStatsStdDeviation(t *testing.T) {
	s := NewStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.Equal(t, 5.0, s.Mean)
	assert.InDelta(t, 2.0, s.StdDeviation, 1e-9)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 9.0, s.Max)
}

func TestBatchHistogram(t *testing.T) {
	h := NewBatchHistogram()
	assert.Equal(t, 0, h.Percentile(50))

	for i := 0; i < 90; i++ {
		h.AddSample(3)
	}
	for i := 0; i < 10; i++ {
		h.AddSample(1000)
	}

	assert.Equal(t, int64(100), h.Count())
	assert.Equal(t, int64(90*3+10*1000), h.Sum())
	assert.InDelta(t, 102.7, h.Mean(), 1e-9)
	assert.Equal(t, 4, h.Percentile(50))
	assert.Equal(t, 1024, h.Percentile(99))

	h.AddSample(math.MaxInt32)
	assert.Equal(t, 1<<31, h.Percentile(100))

	h.Reset()
	assert.Equal(t, int64(0), h.Count())
}

func TestSystemInfo(t *testing.T) {
	info := GetSystemInfo()
	assert.NotEmpty(t, info.Hostname)
	assert.GreaterOrEqual(t, info.Cores, 1)
	assert.LessOrEqual(t, info.MemoryUsed(), info.MemoryTotal)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KiB", FormatBytes(1536))
	assert.Equal(t, "2.0 GiB", FormatBytes(2<<30))
}

package util

import (
	"math"
	"sync"
)

// ----------------------------------------------------------------------------
// Distribution statistics
// ----------------------------------------------------------------------------

// Stats summarizes a set of values
type Stats struct {
	StdDeviation float64 `json:"std_deviation" yaml:"std_deviation"`
	Min          float64 `json:"min" yaml:"min"`
	Max          float64 `json:"max" yaml:"max"`
	Mean         float64 `json:"mean" yaml:"mean"`
	Sum          float64 `json:"sum" yaml:"sum"`
	MinMaxRatio  float64 `json:"min_max_ratio" yaml:"min_max_ratio"`
}

// NewStats computes mean, standard deviation (population), minimum and maximum
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	lo, hi := values[0], values[0]
	var sum float64
	for _, v := range values {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	mean := sum / float64(len(values))

	var squares float64
	for _, v := range values {
		squares += (v - mean) * (v - mean)
	}

	ratio := 1.0
	if hi > 0 {
		ratio = lo / hi
	}

	return Stats{
		StdDeviation: math.Sqrt(squares / float64(len(values))),
		Min:          lo,
		Max:          hi,
		Mean:         mean,
		Sum:          sum,
		MinMaxRatio:  ratio,
	}
}

// DistributionStats rates how evenly values (e.g. the record counts of the
// members of a partition) are spread
type DistributionStats struct {
	Stats
	// DistributionQuality is 1 for a perfectly even spread and approaches 0
	// when a few members hold everything
	DistributionQuality float64 `json:"distribution_quality" yaml:"distribution_quality"`
}

// NewDistributionStats computes the distribution quality of the given values
func NewDistributionStats(values []float64) DistributionStats {
	stats := NewStats(values)

	// coefficient of variation
	var cv float64
	if stats.Mean > 0 {
		cv = stats.StdDeviation / stats.Mean
	}

	return DistributionStats{
		Stats:               stats,
		DistributionQuality: (1.0-math.Min(1.0, cv))*0.5 + stats.MinMaxRatio*0.5,
	}
}

// CountStats is NewDistributionStats for integer counts
func CountStats(counts []uint64) DistributionStats {
	values := make([]float64, len(counts))
	for i, c := range counts {
		values[i] = float64(c)
	}
	return NewDistributionStats(values)
}

// ----------------------------------------------------------------------------
// BatchHistogram
// ----------------------------------------------------------------------------

// BatchHistogram tracks the distribution of batch sizes (records per drain,
// per flush, ...) in exponential buckets from 1 to about a billion.
type BatchHistogram struct {
	mutex      sync.RWMutex
	boundaries []int
	buckets    []int64 // len(boundaries)+1, the last one takes everything larger
	count      int64
	sum        int64
}

// NewBatchHistogram creates a histogram with buckets growing by a factor of 4
func NewBatchHistogram() *BatchHistogram {
	boundaries := make([]int, 16)
	for i := range boundaries {
		boundaries[i] = 1 << (2 * i)
	}
	return &BatchHistogram{
		boundaries: boundaries,
		buckets:    make([]int64, len(boundaries)+1),
	}
}

// AddSample records one batch of the given size
//
// Thread-safe: This method is safe for concurrent use
func (h *BatchHistogram) AddSample(size int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	bucket := len(h.boundaries)
	for i, boundary := range h.boundaries {
		if size <= boundary {
			bucket = i
			break
		}
	}
	h.buckets[bucket]++
	h.count++
	h.sum += int64(size)
}

// Count returns the number of samples
//
// Thread-safe: This method is safe for concurrent use
func (h *BatchHistogram) Count() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.count
}

// Sum returns the sum of all samples
//
// Thread-safe: This method is safe for concurrent use
func (h *BatchHistogram) Sum() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.sum
}

// Mean returns the average batch size
//
// Thread-safe: This method is safe for concurrent use
func (h *BatchHistogram) Mean() float64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if h.count == 0 {
		return 0
	}
	return float64(h.sum) / float64(h.count)
}

// Percentile estimates the given percentile (0-100) as the upper bound of the
// bucket it falls into
//
// Thread-safe: This method is safe for concurrent use
func (h *BatchHistogram) Percentile(percentile int) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	target := int64(math.Ceil(float64(h.count) * float64(percentile) / 100.0))
	var cumulative int64
	for i, n := range h.buckets {
		cumulative += n
		if cumulative >= target && n > 0 {
			if i < len(h.boundaries) {
				return h.boundaries[i]
			}
			return h.boundaries[len(h.boundaries)-1] * 2
		}
	}
	return h.boundaries[len(h.boundaries)-1] * 2
}

// Reset clears all samples
//
// Thread-safe: This method is safe for concurrent use
func (h *BatchHistogram) Reset() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.count = 0
	h.sum = 0
	for i := range h.buckets {
		h.buckets[i] = 0
	}
}

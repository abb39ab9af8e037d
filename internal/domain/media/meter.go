package media

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const defaultWindow = 256

// MeterStats summarises a node's output stream
type MeterStats struct {
	Chunks         uint64    `json:"chunks"`
	Bytes          uint64    `json:"bytes"`
	MeanChunk      float64   `json:"mean_chunk_bytes"`
	StdDevChunk    float64   `json:"stddev_chunk_bytes"`
	MedianChunk    float64   `json:"median_chunk_bytes"`
	BytesPerSecond float64   `json:"bytes_per_second"`
	LastChunkAt    time.Time `json:"last_chunk_at"`
}

// Meter tracks chunk sizes over a sliding window. Not safe for concurrent
// use; the relay guards it with the feed lock.
type Meter struct {
	sizes  []float64
	times  []time.Time
	next   int
	filled bool

	chunks uint64
	bytes  uint64
}

// NewMeter creates a meter keeping the last window chunks
func NewMeter(window int) *Meter {
	if window <= 1 {
		window = defaultWindow
	}
	return &Meter{
		sizes: make([]float64, window),
		times: make([]time.Time, window),
	}
}

// Observe records one chunk
func (m *Meter) Observe(n int, at time.Time) {
	m.sizes[m.next] = float64(n)
	m.times[m.next] = at
	m.next = (m.next + 1) % len(m.sizes)
	if m.next == 0 {
		m.filled = true
	}
	m.chunks++
	m.bytes += uint64(n)
}

// Stats computes the current summary
func (m *Meter) Stats() MeterStats {
	out := MeterStats{Chunks: m.chunks, Bytes: m.bytes}

	count := m.next
	if m.filled {
		count = len(m.sizes)
	}
	if count == 0 {
		return out
	}

	window := make([]float64, count)
	copy(window, m.sizes[:count])

	out.MeanChunk, out.StdDevChunk = stat.MeanStdDev(window, nil)
	if count < 2 {
		out.StdDevChunk = 0
	}

	sort.Float64s(window)
	out.MedianChunk = stat.Quantile(0.5, stat.Empirical, window, nil)

	newest := (m.next - 1 + len(m.times)) % len(m.times)
	oldest := 0
	if m.filled {
		oldest = m.next
	}
	out.LastChunkAt = m.times[newest]

	// n chunks span n-1 intervals; the oldest chunk arrived at the start
	// of the span, so only the bytes after it count toward the rate
	if span := m.times[newest].Sub(m.times[oldest]); span > 0 {
		delivered := floats.Sum(m.sizes[:count]) - m.sizes[oldest]
		out.BytesPerSecond = delivered / span.Seconds()
	}
	return out
}

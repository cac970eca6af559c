package recorder

import (
	"sync"
	"time"
)

// Metrics tracks sample and chunk throughput for one recorder.
type Metrics struct {
	mu sync.RWMutex

	SamplesRead    uint64
	SamplesWritten uint64
	SamplesDropped uint64
	ChunksEmitted  uint64
	EmptyChunks    uint64
	BytesWritten   uint64
	BytesEmitted   uint64
	LastChunkSize  int

	startTime time.Time
}

func newMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) RecordRead() {
	m.mu.Lock()
	m.SamplesRead++
	m.mu.Unlock()
}

func (m *Metrics) RecordWrite(size int) {
	m.mu.Lock()
	m.SamplesWritten++
	m.BytesWritten += uint64(size)
	m.mu.Unlock()
}

func (m *Metrics) RecordDrop() {
	m.mu.Lock()
	m.SamplesDropped++
	m.mu.Unlock()
}

func (m *Metrics) RecordChunk(size int) {
	m.mu.Lock()
	m.ChunksEmitted++
	if size == 0 {
		m.EmptyChunks++
	}
	m.BytesEmitted += uint64(size)
	m.LastChunkSize = size
	m.mu.Unlock()
}

// MetricsSnapshot is a point-in-time copy of metrics for logging.
type MetricsSnapshot struct {
	SamplesRead    uint64
	SamplesWritten uint64
	SamplesDropped uint64
	ChunksEmitted  uint64
	EmptyChunks    uint64
	BytesEmitted   uint64
	LastChunkSize  int
	BitrateKbps    float64
	Uptime         time.Duration
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uptime := time.Since(m.startTime)
	rate := float64(0)
	if uptime.Seconds() > 0 {
		rate = float64(m.BytesEmitted) * 8 / uptime.Seconds() / 1000.0
	}

	return MetricsSnapshot{
		SamplesRead:    m.SamplesRead,
		SamplesWritten: m.SamplesWritten,
		SamplesDropped: m.SamplesDropped,
		ChunksEmitted:  m.ChunksEmitted,
		EmptyChunks:    m.EmptyChunks,
		BytesEmitted:   m.BytesEmitted,
		LastChunkSize:  m.LastChunkSize,
		BitrateKbps:    rate,
		Uptime:         uptime,
	}
}

package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// HostSample is one reading of host utilisation
type HostSample struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	At            time.Time `json:"at"`
}

// HostReader takes one host reading
type HostReader func(ctx context.Context) (HostSample, error)

// ReadHost samples CPU and memory utilisation through gopsutil
func ReadHost(ctx context.Context) (HostSample, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return HostSample{}, fmt.Errorf("cpu percent: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return HostSample{}, fmt.Errorf("virtual memory: %w", err)
	}

	sample := HostSample{MemoryPercent: vm.UsedPercent, At: time.Now()}
	if len(percents) > 0 {
		sample.CPUPercent = percents[0]
	}
	return sample, nil
}

// SystemSampler periodically reads host utilisation and hands it to a sink
type SystemSampler struct {
	interval time.Duration
	read     HostReader
	sink     func(HostSample)
	metrics  *Metrics
	logger   *zap.Logger
}

// NewSystemSampler creates a sampler using gopsutil readings
func NewSystemSampler(interval time.Duration, logger *zap.Logger) *SystemSampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SystemSampler{
		interval: interval,
		read:     ReadHost,
		logger:   logger,
	}
}

// WithReader replaces the host reader
func (s *SystemSampler) WithReader(read HostReader) *SystemSampler {
	s.read = read
	return s
}

// WithMetrics exports samples as Prometheus gauges
func (s *SystemSampler) WithMetrics(metrics *Metrics) *SystemSampler {
	s.metrics = metrics
	return s
}

// OnSample registers the sink that receives every successful sample
func (s *SystemSampler) OnSample(fn func(HostSample)) *SystemSampler {
	s.sink = fn
	return s
}

// Run samples until ctx is cancelled
func (s *SystemSampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sampleOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleOnce(ctx)
		}
	}
}

func (s *SystemSampler) sampleOnce(ctx context.Context) {
	sample, err := s.read(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("Host sample failed", zap.Error(err))
		}
		return
	}
	if s.metrics != nil {
		s.metrics.SetHost(sample.CPUPercent, sample.MemoryPercent)
	}
	if s.sink != nil {
		s.sink(sample)
	}
}

// Package debugstatssvc periodically logs runtime and host stats.
package debugstatssvc

import (
	"context"
	"fmt"
	"github.com/lefinal/masc-devices/errors"
	"github.com/lefinal/masc-devices/service"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
	"runtime"
	"time"
)

// Config for the debug stats service.
type Config struct {
	// IsEnabled describes whether periodic debug stats logging is desired.
	IsEnabled bool
	// Interval in which to log debug stats.
	Interval time.Duration
}

type debugStatsService struct {
	logger *zap.Logger
	config Config
	// readHostMemory reads host memory stats. Replaced in tests.
	readHostMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
}

// NewService creates the debug stats service. If enabled, the interval must be
// positive.
func NewService(logger *zap.Logger, config Config) (service.Service, error) {
	if config.IsEnabled && config.Interval <= 0 {
		return nil, errors.NewInvalidConfigError("debug stats interval must be positive",
			errors.Details{"interval": config.Interval.String()})
	}
	return &debugStatsService{
		logger:         logger,
		config:         config,
		readHostMemory: mem.VirtualMemoryWithContext,
	}, nil
}

// Run the service until the given context.Context is done.
func (s *debugStatsService) Run(ctx context.Context) error {
	if !s.config.IsEnabled {
		return nil
	}
	s.logger.Debug(fmt.Sprintf("logging system state every %gs", s.config.Interval.Seconds()))
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.logSystemDebugStats(ctx)
		}
	}
}

// logSystemDebugStats logs the current system state like runtime memory stats
// and host memory.
func (s *debugStatsService) logSystemDebugStats(ctx context.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	fields := []zap.Field{
		zap.Int("num_cpu", runtime.NumCPU()),
		zap.Int("num_goroutine", runtime.NumGoroutine()),
		zap.Uint64("mem_sys_mb", memStats.Sys/1000/1000),
		zap.Uint64("heap_alloc_mb", memStats.HeapAlloc/1000/1000),
		zap.Uint32("num_gc", memStats.NumGC),
	}
	hostMemory, err := s.readHostMemory(ctx)
	if err != nil {
		errors.Log(s.logger, errors.NewInternalErrorFromErr(err, "read host memory", nil))
	} else {
		fields = append(fields,
			zap.Uint64("host_mem_total_mb", hostMemory.Total/1000/1000),
			zap.Uint64("host_mem_used_mb", hostMemory.Used/1000/1000),
			zap.Float64("host_mem_used_percent", hostMemory.UsedPercent))
	}
	s.logger.Debug("system debug stats", fields...)
}

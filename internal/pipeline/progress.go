package pipeline

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/ajitpratap0/mnistsql/pkg/grouper"
	"github.com/ajitpratap0/mnistsql/pkg/metrics"
)

var _ grouper.Progress = (*ProgressReporter)(nil)

// ProgressReporter tracks records consumed by a stage and logs progress on
// an interval. It satisfies grouper.Progress.
type ProgressReporter struct {
	logger     *zap.Logger
	throughput *metrics.ThroughputTracker
	proc       *process.Process

	totalRecords     int64
	processedRecords int64
	startTime        time.Time
	reportInterval   time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewProgressReporter creates a reporter for stage. A zero interval
// defaults to ten seconds.
func NewProgressReporter(logger *zap.Logger, stage string, interval time.Duration) *ProgressReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	// Memory stats are best effort; a nil process just skips them.
	proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pid fits in int32
	if err != nil {
		logger.Debug("process stats unavailable", zap.Error(err))
		proc = nil
	}
	return &ProgressReporter{
		logger:         logger.With(zap.String("stage", stage)),
		throughput:     metrics.NewThroughputTracker(stage),
		proc:           proc,
		startTime:      time.Now(),
		reportInterval: interval,
		stopCh:         make(chan struct{}),
	}
}

// Start begins periodic progress reporting.
func (pr *ProgressReporter) Start() {
	pr.wg.Add(1)
	go func() {
		defer pr.wg.Done()
		ticker := time.NewTicker(pr.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-pr.stopCh:
				return
			case <-ticker.C:
				pr.reportCurrentProgress()
			}
		}
	}()
}

// Stop ends periodic reporting and logs a summary. Safe to call twice.
func (pr *ProgressReporter) Stop() {
	pr.stopOnce.Do(func() {
		close(pr.stopCh)
		pr.wg.Wait()
		pr.reportFinalProgress()
	})
}

// SetTotal sets the number of records the source can yield.
func (pr *ProgressReporter) SetTotal(total int64) {
	atomic.StoreInt64(&pr.totalRecords, total)
}

// IncrementProcessed increments the processed count
func (pr *ProgressReporter) IncrementProcessed(count int64) {
	atomic.AddInt64(&pr.processedRecords, count)
	pr.throughput.Increment(count)
}

// GetProgress returns current progress
func (pr *ProgressReporter) GetProgress() (processed, total int64) {
	return atomic.LoadInt64(&pr.processedRecords), atomic.LoadInt64(&pr.totalRecords)
}

// GetETA estimates time remaining
func (pr *ProgressReporter) GetETA() time.Duration {
	processed, total := pr.GetProgress()
	if processed == 0 || total == 0 || processed >= total {
		return 0
	}

	rate := float64(processed) / time.Since(pr.startTime).Seconds()
	if rate == 0 {
		return 0
	}
	return time.Duration(float64(total-processed) / rate * float64(time.Second))
}

// ResidentMemory returns the process RSS in bytes, or 0 when unknown.
func (pr *ProgressReporter) ResidentMemory() uint64 {
	if pr.proc == nil {
		return 0
	}
	info, err := pr.proc.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS
}

func (pr *ProgressReporter) reportCurrentProgress() {
	processed, total := pr.GetProgress()
	rss := pr.ResidentMemory()
	metrics.ResidentMemory.Set(float64(rss))

	fields := []zap.Field{
		zap.Int64("processed", processed),
		zap.Float64("throughput", pr.throughput.GetAndReset()),
		zap.Duration("elapsed", time.Since(pr.startTime)),
		zap.Uint64("rss_bytes", rss),
	}
	if total > 0 {
		fields = append(fields,
			zap.Int64("total", total),
			zap.Float64("percentage", float64(processed)/float64(total)*100),
			zap.Duration("eta", pr.GetETA()),
		)
	}
	pr.logger.Info("progress update", fields...)
}

func (pr *ProgressReporter) reportFinalProgress() {
	processed, _ := pr.GetProgress()
	elapsed := time.Since(pr.startTime)

	var avg float64
	if s := elapsed.Seconds(); s > 0 {
		avg = float64(processed) / s
	}
	pr.logger.Info("stage completed",
		zap.Int64("total_processed", processed),
		zap.Duration("total_time", elapsed),
		zap.Float64("avg_throughput", avg),
	)
}

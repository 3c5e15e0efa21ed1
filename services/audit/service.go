package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/agentic-rag/models"
)

// Sink persists finished-run records
type Sink interface {
	Write(ctx context.Context, rec *models.RunRecord) error
}

// LogSink writes each record as one structured log line
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink that logs through logger
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("audit")}
}

// Write logs the record
func (s *LogSink) Write(_ context.Context, rec *models.RunRecord) error {
	fields := []zap.Field{
		zap.String("run_id", rec.RunID.String()),
		zap.String("status", string(rec.Status)),
		zap.Int("steps", rec.Steps),
		zap.Int("maker_calls", rec.MakerCalls),
		zap.Int("audit_rounds", rec.AuditRounds),
		zap.Bool("refined", rec.Refined),
		zap.Duration("duration", rec.Duration()),
	}
	if rec.Severity != "" {
		fields = append(fields, zap.String("severity", string(rec.Severity)))
	}
	if len(rec.Violations) > 0 {
		fields = append(fields, zap.Strings("violations", rec.Violations))
	}
	if rec.ErrorMessage != nil {
		fields = append(fields,
			zap.String("error", *rec.ErrorMessage),
			zap.String("error_type", rec.ErrorType))
	}
	s.logger.Info("pipeline run recorded", fields...)
	return nil
}

// AuditService writes run records asynchronously
type AuditService struct {
	sink        Sink
	logger      *zap.Logger
	eventChan   chan *models.RunRecord
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	stopped     bool
	dropped     int
	mu          sync.Mutex
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize  int // Size of the record buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  256,
		WorkerCount: 2,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(sink Sink, logger *zap.Logger, config Config) *AuditService {
	if config.BufferSize < 1 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WorkerCount < 1 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &AuditService{
		sink:        sink,
		logger:      logger,
		eventChan:   make(chan *models.RunRecord, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop drains pending records and waits for the workers, up to timeout
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("audit service not started")
	}
	s.stopped = true
	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))
	// no sends after this point: senders check stopped under the same lock
	close(s.eventChan)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		s.cancel()
		return nil
	case <-time.After(timeout):
		s.cancel()
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent queues a record without blocking. A full buffer drops the
// record and returns an error.
func (s *AuditService) LogEvent(rec *models.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return fmt.Errorf("audit service not started")
	}

	select {
	case s.eventChan <- rec:
		return nil
	default:
		s.dropped++
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("run_id", rec.RunID.String()),
			zap.String("status", string(rec.Status)))
		return fmt.Errorf("audit event buffer full")
	}
}

// LogEventBlocking waits until the record is queued or ctx is done
func (s *AuditService) LogEventBlocking(ctx context.Context, rec *models.RunRecord) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("audit service not started")
	}
	// fast path keeps the lock so Stop cannot close the channel under us
	select {
	case s.eventChan <- rec:
		s.mu.Unlock()
		return nil
	default:
	}
	s.mu.Unlock()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			return fmt.Errorf("audit service stopped")
		case <-ticker.C:
		}

		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return fmt.Errorf("audit service stopped")
		}
		select {
		case s.eventChan <- rec:
			s.mu.Unlock()
			return nil
		default:
		}
		s.mu.Unlock()
	}
}

func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for rec := range s.eventChan {
		if err := s.processEvent(rec); err != nil {
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("run_id", rec.RunID.String()))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

func (s *AuditService) processEvent(rec *models.RunRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.sink.Write(ctx, rec); err != nil {
		return fmt.Errorf("failed to write run record: %w", err)
	}
	return nil
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Dropped:       s.dropped,
		Started:       s.started && !s.stopped,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int  `json:"buffer_size"`
	PendingEvents int  `json:"pending_events"`
	WorkerCount   int  `json:"worker_count"`
	Dropped       int  `json:"dropped"`
	Started       bool `json:"started"`
}

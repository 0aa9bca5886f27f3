package audit

/*
Файл agentfs.go — асинхронный приемник записей аудита для долговременного хранения.

- Recorder пишет запись в zap синхронно, а в хранилище — через AgentFS,
  чтобы задержки БД не влияли на время ответа операции.
- Записи копятся в буфере и уходят пачкой по таймеру или по достижении batchSize.
- Stop закрывает вход, дожидается вычитки канала и финального flush.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Storage определяет, куда физически сохраняются записи.
type Storage interface {
	// WriteBatch сохраняет пачку записей за один раз
	WriteBatch(ctx context.Context, records []Record) error
}

type AgentFSOptions struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

type AgentFS struct {
	ch       chan Record
	repo     Storage
	logger   *zap.Logger
	wg       sync.WaitGroup
	opts     AgentFSOptions
	mu       sync.RWMutex
	closed   bool
	dropped  int64
}

func NewAgentFS(repo Storage, logger *zap.Logger, opts AgentFSOptions) *AgentFS {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 10000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 500 * time.Millisecond
	}
	return &AgentFS{
		ch:     make(chan Record, opts.BufferSize),
		repo:   repo,
		logger: logger.With(zap.String("mod", "agentfs")),
		opts:   opts,
	}
}

func (fs *AgentFS) Start() {
	fs.wg.Add(1)
	go fs.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (fs *AgentFS) Stop() {
	fs.mu.Lock()
	if fs.closed {
		fs.mu.Unlock()
		return
	}
	fs.closed = true
	fs.logger.Info("stopping audit storage: closing channel and flushing buffer...")
	close(fs.ch)
	fs.mu.Unlock()

	fs.wg.Wait()
	fs.logger.Info("audit storage stopped gracefully", zap.Int64("dropped", atomic.LoadInt64(&fs.dropped)))
}

// Log не блокирует вызывающего: при переполнении запись сбрасывается (Load Shedding),
// она уже есть в структурном логе.
func (fs *AgentFS) Log(rec Record) {
	// RLock: параллельные Log не мешают друг другу, но не пересекаются с close в Stop
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if fs.closed {
		fs.logger.Warn("audit record dropped: storage is stopping", zap.String("id", rec.ID))
		return
	}

	select {
	case fs.ch <- rec:
	default:
		atomic.AddInt64(&fs.dropped, 1)
		fs.logger.Error("audit_buffer_overflow",
			zap.String("tool", rec.Tool),
			zap.String("correlation_id", rec.CorrelationID),
		)
	}
}

// Pending — текущая заполненность буфера (для метрик).
func (fs *AgentFS) Pending() int { return len(fs.ch) }

func (fs *AgentFS) worker() {
	defer fs.wg.Done()

	batch := make([]Record, 0, fs.opts.BatchSize)
	ticker := time.NewTicker(fs.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст к этому моменту может быть уже закрыт
		if err := fs.repo.WriteBatch(context.Background(), batch); err != nil {
			fs.logger.Error("audit flush failed", zap.Int("count", len(batch)), zap.Error(err))
		}
		batch = make([]Record, 0, fs.opts.BatchSize)
	}

	for {
		select {
		case rec, ok := <-fs.ch:
			if !ok {
				// Канал закрыт в Stop(): всё из очереди уже вычитано
				flush()
				fs.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, rec)
			if len(batch) >= fs.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

package audit

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher транслирует каждую запись в Redis Pub/Sub (SIEM-коллекторы, дашборды).
// Доставка best-effort: один воркер, ограниченный буфер, ошибки Redis только логируются.
type Publisher struct {
	rdb     *redis.Client
	channel string
	timeout time.Duration
	logger  *zap.Logger

	ch      chan []byte
	mu      sync.RWMutex // send под RLock, close под Lock
	closed  bool
	wg      sync.WaitGroup
	dropped int64
}

func NewPublisher(rdb *redis.Client, channel string, logger *zap.Logger) *Publisher {
	return &Publisher{
		rdb:     rdb,
		channel: channel,
		timeout: 2 * time.Second,
		logger:  logger.Named("audit-publisher"),
		ch:      make(chan []byte, 1000),
	}
}

func (p *Publisher) Start() {
	p.wg.Add(1)
	go p.worker()
}

// Stop закрывает вход и ждет, пока воркер отправит остаток буфера.
// Redis-клиент закрывается вызывающим только после Stop.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("audit publisher stopped", zap.Int64("dropped", atomic.LoadInt64(&p.dropped)))
}

func (p *Publisher) Log(rec Record) {
	payload, err := json.Marshal(rec)
	if err != nil {
		p.logger.Error("audit record marshal failed", zap.String("id", rec.ID), zap.Error(err))
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Warn("audit signal dropped: publisher is stopping", zap.String("id", rec.ID))
		return
	}
	select {
	case p.ch <- payload:
	default:
		atomic.AddInt64(&p.dropped, 1)
		p.logger.Warn("audit signal dropped: buffer full", zap.String("id", rec.ID))
	}
}

func (p *Publisher) worker() {
	defer p.wg.Done()
	for payload := range p.ch {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
			p.logger.Warn("audit signal delivery failed",
				zap.String("channel", p.channel),
				zap.Error(err))
		}
		cancel()
	}
}

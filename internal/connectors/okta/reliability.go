package okta

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen — предохранитель разомкнут, запрос к IdP не отправлялся.
var ErrCircuitOpen = errors.New("okta: circuit breaker is open")

// guard — предохранитель и ограничитель исходящего трафика.
// Повторов здесь нет: мутирующие вызовы не должны дублироваться.
type guard struct {
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func newGuard(name string, rps float64, burst int, onState func(open bool)) *guard {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// 4xx — ответ клиенту, а не сбой провайдера
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return !apiErr.Retryable()
			}
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(_ string, _, to gobreaker.State) {
			if onState != nil {
				onState(to != gobreaker.StateClosed)
			}
		},
	})

	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &guard{cb: cb, limiter: rate.NewLimiter(limit, burst)}
}

func (g *guard) run(ctx context.Context, fn func() (*Response, error)) (*Response, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("okta: rate limit wait: %w", err)
	}

	res, err := g.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	resp, _ := res.(*Response)
	return resp, err
}

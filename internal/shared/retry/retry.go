package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// ErrExhausted indica que todas as tentativas falharam com erro transitório
var ErrExhausted = errors.New("retries exhausted")

// Policy descreve backoff exponencial com jitter
// Attempts inclui a primeira execução
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    float64 // fração do delay, 0..1
}

// Backoff retorna o delay antes da tentativa attempt+1 (attempt começa em 0)
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 && d > 0 {
		j := time.Duration(float64(d) * p.Jitter * rand.Float64())
		d += j
	}
	return d
}

// Do executa fn até sucesso, erro não transitório ou fim das tentativas.
// Ao esgotar, retorna erro embrulhando ErrExhausted e o último erro.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func(attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		last = fn(attempt)
		if last == nil {
			return nil
		}
		if retryable == nil || !retryable(last) {
			return last
		}
		if attempt == attempts-1 {
			break
		}
		if err := Sleep(ctx, p.Backoff(attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, last)
}

// Sleep espera d respeitando o cancelamento do contexto
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

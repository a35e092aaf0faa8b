package saga

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
)

// RetryConfig описывает экспоненциальный backoff для повторов шага.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает параметры повторов по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// delayForAttempt считает паузу перед повтором attempt (нумерация с 1).
func (c RetryConfig) delayForAttempt(attempt int) time.Duration {
	delay := float64(c.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= c.BackoffFactor
	}
	if max := float64(c.MaxDelay); c.MaxDelay > 0 && delay > max {
		delay = max
	}
	return time.Duration(delay)
}

// callWithRetry выполняет удалённый вызов шага. Повторы разрешены только
// идемпотентным шагам: неидемпотентный шаг после первой ошибки сразу
// уходит в компенсацию, чтобы не задвоить сторонний эффект.
func (o *orchestrator) callWithRetry(ctx context.Context, order *domain.Order, step stepDef) (domain.StepPayload, int, error) {
	maxAttempts := 1
	if step.idempotent {
		maxAttempts = o.cfg.Retry.MaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout)
		response, err := step.call(cctx, order)
		cancel()

		if err == nil {
			return response, attempt, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}
		o.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"step":     step.name,
			"attempt":  attempt,
		}).Warn("step call failed, retrying")

		select {
		case <-ctx.Done():
			return domain.StepPayload{}, attempt, ctx.Err()
		case <-time.After(o.cfg.Retry.delayForAttempt(attempt)):
		}
	}
	return domain.StepPayload{}, maxAttempts, lastErr
}

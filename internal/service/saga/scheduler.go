package saga

import (
	"context"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
)

// TriggerKind — вид триггера саги.
type TriggerKind string

const (
	// TriggerStart запускает или возобновляет прямые шаги саги.
	TriggerStart TriggerKind = "start"
	// TriggerCancel запускает компенсацию по клиентской отмене.
	TriggerCancel TriggerKind = "cancel"
	// TriggerAbort запускает компенсацию по внешнему сбою: заказ
	// завершается failed, а не cancelled.
	TriggerAbort TriggerKind = "abort"
)

// Trigger — задание для воркера саги.
type Trigger struct {
	Kind    TriggerKind
	OrderID string
	Reason  string
}

// Scheduler принимает триггеры саги и раздаёт их пулу воркеров.
// Доставка at-least-once: повторный триггер по тому же заказу безопасен,
// потому что completed-шаги из saga-лога не переигрываются.
type Scheduler struct {
	orchestrator Orchestrator
	orders       domain.OrderRepository
	queue        chan Trigger
	done         chan struct{}
	workers      int
	logger       *log.Entry
	group        *errgroup.Group
}

// NewScheduler создаёт планировщик с пулом воркеров.
func NewScheduler(orchestrator Orchestrator, orders domain.OrderRepository, workers int, logger *log.Entry) *Scheduler {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = log.New().WithField("component", "saga-scheduler")
	}
	return &Scheduler{
		orchestrator: orchestrator,
		orders:       orders,
		queue:        make(chan Trigger, 256),
		done:         make(chan struct{}),
		workers:      workers,
		logger:       logger,
	}
}

// Start запускает воркеров. Возвращается сразу; остановка — через отмену ctx.
func (s *Scheduler) Start(ctx context.Context) {
	group, gctx := errgroup.WithContext(ctx)
	s.group = group

	for i := 0; i < s.workers; i++ {
		worker := i
		group.Go(func() error {
			return s.runWorker(gctx, worker)
		})
	}
	group.Go(func() error {
		<-gctx.Done()
		close(s.done)
		return nil
	})
	s.logger.WithField("workers", s.workers).Info("saga scheduler started")
}

// Wait блокируется до завершения всех воркеров.
func (s *Scheduler) Wait() error {
	if s.group == nil {
		return nil
	}
	return s.group.Wait()
}

// StartSaga ставит в очередь запуск саги заказа.
func (s *Scheduler) StartSaga(orderID string) {
	s.enqueue(Trigger{Kind: TriggerStart, OrderID: orderID})
}

// CancelSaga ставит в очередь компенсацию по клиентской отмене.
func (s *Scheduler) CancelSaga(orderID, reason string) {
	s.enqueue(Trigger{Kind: TriggerCancel, OrderID: orderID, Reason: reason})
}

// AbortSaga ставит в очередь компенсацию по внешнему сбою.
func (s *Scheduler) AbortSaga(orderID, reason string) {
	s.enqueue(Trigger{Kind: TriggerAbort, OrderID: orderID, Reason: reason})
}

// Recover сканирует незавершённые саги и ставит их на повторное выполнение.
// Вызывается один раз при старте процесса: заказы, чьи саги оборвал рестарт,
// возобновляются с первого незавершённого шага.
func (s *Scheduler) Recover(ctx context.Context) error {
	inFlight, err := s.orders.ListSagaInFlight(0)
	if err != nil {
		return err
	}

	for _, order := range inFlight {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.logger.WithFields(log.Fields{
			"order_id":    order.ID,
			"saga_status": order.SagaStatus,
		}).Info("resuming in-flight saga")
		s.StartSaga(order.ID)
	}

	if len(inFlight) > 0 {
		s.logger.WithField("count", len(inFlight)).Info("saga recovery scan finished")
	}
	return nil
}

// enqueue не блокирует вызывающего: при заполненной очереди отправка
// уходит в отдельную горутину.
func (s *Scheduler) enqueue(t Trigger) {
	select {
	case s.queue <- t:
	default:
		s.logger.WithField("order_id", t.OrderID).Warn("trigger queue is full, enqueueing asynchronously")
		go s.sendBlocking(t)
	}
}

// sendBlocking доставляет триггер, когда очередь освободится. При остановке
// планировщика триггер отбрасывается: recovery-скан переиграет сагу при
// следующем старте процесса.
func (s *Scheduler) sendBlocking(t Trigger) {
	select {
	case s.queue <- t:
	case <-s.done:
		s.logger.WithField("order_id", t.OrderID).Warn("scheduler stopped, dropping pending trigger")
	}
}

func (s *Scheduler) runWorker(ctx context.Context, id int) error {
	logger := s.logger.WithField("worker", id)
	logger.Debug("saga worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("saga worker stopped")
			return nil
		case trigger := <-s.queue:
			switch trigger.Kind {
			case TriggerStart:
				s.orchestrator.Start(ctx, trigger.OrderID)
			case TriggerCancel:
				s.orchestrator.Cancel(ctx, trigger.OrderID, trigger.Reason)
			case TriggerAbort:
				s.orchestrator.Abort(ctx, trigger.OrderID, trigger.Reason)
			default:
				logger.WithField("kind", trigger.Kind).Warn("unknown trigger kind")
			}
		}
	}
}

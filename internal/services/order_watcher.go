package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/example/walletshop/internal/metrics"
	"github.com/example/walletshop/internal/store"
)

// OrderStatus is the coarse lifecycle state of a provider order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
)

const (
	defaultWatchDelay       = 10 * time.Second
	defaultWatchMaxInterval = 2 * time.Minute
)

var errOrderPending = errors.New("order still pending")

// StatusOf maps a provider order to its coarse lifecycle state.
func StatusOf(order *Order) OrderStatus {
	switch {
	case order.Phase == "completed":
		return OrderStatusCompleted
	case order.Phase == "failed", order.Payment.Status == "failed":
		return OrderStatusFailed
	default:
		return OrderStatusPending
	}
}

// OrderFetcher re-fetches an order by id.
type OrderFetcher interface {
	GetOrder(ctx context.Context, orderID string) (*Order, error)
}

// OrderNotifier is told once when a watched order reaches a terminal state.
type OrderNotifier interface {
	NotifyOrderStatus(ctx context.Context, userID int64, order *Order, status OrderStatus)
}

// WatchConfig controls how often a placed order is re-checked.
// MaxAttempts of 1 is a single delayed check.
type WatchConfig struct {
	Delay       time.Duration
	MaxAttempts int
	MaxInterval time.Duration
}

// OrderWatcher checks placed orders in the background until they settle or
// the attempt budget runs out.
type OrderWatcher struct {
	fetcher  OrderFetcher
	notifier OrderNotifier
	orders   store.OrderStore
	cfg      WatchConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	watches map[string]context.CancelFunc
}

// NewOrderWatcher creates an OrderWatcher. orders may be nil.
func NewOrderWatcher(fetcher OrderFetcher, notifier OrderNotifier, orders store.OrderStore, cfg WatchConfig) *OrderWatcher {
	if cfg.Delay <= 0 {
		cfg.Delay = defaultWatchDelay
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = defaultWatchMaxInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &OrderWatcher{
		fetcher:  fetcher,
		notifier: notifier,
		orders:   orders,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		watches:  make(map[string]context.CancelFunc),
	}
}

// Watch schedules status checks for orderID on behalf of userID.
// Watching an order that is already watched is a no-op.
func (w *OrderWatcher) Watch(userID int64, orderID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ctx.Err() != nil {
		return
	}
	if _, ok := w.watches[orderID]; ok {
		return
	}

	ctx, cancel := context.WithCancel(w.ctx)
	w.watches[orderID] = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.forget(orderID)
		w.run(ctx, userID, orderID)
	}()
}

// Cancel stops watching orderID.
func (w *OrderWatcher) Cancel(orderID string) {
	w.mu.Lock()
	cancel, ok := w.watches[orderID]
	w.mu.Unlock()
	if ok {
		cancel()
	}
}

// Stop cancels every watch and waits for them to exit.
func (w *OrderWatcher) Stop() {
	w.mu.Lock()
	w.cancel()
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *OrderWatcher) forget(orderID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cancel, ok := w.watches[orderID]; ok {
		cancel()
		delete(w.watches, orderID)
	}
}

func (w *OrderWatcher) run(ctx context.Context, userID int64, orderID string) {
	timer := time.NewTimer(w.cfg.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.cfg.Delay
	policy.MaxInterval = w.cfg.MaxInterval
	policy.MaxElapsedTime = 0

	var (
		order   *Order
		status  = OrderStatusPending
		attempt int
	)
	check := func() error {
		attempt++
		fetched, err := w.fetcher.GetOrder(ctx, orderID)
		if err != nil {
			log.Printf("[OrderWatcher] check %d/%d for order %s failed: %v", attempt, w.cfg.MaxAttempts, orderID, err)
			return err
		}
		order = fetched
		status = StatusOf(fetched)
		metrics.OrderWatch(string(status))
		if status == OrderStatusPending {
			return errOrderPending
		}
		return nil
	}

	retries := uint64(w.cfg.MaxAttempts - 1)
	err := backoff.Retry(check, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx))
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		log.Printf("[OrderWatcher] order %s not settled after %d checks: %v", orderID, attempt, err)
		return
	}

	log.Printf("[OrderWatcher] order %s is %s", orderID, status)
	if w.orders != nil {
		if err := w.orders.UpdateOrderStatus(ctx, orderID, string(status)); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Printf("[OrderWatcher] update status of order %s failed: %v", orderID, err)
		}
	}
	if w.notifier != nil {
		w.notifier.NotifyOrderStatus(ctx, userID, order, status)
	}
}

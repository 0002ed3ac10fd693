package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/tradeloop/fx-confluence-bot/internal/errors"
	"github.com/tradeloop/fx-confluence-bot/pkg/types"
)

// Executor is the broker execution callback bound to an account. Retries
// and backoff for transient broker failures belong to the implementation,
// not the router.
type Executor interface {
	Execute(ctx context.Context, order *types.OrderRequest) (*types.ExecutionResult, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, order *types.OrderRequest) (*types.ExecutionResult, error)

func (f ExecutorFunc) Execute(ctx context.Context, order *types.OrderRequest) (*types.ExecutionResult, error) {
	return f(ctx, order)
}

// RoutingResult pairs an order with its execution outcome. Err is set for
// executor failures and panics; it never crosses account boundaries.
type RoutingResult struct {
	Order  *types.OrderRequest
	Result *types.ExecutionResult
	Err    error
}

// ResultHandler receives the outcome of every routed order, invoked from
// the routing worker of the order's account.
type ResultHandler func(RoutingResult)

type accountWorker struct {
	queue chan *types.OrderRequest
	done  chan struct{}
}

// Router delivers order requests to broker executors. Each account gets
// a dedicated worker with a bounded queue so a slow broker connection on
// one account never delays delivery for another.
type Router struct {
	mu        sync.RWMutex
	executors map[string]Executor
	managers  map[string]Executor
	fallback  Executor
	workers   map[string]*accountWorker

	queueSize int
	timeout   time.Duration
	handler   ResultHandler
	logger    *slog.Logger

	wg     sync.WaitGroup
	closed bool
}

// Option configures a Router.
type Option func(*Router)

// WithQueueSize bounds each account's pending order queue.
func WithQueueSize(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithExecutionTimeout caps how long one executor call may run.
func WithExecutionTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithResultHandler registers the sink for execution outcomes.
func WithResultHandler(h ResultHandler) Option {
	return func(r *Router) { r.handler = h }
}

// NewRouter creates a new account order router
func NewRouter(logger *slog.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		executors: make(map[string]Executor),
		managers:  make(map[string]Executor),
		workers:   make(map[string]*accountWorker),
		queueSize: 64,
		timeout:   30 * time.Second,
		logger:    logger.With("component", "router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds an account to its execution callback. The bound
// executor is invoked exclusively for that account's orders.
func (r *Router) Register(accountID string, executor Executor) error {
	if executor == nil {
		return apperrors.NewEngineError(apperrors.ErrorCategoryConfig, "router", "register",
			fmt.Sprintf("nil executor for account %s", accountID), nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return apperrors.NewEngineError(apperrors.ErrorCategoryLogic, "router", "register",
			"router is closed", nil)
	}
	r.executors[accountID] = executor
	return nil
}

// RegisterManager binds a per-account fallback manager, consulted when
// the account has no dedicated executor.
func (r *Router) RegisterManager(accountID string, manager Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.managers[accountID] = manager
}

// SetDefaultManager sets the shared manager of last resort.
func (r *Router) SetDefaultManager(manager Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = manager
}

// resolve picks the executor for an account: dedicated executor, then
// per-account manager, then the shared default.
func (r *Router) resolve(accountID string) Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if exec, ok := r.executors[accountID]; ok {
		return exec
	}
	if mgr, ok := r.managers[accountID]; ok {
		return mgr
	}
	return r.fallback
}

// Route enqueues the order on its account's worker, starting the worker
// on first use. Returns an error when no executor can serve the account
// or the queue is full; the execution outcome itself arrives at the
// result handler.
func (r *Router) Route(order *types.OrderRequest) error {
	if order == nil || order.AccountID == "" {
		return apperrors.NewEngineError(apperrors.ErrorCategoryLogic, "router", "route",
			"order missing account id", nil)
	}
	if r.resolve(order.AccountID) == nil {
		return apperrors.NewExecutorError(order.AccountID,
			fmt.Errorf("no executor, manager, or default registered"))
	}

	worker, err := r.worker(order.AccountID)
	if err != nil {
		return err
	}

	select {
	case worker.queue <- order:
		return nil
	default:
		return apperrors.NewExecutorError(order.AccountID,
			fmt.Errorf("order queue full (%d pending)", r.queueSize))
	}
}

func (r *Router) worker(accountID string) (*accountWorker, error) {
	r.mu.RLock()
	w, ok := r.workers[accountID]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, apperrors.NewEngineError(apperrors.ErrorCategoryLogic, "router", "route",
			"router is closed", nil)
	}
	if ok {
		return w, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, apperrors.NewEngineError(apperrors.ErrorCategoryLogic, "router", "route",
			"router is closed", nil)
	}
	if w, ok := r.workers[accountID]; ok {
		return w, nil
	}

	w = &accountWorker{
		queue: make(chan *types.OrderRequest, r.queueSize),
		done:  make(chan struct{}),
	}
	r.workers[accountID] = w
	r.wg.Add(1)
	go r.runWorker(accountID, w)
	return w, nil
}

func (r *Router) runWorker(accountID string, w *accountWorker) {
	defer r.wg.Done()
	for {
		select {
		case order, ok := <-w.queue:
			if !ok {
				return
			}
			r.execute(accountID, order)
		case <-w.done:
			// Drain whatever was accepted before shutdown
			for {
				select {
				case order, ok := <-w.queue:
					if !ok {
						return
					}
					r.execute(accountID, order)
				default:
					return
				}
			}
		}
	}
}

// execute invokes the account's executor, converting panics and errors
// into typed per-account failures.
func (r *Router) execute(accountID string, order *types.OrderRequest) {
	exec := r.resolve(accountID)
	if exec == nil {
		r.deliver(RoutingResult{Order: order, Err: apperrors.NewExecutorError(accountID,
			fmt.Errorf("executor unregistered while order was queued"))})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	var result *types.ExecutionResult
	var err error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = apperrors.NewExecutorError(accountID, fmt.Errorf("executor panic: %v", rec))
				r.logger.Error("executor panicked",
					"account_id", accountID,
					"instrument", order.Instrument,
					"panic", fmt.Sprint(rec))
			}
		}()
		result, err = exec.Execute(ctx, order)
	}()

	if err != nil {
		if _, ok := err.(*apperrors.EngineError); !ok {
			err = apperrors.NewExecutorError(accountID, err)
		}
		r.logger.Error("order execution failed",
			"account_id", accountID,
			"instrument", order.Instrument,
			"error", err)
	}
	r.deliver(RoutingResult{Order: order, Result: result, Err: err})
}

func (r *Router) deliver(res RoutingResult) {
	if r.handler != nil {
		r.handler(res)
	}
}

// Close stops accepting orders, lets every worker finish its queue, and
// waits for them to exit.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	workers := make([]*accountWorker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w)
	}
	r.mu.Unlock()

	for _, w := range workers {
		close(w.done)
	}
	r.wg.Wait()
}

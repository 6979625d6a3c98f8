package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"tradewatch/internal/broker"
)

// Execution outcomes as they land in the audit log.
const (
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
)

// ExecutionRecord captures one triggered order as it went to the broker,
// whether the placement succeeded or not.
type ExecutionRecord struct {
	OrderID    string
	BrokerRef  string
	StockCode  string
	Kind       Kind
	Quantity   int
	Price      float64
	Status     string
	Detail     string
	ExecutedAt time.Time
}

// ExecutionRecorder receives a record after each execution attempt.
// Recording failures are logged, never folded back into order state.
type ExecutionRecorder interface {
	RecordExecution(record ExecutionRecord) error
}

// Manager owns the order collection. Every status transition happens
// under its mutex; broker and market-data calls happen outside it. The
// store is rewritten whenever order state changes.
type Manager struct {
	store       Store
	policies    map[Kind]Policy
	broker      broker.Broker
	recorder    ExecutionRecorder
	interval    time.Duration
	callTimeout time.Duration

	mu     sync.Mutex
	orders []Order

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager loads the persisted orders and fails hard on a corrupt
// store; silently dropping monitored orders is worse than refusing to
// start.
func NewManager(store Store, policies map[Kind]Policy, b broker.Broker, interval, callTimeout time.Duration, recorder ExecutionRecorder) (*Manager, error) {
	loaded, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading order store: %w", err)
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if callTimeout <= 0 {
		callTimeout = time.Minute
	}
	log.Info().
		Str("service", "orders").
		Int("order_count", len(loaded)).
		Dur("check_interval", interval).
		Dur("call_timeout", callTimeout).
		Msg("order manager initialized")
	return &Manager{
		store:       store,
		policies:    policies,
		broker:      b,
		recorder:    recorder,
		interval:    interval,
		callTimeout: callTimeout,
		orders:      loaded,
	}, nil
}

// AddOrder validates the order against its policy, appends it and
// persists. The returned clone is safe to serialize after the manager
// has taken ownership of o.
func (m *Manager) AddOrder(ctx context.Context, o Order) (Order, error) {
	policy, ok := m.policies[o.Kind()]
	if !ok {
		return nil, fmt.Errorf("no policy registered for %s orders", o.Kind())
	}
	vctx, cancel := m.callCtx(ctx)
	err := policy.ValidateOpen(vctx, o)
	cancel()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, o)
	if err := m.persistLocked(); err != nil {
		m.orders = m.orders[:len(m.orders)-1]
		return nil, fmt.Errorf("persisting new order: %w", err)
	}

	log.Info().
		Str("service", "orders").
		Str("order_id", o.GetID()).
		Str("kind", string(o.Kind())).
		Str("stock_code", o.GetStockCode()).
		Int("quantity", o.GetQuantity()).
		Msg("order accepted")
	return o.Clone(), nil
}

// CancelOrder marks a waiting order cancelled. Orders past waiting are
// refused; their market order may already be on its way.
func (m *Manager) CancelOrder(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.findLocked(id)
	if !ok {
		return ErrOrderNotFound
	}
	policy := m.policies[o.Kind()]
	if policy == nil || !policy.CanCancel(o) {
		return &InvalidStateError{Action: "cancel", Status: o.GetStatus()}
	}
	o.MarkCancelled()
	if err := m.persistLocked(); err != nil {
		return err
	}

	log.Info().
		Str("service", "orders").
		Str("order_id", id).
		Msg("order cancelled")
	return nil
}

// UpdateOrder applies a partial update to a waiting order and returns
// the updated clone.
func (m *Manager) UpdateOrder(id string, update OrderUpdate) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.findLocked(id)
	if !ok {
		return nil, ErrOrderNotFound
	}
	policy := m.policies[o.Kind()]
	if policy == nil || !policy.IsWaiting(o) {
		return nil, &InvalidStateError{Action: "update", Status: o.GetStatus()}
	}
	if err := o.applyUpdate(update); err != nil {
		return nil, err
	}
	if err := m.persistLocked(); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "orders").
		Str("order_id", id).
		Msg("order updated")
	return o.Clone(), nil
}

// Get returns a clone of the order with the given ID.
func (m *Manager) Get(id string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.findLocked(id)
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

// OrdersByKind returns clones of every order of the given kind in
// insertion order, whatever their status.
func (m *Manager) OrdersByKind(kind Kind) []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		if o.Kind() == kind {
			out = append(out, o.Clone())
		}
	}
	return out
}

// Orders returns clones of the full collection in insertion order.
func (m *Manager) Orders() []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o.Clone())
	}
	return out
}

// Start launches the price-check loop. The first cycle runs immediately;
// each subsequent cycle starts one interval after the previous one
// finishes, so a slow cycle delays the next rather than overlapping it.
func (m *Manager) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(runCtx)
	log.Info().
		Str("service", "orders").
		Dur("check_interval", m.interval).
		Msg("order monitoring started")
}

// Stop halts the loop and waits for any in-flight cycle to finish.
func (m *Manager) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil
	log.Info().Str("service", "orders").Msg("order monitoring stopped")
}

func (m *Manager) loop(ctx context.Context) {
	defer close(m.done)
	for {
		m.RunCycle(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.interval):
		}
	}
}

// RunCycle performs one pass over the waiting orders: fetch positions
// once, evaluate each order against its current price, execute whatever
// triggered. Exported so a driver can step the manager without the
// background loop.
func (m *Manager) RunCycle(ctx context.Context) {
	logger := log.With().Str("service", "orders").Str("operation", "run_cycle").Logger()

	m.mu.Lock()
	waiting := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		if policy, ok := m.policies[o.Kind()]; ok && policy.IsWaiting(o) {
			waiting = append(waiting, o)
		}
	}
	m.mu.Unlock()

	if len(waiting) == 0 {
		logger.Debug().Msg("no waiting orders")
		return
	}

	pctx, cancel := m.callCtx(ctx)
	positions, err := m.broker.Positions(pctx)
	cancel()
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch positions, skipping cycle")
		return
	}

	logger.Debug().
		Int("waiting_orders", len(waiting)).
		Int("positions", len(positions)).
		Msg("checking orders")

	dirty := false
	for _, o := range waiting {
		if m.evaluateOrder(ctx, o, positions) {
			dirty = true
		}
	}
	if dirty {
		m.mu.Lock()
		m.persistLocked()
		m.mu.Unlock()
	}
}

// evaluateOrder runs one price check. It reports whether the order
// changed and so needs the end-of-cycle persist. The triggered and
// final transitions are each persisted inline: a crash after the market
// order goes out must not re-arm the trail on restart.
func (m *Manager) evaluateOrder(ctx context.Context, o Order, positions []broker.Position) bool {
	policy := m.policies[o.Kind()]
	logger := log.With().
		Str("service", "orders").
		Str("order_id", o.GetID()).
		Str("kind", string(o.Kind())).
		Str("stock_code", o.GetStockCode()).
		Logger()

	cctx, cancel := m.callCtx(ctx)
	price, err := policy.CurrentPrice(cctx, o, positions)
	cancel()
	if err != nil {
		if errors.Is(err, ErrPriceUnavailable) {
			logger.Warn().Err(err).Msg("no price available, skipping order this cycle")
		} else {
			logger.Error().Err(err).Msg("price lookup failed, skipping order this cycle")
		}
		// The check still ran; record it with the price nulled.
		m.mu.Lock()
		checked := policy.IsWaiting(o)
		if checked {
			o.RecordCheck(nil, time.Now())
		}
		m.mu.Unlock()
		return checked
	}

	now := time.Now()

	m.mu.Lock()
	if !policy.IsWaiting(o) {
		m.mu.Unlock()
		return false
	}
	o.RecordCheck(&price, now)
	if !o.ShouldTrigger(price) {
		m.mu.Unlock()
		return true
	}
	o.SetComment(fmt.Sprintf("Triggered at %v", price))
	o.MarkTriggered()
	m.persistLocked()
	m.mu.Unlock()

	logger.Info().Float64("price", price).Msg("order triggered")

	ectx, cancelExec := m.callCtx(ctx)
	ref, execErr := policy.Execute(ectx, o)
	cancelExec()

	m.mu.Lock()
	if execErr != nil {
		o.MarkError(execErr.Error())
	} else {
		o.MarkCompleted()
	}
	m.persistLocked()
	m.mu.Unlock()

	record := ExecutionRecord{
		OrderID:    o.GetID(),
		BrokerRef:  ref,
		StockCode:  o.GetStockCode(),
		Kind:       o.Kind(),
		Quantity:   o.GetQuantity(),
		Price:      price,
		Status:     ExecutionCompleted,
		ExecutedAt: now,
	}
	if execErr != nil {
		logger.Error().Err(execErr).Msg("order execution failed")
		record.Status = ExecutionFailed
		record.Detail = execErr.Error()
	} else {
		logger.Info().Str("broker_ref", ref).Msg("order executed")
	}
	if m.recorder != nil {
		if err := m.recorder.RecordExecution(record); err != nil {
			logger.Warn().Err(err).Msg("failed to record execution")
		}
	}
	return true
}

// callCtx bounds a single broker or market-data call; a hung
// connection fails that call instead of wedging the loop.
func (m *Manager) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.callTimeout)
}

// persistLocked writes the collection through the store. Callers must
// hold mu.
func (m *Manager) persistLocked() error {
	if err := m.store.Save(m.orders); err != nil {
		log.Error().Err(err).Str("service", "orders").Msg("failed to persist orders")
		return err
	}
	return nil
}

func (m *Manager) findLocked(id string) (Order, bool) {
	for _, o := range m.orders {
		if o.GetID() == id {
			return o, true
		}
	}
	return nil, false
}

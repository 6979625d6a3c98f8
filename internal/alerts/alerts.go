// Package alerts runs periodic market probes and pushes a notification
// when a watched value crosses its configured threshold.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Task types. The type selects the data source a task probes.
const (
	TypeUSDSGD     = "usd_sgd"
	TypeUSDBTC     = "usd_btc"
	TypeStockPrice = "stock_price"
)

// Threshold directions.
const (
	DirectionAbove = "above"
	DirectionBelow = "below"
)

// ErrTaskNotFound is returned for operations on an unregistered task ID.
var ErrTaskNotFound = errors.New("alert task not found")

// Probe fetches the current value of the quantity a task watches.
type Probe func(ctx context.Context) (float64, error)

// Notifier delivers alert messages. Satisfied by notify.Client.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// RateSource provides currency conversion rates. Satisfied by
// rates.Service.
type RateSource interface {
	USDToSGD(ctx context.Context) (float64, error)
	USDToBitcoin(ctx context.Context) (float64, error)
}

// PriceSource provides stock quotes. Satisfied by quote.Service.
type PriceSource interface {
	Price(ctx context.Context, stockCode string) (float64, error)
}

// Task is one registered probe with its alert condition.
type Task struct {
	ID        string
	Name      string
	Threshold float64
	Direction string
	Interval  time.Duration
	Message   string
	Probe     Probe
}

func (t Task) conditionHolds(value float64) bool {
	if t.Direction == DirectionBelow {
		return value < t.Threshold
	}
	return value > t.Threshold
}

// TaskStatus reports a task's scheduling state over the API.
type TaskStatus struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Running bool       `json:"running"`
	LastRun *time.Time `json:"last_run"`
}

// BuildProbe binds a task type to its data source. The symbol is only
// used by stock price tasks.
func BuildProbe(taskType, symbol string, rates RateSource, quotes PriceSource) (Probe, error) {
	switch taskType {
	case TypeUSDSGD:
		return rates.USDToSGD, nil
	case TypeUSDBTC:
		return rates.USDToBitcoin, nil
	case TypeStockPrice:
		return func(ctx context.Context) (float64, error) {
			return quotes.Price(ctx, symbol)
		}, nil
	default:
		return nil, fmt.Errorf("unknown alert task type %q", taskType)
	}
}

type runningTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Service schedules registered tasks, each on its own goroutine. A task
// runs once immediately on start and then at its fixed interval. Probe
// failures are logged and never break the schedule.
type Service struct {
	notifier Notifier

	mu      sync.Mutex
	tasks   map[string]Task
	order   []string
	lastRun map[string]time.Time
	running map[string]*runningTask
}

// NewService creates an alert scheduler that delivers through notifier.
func NewService(notifier Notifier) *Service {
	return &Service{
		notifier: notifier,
		tasks:    make(map[string]Task),
		lastRun:  make(map[string]time.Time),
		running:  make(map[string]*runningTask),
	}
}

// Register adds a task definition without starting it.
func (s *Service) Register(t Task) error {
	if t.ID == "" {
		return fmt.Errorf("alert task must have an id")
	}
	if t.Probe == nil {
		return fmt.Errorf("alert task %s has no probe", t.ID)
	}
	if t.Interval <= 0 {
		return fmt.Errorf("alert task %s: interval must be positive", t.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("alert task %s already registered", t.ID)
	}
	s.tasks[t.ID] = t
	s.order = append(s.order, t.ID)
	return nil
}

// Start launches the task's schedule. Starting a running task is a
// no-op.
func (s *Service) Start(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if _, ok := s.running[id]; ok {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt := &runningTask{cancel: cancel, done: make(chan struct{})}
	s.running[id] = rt
	go s.run(ctx, task, rt.done)

	log.Info().Str("service", "alerts").Str("task", id).Msg("alert task started")
	return nil
}

// Stop halts the task's schedule and waits for any in-flight probe.
// Stopping a task that is not running is a no-op.
func (s *Service) Stop(id string) error {
	s.mu.Lock()
	if _, ok := s.tasks[id]; !ok {
		s.mu.Unlock()
		return ErrTaskNotFound
	}
	rt, ok := s.running[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.running, id)
	s.mu.Unlock()

	rt.cancel()
	<-rt.done

	log.Info().Str("service", "alerts").Str("task", id).Msg("alert task stopped")
	return nil
}

// StartAll launches every registered task in registration order.
func (s *Service) StartAll() {
	s.mu.Lock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.Start(id); err != nil {
			log.Error().Err(err).Str("service", "alerts").Str("task", id).Msg("failed to start alert task")
		}
	}
}

// StopAll halts every running task and joins their goroutines.
func (s *Service) StopAll() {
	s.mu.Lock()
	stopped := make([]*runningTask, 0, len(s.running))
	for id, rt := range s.running {
		stopped = append(stopped, rt)
		delete(s.running, id)
	}
	s.mu.Unlock()

	for _, rt := range stopped {
		rt.cancel()
		<-rt.done
	}
}

// Status reports whether the task is scheduled and when it last probed
// successfully.
func (s *Service) Status(id string) (TaskStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return TaskStatus{}, ErrTaskNotFound
	}
	status := TaskStatus{
		ID:      task.ID,
		Name:    task.Name,
		Running: s.running[id] != nil,
	}
	if last, ok := s.lastRun[id]; ok {
		status.LastRun = &last
	}
	return status, nil
}

func (s *Service) run(ctx context.Context, t Task, done chan struct{}) {
	defer close(done)
	for {
		s.probeOnce(ctx, t)
		select {
		case <-ctx.Done():
			return
		case <-time.After(t.Interval):
		}
	}
}

func (s *Service) probeOnce(ctx context.Context, t Task) {
	logger := log.With().Str("service", "alerts").Str("task", t.ID).Logger()

	value, err := t.Probe(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Error().Err(err).Msg("alert probe failed")
		return
	}

	s.mu.Lock()
	s.lastRun[t.ID] = time.Now()
	s.mu.Unlock()

	if !t.conditionHolds(value) {
		return
	}

	body := fmt.Sprintf("%s\nResult: %v", t.Message, value)
	if err := s.notifier.Notify(ctx, "Task Alert: "+t.Name, body); err != nil {
		logger.Warn().Err(err).Msg("failed to send alert notification")
		return
	}
	logger.Info().Float64("value", value).Msg("alert sent")
}

package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentAlert struct {
	title string
	body  string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentAlert
	ch   chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{ch: make(chan struct{}, 16)}
}

func (f *fakeNotifier) Notify(ctx context.Context, title, body string) error {
	f.mu.Lock()
	f.sent = append(f.sent, sentAlert{title: title, body: body})
	f.mu.Unlock()
	select {
	case f.ch <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeNotifier) alerts() []sentAlert {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentAlert, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeNotifier) waitForAlert(t *testing.T) {
	t.Helper()
	select {
	case <-f.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an alert notification")
	}
}

func fixedProbe(value float64) Probe {
	return func(ctx context.Context) (float64, error) {
		return value, nil
	}
}

type fakeRates struct {
	sgd float64
	btc float64
}

func (f *fakeRates) USDToSGD(ctx context.Context) (float64, error)     { return f.sgd, nil }
func (f *fakeRates) USDToBitcoin(ctx context.Context) (float64, error) { return f.btc, nil }

type fakeQuotes struct {
	mu     sync.Mutex
	price  float64
	symbol string
}

func (f *fakeQuotes) Price(ctx context.Context, stockCode string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.symbol = stockCode
	return f.price, nil
}

func TestBuildProbe(t *testing.T) {
	rates := &fakeRates{sgd: 1.3521, btc: 118432.17}
	quotes := &fakeQuotes{price: 43.8}
	ctx := context.Background()

	probe, err := BuildProbe(TypeUSDSGD, "", rates, quotes)
	require.NoError(t, err)
	value, err := probe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.3521, value)

	probe, err = BuildProbe(TypeUSDBTC, "", rates, quotes)
	require.NoError(t, err)
	value, err = probe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 118432.17, value)

	probe, err = BuildProbe(TypeStockPrice, "US.ASTS", rates, quotes)
	require.NoError(t, err)
	value, err = probe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 43.8, value)
	assert.Equal(t, "US.ASTS", quotes.symbol)

	_, err = BuildProbe("moon_phase", "", rates, quotes)
	assert.Error(t, err)
}

func TestProbeOnceSendsAlertWhenConditionHolds(t *testing.T) {
	notifier := newFakeNotifier()
	service := NewService(notifier)
	task := Task{
		ID:        "asts_price",
		Name:      "ASTS less than $46",
		Threshold: 46,
		Direction: DirectionBelow,
		Interval:  time.Hour,
		Message:   "ASTS price:",
		Probe:     fixedProbe(43.8),
	}
	require.NoError(t, service.Register(task))

	service.probeOnce(context.Background(), task)

	sent := notifier.alerts()
	require.Len(t, sent, 1)
	assert.Equal(t, "Task Alert: ASTS less than $46", sent[0].title)
	assert.Equal(t, "ASTS price:\nResult: 43.8", sent[0].body)

	status, err := service.Status("asts_price")
	require.NoError(t, err)
	require.NotNil(t, status.LastRun)
}

func TestProbeOnceQuietWhenConditionFails(t *testing.T) {
	notifier := newFakeNotifier()
	service := NewService(notifier)
	task := Task{
		ID:        "usd_sgd_rate",
		Name:      "USD to SGD exchange rate is above 1.35",
		Threshold: 1.35,
		Direction: DirectionAbove,
		Interval:  time.Hour,
		Message:   "USD to SGD exchange rate:",
		Probe:     fixedProbe(1.31),
	}
	require.NoError(t, service.Register(task))

	service.probeOnce(context.Background(), task)

	assert.Empty(t, notifier.alerts())

	// The probe itself succeeded, so the run still counts.
	status, err := service.Status("usd_sgd_rate")
	require.NoError(t, err)
	assert.NotNil(t, status.LastRun)
}

func TestProbeOnceFailureLeavesNoTrace(t *testing.T) {
	notifier := newFakeNotifier()
	service := NewService(notifier)
	task := Task{
		ID:        "usd_btc_rate",
		Name:      "USD to bitcoin exchange rate is above 120000",
		Threshold: 120000,
		Direction: DirectionAbove,
		Interval:  time.Hour,
		Message:   "USD to bitcoin exchange rate:",
		Probe: func(ctx context.Context) (float64, error) {
			return 0, errors.New("ticker unreachable")
		},
	}
	require.NoError(t, service.Register(task))

	service.probeOnce(context.Background(), task)

	assert.Empty(t, notifier.alerts())
	status, err := service.Status("usd_btc_rate")
	require.NoError(t, err)
	assert.Nil(t, status.LastRun)
}

func TestScheduleSurvivesProbeFailures(t *testing.T) {
	notifier := newFakeNotifier()
	service := NewService(notifier)

	var mu sync.Mutex
	calls := 0
	task := Task{
		ID:        "flaky",
		Name:      "flaky source",
		Threshold: 10,
		Direction: DirectionAbove,
		Interval:  5 * time.Millisecond,
		Message:   "value:",
		Probe: func(ctx context.Context) (float64, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls < 3 {
				return 0, errors.New("transient failure")
			}
			return 12, nil
		},
	}
	require.NoError(t, service.Register(task))
	require.NoError(t, service.Start("flaky"))
	defer service.StopAll()

	notifier.waitForAlert(t)

	sent := notifier.alerts()
	require.NotEmpty(t, sent)
	assert.Equal(t, "Task Alert: flaky source", sent[0].title)
	assert.Equal(t, "value:\nResult: 12", sent[0].body)
}

func TestStopHaltsSchedule(t *testing.T) {
	notifier := newFakeNotifier()
	service := NewService(notifier)

	var mu sync.Mutex
	calls := 0
	task := Task{
		ID:        "counter",
		Name:      "counter",
		Threshold: 100,
		Direction: DirectionAbove,
		Interval:  5 * time.Millisecond,
		Message:   "count:",
		Probe: func(ctx context.Context) (float64, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			return 1, nil
		},
	}
	require.NoError(t, service.Register(task))
	require.NoError(t, service.Start("counter"))

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, service.Stop("counter"))

	mu.Lock()
	after := calls
	mu.Unlock()
	assert.GreaterOrEqual(t, after, 2)

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	final := calls
	mu.Unlock()
	assert.Equal(t, after, final)

	// Stopping an already stopped task is fine.
	require.NoError(t, service.Stop("counter"))
}

func TestStartIsIdempotentAndValidated(t *testing.T) {
	service := NewService(newFakeNotifier())
	task := Task{
		ID:        "steady",
		Name:      "steady",
		Threshold: 100,
		Direction: DirectionAbove,
		Interval:  time.Hour,
		Message:   "value:",
		Probe:     fixedProbe(1),
	}
	require.NoError(t, service.Register(task))

	assert.ErrorIs(t, service.Start("missing"), ErrTaskNotFound)
	assert.ErrorIs(t, service.Stop("missing"), ErrTaskNotFound)

	require.NoError(t, service.Start("steady"))
	require.NoError(t, service.Start("steady"))

	status, err := service.Status("steady")
	require.NoError(t, err)
	assert.True(t, status.Running)

	service.StopAll()
	status, err = service.Status("steady")
	require.NoError(t, err)
	assert.False(t, status.Running)
}

func TestRegisterRejectsBadTasks(t *testing.T) {
	service := NewService(newFakeNotifier())

	assert.Error(t, service.Register(Task{Name: "no id", Probe: fixedProbe(1), Interval: time.Hour}))
	assert.Error(t, service.Register(Task{ID: "no-probe", Interval: time.Hour}))
	assert.Error(t, service.Register(Task{ID: "no-interval", Probe: fixedProbe(1)}))

	ok := Task{ID: "dup", Name: "dup", Probe: fixedProbe(1), Interval: time.Hour, Direction: DirectionAbove}
	require.NoError(t, service.Register(ok))
	assert.Error(t, service.Register(ok))
}

func setupAlertsAPI(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	service := NewService(newFakeNotifier())
	task := Task{
		ID:        "usd_sgd_rate",
		Name:      "USD to SGD exchange rate is above 1.35",
		Threshold: 1.35,
		Direction: DirectionAbove,
		Interval:  time.Hour,
		Message:   "USD to SGD exchange rate:",
		Probe:     fixedProbe(1.31),
	}
	require.NoError(t, service.Register(task))

	h := NewGinHandlers(service)
	router := gin.New()
	tasks := router.Group("/api/v1/alerts/tasks")
	{
		tasks.GET("/:task_id/status", h.TaskStatusHandler())
		tasks.POST("/:task_id/start", h.StartTaskHandler())
		tasks.POST("/:task_id/stop", h.StopTaskHandler())
	}
	t.Cleanup(service.StopAll)
	return router, service
}

func TestAlertEndpoints(t *testing.T) {
	router, _ := setupAlertsAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/tasks/usd_sgd_rate/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var statusEnvelope struct {
		Data TaskStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &statusEnvelope))
	assert.Equal(t, "usd_sgd_rate", statusEnvelope.Data.ID)
	assert.False(t, statusEnvelope.Data.Running)
	assert.Nil(t, statusEnvelope.Data.LastRun)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/alerts/tasks/usd_sgd_rate/start", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/alerts/tasks/usd_sgd_rate/status", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &statusEnvelope))
	assert.True(t, statusEnvelope.Data.Running)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/alerts/tasks/usd_sgd_rate/stop", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/alerts/tasks/usd_sgd_rate/status", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &statusEnvelope))
	assert.False(t, statusEnvelope.Data.Running)
}

func TestAlertEndpointsUnknownTask(t *testing.T) {
	router, _ := setupAlertsAPI(t)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/alerts/tasks/nope/status"},
		{http.MethodPost, "/api/v1/alerts/tasks/nope/start"},
		{http.MethodPost, "/api/v1/alerts/tasks/nope/stop"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code, "%s %s", tc.method, tc.path)
	}
}

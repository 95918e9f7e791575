package httpclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig tunes the breaker guarding one downstream service.
type CircuitBreakerConfig struct {
	Name string

	// MaxRequests is how many probes pass while half-open.
	MaxRequests uint32
	// Interval resets closed-state counts. Zero keeps them forever.
	Interval time.Duration
	// Timeout is the open period before the first half-open probe.
	Timeout time.Duration

	// The breaker opens once MinRequests have been counted and the
	// failure share reaches FailureRatio.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultCircuitBreakerConfig returns the settings used for downstream probes.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// ErrCircuitOpen is returned without contacting the service while the breaker is open.
var ErrCircuitOpen = gobreaker.ErrOpenState

var circuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "downstream_circuit_breaker_state",
	Help: "Breaker state per downstream service: 0 closed, 1 half-open, 2 open.",
}, []string{"name"})

var stateGaugeValue = map[gobreaker.State]float64{
	gobreaker.StateClosed:   0,
	gobreaker.StateHalfOpen: 1,
	gobreaker.StateOpen:     2,
}

func init() {
	prometheus.MustRegister(circuitBreakerState)
}

// tripAfter reports whether counts cross the configured failure share.
func (c CircuitBreakerConfig) tripAfter(counts gobreaker.Counts) bool {
	if counts.Requests == 0 || counts.Requests < c.MinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= c.FailureRatio
}

// CircuitBreakerClient is a Client whose calls go through a breaker. A 5xx
// answer counts as a failure.
type CircuitBreakerClient struct {
	name    string
	client  *Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// NewCircuitBreakerClient guards client with a breaker built from cfg. State
// changes are logged and exported on the breaker state gauge.
func NewCircuitBreakerClient(client *Client, cfg CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerClient {
	gauge := circuitBreakerState.WithLabelValues(cfg.Name)
	gauge.Set(stateGaugeValue[gobreaker.StateClosed])

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: cfg.tripAfter,
		OnStateChange: func(name string, from, to gobreaker.State) {
			gauge.Set(stateGaugeValue[to])
			logger.Warn("downstream breaker changed state",
				slog.String("service", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &CircuitBreakerClient{name: cfg.Name, client: client, breaker: breaker}
}

// Do sends req through the breaker. A 5xx response is closed and turned
// into an error carrying the start of its body.
func (c *CircuitBreakerClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.client.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < http.StatusInternalServerError {
			return resp, nil
		}
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("%s: server error %d: %s", c.name, resp.StatusCode, snippet)
	})
}

// Get issues a GET to url through the breaker.
func (c *CircuitBreakerClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create GET request: %w", err)
	}
	return c.Do(ctx, req)
}

func (c *CircuitBreakerClient) State() gobreaker.State { return c.breaker.State() }

func (c *CircuitBreakerClient) Name() string { return c.name }

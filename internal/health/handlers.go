package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noah-isme/storefront-bff/internal/common"
)

var draining atomic.Bool

// SetReady toggles readiness. The API turns it off when shutdown begins so
// load balancers drain the instance before connections close.
func SetReady(v bool) {
	draining.Store(!v)
}

// Checker probes the dependencies a storefront request needs.
type Checker interface {
	PingRedis(ctx context.Context, timeout time.Duration) error
	PingOrderService(ctx context.Context, timeout time.Duration) error
}

// Report is the readiness body.
type Report struct {
	Status       string `json:"status"`
	Redis        string `json:"redis"`
	OrderService string `json:"orderService"`
}

// Handler serves the liveness and readiness probes.
type Handler struct {
	Checker         Checker
	RedisTimeout    time.Duration
	UpstreamTimeout time.Duration
}

// Live handles GET /health/live.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready handles GET /health/ready. Both probes run concurrently; any failure
// answers 503 with the failing probe's error.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if draining.Load() {
		common.JSON(w, http.StatusServiceUnavailable, Report{Status: "draining"})
		return
	}
	if h.Checker == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "NOT_READY", "dependencies unavailable", nil)
		return
	}

	ctx := r.Context()
	var redisErr, upstreamErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		redisErr = h.Checker.PingRedis(ctx, durationOr(h.RedisTimeout, 300*time.Millisecond))
	}()
	go func() {
		defer wg.Done()
		upstreamErr = h.Checker.PingOrderService(ctx, durationOr(h.UpstreamTimeout, 2*time.Second))
	}()
	wg.Wait()

	report := Report{Status: "ready", Redis: probeStatus(redisErr), OrderService: probeStatus(upstreamErr)}
	status := http.StatusOK
	if redisErr != nil || upstreamErr != nil {
		report.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	common.JSON(w, status, report)
}

func probeStatus(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

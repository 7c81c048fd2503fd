package service

import (
	"context"
	"sync"
	"time"

	"leadbridge/internal/errors"
	"leadbridge/internal/forward"
	"leadbridge/internal/metrics"
	"leadbridge/pkg/waha/types"

	"github.com/sirupsen/logrus"
)

// Check and overall statuses of a readiness report
const (
	HealthHealthy   = "healthy"
	HealthWarning   = "warning"
	HealthUnhealthy = "unhealthy"
)

// CheckResult is the outcome of one dependency check
type CheckResult struct {
	Status     string `json:"status"`
	Detail     string `json:"detail,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// ReadinessReport aggregates the dependency checks. OverallStatus is the
// worst status of any check.
type ReadinessReport struct {
	OverallStatus string                 `json:"overall_status"`
	Timestamp     string                 `json:"timestamp"`
	Checks        map[string]CheckResult `json:"checks"`
}

// Ready reports whether the service can do useful work right now
func (r ReadinessReport) Ready() bool {
	return r.OverallStatus == HealthHealthy
}

var checkedTargets = []forward.Target{forward.TargetLeadCapture, forward.TargetWhatsAppResponses}

// Readiness checks the gateway session and every downstream webhook
// concurrently. A reachable gateway whose session is not connected is a
// warning: inbound events still arrive but sends fail.
func (b *Bridge) Readiness(ctx context.Context) ReadinessReport {
	var mu sync.Mutex
	var wg sync.WaitGroup
	checks := make(map[string]CheckResult, len(checkedTargets)+1)
	record := func(name string, res CheckResult) {
		mu.Lock()
		checks[name] = res
		mu.Unlock()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		record("gateway", b.checkGateway(ctx))
	}()

	for _, target := range checkedTargets {
		wg.Add(1)
		go func(target forward.Target) {
			defer wg.Done()
			start := time.Now()
			err := b.forwarder.Ping(ctx, target)
			res := CheckResult{Status: HealthHealthy, DurationMs: time.Since(start).Milliseconds()}
			if err != nil {
				res.Status = HealthUnhealthy
				res.Error = errors.GetUserMessage(err)
				errors.LogWarn(b.logger, err, "Downstream readiness check failed", logrus.Fields{LogFieldTarget: target})
			}
			record(string(target), res)
		}(target)
	}
	wg.Wait()

	overall := HealthHealthy
	for _, res := range checks {
		switch {
		case res.Status == HealthUnhealthy:
			overall = HealthUnhealthy
		case res.Status == HealthWarning && overall == HealthHealthy:
			overall = HealthWarning
		}
	}

	metrics.IncrementCounter(metrics.ReadinessChecksTotal, map[string]string{"status": overall}, "Readiness checks by overall status")
	return ReadinessReport{
		OverallStatus: overall,
		Timestamp:     b.now().UTC().Format(time.RFC3339),
		Checks:        checks,
	}
}

func (b *Bridge) checkGateway(ctx context.Context) CheckResult {
	start := time.Now()
	st, err := b.gateway.GetSessionStatus(ctx, b.gateway.DefaultSession())
	res := CheckResult{DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = HealthUnhealthy
		res.Error = errors.GetUserMessage(err)
		return res
	}

	res.Detail = st.Status
	switch st.Status {
	case types.SessionStatusWorking, types.SessionStatusConnected:
		res.Status = HealthHealthy
	default:
		res.Status = HealthWarning
	}
	return res
}

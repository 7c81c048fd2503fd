package service

import (
	"context"
	"sync"
	"time"

	"leadbridge/internal/constants"
	"leadbridge/internal/errors"
	"leadbridge/internal/metrics"
	"leadbridge/pkg/waha"
	"leadbridge/pkg/waha/types"

	"github.com/sirupsen/logrus"
)

// Session states the monitor recovers from by starting the session again.
// SCAN_QR_CODE needs a human and is left alone.
var unhealthySessionStatuses = map[string]struct{}{
	types.SessionStatusFailed:  {},
	types.SessionStatusStopped: {},
}

// SessionMonitorConfig tunes the session monitor. Zero values use the
// package defaults.
type SessionMonitorConfig struct {
	Session        string
	CheckInterval  time.Duration
	StartupTimeout time.Duration
	StartDelay     time.Duration
}

// SessionMonitor polls the gateway session and asks the gateway to start
// it again when it is FAILED or STOPPED, or has been STARTING for longer
// than the startup timeout.
type SessionMonitor struct {
	gateway        waha.Client
	session        string
	logger         logrus.FieldLogger
	checkInterval  time.Duration
	startupTimeout time.Duration
	startDelay     time.Duration
	now            func() time.Time

	mu                  sync.Mutex
	lastStatus          string
	statusSince         time.Time
	consecutiveFailures int
	running             bool
	stopCh              chan struct{}
	done                chan struct{}
}

// NewSessionMonitor creates a session monitor for the configured session,
// or the gateway's default session when none is named
func NewSessionMonitor(gateway waha.Client, cfg SessionMonitorConfig, logger logrus.FieldLogger) *SessionMonitor {
	if cfg.Session == "" {
		cfg.Session = gateway.DefaultSession()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Duration(constants.DefaultSessionCheckSec) * time.Second
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = time.Duration(constants.DefaultSessionStartupTimeoutSec) * time.Second
	}
	if cfg.StartDelay <= 0 {
		cfg.StartDelay = time.Duration(constants.SessionMonitorStartDelaySec) * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &SessionMonitor{
		gateway:        gateway,
		session:        cfg.Session,
		logger:         logger.WithField(LogFieldComponent, "session_monitor"),
		checkInterval:  cfg.CheckInterval,
		startupTimeout: cfg.StartupTimeout,
		startDelay:     cfg.StartDelay,
		now:            time.Now,
	}
}

// Start runs the check loop until ctx is done or Stop is called
func (sm *SessionMonitor) Start(ctx context.Context) {
	sm.mu.Lock()
	if sm.running {
		sm.mu.Unlock()
		sm.logger.Warn("Session monitor is already running")
		return
	}
	sm.running = true
	sm.stopCh = make(chan struct{})
	sm.done = make(chan struct{})
	stopCh, done := sm.stopCh, sm.done
	sm.mu.Unlock()

	go sm.loop(ctx, stopCh, done)
	sm.logger.WithFields(logrus.Fields{
		LogFieldSession: sm.session,
		"interval":      sm.checkInterval.String(),
	}).Info("Session monitor started")
}

// Stop ends the check loop and waits for a running check to finish
func (sm *SessionMonitor) Stop() {
	sm.mu.Lock()
	if !sm.running {
		sm.mu.Unlock()
		return
	}
	close(sm.stopCh)
	done := sm.done
	sm.running = false
	sm.mu.Unlock()

	<-done
	sm.logger.Info("Session monitor stopped")
}

func (sm *SessionMonitor) loop(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	delay := time.NewTimer(sm.startDelay)
	defer delay.Stop()

	select {
	case <-ctx.Done():
		return
	case <-stopCh:
		return
	case <-delay.C:
	}
	sm.check(ctx)

	ticker := time.NewTicker(sm.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			sm.check(ctx)
		}
	}
}

// check reads the session state once and starts the session when needed.
// An unreachable gateway is only logged: a start request would fail too.
func (sm *SessionMonitor) check(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, sm.checkInterval)
	defer cancel()

	st, err := sm.gateway.GetSessionStatus(checkCtx, sm.session)
	if err != nil {
		metrics.IncrementCounter(metrics.SessionChecksTotal, map[string]string{"status": "unavailable"}, "Gateway session checks by observed status")
		errors.LogWarn(sm.logger, err, "Session check failed", logrus.Fields{LogFieldSession: sm.session})
		return
	}
	metrics.IncrementCounter(metrics.SessionChecksTotal, map[string]string{"status": st.Status}, "Gateway session checks by observed status")
	sm.logger.WithFields(logrus.Fields{
		LogFieldSession: sm.session,
		"status":        st.Status,
	}).Debug("Session status checked")

	if _, bad := unhealthySessionStatuses[st.Status]; bad {
		sm.restart(checkCtx, st.Status, "unhealthy state")
		return
	}
	if stuck, since := sm.track(st.Status); stuck {
		sm.restart(checkCtx, st.Status, "startup timeout "+since.Round(time.Second).String())
	}
}

// track records the observed state and reports whether the session has
// stayed in STARTING past the startup timeout, and for how long
func (sm *SessionMonitor) track(status string) (bool, time.Duration) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := sm.now()
	if sm.lastStatus != status || sm.statusSince.IsZero() {
		sm.lastStatus = status
		sm.statusSince = now
		return false, 0
	}
	if status != types.SessionStatusStarting {
		return false, 0
	}
	elapsed := now.Sub(sm.statusSince)
	return elapsed > sm.startupTimeout, elapsed
}

func (sm *SessionMonitor) restart(ctx context.Context, status, reason string) {
	fields := logrus.Fields{
		LogFieldSession: sm.session,
		"status":        status,
		"reason":        reason,
	}
	sm.logger.WithFields(fields).Warn("Gateway session unhealthy, requesting start")

	if err := sm.gateway.StartSession(ctx, sm.session); err != nil {
		sm.mu.Lock()
		sm.consecutiveFailures++
		fields["consecutive_failures"] = sm.consecutiveFailures
		sm.mu.Unlock()

		metrics.IncrementCounter(metrics.SessionRestartsTotal, map[string]string{"result": "error"}, "Gateway session start requests")
		errors.LogError(sm.logger, err, "Failed to restart gateway session", fields)
		return
	}

	sm.mu.Lock()
	sm.lastStatus = ""
	sm.statusSince = time.Time{}
	sm.consecutiveFailures = 0
	sm.mu.Unlock()

	metrics.IncrementCounter(metrics.SessionRestartsTotal, map[string]string{"result": "ok"}, "Gateway session start requests")
	sm.logger.WithFields(fields).Info("Gateway session start requested")
}

// ConsecutiveFailures is the number of start requests that failed since
// the last one that succeeded
func (sm *SessionMonitor) ConsecutiveFailures() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.consecutiveFailures
}

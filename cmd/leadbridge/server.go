package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"leadbridge/internal/constants"
	"leadbridge/internal/errors"
	"leadbridge/internal/middleware"
	"leadbridge/internal/models"
	"leadbridge/internal/service"
	"leadbridge/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Bridge is the behaviour behind the HTTP routes
type Bridge interface {
	HandleGatewayEvent(ctx context.Context, ev models.InboundEvent) (*service.EventResult, error)
	InjectLead(ctx context.Context, req models.LeadRequest) (*service.LeadResult, error)
	SendMessage(ctx context.Context, req models.OutboundSendRequest) (*service.SendResult, error)
	Status(ctx context.Context, session string) service.StatusReport
	Readiness(ctx context.Context) service.ReadinessReport
}

type Server struct {
	router       *mux.Router
	logger       *logrus.Logger
	bridge       Bridge
	auth         Authenticator
	limiter      Limiter
	cfg          models.ServerConfig
	verbose      bool
	maxBodyBytes int64
	server       *http.Server
	now          func() time.Time
	// beforeMetrics refreshes gauges before /metrics is served
	beforeMetrics func()
}

func NewServer(cfg models.ServerConfig, bridge Bridge, auth Authenticator, limiter Limiter, logger *logrus.Logger, verbose bool) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		logger:       logger,
		bridge:       bridge,
		auth:         auth,
		limiter:      limiter,
		cfg:          cfg,
		verbose:      verbose,
		maxBodyBytes: constants.DefaultMaxRequestBodyBytes,
		now:          time.Now,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Observability(s.logger))
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusNotFound, errors.HTTPErrorResponse{Success: false, Error: "not found"})
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusMethodNotAllowed, errors.HTTPErrorResponse{Success: false, Error: "method not allowed"})
	})

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)

	protected := s.router.NewRoute().Subrouter()
	protected.Use(s.authMiddleware, s.rateLimitMiddleware)
	protected.HandleFunc("/webhook/gateway", s.handleGatewayWebhook()).Methods(http.MethodPost)
	protected.HandleFunc("/api/inject-lead", s.handleInjectLead()).Methods(http.MethodPost)
	protected.HandleFunc("/api/send-message", s.handleSendMessage()).Methods(http.MethodPost)
	protected.HandleFunc("/api/status", s.handleStatus()).Methods(http.MethodGet)
	protected.HandleFunc("/health/ready", s.handleReady()).Methods(http.MethodGet)
	protected.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSec) * time.Second,
	}

	s.logger.WithField("port", s.cfg.Port).Info("Starting server")
	if err := s.server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

// writeError answers with the status mapped from err's code and the
// standard {success:false, error} body
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeJSON(w, errors.HTTPStatusCode(err), errors.ToHTTPResponse(err, tracing.GetRequestID(r.Context())))
}

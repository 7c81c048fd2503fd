package main

import (
	"net/http"

	"leadbridge/internal/metrics"
	"leadbridge/internal/service"
	"leadbridge/internal/tracing"

	"github.com/sirupsen/logrus"
)

// handleMetrics returns a snapshot of the in-memory metrics registry
func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.beforeMetrics != nil {
			s.beforeMetrics()
		}

		s.logger.WithFields(logrus.Fields{
			service.LogFieldRequestID: tracing.GetRequestID(r.Context()),
			service.LogFieldEndpoint:  "/metrics",
		}).Debug("Serving metrics endpoint")

		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		s.writeJSON(w, http.StatusOK, metrics.GetRegistry().Snapshot())
	}
}

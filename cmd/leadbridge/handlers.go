package main

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"leadbridge/internal/errors"
	"leadbridge/internal/models"
	"leadbridge/internal/service"
	"leadbridge/pkg/waha"
)

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, healthResponse{
			Status:    "healthy",
			Timestamp: s.now().UTC().Format(time.RFC3339),
		})
	}
}

func (s *Server) handleGatewayWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			s.writeError(w, r, errors.NewValidationError("body", "could not be read"))
			return
		}

		ev, err := waha.ParseInboundEvent(body)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		ctx := service.WithVerbose(r.Context(), s.verbose)
		res, err := s.bridge.HandleGatewayEvent(ctx, *ev)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleInjectLead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.LeadRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		ctx := service.WithVerbose(r.Context(), s.verbose)
		res, err := s.bridge.InjectLead(ctx, req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.OutboundSendRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		ctx := service.WithVerbose(r.Context(), s.verbose)
		res, err := s.bridge.SendMessage(ctx, req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, res)
	}
}

// handleStatus always answers 200; gateway failures are reported in the body
func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, s.bridge.Status(r.Context(), r.URL.Query().Get("session")))
	}
}

// handleReady answers 503 unless every dependency check is healthy
func (s *Server) handleReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := s.bridge.Readiness(r.Context())
		status := http.StatusOK
		if !report.Ready() {
			status = http.StatusServiceUnavailable
		}
		s.writeJSON(w, status, report)
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.NewValidationError("body", "must be a JSON object")
	}
	return nil
}

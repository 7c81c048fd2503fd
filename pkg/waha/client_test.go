package waha

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"leadbridge/internal/errors"
	"leadbridge/pkg/waha/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestClient(baseURL string) *WAHAClient {
	return NewClient(types.ClientConfig{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		DefaultSession: "default",
		Timeout:        time.Second,
	}, quietLogger())
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(types.ClientConfig{BaseURL: "http://waha:3000/"}, nil)

	assert.Equal(t, "http://waha:3000", client.baseURL)
	assert.Equal(t, "default", client.DefaultSession())
	assert.Equal(t, 10*time.Second, client.timeout)
	assert.Len(t, client.strategies, 3)
}

func TestWAHAClient_SendText(t *testing.T) {
	var receivedPath, receivedKey string
	var receivedPayload map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedPath = r.URL.Path
		receivedKey = r.Header.Get("X-Api-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&receivedPayload))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"abc123","timestamp":1700000000}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.SendText(context.Background(), "+55 66 99999-0000", "Olá", "")
	require.NoError(t, err)

	assert.Equal(t, "abc123", result.MessageID)
	assert.Equal(t, int64(1700000000), result.Timestamp)
	assert.Equal(t, "/api/sendText", receivedPath)
	assert.Equal(t, "test-key", receivedKey)
	assert.Equal(t, map[string]interface{}{
		"session": "default",
		"chatId":  "5566999990000@c.us",
		"text":    "Olá",
	}, receivedPayload)
}

func TestWAHAClient_SendText_MessageIDShapes(t *testing.T) {
	tests := []struct {
		name     string
		response string
		expected string
	}{
		{"string id", `{"id":"S1"}`, "S1"},
		{"serialized id", `{"id":{"fromMe":true,"id":"AAA","_serialized":"true_5511@c.us_AAA"}}`, "true_5511@c.us_AAA"},
		{"data id", `{"_data":{"id":{"_serialized":"D1"}}}`, "D1"},
		{"messageId field", `{"messageId":"M1"}`, "M1"},
		{"id wins over messageId", `{"id":"S1","messageId":"M2"}`, "S1"},
		{"no id", `{}`, ""},
		{"not json", `ok`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.response))
			}))
			defer server.Close()

			result, err := newTestClient(server.URL).SendText(context.Background(), "5511999990000", "hi", "sales")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.MessageID)
		})
	}
}

func TestWAHAClient_SendText_StatusClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		expectedCode  errors.ErrorCode
		retryable     bool
		expectedInMsg string
	}{
		{"bad request", http.StatusBadRequest, `{"message":"invalid chatId"}`, errors.ErrCodeGatewayRejected, false, "invalid chatId"},
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad key"}`, errors.ErrCodeGatewayRejected, false, "bad key"},
		{"too many requests", http.StatusTooManyRequests, ``, errors.ErrCodeGatewayRejected, true, "empty response body"},
		{"server error", http.StatusInternalServerError, `boom`, errors.ErrCodeGatewayUnavailable, true, "boom"},
		{"bad gateway", http.StatusBadGateway, ``, errors.ErrCodeGatewayUnavailable, true, "status 502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).SendText(context.Background(), "5511999990000", "hi", "")
			require.Error(t, err)

			assert.Equal(t, tt.expectedCode, errors.GetCode(err))
			assert.Equal(t, tt.retryable, errors.IsRetryable(err))
			assert.Contains(t, err.Error(), tt.expectedInMsg)

			appErr, ok := errors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.status, appErr.Context["status_code"])
			assert.Equal(t, "/api/sendText", appErr.Context["endpoint"])
		})
	}
}

// hangingServer never answers until the test ends. The handler waits on a
// test-owned channel: with an unread request body the server side request
// context is not cancelled when the client gives up.
func hangingServer(t *testing.T, hits *int32) *httptest.Server {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})
	return server
}

func TestWAHAClient_SendText_Timeout(t *testing.T) {
	server := hangingServer(t, nil)

	client := NewClient(types.ClientConfig{BaseURL: server.URL, Timeout: 50 * time.Millisecond}, quietLogger())

	_, err := client.SendText(context.Background(), "5511999990000", "hi", "")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeGatewayTimeout, errors.GetCode(err))
	assert.True(t, errors.IsRetryable(err))
}

func TestWAHAClient_SendText_ContextDeadline(t *testing.T) {
	server := hangingServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := newTestClient(server.URL)
	start := time.Now()
	_, err := client.SendText(ctx, "5511999990000", "hi", "")

	assert.Equal(t, errors.ErrCodeGatewayTimeout, errors.GetCode(err))
	assert.Less(t, time.Since(start), 900*time.Millisecond, "caller deadline must win over the client timeout")
	assert.Zero(t, client.BreakerStats().Failures, "an expired caller deadline is not a gateway failure")
}

func TestWAHAClient_CancelledCallsDoNotTripBreaker(t *testing.T) {
	server := hangingServer(t, nil)

	client := NewClient(types.ClientConfig{
		BaseURL:            server.URL,
		Timeout:            time.Second,
		BreakerMaxFailures: 1,
	}, quietLogger())

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		_, err := client.SendText(ctx, "5511999990000", "hi", "")
		cancel()
		assert.Equal(t, errors.ErrCodeGatewayTimeout, errors.GetCode(err))
	}

	stats := client.BreakerStats()
	assert.Equal(t, "CLOSED", stats.State.String())
	assert.Zero(t, stats.Rejected)
}

func TestWAHAClient_SendText_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := newTestClient(url).SendText(context.Background(), "5511999990000", "hi", "")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeGatewayUnavailable, errors.GetCode(err))
	assert.Contains(t, err.Error(), "gateway unreachable")
}

func TestWAHAClient_SendText_InvalidPhone(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).SendText(context.Background(), "abc", "hi", "")
	assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetCode(err))
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestWAHAClient_CircuitBreakerOpens(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(types.ClientConfig{
		BaseURL:            server.URL,
		BreakerMaxFailures: 2,
		BreakerCooldown:    time.Minute,
	}, quietLogger())

	for i := 0; i < 2; i++ {
		_, err := client.SendText(context.Background(), "5511999990000", "hi", "")
		require.Error(t, err)
	}

	_, err := client.SendText(context.Background(), "5511999990000", "hi", "")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeGatewayUnavailable, errors.GetCode(err))
	assert.Contains(t, err.Error(), "circuit breaker")
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, uint64(1), client.BreakerStats().Rejected)
}

func TestWAHAClient_RejectionsDoNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(types.ClientConfig{BaseURL: server.URL, BreakerMaxFailures: 1}, quietLogger())

	for i := 0; i < 3; i++ {
		_, err := client.SendText(context.Background(), "5511999990000", "hi", "")
		assert.Equal(t, errors.ErrCodeGatewayRejected, errors.GetCode(err))
	}
}

func TestWAHAClient_GetSessionStatus(t *testing.T) {
	tests := []struct {
		name             string
		routes           map[string]string
		expectedStatus   string
		expectedEndpoint string
		expectedMe       string
	}{
		{
			name: "sessions endpoint",
			routes: map[string]string{
				"/api/sessions/default": `{"name":"default","status":"working","me":{"id":"5511999990000@c.us","pushName":"Shop"}}`,
			},
			expectedStatus:   "WORKING",
			expectedEndpoint: "/api/sessions/default",
			expectedMe:       "5511999990000@c.us",
		},
		{
			name: "legacy status endpoint",
			routes: map[string]string{
				"/api/default/status": `{"status":"CONNECTED"}`,
			},
			expectedStatus:   "CONNECTED",
			expectedEndpoint: "/api/default/status",
		},
		{
			name: "legacy sessions status endpoint with state field",
			routes: map[string]string{
				"/api/sessions/default/status": `{"state":"scan_qr_code"}`,
			},
			expectedStatus:   "SCAN_QR_CODE",
			expectedEndpoint: "/api/sessions/default/status",
		},
		{
			name: "unknown status passed through",
			routes: map[string]string{
				"/api/sessions/default": `{"status":"Pairing"}`,
			},
			expectedStatus:   "Pairing",
			expectedEndpoint: "/api/sessions/default",
		},
		{
			name: "response without status falls through",
			routes: map[string]string{
				"/api/sessions/default": `{"name":"default"}`,
				"/api/default/status":   `{"status":"STOPPED"}`,
			},
			expectedStatus:   "STOPPED",
			expectedEndpoint: "/api/default/status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				body, ok := tt.routes[r.URL.Path]
				if !ok {
					http.NotFound(w, r)
					return
				}
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			status, err := newTestClient(server.URL).GetSessionStatus(context.Background(), "")
			require.NoError(t, err)

			assert.Equal(t, tt.expectedStatus, status.Status)
			assert.Equal(t, tt.expectedEndpoint, status.Endpoint)
			assert.Equal(t, tt.expectedMe, status.MeID)
			assert.Equal(t, "default", status.Session)
		})
	}
}

func TestWAHAClient_GetSessionStatus_AllStrategiesFail(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetSessionStatus(context.Background(), "sales")
	require.Error(t, err)

	assert.Equal(t, errors.ErrCodeStatusUnavailable, errors.GetCode(err))
	assert.Equal(t, []string{
		"/api/sessions/sales",
		"/api/sales/status",
		"/api/sessions/sales/status",
	}, paths)

	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Len(t, appErr.Context["attempts"], 3)
	assert.Contains(t, err.Error(), "legacy_sessions_status")
}

func TestWAHAClient_GetSessionStatus_TimeoutStopsStrategies(t *testing.T) {
	var hits int32
	server := hangingServer(t, &hits)

	client := NewClient(types.ClientConfig{BaseURL: server.URL, Timeout: 100 * time.Millisecond}, quietLogger())

	start := time.Now()
	_, err := client.GetSessionStatus(context.Background(), "")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStatusUnavailable, errors.GetCode(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Less(t, elapsed, 250*time.Millisecond)

	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Len(t, appErr.Context["attempts"], 1)
	assert.Equal(t, uint32(1), client.BreakerStats().Failures, "a gateway timeout still counts against the breaker")
}

func TestWAHAClient_RegisterWebhook(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		expectErr bool
	}{
		{"created", http.StatusCreated, `{}`, false},
		{"conflict", http.StatusConflict, ``, false},
		{"already registered message", http.StatusBadRequest, `{"message":"Webhook already exists"}`, false},
		{"rejected", http.StatusBadRequest, `{"message":"invalid url"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var received types.WebhookRegistration
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/webhooks", r.URL.Path)
				assert.Equal(t, http.MethodPost, r.Method)
				require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			err := newTestClient(server.URL).RegisterWebhook(context.Background(),
				"https://bridge.example.com/webhook/gateway", []string{"message", "session.status"})

			if tt.expectErr {
				assert.Equal(t, errors.ErrCodeGatewayRejected, errors.GetCode(err))
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, "https://bridge.example.com/webhook/gateway", received.URL)
			assert.Equal(t, []string{"message", "session.status"}, received.Events)
		})
	}
}

func TestWAHAClient_StartSession(t *testing.T) {
	tests := []struct {
		name         string
		session      string
		status       int
		expectedPath string
		expectedCode errors.ErrorCode
	}{
		{"default session", "", http.StatusCreated, "/api/sessions/default/start", ""},
		{"named session", "sales", http.StatusOK, "/api/sessions/sales/start", ""},
		{"unknown session", "ghost", http.StatusNotFound, "/api/sessions/ghost/start", errors.ErrCodeGatewayRejected},
		{"gateway error", "sales", http.StatusInternalServerError, "/api/sessions/sales/start", errors.ErrCodeGatewayUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var path, method, key string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				path, method, key = r.URL.Path, r.Method, r.Header.Get("X-Api-Key")
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := newTestClient(server.URL).StartSession(context.Background(), tt.session)

			assert.Equal(t, tt.expectedPath, path)
			assert.Equal(t, http.MethodPost, method)
			assert.Equal(t, "test-key", key)
			if tt.expectedCode == "" {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, tt.expectedCode, errors.GetCode(err))
			}
		})
	}
}

func TestNormalizeSessionStatus(t *testing.T) {
	assert.Equal(t, "WORKING", NormalizeSessionStatus(" working "))
	assert.Equal(t, "FAILED", NormalizeSessionStatus("Failed"))
	assert.Equal(t, "custom", NormalizeSessionStatus("custom"))
}

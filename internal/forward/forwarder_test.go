package forward

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"leadbridge/internal/auth"
	"leadbridge/internal/errors"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestForwarder_Forward(t *testing.T) {
	var gotPath, gotUA, gotContentType string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		assert.Empty(t, r.Header.Get("X-Webhook-Signature"))
		_, _ = w.Write([]byte(`{"ok":true,"row":7}`))
	}))
	defer server.Close()

	f := New(Config{
		LeadCaptureURL:       server.URL + "/webhook/lead-capture",
		WhatsAppResponsesURL: server.URL + "/webhook/whatsapp-responses",
	}, quietLogger())

	result, err := f.Forward(context.Background(), TargetLeadCapture, map[string]string{"name": "Ana"})
	require.NoError(t, err)

	assert.JSONEq(t, `{"ok":true,"row":7}`, string(result))
	assert.Equal(t, "/webhook/lead-capture", gotPath)
	assert.Equal(t, "leadbridge/1.0", gotUA)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, map[string]interface{}{"name": "Ana"}, gotBody)
}

func TestForwarder_ResponseBodies(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{"json object", `{"a":1}`, `{"a":1}`},
		{"json array", ` [1,2] `, `[1,2]`},
		{"empty", ``, `{}`},
		{"whitespace", "\n ", `{}`},
		{"plain text", `Workflow was started`, `{"message":"Workflow was started"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			f := New(Config{WhatsAppResponsesURL: server.URL}, quietLogger())
			result, err := f.Forward(context.Background(), TargetWhatsAppResponses, map[string]int{"x": 1})
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(result))
		})
	}
}

func TestForwarder_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
		inMessage string
	}{
		{"not found", http.StatusNotFound, `{"message":"webhook not registered"}`, false, "status 404"},
		{"server error", http.StatusInternalServerError, ``, true, "empty body"},
		{"bad gateway", http.StatusBadGateway, `upstream down`, true, "upstream down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			f := New(Config{LeadCaptureURL: server.URL}, quietLogger())
			_, err := f.Forward(context.Background(), TargetLeadCapture, struct{}{})
			require.Error(t, err)

			appErr, ok := errors.As(err)
			require.True(t, ok)
			assert.Equal(t, errors.ErrCodeForwardFailed, appErr.Code)
			assert.Equal(t, "lead-capture", appErr.Context["target"])
			assert.Equal(t, tt.status, appErr.Context["status_code"])
			assert.Equal(t, tt.retryable, appErr.Retryable)
			assert.Contains(t, appErr.Message, tt.inMessage)
		})
	}
}

func TestForwarder_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	f := New(Config{LeadCaptureURL: server.URL, Timeout: 50 * time.Millisecond}, quietLogger())

	start := time.Now()
	_, err := f.Forward(context.Background(), TargetLeadCapture, struct{}{})
	require.Error(t, err)

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, errors.ErrCodeForwardFailed, errors.GetCode(err))
	assert.Contains(t, err.Error(), "timed out")

	appErr, _ := errors.As(err)
	_, hasStatus := appErr.Context["status_code"]
	assert.False(t, hasStatus)
}

func TestForwarder_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	f := New(Config{LeadCaptureURL: url}, quietLogger())
	_, err := f.Forward(context.Background(), TargetLeadCapture, struct{}{})

	assert.Equal(t, errors.ErrCodeForwardFailed, errors.GetCode(err))
	assert.Contains(t, err.Error(), "downstream unreachable")
	assert.True(t, errors.IsRetryable(err))
}

func TestForwarder_UnknownTarget(t *testing.T) {
	f := New(Config{LeadCaptureURL: "http://example.invalid"}, quietLogger())

	_, err := f.Forward(context.Background(), TargetWhatsAppResponses, struct{}{})
	assert.Equal(t, errors.ErrCodeForwardFailed, errors.GetCode(err))

	_, err = f.Forward(context.Background(), Target("nope"), struct{}{})
	assert.Equal(t, errors.ErrCodeForwardFailed, errors.GetCode(err))
}

func TestForwarder_SignsWhenSecretConfigured(t *testing.T) {
	const secret = "downstream-signing-secret"
	fixedNow := time.Unix(1700000000, 0)

	var verified int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		err = auth.VerifySignature(secret,
			r.Header.Get("X-Webhook-Timestamp"),
			r.Header.Get("X-Webhook-Signature"),
			body, fixedNow, 300*time.Second)
		if assert.NoError(t, err) {
			atomic.AddInt32(&verified, 1)
		}
		assert.Equal(t, "1700000000", r.Header.Get("X-Webhook-Timestamp"))
	}))
	defer server.Close()

	f := New(Config{LeadCaptureURL: server.URL, SigningSecret: secret}, quietLogger())
	f.now = func() time.Time { return fixedNow }

	_, err := f.Forward(context.Background(), TargetLeadCapture, map[string]string{"name": "Ana"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&verified))
}

func TestForwarder_Ping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		expectErr bool
	}{
		{"ok", http.StatusOK, false},
		{"webhook rejects HEAD", http.StatusNotFound, false},
		{"method not allowed", http.StatusMethodNotAllowed, false},
		{"server error", http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var method, ua string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				method, ua = r.Method, r.Header.Get("User-Agent")
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			f := New(Config{WhatsAppResponsesURL: server.URL + "/webhook/whatsapp-responses"}, quietLogger())
			err := f.Ping(context.Background(), TargetWhatsAppResponses)

			assert.Equal(t, http.MethodHead, method)
			assert.Equal(t, "leadbridge/1.0", ua)
			if tt.expectErr {
				assert.Equal(t, errors.ErrCodeForwardFailed, errors.GetCode(err))
				assert.Contains(t, err.Error(), "status 502")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestForwarder_PingUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	f := New(Config{LeadCaptureURL: url}, quietLogger())

	err := f.Ping(context.Background(), TargetLeadCapture)
	assert.Equal(t, errors.ErrCodeForwardFailed, errors.GetCode(err))
	assert.Contains(t, err.Error(), "downstream unreachable")

	err = f.Ping(context.Background(), TargetWhatsAppResponses)
	assert.Contains(t, err.Error(), "unknown forward target")
}

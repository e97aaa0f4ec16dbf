package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/notifyhub/mailqueue/internal/api"
	"github.com/notifyhub/mailqueue/internal/broker"
	"github.com/notifyhub/mailqueue/internal/domain"
	"github.com/notifyhub/mailqueue/internal/metrics"
	"github.com/notifyhub/mailqueue/internal/queue"
	"github.com/notifyhub/mailqueue/internal/repository"
	"github.com/notifyhub/mailqueue/internal/service"
)

type fakeBroker struct{ up bool }

func (b *fakeBroker) IsAvailable() bool { return b.up }

func (b *fakeBroker) State() broker.State {
	if b.up {
		return broker.StateReady
	}
	return broker.StateClosed
}

type fakeSender struct{ sent []domain.Job }

func (s *fakeSender) Send(_ context.Context, job domain.Job) error {
	s.sent = append(s.sent, job)
	return nil
}

type testServer struct {
	handler    http.Handler
	sender     *fakeSender
	deliveries *repository.MemoryDeliveryRepository
}

func newTestServer(t *testing.T, brokerUp bool) *testServer {
	t.Helper()
	logger := zap.NewNop()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	q := queue.New(queue.NewMemoryStore(10), queue.Options{}, logger)
	if err := q.Init(context.Background()); err != nil {
		t.Fatalf("queue init: %v", err)
	}

	b := &fakeBroker{up: brokerUp}
	sender := &fakeSender{}
	deliveries := repository.NewMemoryDeliveryRepository()
	svc := service.NewEmailService(b, q, sender, deliveries, m, logger)

	return &testServer{
		handler:    api.NewRouter(svc, q, deliveries, b, reg, logger),
		sender:     sender,
		deliveries: deliveries,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func wantStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

func wantField(t *testing.T, out map[string]any, key string, want any) {
	t.Helper()
	if out[key] != want {
		t.Errorf("%s = %v, want %v", key, out[key], want)
	}
}

func TestWelcome_BrokerDown_SendsDirectly(t *testing.T) {
	s := newTestServer(t, false)

	rec, out := s.do(t, http.MethodPost, "/api/v1/emails/welcome",
		map[string]string{"email": "user@example.com", "name": "Jane"})

	wantStatus(t, rec, http.StatusOK)
	wantField(t, out, "mode", "direct")
	if len(s.sender.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(s.sender.sent))
	}
	if got, want := s.sender.sent[0], (domain.WelcomeJob{Email: "user@example.com", Name: "Jane"}); got != want {
		t.Errorf("sent %+v, want %+v", got, want)
	}
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("missing X-Correlation-ID header")
	}
}

func TestWelcome_BrokerUp_Queues(t *testing.T) {
	s := newTestServer(t, true)

	rec, out := s.do(t, http.MethodPost, "/api/v1/emails/welcome",
		map[string]string{"email": "user@example.com"})
	wantStatus(t, rec, http.StatusAccepted)
	wantField(t, out, "mode", "queued")
	id, _ := out["job_id"].(string)
	if id == "" {
		t.Fatal("queued response carries no job_id")
	}
	if len(s.sender.sent) != 0 {
		t.Errorf("queued email was sent directly")
	}

	rec, out = s.do(t, http.MethodGet, "/api/v1/jobs/"+id, nil)
	wantStatus(t, rec, http.StatusOK)
	wantField(t, out, "status", "pending")

	rec, out = s.do(t, http.MethodGet, "/api/v1/queue", nil)
	wantStatus(t, rec, http.StatusOK)
	wantField(t, out, "queue", "email-queue")
	jobs, _ := out["jobs"].(map[string]any)
	wantField(t, jobs, "waiting", 1.0)
}

func TestResetPassword_MissingToken(t *testing.T) {
	s := newTestServer(t, false)

	rec, out := s.do(t, http.MethodPost, "/api/v1/emails/reset-password",
		map[string]string{"email": "user@example.com"})

	wantStatus(t, rec, http.StatusUnprocessableEntity)
	wantField(t, out, "error", "reset token required")
	wantField(t, out, "field", "resetToken")
	if len(s.sender.sent) != 0 {
		t.Errorf("invalid job must not be sent")
	}
}

func TestSubmit(t *testing.T) {
	s := newTestServer(t, false)

	rec, _ := s.do(t, http.MethodPost, "/api/v1/emails", domain.EmailJob{
		Type:    "passwordChanged",
		Payload: domain.Payload{Email: "user@example.com"},
	})
	wantStatus(t, rec, http.StatusOK)

	rec, out := s.do(t, http.MethodPost, "/api/v1/emails", domain.EmailJob{
		Type:    "newsletter",
		Payload: domain.Payload{Email: "user@example.com"},
	})
	wantStatus(t, rec, http.StatusUnprocessableEntity)
	if msg, _ := out["error"].(string); !strings.Contains(msg, "newsletter") {
		t.Errorf("error = %q, want it to name the type", msg)
	}

	rec, _ = s.do(t, http.MethodPost, "/api/v1/emails", "{not json")
	wantStatus(t, rec, http.StatusBadRequest)
}

func TestGetJob_NotFound(t *testing.T) {
	s := newTestServer(t, true)
	rec, _ := s.do(t, http.MethodGet, "/api/v1/jobs/does-not-exist", nil)
	wantStatus(t, rec, http.StatusNotFound)
}

func TestDeliveries_List(t *testing.T) {
	s := newTestServer(t, false)
	s.do(t, http.MethodPost, "/api/v1/emails/welcome", map[string]string{"email": "a@example.com"})
	s.do(t, http.MethodPost, "/api/v1/emails/password-changed", map[string]string{"email": "b@example.com"})

	rec, out := s.do(t, http.MethodGet, "/api/v1/deliveries?type=welcome", nil)
	wantStatus(t, rec, http.StatusOK)
	wantField(t, out, "total", 1.0)
	wantField(t, out, "page", 1.0)
	wantField(t, out, "limit", 20.0)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, false)
	rec, out := s.do(t, http.MethodGet, "/health", nil)
	wantStatus(t, rec, http.StatusOK)
	wantField(t, out, "status", "ok")
	wantField(t, out, "broker", "closed")
	wantField(t, out, "mode", "direct")

	s = newTestServer(t, true)
	_, out = s.do(t, http.MethodGet, "/health", nil)
	wantField(t, out, "broker", "ready")
	wantField(t, out, "mode", "queued")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, false)
	s.do(t, http.MethodPost, "/api/v1/emails/welcome", map[string]string{"email": "a@example.com"})

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	wantStatus(t, rec, http.StatusOK)
	if want := `emails_sent_total{mode="direct",type="welcome"} 1`; !strings.Contains(rec.Body.String(), want) {
		t.Errorf("metrics output missing %s", want)
	}
}

func TestCorrelationID_Echoed(t *testing.T) {
	s := newTestServer(t, false)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Errorf("X-Correlation-ID = %q, want abc-123", got)
	}
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"leadcall-platform/internal/config"
	"leadcall-platform/internal/crm"
	"leadcall-platform/internal/dialer"
	"leadcall-platform/internal/idempotency"
	"leadcall-platform/internal/ivr"
	"leadcall-platform/internal/leads"
	"leadcall-platform/internal/telephony"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeSearcher struct {
	byField map[string]crm.Record
}

func (s *fakeSearcher) SearchByField(ctx context.Context, field, value string) (crm.Record, error) {
	return s.byField[field], nil
}

type fakeWriter struct {
	mu      sync.Mutex
	created []crm.Record
	updated map[string]crm.Record
}

func (w *fakeWriter) Create(ctx context.Context, data crm.Record) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.created = append(w.created, data)
	return "rec-1", nil
}

func (w *fakeWriter) Update(ctx context.Context, id string, data crm.Record) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.updated == nil {
		w.updated = map[string]crm.Record{}
	}
	w.updated[id] = data
	return id, nil
}

type okProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *okProvider) Name() string { return "ok" }

func (p *okProvider) MakeCall(ctx context.Context, req telephony.MakeCallRequest) (telephony.MakeCallResult, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return telephony.MakeCallResult{ProviderCallID: "P1", Status: "queued"}, nil
}

func testHandlers(t *testing.T, provider telephony.CallProvider) (Handlers, *fakeWriter) {
	t.Helper()

	writer := &fakeWriter{}
	pipeline := leads.NewPipeline(leads.NewDetector(&fakeSearcher{}, nil), writer, leads.NewFieldProtector(), nil)

	guard := idempotency.NewMemoryGuard(time.Hour, 100, 0, nil)
	t.Cleanup(guard.Stop)

	sched := dialer.NewScheduler(provider, nil, nil, config.DialerConfig{
		DefaultDelay: time.Hour, // never fires during tests
		MaxRetries:   3,
		RetryBase:    time.Millisecond,
		DialTimeout:  time.Second,
	}, config.TelephonyConfig{AnswerURL: "https://example.com/ivr/answer"}, nil)
	t.Cleanup(sched.Shutdown)

	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return Handlers{
		Pipeline:  pipeline,
		Guard:     guard,
		Scheduler: sched,
		Protector: leads.NewFieldProtector(),
		IVR:       ivr.NewEngine(),
		Telephony: config.TelephonyConfig{
			AnswerURL: "https://example.com/ivr/answer",
			GatherURL: "https://example.com/ivr/gather",
		},
		Now: func() time.Time { return fixed },
	}, writer
}

func testRouter(h Handlers) *gin.Engine {
	r := gin.New()
	r.POST("/webhooks/leads", h.IngestLead)
	r.POST("/webhooks/ivr/answer", h.IVRAnswer)
	r.POST("/webhooks/ivr/gather", h.IVRGather)
	r.POST("/webhooks/ivr/status", h.IVRStatus)
	r.POST("/v1/calls/schedule", h.ScheduleCall)
	r.GET("/v1/calls/:call_id", h.CallStatus)
	r.DELETE("/v1/calls/:call_id", h.CancelCall)
	r.GET("/v1/calls/stats", h.CallStats)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIngestLead_CreatesThenReplays(t *testing.T) {
	provider := &okProvider{}
	h, writer := testHandlers(t, provider)
	r := testRouter(h)

	payload := map[string]any{"name": "Asha Rao", "email": "Asha@Example.com", "phone": "+919876543210"}

	w := postJSON(t, r, "/webhooks/leads", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("first post: %d %s", w.Code, w.Body.String())
	}
	var first leadWebhookResponse
	json.Unmarshal(w.Body.Bytes(), &first)
	if first.Action != leads.ActionCreated || first.RecordID != "rec-1" {
		t.Fatalf("unexpected result %+v", first)
	}
	if first.CallID == "" {
		t.Fatal("expected a scheduled call for a created lead")
	}

	// Same payload again inside the idempotency window: no second CRM
	// write, stored response replayed.
	w = postJSON(t, r, "/webhooks/leads", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("replay post: %d", w.Code)
	}
	if w.Header().Get("X-Idempotent-Replay") != "true" {
		t.Error("expected replay header")
	}
	var second leadWebhookResponse
	json.Unmarshal(w.Body.Bytes(), &second)
	if second.CallID != first.CallID {
		t.Errorf("replay should return the original call id")
	}
	if len(writer.created) != 1 {
		t.Errorf("expected exactly one CRM create, got %d", len(writer.created))
	}
}

func TestIngestLead_RequiresIdentity(t *testing.T) {
	h, _ := testHandlers(t, nil)
	r := testRouter(h)

	w := postJSON(t, r, "/webhooks/leads", map[string]any{"name": "No Contact"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestIVRAnswer_RendersMenu(t *testing.T) {
	h, _ := testHandlers(t, nil)
	r := testRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/ivr/answer?call_id=c1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("answer: %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<Gather") || !strings.Contains(body, "call_id=c1") {
		t.Errorf("unexpected markup:\n%s", body)
	}
}

func TestIVRGather_UnknownDigitReplays(t *testing.T) {
	h, _ := testHandlers(t, nil)
	r := testRouter(h)

	form := url.Values{}
	form.Set("Digits", "9")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/ivr/gather?call_id=c1", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("gather: %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<Redirect") || !strings.Contains(body, "replays=1") {
		t.Errorf("expected replay redirect, got:\n%s", body)
	}
}

func TestScheduleStatusCancel(t *testing.T) {
	h, _ := testHandlers(t, &okProvider{})
	r := testRouter(h)

	w := postJSON(t, r, "/v1/calls/schedule", map[string]any{
		"lead_id": "rec-9", "phone": "+919876543210", "delay_seconds": 3600,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("schedule: %d %s", w.Code, w.Body.String())
	}
	var scheduled struct {
		CallID string `json:"call_id"`
	}
	json.Unmarshal(w.Body.Bytes(), &scheduled)
	if scheduled.CallID == "" {
		t.Fatal("expected call id")
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/calls/"+scheduled.CallID, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/v1/calls/"+scheduled.CallID, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/v1/calls/"+scheduled.CallID, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second cancel should 404, got %d", w.Code)
	}
}

func TestScheduleCall_Validates(t *testing.T) {
	h, _ := testHandlers(t, &okProvider{})
	r := testRouter(h)

	w := postJSON(t, r, "/v1/calls/schedule", map[string]any{"lead_id": "x"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

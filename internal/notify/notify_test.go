package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/web3-frozen/deposit-insights/internal/dedup"
	"github.com/web3-frozen/deposit-insights/internal/domain"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []domain.AlertMessage
	err  error
}

func (r *recordingSender) Name() string { return "recording" }

func (r *recordingSender) Send(_ context.Context, a domain.AlertMessage) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, a)
	return nil
}

// memDedup is an in-memory Deduper.
type memDedup struct{ keys map[string]bool }

func newMemDedup() *memDedup { return &memDedup{keys: map[string]bool{}} }

func (m *memDedup) AlreadySent(_ context.Context, key string) bool { return m.keys[key] }
func (m *memDedup) Record(_ context.Context, key string)            { m.keys[key] = true }
func (m *memDedup) Clear(_ context.Context, key string)             { delete(m.keys, key) }

var tvlAlert = domain.AlertMessage{
	Rule:      "tvl_drop",
	Message:   "TVL dropped by -12.00%",
	Severity:  domain.SeverityHigh,
	Timestamp: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
}

func TestDispatchDeduplicates(t *testing.T) {
	rs := &recordingSender{}
	dd := newMemDedup()
	d := NewDispatcher(slog.Default(), dd, rs)
	rules := []string{"tvl_drop", "whale_churn"}
	ctx := context.Background()

	d.Dispatch(ctx, []domain.AlertMessage{tvlAlert}, rules)
	d.Dispatch(ctx, []domain.AlertMessage{tvlAlert}, rules)
	if len(rs.sent) != 1 {
		t.Fatalf("sent = %d, want 1 while condition persists", len(rs.sent))
	}

	// Condition clears, then breaches again.
	d.Dispatch(ctx, nil, rules)
	if dd.keys[dedup.Key("tvl_drop")] {
		t.Fatal("dedup key should be cleared once the rule stops firing")
	}
	d.Dispatch(ctx, []domain.AlertMessage{tvlAlert}, rules)
	if len(rs.sent) != 2 {
		t.Errorf("sent = %d, want 2 after re-arm", len(rs.sent))
	}
}

func TestDispatchFailedSendNotRecorded(t *testing.T) {
	rs := &recordingSender{err: errors.New("down")}
	dd := newMemDedup()
	d := NewDispatcher(slog.Default(), dd, rs)

	d.Dispatch(context.Background(), []domain.AlertMessage{tvlAlert}, []string{"tvl_drop"})
	if dd.keys[dedup.Key("tvl_drop")] {
		t.Error("undelivered alert must not be recorded as sent")
	}
}

func TestDispatchWithoutDedup(t *testing.T) {
	rs := &recordingSender{}
	d := NewDispatcher(slog.Default(), nil, rs)
	d.Dispatch(context.Background(), []domain.AlertMessage{tvlAlert}, nil)
	d.Dispatch(context.Background(), []domain.AlertMessage{tvlAlert}, nil)
	if len(rs.sent) != 2 {
		t.Errorf("sent = %d, want 2", len(rs.sent))
	}
	if !d.Enabled() {
		t.Error("Enabled should be true with a sender")
	}
	if NewDispatcher(slog.Default(), nil).Enabled() {
		t.Error("Enabled should be false without senders")
	}
}

func TestWebhookSend(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewWebhook(srv.URL).Send(context.Background(), tvlAlert); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Level != "error" {
		t.Errorf("Level = %q, want error", got.Level)
	}
	if got.Message != tvlAlert.Message {
		t.Errorf("Message = %q", got.Message)
	}
	if got.Timestamp != "2025-06-01T08:00:00Z" {
		t.Errorf("Timestamp = %q", got.Timestamp)
	}
}

func TestWebhookSendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := NewWebhook(srv.URL).Send(context.Background(), tvlAlert); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestTelegramSend(t *testing.T) {
	var got map[string]interface{}
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram("TOKEN", 42)
	tg.baseURL = srv.URL + "/bot"
	if err := tg.Send(context.Background(), tvlAlert); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Errorf("path = %q", path)
	}
	if got["chat_id"].(float64) != 42 {
		t.Errorf("chat_id = %v, want 42", got["chat_id"])
	}
	if text := got["text"].(string); !strings.Contains(text, "HIGH ALERT") || !strings.Contains(text, "-12.00%") {
		t.Errorf("text = %q", text)
	}
}

func TestTelegramSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	tg := NewTelegram("TOKEN", 42)
	tg.baseURL = srv.URL + "/bot"
	err := tg.Send(context.Background(), tvlAlert)
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("err = %v, want chat not found", err)
	}
}

package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/riskfoundry/kestrel/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func triggeredFixture() (*domain.AlertRule, *domain.AlertInstance) {
	rule := &domain.AlertRule{
		ID:   "rule-1",
		Name: "TIV threshold",
	}
	instance := &domain.AlertInstance{
		ID:               "inst-1",
		AlertRuleID:      "rule-1",
		OrganizationID:   "org-1",
		Status:           domain.InstanceActive,
		TriggerValue:     "2000000",
		Threshold:        1000000,
		TriggerCondition: "sum(totalInsuredValue) gt 1000000 (current: 2000000)",
		CreatedAt:        time.Now().UTC(),
	}
	return rule, instance
}

// stubChannel fails or succeeds on demand.
type stubChannel struct {
	kind  string
	err   error
	calls int
}

func (s *stubChannel) Type() string { return s.kind }

func (s *stubChannel) Send(ctx context.Context, method domain.NotificationMethod, rule *domain.AlertRule, instance *domain.AlertInstance) error {
	s.calls++
	return s.err
}

func TestDispatchChannelIsolation(t *testing.T) {
	email := &stubChannel{kind: domain.ChannelEmail, err: errors.New("smtp down")}
	webhook := &stubChannel{kind: domain.ChannelWebhook}
	d := NewDispatcher(testLogger(), email, webhook)

	rule, instance := triggeredFixture()
	rule.NotificationMethods = []domain.NotificationMethod{
		{Type: domain.ChannelEmail, Config: domain.NotificationConfig{To: []string{"ops@example.com"}}},
		{Type: domain.ChannelWebhook, Config: domain.NotificationConfig{URL: "http://example.com/hook"}},
	}

	records := d.Dispatch(context.Background(), rule, instance)

	if email.calls != 1 || webhook.calls != 1 {
		t.Fatalf("both channels should be attempted: email=%d webhook=%d", email.calls, webhook.calls)
	}
	if len(records) != 2 {
		t.Fatalf("record count = %d, want 2", len(records))
	}
	if records[0].Status != domain.NotificationFailed || records[0].Error == "" {
		t.Errorf("email record = %+v, want failed with error", records[0])
	}
	if records[1].Status != domain.NotificationSent || records[1].Error != "" {
		t.Errorf("webhook record = %+v, want sent", records[1])
	}
}

func TestDispatchSkipsUnconfiguredChannel(t *testing.T) {
	email := &stubChannel{kind: domain.ChannelEmail, err: ErrChannelUnconfigured}
	d := NewDispatcher(testLogger(), email)

	rule, instance := triggeredFixture()
	rule.NotificationMethods = []domain.NotificationMethod{
		{Type: domain.ChannelEmail, Config: domain.NotificationConfig{To: []string{"ops@example.com"}}},
	}

	records := d.Dispatch(context.Background(), rule, instance)
	if len(records) != 0 {
		t.Fatalf("unconfigured channel should leave no record, got %+v", records)
	}
}

func TestDispatchUnknownChannelType(t *testing.T) {
	d := NewDispatcher(testLogger())
	rule, instance := triggeredFixture()
	rule.NotificationMethods = []domain.NotificationMethod{{Type: "pager"}}

	records := d.Dispatch(context.Background(), rule, instance)
	if len(records) != 1 || records[0].Status != domain.NotificationFailed {
		t.Fatalf("unknown channel type should record a failure, got %+v", records)
	}
}

func TestDispatchContainsChannelPanic(t *testing.T) {
	panicking := &panicChannel{}
	d := NewDispatcher(testLogger(), panicking)
	rule, instance := triggeredFixture()
	rule.NotificationMethods = []domain.NotificationMethod{{Type: "boom"}}

	records := d.Dispatch(context.Background(), rule, instance)
	if len(records) != 1 || records[0].Status != domain.NotificationFailed {
		t.Fatalf("channel panic should surface as a failed record, got %+v", records)
	}
}

type panicChannel struct{}

func (p *panicChannel) Type() string { return "boom" }
func (p *panicChannel) Send(ctx context.Context, method domain.NotificationMethod, rule *domain.AlertRule, instance *domain.AlertInstance) error {
	panic("channel bug")
}

func TestWebhookSend(t *testing.T) {
	var gotContentType, gotAuth atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType.Store(r.Header.Get("Content-Type"))
		gotAuth.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ch := NewWebhookChannel(5 * time.Second)
	rule, instance := triggeredFixture()
	method := domain.NotificationMethod{
		Type: domain.ChannelWebhook,
		Config: domain.NotificationConfig{
			URL:     server.URL,
			Headers: map[string]string{"Authorization": "Bearer token-1"},
		},
	}

	if err := ch.Send(context.Background(), method, rule, instance); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if gotContentType.Load() != "application/json" {
		t.Errorf("Content-Type = %v, want application/json", gotContentType.Load())
	}
	if gotAuth.Load() != "Bearer token-1" {
		t.Errorf("custom header not forwarded: %v", gotAuth.Load())
	}
}

func TestWebhookNon2xxIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ch := NewWebhookChannel(5 * time.Second)
	rule, instance := triggeredFixture()
	method := domain.NotificationMethod{
		Type:   domain.ChannelWebhook,
		Config: domain.NotificationConfig{URL: server.URL},
	}

	if err := ch.Send(context.Background(), method, rule, instance); err == nil {
		t.Fatal("non-2xx response should be a delivery failure")
	}
}

func TestWebhookMissingURL(t *testing.T) {
	ch := NewWebhookChannel(time.Second)
	rule, instance := triggeredFixture()
	if err := ch.Send(context.Background(), domain.NotificationMethod{Type: domain.ChannelWebhook}, rule, instance); err == nil {
		t.Fatal("missing URL should fail")
	}
}

func TestEmailUnconfigured(t *testing.T) {
	ch := NewEmailChannel(domain.NotifierConfig{})
	rule, instance := triggeredFixture()
	method := domain.NotificationMethod{
		Type:   domain.ChannelEmail,
		Config: domain.NotificationConfig{To: []string{"ops@example.com"}},
	}

	err := ch.Send(context.Background(), method, rule, instance)
	if !errors.Is(err, ErrChannelUnconfigured) {
		t.Fatalf("expected ErrChannelUnconfigured, got %v", err)
	}
}

func TestEmailSend(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	ch := NewEmailChannel(domain.NotifierConfig{
		SMTPHost:    "mail.example.com",
		SMTPPort:    587,
		FromAddress: "kestrel@example.com",
	})
	ch.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	rule, instance := triggeredFixture()
	method := domain.NotificationMethod{
		Type:   domain.ChannelEmail,
		Config: domain.NotificationConfig{To: []string{"ops@example.com"}, Subject: "Concentration breach"},
	}

	if err := ch.Send(context.Background(), method, rule, instance); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if gotAddr != "mail.example.com:587" {
		t.Errorf("addr = %q", gotAddr)
	}
	if gotFrom != "kestrel@example.com" || len(gotTo) != 1 {
		t.Errorf("envelope = from %q to %v", gotFrom, gotTo)
	}
	body := string(gotMsg)
	for _, want := range []string{"Subject: Concentration breach", rule.Name, instance.TriggerValue} {
		if !strings.Contains(body, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestEmailNoRecipients(t *testing.T) {
	ch := NewEmailChannel(domain.NotifierConfig{SMTPHost: "mail.example.com", SMTPPort: 587})
	ch.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return nil }
	rule, instance := triggeredFixture()

	if err := ch.Send(context.Background(), domain.NotificationMethod{Type: domain.ChannelEmail}, rule, instance); err == nil {
		t.Fatal("missing recipients should fail")
	}
}

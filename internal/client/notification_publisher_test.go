package client

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSendWithoutConnectionLogsOnly(t *testing.T) {
	var buf bytes.Buffer
	p := NewNotificationPublisher(nil, "", zerolog.New(&buf))

	if p.subject != DefaultEmailSubject {
		t.Fatalf("subject = %q, want %q", p.subject, DefaultEmailSubject)
	}
	if err := p.Send(context.Background(), "ada@example.com", "Approve hours", "<p>hi</p>"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(buf.String(), "ada@example.com") {
		t.Fatalf("log output %q does not name the recipient", buf.String())
	}
}

func TestSendRejectsEmptyRecipient(t *testing.T) {
	p := NewNotificationPublisher(nil, "", zerolog.Nop())
	if err := p.Send(context.Background(), "", "s", "b"); err == nil {
		t.Fatal("expected an error for an empty recipient")
	}
}

func TestSendHonoursCancelledContext(t *testing.T) {
	p := NewNotificationPublisher(nil, "", zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Send(ctx, "ada@example.com", "s", "b"); err == nil {
		t.Fatal("expected the context error")
	}
}

func TestConnectNATSDisabled(t *testing.T) {
	conn, err := ConnectNATS("", "test", zerolog.Nop())
	if err != nil || conn != nil {
		t.Fatalf("got %v, %v; want nil, nil", conn, err)
	}
}

package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSend(t *testing.T) {
	m := New(Config{Host: "smtp.example.com", User: "u", Pass: "p", From: "drive@example.com", FromName: "Strata Drive"}, zap.NewNop())

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		if a == nil {
			t.Error("auth should be set when user and pass are configured")
		}
		return nil
	}

	err := m.Send(context.Background(), Email{To: "bob@example.com", Subject: "hello", TextBody: "plain", HTMLBody: "<p>rich</p>"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if gotAddr != "smtp.example.com:587" || gotFrom != "drive@example.com" {
		t.Errorf("addr/from = %q / %q", gotAddr, gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "bob@example.com" {
		t.Errorf("to = %v", gotTo)
	}
	msg := string(gotMsg)
	for _, want := range []string{
		`From: "Strata Drive" <drive@example.com>`,
		"Subject: hello",
		"multipart/alternative",
		"plain",
		"<p>rich</p>",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestSend_Disabled(t *testing.T) {
	m := New(Config{}, zap.NewNop())
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Error("send should not be called without a host")
		return nil
	}
	if m.Enabled() {
		t.Error("Enabled() = true with no host")
	}
	if err := m.Send(context.Background(), Email{To: "x@example.com"}); err != nil {
		t.Errorf("Send() error = %v", err)
	}
}

func TestSend_Failure(t *testing.T) {
	m := New(Config{Host: "smtp.example.com", From: "a@example.com"}, zap.NewNop())
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("refused") }
	if err := m.Send(context.Background(), Email{To: "x@example.com", TextBody: "hi"}); err == nil {
		t.Error("Send() should fail when SMTP refuses")
	}
}

func TestShareEmail_EscapesHTML(t *testing.T) {
	e := ShareEmail(ShareEmailData{AppName: "Drive", SharedBy: "Alice", ItemKind: "file", ItemName: "<script>x</script>.txt"})
	if strings.Contains(e.HTMLBody, "<script>") {
		t.Errorf("item name not escaped: %s", e.HTMLBody)
	}
	if !strings.Contains(e.TextBody, "<script>x</script>.txt") {
		t.Errorf("text body should carry the raw name: %s", e.TextBody)
	}
	if !strings.Contains(e.Subject, "Alice") {
		t.Errorf("Subject = %q", e.Subject)
	}
}

type fakeSender struct {
	mu   sync.Mutex
	sent []Email
}

func (f *fakeSender) Send(_ context.Context, e Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, e)
	return nil
}

func TestNotifier_ShareGranted(t *testing.T) {
	fs := &fakeSender{}
	n := NewNotifier(fs, "Drive", "https://drive.example.com", zap.NewNop())
	n.ShareGranted("alice@example.com", "bob@example.com", "folder", "Photos")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(fs.sent) != 1 || fs.sent[0].To != "bob@example.com" {
		t.Fatalf("sent = %+v", fs.sent)
	}
	if !strings.Contains(fs.sent[0].TextBody, "https://drive.example.com") {
		t.Errorf("body should link the app: %s", fs.sent[0].TextBody)
	}
}

func TestNotifier_Nil(t *testing.T) {
	var n *Notifier
	n.ShareGranted("a", "b", "file", "c")
	if err := n.Wait(context.Background()); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}

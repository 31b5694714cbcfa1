package callbacktoken

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pesio-ai/be-timesheet-approvals/internal/clock"
)

var start = time.Date(2024, 6, 8, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *clock.FakeClock) {
	t.Helper()
	signer, err := NewSignerFromSecret("test-secret-for-approval-links-0123456789")
	if err != nil {
		t.Fatalf("NewSignerFromSecret: %v", err)
	}
	clk := clock.Fake(start)
	return NewService(signer, clk, DefaultMaxAge), clk
}

func TestMintFormat(t *testing.T) {
	svc, _ := newTestService(t)
	token := svc.Mint("a1", ActionApprove)

	re := regexp.MustCompile(`^[0-9a-f]{64}:[0-9]+$`)
	if !re.MatchString(token) {
		t.Fatalf("token %q does not match {hexHmac}:{timestampMillis}", token)
	}
	if !strings.HasSuffix(token, ":1717837200000") {
		t.Errorf("token %q does not carry the mint time in millis", token)
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	svc, clk := newTestService(t)
	token := svc.Mint("a1", ActionApprove)

	clk.Advance(13 * 24 * time.Hour)
	if err := svc.Verify(token, "a1", ActionApprove); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyBindsApprovalAndAction(t *testing.T) {
	svc, _ := newTestService(t)
	token := svc.Mint("a1", ActionApprove)

	if err := svc.Verify(token, "a2", ActionApprove); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify other approval: err = %v, want ErrInvalidToken", err)
	}
	if err := svc.Verify(token, "a1", ActionReject); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify other action: err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	svc, clk := newTestService(t)
	token := svc.Mint("a1", ActionReject)

	clk.Advance(DefaultMaxAge + time.Millisecond)
	if err := svc.Verify(token, "a1", ActionReject); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Verify: err = %v, want ErrTokenExpired", err)
	}
}

func TestVerifyRejectsFutureTimestamp(t *testing.T) {
	svc, clk := newTestService(t)
	clk.Advance(time.Hour)
	token := svc.Mint("a1", ActionApprove)
	clk.Set(start)

	if err := svc.Verify(token, "a1", ActionApprove); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Verify: err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	svc, _ := newTestService(t)
	valid := svc.Mint("a1", ActionApprove)
	mac, ts, _ := strings.Cut(valid, ":")

	for _, token := range []string{
		"",
		"nocolon",
		":" + ts,
		mac + ":",
		"zz" + mac[2:] + ":" + ts,
		mac + ":notanumber",
		mac + ":-5",
		mac[:len(mac)-2] + ":" + ts,
	} {
		if err := svc.Verify(token, "a1", ActionApprove); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify(%q): err = %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestForgedOldTokenReportsInvalidNotExpired(t *testing.T) {
	svc, _ := newTestService(t)
	old := strings.Repeat("ab", 32) + ":1000"

	if err := svc.Verify(old, "a1", ActionApprove); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Verify: err = %v, want ErrInvalidToken", err)
	}
}

func TestDifferentSecretsDoNotVerify(t *testing.T) {
	svc, clk := newTestService(t)
	other, err := NewSignerFromSecret("a-different-secret-for-approval-links-xx")
	if err != nil {
		t.Fatal(err)
	}
	otherSvc := NewService(other, clk, DefaultMaxAge)

	token := otherSvc.Mint("a1", ActionApprove)
	if err := svc.Verify(token, "a1", ActionApprove); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Verify: err = %v, want ErrInvalidToken", err)
	}
}

func TestLinkShapes(t *testing.T) {
	svc, _ := newTestService(t)

	approve := svc.ApproveURL("https://app.example.com/approvals/callback", "a1")
	if !strings.HasPrefix(approve, "https://app.example.com/approvals/callback?id=a1&action=approve&token=") {
		t.Errorf("ApproveURL = %q", approve)
	}
	u, err := url.Parse(approve)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Verify(u.Query().Get("token"), "a1", ActionApprove); err != nil {
		t.Errorf("token from approve link does not verify: %v", err)
	}

	reject := svc.RejectURL("https://app.example.com/approvals/reject?tenant=x", "a1")
	if !strings.HasPrefix(reject, "https://app.example.com/approvals/reject?tenant=x&id=a1&token=") {
		t.Errorf("RejectURL = %q", reject)
	}
	u, err = url.Parse(reject)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Verify(u.Query().Get("token"), "a1", ActionReject); err != nil {
		t.Errorf("token from reject link does not verify: %v", err)
	}
}

func TestNewSignerFromSecretRejectsEmpty(t *testing.T) {
	if _, err := NewSignerFromSecret(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

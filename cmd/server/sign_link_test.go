package main

import (
	"bytes"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/pesio-ai/be-timesheet-approvals/internal/callbacktoken"
	"github.com/pesio-ai/be-timesheet-approvals/internal/clock"
)

const testSecret = "sign-link-test-secret-0123456789abcdef"

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSignLinkMintsVerifiableLinks(t *testing.T) {
	t.Setenv("APPROVAL_LINK_SECRET", testSecret)
	t.Setenv("APPROVAL_LINK_URL", "https://time.example.com/approvals/callback")
	t.Setenv("REJECT_LINK_URL", "https://time.example.com/approvals/reject")

	signer, err := callbacktoken.NewSignerFromSecret(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	verifier := callbacktoken.NewService(signer, clock.Fake(time.Now()), callbacktoken.DefaultMaxAge)

	cases := []struct {
		action callbacktoken.Action
		prefix string
	}{
		{callbacktoken.ActionApprove, "https://time.example.com/approvals/callback?"},
		{callbacktoken.ActionReject, "https://time.example.com/approvals/reject?"},
	}
	for _, tc := range cases {
		t.Run(string(tc.action), func(t *testing.T) {
			out, err := runRoot(t, "sign-link", "approval-1", "--action", string(tc.action))
			if err != nil {
				t.Fatalf("sign-link: %v", err)
			}
			link := strings.TrimSpace(out)
			if !strings.HasPrefix(link, tc.prefix) {
				t.Fatalf("link %q lacks prefix %q", link, tc.prefix)
			}
			u, err := url.Parse(link)
			if err != nil {
				t.Fatal(err)
			}
			q := u.Query()
			if q.Get("id") != "approval-1" {
				t.Fatalf("id = %q", q.Get("id"))
			}
			if err := verifier.Verify(q.Get("token"), "approval-1", tc.action); err != nil {
				t.Fatalf("minted token does not verify: %v", err)
			}
		})
	}
}

func TestSignLinkRejectsUnknownAction(t *testing.T) {
	t.Setenv("APPROVAL_LINK_SECRET", testSecret)
	if _, err := runRoot(t, "sign-link", "approval-1", "--action", "escalate"); err == nil {
		t.Fatal("expected an error for an unknown action")
	}
}

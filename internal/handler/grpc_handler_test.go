package handler

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/pesio-ai/be-timesheet-approvals/internal/approval"
	"github.com/pesio-ai/be-timesheet-approvals/internal/callbacktoken"
	"github.com/pesio-ai/be-timesheet-approvals/internal/client"
	"github.com/pesio-ai/be-timesheet-approvals/internal/logger"
	"github.com/pesio-ai/be-timesheet-approvals/internal/rpc"
)

func newGRPCClient(t *testing.T, env *testEnv) *client.ApprovalsGRPCClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	rpc.RegisterApprovalServiceServer(srv, NewGRPCHandler(env.approvals, logger.Nop().Logger))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := client.NewApprovalsGRPCClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func submitOverGRPC(t *testing.T, c *client.ApprovalsGRPCClient) *approval.Approval {
	t.Helper()
	a, err := c.SubmitForApproval(context.Background(), client.SubmitRequest{
		Project: approval.ProjectSnapshot{
			ID: "P", Name: "Project P", RequiresApproval: true, ApproverEmail: "ada@example.com",
		},
		Client:    approval.ClientSnapshot{ID: "C", Name: "Client C"},
		StartDate: "2024-06-01",
		EndDate:   "2024-06-07",
		UserID:    "U",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return a
}

func TestGRPCLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	c := newGRPCClient(t, env)

	a := submitOverGRPC(t, c)
	if a.Status != approval.StatusPending || a.CompositeKey == "" {
		t.Fatalf("submitted = %+v", a)
	}

	view, err := c.GetApprovalStatus(ctx, a.CompositeKey)
	if err != nil {
		t.Fatal(err)
	}
	if view.Status != approval.StatusPending || view.ApprovalID != a.ID {
		t.Fatalf("status = %+v", view)
	}

	_, err = c.SubmitForApproval(ctx, client.SubmitRequest{
		Project:   a.Project,
		Client:    a.Client,
		StartDate: "2024-06-01",
		EndDate:   "2024-06-07",
		UserID:    "U",
	})
	if status.Code(err) != codes.AlreadyExists {
		t.Fatalf("duplicate submit: got %v, want AlreadyExists", err)
	}

	token := env.tokens.Mint(a.ID, callbacktoken.ActionApprove)
	approved, err := c.ApproveViaLink(ctx, a.ID, token)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != approval.StatusApproved {
		t.Fatalf("approved = %+v", approved)
	}

	if _, err := c.ApproveViaLink(ctx, a.ID, token); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("second approve: got %v, want FailedPrecondition", err)
	}

	list, err := c.ListApprovals(ctx, "U")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != a.ID {
		t.Fatalf("list = %+v", list)
	}
}

func TestGRPCRejectAndWithdraw(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	c := newGRPCClient(t, env)

	a := submitOverGRPC(t, c)
	if _, err := c.RejectViaLink(ctx, a.ID, "bad:token", "nope"); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("bad token: got %v, want Unauthenticated", err)
	}
	rejected, err := c.RejectViaLink(ctx, a.ID, env.tokens.Mint(a.ID, callbacktoken.ActionReject), "wrong task")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.RejectionReason == nil || *rejected.RejectionReason != "wrong task" {
		t.Fatalf("rejected = %+v", rejected)
	}

	b := submitOverGRPC(t, c)
	if _, err := c.Withdraw(ctx, b.ID, "V"); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("withdraw by V: got %v, want PermissionDenied", err)
	}
	withdrawn, err := c.Withdraw(ctx, b.ID, "U")
	if err != nil {
		t.Fatalf("withdraw by U: %v", err)
	}
	if withdrawn.Status != approval.StatusWithdrawn {
		t.Fatalf("withdrawn = %+v", withdrawn)
	}

	view, err := c.StatusFor(ctx, "P", approval.NewPeriod(approval.Date(2024, 6, 1), approval.Date(2024, 6, 7)), "U")
	if err != nil {
		t.Fatal(err)
	}
	if view.Status != approval.StatusWithdrawn || view.ApprovalID != b.ID {
		t.Fatalf("status = %+v", view)
	}
}

package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/pesio-ai/be-timesheet-approvals/internal/approval"
	"github.com/pesio-ai/be-timesheet-approvals/internal/rpc"
)

// ApprovalsGRPCClient is a typed client for the ApprovalService.
type ApprovalsGRPCClient struct {
	client *rpc.ApprovalServiceClient
	conn   *grpc.ClientConn
}

// NewApprovalsGRPCClient dials the approvals gRPC service and returns a client.
func NewApprovalsGRPCClient(addr string, opts ...grpc.DialOption) (*ApprovalsGRPCClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(forwardMetadata),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}
	return &ApprovalsGRPCClient{
		client: rpc.NewApprovalServiceClient(conn),
		conn:   conn,
	}, nil
}

// Close releases the underlying gRPC connection.
func (c *ApprovalsGRPCClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// SubmitRequest mirrors the HTTP submit body.
type SubmitRequest struct {
	Project        approval.ProjectSnapshot `json:"project"`
	Client         approval.ClientSnapshot  `json:"client"`
	StartDate      string                   `json:"start_date"`
	EndDate        string                   `json:"end_date"`
	UserID         string                   `json:"user_id"`
	SubmitterEmail string                   `json:"submitter_email,omitempty"`
}

func (c *ApprovalsGRPCClient) SubmitForApproval(ctx context.Context, req SubmitRequest) (*approval.Approval, error) {
	var out approval.Approval
	if err := c.call(ctx, rpc.MethodSubmitForApproval, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *ApprovalsGRPCClient) ApproveViaLink(ctx context.Context, approvalID, token string) (*approval.Approval, error) {
	var out approval.Approval
	in := map[string]string{"approval_id": approvalID, "token": token}
	if err := c.call(ctx, rpc.MethodApproveViaLink, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *ApprovalsGRPCClient) RejectViaLink(ctx context.Context, approvalID, token, reason string) (*approval.Approval, error) {
	var out approval.Approval
	in := map[string]string{"approval_id": approvalID, "token": token, "reason": reason}
	if err := c.call(ctx, rpc.MethodRejectViaLink, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Withdraw acts as userID, which is sent as call metadata.
func (c *ApprovalsGRPCClient) Withdraw(ctx context.Context, approvalID, userID string) (*approval.Approval, error) {
	var out approval.Approval
	in := map[string]string{"approval_id": approvalID}
	if err := c.call(WithUserID(ctx, userID), rpc.MethodWithdraw, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetApprovalStatus looks a composite key up.
func (c *ApprovalsGRPCClient) GetApprovalStatus(ctx context.Context, key string) (approval.StatusView, error) {
	var out approval.StatusView
	err := c.call(ctx, rpc.MethodGetApprovalStatus, map[string]string{"key": key}, &out)
	return out, err
}

// StatusFor looks a key up by its parts.
func (c *ApprovalsGRPCClient) StatusFor(ctx context.Context, projectID string, period approval.Period, userID string) (approval.StatusView, error) {
	var out approval.StatusView
	in := map[string]string{
		"project_id": projectID,
		"user_id":    userID,
		"start_date": period.Start.Format(approval.DateLayout),
		"end_date":   period.End.Format(approval.DateLayout),
	}
	err := c.call(ctx, rpc.MethodGetApprovalStatus, in, &out)
	return out, err
}

func (c *ApprovalsGRPCClient) ListApprovals(ctx context.Context, userID string) ([]*approval.Approval, error) {
	var out struct {
		Approvals []*approval.Approval `json:"approvals"`
	}
	if err := c.call(ctx, rpc.MethodListApprovals, map[string]string{"user_id": userID}, &out); err != nil {
		return nil, err
	}
	return out.Approvals, nil
}

func (c *ApprovalsGRPCClient) call(ctx context.Context, method string, in, out any) error {
	req, err := rpc.Encode(in)
	if err != nil {
		return err
	}
	resp, err := c.client.Call(ctx, method, req)
	if err != nil {
		return err
	}
	return rpc.Decode(resp, out)
}

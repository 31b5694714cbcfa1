package handler

import (
	"context"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-timesheet-approvals/internal/approval"
	"github.com/pesio-ai/be-timesheet-approvals/internal/errors"
	"github.com/pesio-ai/be-timesheet-approvals/internal/rpc"
	"github.com/pesio-ai/be-timesheet-approvals/internal/service"
)

// GRPCHandler implements the ApprovalService gRPC interface
type GRPCHandler struct {
	approvals *service.ApprovalService
	logger    zerolog.Logger
}

var _ rpc.ApprovalServiceServer = (*GRPCHandler)(nil)

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(approvals *service.ApprovalService, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		approvals: approvals,
		logger:    logger.With().Str("handler", "grpc").Logger(),
	}
}

// userID extracts the caller from incoming metadata, falling back to the
// request body.
func userID(ctx context.Context, fromBody string) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(rpc.UserIDMetadataKey); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return fromBody
}

type grpcSubmitRequest struct {
	submitRequest
	UserID string `json:"user_id"`
}

// SubmitForApproval submits a user's period on a project.
func (h *GRPCHandler) SubmitForApproval(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req grpcSubmitRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request: "+err.Error())
	}
	period, err := approval.ParsePeriod(req.StartDate, req.EndDate)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}

	h.logger.Info().
		Str("project_id", req.Project.ID).
		Str("period", period.String()).
		Msg("gRPC SubmitForApproval called")

	a, err := h.approvals.SubmitForApproval(ctx, service.SubmitRequest{
		Project:        req.Project,
		Client:         req.Client,
		Period:         period,
		UserID:         userID(ctx, req.UserID),
		SubmitterEmail: req.SubmitterEmail,
	})
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return encode(a)
}

type linkRequest struct {
	ApprovalID string `json:"approval_id"`
	Token      string `json:"token"`
	Reason     string `json:"reason"`
}

// ApproveViaLink approves with an emailed token.
func (h *GRPCHandler) ApproveViaLink(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req linkRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request: "+err.Error())
	}
	a, err := h.approvals.ApproveViaLink(ctx, req.ApprovalID, req.Token)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return encode(a)
}

// RejectViaLink rejects with an emailed token and a reason.
func (h *GRPCHandler) RejectViaLink(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req linkRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request: "+err.Error())
	}
	a, err := h.approvals.RejectViaLink(ctx, req.ApprovalID, req.Token, req.Reason)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return encode(a)
}

// Withdraw pulls back a pending approval on behalf of its submitter.
func (h *GRPCHandler) Withdraw(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		ApprovalID string `json:"approval_id"`
		UserID     string `json:"user_id"`
	}
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request: "+err.Error())
	}
	caller := userID(ctx, req.UserID)
	if caller == "" {
		return nil, status.Error(codes.Unauthenticated, "user_id is required")
	}
	a, err := h.approvals.Withdraw(ctx, req.ApprovalID, caller)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return encode(a)
}

// GetApprovalStatus answers by composite key or by its parts.
func (h *GRPCHandler) GetApprovalStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		Key       string `json:"key"`
		ProjectID string `json:"project_id"`
		UserID    string `json:"user_id"`
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request: "+err.Error())
	}

	var (
		view approval.StatusView
		err  error
	)
	if req.Key != "" {
		view, err = h.approvals.GetApprovalStatus(ctx, req.Key)
	} else {
		var period approval.Period
		period, err = approval.ParsePeriod(req.StartDate, req.EndDate)
		if err == nil {
			view, err = h.approvals.StatusFor(ctx, req.ProjectID, period, req.UserID)
		}
	}
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return encode(view)
}

// ListApprovals lists a user's approvals, newest first.
func (h *GRPCHandler) ListApprovals(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request: "+err.Error())
	}
	list, err := h.approvals.ListForUser(ctx, userID(ctx, req.UserID))
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return encode(map[string]any{"approvals": list, "total": len(list)})
}

func encode(v any) (*structpb.Struct, error) {
	s, err := rpc.Encode(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return s, nil
}

func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}

	msg := service.UserMessage(err)
	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, msg)
	case errors.ErrCodeInvalidInput:
		return status.Error(codes.InvalidArgument, msg)
	case errors.ErrCodeConflict:
		if approval.IsConflict(err) {
			return status.Error(codes.AlreadyExists, msg)
		}
		return status.Error(codes.FailedPrecondition, msg)
	case errors.ErrCodeUnauthorized:
		return status.Error(codes.Unauthenticated, msg)
	case errors.ErrCodeForbidden:
		return status.Error(codes.PermissionDenied, msg)
	case errors.ErrCodeLocked:
		return status.Error(codes.FailedPrecondition, msg)
	default:
		return status.Error(codes.Internal, msg)
	}
}

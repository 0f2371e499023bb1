package grpc

import (
	"context"
	"errors"
	"path"
	"time"

	"github.com/dmitrijs2005/okaeri/internal/common"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const identityKey ctxKey = "identity"

// identityInterceptor copies the caller's account id from the identity
// metadata key into the context.
func (s *GRPCServer) identityInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if s.identityHeader != "" {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get(s.identityHeader); len(values) > 0 && values[0] != "" {
				ctx = context.WithValue(ctx, identityKey, values[0])
			}
		}
	}
	return handler(ctx, req)
}

func identityFromContext(ctx context.Context) string {
	v, _ := ctx.Value(identityKey).(string)
	return v
}

// observeInterceptor records the outcome of every call and turns service
// errors into gRPC statuses.
func (s *GRPCServer) observeInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	op := path.Base(info.FullMethod)
	outcome := "ok"
	if err != nil {
		kind := common.KindOf(err)
		outcome = kind.String()
		if kind == common.KindInternal {
			s.logger.Error(ctx, "request failed", "method", info.FullMethod, "error", err)
		}
		err = toStatus(err)
	}
	if s.metrics != nil {
		s.metrics.RecordRequest("grpc", op, outcome, time.Since(start))
	}
	return resp, err
}

// toStatus maps the store outcome taxonomy onto gRPC codes.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch common.KindOf(err) {
	case common.KindValidation:
		st := status.New(codes.InvalidArgument, err.Error())
		var ve *common.ValidationError
		if errors.As(err, &ve) {
			br := &errdetails.BadRequest{}
			for _, v := range ve.Violations {
				desc := v.Rule
				if v.Param != "" {
					desc += "=" + v.Param
				}
				br.FieldViolations = append(br.FieldViolations, &errdetails.BadRequest_FieldViolation{
					Field:       v.Field,
					Description: desc,
				})
			}
			if withDetails, derr := st.WithDetails(br); derr == nil {
				st = withDetails
			}
		}
		return st.Err()
	case common.KindConflict:
		st := status.New(codes.AlreadyExists, err.Error())
		var ce *common.ConflictError
		if errors.As(err, &ce) {
			info := &errdetails.ErrorInfo{
				Reason:   "CONFLICT",
				Domain:   "okaeri",
				Metadata: map[string]string{"field": ce.Field, "value": ce.Value},
			}
			if withDetails, derr := st.WithDetails(info); derr == nil {
				st = withDetails
			}
		}
		return st.Err()
	case common.KindUnknown:
		return status.Error(codes.NotFound, "unknown")
	case common.KindWrongCredentials:
		return status.Error(codes.Unauthenticated, "Authentication failed")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

package api

import (
	"context"
	"errors"

	"classbook/internal/database"
	"classbook/internal/models"
	"classbook/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const bookingServiceName = "classbook.v1.BookingService"

// BookingServer is the gRPC surface for API clients. Messages are
// google.protobuf.Struct values so no generated code is needed.
type BookingServer interface {
	ListClasses(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	AttemptBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ClassStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func unaryMethod(name string, call func(BookingServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	fullMethod := "/" + bookingServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BookingServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(BookingServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var bookingServiceDesc = grpc.ServiceDesc{
	ServiceName: bookingServiceName,
	HandlerType: (*BookingServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("ListClasses", BookingServer.ListClasses),
		unaryMethod("AttemptBooking", BookingServer.AttemptBooking),
		unaryMethod("ClassStatus", BookingServer.ClassStatus),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "classbook/v1/booking.proto",
}

// BookingService implements BookingServer on top of the admission service.
type BookingService struct {
	admission *service.AdmissionService
	accounts  *service.AccountService
}

func NewBookingService(admission *service.AdmissionService, accounts *service.AccountService) *BookingService {
	return &BookingService{admission: admission, accounts: accounts}
}

func (s *BookingService) ListClasses(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	list, err := s.admission.ListClassesWithOccupancy(ctx)
	if err != nil {
		return nil, storeStatus(err)
	}
	classes := make([]any, 0, len(list))
	for _, o := range list {
		classes = append(classes, s.classFields(o))
	}
	return newStruct(map[string]any{"classes": classes})
}

func (s *BookingService) AttemptBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	claims := claimsFrom(ctx)
	if claims == nil {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	classID, err := int64Field(req, "class_id")
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.GetAccount(ctx, claims.AccountID)
	if errors.Is(err, database.ErrAccountNotFound) {
		return nil, status.Error(codes.Unauthenticated, "account not found")
	}
	if err != nil {
		return nil, storeStatus(err)
	}
	if !s.accounts.IsActive(account.Status) {
		return nil, status.Error(codes.PermissionDenied, "account is not active")
	}

	outcome, err := s.admission.AttemptBooking(ctx, account.ID, classID)
	if err != nil {
		return nil, storeStatus(err)
	}
	return newStruct(map[string]any{
		"outcome": outcome.String(),
		"message": outcome.Message(),
		"booked":  outcome == models.OutcomeBooked,
	})
}

func (s *BookingService) ClassStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	classID, err := int64Field(req, "class_id")
	if err != nil {
		return nil, err
	}
	occ, err := s.admission.GetClassOccupancy(ctx, classID)
	if errors.Is(err, database.ErrClassNotFound) {
		return nil, status.Error(codes.NotFound, "class not found")
	}
	if err != nil {
		return nil, storeStatus(err)
	}
	return newStruct(s.classFields(*occ))
}

func (s *BookingService) classFields(o models.ClassOccupancy) map[string]any {
	return map[string]any{
		"id":        float64(o.Class.ID),
		"date":      o.Class.Date,
		"time":      o.Class.Time,
		"capacity":  float64(o.Class.Capacity),
		"booked":    float64(o.Booked),
		"available": float64(o.Available()),
		"status":    string(models.OccupancyStatusFor(o.Booked, o.Class.Capacity, s.admission.MinEnrollment())),
	}
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

func int64Field(req *structpb.Struct, name string) (int64, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue <= 0 || n.NumberValue != float64(int64(n.NumberValue)) {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a positive integer", name)
	}
	return int64(n.NumberValue), nil
}

func storeStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case database.IsUnavailable(err):
		return status.Error(codes.Unavailable, "store unavailable")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "vetpay.payments.v1.PaymentService"

const (
	methodRecordPayment       = "RecordPayment"
	methodRecordSplitPayments = "RecordSplitPayments"
	methodListPayments        = "ListPayments"
	methodGetPaymentSummary   = "GetPaymentSummary"
	methodUpdatePaymentStatus = "UpdatePaymentStatus"
	methodDeletePayment       = "DeletePayment"
)

// PaymentServiceHandler is implemented by PaymentServiceServer. Every method takes
// and returns a google.protobuf.Struct.
type PaymentServiceHandler interface {
	RecordPayment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecordSplitPayments(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPayments(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPaymentSummary(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdatePaymentStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeletePayment(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(PaymentServiceHandler, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(methodName string, method unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: methodName,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			request := new(structpb.Struct)
			if err := dec(request); err != nil {
				return nil, err
			}
			handler := srv.(PaymentServiceHandler)
			if interceptor == nil {
				return method(handler, ctx, request)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(methodName)}
			return interceptor(ctx, request, info, func(ctx context.Context, request any) (any, error) {
				return method(handler, ctx, request.(*structpb.Struct))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PaymentServiceHandler)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(methodRecordPayment, PaymentServiceHandler.RecordPayment),
		unaryHandler(methodRecordSplitPayments, PaymentServiceHandler.RecordSplitPayments),
		unaryHandler(methodListPayments, PaymentServiceHandler.ListPayments),
		unaryHandler(methodGetPaymentSummary, PaymentServiceHandler.GetPaymentSummary),
		unaryHandler(methodUpdatePaymentStatus, PaymentServiceHandler.UpdatePaymentStatus),
		unaryHandler(methodDeletePayment, PaymentServiceHandler.DeletePayment),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vetpay/payments/v1/payments.proto",
}

// Register attaches handler to registrar.
func Register(registrar grpc.ServiceRegistrar, handler PaymentServiceHandler) {
	registrar.RegisterService(&serviceDesc, handler)
}

func fullMethod(methodName string) string {
	return "/" + ServiceName + "/" + methodName
}

// PaymentServiceClient calls a remote PaymentService.
type PaymentServiceClient struct {
	conn grpc.ClientConnInterface
}

// NewPaymentServiceClient wraps an established connection.
func NewPaymentServiceClient(conn grpc.ClientConnInterface) *PaymentServiceClient {
	return &PaymentServiceClient{conn: conn}
}

func (client *PaymentServiceClient) invoke(ctx context.Context, methodName string, request *structpb.Struct, options ...grpc.CallOption) (*structpb.Struct, error) {
	response := new(structpb.Struct)
	if err := client.conn.Invoke(ctx, fullMethod(methodName), request, response, options...); err != nil {
		return nil, err
	}
	return response, nil
}

func (client *PaymentServiceClient) RecordPayment(ctx context.Context, request *structpb.Struct, options ...grpc.CallOption) (*structpb.Struct, error) {
	return client.invoke(ctx, methodRecordPayment, request, options...)
}

func (client *PaymentServiceClient) RecordSplitPayments(ctx context.Context, request *structpb.Struct, options ...grpc.CallOption) (*structpb.Struct, error) {
	return client.invoke(ctx, methodRecordSplitPayments, request, options...)
}

func (client *PaymentServiceClient) ListPayments(ctx context.Context, request *structpb.Struct, options ...grpc.CallOption) (*structpb.Struct, error) {
	return client.invoke(ctx, methodListPayments, request, options...)
}

func (client *PaymentServiceClient) GetPaymentSummary(ctx context.Context, request *structpb.Struct, options ...grpc.CallOption) (*structpb.Struct, error) {
	return client.invoke(ctx, methodGetPaymentSummary, request, options...)
}

func (client *PaymentServiceClient) UpdatePaymentStatus(ctx context.Context, request *structpb.Struct, options ...grpc.CallOption) (*structpb.Struct, error) {
	return client.invoke(ctx, methodUpdatePaymentStatus, request, options...)
}

func (client *PaymentServiceClient) DeletePayment(ctx context.Context, request *structpb.Struct, options ...grpc.CallOption) (*structpb.Struct, error) {
	return client.invoke(ctx, methodDeletePayment, request, options...)
}

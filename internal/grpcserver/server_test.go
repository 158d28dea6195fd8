package grpcserver

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/vetpay/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/vetpay/pkg/ledger"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"gorm.io/gorm"
)

const bufconnSize = 1 << 20

func startPaymentClient(t *testing.T) (*PaymentServiceClient, *ledger.Service) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(t.TempDir()+"/payments.db"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gormstore.Models()...))
	paymentLedger, err := ledger.NewLedger(func() time.Time { return time.Now().UTC() })
	require.NoError(t, err)
	paymentService, err := ledger.NewService(gormstore.New(db), paymentLedger)
	require.NoError(t, err)

	listener := bufconn.Listen(bufconnSize)
	grpcServer := grpc.NewServer()
	Register(grpcServer, NewPaymentServiceServer(paymentService))
	go func() {
		_ = grpcServer.Serve(listener)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		grpcServer.Stop()
	})
	return NewPaymentServiceClient(conn), paymentService
}

func mustStruct(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	request, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return request
}

func priceAppointment(t *testing.T, paymentService *ledger.Service, rawID string, rawTotal string) {
	t.Helper()
	appointmentID, err := ledger.NewAppointmentID(rawID)
	require.NoError(t, err)
	total, err := ledger.ParseTotalAmount(rawTotal)
	require.NoError(t, err)
	_, err = paymentService.PriceAppointment(context.Background(), appointmentID, total)
	require.NoError(t, err)
}

func requireCode(t *testing.T, err error, code codes.Code, message string) {
	t.Helper()
	statusInfo, ok := status.FromError(err)
	require.True(t, ok, "expected gRPC status, got %v", err)
	require.Equal(t, code, statusInfo.Code())
	require.Equal(t, message, statusInfo.Message())
}

func TestPaymentServiceRoundTrip(t *testing.T) {
	client, paymentService := startPaymentClient(t)
	priceAppointment(t, paymentService, "appt-1", "300")
	ctx := context.Background()

	recorded, err := client.RecordSplitPayments(ctx, mustStruct(t, map[string]any{
		"appointment_id": "appt-1",
		"payments": []any{
			map[string]any{"payment_method": "cash_at_counter", "paid_amount": 100},
			map[string]any{"payment_method": "credit_card", "paid_amount": "200", "provider_code": "stripe", "transaction_id": "ch_1"},
		},
	}))
	require.NoError(t, err)
	require.Equal(t, "paid", recorded.GetFields()["appointmentStatus"].GetStructValue().GetFields()["paymentStatus"].GetStringValue())
	payments := recorded.GetFields()["payments"].GetListValue().GetValues()
	require.Len(t, payments, 2)
	firstID := payments[0].GetStructValue().GetFields()["payment"].GetStructValue().GetFields()["id"].GetStringValue()

	listed, err := client.ListPayments(ctx, mustStruct(t, map[string]any{"appointment_id": "appt-1"}))
	require.NoError(t, err)
	require.Len(t, listed.GetFields()["data"].GetListValue().GetValues(), 2)
	summary := listed.GetFields()["summary"].GetStructValue().GetFields()
	require.Equal(t, 300.0, summary["totalPaid"].GetNumberValue())
	require.True(t, summary["isSplitPayment"].GetBoolValue())

	_, err = client.GetPaymentSummary(ctx, mustStruct(t, map[string]any{"appointment_id": "appt-1"}))
	require.NoError(t, err)

	updated, err := client.UpdatePaymentStatus(ctx, mustStruct(t, map[string]any{
		"appointment_id": "appt-1",
		"payment_id":     firstID,
		"payment_status": "failed",
	}))
	require.NoError(t, err)
	require.Equal(t, "partially_paid", updated.GetFields()["appointmentPaymentStatus"].GetStringValue())

	deleted, err := client.DeletePayment(ctx, mustStruct(t, map[string]any{
		"appointment_id": "appt-1",
		"payment_id":     firstID,
	}))
	require.NoError(t, err)
	require.Equal(t, deletedMessage, deleted.GetFields()["message"].GetStringValue())
}

func TestPaymentServiceErrorCodes(t *testing.T) {
	client, paymentService := startPaymentClient(t)
	priceAppointment(t, paymentService, "appt-2", "300")
	ctx := context.Background()

	_, err := client.RecordPayment(ctx, mustStruct(t, map[string]any{
		"appointment_id": "appt-2",
		"payment_method": "upi",
		"paid_amount":    300,
		"provider_code":  "razorpay",
		"transaction_id": "pay_1",
	}))
	require.NoError(t, err)

	testCases := []struct {
		name    string
		call    func() error
		code    codes.Code
		message string
	}{
		{
			name: "exceeds balance",
			call: func() error {
				_, err := client.RecordPayment(ctx, mustStruct(t, map[string]any{"appointment_id": "appt-2", "payment_method": "upi", "paid_amount": 1}))
				return err
			},
			code:    codes.FailedPrecondition,
			message: errorExceedsBalance,
		},
		{
			name: "duplicate transaction",
			call: func() error {
				_, err := client.RecordPayment(ctx, mustStruct(t, map[string]any{"appointment_id": "appt-2", "payment_method": "upi", "paid_amount": 1, "provider_code": "razorpay", "transaction_id": "pay_1"}))
				return err
			},
			code:    codes.AlreadyExists,
			message: errorDuplicateTransaction,
		},
		{
			name: "missing appointment id",
			call: func() error {
				_, err := client.ListPayments(ctx, mustStruct(t, map[string]any{}))
				return err
			},
			code:    codes.InvalidArgument,
			message: errorInvalidAppointmentID,
		},
		{
			name: "unknown appointment",
			call: func() error {
				_, err := client.ListPayments(ctx, mustStruct(t, map[string]any{"appointment_id": "nope"}))
				return err
			},
			code:    codes.NotFound,
			message: errorAppointmentNotFound,
		},
		{
			name: "unknown payment",
			call: func() error {
				_, err := client.DeletePayment(ctx, mustStruct(t, map[string]any{"appointment_id": "appt-2", "payment_id": "missing"}))
				return err
			},
			code:    codes.NotFound,
			message: errorPaymentNotFound,
		},
		{
			name: "empty batch",
			call: func() error {
				_, err := client.RecordSplitPayments(ctx, mustStruct(t, map[string]any{"appointment_id": "appt-2", "payments": []any{}}))
				return err
			},
			code:    codes.InvalidArgument,
			message: errorEmptyBatch,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			requireCode(t, testCase.call(), testCase.code, testCase.message)
		})
	}
}

func TestMapToGRPCError(t *testing.T) {
	testCases := []struct {
		name    string
		err     error
		code    codes.Code
		message string
	}{
		{name: "batch wraps item", err: ledger.BatchValidationError{Index: 1, Err: ledger.ErrExceedsBalance}, code: codes.InvalidArgument, message: errorBatchValidationFailed},
		{name: "would unpay", err: ledger.ErrWouldUnpayCompletedAppointment, code: codes.FailedPrecondition, message: errorWouldUnpayAppointment},
		{name: "transition", err: ledger.ErrInvalidStatusTransition, code: codes.FailedPrecondition, message: errorInvalidTransition},
		{name: "provider", err: ledger.ErrInvalidProviderCode, code: codes.InvalidArgument, message: errorInvalidProvider},
		{name: "no payments", err: ledger.ErrNoPayments, code: codes.NotFound, message: errorNoPayments},
		{name: "sequence collision", err: ledger.WrapError("store", "payment", "duplicate", ledger.ErrInvalidSequence), code: codes.Aborted, message: errorSequenceConflict},
		{name: "storage fault", err: errors.New("sql: database is closed"), code: codes.Internal, message: errorInternal},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			requireCode(t, mapToGRPCError(testCase.err), testCase.code, testCase.message)
		})
	}
}

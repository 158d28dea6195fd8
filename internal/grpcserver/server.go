package grpcserver

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/vetpay/internal/view"
	"github.com/MarkoPoloResearchLab/vetpay/pkg/ledger"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	errorInvalidAmount         = "invalid_amount"
	errorExceedsBalance        = "exceeds_balance"
	errorInvalidMethod         = "invalid_payment_method"
	errorInvalidStatus         = "invalid_payment_status"
	errorInvalidTransition     = "invalid_status_transition"
	errorInvalidProvider       = "invalid_provider"
	errorInvalidAppointmentID  = "invalid_appointment_id"
	errorInvalidPaymentID      = "invalid_payment_id"
	errorInvalidSplitGroupID   = "invalid_split_payment_group_id"
	errorInvalidPayload        = "invalid_payload"
	errorAppointmentNotFound   = "appointment_not_found"
	errorPaymentNotFound       = "payment_not_found"
	errorNoPayments            = "no_payments"
	errorWouldUnpayAppointment = "would_unpay_completed_appointment"
	errorBatchValidationFailed = "batch_validation_failed"
	errorEmptyBatch            = "empty_batch"
	errorDuplicateTransaction  = "duplicate_provider_transaction"
	errorSequenceConflict      = "payment_sequence_conflict"
	errorInternal              = "internal_error"
	deletedMessage             = "payment deleted"
)

// PaymentServiceServer exposes the payment ledger over gRPC.
type PaymentServiceServer struct {
	paymentService *ledger.Service
}

// NewPaymentServiceServer constructs a gRPC server for the payment service.
func NewPaymentServiceServer(paymentService *ledger.Service) *PaymentServiceServer {
	return &PaymentServiceServer{paymentService: paymentService}
}

type appointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
	PaymentID     string `json:"payment_id"`
}

type recordRequest struct {
	appointmentRequest
	view.PaymentRequest
}

type splitRequest struct {
	appointmentRequest
	view.SplitRequest
}

type statusRequest struct {
	appointmentRequest
	view.StatusRequest
}

func (service *PaymentServiceServer) RecordPayment(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	var decoded recordRequest
	appointmentID, err := decodeAppointmentRequest(request, &decoded, &decoded.appointmentRequest)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	payment, appointmentStatus, err := service.paymentService.RecordPayment(ctx, appointmentID, decoded.Input())
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return encodeResponse(map[string]any{
		"payment":           view.NewPayment(payment),
		"appointmentStatus": view.NewAppointmentStatus(appointmentStatus),
	})
}

func (service *PaymentServiceServer) RecordSplitPayments(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	var decoded splitRequest
	appointmentID, err := decodeAppointmentRequest(request, &decoded, &decoded.appointmentRequest)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	recorded, err := service.paymentService.RecordSplitPayments(ctx, appointmentID, decoded.Inputs())
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return encodeResponse(map[string]any{
		"payments":          view.NewRecordedPayments(recorded),
		"appointmentStatus": view.NewAppointmentStatus(recorded[len(recorded)-1].Status),
	})
}

func (service *PaymentServiceServer) ListPayments(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	var decoded appointmentRequest
	appointmentID, err := decodeAppointmentRequest(request, &decoded, &decoded)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	payments, summary, err := service.paymentService.ListPayments(ctx, appointmentID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return encodeResponse(map[string]any{
		"data":    view.NewPayments(payments),
		"summary": view.NewSummary(summary),
	})
}

func (service *PaymentServiceServer) GetPaymentSummary(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	var decoded appointmentRequest
	appointmentID, err := decodeAppointmentRequest(request, &decoded, &decoded)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	summary, payments, err := service.paymentService.PaymentSummary(ctx, appointmentID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return encodeResponse(map[string]any{
		"data":     view.NewSummary(summary),
		"payments": view.NewPayments(payments),
	})
}

func (service *PaymentServiceServer) UpdatePaymentStatus(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	var decoded statusRequest
	appointmentID, err := decodeAppointmentRequest(request, &decoded, &decoded.appointmentRequest)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	paymentID, err := ledger.NewPaymentID(decoded.PaymentID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	payment, appointmentStatus, err := service.paymentService.UpdatePaymentStatus(ctx, appointmentID, paymentID, decoded.PaymentStatus)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return encodeResponse(map[string]any{
		"payment":                  view.NewPayment(payment),
		"appointmentPaymentStatus": appointmentStatus.PaymentStatus.String(),
		"appointmentStatus":        view.NewAppointmentStatus(appointmentStatus),
	})
}

func (service *PaymentServiceServer) DeletePayment(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	var decoded appointmentRequest
	appointmentID, err := decodeAppointmentRequest(request, &decoded, &decoded)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	paymentID, err := ledger.NewPaymentID(decoded.PaymentID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	appointmentStatus, err := service.paymentService.DeletePayment(ctx, appointmentID, paymentID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return encodeResponse(map[string]any{
		"message":                  deletedMessage,
		"appointmentPaymentStatus": appointmentStatus.PaymentStatus.String(),
		"appointmentStatus":        view.NewAppointmentStatus(appointmentStatus),
	})
}

// decodeAppointmentRequest fills target from the struct and validates the
// appointment id carried in ids.
func decodeAppointmentRequest(request *structpb.Struct, target any, ids *appointmentRequest) (ledger.AppointmentID, error) {
	if request == nil {
		return ledger.AppointmentID{}, view.ErrMalformedBody
	}
	raw, err := protojson.Marshal(request)
	if err != nil {
		return ledger.AppointmentID{}, errors.Join(view.ErrMalformedBody, err)
	}
	if err := view.Decode(raw, target); err != nil {
		return ledger.AppointmentID{}, err
	}
	return ledger.NewAppointmentID(ids.AppointmentID)
}

func encodeResponse(payload map[string]any) (*structpb.Struct, error) {
	generic, err := view.ToMap(payload)
	if err != nil {
		return nil, status.Error(codes.Internal, errorInternal)
	}
	response, err := structpb.NewStruct(generic)
	if err != nil {
		return nil, status.Error(codes.Internal, errorInternal)
	}
	return response, nil
}

func mapToGRPCError(source error) error {
	if errors.Is(source, ledger.ErrEmptyBatch) {
		return status.Error(codes.InvalidArgument, errorEmptyBatch)
	}
	if errors.Is(source, ledger.ErrBatchValidationFailure) {
		return status.Error(codes.InvalidArgument, errorBatchValidationFailed)
	}
	if errors.Is(source, view.ErrMalformedBody) {
		return status.Error(codes.InvalidArgument, errorInvalidPayload)
	}
	if errors.Is(source, ledger.ErrInvalidAppointmentID) {
		return status.Error(codes.InvalidArgument, errorInvalidAppointmentID)
	}
	if errors.Is(source, ledger.ErrInvalidPaymentID) {
		return status.Error(codes.InvalidArgument, errorInvalidPaymentID)
	}
	if errors.Is(source, ledger.ErrInvalidAmount) {
		return status.Error(codes.InvalidArgument, errorInvalidAmount)
	}
	if errors.Is(source, ledger.ErrInvalidMethod) {
		return status.Error(codes.InvalidArgument, errorInvalidMethod)
	}
	if errors.Is(source, ledger.ErrInvalidStatus) {
		return status.Error(codes.InvalidArgument, errorInvalidStatus)
	}
	if errors.Is(source, ledger.ErrInvalidSplitGroupID) {
		return status.Error(codes.InvalidArgument, errorInvalidSplitGroupID)
	}
	if errors.Is(source, ledger.ErrInvalidProviderCode) ||
		errors.Is(source, ledger.ErrInvalidTransactionID) ||
		errors.Is(source, ledger.ErrInvalidProviderResponse) {
		return status.Error(codes.InvalidArgument, errorInvalidProvider)
	}
	if errors.Is(source, ledger.ErrExceedsBalance) {
		return status.Error(codes.FailedPrecondition, errorExceedsBalance)
	}
	if errors.Is(source, ledger.ErrWouldUnpayCompletedAppointment) {
		return status.Error(codes.FailedPrecondition, errorWouldUnpayAppointment)
	}
	if errors.Is(source, ledger.ErrInvalidStatusTransition) {
		return status.Error(codes.FailedPrecondition, errorInvalidTransition)
	}
	if errors.Is(source, ledger.ErrAppointmentNotFound) {
		return status.Error(codes.NotFound, errorAppointmentNotFound)
	}
	if errors.Is(source, ledger.ErrPaymentNotFound) {
		return status.Error(codes.NotFound, errorPaymentNotFound)
	}
	if errors.Is(source, ledger.ErrNoPayments) {
		return status.Error(codes.NotFound, errorNoPayments)
	}
	if errors.Is(source, ledger.ErrDuplicateProviderTransaction) {
		return status.Error(codes.AlreadyExists, errorDuplicateTransaction)
	}
	if errors.Is(source, ledger.ErrInvalidSequence) {
		return status.Error(codes.Aborted, errorSequenceConflict)
	}
	return status.Error(codes.Internal, errorInternal)
}

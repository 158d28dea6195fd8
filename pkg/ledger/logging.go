package ledger

import (
	"context"
	"errors"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing payment operation.
type OperationLog struct {
	Operation         string
	AppointmentID     AppointmentID
	PaymentIDs        []PaymentID
	Amount            AmountCents
	AppointmentStatus AppointmentPaymentStatus
	Status            string
	Error             error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

var rejectionErrors = []error{
	ErrInvalidAmount,
	ErrInvalidTotalAmount,
	ErrExceedsBalance,
	ErrInvalidMethod,
	ErrInvalidStatus,
	ErrInvalidProviderCode,
	ErrInvalidProviderResponse,
	ErrInvalidTransactionID,
	ErrInvalidAppointmentID,
	ErrInvalidPaymentID,
	ErrInvalidSplitGroupID,
	ErrInvalidStatusTransition,
	ErrAppointmentNotFound,
	ErrPaymentNotFound,
	ErrNoPayments,
	ErrWouldUnpayCompletedAppointment,
	ErrBatchValidationFailure,
	ErrEmptyBatch,
	ErrDuplicateProviderTransaction,
}

// IsRejection reports whether err is an expected domain refusal rather than a fault.
func IsRejection(err error) bool {
	for _, target := range rejectionErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

package view

import (
	"errors"

	"github.com/MarkoPoloResearchLab/vetpay/pkg/ledger"
)

// Stable error codes returned to clients.
const (
	CodeInvalidAmount           = "invalid_amount"
	CodeInvalidTotalAmount      = "invalid_total_amount"
	CodeExceedsBalance          = "exceeds_balance"
	CodeInvalidMethod           = "invalid_payment_method"
	CodeInvalidStatus           = "invalid_payment_status"
	CodeInvalidStatusTransition = "invalid_status_transition"
	CodeInvalidProvider         = "invalid_provider"
	CodeInvalidIdentifier       = "invalid_identifier"
	CodeInvalidSplitGroupID     = "invalid_split_payment_group_id"
	CodeAppointmentNotFound     = "appointment_not_found"
	CodePaymentNotFound         = "payment_not_found"
	CodeNoPayments              = "no_payments"
	CodeWouldUnpayAppointment   = "would_unpay_completed_appointment"
	CodeBatchValidationFailed   = "batch_validation_failed"
	CodeEmptyBatch              = "empty_batch"
	CodeDuplicateTransaction    = "duplicate_provider_transaction"
	CodeSequenceConflict        = "payment_sequence_conflict"
	CodeMalformedBody           = "invalid_payload"
	CodeInternal                = "internal_error"
	internalErrorMessage        = "payment operation failed"
)

// ErrorKind groups error codes by how a boundary should answer them.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInvalid
	KindNotFound
	KindConflict
)

type errorRule struct {
	target error
	code   string
	kind   ErrorKind
}

// Order matters: batch and sequence rules precede the item errors they wrap.
var errorRules = []errorRule{
	{ledger.ErrEmptyBatch, CodeEmptyBatch, KindInvalid},
	{ledger.ErrBatchValidationFailure, CodeBatchValidationFailed, KindInvalid},
	{ErrMalformedBody, CodeMalformedBody, KindInvalid},
	{ledger.ErrInvalidAmount, CodeInvalidAmount, KindInvalid},
	{ledger.ErrInvalidTotalAmount, CodeInvalidTotalAmount, KindInvalid},
	{ledger.ErrExceedsBalance, CodeExceedsBalance, KindInvalid},
	{ledger.ErrInvalidMethod, CodeInvalidMethod, KindInvalid},
	{ledger.ErrInvalidStatus, CodeInvalidStatus, KindInvalid},
	{ledger.ErrInvalidStatusTransition, CodeInvalidStatusTransition, KindInvalid},
	{ledger.ErrInvalidProviderCode, CodeInvalidProvider, KindInvalid},
	{ledger.ErrInvalidProviderResponse, CodeInvalidProvider, KindInvalid},
	{ledger.ErrInvalidTransactionID, CodeInvalidProvider, KindInvalid},
	{ledger.ErrInvalidAppointmentID, CodeInvalidIdentifier, KindInvalid},
	{ledger.ErrInvalidPaymentID, CodeInvalidIdentifier, KindInvalid},
	{ledger.ErrInvalidSplitGroupID, CodeInvalidSplitGroupID, KindInvalid},
	{ledger.ErrWouldUnpayCompletedAppointment, CodeWouldUnpayAppointment, KindInvalid},
	{ledger.ErrAppointmentNotFound, CodeAppointmentNotFound, KindNotFound},
	{ledger.ErrPaymentNotFound, CodePaymentNotFound, KindNotFound},
	{ledger.ErrNoPayments, CodeNoPayments, KindNotFound},
	{ledger.ErrDuplicateProviderTransaction, CodeDuplicateTransaction, KindConflict},
	{ledger.ErrInvalidSequence, CodeSequenceConflict, KindConflict},
}

// ClassifiedError is the client-facing rendering of a failure.
type ClassifiedError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Index   *int
}

// Classify maps err onto a stable code. Unknown errors become KindInternal with a
// generic message so storage details never leak.
func Classify(err error) ClassifiedError {
	for _, rule := range errorRules {
		if !errors.Is(err, rule.target) {
			continue
		}
		classified := ClassifiedError{Kind: rule.kind, Code: rule.code, Message: rule.target.Error()}
		var batchError ledger.BatchValidationError
		if errors.As(err, &batchError) {
			index := batchError.Index
			classified.Index = &index
			classified.Message = batchError.Error()
		}
		return classified
	}
	return ClassifiedError{Kind: KindInternal, Code: CodeInternal, Message: internalErrorMessage}
}

package ledger

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

const minorUnitPlaces = 2

// AmountCents is a currency amount in minor units.
type AmountCents int64

// NewAmountCents validates a non-negative amount.
func NewAmountCents(raw int64) (AmountCents, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidTotalAmount)
	}
	return AmountCents(raw), nil
}

// NewPaymentAmountCents validates a strictly positive payment amount.
func NewPaymentAmountCents(raw int64) (AmountCents, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return AmountCents(raw), nil
}

// ParseAmount converts a decimal string or JSON number into minor units, rounding half-up
// to the currency's minor unit.
func ParseAmount(raw any) (AmountCents, error) {
	text, err := cast.ToStringE(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidAmount)
	}
	value, err := decimal.NewFromString(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not numeric", ErrInvalidAmount, text)
	}
	cents := value.Round(minorUnitPlaces).Shift(minorUnitPlaces)
	if cents.Sign() <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if !withinAmountRange(cents) {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidAmount, text)
	}
	return NewPaymentAmountCents(cents.IntPart())
}

// ParseTotalAmount converts a decimal appointment total into minor units.
func ParseTotalAmount(raw any) (AmountCents, error) {
	text, err := cast.ToStringE(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTotalAmount, err)
	}
	value, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not numeric", ErrInvalidTotalAmount, text)
	}
	cents := value.Round(minorUnitPlaces).Shift(minorUnitPlaces)
	if cents.Sign() < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidTotalAmount)
	}
	if !withinAmountRange(cents) {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidTotalAmount, text)
	}
	return NewAmountCents(cents.IntPart())
}

// withinAmountRange reports whether cents is a whole number that IntPart can return
// without overflowing.
func withinAmountRange(cents decimal.Decimal) bool {
	return cents.IsInteger() &&
		!cents.GreaterThan(decimal.NewFromInt(maxAmountCents)) &&
		!cents.LessThan(decimal.NewFromInt(-maxAmountCents))
}

// Int64 returns the raw minor-unit value.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// Decimal returns the amount in major units.
func (amount AmountCents) Decimal() decimal.Decimal {
	return decimal.New(int64(amount), -minorUnitPlaces)
}

// String renders the amount with two fixed decimal places.
func (amount AmountCents) String() string {
	return amount.Decimal().StringFixed(minorUnitPlaces)
}

// AppointmentID identifies an externally owned appointment.
type AppointmentID struct {
	value string
}

// NewAppointmentID validates and normalizes an appointment id.
func NewAppointmentID(raw string) (AppointmentID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AppointmentID{}, fmt.Errorf("%w: empty value", ErrInvalidAppointmentID)
	}
	return AppointmentID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id AppointmentID) String() string {
	return id.value
}

// PaymentID identifies a payment record.
type PaymentID struct {
	value string
}

// NewPaymentID validates and normalizes a payment id.
func NewPaymentID(raw string) (PaymentID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return PaymentID{}, fmt.Errorf("%w: empty value", ErrInvalidPaymentID)
	}
	return PaymentID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id PaymentID) String() string {
	return id.value
}

// SplitGroupID links payments that originate from one split-payment transaction.
type SplitGroupID struct {
	value string
}

// NewSplitGroupID requires a syntactically valid UUID.
func NewSplitGroupID(raw string) (SplitGroupID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return SplitGroupID{}, fmt.Errorf("%w: %v", ErrInvalidSplitGroupID, err)
	}
	return SplitGroupID{value: parsed.String()}, nil
}

// String returns the canonical UUID form.
func (id SplitGroupID) String() string {
	return id.value
}

// TransactionID is the provider's reference for a charge.
type TransactionID struct {
	value string
}

// NewTransactionID validates and normalizes a provider transaction id.
func NewTransactionID(raw string) (TransactionID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return TransactionID{}, fmt.Errorf("%w: empty value", ErrInvalidTransactionID)
	}
	return TransactionID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id TransactionID) String() string {
	return id.value
}

// ProviderResponse stores the provider's raw payload.
type ProviderResponse struct {
	value string
}

// NewProviderResponse validates the payload (defaulting to "{}" for empty inputs).
func NewProviderResponse(raw string) (ProviderResponse, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return ProviderResponse{}, fmt.Errorf("%w: must be valid json", ErrInvalidProviderResponse)
	}
	return ProviderResponse{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (response ProviderResponse) String() string {
	if response.value == "" {
		return "{}"
	}
	return response.value
}

// PaymentMethod enumerates how a payment was tendered.
type PaymentMethod string

const (
	MethodCashAtCounter PaymentMethod = "cash_at_counter"
	MethodCreditCard    PaymentMethod = "credit_card"
	MethodDebitCard     PaymentMethod = "debit_card"
	MethodUPI           PaymentMethod = "upi"
	MethodBankTransfer  PaymentMethod = "bank_transfer"
	MethodCheque        PaymentMethod = "cheque"
	MethodInsurance     PaymentMethod = "insurance"
	MethodWallet        PaymentMethod = "wallet"
)

// ParsePaymentMethod validates a payment method string.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch method := PaymentMethod(strings.TrimSpace(raw)); method {
	case MethodCashAtCounter, MethodCreditCard, MethodDebitCard, MethodUPI,
		MethodBankTransfer, MethodCheque, MethodInsurance, MethodWallet:
		return method, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMethod, raw)
	}
}

// String returns the textual method.
func (method PaymentMethod) String() string {
	return string(method)
}

// PaymentStatus is the lifecycle state of a single payment.
type PaymentStatus string

const (
	PaymentStatusPending       PaymentStatus = "pending"
	PaymentStatusPaid          PaymentStatus = "paid"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
	PaymentStatusFailed        PaymentStatus = "failed"
	PaymentStatusCancelled     PaymentStatus = "cancelled"
)

// ParsePaymentStatus validates a payment status string.
func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	switch status := PaymentStatus(strings.TrimSpace(raw)); status {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusPartiallyPaid, PaymentStatusFailed, PaymentStatusCancelled:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

// String returns the textual status.
func (status PaymentStatus) String() string {
	return string(status)
}

// CountsTowardTotal reports whether the status contributes to the paid total.
func (status PaymentStatus) CountsTowardTotal() bool {
	return status == PaymentStatusPaid || status == PaymentStatusPartiallyPaid
}

// AppointmentPaymentStatus is derived from an appointment's payment set.
type AppointmentPaymentStatus string

const (
	AppointmentPending       AppointmentPaymentStatus = "pending"
	AppointmentPartiallyPaid AppointmentPaymentStatus = "partially_paid"
	AppointmentPaid          AppointmentPaymentStatus = "paid"
)

// ParseAppointmentPaymentStatus validates a stored appointment status; empty means pending.
func ParseAppointmentPaymentStatus(raw string) (AppointmentPaymentStatus, error) {
	switch status := AppointmentPaymentStatus(strings.TrimSpace(raw)); status {
	case "":
		return AppointmentPending, nil
	case AppointmentPending, AppointmentPartiallyPaid, AppointmentPaid:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAppointmentStatus, raw)
	}
}

// String returns the textual status.
func (status AppointmentPaymentStatus) String() string {
	return string(status)
}

// ProviderCode names an external payment processor.
type ProviderCode string

const (
	ProviderStripe    ProviderCode = "stripe"
	ProviderRazorpay  ProviderCode = "razorpay"
	ProviderPayPal    ProviderCode = "paypal"
	ProviderSquare    ProviderCode = "square"
	ProviderBraintree ProviderCode = "braintree"
)

// ParseProviderCode validates a provider code string.
func ParseProviderCode(raw string) (ProviderCode, error) {
	switch code := ProviderCode(strings.ToLower(strings.TrimSpace(raw))); code {
	case ProviderStripe, ProviderRazorpay, ProviderPayPal, ProviderSquare, ProviderBraintree:
		return code, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidProviderCode, raw)
	}
}

// String returns the textual provider code.
func (code ProviderCode) String() string {
	return string(code)
}

// ProviderLinkage ties a payment to the external charge that funded it.
type ProviderLinkage struct {
	Code          ProviderCode
	TransactionID TransactionID
	Response      ProviderResponse
}

// NewProviderLinkage validates raw provider fields.
func NewProviderLinkage(rawCode string, rawTransactionID string, rawResponse string) (ProviderLinkage, error) {
	code, err := ParseProviderCode(rawCode)
	if err != nil {
		return ProviderLinkage{}, err
	}
	transactionID, err := NewTransactionID(rawTransactionID)
	if err != nil {
		return ProviderLinkage{}, err
	}
	response, err := NewProviderResponse(rawResponse)
	if err != nil {
		return ProviderLinkage{}, err
	}
	return ProviderLinkage{Code: code, TransactionID: transactionID, Response: response}, nil
}

// Appointment is the read-only view of an externally owned, priced appointment.
type Appointment struct {
	id     AppointmentID
	total  AmountCents
	status AppointmentPaymentStatus
}

// NewAppointment validates an appointment snapshot.
func NewAppointment(id AppointmentID, total AmountCents, status AppointmentPaymentStatus) (Appointment, error) {
	if id.value == "" {
		return Appointment{}, fmt.Errorf("%w: empty value", ErrInvalidAppointmentID)
	}
	if total < 0 {
		return Appointment{}, fmt.Errorf("%w: must not be negative", ErrInvalidTotalAmount)
	}
	normalizedStatus, err := ParseAppointmentPaymentStatus(status.String())
	if err != nil {
		return Appointment{}, err
	}
	return Appointment{id: id, total: total, status: normalizedStatus}, nil
}

// ID returns the appointment id.
func (appointment Appointment) ID() AppointmentID {
	return appointment.id
}

// TotalAmount returns the priced total.
func (appointment Appointment) TotalAmount() AmountCents {
	return appointment.total
}

// PaymentStatus returns the last derived payment status.
func (appointment Appointment) PaymentStatus() AppointmentPaymentStatus {
	return appointment.status
}

// AppointmentStatusUpdate is what a caller persists onto the appointment after a mutation.
type AppointmentStatusUpdate struct {
	TotalPaid        AmountCents
	RemainingBalance AmountCents
	PaymentStatus    AppointmentPaymentStatus
}

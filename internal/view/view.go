// Package view renders ledger values into the JSON shapes shared by the HTTP and
// gRPC boundaries, and decodes their request bodies.
package view

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/vetpay/pkg/ledger"
)

// Payment is the wire form of a ledger.Payment.
type Payment struct {
	ID                  string       `json:"id"`
	AppointmentID       string       `json:"appointment_id"`
	PaymentMethod       string       `json:"payment_method"`
	PaidAmount          json.Number  `json:"paid_amount"`
	PaymentStatus       string       `json:"payment_status"`
	IsPartial           bool         `json:"is_partial"`
	SplitPaymentGroupID string       `json:"split_payment_group_id,omitempty"`
	PaymentSequence     *int         `json:"payment_sequence,omitempty"`
	Notes               string       `json:"notes,omitempty"`
	PaymentDate         time.Time    `json:"payment_date"`
	Provider            *Transaction `json:"provider,omitempty"`
}

// Transaction is the provider audit linkage of a payment.
type Transaction struct {
	ProviderCode     string          `json:"provider_code"`
	TransactionID    string          `json:"transaction_id"`
	ProviderResponse json.RawMessage `json:"provider_response"`
}

// AppointmentStatus mirrors ledger.AppointmentStatusUpdate.
type AppointmentStatus struct {
	TotalPaid        json.Number `json:"totalPaid"`
	RemainingBalance json.Number `json:"remainingBalance"`
	PaymentStatus    string      `json:"paymentStatus"`
}

// Summary mirrors ledger.PaymentSummary.
type Summary struct {
	TotalPaid        json.Number     `json:"totalPaid"`
	RemainingBalance json.Number     `json:"remainingBalance"`
	IsFullyPaid      bool            `json:"isFullyPaid"`
	IsSplitPayment   bool            `json:"isSplitPayment"`
	PaymentBreakdown []BreakdownItem `json:"paymentBreakdown"`
}

// BreakdownItem is one summary line.
type BreakdownItem struct {
	PaymentID string      `json:"payment_id"`
	Method    string      `json:"method"`
	Amount    json.Number `json:"amount"`
	Status    string      `json:"status"`
	Sequence  *int        `json:"sequence"`
	Date      time.Time   `json:"date"`
}

// RecordedPayment pairs a payment with the appointment status after it.
type RecordedPayment struct {
	Payment           Payment           `json:"payment"`
	AppointmentStatus AppointmentStatus `json:"appointmentStatus"`
}

// NewPayment renders a payment.
func NewPayment(payment ledger.Payment) Payment {
	rendered := Payment{
		ID:            payment.ID().String(),
		AppointmentID: payment.AppointmentID().String(),
		PaymentMethod: payment.Method().String(),
		PaidAmount:    Amount(payment.PaidAmount()),
		PaymentStatus: payment.Status().String(),
		IsPartial:     payment.IsPartial(),
		Notes:         payment.Notes(),
		PaymentDate:   payment.CreatedAt(),
	}
	if groupID, grouped := payment.SplitGroupID(); grouped {
		rendered.SplitPaymentGroupID = groupID.String()
		sequence, _ := payment.Sequence()
		rendered.PaymentSequence = &sequence
	}
	if linkage, linked := payment.Provider(); linked {
		rendered.Provider = &Transaction{
			ProviderCode:     linkage.Code.String(),
			TransactionID:    linkage.TransactionID.String(),
			ProviderResponse: json.RawMessage(linkage.Response.String()),
		}
	}
	return rendered
}

// NewPayments renders payments in order.
func NewPayments(payments []ledger.Payment) []Payment {
	rendered := make([]Payment, 0, len(payments))
	for _, payment := range payments {
		rendered = append(rendered, NewPayment(payment))
	}
	return rendered
}

// NewAppointmentStatus renders a status update.
func NewAppointmentStatus(update ledger.AppointmentStatusUpdate) AppointmentStatus {
	return AppointmentStatus{
		TotalPaid:        Amount(update.TotalPaid),
		RemainingBalance: Amount(update.RemainingBalance),
		PaymentStatus:    update.PaymentStatus.String(),
	}
}

// NewSummary renders a payment summary.
func NewSummary(summary ledger.PaymentSummary) Summary {
	breakdown := make([]BreakdownItem, 0, len(summary.Breakdown))
	for _, item := range summary.Breakdown {
		line := BreakdownItem{
			PaymentID: item.PaymentID.String(),
			Method:    item.Method.String(),
			Amount:    Amount(item.Amount),
			Status:    item.Status.String(),
			Date:      item.Date,
		}
		if item.Sequence > 0 {
			sequence := item.Sequence
			line.Sequence = &sequence
		}
		breakdown = append(breakdown, line)
	}
	return Summary{
		TotalPaid:        Amount(summary.TotalPaid),
		RemainingBalance: Amount(summary.RemainingBalance),
		IsFullyPaid:      summary.IsFullyPaid,
		IsSplitPayment:   summary.IsSplitPayment,
		PaymentBreakdown: breakdown,
	}
}

// NewRecordedPayments renders a split batch.
func NewRecordedPayments(recorded []ledger.RecordedPayment) []RecordedPayment {
	rendered := make([]RecordedPayment, 0, len(recorded))
	for _, item := range recorded {
		rendered = append(rendered, RecordedPayment{
			Payment:           NewPayment(item.Payment),
			AppointmentStatus: NewAppointmentStatus(item.Status),
		})
	}
	return rendered
}

// Amount renders minor units as a JSON number with two decimals.
func Amount(amount ledger.AmountCents) json.Number {
	return json.Number(amount.String())
}

// PaymentRequest is the body accepted when recording a payment.
type PaymentRequest struct {
	PaymentMethod       string          `json:"payment_method"`
	PaidAmount          any             `json:"paid_amount"`
	IsPartial           bool            `json:"is_partial"`
	SplitPaymentGroupID string          `json:"split_payment_group_id"`
	Notes               string          `json:"notes"`
	ProviderCode        string          `json:"provider_code"`
	TransactionID       string          `json:"transaction_id"`
	ProviderResponse    json.RawMessage `json:"provider_response"`
}

// SplitRequest is the body accepted when recording a split batch.
type SplitRequest struct {
	Payments []PaymentRequest `json:"payments"`
}

// StatusRequest is the body accepted when updating a payment status.
type StatusRequest struct {
	PaymentStatus string `json:"payment_status"`
}

// ErrMalformedBody reports a request body that is not the expected JSON object.
var ErrMalformedBody = errors.New("malformed request body")

// Decode reads a JSON body into target, keeping numbers exact.
func Decode(raw []byte, target any) error {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return nil
}

// Input converts the request into ledger input. Provider linkage is attached when
// any provider field is present.
func (request PaymentRequest) Input() ledger.PaymentInput {
	input := ledger.PaymentInput{
		Method:       request.PaymentMethod,
		Amount:       request.PaidAmount,
		IsPartial:    request.IsPartial,
		SplitGroupID: strings.TrimSpace(request.SplitPaymentGroupID),
		Notes:        request.Notes,
	}
	if request.ProviderCode != "" || request.TransactionID != "" {
		input.Provider = &ledger.ProviderInput{
			Code:          request.ProviderCode,
			TransactionID: request.TransactionID,
			Response:      providerResponseText(request.ProviderResponse),
		}
	}
	return input
}

// Inputs converts every batch item.
func (request SplitRequest) Inputs() []ledger.PaymentInput {
	inputs := make([]ledger.PaymentInput, 0, len(request.Payments))
	for _, item := range request.Payments {
		inputs = append(inputs, item.Input())
	}
	return inputs
}

// providerResponseText accepts either an embedded JSON object or a JSON string holding one.
func providerResponseText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		return text
	}
	return string(trimmed)
}

// ToMap converts a rendered value into a generic map, e.g. for structpb.
func ToMap(value any) (map[string]any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return generic, nil
}

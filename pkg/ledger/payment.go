package ledger

import (
	"fmt"
	"time"
)

// Payment is an immutable payment record; only its status may change, via WithStatus.
type Payment struct {
	id            PaymentID
	appointmentID AppointmentID
	method        PaymentMethod
	amount        AmountCents
	status        PaymentStatus
	isPartial     bool
	splitGroupID  *SplitGroupID
	sequence      int
	notes         string
	createdAt     time.Time
	provider      *ProviderLinkage
}

// PaymentParams carries the fields needed to rebuild a Payment from storage.
type PaymentParams struct {
	ID            PaymentID
	AppointmentID AppointmentID
	Method        PaymentMethod
	Amount        AmountCents
	Status        PaymentStatus
	IsPartial     bool
	SplitGroupID  *SplitGroupID
	Sequence      int
	Notes         string
	CreatedAt     time.Time
	Provider      *ProviderLinkage
}

// NewPayment validates params and returns a Payment.
func NewPayment(params PaymentParams) (Payment, error) {
	if params.ID.value == "" {
		return Payment{}, fmt.Errorf("%w: empty value", ErrInvalidPaymentID)
	}
	if params.AppointmentID.value == "" {
		return Payment{}, fmt.Errorf("%w: empty value", ErrInvalidAppointmentID)
	}
	if _, err := ParsePaymentMethod(params.Method.String()); err != nil {
		return Payment{}, err
	}
	if _, err := NewPaymentAmountCents(params.Amount.Int64()); err != nil {
		return Payment{}, err
	}
	if _, err := ParsePaymentStatus(params.Status.String()); err != nil {
		return Payment{}, err
	}
	if params.SplitGroupID == nil && params.Sequence != 0 {
		return Payment{}, fmt.Errorf("%w: sequence without split group", ErrInvalidSequence)
	}
	if params.SplitGroupID != nil && params.Sequence < firstPaymentSequence {
		return Payment{}, fmt.Errorf("%w: must be positive within a split group", ErrInvalidSequence)
	}
	var groupID *SplitGroupID
	if params.SplitGroupID != nil {
		groupCopy := *params.SplitGroupID
		groupID = &groupCopy
	}
	var provider *ProviderLinkage
	if params.Provider != nil {
		providerCopy := *params.Provider
		provider = &providerCopy
	}
	return Payment{
		id:            params.ID,
		appointmentID: params.AppointmentID,
		method:        params.Method,
		amount:        params.Amount,
		status:        params.Status,
		isPartial:     params.IsPartial,
		splitGroupID:  groupID,
		sequence:      params.Sequence,
		notes:         params.Notes,
		createdAt:     params.CreatedAt.UTC(),
		provider:      provider,
	}, nil
}

// ID returns the payment id.
func (payment Payment) ID() PaymentID {
	return payment.id
}

// AppointmentID returns the appointment the payment belongs to.
func (payment Payment) AppointmentID() AppointmentID {
	return payment.appointmentID
}

// Method returns the payment method.
func (payment Payment) Method() PaymentMethod {
	return payment.method
}

// PaidAmount returns the tendered amount.
func (payment Payment) PaidAmount() AmountCents {
	return payment.amount
}

// Status returns the payment status.
func (payment Payment) Status() PaymentStatus {
	return payment.status
}

// IsPartial reports whether the payment is one of several covering a total.
func (payment Payment) IsPartial() bool {
	return payment.isPartial
}

// SplitGroupID returns the split group, if any.
func (payment Payment) SplitGroupID() (SplitGroupID, bool) {
	if payment.splitGroupID == nil {
		return SplitGroupID{}, false
	}
	return *payment.splitGroupID, true
}

// Sequence returns the ordinal within the split group, if any.
func (payment Payment) Sequence() (int, bool) {
	if payment.splitGroupID == nil {
		return 0, false
	}
	return payment.sequence, true
}

// Notes returns free-form notes.
func (payment Payment) Notes() string {
	return payment.notes
}

// CreatedAt returns the payment date.
func (payment Payment) CreatedAt() time.Time {
	return payment.createdAt
}

// Provider returns the provider linkage, if any.
func (payment Payment) Provider() (ProviderLinkage, bool) {
	if payment.provider == nil {
		return ProviderLinkage{}, false
	}
	return *payment.provider, true
}

// ValidAmount is the amount counted toward the appointment total.
func (payment Payment) ValidAmount() AmountCents {
	if !payment.status.CountsTowardTotal() {
		return 0
	}
	return payment.amount
}

// WithStatus returns a copy of the payment carrying status.
func (payment Payment) WithStatus(status PaymentStatus) Payment {
	updated := payment
	updated.status = status
	return updated
}

package ledger

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// IDGenerator mints identifiers for new payments and split groups.
type IDGenerator interface {
	NewPaymentID() PaymentID
	NewSplitGroupID() SplitGroupID
}

type uuidGenerator struct{}

func (uuidGenerator) NewPaymentID() PaymentID {
	return PaymentID{value: uuid.NewString()}
}

func (uuidGenerator) NewSplitGroupID() SplitGroupID {
	return SplitGroupID{value: uuid.NewString()}
}

// LedgerOption configures a Ledger instance.
type LedgerOption func(*Ledger)

// WithIDGenerator replaces the UUID-based identifier source.
func WithIDGenerator(generator IDGenerator) LedgerOption {
	return func(ledger *Ledger) {
		if generator != nil {
			ledger.ids = generator
		}
	}
}

// WithStrictTransitions enforces the payment status transition table, forbids
// re-activations that overshoot the total, and extends the delete guard to
// partially_paid payments.
func WithStrictTransitions() LedgerOption {
	return func(ledger *Ledger) {
		ledger.strict = true
	}
}

// Ledger holds the payment reconciliation rules. It keeps no state between calls:
// every operation receives the appointment and its payments from the caller.
type Ledger struct {
	nowFn  func() time.Time
	ids    IDGenerator
	strict bool
}

// NewLedger wires a Ledger.
func NewLedger(now func() time.Time, options ...LedgerOption) (*Ledger, error) {
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	ledger := &Ledger{nowFn: now, ids: uuidGenerator{}}
	for _, option := range options {
		if option != nil {
			option(ledger)
		}
	}
	return ledger, nil
}

// Strict reports whether the transition table is enforced.
func (ledger *Ledger) Strict() bool {
	return ledger.strict
}

// ProviderInput carries raw provider linkage fields.
type ProviderInput struct {
	Code          string
	TransactionID string
	Response      string
}

// PaymentInput is a request to record one payment.
type PaymentInput struct {
	Method       string
	Amount       any
	IsPartial    bool
	SplitGroupID string
	Notes        string
	Provider     *ProviderInput
}

// ValidationResult is the outcome of a successful ValidatePayment call.
type ValidationResult struct {
	Amount           AmountCents
	Method           PaymentMethod
	SplitGroupID     *SplitGroupID
	AlreadyPaid      AmountCents
	RemainingBalance AmountCents
}

// RecordedPayment pairs a created payment with the appointment status after it.
type RecordedPayment struct {
	Payment Payment
	Status  AppointmentStatusUpdate
}

// ValidatePayment checks a prospective payment against the appointment total and
// the payments already recorded.
func (ledger *Ledger) ValidatePayment(appointmentTotal AmountCents, rawAmount any, existing []Payment, rawMethod string, rawSplitGroupID string) (ValidationResult, error) {
	amount, err := ParseAmount(rawAmount)
	if err != nil {
		return ValidationResult{}, err
	}
	alreadyPaid := TotalPaid(existing)
	if alreadyPaid+amount > appointmentTotal {
		return ValidationResult{}, fmt.Errorf("%w: paying %s with %s already paid against %s", ErrExceedsBalance, amount, alreadyPaid, appointmentTotal)
	}
	method, err := ParsePaymentMethod(rawMethod)
	if err != nil {
		return ValidationResult{}, err
	}
	var groupID *SplitGroupID
	if rawSplitGroupID != "" {
		parsed, err := NewSplitGroupID(rawSplitGroupID)
		if err != nil {
			return ValidationResult{}, err
		}
		groupID = &parsed
	}
	return ValidationResult{
		Amount:           amount,
		Method:           method,
		SplitGroupID:     groupID,
		AlreadyPaid:      alreadyPaid,
		RemainingBalance: appointmentTotal - alreadyPaid,
	}, nil
}

// RecordPayment validates input and builds the new payment plus the status the
// caller must persist onto the appointment. Nothing is written.
func (ledger *Ledger) RecordPayment(appointment Appointment, existing []Payment, input PaymentInput) (Payment, AppointmentStatusUpdate, error) {
	recorded, err := ledger.recordPayment(appointment, existing, input, nil)
	if err != nil {
		return Payment{}, AppointmentStatusUpdate{}, err
	}
	return recorded.Payment, recorded.Status, nil
}

// RecordSplitPayments records inputs in order as one split transaction. Each item
// is validated against the payments before it, including earlier batch items.
// Any failure rejects the whole batch with a BatchValidationError.
func (ledger *Ledger) RecordSplitPayments(appointment Appointment, existing []Payment, inputs []PaymentInput) ([]RecordedPayment, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyBatch
	}
	var batchGroup *SplitGroupID
	if len(inputs) > 1 {
		generated := ledger.ids.NewSplitGroupID()
		batchGroup = &generated
	}
	running := slices.Clone(existing)
	recorded := make([]RecordedPayment, 0, len(inputs))
	for index, input := range inputs {
		item, err := ledger.recordPayment(appointment, running, input, batchGroup)
		if err != nil {
			return nil, BatchValidationError{Index: index, Err: err}
		}
		running = append(running, item.Payment)
		recorded = append(recorded, item)
	}
	return recorded, nil
}

func (ledger *Ledger) recordPayment(appointment Appointment, existing []Payment, input PaymentInput, batchGroup *SplitGroupID) (RecordedPayment, error) {
	validation, err := ledger.ValidatePayment(appointment.TotalAmount(), input.Amount, existing, input.Method, input.SplitGroupID)
	if err != nil {
		return RecordedPayment{}, err
	}
	var provider *ProviderLinkage
	if input.Provider != nil {
		linkage, err := NewProviderLinkage(input.Provider.Code, input.Provider.TransactionID, input.Provider.Response)
		if err != nil {
			return RecordedPayment{}, err
		}
		provider = &linkage
	}

	isSplit := input.IsPartial || len(existing) > 0 || batchGroup != nil
	var groupID *SplitGroupID
	sequence := 0
	if isSplit {
		groupID = validation.SplitGroupID
		if groupID == nil && batchGroup != nil {
			groupID = batchGroup
		}
		if groupID == nil {
			generated := ledger.ids.NewSplitGroupID()
			groupID = &generated
		}
		sequence = NextSequence(existing, *groupID)
	}

	payment, err := NewPayment(PaymentParams{
		ID:            ledger.ids.NewPaymentID(),
		AppointmentID: appointment.ID(),
		Method:        validation.Method,
		Amount:        validation.Amount,
		Status:        PaymentStatusPaid,
		IsPartial:     isSplit,
		SplitGroupID:  groupID,
		Sequence:      sequence,
		Notes:         input.Notes,
		CreatedAt:     ledger.nowFn(),
		Provider:      provider,
	})
	if err != nil {
		return RecordedPayment{}, err
	}
	status := StatusUpdateFor(appointment.TotalAmount(), append(slices.Clone(existing), payment))
	return RecordedPayment{Payment: payment, Status: status}, nil
}

// UpdatePaymentStatus moves payment to a new status and re-derives the appointment
// status over others plus the updated payment.
func (ledger *Ledger) UpdatePaymentStatus(payment Payment, others []Payment, appointmentTotal AmountCents, rawStatus string) (Payment, AppointmentStatusUpdate, error) {
	newStatus, err := ParsePaymentStatus(rawStatus)
	if err != nil {
		return Payment{}, AppointmentStatusUpdate{}, err
	}
	if ledger.strict {
		if err := checkTransition(payment.Status(), newStatus); err != nil {
			return Payment{}, AppointmentStatusUpdate{}, err
		}
		if !payment.Status().CountsTowardTotal() && newStatus.CountsTowardTotal() {
			if TotalPaid(others)+payment.PaidAmount() > appointmentTotal {
				return Payment{}, AppointmentStatusUpdate{}, fmt.Errorf("%w: re-activating %s", ErrExceedsBalance, payment.PaidAmount())
			}
		}
	}
	updated := payment.WithStatus(newStatus)
	status := StatusUpdateFor(appointmentTotal, append(slices.Clone(others), updated))
	return updated, status, nil
}

// DeletePayment decides whether payment may be removed and returns the appointment
// status computed over remaining.
func (ledger *Ledger) DeletePayment(payment Payment, remaining []Payment, appointmentTotal AmountCents) (AppointmentStatusUpdate, error) {
	totalAfterDelete := TotalPaid(remaining)
	guarded := payment.Status() == PaymentStatusPaid
	if ledger.strict && payment.Status() == PaymentStatusPartiallyPaid {
		guarded = true
	}
	if guarded && totalAfterDelete < appointmentTotal {
		return AppointmentStatusUpdate{}, fmt.Errorf("%w: %s would remain against %s", ErrWouldUnpayCompletedAppointment, totalAfterDelete, appointmentTotal)
	}
	return StatusUpdateFor(appointmentTotal, remaining), nil
}

var strictTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:       {PaymentStatusPaid, PaymentStatusPartiallyPaid, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusPartiallyPaid: {PaymentStatusPaid, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusPaid:          {PaymentStatusCancelled},
	PaymentStatusFailed:        {PaymentStatusPending},
	PaymentStatusCancelled:     {},
}

func checkTransition(from PaymentStatus, to PaymentStatus) error {
	if from == to {
		return nil
	}
	if slices.Contains(strictTransitions[from], to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, from, to)
}

// TotalPaid sums the valid paid amounts of payments.
func TotalPaid(payments []Payment) AmountCents {
	var total AmountCents
	for _, payment := range payments {
		total += payment.ValidAmount()
	}
	return total
}

// NextSequence returns the sequence following the highest one recorded for groupID.
func NextSequence(payments []Payment, groupID SplitGroupID) int {
	highest := 0
	for _, payment := range payments {
		paymentGroup, grouped := payment.SplitGroupID()
		if !grouped || paymentGroup != groupID {
			continue
		}
		if payment.sequence > highest {
			highest = payment.sequence
		}
	}
	return highest + firstPaymentSequence
}

// DeriveAppointmentStatus maps a paid total onto the appointment payment status.
func DeriveAppointmentStatus(totalPaid AmountCents, appointmentTotal AmountCents) AppointmentPaymentStatus {
	switch {
	case totalPaid <= 0:
		return AppointmentPending
	case totalPaid >= appointmentTotal:
		return AppointmentPaid
	default:
		return AppointmentPartiallyPaid
	}
}

// StatusUpdateFor derives the appointment status update for a payment set.
func StatusUpdateFor(appointmentTotal AmountCents, payments []Payment) AppointmentStatusUpdate {
	totalPaid := TotalPaid(payments)
	return AppointmentStatusUpdate{
		TotalPaid:        totalPaid,
		RemainingBalance: remainingBalance(appointmentTotal, totalPaid),
		PaymentStatus:    DeriveAppointmentStatus(totalPaid, appointmentTotal),
	}
}

func remainingBalance(appointmentTotal AmountCents, totalPaid AmountCents) AmountCents {
	if totalPaid >= appointmentTotal {
		return 0
	}
	return appointmentTotal - totalPaid
}

package ledger

import (
	"cmp"
	"slices"
	"time"
)

// PaymentBreakdownItem is one line of a payment summary.
type PaymentBreakdownItem struct {
	PaymentID PaymentID
	Method    PaymentMethod
	Amount    AmountCents
	Status    PaymentStatus
	Sequence  int
	Date      time.Time
}

// PaymentSummary aggregates an appointment's payments.
type PaymentSummary struct {
	TotalPaid        AmountCents
	RemainingBalance AmountCents
	IsFullyPaid      bool
	IsSplitPayment   bool
	Breakdown        []PaymentBreakdownItem
}

// GetPaymentSummary aggregates payments known to belong to one appointment.
func GetPaymentSummary(appointmentTotal AmountCents, payments []Payment) PaymentSummary {
	totalPaid := TotalPaid(payments)
	isSplit := len(payments) > 1
	breakdown := make([]PaymentBreakdownItem, 0, len(payments))
	for _, payment := range OrderPayments(payments) {
		if payment.IsPartial() {
			isSplit = true
		}
		sequence, _ := payment.Sequence()
		breakdown = append(breakdown, PaymentBreakdownItem{
			PaymentID: payment.ID(),
			Method:    payment.Method(),
			Amount:    payment.PaidAmount(),
			Status:    payment.Status(),
			Sequence:  sequence,
			Date:      payment.CreatedAt(),
		})
	}
	return PaymentSummary{
		TotalPaid:        totalPaid,
		RemainingBalance: remainingBalance(appointmentTotal, totalPaid),
		IsFullyPaid:      totalPaid >= appointmentTotal,
		IsSplitPayment:   isSplit,
		Breakdown:        breakdown,
	}
}

// OrderPayments returns a copy sorted by ascending sequence, then creation time.
// Payments outside a split group sort as sequence zero.
func OrderPayments(payments []Payment) []Payment {
	ordered := slices.Clone(payments)
	slices.SortStableFunc(ordered, func(left Payment, right Payment) int {
		if bySequence := cmp.Compare(left.sequence, right.sequence); bySequence != 0 {
			return bySequence
		}
		return left.createdAt.Compare(right.createdAt)
	})
	return ordered
}

package ledger

const (
	operationRecordPayment       = "record_payment"
	operationRecordSplitPayments = "record_split_payments"
	operationUpdatePaymentStatus = "update_payment_status"
	operationDeletePayment       = "delete_payment"
	operationPriceAppointment    = "price_appointment"

	operationStatusOK       = "ok"
	operationStatusRejected = "rejected"
	operationStatusError    = "error"

	// Largest integer JSON clients represent exactly.
	maxAmountCents int64 = 1 << 53

	firstPaymentSequence = 1
)

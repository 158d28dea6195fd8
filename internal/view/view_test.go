package view

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/vetpay/pkg/ledger"
	"github.com/stretchr/testify/require"
)

func mustPayment(t *testing.T, grouped bool) ledger.Payment {
	t.Helper()
	paymentID, err := ledger.NewPaymentID("pay-1")
	require.NoError(t, err)
	appointmentID, err := ledger.NewAppointmentID("appt-1")
	require.NoError(t, err)
	params := ledger.PaymentParams{
		ID:            paymentID,
		AppointmentID: appointmentID,
		Method:        ledger.MethodCreditCard,
		Amount:        ledger.AmountCents(15050),
		Status:        ledger.PaymentStatusPaid,
		CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if grouped {
		groupID, err := ledger.NewSplitGroupID("6f1c2a7e-3d4b-4c5a-9e8f-0123456789ab")
		require.NoError(t, err)
		params.SplitGroupID = &groupID
		params.Sequence = 2
		linkage, err := ledger.NewProviderLinkage("stripe", "ch_1", `{"id":"ch_1"}`)
		require.NoError(t, err)
		params.Provider = &linkage
	}
	payment, err := ledger.NewPayment(params)
	require.NoError(t, err)
	return payment
}

func TestNewPaymentRendersWireShape(t *testing.T) {
	raw, err := json.Marshal(NewPayment(mustPayment(t, true)))
	require.NoError(t, err)
	require.JSONEq(t, `{
		"id": "pay-1",
		"appointment_id": "appt-1",
		"payment_method": "credit_card",
		"paid_amount": 150.50,
		"payment_status": "paid",
		"is_partial": false,
		"split_payment_group_id": "6f1c2a7e-3d4b-4c5a-9e8f-0123456789ab",
		"payment_sequence": 2,
		"payment_date": "2026-01-02T03:04:05Z",
		"provider": {"provider_code": "stripe", "transaction_id": "ch_1", "provider_response": {"id": "ch_1"}}
	}`, string(raw))

	plain, err := json.Marshal(NewPayment(mustPayment(t, false)))
	require.NoError(t, err)
	require.NotContains(t, string(plain), "split_payment_group_id")
	require.NotContains(t, string(plain), "provider")
}

func TestNewSummaryUsesCamelCaseTotals(t *testing.T) {
	payment := mustPayment(t, false)
	summary := ledger.GetPaymentSummary(ledger.AmountCents(30000), []ledger.Payment{payment})
	raw, err := json.Marshal(NewSummary(summary))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, 150.5, decoded["totalPaid"])
	require.Equal(t, 149.5, decoded["remainingBalance"])
	require.Equal(t, false, decoded["isFullyPaid"])
	require.Len(t, decoded["paymentBreakdown"], 1)
}

func TestDecodeKeepsAmountsExact(t *testing.T) {
	var request PaymentRequest
	err := Decode([]byte(`{"payment_method":"upi","paid_amount":0.1,"provider_code":"razorpay","transaction_id":"pay_1","provider_response":{"status":"captured"}}`), &request)
	require.NoError(t, err)

	input := request.Input()
	amount, err := ledger.ParseAmount(input.Amount)
	require.NoError(t, err)
	require.Equal(t, ledger.AmountCents(10), amount)
	require.NotNil(t, input.Provider)
	require.JSONEq(t, `{"status":"captured"}`, input.Provider.Response)

	var quoted PaymentRequest
	require.NoError(t, Decode([]byte(`{"payment_method":"cash_at_counter","paid_amount":"20","provider_response":"{\"a\":1}"}`), &quoted))
	require.Nil(t, quoted.Input().Provider)
	require.Equal(t, `{"a":1}`, providerResponseText(quoted.ProviderResponse))

	err = Decode([]byte(`{"payments":`), &SplitRequest{})
	require.ErrorIs(t, err, ErrMalformedBody)
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		kind ErrorKind
		code string
	}{
		{name: "exceeds", err: fmt.Errorf("%w: over", ledger.ErrExceedsBalance), kind: KindInvalid, code: CodeExceedsBalance},
		{name: "wrapped", err: ledger.WrapError("payments", "record", "method", ledger.ErrInvalidMethod), kind: KindInvalid, code: CodeInvalidMethod},
		{name: "not found", err: ledger.ErrPaymentNotFound, kind: KindNotFound, code: CodePaymentNotFound},
		{name: "duplicate", err: ledger.ErrDuplicateProviderTransaction, kind: KindConflict, code: CodeDuplicateTransaction},
		{name: "sequence collision", err: ledger.WrapError("store", "payment", "duplicate", ledger.ErrInvalidSequence), kind: KindConflict, code: CodeSequenceConflict},
		{name: "unknown", err: errors.New("connection reset"), kind: KindInternal, code: CodeInternal},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			classified := Classify(testCase.err)
			require.Equal(t, testCase.kind, classified.Kind)
			require.Equal(t, testCase.code, classified.Code)
			require.Nil(t, classified.Index)
		})
	}

	batch := Classify(ledger.BatchValidationError{Index: 1, Err: ledger.ErrInvalidAmount})
	require.Equal(t, CodeBatchValidationFailed, batch.Code)
	require.NotNil(t, batch.Index)
	require.Equal(t, 1, *batch.Index)

	internal := Classify(errors.New("pq: relation missing"))
	require.NotContains(t, internal.Message, "pq")
}

package gormstore

import (
	"context"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/vetpay/pkg/ledger"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(t.TempDir()+"/payments.db"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(Models()...))
	return New(db)
}

func newTestService(t *testing.T, store ledger.Store) *ledger.Service {
	t.Helper()
	paymentLedger, err := ledger.NewLedger(func() time.Time { return time.Now().UTC() })
	require.NoError(t, err)
	service, err := ledger.NewService(store, paymentLedger)
	require.NoError(t, err)
	return service
}

func pricedAppointment(t *testing.T, service *ledger.Service, rawID string, rawTotal string) ledger.AppointmentID {
	t.Helper()
	appointmentID, err := ledger.NewAppointmentID(rawID)
	require.NoError(t, err)
	total, err := ledger.ParseTotalAmount(rawTotal)
	require.NoError(t, err)
	_, err = service.PriceAppointment(context.Background(), appointmentID, total)
	require.NoError(t, err)
	return appointmentID
}

func TestStoreRoundTripsPayments(t *testing.T) {
	store := openTestStore(t)
	service := newTestService(t, store)
	ctx := context.Background()
	appointmentID := pricedAppointment(t, service, "appt-1", "300")

	recorded, err := service.RecordSplitPayments(ctx, appointmentID, []ledger.PaymentInput{
		{Method: "cash_at_counter", Amount: "100", Notes: "front desk"},
		{Method: "credit_card", Amount: "200", Provider: &ledger.ProviderInput{Code: "stripe", TransactionID: "ch_1", Response: `{"id":"ch_1"}`}},
	})
	require.NoError(t, err)
	require.Len(t, recorded, 2)

	payments, summary, err := service.ListPayments(ctx, appointmentID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	require.Equal(t, ledger.AmountCents(30000), summary.TotalPaid)
	require.True(t, summary.IsFullyPaid)
	require.True(t, summary.IsSplitPayment)
	require.Equal(t, "front desk", payments[0].Notes())
	sequence, grouped := payments[1].Sequence()
	require.True(t, grouped)
	require.Equal(t, 2, sequence)
	linkage, linked := payments[1].Provider()
	require.True(t, linked)
	require.Equal(t, ledger.ProviderStripe, linkage.Code)
	require.JSONEq(t, `{"id":"ch_1"}`, linkage.Response.String())

	appointment, err := store.GetAppointment(ctx, appointmentID)
	require.NoError(t, err)
	require.Equal(t, ledger.AppointmentPaid, appointment.PaymentStatus())
}

func TestStoreRejectedBatchLeavesNoRows(t *testing.T) {
	store := openTestStore(t)
	service := newTestService(t, store)
	ctx := context.Background()
	appointmentID := pricedAppointment(t, service, "appt-2", "300")

	_, err := service.RecordSplitPayments(ctx, appointmentID, []ledger.PaymentInput{
		{Method: "cash_at_counter", Amount: "200"},
		{Method: "credit_card", Amount: "200"},
	})
	require.ErrorIs(t, err, ledger.ErrExceedsBalance)

	payments, err := store.ListPayments(ctx, appointmentID)
	require.NoError(t, err)
	require.Empty(t, payments)
	appointment, err := store.GetAppointment(ctx, appointmentID)
	require.NoError(t, err)
	require.Equal(t, ledger.AppointmentPending, appointment.PaymentStatus())
}

func TestStoreFindsProviderTransaction(t *testing.T) {
	store := openTestStore(t)
	service := newTestService(t, store)
	ctx := context.Background()
	appointmentID := pricedAppointment(t, service, "appt-3", "50")

	payment, _, err := service.RecordPayment(ctx, appointmentID, ledger.PaymentInput{
		Method: "upi", Amount: "25", Provider: &ledger.ProviderInput{Code: "razorpay", TransactionID: "pay_9"},
	})
	require.NoError(t, err)

	transactionID, err := ledger.NewTransactionID("pay_9")
	require.NoError(t, err)
	found, exists, err := store.FindPaymentByProviderTransaction(ctx, ledger.ProviderRazorpay, transactionID)
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, payment.ID(), found.ID())

	linkage, err := ledger.NewProviderLinkage("razorpay", "pay_9", "")
	require.NoError(t, err)
	err = store.InsertProviderTransaction(ctx, payment.ID(), linkage, time.Now())
	require.ErrorIs(t, err, ledger.ErrDuplicateProviderTransaction)

	_, _, err = service.RecordPayment(ctx, appointmentID, ledger.PaymentInput{
		Method: "upi", Amount: "25", Provider: &ledger.ProviderInput{Code: "razorpay", TransactionID: "pay_9"},
	})
	require.ErrorIs(t, err, ledger.ErrDuplicateProviderTransaction)
}

func TestStoreUpdateAndDelete(t *testing.T) {
	store := openTestStore(t)
	service := newTestService(t, store)
	ctx := context.Background()
	appointmentID := pricedAppointment(t, service, "appt-4", "300")

	payment, _, err := service.RecordPayment(ctx, appointmentID, ledger.PaymentInput{
		Method: "credit_card", Amount: "300", Provider: &ledger.ProviderInput{Code: "square", TransactionID: "sq_1"},
	})
	require.NoError(t, err)

	_, err = service.DeletePayment(ctx, appointmentID, payment.ID())
	require.ErrorIs(t, err, ledger.ErrWouldUnpayCompletedAppointment)

	_, status, err := service.UpdatePaymentStatus(ctx, appointmentID, payment.ID(), "cancelled")
	require.NoError(t, err)
	require.Equal(t, ledger.AppointmentPending, status.PaymentStatus)

	status, err = service.DeletePayment(ctx, appointmentID, payment.ID())
	require.NoError(t, err)
	require.Equal(t, ledger.AppointmentPending, status.PaymentStatus)

	payments, err := store.ListPayments(ctx, appointmentID)
	require.NoError(t, err)
	require.Empty(t, payments)
	transactionID, err := ledger.NewTransactionID("sq_1")
	require.NoError(t, err)
	_, exists, err := store.FindPaymentByProviderTransaction(ctx, ledger.ProviderSquare, transactionID)
	require.NoError(t, err)
	require.False(t, exists)

	missing, err := ledger.NewPaymentID("missing")
	require.NoError(t, err)
	err = store.UpdatePaymentStatus(ctx, appointmentID, missing, ledger.PaymentStatusPaid)
	require.ErrorIs(t, err, ledger.ErrPaymentNotFound)
}

func TestStoreUnknownAppointment(t *testing.T) {
	store := openTestStore(t)
	appointmentID, err := ledger.NewAppointmentID("nope")
	require.NoError(t, err)
	_, err = store.GetAppointmentForUpdate(context.Background(), appointmentID)
	require.ErrorIs(t, err, ledger.ErrAppointmentNotFound)
}

func TestStoreSplitGroupSequencesArePerAppointment(t *testing.T) {
	store := openTestStore(t)
	service := newTestService(t, store)
	ctx := context.Background()
	const sharedGroup = "6f1c2a7e-3d4b-4c5a-9e8f-0123456789ab"
	first := pricedAppointment(t, service, "appt-a", "300")
	second := pricedAppointment(t, service, "appt-b", "300")

	for _, appointmentID := range []ledger.AppointmentID{first, second} {
		payment, _, err := service.RecordPayment(ctx, appointmentID, ledger.PaymentInput{
			Method: "upi", Amount: "100", IsPartial: true, SplitGroupID: sharedGroup,
		})
		require.NoError(t, err)
		sequence, grouped := payment.Sequence()
		require.True(t, grouped)
		require.Equal(t, 1, sequence)
	}

	groupID, err := ledger.NewSplitGroupID(sharedGroup)
	require.NoError(t, err)
	paymentID, err := ledger.NewPaymentID("pay-collision")
	require.NoError(t, err)
	collision, err := ledger.NewPayment(ledger.PaymentParams{
		ID:            paymentID,
		AppointmentID: first,
		Method:        ledger.MethodUPI,
		Amount:        100,
		Status:        ledger.PaymentStatusPaid,
		IsPartial:     true,
		SplitGroupID:  &groupID,
		Sequence:      1,
		CreatedAt:     time.Now().UTC(),
	})
	require.NoError(t, err)
	require.ErrorIs(t, store.InsertPayment(ctx, collision), ledger.ErrInvalidSequence)
}

package ledger

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"testing"
	"time"
)

const (
	appointmentIDValue = "appt-1"
	groupIDValue       = "6f1c2a7e-3d4b-4c5a-9e8f-0123456789ab"
)

var fixedTime = time.Date(2024, time.March, 10, 9, 30, 0, 0, time.UTC)

type sequentialIDs struct {
	payments int
	groups   int
}

func (generator *sequentialIDs) NewPaymentID() PaymentID {
	generator.payments++
	return PaymentID{value: fmt.Sprintf("pay-%d", generator.payments)}
}

func (generator *sequentialIDs) NewSplitGroupID() SplitGroupID {
	generator.groups++
	return SplitGroupID{value: fmt.Sprintf("00000000-0000-4000-8000-%012d", generator.groups)}
}

// tickingClock advances one second per call so creation times stay ordered.
func tickingClock() func() time.Time {
	current := fixedTime
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func mustNewLedger(test *testing.T, options ...LedgerOption) *Ledger {
	test.Helper()
	options = append([]LedgerOption{WithIDGenerator(&sequentialIDs{})}, options...)
	paymentLedger, err := NewLedger(tickingClock(), options...)
	if err != nil {
		test.Fatalf("new ledger: %v", err)
	}
	return paymentLedger
}

func mustAppointmentID(test *testing.T, raw string) AppointmentID {
	test.Helper()
	id, err := NewAppointmentID(raw)
	if err != nil {
		test.Fatalf("appointment id: %v", err)
	}
	return id
}

func mustPaymentID(test *testing.T, raw string) PaymentID {
	test.Helper()
	id, err := NewPaymentID(raw)
	if err != nil {
		test.Fatalf("payment id: %v", err)
	}
	return id
}

func mustSplitGroupID(test *testing.T, raw string) SplitGroupID {
	test.Helper()
	id, err := NewSplitGroupID(raw)
	if err != nil {
		test.Fatalf("split group id: %v", err)
	}
	return id
}

func mustTotal(test *testing.T, raw string) AmountCents {
	test.Helper()
	total, err := ParseTotalAmount(raw)
	if err != nil {
		test.Fatalf("total amount: %v", err)
	}
	return total
}

func mustAppointment(test *testing.T, total string) Appointment {
	test.Helper()
	appointment, err := NewAppointment(mustAppointmentID(test, appointmentIDValue), mustTotal(test, total), AppointmentPending)
	if err != nil {
		test.Fatalf("appointment: %v", err)
	}
	return appointment
}

func mustPayment(test *testing.T, id string, amount string, status PaymentStatus) Payment {
	test.Helper()
	parsed, err := ParseAmount(amount)
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	payment, err := NewPayment(PaymentParams{
		ID:            mustPaymentID(test, id),
		AppointmentID: mustAppointmentID(test, appointmentIDValue),
		Method:        MethodCreditCard,
		Amount:        parsed,
		Status:        status,
		CreatedAt:     fixedTime,
	})
	if err != nil {
		test.Fatalf("payment: %v", err)
	}
	return payment
}

type stubStore struct {
	appointments map[AppointmentID]Appointment
	payments     []Payment
	transactions map[string]PaymentID
	statusWrites int
	calls        []string

	getAppointmentError error
	listPaymentsError   error
	insertPaymentError  error
	insertPaymentAfter  int
	insertTxError       error
	updateStatusError   error
	deletePaymentError  error
}

func newStubStore(test *testing.T, appointment Appointment) *stubStore {
	test.Helper()
	return &stubStore{
		appointments: map[AppointmentID]Appointment{appointment.ID(): appointment},
		transactions: map[string]PaymentID{},
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	appointments := maps.Clone(store.appointments)
	payments := slices.Clone(store.payments)
	transactions := maps.Clone(store.transactions)
	statusWrites := store.statusWrites
	if err := fn(ctx, store); err != nil {
		store.appointments = appointments
		store.payments = payments
		store.transactions = transactions
		store.statusWrites = statusWrites
		return err
	}
	return nil
}

func (store *stubStore) UpsertAppointment(_ context.Context, appointment Appointment) error {
	store.appointments[appointment.ID()] = appointment
	return nil
}

func (store *stubStore) GetAppointment(_ context.Context, appointmentID AppointmentID) (Appointment, error) {
	if store.getAppointmentError != nil {
		return Appointment{}, store.getAppointmentError
	}
	appointment, ok := store.appointments[appointmentID]
	if !ok {
		return Appointment{}, ErrAppointmentNotFound
	}
	return appointment, nil
}

func (store *stubStore) GetAppointmentForUpdate(ctx context.Context, appointmentID AppointmentID) (Appointment, error) {
	store.calls = append(store.calls, "lock")
	return store.GetAppointment(ctx, appointmentID)
}

func (store *stubStore) UpdateAppointmentPaymentStatus(_ context.Context, appointmentID AppointmentID, update AppointmentStatusUpdate) error {
	if store.updateStatusError != nil {
		return store.updateStatusError
	}
	appointment, ok := store.appointments[appointmentID]
	if !ok {
		return ErrAppointmentNotFound
	}
	appointment.status = update.PaymentStatus
	store.appointments[appointmentID] = appointment
	store.statusWrites++
	return nil
}

func (store *stubStore) ListPayments(_ context.Context, appointmentID AppointmentID) ([]Payment, error) {
	store.calls = append(store.calls, "list")
	if store.listPaymentsError != nil {
		return nil, store.listPaymentsError
	}
	var payments []Payment
	for _, payment := range store.payments {
		if payment.AppointmentID() == appointmentID {
			payments = append(payments, payment)
		}
	}
	return payments, nil
}

func (store *stubStore) FindPaymentByProviderTransaction(_ context.Context, code ProviderCode, transactionID TransactionID) (Payment, bool, error) {
	paymentID, ok := store.transactions[code.String()+":"+transactionID.String()]
	if !ok {
		return Payment{}, false, nil
	}
	for _, payment := range store.payments {
		if payment.ID() == paymentID {
			return payment, true, nil
		}
	}
	return Payment{}, false, nil
}

func (store *stubStore) InsertPayment(_ context.Context, payment Payment) error {
	if store.insertPaymentError != nil && len(store.payments) >= store.insertPaymentAfter {
		return store.insertPaymentError
	}
	store.payments = append(store.payments, payment)
	return nil
}

func (store *stubStore) InsertProviderTransaction(_ context.Context, paymentID PaymentID, linkage ProviderLinkage, _ time.Time) error {
	if store.insertTxError != nil {
		return store.insertTxError
	}
	store.transactions[linkage.Code.String()+":"+linkage.TransactionID.String()] = paymentID
	return nil
}

func (store *stubStore) UpdatePaymentStatus(_ context.Context, appointmentID AppointmentID, paymentID PaymentID, status PaymentStatus) error {
	for index, payment := range store.payments {
		if payment.ID() == paymentID && payment.AppointmentID() == appointmentID {
			store.payments[index] = payment.WithStatus(status)
			return nil
		}
	}
	return ErrPaymentNotFound
}

func (store *stubStore) DeletePayment(_ context.Context, appointmentID AppointmentID, paymentID PaymentID) error {
	if store.deletePaymentError != nil {
		return store.deletePaymentError
	}
	for index, payment := range store.payments {
		if payment.ID() == paymentID && payment.AppointmentID() == appointmentID {
			store.payments = slices.Delete(store.payments, index, index+1)
			maps.DeleteFunc(store.transactions, func(_ string, linked PaymentID) bool {
				return linked == paymentID
			})
			return nil
		}
	}
	return ErrPaymentNotFound
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, mustNewLedger(test), options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	UpsertAppointment(ctx context.Context, appointment Appointment) error
	GetAppointment(ctx context.Context, appointmentID AppointmentID) (Appointment, error)
	// GetAppointmentForUpdate locks the appointment row until the transaction ends.
	GetAppointmentForUpdate(ctx context.Context, appointmentID AppointmentID) (Appointment, error)
	UpdateAppointmentPaymentStatus(ctx context.Context, appointmentID AppointmentID, update AppointmentStatusUpdate) error
	ListPayments(ctx context.Context, appointmentID AppointmentID) ([]Payment, error)
	FindPaymentByProviderTransaction(ctx context.Context, code ProviderCode, transactionID TransactionID) (Payment, bool, error)
	InsertPayment(ctx context.Context, payment Payment) error
	InsertProviderTransaction(ctx context.Context, paymentID PaymentID, linkage ProviderLinkage, createdAt time.Time) error
	UpdatePaymentStatus(ctx context.Context, appointmentID AppointmentID, paymentID PaymentID, status PaymentStatus) error
	DeletePayment(ctx context.Context, appointmentID AppointmentID, paymentID PaymentID) error
}

// Service applies Ledger decisions to a Store, one transaction per operation.
type Service struct {
	store  Store
	ledger *Ledger
	logger OperationLogger
}

// NewService wires a Service.
func NewService(store Store, paymentLedger *Ledger, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if paymentLedger == nil {
		return nil, fmt.Errorf("%w: ledger dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, ledger: paymentLedger}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// PriceAppointment registers an appointment total. Once payments exist the total is fixed.
func (service *Service) PriceAppointment(ctx context.Context, appointmentID AppointmentID, total AmountCents) (Appointment, error) {
	var priced Appointment
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		current, err := transactionStore.GetAppointmentForUpdate(ctx, appointmentID)
		exists := err == nil
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return err
		}
		// Listed under the row lock.
		payments, err := transactionStore.ListPayments(ctx, appointmentID)
		if err != nil {
			return err
		}
		if len(payments) > 0 && (!exists || current.TotalAmount() != total) {
			return fmt.Errorf("%w: total is fixed once payments exist", ErrInvalidTotalAmount)
		}
		status := StatusUpdateFor(total, payments)
		appointment, err := NewAppointment(appointmentID, total, status.PaymentStatus)
		if err != nil {
			return err
		}
		if err := transactionStore.UpsertAppointment(ctx, appointment); err != nil {
			return err
		}
		priced = appointment
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:         operationPriceAppointment,
		AppointmentID:     appointmentID,
		Amount:            total,
		AppointmentStatus: priced.PaymentStatus(),
		Error:             operationError,
	})
	if operationError != nil {
		return Appointment{}, operationError
	}
	return priced, nil
}

// RecordPayment records one payment against an appointment.
func (service *Service) RecordPayment(ctx context.Context, appointmentID AppointmentID, input PaymentInput) (Payment, AppointmentStatusUpdate, error) {
	var recorded RecordedPayment
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		appointment, err := transactionStore.GetAppointmentForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		if err := rejectDuplicateTransaction(ctx, transactionStore, input.Provider, nil); err != nil {
			return err
		}
		existing, err := transactionStore.ListPayments(ctx, appointmentID)
		if err != nil {
			return err
		}
		payment, status, err := service.ledger.RecordPayment(appointment, existing, input)
		if err != nil {
			return err
		}
		if err := persistPayment(ctx, transactionStore, payment); err != nil {
			return err
		}
		if err := transactionStore.UpdateAppointmentPaymentStatus(ctx, appointmentID, status); err != nil {
			return err
		}
		recorded = RecordedPayment{Payment: payment, Status: status}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:         operationRecordPayment,
		AppointmentID:     appointmentID,
		PaymentIDs:        paymentIDs(recorded),
		Amount:            recorded.Payment.PaidAmount(),
		AppointmentStatus: recorded.Status.PaymentStatus,
		Error:             operationError,
	})
	if operationError != nil {
		return Payment{}, AppointmentStatusUpdate{}, operationError
	}
	return recorded.Payment, recorded.Status, nil
}

// RecordSplitPayments records a batch atomically: either every item is stored or none is.
func (service *Service) RecordSplitPayments(ctx context.Context, appointmentID AppointmentID, inputs []PaymentInput) ([]RecordedPayment, error) {
	var recorded []RecordedPayment
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		appointment, err := transactionStore.GetAppointmentForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		seen := make(map[string]struct{}, len(inputs))
		for index, input := range inputs {
			if err := rejectDuplicateTransaction(ctx, transactionStore, input.Provider, seen); err != nil {
				return BatchValidationError{Index: index, Err: err}
			}
		}
		existing, err := transactionStore.ListPayments(ctx, appointmentID)
		if err != nil {
			return err
		}
		batch, err := service.ledger.RecordSplitPayments(appointment, existing, inputs)
		if err != nil {
			return err
		}
		for _, item := range batch {
			if err := persistPayment(ctx, transactionStore, item.Payment); err != nil {
				return err
			}
		}
		if err := transactionStore.UpdateAppointmentPaymentStatus(ctx, appointmentID, batch[len(batch)-1].Status); err != nil {
			return err
		}
		recorded = batch
		return nil
	})
	logEntry := OperationLog{
		Operation:     operationRecordSplitPayments,
		AppointmentID: appointmentID,
		PaymentIDs:    paymentIDs(recorded...),
		Error:         operationError,
	}
	for _, item := range recorded {
		logEntry.Amount += item.Payment.PaidAmount()
		logEntry.AppointmentStatus = item.Status.PaymentStatus
	}
	service.logOperation(ctx, logEntry)
	if operationError != nil {
		return nil, operationError
	}
	return recorded, nil
}

// UpdatePaymentStatus changes one payment's status and re-derives the appointment status.
func (service *Service) UpdatePaymentStatus(ctx context.Context, appointmentID AppointmentID, paymentID PaymentID, rawStatus string) (Payment, AppointmentStatusUpdate, error) {
	var (
		updated Payment
		status  AppointmentStatusUpdate
	)
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := ParsePaymentStatus(rawStatus); err != nil {
			return err
		}
		appointment, err := transactionStore.GetAppointmentForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		payments, err := transactionStore.ListPayments(ctx, appointmentID)
		if err != nil {
			return err
		}
		target, others, found := partitionPayments(payments, paymentID)
		if !found {
			return ErrPaymentNotFound
		}
		updated, status, err = service.ledger.UpdatePaymentStatus(target, others, appointment.TotalAmount(), rawStatus)
		if err != nil {
			return err
		}
		if err := transactionStore.UpdatePaymentStatus(ctx, appointmentID, paymentID, updated.Status()); err != nil {
			return err
		}
		return transactionStore.UpdateAppointmentPaymentStatus(ctx, appointmentID, status)
	})
	service.logOperation(ctx, OperationLog{
		Operation:         operationUpdatePaymentStatus,
		AppointmentID:     appointmentID,
		PaymentIDs:        []PaymentID{paymentID},
		Amount:            updated.PaidAmount(),
		AppointmentStatus: status.PaymentStatus,
		Error:             operationError,
	})
	if operationError != nil {
		return Payment{}, AppointmentStatusUpdate{}, operationError
	}
	return updated, status, nil
}

// DeletePayment removes a payment and its provider audit rows unless the delete guard refuses.
func (service *Service) DeletePayment(ctx context.Context, appointmentID AppointmentID, paymentID PaymentID) (AppointmentStatusUpdate, error) {
	var (
		status  AppointmentStatusUpdate
		removed Payment
	)
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		appointment, err := transactionStore.GetAppointmentForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		payments, err := transactionStore.ListPayments(ctx, appointmentID)
		if err != nil {
			return err
		}
		target, remaining, found := partitionPayments(payments, paymentID)
		if !found {
			return ErrPaymentNotFound
		}
		removed = target
		status, err = service.ledger.DeletePayment(target, remaining, appointment.TotalAmount())
		if err != nil {
			return err
		}
		if err := transactionStore.DeletePayment(ctx, appointmentID, paymentID); err != nil {
			return err
		}
		return transactionStore.UpdateAppointmentPaymentStatus(ctx, appointmentID, status)
	})
	service.logOperation(ctx, OperationLog{
		Operation:         operationDeletePayment,
		AppointmentID:     appointmentID,
		PaymentIDs:        []PaymentID{paymentID},
		Amount:            removed.PaidAmount(),
		AppointmentStatus: status.PaymentStatus,
		Error:             operationError,
	})
	if operationError != nil {
		return AppointmentStatusUpdate{}, operationError
	}
	return status, nil
}

// ListPayments returns an appointment's payments in display order with their summary.
func (service *Service) ListPayments(ctx context.Context, appointmentID AppointmentID) ([]Payment, PaymentSummary, error) {
	appointment, err := service.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, PaymentSummary{}, err
	}
	payments, err := service.store.ListPayments(ctx, appointmentID)
	if err != nil {
		return nil, PaymentSummary{}, err
	}
	return OrderPayments(payments), GetPaymentSummary(appointment.TotalAmount(), payments), nil
}

// PaymentSummary returns the summary of an appointment that has at least one payment.
func (service *Service) PaymentSummary(ctx context.Context, appointmentID AppointmentID) (PaymentSummary, []Payment, error) {
	payments, summary, err := service.ListPayments(ctx, appointmentID)
	if err != nil {
		return PaymentSummary{}, nil, err
	}
	if len(payments) == 0 {
		return PaymentSummary{}, nil, ErrNoPayments
	}
	return summary, payments, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		switch {
		case entry.Error == nil:
			entry.Status = operationStatusOK
		case IsRejection(entry.Error):
			entry.Status = operationStatusRejected
		default:
			entry.Status = operationStatusError
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func persistPayment(ctx context.Context, transactionStore Store, payment Payment) error {
	if err := transactionStore.InsertPayment(ctx, payment); err != nil {
		return err
	}
	linkage, linked := payment.Provider()
	if !linked {
		return nil
	}
	return transactionStore.InsertProviderTransaction(ctx, payment.ID(), linkage, payment.CreatedAt())
}

// rejectDuplicateTransaction refuses provider transaction ids that were already
// recorded. Malformed provider fields are left for the ledger to reject.
func rejectDuplicateTransaction(ctx context.Context, transactionStore Store, provider *ProviderInput, seen map[string]struct{}) error {
	if provider == nil {
		return nil
	}
	code, err := ParseProviderCode(provider.Code)
	if err != nil {
		return nil
	}
	transactionID, err := NewTransactionID(provider.TransactionID)
	if err != nil {
		return nil
	}
	if seen != nil {
		key := code.String() + ":" + transactionID.String()
		if _, duplicate := seen[key]; duplicate {
			return fmt.Errorf("%w: %s", ErrDuplicateProviderTransaction, key)
		}
		seen[key] = struct{}{}
	}
	_, exists, err := transactionStore.FindPaymentByProviderTransaction(ctx, code, transactionID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s:%s", ErrDuplicateProviderTransaction, code, transactionID)
	}
	return nil
}

func partitionPayments(payments []Payment, paymentID PaymentID) (Payment, []Payment, bool) {
	var (
		target Payment
		found  bool
	)
	others := make([]Payment, 0, len(payments))
	for _, payment := range payments {
		if payment.ID() == paymentID {
			target = payment
			found = true
			continue
		}
		others = append(others, payment)
	}
	return target, others, found
}

func paymentIDs(recorded ...RecordedPayment) []PaymentID {
	ids := make([]PaymentID, 0, len(recorded))
	for _, item := range recorded {
		if item.Payment.ID().String() == "" {
			continue
		}
		ids = append(ids, item.Payment.ID())
	}
	return ids
}

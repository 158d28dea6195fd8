package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/vetpay/pkg/ledger"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	constraintProviderTransaction = "uniq_provider_transaction"
	defaultProviderResponseJSON   = "{}"
	pgUniqueViolationCode         = "23505"
	sqliteConstraintCode          = 19
	errorOperationStore           = "store"
	errorSubjectAppointment       = "appointment"
	errorSubjectPayment           = "payment"
	errorSubjectProviderTx        = "provider_transaction"
	errorCodeDelete               = "delete"
	errorCodeDuplicate            = "duplicate"
	errorCodeGet                  = "get"
	errorCodeInsert               = "insert"
	errorCodeInvalid              = "invalid"
	errorCodeList                 = "list"
	errorCodeLookup               = "lookup"
	errorCodeUpdateStatus         = "update_status"
	errorCodeUpsert               = "upsert"
)

var _ ledger.Store = (*Store)(nil)

// Store implements ledger.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) UpsertAppointment(ctx context.Context, appointment ledger.Appointment) error {
	model := Appointment{
		AppointmentID:    appointment.ID().String(),
		TotalAmountCents: appointment.TotalAmount().Int64(),
		PaymentStatus:    appointment.PaymentStatus().String(),
		UpdatedAt:        time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"total_amount_cents", "payment_status", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectAppointment, errorCodeUpsert, err)
	}
	return nil
}

func (store *Store) GetAppointment(ctx context.Context, appointmentID ledger.AppointmentID) (ledger.Appointment, error) {
	return store.getAppointment(store.db.WithContext(ctx), appointmentID)
}

func (store *Store) GetAppointmentForUpdate(ctx context.Context, appointmentID ledger.AppointmentID) (ledger.Appointment, error) {
	return store.getAppointment(store.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), appointmentID)
}

func (store *Store) getAppointment(query *gorm.DB, appointmentID ledger.AppointmentID) (ledger.Appointment, error) {
	var model Appointment
	err := query.Where("id = ?", appointmentID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Appointment{}, wrapStoreError(errorSubjectAppointment, errorCodeGet, ledger.ErrAppointmentNotFound)
		}
		return ledger.Appointment{}, wrapStoreError(errorSubjectAppointment, errorCodeGet, err)
	}
	appointment, err := mapAppointment(model)
	if err != nil {
		return ledger.Appointment{}, wrapStoreError(errorSubjectAppointment, errorCodeInvalid, err)
	}
	return appointment, nil
}

func (store *Store) UpdateAppointmentPaymentStatus(ctx context.Context, appointmentID ledger.AppointmentID, update ledger.AppointmentStatusUpdate) error {
	result := store.db.WithContext(ctx).
		Model(&Appointment{}).
		Where("id = ?", appointmentID.String()).
		Updates(map[string]any{
			"payment_status": update.PaymentStatus.String(),
			"updated_at":     time.Now().UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAppointment, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAppointment, errorCodeUpdateStatus, ledger.ErrAppointmentNotFound)
	}
	return nil
}

func (store *Store) ListPayments(ctx context.Context, appointmentID ledger.AppointmentID) ([]ledger.Payment, error) {
	var rows []AppointmentPayment
	err := store.db.WithContext(ctx).
		Where("appointment_id = ?", appointmentID.String()).
		Order("payment_date ASC").
		Order("payment_sequence ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectPayment, errorCodeList, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	paymentIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		paymentIDs = append(paymentIDs, row.PaymentID)
	}
	var transactions []PaymentProviderTransaction
	err = store.db.WithContext(ctx).
		Where("payment_id IN ?", paymentIDs).
		Order("created_at ASC").
		Find(&transactions).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectProviderTx, errorCodeList, err)
	}
	linkages := make(map[string]PaymentProviderTransaction, len(transactions))
	for _, transaction := range transactions {
		if _, seen := linkages[transaction.PaymentID]; !seen {
			linkages[transaction.PaymentID] = transaction
		}
	}

	payments := make([]ledger.Payment, 0, len(rows))
	for _, row := range rows {
		var linkage *PaymentProviderTransaction
		if transaction, ok := linkages[row.PaymentID]; ok {
			linkage = &transaction
		}
		payment, err := mapPayment(row, linkage)
		if err != nil {
			return nil, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
		}
		payments = append(payments, payment)
	}
	return payments, nil
}

func (store *Store) FindPaymentByProviderTransaction(ctx context.Context, code ledger.ProviderCode, transactionID ledger.TransactionID) (ledger.Payment, bool, error) {
	var transaction PaymentProviderTransaction
	err := store.db.WithContext(ctx).
		Where("provider_code = ? AND transaction_id = ?", code.String(), transactionID.String()).
		Take(&transaction).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Payment{}, false, nil
	}
	if err != nil {
		return ledger.Payment{}, false, wrapStoreError(errorSubjectProviderTx, errorCodeLookup, err)
	}
	var row AppointmentPayment
	err = store.db.WithContext(ctx).Where("id = ?", transaction.PaymentID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Payment{}, false, nil
	}
	if err != nil {
		return ledger.Payment{}, false, wrapStoreError(errorSubjectPayment, errorCodeLookup, err)
	}
	payment, err := mapPayment(row, &transaction)
	if err != nil {
		return ledger.Payment{}, false, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	return payment, true, nil
}

func (store *Store) InsertPayment(ctx context.Context, payment ledger.Payment) error {
	row := AppointmentPayment{
		PaymentID:       payment.ID().String(),
		AppointmentID:   payment.AppointmentID().String(),
		PaymentMethod:   payment.Method().String(),
		PaidAmountCents: payment.PaidAmount().Int64(),
		PaymentStatus:   payment.Status().String(),
		IsPartial:       payment.IsPartial(),
		Notes:           payment.Notes(),
		PaymentDate:     payment.CreatedAt(),
	}
	if groupID, grouped := payment.SplitGroupID(); grouped {
		value := groupID.String()
		row.SplitPaymentGroupID = &value
		sequence, _ := payment.Sequence()
		row.PaymentSequence = &sequence
	}
	if row.PaymentDate.IsZero() {
		row.PaymentDate = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err, "") {
		return wrapStoreError(errorSubjectPayment, errorCodeDuplicate, ledger.ErrInvalidSequence)
	}
	if err != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) InsertProviderTransaction(ctx context.Context, paymentID ledger.PaymentID, linkage ledger.ProviderLinkage, createdAt time.Time) error {
	row := PaymentProviderTransaction{
		PaymentID:        paymentID.String(),
		ProviderCode:     linkage.Code.String(),
		TransactionID:    linkage.TransactionID.String(),
		ProviderResponse: datatypesJSON(linkage.Response.String()),
		CreatedAt:        createdAt.UTC(),
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err, constraintProviderTransaction) {
		return wrapStoreError(errorSubjectProviderTx, errorCodeDuplicate, ledger.ErrDuplicateProviderTransaction)
	}
	if err != nil {
		return wrapStoreError(errorSubjectProviderTx, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) UpdatePaymentStatus(ctx context.Context, appointmentID ledger.AppointmentID, paymentID ledger.PaymentID, status ledger.PaymentStatus) error {
	result := store.db.WithContext(ctx).
		Model(&AppointmentPayment{}).
		Where("id = ? AND appointment_id = ?", paymentID.String(), appointmentID.String()).
		Update("payment_status", status.String())
	if result.Error != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdateStatus, ledger.ErrPaymentNotFound)
	}
	return nil
}

func (store *Store) DeletePayment(ctx context.Context, appointmentID ledger.AppointmentID, paymentID ledger.PaymentID) error {
	err := store.db.WithContext(ctx).
		Where("payment_id = ?", paymentID.String()).
		Delete(&PaymentProviderTransaction{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectProviderTx, errorCodeDelete, err)
	}
	result := store.db.WithContext(ctx).
		Where("id = ? AND appointment_id = ?", paymentID.String(), appointmentID.String()).
		Delete(&AppointmentPayment{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectPayment, errorCodeDelete, ledger.ErrPaymentNotFound)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func mapAppointment(model Appointment) (ledger.Appointment, error) {
	appointmentID, err := ledger.NewAppointmentID(model.AppointmentID)
	if err != nil {
		return ledger.Appointment{}, err
	}
	total, err := ledger.NewAmountCents(model.TotalAmountCents)
	if err != nil {
		return ledger.Appointment{}, err
	}
	status, err := ledger.ParseAppointmentPaymentStatus(model.PaymentStatus)
	if err != nil {
		return ledger.Appointment{}, err
	}
	return ledger.NewAppointment(appointmentID, total, status)
}

func mapPayment(row AppointmentPayment, transaction *PaymentProviderTransaction) (ledger.Payment, error) {
	paymentID, err := ledger.NewPaymentID(row.PaymentID)
	if err != nil {
		return ledger.Payment{}, err
	}
	appointmentID, err := ledger.NewAppointmentID(row.AppointmentID)
	if err != nil {
		return ledger.Payment{}, err
	}
	method, err := ledger.ParsePaymentMethod(row.PaymentMethod)
	if err != nil {
		return ledger.Payment{}, err
	}
	amount, err := ledger.NewPaymentAmountCents(row.PaidAmountCents)
	if err != nil {
		return ledger.Payment{}, err
	}
	status, err := ledger.ParsePaymentStatus(row.PaymentStatus)
	if err != nil {
		return ledger.Payment{}, err
	}
	params := ledger.PaymentParams{
		ID:            paymentID,
		AppointmentID: appointmentID,
		Method:        method,
		Amount:        amount,
		Status:        status,
		IsPartial:     row.IsPartial,
		Notes:         row.Notes,
		CreatedAt:     row.PaymentDate,
	}
	if row.SplitPaymentGroupID != nil {
		groupID, err := ledger.NewSplitGroupID(*row.SplitPaymentGroupID)
		if err != nil {
			return ledger.Payment{}, err
		}
		params.SplitGroupID = &groupID
		if row.PaymentSequence != nil {
			params.Sequence = *row.PaymentSequence
		}
	}
	if transaction != nil {
		linkage, err := ledger.NewProviderLinkage(transaction.ProviderCode, transaction.TransactionID, string(transaction.ProviderResponse))
		if err != nil {
			return ledger.Payment{}, err
		}
		params.Provider = &linkage
	}
	return ledger.NewPayment(params)
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultProviderResponseJSON))
	}
	return datatypes.JSON([]byte(raw))
}

// isUniqueViolation reports unique constraint failures. An empty constraint
// matches any unique violation; SQLite does not report constraint names.
func isUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && (constraint == "" || pgErr.ConstraintName == constraint)
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}

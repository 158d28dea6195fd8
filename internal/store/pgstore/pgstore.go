package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/vetpay/pkg/ledger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	constraintProviderTransaction = "uniq_provider_transaction"
	constraintGroupSequence       = "uniq_payments_group_sequence"
	pgUniqueViolationCode         = "23505"
	errorOperationStore           = "store"
	errorSubjectAppointment       = "appointment"
	errorSubjectPayment           = "payment"
	errorSubjectProviderTx        = "provider_transaction"
	errorSubjectSchema            = "schema"
	errorSubjectTransaction       = "transaction"
	errorCodeBegin                = "begin"
	errorCodeCommit               = "commit"
	errorCodeDelete               = "delete"
	errorCodeDuplicate            = "duplicate"
	errorCodeEnsure               = "ensure"
	errorCodeGet                  = "get"
	errorCodeInsert               = "insert"
	errorCodeInvalid              = "invalid"
	errorCodeList                 = "list"
	errorCodeLookup               = "lookup"
	errorCodeUpdateStatus         = "update_status"
	errorCodeUpsert               = "upsert"

	sqlEnsureSchema = `
		create table if not exists appointments (
			id text primary key,
			total_amount_cents bigint not null check (total_amount_cents >= 0),
			payment_status text not null default 'pending',
			updated_at timestamptz not null default now()
		);
		create table if not exists appointment_payments (
			id text primary key,
			appointment_id text not null references appointments(id),
			payment_method text not null,
			paid_amount_cents bigint not null check (paid_amount_cents > 0),
			payment_status text not null,
			is_partial boolean not null default false,
			split_payment_group_id text,
			payment_sequence integer,
			notes text not null default '',
			payment_date timestamptz not null,
			constraint uniq_payments_group_sequence unique (appointment_id, split_payment_group_id, payment_sequence)
		);
		create index if not exists idx_payments_appointment_date on appointment_payments(appointment_id, payment_date);
		create table if not exists payment_provider_transactions (
			id uuid primary key default gen_random_uuid(),
			payment_id text not null references appointment_payments(id) on delete cascade,
			provider_code text not null,
			transaction_id text not null,
			provider_response jsonb not null default '{}'::jsonb,
			created_at timestamptz not null default now(),
			constraint uniq_provider_transaction unique (provider_code, transaction_id)
		);
		create index if not exists idx_provider_transactions_payment on payment_provider_transactions(payment_id);
	`

	sqlUpsertAppointment = `
		insert into appointments(id, total_amount_cents, payment_status, updated_at)
		values ($1, $2, $3, now())
		on conflict (id) do update set
			total_amount_cents = excluded.total_amount_cents,
			payment_status = excluded.payment_status,
			updated_at = now()
	`

	sqlSelectAppointment = `
		select id, total_amount_cents, payment_status
		from appointments
		where id = $1
	`

	sqlSelectAppointmentForUpdate = sqlSelectAppointment + ` for update`

	sqlUpdateAppointmentStatus = `
		update appointments
		set payment_status = $2, updated_at = now()
		where id = $1
	`

	sqlListPayments = `
		select
			p.id, p.appointment_id, p.payment_method, p.paid_amount_cents, p.payment_status,
			p.is_partial, coalesce(p.split_payment_group_id, ''), coalesce(p.payment_sequence, 0),
			p.notes, p.payment_date,
			coalesce(t.provider_code, ''), coalesce(t.transaction_id, ''), coalesce(t.provider_response::text, '')
		from appointment_payments p
		left join lateral (
			select provider_code, transaction_id, provider_response
			from payment_provider_transactions
			where payment_id = p.id
			order by created_at
			limit 1
		) t on true
		where p.appointment_id = $1
		order by p.payment_date asc, p.payment_sequence asc nulls first
	`

	sqlSelectPaymentByTransaction = `
		select
			p.id, p.appointment_id, p.payment_method, p.paid_amount_cents, p.payment_status,
			p.is_partial, coalesce(p.split_payment_group_id, ''), coalesce(p.payment_sequence, 0),
			p.notes, p.payment_date,
			t.provider_code, t.transaction_id, t.provider_response::text
		from payment_provider_transactions t
		join appointment_payments p on p.id = t.payment_id
		where t.provider_code = $1 and t.transaction_id = $2
	`

	sqlInsertPayment = `
		insert into appointment_payments(
			id, appointment_id, payment_method, paid_amount_cents, payment_status,
			is_partial, split_payment_group_id, payment_sequence, notes, payment_date
		)
		values ($1, $2, $3, $4, $5, $6, nullif($7, ''), nullif($8, 0), $9, $10)
	`

	sqlInsertProviderTransaction = `
		insert into payment_provider_transactions(payment_id, provider_code, transaction_id, provider_response, created_at)
		values ($1, $2, $3, coalesce(nullif($4, ''), '{}')::jsonb, $5)
	`

	sqlUpdatePaymentStatus = `
		update appointment_payments
		set payment_status = $3
		where id = $1 and appointment_id = $2
	`

	sqlDeleteProviderTransactions = `
		delete from payment_provider_transactions where payment_id = $1
	`

	sqlDeletePayment = `
		delete from appointment_payments where id = $1 and appointment_id = $2
	`
)

// querier is the subset shared by pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

var (
	_ ledger.Store = (*Store)(nil)
	_ ledger.Store = (*TxStore)(nil)
)

// Store implements ledger.Store using a pgx connection pool (autocommit).
type Store struct {
	queries
	pool *pgxpool.Pool
}

// TxStore implements ledger.Store for an active transaction.
type TxStore struct {
	queries
	tx pgx.Tx
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{db: pool}, pool: pool}
}

// EnsureSchema creates the payment tables when they are missing.
func (store *Store) EnsureSchema(ctx context.Context) error {
	if _, err := store.pool.Exec(ctx, sqlEnsureSchema); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeEnsure, err)
	}
	return nil
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, err)
	}
	transactionStore := &TxStore{queries: queries{db: tx}, tx: tx}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return fn(ctx, store)
}

type queries struct {
	db querier
}

func (store queries) UpsertAppointment(ctx context.Context, appointment ledger.Appointment) error {
	_, err := store.db.Exec(ctx, sqlUpsertAppointment,
		appointment.ID().String(),
		appointment.TotalAmount().Int64(),
		appointment.PaymentStatus().String(),
	)
	if err != nil {
		return wrapStoreError(errorSubjectAppointment, errorCodeUpsert, err)
	}
	return nil
}

func (store queries) GetAppointment(ctx context.Context, appointmentID ledger.AppointmentID) (ledger.Appointment, error) {
	return store.getAppointment(ctx, sqlSelectAppointment, appointmentID)
}

func (store queries) GetAppointmentForUpdate(ctx context.Context, appointmentID ledger.AppointmentID) (ledger.Appointment, error) {
	return store.getAppointment(ctx, sqlSelectAppointmentForUpdate, appointmentID)
}

func (store queries) getAppointment(ctx context.Context, query string, appointmentID ledger.AppointmentID) (ledger.Appointment, error) {
	var (
		idValue     string
		totalValue  int64
		statusValue string
	)
	err := store.db.QueryRow(ctx, query, appointmentID.String()).Scan(&idValue, &totalValue, &statusValue)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Appointment{}, wrapStoreError(errorSubjectAppointment, errorCodeGet, ledger.ErrAppointmentNotFound)
		}
		return ledger.Appointment{}, wrapStoreError(errorSubjectAppointment, errorCodeGet, err)
	}
	parsedID, err := ledger.NewAppointmentID(idValue)
	if err != nil {
		return ledger.Appointment{}, wrapStoreError(errorSubjectAppointment, errorCodeInvalid, err)
	}
	total, err := ledger.NewAmountCents(totalValue)
	if err != nil {
		return ledger.Appointment{}, wrapStoreError(errorSubjectAppointment, errorCodeInvalid, err)
	}
	status, err := ledger.ParseAppointmentPaymentStatus(statusValue)
	if err != nil {
		return ledger.Appointment{}, wrapStoreError(errorSubjectAppointment, errorCodeInvalid, err)
	}
	appointment, err := ledger.NewAppointment(parsedID, total, status)
	if err != nil {
		return ledger.Appointment{}, wrapStoreError(errorSubjectAppointment, errorCodeInvalid, err)
	}
	return appointment, nil
}

func (store queries) UpdateAppointmentPaymentStatus(ctx context.Context, appointmentID ledger.AppointmentID, update ledger.AppointmentStatusUpdate) error {
	tag, err := store.db.Exec(ctx, sqlUpdateAppointmentStatus, appointmentID.String(), update.PaymentStatus.String())
	if err != nil {
		return wrapStoreError(errorSubjectAppointment, errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectAppointment, errorCodeUpdateStatus, ledger.ErrAppointmentNotFound)
	}
	return nil
}

func (store queries) ListPayments(ctx context.Context, appointmentID ledger.AppointmentID) ([]ledger.Payment, error) {
	rows, err := store.db.Query(ctx, sqlListPayments, appointmentID.String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectPayment, errorCodeList, err)
	}
	defer rows.Close()
	payments, err := scanPayments(rows)
	if err != nil {
		return nil, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	return payments, nil
}

func (store queries) FindPaymentByProviderTransaction(ctx context.Context, code ledger.ProviderCode, transactionID ledger.TransactionID) (ledger.Payment, bool, error) {
	rows, err := store.db.Query(ctx, sqlSelectPaymentByTransaction, code.String(), transactionID.String())
	if err != nil {
		return ledger.Payment{}, false, wrapStoreError(errorSubjectProviderTx, errorCodeLookup, err)
	}
	defer rows.Close()
	payments, err := scanPayments(rows)
	if err != nil {
		return ledger.Payment{}, false, wrapStoreError(errorSubjectProviderTx, errorCodeInvalid, err)
	}
	if len(payments) == 0 {
		return ledger.Payment{}, false, nil
	}
	return payments[0], true, nil
}

func (store queries) InsertPayment(ctx context.Context, payment ledger.Payment) error {
	groupValue := ""
	sequenceValue := 0
	if groupID, grouped := payment.SplitGroupID(); grouped {
		groupValue = groupID.String()
		sequenceValue, _ = payment.Sequence()
	}
	_, err := store.db.Exec(ctx, sqlInsertPayment,
		payment.ID().String(),
		payment.AppointmentID().String(),
		payment.Method().String(),
		payment.PaidAmount().Int64(),
		payment.Status().String(),
		payment.IsPartial(),
		groupValue,
		sequenceValue,
		payment.Notes(),
		payment.CreatedAt(),
	)
	if isUniqueViolation(err, constraintGroupSequence) {
		return wrapStoreError(errorSubjectPayment, errorCodeDuplicate, ledger.ErrInvalidSequence)
	}
	if err != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeInsert, err)
	}
	return nil
}

func (store queries) InsertProviderTransaction(ctx context.Context, paymentID ledger.PaymentID, linkage ledger.ProviderLinkage, createdAt time.Time) error {
	_, err := store.db.Exec(ctx, sqlInsertProviderTransaction,
		paymentID.String(),
		linkage.Code.String(),
		linkage.TransactionID.String(),
		linkage.Response.String(),
		createdAt.UTC(),
	)
	if isUniqueViolation(err, constraintProviderTransaction) {
		return wrapStoreError(errorSubjectProviderTx, errorCodeDuplicate, ledger.ErrDuplicateProviderTransaction)
	}
	if err != nil {
		return wrapStoreError(errorSubjectProviderTx, errorCodeInsert, err)
	}
	return nil
}

func (store queries) UpdatePaymentStatus(ctx context.Context, appointmentID ledger.AppointmentID, paymentID ledger.PaymentID, status ledger.PaymentStatus) error {
	tag, err := store.db.Exec(ctx, sqlUpdatePaymentStatus, paymentID.String(), appointmentID.String(), status.String())
	if err != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdateStatus, ledger.ErrPaymentNotFound)
	}
	return nil
}

func (store queries) DeletePayment(ctx context.Context, appointmentID ledger.AppointmentID, paymentID ledger.PaymentID) error {
	if _, err := store.db.Exec(ctx, sqlDeleteProviderTransactions, paymentID.String()); err != nil {
		return wrapStoreError(errorSubjectProviderTx, errorCodeDelete, err)
	}
	tag, err := store.db.Exec(ctx, sqlDeletePayment, paymentID.String(), appointmentID.String())
	if err != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeDelete, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectPayment, errorCodeDelete, ledger.ErrPaymentNotFound)
	}
	return nil
}

func scanPayments(rows pgx.Rows) ([]ledger.Payment, error) {
	payments := make([]ledger.Payment, 0, 8)
	for rows.Next() {
		var (
			paymentIDValue     string
			appointmentIDValue string
			methodValue        string
			amountValue        int64
			statusValue        string
			isPartial          bool
			groupValue         string
			sequenceValue      int
			notesValue         string
			paymentDate        time.Time
			providerValue      string
			transactionValue   string
			responseValue      string
		)
		if err := rows.Scan(
			&paymentIDValue,
			&appointmentIDValue,
			&methodValue,
			&amountValue,
			&statusValue,
			&isPartial,
			&groupValue,
			&sequenceValue,
			&notesValue,
			&paymentDate,
			&providerValue,
			&transactionValue,
			&responseValue,
		); err != nil {
			return nil, err
		}
		paymentID, err := ledger.NewPaymentID(paymentIDValue)
		if err != nil {
			return nil, err
		}
		appointmentID, err := ledger.NewAppointmentID(appointmentIDValue)
		if err != nil {
			return nil, err
		}
		method, err := ledger.ParsePaymentMethod(methodValue)
		if err != nil {
			return nil, err
		}
		amount, err := ledger.NewPaymentAmountCents(amountValue)
		if err != nil {
			return nil, err
		}
		status, err := ledger.ParsePaymentStatus(statusValue)
		if err != nil {
			return nil, err
		}
		params := ledger.PaymentParams{
			ID:            paymentID,
			AppointmentID: appointmentID,
			Method:        method,
			Amount:        amount,
			Status:        status,
			IsPartial:     isPartial,
			Notes:         notesValue,
			CreatedAt:     paymentDate,
		}
		if groupValue != "" {
			groupID, err := ledger.NewSplitGroupID(groupValue)
			if err != nil {
				return nil, err
			}
			params.SplitGroupID = &groupID
			params.Sequence = sequenceValue
		}
		if providerValue != "" {
			linkage, err := ledger.NewProviderLinkage(providerValue, transactionValue, responseValue)
			if err != nil {
				return nil, err
			}
			params.Provider = &linkage
		}
		payment, err := ledger.NewPayment(params)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	return false
}

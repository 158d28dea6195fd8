package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Appointment mirrors the appointments table. Only the priced total and the
// derived payment status are owned here; the rest of the appointment lives elsewhere.
type Appointment struct {
	AppointmentID    string    `gorm:"column:id;primaryKey"`
	TotalAmountCents int64     `gorm:"not null"`
	PaymentStatus    string    `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (Appointment) TableName() string { return "appointments" }

// AppointmentPayment mirrors the appointment_payments table.
type AppointmentPayment struct {
	PaymentID           string    `gorm:"column:id;primaryKey"`
	AppointmentID       string    `gorm:"not null;index:idx_payments_appointment_date,priority:1;index:uniq_payments_group_sequence,unique,priority:1"`
	PaymentMethod       string    `gorm:"not null"`
	PaidAmountCents     int64     `gorm:"not null"`
	PaymentStatus       string    `gorm:"not null"`
	IsPartial           bool      `gorm:"not null"`
	SplitPaymentGroupID *string   `gorm:"index:uniq_payments_group_sequence,unique,priority:2"`
	PaymentSequence     *int      `gorm:"index:uniq_payments_group_sequence,unique,priority:3"`
	Notes               string    `gorm:"not null"`
	PaymentDate         time.Time `gorm:"not null;index:idx_payments_appointment_date,priority:2"`
}

func (AppointmentPayment) TableName() string { return "appointment_payments" }

// PaymentProviderTransaction mirrors the payment_provider_transactions audit table.
type PaymentProviderTransaction struct {
	TransactionRowID string         `gorm:"column:id;primaryKey"`
	PaymentID        string         `gorm:"not null;index"`
	ProviderCode     string         `gorm:"not null;index:uniq_provider_transaction,unique,priority:1"`
	TransactionID    string         `gorm:"not null;index:uniq_provider_transaction,unique,priority:2"`
	ProviderResponse datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt        time.Time      `gorm:"not null"`
}

func (PaymentProviderTransaction) TableName() string { return "payment_provider_transactions" }

func (transaction *PaymentProviderTransaction) BeforeCreate(tx *gorm.DB) error {
	if transaction.TransactionRowID == "" {
		transaction.TransactionRowID = uuid.NewString()
	}
	return nil
}

// Models lists every table the store needs, in dependency order, for AutoMigrate.
func Models() []any {
	return []any{&Appointment{}, &AppointmentPayment{}, &PaymentProviderTransaction{}}
}

// Package oplog forwards ledger operation events to a zap logger.
package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/vetpay/pkg/ledger"
	"go.uber.org/zap"
)

const (
	statusOK       = "ok"
	statusRejected = "rejected"
)

// ZapLogger implements ledger.OperationLogger.
type ZapLogger struct {
	logger *zap.Logger
}

// New wraps logger; a nil logger discards events.
func New(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger.Named("payments")}
}

// LogOperation writes one structured line per operation. Rejections are warnings,
// faults are errors.
func (zapLogger *ZapLogger) LogOperation(ctx context.Context, entry ledger.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("appointment_id", entry.AppointmentID.String()),
		zap.String("status", entry.Status),
	}
	if len(entry.PaymentIDs) > 0 {
		paymentIDs := make([]string, 0, len(entry.PaymentIDs))
		for _, paymentID := range entry.PaymentIDs {
			paymentIDs = append(paymentIDs, paymentID.String())
		}
		fields = append(fields, zap.Strings("payment_ids", paymentIDs))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.String("amount", entry.Amount.String()))
	}
	if entry.AppointmentStatus != "" {
		fields = append(fields, zap.String("appointment_payment_status", entry.AppointmentStatus.String()))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
	}
	switch entry.Status {
	case statusOK:
		zapLogger.logger.Info("payment operation", fields...)
	case statusRejected:
		zapLogger.logger.Warn("payment operation rejected", fields...)
	default:
		zapLogger.logger.Error("payment operation failed", fields...)
	}
}

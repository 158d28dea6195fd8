package httpapi

import (
	"encoding/json"
	"strings"

	"github.com/MarkoPoloResearchLab/vetpay/pkg/ledger"
)

// Used when a provider event omits the tender type.
const defaultWebhookMethod = ledger.MethodCreditCard

type webhookRequest struct {
	AppointmentID string          `json:"appointment_id"`
	TransactionID string          `json:"transaction_id"`
	Amount        any             `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	EventType     string          `json:"event_type"`
	Notes         string          `json:"notes"`
	Payload       json.RawMessage `json:"payload"`
}

func (request webhookRequest) input(provider string) ledger.PaymentInput {
	method := strings.TrimSpace(request.PaymentMethod)
	if method == "" {
		method = defaultWebhookMethod.String()
	}
	response := ""
	if len(request.Payload) > 0 {
		response = string(request.Payload)
	}
	return ledger.PaymentInput{
		Method: method,
		Amount: request.Amount,
		Notes:  request.Notes,
		Provider: &ledger.ProviderInput{
			Code:          provider,
			TransactionID: request.TransactionID,
			Response:      response,
		},
	}
}

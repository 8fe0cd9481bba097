package quoteclient

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Klingon-tech/inscribe/pkg/inscription"
)

type commitResponse struct {
	PaymentAddress string          `json:"payment_address"`
	RequiredAmount json.RawMessage `json:"required_amount_in_sats"`
	InscriptionID  string          `json:"inscription_id"`
}

// ParseResponse decodes and validates a create-commit response body.
// The amount may be a JSON string or number but must be a positive
// integer number of satoshis.
func ParseResponse(body []byte) (*inscription.Quote, error) {
	var resp commitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &InvalidResponseError{Reason: MsgInvalidResponse, Err: err}
	}

	raw := rawAmount(resp.RequiredAmount)
	if resp.PaymentAddress == "" || raw == "" {
		return nil, &InvalidResponseError{Reason: MsgInvalidResponse}
	}

	sats, err := inscription.ParseSats(raw)
	if err != nil {
		return nil, &InvalidResponseError{Reason: MsgInvalidAmount, Err: err}
	}

	return &inscription.Quote{
		PaymentAddress:     resp.PaymentAddress,
		RequiredAmountSats: sats,
		RawAmount:          raw,
		InscriptionID:      resp.InscriptionID,
	}, nil
}

func rawAmount(msg json.RawMessage) string {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 || bytes.Equal(msg, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		return s
	}
	// Numbers are kept verbatim so "1.5" or "1e3" still fail ParseSats.
	return string(msg)
}

// remoteMessage extracts the service's error text from a failure body,
// preferring "error" then "message", falling back to the status text.
func remoteMessage(status int, body []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		var s string
		if json.Unmarshal(payload.Error, &s) == nil && s != "" {
			return s
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 && !strings.HasPrefix(text, "<") {
		return text
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return MsgRequestFailed
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Klingon-tech/inscribe/internal/quoteclient"
	"github.com/Klingon-tech/inscribe/pkg/address"
	"github.com/Klingon-tech/inscribe/pkg/inscription"
)

// Error messages returned to clients.
const (
	msgMissingFields  = "Missing required fields"
	msgInvalidType    = "Invalid file type. Only jpg, png, gif, webp are accepted."
	msgMissingToken   = "Server configuration error: Missing auth token"
	msgInvalidFeeRate = "Invalid fee rate"
	msgBodyTooLarge   = "Request body too large"
)

// commitResponse mirrors the upstream create-commit response.
type commitResponse struct {
	PaymentAddress string `json:"payment_address"`
	RequiredAmount string `json:"required_amount_in_sats"`
	InscriptionID  string `json:"inscription_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateCommit(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordProxyRequest(ww.Status(), time.Since(start))
		}
	}()

	logger := s.logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()

	req, status, msg := s.parseCommitForm(ww, r)
	if msg != "" {
		logger.Debug().Int("status", status).Str("reason", msg).Msg("Rejected commit request")
		writeJSON(ww, status, errorResponse{Error: msg})
		return
	}

	if s.authToken == "" {
		logger.Error().Msg("Auth token not configured")
		writeJSON(ww, http.StatusInternalServerError, errorResponse{Error: msgMissingToken})
		return
	}

	quote, err := s.upstream.FetchQuote(r.Context(), req)
	if err != nil {
		if errors.Is(err, quoteclient.ErrCancelled) {
			logger.Debug().Msg("Client went away")
			return
		}
		logger.Warn().Err(err).Msg("Upstream commit failed")
		writeJSON(ww, quoteclient.StatusCode(err), errorResponse{Error: quoteclient.UserMessage(err)})
		return
	}

	logger.Info().
		Str("payment_address", quote.PaymentAddress).
		Str("required_amount_in_sats", quote.RawAmount).
		Str("inscription_id", quote.InscriptionID).
		Msg("Inscription commit created")
	writeJSON(ww, http.StatusOK, commitResponse{
		PaymentAddress: quote.PaymentAddress,
		RequiredAmount: quote.RawAmount,
		InscriptionID:  quote.InscriptionID,
	})
}

// parseCommitForm validates the multipart form. On failure it returns the
// status and message to send.
func (s *Server) parseCommitForm(w http.ResponseWriter, r *http.Request) (quoteclient.Request, int, string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := r.ParseMultipartForm(maxBodySize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return quoteclient.Request{}, http.StatusRequestEntityTooLarge, msgBodyTooLarge
		}
		return quoteclient.Request{}, http.StatusBadRequest, msgMissingFields
	}
	defer r.MultipartForm.RemoveAll()

	recipient := r.FormValue("recipient_address")
	feeRate := r.FormValue("fee_rate")
	sender := r.FormValue("sender_address")
	file, hdr, err := r.FormFile("file")
	if err != nil || recipient == "" || feeRate == "" || sender == "" {
		return quoteclient.Request{}, http.StatusBadRequest, msgMissingFields
	}
	defer file.Close()

	mimeType := hdr.Header.Get("Content-Type")
	if !inscription.IsAcceptedType(mimeType) {
		return quoteclient.Request{}, http.StatusBadRequest, msgInvalidType
	}
	if !inscription.IsSizeValid(hdr.Size) {
		return quoteclient.Request{}, http.StatusBadRequest,
			fmt.Sprintf("File size must be between 200kb and 400kb. Current size: %s", inscription.FormatSize(hdr.Size))
	}

	rate, err := strconv.ParseFloat(feeRate, 64)
	if err != nil || rate <= 0 || math.IsInf(rate, 0) || math.IsNaN(rate) {
		return quoteclient.Request{}, http.StatusBadRequest, msgInvalidFeeRate
	}
	if err := address.Validate(recipient, s.network); err != nil {
		return quoteclient.Request{}, http.StatusBadRequest, "Invalid recipient address"
	}
	if err := address.Validate(sender, s.network); err != nil {
		return quoteclient.Request{}, http.StatusBadRequest, "Invalid sender address"
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return quoteclient.Request{}, http.StatusBadRequest, msgMissingFields
	}

	return quoteclient.Request{
		File:      &inscription.File{Name: hdr.Filename, MimeType: mimeType, Data: data},
		Recipient: recipient,
		FeeRate:   rate,
		Sender:    sender,
	}, 0, ""
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Package quoteclient requests inscription quotes from the pricing service.
//
// The client is stateless: it builds one multipart request per call and
// classifies the outcome into a quote, a cancellation, an invalid response
// or a remote failure. It never touches orchestrator state.
package quoteclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	klog "github.com/Klingon-tech/inscribe/internal/log"
	"github.com/Klingon-tech/inscribe/pkg/inscription"
)

// DefaultTimeout bounds a single quote request.
const DefaultTimeout = 30 * time.Second

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 1 << 20

// Request carries the inputs of one quote calculation.
type Request struct {
	File      *inscription.File
	Recipient string
	FeeRate   float64
	Sender    string
}

// Client posts create-commit requests to the pricing service.
type Client struct {
	endpoint  string
	authToken string
	http      *http.Client
	logger    zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAuthToken sends "Authorization: Bearer <token>" on every request.
func WithAuthToken(token string) Option {
	return func(c *Client) { c.authToken = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// New creates a client for the create-commit endpoint URL.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: DefaultTimeout},
		logger:   klog.WithComponent("quote"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the configured endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// FetchQuote requests a quote for req. Cancelling ctx yields ErrCancelled.
func (c *Client) FetchQuote(ctx context.Context, req Request) (*inscription.Quote, error) {
	if req.File == nil {
		return nil, errors.New("quote request without file")
	}

	body, contentType, err := EncodeForm(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	reqID := uuid.NewString()
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", reqID)
	if c.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	logger := c.logger.With().Str("request_id", reqID).Logger()
	logger.Debug().
		Int64("size", req.File.Size()).
		Float64("fee_rate", req.FeeRate).
		Msg("Requesting quote")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ErrCancelled
		}
		msg := "Network error: " + err.Error()
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			msg = "Request timed out"
		}
		logger.Debug().Err(err).Msg("Quote transport failure")
		return nil, &RemoteError{Message: msg}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ErrCancelled
		}
		return nil, &RemoteError{Message: "Network error: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		remote := &RemoteError{StatusCode: resp.StatusCode, Message: remoteMessage(resp.StatusCode, data)}
		logger.Debug().Int("status", resp.StatusCode).Str("message", remote.Message).Msg("Quote rejected")
		return nil, remote
	}

	quote, err := ParseResponse(data)
	if err != nil {
		logger.Warn().Err(err).Msg("Invalid quote response")
		return nil, err
	}

	logger.Debug().
		Str("payment_address", quote.PaymentAddress).
		Uint64("amount_sats", quote.RequiredAmountSats).
		Msg("Quote received")
	return quote, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// EncodeForm builds the multipart body for req. Field order and names
// follow the create-commit contract.
func EncodeForm(req Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(req.File.Name)))
	h.Set("Content-Type", req.File.MimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(req.File.Data); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}

	fields := [][2]string{
		{"recipient_address", req.Recipient},
		{"fee_rate", FormatFeeRate(req.FeeRate)},
		{"sender_address", req.Sender},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// FormatFeeRate renders a fee rate the way the service expects it:
// shortest decimal form, no exponent for ordinary values.
func FormatFeeRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', -1, 64)
}

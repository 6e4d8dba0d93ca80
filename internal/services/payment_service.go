package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/aurumif/sales-ledger/internal/events"
	"github.com/aurumif/sales-ledger/internal/middleware"
	"github.com/aurumif/sales-ledger/internal/models"
	"github.com/aurumif/sales-ledger/internal/notify"
)

// PaymentOutcome tags the three user-visible results of a payment
// request. partial_failure means the notification email went out but
// the ledger row failed to record, so operations must reconcile by hand.
type PaymentOutcome string

const (
	OutcomeSuccess        PaymentOutcome = "success"
	OutcomePartialFailure PaymentOutcome = "partial_failure"
	OutcomeError          PaymentOutcome = "error"
)

// PaymentRequestResult is the tagged response body for requestPayment.
type PaymentRequestResult struct {
	Kind        PaymentOutcome                    `json:"kind"`
	Message     string                            `json:"message"`
	Transaction *models.CurrentAccountTransaction `json:"transaction,omitempty"`
}

// PaymentRequestInput is the requestPayment payload.
type PaymentRequestInput struct {
	Amount decimal.Decimal `json:"amount"`
}

// PaymentService runs the payment draw-down flow: validate against net
// availability, notify operations by email, then append the
// PAYMENT_REQUEST transaction. The email always goes out before the
// write; a failed write after a sent email is reported as a partial
// failure.
type PaymentService struct {
	db        *sql.DB
	events    *events.Publisher
	mail      notify.Sender
	validator *ValidationHelper
	toAddress string
}

func NewPaymentService(db *sql.DB, publisher *events.Publisher, mail notify.Sender) *PaymentService {
	return &PaymentService{
		db:        db,
		events:    publisher,
		mail:      mail,
		validator: NewValidationHelper(),
		toAddress: viper.GetString("mail.operations_address"),
	}
}

// RequestPayment submits a payment draw-down request
// @Summary Request a payment
// @Description Validate the amount against net availability, email the
// @Description operations team and record a PAYMENT_REQUEST transaction
// @Tags payments
// @Accept json
// @Produce json
// @Param request body PaymentRequestInput true "Requested amount"
// @Success 200 {object} PaymentRequestResult
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 502 {object} PaymentRequestResult
// @Router /payment-requests [post]
func (ps *PaymentService) RequestPayment(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		SendErrorResponse(w, ErrKindAuthorization, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var input PaymentRequestInput

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&input); err != nil {
		SendErrorResponse(w, ErrKindValidation, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, ErrKindValidation, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	amount := input.Amount.Round(2)
	if !amount.IsPositive() {
		log.Printf("[PAYMENT] Rejected non-positive amount %s from %s", input.Amount, identity.Subject)
		SendErrorResponse(w, ErrKindValidation, "Amount must be a positive number", http.StatusBadRequest, nil)
		return
	}

	// Configuration is checked before any side effect so a misconfigured
	// deployment fails whole, not halfway.
	if ps.mail == nil || ps.mail.From() == "" || ps.toAddress == "" {
		log.Printf("[PAYMENT] Notification addresses not configured (from=%q to=%q)",
			senderFrom(ps.mail), ps.toAddress)
		SendErrorResponse(w, ErrKindConfiguration, "Payment notifications are not configured", http.StatusInternalServerError, nil)
		return
	}

	// Authoritative ceiling check. The client-side limit is advisory
	// only; this one holds even when the UI is bypassed.
	availability, err := availabilityFor(r.Context(), ps.db, identity.Subject)
	if err != nil {
		log.Printf("[PAYMENT] Failed to derive availability for %s: %v", identity.Subject, err)
		SendErrorResponse(w, ErrKindUpstream, "Failed to verify availability", http.StatusInternalServerError, nil)
		return
	}

	if amount.GreaterThan(availability.NetAvailability) {
		log.Printf("[PAYMENT] Rejected request %s above net availability %s for %s",
			amount, availability.NetAvailability, identity.Subject)
		SendErrorResponse(w, ErrKindValidation,
			fmt.Sprintf("Requested amount exceeds net availability of £%s", availability.NetAvailability.StringFixed(2)),
			http.StatusUnprocessableEntity, nil)
		return
	}

	requester := ps.resolveRequester(r.Context(), identity)
	log.Printf("[PAYMENT] Request for £%s by %s", amount.StringFixed(2), requester)

	subject := "Payment Request Received"
	body := fmt.Sprintf("A payment request for £%s has been submitted by user: %s.",
		amount.StringFixed(2), requester)

	if err := ps.mail.Send(ps.toAddress, subject, body); err != nil {
		log.Printf("[PAYMENT] Email send failed for %s: %v", identity.Subject, err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(PaymentRequestResult{
			Kind:    OutcomeError,
			Message: fmt.Sprintf("Error: Failed to send email notification (%v). Please contact support.", err),
		})
		return
	}

	now := time.Now().UTC()
	txn := models.CurrentAccountTransaction{
		ID:        uuid.NewString(),
		Owner:     identity.Subject,
		Type:      models.TransactionTypePaymentRequest,
		Amount:    amount,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := insertTransaction(r.Context(), ps.db, &txn); err != nil {
		// The email already went out; report the gap instead of a bare
		// error so the operator knows to reconcile manually.
		log.Printf("[PAYMENT] Transaction write failed after email for %s: %v", identity.Subject, err)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(PaymentRequestResult{
			Kind: OutcomePartialFailure,
			Message: fmt.Sprintf("Payment request for £%s was notified but could not be recorded. Operations will reconcile it manually.",
				amount.StringFixed(2)),
		})
		return
	}

	ps.events.Publish(r.Context(), events.ActionCreate, events.ModelCurrentAccountTransaction, txn.Owner, txn)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PaymentRequestResult{
		Kind:        OutcomeSuccess,
		Message:     fmt.Sprintf("Payment request for £%s submitted successfully.", amount.StringFixed(2)),
		Transaction: &txn,
	})
}

// resolveRequester picks the most readable identifier available: the
// email claim, then a directory lookup by username, then the username,
// then the raw subject. Lookup failures degrade, never abort.
func (ps *PaymentService) resolveRequester(ctx context.Context, identity models.Identity) string {
	if identity.Email != "" {
		return identity.Email
	}

	if identity.Username != "" {
		var email string
		err := ps.db.QueryRowContext(ctx,
			`SELECT email FROM users WHERE username = $1`, identity.Username).Scan(&email)
		if err == nil && email != "" {
			return email
		}
		if err != nil && err != sql.ErrNoRows {
			log.Printf("[PAYMENT] Email lookup failed for username %s: %v", identity.Username, err)
		}
		return identity.Username
	}

	if identity.Subject != "" {
		return identity.Subject
	}
	return "Unknown User"
}

func senderFrom(mail notify.Sender) string {
	if mail == nil {
		return ""
	}
	return mail.From()
}

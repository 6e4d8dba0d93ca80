package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aurumif/sales-ledger/internal/events"
	"github.com/aurumif/sales-ledger/internal/middleware"
	"github.com/aurumif/sales-ledger/internal/models"
)

// AccountService serves the owner-facing read surface: account status,
// current-account history and the derived availability figures.
type AccountService struct {
	db     *sql.DB
	events *events.Publisher
}

func NewAccountService(db *sql.DB, publisher *events.Publisher) *AccountService {
	return &AccountService{db: db, events: publisher}
}

// GetAccountStatus returns the caller's account status
// @Summary Get account status
// @Description Get the caller's account status. The row is created with
// @Description a zero unapproved value on the first read; the admin only
// @Description ever updates existing rows.
// @Tags account
// @Produce json
// @Success 200 {object} models.AccountStatus
// @Failure 500 {object} ErrorResponse
// @Router /account-status [get]
func (as *AccountService) GetAccountStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		SendErrorResponse(w, ErrKindAuthorization, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	status, err := fetchAccountStatus(r.Context(), as.db, identity.Subject)
	if err != nil {
		log.Printf("[ACCOUNT] Failed to fetch status for owner %s: %v", identity.Subject, err)
		SendErrorResponse(w, ErrKindUpstream, "Failed to fetch account status", http.StatusInternalServerError, nil)
		return
	}

	if status == nil {
		created, err := as.createDefaultStatus(r, identity.Subject)
		if err != nil {
			log.Printf("[ACCOUNT] Failed to initialise status for owner %s: %v", identity.Subject, err)
			SendErrorResponse(w, ErrKindUpstream, "Failed to initialise account status", http.StatusInternalServerError, nil)
			return
		}
		status = created
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// createDefaultStatus inserts the owner's status row with a zero
// unapproved value. Initialisation is the owner's responsibility; a
// concurrent first read loses the insert race and re-reads.
func (as *AccountService) createDefaultStatus(r *http.Request, owner string) (*models.AccountStatus, error) {
	now := time.Now().UTC()
	status := &models.AccountStatus{
		ID:                          uuid.NewString(),
		Owner:                       owner,
		TotalUnapprovedInvoiceValue: decimal.Zero.Round(2),
		CreatedAt:                   now,
		UpdatedAt:                   now,
	}

	_, err := as.db.ExecContext(r.Context(), `
        INSERT INTO account_statuses
        (id, owner, total_unapproved_invoice_value, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (owner) DO NOTHING`,
		status.ID, status.Owner, status.TotalUnapprovedInvoiceValue,
		status.CreatedAt, status.UpdatedAt)
	if err != nil {
		return nil, err
	}

	existing, err := fetchAccountStatus(r.Context(), as.db, owner)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.ID != status.ID {
		return existing, nil
	}

	as.events.Publish(r.Context(), events.ActionCreate, events.ModelAccountStatus, owner, status)
	return status, nil
}

// GetAvailability returns the caller's derived balances
// @Summary Get availability
// @Description Recompute the sales-ledger balance, current-account
// @Description balance and gross/net availability from the caller's rows
// @Tags account
// @Produce json
// @Success 200 {object} models.Availability
// @Failure 500 {object} ErrorResponse
// @Router /availability [get]
func (as *AccountService) GetAvailability(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		SendErrorResponse(w, ErrKindAuthorization, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	availability, err := availabilityFor(r.Context(), as.db, identity.Subject)
	if err != nil {
		log.Printf("[ACCOUNT] Failed to derive availability for owner %s: %v", identity.Subject, err)
		SendErrorResponse(w, ErrKindUpstream, "Failed to compute availability", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(availability)
}

// ListTransactions returns a page of the caller's current-account rows
// @Summary List current-account transactions
// @Tags account
// @Produce json
// @Param type query string false "Filter by transaction type"
// @Param limit query int false "Page size (default 50, max 200)"
// @Param nextToken query string false "Opaque pagination token"
// @Success 200 {object} object{items=[]models.CurrentAccountTransaction,nextToken=string}
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /transactions [get]
func (as *AccountService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		SendErrorResponse(w, ErrKindAuthorization, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			limit = l
		}
	}

	txns, nextToken, err := fetchTransactionsPage(r.Context(), as.db, identity.Subject,
		r.URL.Query().Get("type"), limit, r.URL.Query().Get("nextToken"))
	if err != nil {
		if errors.Is(err, errBadPageToken) {
			SendErrorResponse(w, ErrKindValidation, "Invalid nextToken", http.StatusBadRequest, nil)
			return
		}
		log.Printf("[ACCOUNT] Failed to list transactions for owner %s: %v", identity.Subject, err)
		SendErrorResponse(w, ErrKindUpstream, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"items":     txns,
		"nextToken": nextToken,
	})
}

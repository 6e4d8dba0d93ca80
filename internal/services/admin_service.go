package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aurumif/sales-ledger/internal/events"
	"github.com/aurumif/sales-ledger/internal/middleware"
	"github.com/aurumif/sales-ledger/internal/models"
)

// AdminService holds the two privileged flows: recording cash receipts
// on behalf of a user and maintaining the unapproved invoice value.
// Routes are gated by the admin group; these are the only operations
// that cross the owner boundary.
type AdminService struct {
	db        *sql.DB
	events    *events.Publisher
	validator *ValidationHelper
}

func NewAdminService(db *sql.DB, publisher *events.Publisher) *AdminService {
	return &AdminService{
		db:        db,
		events:    publisher,
		validator: NewValidationHelper(),
	}
}

// CashReceiptInput is the adminAddCashReceipt payload.
type CashReceiptInput struct {
	TargetOwnerID string          `json:"targetOwnerId" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description" validate:"max=500"`
}

// AccountStatusInput is the admin account-status update payload.
type AccountStatusInput struct {
	TotalUnapprovedInvoiceValue decimal.Decimal `json:"totalUnapprovedInvoiceValue"`
}

// AddCashReceipt records a cash receipt against a target user
// @Summary Add a cash receipt (admin)
// @Description Append a CASH_RECEIPT transaction owned by the target
// @Description user, reducing their current-account balance
// @Tags admin
// @Accept json
// @Produce json
// @Param receipt body CashReceiptInput true "Receipt data"
// @Success 201 {object} models.CurrentAccountTransaction
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /admin/cash-receipts [post]
func (s *AdminService) AddCashReceipt(w http.ResponseWriter, r *http.Request) {
	admin, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		SendErrorResponse(w, ErrKindAuthorization, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var input CashReceiptInput

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

	if err := s.validator.ValidateStruct(&input); err != nil {
		SendErrorResponse(w, ErrKindValidation, "Validation failed", http.StatusBadRequest, err)
		return
	}

	amount := input.Amount.Round(2)
	if !amount.IsPositive() {
		SendErrorResponse(w, ErrKindValidation, "Amount must be a positive number", http.StatusBadRequest, nil)
		return
	}

	log.Printf("[ADMIN] %s adding CASH_RECEIPT of %s for owner %s", admin.Subject, amount, input.TargetOwnerID)

	now := time.Now().UTC()
	// Owner is the target user, not the admin. This is the one sanctioned
	// exception to the owner-is-creator rule.
	txn := models.CurrentAccountTransaction{
		ID:          uuid.NewString(),
		Owner:       input.TargetOwnerID,
		Type:        models.TransactionTypeCashReceipt,
		Amount:      amount,
		Description: input.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := insertTransaction(r.Context(), s.db, &txn); err != nil {
		log.Printf("[ADMIN] Failed to create cash receipt for owner %s: %v", input.TargetOwnerID, err)
		SendErrorResponse(w, ErrKindUpstream, "Failed to create cash receipt record; the receipt was not saved and may be retried", http.StatusInternalServerError, nil)
		return
	}

	s.events.Publish(r.Context(), events.ActionCreate, events.ModelCurrentAccountTransaction, txn.Owner, txn)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(txn)
}

// GetAccountStatus returns a target user's account status
// @Summary Get a user's account status (admin)
// @Tags admin
// @Produce json
// @Param ownerId path string true "Target owner ID"
// @Success 200 {object} models.AccountStatus
// @Failure 404 {object} ErrorResponse
// @Router /admin/account-status/{ownerId} [get]
func (s *AdminService) GetAccountStatus(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerId")
	if ownerID == "" {
		SendErrorResponse(w, ErrKindValidation, "Owner ID is required", http.StatusBadRequest, nil)
		return
	}

	status, err := fetchAccountStatus(r.Context(), s.db, ownerID)
	if err != nil {
		log.Printf("[ADMIN] Failed to fetch status for owner %s: %v", ownerID, err)
		SendErrorResponse(w, ErrKindUpstream, "Failed to fetch account status", http.StatusInternalServerError, nil)
		return
	}
	if status == nil {
		SendErrorResponse(w, ErrKindValidation, "No account status exists for this owner yet", http.StatusNotFound, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// UpdateAccountStatus sets a target user's unapproved invoice value
// @Summary Update a user's account status (admin)
// @Description Update the total unapproved invoice value. The row must
// @Description already exist; initialisation belongs to the owner.
// @Tags admin
// @Accept json
// @Produce json
// @Param ownerId path string true "Target owner ID"
// @Param status body AccountStatusInput true "New unapproved value"
// @Success 200 {object} models.AccountStatus
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /admin/account-status/{ownerId} [put]
func (s *AdminService) UpdateAccountStatus(w http.ResponseWriter, r *http.Request) {
	admin, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		SendErrorResponse(w, ErrKindAuthorization, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	ownerID := chi.URLParam(r, "ownerId")
	if ownerID == "" {
		SendErrorResponse(w, ErrKindValidation, "Owner ID is required", http.StatusBadRequest, nil)
		return
	}

	var input AccountStatusInput

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

	if input.TotalUnapprovedInvoiceValue.IsNegative() {
		SendErrorResponse(w, ErrKindValidation, "Unapproved invoice value cannot be negative", http.StatusBadRequest, nil)
		return
	}

	var status models.AccountStatus
	err := s.db.QueryRowContext(r.Context(), `
        UPDATE account_statuses
        SET total_unapproved_invoice_value = $1, updated_at = $2
        WHERE owner = $3
        RETURNING id, owner, total_unapproved_invoice_value, created_at, updated_at`,
		input.TotalUnapprovedInvoiceValue.Round(2), time.Now().UTC(), ownerID).Scan(
		&status.ID, &status.Owner, &status.TotalUnapprovedInvoiceValue,
		&status.CreatedAt, &status.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, ErrKindValidation, "No account status exists for this owner yet", http.StatusNotFound, nil)
		} else {
			log.Printf("[ADMIN] Failed to update status for owner %s: %v", ownerID, err)
			SendErrorResponse(w, ErrKindUpstream, "Failed to update account status", http.StatusInternalServerError, nil)
		}
		return
	}

	log.Printf("[ADMIN] %s set unapproved value to %s for owner %s",
		admin.Subject, status.TotalUnapprovedInvoiceValue, ownerID)

	s.events.Publish(r.Context(), events.ActionUpdate, events.ModelAccountStatus, ownerID, status)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// GetAvailability returns a target user's derived balances
// @Summary Get a user's availability (admin)
// @Tags admin
// @Produce json
// @Param ownerId path string true "Target owner ID"
// @Success 200 {object} models.Availability
// @Failure 500 {object} ErrorResponse
// @Router /admin/availability/{ownerId} [get]
func (s *AdminService) GetAvailability(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerId")
	if ownerID == "" {
		SendErrorResponse(w, ErrKindValidation, "Owner ID is required", http.StatusBadRequest, nil)
		return
	}

	availability, err := availabilityFor(r.Context(), s.db, ownerID)
	if err != nil {
		log.Printf("[ADMIN] Failed to derive availability for owner %s: %v", ownerID, err)
		SendErrorResponse(w, ErrKindUpstream, "Failed to compute availability", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(availability)
}

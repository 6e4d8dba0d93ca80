package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aurumif/sales-ledger/internal/events"
	"github.com/aurumif/sales-ledger/internal/middleware"
	"github.com/aurumif/sales-ledger/internal/models"
)

// LedgerService owns the sales-ledger entry CRUD surface. Every row is
// scoped to the authenticated owner; cross-owner access never happens
// here.
type LedgerService struct {
	db        *sql.DB
	events    *events.Publisher
	validator *ValidationHelper
}

func NewLedgerService(db *sql.DB, publisher *events.Publisher) *LedgerService {
	return &LedgerService{
		db:        db,
		events:    publisher,
		validator: NewValidationHelper(),
	}
}

// LedgerEntryInput is the create/update payload for a ledger entry.
type LedgerEntryInput struct {
	Type        string          `json:"type" validate:"required,oneof=INVOICE CREDIT_NOTE INCREASE_ADJUSTMENT DECREASE_ADJUSTMENT"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=500"`
}

// ListLedgerEntries returns a page of the caller's ledger entries
// @Summary List ledger entries
// @Description Get the caller's sales-ledger entries, oldest first
// @Tags ledger
// @Produce json
// @Param type query string false "Filter by entry type"
// @Param limit query int false "Page size (default 50, max 200)"
// @Param nextToken query string false "Opaque pagination token"
// @Success 200 {object} object{items=[]models.LedgerEntry,nextToken=string}
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /ledger-entries [get]
func (ls *LedgerService) ListLedgerEntries(w http.ResponseWriter, r *http.Request) {
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

	entries, nextToken, err := fetchLedgerEntriesPage(r.Context(), ls.db, identity.Subject,
		r.URL.Query().Get("type"), limit, r.URL.Query().Get("nextToken"))
	if err != nil {
		if errors.Is(err, errBadPageToken) {
			SendErrorResponse(w, ErrKindValidation, "Invalid nextToken", http.StatusBadRequest, nil)
			return
		}
		log.Printf("[LEDGER] Failed to list entries for owner %s: %v", identity.Subject, err)
		SendErrorResponse(w, ErrKindUpstream, "Failed to fetch ledger entries", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"items":     entries,
		"nextToken": nextToken,
	})
}

// GetLedgerEntry returns one of the caller's ledger entries
// @Summary Get ledger entry by ID
// @Tags ledger
// @Produce json
// @Param id path string true "Entry ID"
// @Success 200 {object} models.LedgerEntry
// @Failure 404 {object} ErrorResponse
// @Router /ledger-entries/{id} [get]
func (ls *LedgerService) GetLedgerEntry(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		SendErrorResponse(w, ErrKindAuthorization, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	entryID := chi.URLParam(r, "id")

	var entry models.LedgerEntry
	err := ls.db.QueryRowContext(r.Context(), `
        SELECT id, owner, type, amount, description, created_at, updated_at
        FROM ledger_entries
        WHERE id = $1 AND owner = $2`, entryID, identity.Subject).Scan(
		&entry.ID, &entry.Owner, &entry.Type, &entry.Amount,
		&entry.Description, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, ErrKindValidation, "Ledger entry not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[LEDGER] Failed to fetch entry %s: %v", entryID, err)
			SendErrorResponse(w, ErrKindUpstream, "Failed to fetch ledger entry", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

// CreateLedgerEntry records a new ledger entry for the caller
// @Summary Create a ledger entry
// @Description Record an invoice, credit note or adjustment
// @Tags ledger
// @Accept json
// @Produce json
// @Param entry body LedgerEntryInput true "Entry data"
// @Success 201 {object} models.LedgerEntry
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /ledger-entries [post]
func (ls *LedgerService) CreateLedgerEntry(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		SendErrorResponse(w, ErrKindAuthorization, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	input, ok := ls.decodeEntryInput(w, r)
	if !ok {
		return
	}

	now := time.Now().UTC()
	entry := models.LedgerEntry{
		ID:          uuid.NewString(),
		Owner:       identity.Subject,
		Type:        models.LedgerEntryType(input.Type),
		Amount:      input.Amount.Round(2),
		Description: input.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := ls.db.ExecContext(r.Context(), `
        INSERT INTO ledger_entries
        (id, owner, type, amount, description, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.Owner, entry.Type, entry.Amount, entry.Description,
		entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		log.Printf("[LEDGER] Failed to create entry for owner %s: %v", identity.Subject, err)
		SendErrorResponse(w, ErrKindUpstream, "Failed to save ledger entry", http.StatusInternalServerError, nil)
		return
	}

	ls.events.Publish(r.Context(), events.ActionCreate, events.ModelLedgerEntry, entry.Owner, entry)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(entry)
}

// UpdateLedgerEntry amends one of the caller's ledger entries
// @Summary Update a ledger entry
// @Tags ledger
// @Accept json
// @Produce json
// @Param id path string true "Entry ID"
// @Param entry body LedgerEntryInput true "Entry data"
// @Success 200 {object} models.LedgerEntry
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /ledger-entries/{id} [put]
func (ls *LedgerService) UpdateLedgerEntry(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		SendErrorResponse(w, ErrKindAuthorization, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	entryID := chi.URLParam(r, "id")

	input, ok := ls.decodeEntryInput(w, r)
	if !ok {
		return
	}

	var entry models.LedgerEntry
	err := ls.db.QueryRowContext(r.Context(), `
        UPDATE ledger_entries
        SET type = $1, amount = $2, description = $3, updated_at = $4
        WHERE id = $5 AND owner = $6
        RETURNING id, owner, type, amount, description, created_at, updated_at`,
		input.Type, input.Amount.Round(2), input.Description, time.Now().UTC(),
		entryID, identity.Subject).Scan(
		&entry.ID, &entry.Owner, &entry.Type, &entry.Amount,
		&entry.Description, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, ErrKindValidation, "Ledger entry not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[LEDGER] Failed to update entry %s: %v", entryID, err)
			SendErrorResponse(w, ErrKindUpstream, "Failed to update ledger entry", http.StatusInternalServerError, nil)
		}
		return
	}

	ls.events.Publish(r.Context(), events.ActionUpdate, events.ModelLedgerEntry, entry.Owner, entry)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

// DeleteLedgerEntry removes one of the caller's ledger entries
// @Summary Delete a ledger entry
// @Tags ledger
// @Param id path string true "Entry ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /ledger-entries/{id} [delete]
func (ls *LedgerService) DeleteLedgerEntry(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		SendErrorResponse(w, ErrKindAuthorization, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	entryID := chi.URLParam(r, "id")

	result, err := ls.db.ExecContext(r.Context(),
		`DELETE FROM ledger_entries WHERE id = $1 AND owner = $2`,
		entryID, identity.Subject)
	if err != nil {
		log.Printf("[LEDGER] Failed to delete entry %s: %v", entryID, err)
		SendErrorResponse(w, ErrKindUpstream, "Failed to delete ledger entry", http.StatusInternalServerError, nil)
		return
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		SendErrorResponse(w, ErrKindValidation, "Ledger entry not found", http.StatusNotFound, nil)
		return
	}

	ls.events.Publish(r.Context(), events.ActionDelete, events.ModelLedgerEntry, identity.Subject,
		map[string]string{"id": entryID})

	w.WriteHeader(http.StatusNoContent)
}

func (ls *LedgerService) decodeEntryInput(w http.ResponseWriter, r *http.Request) (LedgerEntryInput, bool) {
	var input LedgerEntryInput

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&input); err != nil {
		SendErrorResponse(w, ErrKindValidation, "Invalid request body", http.StatusBadRequest, nil)
		return input, false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, ErrKindValidation, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return input, false
	}

	if err := ls.validator.ValidateStruct(&input); err != nil {
		SendErrorResponse(w, ErrKindValidation, "Validation failed", http.StatusBadRequest, err)
		return input, false
	}

	if !input.Amount.IsPositive() {
		SendErrorResponse(w, ErrKindValidation, "Amount must be a positive number", http.StatusBadRequest, nil)
		return input, false
	}

	return input, true
}

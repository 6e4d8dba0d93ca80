package services

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aurumif/sales-ledger/internal/models"
)

// errBadPageToken marks an unusable nextToken so list handlers can
// report it as a client error.
var errBadPageToken = errors.New("malformed nextToken")

// pageCursor is the decoded form of the opaque nextToken. Listings are
// keyed on (created_at, id) so the cursor is stable under inserts.
type pageCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

func encodePageToken(c pageCursor) string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodePageToken(token string) (pageCursor, error) {
	var c pageCursor
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return c, fmt.Errorf("%w: %v", errBadPageToken, err)
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("%w: %v", errBadPageToken, err)
	}
	return c, nil
}

const defaultPageLimit = 50
const maxPageLimit = 200

// fetchLedgerEntriesPage returns one page of an owner's ledger entries
// plus the nextToken for the following page, empty when exhausted.
func fetchLedgerEntriesPage(ctx context.Context, db *sql.DB, owner string, entryType string, limit int, token string) ([]models.LedgerEntry, string, error) {
	if limit <= 0 || limit > maxPageLimit {
		limit = defaultPageLimit
	}

	conditions := []string{"owner = $1"}
	args := []interface{}{owner}
	argIndex := 2

	if entryType != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIndex))
		args = append(args, entryType)
		argIndex++
	}

	if token != "" {
		cursor, err := decodePageToken(token)
		if err != nil {
			return nil, "", err
		}
		conditions = append(conditions, fmt.Sprintf("(created_at, id) > ($%d, $%d)", argIndex, argIndex+1))
		args = append(args, cursor.CreatedAt, cursor.ID)
		argIndex += 2
	}

	query := `
        SELECT id, owner, type, amount, description, created_at, updated_at
        FROM ledger_entries
        WHERE ` + strings.Join(conditions, " AND ") + `
        ORDER BY created_at, id
        LIMIT $` + fmt.Sprint(argIndex)
	args = append(args, limit+1)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var entry models.LedgerEntry
		if err := rows.Scan(&entry.ID, &entry.Owner, &entry.Type, &entry.Amount,
			&entry.Description, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, "", err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	nextToken := ""
	if len(entries) > limit {
		entries = entries[:limit]
		last := entries[len(entries)-1]
		nextToken = encodePageToken(pageCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return entries, nextToken, nil
}

// fetchAllLedgerEntries loads every ledger entry for an owner. Used by
// the balance derivation, which needs the full set.
func fetchAllLedgerEntries(ctx context.Context, db *sql.DB, owner string) ([]models.LedgerEntry, error) {
	rows, err := db.QueryContext(ctx, `
        SELECT id, owner, type, amount, description, created_at, updated_at
        FROM ledger_entries
        WHERE owner = $1`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var entry models.LedgerEntry
		if err := rows.Scan(&entry.ID, &entry.Owner, &entry.Type, &entry.Amount,
			&entry.Description, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// fetchTransactionsPage returns one page of an owner's current-account
// transactions.
func fetchTransactionsPage(ctx context.Context, db *sql.DB, owner string, txnType string, limit int, token string) ([]models.CurrentAccountTransaction, string, error) {
	if limit <= 0 || limit > maxPageLimit {
		limit = defaultPageLimit
	}

	conditions := []string{"owner = $1"}
	args := []interface{}{owner}
	argIndex := 2

	if txnType != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIndex))
		args = append(args, txnType)
		argIndex++
	}

	if token != "" {
		cursor, err := decodePageToken(token)
		if err != nil {
			return nil, "", err
		}
		conditions = append(conditions, fmt.Sprintf("(created_at, id) > ($%d, $%d)", argIndex, argIndex+1))
		args = append(args, cursor.CreatedAt, cursor.ID)
		argIndex += 2
	}

	query := `
        SELECT id, owner, type, amount, description, created_at, updated_at
        FROM current_account_transactions
        WHERE ` + strings.Join(conditions, " AND ") + `
        ORDER BY created_at, id
        LIMIT $` + fmt.Sprint(argIndex)
	args = append(args, limit+1)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	txns := []models.CurrentAccountTransaction{}
	for rows.Next() {
		var txn models.CurrentAccountTransaction
		if err := rows.Scan(&txn.ID, &txn.Owner, &txn.Type, &txn.Amount,
			&txn.Description, &txn.CreatedAt, &txn.UpdatedAt); err != nil {
			return nil, "", err
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	nextToken := ""
	if len(txns) > limit {
		txns = txns[:limit]
		last := txns[len(txns)-1]
		nextToken = encodePageToken(pageCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return txns, nextToken, nil
}

// fetchAllTransactions loads every current-account transaction for an
// owner.
func fetchAllTransactions(ctx context.Context, db *sql.DB, owner string) ([]models.CurrentAccountTransaction, error) {
	rows, err := db.QueryContext(ctx, `
        SELECT id, owner, type, amount, description, created_at, updated_at
        FROM current_account_transactions
        WHERE owner = $1`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txns := []models.CurrentAccountTransaction{}
	for rows.Next() {
		var txn models.CurrentAccountTransaction
		if err := rows.Scan(&txn.ID, &txn.Owner, &txn.Type, &txn.Amount,
			&txn.Description, &txn.CreatedAt, &txn.UpdatedAt); err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// fetchAccountStatus returns the owner's status row, or nil when none
// exists yet.
func fetchAccountStatus(ctx context.Context, db *sql.DB, owner string) (*models.AccountStatus, error) {
	var status models.AccountStatus
	err := db.QueryRowContext(ctx, `
        SELECT id, owner, total_unapproved_invoice_value, created_at, updated_at
        FROM account_statuses
        WHERE owner = $1`, owner).Scan(&status.ID, &status.Owner,
		&status.TotalUnapprovedInvoiceValue, &status.CreatedAt, &status.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// availabilityFor recomputes the derived figures from the store. The
// authoritative payment-request ceiling comes from here, never from the
// client.
func availabilityFor(ctx context.Context, db *sql.DB, owner string) (models.Availability, error) {
	entries, err := fetchAllLedgerEntries(ctx, db, owner)
	if err != nil {
		return models.Availability{}, err
	}
	txns, err := fetchAllTransactions(ctx, db, owner)
	if err != nil {
		return models.Availability{}, err
	}
	status, err := fetchAccountStatus(ctx, db, owner)
	if err != nil {
		return models.Availability{}, err
	}
	return ComputeAvailability(entries, txns, status), nil
}

// insertTransaction appends one current-account transaction row.
func insertTransaction(ctx context.Context, db *sql.DB, txn *models.CurrentAccountTransaction) error {
	_, err := db.ExecContext(ctx, `
        INSERT INTO current_account_transactions
        (id, owner, type, amount, description, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		txn.ID, txn.Owner, txn.Type, txn.Amount, txn.Description,
		txn.CreatedAt, txn.UpdatedAt)
	return err
}

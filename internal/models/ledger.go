package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntryType classifies a sales-ledger row. Sign is implied by the
// type; amounts are always stored positive.
type LedgerEntryType string

const (
	EntryTypeInvoice            LedgerEntryType = "INVOICE"
	EntryTypeCreditNote         LedgerEntryType = "CREDIT_NOTE"
	EntryTypeIncreaseAdjustment LedgerEntryType = "INCREASE_ADJUSTMENT"
	EntryTypeDecreaseAdjustment LedgerEntryType = "DECREASE_ADJUSTMENT"
)

// LedgerEntry is one row of a user's sales ledger.
type LedgerEntry struct {
	ID          string          `json:"id" db:"id"`
	Owner       string          `json:"owner" db:"owner"`
	Type        LedgerEntryType `json:"type" db:"type"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Description string          `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}

// TransactionType classifies a current-account row. PAYMENT_REQUEST
// increases funds drawn; CASH_RECEIPT reduces them.
type TransactionType string

const (
	TransactionTypePaymentRequest TransactionType = "PAYMENT_REQUEST"
	TransactionTypeCashReceipt    TransactionType = "CASH_RECEIPT"
)

// CurrentAccountTransaction is one row of a user's current account.
type CurrentAccountTransaction struct {
	ID          string          `json:"id" db:"id"`
	Owner       string          `json:"owner" db:"owner"`
	Type        TransactionType `json:"type" db:"type"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Description string          `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}

// AccountStatus holds the admin-maintained unapproved invoice value.
// At most one row exists per owner.
type AccountStatus struct {
	ID                          string          `json:"id" db:"id"`
	Owner                       string          `json:"owner" db:"owner"`
	TotalUnapprovedInvoiceValue decimal.Decimal `json:"totalUnapprovedInvoiceValue" db:"total_unapproved_invoice_value"`
	CreatedAt                   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt                   time.Time       `json:"updatedAt" db:"updated_at"`
}

// Availability carries the four derived figures shown to the user.
// Never persisted; recomputed from the underlying rows on every read.
type Availability struct {
	SalesLedgerBalance    decimal.Decimal `json:"salesLedgerBalance"`
	CurrentAccountBalance decimal.Decimal `json:"currentAccountBalance"`
	GrossAvailability     decimal.Decimal `json:"grossAvailability"`
	NetAvailability       decimal.Decimal `json:"netAvailability"`
}

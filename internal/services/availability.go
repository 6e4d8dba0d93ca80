package services

import (
	"log"

	"github.com/shopspring/decimal"

	"github.com/aurumif/sales-ledger/internal/models"
)

// advanceRate is the fixed 90% multiplier applied to the approved
// sales-ledger value when computing gross availability.
var advanceRate = decimal.RequireFromString("0.90")

// SalesLedgerBalance is the signed sum of an owner's ledger entries:
// invoices and increase adjustments add, credit notes and decrease
// adjustments subtract. Rows with an unrecognised type are logged and
// skipped rather than failing the whole computation. Order-insensitive.
func SalesLedgerBalance(entries []models.LedgerEntry) decimal.Decimal {
	balance := decimal.Zero
	for _, entry := range entries {
		switch entry.Type {
		case models.EntryTypeInvoice, models.EntryTypeIncreaseAdjustment:
			balance = balance.Add(entry.Amount)
		case models.EntryTypeCreditNote, models.EntryTypeDecreaseAdjustment:
			balance = balance.Sub(entry.Amount)
		default:
			log.Printf("[DERIVE] Ignoring ledger entry %s with unknown type %q", entry.ID, entry.Type)
		}
	}
	return balance.Round(2)
}

// CurrentAccountBalance is the net funds drawn: payment requests add,
// cash receipts subtract.
func CurrentAccountBalance(txns []models.CurrentAccountTransaction) decimal.Decimal {
	balance := decimal.Zero
	for _, txn := range txns {
		switch txn.Type {
		case models.TransactionTypePaymentRequest:
			balance = balance.Add(txn.Amount)
		case models.TransactionTypeCashReceipt:
			balance = balance.Sub(txn.Amount)
		default:
			log.Printf("[DERIVE] Ignoring transaction %s with unknown type %q", txn.ID, txn.Type)
		}
	}
	return balance.Round(2)
}

// ComputeAvailability derives the four displayed figures from an
// owner's rows. A missing AccountStatus is treated as an unapproved
// value of zero. Gross and net availability never go below zero.
func ComputeAvailability(entries []models.LedgerEntry, txns []models.CurrentAccountTransaction, status *models.AccountStatus) models.Availability {
	salesLedger := SalesLedgerBalance(entries)
	currentAccount := CurrentAccountBalance(txns)

	unapproved := decimal.Zero
	if status != nil {
		unapproved = status.TotalUnapprovedInvoiceValue
	}

	gross := salesLedger.Sub(unapproved).Mul(advanceRate).Round(2)
	if gross.IsNegative() {
		gross = decimal.Zero.Round(2)
	}

	net := gross.Sub(currentAccount).Round(2)
	if net.IsNegative() {
		net = decimal.Zero.Round(2)
	}

	return models.Availability{
		SalesLedgerBalance:    salesLedger,
		CurrentAccountBalance: currentAccount,
		GrossAvailability:     gross,
		NetAvailability:       net,
	}
}

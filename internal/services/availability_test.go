package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/aurumif/sales-ledger/internal/models"
)

func entry(entryType models.LedgerEntryType, amount string) models.LedgerEntry {
	return models.LedgerEntry{
		ID:     "entry-" + amount,
		Owner:  "user-1",
		Type:   entryType,
		Amount: decimal.RequireFromString(amount),
	}
}

func txn(txnType models.TransactionType, amount string) models.CurrentAccountTransaction {
	return models.CurrentAccountTransaction{
		ID:     "txn-" + amount,
		Owner:  "user-1",
		Type:   txnType,
		Amount: decimal.RequireFromString(amount),
	}
}

func TestSalesLedgerBalance(t *testing.T) {
	t.Run("basic ledger", func(t *testing.T) {
		entries := []models.LedgerEntry{
			entry(models.EntryTypeInvoice, "1000"),
			entry(models.EntryTypeCreditNote, "200"),
			entry(models.EntryTypeIncreaseAdjustment, "50"),
		}

		assert.Equal(t, "850.00", SalesLedgerBalance(entries).StringFixed(2))
	})

	t.Run("order does not matter", func(t *testing.T) {
		forward := []models.LedgerEntry{
			entry(models.EntryTypeInvoice, "1000"),
			entry(models.EntryTypeDecreaseAdjustment, "30.50"),
			entry(models.EntryTypeCreditNote, "200"),
		}
		backward := []models.LedgerEntry{forward[2], forward[1], forward[0]}

		assert.True(t, SalesLedgerBalance(forward).Equal(SalesLedgerBalance(backward)))
	})

	t.Run("unknown type is skipped", func(t *testing.T) {
		entries := []models.LedgerEntry{
			entry(models.EntryTypeInvoice, "100"),
			entry(models.LedgerEntryType("MYSTERY"), "9999"),
		}

		assert.Equal(t, "100.00", SalesLedgerBalance(entries).StringFixed(2))
	})

	t.Run("empty ledger is zero", func(t *testing.T) {
		assert.Equal(t, "0.00", SalesLedgerBalance(nil).StringFixed(2))
	})
}

func TestCurrentAccountBalance(t *testing.T) {
	t.Run("payment requests add, cash receipts subtract", func(t *testing.T) {
		txns := []models.CurrentAccountTransaction{
			txn(models.TransactionTypePaymentRequest, "450"),
			txn(models.TransactionTypeCashReceipt, "150"),
		}

		assert.Equal(t, "300.00", CurrentAccountBalance(txns).StringFixed(2))
	})

	t.Run("unknown type is skipped", func(t *testing.T) {
		txns := []models.CurrentAccountTransaction{
			txn(models.TransactionTypePaymentRequest, "100"),
			txn(models.TransactionType("MYSTERY"), "9999"),
		}

		assert.Equal(t, "100.00", CurrentAccountBalance(txns).StringFixed(2))
	})
}

func TestComputeAvailability(t *testing.T) {
	t.Run("worked example", func(t *testing.T) {
		entries := []models.LedgerEntry{
			entry(models.EntryTypeInvoice, "1000"),
			entry(models.EntryTypeCreditNote, "200"),
			entry(models.EntryTypeIncreaseAdjustment, "50"),
		}
		txns := []models.CurrentAccountTransaction{
			txn(models.TransactionTypePaymentRequest, "300"),
		}
		status := &models.AccountStatus{
			Owner:                       "user-1",
			TotalUnapprovedInvoiceValue: decimal.RequireFromString("100"),
		}

		availability := ComputeAvailability(entries, txns, status)

		assert.Equal(t, "850.00", availability.SalesLedgerBalance.StringFixed(2))
		assert.Equal(t, "300.00", availability.CurrentAccountBalance.StringFixed(2))
		assert.Equal(t, "675.00", availability.GrossAvailability.StringFixed(2))
		assert.Equal(t, "375.00", availability.NetAvailability.StringFixed(2))
	})

	t.Run("missing status means zero unapproved", func(t *testing.T) {
		entries := []models.LedgerEntry{entry(models.EntryTypeInvoice, "1000")}

		availability := ComputeAvailability(entries, nil, nil)

		assert.Equal(t, "900.00", availability.GrossAvailability.StringFixed(2))
		assert.Equal(t, "900.00", availability.NetAvailability.StringFixed(2))
	})

	t.Run("gross floors at zero", func(t *testing.T) {
		entries := []models.LedgerEntry{entry(models.EntryTypeInvoice, "100")}
		status := &models.AccountStatus{
			TotalUnapprovedInvoiceValue: decimal.RequireFromString("500"),
		}

		availability := ComputeAvailability(entries, nil, status)

		assert.Equal(t, "0.00", availability.GrossAvailability.StringFixed(2))
		assert.Equal(t, "0.00", availability.NetAvailability.StringFixed(2))
	})

	t.Run("net floors at zero when overdrawn", func(t *testing.T) {
		entries := []models.LedgerEntry{entry(models.EntryTypeInvoice, "100")}
		txns := []models.CurrentAccountTransaction{
			txn(models.TransactionTypePaymentRequest, "500"),
		}

		availability := ComputeAvailability(entries, txns, nil)

		assert.Equal(t, "90.00", availability.GrossAvailability.StringFixed(2))
		assert.Equal(t, "0.00", availability.NetAvailability.StringFixed(2))
		// the raw balances stay honest even when the floors apply
		assert.Equal(t, "500.00", availability.CurrentAccountBalance.StringFixed(2))
	})

	t.Run("recomputation is idempotent", func(t *testing.T) {
		entries := []models.LedgerEntry{
			entry(models.EntryTypeInvoice, "123.45"),
			entry(models.EntryTypeDecreaseAdjustment, "23.45"),
		}
		txns := []models.CurrentAccountTransaction{
			txn(models.TransactionTypeCashReceipt, "10"),
		}

		first := ComputeAvailability(entries, txns, nil)
		second := ComputeAvailability(entries, txns, nil)

		assert.Equal(t, first, second)
	})

	t.Run("cash receipts increase net availability", func(t *testing.T) {
		entries := []models.LedgerEntry{entry(models.EntryTypeInvoice, "1000")}
		drawn := []models.CurrentAccountTransaction{
			txn(models.TransactionTypePaymentRequest, "400"),
		}
		repaid := append(drawn, txn(models.TransactionTypeCashReceipt, "150"))

		before := ComputeAvailability(entries, drawn, nil)
		after := ComputeAvailability(entries, repaid, nil)

		assert.Equal(t, "500.00", before.NetAvailability.StringFixed(2))
		assert.Equal(t, "650.00", after.NetAvailability.StringFixed(2))
	})
}

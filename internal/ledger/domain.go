// Package ledger tracks multi-currency receivables and payables: partial
// payments, renegotiation into installments, and BRL-equivalent balances
// using partner-specific exchange-rate markups.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-cargo/meridian-cargo/internal/money"
)

// EntryType distinguishes receivables from payables.
type EntryType string

const (
	// TypeCredit is money owed to us (receivable).
	TypeCredit EntryType = "CREDIT"
	// TypeDebit is money we owe (payable).
	TypeDebit EntryType = "DEBIT"
)

// Status of a ledger entry. Open, PartiallyPaid, Overdue and Paid are
// derived from the payment history; Legal, PendingApproval and Renegotiated
// are explicit overrides that short-circuit the derivation until cleared.
type Status string

const (
	StatusOpen            Status = "OPEN"
	StatusPartiallyPaid   Status = "PARTIALLY_PAID"
	StatusOverdue         Status = "OVERDUE"
	StatusPaid            Status = "PAID"
	StatusLegal           Status = "LEGAL"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusRenegotiated    Status = "RENEGOTIATED"
)

// IsOverride reports whether the status is one of the explicit side states.
func (s Status) IsOverride() bool {
	switch s {
	case StatusLegal, StatusPendingApproval, StatusRenegotiated:
		return true
	}
	return false
}

// Payment is one settlement event against an entry, always expressed in the
// entry's currency. ExchangeRate is recorded when the settling bank account
// holds a different currency. A reversal is a negative-amount payment
// pointing at the payment it undoes; payments are never deleted.
type Payment struct {
	ID           uuid.UUID
	EntryID      uuid.UUID
	Amount       decimal.Decimal
	Date         time.Time
	AccountID    int64
	ExchangeRate *decimal.Decimal
	ReversalOf   *uuid.UUID
	CreatedAt    time.Time
}

// Entry is one receivable or payable. Amount never changes after creation;
// renegotiation retires the entry and issues installments instead. Version
// guards against lost updates when two commands race on the same entry.
type Entry struct {
	ID        uuid.UUID
	Type      EntryType
	Partner   string
	InvoiceID string
	ProcessID string
	Amount    decimal.Decimal
	Currency  money.Currency
	DueDate   time.Time
	Payments  []Payment
	Override  Status // empty when no override is active
	LegalNote string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaidTotal sums the payment history, reversals included.
func (e Entry) PaidTotal() decimal.Decimal {
	total := decimal.Zero
	for _, p := range e.Payments {
		total = total.Add(p.Amount)
	}
	return total
}

// Outstanding returns the unpaid balance in the entry currency.
func (e Entry) Outstanding() decimal.Decimal {
	return e.Amount.Sub(e.PaidTotal())
}

// BankAccount is the settling account mutated when payments post.
type BankAccount struct {
	ID        int64
	Name      string
	Currency  money.Currency
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateEntryInput for issuing a new entry.
type CreateEntryInput struct {
	Type      EntryType
	Partner   string
	InvoiceID string
	ProcessID string
	Amount    decimal.Decimal
	Currency  money.Currency
	DueDate   time.Time
}

// PaymentInput for posting a payment against an entry.
type PaymentInput struct {
	Amount          decimal.Decimal
	Date            time.Time
	AccountID       int64
	ExchangeRate    *decimal.Decimal
	ExpectedVersion int64
}

// InstallmentSpec describes one renegotiation installment.
type InstallmentSpec struct {
	Amount  decimal.Decimal
	DueDate time.Time
}

// ListEntriesRequest filters entry listings.
type ListEntriesRequest struct {
	Type      EntryType
	Partner   string
	ProcessID string
	Limit     int
	Offset    int
}

// CurrencyExposure aggregates outstanding amounts for one currency.
type CurrencyExposure struct {
	Currency          money.Currency
	OutstandingCredit decimal.Decimal
	OutstandingDebit  decimal.Decimal
	BRLEquivalent     decimal.Decimal
}

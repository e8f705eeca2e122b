package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-cargo/meridian-cargo/internal/money"
	"github.com/meridian-cargo/meridian-cargo/internal/partners"
	"github.com/meridian-cargo/meridian-cargo/internal/rates"
)

var (
	// ErrInvalidPayment indicates a non-positive payment amount.
	ErrInvalidPayment = errors.New("ledger: payment amount must be positive")
	// ErrOverpayment indicates a payment above the outstanding balance.
	ErrOverpayment = errors.New("ledger: payment exceeds outstanding balance")
	// ErrMissingExchangeRate indicates a cross-currency payment without an
	// explicit rate.
	ErrMissingExchangeRate = errors.New("ledger: cross-currency payment requires an exchange rate")
	// ErrRenegotiationMismatch indicates installments that do not reconcile
	// with the outstanding balance.
	ErrRenegotiationMismatch = errors.New("ledger: installments must sum to the outstanding balance")
	// ErrEntryRetired indicates the entry is paid or already renegotiated.
	ErrEntryRetired = errors.New("ledger: entry is already settled or renegotiated")
	// ErrInvalidInstallment indicates a malformed installment.
	ErrInvalidInstallment = errors.New("ledger: invalid installment")
	// ErrPaymentNotFound indicates the payment to reverse does not exist.
	ErrPaymentNotFound = errors.New("ledger: payment not found")
	// ErrAlreadyReversed indicates the payment was reversed before.
	ErrAlreadyReversed = errors.New("ledger: payment already reversed")
	// ErrInvalidEntry indicates a malformed entry input.
	ErrInvalidEntry = errors.New("ledger: invalid entry")
)

// Service is the settlement engine. It processes one command at a time per
// entry; the version check turns a lost race into ErrVersionConflict instead
// of a silent lost update.
type Service struct {
	repo     Repository
	partners partners.Directory
	fx       rates.FXSource
	nowFn    func() time.Time
}

// NewService constructs the settlement engine.
func NewService(repo Repository, directory partners.Directory, fx rates.FXSource) *Service {
	return &Service{repo: repo, partners: directory, fx: fx, nowFn: time.Now}
}

// CreateEntry issues a new receivable or payable.
func (s *Service) CreateEntry(ctx context.Context, input CreateEntryInput) (Entry, error) {
	if input.Type != TypeCredit && input.Type != TypeDebit {
		return Entry{}, fmt.Errorf("%w: type must be CREDIT or DEBIT", ErrInvalidEntry)
	}
	if strings.TrimSpace(input.Partner) == "" {
		return Entry{}, fmt.Errorf("%w: partner is required", ErrInvalidEntry)
	}
	if !input.Amount.IsPositive() {
		return Entry{}, fmt.Errorf("%w: amount must be positive", ErrInvalidEntry)
	}
	if !input.Currency.Valid() {
		return Entry{}, fmt.Errorf("%w: %s", ErrInvalidEntry, money.ErrUnknownCurrency)
	}
	if input.DueDate.IsZero() {
		return Entry{}, fmt.Errorf("%w: due date is required", ErrInvalidEntry)
	}

	entry := Entry{
		ID:        uuid.New(),
		Type:      input.Type,
		Partner:   strings.TrimSpace(input.Partner),
		InvoiceID: input.InvoiceID,
		ProcessID: input.ProcessID,
		Amount:    input.Amount,
		Currency:  input.Currency,
		DueDate:   input.DueDate,
		Version:   1,
	}
	if entry.InvoiceID == "" {
		entry.InvoiceID = "FIN-" + strings.ToUpper(entry.ID.String()[:8])
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertEntry(ctx, entry)
	})
	if err != nil {
		return Entry{}, err
	}
	return s.repo.GetEntry(ctx, entry.ID)
}

// PostPayment settles part or all of an entry from a bank account. The
// payment append, version bump and balance update commit together or not at
// all.
func (s *Service) PostPayment(ctx context.Context, entryID uuid.UUID, input PaymentInput) (Entry, BankAccount, error) {
	entry, err := s.repo.GetEntry(ctx, entryID)
	if err != nil {
		return Entry{}, BankAccount{}, err
	}
	account, err := s.repo.GetAccount(ctx, input.AccountID)
	if err != nil {
		return Entry{}, BankAccount{}, err
	}
	if !input.Amount.IsPositive() {
		return Entry{}, BankAccount{}, ErrInvalidPayment
	}
	if input.Amount.GreaterThan(entry.Outstanding()) {
		return Entry{}, BankAccount{}, ErrOverpayment
	}

	// The settling account's currency decides whether this is a
	// cross-currency payment.
	delta := input.Amount
	var recordedRate *decimal.Decimal
	if account.Currency != entry.Currency {
		if input.ExchangeRate == nil || !input.ExchangeRate.IsPositive() {
			return Entry{}, BankAccount{}, ErrMissingExchangeRate
		}
		rate := *input.ExchangeRate
		recordedRate = &rate
		delta = input.Amount.Mul(rate)
	}

	balance := account.Balance
	if entry.Type == TypeCredit {
		balance = balance.Add(delta)
	} else {
		balance = balance.Sub(delta)
	}

	date := input.Date
	if date.IsZero() {
		date = s.nowFn()
	}
	payment := Payment{
		ID:           uuid.New(),
		EntryID:      entry.ID,
		Amount:       input.Amount,
		Date:         date,
		AccountID:    account.ID,
		ExchangeRate: recordedRate,
	}

	expected := input.ExpectedVersion
	if expected == 0 {
		expected = entry.Version
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.BumpVersion(ctx, entry.ID, expected); err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}
		return tx.UpdateAccountBalance(ctx, account.ID, balance)
	})
	if err != nil {
		return Entry{}, BankAccount{}, err
	}

	updated, err := s.repo.GetEntry(ctx, entry.ID)
	if err != nil {
		return Entry{}, BankAccount{}, err
	}
	account.Balance = balance
	return updated, account, nil
}

// ReversePayment appends a negative adjustment undoing an earlier payment
// and restores the bank balance. The original payment stays in the history.
func (s *Service) ReversePayment(ctx context.Context, entryID, paymentID uuid.UUID) (Entry, error) {
	entry, err := s.repo.GetEntry(ctx, entryID)
	if err != nil {
		return Entry{}, err
	}
	var original *Payment
	for i := range entry.Payments {
		p := entry.Payments[i]
		if p.ReversalOf != nil && *p.ReversalOf == paymentID {
			return Entry{}, ErrAlreadyReversed
		}
		if p.ID == paymentID {
			original = &entry.Payments[i]
		}
	}
	if original == nil {
		return Entry{}, ErrPaymentNotFound
	}
	if original.ReversalOf != nil {
		return Entry{}, fmt.Errorf("%w: cannot reverse a reversal", ErrInvalidPayment)
	}
	account, err := s.repo.GetAccount(ctx, original.AccountID)
	if err != nil {
		return Entry{}, err
	}

	delta := original.Amount
	if original.ExchangeRate != nil {
		delta = delta.Mul(*original.ExchangeRate)
	}
	balance := account.Balance
	if entry.Type == TypeCredit {
		balance = balance.Sub(delta)
	} else {
		balance = balance.Add(delta)
	}

	reversal := Payment{
		ID:           uuid.New(),
		EntryID:      entry.ID,
		Amount:       original.Amount.Neg(),
		Date:         s.nowFn(),
		AccountID:    original.AccountID,
		ExchangeRate: original.ExchangeRate,
		ReversalOf:   &original.ID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.BumpVersion(ctx, entry.ID, entry.Version); err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, reversal); err != nil {
			return err
		}
		return tx.UpdateAccountBalance(ctx, account.ID, balance)
	})
	if err != nil {
		return Entry{}, err
	}
	return s.repo.GetEntry(ctx, entry.ID)
}

// BalanceInBRL converts the outstanding balance to BRL at PTAX plus the
// partner's agio. An unknown partner is a hard error: silently defaulting
// the markup to zero would mask data-quality problems.
func (s *Service) BalanceInBRL(ctx context.Context, entry Entry) (decimal.Decimal, error) {
	outstanding := entry.Outstanding()
	if entry.Currency == money.BRL {
		return outstanding, nil
	}
	partner, err := s.partners.FindByName(ctx, entry.Partner)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("resolve partner %q: %w", entry.Partner, err)
	}
	rate, err := s.fx.Rate(ctx, entry.Currency)
	if err != nil {
		return decimal.Decimal{}, err
	}
	effective := rate.Mul(decimal.NewFromInt(1).Add(money.Percent(partner.ExchangeRateAgio)))
	return outstanding.Mul(effective), nil
}

// Renegotiate retires an entry and reissues its outstanding balance as
// installments. Marking the original and creating the installments happen in
// one transaction so a failed installment never strands the original.
func (s *Service) Renegotiate(ctx context.Context, entryID uuid.UUID, installments []InstallmentSpec) (Entry, []Entry, error) {
	entry, err := s.repo.GetEntry(ctx, entryID)
	if err != nil {
		return Entry{}, nil, err
	}
	if entry.Override == StatusRenegotiated || DeriveStatus(entry, s.nowFn()) == StatusPaid {
		return Entry{}, nil, ErrEntryRetired
	}
	if len(installments) == 0 {
		return Entry{}, nil, fmt.Errorf("%w: at least one installment required", ErrInvalidInstallment)
	}

	sum := decimal.Zero
	for i, inst := range installments {
		if !inst.Amount.IsPositive() {
			return Entry{}, nil, fmt.Errorf("%w: installment %d amount must be positive", ErrInvalidInstallment, i+1)
		}
		if inst.DueDate.IsZero() {
			return Entry{}, nil, fmt.Errorf("%w: installment %d due date is required", ErrInvalidInstallment, i+1)
		}
		sum = sum.Add(inst.Amount)
	}
	outstanding := entry.Outstanding()
	if !sum.Equal(outstanding) {
		return Entry{}, nil, fmt.Errorf("%w: got %s, outstanding %s", ErrRenegotiationMismatch, sum, outstanding)
	}

	created := make([]Entry, len(installments))
	for i, inst := range installments {
		created[i] = Entry{
			ID:        uuid.New(),
			Type:      entry.Type,
			Partner:   entry.Partner,
			InvoiceID: fmt.Sprintf("%s-R%d", entry.InvoiceID, i+1),
			ProcessID: entry.ProcessID,
			Amount:    inst.Amount,
			Currency:  entry.Currency,
			DueDate:   inst.DueDate,
			Version:   1,
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.BumpVersion(ctx, entry.ID, entry.Version); err != nil {
			return err
		}
		if err := tx.SetOverride(ctx, entry.ID, StatusRenegotiated, entry.LegalNote); err != nil {
			return err
		}
		for _, inst := range created {
			if err := tx.InsertEntry(ctx, inst); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Entry{}, nil, err
	}

	updated, err := s.repo.GetEntry(ctx, entry.ID)
	if err != nil {
		return Entry{}, nil, err
	}
	out := make([]Entry, len(created))
	for i, inst := range created {
		stored, err := s.repo.GetEntry(ctx, inst.ID)
		if err != nil {
			return Entry{}, nil, err
		}
		out[i] = stored
	}
	return updated, out, nil
}

// SendToLegal places the entry under the legal override.
func (s *Service) SendToLegal(ctx context.Context, entryID uuid.UUID, note string) (Entry, error) {
	return s.setOverride(ctx, entryID, StatusLegal, note)
}

// MarkPendingApproval places the entry under the pending-approval override.
func (s *Service) MarkPendingApproval(ctx context.Context, entryID uuid.UUID) (Entry, error) {
	return s.setOverride(ctx, entryID, StatusPendingApproval, "")
}

// Approve clears a pending-approval or legal override, returning the entry
// to its derived status. A renegotiated entry stays retired.
func (s *Service) Approve(ctx context.Context, entryID uuid.UUID) (Entry, error) {
	entry, err := s.repo.GetEntry(ctx, entryID)
	if err != nil {
		return Entry{}, err
	}
	if entry.Override == StatusRenegotiated {
		return Entry{}, ErrEntryRetired
	}
	return s.setOverride(ctx, entryID, "", "")
}

func (s *Service) setOverride(ctx context.Context, entryID uuid.UUID, override Status, note string) (Entry, error) {
	entry, err := s.repo.GetEntry(ctx, entryID)
	if err != nil {
		return Entry{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.BumpVersion(ctx, entry.ID, entry.Version); err != nil {
			return err
		}
		return tx.SetOverride(ctx, entry.ID, override, note)
	})
	if err != nil {
		return Entry{}, err
	}
	return s.repo.GetEntry(ctx, entry.ID)
}

// GetEntry returns an entry with its payment history.
func (s *Service) GetEntry(ctx context.Context, id uuid.UUID) (Entry, error) {
	return s.repo.GetEntry(ctx, id)
}

// Status returns the entry's effective status as of today.
func (s *Service) Status(e Entry) Status {
	return DeriveStatus(e, s.nowFn())
}

// ListEntries returns entries matching the request.
func (s *Service) ListEntries(ctx context.Context, req ListEntriesRequest) ([]Entry, error) {
	return s.repo.ListEntries(ctx, req)
}

// Exposure aggregates outstanding balances per currency, with the BRL
// equivalent computed through each entry's partner agio. Renegotiated
// entries are excluded: their installments carry the exposure.
func (s *Service) Exposure(ctx context.Context) ([]CurrencyExposure, error) {
	entries, err := s.repo.ListEntries(ctx, ListEntriesRequest{Limit: 10000})
	if err != nil {
		return nil, err
	}
	byCurrency := make(map[money.Currency]*CurrencyExposure)
	for _, entry := range entries {
		if entry.Override == StatusRenegotiated {
			continue
		}
		outstanding := entry.Outstanding()
		if !outstanding.IsPositive() {
			continue
		}
		exp, ok := byCurrency[entry.Currency]
		if !ok {
			exp = &CurrencyExposure{Currency: entry.Currency}
			byCurrency[entry.Currency] = exp
		}
		brl, err := s.BalanceInBRL(ctx, entry)
		if err != nil {
			return nil, err
		}
		if entry.Type == TypeCredit {
			exp.OutstandingCredit = exp.OutstandingCredit.Add(outstanding)
			exp.BRLEquivalent = exp.BRLEquivalent.Add(brl)
		} else {
			exp.OutstandingDebit = exp.OutstandingDebit.Add(outstanding)
			exp.BRLEquivalent = exp.BRLEquivalent.Sub(brl)
		}
	}
	out := make([]CurrencyExposure, 0, len(byCurrency))
	for _, c := range money.Currencies() {
		if exp, ok := byCurrency[c]; ok {
			out = append(out, *exp)
		}
	}
	return out, nil
}

// CreateAccount opens a bank account.
func (s *Service) CreateAccount(ctx context.Context, input CreateAccountInput) (BankAccount, error) {
	if strings.TrimSpace(input.Name) == "" {
		return BankAccount{}, fmt.Errorf("%w: account name is required", ErrInvalidEntry)
	}
	if !input.Currency.Valid() {
		return BankAccount{}, fmt.Errorf("%w: %s", ErrInvalidEntry, money.ErrUnknownCurrency)
	}
	return s.repo.CreateAccount(ctx, input)
}

// GetAccount returns a bank account.
func (s *Service) GetAccount(ctx context.Context, id int64) (BankAccount, error) {
	return s.repo.GetAccount(ctx, id)
}

// ListAccounts returns every bank account.
func (s *Service) ListAccounts(ctx context.Context) ([]BankAccount, error) {
	return s.repo.ListAccounts(ctx)
}

package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-cargo/meridian-cargo/internal/money"
	"github.com/meridian-cargo/meridian-cargo/internal/platform/db"
)

var (
	// ErrEntryNotFound indicates the ledger entry does not exist.
	ErrEntryNotFound = errors.New("ledger: entry not found")
	// ErrAccountNotFound indicates the bank account does not exist.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrVersionConflict indicates a concurrent mutation won the race.
	ErrVersionConflict = errors.New("ledger: entry version conflict")
)

// CreateAccountInput for opening a bank account.
type CreateAccountInput struct {
	Name     string
	Currency money.Currency
}

// Repository defines ledger data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetEntry(ctx context.Context, id uuid.UUID) (Entry, error)
	ListEntries(ctx context.Context, req ListEntriesRequest) ([]Entry, error)

	GetAccount(ctx context.Context, id int64) (BankAccount, error)
	ListAccounts(ctx context.Context) ([]BankAccount, error)
	CreateAccount(ctx context.Context, input CreateAccountInput) (BankAccount, error)
}

// TxRepository exposes the mutations that must share one transaction.
type TxRepository interface {
	InsertEntry(ctx context.Context, e Entry) error
	InsertPayment(ctx context.Context, p Payment) error
	// BumpVersion increments the entry version iff it still matches the
	// expected value, returning ErrVersionConflict otherwise.
	BumpVersion(ctx context.Context, id uuid.UUID, expected int64) error
	SetOverride(ctx context.Context, id uuid.UUID, override Status, legalNote string) error
	UpdateAccountBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

const entryColumns = `id, type, partner, invoice_id, process_id, amount, currency, due_date, override_status, legal_note, version, created_at, updated_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var override string
	err := row.Scan(&e.ID, &e.Type, &e.Partner, &e.InvoiceID, &e.ProcessID, &e.Amount, &e.Currency,
		&e.DueDate, &override, &e.LegalNote, &e.Version, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrEntryNotFound
	}
	e.Override = Status(override)
	return e, err
}

func (r *pgRepository) GetEntry(ctx context.Context, id uuid.UUID) (Entry, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1`, id)
	entry, err := scanEntry(row)
	if err != nil {
		return Entry{}, err
	}
	payments, err := r.listPayments(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	entry.Payments = payments
	return entry, nil
}

func (r *pgRepository) listPayments(ctx context.Context, entryID uuid.UUID) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, entry_id, amount, paid_at, account_id, exchange_rate, reversal_of, created_at
FROM ledger_payments WHERE entry_id = $1 ORDER BY created_at, id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.EntryID, &p.Amount, &p.Date, &p.AccountID, &p.ExchangeRate, &p.ReversalOf, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *pgRepository) ListEntries(ctx context.Context, req ListEntriesRequest) ([]Entry, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
WHERE ($1 = '' OR type = $1)
  AND ($2 = '' OR lower(partner) = lower($2))
  AND ($3 = '' OR process_id = $3)
ORDER BY due_date, created_at LIMIT $4 OFFSET $5`,
		string(req.Type), req.Partner, req.ProcessID, limit, req.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range entries {
		payments, err := r.listPayments(ctx, entries[i].ID)
		if err != nil {
			return nil, err
		}
		entries[i].Payments = payments
	}
	return entries, nil
}

func (r *pgRepository) GetAccount(ctx context.Context, id int64) (BankAccount, error) {
	var a BankAccount
	err := r.pool.QueryRow(ctx, `SELECT id, name, currency, balance, created_at, updated_at FROM bank_accounts WHERE id = $1`, id).
		Scan(&a.ID, &a.Name, &a.Currency, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return BankAccount{}, ErrAccountNotFound
	}
	return a, err
}

func (r *pgRepository) ListAccounts(ctx context.Context) ([]BankAccount, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, currency, balance, created_at, updated_at FROM bank_accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BankAccount
	for rows.Next() {
		var a BankAccount
		if err := rows.Scan(&a.ID, &a.Name, &a.Currency, &a.Balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *pgRepository) CreateAccount(ctx context.Context, input CreateAccountInput) (BankAccount, error) {
	var a BankAccount
	err := r.pool.QueryRow(ctx, `INSERT INTO bank_accounts (name, currency, balance, created_at, updated_at)
VALUES ($1, $2, 0, now(), now()) RETURNING id, name, currency, balance, created_at, updated_at`,
		input.Name, string(input.Currency)).
		Scan(&a.ID, &a.Name, &a.Currency, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (t *pgTxRepository) InsertEntry(ctx context.Context, e Entry) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO ledger_entries (id, type, partner, invoice_id, process_id, amount, currency, due_date, override_status, legal_note, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())`,
		e.ID, string(e.Type), e.Partner, e.InvoiceID, e.ProcessID, e.Amount, string(e.Currency),
		e.DueDate, string(e.Override), e.LegalNote, e.Version)
	return err
}

func (t *pgTxRepository) InsertPayment(ctx context.Context, p Payment) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO ledger_payments (id, entry_id, amount, paid_at, account_id, exchange_rate, reversal_of, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
		p.ID, p.EntryID, p.Amount, p.Date, p.AccountID, p.ExchangeRate, p.ReversalOf)
	return err
}

func (t *pgTxRepository) BumpVersion(ctx context.Context, id uuid.UUID, expected int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE ledger_entries SET version = version + 1, updated_at = now()
WHERE id = $1 AND version = $2`, id, expected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (t *pgTxRepository) SetOverride(ctx context.Context, id uuid.UUID, override Status, legalNote string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE ledger_entries SET override_status = $2, legal_note = $3, updated_at = now()
WHERE id = $1`, id, string(override), legalNote)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (t *pgTxRepository) UpdateAccountBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `UPDATE bank_accounts SET balance = $2, updated_at = now() WHERE id = $1`, accountID, balance)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

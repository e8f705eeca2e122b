package rates

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-cargo/meridian-cargo/internal/money"
)

// Repository defines persistence for both lookup tables.
type Repository interface {
	GetTaxRates(ctx context.Context, ncm string) (TaxRates, error)
	UpsertTaxRates(ctx context.Context, rates TaxRates) error

	GetQuote(ctx context.Context, currency money.Currency) (Quote, error)
	ListQuotes(ctx context.Context) ([]Quote, error)
	UpsertQuote(ctx context.Context, currency money.Currency, rate decimal.Decimal, fetchedAt time.Time) error
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) GetTaxRates(ctx context.Context, ncm string) (TaxRates, error) {
	var t TaxRates
	err := r.pool.QueryRow(ctx, `SELECT ncm, ii_pct, ipi_pct, pis_pct, cofins_pct FROM ncm_tax_rates WHERE ncm = $1`, ncm).
		Scan(&t.NCM, &t.II, &t.IPI, &t.PIS, &t.COFINS)
	if errors.Is(err, pgx.ErrNoRows) {
		return TaxRates{}, ErrNCMNotFound
	}
	return t, err
}

func (r *pgRepository) UpsertTaxRates(ctx context.Context, rates TaxRates) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO ncm_tax_rates (ncm, ii_pct, ipi_pct, pis_pct, cofins_pct, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (ncm) DO UPDATE SET ii_pct = $2, ipi_pct = $3, pis_pct = $4, cofins_pct = $5, updated_at = now()`,
		rates.NCM, rates.II, rates.IPI, rates.PIS, rates.COFINS)
	return err
}

func (r *pgRepository) GetQuote(ctx context.Context, currency money.Currency) (Quote, error) {
	var q Quote
	err := r.pool.QueryRow(ctx, `SELECT currency, rate, fetched_at FROM ptax_quotes WHERE currency = $1`, string(currency)).
		Scan(&q.Currency, &q.Rate, &q.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Quote{}, ErrQuoteNotFound
	}
	return q, err
}

func (r *pgRepository) ListQuotes(ctx context.Context) ([]Quote, error) {
	rows, err := r.pool.Query(ctx, `SELECT currency, rate, fetched_at FROM ptax_quotes ORDER BY currency`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Quote
	for rows.Next() {
		var q Quote
		if err := rows.Scan(&q.Currency, &q.Rate, &q.FetchedAt); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (r *pgRepository) UpsertQuote(ctx context.Context, currency money.Currency, rate decimal.Decimal, fetchedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO ptax_quotes (currency, rate, fetched_at)
VALUES ($1, $2, $3)
ON CONFLICT (currency) DO UPDATE SET rate = $2, fetched_at = $3`,
		string(currency), rate, fetchedAt)
	return err
}

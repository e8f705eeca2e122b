package partners

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPartnerNotFound indicates the partner does not exist.
var ErrPartnerNotFound = errors.New("partners: not found")

// ErrDuplicateName indicates the partner name is already registered.
var ErrDuplicateName = errors.New("partners: name already registered")

// Repository defines partner data access.
type Repository interface {
	Directory

	Create(ctx context.Context, input CreatePartnerInput) (Partner, error)
	Update(ctx context.Context, input UpdatePartnerInput) (Partner, error)
	GetByID(ctx context.Context, id int64) (Partner, error)
	List(ctx context.Context, req ListPartnersRequest) ([]Partner, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const partnerColumns = `id, name, document, exchange_rate_agio, payment_term_days, created_at, updated_at`

func scanPartner(row pgx.Row) (Partner, error) {
	var p Partner
	err := row.Scan(&p.ID, &p.Name, &p.Document, &p.ExchangeRateAgio, &p.PaymentTermDays, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Partner{}, ErrPartnerNotFound
	}
	return p, err
}

func (r *pgRepository) Create(ctx context.Context, input CreatePartnerInput) (Partner, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO partners (name, document, exchange_rate_agio, payment_term_days, created_at, updated_at)
VALUES ($1, $2, $3, $4, now(), now()) RETURNING `+partnerColumns,
		input.Name, input.Document, input.ExchangeRateAgio, input.PaymentTermDays)
	p, err := scanPartner(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Partner{}, ErrDuplicateName
		}
		return Partner{}, err
	}
	return p, nil
}

func (r *pgRepository) Update(ctx context.Context, input UpdatePartnerInput) (Partner, error) {
	row := r.pool.QueryRow(ctx, `UPDATE partners SET document = $2, exchange_rate_agio = $3, payment_term_days = $4, updated_at = now()
WHERE id = $1 RETURNING `+partnerColumns,
		input.ID, input.Document, input.ExchangeRateAgio, input.PaymentTermDays)
	return scanPartner(row)
}

func (r *pgRepository) GetByID(ctx context.Context, id int64) (Partner, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+partnerColumns+` FROM partners WHERE id = $1`, id)
	return scanPartner(row)
}

func (r *pgRepository) FindByName(ctx context.Context, name string) (Partner, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+partnerColumns+` FROM partners WHERE lower(name) = lower($1)`, strings.TrimSpace(name))
	return scanPartner(row)
}

func (r *pgRepository) List(ctx context.Context, req ListPartnersRequest) ([]Partner, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+partnerColumns+` FROM partners
WHERE ($1 = '' OR name ILIKE '%' || $1 || '%')
ORDER BY name LIMIT $2 OFFSET $3`, req.Query, limit, req.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Partner
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

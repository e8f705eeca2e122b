package partners

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryPartnerRepo struct {
	partners map[int64]Partner
	nextID   int64
}

func newMemoryPartnerRepo() *memoryPartnerRepo {
	return &memoryPartnerRepo{partners: make(map[int64]Partner)}
}

func (r *memoryPartnerRepo) Create(ctx context.Context, input CreatePartnerInput) (Partner, error) {
	for _, p := range r.partners {
		if strings.EqualFold(p.Name, input.Name) {
			return Partner{}, ErrDuplicateName
		}
	}
	r.nextID++
	now := time.Now()
	p := Partner{
		ID:               r.nextID,
		Name:             input.Name,
		Document:         input.Document,
		ExchangeRateAgio: input.ExchangeRateAgio,
		PaymentTermDays:  input.PaymentTermDays,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	r.partners[p.ID] = p
	return p, nil
}

func (r *memoryPartnerRepo) Update(ctx context.Context, input UpdatePartnerInput) (Partner, error) {
	p, ok := r.partners[input.ID]
	if !ok {
		return Partner{}, ErrPartnerNotFound
	}
	p.Document = input.Document
	p.ExchangeRateAgio = input.ExchangeRateAgio
	p.PaymentTermDays = input.PaymentTermDays
	p.UpdatedAt = time.Now()
	r.partners[p.ID] = p
	return p, nil
}

func (r *memoryPartnerRepo) GetByID(ctx context.Context, id int64) (Partner, error) {
	p, ok := r.partners[id]
	if !ok {
		return Partner{}, ErrPartnerNotFound
	}
	return p, nil
}

func (r *memoryPartnerRepo) FindByName(ctx context.Context, name string) (Partner, error) {
	for _, p := range r.partners {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			return p, nil
		}
	}
	return Partner{}, ErrPartnerNotFound
}

func (r *memoryPartnerRepo) List(ctx context.Context, req ListPartnersRequest) ([]Partner, error) {
	var out []Partner
	for _, p := range r.partners {
		if req.Query != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(req.Query)) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func TestCreatePartnerValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemoryPartnerRepo())

	_, err := svc.Create(ctx, CreatePartnerInput{Name: "   "})
	require.ErrorIs(t, err, ErrNameRequired)

	_, err = svc.Create(ctx, CreatePartnerInput{
		Name:             "Hamburg Lines",
		ExchangeRateAgio: decimal.NewFromInt(-1),
	})
	require.ErrorIs(t, err, ErrNegativeAgio)

	_, err = svc.Create(ctx, CreatePartnerInput{
		Name:            "Hamburg Lines",
		PaymentTermDays: -5,
	})
	require.ErrorIs(t, err, ErrInvalidPaymentTerm)

	p, err := svc.Create(ctx, CreatePartnerInput{
		Name:             "Hamburg Lines",
		ExchangeRateAgio: decimal.NewFromFloat(2.5),
		PaymentTermDays:  30,
	})
	require.NoError(t, err)
	require.Equal(t, "Hamburg Lines", p.Name)

	_, err = svc.Create(ctx, CreatePartnerInput{Name: "hamburg lines"})
	require.ErrorIs(t, err, ErrDuplicateName)
}

func TestFindByNameCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemoryPartnerRepo())

	_, err := svc.Create(ctx, CreatePartnerInput{Name: "Andes Cargo", ExchangeRateAgio: decimal.Zero})
	require.NoError(t, err)

	p, err := svc.FindByName(ctx, " andes cargo ")
	require.NoError(t, err)
	require.Equal(t, "Andes Cargo", p.Name)

	_, err = svc.FindByName(ctx, "unknown")
	require.ErrorIs(t, err, ErrPartnerNotFound)
}

func TestDueDateFrom(t *testing.T) {
	p := Partner{PaymentTermDays: 28}
	issued := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 3, 29, 0, 0, 0, 0, time.UTC), p.DueDateFrom(issued))
}

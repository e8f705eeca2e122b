package partners

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrNameRequired indicates a missing partner name.
	ErrNameRequired = errors.New("partners: name is required")
	// ErrNegativeAgio indicates a negative exchange-rate markup.
	ErrNegativeAgio = errors.New("partners: agio must not be negative")
	// ErrInvalidPaymentTerm indicates a negative payment term.
	ErrInvalidPaymentTerm = errors.New("partners: payment term must not be negative")
)

// Service exposes partner registry operations.
type Service struct {
	repo Repository
}

// NewService constructs the partner service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func validatePartnerFields(agio decimal.Decimal, termDays int) error {
	if agio.IsNegative() {
		return ErrNegativeAgio
	}
	if termDays < 0 {
		return ErrInvalidPaymentTerm
	}
	return nil
}

// Create registers a new partner.
func (s *Service) Create(ctx context.Context, input CreatePartnerInput) (Partner, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Partner{}, ErrNameRequired
	}
	if err := validatePartnerFields(input.ExchangeRateAgio, input.PaymentTermDays); err != nil {
		return Partner{}, err
	}
	return s.repo.Create(ctx, input)
}

// Update changes the mutable fields of a partner. The name is the ledger's
// lookup key and stays fixed after creation.
func (s *Service) Update(ctx context.Context, input UpdatePartnerInput) (Partner, error) {
	if err := validatePartnerFields(input.ExchangeRateAgio, input.PaymentTermDays); err != nil {
		return Partner{}, err
	}
	return s.repo.Update(ctx, input)
}

// Get returns a partner by id.
func (s *Service) Get(ctx context.Context, id int64) (Partner, error) {
	return s.repo.GetByID(ctx, id)
}

// FindByName resolves a partner by its registry name.
func (s *Service) FindByName(ctx context.Context, name string) (Partner, error) {
	return s.repo.FindByName(ctx, name)
}

// List returns partners matching the request.
func (s *Service) List(ctx context.Context, req ListPartnersRequest) ([]Partner, error) {
	return s.repo.List(ctx, req)
}

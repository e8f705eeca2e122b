package partners

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Partner is a counterparty of the forwarding operation: shipper, consignee,
// carrier or broker. ExchangeRateAgio is the markup applied on top of PTAX
// whenever this partner sits on the other side of a currency conversion.
type Partner struct {
	ID               int64
	Name             string
	Document         string
	ExchangeRateAgio decimal.Decimal
	PaymentTermDays  int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DueDateFrom returns the default due date for a charge issued against this
// partner on the given date.
func (p Partner) DueDateFrom(issued time.Time) time.Time {
	return issued.AddDate(0, 0, p.PaymentTermDays)
}

// Directory resolves partners by name. The settlement engine consumes this
// interface; it never touches the repository directly.
type Directory interface {
	FindByName(ctx context.Context, name string) (Partner, error)
}

// CreatePartnerInput for registering a partner.
type CreatePartnerInput struct {
	Name             string
	Document         string
	ExchangeRateAgio decimal.Decimal
	PaymentTermDays  int
}

// UpdatePartnerInput for updating mutable partner fields.
type UpdatePartnerInput struct {
	ID               int64
	Document         string
	ExchangeRateAgio decimal.Decimal
	PaymentTermDays  int
}

// ListPartnersRequest filters partner listings.
type ListPartnersRequest struct {
	Query  string
	Limit  int
	Offset int
}
